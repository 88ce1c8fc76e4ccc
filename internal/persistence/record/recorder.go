// Package record writes the raw frames of a relay session to a compressed
// JSONL file and reads them back.
package record

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"

	"sc2tap.ai/internal/relay"
)

// Frame is one recorded line. B is base64 in the file.
type Frame struct {
	T   int64  `json:"t"`
	Dir string `json:"dir"`
	B   []byte `json:"b"`
}

func (f Frame) Time() time.Time { return time.UnixMilli(f.T) }

// Path is where the recording of session id lives under dataDir.
func Path(dataDir, id string) string {
	return filepath.Join(dataDir, "sessions", id+".jsonl.zst")
}

type Stats struct {
	Written uint64
	Dropped uint64
	Errors  uint64
}

// Recorder is a relay.FrameSink. RecordFrame never blocks the relay: when
// the queue is full the frame is dropped and counted.
type Recorder struct {
	path string
	log  *log.Logger

	mu     sync.RWMutex
	ch     chan Frame
	done   chan struct{}
	closed bool
	once   sync.Once

	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer

	written atomic.Uint64
	dropped atomic.Uint64
	errs    atomic.Uint64
}

var _ relay.FrameSink = (*Recorder)(nil)

// Open creates the recording file for session id and starts the writer.
func Open(dataDir, id string, logger *log.Logger) (*Recorder, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	path := Path(dataDir, id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r := &Recorder{
		path: path,
		log:  logger,
		ch:   make(chan Frame, 4096),
		done: make(chan struct{}),
		f:    f,
		enc:  enc,
		w:    bufio.NewWriterSize(enc, 128*1024),
	}
	go r.loop()
	return r, nil
}

func (r *Recorder) Path() string { return r.path }

func (r *Recorder) RecordFrame(dir relay.Direction, frame []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.ch <- Frame{T: time.Now().UnixMilli(), Dir: string(dir), B: bytes.Clone(frame)}:
	default:
		r.dropped.Add(1)
	}
}

func (r *Recorder) Stats() Stats {
	return Stats{Written: r.written.Load(), Dropped: r.dropped.Load(), Errors: r.errs.Load()}
}

// Close drains queued frames and finishes the zstd stream.
func (r *Recorder) Close() error {
	var err error
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.ch)
		r.mu.Unlock()
		<-r.done
		if e := r.w.Flush(); e != nil {
			err = e
		}
		if e := r.enc.Close(); e != nil && err == nil {
			err = e
		}
		if e := r.f.Close(); e != nil && err == nil {
			err = e
		}
	})
	return err
}

func (r *Recorder) loop() {
	defer close(r.done)
	flushTicker := time.NewTicker(time.Second)
	defer flushTicker.Stop()

	for {
		select {
		case fr, ok := <-r.ch:
			if !ok {
				return
			}
			if err := r.write(fr); err != nil {
				if r.errs.Add(1) == 1 {
					r.log.Printf("record %s: %v", r.path, err)
				}
				continue
			}
			r.written.Add(1)
		case <-flushTicker.C:
			_ = r.w.Flush()
		}
	}
}

func (r *Recorder) write(fr Frame) error {
	b, err := json.Marshal(fr)
	if err != nil {
		return err
	}
	if _, err := r.w.Write(b); err != nil {
		return err
	}
	return r.w.WriteByte('\n')
}

// ReadFrames streams the frames of a recording to fn in file order. A
// truncated final line, as left by a crash, ends the stream without error.
func ReadFrames(path string, fn func(Frame) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 128*1024)
	for line := 1; ; line++ {
		b, err := br.ReadBytes('\n')
		if len(b) > 0 && b[len(b)-1] == '\n' {
			var fr Frame
			if jerr := json.Unmarshal(b, &fr); jerr != nil {
				return fmt.Errorf("%s:%d: %w", path, line, jerr)
			}
			if ferr := fn(fr); ferr != nil {
				return ferr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}
	}
}
