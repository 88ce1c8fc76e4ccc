package objstore

import (
	"context"
	"fmt"
	"log"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Putter is the upload half of Client.
type Putter interface {
	PutFile(ctx context.Context, key, localPath string) error
}

type Stats struct {
	QueueDepth int
	Enqueued   uint64
	Dropped    uint64
	Uploaded   uint64
	Failed     uint64
	LastOKUnix int64
}

// Uploader mirrors closed recordings in the background. Enqueue never blocks
// a session teardown for longer than the configured wait.
type Uploader struct {
	put     Putter
	prefix  string
	log     *log.Logger
	wait    time.Duration
	retries int
	backoff time.Duration

	jobs chan string
	wg   sync.WaitGroup
	once sync.Once

	enqueued atomic.Uint64
	dropped  atomic.Uint64
	uploaded atomic.Uint64
	failed   atomic.Uint64
	lastOK   atomic.Int64
}

type UploaderConfig struct {
	Prefix   string
	Workers  int
	Queue    int
	Wait     time.Duration
	Attempts int
	// Backoff is multiplied by the square of the attempt number.
	Backoff time.Duration
}

func NewUploader(put Putter, cfg UploaderConfig, logger *log.Logger) *Uploader {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Queue <= 0 {
		cfg.Queue = 64
	}
	if cfg.Wait <= 0 {
		cfg.Wait = 25 * time.Millisecond
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 4
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	u := &Uploader{
		put:     put,
		prefix:  strings.Trim(strings.ReplaceAll(cfg.Prefix, "\\", "/"), "/"),
		log:     logger,
		wait:    cfg.Wait,
		retries: cfg.Attempts,
		backoff: cfg.Backoff,
		jobs:    make(chan string, cfg.Queue),
	}
	for i := 0; i < cfg.Workers; i++ {
		u.wg.Add(1)
		go u.worker()
	}
	return u
}

// Key is the object key a recording uploads to: prefix plus the file name
// under sessions/.
func (u *Uploader) Key(localPath string) string {
	k := "sessions/" + filepath.Base(localPath)
	if u.prefix != "" {
		k = path.Join(u.prefix, k)
	}
	return k
}

func (u *Uploader) Enqueue(localPath string) {
	if u == nil {
		return
	}
	u.enqueued.Add(1)
	select {
	case u.jobs <- localPath:
		return
	default:
	}
	t := time.NewTimer(u.wait)
	defer t.Stop()
	select {
	case u.jobs <- localPath:
	case <-t.C:
		n := u.dropped.Add(1)
		u.printf("upload drop %s: queue full (dropped %d)", localPath, n)
	}
}

// Close waits for queued uploads to finish.
func (u *Uploader) Close() {
	if u == nil {
		return
	}
	u.once.Do(func() {
		close(u.jobs)
		u.wg.Wait()
	})
}

func (u *Uploader) Stats() Stats {
	if u == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth: len(u.jobs),
		Enqueued:   u.enqueued.Load(),
		Dropped:    u.dropped.Load(),
		Uploaded:   u.uploaded.Load(),
		Failed:     u.failed.Load(),
		LastOKUnix: u.lastOK.Load(),
	}
}

func (u *Uploader) worker() {
	defer u.wg.Done()
	for p := range u.jobs {
		key := u.Key(p)
		if err := u.upload(key, p); err != nil {
			u.failed.Add(1)
			u.printf("upload %s -> %s failed: %v", p, key, err)
			continue
		}
		u.uploaded.Add(1)
		u.lastOK.Store(time.Now().Unix())
		u.printf("uploaded %s -> %s", p, key)
	}
}

func (u *Uploader) upload(key, localPath string) error {
	var last error
	for attempt := 1; attempt <= u.retries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err := u.put.PutFile(ctx, key, localPath)
		cancel()
		if err == nil {
			return nil
		}
		last = err
		if attempt < u.retries {
			time.Sleep(time.Duration(attempt*attempt) * u.backoff)
		}
	}
	return fmt.Errorf("after %d attempts: %w", u.retries, last)
}

func (u *Uploader) printf(format string, args ...any) {
	if u.log != nil {
		u.log.Printf(format, args...)
	}
}
