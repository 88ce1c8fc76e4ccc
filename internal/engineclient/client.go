// Package engineclient talks to the engine's websocket API endpoint.
package engineclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sc2tap.ai/internal/protocol"
)

// ErrUnavailable is returned when every connect attempt failed.
var ErrUnavailable = errors.New("engineclient: upstream unavailable")

const (
	DefaultAttempts = 6
	DefaultDelay    = 2 * time.Second

	writeWait = 10 * time.Second
)

// DialConn opens a websocket to url, retrying up to attempts times with a
// fixed delay in between. The engine is a locally supervised process that
// becomes ready within seconds, so there is no backoff.
func DialConn(ctx context.Context, url string, attempts int, delay time.Duration, logger *log.Logger) (*websocket.Conn, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if attempts <= 0 {
		attempts = 1
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   64 * 1024,
		WriteBufferSize:  64 * 1024,
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		conn, _, err := dialer.DialContext(ctx, url, nil)
		if err == nil {
			// Observations on large maps run to several megabytes.
			conn.SetReadLimit(64 << 20)
			return conn, nil
		}
		lastErr = err
		logger.Printf("connect %s: attempt %d/%d failed: %v", url, i, attempts, err)
		if i == attempts {
			break
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts: %v", ErrUnavailable, url, attempts, lastErr)
}

// Client is a simple request/response connection. Calls are serialized.
type Client struct {
	conn *websocket.Conn
	log  *log.Logger

	mu     sync.Mutex
	nextID uint32
}

// Dial connects with bounded retries and wraps the connection.
func Dial(ctx context.Context, url string, attempts int, delay time.Duration, logger *log.Logger) (*Client, error) {
	conn, err := DialConn(ctx, url, attempts, delay, logger)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Client{conn: conn, log: logger}, nil
}

func (c *Client) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	return c.conn.Close()
}

// Call sends req and waits for the matching response. A request without an
// id gets the next sequence number.
func (c *Client) Call(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if req.ID == 0 {
		c.nextID++
		req.ID = c.nextID
	}

	// Unblock a pending read when ctx ends.
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.BinaryMessage, protocol.EncodeRequest(req)); err != nil {
		return protocol.Response{}, fmt.Errorf("send %s: %w", req.Kind, err)
	}

	if d, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(d)
	} else {
		_ = c.conn.SetReadDeadline(time.Time{})
	}
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return protocol.Response{}, ctx.Err()
			}
			return protocol.Response{}, fmt.Errorf("read %s response: %w", req.Kind, err)
		}
		resp, err := protocol.DecodeResponse(msg)
		if err != nil {
			return protocol.Response{}, fmt.Errorf("decode %s response: %w", req.Kind, err)
		}
		if resp.ID != 0 && resp.ID != req.ID {
			c.log.Printf("skipping stale response id=%d (want %d)", resp.ID, req.ID)
			continue
		}
		return resp, nil
	}
}

// SendCreateGame connects to url and asks the engine to create the game
// described by setup. It fails when the engine reports a create-game error.
func SendCreateGame(ctx context.Context, url string, setup protocol.GameSetup, attempts int, delay time.Duration, logger *log.Logger) (protocol.Response, error) {
	req, err := protocol.NewCreateGameRequest(setup)
	if err != nil {
		return protocol.Response{}, err
	}
	c, err := Dial(ctx, url, attempts, delay, logger)
	if err != nil {
		return protocol.Response{}, err
	}
	defer c.Close()

	resp, err := c.Call(ctx, req)
	if err != nil {
		return resp, err
	}
	if len(resp.Errors) > 0 {
		return resp, fmt.Errorf("create game: %v", resp.Errors)
	}
	if resp.CreateGame != nil && resp.CreateGame.Error != 0 {
		return resp, fmt.Errorf("create game: error %d: %s", resp.CreateGame.Error, resp.CreateGame.ErrorDetails)
	}
	return resp, nil
}
