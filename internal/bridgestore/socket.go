package bridgestore

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/vk/flowsync/internal/attrstore"
	"github.com/vk/flowsync/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Config configures a bridge connection.
type Config struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
	// Timeout bounds the wait for each reply. Defaults to 60s.
	Timeout time.Duration
	// ConnectTimeout bounds the initial handshake. Defaults to 15s.
	ConnectTimeout time.Duration
}

const (
	defaultTimeout        = 60 * time.Second
	defaultConnectTimeout = 15 * time.Second
)

// socketTransport correlates replies to requests by id.
type socketTransport struct {
	io      *socket.Socket
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan Reply
	lost    bool
}

// Dial connects to the bridge and returns the socket transport.
func Dial(ctx context.Context, cfg Config) (Transport, error) {
	logger := ctxlog.FromContext(ctx).With("bridge", cfg.URL)
	logger.Info("Connecting to engine bridge...")

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bridge URL: %w", err)
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	t := &socketTransport{
		logger:  logger,
		timeout: cfg.Timeout,
		pending: make(map[string]chan Reply),
	}
	if t.timeout <= 0 {
		t.timeout = defaultTimeout
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}

	connectChan := make(chan error, 1)

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(cfg.Namespace, opts)
	t.io = io

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Connected to engine bridge.", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		var err error = fmt.Errorf("connect error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connectChan <- err
	})
	io.On(types.EventName(ReplyEvent), t.onReply)
	io.On(types.EventName("disconnect"), func(reasons ...any) {
		logger.Warn("Engine bridge disconnected.", "reason", reasons)
		t.markLost()
	})

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("bridge connection failed: %w", err)
		}
		return t, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for bridge connection")
	case <-time.After(connectTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %v waiting for bridge connection", connectTimeout)
	}
}

func (t *socketTransport) onReply(data ...any) {
	if len(data) == 0 {
		t.logger.Warn("Empty reply from bridge ignored.")
		return
	}
	reply, err := decodeReply(data[0])
	if err != nil {
		t.logger.Warn("Undecodable reply from bridge ignored.", "error", err)
		return
	}
	t.mu.Lock()
	ch, ok := t.pending[reply.ID]
	delete(t.pending, reply.ID)
	t.mu.Unlock()
	if !ok {
		t.logger.Debug("Reply for unknown request ignored.", "id", reply.ID)
		return
	}
	ch <- reply
}

func (t *socketTransport) markLost() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lost = true
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
}

// Call implements Transport.
func (t *socketTransport) Call(ctx context.Context, req Request) (Reply, error) {
	payload, err := encodeRequest(req)
	if err != nil {
		return Reply{}, err
	}

	ch := make(chan Reply, 1)
	t.mu.Lock()
	if t.lost {
		t.mu.Unlock()
		return Reply{}, fmt.Errorf("%w: socket disconnected", attrstore.ErrConnectionLost)
	}
	t.pending[req.ID] = ch
	t.mu.Unlock()

	t.io.Emit(RequestEvent, payload)

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()
	select {
	case reply, ok := <-ch:
		if !ok {
			return Reply{}, fmt.Errorf("%w: socket disconnected during %s", attrstore.ErrConnectionLost, req.Op)
		}
		return reply, nil
	case <-ctx.Done():
		t.forget(req.ID)
		return Reply{}, ctx.Err()
	case <-timer.C:
		t.forget(req.ID)
		return Reply{}, fmt.Errorf("%w: no reply to %s after %v", attrstore.ErrConnectionLost, req.Op, t.timeout)
	}
}

func (t *socketTransport) forget(id string) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

// Close disconnects the socket.
func (t *socketTransport) Close() error {
	t.logger.Info("Closing engine bridge connection.", "sid", t.io.Id())
	t.io.Disconnect()
	t.markLost()
	return nil
}
