package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/inercia/mcproxy/internal/child"
	"github.com/inercia/mcproxy/internal/config"
	"github.com/inercia/mcproxy/internal/discovery"
	"github.com/inercia/mcproxy/internal/framer"
	"github.com/inercia/mcproxy/internal/jsonrpc"
	"github.com/inercia/mcproxy/internal/logging"
)

// validateTimeout bounds the whole Validate handshake: a child that never
// answers initialize/tools/list within this window is reported as invalid
// rather than left running.
const validateTimeout = 5 * time.Second

// stdioCorrelator adapts a bare child.Handle's stdout/stdin into the
// discovery.Correlator interface without standing up a Router, since
// Validate never serves network clients.
type stdioCorrelator struct {
	h        *child.Handle
	mu       sync.Mutex
	awaiters map[jsonrpc.ID]chan []byte
}

func newStdioCorrelator(h *child.Handle) *stdioCorrelator {
	return &stdioCorrelator{h: h, awaiters: make(map[jsonrpc.ID]chan []byte)}
}

func (c *stdioCorrelator) Forward(body []byte) error {
	_, err := c.h.Stdin().Write(jsonrpc.EnsureTrailingNewline(body))
	return err
}

func (c *stdioCorrelator) Await(id jsonrpc.ID) <-chan []byte {
	ch := make(chan []byte, 1)
	c.mu.Lock()
	c.awaiters[id] = ch
	c.mu.Unlock()
	return ch
}

func (c *stdioCorrelator) CancelAwait(id jsonrpc.ID) {
	c.mu.Lock()
	delete(c.awaiters, id)
	c.mu.Unlock()
}

func (c *stdioCorrelator) pump(logger *slog.Logger) {
	_ = framer.Pump(c.h.Stdout(), func(line string) {
		raw := []byte(line)
		id, _, ok := jsonrpc.Peek(raw)
		if !ok || id.IsZero() {
			return
		}
		c.mu.Lock()
		ch, has := c.awaiters[id]
		if has {
			delete(c.awaiters, id)
		}
		c.mu.Unlock()
		if has {
			select {
			case ch <- raw:
			default:
			}
		}
	}, logger)
}

// Validate spawns cfg's command outside any BridgeInstance, runs the Tool
// Discovery handshake against it directly over stdio, terminates the
// child, and returns the tool set it advertised. Used by the CLI's
// validate command to sanity-check a config entry without binding a
// network listener.
func Validate(ctx context.Context, cfg config.ChildConfig) ([]discovery.Tool, error) {
	vctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	h, err := child.Spawn(vctx, cfg)
	if err != nil {
		return nil, err
	}
	defer h.Terminate()

	corr := newStdioCorrelator(h)
	go corr.pump(logging.Child())

	tools, err := discovery.Discover(vctx, corr, "mcproxy-validate", validateTimeout)
	if err != nil {
		if errors.Is(vctx.Err(), context.DeadlineExceeded) {
			return nil, discovery.ErrTimeout
		}
		return nil, err
	}
	return tools, nil
}
