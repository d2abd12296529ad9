// Package backend speaks to the matchmaking backend over a websocket. It is
// the orchestrator's Transport and its peer session capability, and it turns
// everything the backend pushes into hub messages.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/matchmaking-client/internal/hub"
	"github.com/DoyleJ11/matchmaking-client/internal/types"
	wire "github.com/DoyleJ11/matchmaking-client/pkg/types"
)

var (
	ErrNotConnected = errors.New("backend not connected")
	ErrQueueFull    = errors.New("backend send queue full")
	ErrSinkClosed   = errors.New("message sink closed")
)

// Sink receives decoded backend pushes. *hub.Hub satisfies it.
type Sink interface {
	Send(ctx context.Context, m hub.Msg) bool
}

type Options struct {
	URL          string
	Header       http.Header
	QueueSize    int
	ReadLimit    int64
	WriteTimeout time.Duration
	RetryMin     time.Duration
	RetryMax     time.Duration
	Log          *zap.SugaredLogger
}

type Client struct {
	opts      Options
	log       *zap.SugaredLogger
	out       chan wire.Frame
	connected atomic.Bool

	mu       sync.Mutex
	metadata map[types.SessionID]map[string]string
}

func New(opts Options) *Client {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 1 << 20
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 3 * time.Second
	}
	if opts.RetryMin <= 0 {
		opts.RetryMin = 500 * time.Millisecond
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = 30 * time.Second
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop().Sugar()
	}
	return &Client{
		opts:     opts,
		log:      opts.Log,
		out:      make(chan wire.Frame, opts.QueueSize),
		metadata: make(map[types.SessionID]map[string]string),
	}
}

// Run keeps a connection open until ctx is cancelled, redialing with
// exponential backoff whenever it drops.
func (c *Client) Run(ctx context.Context, sink Sink) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.RetryMin
	b.MaxInterval = c.opts.RetryMax
	b.MaxElapsedTime = 0

	err := backoff.RetryNotify(func() error {
		err := c.serve(ctx, sink, b)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if errors.Is(err, ErrSinkClosed) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		c.log.Warnw("backend connection lost", "error", err, "retry_in", wait)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *Client) serve(ctx context.Context, sink Sink, b backoff.BackOff) error {
	conn, _, err := websocket.Dial(ctx, c.opts.URL, &websocket.DialOptions{HTTPHeader: c.opts.Header})
	if err != nil {
		return fmt.Errorf("dial backend: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(c.opts.ReadLimit)

	b.Reset()
	c.connected.Store(true)
	defer c.connected.Store(false)
	c.log.Infow("connected to backend", "url", c.opts.URL)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.writeLoop(gctx, conn) })
	g.Go(func() error { return c.readLoop(gctx, conn, sink) })
	return g.Wait()
}

func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-c.out:
			data, err := wire.Marshal(f)
			if err != nil {
				c.log.Errorw("dropping unencodable frame", "method", f.Method, "error", err)
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, c.opts.WriteTimeout)
			err = conn.Write(wctx, websocket.MessageBinary, data)
			cancel()
			if err != nil {
				return fmt.Errorf("write %s: %w", f.Method, err)
			}
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, sink Sink) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		var f wire.Frame
		if err := wire.Unmarshal(data, &f); err != nil {
			c.log.Warnw("dropping undecodable frame", "error", err)
			continue
		}
		msg, ok, err := c.decode(f)
		if err != nil {
			c.log.Warnw("dropping frame", "type", f.Type, "id", f.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		if !sink.Send(ctx, msg) {
			return ErrSinkClosed
		}
	}
}

func (c *Client) decode(f wire.Frame) (hub.Msg, bool, error) {
	switch f.Type {
	case wire.FrameReply:
		var r wire.Reply
		if err := f.Decode(&r); err != nil {
			return nil, false, err
		}
		return hub.BackendReply{ID: f.ID, Reply: types.Reply{
			Result: types.Result(r.Result),
			Step:   types.WizardStep(r.Step),
		}}, true, nil

	case wire.FrameObject:
		var o wire.Object
		if err := f.Decode(&o); err != nil {
			return nil, false, err
		}
		ev, ok, err := objectEvent(o)
		if err != nil || !ok {
			if err == nil {
				c.log.Debugw("ignoring replicated object", "kind", o.Kind, "owner", o.Owner)
			}
			return nil, false, err
		}
		return hub.Replicated{Event: ev}, true, nil

	case wire.FrameSession:
		var e wire.SessionEvent
		if err := f.Decode(&e); err != nil {
			return nil, false, err
		}
		if e.Event == wire.SessionData {
			c.storeMetadata(types.SessionID(e.SessionID), e.Metadata)
		}
		msg, ok := sessionMsg(e)
		if !ok {
			c.log.Debugw("ignoring session event", "event", e.Event, "session", e.SessionID)
		}
		return msg, ok, nil
	}
	return nil, false, fmt.Errorf("%w: unexpected type %q", ErrMalformedFrame, f.Type)
}

func (c *Client) enqueue(f wire.Frame) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	select {
	case c.out <- f:
		return nil
	default:
		return ErrQueueFull
	}
}

// Connected reports whether a backend connection is currently open.
func (c *Client) Connected() bool { return c.connected.Load() }

// Send queues a request. The reply arrives later as a hub.BackendReply
// carrying the same id.
func (c *Client) Send(id string, req types.Request) error {
	f, err := requestFrame(id, req)
	if err != nil {
		return err
	}
	return c.enqueue(f)
}

func (c *Client) call(method string, body wire.SessionCall) error {
	f, err := wire.NewFrame(wire.FrameSessionCall, "", method, body)
	if err != nil {
		return err
	}
	return c.enqueue(f)
}

func (c *Client) Create() error {
	return c.call(wire.MethodSessionCreate, wire.SessionCall{})
}

func (c *Client) Join(id types.SessionID) error {
	return c.call(wire.MethodSessionJoin, wire.SessionCall{SessionID: uint64(id)})
}

func (c *Client) Leave(id types.SessionID) {
	c.mu.Lock()
	delete(c.metadata, id)
	c.mu.Unlock()
	if err := c.call(wire.MethodSessionLeave, wire.SessionCall{SessionID: uint64(id)}); err != nil {
		c.log.Warnw("session leave not sent", "session", id, "error", err)
	}
}

func (c *Client) RequestMetadata(id types.SessionID) error {
	return c.call(wire.MethodSessionRead, wire.SessionCall{SessionID: uint64(id)})
}

// Metadata returns the last value the backend reported for key, or "".
func (c *Client) Metadata(id types.SessionID, key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metadata[id][key]
}

func (c *Client) SetMetadata(id types.SessionID, key, value string) error {
	c.mu.Lock()
	md := c.metadata[id]
	if md == nil {
		md = make(map[string]string)
		c.metadata[id] = md
	}
	md[key] = value
	c.mu.Unlock()
	return c.call(wire.MethodSessionWrite, wire.SessionCall{SessionID: uint64(id), Key: key, Value: value})
}

func (c *Client) SendMessage(id types.SessionID, payload []byte) error {
	return c.call(wire.MethodSessionSend, wire.SessionCall{SessionID: uint64(id), Payload: payload})
}

func (c *Client) storeMetadata(id types.SessionID, md map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	merged := c.metadata[id]
	if merged == nil {
		merged = make(map[string]string, len(md))
		c.metadata[id] = merged
	}
	for k, v := range md {
		merged[k] = v
	}
}
