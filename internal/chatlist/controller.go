package chatlist

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fathima-sithara/chatlist-service/internal/apperr"
	"github.com/fathima-sithara/chatlist-service/internal/logger"
	"go.uber.org/zap"
)

var (
	// ErrDiscarded is returned by a fetch whose result was dropped because a newer
	// fetch started or the controller was closed while it was in flight.
	ErrDiscarded = errors.New("fetch result discarded")
	ErrClosed    = errors.New("controller closed")
)

// Controller drives the chat list screen. Only the most recent fetch may change
// the displayed state, and nothing is applied after Close.
type Controller struct {
	identity Identity
	agg      Aggregator
	nav      Navigator
	notifier Notifier
	format   TimeFormatter
	log      *zap.Logger

	mu      sync.Mutex
	state   State
	gen     uint64
	version uint64
	closed  bool
	subs    map[int]func(State)
	nextSub int

	emitMu      sync.Mutex
	lastEmitted uint64
	pending     []State
	dispatching bool
}

type Option func(*Controller)

func WithNotifier(n Notifier) Option { return func(c *Controller) { c.notifier = n } }

func WithTimeFormatter(f TimeFormatter) Option { return func(c *Controller) { c.format = f } }

func WithLogger(l *zap.Logger) Option { return func(c *Controller) { c.log = logger.OrNop(l) } }

func New(id Identity, agg Aggregator, nav Navigator, opts ...Option) *Controller {
	c := &Controller{
		identity: id,
		agg:      agg,
		nav:      nav,
		notifier: NotifierFunc(func(Notification) {}),
		format:   LayoutFormatter(DefaultTimeLayout, nil),
		log:      zap.NewNop(),
		subs:     map[int]func(State){},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return snapshot(c.state)
}

// Subscribe registers fn for every later transition. The returned func removes it.
func (c *Controller) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Mount starts the first fetch cycle.
func (c *Controller) Mount(ctx context.Context) error {
	return c.Refresh(ctx)
}

// Refresh runs one fetch cycle and returns once it settles. A failed cycle is
// reported through the Notifier and is not retried.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.gen++
	gen := c.gen
	loading, v := c.setLocked(State{Kind: Loading, Rows: c.state.Rows})
	c.mu.Unlock()
	c.emit(loading, v)

	rows, title, err := c.fetch(ctx)

	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		c.log.Debug("discarding stale chat list fetch", zap.Uint64("generation", gen), zap.Error(err))
		return ErrDiscarded
	}
	var next State
	switch {
	case err != nil:
		next = State{Kind: Failed, Rows: c.state.Rows, Err: err}
	case len(rows) == 0:
		next = State{Kind: Empty, Rows: []Row{}}
	default:
		next = State{Kind: Loaded, Rows: rows}
	}
	settled, v := c.setLocked(next)
	c.mu.Unlock()

	if err != nil {
		c.log.Warn("chat list fetch failed", zap.Error(err))
		c.notifier.Notify(notificationFor(title, err))
	}
	c.emit(settled, v)
	return err
}

func (c *Controller) fetch(ctx context.Context) ([]Row, string, error) {
	user, err := c.identity.CurrentUser(ctx)
	if err != nil {
		if !errors.Is(err, apperr.ErrUnauthorized) {
			err = fmt.Errorf("%w: %v", apperr.ErrUnauthorized, err)
		}
		return nil, titleIdentity, err
	}
	records, err := c.agg.LatestMessages(ctx, user.ID)
	if err != nil {
		return nil, titleFetch, err
	}
	rows, err := MapRecords(records, c.format)
	if err != nil {
		return nil, titleFetch, err
	}
	return rows, "", nil
}

// Select opens the conversation shown by row. It does not touch the list state.
func (c *Controller) Select(row Row) error {
	return c.nav.Navigate(ChatRoute, map[string]string{"userId": row.UserID, "name": row.Name})
}

// Explore is the call to action of the empty state.
func (c *Controller) Explore() error {
	return c.nav.Navigate(ExploreRoute, nil)
}

// Close tears the controller down. In-flight fetches are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.gen++
	c.subs = map[int]func(State){}
}

func (c *Controller) setLocked(s State) (State, uint64) {
	c.state = s
	c.version++
	return snapshot(s), c.version
}

// emit queues s for subscribers unless a newer state was already queued. The
// first emitter drains the queue in order with emitMu released, so a subscriber
// may call back into the controller; its states are delivered after its
// callback returns.
func (c *Controller) emit(s State, v uint64) {
	c.emitMu.Lock()
	if v <= c.lastEmitted {
		c.emitMu.Unlock()
		return
	}
	c.lastEmitted = v
	c.pending = append(c.pending, s)
	if c.dispatching {
		c.emitMu.Unlock()
		return
	}
	c.dispatching = true
	for len(c.pending) > 0 {
		next := c.pending[0]
		c.pending = c.pending[1:]
		c.emitMu.Unlock()
		c.deliver(next)
		c.emitMu.Lock()
	}
	c.dispatching = false
	c.emitMu.Unlock()
}

func (c *Controller) deliver(s State) {
	c.mu.Lock()
	subs := make([]func(State), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(snapshot(s))
	}
}

func snapshot(s State) State {
	if s.Rows != nil {
		s.Rows = append(make([]Row, 0, len(s.Rows)), s.Rows...)
	}
	return s
}
