// Package channel delivers messages to destination accounts asynchronously.
//
// Every destination gets its own mailbox, served by a goroutine that is
// started on the first enqueue and exits once the mailbox is empty. Messages
// to one destination are handled one at a time in enqueue order, so delivery
// is FIFO per (sender, destination). There is no ordering between different
// destinations.
package channel

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"jetton-ledger/internal/domain"
)

// ErrClosed is returned by Send for external messages once Shutdown started.
var ErrClosed = errors.New("channel closed")

// Handler processes one message. It runs on the destination's mailbox
// goroutine and may call Send.
type Handler func(ctx context.Context, msg domain.Message)

// Observer receives delivery events. Implementations must be safe for
// concurrent use.
type Observer interface {
	MessageEnqueued(pending int)
	MessageDelivered(pending int, took time.Duration)
}

type nopObserver struct{}

func (nopObserver) MessageEnqueued(int)                 {}
func (nopObserver) MessageDelivered(int, time.Duration) {}

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Channel) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver sets the delivery observer.
func WithObserver(o Observer) Option {
	return func(c *Channel) {
		if o != nil {
			c.observer = o
		}
	}
}

type mailbox struct {
	queue   []domain.Message
	running bool
}

// Channel is an in-process asynchronous message transport.
type Channel struct {
	handler  Handler
	logger   *zap.Logger
	observer Observer

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	mailboxes map[domain.Address]*mailbox
	pending   int           // queued plus running deliveries
	idle      chan struct{} // closed when pending drops to zero
	closing   bool
	wg        sync.WaitGroup
}

// New creates a channel that hands every message to handler.
func New(handler Handler, opts ...Option) *Channel {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		handler:   handler,
		logger:    zap.NewNop(),
		observer:  nopObserver{},
		ctx:       ctx,
		cancel:    cancel,
		mailboxes: make(map[domain.Address]*mailbox),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send enqueues msg on its destination's mailbox. It never blocks on delivery.
func (c *Channel) Send(msg domain.Message) error {
	c.mu.Lock()
	if c.closing && msg.External {
		c.mu.Unlock()
		return ErrClosed
	}

	mb, ok := c.mailboxes[msg.To]
	if !ok {
		mb = &mailbox{}
		c.mailboxes[msg.To] = mb
	}
	mb.queue = append(mb.queue, msg)

	if c.pending == 0 {
		c.idle = make(chan struct{})
	}
	c.pending++
	pending := c.pending

	start := !mb.running
	if start {
		mb.running = true
		c.wg.Add(1)
	}
	c.mu.Unlock()

	c.observer.MessageEnqueued(pending)
	if start {
		go c.run(msg.To, mb)
	}
	return nil
}

func (c *Channel) run(dest domain.Address, mb *mailbox) {
	defer c.wg.Done()

	for {
		c.mu.Lock()
		if len(mb.queue) == 0 {
			mb.running = false
			delete(c.mailboxes, dest)
			c.mu.Unlock()
			return
		}
		msg := mb.queue[0]
		mb.queue[0] = domain.Message{}
		mb.queue = mb.queue[1:]
		c.mu.Unlock()

		start := time.Now()
		c.deliver(msg)
		took := time.Since(start)

		c.mu.Lock()
		c.pending--
		pending := c.pending
		if pending == 0 {
			close(c.idle)
		}
		c.mu.Unlock()

		c.observer.MessageDelivered(pending, took)
	}
}

func (c *Channel) deliver(msg domain.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("message handler panicked",
				zap.String("message_id", msg.ID),
				zap.Stringer("to", msg.To),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	c.handler(c.ctx, msg)
}

// Pending returns the number of queued and running deliveries.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Drain blocks until no delivery is queued or running, or ctx is done.
// Messages sent by handlers while draining are waited for as well.
func (c *Channel) Drain(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.pending == 0 {
			c.mu.Unlock()
			return nil
		}
		idle := c.idle
		c.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return fmt.Errorf("drain: %w", ctx.Err())
		}
	}
}

// Shutdown stops accepting external messages, waits for in-flight traces to
// settle and then cancels the handler context.
func (c *Channel) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()

	err := c.Drain(ctx)
	c.cancel()
	if err == nil {
		c.wg.Wait()
	}
	return err
}
