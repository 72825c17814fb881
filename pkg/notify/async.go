package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrQueueFull = errors.New("notification queue full")
	ErrClosed    = errors.New("notifier closed")
)

type messageSender interface {
	Send(ctx context.Context, msg string) error
}

// AsyncNotifier queues messages and delivers them on its own goroutine so a
// slow sender never blocks the caller. Messages are delivered in order.
type AsyncNotifier struct {
	next        messageSender
	queue       chan string
	sendTimeout time.Duration
	logger      *logrus.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewAsyncNotifier(next messageSender, size int, sendTimeout time.Duration, logger *logrus.Logger) *AsyncNotifier {
	if size <= 0 {
		size = 256
	}
	if sendTimeout <= 0 {
		sendTimeout = 15 * time.Second
	}
	a := &AsyncNotifier{
		next:        next,
		queue:       make(chan string, size),
		sendTimeout: sendTimeout,
		logger:      logger,
		done:        make(chan struct{}),
	}
	go a.run()
	return a
}

// Send enqueues msg and returns immediately. A full queue drops the message.
func (a *AsyncNotifier) Send(_ context.Context, msg string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- msg:
		return nil
	default:
		a.logger.WithField("message", msg).Warn("Notification queue full, dropping message")
		return ErrQueueFull
	}
}

// Close stops accepting messages and waits until the queue has drained or ctx
// is done.
func (a *AsyncNotifier) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *AsyncNotifier) run() {
	defer close(a.done)
	for msg := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.sendTimeout)
		if err := a.next.Send(ctx, msg); err != nil {
			a.logger.WithError(err).Warn("Failed to deliver notification")
		}
		cancel()
	}
}
