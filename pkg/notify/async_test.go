package notify

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type blockingSender struct {
	release chan struct{}
	mu      sync.Mutex
	got     []string
}

func (b *blockingSender) Send(_ context.Context, msg string) error {
	<-b.release
	b.mu.Lock()
	b.got = append(b.got, msg)
	b.mu.Unlock()
	return nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestAsyncNotifier_DoesNotBlockCaller(t *testing.T) {
	sender := &blockingSender{release: make(chan struct{})}
	a := NewAsyncNotifier(sender, 4, time.Second, quietLogger())

	start := time.Now()
	for _, msg := range []string{"open", "opened"} {
		if err := a.Send(context.Background(), msg); err != nil {
			t.Fatalf("Send(%q): %v", msg, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Send blocked for %v", elapsed)
	}

	close(sender.release)
	if err := a.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.got) != 2 || sender.got[0] != "open" || sender.got[1] != "opened" {
		t.Errorf("delivered = %v, want [open opened]", sender.got)
	}
}

func TestAsyncNotifier_FullQueueDrops(t *testing.T) {
	sender := &blockingSender{release: make(chan struct{})}
	a := NewAsyncNotifier(sender, 1, time.Second, quietLogger())

	// The first message may already be in flight; fill the queue behind it.
	var full bool
	for i := 0; i < 3; i++ {
		if err := a.Send(context.Background(), "msg"); errors.Is(err, ErrQueueFull) {
			full = true
		}
	}
	if !full {
		t.Error("expected ErrQueueFull once the queue is full")
	}

	close(sender.release)
	_ = a.Close(context.Background())
	if err := a.Send(context.Background(), "late"); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
}
