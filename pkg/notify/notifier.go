// Package notify delivers operator notifications. Every message goes to all
// registered senders; one failing sender does not stop the others.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

type Sender interface {
	Send(ctx context.Context, msg string) error
	Name() string
}

// Notifier fans a message out to its senders.
type Notifier struct {
	senders []Sender
	logger  *logrus.Logger
}

func NewNotifier(logger *logrus.Logger, senders ...Sender) *Notifier {
	return &Notifier{
		senders: senders,
		logger:  logger,
	}
}

func (n *Notifier) Send(ctx context.Context, msg string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, msg); err != nil {
			n.logger.WithError(err).WithField("sender", s.Name()).Error("Notification sender failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// LogSender writes every notification to the log at info level.
type LogSender struct {
	logger *logrus.Logger
}

func NewLogSender(logger *logrus.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (l *LogSender) Send(_ context.Context, msg string) error {
	l.logger.WithField("notification", true).Info(msg)
	return nil
}

func (l *LogSender) Name() string {
	return "log"
}
