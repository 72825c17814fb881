package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gregtusar/basisarb/pkg/models"
	"github.com/sirupsen/logrus"
)

var (
	ErrHalted = errors.New("trading halted")
	ErrBanned = errors.New("symbol banned")
)

type Verdict int

const (
	// VerdictBan skips the symbol for the rest of the process lifetime.
	VerdictBan Verdict = iota
	// VerdictHalt stops all trading until an operator resumes.
	VerdictHalt
)

func (v Verdict) String() string {
	switch v {
	case VerdictBan:
		return "ban"
	case VerdictHalt:
		return "halt"
	default:
		return "unknown"
	}
}

// DefaultBanRetryCodes are retryable venue codes that still ban only the
// symbol. -3045 is margin unavailable for the asset.
var DefaultBanRetryCodes = []int{-3045}

// FailureGovernor owns the ban list and the global halt flag and decides
// which of them a coordinator failure trips. Bans never expire.
type FailureGovernor struct {
	mu            sync.RWMutex
	banned        map[string]string
	halted        bool
	haltCause     error
	banRetryCodes map[int]struct{}
	recovery      RecoveryHook
	notifier      NotificationSink
	logger        *logrus.Logger
}

func NewFailureGovernor(banRetryCodes []int, notifier NotificationSink, logger *logrus.Logger) *FailureGovernor {
	codes := make(map[int]struct{}, len(banRetryCodes))
	for _, c := range banRetryCodes {
		codes[c] = struct{}{}
	}
	return &FailureGovernor{
		banned:        make(map[string]string),
		banRetryCodes: codes,
		notifier:      notifier,
		logger:        logger,
	}
}

func (g *FailureGovernor) SetRecoveryHook(hook RecoveryHook) {
	g.mu.Lock()
	g.recovery = hook
	g.mu.Unlock()
}

// Classify maps a coordinator error onto a verdict.
func (g *FailureGovernor) Classify(err error) Verdict {
	var notAllowed *models.NotAllowedError
	if errors.As(err, &notAllowed) {
		return VerdictBan
	}

	var retry *models.ShouldRetryError
	if errors.As(err, &retry) {
		if _, ok := g.banRetryCodes[retry.Code]; ok {
			return VerdictBan
		}
		return VerdictHalt
	}

	return VerdictHalt
}

// Handle classifies err and applies the verdict for symbol.
func (g *FailureGovernor) Handle(ctx context.Context, symbol string, err error) Verdict {
	verdict := g.Classify(err)
	switch verdict {
	case VerdictBan:
		g.Ban(ctx, symbol, err)
	case VerdictHalt:
		g.Halt(ctx, symbol, err)
	}
	return verdict
}

func (g *FailureGovernor) Ban(ctx context.Context, symbol string, cause error) {
	g.mu.Lock()
	_, already := g.banned[symbol]
	g.banned[symbol] = cause.Error()
	g.mu.Unlock()

	if already {
		return
	}
	bansTotal.Inc()
	g.logger.WithError(cause).WithField("symbol", symbol).Warn("Symbol banned")
	g.notify(ctx, fmt.Sprintf("%s BAN due %v", symbol, cause))
}

func (g *FailureGovernor) Halt(ctx context.Context, symbol string, cause error) {
	g.mu.Lock()
	g.halted = true
	g.haltCause = cause
	hook := g.recovery
	g.mu.Unlock()

	haltedGauge.Set(1)
	g.logger.WithError(cause).WithField("symbol", symbol).Error("Trading halted")
	g.notify(ctx, fmt.Sprintf("HALT on %s: %v", symbol, cause))

	if hook != nil {
		if err := hook.Recover(ctx, cause); err != nil {
			g.logger.WithError(err).Error("Recovery hook failed")
		}
	}
}

// Resume clears the halt flag. Bans are kept.
func (g *FailureGovernor) Resume() {
	g.mu.Lock()
	g.halted = false
	g.haltCause = nil
	g.mu.Unlock()
	haltedGauge.Set(0)
	g.logger.Info("Trading resumed by operator")
}

// Allow returns ErrHalted or ErrBanned when symbol may not be traded.
func (g *FailureGovernor) Allow(symbol string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.halted {
		return ErrHalted
	}
	if _, ok := g.banned[symbol]; ok {
		return fmt.Errorf("%s: %w", symbol, ErrBanned)
	}
	return nil
}

func (g *FailureGovernor) IsHalted() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.halted
}

func (g *FailureGovernor) HaltCause() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.haltCause
}

func (g *FailureGovernor) IsBanned(symbol string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.banned[symbol]
	return ok
}

// Banned returns the banned symbols with the reason each was banned.
func (g *FailureGovernor) Banned() map[string]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]string, len(g.banned))
	for s, reason := range g.banned {
		out[s] = reason
	}
	return out
}

func (g *FailureGovernor) BannedSymbols() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.banned))
	for s := range g.banned {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (g *FailureGovernor) notify(ctx context.Context, msg string) {
	if g.notifier == nil {
		return
	}
	if err := g.notifier.Send(ctx, msg); err != nil {
		g.logger.WithError(err).Warn("Failed to send notification")
	}
}
