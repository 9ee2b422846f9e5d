package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "orctorrent/internal/errors"
)

const (
	DefaultBreakerThreshold = 5
	DefaultBreakerReset     = 30 * time.Second
)

// ErrEngineUnavailable is returned while the guard is open.
var ErrEngineUnavailable = errors.New("transfer engine unavailable")

type GuardState string

const (
	GuardClosed  GuardState = "closed"
	GuardOpen    GuardState = "open"
	GuardProbing GuardState = "probing"
)

// GuardStatus is the engine health reported by the system API.
type GuardStatus struct {
	State               GuardState `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastError           string     `json:"last_error,omitempty"`
	LastFailureMs       *int64     `json:"last_failure_ms"`
	RetryAtMs           *int64     `json:"retry_at_ms"`
}

// StatusReporter is implemented by engines that track their own health.
type StatusReporter interface {
	Status() GuardStatus
}

// Guarded fails adds and actions fast once the wrapped engine has failed
// threshold times in a row. After the cooldown a single call is let
// through as a probe; its outcome closes or re-opens the guard. Stats and
// peer calls pass through untouched since they fail per torrent during
// normal operation.
type Guarded struct {
	TransferEngine

	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	failures    int
	open        bool
	openedAt    time.Time
	probing     bool
	lastErr     string
	lastFailure time.Time
}

func NewGuarded(e TransferEngine, threshold int, cooldown time.Duration) *Guarded {
	if threshold < 1 {
		threshold = 1
	}
	return &Guarded{TransferEngine: e, threshold: threshold, cooldown: cooldown, now: time.Now}
}

func (g *Guarded) Add(ctx context.Context, src Source, opts AddOptions) (*AddResult, error) {
	probe, err := g.acquire()
	if err != nil {
		return nil, err
	}
	res, err := g.TransferEngine.Add(ctx, src, opts)
	g.release(ctx, probe, err)
	return res, err
}

func (g *Guarded) Action(ctx context.Context, engineID string, action Action) error {
	probe, err := g.acquire()
	if err != nil {
		return err
	}
	err = g.TransferEngine.Action(ctx, engineID, action)
	g.release(ctx, probe, err)
	return err
}

// acquire admits a call. probe is true for the one call admitted after the
// cooldown of an open guard.
func (g *Guarded) acquire() (probe bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.open {
		return false, nil
	}
	if g.probing || g.now().Sub(g.openedAt) < g.cooldown {
		return false, fmt.Errorf("%w: %s", ErrEngineUnavailable, g.lastErr)
	}
	g.probing = true
	return true, nil
}

// release records the outcome. Cancellation and the file-exists family are
// caused by the caller and say nothing about engine health.
func (g *Guarded) release(ctx context.Context, probe bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if probe {
		g.probing = false
	}
	switch {
	case err == nil:
		g.failures = 0
		g.open = false
	case ctx.Err() != nil, IsFileExists(err):
	default:
		now := g.now()
		g.failures++
		g.lastErr = apperrors.SanitizeMessage(err.Error())
		g.lastFailure = now
		if probe || g.failures >= g.threshold {
			g.open = true
			g.openedAt = now
		}
	}
}

func (g *Guarded) Status() GuardStatus {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := GuardStatus{State: GuardClosed, ConsecutiveFailures: g.failures, LastError: g.lastErr}
	switch {
	case g.probing:
		st.State = GuardProbing
	case g.open:
		st.State = GuardOpen
		retry := g.openedAt.Add(g.cooldown).UnixMilli()
		st.RetryAtMs = &retry
	}
	if !g.lastFailure.IsZero() {
		ms := g.lastFailure.UnixMilli()
		st.LastFailureMs = &ms
	}
	return st
}
