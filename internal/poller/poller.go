package poller

import (
	"context"
	"time"

	"orctorrent/internal/core"
	"orctorrent/internal/event"
	"orctorrent/internal/model"

	"go.uber.org/zap"
)

const DefaultInterval = time.Second

// Poller drives the reconciliation loop and turns each pass into events.
type Poller struct {
	state    *core.State
	bus      *event.Bus
	interval time.Duration
	logger   *zap.Logger
}

func New(state *core.State, bus *event.Bus, interval time.Duration, l *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		state:    state,
		bus:      bus,
		interval: interval,
		logger:   l.With(zap.String("component", "poller")),
	}
}

// Run ticks until ctx is cancelled. A pass that overruns the interval
// delays the next one; ticks are never queued.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Debug("reconciliation loop started", zap.Duration("interval", p.interval))
	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("reconciliation loop stopped")
			return
		case <-ticker.C:
			p.Sync(ctx)
		}
	}
}

// Sync performs a single reconciliation pass
func (p *Poller) Sync(ctx context.Context) core.TickReport {
	report := p.state.Tick(ctx)

	for _, c := range report.Changed {
		p.bus.Publish(event.New(event.TorrentStateChanged, event.LifecycleEvent{
			ID:   c.ID,
			From: string(c.From),
			To:   string(c.To),
		}))
	}

	if enf := report.KillSwitch; enf.Changed {
		t := event.KillSwitchUpdated
		switch {
		case enf.To == model.KillSwitchEngaged:
			t = event.KillSwitchEngaged
		case enf.From == model.KillSwitchEngaged:
			t = event.KillSwitchReleased
		}
		p.bus.Publish(event.New(t, event.KillSwitchEvent{
			From:   string(enf.From),
			To:     string(enf.To),
			Halted: enf.Halted,
		}))
	}

	if report.NetworkChanged {
		p.bus.Publish(event.New(event.NetworkChanged, map[string]bool{
			"network_allowed": p.state.NetworkAllowed(),
		}))
	}

	if report.Failed > 0 {
		p.logger.Debug("reconciliation pass had engine failures", zap.Int("failed", report.Failed))
	}

	p.bus.Publish(event.New(event.StatsUpdate, p.stats()))
	return report
}

func (p *Poller) stats() event.StatsEvent {
	totals := p.state.Totals()
	var ev event.StatsEvent
	ev.Speeds.Download = totals.DownRateBps
	ev.Speeds.Upload = totals.UpRateBps
	ev.Tasks.Downloading = totals.ByState[model.StateDownloading]
	ev.Tasks.Seeding = totals.ByState[model.StateSeeding]
	ev.Tasks.Checking = totals.ByState[model.StateChecking]
	ev.Tasks.Stopped = totals.ByState[model.StateStopped]
	ev.Tasks.Failed = totals.ByState[model.StateError]
	ev.NetworkAllowed = p.state.NetworkAllowed()
	ev.Uptime = int64(p.state.Uptime().Seconds())
	return ev
}
