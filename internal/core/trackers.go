package core

import "orctorrent/internal/model"

type trackerRuntime struct {
	lastAnnounceMs *int64
	nextAnnounceMs *int64
	announceCount  uint32
	scrapeCount    uint32
	lastError      *string
}

var pseudoTrackers = []string{"** DHT **", "** PeX **", "** LSD **"}

// Trackers lists the DHT, PeX and LSD pseudo rows followed by one row per
// tracker URL.
func (s *State) Trackers(id string) (model.TrackersResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, err := s.lookup(id)
	if err != nil {
		return model.TrackersResponse{}, err
	}

	running := rt.running && rt.state.Active()
	discovery := running
	if s.killSwitch.EnforcementState == model.KillSwitchEngaged && s.killSwitch.Triggers.DisableDHTPexLPD {
		discovery = false
	}

	rows := make([]model.TrackerRow, 0, len(pseudoTrackers)+len(rt.trackers))
	for _, name := range pseudoTrackers {
		tier := uint32(0)
		status := model.TrackerDisabled
		if discovery {
			status = model.TrackerWorking
		}
		rows = append(rows, model.TrackerRow{URL: name, Tier: &tier, Status: status})
	}

	for i, url := range rt.trackers {
		st, ok := rt.trackerState[url]
		if !ok {
			st = &trackerRuntime{}
			rt.trackerState[url] = st
		}
		status := model.TrackerDisabled
		switch {
		case st.lastError != nil:
			status = model.TrackerNotWorking
		case running:
			status = model.TrackerUpdating
		}
		tier := uint32(i)
		announces := st.announceCount
		scrapes := st.scrapeCount
		rows = append(rows, model.TrackerRow{
			URL:            url,
			Tier:           &tier,
			Status:         status,
			LastAnnounceMs: copyInt64(st.lastAnnounceMs),
			NextAnnounceMs: copyInt64(st.nextAnnounceMs),
			Error:          copyString(st.lastError),
			AnnounceCount:  &announces,
			ScrapeCount:    &scrapes,
		})
	}
	return model.TrackersResponse{Trackers: rows}, nil
}

// MarkAnnounce records a manual announce on every tracker. It performs no
// network I/O.
func (s *State) MarkAnnounce(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, err := s.lookup(id)
	if err != nil {
		return err
	}
	now := s.now()
	last := now.UnixMilli()
	next := now.Add(AnnounceInterval).UnixMilli()
	for _, url := range rt.trackers {
		st, ok := rt.trackerState[url]
		if !ok {
			st = &trackerRuntime{}
			rt.trackerState[url] = st
		}
		l, n := last, next
		st.lastAnnounceMs = &l
		st.nextAnnounceMs = &n
		if st.announceCount < ^uint32(0) {
			st.announceCount++
		}
	}
	return nil
}

func copyInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
