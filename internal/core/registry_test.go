package core

import (
	"errors"
	"strings"
	"testing"
	"time"

	"orctorrent/internal/engine"
	apperrors "orctorrent/internal/errors"
	"orctorrent/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd_NameResolution(t *testing.T) {
	hash := "ABCDEF0123456789abcdef0123456789abcdef01"
	tests := []struct {
		name       string
		hint       string
		engineName string
		want       string
	}{
		{"Hint wins", "My Show", "engine-name", "My Show"},
		{"Blank hint falls back to engine", "   ", "engine-name", "engine-name"},
		{"Synthesized from hash", "", " ", "torrent-abcdef01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			id, err := h.state.Add(Ingest{EngineID: "e", InfoHash: hash, Name: tt.engineName, NameHint: tt.hint})
			require.NoError(t, err)

			_, err = uuid.Parse(id)
			assert.NoError(t, err, "ids are UUIDs")

			tor, err := h.state.Get(id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tor.Name)
			assert.Equal(t, strings.ToLower(hash), tor.InfoHashHex)
			assert.True(t, tor.Running)
			assert.Equal(t, model.DefaultProfile(), tor.Profile)

			st, err := h.state.Status(id)
			require.NoError(t, err)
			assert.Equal(t, model.StateChecking, st.State)
		})
	}
}

func TestAdd_Capacity(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < MaxTorrents; i++ {
		h.state.torrents[uuid.NewString()] = &torrentRuntime{}
	}
	_, err := h.state.Add(Ingest{EngineID: "e", InfoHash: "aa"})
	assert.True(t, apperrors.Is(err, apperrors.CodeCapacityExceeded), "got %v", err)
}

func TestAdd_SanitizesFiles(t *testing.T) {
	h := newHarness(t)
	id, err := h.state.Add(Ingest{
		EngineID: "e",
		InfoHash: "aa",
		Files: []engine.FileInfo{
			{Path: "../../etc/passwd", Length: 10},
			{Path: `Season 1\ep<1>.mkv`, Length: 20},
		},
	})
	require.NoError(t, err)

	c, err := h.state.Content(id)
	require.NoError(t, err)
	require.Len(t, c.Files, 2)
	assert.Equal(t, []string{"etc", "passwd"}, c.Files[0].Path)
	assert.Equal(t, []string{"Season 1", "ep1.mkv"}, c.Files[1].Path)
	assert.Equal(t, model.PriorityNormal, c.Files[1].Priority)

	st, err := h.state.Status(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), st.TotalBytes)
}

func TestEstimatePieces(t *testing.T) {
	const mib = 1 << 20
	tests := []struct {
		name  string
		total uint64
		want  uint32
	}{
		{"Empty", 0, 1},
		{"Tiny", 1000, 1},
		{"Small", 10 * mib, 40},
		{"Medium", 100 * mib, 200},
		{"Large", 1024 * mib, 512},
		{"Very large", 8192 * mib, 2048},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, estimatePieces(tt.total))
		})
	}
}

func TestNotFound(t *testing.T) {
	h := newHarness(t)
	missing := "missing"

	_, err := h.state.Remove(missing)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
	assert.True(t, apperrors.Is(h.state.SetRunning(missing, true), apperrors.CodeNotFound))
	_, err = h.state.SetProfile(missing, model.DefaultProfile())
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
	_, _, err = h.state.SetFilePriority(missing, nil, model.PrioritySkip)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
	_, err = h.state.Status(missing)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
	_, err = h.state.RowSnapshot(missing)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
	assert.True(t, apperrors.Is(h.state.ForceChecking(missing), apperrors.CodeNotFound))
	assert.True(t, apperrors.Is(h.state.MarkAnnounce(missing), apperrors.CodeNotFound))
}

func TestSetRunning(t *testing.T) {
	h := newHarness(t)
	id := h.addTorrent(t, "e1", 1000)
	h.tick()
	h.engine.setStats("e1", engine.Stats{TotalBytes: 1000, ProgressBytes: 400, State: engine.StateLive})
	h.clock.Advance(time.Second)
	h.tick()

	st, err := h.state.Status(id)
	require.NoError(t, err)
	require.Equal(t, uint64(400), st.DownRateBps)

	require.NoError(t, h.state.SetRunning(id, false))
	st, _ = h.state.Status(id)
	assert.Equal(t, model.StateStopped, st.State)
	assert.Zero(t, st.DownRateBps)
	assert.Zero(t, st.UpRateBps)
	tor, _ := h.state.Get(id)
	assert.False(t, tor.Running)

	require.NoError(t, h.state.SetRunning(id, true))
	st, _ = h.state.Status(id)
	assert.Equal(t, model.StateDownloading, st.State)

	h.engine.setStats("e1", engine.Stats{TotalBytes: 1000, ProgressBytes: 1000, State: engine.StateLive, Finished: true})
	h.clock.Advance(time.Second)
	h.tick()
	require.NoError(t, h.state.SetRunning(id, false))
	require.NoError(t, h.state.SetRunning(id, true))
	st, _ = h.state.Status(id)
	assert.Equal(t, model.StateSeeding, st.State)
}

func TestSetFilePriority(t *testing.T) {
	h := newHarness(t)
	id := h.addTorrent(t, "e1", 10, 20, 30)

	engineID, only, err := h.state.SetFilePriority(id, [][]string{{"dir", "file1.bin"}, {"no", "match"}}, model.PrioritySkip)
	require.NoError(t, err)
	assert.Equal(t, "e1", engineID)
	assert.Equal(t, []int{0, 2}, only)

	c, _ := h.state.Content(id)
	assert.Equal(t, model.PrioritySkip, c.Files[1].Priority)

	only, err = h.state.OnlyFiles(id)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, only)

	_, only, err = h.state.SetFilePriority(id, [][]string{{"dir", "file1.bin"}}, model.PriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, only)
}

func TestSetProfile(t *testing.T) {
	h := newHarness(t)
	id := h.addTorrent(t, "e1", 10)
	tor, err := h.state.SetProfile(id, model.TorrentProfile{Mode: model.ModeAnonymous, Hops: 3})
	require.NoError(t, err)
	assert.Equal(t, model.ModeAnonymous, tor.Profile.Mode)
	assert.Equal(t, uint32(3), tor.Profile.Hops)
}

func TestFindByInfoHash(t *testing.T) {
	h := newHarness(t)
	hash := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	id := h.addTorrent(t, hash, 100)

	m, ok := h.state.FindByInfoHash(strings.ToUpper(hash))
	require.True(t, ok)
	assert.Equal(t, id, m.ID)
	assert.True(t, m.Running)
	assert.False(t, m.Complete)

	_, ok = h.state.FindByInfoHash("bbbb")
	assert.False(t, ok)
}

func TestRemoveAndList(t *testing.T) {
	h := newHarness(t)
	first := h.addTorrent(t, "e1", 10)
	h.clock.Advance(time.Millisecond)
	second := h.addTorrent(t, "e2", 10)

	list := h.state.List()
	require.Len(t, list, 2)
	assert.Equal(t, first, list[0].ID)
	assert.Equal(t, second, list[1].ID)

	engineID, err := h.state.Remove(first)
	require.NoError(t, err)
	assert.Equal(t, "e1", engineID)
	assert.Len(t, h.state.List(), 1)
}

func TestForceChecking_Expires(t *testing.T) {
	h := newHarness(t)
	id := h.addTorrent(t, "e1", 100)
	h.tick()
	st, _ := h.state.Status(id)
	require.Equal(t, model.StateDownloading, st.State)

	require.NoError(t, h.state.ForceChecking(id))
	st, _ = h.state.Status(id)
	assert.Equal(t, model.StateChecking, st.State)

	h.clock.Advance(2 * time.Second)
	h.tick()
	st, _ = h.state.Status(id)
	assert.Equal(t, model.StateChecking, st.State, "override holds over engine state")

	h.clock.Advance(3 * time.Second)
	h.tick()
	st, _ = h.state.Status(id)
	assert.Equal(t, model.StateDownloading, st.State)

	h.state.mu.Lock()
	assert.Nil(t, h.state.torrents[id].override, "expired override is cleared")
	h.state.mu.Unlock()
}

func TestStatus_ProgressAndETA(t *testing.T) {
	h := newHarness(t)
	id := h.addTorrent(t, "e1", 10_000)
	h.tick()
	h.engine.setStats("e1", engine.Stats{TotalBytes: 10_000, ProgressBytes: 2_000, State: engine.StateLive})
	h.clock.Advance(2 * time.Second)
	h.tick()

	st, err := h.state.Status(id)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, st.Progress, 1e-9)
	assert.Equal(t, uint64(1000), st.DownRateBps)
	assert.Equal(t, uint64(8), st.EtaSec)

	h.engine.setStats("e1", engine.Stats{TotalBytes: 10_000, ProgressBytes: 2_000, State: engine.StateLive})
	h.clock.Advance(time.Second)
	h.tick()
	st, _ = h.state.Status(id)
	assert.Zero(t, st.EtaSec, "idle torrents have no ETA")
}

func TestAdd_RestoresIdentity(t *testing.T) {
	h := newHarness(t)
	saved := uuid.NewString()

	id, err := h.state.Add(Ingest{ID: saved, AddedAtMs: 42, EngineID: "e1", InfoHash: "aa"})
	require.NoError(t, err)
	assert.Equal(t, saved, id)
	tor, _ := h.state.Get(id)
	assert.Equal(t, int64(42), tor.AddedAtMs)

	again, err := h.state.Add(Ingest{ID: saved, EngineID: "e2", InfoHash: "bb"})
	require.NoError(t, err)
	assert.NotEqual(t, saved, again, "a taken id is replaced")

	bogus, err := h.state.Add(Ingest{ID: "not-a-uuid", EngineID: "e3", InfoHash: "cc"})
	require.NoError(t, err)
	assert.NotEqual(t, "not-a-uuid", bogus)
}

func TestTotals(t *testing.T) {
	h := newHarness(t)
	h.addTorrent(t, "e1", 1_000_000)
	h.addTorrent(t, "e2", 1000)
	h.engine.setStats("e2", engine.Stats{TotalBytes: 1000, State: engine.StatePaused})

	h.clock.Advance(time.Second)
	h.tick()
	h.engine.setStats("e1", engine.Stats{TotalBytes: 1_000_000, ProgressBytes: 2000, UploadedBytes: 500, State: engine.StateLive})
	h.clock.Advance(time.Second)
	h.tick()

	totals := h.state.Totals()
	assert.Equal(t, uint64(2000), totals.DownRateBps)
	assert.Equal(t, uint64(500), totals.UpRateBps)
	assert.Equal(t, map[model.TorrentState]int{
		model.StateDownloading: 1,
		model.StateStopped:     1,
	}, totals.ByState)
}

func TestAdd_RejectsDuplicateInfoHash(t *testing.T) {
	h := newHarness(t)
	first, err := h.state.Add(Ingest{EngineID: "e1", InfoHash: "ABCDEF"})
	require.NoError(t, err)
	require.NoError(t, h.state.SetRunning(first, false))

	_, err = h.state.Add(Ingest{EngineID: "e1", InfoHash: "abcdef"})
	var dup *DuplicateError
	require.True(t, errors.As(err, &dup), "got %v", err)
	assert.Equal(t, first, dup.ID)
	assert.Equal(t, "e1", dup.EngineID)
	assert.False(t, dup.Running)
	assert.Len(t, h.state.List(), 1)

	// Records without an info-hash never collide.
	_, err = h.state.Add(Ingest{EngineID: "e2"})
	require.NoError(t, err)
	_, err = h.state.Add(Ingest{EngineID: "e3"})
	require.NoError(t, err)
	assert.Len(t, h.state.List(), 3)
}
