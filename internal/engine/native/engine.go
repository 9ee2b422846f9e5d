package native

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"

	"orctorrent/internal/engine"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var ErrUnknownTorrent = errors.New("unknown torrent")

const (
	defaultMaxConns = 55
	minLimiterBurst = 256 << 10
)

type Options struct {
	// MetadataDir holds the piece-completion database.
	MetadataDir string
	// DownloadDir is used when an add does not name an output folder.
	DownloadDir string
	ListenPort  int
	NoUPnP      bool
	NoDHT       bool
	// Rate limits in bytes per second. Zero means unlimited.
	DownloadRateLimit int
	UploadRateLimit   int
}

// NativeEngine runs transfers in-process on anacrolix/torrent. Engine ids
// are info-hash hex strings.
type NativeEngine struct {
	opts    Options
	client  *torrent.Client
	storage *folderStorage
	logger  *zap.Logger

	handles sync.Map // engine id -> *handle
}

type handle struct {
	t *torrent.Torrent

	mu        sync.Mutex
	paused    bool
	maxConns  int
	onlyFiles []int
}

func NewNativeEngine(opts Options, l *zap.Logger) *NativeEngine {
	return &NativeEngine{
		opts:   opts,
		logger: l.With(zap.String("engine", "native")),
	}
}

func (e *NativeEngine) Start(ctx context.Context) error {
	cfg := torrent.NewDefaultClientConfig()
	cfg.ListenPort = e.opts.ListenPort
	cfg.DataDir = e.opts.MetadataDir
	cfg.Seed = true
	cfg.NoDefaultPortForwarding = e.opts.NoUPnP
	cfg.NoDHT = e.opts.NoDHT
	if e.opts.DownloadRateLimit > 0 {
		cfg.DownloadRateLimiter = newLimiter(e.opts.DownloadRateLimit)
	}
	if e.opts.UploadRateLimit > 0 {
		cfg.UploadRateLimiter = newLimiter(e.opts.UploadRateLimit)
	}

	for _, dir := range []string{e.opts.MetadataDir, e.opts.DownloadDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	e.storage = newFolderStorage(e.opts.DownloadDir, e.opts.MetadataDir, e.logger)
	cfg.DefaultStorage = e.storage

	tc, err := torrent.NewClient(cfg)
	if err != nil {
		e.logger.Error("failed to start torrent client", zap.Error(err))
		return fmt.Errorf("failed to start torrent client: %w", err)
	}
	e.client = tc
	e.logger.Info("torrent client started", zap.Int("listen_port", e.opts.ListenPort))
	return nil
}

func newLimiter(bps int) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(bps), max(bps, minLimiterBurst))
}

func (e *NativeEngine) Stop() error {
	if e.client != nil {
		e.client.Close()
	}
	if e.storage != nil {
		if err := e.storage.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
	}
	return nil
}

func (e *NativeEngine) Add(ctx context.Context, src engine.Source, opts engine.AddOptions) (*engine.AddResult, error) {
	if e.client == nil {
		return nil, errors.New("torrent client not initialized")
	}

	var (
		t   *torrent.Torrent
		ih  string
		err error
	)
	switch {
	case len(src.TorrentBytes) > 0:
		mi, lerr := metainfo.Load(bytes.NewReader(src.TorrentBytes))
		if lerr != nil {
			return nil, fmt.Errorf("failed to load torrent: %w", lerr)
		}
		ih = mi.HashInfoBytes().HexString()
		e.storage.register(ih, opts.OutputFolder)
		t, err = e.client.AddTorrent(mi)
	case src.Magnet != "":
		m, perr := metainfo.ParseMagnetUri(src.Magnet)
		if perr != nil {
			return nil, fmt.Errorf("failed to parse magnet: %w", perr)
		}
		ih = m.InfoHash.HexString()
		e.storage.register(ih, opts.OutputFolder)
		t, err = e.client.AddMagnet(src.Magnet)
	default:
		return nil, errors.New("empty torrent source")
	}
	if err != nil {
		e.storage.unregister(ih)
		return nil, err
	}

	select {
	case <-t.GotInfo():
	case <-ctx.Done():
		e.drop(ih, t)
		return nil, fmt.Errorf("waiting for metadata: %w", ctx.Err())
	}

	folder := e.storage.folderFor(ih)
	if !opts.Overwrite {
		root := filepath.Join(folder, t.Info().BestName())
		if _, serr := os.Stat(root); serr == nil {
			e.drop(ih, t)
			return nil, fmt.Errorf("%s: %w", root, os.ErrExist)
		}
	}

	h := &handle{t: t, maxConns: defaultMaxConns, onlyFiles: opts.OnlyFiles}
	if prev, loaded := e.handles.LoadOrStore(ih, h); loaded {
		h = prev.(*handle)
	}
	h.mu.Lock()
	applyOnlyFiles(h.t, h.onlyFiles)
	if opts.Paused {
		h.hardPause()
	}
	h.mu.Unlock()

	files := t.Files()
	res := &engine.AddResult{
		EngineID:     ih,
		InfoHash:     ih,
		Name:         t.Name(),
		OutputFolder: folder,
		Files:        make([]engine.FileInfo, 0, len(files)),
	}
	for _, f := range files {
		res.Files = append(res.Files, engine.FileInfo{
			Path:   f.DisplayPath(),
			Length: uint64(f.Length()),
		})
	}
	e.logger.Info("torrent added", zap.String("info_hash", ih), zap.String("name", res.Name), zap.Int("files", len(files)))
	return res, nil
}

func (e *NativeEngine) drop(ih string, t *torrent.Torrent) {
	t.Drop()
	e.storage.unregister(ih)
	e.handles.Delete(ih)
}

func (e *NativeEngine) lookup(id string) (*handle, error) {
	v, ok := e.handles.Load(id)
	if !ok {
		return nil, fmt.Errorf("torrent %s: %w", id, ErrUnknownTorrent)
	}
	return v.(*handle), nil
}

func (e *NativeEngine) Stats(ctx context.Context, id string) (*engine.Stats, error) {
	h, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	paused := h.paused
	only := h.onlyFiles
	h.mu.Unlock()

	t := h.t
	st := &engine.Stats{State: engine.StateLive}
	if paused {
		st.State = engine.StatePaused
	}
	if t.Info() == nil {
		if !paused {
			st.State = engine.StateInitializing
		}
		return st, nil
	}

	ts := t.Stats()
	st.TotalBytes = uint64(t.Length())
	st.ProgressBytes = uint64(t.BytesCompleted())
	st.UploadedBytes = uint64(ts.BytesWrittenData.Int64())

	wanted := selection(only)
	var wantLen, wantDone int64
	files := t.Files()
	st.FileProgress = make([]uint64, len(files))
	for i, f := range files {
		done := f.BytesCompleted()
		st.FileProgress[i] = uint64(done)
		if wanted == nil || wanted[i] {
			wantLen += f.Length()
			wantDone += done
		}
	}
	st.Finished = wantDone >= wantLen
	return st, nil
}

func (e *NativeEngine) PeerStats(ctx context.Context, id string, filter engine.PeerFilter) (map[string]any, error) {
	h, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	t := h.t
	numPieces := 0
	if t.Info() != nil {
		numPieces = t.NumPieces()
	}

	peers := make(map[string]any)
	for _, pc := range t.PeerConns() {
		ps := pc.Stats()
		entry := map[string]any{
			"downloaded": ps.BytesReadData.Int64(),
			"uploaded":   ps.BytesWrittenData.Int64(),
		}
		if name, ok := pc.PeerClientName.Load().(string); ok && name != "" {
			entry["client"] = name
		}
		if numPieces > 0 {
			entry["progress"] = float64(ps.RemotePieceCount) / float64(numPieces)
			entry["is_seed"] = ps.RemotePieceCount >= numPieces
		}
		peers[pc.RemoteAddr.String()] = entry
	}
	return map[string]any{"peers": peers}, nil
}

func (e *NativeEngine) Action(ctx context.Context, id string, action engine.Action) error {
	h, err := e.lookup(id)
	if err != nil {
		return err
	}

	switch action.Kind {
	case engine.ActionStart:
		h.mu.Lock()
		h.resume()
		h.mu.Unlock()
	case engine.ActionPause:
		h.mu.Lock()
		h.hardPause()
		h.mu.Unlock()
	case engine.ActionForget:
		e.drop(id, h.t)
		e.logger.Info("torrent forgotten", zap.String("info_hash", id))
	case engine.ActionUpdateOnlyFiles:
		h.mu.Lock()
		h.onlyFiles = action.OnlyFiles
		if !h.paused {
			applyOnlyFiles(h.t, h.onlyFiles)
		}
		h.mu.Unlock()
	default:
		return fmt.Errorf("unsupported action %q", action.Kind)
	}
	return nil
}

func (e *NativeEngine) Version(ctx context.Context) (string, error) {
	info, ok := debug.ReadBuildInfo()
	if ok {
		for _, dep := range info.Deps {
			if dep.Path == "github.com/anacrolix/torrent" {
				return "anacrolix/torrent " + dep.Version, nil
			}
		}
	}
	return "anacrolix/torrent", nil
}

// hardPause stops all network activity for the torrent by disallowing
// transfer and dropping every peer connection.
func (h *handle) hardPause() {
	if h.paused {
		return
	}
	h.t.DisallowDataDownload()
	h.t.DisallowDataUpload()
	if old := h.t.SetMaxEstablishedConns(0); old > 0 {
		h.maxConns = old
	}
	h.paused = true
}

func (h *handle) resume() {
	h.t.SetMaxEstablishedConns(h.maxConns)
	h.t.AllowDataUpload()
	h.t.AllowDataDownload()
	applyOnlyFiles(h.t, h.onlyFiles)
	h.paused = false
}

func selection(only []int) map[int]bool {
	if only == nil {
		return nil
	}
	set := make(map[int]bool, len(only))
	for _, i := range only {
		set[i] = true
	}
	return set
}

func applyOnlyFiles(t *torrent.Torrent, only []int) {
	if t.Info() == nil {
		return
	}
	wanted := selection(only)
	if wanted == nil {
		t.DownloadAll()
		return
	}
	for i, f := range t.Files() {
		if wanted[i] {
			f.SetPriority(torrent.PiecePriorityNormal)
		} else {
			f.SetPriority(torrent.PiecePriorityNone)
		}
	}
}
