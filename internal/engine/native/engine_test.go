package native

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"orctorrent/internal/engine"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func buildTorrent(t *testing.T, path string) ([]byte, string) {
	t.Helper()
	info := metainfo.Info{PieceLength: 16 << 10}
	require.NoError(t, info.BuildFromFilePath(path))
	var mi metainfo.MetaInfo
	var err error
	mi.InfoBytes, err = bencode.Marshal(info)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, mi.Write(&buf))
	return buf.Bytes(), mi.HashInfoBytes().HexString()
}

func TestNativeEngine_Lifecycle(t *testing.T) {
	dir := t.TempDir()
	seedDir := filepath.Join(dir, "seed")
	require.NoError(t, os.MkdirAll(seedDir, 0o755))
	content := bytes.Repeat([]byte("orc"), 20000)
	require.NoError(t, os.WriteFile(filepath.Join(seedDir, "hello.bin"), content, 0o644))
	raw, hash := buildTorrent(t, filepath.Join(seedDir, "hello.bin"))

	e := NewNativeEngine(Options{
		MetadataDir: filepath.Join(dir, "meta"),
		DownloadDir: filepath.Join(dir, "downloads"),
		NoDHT:       true,
		NoUPnP:      true,
	}, zap.NewNop())
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	src := engine.Source{TorrentBytes: raw}

	_, err := e.Add(ctx, src, engine.AddOptions{OutputFolder: seedDir})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrExist)
	assert.True(t, engine.IsFileExists(err))

	res, err := e.Add(ctx, src, engine.AddOptions{OutputFolder: seedDir, Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, hash, res.EngineID)
	assert.Equal(t, hash, res.InfoHash)
	assert.Equal(t, "hello.bin", res.Name)
	assert.Equal(t, seedDir, res.OutputFolder)
	require.Len(t, res.Files, 1)
	assert.Equal(t, uint64(len(content)), res.Files[0].Length)

	st, err := e.Stats(ctx, res.EngineID)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(content)), st.TotalBytes)
	assert.Equal(t, engine.StateLive, st.State)
	assert.Len(t, st.FileProgress, 1)

	require.NoError(t, e.Action(ctx, res.EngineID, engine.Action{Kind: engine.ActionPause}))
	st, err = e.Stats(ctx, res.EngineID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatePaused, st.State)

	require.NoError(t, e.Action(ctx, res.EngineID, engine.Action{Kind: engine.ActionStart}))
	st, err = e.Stats(ctx, res.EngineID)
	require.NoError(t, err)
	assert.Equal(t, engine.StateLive, st.State)

	peers, err := e.PeerStats(ctx, res.EngineID, engine.LivePeers)
	require.NoError(t, err)
	assert.Contains(t, peers, "peers")

	require.NoError(t, e.Action(ctx, res.EngineID, engine.Action{Kind: engine.ActionForget}))
	_, err = e.Stats(ctx, res.EngineID)
	assert.ErrorIs(t, err, ErrUnknownTorrent)
	assert.ErrorIs(t, e.Action(ctx, res.EngineID, engine.Action{Kind: engine.ActionStart}), ErrUnknownTorrent)
}

func TestSelection(t *testing.T) {
	assert.Nil(t, selection(nil))
	got := selection([]int{0, 2})
	assert.True(t, got[0])
	assert.False(t, got[1])
	assert.True(t, got[2])
	assert.NotNil(t, selection([]int{}))
}
