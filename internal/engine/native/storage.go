package native

import (
	"context"
	"sync"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"
	"go.uber.org/zap"
)

// folderStorage places each torrent's content in the output folder chosen at
// add time, sharing one piece-completion database kept out of those folders.
type folderStorage struct {
	fallbackDir string
	completion  storage.PieceCompletion
	folders     sync.Map // info-hash hex -> output folder
}

func newFolderStorage(fallbackDir, metadataDir string, l *zap.Logger) *folderStorage {
	pc, err := storage.NewDefaultPieceCompletionForDir(metadataDir)
	if err != nil {
		l.Warn("piece completion db unavailable, using memory", zap.Error(err))
		pc = storage.NewMapPieceCompletion()
	}
	return &folderStorage{
		fallbackDir: fallbackDir,
		completion:  pc,
	}
}

func (s *folderStorage) register(infoHash, folder string) {
	if folder != "" {
		s.folders.Store(infoHash, folder)
	}
}

func (s *folderStorage) unregister(infoHash string) {
	s.folders.Delete(infoHash)
}

func (s *folderStorage) folderFor(infoHash string) string {
	if v, ok := s.folders.Load(infoHash); ok {
		return v.(string)
	}
	return s.fallbackDir
}

func (s *folderStorage) OpenTorrent(ctx context.Context, info *metainfo.Info, infoHash metainfo.Hash) (storage.TorrentImpl, error) {
	opts := storage.NewFileClientOpts{
		ClientBaseDir:   s.folderFor(infoHash.HexString()),
		PieceCompletion: s.completion,
	}
	return storage.NewFileOpts(opts).OpenTorrent(ctx, info, infoHash)
}

func (s *folderStorage) Close() error {
	if s.completion != nil {
		return s.completion.Close()
	}
	return nil
}
