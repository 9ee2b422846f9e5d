package core

import (
	"math"

	"orctorrent/internal/model"
)

// Availability is approximated from each peer's progress fraction: a peer at
// progress p is assumed to hold the first ceil(p*pieces) pieces.

func coveredPieces(progress float64, total uint32) int {
	if progress <= 0 || total == 0 {
		return 0
	}
	n := int(math.Ceil(progress * float64(total)))
	return min(n, int(total))
}

func (rt *torrentRuntime) observePeerProgress(peerID string, progress float64) {
	if rt.totalPieces == 0 {
		return
	}
	if len(rt.availability) != int(rt.totalPieces) {
		rt.availability = resizeAvailability(rt.availability, int(rt.totalPieces))
	}
	if old, ok := rt.peerProgress[peerID]; ok {
		decrementRange(rt.availability, coveredPieces(old, rt.totalPieces))
	}
	n := coveredPieces(progress, rt.totalPieces)
	for i := 0; i < n; i++ {
		if rt.availability[i] < math.MaxUint32 {
			rt.availability[i]++
		}
	}
	rt.peerProgress[peerID] = progress
}

func (rt *torrentRuntime) forgetPeerProgress(peerID string) {
	old, ok := rt.peerProgress[peerID]
	if !ok {
		return
	}
	delete(rt.peerProgress, peerID)
	if len(rt.availability) == int(rt.totalPieces) {
		decrementRange(rt.availability, coveredPieces(old, rt.totalPieces))
	}
}

func decrementRange(avail []uint32, n int) {
	for i := 0; i < n && i < len(avail); i++ {
		if avail[i] > 0 {
			avail[i]--
		}
	}
}

func resizeAvailability(avail []uint32, n int) []uint32 {
	out := make([]uint32, n)
	copy(out, avail)
	return out
}

// RowSnapshot renders the torrent's progress, piece heatmap and heartbeat
// history. The heatmap always has HeatmapBins bins.
func (s *State) RowSnapshot(id string) (model.TorrentRowSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, err := s.lookup(id)
	if err != nil {
		return model.TorrentRowSnapshot{}, err
	}
	progress := rt.progress()
	return model.TorrentRowSnapshot{
		Progress:         progress,
		State:            rt.visibleState(s.now()),
		PiecesBins:       buildBins(progress, rt.totalPieces, rt.availability),
		HeartbeatSamples: append([]uint64{}, rt.heartbeats...),
	}, nil
}

func buildBins(progress float64, totalPieces uint32, avail []uint32) []model.PieceBin {
	total := max(int(totalPieces), 1)
	perBin := (total + HeatmapBins - 1) / HeatmapBins
	completed := int(math.Floor(progress * float64(total)))

	bins := make([]model.PieceBin, HeatmapBins)
	for b := range bins {
		start := b * perBin
		if start >= total {
			continue
		}
		end := min(start+perBin, total)
		inBin := end - start
		have := min(max(completed-start, 0), inBin)
		ratio := float64(have) / float64(inBin)

		var minAvail uint32
		if ratio < 1 {
			found := false
			for p := max(start, completed); p < end && p < len(avail); p++ {
				if !found || avail[p] < minAvail {
					minAvail = avail[p]
					found = true
				}
			}
		}
		bins[b] = model.PieceBin{
			HaveRatio:   ratio,
			MinAvail:    minAvail,
			PiecesInBin: uint32(inBin),
		}
	}
	return bins
}
