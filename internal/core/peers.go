package core

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/netip"
	"sort"
	"strconv"
	"strings"
	"time"

	"orctorrent/internal/engine"
	apperrors "orctorrent/internal/errors"
	"orctorrent/internal/geoip"
	"orctorrent/internal/model"

	"go.uber.org/zap"
)

type peerSample struct {
	downloaded uint64
	uploaded   uint64
	at         time.Time
	lastSeenMs int64
}

// Accepted key aliases per peer field, most common first.
var (
	snapshotKeys   = []string{"peers", "per_peer", "per_peer_stats", "peer_stats", "per_peer_stats_snapshot"}
	addrKeys       = []string{"addr", "peer_addr", "peer", "socket"}
	downloadedKeys = []string{"downloaded", "downloaded_bytes", "total_downloaded", "dl_bytes"}
	uploadedKeys   = []string{"uploaded", "uploaded_bytes", "total_uploaded", "ul_bytes"}
	clientKeys     = []string{"client", "client_name", "user_agent", "client_id"}
	progressKeys   = []string{"progress", "peer_progress"}
	snubbedKeys    = []string{"snubbed", "is_snubbed"}
	chokedKeys     = []string{"choked", "is_choked"}
	interestedKeys = []string{"interested", "is_interested"}
	optimisticKeys = []string{"optimistic", "optimistic_unchoke"}
	incomingKeys   = []string{"incoming", "is_incoming"}
	encryptedKeys  = []string{"encrypted", "is_encrypted"}
	rttKeys        = []string{"rtt_ms", "rtt", "ping_ms"}
	countryKeys    = []string{"country", "country_code"}
)

type peerEntry struct {
	addr    string
	fields  map[string]any
	country *string
}

// Peers fetches the engine's peer snapshot and folds it into the torrent's
// rate samples and availability estimate. An engine failure is recorded on
// the torrent and yields an empty table.
func (s *State) Peers(ctx context.Context, id string) (model.PeersResponse, error) {
	s.mu.Lock()
	rt, err := s.lookup(id)
	if err != nil {
		s.mu.Unlock()
		return model.PeersResponse{}, err
	}
	engineID := rt.engineID
	s.mu.Unlock()

	snap, perr := s.engine.PeerStats(ctx, engineID, engine.LivePeers)
	var entries []peerEntry
	if perr == nil {
		entries = peerEntries(snap)
		for i := range entries {
			entries[i].country = s.countryFor(entries[i])
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rt, err = s.lookup(id)
	if err != nil {
		return model.PeersResponse{}, err
	}
	if perr != nil {
		rt.lastError = apperrors.Sanitize(perr)
		s.logger.Warn("peer stats failed", zap.String("id", id), zap.Error(perr))
		return model.PeersResponse{Peers: []model.PeerRow{}}, nil
	}

	rows := rt.applyPeerSnapshot(entries, s.now())
	return model.PeersResponse{Peers: rows}, nil
}

func (s *State) countryFor(e peerEntry) *string {
	if c, ok := pickString(e.fields, countryKeys); ok {
		return &c
	}
	if s.geo == nil {
		return nil
	}
	ip, _ := splitAddr(e.addr)
	parsed := net.ParseIP(ip)
	if !geoip.Lookupable(parsed) {
		return nil
	}
	if c, ok := s.geo.Country(parsed); ok {
		return &c
	}
	return nil
}

func (rt *torrentRuntime) applyPeerSnapshot(entries []peerEntry, now time.Time) []model.PeerRow {
	nowMs := now.UnixMilli()
	seen := make(map[string]struct{}, len(entries))
	rows := make([]model.PeerRow, 0, len(entries))

	for _, e := range entries {
		ip, port := splitAddr(e.addr)
		downloaded, _ := pickUint(e.fields, downloadedKeys)
		uploaded, _ := pickUint(e.fields, uploadedKeys)

		var downRate, upRate int64
		if prev, ok := rt.peerSamples[e.addr]; ok {
			dt := max(now.Sub(prev.at), minPeerRateWindow).Seconds()
			downRate = int64(float64(saturatingSub(downloaded, prev.downloaded)) / dt)
			upRate = int64(float64(saturatingSub(uploaded, prev.uploaded)) / dt)
		}
		rt.peerSamples[e.addr] = &peerSample{
			downloaded: downloaded,
			uploaded:   uploaded,
			at:         now,
			lastSeenMs: nowMs,
		}
		seen[e.addr] = struct{}{}

		flags, ok := pickString(e.fields, []string{"flags"})
		if !ok {
			flags = synthFlags(e.fields)
		}
		row := model.PeerRow{
			ID:         e.addr,
			IP:         ip,
			Port:       port,
			DownRate:   downRate,
			UpRate:     upRate,
			Downloaded: downloaded,
			Uploaded:   uploaded,
			Client:     optString(e.fields, clientKeys),
			Flags:      &flags,
			Progress:   optFloat(e.fields, progressKeys),
			Snubbed:    boolOr(e.fields, snubbedKeys, false),
			Choked:     boolOr(e.fields, chokedKeys, false),
			Interested: optBool(e.fields, interestedKeys),
			Optimistic: optBool(e.fields, optimisticKeys),
			Incoming:   optBool(e.fields, incomingKeys),
			Encrypted:  optBool(e.fields, encryptedKeys),
			Country:    e.country,
			LastSeenMs: nowMs,
		}
		if rtt, ok := pickUint(e.fields, rttKeys); ok {
			v := uint32(min(rtt, math.MaxUint32))
			row.RttMs = &v
		}
		rows = append(rows, row)
	}

	for _, r := range rows {
		if r.Progress != nil {
			rt.observePeerProgress(r.ID, *r.Progress)
		}
	}
	for peerID := range rt.peerProgress {
		if _, ok := seen[peerID]; !ok {
			rt.forgetPeerProgress(peerID)
		}
	}

	rt.prunePeerSamples(seen)
	rt.peersSeen = uint32(len(rows))

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].DownRate != rows[j].DownRate {
			return rows[i].DownRate > rows[j].DownRate
		}
		return rows[i].Uploaded > rows[j].Uploaded
	})
	return rows
}

// prunePeerSamples drops samples for peers absent from the latest snapshot,
// then evicts the least recently seen until the table fits MaxPeerSamples.
func (rt *torrentRuntime) prunePeerSamples(seen map[string]struct{}) {
	for k := range rt.peerSamples {
		if _, ok := seen[k]; !ok {
			delete(rt.peerSamples, k)
		}
	}
	excess := len(rt.peerSamples) - MaxPeerSamples
	if excess <= 0 {
		return
	}
	keys := make([]string, 0, len(rt.peerSamples))
	for k := range rt.peerSamples {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := rt.peerSamples[keys[i]], rt.peerSamples[keys[j]]
		if a.lastSeenMs != b.lastSeenMs {
			return a.lastSeenMs < b.lastSeenMs
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys[:excess] {
		delete(rt.peerSamples, k)
	}
}

// peerEntries finds the per-peer collection in an engine snapshot. It may be
// a map keyed by address or an array of objects carrying their address.
func peerEntries(snap map[string]any) []peerEntry {
	if snap == nil {
		return nil
	}
	for _, key := range snapshotKeys {
		sub, ok := snap[key]
		if !ok {
			continue
		}
		switch v := sub.(type) {
		case map[string]any:
			return entriesFromMap(v)
		case []any:
			out := make([]peerEntry, 0, len(v))
			for i, item := range v {
				fields, _ := item.(map[string]any)
				addr, ok := pickString(fields, addrKeys)
				if !ok {
					addr = fmt.Sprintf("peer-%d", i)
				}
				out = append(out, peerEntry{addr: addr, fields: fields})
			}
			return out
		}
	}
	for _, v := range snap {
		if _, ok := v.(map[string]any); !ok {
			return nil
		}
	}
	return entriesFromMap(snap)
}

func entriesFromMap(m map[string]any) []peerEntry {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]peerEntry, 0, len(keys))
	for _, k := range keys {
		fields, _ := m[k].(map[string]any)
		out = append(out, peerEntry{addr: k, fields: fields})
	}
	return out
}

// splitAddr separates host and port. Unparseable input is returned whole
// with port 0.
func splitAddr(addr string) (string, uint16) {
	if ap, err := netip.ParseAddrPort(addr); err == nil {
		return ap.Addr().Unmap().String(), ap.Port()
	}
	if i := strings.LastIndexByte(addr, ':'); i >= 0 {
		if p, err := strconv.ParseUint(addr[i+1:], 10, 16); err == nil {
			return addr[:i], uint16(p)
		}
	}
	return addr, 0
}

func synthFlags(fields map[string]any) string {
	strict := func(keys ...string) bool {
		for _, k := range keys {
			if b, ok := fields[k].(bool); ok && b {
				return true
			}
		}
		return false
	}
	var b strings.Builder
	if strict("encrypted", "is_encrypted") {
		b.WriteByte('E')
	}
	if strict("is_seed", "seed") {
		b.WriteByte('S')
	}
	if strict("choked", "is_choked") {
		b.WriteByte('C')
	}
	if strict("interested", "is_interested") {
		b.WriteByte('I')
	}
	if b.Len() == 0 {
		return "—"
	}
	return b.String()
}

func saturatingSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}

func pickUint(fields map[string]any, keys []string) (uint64, bool) {
	for _, k := range keys {
		v, ok := fields[k]
		if !ok {
			continue
		}
		if n, ok := toUint(v); ok {
			return n, true
		}
	}
	return 0, false
}

func toUint(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case uint:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case int:
		return uint64(max(n, 0)), true
	case int64:
		return uint64(max(n, 0)), true
	case int32:
		return uint64(max(n, 0)), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, false
		}
		return uint64(max(n, 0)), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return uint64(max(i, 0)), true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f, true
		}
	}
	return 0, false
}

func pickString(fields map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		if s, ok := fields[k].(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	return "", false
}

func pickBool(fields map[string]any, keys []string) (bool, bool) {
	for _, k := range keys {
		v, ok := fields[k]
		if !ok {
			continue
		}
		if b, ok := v.(bool); ok {
			return b, true
		}
		if n, ok := toFloat(v); ok {
			return n != 0, true
		}
	}
	return false, false
}

func optString(fields map[string]any, keys []string) *string {
	if s, ok := pickString(fields, keys); ok {
		return &s
	}
	return nil
}

func optFloat(fields map[string]any, keys []string) *float64 {
	for _, k := range keys {
		if f, ok := toFloat(fields[k]); ok {
			return &f
		}
	}
	return nil
}

func optBool(fields map[string]any, keys []string) *bool {
	if b, ok := pickBool(fields, keys); ok {
		return &b
	}
	return nil
}

func boolOr(fields map[string]any, keys []string, def bool) bool {
	if b, ok := pickBool(fields, keys); ok {
		return b
	}
	return def
}
