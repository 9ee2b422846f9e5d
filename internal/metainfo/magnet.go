package metainfo

import (
	"net/url"
	"strings"

	apperrors "orctorrent/internal/errors"
)

const (
	MagnetPrefix    = "magnet:?"
	MaxMagnetLength = 8192

	btihParam = "xt=urn:btih:"
)

type Magnet struct {
	InfoHash    string
	DisplayName string
	Trackers    []string
}

// ParseMagnet validates a magnet link and extracts its btih info-hash,
// display name and trackers.
func ParseMagnet(uri string) (*Magnet, error) {
	if len(uri) > MaxMagnetLength {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "Magnet link too long")
	}
	if !strings.HasPrefix(uri, MagnetPrefix) {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "Invalid magnet link format")
	}
	hash, ok := InfoHashFromMagnet(uri)
	if !ok {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "Magnet link has no valid btih info-hash")
	}

	m := &Magnet{InfoHash: hash, Trackers: TrackersFromMagnet(uri)}
	for _, part := range strings.Split(uri[len(MagnetPrefix):], "&") {
		if v, found := strings.CutPrefix(part, "dn="); found {
			m.DisplayName = unescape(v)
			break
		}
	}
	return m, nil
}

// InfoHashFromMagnet extracts the 40-hex btih hash, lower-cased.
func InfoHashFromMagnet(uri string) (string, bool) {
	if !strings.HasPrefix(uri, MagnetPrefix) || len(uri) > MaxMagnetLength {
		return "", false
	}
	idx := strings.Index(uri, btihParam)
	if idx < 0 {
		return "", false
	}
	hash := uri[idx+len(btihParam):]
	if amp := strings.IndexByte(hash, '&'); amp >= 0 {
		hash = hash[:amp]
	}
	if len(hash) != 40 || !isHex(hash) {
		return "", false
	}
	return strings.ToLower(hash), true
}

// TrackersFromMagnet returns every non-blank tr= parameter, percent-decoded,
// without duplicates.
func TrackersFromMagnet(uri string) []string {
	q := strings.IndexByte(uri, '?')
	if q < 0 {
		return nil
	}
	var out []string
	for _, part := range strings.Split(uri[q+1:], "&") {
		key, val, _ := strings.Cut(part, "=")
		if key != "tr" {
			continue
		}
		if val = unescape(val); strings.TrimSpace(val) != "" {
			out = append(out, val)
		}
	}
	return Dedup(out)
}

func unescape(s string) string {
	if v, err := url.QueryUnescape(s); err == nil {
		return v
	}
	return s
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}
