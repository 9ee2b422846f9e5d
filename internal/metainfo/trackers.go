package metainfo

import (
	"strings"

	"orctorrent/internal/bencode"
)

// Trackers lists announce URLs from a .torrent file: "announce" first, then
// every tier of "announce-list". Undecodable input yields nil.
func Trackers(data []byte) []string {
	root, err := bencode.Decode(data)
	if err != nil || root.Kind != bencode.KindDict {
		return nil
	}

	var out []string
	add := func(v bencode.Value) {
		if s := v.Str(); strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}

	if a, ok := root.Get("announce"); ok {
		add(a)
	}
	if list, ok := root.Get("announce-list"); ok && list.Kind == bencode.KindList {
		for _, tier := range list.List {
			switch tier.Kind {
			case bencode.KindList:
				for _, u := range tier.List {
					add(u)
				}
			case bencode.KindBytes:
				add(tier)
			}
		}
	}
	return Dedup(out)
}

// Dedup drops repeated entries, keeping the first occurrence.
func Dedup(in []string) []string {
	if len(in) == 0 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := in[:0:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
