// Package metainfo extracts torrent identity and tracker lists from .torrent
// bytes and magnet links.
package metainfo

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"

	"orctorrent/internal/bencode"
	apperrors "orctorrent/internal/errors"
)

var (
	ErrNoInfoDict = errors.New("metainfo: no info dictionary")
	infoMarker    = []byte("4:info")
)

// InfoHash returns the 40-character lowercase hex SHA-1 of the raw info
// dictionary bytes. The dictionary is located by scanning for the literal
// "4:info" key and its extent is found by decoding it in place, so the hash
// covers exactly the bytes an engine would hash.
func InfoHash(data []byte) (string, error) {
	if len(data) > bencode.DefaultLimits.MaxInput {
		return "", apperrors.Wrap(bencode.ErrInputTooLarge, apperrors.CodeDecodeFailure, "torrent file too large")
	}
	idx := bytes.Index(data, infoMarker)
	if idx < 0 {
		return "", ErrNoInfoDict
	}
	start := idx + len(infoMarker)
	if start >= len(data) || data[start] != 'd' {
		return "", ErrNoInfoDict
	}

	_, end, err := bencode.DecodePrefix(data, start, bencode.DefaultLimits)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeDecodeFailure, "invalid info dictionary")
	}

	sum := sha1.Sum(data[start:end])
	return hex.EncodeToString(sum[:]), nil
}
