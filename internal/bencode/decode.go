// Package bencode decodes untrusted bencoded metadata into a value tree.
//
// Every resource the decoder can be made to spend is bounded by Limits, and
// each bound that is hit produces its own error so callers can tell a
// hostile file from a truncated one.
package bencode

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrInputTooLarge   = errors.New("bencode: input too large")
	ErrTooDeep         = errors.New("bencode: nesting too deep")
	ErrIntegerTooLong  = errors.New("bencode: integer too long")
	ErrInvalidInteger  = errors.New("bencode: invalid integer")
	ErrLengthTooLong   = errors.New("bencode: length prefix too long")
	ErrInvalidLength   = errors.New("bencode: invalid length prefix")
	ErrStringTooLarge  = errors.New("bencode: byte string too large")
	ErrTooManyItems    = errors.New("bencode: too many items")
	ErrNonStringKey    = errors.New("bencode: dictionary key is not a byte string")
	ErrUnexpectedEOF   = errors.New("bencode: unexpected end of input")
	ErrUnexpectedToken = errors.New("bencode: unexpected token")
	ErrTrailingGarbage = errors.New("bencode: trailing data after value")
)

// Limits bounds decoder resource use.
type Limits struct {
	MaxInput     int
	MaxDepth     int
	MaxIntDigits int
	MaxLenDigits int
	MaxString    int
	MaxItems     int
}

var DefaultLimits = Limits{
	MaxInput:     100 << 20,
	MaxDepth:     100,
	MaxIntDigits: 20,
	MaxLenDigits: 10,
	MaxString:    10 << 20,
	MaxItems:     100_000,
}

// SyntaxError carries the offset at which decoding stopped.
type SyntaxError struct {
	Offset int
	Err    error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%v at offset %d", e.Err, e.Offset)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

type decoder struct {
	data   []byte
	pos    int
	limits Limits
}

// Decode parses exactly one value from data and rejects trailing bytes.
func Decode(data []byte) (Value, error) {
	v, end, err := DecodePrefix(data, 0, DefaultLimits)
	if err != nil {
		return Value{}, err
	}
	if end != len(data) {
		return Value{}, &SyntaxError{Offset: end, Err: ErrTrailingGarbage}
	}
	return v, nil
}

// DecodePrefix parses one value starting at offset and returns the offset
// just past it. Bytes after the value are left alone.
func DecodePrefix(data []byte, offset int, limits Limits) (Value, int, error) {
	if len(data) > limits.MaxInput {
		return Value{}, 0, &SyntaxError{Offset: 0, Err: ErrInputTooLarge}
	}
	d := &decoder{data: data, pos: offset, limits: limits}
	v, err := d.value(0)
	if err != nil {
		return Value{}, d.pos, err
	}
	return v, d.pos, nil
}

func (d *decoder) fail(err error) error {
	return &SyntaxError{Offset: d.pos, Err: err}
}

func (d *decoder) value(depth int) (Value, error) {
	if depth > d.limits.MaxDepth {
		return Value{}, d.fail(ErrTooDeep)
	}
	if d.pos >= len(d.data) {
		return Value{}, d.fail(ErrUnexpectedEOF)
	}

	switch c := d.data[d.pos]; {
	case c == 'i':
		return d.integer()
	case c == 'l':
		return d.list(depth)
	case c == 'd':
		return d.dict(depth)
	case c >= '0' && c <= '9':
		return d.bytes()
	default:
		return Value{}, d.fail(ErrUnexpectedToken)
	}
}

func (d *decoder) integer() (Value, error) {
	d.pos++ // 'i'
	start := d.pos
	for d.pos < len(d.data) && d.data[d.pos] != 'e' {
		if d.pos-start >= d.limits.MaxIntDigits {
			return Value{}, d.fail(ErrIntegerTooLong)
		}
		d.pos++
	}
	if d.pos >= len(d.data) {
		return Value{}, d.fail(ErrUnexpectedEOF)
	}

	raw := d.data[start:d.pos]
	if !canonicalInt(raw) {
		return Value{}, &SyntaxError{Offset: start, Err: ErrInvalidInteger}
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return Value{}, &SyntaxError{Offset: start, Err: ErrInvalidInteger}
	}
	d.pos++ // 'e'
	return Value{Kind: KindInt, Int: n}, nil
}

// canonicalInt accepts an optional minus sign followed by digits without
// leading zeros. "-0" is rejected.
func canonicalInt(raw []byte) bool {
	digits := raw
	if len(digits) > 0 && digits[0] == '-' {
		digits = digits[1:]
		if len(digits) == 1 && digits[0] == '0' {
			return false
		}
	}
	if len(digits) == 0 {
		return false
	}
	if len(digits) > 1 && digits[0] == '0' {
		return false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func (d *decoder) bytes() (Value, error) {
	start := d.pos
	for d.pos < len(d.data) && d.data[d.pos] != ':' {
		if d.pos-start >= d.limits.MaxLenDigits {
			return Value{}, d.fail(ErrLengthTooLong)
		}
		if c := d.data[d.pos]; c < '0' || c > '9' {
			return Value{}, d.fail(ErrInvalidLength)
		}
		d.pos++
	}
	if d.pos >= len(d.data) {
		return Value{}, d.fail(ErrUnexpectedEOF)
	}

	n, err := strconv.Atoi(string(d.data[start:d.pos]))
	if err != nil {
		return Value{}, &SyntaxError{Offset: start, Err: ErrInvalidLength}
	}
	if n > d.limits.MaxString {
		return Value{}, &SyntaxError{Offset: start, Err: ErrStringTooLarge}
	}
	d.pos++ // ':'
	if n > len(d.data)-d.pos {
		return Value{}, d.fail(ErrUnexpectedEOF)
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return Value{Kind: KindBytes, Bytes: b}, nil
}

func (d *decoder) list(depth int) (Value, error) {
	d.pos++ // 'l'
	var items []Value
	for {
		if d.pos >= len(d.data) {
			return Value{}, d.fail(ErrUnexpectedEOF)
		}
		if d.data[d.pos] == 'e' {
			d.pos++
			return Value{Kind: KindList, List: items}, nil
		}
		if len(items) >= d.limits.MaxItems {
			return Value{}, d.fail(ErrTooManyItems)
		}
		v, err := d.value(depth + 1)
		if err != nil {
			return Value{}, err
		}
		items = append(items, v)
	}
}

func (d *decoder) dict(depth int) (Value, error) {
	d.pos++ // 'd'
	var entries []DictEntry
	for {
		if d.pos >= len(d.data) {
			return Value{}, d.fail(ErrUnexpectedEOF)
		}
		if d.data[d.pos] == 'e' {
			d.pos++
			return Value{Kind: KindDict, Dict: entries}, nil
		}
		if len(entries) >= d.limits.MaxItems {
			return Value{}, d.fail(ErrTooManyItems)
		}
		if c := d.data[d.pos]; c < '0' || c > '9' {
			return Value{}, d.fail(ErrNonStringKey)
		}
		k, err := d.bytes()
		if err != nil {
			return Value{}, err
		}
		v, err := d.value(depth + 1)
		if err != nil {
			return Value{}, err
		}
		entries = append(entries, DictEntry{Key: k.Bytes, Value: v})
	}
}
