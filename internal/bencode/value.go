package bencode

type Kind uint8

const (
	KindInt Kind = iota + 1
	KindBytes
	KindList
	KindDict
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindDict:
		return "dict"
	}
	return "invalid"
}

// Value is a decoded bencode node. Byte strings alias the decoder input.
type Value struct {
	Kind  Kind
	Int   int64
	Bytes []byte
	List  []Value
	Dict  []DictEntry
}

// DictEntry keeps dictionary order as it appeared on the wire.
type DictEntry struct {
	Key   []byte
	Value Value
}

// Get returns the first entry for key in a dictionary value.
func (v Value) Get(key string) (Value, bool) {
	if v.Kind != KindDict {
		return Value{}, false
	}
	for _, e := range v.Dict {
		if string(e.Key) == key {
			return e.Value, true
		}
	}
	return Value{}, false
}

// Str returns the byte string as text, or "" for other kinds.
func (v Value) Str() string {
	if v.Kind != KindBytes {
		return ""
	}
	return string(v.Bytes)
}
