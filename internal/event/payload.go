package event

import (
	"encoding/binary"
	"math"
)

// Kind identifies a payload variant.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindText
	KindPointer
	KindBool
	KindCustom
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindPointer:
		return "pointer"
	case KindBool:
		return "bool"
	case KindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Payload is the typed value an Event may carry. The set of implementations
// is closed: Int, Float, Text, Pointer, Bool and Custom.
type Payload interface {
	Kind() Kind
	// Size is the byte length of the payload's encoded value.
	Size() int
	// Bytes returns an encoded copy of the value, or nil for payloads that
	// have no byte form (Pointer).
	Bytes() []byte

	release()
}

// Int is an owned integer payload.
type Int struct{ Value int64 }

// Float is an owned floating point payload.
type Float struct{ Value float64 }

// Text is an owned string payload.
type Text struct{ Value string }

// Bool is an owned boolean payload.
type Bool struct{ Value bool }

// Pointer borrows a caller-owned value. The payload never releases it.
type Pointer struct{ Ref any }

// Custom owns a copy of arbitrary bytes. If Destroy is set it is invoked
// exactly once, with the owned bytes, when the payload is released.
type Custom struct {
	data     []byte
	destroy  func([]byte)
	released bool
}

// NewCustom copies data into a Custom payload. destroy may be nil.
func NewCustom(data []byte, destroy func([]byte)) *Custom {
	owned := make([]byte, len(data))
	copy(owned, data)
	return &Custom{data: owned, destroy: destroy}
}

func (Int) Kind() Kind { return KindInt }
func (Float) Kind() Kind { return KindFloat }
func (Text) Kind() Kind { return KindText }
func (Bool) Kind() Kind { return KindBool }
func (Pointer) Kind() Kind { return KindPointer }
func (*Custom) Kind() Kind { return KindCustom }
func (Int) Size() int { return 8 }
func (Float) Size() int { return 8 }
func (t Text) Size() int { return len(t.Value) }
func (Bool) Size() int { return 1 }
func (Pointer) Size() int { return 0 }
func (c *Custom) Size() int { return len(c.data) }

func (i Int) Bytes() []byte {
	return binary.LittleEndian.AppendUint64(nil, uint64(i.Value))
}

func (f Float) Bytes() []byte {
	return binary.LittleEndian.AppendUint64(nil, math.Float64bits(f.Value))
}

func (t Text) Bytes() []byte { return []byte(t.Value) }

func (b Bool) Bytes() []byte {
	if b.Value {
		return []byte{1}
	}
	return []byte{0}
}

func (Pointer) Bytes() []byte { return nil }

func (c *Custom) Bytes() []byte {
	out := make([]byte, len(c.data))
	copy(out, c.data)
	return out
}

// Data returns the owned bytes without copying. Callers must not retain the
// slice past the payload's release.
func (c *Custom) Data() []byte { return c.data }

func (Int) release()     {}
func (Float) release()   {}
func (Text) release()    {}
func (Bool) release()    {}
func (Pointer) release() {}

func (c *Custom) release() {
	if c.released {
		return
	}
	c.released = true
	if c.destroy != nil {
		c.destroy(c.data)
	}
	c.data = nil
}

// Release frees p. Only Custom payloads observe this; it is safe to call on
// nil and idempotent.
func Release(p Payload) {
	if p == nil {
		return
	}
	p.release()
}
