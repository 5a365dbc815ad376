// Package enc encodes fixed-width big-endian records.
//
// The API follows the shape of the marshal package (NewEnc/PutInt/Finish,
// NewDec/GetInt) but every on-disk integer of the volume is big-endian and of
// a declared width, so the fields are written with encoding/binary.
package enc

import (
	"encoding/binary"
)

type Enc struct {
	b   []byte
	off uint64
}

// NewEnc starts encoding into a zeroed buffer of sz bytes.
func NewEnc(sz uint64) Enc {
	return Enc{b: make([]byte, sz), off: 0}
}

// NewEncAt encodes over an existing buffer, starting at off.
func NewEncAt(b []byte, off uint64) Enc {
	return Enc{b: b, off: off}
}

func (enc *Enc) PutInt32(x int32) {
	binary.BigEndian.PutUint32(enc.b[enc.off:], uint32(x))
	enc.off += 4
}

func (enc *Enc) PutInt16(x int16) {
	binary.BigEndian.PutUint16(enc.b[enc.off:], uint16(x))
	enc.off += 2
}

func (enc *Enc) PutInt16s(xs []int16) {
	for _, x := range xs {
		enc.PutInt16(x)
	}
}

func (enc *Enc) Finish() []byte {
	return enc.b
}

type Dec struct {
	b   []byte
	off uint64
}

func NewDec(b []byte) Dec {
	return Dec{b: b, off: 0}
}

func NewDecAt(b []byte, off uint64) Dec {
	return Dec{b: b, off: off}
}

func (dec *Dec) GetInt32() int32 {
	x := binary.BigEndian.Uint32(dec.b[dec.off:])
	dec.off += 4
	return int32(x)
}

func (dec *Dec) GetInt16() int16 {
	x := binary.BigEndian.Uint16(dec.b[dec.off:])
	dec.off += 2
	return int16(x)
}

func (dec *Dec) GetInt16s(n uint64) []int16 {
	xs := make([]int16, n)
	for i := range xs {
		xs[i] = dec.GetInt16()
	}
	return xs
}

// Int16At reads the i-th int16 slot of b.
func Int16At(b []byte, i uint64) int16 {
	return int16(binary.BigEndian.Uint16(b[i*2:]))
}

// PutInt16At writes the i-th int16 slot of b.
func PutInt16At(b []byte, i uint64, x int16) {
	binary.BigEndian.PutUint16(b[i*2:], uint16(x))
}
