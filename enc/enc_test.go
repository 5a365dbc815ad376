package enc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBigEndian(t *testing.T) {
	e := NewEnc(8)
	e.PutInt32(0x01020304)
	e.PutInt16(-1)
	e.PutInt16(0x0506)
	assert.Equal(t, []byte{1, 2, 3, 4, 0xff, 0xff, 5, 6}, e.Finish())

	d := NewDec(e.Finish())
	assert.Equal(t, int32(0x01020304), d.GetInt32())
	assert.Equal(t, int16(-1), d.GetInt16())
	assert.Equal(t, int16(0x0506), d.GetInt16())
}

func TestInt16Slots(t *testing.T) {
	b := make([]byte, 6)
	PutInt16At(b, 2, -7)
	assert.Equal(t, int16(-7), Int16At(b, 2))
	assert.Equal(t, int16(0), Int16At(b, 0))

	e := NewEncAt(b, 0)
	e.PutInt16s([]int16{3, 4})
	d := NewDec(b)
	assert.Equal(t, []int16{3, 4, -7}, d.GetInt16s(3))
}
