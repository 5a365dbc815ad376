package disk

import (
	"errors"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func data(sz int) []byte {
	d := make([]byte, sz)
	rand.Read(d)
	return d
}

func testReadWrite(t *testing.T, d Disk) {
	assert := assert.New(t)
	n := d.Size()

	// neighbouring sectors must not clobber each other
	blks := make([]Block, n)
	for a := uint64(0); a < n; a++ {
		blks[a] = data(int(BlockSize))
		assert.NoError(d.Write(a, blks[a]))
	}
	for a := uint64(0); a < n; a++ {
		b, err := d.Read(a)
		assert.NoError(err)
		assert.Equal(blks[a], b, "block %d", a)
	}

	_, err := d.Read(n)
	assert.True(errors.Is(err, ErrOutOfBounds))
	err = d.Write(n, make(Block, BlockSize))
	assert.True(errors.Is(err, ErrOutOfBounds))
	err = d.Write(0, make(Block, BlockSize-1))
	assert.True(errors.Is(err, ErrBlockSize))
	assert.NoError(d.Barrier())
}

func TestMemDisk(t *testing.T) {
	d := NewMemDisk(19)
	assert.Equal(t, uint64(19), d.Size())
	testReadWrite(t, d)
}

func TestMemDiskZeroed(t *testing.T) {
	d := NewMemDisk(4)
	b, err := d.Read(3)
	assert.NoError(t, err)
	assert.Equal(t, make(Block, BlockSize), b)
}

func TestFileDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := NewFileDisk(path, 10)
	require.NoError(t, err)
	testReadWrite(t, d)

	x := data(int(BlockSize))
	require.NoError(t, d.Write(7, x))
	require.NoError(t, d.Close())

	d, err = NewFileDisk(path, 10)
	require.NoError(t, err)
	defer d.Close()
	b, err := d.Read(7)
	assert.NoError(t, err)
	assert.Equal(t, x, b, "data should survive reopening the image")
}

func TestFaultyDisk(t *testing.T) {
	assert := assert.New(t)
	d := NewFaultyDisk(NewMemDisk(8))

	assert.NoError(d.Write(1, data(int(BlockSize))))
	d.FailWrite(1)
	d.FailRead(2)
	err := d.Write(1, data(int(BlockSize)))
	assert.True(errors.Is(err, ErrInjected))
	_, err = d.Read(2)
	assert.True(errors.Is(err, ErrInjected))
	_, err = d.Read(1)
	assert.NoError(err)

	d.Heal()
	assert.NoError(d.Write(1, data(int(BlockSize))))

	r, w := d.Counts()
	assert.Equal(uint64(2), r)
	assert.Equal(uint64(3), w)
}
