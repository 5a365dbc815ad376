package alloc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-flatfs/common"
	"github.com/mit-pdos/go-flatfs/disk"
)

func mkFormatted(t *testing.T, d disk.Disk, start common.Bnum) *Alloc {
	a := MkAlloc(d, start, common.Bnum(d.Size()), common.NULLBNUM)
	require.NoError(t, a.Format())
	return a
}

func TestAlloc(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDisk(32)
	a := mkFormatted(t, d, 3)

	n, err := a.NumFree()
	assert.NoError(err)
	assert.Equal(uint64(29), n, "everything past the metadata should be free")

	var got []common.Bnum
	for {
		bn, err := a.AllocNum()
		if err != nil {
			assert.True(errors.Is(err, ErrNoSpace))
			break
		}
		got = append(got, bn)
	}
	assert.Len(got, 29)
	assert.Equal(common.Bnum(3), got[0], "list starts at the first data block")
	assert.Equal(common.Bnum(31), got[28])
	assert.Equal(common.NULLBNUM, a.Head())
}

func TestFreeIsLIFO(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDisk(16)
	a := mkFormatted(t, d, 2)

	b1, err := a.AllocNum()
	assert.NoError(err)
	b2, err := a.AllocNum()
	assert.NoError(err)

	assert.NoError(a.FreeNum(b1))
	assert.NoError(a.FreeNum(b2))
	bn, err := a.AllocNum()
	assert.NoError(err)
	assert.Equal(b2, bn, "last returned block is the next allocated")
	bn, err = a.AllocNum()
	assert.NoError(err)
	assert.Equal(b1, bn)
}

func TestFreeRange(t *testing.T) {
	d := disk.NewMemDisk(16)
	a := mkFormatted(t, d, 2)

	for _, bn := range []common.Bnum{-1, 0, 1, 16, 100} {
		err := a.FreeNum(bn)
		assert.True(t, errors.Is(err, ErrBadBlock), "block %d", bn)
	}
	n, err := a.NumFree()
	assert.NoError(t, err)
	assert.Equal(t, uint64(14), n)
}

func TestAllocReadError(t *testing.T) {
	fd := disk.NewFaultyDisk(disk.NewMemDisk(8))
	a := mkFormatted(t, fd, 2)
	fd.FailRead(2)

	_, err := a.AllocNum()
	assert.True(t, errors.Is(err, disk.ErrInjected))
	assert.Equal(t, common.Bnum(2), a.Head(), "failed pop leaves the list alone")
}

func TestCorruptLink(t *testing.T) {
	d := disk.NewMemDisk(8)
	a := mkFormatted(t, d, 2)
	require.NoError(t, d.Write(2, mkFreeBlock(0)))

	_, err := a.AllocNum()
	assert.True(t, errors.Is(err, ErrCorrupted))
}
