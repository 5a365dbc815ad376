package buf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-flatfs/addr"
	"github.com/mit-pdos/go-flatfs/disk"
)

func TestInstall(t *testing.T) {
	blk := make([]byte, disk.BlockSize)
	blk[31] = 0xAA
	b := MkBuf(addr.MkAddr(1, 32), 4, []byte{1, 2, 3, 4})
	b.Install(blk)
	assert.Equal(t, []byte{0xAA, 1, 2, 3, 4, 0}, blk[31:37])
}

func TestWriteDirectPreservesNeighbours(t *testing.T) {
	d := disk.NewMemDisk(4)
	full := make([]byte, disk.BlockSize)
	for i := range full {
		full[i] = 7
	}
	require.NoError(t, d.Write(2, full))

	b := MkBuf(addr.MkAddr(2, 64), 2, []byte{1, 2})
	require.NoError(t, b.WriteDirect(d))

	blk, err := d.Read(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 1, 2, 7}, blk[63:67])

	l, err := Load(d, addr.MkAddr(2, 64), 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, l.Data)
}
