package super

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-flatfs/alloc"
	"github.com/mit-pdos/go-flatfs/common"
	"github.com/mit-pdos/go-flatfs/disk"
	"github.com/mit-pdos/go-flatfs/inode"
)

func TestAutoFormat(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDisk(100)
	sb, err := Initialize(d, 100)
	require.NoError(t, err)

	assert.Equal(DefaultInodeBlocks, sb.InodeBlocks)
	assert.Equal(common.Bnum(5), sb.FirstDataBlock())
	n, err := sb.NumFree()
	assert.NoError(err)
	assert.Equal(uint64(95), n)

	blk, err := d.Read(0)
	require.NoError(t, err)
	assert.Equal([]byte{0, 0, 0, 100, 0, 0, 0, 64, 0, 0, 0, 5}, []byte(blk[:12]),
		"header is written big-endian on auto-format")

	ip, err := inode.ReadInode(d, 63)
	require.NoError(t, err)
	assert.Equal(inode.UNUSED, ip.State)
	assert.Equal(common.NULLBNUM, ip.Direct[0])
}

func TestReload(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDisk(64)
	sb, err := Initialize(d, 64)
	require.NoError(t, err)
	require.NoError(t, sb.Format(20))
	bn, err := sb.GetFreeBlock()
	require.NoError(t, err)
	assert.Equal(common.Bnum(3), bn, "20 inodes take blocks 1 and 2")
	require.NoError(t, sb.Sync())

	sb2, err := Initialize(d, 64)
	require.NoError(t, err)
	assert.Equal(uint64(20), sb2.InodeBlocks)
	assert.Equal(common.Bnum(4), sb2.FreeListHead())
	n, err := sb2.NumFree()
	assert.NoError(err)
	assert.Equal(uint64(64-3-1), n)

	assert.NoError(sb2.ReturnBlock(bn))
	assert.True(errors.Is(sb2.ReturnBlock(2), alloc.ErrBadBlock))
	assert.True(errors.Is(sb2.ReturnBlock(64), alloc.ErrBadBlock))
	bn2, err := sb2.GetFreeBlock()
	assert.NoError(err)
	assert.Equal(bn, bn2)
}

func TestFullVolumeNotWiped(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDisk(8)
	sb, err := Initialize(d, 8)
	require.NoError(t, err)
	require.NoError(t, sb.Format(16))
	for {
		if _, err := sb.GetFreeBlock(); err != nil {
			assert.True(errors.Is(err, alloc.ErrNoSpace))
			break
		}
	}
	require.NoError(t, sb.Sync())

	sb, err = Initialize(d, 8)
	require.NoError(t, err)
	assert.Equal(uint64(16), sb.InodeBlocks, "exhausted free list is a valid header")
	assert.Equal(common.NULLBNUM, sb.FreeListHead())
}

func TestMismatchedSizeReformats(t *testing.T) {
	d := disk.NewMemDisk(64)
	sb, err := Initialize(d, 64)
	require.NoError(t, err)
	require.NoError(t, sb.Format(3))
	require.NoError(t, sb.Sync())

	sb, err = Initialize(d, 40)
	require.NoError(t, err)
	assert.Equal(t, DefaultInodeBlocks, sb.InodeBlocks)
}

func TestFormatValidation(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDisk(10)
	sb, err := Initialize(d, 10)
	require.NoError(t, err)

	assert.True(errors.Is(sb.Format(0), ErrBadInodeBlocks))
	assert.Equal(uint64(128), MaxInodes(10))
	assert.True(errors.Is(sb.Format(129), ErrBadInodeBlocks))
	assert.NoError(sb.Format(128))
	n, err := sb.NumFree()
	assert.NoError(err)
	assert.Equal(uint64(1), n)

	_, err = Initialize(d, 1)
	assert.True(errors.Is(err, ErrBadSize))
	_, err = Initialize(d, 11)
	assert.True(errors.Is(err, ErrBadSize), "larger than the disk")
	_, err = Initialize(disk.NewMemDisk(8), common.MAXBLOCKS+1)
	assert.True(errors.Is(err, ErrBadSize))
}

func TestFailedFormatKeepsOldLayout(t *testing.T) {
	assert := assert.New(t)
	fd := disk.NewFaultyDisk(disk.NewMemDisk(64))
	sb, err := Initialize(fd, 64)
	require.NoError(t, err)
	require.Equal(t, DefaultInodeBlocks, sb.InodeBlocks)

	// 32 inodes need inode blocks 1 and 2
	fd.FailWrite(2)
	assert.True(errors.Is(sb.Format(32), disk.ErrInjected))
	assert.Equal(DefaultInodeBlocks, sb.InodeBlocks)
	assert.Equal(common.Bnum(5), sb.FirstDataBlock())
	assert.Equal(common.Bnum(5), sb.FreeListHead())
	fd.Heal()

	// inodes written, free list fails partway
	fd.FailWrite(10)
	assert.True(errors.Is(sb.Format(16), disk.ErrInjected))
	assert.Equal(DefaultInodeBlocks, sb.InodeBlocks)
	assert.Equal(common.Bnum(5), sb.FreeListHead())
	fd.Heal()

	require.NoError(t, sb.Format(16))
	assert.Equal(uint64(16), sb.InodeBlocks)
	assert.Equal(common.Bnum(2), sb.FreeListHead())
}

func TestSyncFailure(t *testing.T) {
	fd := disk.NewFaultyDisk(disk.NewMemDisk(32))
	sb, err := Initialize(fd, 32)
	require.NoError(t, err)
	fd.FailWrite(0)
	err = sb.Sync()
	assert.True(t, errors.Is(err, ErrSync))
	assert.True(t, errors.Is(err, disk.ErrInjected))

	_, err = Initialize(disk.NewFaultyDisk(disk.NewMemDisk(32)), 32)
	assert.NoError(t, err)
}
