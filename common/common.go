package common

import (
	"errors"

	"github.com/mit-pdos/go-flatfs/disk"
	"github.com/mit-pdos/go-flatfs/util"
)

const (
	INODESZ  uint64 = 32 // on-disk size
	INODEBLK uint64 = 16 // inodes packed per inode block

	NDIRECT   uint64 = 11                  // direct pointers per inode
	NINDIRECT uint64 = disk.BlockSize / 2  // int16 pointers per indirect block
	MAXBLKS   uint64 = NDIRECT + NINDIRECT // blocks per file
	MAXFILESZ uint64 = MAXBLKS * disk.BlockSize

	MAXNAMELEN uint64 = 30 // characters per directory name

	// int16 block pointers limit the volume size
	MAXBLOCKS uint64 = 1<<15 - 1

	SUPERBLK Bnum = 0
)

type Inum int16
type Bnum int32

const (
	NULLINUM Inum = -1
	ROOTINUM Inum = 0
	NULLBNUM Bnum = -1
)

// InodeBlocks is the number of blocks that hold n inodes.
func InodeBlocks(n uint64) uint64 {
	return util.RoundUp(n, INODEBLK)
}

// FirstDataBlock is the first block after the superblock and n inodes.
func FirstDataBlock(n uint64) Bnum {
	return Bnum(InodeBlocks(n) + 1)
}

var ErrBadInum = errors.New("invalid inode number")
