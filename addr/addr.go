package addr

import (
	"github.com/mit-pdos/go-flatfs/common"
)

// Addr identifies the start of a disk object.
//
// Blkno is the block number containing the object, and Off is the location of
// the object within the block (expressed as a byte offset). The size of the
// object is determined by the context in which Addr is used.
type Addr struct {
	Blkno common.Bnum
	Off   uint64 // offset in bytes
}

func MkAddr(blkno common.Bnum, off uint64) Addr {
	return Addr{Blkno: blkno, Off: off}
}

// MkInodeAddr locates inode inum in the inode area that starts right after
// the superblock.
func MkInodeAddr(inum common.Inum) Addr {
	i := uint64(inum)
	blk := common.SUPERBLK + 1 + common.Bnum(i/common.INODEBLK)
	return MkAddr(blk, (i%common.INODEBLK)*common.INODESZ)
}
