// Package super manages the volume header in block 0 and the free-block list
// it anchors.
package super

import (
	"errors"
	"fmt"

	"github.com/mit-pdos/go-flatfs/alloc"
	"github.com/mit-pdos/go-flatfs/common"
	"github.com/mit-pdos/go-flatfs/disk"
	"github.com/mit-pdos/go-flatfs/enc"
	"github.com/mit-pdos/go-flatfs/inode"
	"github.com/mit-pdos/go-flatfs/util"
)

// DefaultInodeBlocks is the number of inodes an auto-formatted volume gets.
const DefaultInodeBlocks uint64 = 64

var (
	ErrBadSize        = errors.New("invalid volume size")
	ErrBadInodeBlocks = errors.New("invalid inode count")
	ErrSync           = errors.New("could not write superblock")
)

// SuperBlock is the in-memory copy of block 0:
//
//	int32 totalBlocks, int32 inodeBlocks, int32 freeListHead
//
// inodeBlocks is the number of inodes the volume was formatted with, which
// is also the capacity of the root directory.
type SuperBlock struct {
	d           disk.Disk
	TotalBlocks uint64
	InodeBlocks uint64
	alloc       *alloc.Alloc
}

type header struct {
	totalBlocks int32
	inodeBlocks int32
	freeList    int32
}

func decodeHeader(blk disk.Block) header {
	dec := enc.NewDec(blk)
	return header{
		totalBlocks: dec.GetInt32(),
		inodeBlocks: dec.GetInt32(),
		freeList:    dec.GetInt32(),
	}
}

func (h header) encode() disk.Block {
	e := enc.NewEnc(disk.BlockSize)
	e.PutInt32(h.totalBlocks)
	e.PutInt32(h.inodeBlocks)
	e.PutInt32(h.freeList)
	return e.Finish()
}

// valid reports whether h describes a formatted volume of totalBlocks blocks.
// An exhausted free list (-1) is a legitimate state.
func (h header) valid(totalBlocks uint64) bool {
	if uint64(h.totalBlocks) != totalBlocks || h.inodeBlocks <= 0 {
		return false
	}
	start := common.FirstDataBlock(uint64(h.inodeBlocks))
	if uint64(start) >= totalBlocks {
		return false
	}
	head := common.Bnum(h.freeList)
	return head == common.NULLBNUM ||
		(head >= start && uint64(head) < totalBlocks)
}

// Initialize loads the superblock of a volume with totalBlocks blocks. A
// header that does not describe such a volume is treated as an unformatted
// disk, which is formatted with DefaultInodeBlocks inodes (fewer if the
// volume is too small).
func Initialize(d disk.Disk, totalBlocks uint64) (*SuperBlock, error) {
	if totalBlocks < 2 || totalBlocks > common.MAXBLOCKS {
		return nil, fmt.Errorf("loading superblock: %d blocks: %w",
			totalBlocks, ErrBadSize)
	}
	if d.Size() < totalBlocks {
		return nil, fmt.Errorf(
			"loading superblock: disk has %d blocks, want %d: %w",
			d.Size(), totalBlocks, ErrBadSize)
	}
	blk, err := d.Read(uint64(common.SUPERBLK))
	if err != nil {
		return nil, fmt.Errorf("loading superblock: %w", err)
	}
	h := decodeHeader(blk)
	sb := &SuperBlock{d: d, TotalBlocks: totalBlocks}
	if !h.valid(totalBlocks) {
		util.Warnf("superblock invalid (%+v); auto-formatting the disk", h)
		if err := sb.Format(util.Min(DefaultInodeBlocks, MaxInodes(totalBlocks))); err != nil {
			return nil, fmt.Errorf("loading superblock: %w", err)
		}
		if err := sb.Sync(); err != nil {
			return nil, fmt.Errorf("loading superblock: %w", err)
		}
		return sb, nil
	}
	sb.InodeBlocks = uint64(h.inodeBlocks)
	sb.alloc = alloc.MkAlloc(d, sb.FirstDataBlock(),
		common.Bnum(totalBlocks), common.Bnum(h.freeList))
	util.DPrintf(1, "superblock: total %d inodes %d free list %d\n",
		h.totalBlocks, h.inodeBlocks, h.freeList)
	return sb, nil
}

// MaxInodes is the largest inode count Format accepts for a volume of
// totalBlocks blocks: the inodes must leave at least one data block.
func MaxInodes(totalBlocks uint64) uint64 {
	if totalBlocks < 2 {
		return 0
	}
	return (totalBlocks - 2) * common.INODEBLK
}

func (sb *SuperBlock) FirstDataBlock() common.Bnum {
	return common.FirstDataBlock(sb.InodeBlocks)
}

// Format lays out inodeBlocks unused inodes and threads all remaining blocks
// onto the free list. The header is not written until Sync. On error the
// in-memory superblock still describes the previous format.
func (sb *SuperBlock) Format(inodeBlocks uint64) error {
	if inodeBlocks == 0 || inodeBlocks > MaxInodes(sb.TotalBlocks) {
		return fmt.Errorf("formatting %d inodes on %d blocks: %w",
			inodeBlocks, sb.TotalBlocks, ErrBadInodeBlocks)
	}
	if err := sb.formatInodes(inodeBlocks); err != nil {
		return err
	}
	a := alloc.MkAlloc(sb.d, common.FirstDataBlock(inodeBlocks),
		common.Bnum(sb.TotalBlocks), common.NULLBNUM)
	if err := a.Format(); err != nil {
		return err
	}
	sb.InodeBlocks = inodeBlocks
	sb.alloc = a
	return nil
}

func (sb *SuperBlock) formatInodes(inodeBlocks uint64) error {
	unused := inode.MkUnusedInode().Encode()
	blk := make(disk.Block, disk.BlockSize)
	for off := uint64(0); off < disk.BlockSize; off += common.INODESZ {
		copy(blk[off:], unused)
	}
	for bn := common.SUPERBLK + 1; bn < common.FirstDataBlock(inodeBlocks); bn++ {
		if err := sb.d.Write(uint64(bn), blk); err != nil {
			return fmt.Errorf("formatting inode block %d: %w", bn, err)
		}
	}
	return nil
}

// GetFreeBlock takes a block off the free list.
func (sb *SuperBlock) GetFreeBlock() (common.Bnum, error) {
	return sb.alloc.AllocNum()
}

// ReturnBlock puts bn back on the free list.
func (sb *SuperBlock) ReturnBlock(bn common.Bnum) error {
	return sb.alloc.FreeNum(bn)
}

func (sb *SuperBlock) FreeListHead() common.Bnum {
	return sb.alloc.Head()
}

func (sb *SuperBlock) NumFree() (uint64, error) {
	return sb.alloc.NumFree()
}

// Sync writes the header to block 0. A volume whose header cannot be written
// cannot be trusted, so callers should treat the error as fatal.
func (sb *SuperBlock) Sync() error {
	h := header{
		totalBlocks: int32(sb.TotalBlocks),
		inodeBlocks: int32(sb.InodeBlocks),
		freeList:    int32(sb.alloc.Head()),
	}
	if err := sb.d.Write(uint64(common.SUPERBLK), h.encode()); err != nil {
		return fmt.Errorf("%w: %w", ErrSync, err)
	}
	return nil
}
