package inode

import (
	"errors"
	"fmt"

	"github.com/mit-pdos/go-flatfs/addr"
	"github.com/mit-pdos/go-flatfs/buf"
	"github.com/mit-pdos/go-flatfs/common"
	"github.com/mit-pdos/go-flatfs/disk"
	"github.com/mit-pdos/go-flatfs/enc"
	"github.com/mit-pdos/go-flatfs/util"
)

type State int16

const (
	UNUSED State = 0
	USED   State = 1
	READ   State = 2
	WRITE  State = 3
)

func (s State) String() string {
	switch s {
	case UNUSED:
		return "unused"
	case USED:
		return "used"
	case READ:
		return "read"
	case WRITE:
		return "write"
	default:
		return fmt.Sprintf("state(%d)", int16(s))
	}
}

var (
	ErrBlockRegistered = errors.New("block already registered")
	ErrPrecBlockUnused = errors.New("preceding block unused")
	ErrIndirectNull    = errors.New("indirect block not registered")
	ErrDirectNotFull   = errors.New("direct blocks not all registered")
	ErrOutOfRange      = errors.New("offset beyond maximum file size")
	ErrInvalidBlock    = errors.New("invalid block number")
)

// Inode is the 32-byte on-disk inode:
//
//	int32 length, int16 refCount, int16 state, int16 direct[11], int16 indirect
//
// Block pointers are filled contiguously from direct[0]; the indirect block
// is only registered once all direct pointers are in use, and its own slots
// are filled contiguously as well. Unused pointers are NULLBNUM.
type Inode struct {
	Length   int32
	RefCount int16
	State    State
	Direct   [common.NDIRECT]common.Bnum
	Indirect common.Bnum
}

// MkInode returns the inode of a newly created, empty file.
func MkInode() *Inode {
	ip := &Inode{State: USED}
	ip.clearBlocks()
	return ip
}

// MkUnusedInode returns the inode format writes to every slot.
func MkUnusedInode() *Inode {
	ip := &Inode{State: UNUSED}
	ip.clearBlocks()
	return ip
}

func (ip *Inode) clearBlocks() {
	for i := range ip.Direct {
		ip.Direct[i] = common.NULLBNUM
	}
	ip.Indirect = common.NULLBNUM
}

// Reset drops the block map and size. The caller is responsible for freeing
// the blocks first.
func (ip *Inode) Reset() {
	ip.Length = 0
	ip.clearBlocks()
}

func (ip *Inode) String() string {
	return fmt.Sprintf("len %d ref %d %v %v ind %d", ip.Length, ip.RefCount,
		ip.State, ip.Direct, ip.Indirect)
}

func (ip *Inode) Encode() []byte {
	e := enc.NewEnc(common.INODESZ)
	e.PutInt32(ip.Length)
	e.PutInt16(ip.RefCount)
	e.PutInt16(int16(ip.State))
	ptrs := make([]int16, 0, common.NDIRECT+1)
	for _, bn := range ip.Direct {
		ptrs = append(ptrs, int16(bn))
	}
	e.PutInt16s(append(ptrs, int16(ip.Indirect)))
	return e.Finish()
}

func Decode(data []byte) *Inode {
	dec := enc.NewDec(data)
	ip := &Inode{}
	ip.Length = dec.GetInt32()
	ip.RefCount = dec.GetInt16()
	ip.State = State(dec.GetInt16())
	ptrs := dec.GetInt16s(common.NDIRECT + 1)
	for i := range ip.Direct {
		ip.Direct[i] = common.Bnum(ptrs[i])
	}
	ip.Indirect = common.Bnum(ptrs[common.NDIRECT])
	return ip
}

// ReadInode loads inode inum from its slot in the inode area.
func ReadInode(d disk.Disk, inum common.Inum) (*Inode, error) {
	if inum < 0 {
		return nil, fmt.Errorf("reading inode %d: %w", inum, common.ErrBadInum)
	}
	b, err := buf.Load(d, addr.MkInodeAddr(inum), common.INODESZ)
	if err != nil {
		return nil, fmt.Errorf("reading inode %d: %w", inum, err)
	}
	ip := Decode(b.Data)
	util.DPrintf(5, "ReadInode %d: %v\n", inum, ip)
	return ip, nil
}

// Persist writes ip to the slot of inode inum. The other 15 inodes sharing
// the block are preserved, so concurrent persists of inodes in one block
// must be serialized by the caller.
func (ip *Inode) Persist(d disk.Disk, inum common.Inum) error {
	if inum < 0 {
		return fmt.Errorf("writing inode %d: %w", inum, common.ErrBadInum)
	}
	b := buf.MkBuf(addr.MkInodeAddr(inum), common.INODESZ, ip.Encode())
	if err := b.WriteDirect(d); err != nil {
		return fmt.Errorf("writing inode %d: %w", inum, err)
	}
	util.DPrintf(5, "Persist %d: %v\n", inum, ip)
	return nil
}

func blockIndex(off int64) uint64 {
	return uint64(off) / disk.BlockSize
}

func (ip *Inode) readIndirect(d disk.Disk) (disk.Block, error) {
	blk, err := d.Read(uint64(ip.Indirect))
	if err != nil {
		return nil, fmt.Errorf("reading indirect block %d: %w", ip.Indirect, err)
	}
	return blk, nil
}

// FindTargetBlock returns the block holding byte off of the file, or
// NULLBNUM if no block is registered for it.
func (ip *Inode) FindTargetBlock(d disk.Disk, off int64) (common.Bnum, error) {
	if off < 0 {
		return common.NULLBNUM, nil
	}
	bi := blockIndex(off)
	if bi < common.NDIRECT {
		return ip.Direct[bi], nil
	}
	if bi >= common.MAXBLKS || ip.Indirect == common.NULLBNUM {
		return common.NULLBNUM, nil
	}
	blk, err := ip.readIndirect(d)
	if err != nil {
		return common.NULLBNUM, err
	}
	return common.Bnum(enc.Int16At(blk, bi-common.NDIRECT)), nil
}

// RegisterTargetBlock assigns bn to the slot for byte off. Slots must be
// filled in order; it never allocates the indirect block itself and instead
// reports ErrIndirectNull when off needs one.
func (ip *Inode) RegisterTargetBlock(d disk.Disk, off int64, bn common.Bnum) error {
	if bn < 0 || off < 0 {
		return ErrInvalidBlock
	}
	bi := blockIndex(off)
	if bi < common.NDIRECT {
		if ip.Direct[bi] != common.NULLBNUM {
			return ErrBlockRegistered
		}
		if bi > 0 && ip.Direct[bi-1] == common.NULLBNUM {
			return ErrPrecBlockUnused
		}
		ip.Direct[bi] = bn
		return nil
	}
	if bi >= common.MAXBLKS {
		return ErrOutOfRange
	}
	if ip.Indirect == common.NULLBNUM {
		if bi == common.NDIRECT && ip.Direct[common.NDIRECT-1] != common.NULLBNUM {
			return ErrIndirectNull
		}
		return ErrPrecBlockUnused
	}

	blk, err := ip.readIndirect(d)
	if err != nil {
		return err
	}
	k := bi - common.NDIRECT
	if enc.Int16At(blk, k) != int16(common.NULLBNUM) {
		return ErrBlockRegistered
	}
	if k > 0 && enc.Int16At(blk, k-1) == int16(common.NULLBNUM) {
		return ErrPrecBlockUnused
	}
	enc.PutInt16At(blk, k, int16(bn))
	if err := d.Write(uint64(ip.Indirect), blk); err != nil {
		return fmt.Errorf("writing indirect block %d: %w", ip.Indirect, err)
	}
	return nil
}

// RegisterIndexBlock makes bn the indirect block, with every slot unused.
// Only allowed once all direct slots are in use.
func (ip *Inode) RegisterIndexBlock(d disk.Disk, bn common.Bnum) error {
	if bn < 0 {
		return ErrInvalidBlock
	}
	for _, b := range ip.Direct {
		if b == common.NULLBNUM {
			return ErrDirectNotFull
		}
	}
	if ip.Indirect != common.NULLBNUM {
		return ErrBlockRegistered
	}
	blk := make(disk.Block, disk.BlockSize)
	for k := uint64(0); k < common.NINDIRECT; k++ {
		enc.PutInt16At(blk, k, int16(common.NULLBNUM))
	}
	if err := d.Write(uint64(bn), blk); err != nil {
		return fmt.Errorf("initializing indirect block %d: %w", bn, err)
	}
	ip.Indirect = bn
	return nil
}

// UnregisterIndexBlock detaches the indirect block and returns its raw
// contents, so the caller can free the blocks it points to (and the indirect
// block itself, whose number is returned too). Returns nil if there is none.
func (ip *Inode) UnregisterIndexBlock(d disk.Disk) (disk.Block, common.Bnum, error) {
	if ip.Indirect == common.NULLBNUM {
		return nil, common.NULLBNUM, nil
	}
	blk, err := ip.readIndirect(d)
	if err != nil {
		return nil, common.NULLBNUM, err
	}
	bn := ip.Indirect
	ip.Indirect = common.NULLBNUM
	return blk, bn, nil
}

// IndirectEntries decodes the registered pointers of a raw indirect block.
func IndirectEntries(blk disk.Block) []common.Bnum {
	var bns []common.Bnum
	for k := uint64(0); k < common.NINDIRECT; k++ {
		bn := common.Bnum(enc.Int16At(blk, k))
		if bn >= 0 {
			bns = append(bns, bn)
		}
	}
	return bns
}

// DataBlocks lists every data block of the file, in file order.
func (ip *Inode) DataBlocks(d disk.Disk) ([]common.Bnum, error) {
	var bns []common.Bnum
	for _, bn := range ip.Direct {
		if bn == common.NULLBNUM {
			return bns, nil
		}
		bns = append(bns, bn)
	}
	if ip.Indirect == common.NULLBNUM {
		return bns, nil
	}
	blk, err := ip.readIndirect(d)
	if err != nil {
		return nil, err
	}
	return append(bns, IndirectEntries(blk)...), nil
}
