package alloc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mit-pdos/go-flatfs/common"
	"github.com/mit-pdos/go-flatfs/disk"
	"github.com/mit-pdos/go-flatfs/enc"
	"github.com/mit-pdos/go-flatfs/util"
)

var (
	ErrNoSpace   = errors.New("no free blocks")
	ErrBadBlock  = errors.New("block is not a data block")
	ErrCorrupted = errors.New("free list is corrupted")
)

// Alloc hands out data blocks from a free list. The list is a stack threaded
// through the free blocks themselves: the first 4 bytes of each free block
// hold the number of the next free block, -1 at the bottom.
//
// Returning the same block twice is not detected and corrupts the list.
type Alloc struct {
	lock  *sync.Mutex // protects head
	d     disk.Disk
	start common.Bnum // first data block
	end   common.Bnum // one past the last data block
	head  common.Bnum // first free block, NULLBNUM once exhausted
}

func MkAlloc(d disk.Disk, start common.Bnum, end common.Bnum, head common.Bnum) *Alloc {
	a := &Alloc{
		lock:  new(sync.Mutex),
		d:     d,
		start: start,
		end:   end,
		head:  head,
	}
	return a
}

func mkFreeBlock(next common.Bnum) disk.Block {
	e := enc.NewEnc(disk.BlockSize)
	e.PutInt32(int32(next))
	return e.Finish()
}

func getNext(blk disk.Block) common.Bnum {
	dec := enc.NewDec(blk)
	return common.Bnum(dec.GetInt32())
}

// Format threads every data block onto the free list, in ascending order.
func (a *Alloc) Format() error {
	a.lock.Lock()
	defer a.lock.Unlock()
	for bn := a.start; bn < a.end; bn++ {
		next := bn + 1
		if next == a.end {
			next = common.NULLBNUM
		}
		if err := a.d.Write(uint64(bn), mkFreeBlock(next)); err != nil {
			return fmt.Errorf("formatting free list: %w", err)
		}
	}
	if a.start < a.end {
		a.head = a.start
	} else {
		a.head = common.NULLBNUM
	}
	util.DPrintf(1, "alloc: formatted [%d, %d)\n", a.start, a.end)
	return nil
}

func (a *Alloc) valid(bn common.Bnum) bool {
	return bn >= a.start && bn < a.end
}

// AllocNum pops the head of the free list.
func (a *Alloc) AllocNum() (common.Bnum, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.head < 0 {
		return common.NULLBNUM, ErrNoSpace
	}
	blk, err := a.d.Read(uint64(a.head))
	if err != nil {
		return common.NULLBNUM, fmt.Errorf("allocating block: %w", err)
	}
	next := getNext(blk)
	if next != common.NULLBNUM && !a.valid(next) {
		return common.NULLBNUM, fmt.Errorf(
			"allocating block: block %d links to %d: %w",
			a.head, next, ErrCorrupted)
	}
	bn := a.head
	a.head = next
	util.DPrintf(10, "AllocNum: %d next %d\n", bn, next)
	return bn, nil
}

// FreeNum pushes bn onto the free list, so it is the next block allocated.
func (a *Alloc) FreeNum(bn common.Bnum) error {
	if !a.valid(bn) {
		return fmt.Errorf("freeing block %d: %w", bn, ErrBadBlock)
	}
	a.lock.Lock()
	defer a.lock.Unlock()
	if err := a.d.Write(uint64(bn), mkFreeBlock(a.head)); err != nil {
		return fmt.Errorf("freeing block %d: %w", bn, err)
	}
	util.DPrintf(10, "FreeNum: %d next %d\n", bn, a.head)
	a.head = bn
	return nil
}

func (a *Alloc) Head() common.Bnum {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.head
}

// NumFree walks the free list and counts its blocks.
func (a *Alloc) NumFree() (uint64, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	var n uint64
	limit := uint64(a.end - a.start)
	for bn := a.head; bn != common.NULLBNUM; n++ {
		if n >= limit || !a.valid(bn) {
			return n, fmt.Errorf("walking free list at %d: %w", bn, ErrCorrupted)
		}
		blk, err := a.d.Read(uint64(bn))
		if err != nil {
			return n, fmt.Errorf("walking free list: %w", err)
		}
		bn = getNext(blk)
	}
	return n, nil
}
