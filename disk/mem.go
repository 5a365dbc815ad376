package disk

import (
	"fmt"
	"sync"

	gdisk "github.com/tchajed/goose/machine/disk"
)

// sectorsPerPage is the number of 512-byte blocks packed into one goose
// block.
const sectorsPerPage = gdisk.BlockSize / BlockSize

var _ Disk = (*memDisk)(nil)

// memDisk is a volatile disk. The goose MemDisk underneath only deals in
// 4096-byte blocks, so each of its blocks holds sectorsPerPage of ours.
type memDisk struct {
	l         *sync.RWMutex // makes sector read-modify-write atomic
	pages     gdisk.Disk
	numBlocks uint64
}

func NewMemDisk(numBlocks uint64) Disk {
	npages := (numBlocks + sectorsPerPage - 1) / sectorsPerPage
	return &memDisk{
		l:         new(sync.RWMutex),
		pages:     gdisk.NewMemDisk(npages),
		numBlocks: numBlocks,
	}
}

func (d *memDisk) ReadTo(a uint64, buf Block) error {
	if err := checkAccess(a, d.numBlocks, buf); err != nil {
		return fmt.Errorf("reading block %d: %w", a, err)
	}
	d.l.RLock()
	page := d.pages.Read(a / sectorsPerPage)
	d.l.RUnlock()
	off := (a % sectorsPerPage) * BlockSize
	copy(buf, page[off:off+BlockSize])
	return nil
}

func (d *memDisk) Read(a uint64) (Block, error) {
	buf := make(Block, BlockSize)
	if err := d.ReadTo(a, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *memDisk) Write(a uint64, v Block) error {
	if err := checkAccess(a, d.numBlocks, v); err != nil {
		return fmt.Errorf("writing block %d: %w", a, err)
	}
	d.l.Lock()
	defer d.l.Unlock()
	pn := a / sectorsPerPage
	page := d.pages.Read(pn)
	off := (a % sectorsPerPage) * BlockSize
	copy(page[off:off+BlockSize], v)
	d.pages.Write(pn, page)
	return nil
}

func (d *memDisk) Size() uint64 {
	// this never changes so we assume it's safe to run lock-free
	return d.numBlocks
}

func (d *memDisk) Barrier() error { return nil }

func (d *memDisk) Close() error { return nil }
