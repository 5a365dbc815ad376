package disk

import (
	"errors"
	"fmt"
	"sync"
)

var ErrInjected = errors.New("injected I/O failure")

// FaultyDisk wraps a Disk and fails reads or writes of chosen blocks. It also
// counts I/O, which tests use to check how many device accesses an operation
// costs.
type FaultyDisk struct {
	Disk

	mu         *sync.Mutex
	readFails  map[uint64]bool
	writeFails map[uint64]bool
	failAll    bool
	reads      uint64
	writes     uint64
}

func NewFaultyDisk(d Disk) *FaultyDisk {
	return &FaultyDisk{
		Disk:       d,
		mu:         new(sync.Mutex),
		readFails:  make(map[uint64]bool),
		writeFails: make(map[uint64]bool),
	}
}

func (d *FaultyDisk) FailRead(a uint64) {
	d.mu.Lock()
	d.readFails[a] = true
	d.mu.Unlock()
}

func (d *FaultyDisk) FailWrite(a uint64) {
	d.mu.Lock()
	d.writeFails[a] = true
	d.mu.Unlock()
}

// FailAll makes every subsequent access fail until Heal.
func (d *FaultyDisk) FailAll() {
	d.mu.Lock()
	d.failAll = true
	d.mu.Unlock()
}

func (d *FaultyDisk) Heal() {
	d.mu.Lock()
	d.readFails = make(map[uint64]bool)
	d.writeFails = make(map[uint64]bool)
	d.failAll = false
	d.mu.Unlock()
}

// Counts returns the number of block reads and writes issued so far.
func (d *FaultyDisk) Counts() (uint64, uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads, d.writes
}

func (d *FaultyDisk) ReadTo(a uint64, b Block) error {
	d.mu.Lock()
	d.reads += 1
	fail := d.failAll || d.readFails[a]
	d.mu.Unlock()
	if fail {
		return fmt.Errorf("reading block %d: %w", a, ErrInjected)
	}
	return d.Disk.ReadTo(a, b)
}

func (d *FaultyDisk) Read(a uint64) (Block, error) {
	buf := make(Block, BlockSize)
	if err := d.ReadTo(a, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *FaultyDisk) Write(a uint64, v Block) error {
	d.mu.Lock()
	d.writes += 1
	fail := d.failAll || d.writeFails[a]
	d.mu.Unlock()
	if fail {
		return fmt.Errorf("writing block %d: %w", a, ErrInjected)
	}
	return d.Disk.Write(a, v)
}
