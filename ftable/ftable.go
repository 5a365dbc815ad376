// Package ftable is the open-file table: the registry of open entries and
// the point where opens of the same inode are serialized, readers sharing
// and writers excluding everyone.
package ftable

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mit-pdos/go-flatfs/common"
	"github.com/mit-pdos/go-flatfs/dir"
	"github.com/mit-pdos/go-flatfs/disk"
	"github.com/mit-pdos/go-flatfs/inode"
	"github.com/mit-pdos/go-flatfs/lockmap"
	"github.com/mit-pdos/go-flatfs/util"
)

var (
	ErrNotFound = errors.New("file not found")
	ErrDirFull  = errors.New("directory full")
	ErrNotOpen  = errors.New("entry not open")
	ErrBusy     = errors.New("file in use")
)

// Entry is one open of a file. Entries of the same inode share Inode.
// SeekPtr and Inode are guarded by the entry lock.
type Entry struct {
	mu      sync.Mutex
	Inode   *inode.Inode
	Inum    common.Inum
	Mode    Mode
	SeekPtr int64
	closed  bool
}

func (e *Entry) Lock() {
	e.mu.Lock()
}

func (e *Entry) Unlock() {
	e.mu.Unlock()
}

// Closed reports whether e has been released. Requires the entry lock.
func (e *Entry) Closed() bool {
	return e.closed
}

// FileTable shares the volume lock with its owner; the directory, the live
// inodes and table membership are only touched with it held.
type FileTable struct {
	mu    *sync.Mutex
	d     disk.Disk
	dir   *dir.Directory
	locks *lockmap.LockMap
	live  map[common.Inum]*inode.Inode
	table map[*Entry]bool
}

func MkFileTable(d disk.Disk, dir *dir.Directory, mu *sync.Mutex) *FileTable {
	return &FileTable{
		mu:    mu,
		d:     d,
		dir:   dir,
		locks: lockmap.MkLockMap(),
		live:  make(map[common.Inum]*inode.Inode),
		table: make(map[*Entry]bool),
	}
}

// Reset switches to a new directory. Requires the volume lock and an empty
// table.
func (ft *FileTable) Reset(dir *dir.Directory) {
	ft.dir = dir
	ft.live = make(map[common.Inum]*inode.Inode)
}

// Fempty reports whether no entries are open. Requires the volume lock.
func (ft *FileTable) Fempty() bool {
	return len(ft.table) == 0
}

// RefCount is the number of open entries of inum. Requires the volume lock.
func (ft *FileTable) RefCount(inum common.Inum) int16 {
	ip, ok := ft.live[inum]
	if !ok {
		return 0
	}
	return ip.RefCount
}

// Falloc opens name, waiting while another entry holds the inode in a
// conflicting mode. A missing name is created for writable modes.
func (ft *FileTable) Falloc(name string, mode Mode) (*Entry, error) {
	return ft.falloc(name, mode, true)
}

// TryFalloc opens an existing file without waiting: ErrBusy if the mode
// conflicts with an open entry, ErrNotFound if name is absent.
func (ft *FileTable) TryFalloc(name string, mode Mode) (*Entry, error) {
	return ft.falloc(name, mode, false)
}

// lookup resolves name, creating it if allowed. Requires the volume lock.
func (ft *FileTable) lookup(name string, mode Mode, create bool) (common.Inum, error) {
	inum := ft.dir.Lookup(name)
	if inum != common.NULLINUM {
		return inum, nil
	}
	if !create || !mode.IsWritable() {
		return common.NULLINUM, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	inum = ft.dir.Alloc(name)
	if inum == common.NULLINUM {
		return common.NULLINUM, fmt.Errorf("creating %q: %w", name, ErrDirFull)
	}
	// the slot may have held a deleted file; start from a clean inode
	if err := inode.MkInode().Persist(ft.d, inum); err != nil {
		ft.dir.Free(inum)
		return common.NULLINUM, fmt.Errorf("creating %q: %w", name, err)
	}
	util.DPrintf(1, "create %q -> inode %d\n", name, inum)
	return inum, nil
}

func (ft *FileTable) falloc(name string, mode Mode, wait bool) (*Entry, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%q: %w", mode, ErrBadMode)
	}
	excl := mode.IsWritable()
	for {
		ft.mu.Lock()
		inum, err := ft.lookup(name, mode, wait)
		ft.mu.Unlock()
		if err != nil {
			return nil, err
		}

		if wait {
			ft.locks.Acquire(uint64(inum), excl)
		} else if !ft.locks.TryAcquire(uint64(inum), excl) {
			return nil, fmt.Errorf("%q: %w", name, ErrBusy)
		}

		ft.mu.Lock()
		if ft.dir.Lookup(name) != inum {
			// deleted, or the volume reformatted, while we waited
			ft.mu.Unlock()
			ft.locks.Release(uint64(inum), excl)
			util.DPrintf(1, "falloc %q: inode %d changed, retrying\n", name, inum)
			continue
		}
		e, err := ft.register(inum, mode)
		ft.mu.Unlock()
		if err != nil {
			ft.locks.Release(uint64(inum), excl)
			return nil, err
		}
		return e, nil
	}
}

// register creates an entry for inum, whose lock the caller holds. Requires
// the volume lock.
func (ft *FileTable) register(inum common.Inum, mode Mode) (*Entry, error) {
	ip, live := ft.live[inum]
	if !live {
		var err error
		ip, err = inode.ReadInode(ft.d, inum)
		if err != nil {
			return nil, err
		}
		// nothing is open, so these are left over from an unclean shutdown
		if ip.RefCount != 0 || ip.State == inode.READ || ip.State == inode.WRITE {
			util.Warnf("inode %d: clearing stale %v refcount %d",
				inum, ip.State, ip.RefCount)
			ip.RefCount = 0
		}
		ip.State = inode.USED
	}

	prev := ip.State
	ip.RefCount += 1
	if mode.IsWritable() {
		ip.State = inode.WRITE
	} else {
		ip.State = inode.READ
	}
	if err := ip.Persist(ft.d, inum); err != nil {
		ip.RefCount -= 1
		ip.State = prev
		return nil, err
	}
	ft.live[inum] = ip

	e := &Entry{Inode: ip, Inum: inum, Mode: mode}
	ft.table[e] = true
	util.DPrintf(5, "falloc inode %d mode %q refs %d\n", inum, mode, ip.RefCount)
	return e, nil
}

// Ffree releases e and wakes any opener waiting for its inode. The inode is
// persisted; an error doing so is returned, but e is released regardless.
func (ft *FileTable) Ffree(e *Entry) error {
	ft.mu.Lock()
	if !ft.table[e] {
		ft.mu.Unlock()
		return ErrNotOpen
	}
	delete(ft.table, e)
	e.closed = true
	ip := e.Inode
	ip.RefCount -= 1
	if ip.RefCount <= 0 {
		ip.RefCount = 0
		ip.State = inode.USED
		delete(ft.live, e.Inum)
	}
	err := ip.Persist(ft.d, e.Inum)
	ft.mu.Unlock()

	ft.locks.Release(uint64(e.Inum), e.Mode.IsWritable())
	util.DPrintf(5, "ffree inode %d mode %q\n", e.Inum, e.Mode)
	if err != nil {
		return fmt.Errorf("closing inode %d: %w", e.Inum, err)
	}
	return nil
}
