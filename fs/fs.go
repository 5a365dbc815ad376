// Package fs is the storage engine: a flat namespace of files on one volume,
// opened through the file table and stored in free-list allocated blocks.
//
// Locking: each entry's lock guards its seek pointer and inode contents for
// the duration of an operation; fs.mu, the volume lock, guards the
// allocator, the directory, table membership and inode persists. Entry locks
// are always taken before fs.mu.
package fs

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"unicode/utf8"

	"github.com/mit-pdos/go-flatfs/common"
	"github.com/mit-pdos/go-flatfs/dir"
	"github.com/mit-pdos/go-flatfs/disk"
	"github.com/mit-pdos/go-flatfs/ftable"
	"github.com/mit-pdos/go-flatfs/inode"
	"github.com/mit-pdos/go-flatfs/super"
	"github.com/mit-pdos/go-flatfs/util"
)

var (
	ErrBadSize      = errors.New("invalid volume size")
	ErrBadName      = errors.New("invalid file name")
	ErrNameTooLong  = errors.New("file name too long")
	ErrFilesOpen    = errors.New("files are open")
	ErrTooManyFiles = errors.New("too many files")
	ErrNotReadable  = errors.New("entry not open for reading")
	ErrNotWritable  = errors.New("entry not open for writing")
	ErrBadWhence    = errors.New("invalid whence")
	ErrFileTooBig   = errors.New("file too big")
	ErrCorrupted    = errors.New("file system corrupted")
	ErrSyncDir      = errors.New("could not write directory")
)

// MaxFiles is the largest file count a volume of totalBlocks blocks can be
// formatted with: limited by the inode area and by the directory fitting in
// the root file.
func MaxFiles(totalBlocks uint64) uint64 {
	return util.Min(super.MaxInodes(totalBlocks),
		common.MAXFILESZ/dir.EncodedSize(1))
}

type FileSystem struct {
	mu  *sync.Mutex
	d   disk.Disk
	sb  *super.SuperBlock
	dir *dir.Directory
	ft  *ftable.FileTable
}

// MkFileSystem mounts the volume on d, formatting it if its superblock does
// not describe a volume of totalBlocks blocks, and restores the directory
// from the root file. Any error leaves the volume unusable.
func MkFileSystem(d disk.Disk, totalBlocks int64) (*FileSystem, error) {
	if totalBlocks < 0 {
		return nil, fmt.Errorf("mounting %d blocks: %w", totalBlocks, ErrBadSize)
	}
	sb, err := super.Initialize(d, uint64(totalBlocks))
	if err != nil {
		return nil, fmt.Errorf("mounting: %w", err)
	}
	if sb.InodeBlocks > MaxFiles(sb.TotalBlocks) {
		return nil, fmt.Errorf("mounting: %d files: %w", sb.InodeBlocks, ErrTooManyFiles)
	}
	mu := new(sync.Mutex)
	root := dir.MkDirectory(sb.InodeBlocks)
	fs := &FileSystem{
		mu:  mu,
		d:   d,
		sb:  sb,
		dir: root,
		ft:  ftable.MkFileTable(d, root, mu),
	}
	if err := fs.loadDir(); err != nil {
		return nil, fmt.Errorf("mounting: restoring directory: %w", err)
	}
	util.DPrintf(1, "mounted %d blocks, %d files: %v\n",
		sb.TotalBlocks, sb.InodeBlocks, fs.List())
	return fs, nil
}

func (fs *FileSystem) loadDir() error {
	e, err := fs.ft.Falloc(dir.RootName, ftable.READ)
	if err != nil {
		return err
	}
	defer fs.Close(e)
	sz := fs.Size(e)
	if sz == 0 {
		return nil
	}
	data := make([]byte, sz)
	n, err := fs.Read(e, data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("read %d of %d bytes: %w", n, len(data), ErrCorrupted)
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.dir.Decode(data)
}

// syncDir writes the directory into the root file in place; its size never
// changes for a given format.
func (fs *FileSystem) syncDir() error {
	e, err := fs.ft.Falloc(dir.RootName, ftable.READWRITE)
	if err != nil {
		return err
	}
	fs.mu.Lock()
	data := fs.dir.Encode()
	fs.mu.Unlock()
	_, err = fs.Write(e, data)
	if err := fs.Close(e); err != nil {
		util.Warnf("closing root file: %v", err)
	}
	return err
}

// Format replaces the volume with an empty one that holds files files. It is
// refused while any file is open.
func (fs *FileSystem) Format(files uint64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.ft.Fempty() {
		return ErrFilesOpen
	}
	if limit := MaxFiles(fs.sb.TotalBlocks); files > limit {
		return fmt.Errorf("formatting %d files, at most %d: %w",
			files, limit, ErrTooManyFiles)
	}
	if err := fs.sb.Format(files); err != nil {
		return err
	}
	if err := fs.sb.Sync(); err != nil {
		return err
	}
	fs.dir = dir.MkDirectory(files)
	fs.ft.Reset(fs.dir)
	util.DPrintf(1, "formatted %d files\n", files)
	return nil
}

func checkName(name string) error {
	if name == "" || name == dir.RootName || !utf8.ValidString(name) {
		return fmt.Errorf("%q: %w", name, ErrBadName)
	}
	if dir.NameLen(name) > common.MAXNAMELEN {
		return fmt.Errorf("%q: %w", name, ErrNameTooLong)
	}
	return nil
}

// Open opens name in mode, creating it for the writable modes. It waits while
// the file is held in a conflicting mode. WRITE truncates the file; APPEND
// starts at its end.
func (fs *FileSystem) Open(name string, mode ftable.Mode) (*ftable.Entry, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%q: %w", mode, ftable.ErrBadMode)
	}
	e, err := fs.ft.Falloc(name, mode)
	if err != nil {
		return nil, err
	}
	e.Lock()
	defer e.Unlock()
	switch mode {
	case ftable.WRITE:
		if e.Inode.RefCount <= 1 {
			err = fs.truncate(e)
		}
	case ftable.APPEND:
		e.SeekPtr = int64(e.Inode.Length)
	}
	if err != nil {
		if err := fs.ft.Ffree(e); err != nil {
			util.Warnf("closing %q after failed open: %v", name, err)
		}
		return nil, err
	}
	return e, nil
}

func (fs *FileSystem) Close(e *ftable.Entry) error {
	e.Lock()
	defer e.Unlock()
	return fs.ft.Ffree(e)
}

func (fs *FileSystem) Size(e *ftable.Entry) int64 {
	e.Lock()
	defer e.Unlock()
	return int64(e.Inode.Length)
}

// truncate frees every block of e's file and persists it empty. Requires the
// entry lock.
func (fs *FileSystem) truncate(e *ftable.Entry) error {
	ip := e.Inode
	fs.mu.Lock()
	defer fs.mu.Unlock()
	blk, ind, err := ip.UnregisterIndexBlock(fs.d)
	if err != nil {
		return err
	}
	var bns []common.Bnum
	for _, bn := range ip.Direct {
		if bn != common.NULLBNUM {
			bns = append(bns, bn)
		}
	}
	if blk != nil {
		bns = append(bns, inode.IndirectEntries(blk)...)
		bns = append(bns, ind)
	}
	for _, bn := range bns {
		if err := fs.sb.ReturnBlock(bn); err != nil {
			util.Warnf("truncating inode %d: %v", e.Inum, err)
		}
	}
	ip.Reset()
	util.DPrintf(3, "truncate inode %d: freed %d blocks\n", e.Inum, len(bns))
	return ip.Persist(fs.d, e.Inum)
}

// Read fills b from the seek pointer, stopping at the end of the file. A
// zero count at the end of the file is not an error.
func (fs *FileSystem) Read(e *ftable.Entry, b []byte) (int, error) {
	e.Lock()
	defer e.Unlock()
	if e.Closed() {
		return 0, ftable.ErrNotOpen
	}
	if !e.Mode.IsReadable() {
		return 0, ErrNotReadable
	}
	ip := e.Inode
	want := len(b)
	if left := int64(ip.Length) - e.SeekPtr; left < int64(want) {
		want = int(left)
	}
	n := 0
	for n < want {
		bn, err := ip.FindTargetBlock(fs.d, e.SeekPtr)
		if err != nil {
			return n, err
		}
		if bn == common.NULLBNUM {
			return n, fmt.Errorf("inode %d: no block at offset %d: %w",
				e.Inum, e.SeekPtr, ErrCorrupted)
		}
		blk, err := fs.d.Read(uint64(bn))
		if err != nil {
			return n, err
		}
		off := uint64(e.SeekPtr) % disk.BlockSize
		c := copy(b[n:want], blk[off:])
		n += c
		e.SeekPtr += int64(c)
	}
	return n, nil
}

// Write copies b into the file at the seek pointer, growing it as needed.
// Each block touched costs a read and a write.
func (fs *FileSystem) Write(e *ftable.Entry, b []byte) (int, error) {
	e.Lock()
	defer e.Unlock()
	if e.Closed() {
		return 0, ftable.ErrNotOpen
	}
	if !e.Mode.IsWritable() {
		return 0, ErrNotWritable
	}
	ip := e.Inode
	n := 0
	for n < len(b) {
		if uint64(e.SeekPtr) >= common.MAXFILESZ {
			return n, fmt.Errorf("inode %d: %w", e.Inum, ErrFileTooBig)
		}
		bn, err := fs.blockFor(e)
		if err != nil {
			return n, err
		}
		blk, err := fs.d.Read(uint64(bn))
		if err != nil {
			return n, err
		}
		off := uint64(e.SeekPtr) % disk.BlockSize
		c := copy(blk[off:], b[n:])
		if err := fs.d.Write(uint64(bn), blk); err != nil {
			return n, err
		}
		n += c
		e.SeekPtr += int64(c)
		if e.SeekPtr > int64(ip.Length) {
			ip.Length = int32(e.SeekPtr)
			fs.mu.Lock()
			err := ip.Persist(fs.d, e.Inum)
			fs.mu.Unlock()
			if err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

// blockFor returns the block under e's seek pointer, allocating it (and the
// indirect block, if this is the first block past the direct range) when
// there is none. A failed allocation returns every block it took. Requires
// the entry lock.
func (fs *FileSystem) blockFor(e *ftable.Entry) (common.Bnum, error) {
	ip := e.Inode
	off := e.SeekPtr
	bn, err := ip.FindTargetBlock(fs.d, off)
	if err != nil || bn != common.NULLBNUM {
		return bn, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	bn, err = fs.sb.GetFreeBlock()
	if err != nil {
		return common.NULLBNUM, err
	}
	err = ip.RegisterTargetBlock(fs.d, off, bn)
	if errors.Is(err, inode.ErrIndirectNull) {
		err = fs.addIndirect(ip, off, bn)
	}
	if err != nil {
		fs.returnBlock(bn)
		return common.NULLBNUM, fmt.Errorf("inode %d: allocating at %d: %w",
			e.Inum, off, err)
	}
	if err := ip.Persist(fs.d, e.Inum); err != nil {
		return common.NULLBNUM, err
	}
	util.DPrintf(5, "inode %d: block %d at offset %d\n", e.Inum, bn, off)
	return bn, nil
}

// addIndirect allocates the indirect block and registers bn as its first
// entry, undoing both on failure. Requires the volume lock.
func (fs *FileSystem) addIndirect(ip *inode.Inode, off int64, bn common.Bnum) error {
	ind, err := fs.sb.GetFreeBlock()
	if err != nil {
		return err
	}
	if err := ip.RegisterIndexBlock(fs.d, ind); err != nil {
		fs.returnBlock(ind)
		return err
	}
	if err := ip.RegisterTargetBlock(fs.d, off, bn); err != nil {
		ip.Indirect = common.NULLBNUM
		fs.returnBlock(ind)
		return err
	}
	return nil
}

func (fs *FileSystem) returnBlock(bn common.Bnum) {
	if err := fs.sb.ReturnBlock(bn); err != nil {
		util.Warnf("returning block %d: %v", bn, err)
	}
}

// Seek moves e's seek pointer, clamping the result to [0, size].
func (fs *FileSystem) Seek(e *ftable.Entry, offset int64, whence int) (int64, error) {
	e.Lock()
	defer e.Unlock()
	if e.Closed() {
		return 0, ftable.ErrNotOpen
	}
	length := int64(e.Inode.Length)
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = e.SeekPtr
	case io.SeekEnd:
		base = length
	default:
		return e.SeekPtr, fmt.Errorf("%d: %w", whence, ErrBadWhence)
	}
	e.SeekPtr = clampAdd(base, offset, length)
	return e.SeekPtr, nil
}

// clampAdd returns base+offset clamped to [0, length], without overflowing.
// Requires 0 <= base <= length.
func clampAdd(base, offset, length int64) int64 {
	if offset > length-base {
		return length
	}
	if offset < -base {
		return 0
	}
	return base + offset
}

// Delete removes name and frees its blocks. It fails with ftable.ErrBusy
// while the file is open anywhere. An ErrSyncDir error means the file is gone
// but the directory on disk may still list it until the next Sync.
func (fs *FileSystem) Delete(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	e, err := fs.ft.TryFalloc(name, ftable.WRITE)
	if err != nil {
		return err
	}
	e.Lock()
	err = fs.truncate(e)
	if err == nil {
		fs.mu.Lock()
		fs.dir.Free(e.Inum)
		fs.mu.Unlock()
	}
	if err := fs.ft.Ffree(e); err != nil {
		util.Warnf("closing deleted %q: %v", name, err)
	}
	e.Unlock()
	if err != nil {
		return err
	}
	util.DPrintf(1, "deleted %q (inode %d)\n", name, e.Inum)
	if err := fs.syncDir(); err != nil {
		return fmt.Errorf("deleted %q: %w: %w", name, ErrSyncDir, err)
	}
	return nil
}

// Sync writes the directory and the superblock. The superblock is written
// even if the directory cannot be.
func (fs *FileSystem) Sync() error {
	dirErr := fs.syncDir()
	if dirErr != nil {
		util.Warnf("sync: writing directory: %v", dirErr)
		dirErr = fmt.Errorf("%w: %w", ErrSyncDir, dirErr)
	}
	fs.mu.Lock()
	sbErr := fs.sb.Sync()
	fs.mu.Unlock()
	if err := errors.Join(dirErr, sbErr); err != nil {
		return err
	}
	return fs.d.Barrier()
}

// List returns the names of all files.
func (fs *FileSystem) List() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.dir.Names()
}

type Stats struct {
	TotalBlocks    uint64
	FirstDataBlock uint64
	FreeBlocks     uint64
	MaxFiles       uint64
	Files          uint64
}

func (fs *FileSystem) Stat() (Stats, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	free, err := fs.sb.NumFree()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		TotalBlocks:    fs.sb.TotalBlocks,
		FirstDataBlock: uint64(fs.sb.FirstDataBlock()),
		FreeBlocks:     free,
		// slot 0 is the root
		MaxFiles: fs.sb.InodeBlocks - 1,
		Files:    uint64(len(fs.dir.Names())),
	}, nil
}
