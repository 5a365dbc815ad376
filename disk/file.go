package disk

import (
	"fmt"

	"golang.org/x/sys/unix"
)

var _ Disk = (*fileDisk)(nil)

type fileDisk struct {
	path      string
	fd        int
	numBlocks uint64
}

// NewFileDisk opens (creating if needed) a disk image at path. A regular file
// is resized to exactly numBlocks blocks.
func NewFileDisk(path string, numBlocks uint64) (Disk, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0666)
	if err != nil {
		return nil, fmt.Errorf("opening disk image `%s`: %w", path, err)
	}
	var stat unix.Stat_t
	err = unix.Fstat(fd, &stat)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stat of disk image `%s`: %w", path, err)
	}
	sz := int64(numBlocks * BlockSize)
	if (stat.Mode&unix.S_IFMT) == unix.S_IFREG && stat.Size != sz {
		err = unix.Ftruncate(fd, sz)
		if err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("resizing disk image `%s`: %w", path, err)
		}
	}
	return &fileDisk{path: path, fd: fd, numBlocks: numBlocks}, nil
}

func (d *fileDisk) ReadTo(a uint64, buf Block) error {
	if err := checkAccess(a, d.numBlocks, buf); err != nil {
		return fmt.Errorf("reading block %d: %w", a, err)
	}
	n, err := unix.Pread(d.fd, buf, int64(a*BlockSize))
	if err != nil {
		return fmt.Errorf("reading block %d of `%s`: %w", a, d.path, err)
	}
	if uint64(n) != BlockSize {
		return fmt.Errorf("reading block %d of `%s`: short read (%d bytes)",
			a, d.path, n)
	}
	return nil
}

func (d *fileDisk) Read(a uint64) (Block, error) {
	buf := make([]byte, BlockSize)
	if err := d.ReadTo(a, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *fileDisk) Write(a uint64, v Block) error {
	if err := checkAccess(a, d.numBlocks, v); err != nil {
		return fmt.Errorf("writing block %d: %w", a, err)
	}
	n, err := unix.Pwrite(d.fd, v, int64(a*BlockSize))
	if err != nil {
		return fmt.Errorf("writing block %d of `%s`: %w", a, d.path, err)
	}
	if uint64(n) != BlockSize {
		return fmt.Errorf("writing block %d of `%s`: short write (%d bytes)",
			a, d.path, n)
	}
	return nil
}

func (d *fileDisk) Size() uint64 {
	return d.numBlocks
}

func (d *fileDisk) Barrier() error {
	// NOTE: on macOS, this flushes to the drive but doesn't actually issue a
	// disk barrier; see https://golang.org/src/internal/poll/fd_fsync_darwin.go
	// for more details. The correct replacement is to issue a fcntl syscall with
	// cmd F_FULLFSYNC.
	if err := unix.Fsync(d.fd); err != nil {
		return fmt.Errorf("syncing `%s`: %w", d.path, err)
	}
	return nil
}

func (d *fileDisk) Close() error {
	if err := unix.Close(d.fd); err != nil {
		return fmt.Errorf("closing `%s`: %w", d.path, err)
	}
	return nil
}
