// buf manages sub-block disk objects, to be packed into disk blocks
package buf

import (
	"fmt"

	"github.com/mit-pdos/go-flatfs/addr"
	"github.com/mit-pdos/go-flatfs/disk"
	"github.com/mit-pdos/go-flatfs/util"
)

// A Buf is a disk object (an inode, or a whole block) and the block it lives in
type Buf struct {
	Addr addr.Addr
	Sz   uint64 // number of bytes
	Data []byte
}

func MkBuf(addr addr.Addr, sz uint64, data []byte) *Buf {
	b := &Buf{
		Addr: addr,
		Sz:   sz,
		Data: data,
	}
	return b
}

// Load the bytes of a disk block into a new buf, as specified by addr. The
// buf aliases blk.
func MkBufLoad(addr addr.Addr, sz uint64, blk disk.Block) *Buf {
	data := blk[addr.Off : addr.Off+sz]
	b := &Buf{
		Addr: addr,
		Sz:   sz,
		Data: data,
	}
	return b
}

// Install the bytes from buf into blk.
func (buf *Buf) Install(blk disk.Block) {
	util.DPrintf(20, "%v: install\n", buf.Addr)
	if buf.Addr.Off+buf.Sz > uint64(len(blk)) {
		panic(fmt.Sprintf("install of %d bytes at %v overflows block",
			buf.Sz, buf.Addr))
	}
	copy(blk[buf.Addr.Off:buf.Addr.Off+buf.Sz], buf.Data[:buf.Sz])
}

// Load reads the containing block and returns the object at addr.
func Load(d disk.Disk, addr addr.Addr, sz uint64) (*Buf, error) {
	blk, err := d.Read(uint64(addr.Blkno))
	if err != nil {
		return nil, err
	}
	return MkBufLoad(addr, sz, blk), nil
}

// WriteDirect writes buf through to disk. A whole-block buf is written as is;
// anything smaller costs a read-modify-write of its block, since the disk has
// no partial-block writes.
func (buf *Buf) WriteDirect(d disk.Disk) error {
	if buf.Sz == disk.BlockSize {
		return d.Write(uint64(buf.Addr.Blkno), buf.Data)
	}
	blk, err := d.Read(uint64(buf.Addr.Blkno))
	if err != nil {
		return err
	}
	buf.Install(blk)
	return d.Write(uint64(buf.Addr.Blkno), blk)
}
