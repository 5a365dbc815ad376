// Package dir implements the flat root directory: a fixed table mapping
// names to inode numbers, where slot i names inode i.
//
// The directory does not persist itself; its owner stores Encode()'s bytes as
// the contents of the root file (inode 0) and restores them with Decode.
package dir

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/mit-pdos/go-flatfs/common"
	"github.com/mit-pdos/go-flatfs/enc"
)

const (
	RootName = "/"

	// bytes per encoded name slot: MAXNAMELEN UTF-16 code units
	nameSlotSz = common.MAXNAMELEN * 2
	entrySz    = 4 + nameSlotSz
)

var ErrBadEncoding = errors.New("malformed directory encoding")

// Directory is the in-memory table. A zero length marks a free slot; name
// bytes of a freed slot are stale and never consulted.
type Directory struct {
	lengths []int32
	names   [][]uint16
}

func MkDirectory(n uint64) *Directory {
	dir := &Directory{
		lengths: make([]int32, n),
		names:   make([][]uint16, n),
	}
	for i := range dir.names {
		dir.names[i] = make([]uint16, common.MAXNAMELEN)
	}
	if n > 0 {
		dir.set(common.ROOTINUM, utf16.Encode([]rune(RootName)))
	}
	return dir
}

// NameLen is the length of name in directory units (UTF-16 code units).
func NameLen(name string) uint64 {
	return uint64(len(utf16.Encode([]rune(name))))
}

func (dir *Directory) Capacity() uint64 {
	return uint64(len(dir.lengths))
}

func (dir *Directory) set(inum common.Inum, units []uint16) {
	dir.lengths[inum] = int32(len(units))
	copy(dir.names[inum], units)
}

func (dir *Directory) name(inum common.Inum) string {
	return string(utf16.Decode(dir.names[inum][:dir.lengths[inum]]))
}

func truncateName(units []uint16) []uint16 {
	if uint64(len(units)) <= common.MAXNAMELEN {
		return units
	}
	units = units[:common.MAXNAMELEN]
	// don't leave half of a surrogate pair behind
	if last := units[len(units)-1]; last >= 0xd800 && last < 0xdc00 {
		units = units[:len(units)-1]
	}
	return units
}

// Alloc claims the first free slot after the root for name, storing at most
// MAXNAMELEN units of it. Returns NULLINUM for an empty name or a full
// directory. Alloc does not check for an existing entry with the same name.
func (dir *Directory) Alloc(name string) common.Inum {
	if name == "" {
		return common.NULLINUM
	}
	for i := 1; i < len(dir.lengths); i++ {
		if dir.lengths[i] == 0 {
			inum := common.Inum(i)
			dir.set(inum, truncateName(utf16.Encode([]rune(name))))
			return inum
		}
	}
	return common.NULLINUM
}

// Free releases the slot of inum. The root slot cannot be freed.
func (dir *Directory) Free(inum common.Inum) bool {
	if inum <= common.ROOTINUM || int(inum) >= len(dir.lengths) {
		return false
	}
	dir.lengths[inum] = 0
	return true
}

// Lookup finds name, comparing case-insensitively.
func (dir *Directory) Lookup(name string) common.Inum {
	if name == "" {
		return common.NULLINUM
	}
	l := int32(NameLen(name))
	for i := range dir.lengths {
		if dir.lengths[i] == l && strings.EqualFold(dir.name(common.Inum(i)), name) {
			return common.Inum(i)
		}
	}
	return common.NULLINUM
}

// Names lists the occupied slots other than the root, in slot order.
func (dir *Directory) Names() []string {
	var names []string
	for i := 1; i < len(dir.lengths); i++ {
		if dir.lengths[i] != 0 {
			names = append(names, dir.name(common.Inum(i)))
		}
	}
	return names
}

// EncodedSize is the size of Encode's output for a directory of n slots.
func EncodedSize(n uint64) uint64 {
	return n * entrySz
}

// Encode lays out all n lengths (int32) followed by all n name slots, each
// name as big-endian UTF-16 padded with zeroes to MAXNAMELEN units.
func (dir *Directory) Encode() []byte {
	n := dir.Capacity()
	e := enc.NewEnc(EncodedSize(n))
	for _, l := range dir.lengths {
		e.PutInt32(l)
	}
	b := e.Finish()
	for i, l := range dir.lengths {
		ne := enc.NewEncAt(b, n*4+uint64(i)*nameSlotSz)
		for j := int32(0); j < l; j++ {
			ne.PutInt16(int16(dir.names[i][j]))
		}
	}
	return b
}

// Decode replaces the contents of dir with an encoding of the same capacity.
// The root slot always reads back as "/".
func (dir *Directory) Decode(data []byte) error {
	n := dir.Capacity()
	if uint64(len(data)) != EncodedSize(n) {
		return fmt.Errorf("decoding directory of %d slots from %d bytes: %w",
			n, len(data), ErrBadEncoding)
	}
	dec := enc.NewDec(data)
	lengths := make([]int32, n)
	for i := range lengths {
		l := dec.GetInt32()
		if l < 0 || uint64(l) > common.MAXNAMELEN {
			return fmt.Errorf("decoding directory: slot %d has length %d: %w",
				i, l, ErrBadEncoding)
		}
		lengths[i] = l
	}
	for i := range lengths {
		nd := enc.NewDecAt(data, n*4+uint64(i)*nameSlotSz)
		for j, u := range nd.GetInt16s(common.MAXNAMELEN) {
			dir.names[i][j] = uint16(u)
		}
	}
	copy(dir.lengths, lengths)
	if n > 0 {
		dir.set(common.ROOTINUM, utf16.Encode([]rune(RootName)))
	}
	return nil
}
