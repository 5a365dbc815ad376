package ftable

import (
	"errors"
	"fmt"
)

// Mode is how an entry was opened.
type Mode string

const (
	READ      Mode = "r"
	WRITE     Mode = "w" // truncates
	APPEND    Mode = "a"
	READWRITE Mode = "w+"
)

var ErrBadMode = errors.New("invalid open mode")

func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("%q: %w", s, ErrBadMode)
	}
	return m, nil
}

func (m Mode) Valid() bool {
	switch m {
	case READ, WRITE, APPEND, READWRITE:
		return true
	}
	return false
}

func (m Mode) IsReadable() bool {
	return m == READ || m == READWRITE
}

// IsWritable modes hold the inode exclusively.
func (m Mode) IsWritable() bool {
	return m == WRITE || m == APPEND || m == READWRITE
}
