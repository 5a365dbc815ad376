package util

import (
	"github.com/sirupsen/logrus"
)

var Debug uint64 = 0

var logger = logrus.StandardLogger()

// SetDebug sets the highest DPrintf level that is emitted.
func SetDebug(level uint64) {
	Debug = level
	if level > 0 && logger.GetLevel() < logrus.DebugLevel {
		logger.SetLevel(logrus.DebugLevel)
	}
}

func DPrintf(level uint64, format string, a ...interface{}) {
	if level <= Debug {
		logger.WithField("level", level).Debugf(format, a...)
	}
}

// Warnf reports a condition that was handled but should not normally happen.
func Warnf(format string, a ...interface{}) {
	logger.Warnf(format, a...)
}

func RoundUp(n uint64, sz uint64) uint64 {
	return (n + sz - 1) / sz
}

func Min(n uint64, m uint64) uint64 {
	if n < m {
		return n
	} else {
		return m
	}
}
