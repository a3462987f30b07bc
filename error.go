package ferndb

import (
	"errors"

	"ferndb/internal/base"
	"ferndb/internal/pool"
)

var (
	ErrKeyNotFound    = errors.New("key not found")
	ErrKeyExists      = errors.New("key already exists")
	ErrDatabaseClosed = errors.New("database is closed")
	ErrBadKeySize     = errors.New("key length does not match configured key size")
	ErrBadValueSize   = errors.New("value length does not match configured value size")

	ErrInvalidMagicNumber = base.ErrInvalidMagicNumber
	ErrInvalidVersion     = base.ErrInvalidVersion
	ErrInvalidPageSize    = base.ErrInvalidPageSize
	ErrInvalidChecksum    = base.ErrInvalidChecksum
	ErrInvalidLayout      = base.ErrInvalidLayout
	ErrCorruption         = base.ErrCorruption

	ErrPoolExhausted = pool.ErrPoolExhausted
	ErrPagePinned    = pool.ErrPagePinned
)
