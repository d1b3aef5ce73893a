package zran

import "github.com/pkg/errors"

// Configuration errors, returned synchronously from Open.
var (
	ErrBadWindowSize     = errors.New("zran: window size must be at least 32768")
	ErrBadSpacing        = errors.New("zran: spacing must be greater than the window size")
	ErrSourceNotSeekable = errors.New("zran: source does not support seeking")
)

// ErrNotCovered is returned from Seek/Read when AUTO_BUILD is disabled and
// the index does not yet reach the requested offset.
var ErrNotCovered = errors.New("zran: offset not covered by index")

// ErrClosed is returned by any operation on an Index after Close.
var ErrClosed = errors.New("zran: index is closed")
