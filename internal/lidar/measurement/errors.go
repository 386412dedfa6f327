package measurement

import (
	"errors"
	"fmt"
)

// ErrMalformedBuffer reports a structural violation found while decoding.
// Every decode failure matches it through errors.Is.
var ErrMalformedBuffer = errors.New("measurement: malformed buffer")

// Decode failures.
var (
	ErrTruncated          = fmt.Errorf("%w: truncated", ErrMalformedBuffer)
	ErrUnsupportedVersion = fmt.Errorf("%w: unsupported format version", ErrMalformedBuffer)
	ErrChannelCeiling     = fmt.Errorf("%w: channel count out of range", ErrMalformedBuffer)
	ErrCountMismatch      = fmt.Errorf("%w: point counts do not match payload", ErrMalformedBuffer)
)

// ErrIndexOutOfRange is returned for detection indices or channels outside the buffer.
var ErrIndexOutOfRange = errors.New("measurement: index out of range")

// ErrInvalidLayout is returned by Encode when counts and points disagree or
// the channel count is unusable.
var ErrInvalidLayout = errors.New("measurement: invalid layout")
