package sensor

import "errors"

// ErrConfiguration marks setup failures that abort a step: an empty fog
// table, an unusable channel count, malformed dropoff parameters or a
// non-rigid pose. No buffer is produced when it is returned.
var ErrConfiguration = errors.New("sensor: configuration error")

// ErrChannelOutOfRange is returned by Accumulator.Add for a channel the
// accumulator was not sized for.
var ErrChannelOutOfRange = errors.New("sensor: channel out of range")
