package splitcounter

import "errors"

// Configuration errors, returned by New.
var (
	ErrUnsupportedWidth      = errors.New("unsupported counter width")
	ErrUnsupportedArithmetic = errors.New("unsupported counter arithmetic")
	ErrInvalidSumStep        = errors.New("invalid global sum step")
	ErrInvalidDimensions     = errors.New("invalid counter dimensions")
	ErrInvalidConfig         = errors.New("invalid counter config")
	ErrAllocation            = errors.New("counter allocation failed")
)

// Query errors, returned by Read, Aggregate and Clear.
var (
	ErrInvalidShard    = errors.New("invalid shard")
	ErrIndexCount      = errors.New("wrong number of dimension indexes")
	ErrIndexOutOfRange = errors.New("resolved index outside allocated cells")
	ErrDestroyed       = errors.New("counter destroyed")
)

// Transport registry errors.
var (
	ErrTransportExists  = errors.New("counter transport already registered")
	ErrUnknownTransport = errors.New("unknown counter transport")
)
