package decode

import "errors"

// Sentinel errors for block-level stream failures. EventSource returns them
// as they are; the reco package's ArraySource maps them onto the pipeline's
// error kinds.
var (
	ErrEndOfStream  = errors.New("end of stream")
	ErrCorruptBlock = errors.New("corrupt block")
)
