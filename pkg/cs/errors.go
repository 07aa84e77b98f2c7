package cs

import "errors"

// Sentinel errors for GPU identification and command submission. They
// are wrapped with context by the functions that raise them; match with
// errors.Is.
var (
	// ErrUnknownChip means the device reported a family and external
	// revision that no known die matches.
	ErrUnknownChip = errors.New("unknown chip revision")

	// ErrUnsupportedGeneration means the die was identified but no
	// capability set covers its hardware generation.
	ErrUnsupportedGeneration = errors.New("no capability set for this GPU generation")

	// ErrIBTooLarge means an encoded command stream does not fit the
	// indirect buffer a submission allocates for it.
	ErrIBTooLarge = errors.New("command stream exceeds indirect buffer size")

	// ErrFenceTimeout means a fence did not signal within the wait
	// deadline.
	ErrFenceTimeout = errors.New("fence wait timed out")
)
