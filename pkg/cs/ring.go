package cs

import (
	"github.com/emergingrobotics/go-amdgpu/pkg/cmdbuf"
	"github.com/emergingrobotics/go-amdgpu/pkg/device"
	"github.com/emergingrobotics/go-amdgpu/pkg/driver"
)

// RingContext carries the state one engine exercise threads through
// encoding, submission and verification: the command stream under
// construction, the buffer objects it targets and the submission
// parameters. Encoders read WriteLength, Secure and the buffer
// addresses and rewrite Cmds in place.
type RingContext struct {
	RingID      uint32
	WriteLength uint32
	Secure      bool

	Cmds *cmdbuf.Buffer

	// BO is the primary data buffer. BO2 is the copy destination where
	// an operation has one.
	BO  *device.BO
	BO2 *device.BO

	// BOCpuOrigin snapshots a word of BO before a submission that must
	// not change it.
	BOCpuOrigin uint32

	CtxID    uint32
	HWIPInfo driver.HwIPInfo

	// Resources lists the buffer handles the submission references in
	// addition to the indirect buffer itself.
	Resources []uint32
}

// NewRingContext returns a RingContext with an empty command stream.
func NewRingContext() *RingContext {
	return &RingContext{Cmds: cmdbuf.New()}
}
