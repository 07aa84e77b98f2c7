package cs

import (
	"fmt"

	"github.com/emergingrobotics/go-amdgpu/pkg/device"
	"github.com/emergingrobotics/go-amdgpu/pkg/driver"
)

// Submissions go through a one-page GTT indirect buffer.
const (
	ibSizeBytes = 4096
	ibSizeDw    = ibSizeBytes / 4
)

// ExecCommandBuffer pushes the encoded command stream in rctx through
// a freshly allocated indirect buffer: it copies the stream in, wraps
// the ring's resource handles plus the IB in a buffer list, submits on
// rctx's ring and blocks until the fence signals. The IB and the list
// are released before returning; the caller keeps ownership of the
// resource buffers.
func ExecCommandBuffer(dev Device, ipType driver.HwIPType, rctx *RingContext) error {
	pm4Dw := rctx.Cmds.Len()
	if pm4Dw == 0 {
		return fmt.Errorf("empty command stream")
	}
	if pm4Dw > ibSizeDw {
		return fmt.Errorf("%d words: %w", pm4Dw, ErrIBTooLarge)
	}

	ib, err := dev.AllocAndMap(ibSizeBytes, ibSizeBytes, driver.GemDomainGTT, 0)
	if err != nil {
		return fmt.Errorf("allocating indirect buffer: %w", err)
	}
	copy(ib.Words, rctx.Cmds.Words())

	handles := make([]uint32, 0, len(rctx.Resources)+1)
	handles = append(handles, rctx.Resources...)
	handles = append(handles, ib.Handle)
	list, err := dev.CreateBOList(handles)
	if err != nil {
		dev.UnmapAndFree(ib)
		return fmt.Errorf("creating buffer list: %w", err)
	}

	var ibFlags uint32
	if rctx.Secure {
		ibFlags |= driver.IBFlagSecure
	}
	seqNo, err := dev.Submit(rctx.CtxID, &device.SubmitRequest{
		IPType: ipType,
		Ring:   rctx.RingID,
		BOList: list,
		IBs:    []device.IB{{VA: ib.GPUAddr, SizeDw: uint32(pm4Dw), Flags: ibFlags}},
	})
	if err != nil {
		dev.DestroyBOList(list)
		dev.UnmapAndFree(ib)
		return fmt.Errorf("submitting %d words to %s ring %d: %w", pm4Dw, ipType, rctx.RingID, err)
	}

	if err := dev.DestroyBOList(list); err != nil {
		dev.UnmapAndFree(ib)
		return fmt.Errorf("destroying buffer list: %w", err)
	}

	err = WaitFence(dev, driver.Fence{
		CtxID:  rctx.CtxID,
		IPType: uint32(ipType),
		Ring:   rctx.RingID,
		SeqNo:  seqNo,
	}, driver.TimeoutInfinite)
	if ferr := dev.UnmapAndFree(ib); err == nil && ferr != nil {
		err = fmt.Errorf("releasing indirect buffer: %w", ferr)
	}
	return err
}

// WaitFence blocks until the fence signals or the timeout elapses.
// ErrFenceTimeout is returned when the deadline passes first.
func WaitFence(dev Device, fence driver.Fence, timeoutNs uint64) error {
	expired, err := dev.QueryFence(fence, timeoutNs)
	if err != nil {
		return fmt.Errorf("waiting for fence %d on %s ring %d: %w",
			fence.SeqNo, driver.HwIPType(fence.IPType), fence.Ring, err)
	}
	if !expired {
		return fmt.Errorf("fence %d on %s ring %d: %w",
			fence.SeqNo, driver.HwIPType(fence.IPType), fence.Ring, ErrFenceTimeout)
	}
	return nil
}
