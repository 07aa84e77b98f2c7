package cs

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/emergingrobotics/go-amdgpu/pkg/cmdbuf"
	"github.com/emergingrobotics/go-amdgpu/pkg/device"
	"github.com/emergingrobotics/go-amdgpu/pkg/driver"
)

// Transfer sizes the ring exercises use. Write length is in words,
// the fill and copy lengths are in bytes.
const (
	writeLinearLength = 128
	constFillLength   = 1024 * 1024
	copyLinearLength  = 1024
)

// RunWriteLinear exercises every available ring of the block's engine:
// for each ring and each GTT mapping mode it encodes a linear write,
// submits it and verifies the buffer contents. In secure mode the
// buffers are allocated encrypted and the protected atomic sequence is
// submitted repeatedly instead of a plain write; on the DMA engine the
// target word is checked to be left alone by the looping compare-swap.
func RunWriteLinear(dev Device, block *IPBlock, secure bool) error {
	info, err := dev.QueryHWIPInfo(block.Type.HWIP())
	if err != nil {
		return fmt.Errorf("querying %s ring info: %w", block.Type, err)
	}

	gttFlags := [2]uint64{0, driver.GemCreateCPUGTTUSWC}
	if secure {
		for i := range gttFlags {
			gttFlags[i] |= driver.GemCreateEncrypted
		}
	}

	ctxID, err := dev.CreateContext()
	if err != nil {
		return fmt.Errorf("creating context: %w", err)
	}
	defer dev.DestroyContext(ctxID)

	rctx := NewRingContext()
	rctx.WriteLength = writeLinearLength
	rctx.Secure = secure
	rctx.CtxID = ctxID
	rctx.HWIPInfo = *info

	for ringID := uint32(0); (uint32(1)<<ringID)&info.AvailableRings != 0; ringID++ {
		rctx.RingID = ringID
		for _, flags := range gttFlags {
			log.Debugf("write linear: %s ring %d, alloc flags %#x, secure %v",
				block.Type, ringID, flags, secure)
			if err := writeLinearOnce(dev, block, rctx, flags); err != nil {
				return fmt.Errorf("%s ring %d (alloc flags %#x): %w",
					block.Type, ringID, flags, err)
			}
		}
	}
	return nil
}

func writeLinearOnce(dev Device, block *IPBlock, rctx *RingContext, allocFlags uint64) (err error) {
	bo, err := dev.AllocAndMap(uint64(rctx.WriteLength)*4, 4096,
		driver.GemDomainGTT, allocFlags)
	if err != nil {
		return fmt.Errorf("allocating data buffer: %w", err)
	}
	defer func() {
		if ferr := dev.UnmapAndFree(bo); ferr != nil && err == nil {
			err = fmt.Errorf("releasing data buffer: %w", ferr)
		}
	}()

	for i := range bo.Words {
		bo.Words[i] = 0
	}
	rctx.BO = bo
	rctx.Resources = []uint32{bo.Handle}

	if _, err := block.Funcs.WriteLinear(rctx); err != nil {
		return err
	}
	if err := ExecCommandBuffer(dev, block.Type.HWIP(), rctx); err != nil {
		return err
	}

	switch {
	case !rctx.Secure:
		if err := block.Funcs.Compare(rctx, 1); err != nil {
			return fmt.Errorf("readback: %w", err)
		}
	case block.Type == GFX:
		// A second protected submission against the now-initialized
		// destination.
		if _, err := block.Funcs.WriteLinear(rctx); err != nil {
			return err
		}
		if err := ExecCommandBuffer(dev, block.Type.HWIP(), rctx); err != nil {
			return err
		}
	case block.Type == DMA:
		rctx.BOCpuOrigin = bo.Words[0]
		if _, err := block.Funcs.WriteLinear(rctx); err != nil {
			return err
		}
		if err := ExecCommandBuffer(dev, block.Type.HWIP(), rctx); err != nil {
			return err
		}

		rctx.BOCpuOrigin = bo.Words[0]
		if _, err := block.Funcs.WriteLinear(rctx); err != nil {
			return err
		}
		if err := ExecCommandBuffer(dev, block.Type.HWIP(), rctx); err != nil {
			return err
		}
		// The compare value never matches again, so the looping
		// compare-swap must leave the word untouched.
		if bo.Words[0] != rctx.BOCpuOrigin {
			return fmt.Errorf("protected atomic changed word 0 from %#x to %#x",
				rctx.BOCpuOrigin, bo.Words[0])
		}
	}
	return nil
}

// RunConstFill encodes an engine-side constant fill of a one megabyte
// buffer, submits it on the engine's first ring and verifies the fill,
// once per GTT mapping mode.
func RunConstFill(dev Device, block *IPBlock) error {
	ctxID, err := dev.CreateContext()
	if err != nil {
		return fmt.Errorf("creating context: %w", err)
	}
	defer dev.DestroyContext(ctxID)

	rctx := NewRingContext()
	rctx.WriteLength = constFillLength
	rctx.CtxID = ctxID

	for _, flags := range [2]uint64{0, driver.GemCreateCPUGTTUSWC} {
		log.Debugf("const fill: %s, alloc flags %#x", block.Type, flags)
		if err := constFillOnce(dev, block, rctx, flags); err != nil {
			return fmt.Errorf("%s (alloc flags %#x): %w", block.Type, flags, err)
		}
	}
	return nil
}

func constFillOnce(dev Device, block *IPBlock, rctx *RingContext, allocFlags uint64) (err error) {
	bo, err := dev.AllocAndMap(constFillLength, 4096, driver.GemDomainGTT, allocFlags)
	if err != nil {
		return fmt.Errorf("allocating data buffer: %w", err)
	}
	defer func() {
		if ferr := dev.UnmapAndFree(bo); ferr != nil && err == nil {
			err = fmt.Errorf("releasing data buffer: %w", ferr)
		}
	}()

	for i := range bo.Words {
		bo.Words[i] = 0
	}
	rctx.BO = bo
	rctx.Resources = []uint32{bo.Handle}

	if _, err := block.Funcs.ConstFill(rctx); err != nil {
		return err
	}
	if err := ExecCommandBuffer(dev, block.Type.HWIP(), rctx); err != nil {
		return err
	}
	if err := block.Funcs.Compare(rctx, 4); err != nil {
		return fmt.Errorf("readback: %w", err)
	}
	return nil
}

// RunCopyLinear encodes an engine-side copy between two buffers,
// submits it on the engine's first ring and verifies that the
// destination received the pattern and the source kept it, for all
// four combinations of GTT mapping modes.
func RunCopyLinear(dev Device, block *IPBlock) error {
	ctxID, err := dev.CreateContext()
	if err != nil {
		return fmt.Errorf("creating context: %w", err)
	}
	defer dev.DestroyContext(ctxID)

	rctx := NewRingContext()
	rctx.WriteLength = copyLinearLength
	rctx.CtxID = ctxID

	gttFlags := [2]uint64{0, driver.GemCreateCPUGTTUSWC}
	for _, srcFlags := range gttFlags {
		for _, dstFlags := range gttFlags {
			log.Debugf("copy linear: %s, src flags %#x, dst flags %#x",
				block.Type, srcFlags, dstFlags)
			if err := copyLinearOnce(dev, block, rctx, srcFlags, dstFlags); err != nil {
				return fmt.Errorf("%s (src flags %#x, dst flags %#x): %w",
					block.Type, srcFlags, dstFlags, err)
			}
		}
	}
	return nil
}

func copyLinearOnce(dev Device, block *IPBlock, rctx *RingContext, srcFlags, dstFlags uint64) (err error) {
	src, err := dev.AllocAndMap(copyLinearLength, 4096, driver.GemDomainGTT, srcFlags)
	if err != nil {
		return fmt.Errorf("allocating copy source: %w", err)
	}
	defer func() {
		if ferr := dev.UnmapAndFree(src); ferr != nil && err == nil {
			err = fmt.Errorf("releasing copy source: %w", ferr)
		}
	}()

	dst, err := dev.AllocAndMap(copyLinearLength, 4096, driver.GemDomainGTT, dstFlags)
	if err != nil {
		return fmt.Errorf("allocating copy destination: %w", err)
	}
	defer func() {
		if ferr := dev.UnmapAndFree(dst); ferr != nil && err == nil {
			err = fmt.Errorf("releasing copy destination: %w", ferr)
		}
	}()

	pattern := block.Funcs.Pattern()
	for i := range src.Words {
		src.Words[i] = pattern
	}
	for i := range dst.Words {
		dst.Words[i] = 0
	}

	rctx.BO = src
	rctx.BO2 = dst
	rctx.Resources = []uint32{src.Handle, dst.Handle}

	if _, err := block.Funcs.CopyLinear(rctx); err != nil {
		return err
	}
	if err := ExecCommandBuffer(dev, block.Type.HWIP(), rctx); err != nil {
		return err
	}
	if err := block.Funcs.ComparePattern(rctx, 4); err != nil {
		return fmt.Errorf("destination readback: %w", err)
	}
	for i := 0; i < int(rctx.WriteLength)/4; i++ {
		if src.Words[i] != pattern {
			return fmt.Errorf("copy changed source word %d to %#x", i, src.Words[i])
		}
	}
	return nil
}

// RunComputeNop submits a minimal NOP stream on every available
// compute ring, waiting each submission out.
func RunComputeNop(dev Device) error {
	info, err := dev.QueryHWIPInfo(driver.HwIPCompute)
	if err != nil {
		return fmt.Errorf("querying compute ring info: %w", err)
	}

	ctxID, err := dev.CreateContext()
	if err != nil {
		return fmt.Errorf("creating context: %w", err)
	}
	defer dev.DestroyContext(ctxID)

	for ringID := uint32(0); (uint32(1)<<ringID)&info.AvailableRings != 0; ringID++ {
		log.Debugf("compute nop: ring %d", ringID)
		if err := computeNopOnce(dev, ctxID, ringID); err != nil {
			return fmt.Errorf("compute ring %d: %w", ringID, err)
		}
	}
	return nil
}

func computeNopOnce(dev Device, ctxID, ringID uint32) (err error) {
	ib, err := dev.AllocAndMap(4096, 4096, driver.GemDomainGTT, 0)
	if err != nil {
		return fmt.Errorf("allocating indirect buffer: %w", err)
	}
	defer func() {
		if ferr := dev.UnmapAndFree(ib); ferr != nil && err == nil {
			err = fmt.Errorf("releasing indirect buffer: %w", ferr)
		}
	}()

	list, err := dev.CreateBOList([]uint32{ib.Handle})
	if err != nil {
		return fmt.Errorf("creating buffer list: %w", err)
	}

	for i := 0; i < 4; i++ {
		ib.Words[i] = 0
	}
	ib.Words[0] = Packet3(Packet3Nop, 14)

	seqNo, err := dev.Submit(ctxID, &device.SubmitRequest{
		IPType: driver.HwIPCompute,
		Ring:   ringID,
		BOList: list,
		IBs:    []device.IB{{VA: ib.GPUAddr, SizeDw: 16}},
	})
	if err != nil {
		dev.DestroyBOList(list)
		return fmt.Errorf("submitting: %w", err)
	}

	if err := WaitFence(dev, driver.Fence{
		CtxID:  ctxID,
		IPType: uint32(driver.HwIPCompute),
		Ring:   ringID,
		SeqNo:  seqNo,
	}, driver.TimeoutInfinite); err != nil {
		dev.DestroyBOList(list)
		return err
	}

	if err := dev.DestroyBOList(list); err != nil {
		return fmt.Errorf("destroying buffer list: %w", err)
	}
	return nil
}

// RunMultiFence submits the same two-IB stream twice on the graphics
// ring, then waits on both fences at once. The first IB programs the
// constant engine counters, the second makes the drawing engine wait
// on them, so each submission exercises the CE and DE in lockstep.
// With waitAll false the wait returns on the first signaled fence,
// with true only when both signaled.
func RunMultiFence(dev Device, waitAll bool) (err error) {
	ctxID, err := dev.CreateContext()
	if err != nil {
		return fmt.Errorf("creating context: %w", err)
	}
	defer dev.DestroyContext(ctxID)

	deIB, err := dev.AllocAndMap(4096, 4096, driver.GemDomainGTT, 0)
	if err != nil {
		return fmt.Errorf("allocating DE indirect buffer: %w", err)
	}
	defer func() {
		if ferr := dev.UnmapAndFree(deIB); ferr != nil && err == nil {
			err = fmt.Errorf("releasing DE indirect buffer: %w", ferr)
		}
	}()

	ceIB, err := dev.AllocAndMap(4096, 4096, driver.GemDomainGTT, 0)
	if err != nil {
		return fmt.Errorf("allocating CE indirect buffer: %w", err)
	}
	defer func() {
		if ferr := dev.UnmapAndFree(ceIB); ferr != nil && err == nil {
			err = fmt.Errorf("releasing CE indirect buffer: %w", ferr)
		}
	}()

	list, err := dev.CreateBOList([]uint32{deIB.Handle, ceIB.Handle})
	if err != nil {
		return fmt.Errorf("creating buffer list: %w", err)
	}
	defer func() {
		if ferr := dev.DestroyBOList(list); ferr != nil && err == nil {
			err = fmt.Errorf("destroying buffer list: %w", ferr)
		}
	}()

	// IT_SET_CE_DE_COUNTERS
	ceIB.Words[0] = 0xc0008900
	ceIB.Words[1] = 0
	ceIB.Words[2] = 0xc0008400
	ceIB.Words[3] = 1

	// IT_WAIT_ON_CE_COUNTER
	deIB.Words[0] = 0xc0008600
	deIB.Words[1] = 0x00000001

	ibs := []device.IB{
		{VA: ceIB.GPUAddr, SizeDw: 4, Flags: driver.IBFlagCE},
		{VA: deIB.GPUAddr, SizeDw: 2},
	}

	fences := make([]driver.Fence, 2)
	for i := range fences {
		seqNo, err := dev.Submit(ctxID, &device.SubmitRequest{
			IPType: driver.HwIPGfx,
			BOList: list,
			IBs:    ibs,
		})
		if err != nil {
			return fmt.Errorf("submission %d: %w", i, err)
		}
		fences[i] = driver.Fence{
			CtxID:  ctxID,
			IPType: uint32(driver.HwIPGfx),
			SeqNo:  seqNo,
		}
	}

	signaled, first, err := dev.WaitFences(fences, waitAll, driver.TimeoutInfinite)
	if err != nil {
		return fmt.Errorf("waiting for fences: %w", err)
	}
	if !signaled {
		return fmt.Errorf("fences did not signal: %w", ErrFenceTimeout)
	}
	log.Debugf("multi fence: signaled, wait_all %v, first %d", waitAll, first)
	return nil
}

// NopLoop keeps the engine's first ring busy with NOP streams until
// ctx is cancelled, then drains the last submission. Submission errors
// do not stop the loop; the device may well be going away under it,
// which is the situation the loop exists to provoke.
func NopLoop(ctx context.Context, dev Device, ipType driver.HwIPType) (err error) {
	ctxID, err := dev.CreateContext()
	if err != nil {
		return fmt.Errorf("creating context: %w", err)
	}
	defer dev.DestroyContext(ctxID)

	ib, err := dev.AllocAndMap(4096, 4096, driver.GemDomainGTT, 0)
	if err != nil {
		return fmt.Errorf("allocating indirect buffer: %w", err)
	}
	defer func() {
		if ferr := dev.UnmapAndFree(ib); ferr != nil && err == nil {
			err = fmt.Errorf("releasing indirect buffer: %w", ferr)
		}
	}()

	list, err := dev.CreateBOList([]uint32{ib.Handle})
	if err != nil {
		return fmt.Errorf("creating buffer list: %w", err)
	}
	defer func() {
		if ferr := dev.DestroyBOList(list); ferr != nil && err == nil {
			err = fmt.Errorf("destroying buffer list: %w", ferr)
		}
	}()

	cmds := cmdbuf.New()
	if err := cmds.Attach(ib.Words); err != nil {
		return err
	}
	nop := uint32(GfxComputeNop)
	if ipType == driver.HwIPDma {
		nop = SdmaPacket(SdmaOpNop, 0, 0)
	}
	cmds.EmitRepeat(nop, 16)

	req := &device.SubmitRequest{
		IPType: ipType,
		BOList: list,
		IBs:    []device.IB{{VA: ib.GPUAddr, SizeDw: uint32(cmds.Len())}},
	}

	var lastSeq uint64
	var submitted, failed int
	for {
		select {
		case <-ctx.Done():
			log.Debugf("nop loop: %s ring 0, %d submissions, %d failed",
				ipType, submitted, failed)
			if submitted > 0 {
				// Best effort: the device may already be gone.
				if werr := WaitFence(dev, driver.Fence{
					CtxID:  ctxID,
					IPType: uint32(ipType),
					SeqNo:  lastSeq,
				}, driver.TimeoutInfinite); werr != nil {
					log.Debugf("nop loop: drain wait: %v", werr)
				}
			}
			return nil
		default:
		}

		seqNo, serr := dev.Submit(ctxID, req)
		if serr != nil {
			if failed == 0 {
				log.Debugf("nop loop: submission failed: %v", serr)
			}
			failed++
			continue
		}
		lastSeq = seqNo
		submitted++
	}
}
