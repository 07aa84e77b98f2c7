package cs

import "github.com/emergingrobotics/go-amdgpu/pkg/driver"

// SDMA packet opcodes and field encodings.
const (
	SdmaOpNop          = 0
	SdmaOpCopy         = 1
	SdmaOpWrite        = 2
	SdmaOpPollRegmem   = 8
	SdmaOpAtomic       = 10
	SdmaOpConstantFill = 11

	SdmaSubOpCopyLinear  = 0
	SdmaSubOpWriteLinear = 0
	SdmaSubOpWriteTiled  = 1

	// SI encodes SDMA packets differently and with its own opcodes.
	SdmaOpCopySI         = 3
	SdmaOpConstantFillSI = 13
	SdmaNopSI            = 0xf
)

// SdmaPacket builds a packet header from opcode, sub-opcode and the
// packet-specific extra field.
func SdmaPacket(op, subOp, extra uint32) uint32 {
	return ((extra & 0xffff) << 16) | ((subOp & 0xff) << 8) | (op & 0xff)
}

// SdmaPacketSI builds an SI packet header. Count is in words for most
// packets; CONSTANT_FILL takes it in dwords of payload.
func SdmaPacketSI(op, b, t, s, count uint32) uint32 {
	return ((op & 0xf) << 28) |
		((b & 0x1) << 26) |
		((t & 0x1) << 23) |
		((s & 0x1) << 22) |
		(count & 0xfffff)
}

// CONSTANT_FILL extra field. 0 fills bytes, 2 fills dwords.
func SdmaConstantFillExtraSize(size uint32) uint32 { return size << 14 }

// ATOMIC extra field.
func SdmaAtomicLoop(loop uint32) uint32 { return loop << 0 }
func SdmaAtomicTmz(tmz uint32) uint32   { return tmz << 2 }
func SdmaAtomicOp(op uint32) uint32     { return op << 9 }

// sdmaFuncs encodes the DMA engine's packets.
type sdmaFuncs struct {
	caps
}

var sdmaV3Funcs = &sdmaFuncs{caps{
	familyID:  driver.FamilyVI,
	alignMask: 0xff,
	nop:       GfxComputeNopSI,
	deadbeaf:  0xdeadbeaf,
	pattern:   0xaaaaaaaa,
}}

// WriteLinear encodes a WRITE packet that stores WriteLength fill
// words at BO. In secure mode it instead encodes a protected looping
// 32-bit atomic compare-swap against BO after clearing the whole
// stream buffer.
func (f *sdmaFuncs) WriteLinear(rctx *RingContext) (int, error) {
	if rctx.Secure {
		if err := rctx.Cmds.EnsureCapacity(8); err != nil {
			return 0, err
		}
		rctx.Cmds.Clear()
		rctx.Cmds.Emit(SdmaPacket(SdmaOpAtomic, 0,
			SdmaAtomicLoop(1)|
				SdmaAtomicTmz(1)|
				SdmaAtomicOp(TcOpAtomicCmpSwapRtn32)))
		rctx.Cmds.Emit(uint32(rctx.BO.GPUAddr) & 0xfffffffc)
		rctx.Cmds.Emit(uint32(rctx.BO.GPUAddr >> 32))
		rctx.Cmds.Emit(0x12345678)
		rctx.Cmds.Emit(0x0)
		rctx.Cmds.Emit(f.deadbeaf)
		rctx.Cmds.Emit(0x0)
		rctx.Cmds.Emit(0x100)
		return rctx.Cmds.Len(), nil
	}

	if err := rctx.Cmds.EnsureCapacity(int(4 + rctx.WriteLength)); err != nil {
		return 0, err
	}
	rctx.Cmds.Reset()
	if f.familyID == driver.FamilySI {
		rctx.Cmds.Emit(SdmaPacketSI(SdmaOpWrite, 0, 0, 0, rctx.WriteLength))
	} else {
		rctx.Cmds.Emit(SdmaPacket(SdmaOpWrite, SdmaSubOpWriteLinear, 0))
	}
	rctx.Cmds.Emit(uint32(rctx.BO.GPUAddr) & 0xfffffffc)
	rctx.Cmds.Emit(uint32(rctx.BO.GPUAddr >> 32))
	if f.familyID >= driver.FamilyAI {
		rctx.Cmds.Emit(rctx.WriteLength - 1)
	} else {
		rctx.Cmds.Emit(rctx.WriteLength)
	}
	rctx.Cmds.EmitRepeat(f.deadbeaf, int(rctx.WriteLength))
	return rctx.Cmds.Len(), nil
}

// ConstFill encodes a CONSTANT_FILL packet that fills WriteLength
// bytes at BO with the fill value, one dword at a time.
func (f *sdmaFuncs) ConstFill(rctx *RingContext) (int, error) {
	if f.familyID == driver.FamilySI {
		if err := rctx.Cmds.EnsureCapacity(4); err != nil {
			return 0, err
		}
		rctx.Cmds.Reset()
		rctx.Cmds.Emit(SdmaPacketSI(SdmaOpConstantFillSI, 0, 0, 0, rctx.WriteLength/4))
		rctx.Cmds.Emit(uint32(rctx.BO.GPUAddr) & 0xfffffffc)
		rctx.Cmds.Emit(0xdeadbeaf)
		rctx.Cmds.Emit(uint32((rctx.BO.GPUAddr & 0xffffffff00000000) >> 16))
		return rctx.Cmds.Len(), nil
	}

	if err := rctx.Cmds.EnsureCapacity(5); err != nil {
		return 0, err
	}
	rctx.Cmds.Reset()
	rctx.Cmds.Emit(SdmaPacket(SdmaOpConstantFill, 0, SdmaConstantFillExtraSize(2)))
	rctx.Cmds.Emit(uint32(rctx.BO.GPUAddr))
	rctx.Cmds.Emit(uint32(rctx.BO.GPUAddr >> 32))
	rctx.Cmds.Emit(f.deadbeaf)
	if f.familyID >= driver.FamilyAI {
		rctx.Cmds.Emit(rctx.WriteLength - 1)
	} else {
		rctx.Cmds.Emit(rctx.WriteLength)
	}
	return rctx.Cmds.Len(), nil
}

// CopyLinear encodes a COPY packet that moves WriteLength bytes from
// BO to BO2.
func (f *sdmaFuncs) CopyLinear(rctx *RingContext) (int, error) {
	if f.familyID == driver.FamilySI {
		if err := rctx.Cmds.EnsureCapacity(5); err != nil {
			return 0, err
		}
		rctx.Cmds.Reset()
		rctx.Cmds.Emit(SdmaPacketSI(SdmaOpCopySI, 0, 0, 0, rctx.WriteLength))
		rctx.Cmds.Emit(uint32(rctx.BO.GPUAddr))
		rctx.Cmds.Emit(uint32(rctx.BO.GPUAddr >> 32))
		rctx.Cmds.Emit(uint32(rctx.BO2.GPUAddr))
		rctx.Cmds.Emit(uint32(rctx.BO2.GPUAddr >> 32))
		return rctx.Cmds.Len(), nil
	}

	if err := rctx.Cmds.EnsureCapacity(7); err != nil {
		return 0, err
	}
	rctx.Cmds.Reset()
	rctx.Cmds.Emit(SdmaPacket(SdmaOpCopy, SdmaSubOpCopyLinear, 0))
	if f.familyID >= driver.FamilyAI {
		rctx.Cmds.Emit(rctx.WriteLength - 1)
	} else {
		rctx.Cmds.Emit(rctx.WriteLength)
	}
	rctx.Cmds.Emit(0)
	rctx.Cmds.Emit(uint32(rctx.BO.GPUAddr))
	rctx.Cmds.Emit(uint32(rctx.BO.GPUAddr >> 32))
	rctx.Cmds.Emit(uint32(rctx.BO2.GPUAddr))
	rctx.Cmds.Emit(uint32(rctx.BO2.GPUAddr >> 32))
	return rctx.Cmds.Len(), nil
}
