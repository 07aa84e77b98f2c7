package cs

import "github.com/emergingrobotics/go-amdgpu/pkg/driver"

// PM4 type-3 packet opcodes and field encodings for the graphics and
// compute command processors.
const (
	Packet3Nop       = 0x10
	Packet3AtomicMem = 0x1E
	Packet3WriteData = 0x37
	Packet3DmaData   = 0x50

	// SI uses a different DMA_DATA opcode and field layout.
	Packet3DmaDataSI = 0x41

	GfxComputeNop   = 0xffff1000
	GfxComputeNopSI = 0x80000000
)

// Packet3 builds a type-3 packet header for op with count payload
// words beyond the first.
func Packet3(op, count uint32) uint32 {
	return (3 << 30) | ((count & 0x3fff) << 16) | ((op & 0xff) << 8)
}

// WRITE_DATA control word fields.
const WriteDataWrConfirm = 1 << 20

func WriteDataDstSel(sel uint32) uint32 { return sel << 8 }

// ATOMIC_MEM control word fields.
const TcOpAtomicCmpSwapRtn32 = 0x00000008

func AtomicMemCommand(cmd uint32) uint32       { return cmd << 8 }
func AtomicMemCachePolicy(policy uint32) uint32 { return policy << 25 }
func AtomicMemEngineSel(sel uint32) uint32      { return sel << 30 }

// DMA_DATA control word fields.
const DmaDataCpSync = 1 << 31

func DmaDataEngine(engine uint32) uint32 { return engine << 0 }
func DmaDataDstSel(sel uint32) uint32    { return sel << 20 }
func DmaDataSrcSel(sel uint32) uint32    { return sel << 29 }

// SI DMA_DATA control word fields.
const DmaDataSICpSync = 1 << 31

func DmaDataSIEngine(engine uint32) uint32 { return engine << 27 }
func DmaDataSIDstSel(sel uint32) uint32    { return sel << 20 }
func DmaDataSISrcSel(sel uint32) uint32    { return sel << 29 }

// gfxFuncs encodes the graphics and compute rings' packets. Both
// engines speak PM4, so one implementation serves both IP blocks.
type gfxFuncs struct {
	caps
}

var gfxV8Funcs = &gfxFuncs{caps{
	familyID:  driver.FamilyVI,
	alignMask: 0xff,
	nop:       GfxComputeNopSI,
	deadbeaf:  0xdeadbeaf,
	pattern:   0xaaaaaaaa,
}}

// WriteLinear encodes a stream that stores WriteLength fill words at
// BO. In secure mode it instead encodes a single protected 32-bit
// atomic compare-swap against BO after clearing the whole stream
// buffer.
func (f *gfxFuncs) WriteLinear(rctx *RingContext) (int, error) {
	if rctx.Secure {
		if err := rctx.Cmds.EnsureCapacity(9); err != nil {
			return 0, err
		}
		rctx.Cmds.Clear()
		rctx.Cmds.Emit(Packet3(Packet3AtomicMem, 7))
		rctx.Cmds.Emit(TcOpAtomicCmpSwapRtn32 |
			AtomicMemCommand(1) |
			AtomicMemCachePolicy(0) |
			AtomicMemEngineSel(0))
		rctx.Cmds.Emit(uint32(rctx.BO.GPUAddr) & 0xfffffffc)
		rctx.Cmds.Emit(uint32(rctx.BO.GPUAddr >> 32))
		rctx.Cmds.Emit(0x12345678)
		rctx.Cmds.Emit(0x0)
		rctx.Cmds.Emit(0xdeadbeaf)
		rctx.Cmds.Emit(0x0)
		rctx.Cmds.Emit(0x100)
		return rctx.Cmds.Len(), nil
	}

	if err := rctx.Cmds.EnsureCapacity(int(4 + rctx.WriteLength)); err != nil {
		return 0, err
	}
	rctx.Cmds.Reset()
	rctx.Cmds.Emit(Packet3(Packet3WriteData, 2+rctx.WriteLength))
	rctx.Cmds.Emit(WriteDataDstSel(5) | WriteDataWrConfirm)
	rctx.Cmds.Emit(uint32(rctx.BO.GPUAddr) & 0xfffffffc)
	rctx.Cmds.Emit(uint32(rctx.BO.GPUAddr >> 32))
	rctx.Cmds.EmitRepeat(f.deadbeaf, int(rctx.WriteLength))
	return rctx.Cmds.Len(), nil
}

// ConstFill encodes a DMA_DATA packet that fills WriteLength bytes at
// BO with the fill value.
func (f *gfxFuncs) ConstFill(rctx *RingContext) (int, error) {
	if f.familyID == driver.FamilySI {
		if err := rctx.Cmds.EnsureCapacity(6); err != nil {
			return 0, err
		}
		rctx.Cmds.Reset()
		rctx.Cmds.Emit(Packet3(Packet3DmaDataSI, 4))
		rctx.Cmds.Emit(f.deadbeaf)
		rctx.Cmds.Emit(DmaDataSIEngine(0) |
			DmaDataSIDstSel(0) |
			DmaDataSISrcSel(2) |
			DmaDataSICpSync)
		rctx.Cmds.Emit(uint32(rctx.BO.GPUAddr))
		rctx.Cmds.Emit(uint32(rctx.BO.GPUAddr >> 32))
		rctx.Cmds.Emit(rctx.WriteLength)
		return rctx.Cmds.Len(), nil
	}

	if err := rctx.Cmds.EnsureCapacity(7); err != nil {
		return 0, err
	}
	rctx.Cmds.Reset()
	rctx.Cmds.Emit(Packet3(Packet3DmaData, 5))
	rctx.Cmds.Emit(DmaDataEngine(0) |
		DmaDataDstSel(0) |
		DmaDataSrcSel(2) |
		DmaDataCpSync)
	rctx.Cmds.Emit(f.deadbeaf)
	rctx.Cmds.Emit(0)
	rctx.Cmds.Emit(uint32(rctx.BO.GPUAddr) & 0xfffffffc)
	rctx.Cmds.Emit(uint32(rctx.BO.GPUAddr >> 32))
	rctx.Cmds.Emit(rctx.WriteLength)
	return rctx.Cmds.Len(), nil
}

// CopyLinear encodes a DMA_DATA packet that copies WriteLength bytes
// from BO to BO2.
func (f *gfxFuncs) CopyLinear(rctx *RingContext) (int, error) {
	if f.familyID == driver.FamilySI {
		if err := rctx.Cmds.EnsureCapacity(6); err != nil {
			return 0, err
		}
		rctx.Cmds.Reset()
		rctx.Cmds.Emit(Packet3(Packet3DmaDataSI, 4))
		rctx.Cmds.Emit(uint32(rctx.BO.GPUAddr) & 0xfffffffc)
		// The source's high address bits share the control word.
		rctx.Cmds.Emit(DmaDataSIEngine(0) |
			DmaDataSIDstSel(0) |
			DmaDataSISrcSel(0) |
			DmaDataSICpSync |
			uint32((rctx.BO.GPUAddr&0xffff00000000)>>32))
		rctx.Cmds.Emit(uint32(rctx.BO2.GPUAddr) & 0xfffffffc)
		rctx.Cmds.Emit(uint32(rctx.BO2.GPUAddr >> 32))
		rctx.Cmds.Emit(rctx.WriteLength)
		return rctx.Cmds.Len(), nil
	}

	if err := rctx.Cmds.EnsureCapacity(7); err != nil {
		return 0, err
	}
	rctx.Cmds.Reset()
	rctx.Cmds.Emit(Packet3(Packet3DmaData, 5))
	rctx.Cmds.Emit(DmaDataEngine(0) |
		DmaDataDstSel(0) |
		DmaDataSrcSel(0) |
		DmaDataCpSync)
	rctx.Cmds.Emit(uint32(rctx.BO.GPUAddr) & 0xfffffffc)
	rctx.Cmds.Emit(uint32(rctx.BO.GPUAddr >> 32))
	rctx.Cmds.Emit(uint32(rctx.BO2.GPUAddr) & 0xfffffffc)
	rctx.Cmds.Emit(uint32(rctx.BO2.GPUAddr >> 32))
	rctx.Cmds.Emit(rctx.WriteLength)
	return rctx.Cmds.Len(), nil
}
