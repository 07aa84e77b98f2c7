package testutil

import (
	"fmt"

	"github.com/emergingrobotics/go-amdgpu/pkg/device"
	"github.com/emergingrobotics/go-amdgpu/pkg/driver"
)

// Packet opcodes as the interpreter decodes them, kept separate from
// the encoder's tables.
const (
	pm4OpNop       = 0x10
	pm4OpAtomicMem = 0x1e
	pm4OpWriteData = 0x37
	pm4OpDmaData   = 0x50

	sdmaOpNop       = 0
	sdmaOpCopy      = 1
	sdmaOpWrite     = 2
	sdmaOpAtomic    = 10
	sdmaOpConstFill = 11

	sdmaSubOpLinear = 0

	atomicCmpSwap32 = 0x8
)

// memView resolves GPU virtual addresses against the buffer objects a
// submission's list makes visible.
type memView struct {
	bos     map[uint32]*device.BO
	handles map[uint32]bool
}

// words returns the word slice [va, va+4*count) if the whole range
// lies inside one listed buffer object.
func (m *memView) words(va uint64, count int) ([]uint32, error) {
	if va%4 != 0 {
		return nil, fmt.Errorf("address %#x is not word aligned", va)
	}
	end := va + uint64(count)*4
	for handle := range m.handles {
		bo := m.bos[handle]
		if bo == nil {
			continue
		}
		if va >= bo.GPUAddr && end <= bo.GPUAddr+bo.Size {
			off := (va - bo.GPUAddr) / 4
			return bo.Words[off : off+uint64(count)], nil
		}
	}
	return nil, fmt.Errorf("range [%#x, %#x) is not covered by the buffer list", va, end)
}

// runPM4 interprets a graphics or compute command stream. Write-class
// packets store through mem; packets the simulator has no model for
// are skipped by their length.
func runPM4(mem *memView, stream []uint32) error {
	i := 0
	for i < len(stream) {
		header := stream[i]
		switch header >> 30 {
		case 2: // single-word filler
			i++
			continue
		case 3:
		default:
			return fmt.Errorf("word %d: %#x is not a packet header", i, header)
		}

		op := (header >> 8) & 0xff
		count := int(header>>16) & 0x3fff
		// A type-3 NOP with a saturated count is a single word.
		if op == pm4OpNop && count == 0x3fff {
			i++
			continue
		}
		body := stream[i+1:]
		n := count + 1
		if n > len(body) {
			return fmt.Errorf("word %d: packet %#x runs past the stream end", i, header)
		}
		body = body[:n]

		var err error
		switch op {
		case pm4OpWriteData:
			err = pm4WriteData(mem, body)
		case pm4OpDmaData:
			err = pm4DmaData(mem, body)
		case pm4OpAtomicMem:
			err = pm4AtomicMem(mem, body)
		}
		if err != nil {
			return fmt.Errorf("word %d: %w", i, err)
		}
		i += 1 + n
	}
	return nil
}

func pm4WriteData(mem *memView, body []uint32) error {
	if len(body) < 4 {
		return fmt.Errorf("WRITE_DATA with %d words", len(body))
	}
	addr := uint64(body[1]) | uint64(body[2])<<32
	dst, err := mem.words(addr, len(body)-3)
	if err != nil {
		return err
	}
	copy(dst, body[3:])
	return nil
}

func pm4DmaData(mem *memView, body []uint32) error {
	if len(body) != 6 {
		return fmt.Errorf("DMA_DATA with %d words", len(body))
	}
	bytes := body[5]
	if bytes%4 != 0 {
		return fmt.Errorf("DMA_DATA over %d bytes", bytes)
	}
	count := int(bytes / 4)
	dstAddr := uint64(body[3]) | uint64(body[4])<<32
	dst, err := mem.words(dstAddr, count)
	if err != nil {
		return err
	}
	switch (body[0] >> 29) & 0x3 {
	case 2: // fill from the inline data word
		for i := range dst {
			dst[i] = body[1]
		}
	case 0: // copy from memory
		srcAddr := uint64(body[1]) | uint64(body[2])<<32
		src, err := mem.words(srcAddr, count)
		if err != nil {
			return err
		}
		copy(dst, src)
	default:
		return fmt.Errorf("DMA_DATA source select %d", (body[0]>>29)&0x3)
	}
	return nil
}

// pm4AtomicMem models one pass of a 32-bit compare-swap. The loop
// flag never fires here because the stored value is visible at once.
func pm4AtomicMem(mem *memView, body []uint32) error {
	if len(body) != 8 {
		return fmt.Errorf("ATOMIC_MEM with %d words", len(body))
	}
	if body[0]&0x7f != atomicCmpSwap32 {
		return fmt.Errorf("ATOMIC_MEM operation %#x", body[0]&0x7f)
	}
	addr := uint64(body[1]) | uint64(body[2])<<32
	dst, err := mem.words(addr, 1)
	if err != nil {
		return err
	}
	if dst[0] == body[5] {
		dst[0] = body[3]
	}
	return nil
}

// runSDMA interprets a DMA engine command stream in the VI and later
// packet formats. Vega and newer encode lengths minus one.
func runSDMA(mem *memView, stream []uint32, family uint32) error {
	if family == driver.FamilySI {
		return fmt.Errorf("no interpreter for SI DMA streams")
	}
	decode := func(raw uint32) int {
		if family >= driver.FamilyAI {
			return int(raw) + 1
		}
		return int(raw)
	}

	i := 0
	for i < len(stream) {
		header := stream[i]
		op := header & 0xff
		subOp := (header >> 8) & 0xff
		switch op {
		case sdmaOpNop:
			i++
		case sdmaOpWrite:
			if subOp != sdmaSubOpLinear {
				return fmt.Errorf("word %d: WRITE sub-op %d", i, subOp)
			}
			if i+4 > len(stream) {
				return fmt.Errorf("word %d: truncated WRITE", i)
			}
			count := decode(stream[i+3])
			if i+4+count > len(stream) {
				return fmt.Errorf("word %d: WRITE of %d words runs past the stream end", i, count)
			}
			addr := uint64(stream[i+1]) | uint64(stream[i+2])<<32
			dst, err := mem.words(addr, count)
			if err != nil {
				return fmt.Errorf("word %d: %w", i, err)
			}
			copy(dst, stream[i+4:i+4+count])
			i += 4 + count
		case sdmaOpCopy:
			if subOp != sdmaSubOpLinear {
				return fmt.Errorf("word %d: COPY sub-op %d", i, subOp)
			}
			if i+7 > len(stream) {
				return fmt.Errorf("word %d: truncated COPY", i)
			}
			bytes := decode(stream[i+1])
			if bytes%4 != 0 {
				return fmt.Errorf("word %d: COPY of %d bytes", i, bytes)
			}
			srcAddr := uint64(stream[i+3]) | uint64(stream[i+4])<<32
			dstAddr := uint64(stream[i+5]) | uint64(stream[i+6])<<32
			src, err := mem.words(srcAddr, bytes/4)
			if err != nil {
				return fmt.Errorf("word %d: %w", i, err)
			}
			dst, err := mem.words(dstAddr, bytes/4)
			if err != nil {
				return fmt.Errorf("word %d: %w", i, err)
			}
			copy(dst, src)
			i += 7
		case sdmaOpConstFill:
			if i+5 > len(stream) {
				return fmt.Errorf("word %d: truncated CONSTANT_FILL", i)
			}
			bytes := decode(stream[i+4])
			if bytes%4 != 0 {
				return fmt.Errorf("word %d: CONSTANT_FILL of %d bytes", i, bytes)
			}
			addr := uint64(stream[i+1]) | uint64(stream[i+2])<<32
			dst, err := mem.words(addr, bytes/4)
			if err != nil {
				return fmt.Errorf("word %d: %w", i, err)
			}
			for j := range dst {
				dst[j] = stream[i+3]
			}
			i += 5
		case sdmaOpAtomic:
			if i+8 > len(stream) {
				return fmt.Errorf("word %d: truncated ATOMIC", i)
			}
			if (header>>25)&0x7f != atomicCmpSwap32 {
				return fmt.Errorf("word %d: ATOMIC operation %#x", i, (header>>25)&0x7f)
			}
			addr := uint64(stream[i+1]) | uint64(stream[i+2])<<32
			dst, err := mem.words(addr, 1)
			if err != nil {
				return fmt.Errorf("word %d: %w", i, err)
			}
			if dst[0] == stream[i+5] {
				dst[0] = stream[i+3]
			}
			i += 8
		default:
			return fmt.Errorf("word %d: sdma opcode %#x", i, op)
		}
	}
	return nil
}
