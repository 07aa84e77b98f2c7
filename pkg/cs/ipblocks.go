// Package cs drives command submission to amdgpu engine rings. It
// identifies the GPU, registers per-generation capability sets for the
// graphics, compute and DMA engines, encodes command streams for them
// and pushes the streams through indirect buffers to the kernel.
package cs

import (
	"fmt"
	"sync"

	"github.com/emergingrobotics/go-amdgpu/pkg/driver"
)

// Type names an engine an IP block drives.
type Type int

const (
	GFX Type = iota
	Compute
	DMA
	UVD
	VCE
	TypeMax
)

func (t Type) String() string {
	switch t {
	case GFX:
		return "gfx"
	case Compute:
		return "compute"
	case DMA:
		return "sdma"
	case UVD:
		return "uvd"
	case VCE:
		return "vce"
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// HWIP returns the submission ABI ip_type for this engine.
func (t Type) HWIP() driver.HwIPType {
	switch t {
	case GFX:
		return driver.HwIPGfx
	case Compute:
		return driver.HwIPCompute
	case DMA:
		return driver.HwIPDma
	case UVD:
		return driver.HwIPUvd
	case VCE:
		return driver.HwIPVce
	}
	return driver.HwIPNum
}

// Funcs is one engine's capability set: the constants its packet
// formats need and the encoders and verifiers built on them. Encoders
// rewrite rctx.Cmds from the start and return the number of words
// emitted.
type Funcs interface {
	FamilyID() uint32
	AlignMask() uint32
	Nop() uint32
	FillValue() uint32
	Pattern() uint32

	WriteLinear(rctx *RingContext) (int, error)
	ConstFill(rctx *RingContext) (int, error)
	CopyLinear(rctx *RingContext) (int, error)

	// Compare checks that the first WriteLength/div words of rctx.BO
	// hold the fill value. ComparePattern checks that the first
	// WriteLength/div words of the copy destination rctx.BO2 hold the
	// pattern value.
	Compare(rctx *RingContext, div int) error
	ComparePattern(rctx *RingContext, div int) error
}

// caps holds the per-generation constants shared by an engine's
// encoders and implements the verifiers, which are packet-format
// independent.
type caps struct {
	familyID  uint32
	alignMask uint32
	nop       uint32
	deadbeaf  uint32
	pattern   uint32
}

func (c caps) FamilyID() uint32  { return c.familyID }
func (c caps) AlignMask() uint32 { return c.alignMask }
func (c caps) Nop() uint32       { return c.nop }
func (c caps) FillValue() uint32 { return c.deadbeaf }
func (c caps) Pattern() uint32   { return c.pattern }

func (c caps) Compare(rctx *RingContext, div int) error {
	return compareWords(rctx.BO.Words, int(rctx.WriteLength)/div, c.deadbeaf)
}

func (c caps) ComparePattern(rctx *RingContext, div int) error {
	return compareWords(rctx.BO2.Words, int(rctx.WriteLength)/div, c.pattern)
}

func compareWords(words []uint32, count int, want uint32) error {
	for i := 0; i < count; i++ {
		if words[i] != want {
			return fmt.Errorf("word %d is %#x, expected %#x", i, words[i], want)
		}
	}
	return nil
}

// IPBlock binds an engine to the capability set driving it at a given
// hardware version.
type IPBlock struct {
	Type  Type
	Major int
	Minor int
	Rev   int
	Funcs Funcs
}

// The blocks every supported generation registers today. Newer
// generations accept the VI-era packet formats these encode, so one
// set covers GFX7 through GFX10.
var (
	GFXv8     = &IPBlock{Type: GFX, Major: 8, Funcs: gfxV8Funcs}
	ComputeV8 = &IPBlock{Type: Compute, Major: 8, Funcs: gfxV8Funcs}
	SDMAv3    = &IPBlock{Type: DMA, Major: 3, Funcs: sdmaV3Funcs}
)

// Registry holds the IP blocks registered for one device, along with
// the identification that selected them. Methods are not synchronized;
// either confine a Registry to one goroutine or use the package-level
// default, which serializes access.
type Registry struct {
	dev      Device
	chip     Chip
	class    Class
	drmMajor int32
	drmMinor int32
	blocks   []*IPBlock
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Setup identifies the device from its reported family and external
// revision and registers the capability sets for its generation. It
// replaces any previous registration. The DRM version numbers are kept
// for reporting.
func (r *Registry) Setup(dev Device, info *driver.DevInfo, drmMajor, drmMinor int32) error {
	chip, class, err := ClassifyChip(info.Family, info.ExternalRev)
	if err != nil {
		return err
	}

	r.blocks = r.blocks[:0]
	switch class {
	case ClassGFX7, ClassGFX8, ClassGFX9, ClassGFX10:
		r.blocks = append(r.blocks, GFXv8, ComputeV8, SDMAv3)
	default:
		return fmt.Errorf("%s (%s): %w", chip, class, ErrUnsupportedGeneration)
	}

	r.dev = dev
	r.chip = chip
	r.class = class
	r.drmMajor = drmMajor
	r.drmMinor = drmMinor
	return nil
}

// Lookup returns the block registered for the engine, or nil if none
// is, or if the registry was set up for a different device.
func (r *Registry) Lookup(dev Device, t Type) *IPBlock {
	if r.dev == nil || r.dev != dev {
		return nil
	}
	for _, b := range r.blocks {
		if b.Type == t {
			return b
		}
	}
	return nil
}

// Blocks returns the registered blocks for the device, or nil for any
// other device.
func (r *Registry) Blocks(dev Device) []*IPBlock {
	if r.dev == nil || r.dev != dev {
		return nil
	}
	out := make([]*IPBlock, len(r.blocks))
	copy(out, r.blocks)
	return out
}

// Chip returns the die the registry was set up for.
func (r *Registry) Chip() Chip { return r.chip }

// Class returns the hardware generation the registry was set up for.
func (r *Registry) Class() Class { return r.class }

// DrmVersion returns the DRM interface version recorded at setup.
func (r *Registry) DrmVersion() (major, minor int32) {
	return r.drmMajor, r.drmMinor
}

var (
	defaultMu  sync.Mutex
	defaultReg = NewRegistry()
)

// Setup configures the package-level registry for the device.
func Setup(dev Device, info *driver.DevInfo, drmMajor, drmMinor int32) error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultReg.Setup(dev, info, drmMajor, drmMinor)
}

// Lookup fetches an engine's block from the package-level registry.
func Lookup(dev Device, t Type) *IPBlock {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultReg.Lookup(dev, t)
}

// Blocks lists the package-level registry's blocks for the device.
func Blocks(dev Device) []*IPBlock {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultReg.Blocks(dev)
}
