package driver

import "fmt"

// DRM IOCTL base - must match drm.h
const (
	DrmIoctlBase   = 'd' // 0x64
	DrmCommandBase = 0x40
)

// DRM core IOCTL command numbers
const (
	IoctlNrVersion  = 0x00
	IoctlNrGemClose = 0x09
)

// amdgpu IOCTL command numbers, relative to DrmCommandBase - must match amdgpu_drm.h
const (
	IoctlNrGemCreate  = 0x00
	IoctlNrGemMmap    = 0x01
	IoctlNrCtx        = 0x02
	IoctlNrBoList     = 0x03
	IoctlNrCs         = 0x04
	IoctlNrInfo       = 0x05
	IoctlNrGemVa      = 0x08
	IoctlNrWaitCs     = 0x09
	IoctlNrWaitFences = 0x12
)

// GemDomain selects the memory pools a buffer object may live in
type GemDomain uint64

const (
	GemDomainCPU  GemDomain = 0x1
	GemDomainGTT  GemDomain = 0x2
	GemDomainVRAM GemDomain = 0x4
	GemDomainGDS  GemDomain = 0x8
	GemDomainGWS  GemDomain = 0x10
	GemDomainOA   GemDomain = 0x20
)

// GEM creation flags (domain_flags of the create request)
const (
	GemCreateCPUAccessRequired = 1 << 0
	GemCreateNoCPUAccess       = 1 << 1
	GemCreateCPUGTTUSWC        = 1 << 2
	GemCreateVRAMCleared       = 1 << 3
	GemCreateVRAMContiguous    = 1 << 5
	GemCreateExplicitSync      = 1 << 7
	GemCreateEncrypted         = 1 << 10
)

// GPU virtual address map operations
const (
	VAOpMap     = 1
	VAOpUnmap   = 2
	VAOpClear   = 3
	VAOpReplace = 4
)

// GPU VM page flags
const (
	VMDelayUpdate    = 1 << 0
	VMPageReadable   = 1 << 1
	VMPageWriteable  = 1 << 2
	VMPageExecutable = 1 << 3
)

// Context operations
const (
	CtxOpAllocCtx   = 1
	CtxOpFreeCtx    = 2
	CtxOpQueryState = 3
)

// CtxPriorityNormal is the default scheduler priority for new contexts
const CtxPriorityNormal = 0

// Buffer object list operations
const (
	BoListOpCreate  = 0
	BoListOpDestroy = 1
	BoListOpUpdate  = 2
)

// Command submission chunk identifiers
const (
	ChunkIDIB           = 0x01
	ChunkIDFence        = 0x02
	ChunkIDDependencies = 0x03
	ChunkIDBoHandles    = 0x06
)

// Indirect buffer flags (per-IB in a submission chunk)
const (
	IBFlagCE       = 1 << 0
	IBFlagPreamble = 1 << 1
	IBFlagPreempt  = 1 << 2
	IBFlagSecure   = 1 << 5
)

// HwIPType identifies a hardware IP block class on the submission ABI
type HwIPType uint32

const (
	HwIPGfx     HwIPType = 0
	HwIPCompute HwIPType = 1
	HwIPDma     HwIPType = 2
	HwIPUvd     HwIPType = 3
	HwIPVce     HwIPType = 4
	HwIPUvdEnc  HwIPType = 5
	HwIPVcnDec  HwIPType = 6
	HwIPVcnEnc  HwIPType = 7
	HwIPVcnJpeg HwIPType = 8
	HwIPNum     HwIPType = 9
)

func (t HwIPType) String() string {
	switch t {
	case HwIPGfx:
		return "gfx"
	case HwIPCompute:
		return "compute"
	case HwIPDma:
		return "sdma"
	case HwIPUvd:
		return "uvd"
	case HwIPVce:
		return "vce"
	case HwIPUvdEnc:
		return "uvd_enc"
	case HwIPVcnDec:
		return "vcn_dec"
	case HwIPVcnEnc:
		return "vcn_enc"
	case HwIPVcnJpeg:
		return "vcn_jpeg"
	}
	return fmt.Sprintf("hw_ip(%d)", uint32(t))
}

// HwIPInstanceMaxCount is the number of instances per IP type exposed by the ABI
const HwIPInstanceMaxCount = 1

// Info ioctl query identifiers
const (
	InfoQueryAccelWorking = 0x00
	InfoQueryHwIPInfo     = 0x07
	InfoQueryVramGtt      = 0x14
	InfoQueryDevInfo      = 0x16
)

// Kernel chip family identifiers reported in device info
const (
	FamilyUnknown = 0
	FamilySI      = 110 // Hainan, Oland, Verde, Pitcairn, Tahiti
	FamilyCI      = 120 // Bonaire, Hawaii
	FamilyKV      = 125 // Kaveri, Kabini
	FamilyVI      = 130 // Iceland, Tonga, Fiji, Polaris
	FamilyCZ      = 135 // Carrizo, Stoney
	FamilyAI      = 141 // Vega10 and up
	FamilyRV      = 142 // Raven
	FamilyNV      = 143 // Navi10 and up
	FamilyVGH     = 144 // Van Gogh
	FamilyYC      = 146 // Yellow Carp
)

// FamilyName returns the canonical short name for a kernel family id.
func FamilyName(family uint32) string {
	switch family {
	case FamilySI:
		return "SI"
	case FamilyCI:
		return "CI"
	case FamilyKV:
		return "KV"
	case FamilyVI:
		return "VI"
	case FamilyCZ:
		return "CZ"
	case FamilyAI:
		return "AI"
	case FamilyRV:
		return "RV"
	case FamilyNV:
		return "NV"
	case FamilyVGH:
		return "VGH"
	case FamilyYC:
		return "YC"
	}
	return fmt.Sprintf("unknown(%d)", family)
}

// TimeoutInfinite makes a fence wait block until the fence signals
const TimeoutInfinite = ^uint64(0)

// MaxDriverNameLength bounds the name buffers used for the version query
const MaxDriverNameLength = 128

// IOCTL direction flags for _IOC macro
const (
	IocNone  = 0
	IocWrite = 1
	IocRead  = 2
)

// IOCTL size/direction encoding constants
const (
	IocNrBits   = 8
	IocTypeBits = 8
	IocSizeBits = 14
	IocDirBits  = 2

	IocNrShift   = 0
	IocTypeShift = IocNrShift + IocNrBits
	IocSizeShift = IocTypeShift + IocTypeBits
	IocDirShift  = IocSizeShift + IocSizeBits
)

// Ioc creates an IOCTL command number
func Ioc(dir, iocType, nr, size int) uint32 {
	return uint32((dir << IocDirShift) |
		(iocType << IocTypeShift) |
		(nr << IocNrShift) |
		(size << IocSizeShift))
}

// IoW creates a write IOCTL (data flows from user to kernel)
func IoW(iocType, nr, size int) uint32 {
	return Ioc(IocWrite, iocType, nr, size)
}

// IoR creates a read IOCTL (data flows from kernel to user)
func IoR(iocType, nr, size int) uint32 {
	return Ioc(IocRead, iocType, nr, size)
}

// IoWR creates a read-write IOCTL
func IoWR(iocType, nr, size int) uint32 {
	return Ioc(IocRead|IocWrite, iocType, nr, size)
}

// Io creates an IOCTL with no data transfer
func Io(iocType, nr int) uint32 {
	return Ioc(IocNone, iocType, nr, 0)
}
