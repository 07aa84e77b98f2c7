package driver

import "unsafe"

// The DRM ioctl argument blocks below mirror the kernel uapi layouts from
// drm.h and amdgpu_drm.h. Several commands use a C union for input and
// output; those are modeled as an Args struct for the input view plus a
// Reply struct the kernel overlays on the same memory.

// GemCreateArgs matches union drm_amdgpu_gem_create (input view)
type GemCreateArgs struct {
	BoSize      uint64
	Alignment   uint64
	Domains     uint64
	DomainFlags uint64
}

// GemCreateReply is the output overlay of union drm_amdgpu_gem_create
type GemCreateReply struct {
	Handle uint32
	_      [4]byte // padding
}

// GemMmapArgs matches union drm_amdgpu_gem_mmap (input view)
type GemMmapArgs struct {
	Handle uint32
	_      [4]byte // padding
}

// GemMmapReply is the output overlay carrying the mmap fake offset
type GemMmapReply struct {
	AddrPtr uint64
}

// GemCloseArgs matches struct drm_gem_close
type GemCloseArgs struct {
	Handle uint32
	_      [4]byte // padding
}

// CtxArgs matches union drm_amdgpu_ctx (input view)
type CtxArgs struct {
	Op       uint32
	Flags    uint32
	CtxID    uint32
	Priority uint32
}

// CtxAllocReply is the alloc output overlay of union drm_amdgpu_ctx
type CtxAllocReply struct {
	CtxID uint32
	_     [4]byte // padding
}

// BoListEntry matches struct drm_amdgpu_bo_list_entry
type BoListEntry struct {
	BoHandle   uint32
	BoPriority uint32
}

// BoListArgs matches union drm_amdgpu_bo_list (input view)
type BoListArgs struct {
	Operation  uint32
	ListHandle uint32
	BoNumber   uint32
	BoInfoSize uint32
	BoInfoPtr  uint64
}

// BoListReply is the output overlay carrying the new list handle
type BoListReply struct {
	ListHandle uint32
	_          [4]byte // padding
}

// CsChunk matches struct drm_amdgpu_cs_chunk
type CsChunk struct {
	ChunkID   uint32
	LengthDw  uint32
	ChunkData uint64
}

// CsChunkIB matches struct drm_amdgpu_cs_chunk_ib
type CsChunkIB struct {
	_          [4]byte // padding
	Flags      uint32
	VaStart    uint64
	IbBytes    uint32
	IPType     uint32
	IPInstance uint32
	Ring       uint32
}

// CsArgs matches union drm_amdgpu_cs (input view)
type CsArgs struct {
	CtxID        uint32
	BoListHandle uint32
	NumChunks    uint32
	Flags        uint32
	Chunks       uint64 // array of uint64 addresses, each pointing at a CsChunk
}

// CsReply is the output overlay carrying the fence sequence number
type CsReply struct {
	Handle uint64
}

// WaitCsArgs matches union drm_amdgpu_wait_cs (input view)
type WaitCsArgs struct {
	Handle     uint64
	Timeout    uint64
	IPType     uint32
	IPInstance uint32
	Ring       uint32
	CtxID      uint32
}

// WaitCsReply is the output overlay; Status is nonzero while the fence is busy
type WaitCsReply struct {
	Status uint64
}

// Fence matches struct drm_amdgpu_fence
type Fence struct {
	CtxID      uint32
	IPType     uint32
	IPInstance uint32
	Ring       uint32
	SeqNo      uint64
}

// WaitFencesArgs matches union drm_amdgpu_wait_fences (input view)
type WaitFencesArgs struct {
	Fences     uint64 // pointer to an array of Fence
	FenceCount uint32
	WaitAll    uint32
	TimeoutNs  uint64
}

// WaitFencesReply is the output overlay of union drm_amdgpu_wait_fences
type WaitFencesReply struct {
	Status        uint32
	FirstSignaled uint32
}

// GemVaArgs matches struct drm_amdgpu_gem_va
type GemVaArgs struct {
	Handle     uint32
	_          [4]byte // padding
	Operation  uint32
	Flags      uint32
	VaAddress  uint64
	OffsetInBo uint64
	MapSize    uint64
}

// InfoArgs matches struct drm_amdgpu_info. QueryType/QueryInstance are the
// hw_ip selector arm of the request union; plain queries leave them zero.
type InfoArgs struct {
	ReturnPointer uint64
	ReturnSize    uint32
	Query         uint32
	QueryType     uint32
	QueryInstance uint32
	_             [8]byte // padding to the full request union size
}

// HwIPInfo matches struct drm_amdgpu_info_hw_ip
type HwIPInfo struct {
	VersionMajor      uint32
	VersionMinor      uint32
	CapabilitiesFlags uint64
	IbStartAlignment  uint32
	IbSizeAlignment   uint32
	AvailableRings    uint32
	_                 [4]byte // padding
}

// VramGttInfo matches struct drm_amdgpu_info_vram_gtt
type VramGttInfo struct {
	VramSize              uint64
	CPUAccessibleVramSize uint64
	GttSize               uint64
}

// DevInfo matches the leading fields of struct drm_amdgpu_info_device. The
// kernel copies min(ReturnSize, its own size), so a prefix is a valid
// request buffer; everything the library consumes is in this prefix.
type DevInfo struct {
	DeviceID                 uint32
	ChipRev                  uint32
	ExternalRev              uint32
	PciRev                   uint32
	Family                   uint32
	NumShaderEngines         uint32
	NumShaderArraysPerEngine uint32
	GpuCounterFreq           uint32
	MaxEngineClock           uint64
	MaxMemoryClock           uint64
	CuActiveNumber           uint32
	CuAoMask                 uint32
	CuBitmap                 [4][4]uint32
	EnabledRbPipesMask       uint32
	NumRbPipes               uint32
	NumHwGfxContexts         uint32
	_                        [4]byte // padding
	IDsFlags                 uint64
	VirtualAddressOffset     uint64
	VirtualAddressMax        uint64
	VirtualAddressAlignment  uint32
	PteFragmentSize          uint32
	GartPageSize             uint32
	_                        [4]byte // padding
}

// VersionArgs matches struct drm_version. The length fields and buffer
// pointers follow the kernel's two-call convention: pass zero lengths to
// learn the sizes, then call again with allocated buffers.
type VersionArgs struct {
	Major      int32
	Minor      int32
	Patchlevel int32
	NameLen    uintptr
	Name       *byte
	DateLen    uintptr
	Date       *byte
	DescLen    uintptr
	Desc       *byte
}

// Struct sizes used to build the IOCTL command codes
var (
	SizeOfGemCreateArgs  = int(unsafe.Sizeof(GemCreateArgs{}))
	SizeOfGemMmapArgs    = int(unsafe.Sizeof(GemMmapArgs{}))
	SizeOfGemCloseArgs   = int(unsafe.Sizeof(GemCloseArgs{}))
	SizeOfCtxArgs        = int(unsafe.Sizeof(CtxArgs{}))
	SizeOfBoListArgs     = int(unsafe.Sizeof(BoListArgs{}))
	SizeOfBoListEntry    = int(unsafe.Sizeof(BoListEntry{}))
	SizeOfCsArgs         = int(unsafe.Sizeof(CsArgs{}))
	SizeOfCsChunk        = int(unsafe.Sizeof(CsChunk{}))
	SizeOfCsChunkIB      = int(unsafe.Sizeof(CsChunkIB{}))
	SizeOfWaitCsArgs     = int(unsafe.Sizeof(WaitCsArgs{}))
	SizeOfFence          = int(unsafe.Sizeof(Fence{}))
	SizeOfWaitFencesArgs = int(unsafe.Sizeof(WaitFencesArgs{}))
	SizeOfGemVaArgs      = int(unsafe.Sizeof(GemVaArgs{}))
	SizeOfInfoArgs       = int(unsafe.Sizeof(InfoArgs{}))
	SizeOfHwIPInfo       = int(unsafe.Sizeof(HwIPInfo{}))
	SizeOfVramGttInfo    = int(unsafe.Sizeof(VramGttInfo{}))
	SizeOfDevInfo        = int(unsafe.Sizeof(DevInfo{}))
	SizeOfVersionArgs    = int(unsafe.Sizeof(VersionArgs{}))
)
