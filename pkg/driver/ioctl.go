package driver

import (
	"fmt"
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DeviceFile represents an open DRM device file descriptor
type DeviceFile struct {
	fd   int
	path string
}

// OpenDevice opens a DRM device node by path
func OpenDevice(path string) (*DeviceFile, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		errno, ok := err.(unix.Errno)
		if ok {
			return nil, StatusFromErrno(errno, "opening device "+path)
		}
		return nil, NewErrorWithCause(StatusIoctlFailed, "opening device "+path, err)
	}
	return &DeviceFile{fd: fd, path: path}, nil
}

// Close closes the device file
func (d *DeviceFile) Close() error {
	if d.fd >= 0 {
		err := unix.Close(d.fd)
		d.fd = -1
		if err != nil {
			return NewErrorWithCause(StatusIoctlFailed, "closing device", err)
		}
	}
	return nil
}

// Fd returns the file descriptor
func (d *DeviceFile) Fd() int {
	return d.fd
}

// Path returns the device path
func (d *DeviceFile) Path() string {
	return d.path
}

// ioctl performs an ioctl syscall, restarting on EINTR/EAGAIN the way
// drmIoctl does
func (d *DeviceFile) ioctl(cmd uint32, name string, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), uintptr(cmd), uintptr(arg))
		if errno == 0 {
			return nil
		}
		if errno == unix.EINTR || errno == unix.EAGAIN {
			continue
		}
		return StatusFromErrno(errno, name)
	}
}

// IOCTL command codes (calculated from type and size)
var (
	ioctlVersion  = IoWR(DrmIoctlBase, IoctlNrVersion, SizeOfVersionArgs)
	ioctlGemClose = IoW(DrmIoctlBase, IoctlNrGemClose, SizeOfGemCloseArgs)

	ioctlGemCreate  = IoWR(DrmIoctlBase, DrmCommandBase+IoctlNrGemCreate, SizeOfGemCreateArgs)
	ioctlGemMmap    = IoWR(DrmIoctlBase, DrmCommandBase+IoctlNrGemMmap, SizeOfGemMmapArgs)
	ioctlCtx        = IoWR(DrmIoctlBase, DrmCommandBase+IoctlNrCtx, SizeOfCtxArgs)
	ioctlBoList     = IoWR(DrmIoctlBase, DrmCommandBase+IoctlNrBoList, SizeOfBoListArgs)
	ioctlCs         = IoWR(DrmIoctlBase, DrmCommandBase+IoctlNrCs, SizeOfCsArgs)
	ioctlInfo       = IoW(DrmIoctlBase, DrmCommandBase+IoctlNrInfo, SizeOfInfoArgs)
	ioctlGemVa      = IoW(DrmIoctlBase, DrmCommandBase+IoctlNrGemVa, SizeOfGemVaArgs)
	ioctlWaitCs     = IoWR(DrmIoctlBase, DrmCommandBase+IoctlNrWaitCs, SizeOfWaitCsArgs)
	ioctlWaitFences = IoWR(DrmIoctlBase, DrmCommandBase+IoctlNrWaitFences, SizeOfWaitFencesArgs)
)

// DrmVersion describes the kernel driver backing a DRM node
type DrmVersion struct {
	Major      int32
	Minor      int32
	Patchlevel int32
	Name       string
	Date       string
	Desc       string
}

// Version queries the DRM driver identity of the node
func (d *DeviceFile) Version() (*DrmVersion, error) {
	name := make([]byte, MaxDriverNameLength)
	date := make([]byte, MaxDriverNameLength)
	desc := make([]byte, MaxDriverNameLength)
	args := VersionArgs{
		NameLen: uintptr(len(name)),
		Name:    &name[0],
		DateLen: uintptr(len(date)),
		Date:    &date[0],
		DescLen: uintptr(len(desc)),
		Desc:    &desc[0],
	}
	err := d.ioctl(ioctlVersion, "version ioctl", unsafe.Pointer(&args))
	if err != nil {
		return nil, err
	}
	clamp := func(n uintptr) int {
		if n > uintptr(MaxDriverNameLength) {
			return MaxDriverNameLength
		}
		return int(n)
	}
	return &DrmVersion{
		Major:      args.Major,
		Minor:      args.Minor,
		Patchlevel: args.Patchlevel,
		Name:       string(name[:clamp(args.NameLen)]),
		Date:       string(date[:clamp(args.DateLen)]),
		Desc:       string(desc[:clamp(args.DescLen)]),
	}, nil
}

// GemCreate allocates a buffer object and returns its GEM handle
func (d *DeviceFile) GemCreate(size, alignment uint64, domains GemDomain, flags uint64) (uint32, error) {
	args := GemCreateArgs{
		BoSize:      size,
		Alignment:   alignment,
		Domains:     uint64(domains),
		DomainFlags: flags,
	}
	err := d.ioctl(ioctlGemCreate, "gem-create ioctl", unsafe.Pointer(&args))
	if err != nil {
		return 0, err
	}
	reply := (*GemCreateReply)(unsafe.Pointer(&args))
	return reply.Handle, nil
}

// GemMmapOffset returns the fake mmap offset for a buffer object
func (d *DeviceFile) GemMmapOffset(handle uint32) (uint64, error) {
	args := GemMmapArgs{Handle: handle}
	err := d.ioctl(ioctlGemMmap, "gem-mmap ioctl", unsafe.Pointer(&args))
	if err != nil {
		return 0, err
	}
	reply := (*GemMmapReply)(unsafe.Pointer(&args))
	return reply.AddrPtr, nil
}

// GemClose releases a GEM handle
func (d *DeviceFile) GemClose(handle uint32) error {
	args := GemCloseArgs{Handle: handle}
	return d.ioctl(ioctlGemClose, "gem-close ioctl", unsafe.Pointer(&args))
}

// Mmap maps size bytes of a buffer object at the given fake offset
func (d *DeviceFile) Mmap(offset uint64, size int) ([]byte, error) {
	data, err := unix.Mmap(d.fd, int64(offset), size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		errno, ok := err.(unix.Errno)
		if ok {
			return nil, StatusFromErrno(errno, "mmap of buffer object")
		}
		return nil, NewErrorWithCause(StatusNoMemory, "mmap of buffer object", err)
	}
	return data, nil
}

// Munmap unmaps a mapping returned by Mmap
func (d *DeviceFile) Munmap(data []byte) error {
	if err := unix.Munmap(data); err != nil {
		return NewErrorWithCause(StatusIoctlFailed, "munmap of buffer object", err)
	}
	return nil
}

// CtxAlloc creates a GPU scheduling context
func (d *DeviceFile) CtxAlloc() (uint32, error) {
	args := CtxArgs{Op: CtxOpAllocCtx, Priority: CtxPriorityNormal}
	err := d.ioctl(ioctlCtx, "context-alloc ioctl", unsafe.Pointer(&args))
	if err != nil {
		return 0, err
	}
	reply := (*CtxAllocReply)(unsafe.Pointer(&args))
	return reply.CtxID, nil
}

// CtxFree destroys a GPU scheduling context
func (d *DeviceFile) CtxFree(ctxID uint32) error {
	args := CtxArgs{Op: CtxOpFreeCtx, CtxID: ctxID}
	return d.ioctl(ioctlCtx, "context-free ioctl", unsafe.Pointer(&args))
}

// BoListCreate builds a kernel-side buffer object list from GEM handles
func (d *DeviceFile) BoListCreate(handles []uint32) (uint32, error) {
	if len(handles) == 0 {
		return 0, NewError(StatusInvalidArgument, "creating bo list")
	}
	entries := make([]BoListEntry, len(handles))
	for i, h := range handles {
		entries[i] = BoListEntry{BoHandle: h}
	}
	args := BoListArgs{
		Operation:  BoListOpCreate,
		BoNumber:   uint32(len(entries)),
		BoInfoSize: uint32(SizeOfBoListEntry),
		BoInfoPtr:  uint64(uintptr(unsafe.Pointer(&entries[0]))),
	}
	err := d.ioctl(ioctlBoList, "bo-list-create ioctl", unsafe.Pointer(&args))
	runtime.KeepAlive(entries)
	if err != nil {
		return 0, err
	}
	reply := (*BoListReply)(unsafe.Pointer(&args))
	return reply.ListHandle, nil
}

// BoListDestroy releases a buffer object list
func (d *DeviceFile) BoListDestroy(listHandle uint32) error {
	args := BoListArgs{
		Operation:  BoListOpDestroy,
		ListHandle: listHandle,
	}
	return d.ioctl(ioctlBoList, "bo-list-destroy ioctl", unsafe.Pointer(&args))
}

// CsSubmit submits the given indirect buffers as one request on a context
// and returns the fence sequence number
func (d *DeviceFile) CsSubmit(ctxID, boListHandle uint32, ibs []CsChunkIB) (uint64, error) {
	if len(ibs) == 0 {
		return 0, NewError(StatusInvalidArgument, "submitting command stream")
	}
	chunks := make([]CsChunk, len(ibs))
	chunkPtrs := make([]uint64, len(ibs))
	for i := range ibs {
		chunks[i] = CsChunk{
			ChunkID:   ChunkIDIB,
			LengthDw:  uint32(SizeOfCsChunkIB / 4),
			ChunkData: uint64(uintptr(unsafe.Pointer(&ibs[i]))),
		}
		chunkPtrs[i] = uint64(uintptr(unsafe.Pointer(&chunks[i])))
	}
	args := CsArgs{
		CtxID:        ctxID,
		BoListHandle: boListHandle,
		NumChunks:    uint32(len(chunks)),
		Chunks:       uint64(uintptr(unsafe.Pointer(&chunkPtrs[0]))),
	}
	err := d.ioctl(ioctlCs, "cs ioctl", unsafe.Pointer(&args))
	runtime.KeepAlive(ibs)
	runtime.KeepAlive(chunks)
	runtime.KeepAlive(chunkPtrs)
	if err != nil {
		return 0, err
	}
	reply := (*CsReply)(unsafe.Pointer(&args))
	return reply.Handle, nil
}

// WaitCs blocks until the fence identified by (ctx, ip, ring, seq) signals
// or the timeout elapses. The reply status is nonzero while the fence is
// still busy, so expired is its negation.
func (d *DeviceFile) WaitCs(ctxID uint32, ipType HwIPType, ring uint32, seqNo, timeoutNs uint64) (bool, error) {
	args := WaitCsArgs{
		Handle:  seqNo,
		Timeout: timeoutNs,
		IPType:  uint32(ipType),
		Ring:    ring,
		CtxID:   ctxID,
	}
	err := d.ioctl(ioctlWaitCs, "wait-cs ioctl", unsafe.Pointer(&args))
	if err != nil {
		return false, err
	}
	reply := (*WaitCsReply)(unsafe.Pointer(&args))
	return reply.Status == 0, nil
}

// WaitFences waits on a set of fences, all of them or any one. Unlike the
// wait-cs reply, here a nonzero status means signaled. Returns whether the
// wait was satisfied and the index of the first signaled fence.
func (d *DeviceFile) WaitFences(fences []Fence, waitAll bool, timeoutNs uint64) (bool, uint32, error) {
	if len(fences) == 0 {
		return false, 0, NewError(StatusInvalidArgument, "waiting on fences")
	}
	args := WaitFencesArgs{
		Fences:     uint64(uintptr(unsafe.Pointer(&fences[0]))),
		FenceCount: uint32(len(fences)),
		TimeoutNs:  timeoutNs,
	}
	if waitAll {
		args.WaitAll = 1
	}
	err := d.ioctl(ioctlWaitFences, "wait-fences ioctl", unsafe.Pointer(&args))
	runtime.KeepAlive(fences)
	if err != nil {
		return false, 0, err
	}
	reply := (*WaitFencesReply)(unsafe.Pointer(&args))
	return reply.Status != 0, reply.FirstSignaled, nil
}

// GemVaOp maps or unmaps a buffer object range in the GPU virtual address
// space
func (d *DeviceFile) GemVaOp(handle uint32, operation, flags uint32, vaAddress, offsetInBo, mapSize uint64) error {
	args := GemVaArgs{
		Handle:     handle,
		Operation:  operation,
		Flags:      flags,
		VaAddress:  vaAddress,
		OffsetInBo: offsetInBo,
		MapSize:    mapSize,
	}
	return d.ioctl(ioctlGemVa, "gem-va ioctl", unsafe.Pointer(&args))
}

// InfoHwIP queries version and ring availability of one hardware IP block
func (d *DeviceFile) InfoHwIP(ipType HwIPType, instance uint32) (*HwIPInfo, error) {
	var info HwIPInfo
	args := InfoArgs{
		ReturnPointer: uint64(uintptr(unsafe.Pointer(&info))),
		ReturnSize:    uint32(SizeOfHwIPInfo),
		Query:         InfoQueryHwIPInfo,
		QueryType:     uint32(ipType),
		QueryInstance: instance,
	}
	err := d.ioctl(ioctlInfo, "hw-ip-info query", unsafe.Pointer(&args))
	runtime.KeepAlive(&info)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// InfoDevice queries the chip identity block of the device
func (d *DeviceFile) InfoDevice() (*DevInfo, error) {
	var info DevInfo
	args := InfoArgs{
		ReturnPointer: uint64(uintptr(unsafe.Pointer(&info))),
		ReturnSize:    uint32(SizeOfDevInfo),
		Query:         InfoQueryDevInfo,
	}
	err := d.ioctl(ioctlInfo, "device-info query", unsafe.Pointer(&args))
	runtime.KeepAlive(&info)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// InfoVramGtt queries the sizes of the VRAM and GTT memory pools
func (d *DeviceFile) InfoVramGtt() (*VramGttInfo, error) {
	var info VramGttInfo
	args := InfoArgs{
		ReturnPointer: uint64(uintptr(unsafe.Pointer(&info))),
		ReturnSize:    uint32(SizeOfVramGttInfo),
		Query:         InfoQueryVramGtt,
	}
	err := d.ioctl(ioctlInfo, "vram-gtt query", unsafe.Pointer(&args))
	runtime.KeepAlive(&info)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// ScanDevices lists DRM device nodes present on the system, render nodes
// first. No nodes is not an error.
func ScanDevices() ([]string, error) {
	var devices []string
	for i := 0; i < 64; i++ {
		path := fmt.Sprintf("/dev/dri/renderD%d", 128+i)
		if _, err := os.Stat(path); err == nil {
			devices = append(devices, path)
		}
	}
	for i := 0; i < 64; i++ {
		path := fmt.Sprintf("/dev/dri/card%d", i)
		if _, err := os.Stat(path); err == nil {
			devices = append(devices, path)
		}
	}
	return devices, nil
}
