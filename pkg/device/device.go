// Package device is the userspace face of the amdgpu kernel driver:
// node discovery, GPU info queries, buffer-object allocation with GPU
// virtual address management, submission contexts and fence waits. It
// plays the role libdrm's amdgpu wrapper plays for C consumers.
package device

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/emergingrobotics/go-amdgpu/pkg/driver"
)

// Device represents an open amdgpu render or card node
type Device struct {
	df      *driver.DeviceFile
	version *driver.DrmVersion
	info    *driver.DevInfo
	vamgr   *vaAllocator
	mu      sync.RWMutex
	closed  bool
}

// GPUInfo is the log-friendly subset of the kernel device info query.
type GPUInfo struct {
	DeviceID       uint32
	ChipRev        uint32
	ExternalRev    uint32
	PciRev         uint32
	Family         uint32
	FamilyName     string
	ComputeUnits   uint32
	MaxEngineClock uint64
	GartPageSize   uint32
}

// BO is a mapped buffer object: a GEM handle bound to a GPU virtual
// address with a CPU-visible view of the same pages.
type BO struct {
	Handle  uint32
	GPUAddr uint64
	Size    uint64
	Words   []uint32

	raw    []byte
	vaSize uint64
}

// IB describes one indirect buffer of a submission.
type IB struct {
	VA     uint64
	SizeDw uint32
	Flags  uint32
}

// SubmitRequest carries everything one CS ioctl needs besides the
// context: the engine, the ring, the resource list and the IB chain.
type SubmitRequest struct {
	IPType     driver.HwIPType
	IPInstance uint32
	Ring       uint32
	BOList     uint32
	IBs        []IB
}

// Open opens an amdgpu node by path
func Open(path string) (*Device, error) {
	df, err := driver.OpenDevice(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open device: %w", err)
	}

	version, err := df.Version()
	if err != nil {
		df.Close()
		return nil, fmt.Errorf("failed to query driver version: %w", err)
	}
	if version.Name != amdgpuDriverName {
		df.Close()
		return nil, fmt.Errorf("%s is driven by %q: %w", path, version.Name, ErrWrongDriver)
	}

	info, err := df.InfoDevice()
	if err != nil {
		df.Close()
		return nil, fmt.Errorf("failed to query device info: %w", err)
	}

	return &Device{
		df:      df,
		version: version,
		info:    info,
		vamgr: newVaAllocator(info.VirtualAddressOffset, info.VirtualAddressMax,
			uint64(info.VirtualAddressAlignment)),
	}, nil
}

// OpenFirst opens the first available amdgpu device
func OpenFirst() (*Device, error) {
	devices, err := Scan()
	if err != nil {
		return nil, fmt.Errorf("failed to scan devices: %w", err)
	}

	if len(devices) == 0 {
		return nil, ErrNoDevices
	}

	return Open(devices[0].Path)
}

// Close closes the device
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}

	d.closed = true
	return d.df.Close()
}

// Path returns the device path
func (d *Device) Path() string {
	return d.df.Path()
}

// DriverVersion returns the kernel driver version string
func (d *Device) DriverVersion() string {
	return formatDriverVersion(d.version.Major, d.version.Minor,
		d.version.Patchlevel)
}

// Version returns a copy of the DRM version record
func (d *Device) Version() driver.DrmVersion {
	return *d.version
}

// RawInfo returns a copy of the kernel device info record
func (d *Device) RawInfo() driver.DevInfo {
	return *d.info
}

// Info returns the log-friendly GPU description
func (d *Device) Info() GPUInfo {
	return GPUInfo{
		DeviceID:       d.info.DeviceID,
		ChipRev:        d.info.ChipRev,
		ExternalRev:    d.info.ExternalRev,
		PciRev:         d.info.PciRev,
		Family:         d.info.Family,
		FamilyName:     driver.FamilyName(d.info.Family),
		ComputeUnits:   d.info.CuActiveNumber,
		MaxEngineClock: d.info.MaxEngineClock,
		GartPageSize:   d.info.GartPageSize,
	}
}

// DeviceFile returns the underlying driver device file
func (d *Device) DeviceFile() *driver.DeviceFile {
	return d.df
}

func formatDriverVersion(major, minor, patch int32) string {
	return fmt.Sprintf("%d.%d.%d", major, minor, patch)
}

// QueryHWIPInfo returns ring counts and IB alignment rules for one
// hardware IP block class.
func (d *Device) QueryHWIPInfo(ipType driver.HwIPType) (*driver.HwIPInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, ErrDeviceClosed
	}
	return d.df.InfoHwIP(ipType, 0)
}

// QueryVramGtt returns the memory pool sizes.
func (d *Device) QueryVramGtt() (*driver.VramGttInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, ErrDeviceClosed
	}
	return d.df.InfoVramGtt()
}

// AllocAndMap allocates a buffer object, binds it to a fresh GPU
// virtual address and maps it for the CPU. Partial state is torn down
// in reverse on any failure.
func (d *Device) AllocAndMap(size, alignment uint64, domain driver.GemDomain, flags uint64) (*BO, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, ErrDeviceClosed
	}

	handle, err := d.df.GemCreate(size, alignment, domain, flags)
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer object: %w", err)
	}

	vaSize := alignUp(size, 4096)
	va, err := d.vamgr.alloc(vaSize, alignment)
	if err != nil {
		d.df.GemClose(handle)
		return nil, fmt.Errorf("failed to reserve GPU address range: %w", err)
	}

	err = d.df.GemVaOp(handle, driver.VAOpMap, vaMapFlags, va, 0, vaSize)
	if err != nil {
		d.vamgr.release(va, vaSize)
		d.df.GemClose(handle)
		return nil, fmt.Errorf("failed to map GPU address range: %w", err)
	}

	mmapOffset, err := d.df.GemMmapOffset(handle)
	if err == nil {
		var raw []byte
		raw, err = d.df.Mmap(mmapOffset, int(size))
		if err == nil {
			return &BO{
				Handle:  handle,
				GPUAddr: va,
				Size:    size,
				Words:   wordView(raw),
				raw:     raw,
				vaSize:  vaSize,
			}, nil
		}
		err = fmt.Errorf("failed to map buffer object: %w", err)
	} else {
		err = fmt.Errorf("failed to query mmap offset: %w", err)
	}

	d.df.GemVaOp(handle, driver.VAOpUnmap, vaMapFlags, va, 0, vaSize)
	d.vamgr.release(va, vaSize)
	d.df.GemClose(handle)
	return nil, err
}

// UnmapAndFree releases everything AllocAndMap set up. Teardown keeps
// going past individual failures and reports the first one.
func (d *Device) UnmapAndFree(bo *BO) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDeviceClosed
	}

	var firstErr error
	if bo.raw != nil {
		if err := d.df.Munmap(bo.raw); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to unmap buffer object: %w", err)
		}
		bo.raw = nil
		bo.Words = nil
	}
	err := d.df.GemVaOp(bo.Handle, driver.VAOpUnmap, vaMapFlags, bo.GPUAddr, 0, bo.vaSize)
	if err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to unmap GPU address range: %w", err)
	}
	d.vamgr.release(bo.GPUAddr, bo.vaSize)
	if err := d.df.GemClose(bo.Handle); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close buffer object: %w", err)
	}
	return firstErr
}

// vaMapFlags matches what libdrm requests for an ordinary mapping.
const vaMapFlags = driver.VMPageReadable | driver.VMPageWriteable | driver.VMPageExecutable

// wordView reinterprets a mapping as little-endian 32-bit words, the
// unit every command stream is written in.
func wordView(raw []byte) []uint32 {
	if len(raw) < 4 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&raw[0])), len(raw)/4)
}

// CreateContext allocates a submission context.
func (d *Device) CreateContext() (uint32, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return 0, ErrDeviceClosed
	}
	return d.df.CtxAlloc()
}

// DestroyContext frees a submission context.
func (d *Device) DestroyContext(ctxID uint32) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDeviceClosed
	}
	return d.df.CtxFree(ctxID)
}

// CreateBOList registers the set of buffer objects a submission will
// touch.
func (d *Device) CreateBOList(handles []uint32) (uint32, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return 0, ErrDeviceClosed
	}
	return d.df.BoListCreate(handles)
}

// DestroyBOList drops a buffer object list.
func (d *Device) DestroyBOList(listHandle uint32) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDeviceClosed
	}
	return d.df.BoListDestroy(listHandle)
}

// Submit pushes one request down the CS ioctl and returns the fence
// sequence number the kernel assigned.
func (d *Device) Submit(ctxID uint32, req *SubmitRequest) (uint64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return 0, ErrDeviceClosed
	}
	if len(req.IBs) == 0 {
		return 0, fmt.Errorf("submission without indirect buffers")
	}

	chunks := make([]driver.CsChunkIB, len(req.IBs))
	for i, ib := range req.IBs {
		chunks[i] = driver.CsChunkIB{
			Flags:      ib.Flags,
			VaStart:    ib.VA,
			IbBytes:    ib.SizeDw * 4,
			IPType:     uint32(req.IPType),
			IPInstance: req.IPInstance,
			Ring:       req.Ring,
		}
	}
	return d.df.CsSubmit(ctxID, req.BOList, chunks)
}

// QueryFence blocks until the fence signals or the timeout elapses.
// The returned flag reports whether the fence had signaled.
func (d *Device) QueryFence(fence driver.Fence, timeoutNs uint64) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return false, ErrDeviceClosed
	}
	return d.df.WaitCs(fence.CtxID, driver.HwIPType(fence.IPType), fence.Ring,
		fence.SeqNo, timeoutNs)
}

// WaitFences waits on a fence set, all of them or any one. Returns the
// signaled flag and, for wait-any, the index of the first fence that
// signaled.
func (d *Device) WaitFences(fences []driver.Fence, waitAll bool, timeoutNs uint64) (bool, uint32, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return false, 0, ErrDeviceClosed
	}
	return d.df.WaitFences(fences, waitAll, timeoutNs)
}
