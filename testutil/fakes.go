// Package testutil provides an in-memory stand-in for an amdgpu
// device plus small helpers shared by tests across packages.
package testutil

import (
	"errors"
	"fmt"
	"sync"

	"github.com/emergingrobotics/go-amdgpu/pkg/device"
	"github.com/emergingrobotics/go-amdgpu/pkg/driver"
)

// SubmitRecord captures one command submission as the simulator saw it.
type SubmitRecord struct {
	CtxID      uint32
	IPType     driver.HwIPType
	IPInstance uint32
	Ring       uint32
	BOList     uint32
	IBs        []device.IB
	SeqNo      uint64
}

// AllocRecord captures one buffer-object allocation request.
type AllocRecord struct {
	Size      uint64
	Alignment uint64
	Domain    driver.GemDomain
	Flags     uint64
}

// SimDevice simulates the device layer in memory. It allocates buffer
// objects backed by plain slices, validates submissions the way the
// kernel does and executes PM4 and SDMA streams against the allocated
// memory. Fences retire as soon as the submission executes.
type SimDevice struct {
	mu sync.Mutex

	family      uint32
	externalRev uint32
	rings       map[driver.HwIPType]uint32

	nextHandle uint32
	nextList   uint32
	nextCtx    uint32
	nextVA     uint64
	nextSeq    uint64

	bos   map[uint32]*device.BO
	ctxs  map[uint32]bool
	lists map[uint32][]uint32

	latestSeq map[fenceKey]uint64

	submissions []SubmitRecord
	allocs      []AllocRecord
	freeCount   int

	failOnAlloc  bool
	failOnSubmit bool
	hangFences   bool
	submitHook   func(count int, req *device.SubmitRequest) error
}

type fenceKey struct {
	ctx      uint32
	ipType   uint32
	instance uint32
	ring     uint32
}

// NewSimDevice returns a simulator that looks like a Polaris 10 with
// one graphics ring, four compute rings and two DMA rings.
func NewSimDevice() *SimDevice {
	return &SimDevice{
		family:      driver.FamilyVI,
		externalRev: 0x50,
		rings: map[driver.HwIPType]uint32{
			driver.HwIPGfx:     1,
			driver.HwIPCompute: 4,
			driver.HwIPDma:     2,
		},
		nextHandle: 1,
		nextList:   1,
		nextCtx:    1,
		nextVA:     0x100000,
		nextSeq:    1,
		bos:        make(map[uint32]*device.BO),
		ctxs:       make(map[uint32]bool),
		lists:      make(map[uint32][]uint32),
		latestSeq:  make(map[fenceKey]uint64),
	}
}

// SetASIC changes the family and external revision the simulator
// reports through DevInfo.
func (d *SimDevice) SetASIC(family, externalRev uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.family = family
	d.externalRev = externalRev
}

// SetRingCount changes how many rings one IP block class exposes.
func (d *SimDevice) SetRingCount(ipType driver.HwIPType, count uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rings[ipType] = count
}

// SetFailOnAlloc makes AllocAndMap fail
func (d *SimDevice) SetFailOnAlloc(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failOnAlloc = fail
}

// SetFailOnSubmit makes Submit fail before validation
func (d *SimDevice) SetFailOnSubmit(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failOnSubmit = fail
}

// SetHangFences makes every fence wait report an unsignaled fence
func (d *SimDevice) SetHangFences(hang bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hangFences = hang
}

// SetSubmitHook installs a callback invoked at the top of every
// Submit with the number of submissions executed so far. A non-nil
// return fails that submission with the returned error.
func (d *SimDevice) SetSubmitHook(hook func(count int, req *device.SubmitRequest) error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submitHook = hook
}

// DevInfo returns a device info record describing the simulated ASIC.
func (d *SimDevice) DevInfo() *driver.DevInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &driver.DevInfo{
		Family:      d.family,
		ExternalRev: d.externalRev,
	}
}

// AllocAndMap hands out a buffer object backed by a plain word slice
// at a fresh simulated GPU address.
func (d *SimDevice) AllocAndMap(size, alignment uint64, domain driver.GemDomain, flags uint64) (*device.BO, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failOnAlloc {
		return nil, errors.New("simulated allocation failure")
	}
	if size == 0 {
		return nil, errors.New("zero-size allocation")
	}
	if alignment == 0 {
		alignment = 4096
	}

	va := alignUp(d.nextVA, alignment)
	d.nextVA = va + alignUp(size, 4096)

	handle := d.nextHandle
	d.nextHandle++

	bo := &device.BO{
		Handle:  handle,
		GPUAddr: va,
		Size:    size,
		Words:   make([]uint32, (size+3)/4),
	}
	d.bos[handle] = bo
	d.allocs = append(d.allocs, AllocRecord{
		Size:      size,
		Alignment: alignment,
		Domain:    domain,
		Flags:     flags,
	})
	return bo, nil
}

// UnmapAndFree releases a buffer object handed out by AllocAndMap.
func (d *SimDevice) UnmapAndFree(bo *device.BO) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if bo == nil {
		return errors.New("nil buffer object")
	}
	if _, ok := d.bos[bo.Handle]; !ok {
		return fmt.Errorf("unknown buffer object handle %d", bo.Handle)
	}
	delete(d.bos, bo.Handle)
	d.freeCount++
	return nil
}

// CreateContext allocates a submission context
func (d *SimDevice) CreateContext() (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextCtx
	d.nextCtx++
	d.ctxs[id] = true
	return id, nil
}

// DestroyContext frees a submission context
func (d *SimDevice) DestroyContext(ctxID uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.ctxs[ctxID] {
		return fmt.Errorf("unknown context %d", ctxID)
	}
	delete(d.ctxs, ctxID)
	return nil
}

// CreateBOList registers a buffer object set. Every handle must name
// a live buffer object.
func (d *SimDevice) CreateBOList(handles []uint32) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, h := range handles {
		if _, ok := d.bos[h]; !ok {
			return 0, fmt.Errorf("unknown buffer object handle %d in list", h)
		}
	}
	id := d.nextList
	d.nextList++
	d.lists[id] = append([]uint32(nil), handles...)
	return id, nil
}

// DestroyBOList drops a buffer object list
func (d *SimDevice) DestroyBOList(listHandle uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.lists[listHandle]; !ok {
		return fmt.Errorf("unknown buffer list %d", listHandle)
	}
	delete(d.lists, listHandle)
	return nil
}

// Submit validates the request the way the CS ioctl would, then walks
// every indirect buffer through the engine's packet interpreter. The
// fence for the returned sequence number signals immediately.
func (d *SimDevice) Submit(ctxID uint32, req *device.SubmitRequest) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failOnSubmit {
		return 0, errors.New("simulated submission failure")
	}
	if d.submitHook != nil {
		if err := d.submitHook(len(d.submissions), req); err != nil {
			return 0, err
		}
	}
	if !d.ctxs[ctxID] {
		return 0, fmt.Errorf("unknown context %d", ctxID)
	}
	handles, ok := d.lists[req.BOList]
	if !ok {
		return 0, fmt.Errorf("unknown buffer list %d", req.BOList)
	}
	if len(req.IBs) == 0 {
		return 0, errors.New("submission without indirect buffers")
	}
	if req.Ring >= d.rings[req.IPType] {
		return 0, fmt.Errorf("ring %d out of range for %s", req.Ring, req.IPType)
	}

	mem := &memView{bos: d.bos, handles: make(map[uint32]bool, len(handles))}
	for _, h := range handles {
		mem.handles[h] = true
	}

	for _, ib := range req.IBs {
		if ib.SizeDw == 0 {
			return 0, errors.New("zero-length indirect buffer")
		}
		stream, err := mem.words(ib.VA, int(ib.SizeDw))
		if err != nil {
			return 0, fmt.Errorf("indirect buffer at %#x: %w", ib.VA, err)
		}
		switch req.IPType {
		case driver.HwIPGfx, driver.HwIPCompute:
			err = runPM4(mem, stream)
		case driver.HwIPDma:
			err = runSDMA(mem, stream, d.family)
		default:
			err = fmt.Errorf("no interpreter for %s", req.IPType)
		}
		if err != nil {
			return 0, err
		}
	}

	seq := d.nextSeq
	d.nextSeq++
	key := fenceKey{ctx: ctxID, ipType: uint32(req.IPType), instance: req.IPInstance, ring: req.Ring}
	d.latestSeq[key] = seq

	d.submissions = append(d.submissions, SubmitRecord{
		CtxID:      ctxID,
		IPType:     req.IPType,
		IPInstance: req.IPInstance,
		Ring:       req.Ring,
		BOList:     req.BOList,
		IBs:        append([]device.IB(nil), req.IBs...),
		SeqNo:      seq,
	})
	return seq, nil
}

// QueryFence reports whether the fence has signaled. Simulated
// submissions retire immediately, so only the hang knob and fences
// never submitted come back unsignaled.
func (d *SimDevice) QueryFence(fence driver.Fence, timeoutNs uint64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.hangFences {
		return false, nil
	}
	return d.fenceSignaledLocked(fence), nil
}

// WaitFences reports whether all fences, or any fence, signaled. For
// a wait-any it also returns the index of the first signaled fence.
func (d *SimDevice) WaitFences(fences []driver.Fence, waitAll bool, timeoutNs uint64) (bool, uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(fences) == 0 {
		return false, 0, errors.New("empty fence set")
	}
	if d.hangFences {
		return false, 0, nil
	}

	first := -1
	all := true
	for i, f := range fences {
		if d.fenceSignaledLocked(f) {
			if first < 0 {
				first = i
			}
		} else {
			all = false
		}
	}
	if waitAll {
		return all, 0, nil
	}
	if first < 0 {
		return false, 0, nil
	}
	return true, uint32(first), nil
}

func (d *SimDevice) fenceSignaledLocked(fence driver.Fence) bool {
	key := fenceKey{ctx: fence.CtxID, ipType: fence.IPType, instance: fence.IPInstance, ring: fence.Ring}
	return fence.SeqNo != 0 && fence.SeqNo <= d.latestSeq[key]
}

// QueryHWIPInfo reports the ring mask and IB alignment rules for one
// IP block class. Version majors follow the VI generation blocks.
func (d *SimDevice) QueryHWIPInfo(ipType driver.HwIPType) (*driver.HwIPInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	count := d.rings[ipType]
	if count == 0 {
		return &driver.HwIPInfo{}, nil
	}

	info := &driver.HwIPInfo{
		IbStartAlignment: 32,
		IbSizeAlignment:  32,
		AvailableRings:   (1 << count) - 1,
	}
	switch ipType {
	case driver.HwIPGfx, driver.HwIPCompute:
		info.VersionMajor = 8
	case driver.HwIPDma:
		info.VersionMajor = 3
	}
	return info, nil
}

// Submissions returns a copy of every submission executed so far.
func (d *SimDevice) Submissions() []SubmitRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]SubmitRecord(nil), d.submissions...)
}

// SubmitCount returns how many submissions executed
func (d *SimDevice) SubmitCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.submissions)
}

// Allocations returns a copy of every allocation request so far.
func (d *SimDevice) Allocations() []AllocRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]AllocRecord(nil), d.allocs...)
}

// ActiveBOs returns how many buffer objects are still allocated
func (d *SimDevice) ActiveBOs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.bos)
}

// ActiveContexts returns how many contexts are still alive
func (d *SimDevice) ActiveContexts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ctxs)
}

// ActiveBOLists returns how many buffer lists are still alive
func (d *SimDevice) ActiveBOLists() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lists)
}

// FreeCount returns how many buffer objects were released
func (d *SimDevice) FreeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.freeCount
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
