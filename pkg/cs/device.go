package cs

import (
	"github.com/emergingrobotics/go-amdgpu/pkg/device"
	"github.com/emergingrobotics/go-amdgpu/pkg/driver"
)

// Device is the slice of the device layer the submission core needs.
// *device.Device satisfies it against real hardware; tests satisfy it
// with an in-memory simulator.
type Device interface {
	AllocAndMap(size, alignment uint64, domain driver.GemDomain, flags uint64) (*device.BO, error)
	UnmapAndFree(bo *device.BO) error

	CreateContext() (uint32, error)
	DestroyContext(ctxID uint32) error

	CreateBOList(handles []uint32) (uint32, error)
	DestroyBOList(listHandle uint32) error

	Submit(ctxID uint32, req *device.SubmitRequest) (uint64, error)
	QueryFence(fence driver.Fence, timeoutNs uint64) (bool, error)
	WaitFences(fences []driver.Fence, waitAll bool, timeoutNs uint64) (bool, uint32, error)

	QueryHWIPInfo(ipType driver.HwIPType) (*driver.HwIPInfo, error)
}

var _ Device = (*device.Device)(nil)
