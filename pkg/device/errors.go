package device

import "errors"

// Errors for device operations
var (
	ErrNoDevices    = errors.New("no amdgpu devices found")
	ErrWrongDriver  = errors.New("node is not driven by amdgpu")
	ErrDeviceClosed = errors.New("device is closed")
	ErrNoVaSpace    = errors.New("no free GPU virtual address range")
)
