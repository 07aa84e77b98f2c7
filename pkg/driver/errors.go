package driver

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Status classifies a DRM operation failure
type Status int

// Status codes for the failure modes the amdgpu ioctl surface produces
const (
	StatusSuccess         Status = 0
	StatusUninitialized   Status = 1
	StatusInvalidArgument Status = 2
	StatusNoMemory        Status = 3
	StatusNoGpuMemory     Status = 4
	StatusTimeout         Status = 5
	StatusInterrupted     Status = 6
	StatusBusy            Status = 7
	StatusNoDevice        Status = 8
	StatusNotFound        Status = 9
	StatusPermission      Status = 10
	StatusBadIoctl        Status = 11
	StatusFaulted         Status = 12
	StatusCanceled        Status = 13
	StatusIoctlFailed     Status = 14
)

var statusMessages = map[Status]string{
	StatusSuccess:         "success",
	StatusUninitialized:   "uninitialized",
	StatusInvalidArgument: "invalid argument",
	StatusNoMemory:        "out of memory",
	StatusNoGpuMemory:     "out of GPU memory",
	StatusTimeout:         "timeout",
	StatusInterrupted:     "interrupted",
	StatusBusy:            "device busy",
	StatusNoDevice:        "no such device",
	StatusNotFound:        "not found",
	StatusPermission:      "permission denied",
	StatusBadIoctl:        "invalid ioctl (driver/uapi mismatch)",
	StatusFaulted:         "bad address in ioctl argument",
	StatusCanceled:        "canceled (context lost after GPU reset)",
	StatusIoctlFailed:     "ioctl failed",
}

// String returns the human-readable status message
func (s Status) String() string {
	if msg, ok := statusMessages[s]; ok {
		return msg
	}
	return fmt.Sprintf("unknown status (%d)", int(s))
}

// DrmError represents an error from the DRM device or the amdgpu kernel driver
type DrmError struct {
	Status  Status
	Context string
	Cause   error
}

// Error implements the error interface
func (e *DrmError) Error() string {
	if e.Context != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s: %v", e.Context, e.Status.String(), e.Cause)
		}
		return fmt.Sprintf("%s: %s", e.Context, e.Status.String())
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Status.String(), e.Cause)
	}
	return e.Status.String()
}

// Unwrap returns the underlying cause
func (e *DrmError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches a target status
func (e *DrmError) Is(target error) bool {
	var drmErr *DrmError
	if errors.As(target, &drmErr) {
		return e.Status == drmErr.Status
	}
	return false
}

// NewError creates a new DrmError with the given status
func NewError(status Status, context string) *DrmError {
	return &DrmError{
		Status:  status,
		Context: context,
	}
}

// NewErrorWithCause creates a new DrmError with an underlying cause
func NewErrorWithCause(status Status, context string, cause error) *DrmError {
	return &DrmError{
		Status:  status,
		Context: context,
		Cause:   cause,
	}
}

// ErrnoToStatus converts a Linux errno to a driver status
func ErrnoToStatus(errno unix.Errno) Status {
	switch errno {
	case unix.ENOMEM:
		return StatusNoMemory
	case unix.ENOSPC, unix.ENOBUFS:
		return StatusNoGpuMemory
	case unix.ETIMEDOUT, unix.ETIME:
		return StatusTimeout
	case unix.EINTR, unix.EAGAIN:
		return StatusInterrupted
	case unix.EBUSY:
		return StatusBusy
	case unix.ENODEV, unix.ENXIO:
		return StatusNoDevice
	case unix.ENOENT:
		return StatusNotFound
	case unix.EACCES, unix.EPERM:
		return StatusPermission
	case unix.ENOTTY:
		return StatusBadIoctl
	case unix.EFAULT:
		return StatusFaulted
	case unix.ECANCELED:
		return StatusCanceled
	case unix.EINVAL:
		return StatusInvalidArgument
	default:
		return StatusIoctlFailed
	}
}

// StatusFromErrno creates a DrmError from an errno
func StatusFromErrno(errno unix.Errno, context string) *DrmError {
	return &DrmError{
		Status:  ErrnoToStatus(errno),
		Context: context,
		Cause:   errno,
	}
}
