//go:build unit

package driver

import (
	"errors"
	"fmt"
	"testing"

	"golang.org/x/sys/unix"
)

func TestAllStatusCodesHaveMessages(t *testing.T) {
	statuses := []Status{
		StatusSuccess,
		StatusUninitialized,
		StatusInvalidArgument,
		StatusNoMemory,
		StatusNoGpuMemory,
		StatusTimeout,
		StatusInterrupted,
		StatusBusy,
		StatusNoDevice,
		StatusNotFound,
		StatusPermission,
		StatusBadIoctl,
		StatusFaulted,
		StatusCanceled,
		StatusIoctlFailed,
	}

	for _, status := range statuses {
		msg := status.String()
		if msg == "" {
			t.Errorf("status %d has empty message", status)
		}
		if len(msg) >= 8 && msg[:8] == "unknown " {
			t.Errorf("status %d has no defined message: %s", status, msg)
		}
	}
}

func TestStatusStringReturnsUnknownForUndefinedStatus(t *testing.T) {
	unknownStatus := Status(9999)
	msg := unknownStatus.String()
	if msg != "unknown status (9999)" {
		t.Errorf("expected 'unknown status (9999)', got '%s'", msg)
	}
}

func TestDrmErrorImplementsError(t *testing.T) {
	var err error = &DrmError{
		Status:  StatusInvalidArgument,
		Context: "test context",
	}

	if err.Error() == "" {
		t.Error("Error() returned empty string")
	}
}

func TestDrmErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *DrmError
		expected string
	}{
		{
			name: "status only",
			err: &DrmError{
				Status: StatusInvalidArgument,
			},
			expected: "invalid argument",
		},
		{
			name: "with context",
			err: &DrmError{
				Status:  StatusInvalidArgument,
				Context: "opening device",
			},
			expected: "opening device: invalid argument",
		},
		{
			name: "with cause",
			err: &DrmError{
				Status: StatusIoctlFailed,
				Cause:  unix.ENOENT,
			},
			expected: "ioctl failed: no such file or directory",
		},
		{
			name: "with context and cause",
			err: &DrmError{
				Status:  StatusIoctlFailed,
				Context: "opening device",
				Cause:   unix.ENOENT,
			},
			expected: "opening device: ioctl failed: no such file or directory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.expected {
				t.Errorf("expected '%s', got '%s'", tt.expected, got)
			}
		})
	}
}

func TestDrmErrorUnwrap(t *testing.T) {
	cause := unix.ENOENT
	err := &DrmError{
		Status: StatusNotFound,
		Cause:  cause,
	}

	unwrapped := err.Unwrap()
	if unwrapped != cause {
		t.Errorf("Unwrap() returned %v, expected %v", unwrapped, cause)
	}
}

func TestDrmErrorUnwrapNil(t *testing.T) {
	err := &DrmError{
		Status: StatusNotFound,
	}

	unwrapped := err.Unwrap()
	if unwrapped != nil {
		t.Errorf("Unwrap() returned %v, expected nil", unwrapped)
	}
}

func TestDrmErrorIs(t *testing.T) {
	err1 := &DrmError{Status: StatusInvalidArgument}
	err2 := &DrmError{Status: StatusInvalidArgument}
	err3 := &DrmError{Status: StatusTimeout}

	if !errors.Is(err1, err2) {
		t.Error("errors.Is should return true for same status")
	}

	if errors.Is(err1, err3) {
		t.Error("errors.Is should return false for different status")
	}
}

func TestDrmErrorIsThroughWrapping(t *testing.T) {
	inner := StatusFromErrno(unix.ENOMEM, "gem-create ioctl")
	wrapped := fmt.Errorf("allocating data buffer: %w", inner)

	if !errors.Is(wrapped, &DrmError{Status: StatusNoMemory}) {
		t.Error("wrapped DrmError should still match by status")
	}
	if !errors.Is(wrapped, unix.ENOMEM) {
		t.Error("wrapped DrmError should still expose the errno cause")
	}
}

func TestNewError(t *testing.T) {
	err := NewError(StatusTimeout, "waiting for fence")

	if err.Status != StatusTimeout {
		t.Errorf("expected status %d, got %d", StatusTimeout, err.Status)
	}
	if err.Context != "waiting for fence" {
		t.Errorf("expected context 'waiting for fence', got '%s'", err.Context)
	}
	if err.Cause != nil {
		t.Error("expected nil cause")
	}
}

func TestNewErrorWithCause(t *testing.T) {
	cause := unix.ETIMEDOUT
	err := NewErrorWithCause(StatusTimeout, "wait-cs ioctl", cause)

	if err.Status != StatusTimeout {
		t.Errorf("expected status %d, got %d", StatusTimeout, err.Status)
	}
	if err.Context != "wait-cs ioctl" {
		t.Errorf("expected context 'wait-cs ioctl', got '%s'", err.Context)
	}
	if err.Cause != cause {
		t.Errorf("expected cause %v, got %v", cause, err.Cause)
	}
}

func TestErrnoToStatus(t *testing.T) {
	tests := []struct {
		errno    unix.Errno
		expected Status
	}{
		{unix.ENOMEM, StatusNoMemory},
		{unix.ENOSPC, StatusNoGpuMemory},
		{unix.ENOBUFS, StatusNoGpuMemory},
		{unix.ETIMEDOUT, StatusTimeout},
		{unix.EINTR, StatusInterrupted},
		{unix.EAGAIN, StatusInterrupted},
		{unix.EBUSY, StatusBusy},
		{unix.ENODEV, StatusNoDevice},
		{unix.ENXIO, StatusNoDevice},
		{unix.ENOENT, StatusNotFound},
		{unix.EACCES, StatusPermission},
		{unix.EPERM, StatusPermission},
		{unix.ENOTTY, StatusBadIoctl},
		{unix.EFAULT, StatusFaulted},
		{unix.ECANCELED, StatusCanceled},
		{unix.EINVAL, StatusInvalidArgument},
		{unix.EPIPE, StatusIoctlFailed}, // unmapped errno
	}

	for _, tt := range tests {
		t.Run(tt.errno.Error(), func(t *testing.T) {
			got := ErrnoToStatus(tt.errno)
			if got != tt.expected {
				t.Errorf("ErrnoToStatus(%v) = %d, expected %d", tt.errno, got, tt.expected)
			}
		})
	}
}

func TestStatusFromErrno(t *testing.T) {
	err := StatusFromErrno(unix.ETIMEDOUT, "wait-cs ioctl")

	if err.Status != StatusTimeout {
		t.Errorf("expected StatusTimeout, got %d", err.Status)
	}
	if err.Context != "wait-cs ioctl" {
		t.Errorf("expected context 'wait-cs ioctl', got '%s'", err.Context)
	}
	if err.Cause != unix.ETIMEDOUT {
		t.Errorf("expected cause ETIMEDOUT, got %v", err.Cause)
	}
}

func TestStatusSuccessIsZero(t *testing.T) {
	if StatusSuccess != 0 {
		t.Errorf("StatusSuccess should be 0, got %d", StatusSuccess)
	}
}
