package testutil

import (
	"testing"

	"github.com/emergingrobotics/go-amdgpu/pkg/device"
)

// SkipIfNoDevice skips the test unless an amdgpu node can be opened,
// and returns the path of the first one that can.
func SkipIfNoDevice(t *testing.T) string {
	t.Helper()

	devices, err := device.Scan()
	if err != nil {
		t.Skipf("device scan failed: %v", err)
	}
	for _, d := range devices {
		dev, err := device.Open(d.Path)
		if err != nil {
			continue
		}
		dev.Close()
		return d.Path
	}
	t.Skip("no amdgpu device available")
	return ""
}

// FillWords sets every element of a word slice to value
func FillWords(words []uint32, value uint32) {
	for i := range words {
		words[i] = value
	}
}

// AssertEqual fails if values are not equal
func AssertEqual(t *testing.T, got, want interface{}, msg string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %v, want %v", msg, got, want)
	}
}

// AssertNoError fails if error is not nil
func AssertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", msg, err)
	}
}

// AssertError fails if error is nil
func AssertError(t *testing.T, err error, msg string) {
	t.Helper()
	if err == nil {
		t.Errorf("%s: expected error, got nil", msg)
	}
}

// AssertWordsEqual compares word slices and reports the first mismatch
func AssertWordsEqual(t *testing.T, got, want []uint32, msg string) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("%s: length mismatch: got %d, want %d", msg, len(got), len(want))
		return
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("%s: mismatch at word %d: got %#x, want %#x", msg, i, got[i], want[i])
			return
		}
	}
}
