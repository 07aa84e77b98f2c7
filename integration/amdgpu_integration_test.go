//go:build integration

package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/emergingrobotics/go-amdgpu/pkg/cs"
	"github.com/emergingrobotics/go-amdgpu/pkg/device"
	"github.com/emergingrobotics/go-amdgpu/pkg/driver"
	"github.com/emergingrobotics/go-amdgpu/testutil"
)

func openTestDevice(t *testing.T) *device.Device {
	t.Helper()

	path := testutil.SkipIfNoDevice(t)
	dev, err := device.Open(path)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	t.Cleanup(func() { dev.Close() })
	return dev
}

func setupRegistry(t *testing.T, dev *device.Device) *cs.Registry {
	t.Helper()

	raw := dev.RawInfo()
	ver := dev.Version()
	reg := cs.NewRegistry()
	if err := reg.Setup(dev, &raw, ver.Major, ver.Minor); err != nil {
		t.Skipf("Chip not supported by the ring suite: %v", err)
	}
	t.Logf("Chip: %s (%s), amdgpu %s", reg.Chip(), reg.Class(), dev.DriverVersion())
	return reg
}

func TestScanFindsOpenableDevices(t *testing.T) {
	devices, err := device.Scan()
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(devices) == 0 {
		t.Skip("No amdgpu device available")
	}

	for _, d := range devices {
		t.Logf("Found %s at %s (amdgpu %s)", d.Node, d.Path, d.DriverVersion)
		dev, err := device.Open(d.Path)
		if err != nil {
			t.Errorf("Failed to open %s: %v", d.Path, err)
			continue
		}
		info := dev.Info()
		t.Logf("  %s, device ID %#06x, %d CUs", info.FamilyName,
			info.DeviceID, info.ComputeUnits)
		dev.Close()
	}
}

func TestAllocateAndReleaseBuffers(t *testing.T) {
	dev := openTestDevice(t)

	// Step 1: GTT buffer with CPU access
	gtt, err := dev.AllocAndMap(4096, 4096, driver.GemDomainGTT, 0)
	if err != nil {
		t.Fatalf("GTT alloc failed: %v", err)
	}
	gtt.Words[0] = 0x12345678
	if gtt.Words[0] != 0x12345678 {
		t.Error("GTT mapping did not hold the written word")
	}
	if err := dev.UnmapAndFree(gtt); err != nil {
		t.Errorf("GTT release failed: %v", err)
	}

	// Step 2: VRAM buffer, CPU accessible
	vram, err := dev.AllocAndMap(4096, 4096, driver.GemDomainVRAM,
		driver.GemCreateCPUAccessRequired)
	if err != nil {
		t.Fatalf("VRAM alloc failed: %v", err)
	}
	vram.Words[0] = 0x87654321
	if vram.Words[0] != 0x87654321 {
		t.Error("VRAM mapping did not hold the written word")
	}
	if err := dev.UnmapAndFree(vram); err != nil {
		t.Errorf("VRAM release failed: %v", err)
	}
}

func TestWriteLinearOnEveryEngine(t *testing.T) {
	dev := openTestDevice(t)
	reg := setupRegistry(t, dev)

	for _, block := range reg.Blocks(dev) {
		t.Logf("Write linear on %s...", block.Type)
		if err := cs.RunWriteLinear(dev, block, false); err != nil {
			t.Errorf("%s write linear failed: %v", block.Type, err)
		}
	}
}

func TestConstFillOnEveryEngine(t *testing.T) {
	dev := openTestDevice(t)
	reg := setupRegistry(t, dev)

	for _, block := range reg.Blocks(dev) {
		t.Logf("Constant fill on %s...", block.Type)
		if err := cs.RunConstFill(dev, block); err != nil {
			t.Errorf("%s constant fill failed: %v", block.Type, err)
		}
	}
}

func TestCopyLinearOnEveryEngine(t *testing.T) {
	dev := openTestDevice(t)
	reg := setupRegistry(t, dev)

	for _, block := range reg.Blocks(dev) {
		t.Logf("Copy linear on %s...", block.Type)
		if err := cs.RunCopyLinear(dev, block); err != nil {
			t.Errorf("%s copy linear failed: %v", block.Type, err)
		}
	}
}

func TestComputeNopSubmissions(t *testing.T) {
	dev := openTestDevice(t)
	setupRegistry(t, dev)

	if err := cs.RunComputeNop(dev); err != nil {
		t.Fatalf("Compute nop failed: %v", err)
	}
}

func TestMultiFenceWait(t *testing.T) {
	dev := openTestDevice(t)
	reg := setupRegistry(t, dev)

	// The constant engine the CE IB targets exists through GFX9.
	if class := reg.Class(); class != cs.ClassGFX8 && class != cs.ClassGFX9 {
		t.Skipf("No constant engine on %s", class)
	}

	for _, waitAll := range []bool{false, true} {
		if err := cs.RunMultiFence(dev, waitAll); err != nil {
			t.Errorf("Multi fence (waitAll=%v) failed: %v", waitAll, err)
		}
	}
}

func TestNopLoopCancellation(t *testing.T) {
	dev := openTestDevice(t)
	setupRegistry(t, dev)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := cs.NopLoop(ctx, dev, driver.HwIPGfx); err != nil {
		t.Fatalf("Nop loop failed: %v", err)
	}
}

func TestSecureWriteLinear(t *testing.T) {
	if os.Getenv("AMDRING_SECURE") == "" {
		t.Skip("Set AMDRING_SECURE=1 to run protected (TMZ) submissions")
	}

	dev := openTestDevice(t)
	reg := setupRegistry(t, dev)

	for _, block := range reg.Blocks(dev) {
		if block.Type != cs.GFX && block.Type != cs.DMA {
			continue
		}
		t.Logf("Secure write linear on %s...", block.Type)
		if err := cs.RunWriteLinear(dev, block, true); err != nil {
			t.Errorf("%s secure write linear failed: %v", block.Type, err)
		}
	}
}
