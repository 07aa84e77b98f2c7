//go:build integration

package driver

import (
	"os"
	"testing"
)

func skipIfNoDevice(t *testing.T) string {
	t.Helper()
	devices, err := ScanDevices()
	if err != nil || len(devices) == 0 {
		t.Skip("No DRM device available")
	}
	for _, path := range devices {
		dev, err := OpenDevice(path)
		if err != nil {
			continue
		}
		version, err := dev.Version()
		dev.Close()
		if err == nil && version.Name == "amdgpu" {
			return path
		}
	}
	t.Skip("No amdgpu device available")
	return ""
}

func TestOpenAndCloseDevice(t *testing.T) {
	path := skipIfNoDevice(t)

	dev, err := OpenDevice(path)
	if err != nil {
		t.Fatalf("failed to open device: %v", err)
	}
	defer dev.Close()

	if dev.Fd() < 0 {
		t.Error("expected valid file descriptor")
	}

	if dev.Path() != path {
		t.Errorf("expected path %s, got %s", path, dev.Path())
	}

	err = dev.Close()
	if err != nil {
		t.Errorf("failed to close device: %v", err)
	}

	if dev.Fd() != -1 {
		t.Error("expected fd to be -1 after close")
	}
}

func TestDoubleClose(t *testing.T) {
	path := skipIfNoDevice(t)

	dev, err := OpenDevice(path)
	if err != nil {
		t.Fatalf("failed to open device: %v", err)
	}

	err = dev.Close()
	if err != nil {
		t.Errorf("first close failed: %v", err)
	}

	err = dev.Close()
	if err != nil {
		t.Errorf("second close should not fail: %v", err)
	}
}

func TestVersionQuery(t *testing.T) {
	path := skipIfNoDevice(t)

	dev, err := OpenDevice(path)
	if err != nil {
		t.Fatalf("failed to open device: %v", err)
	}
	defer dev.Close()

	version, err := dev.Version()
	if err != nil {
		t.Fatalf("version query failed: %v", err)
	}
	if version.Name != "amdgpu" {
		t.Errorf("driver name = %q, expected amdgpu", version.Name)
	}
	if version.Major < 3 {
		t.Errorf("driver major version = %d, expected >= 3", version.Major)
	}

	t.Logf("Driver: %s %d.%d.%d (%s)", version.Name, version.Major,
		version.Minor, version.Patchlevel, version.Date)
}

func TestDeviceInfoQuery(t *testing.T) {
	path := skipIfNoDevice(t)

	dev, err := OpenDevice(path)
	if err != nil {
		t.Fatalf("failed to open device: %v", err)
	}
	defer dev.Close()

	info, err := dev.InfoDevice()
	if err != nil {
		t.Fatalf("device info query failed: %v", err)
	}

	if info.Family == FamilyUnknown {
		t.Error("kernel reported unknown chip family")
	}
	if info.VirtualAddressMax <= info.VirtualAddressOffset {
		t.Errorf("bad VA range: [0x%x, 0x%x)", info.VirtualAddressOffset, info.VirtualAddressMax)
	}

	t.Logf("Device 0x%04x: family=%d external_rev=0x%x VA=[0x%x,0x%x)",
		info.DeviceID, info.Family, info.ExternalRev,
		info.VirtualAddressOffset, info.VirtualAddressMax)
}

func TestHwIPInfoQuery(t *testing.T) {
	path := skipIfNoDevice(t)

	dev, err := OpenDevice(path)
	if err != nil {
		t.Fatalf("failed to open device: %v", err)
	}
	defer dev.Close()

	gfx, err := dev.InfoHwIP(HwIPGfx, 0)
	if err != nil {
		t.Fatalf("gfx hw ip query failed: %v", err)
	}
	if gfx.AvailableRings == 0 {
		t.Error("gfx block reports no available rings")
	}

	t.Logf("GFX %d.%d rings=0x%x ib_start_align=%d ib_size_align=%d",
		gfx.VersionMajor, gfx.VersionMinor, gfx.AvailableRings,
		gfx.IbStartAlignment, gfx.IbSizeAlignment)
}

func TestGemCreateAndClose(t *testing.T) {
	path := skipIfNoDevice(t)

	dev, err := OpenDevice(path)
	if err != nil {
		t.Fatalf("failed to open device: %v", err)
	}
	defer dev.Close()

	handle, err := dev.GemCreate(4096, 4096, GemDomainGTT, 0)
	if err != nil {
		t.Fatalf("gem create failed: %v", err)
	}
	if handle == 0 {
		t.Error("gem create returned null handle")
	}

	if err := dev.GemClose(handle); err != nil {
		t.Errorf("gem close failed: %v", err)
	}
}

func TestGemMmapRoundTrip(t *testing.T) {
	path := skipIfNoDevice(t)

	dev, err := OpenDevice(path)
	if err != nil {
		t.Fatalf("failed to open device: %v", err)
	}
	defer dev.Close()

	handle, err := dev.GemCreate(4096, 4096, GemDomainGTT, 0)
	if err != nil {
		t.Fatalf("gem create failed: %v", err)
	}
	defer dev.GemClose(handle)

	offset, err := dev.GemMmapOffset(handle)
	if err != nil {
		t.Fatalf("gem mmap offset failed: %v", err)
	}

	data, err := dev.Mmap(offset, 4096)
	if err != nil {
		t.Fatalf("mmap failed: %v", err)
	}
	defer dev.Munmap(data)

	data[0] = 0xAB
	data[4095] = 0xCD
	if data[0] != 0xAB || data[4095] != 0xCD {
		t.Error("mapping did not hold written bytes")
	}
}

func TestCtxAllocFree(t *testing.T) {
	path := skipIfNoDevice(t)

	dev, err := OpenDevice(path)
	if err != nil {
		t.Fatalf("failed to open device: %v", err)
	}
	defer dev.Close()

	ctx, err := dev.CtxAlloc()
	if err != nil {
		t.Fatalf("context alloc failed: %v", err)
	}

	if err := dev.CtxFree(ctx); err != nil {
		t.Errorf("context free failed: %v", err)
	}
}

func TestScanDevices(t *testing.T) {
	devices, err := ScanDevices()
	if err != nil {
		t.Logf("scan returned error (may be expected): %v", err)
	}

	t.Logf("found %d device(s): %v", len(devices), devices)

	for _, path := range devices {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("device path %s does not exist", path)
		}
	}
}
