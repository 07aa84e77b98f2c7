package device

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/emergingrobotics/go-amdgpu/pkg/driver"
)

// DeviceInfo contains discovered device information
type DeviceInfo struct {
	Path          string
	Node          string
	DriverVersion string
}

// DeviceScanner scans DRI nodes for amdgpu devices
type DeviceScanner struct {
	devDir string
}

// NewScanner creates a new device scanner
func NewScanner() *DeviceScanner {
	return &DeviceScanner{
		devDir: "/dev/dri",
	}
}

// Scan finds all DRI nodes driven by amdgpu. Render nodes come first
// because they do not require DRM master; card nodes follow for setups
// without render nodes. Nodes that cannot be opened or that belong to
// another driver are skipped silently.
func (s *DeviceScanner) Scan() ([]DeviceInfo, error) {
	if s.devDir == "" {
		s.devDir = "/dev/dri"
	}

	entries, err := os.ReadDir(s.devDir)
	if err != nil {
		return nil, nil
	}

	var renders, cards []string
	for _, entry := range entries {
		name := entry.Name()
		switch nodeKind(name) {
		case nodeRender:
			renders = append(renders, name)
		case nodeCard:
			cards = append(cards, name)
		}
	}
	sortNodes(renders, "renderD")
	sortNodes(cards, "card")

	var devices []DeviceInfo
	for _, name := range append(renders, cards...) {
		path := filepath.Join(s.devDir, name)
		info, ok := probeNode(path, name)
		if ok {
			devices = append(devices, info)
		}
	}
	return devices, nil
}

// probeNode opens the node and checks the driver identity.
func probeNode(path, name string) (DeviceInfo, bool) {
	df, err := driver.OpenDevice(path)
	if err != nil {
		return DeviceInfo{}, false
	}
	defer df.Close()

	version, err := df.Version()
	if err != nil || version.Name != amdgpuDriverName {
		return DeviceInfo{}, false
	}

	return DeviceInfo{
		Path: path,
		Node: name,
		DriverVersion: formatDriverVersion(version.Major, version.Minor,
			version.Patchlevel),
	}, true
}

const amdgpuDriverName = "amdgpu"

type nodeClass int

const (
	nodeOther nodeClass = iota
	nodeRender
	nodeCard
)

// nodeKind classifies a /dev/dri entry name. Control nodes and
// anything without a numeric suffix are ignored.
func nodeKind(name string) nodeClass {
	if n, ok := nodeOrdinal(name, "renderD"); ok && n >= 128 {
		return nodeRender
	}
	if _, ok := nodeOrdinal(name, "card"); ok {
		return nodeCard
	}
	return nodeOther
}

func nodeOrdinal(name, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// sortNodes orders node names by their numeric suffix, so card10 sorts
// after card2.
func sortNodes(names []string, prefix string) {
	sort.Slice(names, func(i, j int) bool {
		a, _ := nodeOrdinal(names[i], prefix)
		b, _ := nodeOrdinal(names[j], prefix)
		return a < b
	})
}

// Scan uses the default scanner to find all amdgpu devices
func Scan() ([]DeviceInfo, error) {
	return NewScanner().Scan()
}
