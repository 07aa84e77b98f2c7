//go:build unit

package cs

import (
	"errors"
	"testing"

	"github.com/emergingrobotics/go-amdgpu/pkg/driver"
)

func TestClassifyChip(t *testing.T) {
	tests := []struct {
		name   string
		family uint32
		rev    uint32
		chip   Chip
		class  Class
	}{
		{"tahiti", driver.FamilySI, 0x05, ChipTahiti, ClassGFX6},
		{"verde", driver.FamilySI, 0x29, ChipVerde, ClassGFX6},
		{"oland boundary", driver.FamilySI, 0x3C, ChipOland, ClassGFX6},
		{"hainan high", driver.FamilySI, 0xFE, ChipHainan, ClassGFX6},
		{"bonaire", driver.FamilyCI, 0x14, ChipBonaire, ClassGFX7},
		{"hawaii", driver.FamilyCI, 0x28, ChipHawaii, ClassGFX7},
		{"kaveri spectre", driver.FamilyKV, 0x01, ChipKaveri, ClassGFX7},
		{"kaveri spooky", driver.FamilyKV, 0x41, ChipKaveri, ClassGFX7},
		{"kabini kalindi", driver.FamilyKV, 0x81, ChipKabini, ClassGFX7},
		{"kabini godavari", driver.FamilyKV, 0xA1, ChipKabini, ClassGFX7},
		{"iceland", driver.FamilyVI, 0x01, ChipIceland, ClassGFX8},
		{"tonga", driver.FamilyVI, 0x14, ChipTonga, ClassGFX8},
		{"fiji", driver.FamilyVI, 0x3C, ChipFiji, ClassGFX8},
		{"polaris10", driver.FamilyVI, 0x50, ChipPolaris10, ClassGFX8},
		{"polaris11", driver.FamilyVI, 0x5A, ChipPolaris11, ClassGFX8},
		{"polaris12", driver.FamilyVI, 0x64, ChipPolaris12, ClassGFX8},
		{"vegam", driver.FamilyVI, 0x6E, ChipVegaM, ClassGFX8},
		{"carrizo", driver.FamilyCZ, 0x01, ChipCarrizo, ClassGFX8},
		{"stoney", driver.FamilyCZ, 0x61, ChipStoney, ClassGFX8},
		{"vega10", driver.FamilyAI, 0x01, ChipVega10, ClassGFX9},
		{"vega20", driver.FamilyAI, 0x28, ChipVega20, ClassGFX9},
		{"arcturus", driver.FamilyAI, 0x32, ChipArcturus, ClassGFX9},
		{"aldebaran", driver.FamilyAI, 0x3C, ChipAldebaran, ClassGFX9},
		{"raven", driver.FamilyRV, 0x01, ChipRaven, ClassGFX9},
		{"raven2", driver.FamilyRV, 0x81, ChipRaven2, ClassGFX9},
		{"renoir", driver.FamilyRV, 0x91, ChipRenoir, ClassGFX9},
		{"navi10", driver.FamilyNV, 0x01, ChipNavi10, ClassGFX10},
		{"navi12", driver.FamilyNV, 0x0A, ChipNavi12, ClassGFX10},
		{"navi14", driver.FamilyNV, 0x14, ChipNavi14, ClassGFX10},
		{"sienna cichlid", driver.FamilyNV, 0x28, ChipSiennaCichlid, ClassGFX10_3},
		{"navy flounder", driver.FamilyNV, 0x32, ChipNavyFlounder, ClassGFX10_3},
		{"dimgrey cavefish", driver.FamilyNV, 0x3C, ChipDimgreyCavefish, ClassGFX10_3},
		{"beige goby", driver.FamilyNV, 0x46, ChipBeigeGoby, ClassGFX10_3},
		{"vangogh", driver.FamilyVGH, 0x01, ChipVanGogh, ClassGFX10_3},
		{"yellow carp", driver.FamilyYC, 0x20, ChipYellowCarp, ClassGFX10_3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chip, class, err := ClassifyChip(tt.family, tt.rev)
			if err != nil {
				t.Fatalf("ClassifyChip(%d, %#x) failed: %v", tt.family, tt.rev, err)
			}
			if chip != tt.chip {
				t.Errorf("chip = %s, want %s", chip, tt.chip)
			}
			if class != tt.class {
				t.Errorf("class = %s, want %s", class, tt.class)
			}
		})
	}
}

func TestClassifyChipUnknown(t *testing.T) {
	tests := []struct {
		name   string
		family uint32
		rev    uint32
	}{
		{"unknown family", 999, 0x10},
		{"si below tahiti", driver.FamilySI, 0x04},
		{"si tahiti pitcairn gap", driver.FamilySI, 0x14},
		{"ci below bonaire", driver.FamilyCI, 0x13},
		{"ci above hawaii", driver.FamilyCI, 0x3C},
		{"vi tonga fiji gap", driver.FamilyVI, 0x30},
		{"kv zero", driver.FamilyKV, 0x00},
		{"nv above beige goby", driver.FamilyNV, 0x50},
		{"yc top of range", driver.FamilyYC, 0xFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chip, class, err := ClassifyChip(tt.family, tt.rev)
			if !errors.Is(err, ErrUnknownChip) {
				t.Errorf("ClassifyChip(%d, %#x) error = %v, want ErrUnknownChip",
					tt.family, tt.rev, err)
			}
			if chip != ChipUnknown || class != ClassUnknown {
				t.Errorf("got %s/%s for an unidentified revision", chip, class)
			}
		})
	}
}

func TestChipAndClassStrings(t *testing.T) {
	if got := ChipSiennaCichlid.String(); got != "sienna_cichlid" {
		t.Errorf("ChipSiennaCichlid.String() = %q", got)
	}
	if got := ChipPolaris10.String(); got != "polaris10" {
		t.Errorf("ChipPolaris10.String() = %q", got)
	}
	if got := ChipUnknown.String(); got != "chip(0)" {
		t.Errorf("ChipUnknown.String() = %q", got)
	}
	if got := ClassGFX10_3.String(); got != "gfx10.3" {
		t.Errorf("ClassGFX10_3.String() = %q", got)
	}
	if got := ClassUnknown.String(); got != "class(0)" {
		t.Errorf("ClassUnknown.String() = %q", got)
	}
}
