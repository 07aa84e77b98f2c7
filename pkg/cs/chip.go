package cs

import (
	"fmt"

	"github.com/emergingrobotics/go-amdgpu/pkg/driver"
)

// Chip identifies a GPU die. The order follows release order within
// each hardware generation; generation thresholds below compare against
// it, so new dies must be appended in the right place.
type Chip int

const (
	ChipUnknown Chip = iota
	ChipTahiti
	ChipPitcairn
	ChipVerde
	ChipOland
	ChipHainan
	ChipBonaire
	ChipKaveri
	ChipKabini
	ChipHawaii
	ChipTonga
	ChipIceland
	ChipCarrizo
	ChipFiji
	ChipStoney
	ChipPolaris10
	ChipPolaris11
	ChipPolaris12
	ChipVegaM
	ChipVega10
	ChipVega12
	ChipVega20
	ChipRaven
	ChipRaven2
	ChipRenoir
	ChipArcturus
	ChipAldebaran
	ChipNavi10
	ChipNavi12
	ChipNavi14
	ChipSiennaCichlid
	ChipNavyFlounder
	ChipDimgreyCavefish
	ChipBeigeGoby
	ChipVanGogh
	ChipYellowCarp
)

var chipNames = map[Chip]string{
	ChipTahiti:          "tahiti",
	ChipPitcairn:        "pitcairn",
	ChipVerde:           "verde",
	ChipOland:           "oland",
	ChipHainan:          "hainan",
	ChipBonaire:         "bonaire",
	ChipKaveri:          "kaveri",
	ChipKabini:          "kabini",
	ChipHawaii:          "hawaii",
	ChipTonga:           "tonga",
	ChipIceland:         "iceland",
	ChipCarrizo:         "carrizo",
	ChipFiji:            "fiji",
	ChipStoney:          "stoney",
	ChipPolaris10:       "polaris10",
	ChipPolaris11:       "polaris11",
	ChipPolaris12:       "polaris12",
	ChipVegaM:           "vegam",
	ChipVega10:          "vega10",
	ChipVega12:          "vega12",
	ChipVega20:          "vega20",
	ChipRaven:           "raven",
	ChipRaven2:          "raven2",
	ChipRenoir:          "renoir",
	ChipArcturus:        "arcturus",
	ChipAldebaran:       "aldebaran",
	ChipNavi10:          "navi10",
	ChipNavi12:          "navi12",
	ChipNavi14:          "navi14",
	ChipSiennaCichlid:   "sienna_cichlid",
	ChipNavyFlounder:    "navy_flounder",
	ChipDimgreyCavefish: "dimgrey_cavefish",
	ChipBeigeGoby:       "beige_goby",
	ChipVanGogh:         "vangogh",
	ChipYellowCarp:      "yellow_carp",
}

func (c Chip) String() string {
	if name, ok := chipNames[c]; ok {
		return name
	}
	return fmt.Sprintf("chip(%d)", int(c))
}

// Class is the hardware generation a die belongs to. Capability sets
// are registered per Class, not per die.
type Class int

const (
	ClassUnknown Class = iota
	ClassGFX6
	ClassGFX7
	ClassGFX8
	ClassGFX9
	ClassGFX10
	ClassGFX10_3
)

func (c Class) String() string {
	switch c {
	case ClassGFX6:
		return "gfx6"
	case ClassGFX7:
		return "gfx7"
	case ClassGFX8:
		return "gfx8"
	case ClassGFX9:
		return "gfx9"
	case ClassGFX10:
		return "gfx10"
	case ClassGFX10_3:
		return "gfx10.3"
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// revRange maps a half-open external revision interval [lo, hi) within
// one kernel family to a die.
type revRange struct {
	lo, hi uint32
	chip   Chip
}

// chipRevisions mirrors the revision windows the kernel and addrlib use
// to tell dies of one family apart. Some families leave gaps between
// windows; revisions falling in a gap stay unidentified.
var chipRevisions = map[uint32][]revRange{
	driver.FamilySI: {
		{0x05, 0x14, ChipTahiti},
		{0x15, 0x28, ChipPitcairn},
		{0x29, 0x3C, ChipVerde},
		{0x3C, 0x46, ChipOland},
		{0x46, 0xFF, ChipHainan},
	},
	driver.FamilyCI: {
		{0x14, 0x28, ChipBonaire},
		{0x28, 0x3C, ChipHawaii},
	},
	driver.FamilyKV: {
		{0x01, 0x41, ChipKaveri}, // spectre
		{0x41, 0x81, ChipKaveri}, // spooky
		{0x81, 0xA1, ChipKabini}, // kalindi
		{0xA1, 0xFF, ChipKabini}, // godavari
	},
	driver.FamilyVI: {
		{0x01, 0x14, ChipIceland},
		{0x14, 0x28, ChipTonga},
		{0x3C, 0x50, ChipFiji},
		{0x50, 0x5A, ChipPolaris10},
		{0x5A, 0x64, ChipPolaris11},
		{0x64, 0x6E, ChipPolaris12},
		{0x6E, 0xFF, ChipVegaM},
	},
	driver.FamilyCZ: {
		{0x01, 0x61, ChipCarrizo},
		{0x61, 0xFF, ChipStoney},
	},
	driver.FamilyAI: {
		{0x01, 0x14, ChipVega10},
		{0x14, 0x28, ChipVega12},
		{0x28, 0x32, ChipVega20},
		{0x32, 0x3C, ChipArcturus},
		{0x3C, 0xFF, ChipAldebaran},
	},
	driver.FamilyRV: {
		{0x01, 0x81, ChipRaven},
		{0x81, 0x91, ChipRaven2},
		{0x91, 0xFF, ChipRenoir},
	},
	driver.FamilyNV: {
		{0x01, 0x0A, ChipNavi10},
		{0x0A, 0x14, ChipNavi12},
		{0x14, 0x28, ChipNavi14},
		{0x28, 0x32, ChipSiennaCichlid},
		{0x32, 0x3C, ChipNavyFlounder},
		{0x3C, 0x46, ChipDimgreyCavefish},
		{0x46, 0x50, ChipBeigeGoby},
	},
	driver.FamilyVGH: {
		{0x01, 0xFF, ChipVanGogh},
	},
	driver.FamilyYC: {
		{0x01, 0xFF, ChipYellowCarp},
	},
}

// ClassifyChip identifies the die behind a kernel family id and
// external revision and places it in its hardware generation.
func ClassifyChip(family, externalRev uint32) (Chip, Class, error) {
	chip := ChipUnknown
	for _, r := range chipRevisions[family] {
		if externalRev >= r.lo && externalRev < r.hi {
			chip = r.chip
		}
	}
	if chip == ChipUnknown {
		return ChipUnknown, ClassUnknown,
			fmt.Errorf("family %s external revision %#x: %w",
				driver.FamilyName(family), externalRev, ErrUnknownChip)
	}
	return chip, classOf(chip), nil
}

func classOf(chip Chip) Class {
	switch {
	case chip >= ChipSiennaCichlid:
		return ClassGFX10_3
	case chip >= ChipNavi10:
		return ClassGFX10
	case chip >= ChipVega10:
		return ClassGFX9
	case chip >= ChipTonga:
		return ClassGFX8
	case chip >= ChipBonaire:
		return ClassGFX7
	case chip >= ChipTahiti:
		return ClassGFX6
	}
	return ClassUnknown
}
