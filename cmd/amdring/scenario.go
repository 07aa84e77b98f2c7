package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario selects what a run exercises. Zero fields mean everything:
// first device, all registered blocks, all operations.
type Scenario struct {
	Device string   `yaml:"device"`
	Blocks []string `yaml:"blocks"`
	Ops    []string `yaml:"ops"`
	Secure bool     `yaml:"secure"`
}

var (
	allBlocks = []string{"gfx", "compute", "sdma"}
	allOps    = []string{"write", "fill", "copy", "compute-nop", "multi-fence"}
)

func loadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &sc, nil
}

// normalize fills defaults and rejects unknown names.
func (s *Scenario) normalize() error {
	if len(s.Blocks) == 0 {
		s.Blocks = allBlocks
	}
	if len(s.Ops) == 0 {
		s.Ops = allOps
	}
	for _, b := range s.Blocks {
		if !contains(allBlocks, b) {
			return fmt.Errorf("unknown IP block %q (choose from %v)", b, allBlocks)
		}
	}
	for _, op := range s.Ops {
		if !contains(allOps, op) {
			return fmt.Errorf("unknown operation %q (choose from %v)", op, allOps)
		}
	}
	return nil
}

func (s *Scenario) wantsBlock(name string) bool {
	return contains(s.Blocks, name)
}

func contains(list []string, v string) bool {
	for _, e := range list {
		if e == v {
			return true
		}
	}
	return false
}
