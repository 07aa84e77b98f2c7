package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/emergingrobotics/go-amdgpu/pkg/cs"
	"github.com/emergingrobotics/go-amdgpu/pkg/device"
)

func newRunCommand() *cobra.Command {
	var (
		devicePath string
		blocks     []string
		ops        []string
		secure     bool
	)

	cmd := &cobra.Command{
		Use:   "run [scenario.yaml]",
		Short: "Execute ring validation scenarios on a device",
		Long: `run submits engine-verified command streams on the selected IP
blocks and reports each ring's result. With a scenario file the
selection comes from the file; flags override its values.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := &Scenario{}
			if len(args) == 1 {
				loaded, err := loadScenario(args[0])
				if err != nil {
					return err
				}
				sc = loaded
			}
			if cmd.Flags().Changed("device") {
				sc.Device = devicePath
			}
			if cmd.Flags().Changed("ip") {
				sc.Blocks = blocks
			}
			if cmd.Flags().Changed("op") {
				sc.Ops = ops
			}
			if cmd.Flags().Changed("secure") {
				sc.Secure = secure
			}
			if err := sc.normalize(); err != nil {
				return err
			}
			return runScenario(sc)
		},
	}

	cmd.Flags().StringVarP(&devicePath, "device", "d", "",
		"device node to open (default: first amdgpu node)")
	cmd.Flags().StringSliceVar(&blocks, "ip", nil,
		"IP blocks to exercise (gfx, compute, sdma)")
	cmd.Flags().StringSliceVar(&ops, "op", nil,
		"operations to run (write, fill, copy, compute-nop, multi-fence)")
	cmd.Flags().BoolVar(&secure, "secure", false,
		"submit protected (TMZ) streams")
	return cmd
}

func runScenario(sc *Scenario) error {
	var (
		dev *device.Device
		err error
	)
	if sc.Device != "" {
		dev, err = device.Open(sc.Device)
	} else {
		dev, err = device.OpenFirst()
	}
	if err != nil {
		return err
	}
	defer dev.Close()

	raw := dev.RawInfo()
	ver := dev.Version()
	reg := cs.NewRegistry()
	if err := reg.Setup(dev, &raw, ver.Major, ver.Minor); err != nil {
		return fmt.Errorf("%s: %w", dev.Path(), err)
	}
	log.Infof("%s: %s (%s), amdgpu %s", dev.Path(), reg.Chip(), reg.Class(),
		dev.DriverVersion())

	selected := make([]*cs.IPBlock, 0, 3)
	for _, block := range reg.Blocks(dev) {
		if sc.wantsBlock(block.Type.String()) {
			selected = append(selected, block)
		}
	}

	for _, op := range sc.Ops {
		for _, block := range selected {
			if err := runOp(dev, block, op, sc.Secure); err != nil {
				return fmt.Errorf("%s %s: %w", block.Type, op, err)
			}
		}
	}
	log.Infof("all operations passed")
	return nil
}

// runOp dispatches one operation on one block. Operations bound to a
// specific engine run only when that engine's block comes up.
func runOp(dev *device.Device, block *cs.IPBlock, op string, secure bool) error {
	switch op {
	case "write":
		log.Infof("%s: write linear (secure %v)", block.Type, secure)
		return cs.RunWriteLinear(dev, block, secure)
	case "fill":
		log.Infof("%s: constant fill", block.Type)
		return cs.RunConstFill(dev, block)
	case "copy":
		log.Infof("%s: copy linear", block.Type)
		return cs.RunCopyLinear(dev, block)
	case "compute-nop":
		if block.Type != cs.Compute {
			return nil
		}
		log.Infof("compute: nop submissions")
		return cs.RunComputeNop(dev)
	case "multi-fence":
		if block.Type != cs.GFX {
			return nil
		}
		log.Infof("gfx: multi fence wait")
		if err := cs.RunMultiFence(dev, false); err != nil {
			return err
		}
		return cs.RunMultiFence(dev, true)
	}
	return fmt.Errorf("unknown operation %q", op)
}
