package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emergingrobotics/go-amdgpu/pkg/cs"
	"github.com/emergingrobotics/go-amdgpu/pkg/device"
	"github.com/emergingrobotics/go-amdgpu/pkg/driver"
)

func newInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info <device>",
		Short: "Show device, chip and engine information",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := device.Open(args[0])
			if err != nil {
				return err
			}
			defer dev.Close()

			out := cmd.OutOrStdout()
			ver := dev.Version()
			info := dev.Info()

			fmt.Fprintf(out, "Device:        %s\n", dev.Path())
			fmt.Fprintf(out, "Driver:        %s %s (%s)\n",
				ver.Name, dev.DriverVersion(), ver.Date)

			chip, class, err := cs.ClassifyChip(info.Family, info.ExternalRev)
			if err != nil {
				fmt.Fprintf(out, "Chip:          unknown (family %d, external rev %#x)\n",
					info.Family, info.ExternalRev)
			} else {
				fmt.Fprintf(out, "Chip:          %s (%s)\n", chip, class)
			}
			fmt.Fprintf(out, "Family:        %s\n", info.FamilyName)
			fmt.Fprintf(out, "Device ID:     %#06x (rev %#04x)\n",
				info.DeviceID, info.PciRev)
			fmt.Fprintf(out, "Compute units: %d\n", info.ComputeUnits)
			fmt.Fprintf(out, "Engine clock:  %d MHz\n", info.MaxEngineClock/1000)

			if mem, err := dev.QueryVramGtt(); err == nil {
				fmt.Fprintf(out, "VRAM:          %d MiB (%d MiB CPU accessible)\n",
					mem.VramSize>>20, mem.CPUAccessibleVramSize>>20)
				fmt.Fprintf(out, "GTT:           %d MiB\n", mem.GttSize>>20)
			}

			fmt.Fprintln(out, "Engines:")
			for ip := driver.HwIPGfx; ip < driver.HwIPNum; ip++ {
				hw, err := dev.QueryHWIPInfo(ip)
				if err != nil || hw.AvailableRings == 0 {
					continue
				}
				fmt.Fprintf(out, "  %-8s v%d.%d  rings %#x  ib align %d/%d\n",
					ip, hw.VersionMajor, hw.VersionMinor, hw.AvailableRings,
					hw.IbStartAlignment, hw.IbSizeAlignment)
			}
			return nil
		},
	}
}
