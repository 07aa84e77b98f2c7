package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emergingrobotics/go-amdgpu/pkg/device"
)

func newScanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "List amdgpu device nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := device.Scan()
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no amdgpu devices found")
				return nil
			}
			for _, d := range devices {
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s  amdgpu %s\n",
					d.Node, d.Path, d.DriverVersion)
			}
			return nil
		},
	}
}
