// amdring is a command line tool for exercising amdgpu command
// submission: device discovery, chip identification and engine ring
// validation runs.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Version information (set by ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GoVersion = "unknown"
)

func newRootCommand() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "amdring",
		Short: "amdring exercises amdgpu command submission rings",
		Long: `amdring drives the amdgpu kernel driver directly: it discovers
device nodes, identifies the chip and its hardware generation, and
submits engine-verified write, fill and copy streams on the graphics,
compute and DMA rings.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
			if verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable debug logging")

	root.AddCommand(newScanCommand())
	root.AddCommand(newInfoCommand())
	root.AddCommand(newRunCommand())
	root.AddCommand(newVersionCommand())
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
