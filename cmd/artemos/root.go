package main

import (
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "artemos",
	Short: "Artemos runs a RISC-V teaching kernel on an emulated machine.",
	Long: `Artemos runs a RISC-V teaching kernel on an emulated machine. ` +
		`The run command boots the kernel with the built-in user programs and ` +
		`connects the machine console to standard input and output.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}
	atexit.Exit(0)
}
