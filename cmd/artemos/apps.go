package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Poseidon-fan/Artemos/user/apps"
)

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "List the built-in user programs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range apps.Names() {
			img, err := apps.Assemble(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-14s text %5d bytes  data %5d bytes\n", name, len(img.Text), len(img.Data))
		}
		return nil
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump [app]",
	Short: "Print the layout and symbols of a built-in user program",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := apps.Assemble(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "entry %#x\n", img.Entry)
		fmt.Fprintf(out, "text  %#x-%#x\n", img.TextBase, img.TextBase+uint64(len(img.Text)))
		if len(img.Data) != 0 {
			fmt.Fprintf(out, "data  %#x-%#x\n", img.DataBase, img.DataBase+uint64(len(img.Data)))
		}
		for _, name := range img.SymbolNames() {
			fmt.Fprintf(out, "%#010x %s\n", img.Symbols[name], name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(appsCmd)
	rootCmd.AddCommand(dumpCmd)
}
