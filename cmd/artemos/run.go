package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/Poseidon-fan/Artemos/kernel/config"
	"github.com/Poseidon-fan/Artemos/kernel/hal/sbi"
	"github.com/Poseidon-fan/Artemos/kernel/kmain"
	"github.com/Poseidon-fan/Artemos/kernel/trace"
	"github.com/Poseidon-fan/Artemos/user/apps"
)

var runFlags struct {
	envFile  string
	harts    int
	logLevel string
	noColor  bool
	traceDB  string
	trace    bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot the kernel and run the user shell",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := config.Load(runFlags.envFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("harts") {
			cfg.Harts = runFlags.harts
		}
		if cmd.Flags().Changed("log") {
			cfg.LogLevel = runFlags.logLevel
		}
		if runFlags.noColor {
			cfg.LogColors = false
		}

		images, err := apps.All()
		if err != nil {
			return err
		}

		k, err := kmain.New(kmain.Options{
			Config: cfg,
			Stdin:  os.Stdin,
			Stdout: os.Stdout,
			Apps:   images,
		})
		if err != nil {
			return err
		}

		if runFlags.trace || runFlags.traceDB != "" {
			w := trace.NewSQLiteWriter(runFlags.traceDB)
			if err := w.Init(); err != nil {
				return err
			}
			rec := trace.NewRecorder(k.Now, w)
			k.AcceptHook(rec)
			fmt.Fprintf(os.Stderr, "tracing session %s to %s\n", rec.Session(), w.Path())
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		status := k.Run(ctx)
		fmt.Fprintf(os.Stderr, "\nmachine halted: %s\n", status)
		atexit.Exit(exitCode(status))
		return nil
	},
}

func exitCode(s sbi.Status) int {
	switch s {
	case sbi.StatusShutdown, sbi.StatusReboot, sbi.StatusCancelled:
		return 0
	case sbi.StatusPanic:
		return 2
	}
	return 1
}

func init() {
	runCmd.Flags().StringVar(&runFlags.envFile, "env-file", ".env", "dotenv file with ARTEMOS_* settings")
	runCmd.Flags().IntVar(&runFlags.harts, "harts", 1, "number of harts")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log", "info", "kernel log level (error, warn, info, debug, trace)")
	runCmd.Flags().BoolVar(&runFlags.noColor, "no-color", false, "disable colored kernel log records")
	runCmd.Flags().BoolVar(&runFlags.trace, "trace", false, "record kernel events to a new SQLite database")
	runCmd.Flags().StringVar(&runFlags.traceDB, "trace-db", "", "record kernel events to the given SQLite database")
	rootCmd.AddCommand(runCmd)
}
