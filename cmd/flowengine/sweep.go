package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JineeshTS/GanakysPortal-sub004/internal/slamonitor"
)

var sweepCmd = &cobra.Command{
	Use:   "sla-sweep",
	Short: "Run one SLA breach sweep and report what was found",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := slamonitor.New(a.store, slamonitor.Config{Schedule: a.cfg.SLASchedule, Logger: a.logger})
		if err != nil {
			return err
		}
		res, err := m.Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "new breaches: %d tasks, %d instances\n", res.Tasks, res.Instances)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
