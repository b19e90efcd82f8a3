// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/cardctl/cardctl/internal/logging"
	"github.com/cardctl/cardctl/pkg/cardtransfer"
)

func newGetMetricsCmd(ro *RootOpts) *cobra.Command {
	var uid string

	cmd := &cobra.Command{
		Use:   "get-metrics",
		Short: "Print the metrics recorded for a run card",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if uid == "" {
				return fmt.Errorf("%w: --uid is required", cardtransfer.ErrInvalidQuery)
			}

			fileCfg, err := loadFileConfig(ro.Config)
			if err != nil {
				return err
			}

			cfg := cardtransfer.DefaultSettings()
			cfg.RegistryURI = ro.registryURI(fileCfg)
			cfg.Token = ro.bearerToken(fileCfg)

			log := logging.New(ro.LogLevel, ro.Quiet, ro.Verbose)
			client, err := cardtransfer.NewClient(cfg, log)
			if err != nil {
				return err
			}

			metrics, err := client.ListMetrics(cmd.Context(), uid)
			if err != nil {
				return err
			}

			if ro.JSONOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(metrics)
			}

			if len(metrics) == 0 {
				fmt.Println("No metrics found.")
				return nil
			}

			table := tablewriter.NewTable(os.Stdout)
			table.Header("Metric", "Value", "Step", "Timestamp")
			for _, m := range metrics {
				if err := table.Append(m.Name, rawCell(m.Value), rawCell(m.Step), rawCell(m.Timestamp)); err != nil {
					return err
				}
			}
			return table.Render()
		},
	}

	cmd.Flags().StringVarP(&uid, "uid", "u", "", "Run card UID")

	return cmd
}

// rawCell renders a raw JSON value for table output.
func rawCell(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
