// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/cardctl/cardctl/internal/logging"
	"github.com/cardctl/cardctl/pkg/cardtransfer"
)

// registryKinds are the card registries the server exposes.
var registryKinds = []string{"data", "model", "run", "pipeline", "audit", "project"}

func validRegistryKind(kind string) bool {
	for _, k := range registryKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// zipTags pairs --tag-name with --tag-value entries positionally.
func zipTags(names, values []string) (map[string]string, error) {
	if len(names) == 0 && len(values) == 0 {
		return nil, nil
	}
	if len(names) != len(values) {
		return nil, fmt.Errorf("%w: got %d tag names and %d tag values", cardtransfer.ErrInvalidQuery, len(names), len(values))
	}
	tags := make(map[string]string, len(names))
	for i, n := range names {
		tags[strings.TrimSpace(n)] = strings.TrimSpace(values[i])
	}
	return tags, nil
}

func newListCardsCmd(ro *RootOpts) *cobra.Command {
	var (
		registry  string
		name      string
		repo      string
		version   string
		uid       string
		limit     int
		maxDate   string
		tagNames  []string
		tagValues []string
		ignoreRC  bool
	)

	cmd := &cobra.Command{
		Use:   "list-cards",
		Short: "List cards in a registry",
		Long: `Queries one of the card registries (` + strings.Join(registryKinds, ", ") + `)
and prints the matching cards as a table, or as JSON with --json.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !validRegistryKind(registry) {
				return fmt.Errorf("%w: unknown registry %q (expected one of %s)",
					cardtransfer.ErrInvalidQuery, registry, strings.Join(registryKinds, ", "))
			}
			tags, err := zipTags(tagNames, tagValues)
			if err != nil {
				return err
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

			cards, err := client.ListCards(cmd.Context(), cardtransfer.ListCardsRequest{
				RegistryType:            registry,
				Name:                    name,
				Repository:              repo,
				Version:                 version,
				UID:                     uid,
				Limit:                   limit,
				Tags:                    tags,
				MaxDate:                 maxDate,
				IgnoreReleaseCandidates: ignoreRC,
			})
			if err != nil {
				return err
			}

			if ro.JSONOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(cards)
			}

			if len(cards) == 0 {
				fmt.Println("No cards found.")
				return nil
			}
			return renderCardTable(cards)
		},
	}

	cmd.Flags().StringVar(&registry, "registry", "model", "Registry to query: "+strings.Join(registryKinds, ", "))
	cmd.Flags().StringVarP(&name, "name", "n", "", "Filter by card name")
	cmd.Flags().StringVarP(&repo, "repository", "r", "", "Filter by repository")
	cmd.Flags().StringVar(&version, "version", "", "Filter by version")
	cmd.Flags().StringVarP(&uid, "uid", "u", "", "Filter by card UID")
	cmd.Flags().IntVar(&limit, "limit", 25, "Maximum rows to return")
	cmd.Flags().StringVar(&maxDate, "max-date", "", "Only cards created on or before this date (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&tagNames, "tag-name", nil, "Tag name filter (repeatable, pairs with --tag-value)")
	cmd.Flags().StringSliceVar(&tagValues, "tag-value", nil, "Tag value filter (repeatable, pairs with --tag-name)")
	cmd.Flags().BoolVar(&ignoreRC, "ignore-release-candidates", false, "Exclude pre-release versions")

	return cmd
}

func renderCardTable(cards []cardtransfer.CardSummary) error {
	table := tablewriter.NewTable(os.Stdout)
	table.Header("Name", "Repository", "Version", "UID", "Date", "Tags")
	for _, c := range cards {
		tags := make([]string, 0, len(c.Tags))
		for k, v := range c.Tags {
			tags = append(tags, k+"="+v)
		}
		sort.Strings(tags)
		if err := table.Append(c.Name, c.Repository, c.Version, c.UID, c.Date, strings.Join(tags, ",")); err != nil {
			return err
		}
	}
	return table.Render()
}
