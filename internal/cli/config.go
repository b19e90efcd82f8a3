// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() map[string]any {
	return map[string]any{
		"registry-uri":    "",
		"token":           "",
		"write-dir":       "models",
		"concurrency":     4,
		"retries":         4,
		"backoff-initial": "400ms",
		"backoff-max":     "10s",
		"timeout":         "0s",
	}
}

// loadFileConfig reads the config file. An explicit path must exist;
// otherwise the default locations are probed and a missing file is fine.
func loadFileConfig(explicit string) (map[string]any, error) {
	path := explicit
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return map[string]any{}, nil
		}
		for _, ext := range []string{".json", ".yaml", ".yml"} {
			p := filepath.Join(home, ".config", "cardctl"+ext)
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
		if path == "" {
			return map[string]any{}, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file %s: %w", path, err)
	}

	cfg := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("could not parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// applyConfigDefaults fills unset flags from the config file map.
// Flags the user set on the command line always win.
func applyConfigDefaults(cmd *cobra.Command, fileCfg map[string]any) error {
	var ferr error
	flags := cmd.Flags()
	for key, val := range fileCfg {
		f := flags.Lookup(key)
		if f == nil || f.Changed || val == nil {
			continue
		}
		if err := f.Value.Set(fmt.Sprint(val)); err != nil && ferr == nil {
			ferr = fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return ferr
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		force   bool
		useYAML bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default configuration file",
		Long: `Creates a default configuration file at ~/.config/cardctl.json (or .yaml)

The configuration file sets default values for command flags.
CLI flags always override config file values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("could not find home directory: %w", err)
			}

			configDir := filepath.Join(home, ".config")
			ext := ".json"
			if useYAML {
				ext = ".yaml"
			}
			configPath := filepath.Join(configDir, "cardctl"+ext)

			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("config file already exists: %s\nUse --force to overwrite", configPath)
			}

			if err := os.MkdirAll(configDir, 0o755); err != nil {
				return fmt.Errorf("could not create config directory: %w", err)
			}

			cfg := DefaultConfig()
			var data []byte
			if useYAML {
				data, err = yaml.Marshal(cfg)
			} else {
				data, err = json.MarshalIndent(cfg, "", "  ")
			}
			if err != nil {
				return err
			}

			if err := os.WriteFile(configPath, data, 0o644); err != nil {
				return fmt.Errorf("could not write config file: %w", err)
			}

			fmt.Printf("✓ Created config file: %s\n", configPath)
			fmt.Println()
			fmt.Println("Edit this file to set your defaults. For example:")
			fmt.Println("  - Set your registry URL and token")
			fmt.Println("  - Change the default write directory")
			fmt.Println("  - Adjust retry and concurrency settings")

			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing config file")
	cmd.Flags().BoolVar(&useYAML, "yaml", false, "Create YAML config instead of JSON")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultConfigPath()
			if path == "" {
				fmt.Println("No config file found.")
				fmt.Println("Run 'cardctl config init' to create one.")
				return nil
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			fmt.Printf("Config file: %s\n\n", path)
			fmt.Println(string(data))

			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Run: func(cmd *cobra.Command, args []string) {
			if path := defaultConfigPath(); path != "" {
				fmt.Println(path)
				return
			}
			home, _ := os.UserHomeDir()
			fmt.Println(filepath.Join(home, ".config", "cardctl.json"))
		},
	}
}

// defaultConfigPath returns the first existing default config file, or "".
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		p := filepath.Join(home, ".config", "cardctl"+ext)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
