package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mapsharvest-engine/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the engine configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load the config with its tactics overlay and report problems",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dataDir := absOrSelf(opts.dataDir)
		cfgPath, tacticsPath := opts.config, opts.tactics
		if cfgPath == "" {
			cfgPath = defaultIn(dataDir, "config.yml")
		}
		if tacticsPath == "" {
			tacticsPath = defaultIn(dataDir, "tactics.yml")
		}
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if err := config.OverlayTactics(&cfg, tacticsPath); err != nil {
			return err
		}
		_, vr := config.NormalizeAndValidate(cfg)
		out := cmd.OutOrStdout()
		for _, w := range vr.Warnings {
			fmt.Fprintf(out, "warning: %s\n", w)
		}
		for _, e := range vr.Errors {
			fmt.Fprintf(out, "error: %s\n", e)
		}
		if !vr.OK() {
			return fmt.Errorf("%s: %d error(s)", cfgPath, len(vr.Errors))
		}
		fmt.Fprintf(out, "%s: ok\n", cfgPath)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective config as YAML",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), opts)
		if err != nil {
			return err
		}
		defer a.Close()
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(a.config())
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
}
