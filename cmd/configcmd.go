package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		shown := *cfg
		if shown.Assistant.AnthropicKey != "" {
			shown.Assistant.AnthropicKey = "[redacted]"
		}
		if shown.Assistant.TTSKey != "" {
			shown.Assistant.TTSKey = "[redacted]"
		}

		out, err := yaml.Marshal(shown)
		if err != nil {
			return eris.Wrap(err, "encode config")
		}
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
