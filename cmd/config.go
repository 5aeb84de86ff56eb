package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long:  "Prints the merged configuration from file, environment, and defaults. API keys are redacted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := *cfg
		c.Store.DatabaseURL = redact(c.Store.DatabaseURL)
		c.Anthropic.Key = redact(c.Anthropic.Key)
		c.Nvidia.Key = redact(c.Nvidia.Key)
		c.OCR.MistralKey = redact(c.OCR.MistralKey)

		out, err := yaml.Marshal(&c)
		if err != nil {
			return eris.Wrap(err, "config: marshal")
		}
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
