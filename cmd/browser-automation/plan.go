package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan <request>",
	Short: "Print the planned actions for a request without executing them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		request := strings.Join(args, " ")
		actions := newPlanner(cfg).Plan(request)

		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, action := range actions {
			if err := enc.Encode(action); err != nil {
				return err
			}
		}
		return nil
	},
}
