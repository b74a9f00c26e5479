package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"symptom-triage/internal/triage"
)

func newRulesCmd() *cobra.Command {
	rules := &cobra.Command{
		Use:   "rules",
		Short: "Inspect triage rule tables",
	}
	rules.AddCommand(&cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a rules file, or the embedded rules",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rulesPath(cmd)
			if len(args) == 1 {
				path = args[0]
			}

			r := triage.DefaultRules()
			source := "embedded"
			if path != "" {
				var err error
				if r, err = triage.LoadRules(path); err != nil {
					return err
				}
				source = path
			}
			if _, err := triage.NewEngine(r); err != nil {
				return err
			}

			questions := 0
			for _, g := range r.Questions {
				questions += len(g.Questions)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rules %s (%s) ok: %d red flags, %d questions in %d groups\n",
				r.Version, source, len(r.RiskFactors.RedFlags), questions, len(r.Questions))
			return nil
		},
	})
	return rules
}
