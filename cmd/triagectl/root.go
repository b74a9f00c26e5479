package main

import (
	"io"
	"log"

	"github.com/spf13/cobra"

	"symptom-triage/internal/app"
	"symptom-triage/internal/consultation"
	"symptom-triage/internal/platform/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "triagectl",
		Short:        "Thai symptom triage tools",
		Long:         "triagectl runs the triage service, migrates its store and talks to the engine offline.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			files, _ := cmd.Flags().GetStringSlice("env")
			return config.LoadEnv(files...)
		},
	}
	root.PersistentFlags().StringSlice("env", nil, "Env files to load (default .env)")
	root.PersistentFlags().String("rules", "", "Rules file (overrides TRIAGE_RULES_FILE)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newAssessCmd())
	root.AddCommand(newChatCmd())
	root.AddCommand(newRulesCmd())
	return root
}

// rulesPath returns --rules, then TRIAGE_RULES_FILE.
func rulesPath(cmd *cobra.Command) string {
	if p, _ := cmd.Flags().GetString("rules"); p != "" {
		return p
	}
	return config.Get("TRIAGE_RULES_FILE", "")
}

// offlineService runs the engine against an in-memory store.
func offlineService(cmd *cobra.Command) (consultation.Service, error) {
	engine, err := app.LoadEngine(rulesPath(cmd))
	if err != nil {
		return nil, err
	}
	logs := io.Discard
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		logs = cmd.ErrOrStderr()
	}
	repo := consultation.NewMemoryRepository()
	svc := consultation.NewService(engine, repo, consultation.Options{
		Profiles: repo,
		Logger:   log.New(logs, "triage: ", log.LstdFlags),
	})
	return svc, nil
}
