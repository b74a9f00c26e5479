package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"symptom-triage/internal/consultation"
	"symptom-triage/internal/diagnosis"
)

func newAssessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assess <symptom>",
		Short: "Assess one turn offline",
		Long: "Runs a single triage turn against the embedded engine. Known answers are\n" +
			"passed as --answer slot=value, for example --answer duration=3",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetStringArray("answer")
			answers, err := parseAnswers(raw)
			if err != nil {
				return err
			}
			svc, err := offlineService(cmd)
			if err != nil {
				return err
			}

			res, err := svc.AssessTurn(cmd.Context(), consultation.TurnRequest{
				SessionID: "cli",
				Symptom:   strings.Join(args, " "),
				Answers:   answers,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				enc.SetEscapeHTML(false)
				return enc.Encode(res)
			}
			printResult(out, res)
			return nil
		},
	}
	cmd.Flags().StringArrayP("answer", "a", nil, "Known answer as slot=value (repeatable)")
	cmd.Flags().Bool("json", false, "Print the raw turn result as JSON")
	cmd.Flags().BoolP("verbose", "v", false, "Show service logs")
	return cmd
}

func parseAnswers(raw []string) (map[string]any, error) {
	answers := make(map[string]any, len(raw))
	for _, kv := range raw {
		slot, value, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(slot) == "" {
			return nil, fmt.Errorf("invalid answer %q, want slot=value", kv)
		}
		answers[strings.TrimSpace(slot)] = strings.TrimSpace(value)
	}
	return answers, nil
}

func printResult(w io.Writer, res *consultation.TurnResult) {
	fmt.Fprintf(w, "Tier:       %s (%s)\n", res.TriageLevel, diagnosis.TierLabel(res.TriageLevel))
	fmt.Fprintf(w, "Risk score: %d\n", res.RiskScore)
	fmt.Fprintf(w, "Confidence: %d\n", res.Confidence)
	if res.NeedMoreInfo {
		fmt.Fprintf(w, "Next:       [%s] %s\n", res.AnswerSlot, res.NextQuestion)
		return
	}
	fmt.Fprintf(w, "Stopped:    %s\n", res.StopReason)
	if res.Reassurance != "" {
		fmt.Fprintln(w, res.Reassurance)
	}
}
