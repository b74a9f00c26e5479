package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"symptom-triage/internal/consultation"
	"symptom-triage/internal/diagnosis"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Run a triage conversation in the terminal",
		Long: "Describe the symptom, then answer the follow-up questions. The conversation\n" +
			"ends with a tier and a summary. Type /quit to leave.",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := offlineService(cmd)
			if err != nil {
				return err
			}
			sessionID, _ := cmd.Flags().GetString("session")
			if sessionID == "" {
				sessionID = uuid.NewString()
			}

			out := cmd.OutOrStdout()
			in := bufio.NewScanner(cmd.InOrStdin())
			fmt.Fprintf(out, "Session %s\nมีอาการอะไรคะ?\n", sessionID)

			answers := map[string]any{}
			var pending *consultation.TurnResult
			for {
				fmt.Fprint(out, "> ")
				if !in.Scan() {
					fmt.Fprintln(out)
					return in.Err()
				}
				line := strings.TrimSpace(in.Text())
				switch line {
				case "":
					continue
				case "/quit", "/exit":
					return nil
				}

				if pending != nil && pending.AnswerSlot != "" {
					answers[string(pending.AnswerSlot)] = line
				}
				res, err := svc.AssessTurn(cmd.Context(), consultation.TurnRequest{
					SessionID: sessionID,
					Symptom:   line,
					Answers:   answers,
				})
				if err != nil {
					return err
				}
				if res.NeedMoreInfo {
					fmt.Fprintf(out, "(%d) %s\n", res.QuestionNo, res.NextQuestion)
					pending = res
					continue
				}

				printResult(out, res)
				d, err := svc.GetDiagnosis(cmd.Context(), sessionID, "")
				if err != nil {
					return err
				}
				printDiagnosis(out, d)
				return nil
			}
		},
	}
	cmd.Flags().String("session", "", "Session id (default a new uuid)")
	cmd.Flags().BoolP("verbose", "v", false, "Show service logs")
	return cmd
}

func printDiagnosis(w io.Writer, d *diagnosis.Diagnosis) {
	fmt.Fprintf(w, "\n%s\n", d.Summary)
	for _, r := range d.Recommendations {
		fmt.Fprintf(w, "- %s\n", r)
	}
	if len(d.WarningSigns) > 0 {
		fmt.Fprintln(w, "อาการที่ต้องรีบพบแพทย์:")
		for _, s := range d.WarningSigns {
			fmt.Fprintf(w, "- %s\n", s)
		}
	}
}
