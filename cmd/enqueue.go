package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andychuong/ai-study-companion-sub000/internal/events"
)

func enqueueCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "enqueue <event> <json>",
		Short: "Enqueue a domain event",
		Example: `  study-companion enqueue goal.created '{"goalId":"...","studentId":"...","subject":"Chemistry"}'
  study-companion enqueue transcript.uploaded --id delivery-42 '{"sessionId":"...","studentId":"...","transcriptRef":"gs://bucket/s.txt"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !json.Valid([]byte(args[1])) {
				return fmt.Errorf("event data is not valid JSON")
			}
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			run, created, err := a.Services.Events.Enqueue(ctx, events.Event{
				Name: args[0],
				ID:   id,
				Data: json.RawMessage(args[1]),
			})
			if err != nil {
				return err
			}
			out := json.NewEncoder(cmd.OutOrStdout())
			out.SetIndent("", "  ")
			return out.Encode(map[string]any{
				"run_id":        run.ID,
				"workflow_type": run.WorkflowType,
				"status":        run.Status,
				"created":       created,
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "producer delivery id used as the dedupe key")
	return cmd
}
