package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/taskhub/realtime/internal/client"
)

func notifyCmd() *cobra.Command {
	var (
		baseURL string
		token   string
		project string
	)

	cmd := &cobra.Command{
		Use:     "notify <event-json>",
		Short:   "Push an event to every client in a project",
		Example: `  taskhubd notify --project 42 '{"type":"task_deleted","taskId":7}'`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if project == "" {
				return errors.New("--project is required")
			}
			event := json.RawMessage(args[0])
			if !json.Valid(event) {
				return errors.New("event must be valid JSON")
			}

			n, err := client.NewHTTPClient(baseURL, token).Notify(cmd.Context(), project, event)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "delivered to %d session(s)\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "url", "http://127.0.0.1:8080", "Server base URL")
	cmd.Flags().StringVar(&token, "token", os.Getenv("TASKHUB_NOTIFY_TOKEN"), "Notify token")
	cmd.Flags().StringVar(&project, "project", "", "Target project id")

	return cmd
}

func healthCmd() *cobra.Command {
	var (
		baseURL string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query a running server's health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			h, err := client.NewHTTPClient(baseURL, "").Health(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(h)
		},
	}

	cmd.Flags().StringVar(&baseURL, "url", "http://127.0.0.1:8080", "Server base URL")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Request timeout")

	return cmd
}
