package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/taskhub/realtime/internal/app"
	"github.com/taskhub/realtime/internal/client"
	"github.com/taskhub/realtime/internal/protocol"
)

func main() {
	var (
		wsURL   string
		token   string
		project string
		logFile string
	)

	cmd := &cobra.Command{
		Use:           "taskhub-tui",
		Short:         "Terminal client for the taskhub collaboration server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The TUI owns the terminal, so logs go to a file or nowhere.
			var w io.Writer = io.Discard
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return fmt.Errorf("open log file: %w", err)
				}
				defer f.Close()
				w = f
			}
			logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))

			ws := client.NewWSClient(wsURL, token, logger)
			if project != "" {
				ws.SetProject(protocol.ParseID(project))
			}

			p := tea.NewProgram(app.New(ws), tea.WithAltScreen())
			_, err := p.Run()
			return err
		},
	}

	cmd.Flags().StringVar(&wsURL, "url", "ws://127.0.0.1:8080/ws", "WebSocket URL of the taskhub server")
	cmd.Flags().StringVar(&token, "token", os.Getenv("TASKHUB_TOKEN"), "Auth token (see taskhubd token)")
	cmd.Flags().StringVar(&project, "project", "", "Project to join on connect")
	cmd.Flags().StringVar(&logFile, "log-file", "", "Write debug logs to this file")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
