package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"rgbdtum/internal/store"
)

func newSessionsCommand(cctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded replay sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cctx.ensureConfig()
			if err != nil {
				return err
			}

			sessions, err := store.Open(cfg)
			if err != nil {
				return err
			}
			defer sessions.Close()

			var statuses []store.Status
			if trimmed := strings.TrimSpace(statusFilter); trimmed != "" {
				status, ok := store.ParseStatus(trimmed)
				if !ok {
					return fmt.Errorf("unknown status %q (expected running, completed, or failed)", trimmed)
				}
				statuses = append(statuses, status)
			}

			list, err := sessions.List(cmd.Context(), statuses...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No sessions recorded")
				return nil
			}

			rows := make([][]string, 0, len(list))
			for _, s := range list {
				rows = append(rows, []string{
					strconv.FormatInt(s.ID, 10),
					s.StartedAt.Local().Format("2006-01-02 15:04:05"),
					string(s.Status),
					fmt.Sprintf("%d/%d", s.FramesTracked, s.FramesTotal),
					strconv.Itoa(s.Keyframes),
					s.SequenceDir,
				})
			}

			headers := []string{"ID", "STARTED", "STATUS", "FRAMES", "KEYFRAMES", "SEQUENCE"}
			aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft}
			fmt.Fprintln(out, renderTable(headers, rows, aligns))
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status (running, completed, failed)")
	return cmd
}
