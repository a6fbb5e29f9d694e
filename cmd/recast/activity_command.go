package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"recast/internal/jobs"
	"recast/internal/store"
	"recast/internal/workers"
)

func newActivityCommand(ctx *commandContext) *cobra.Command {
	var limit uint64

	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show recent pipeline activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(s *store.Store) error {
				entries, err := s.RecentActivity(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No activity recorded")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					entity := entry.EntityType
					if entry.EntityID != nil {
						entity = fmt.Sprintf("%s %d", entry.EntityType, *entry.EntityID)
					}
					rows = append(rows, []string{
						entry.CreatedAt.Format(time.RFC3339),
						entry.EventType,
						entity,
						entry.Message,
					})
				}
				table := renderTable(
					[]string{"Time", "Event", "Entity", "Message"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().Uint64Var(&limit, "limit", 50, "Maximum number of entries to show")
	return cmd
}

func newScrapeNowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scrape-now <channel>",
		Short: "Enqueue an immediate scrape for a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(s *store.Store, queue *jobs.Durable) error {
				channel, err := resolveChannel(cmd.Context(), s, args[0])
				if err != nil {
					return err
				}
				if err := ctx.submit(cmd.Context(), queue, workers.QueueScrape, workers.ScrapePayload{ChannelID: channel.ID}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Scrape queued for @%s (channel %s)\n", channel.Username, strconv.FormatInt(channel.ID, 10))
				return nil
			})
		},
	}
}
