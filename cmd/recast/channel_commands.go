package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"recast/internal/store"
)

func newChannelsCommand(ctx *commandContext) *cobra.Command {
	channelsCmd := &cobra.Command{
		Use:   "channels",
		Short: "Manage source channels",
	}

	channelsCmd.AddCommand(newChannelsAddCommand(ctx))
	channelsCmd.AddCommand(newChannelsListCommand(ctx))
	channelsCmd.AddCommand(newChannelsRemoveCommand(ctx))
	channelsCmd.AddCommand(newChannelsActivateCommand(ctx, true))
	channelsCmd.AddCommand(newChannelsActivateCommand(ctx, false))
	channelsCmd.AddCommand(newChannelsSetFrequencyCommand(ctx))
	channelsCmd.AddCommand(newChannelsSetThresholdCommand(ctx))

	return channelsCmd
}

func newChannelsAddCommand(ctx *commandContext) *cobra.Command {
	var displayName string
	var frequency string
	var threshold float64

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Add a source channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(s *store.Store) error {
				params := store.NewChannelParams{
					Username:        args[0],
					DisplayName:     displayName,
					ScrapeFrequency: store.ScrapeFrequency(frequency),
				}
				if cmd.Flags().Changed("threshold") {
					params.ViralityThreshold = &threshold
				}
				channel, err := s.CreateChannel(cmd.Context(), params)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added channel %d (@%s)\n", channel.ID, channel.Username)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&displayName, "display-name", "", "Human readable channel name")
	cmd.Flags().StringVar(&frequency, "frequency", string(store.FrequencyHourly), "Scrape frequency: 30min, hourly, or daily")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Per-channel virality threshold override")
	return cmd
}

func newChannelsListCommand(ctx *commandContext) *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List source channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(s *store.Store) error {
				channels, err := s.ListChannels(cmd.Context(), activeOnly)
				if err != nil {
					return err
				}
				if len(channels) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No channels configured")
					return nil
				}
				rows := make([][]string, 0, len(channels))
				for _, c := range channels {
					threshold := "global"
					if c.ViralityThreshold != nil {
						threshold = strconv.FormatFloat(*c.ViralityThreshold, 'f', -1, 64)
					}
					lastScraped := "never"
					if c.LastScrapedAt != nil {
						lastScraped = c.LastScrapedAt.Format(time.RFC3339)
					}
					rows = append(rows, []string{
						strconv.FormatInt(c.ID, 10),
						"@" + c.Username,
						string(c.ScrapeFrequency),
						threshold,
						strconv.FormatInt(c.TotalPostsScraped, 10),
						lastScraped,
						yesNo(c.IsActive),
					})
				}
				table := renderTable(
					[]string{"ID", "Username", "Frequency", "Threshold", "Posts", "Last scraped", "Active"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&activeOnly, "active", false, "Show only active channels")
	return cmd
}

func newChannelsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <channel>",
		Short: "Remove a channel and its scraped posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(s *store.Store) error {
				channel, err := resolveChannel(cmd.Context(), s, args[0])
				if err != nil {
					return err
				}
				if err := s.DeleteChannel(cmd.Context(), channel.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed channel %d (@%s)\n", channel.ID, channel.Username)
				return nil
			})
		},
	}
}

func newChannelsActivateCommand(ctx *commandContext, active bool) *cobra.Command {
	use, short, verb := "activate <channel>", "Resume scraping a channel", "Activated"
	if !active {
		use, short, verb = "deactivate <channel>", "Pause scraping a channel", "Deactivated"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(s *store.Store) error {
				channel, err := resolveChannel(cmd.Context(), s, args[0])
				if err != nil {
					return err
				}
				if err := s.SetChannelActive(cmd.Context(), channel.ID, active); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s channel %d (@%s)\n", verb, channel.ID, channel.Username)
				return nil
			})
		},
	}
}

func newChannelsSetFrequencyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set-frequency <channel> <30min|hourly|daily>",
		Short: "Change a channel's scrape cadence",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			frequency := store.ScrapeFrequency(strings.TrimSpace(args[1]))
			if !frequency.Valid() {
				return fmt.Errorf("invalid frequency %q (expected 30min, hourly, or daily)", args[1])
			}
			return ctx.withStore(func(s *store.Store) error {
				channel, err := resolveChannel(cmd.Context(), s, args[0])
				if err != nil {
					return err
				}
				if err := s.SetChannelFrequency(cmd.Context(), channel.ID, frequency); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Channel @%s now scrapes %s\n", channel.Username, frequency)
				return nil
			})
		},
	}
}

func newChannelsSetThresholdCommand(ctx *commandContext) *cobra.Command {
	var clear bool

	cmd := &cobra.Command{
		Use:   "set-threshold <channel> [multiplier]",
		Short: "Override or clear a channel's virality threshold",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var threshold *float64
			if !clear {
				if len(args) < 2 {
					return fmt.Errorf("multiplier required unless --clear is given")
				}
				value, err := strconv.ParseFloat(args[1], 64)
				if err != nil || value <= 0 {
					return fmt.Errorf("invalid threshold %q", args[1])
				}
				threshold = &value
			}
			return ctx.withStore(func(s *store.Store) error {
				channel, err := resolveChannel(cmd.Context(), s, args[0])
				if err != nil {
					return err
				}
				if err := s.SetChannelThreshold(cmd.Context(), channel.ID, threshold); err != nil {
					return err
				}
				if threshold == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Channel @%s now uses the global threshold\n", channel.Username)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Channel @%s threshold set to %g\n", channel.Username, *threshold)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clear, "clear", false, "Remove the override and fall back to the global threshold")
	return cmd
}

// resolveChannel accepts either a numeric channel ID or a username.
func resolveChannel(ctx context.Context, s *store.Store, arg string) (*store.Channel, error) {
	arg = strings.TrimSpace(arg)
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		channel, err := s.GetChannel(ctx, id)
		if err != nil {
			return nil, err
		}
		if channel == nil {
			return nil, fmt.Errorf("channel %d not found", id)
		}
		return channel, nil
	}
	username := strings.TrimPrefix(arg, "@")
	channel, err := s.GetChannelByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if channel == nil {
		return nil, fmt.Errorf("channel @%s not found", username)
	}
	return channel, nil
}
