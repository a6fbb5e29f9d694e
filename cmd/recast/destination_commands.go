package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"recast/internal/store"
)

func newDestinationsCommand(ctx *commandContext) *cobra.Command {
	destinationsCmd := &cobra.Command{
		Use:   "destinations",
		Short: "Manage publishing destinations",
	}

	destinationsCmd.AddCommand(newDestinationsAddCommand(ctx))
	destinationsCmd.AddCommand(newDestinationsListCommand(ctx))
	destinationsCmd.AddCommand(newDestinationsRemoveCommand(ctx))
	destinationsCmd.AddCommand(newDestinationsAutoPublishCommand(ctx))
	destinationsCmd.AddCommand(newDestinationsActivateCommand(ctx, true))
	destinationsCmd.AddCommand(newDestinationsActivateCommand(ctx, false))

	return destinationsCmd
}

func newDestinationsAddCommand(ctx *commandContext) *cobra.Command {
	var params store.NewDestinationParams

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a publishing destination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params.Name = args[0]
			return ctx.withStore(func(s *store.Store) error {
				destination, err := s.CreateDestination(cmd.Context(), params)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added destination %d (%s)\n", destination.ID, destination.Name)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&params.PlatformUserID, "platform-user-id", "", "Platform account ID used by the publishing API")
	cmd.Flags().StringVar(&params.Handle, "handle", "", "Account handle shown on call-to-action slides")
	cmd.Flags().StringVar(&params.AccessToken, "access-token", "", "Publishing API access token")
	cmd.Flags().StringVar(&params.Topic, "topic", "", "Topic description used for routing")
	cmd.Flags().StringVar(&params.BrandColorPrim, "brand-color", "", "Primary brand color")
	cmd.Flags().StringVar(&params.BrandColorSec, "brand-color-secondary", "", "Secondary brand color")
	cmd.Flags().StringVar(&params.LogoURL, "logo-url", "", "Logo image URL")
	cmd.Flags().StringVar(&params.CTATemplate, "cta-template", "", "Call-to-action text, {handle} is substituted")
	cmd.Flags().BoolVar(&params.AutoPublish, "auto-publish", false, "Publish without manual approval")
	return cmd
}

func newDestinationsListCommand(ctx *commandContext) *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List publishing destinations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(s *store.Store) error {
				destinations, err := s.ListDestinations(cmd.Context(), activeOnly)
				if err != nil {
					return err
				}
				if len(destinations) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No destinations configured")
					return nil
				}
				rows := make([][]string, 0, len(destinations))
				for _, d := range destinations {
					rows = append(rows, []string{
						strconv.FormatInt(d.ID, 10),
						d.Name,
						"@" + d.Handle,
						d.Topic,
						yesNo(d.AutoPublish),
						yesNo(d.IsActive),
					})
				}
				table := renderTable(
					[]string{"ID", "Name", "Handle", "Topic", "Auto-publish", "Active"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&activeOnly, "active", false, "Show only active destinations")
	return cmd
}

func newDestinationsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a destination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(s *store.Store) error {
				if err := s.DeleteDestination(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed destination %d\n", id)
				return nil
			})
		},
	}
}

func newDestinationsAutoPublishCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set-auto-publish <id> <on|off>",
		Short: "Toggle automatic publication for a destination",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var auto bool
			switch args[1] {
			case "on", "true":
				auto = true
			case "off", "false":
				auto = false
			default:
				return fmt.Errorf("invalid value %q (expected on or off)", args[1])
			}
			return ctx.withStore(func(s *store.Store) error {
				if err := s.SetDestinationAutoPublish(cmd.Context(), id, auto); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Destination %d auto-publish %s\n", id, args[1])
				return nil
			})
		},
	}
}

func newDestinationsActivateCommand(ctx *commandContext, active bool) *cobra.Command {
	use, short, verb := "activate <id>", "Resume routing to a destination", "Activated"
	if !active {
		use, short, verb = "deactivate <id>", "Stop routing to a destination", "Deactivated"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(s *store.Store) error {
				if err := s.SetDestinationActive(cmd.Context(), id, active); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s destination %d\n", verb, id)
				return nil
			})
		},
	}
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}
