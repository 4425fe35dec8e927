package cli

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/aryan0dhankhar/queueline/internal/handler"
)

// NewQueueCommand groups the queue registry operations.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "queue",
		Aliases: []string{"queues"},
		Short:   "Create, inspect and retire queues",
	}
	cmd.AddCommand(
		newQueueCreateCommand(rootOpts),
		newQueueListCommand(rootOpts),
		newQueueGetCommand(rootOpts),
		newQueueUpdateCommand(rootOpts),
		newQueueDeleteCommand(rootOpts),
		newQueueStatsCommand(rootOpts),
	)
	return cmd
}

func emitQueue(cmd *cobra.Command, opts *RootOptions, q handler.QueueResponse) error {
	if opts.Format == "json" {
		return printJSON(cmd.OutOrStdout(), q)
	}
	return printQueues(cmd.OutOrStdout(), []handler.QueueResponse{q})
}

func newQueueCreateCommand(opts *RootOptions) *cobra.Command {
	var name, description string
	var capacity int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"name": name, "description": description}
			if capacity > 0 {
				body["maxCapacity"] = capacity
			}
			var q handler.QueueResponse
			if err := newClient(opts).do(http.MethodPost, "/api/queues", body, &q); err != nil {
				return err
			}
			return emitQueue(cmd, opts, q)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "queue name")
	cmd.Flags().StringVar(&description, "description", "", "queue description")
	cmd.Flags().IntVar(&capacity, "capacity", 0, "maximum active tokens (0 for no cap)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newQueueListCommand(opts *RootOptions) *cobra.Command {
	var public bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your queues, or every active queue with --public",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(opts)
			if public {
				var qs []handler.PublicQueueResponse
				if err := c.do(http.MethodGet, "/api/public/queues", nil, &qs); err != nil {
					return err
				}
				if opts.Format == "json" {
					return printJSON(cmd.OutOrStdout(), qs)
				}
				return printPublicQueues(cmd.OutOrStdout(), qs)
			}
			var qs []handler.QueueResponse
			if err := c.do(http.MethodGet, "/api/queues", nil, &qs); err != nil {
				return err
			}
			if opts.Format == "json" {
				return printJSON(cmd.OutOrStdout(), qs)
			}
			return printQueues(cmd.OutOrStdout(), qs)
		},
	}
	cmd.Flags().BoolVar(&public, "public", false, "list active queues without authenticating")
	return cmd
}

func newQueueGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <queue-id>",
		Short: "Show one queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var q handler.QueueResponse
			if err := newClient(opts).do(http.MethodGet, "/api/queues/"+url.PathEscape(args[0]), nil, &q); err != nil {
				return err
			}
			return emitQueue(cmd, opts, q)
		},
	}
}

func newQueueUpdateCommand(opts *RootOptions) *cobra.Command {
	var name, description string
	var capacity int
	var active bool
	cmd := &cobra.Command{
		Use:   "update <queue-id>",
		Short: "Change a queue's name, description, capacity or active flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{}
			flags := cmd.Flags()
			if flags.Changed("name") {
				body["name"] = name
			}
			if flags.Changed("description") {
				body["description"] = description
			}
			if flags.Changed("capacity") {
				body["maxCapacity"] = capacity
			}
			if flags.Changed("active") {
				body["isActive"] = active
			}
			if len(body) == 0 {
				return fmt.Errorf("nothing to update")
			}
			var q handler.QueueResponse
			if err := newClient(opts).do(http.MethodPatch, "/api/queues/"+url.PathEscape(args[0]), body, &q); err != nil {
				return err
			}
			return emitQueue(cmd, opts, q)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().IntVar(&capacity, "capacity", 0, "new capacity (0 removes the cap)")
	cmd.Flags().BoolVar(&active, "active", true, "accept new tokens")
	return cmd
}

func newQueueDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <queue-id>",
		Short: "Delete an empty queue and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient(opts).do(http.MethodDelete, "/api/queues/"+url.PathEscape(args[0]), nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue %s deleted\n", args[0])
			return nil
		},
	}
}

func newQueueStatsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <queue-id>",
		Short: "Show counters and wait/service averages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var st handler.StatsResponse
			if err := newClient(opts).do(http.MethodGet, "/api/queues/"+url.PathEscape(args[0])+"/stats", nil, &st); err != nil {
				return err
			}
			if opts.Format == "json" {
				return printJSON(cmd.OutOrStdout(), st)
			}
			return printStats(cmd.OutOrStdout(), st)
		},
	}
}
