package cli

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aryan0dhankhar/queueline/internal/handler"
)

// NewTicketCommand groups the operations on customer tokens.
// It is called "ticket" so it does not clash with the bearer-token command.
func NewTicketCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ticket",
		Aliases: []string{"tickets"},
		Short:   "Join, call, reorder and resolve customers in a queue",
	}
	cmd.AddCommand(
		newTicketListCommand(rootOpts),
		newTicketHistoryCommand(rootOpts),
		newTicketJoinCommand(rootOpts),
		newTicketCallNextCommand(rootOpts),
		newTicketMoveCommand(rootOpts),
		newTicketStatusCommand(rootOpts),
		newTicketAssignCommand(rootOpts),
		newTicketNotifyCommand(rootOpts),
		newTicketShowCommand(rootOpts),
	)
	return cmd
}

func tokenPath(queueID, tokenID, action string) string {
	return "/api/queues/" + url.PathEscape(queueID) + "/tokens/" + url.PathEscape(tokenID) + "/" + action
}

func emitTokens(cmd *cobra.Command, opts *RootOptions, ts []handler.TokenResponse) error {
	if opts.Format == "json" {
		return printJSON(cmd.OutOrStdout(), ts)
	}
	return printTokens(cmd.OutOrStdout(), ts)
}

func emitToken(cmd *cobra.Command, opts *RootOptions, t handler.TokenResponse) error {
	if opts.Format == "json" {
		return printJSON(cmd.OutOrStdout(), t)
	}
	return printTokens(cmd.OutOrStdout(), []handler.TokenResponse{t})
}

func newTicketListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <queue-id>",
		Short: "Show the active line in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ts []handler.TokenResponse
			if err := newClient(opts).do(http.MethodGet, "/api/queues/"+url.PathEscape(args[0])+"/tokens", nil, &ts); err != nil {
				return err
			}
			return emitTokens(cmd, opts, ts)
		},
	}
}

func newTicketHistoryCommand(opts *RootOptions) *cobra.Command {
	var statuses []string
	var limit int
	cmd := &cobra.Command{
		Use:   "history <queue-id>",
		Short: "List tokens of any status, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if len(statuses) > 0 {
				q.Set("status", strings.Join(statuses, ","))
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			path := "/api/queues/" + url.PathEscape(args[0]) + "/tokens/history"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			var ts []handler.TokenResponse
			if err := newClient(opts).do(http.MethodGet, path, nil, &ts); err != nil {
				return err
			}
			return emitTokens(cmd, opts, ts)
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "filter by status (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows")
	return cmd
}

func newTicketJoinCommand(opts *RootOptions) *cobra.Command {
	var name, email, phone, priority, notes string
	var public bool
	cmd := &cobra.Command{
		Use:   "join <queue-id>",
		Short: "Add a customer to the end of the line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{
				"customerName": name,
				"email":        email,
				"phone":        phone,
				"priority":     priority,
				"notes":        notes,
			}
			c := newClient(opts)
			if public {
				c.token = ""
				var st handler.PublicTokenResponse
				if err := c.do(http.MethodPost, "/api/public/queues/"+url.PathEscape(args[0])+"/tokens", body, &st); err != nil {
					return err
				}
				if opts.Format == "json" {
					return printJSON(cmd.OutOrStdout(), st)
				}
				return printTicketStatus(cmd.OutOrStdout(), st)
			}
			var t handler.TokenResponse
			if err := c.do(http.MethodPost, "/api/queues/"+url.PathEscape(args[0])+"/tokens", body, &t); err != nil {
				return err
			}
			return emitToken(cmd, opts, t)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "customer name")
	cmd.Flags().StringVar(&email, "email", "", "customer email")
	cmd.Flags().StringVar(&phone, "phone", "", "customer phone")
	cmd.Flags().StringVar(&priority, "priority", "", "low, normal, high or urgent")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	cmd.Flags().BoolVar(&public, "public", false, "join through the unauthenticated route")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newTicketCallNextCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "call-next <queue-id>",
		Short: "Call the customer at the head of the line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var t handler.TokenResponse
			if err := newClient(opts).do(http.MethodPost, "/api/queues/"+url.PathEscape(args[0])+"/call-next", nil, &t); err != nil {
				return err
			}
			return emitToken(cmd, opts, t)
		},
	}
}

func newTicketMoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "move <queue-id> <token-id> <position>",
		Short: "Move a waiting customer to a new position",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("position must be a number: %w", err)
			}
			var out handler.MoveResponse
			if err := newClient(opts).do(http.MethodPut, tokenPath(args[0], args[1], "position"), map[string]int{"position": pos}, &out); err != nil {
				return err
			}
			return emitTokens(cmd, opts, out.Active)
		},
	}
}

func newTicketStatusCommand(opts *RootOptions) *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "status <queue-id> <token-id> <status>",
		Short: "Move a token through its lifecycle",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"status": args[2], "notes": notes}
			var t handler.TokenResponse
			if err := newClient(opts).do(http.MethodPost, tokenPath(args[0], args[1], "status"), body, &t); err != nil {
				return err
			}
			return emitToken(cmd, opts, t)
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "replace the token's notes")
	return cmd
}

func newTicketAssignCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <queue-id> <token-id> <staff>",
		Short: "Assign a token to a staff member",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var t handler.TokenResponse
			if err := newClient(opts).do(http.MethodPost, tokenPath(args[0], args[1], "assign"), map[string]string{"assignedTo": args[2]}, &t); err != nil {
				return err
			}
			return emitToken(cmd, opts, t)
		},
	}
}

func newTicketNotifyCommand(opts *RootOptions) *cobra.Command {
	var subject, message string
	cmd := &cobra.Command{
		Use:   "notify <queue-id> <token-id>",
		Short: "Email the customer holding a token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"subject": subject, "message": message}
			if err := newClient(opts).do(http.MethodPost, tokenPath(args[0], args[1], "notify"), body, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "notification queued")
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "email subject")
	cmd.Flags().StringVar(&message, "message", "", "email body")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func newTicketShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <token-id>",
		Short: "Show a ticket as the customer sees it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var st handler.PublicTokenResponse
			if err := newClient(opts).do(http.MethodGet, "/api/public/tokens/"+url.PathEscape(args[0]), nil, &st); err != nil {
				return err
			}
			if opts.Format == "json" {
				return printJSON(cmd.OutOrStdout(), st)
			}
			return printTicketStatus(cmd.OutOrStdout(), st)
		},
	}
}
