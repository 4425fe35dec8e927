package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/aryan0dhankhar/queueline/internal/handler"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func capacityText(c *int) string {
	if c == nil {
		return "-"
	}
	return fmt.Sprint(*c)
}

func printQueues(w io.Writer, qs []handler.QueueResponse) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tACTIVE\tOCCUPANCY\tCAPACITY\tSERVED\tCANCELLED")
	for _, q := range qs {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%s\t%d\t%d\n",
			q.ID, q.Name, q.Active, q.CurrentOccupancy, capacityText(q.MaxCapacity), q.TotalServed, q.TotalCancelled)
	}
	return tw.Flush()
}

func printTokens(w io.Writer, ts []handler.TokenResponse) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "POS\tCODE\tCUSTOMER\tSTATUS\tPRIORITY\tASSIGNED\tID")
	for _, t := range ts {
		pos := "-"
		if t.Position > 0 {
			pos = fmt.Sprint(t.Position)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			pos, t.DisplayCode, t.CustomerName, t.Status, t.Priority, t.AssignedTo, t.ID)
	}
	return tw.Flush()
}

func printStats(w io.Writer, st handler.StatsResponse) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "queue\t%s (%s)\n", st.Queue.Name, st.Queue.ID)
	fmt.Fprintf(tw, "occupancy\t%d / %s\n", st.Queue.CurrentOccupancy, capacityText(st.Queue.MaxCapacity))
	fmt.Fprintf(tw, "served\t%d\n", st.Queue.TotalServed)
	fmt.Fprintf(tw, "cancelled\t%d\n", st.Queue.TotalCancelled)
	fmt.Fprintf(tw, "avg wait\t%.1f min (%d samples)\n", st.AvgWaitMinutes, st.WaitSamples)
	fmt.Fprintf(tw, "avg service\t%.1f min (%d samples)\n", st.AvgServiceMinutes, st.ServiceSamples)
	fmt.Fprintf(tw, "longest wait\t%d min\n", st.LongestWaitMinutes)
	return tw.Flush()
}

func printPublicQueues(w io.Writer, qs []handler.PublicQueueResponse) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tWAITING\tCAPACITY")
	for _, q := range qs {
		current, limit := 0, (*int)(nil)
		if q.Occupancy != nil {
			current, limit = q.Occupancy.Current, q.Occupancy.Max
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", q.ID, q.Name, current, capacityText(limit))
	}
	return tw.Flush()
}

func printTicketStatus(w io.Writer, st handler.PublicTokenResponse) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ticket\t%s\n", st.Token.DisplayCode)
	fmt.Fprintf(tw, "queue\t%s\n", st.QueueName)
	fmt.Fprintf(tw, "status\t%s\n", st.Token.Status)
	if st.Token.Position > 0 {
		fmt.Fprintf(tw, "position\t%d\n", st.Token.Position)
		fmt.Fprintf(tw, "ahead\t%d\n", st.PeopleAhead)
	}
	if st.EstimatedWait != "" {
		fmt.Fprintf(tw, "estimated wait\t%s\n", st.EstimatedWait)
	}
	return tw.Flush()
}
