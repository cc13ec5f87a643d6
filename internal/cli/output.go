package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"contest-lifecycle/internal/jobs"
	"contest-lifecycle/internal/lifecycle"
	"contest-lifecycle/internal/models"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeStatus(w io.Writer, format string, view *models.ContestStatusView) error {
	if format == "json" {
		return writeJSON(w, view)
	}
	fmt.Fprintf(w, "contest:  %s\n", view.ID)
	fmt.Fprintf(w, "status:   %s\n", view.Status)
	fmt.Fprintf(w, "lock:     %s\n", formatTime(view.LockTime))
	fmt.Fprintf(w, "start:    %s\n", formatTime(view.TournamentStartTime))
	fmt.Fprintf(w, "end:      %s\n", formatTime(view.TournamentEndTime))
	return nil
}

func writeResult(w io.Writer, format string, res *lifecycle.Result) error {
	if format == "json" {
		return writeJSON(w, res)
	}
	if !res.Transitioned() && len(res.Skipped) == 0 {
		fmt.Fprintln(w, "no change")
	}
	for _, t := range res.Transitions {
		fmt.Fprintf(w, "%s  %s -> %s  (%s)", t.ContestInstanceID, t.From, t.To, t.TriggeredBy)
		if t.Settlements > 0 {
			fmt.Fprintf(w, "  %d settlement records", t.Settlements)
		}
		fmt.Fprintln(w)
	}
	for _, s := range res.Skipped {
		fmt.Fprintf(w, "%s  unchanged (%s): %s\n", s.ContestInstanceID, s.Status, s.Reason)
	}
	return nil
}

func writeReport(w io.Writer, format string, report jobs.TickReport) error {
	if format == "json" {
		out := struct {
			jobs.TickReport
			Error string `json:"error,omitempty"`
		}{TickReport: report}
		if report.Err != nil {
			out.Error = report.Err.Error()
		}
		return writeJSON(w, out)
	}
	fmt.Fprintf(w, "reconciled at %s: locked=%d live=%d completed=%d\n",
		report.Now.Format(time.RFC3339), report.Locked, report.Live, report.Completed)
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
