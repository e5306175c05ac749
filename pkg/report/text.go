package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/bisector/pkg/search"
)

const msgNoBadItems = "No bad items found."

// elapsedPrecision is the rounding applied to durations in text output.
const elapsedPrecision = time.Millisecond

func writeResultText(w io.Writer, res search.Result) error {
	status := color.New(color.FgGreen, color.Bold).Sprint("Bisection complete")
	if !res.Reason.Completed() {
		status = color.New(color.FgYellow, color.Bold).Sprint("Bisection stopped")
	}

	_, err := fmt.Fprintf(w, "%s: %s\n\n", status, res.Reason.Description())
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if len(res.FoundItems) == 0 {
		_, err = fmt.Fprintln(w, msgNoBadItems)
	} else {
		_, err = fmt.Fprintln(w, itemsTable(res.FoundItems))
	}

	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	summary := plainTable()
	summary.AppendRow(table.Row{"run id", res.RunID})
	summary.AppendRow(table.Row{"iterations", humanize.Comma(int64(res.Iterations))})
	summary.AppendRow(table.Row{"prune cycles", humanize.Comma(int64(res.PruneCycles))})

	if res.MonotonicViolations > 0 {
		summary.AppendRow(table.Row{
			"monotonic violations",
			color.New(color.FgRed).Sprint(res.MonotonicViolations),
		})
	}

	summary.AppendRow(table.Row{"elapsed", res.Elapsed.Round(elapsedPrecision).String()})
	summary.AppendRow(table.Row{"resumed", yesNo(res.Resumed)})

	_, err = fmt.Fprintf(w, "\n%s\n", summary.Render())
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	return nil
}

func writeStateText(w io.Writer, doc StateDocument, savedAt, now time.Time) error {
	summary := plainTable()
	summary.AppendRow(table.Row{"state file", doc.Path})
	summary.AppendRow(table.Row{"run id", doc.RunID})
	summary.AppendRow(table.Row{"pass", doc.Pass})
	summary.AppendRow(table.Row{"items in pass", humanize.Comma(int64(len(doc.Items)))})
	summary.AppendRow(table.Row{"known good", humanize.Comma(int64(doc.KnownGood))})
	summary.AppendRow(table.Row{"window", fmt.Sprintf("%d..%d", doc.WindowLow, doc.WindowHigh)})
	summary.AppendRow(table.Row{"next candidate", doc.Candidate})
	summary.AppendRow(table.Row{"iterations", fmt.Sprintf("%d in pass, %d total", doc.SearchCycles, doc.TotalIterations)})
	summary.AppendRow(table.Row{"verified", yesNo(doc.Verified)})
	summary.AppendRow(table.Row{"saved", humanize.RelTime(savedAt, now, "ago", "from now")})

	elapsed := time.Duration(doc.ElapsedSeconds * float64(time.Second))
	summary.AppendRow(table.Row{"elapsed", elapsed.Round(elapsedPrecision).String()})

	_, err := fmt.Fprintf(w, "%s\n\n", summary.Render())
	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}

	if len(doc.FoundItems) == 0 {
		_, err = fmt.Fprintln(w, msgNoBadItems)
	} else {
		_, err = fmt.Fprintf(w, "%s\n%s\n", color.New(color.Bold).Sprint("Found so far:"), itemsTable(doc.FoundItems))
	}

	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}

	return nil
}

func itemsTable(items []string) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.DrawBorder = false
	tbl.AppendHeader(table.Row{"#", "Bad item"})

	for i, item := range items {
		tbl.AppendRow(table.Row{strconv.Itoa(i + 1), item})
	}

	return tbl.Render()
}

func plainTable() table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateHeader = false

	return tbl
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}

	return "no"
}
