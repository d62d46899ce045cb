package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/vuhp/cloudthrift/pkg/store"
	"github.com/vuhp/cloudthrift/pkg/vault"
	"github.com/vuhp/cloudthrift/pkg/waste"
)

var titleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#00FF99")).
	MarginBottom(1)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#AAAAAA"))

var totalStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#FFD75F"))

var dimStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#777777"))

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderReport(w io.Writer, r *waste.Report, format string) error {
	if format == "json" {
		return renderJSON(w, r)
	}

	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("WASTE REPORT #%d  %s / %s", r.ScanID, r.Provider, r.Region)))
	if len(r.Opportunities) == 0 {
		fmt.Fprintln(w, "No waste found. Either the account is tidy or checks lacked permissions (see logs).")
		return nil
	}

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("  %-44s %-24s %-15s %-5s %12s",
		"RESOURCE", "TYPE", "CATEGORY", "CONF", "EST/MO")))
	for _, o := range r.Opportunities {
		name := o.ResourceID
		if o.ResourceName != "" {
			name = fmt.Sprintf("%s (%s)", o.ResourceID, o.ResourceName)
		}
		fmt.Fprintf(w, "  %-44.44s %-24.24s %-15s %-5s %12s\n",
			name, o.ResourceType, o.Category, confShort(o.Confidence),
			fmt.Sprintf("$%.2f", o.EstimatedMonthlySavings))
	}

	fmt.Fprintln(w, totalStyle.Render(fmt.Sprintf("\n  TOTAL POTENTIAL SAVINGS: $%.2f/mo  (%d findings)",
		r.TotalSavings, len(r.Opportunities))))
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("  Generated %s", r.GeneratedAt.Local().Format(time.RFC822))))
	return nil
}

func renderStats(w io.Writer, stats *store.Stats) {
	fmt.Fprintln(w, titleStyle.Render("SCAN HISTORY"))
	fmt.Fprintf(w, "  Scans:         %d (%d completed, %d failed)\n",
		stats.TotalScans, stats.CompletedScans, stats.FailedScans)
	fmt.Fprintf(w, "  Opportunities: %d\n", stats.TotalOpportunities)
	fmt.Fprintln(w, totalStyle.Render(fmt.Sprintf("  Identified savings: $%.2f/mo", stats.TotalSavings)))

	if len(stats.RecentScans) == 0 {
		return
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("\n  %-5s %-9s %-15s %-10s %9s %12s  %s",
		"ID", "PROVIDER", "REGION", "STATUS", "FINDINGS", "SAVINGS", "STARTED")))
	for _, sc := range stats.RecentScans {
		fmt.Fprintf(w, "  %-5d %-9s %-15.15s %-10s %9d %12s  %s\n",
			sc.ID, sc.Provider, sc.Region, sc.Status, sc.OpportunityCount,
			fmt.Sprintf("$%.2f", sc.TotalSavings), sc.StartedAt.Local().Format("2006-01-02 15:04"))
	}
}

func renderTrend(w io.Writer, points []store.TrendPoint) {
	fmt.Fprintln(w, titleStyle.Render("SAVINGS TREND"))

	var maxSavings float64
	for _, p := range points {
		maxSavings = max(maxSavings, p.Savings)
	}

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("  %-12s %6s %12s", "DATE", "SCANS", "SAVINGS")))
	for _, p := range points {
		bar := ""
		if maxSavings > 0 && p.Savings > 0 {
			width := int(p.Savings / maxSavings * 30)
			bar = "  " + strings.Repeat("█", max(width, 1))
		}
		fmt.Fprintf(w, "  %-12s %6d %12s%s\n", p.Date, p.ScanCount,
			fmt.Sprintf("$%.2f", p.Savings), bar)
	}
}

func renderCredentials(w io.Writer, metas []vault.Metadata) {
	if len(metas) == 0 {
		fmt.Fprintln(w, "No credentials stored. Add one with 'cloudthrift credentials add'.")
		return
	}

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("  %-5s %-9s %-20s %s", "ID", "PROVIDER", "NAME", "CREATED")))
	for _, m := range metas {
		fmt.Fprintf(w, "  %-5d %-9s %-20.20s %s\n",
			m.ID, m.Provider, m.Name, m.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
}

func confShort(c waste.Confidence) string {
	switch c {
	case waste.ConfidenceHigh:
		return "HIGH"
	case waste.ConfidenceMedium:
		return "MED"
	case waste.ConfidenceLow:
		return "LOW"
	default:
		return string(c)
	}
}
