package scheduler

import (
	"fmt"
	"strings"

	"rnav-scraper/scraper"
)

// FormatSummary renders the batch outcome for humans, one line per group
// and a closing total line
func FormatSummary(reports []*Report) string {
	var sb strings.Builder
	totalRecords, totalUnresolved, failed := 0, 0, 0

	sb.WriteString("RNAV scrape summary\n")
	for _, r := range reports {
		icon := "✅"
		if r.State == scraper.Failed || r.Err != nil {
			icon = "❌"
			failed++
		}
		fmt.Fprintf(&sb, "%s %s: %d records, %d pages", icon, r.GroupKey, r.Records, r.Pages)
		if r.Unresolved > 0 {
			fmt.Fprintf(&sb, ", %d invalid emails unresolved", r.Unresolved)
		}
		if r.Attempts > 1 {
			fmt.Fprintf(&sb, ", %d attempts", r.Attempts)
		}
		if r.Err != nil {
			fmt.Fprintf(&sb, " (%v)", r.Err)
		}
		sb.WriteString("\n")
		totalRecords += r.Records
		totalUnresolved += r.Unresolved
	}

	fmt.Fprintf(&sb, "Total: %d records, %d invalid emails unresolved", totalRecords, totalUnresolved)
	if failed > 0 {
		fmt.Fprintf(&sb, ", %d of %d runs failed", failed, len(reports))
	}
	return sb.String()
}
