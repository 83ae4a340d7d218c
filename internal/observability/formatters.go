package observability

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tydee/tydee-pro/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 10
)

// Printer handles formatted output for the professional CLI
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		if len([]rune(line)) > boxWidth-4 {
			line = string([]rune(line)[:boxWidth-7]) + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintMarketplace lists available jobs, marking the ones the professional already bid on.
func (p *Printer) PrintMarketplace(jobs []types.Job, professionalID string) {
	if len(jobs) == 0 {
		p.printBox("MARKETPLACE", "No open jobs right now.")
		return
	}

	var sb strings.Builder
	count := min(len(jobs), maxItemsToShow)
	for i := 0; i < count; i++ {
		job := jobs[i]
		marker := " "
		if job.HasBidder(professionalID) {
			marker = "✓"
		}
		sb.WriteString(fmt.Sprintf("%s %s\n", marker, job.Title))
		sb.WriteString(fmt.Sprintf("    id: %s\n", job.ID))
		line := fmt.Sprintf("    %s", job.Category)
		if job.Budget != nil {
			line += fmt.Sprintf(" · budget R%.2f", *job.Budget)
		}
		line += fmt.Sprintf(" · %d bids", job.BidCount)
		sb.WriteString(line + "\n")
		if mine := job.FindBid(professionalID); mine != nil {
			sb.WriteString(fmt.Sprintf("    my bid: R%.2f\n", mine.Amount))
		}
	}
	if len(jobs) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("... and %d more jobs", len(jobs)-maxItemsToShow))
	}

	p.printBox("MARKETPLACE", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintJob outputs the state of a single job.
func (p *Printer) PrintJob(job *types.Job) {
	if job == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Title:   %s\n", job.Title))
	sb.WriteString(fmt.Sprintf("Status:  %s\n", job.Status))
	if job.FinalPrice != nil {
		sb.WriteString(fmt.Sprintf("Price:   R%.2f\n", *job.FinalPrice))
	}
	if job.JobStartedAt != nil {
		sb.WriteString(fmt.Sprintf("Started: %s\n", job.JobStartedAt.Format(time.RFC3339)))
	}
	sb.WriteString(fmt.Sprintf("Bids:    %d", len(job.Bids)))

	p.printBox("JOB "+shortID(job.ID), sb.String())
}

// PrintEarnings outputs an earnings summary.
func (p *Printer) PrintEarnings(summary *types.EarningsSummary) {
	if summary == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Gross:      R%s\n", summary.Gross))
	sb.WriteString(fmt.Sprintf("Tydee fee:  R%s\n", summary.Commission))
	sb.WriteString(fmt.Sprintf("Net payout: R%s\n", summary.Net))
	sb.WriteString(fmt.Sprintf("Jobs:       %d\n", summary.Jobs))
	sb.WriteString(summary.Formatted)

	p.printBox(strings.ToUpper(string(summary.Timeframe))+" EARNINGS", sb.String())
}

// PrintElapsed writes one timer line, overwriting the previous one.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintElapsed(elapsed time.Duration) {
	fmt.Fprintf(p.out, "\rELAPSED WORK TIME  %s", FormatElapsed(elapsed))
}

// FormatElapsed renders a duration as HH:MM:SS. Negative durations (clock skew) show as zero.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

func shortID(id string) string {
	if len(id) <= 6 {
		return strings.ToUpper(id)
	}
	return "..." + strings.ToUpper(id[len(id)-6:])
}
