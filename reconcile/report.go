package reconcile

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattpollicove/p1person/core"
)

const (
	nameColumnWidth    = 25
	outcomeColumnWidth = 15
	detailColumnWidth  = 30
	detailTruncateAt   = 28
)

// WriteReport renders the per-attribute outcome table followed by the
// outcome counts, in the order items were reconciled.
func WriteReport(w io.Writer, summary *core.RunSummary) error {
	if summary == nil || summary.Total() == 0 {
		_, err := fmt.Fprintln(w, "no attributes processed")
		return err
	}

	header := fmt.Sprintf("%-*s %-*s %-*s",
		nameColumnWidth, "ATTRIBUTE",
		outcomeColumnWidth, "OUTCOME",
		detailColumnWidth, "DETAIL",
	)
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, strings.Repeat("-", nameColumnWidth+outcomeColumnWidth+detailColumnWidth+2)); err != nil {
		return err
	}

	for _, item := range summary.Items {
		line := fmt.Sprintf("%-*s %-*s %-*s",
			nameColumnWidth, truncate(item.Name, nameColumnWidth),
			outcomeColumnWidth, string(item.Tag),
			detailColumnWidth, truncate(item.Detail, detailTruncateAt),
		)
		if _, err := fmt.Fprintln(w, strings.TrimRight(line, " ")); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	for _, tag := range reportedTags {
		count := summary.Count(tag)
		if count == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s: %d\n", string(tag), count); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "total: %d\n", summary.Total())
	return err
}

// reportedTags fixes the count ordering so output is stable across runs.
var reportedTags = []core.OutcomeTag{
	core.OutcomeCreated,
	core.OutcomeSkippedExists,
	core.OutcomeRemoved,
	core.OutcomeNotFound,
	core.OutcomeCleared,
	core.OutcomeAlreadyDisabled,
	core.OutcomeDryRunCreate,
	core.OutcomeDryRunRemove,
	core.OutcomeDryRunClear,
	core.OutcomeError,
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit-2] + ".."
}
