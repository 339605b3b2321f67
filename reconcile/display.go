package reconcile

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/mattpollicove/p1person/core"
)

const (
	typeColumnWidth        = 10
	statusColumnWidth      = 10
	descriptionColumnWidth = 30
)

// WriteAttributeTable renders the remote attributes that appear in the
// spec, sorted by name. Attributes outside the spec are not shown.
func WriteAttributeTable(w io.Writer, attrs []core.RemoteAttribute, spec core.AttributeSpec) error {
	matched := make([]core.RemoteAttribute, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := spec[attr.Name]; ok {
			matched = append(matched, attr)
		}
	}
	if len(matched) == 0 {
		_, err := fmt.Fprintln(w, "No matching attributes found.")
		return err
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })

	header := fmt.Sprintf("%-*s %-*s %-*s %-*s",
		nameColumnWidth, "NAME",
		typeColumnWidth, "TYPE",
		statusColumnWidth, "STATUS",
		descriptionColumnWidth, "DESCRIPTION",
	)
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}
	separator := fmt.Sprintf("%s %s %s %s",
		strings.Repeat("-", nameColumnWidth),
		strings.Repeat("-", typeColumnWidth),
		strings.Repeat("-", statusColumnWidth),
		strings.Repeat("-", descriptionColumnWidth),
	)
	if _, err := fmt.Fprintln(w, separator); err != nil {
		return err
	}

	for _, attr := range matched {
		status := "Enabled"
		if !attr.Enabled {
			status = "Disabled"
		}
		description := attr.Description
		if description == "" {
			description = "No description"
		}
		line := fmt.Sprintf("%-*s %-*s %-*s %-*s",
			nameColumnWidth, truncate(attr.Name, nameColumnWidth),
			typeColumnWidth, attr.Type,
			statusColumnWidth, status,
			descriptionColumnWidth, truncate(description, detailTruncateAt),
		)
		if _, err := fmt.Fprintln(w, strings.TrimRight(line, " ")); err != nil {
			return err
		}
	}
	return nil
}
