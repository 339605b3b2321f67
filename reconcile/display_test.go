package reconcile

import (
	"strings"
	"testing"

	"github.com/mattpollicove/p1person/core"
)

func TestWriteAttributeTableFiltersAndSorts(t *testing.T) {
	attrs := []core.RemoteAttribute{
		{Name: "o", Type: "STRING", Enabled: true, Description: "The organization name."},
		{Name: "username", Type: "STRING", Enabled: true, Description: "built-in, not in spec"},
		{Name: "department", Type: "STRING", Enabled: false, Description: "The organizational department name, which is quite long."},
	}
	spec := core.AttributeSpec{"department": "", "o": ""}

	var buf strings.Builder
	if err := WriteAttributeTable(&buf, attrs, spec); err != nil {
		t.Fatalf("write table: %v", err)
	}
	out := buf.String()

	if strings.Contains(out, "username") {
		t.Fatalf("attributes outside the spec must be hidden:\n%s", out)
	}
	if !strings.Contains(out, "Disabled") {
		t.Fatalf("disabled status missing:\n%s", out)
	}
	deptIdx := strings.Index(out, "department")
	oIdx := strings.Index(out, "\no ")
	if deptIdx == -1 || oIdx == -1 || deptIdx > oIdx {
		t.Fatalf("rows should be sorted by name:\n%s", out)
	}
	if !strings.Contains(out, "..") {
		t.Fatalf("long description should be truncated:\n%s", out)
	}
}

func TestWriteAttributeTableNoMatches(t *testing.T) {
	var buf strings.Builder
	err := WriteAttributeTable(&buf, []core.RemoteAttribute{{Name: "x"}}, core.AttributeSpec{"department": ""})
	if err != nil {
		t.Fatalf("write table: %v", err)
	}
	if !strings.Contains(buf.String(), "No matching attributes found.") {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}
