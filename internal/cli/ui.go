package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/docsnap/pkg/snapshot"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan    = lipgloss.Color("36")  // Teal - instance types
	colorGreen   = lipgloss.Color("35")  // Green - success
	colorYellow  = lipgloss.Color("220") // Amber - warnings
	colorRed     = lipgloss.Color("167") // Soft red - errors
	colorMagenta = lipgloss.Color("170") // Magenta - atom tags
	colorWhite   = lipgloss.Color("255") // Bright white - values
	colorGray    = lipgloss.Color("245") // Gray - keys
	colorDim     = lipgloss.Color("240") // Dim gray - muted text
)

// =============================================================================
// Styles
// =============================================================================

var (
	// StyleTitle for headings.
	StyleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)

	// StyleDim for secondary/muted text.
	StyleDim = lipgloss.NewStyle().Foreground(colorDim)

	// StyleValue for data values.
	StyleValue = lipgloss.NewStyle().Foreground(colorWhite)

	// StyleWarning for warning messages.
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)

	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconError   = lipgloss.NewStyle().Foreground(colorRed)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)

	styleAtom     = lipgloss.NewStyle().Bold(true).Foreground(colorMagenta)
	styleInstance = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	styleKey      = lipgloss.NewStyle().Foreground(colorGray)
	styleReserved = lipgloss.NewStyle().Foreground(colorMagenta)
)

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconInfo    = "›"
)

// =============================================================================
// Status Output
// =============================================================================

func printSuccess(format string, args ...any) {
	fmt.Println(styleIconSuccess.Render(iconSuccess) + " " + fmt.Sprintf(format, args...))
}

func printError(format string, args ...any) {
	fmt.Println(styleIconError.Render(iconError) + " " + fmt.Sprintf(format, args...))
}

func printWarning(format string, args ...any) {
	fmt.Println(styleIconWarning.Render(iconWarning) + " " + StyleWarning.Render(fmt.Sprintf(format, args...)))
}

func printInfo(format string, args ...any) {
	fmt.Println(styleIconInfo.Render(iconInfo) + " " + fmt.Sprintf(format, args...))
}

// printDetail prints an indented, dimmed line.
func printDetail(format string, args ...any) {
	fmt.Println("  " + StyleDim.Render(fmt.Sprintf(format, args...)))
}

// =============================================================================
// Snapshot Trees
// =============================================================================

// renderTree renders node as an indented tree. Instance records show their
// type (and version) on the header line; tagged sequences show their tag.
func renderTree(node any) string {
	var b strings.Builder
	renderNode(&b, "", node, 0)
	return b.String()
}

func renderNode(b *strings.Builder, label string, node any, depth int) {
	indent := strings.Repeat("  ", depth)
	b.WriteString(indent)
	if label != "" {
		style := styleKey
		if snapshot.IsReservedKey(label) {
			style = styleReserved
		}
		b.WriteString(style.Render(label) + ": ")
	}

	if doc, ok := snapshot.AsMapping(node); ok {
		if name, ok := snapshot.TypeName(doc); ok {
			header := styleInstance.Render(name)
			if v, ok := snapshot.Lookup(doc, snapshot.VersionKey); ok {
				header += StyleDim.Render(fmt.Sprintf(" v%v", v))
			}
			b.WriteString(header + "\n")
			for _, e := range doc {
				if e.Key == snapshot.InstanceTypeKey || e.Key == snapshot.VersionKey {
					continue
				}
				renderNode(b, e.Key, e.Value, depth+1)
			}
			return
		}
		b.WriteString(StyleDim.Render("{}") + "\n")
		for _, e := range doc {
			renderNode(b, e.Key, e.Value, depth+1)
		}
		return
	}

	if seq, ok := snapshot.AsSequence(node); ok {
		items := seq
		if tag, ok := snapshot.Tag(seq); ok {
			b.WriteString(styleAtom.Render(tag))
			items = seq[1:]
			if isLeafTag(tag) {
				b.WriteString(" " + renderScalars(items) + "\n")
				return
			}
		} else {
			b.WriteString(StyleDim.Render("[]"))
		}
		b.WriteString("\n")
		for i, item := range items {
			renderNode(b, strconv.Itoa(i), item, depth+1)
		}
		return
	}

	b.WriteString(StyleValue.Render(renderScalar(node)) + "\n")
}

// isLeafTag reports whether a tag's payload is printed on one line.
func isLeafTag(tag string) bool {
	switch tag {
	case snapshot.BytesAtom, snapshot.EncodedAtom, snapshot.EnumAtom,
		snapshot.TypeAtom, snapshot.DereferenceAtom, snapshot.FunctionAtom:
		return true
	}
	return false
}

func renderScalars(items []any) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = renderScalar(item)
	}
	return StyleValue.Render(strings.Join(parts, " "))
}

func renderScalar(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(val)
	}
	return fmt.Sprintf("%v", v)
}

// =============================================================================
// Tables
// =============================================================================

// renderStats renders instance and tag counters as two tables.
func renderStats(s *snapshot.Stats) string {
	instances := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(StyleDim).
		Headers("TYPE", "VERSION", "RECORDS")
	for _, tv := range s.Sorted() {
		instances.Row(tv.Type, strconv.Itoa(tv.Version), strconv.Itoa(s.Instances[tv]))
	}

	tagNames := make([]string, 0, len(s.Tags))
	for tag := range s.Tags {
		tagNames = append(tagNames, tag)
	}
	sort.Strings(tagNames)
	tags := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(StyleDim).
		Headers("TAG", "COUNT")
	for _, tag := range tagNames {
		tags.Row(tag, strconv.Itoa(s.Tags[tag]))
	}

	return instances.Render() + "\n" + tags.Render()
}
