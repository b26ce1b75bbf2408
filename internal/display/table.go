package display

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

// Alignment represents column alignment options
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignCenter
	AlignRight
)

// BorderStyle defines table border characters
type BorderStyle struct {
	TopLeft     string
	TopRight    string
	BottomLeft  string
	BottomRight string
	Horizontal  string
	Vertical    string
	Cross       string
	TopTee      string
	BottomTee   string
	LeftTee     string
	RightTee    string
}

// TableStyle defines the visual style of a table
type TableStyle struct {
	Name            string
	Border          BorderStyle
	HeaderSeparator bool
	Padding         int
}

var (
	// DefaultTableStyle is a plain ASCII table.
	DefaultTableStyle = TableStyle{
		Name: "default",
		Border: BorderStyle{
			TopLeft: "+", TopRight: "+", BottomLeft: "+", BottomRight: "+",
			Horizontal: "-", Vertical: "|", Cross: "+",
			TopTee: "+", BottomTee: "+", LeftTee: "+", RightTee: "+",
		},
		HeaderSeparator: true,
		Padding:         1,
	}

	// RoundedTableStyle uses Unicode box drawing characters.
	RoundedTableStyle = TableStyle{
		Name: "rounded",
		Border: BorderStyle{
			TopLeft: "╭", TopRight: "╮", BottomLeft: "╰", BottomRight: "╯",
			Horizontal: "─", Vertical: "│", Cross: "┼",
			TopTee: "┬", BottomTee: "┴", LeftTee: "├", RightTee: "┤",
		},
		HeaderSeparator: true,
		Padding:         1,
	}

	// CompactTableStyle has no borders, for piping into other tools.
	CompactTableStyle = TableStyle{
		Name:    "compact",
		Padding: 1,
	}
)

// TableStyleByName returns a table style by name, defaulting to the
// ASCII style.
func TableStyleByName(name string) TableStyle {
	switch name {
	case "rounded":
		return RoundedTableStyle
	case "compact":
		return CompactTableStyle
	default:
		return DefaultTableStyle
	}
}

// Table builds an aligned text table. Columns size themselves to their
// widest cell and shrink with truncation when the terminal is narrower
// than the table.
type Table struct {
	headers    []string
	rows       [][]string
	alignments map[int]Alignment
	style      TableStyle
	colors     ColorSystem
	theme      ColorTheme
	maxWidth   int
}

// NewTable creates a table that colors its header with the theme's
// primary color. A nil color system renders plain text.
func NewTable(colors ColorSystem, theme ColorTheme) *Table {
	if colors == nil {
		colors = NewPlainColorSystem()
	}
	return &Table{
		alignments: make(map[int]Alignment),
		style:      DefaultTableStyle,
		colors:     colors,
		theme:      theme,
		maxWidth:   terminalWidth(),
	}
}

// SetHeaders sets the header row.
func (t *Table) SetHeaders(headers ...string) {
	t.headers = headers
}

// AddRow appends a data row.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// SetAlignment sets the alignment of one column.
func (t *Table) SetAlignment(column int, alignment Alignment) {
	t.alignments[column] = alignment
}

// SetStyle sets the table style.
func (t *Table) SetStyle(style TableStyle) {
	t.style = style
}

// SetMaxWidth overrides the detected terminal width. Zero disables
// shrinking.
func (t *Table) SetMaxWidth(width int) {
	t.maxWidth = width
}

// Render returns the formatted table.
func (t *Table) Render() string {
	if len(t.headers) == 0 && len(t.rows) == 0 {
		return ""
	}
	widths := t.columnWidths()

	var out strings.Builder
	border := t.style.Border
	if border.Horizontal != "" {
		out.WriteString(t.renderBorder(widths, border.TopLeft, border.TopTee, border.TopRight))
		out.WriteString("\n")
	}
	if len(t.headers) > 0 {
		out.WriteString(t.renderRow(t.headers, widths, true))
		out.WriteString("\n")
		if t.style.HeaderSeparator && border.Horizontal != "" {
			out.WriteString(t.renderBorder(widths, border.LeftTee, border.Cross, border.RightTee))
			out.WriteString("\n")
		}
	}
	for _, row := range t.rows {
		out.WriteString(t.renderRow(row, widths, false))
		out.WriteString("\n")
	}
	if border.Horizontal != "" {
		out.WriteString(t.renderBorder(widths, border.BottomLeft, border.BottomTee, border.BottomRight))
		out.WriteString("\n")
	}
	return out.String()
}

// RenderTo writes the formatted table to w.
func (t *Table) RenderTo(w io.Writer) {
	fmt.Fprint(w, t.Render())
}

// columnWidths sizes each column to its widest cell plus padding, then
// shrinks all columns proportionally when the table would overflow the
// terminal.
func (t *Table) columnWidths() []int {
	columns := len(t.headers)
	for _, row := range t.rows {
		if len(row) > columns {
			columns = len(row)
		}
	}
	widths := make([]int, columns)
	measure := func(row []string) {
		for i, cell := range row {
			if w := utf8.RuneCountInString(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	measure(t.headers)
	for _, row := range t.rows {
		measure(row)
	}
	for i := range widths {
		widths[i] += t.style.Padding * 2
	}

	if t.maxWidth > 0 {
		min := t.style.Padding*2 + 3
		for {
			total := 0
			for _, w := range widths {
				total += w
			}
			if t.style.Border.Vertical != "" {
				total += columns + 1
			}
			if total <= t.maxWidth {
				break
			}
			// Take the overflow out of the widest column; repeat in
			// case it bottoms out at the minimum.
			widest := -1
			for i, w := range widths {
				if w > min && (widest < 0 || w > widths[widest]) {
					widest = i
				}
			}
			if widest < 0 {
				break
			}
			shrink := total - t.maxWidth
			if room := widths[widest] - min; shrink > room {
				shrink = room
			}
			widths[widest] -= shrink
		}
	}
	return widths
}

func (t *Table) renderBorder(widths []int, left, tee, right string) string {
	var out strings.Builder
	out.WriteString(left)
	for i, width := range widths {
		out.WriteString(strings.Repeat(t.style.Border.Horizontal, width))
		if i < len(widths)-1 {
			out.WriteString(tee)
		}
	}
	out.WriteString(right)
	return out.String()
}

func (t *Table) renderRow(row []string, widths []int, header bool) string {
	var out strings.Builder
	vertical := t.style.Border.Vertical
	out.WriteString(vertical)
	for i, width := range widths {
		var cell string
		if i < len(row) {
			cell = row[i]
		}
		out.WriteString(t.formatCell(cell, width, t.alignments[i], header))
		out.WriteString(vertical)
	}
	return strings.TrimRight(out.String(), " ")
}

// formatCell pads and aligns cell content into width, truncating with
// an ellipsis when it does not fit. Header cells take the theme's
// primary color.
func (t *Table) formatCell(content string, width int, alignment Alignment, header bool) string {
	contentWidth := width - t.style.Padding*2
	if contentWidth < 0 {
		contentWidth = 0
	}
	if utf8.RuneCountInString(content) > contentWidth {
		runes := []rune(content)
		if contentWidth > 3 {
			content = string(runes[:contentWidth-3]) + "..."
		} else {
			content = string(runes[:contentWidth])
		}
	}

	padding := contentWidth - utf8.RuneCountInString(content)
	var left, right int
	switch alignment {
	case AlignCenter:
		left = padding / 2
		right = padding - left
	case AlignRight:
		left = padding
	default:
		right = padding
	}

	if header {
		content = t.colors.Colorize(content, t.theme.Primary)
	}
	left += t.style.Padding
	right += t.style.Padding
	return strings.Repeat(" ", left) + content + strings.Repeat(" ", right)
}

// terminalWidth returns the width of the attached terminal, or 0 when
// stdout is not a terminal so tables render at natural width.
func terminalWidth() int {
	width, _, err := term.GetSize(0)
	if err != nil {
		return 0
	}
	return width
}
