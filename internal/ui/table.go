package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
)

// RelayStatus is what the status command gathers from a running relay.
type RelayStatus struct {
	Server    string
	Healthy   bool
	Ready     bool
	Commit    string
	BuildTime string

	ClientCount int
	Capacity    int
	RoomReady   bool
}

// Format selects how StatusView renders.
type Format string

const (
	FormatTable    Format = "table"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatTable:
		return FormatTable, nil
	case FormatMarkdown, "md":
		return FormatMarkdown, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("invalid format %q (expected table, markdown or csv)", s)
	}
}

func (s RelayStatus) rows() [][]string {
	build := s.Commit
	if build == "" {
		build = "unknown"
	}
	if s.BuildTime != "" {
		build += " (" + s.BuildTime + ")"
	}
	return [][]string{
		{"Server", s.Server},
		{"Health", yesNo(s.Healthy, "ok", "failing")},
		{"Ready", yesNo(s.Ready, "yes", "no")},
		{"Build", build},
		{"Clients", strconv.Itoa(s.ClientCount) + "/" + strconv.Itoa(s.Capacity)},
		{"Call ready", yesNo(s.RoomReady, "yes", "waiting for peer")},
	}
}

// StatusView renders s in the requested format. Markdown and CSV are plain
// text for pasting into issues and scripts.
func StatusView(s RelayStatus, f Format) string {
	switch f {
	case FormatMarkdown, FormatCSV:
		t := prettytable.NewWriter()
		t.AppendHeader(prettytable.Row{"Metric", "Value"})
		for _, r := range s.rows() {
			t.AppendRow(prettytable.Row{r[0], r[1]})
		}
		if f == FormatCSV {
			return t.RenderCSV()
		}
		return t.RenderMarkdown()
	default:
		tbl := table.New().
			Border(lipgloss.NormalBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
			Headers("Metric", "Value").
			Rows(s.rows()...).
			StyleFunc(func(row, col int) lipgloss.Style {
				switch {
				case row == table.HeaderRow:
					return TableHeaderStyle
				case row%2 == 0:
					return TableRowStyle
				default:
					return TableRowAltStyle
				}
			})
		return tbl.Render()
	}
}

func yesNo(v bool, yes, no string) string {
	if v {
		return yes
	}
	return no
}
