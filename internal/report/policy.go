package report

import (
	"fmt"
	"io"
	"strings"

	"opsagent/internal/agent"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"
)

// ValuePlaces is the precision used when printing table values.
const ValuePlaces = 3

func formatValue(v float64) string {
	return decimal.NewFromFloat(v).Round(ValuePlaces).StringFixed(ValuePlaces)
}

// PlainStyle is a borderless layout: columns separated by two spaces, headers
// printed as given. Output stays greppable line by line.
func PlainStyle() table.Style {
	style := table.StyleDefault
	style.Name = "Plain"
	style.Box.PaddingLeft = ""
	style.Box.PaddingRight = "  "
	style.Format.Header = text.FormatDefault
	style.Options = table.Options{}
	return style
}

// NewTable returns a writer in PlainStyle.
func NewTable() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(PlainStyle())
	return tw
}

// Render writes tw to w with trailing padding removed.
func Render(w io.Writer, tw table.Writer) error {
	lines := strings.Split(tw.Render(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " ")
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}

// FormatPolicyTable writes one row per state with a column per action, in the
// given action order. Missing entries print as "-". The best action of each
// row is marked with '*'.
func FormatPolicyTable(w io.Writer, qt agent.Table, actions []string) error {
	tw := NewTable()
	header := table.Row{"STATE"}
	for _, a := range actions {
		header = append(header, a)
	}
	tw.AppendHeader(header)
	for _, key := range qt.Keys() {
		row := qt[key]
		best, hasBest := bestAction(row, actions)
		cells := table.Row{key}
		for _, a := range actions {
			v, ok := row[a]
			if !ok {
				cells = append(cells, "-")
				continue
			}
			cell := formatValue(v)
			if hasBest && a == best {
				cell += "*"
			}
			cells = append(cells, cell)
		}
		tw.AppendRow(cells)
	}
	return Render(w, tw)
}

// bestAction ranks the present entries with decimal comparison so values that
// print identically tie, and ties go to the earlier action.
func bestAction(row map[string]float64, actions []string) (string, bool) {
	var (
		best    string
		bestVal decimal.Decimal
		found   bool
	)
	for _, a := range actions {
		v, ok := row[a]
		if !ok {
			continue
		}
		d := decimal.NewFromFloat(v).Round(ValuePlaces)
		if !found || d.GreaterThan(bestVal) {
			best, bestVal, found = a, d, true
		}
	}
	return best, found
}

// FormatSummary writes the policy summary as aligned key/value lines.
func FormatSummary(w io.Writer, s agent.PolicySummary) error {
	tw := NewTable()
	tw.AppendRow(table.Row{"app", s.AppName})
	tw.AppendRow(table.Row{"states", s.TableSize})
	tw.AppendRow(table.Row{"actions", strings.Join(s.AvailableActions, ", ")})
	tw.AppendRow(table.Row{"epsilon", formatValue(s.Epsilon)})
	if s.CurrentState != nil {
		tw.AppendRow(table.Row{"current", fmt.Sprintf("%s (score %d)", s.CurrentState.Key(), s.CurrentState.PerformanceScore)})
	} else {
		tw.AppendRow(table.Row{"current", "-"})
	}
	return Render(w, tw)
}
