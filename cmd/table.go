/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/evertras/bubble-table/table"

	"github.com/allbin/serialflash/internal/tui/colors"
)

// column is a static table column: key, header and width
type column struct {
	key   string
	title string
	width int
}

// renderStatic renders rows once as a bordered table for plain stdout output
func renderStatic(cols []column, rows []map[string]any) string {
	tcols := make([]table.Column, 0, len(cols))
	for _, c := range cols {
		tcols = append(tcols, table.NewColumn(c.key, c.title, c.width))
	}

	trows := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		trows = append(trows, table.NewRow(table.RowData(r)))
	}

	t := table.New(tcols).
		WithRows(trows).
		BorderRounded().
		HeaderStyle(lipgloss.NewStyle().Bold(true).Foreground(colors.Mauve)).
		WithBaseStyle(lipgloss.NewStyle().Foreground(colors.Text).BorderForeground(colors.Surface2).Align(lipgloss.Left))

	return t.View()
}
