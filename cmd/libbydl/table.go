package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type column struct {
	title string
	right bool
}

// tableView collects rows for one rounded go-pretty table. Rows shorter than
// the column list are padded with blanks.
type tableView struct {
	title   string
	columns []column
	rows    [][]string
}

func newTableView(title string, columns ...column) *tableView {
	return &tableView{title: title, columns: columns}
}

func (v *tableView) add(cells ...string) {
	v.rows = append(v.rows, cells)
}

func (v *tableView) render(colorize bool) string {
	if len(v.columns) == 0 {
		return ""
	}

	style := table.StyleRounded
	if colorize {
		style.Title.Colors = text.Colors{text.FgBlue, text.Bold}
		style.Color.Header = text.Colors{text.Bold}
	}
	tw := table.NewWriter()
	tw.SetStyle(style)
	if v.title != "" {
		tw.SetTitle(v.title)
	}

	header := make(table.Row, 0, len(v.columns))
	configs := make([]table.ColumnConfig, 0, len(v.columns))
	for i, col := range v.columns {
		header = append(header, col.title)
		align := text.AlignLeft
		if col.right {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, cells := range v.rows {
		row := make(table.Row, len(v.columns))
		for i := range row {
			if i < len(cells) {
				row[i] = cells[i]
			} else {
				row[i] = ""
			}
		}
		tw.AppendRow(row)
	}
	return tw.Render()
}
