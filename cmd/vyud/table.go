package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column renders one field of T. Numeric columns are right aligned; summed
// columns are also totalled in a footer row.
type column[T any] struct {
	title   string
	cell    func(T) any
	numeric bool
	sum     bool
}

func textColumn[T any](title string, cell func(T) any) column[T] {
	return column[T]{title: title, cell: cell}
}

func numberColumn[T any](title string, cell func(T) int, sum bool) column[T] {
	return column[T]{title: title, cell: func(v T) any { return cell(v) }, numeric: true, sum: sum}
}

func renderTable[T any](items []T, columns []column[T]) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	summed := false
	for i, c := range columns {
		header[i] = c.title
		cfg := table.ColumnConfig{Number: i + 1, AlignHeader: text.AlignLeft, Transformer: cellText}
		if c.numeric {
			cfg.Align = text.AlignRight
			cfg.AlignFooter = text.AlignRight
		}
		configs[i] = cfg
		summed = summed || c.sum
	}
	tw.AppendHeader(header)

	totals := make([]int, len(columns))
	for _, item := range items {
		row := make(table.Row, len(columns))
		for i, c := range columns {
			row[i] = c.cell(item)
			if n, ok := row[i].(int); ok && c.sum {
				totals[i] += n
			}
		}
		tw.AppendRow(row)
	}

	if summed {
		footer := make(table.Row, len(columns))
		footer[0] = fmt.Sprintf("%d rows", len(items))
		for i, c := range columns {
			if c.sum {
				footer[i] = totals[i]
			}
		}
		tw.AppendFooter(footer)
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

// cellText prints empty values as a dash.
func cellText(v any) string {
	switch t := v.(type) {
	case nil:
		return "-"
	case string:
		if t == "" {
			return "-"
		}
		return t
	case *int64:
		if t == nil {
			return "-"
		}
		return strconv.FormatInt(*t, 10)
	case *time.Time:
		if t == nil {
			return "-"
		}
		return t.Format("2006-01-02")
	case time.Time:
		return t.Format("2006-01-02 15:04")
	default:
		return fmt.Sprint(v)
	}
}
