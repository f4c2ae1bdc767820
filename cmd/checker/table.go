package main

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/shaymcgreal/datatransformer/app/models"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range r {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, columns)
	for i := range configs {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft}
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func renderSummary(s models.Summary) string {
	rows := [][]string{
		{"Rows", strconv.Itoa(s.Rows), ""},
		{"Passed", strconv.Itoa(s.Passed), percent(s.Passed, s.Rows)},
		{"Failed", strconv.Itoa(s.Failed), percent(s.Failed, s.Rows)},
		{"Duplicates", strconv.Itoa(s.Duplicates), percent(s.Duplicates, s.Rows)},
		{"Duplicate or matched", strconv.Itoa(s.Involved), percent(s.Involved, s.Rows)},
		{"Match groups", strconv.Itoa(s.MatchGroups), ""},
		{"Comparisons", strconv.Itoa(s.Comparisons), ""},
	}
	return renderTable([]string{"Metric", "Count", "Share"}, rows, []columnAlignment{alignLeft, alignRight, alignRight})
}

func renderGroupSizes(sizes []models.GroupSize) string {
	rows := make([][]string, len(sizes))
	for i, g := range sizes {
		rows[i] = []string{strconv.Itoa(g.Size), strconv.Itoa(g.Groups)}
	}
	return renderTable([]string{"Group size", "Groups"}, rows, []columnAlignment{alignRight, alignRight})
}

func percent(n, total int) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", float64(n)*100/float64(total))
}
