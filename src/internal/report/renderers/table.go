package renderers

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Mode 表格输出格式
type Mode int

const (
	ASCII    Mode = iota // 终端
	Markdown             // GitHub 风格 markdown
)

// Table go-pretty 表格的薄封装
type Table struct {
	writer  table.Writer
	mode    Mode
	configs []table.ColumnConfig
}

// NewTable 创建表格
func NewTable(m Mode, title string) *Table {
	w := table.NewWriter()
	if m == ASCII {
		w.SetStyle(table.StyleLight)
		if title != "" {
			w.SetTitle(title)
		}
	}
	// 表尾保留原始大小写
	w.Style().Format.Footer = text.FormatDefault
	return &Table{writer: w, mode: m}
}

// Header 设置表头
func (t *Table) Header(cols ...string) {
	row := make(table.Row, len(cols))
	for i, c := range cols {
		row[i] = c
	}
	t.writer.AppendHeader(row)
}

// Row 追加一行
func (t *Table) Row(vals ...any) {
	row := make(table.Row, len(vals))
	copy(row, vals)
	t.writer.AppendRow(row)
}

// Footer 追加表尾
func (t *Table) Footer(vals ...any) {
	row := make(table.Row, len(vals))
	copy(row, vals)
	t.writer.AppendFooter(row)
}

// WrapColumn 限制列宽，超出自动换行（1 起始）
func (t *Table) WrapColumn(number, width int) {
	t.configs = append(t.configs, table.ColumnConfig{
		Number:           number,
		WidthMax:         width,
		WidthMaxEnforcer: text.WrapSoft,
	})
	t.writer.SetColumnConfigs(t.configs)
}

// String 渲染
func (t *Table) String() string {
	if t.mode == Markdown {
		return t.writer.RenderMarkdown()
	}
	return t.writer.Render()
}
