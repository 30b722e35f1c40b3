package report

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
)

// WriteWorkbook renders the tables plus the two alert sheets into an
// XLSX workbook at path. Sheet names longer than the XLSX limit are
// truncated to 31 characters.
func WriteWorkbook(path string, tables []Table, alerts []Table) error {
	f := xlsx.NewFile()

	all := make([]Table, 0, len(tables)+len(alerts))
	all = append(all, tables...)
	all = append(all, alerts...)

	headerStyle := xlsx.NewStyle()
	headerStyle.Font.Bold = true
	headerStyle.ApplyFont = true

	for _, table := range all {
		if err := writeSheet(f, table, headerStyle); err != nil {
			return err
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save workbook %s", path)
	}

	zap.L().Info("report: workbook written",
		zap.String("path", path),
		zap.Int("sheets", len(all)),
	)
	return nil
}

func writeSheet(f *xlsx.File, table Table, headerStyle *xlsx.Style) error {
	name := table.Name
	if len([]rune(name)) > 31 {
		name = string([]rune(name)[:31])
	}

	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "report: add sheet %s", name)
	}

	header := sheet.AddRow()
	for _, col := range table.Columns {
		cell := header.AddCell()
		cell.SetString(col)
		cell.SetStyle(headerStyle)
	}

	for _, row := range table.Rows {
		r := sheet.AddRow()
		for _, v := range row {
			r.AddCell().SetString(v)
		}
	}
	return nil
}
