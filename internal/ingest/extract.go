package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/ipro-analytics/ipro-cli/internal/model"
)

// headerScanDepth limits how far down a sheet we look for the header
// row; field reports put banners and filters above it.
const headerScanDepth = 10

// Noise markers on summary/footer rows that must not become transactions.
var noiseMarkers = []string{"total geral", "subtotal", "total:", "página", "relatorio", "relatório"}

// Extractor turns spreadsheet reports into transactions.
type Extractor struct {
	aliases  *Aliases
	registry *Registry
}

// NewExtractor builds an extractor; nil arguments fall back to the
// built-in aliases and no registry enrichment.
func NewExtractor(aliases *Aliases, registry *Registry) *Extractor {
	if aliases == nil {
		aliases = DefaultAliases()
	}
	return &Extractor{aliases: aliases, registry: registry}
}

// ExtractFile reads every sheet of an XLSX report and returns the
// deduplicated transactions found across all of them.
func (e *Extractor) ExtractFile(path string) ([]model.Transaction, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}

	var all []model.Transaction
	for _, sheet := range f.Sheets {
		txs := e.extractSheet(sheet)
		zap.L().Debug("ingest: sheet extracted",
			zap.String("sheet", sheet.Name),
			zap.Int("transactions", len(txs)),
		)
		all = append(all, txs...)
	}
	return dedupe(all), nil
}

// extractSheet tries the structured header-based layout first and falls
// back to the unstructured "Produto:" block format the mobile exports
// use.
func (e *Extractor) extractSheet(sheet *xlsx.Sheet) []model.Transaction {
	rows := sheetStrings(sheet)
	if len(rows) == 0 {
		return nil
	}

	headerIdx, cols := e.findHeader(rows)
	if headerIdx >= 0 {
		return e.extractStructured(rows[headerIdx+1:], cols)
	}
	return e.extractBlocks(rows)
}

// findHeader scans the top of the sheet for a row that resolves to
// enough canonical columns.
func (e *Extractor) findHeader(rows [][]string) (int, ColumnMap) {
	depth := headerScanDepth
	if len(rows) < depth {
		depth = len(rows)
	}
	for i := 0; i < depth; i++ {
		cols := e.aliases.Resolve(rows[i])
		if len(cols) >= 3 && looksLikeHeader(cols) {
			return i, cols
		}
	}
	return -1, nil
}

func (e *Extractor) extractStructured(rows [][]string, cols ColumnMap) []model.Transaction {
	var out []model.Transaction
	for _, row := range rows {
		if isNoise(row) {
			continue
		}
		tx := model.Transaction{
			Date:     parseDate(cell(row, cols, "date")),
			OrderID:  strings.TrimSpace(cell(row, cols, "order_id")),
			Client:   cell(row, cols, "client"),
			Seller:   strings.TrimSpace(cell(row, cols, "seller")),
			SKU:      cell(row, cols, "sku"),
			Product:  cell(row, cols, "product"),
			Price:    parseMoney(cell(row, cols, "price")),
			Qty:      parseQty(cell(row, cols, "qty")),
			Subtotal: parseMoney(cell(row, cols, "subtotal")),
			UF:       strings.ToUpper(strings.TrimSpace(cell(row, cols, "uf"))),
		}
		if Finalize(&tx, e.registry) {
			out = append(out, tx)
		}
	}
	return out
}

// extractBlocks parses the unstructured layout: label rows ("Cliente:",
// "Pedido:", "Produto:") set context, and any row carrying a date plus
// numbers becomes a line item under that context.
func (e *Extractor) extractBlocks(rows [][]string) []model.Transaction {
	var out []model.Transaction
	var client, orderID, product string

	for _, row := range rows {
		if isNoise(row) {
			continue
		}
		joined := strings.TrimSpace(strings.Join(row, " "))
		if joined == "" {
			continue
		}

		switch {
		case labelValue(joined, "Cliente:") != "":
			client = labelValue(joined, "Cliente:")
			continue
		case labelValue(joined, "Pedido:") != "":
			orderID = labelValue(joined, "Pedido:")
			continue
		case labelValue(joined, "Produto:") != "":
			product = labelValue(joined, "Produto:")
			continue
		}

		date, qty, price, subtotal, ok := lineItem(row)
		if !ok || product == "" {
			continue
		}
		tx := model.Transaction{
			Date:     date,
			OrderID:  orderID,
			Client:   client,
			Product:  product,
			Qty:      qty,
			Price:    price,
			Subtotal: subtotal,
		}
		if Finalize(&tx, e.registry) {
			out = append(out, tx)
		}
	}
	return out
}

// lineItem reads a context row: first parsable date, then quantity and
// up to two money values (unit price, then line total).
func lineItem(row []string) (date time.Time, qty int, price, subtotal float64, ok bool) {
	var nums []float64
	for _, raw := range row {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		if date.IsZero() {
			if d := parseDate(s); !d.IsZero() {
				date = d
				continue
			}
		}
		if v := parseMoney(s); v != 0 || s == "0" {
			nums = append(nums, v)
		}
	}
	if date.IsZero() || len(nums) == 0 {
		return date, 0, 0, 0, false
	}

	qty = int(nums[0] + 0.5)
	if len(nums) > 1 {
		price = nums[1]
	}
	if len(nums) > 2 {
		subtotal = nums[2]
	}
	return date, qty, price, subtotal, true
}

func labelValue(joined, label string) string {
	idx := strings.Index(joined, label)
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(joined[idx+len(label):])
}

func isNoise(row []string) bool {
	joined := strings.ToLower(strings.Join(row, " "))
	for _, marker := range noiseMarkers {
		if strings.Contains(joined, marker) {
			return true
		}
	}
	return false
}

func cell(row []string, cols ColumnMap, field string) string {
	idx, ok := cols[field]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func sheetStrings(sheet *xlsx.Sheet) [][]string {
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for i, c := range row.Cells {
			cells[i] = c.String()
		}
		rows = append(rows, cells)
	}
	return rows
}

// dedupe drops exact repeats of the same line item; reports often
// restate lines across summary sheets.
func dedupe(txs []model.Transaction) []model.Transaction {
	seen := make(map[string]struct{}, len(txs))
	out := txs[:0]
	for _, tx := range txs {
		key := fmt.Sprintf("%s|%s|%s|%s|%d|%.2f",
			tx.Date.Format("2006-01-02"), tx.OrderID, tx.SKU, tx.Client, tx.Qty, tx.Price)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tx)
	}
	return out
}
