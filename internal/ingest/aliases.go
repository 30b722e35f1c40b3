// Package ingest extracts sales transactions from spreadsheet reports:
// column aliasing to the canonical schema, Brazilian number/date
// coercion, noise filtering, and client/SKU normalization.
package ingest

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Canonical transaction columns mapped from the header aliases seen in
// the field reports. Matching is case-insensitive on trimmed headers.
var txAliases = map[string][]string{
	"date":     {"data_emissao", "emissao", "data", "dt", "data_venda", "data emissão", "data emissao"},
	"order_id": {"pedido", "order", "n_pedido", "doc"},
	"client":   {"cliente", "razao_social", "nome_fantasia", "razão social"},
	"seller":   {"criador", "vendedor", "representante"},
	"price":    {"preco", "preco_liquido", "valor_unit", "vl_unit", "preço", "valor unit"},
	"qty":      {"quantidade", "qtd", "qde", "qtde", "quant"},
	"subtotal": {"total", "vl_total", "valor_total", "valor total"},
	"product":  {"produto", "item", "descricao", "descrição"},
	"sku":      {"sku", "codigo", "cod_prod", "código"},
	"uf":       {"uf", "estado", "sigla_uf"},
}

// ColumnMap maps canonical field names to column indexes in a header row.
type ColumnMap map[string]int

// Aliases resolves report headers to canonical column names.
type Aliases struct {
	byField map[string][]string
}

// DefaultAliases returns the built-in alias table.
func DefaultAliases() *Aliases {
	byField := make(map[string][]string, len(txAliases))
	for field, alts := range txAliases {
		byField[field] = append([]string(nil), alts...)
	}
	return &Aliases{byField: byField}
}

// LoadAliases merges a user-supplied YAML alias file (field -> list of
// header names) over the built-in table.
func LoadAliases(path string) (*Aliases, error) {
	a := DefaultAliases()
	if path == "" {
		return a, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read aliases %s", path)
	}
	var extra map[string][]string
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, eris.Wrapf(err, "ingest: parse aliases %s", path)
	}
	for field, alts := range extra {
		a.byField[field] = append(a.byField[field], alts...)
	}
	return a, nil
}

// Resolve maps a header row to canonical columns. The canonical name
// itself always matches, so already-normalized exports resolve too.
func (a *Aliases) Resolve(header []string) ColumnMap {
	normalized := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if key == "" {
			continue
		}
		if _, ok := normalized[key]; !ok {
			normalized[key] = i
		}
	}

	cols := make(ColumnMap)
	for field, alts := range a.byField {
		if idx, ok := normalized[field]; ok {
			cols[field] = idx
			continue
		}
		for _, alt := range alts {
			if idx, ok := normalized[alt]; ok {
				cols[field] = idx
				break
			}
		}
	}
	return cols
}

// looksLikeHeader reports whether a resolved map carries enough of the
// transaction schema to treat the row as a real header.
func looksLikeHeader(cols ColumnMap) bool {
	for _, field := range []string{"product", "date", "client", "price", "qty", "order_id"} {
		if _, ok := cols[field]; ok {
			return true
		}
	}
	return false
}
