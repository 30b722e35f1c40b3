package ingest

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ipro-analytics/ipro-cli/internal/model"
)

// stripAccents decomposes and drops combining marks, so "São João" and
// "Sao Joao" normalize to the same key.
var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func deaccent(s string) string {
	out, _, err := transform.String(stripAccents, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeClient produces the canonical client key: accent-free,
// lowercase, alphanumerics and single spaces only.
func NormalizeClient(name string) string {
	s := strings.ToLower(deaccent(name))
	var b strings.Builder
	lastSpace := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// SKUFromProduct derives a stable SKU for products whose reports omit
// one: accent-free uppercase alphanumerics, truncated to 10 runes.
func SKUFromProduct(product string) string {
	s := strings.ToUpper(deaccent(product))
	var b strings.Builder
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() == 10 {
			break
		}
	}
	return b.String()
}

// Registry enriches transactions with customer master data keyed by the
// normalized client name.
type Registry struct {
	Segment map[string]string
	City    map[string]string
	UF      map[string]string
}

// Finalize fills derived fields on an extracted transaction: normalized
// client key, fallback SKU, recomputed subtotal, and optional registry
// enrichment. Returns false when the row lacks the minimum schema.
func Finalize(tx *model.Transaction, reg *Registry) bool {
	tx.Client = NormalizeClient(tx.Client)
	tx.Product = strings.TrimSpace(tx.Product)
	if tx.Client == "" || tx.Date.IsZero() {
		return false
	}
	if tx.Product == "" && tx.SKU == "" {
		return false
	}

	if tx.SKU == "" {
		tx.SKU = SKUFromProduct(tx.Product)
	} else {
		tx.SKU = strings.ToUpper(strings.TrimSpace(tx.SKU))
	}
	if tx.Product == "" {
		tx.Product = tx.SKU
	}

	if tx.Qty <= 0 {
		tx.Qty = 1
	}
	if tx.Subtotal == 0 && tx.Price != 0 {
		tx.Subtotal = round2(tx.Price * float64(tx.Qty))
	}
	if tx.Price == 0 && tx.Subtotal != 0 {
		tx.Price = round2(tx.Subtotal / float64(tx.Qty))
	}

	if reg != nil {
		if v, ok := reg.Segment[tx.Client]; ok && tx.Segment == "" {
			tx.Segment = v
		}
		if v, ok := reg.City[tx.Client]; ok && tx.City == "" {
			tx.City = v
		}
		if v, ok := reg.UF[tx.Client]; ok && tx.UF == "" {
			tx.UF = v
		}
	}
	return true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
