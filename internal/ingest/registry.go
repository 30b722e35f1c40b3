package ingest

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/ipro-analytics/ipro-cli/internal/model"
)

var registryAliases = map[string][]string{
	"client":  {"cliente", "razao_social", "nome_fantasia", "razão social"},
	"segment": {"segmento", "segment", "canal"},
	"city":    {"cidade", "municipio", "município"},
	"uf":      {"uf", "estado", "sigla_uf"},
}

// ReadRegistryFile parses a customer master spreadsheet into registry
// records. The first sheet with a recognizable header wins; client names
// are normalized to the canonical key.
func ReadRegistryFile(path string) ([]model.CustomerRecord, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open registry %s", path)
	}

	aliases := &Aliases{byField: registryAliases}
	for _, sheet := range f.Sheets {
		rows := sheetStrings(sheet)
		if len(rows) < 2 {
			continue
		}
		cols := aliases.Resolve(rows[0])
		if _, ok := cols["client"]; !ok {
			continue
		}

		var out []model.CustomerRecord
		for _, row := range rows[1:] {
			client := NormalizeClient(cell(row, cols, "client"))
			if client == "" {
				continue
			}
			out = append(out, model.CustomerRecord{
				Client:  client,
				Segment: strings.TrimSpace(cell(row, cols, "segment")),
				City:    strings.TrimSpace(cell(row, cols, "city")),
				UF:      strings.ToUpper(strings.TrimSpace(cell(row, cols, "uf"))),
			})
		}
		if len(out) > 0 {
			return out, nil
		}
	}
	return nil, eris.Errorf("ingest: no registry rows found in %s", path)
}
