package record

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Canonical field keys resolved from spreadsheet headers.
const (
	fieldID      = "idsbr"
	fieldName    = "nama_usaha"
	fieldAddress = "alamat"
	fieldLat     = "latitude"
	fieldLon     = "longitude"
	fieldResult  = "hasil_gc"
)

// headerAliases lists accepted spellings per canonical field, in priority
// order. Matching is case-, space- and underscore-insensitive.
var headerAliases = map[string][]string{
	fieldID:      {"idsbr"},
	fieldName:    {"nama_usaha", "nama usaha", "namausaha", "nama"},
	fieldAddress: {"alamat", "alamat usaha", "alamat_usaha"},
	fieldLat:     {"latitude", "lat"},
	fieldLon:     {"longitude", "lon", "long"},
	fieldResult:  {"hasil_gc", "hasil gc", "hasilgc", "ag", "keberadaanusaha_gc"},
}

// resultFallbackColumn is used when no result-code header is recognized:
// historical exports carry the code in the sixth column.
const resultFallbackColumn = 5

func canonHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "")
	h = strings.ReplaceAll(h, "_", "")
	return h
}

// ResolveHeaders maps a header row to canonical-field → column-index.
// Resolution happens once at load time; downstream code never sees raw
// headers.
func ResolveHeaders(headers []string) map[string]int {
	canon := make([]string, len(headers))
	for i, h := range headers {
		canon[i] = canonHeader(h)
	}

	cols := make(map[string]int)
	for field, aliases := range headerAliases {
		for _, alias := range aliases {
			want := canonHeader(alias)
			for i, h := range canon {
				if h == want {
					if _, taken := cols[field]; !taken {
						cols[field] = i
					}
					break
				}
			}
			if _, ok := cols[field]; ok {
				break
			}
		}
	}

	if _, ok := cols[fieldResult]; !ok && len(headers) > resultFallbackColumn {
		cols[fieldResult] = resultFallbackColumn
	}
	return cols
}

// LoadRecords reads the first sheet of an xlsx file into SourceRecords.
// The first row is treated as the header row. Rows with no ID and no name
// are dropped (trailing formatting rows).
func LoadRecords(path string) ([]SourceRecord, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "record: open file")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("record: file has no sheets")
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, nil
	}

	headers := rowToStrings(sheet.Rows[0])
	cols := ResolveHeaders(headers)

	var records []SourceRecord
	for i, row := range sheet.Rows[1:] {
		cells := rowToStrings(row)
		rec := SourceRecord{
			Row:       i + 1,
			ID:        cellAt(cells, cols, fieldID),
			Name:      cellAt(cells, cols, fieldName),
			Address:   cellAt(cells, cols, fieldAddress),
			Latitude:  cellAt(cells, cols, fieldLat),
			Longitude: cellAt(cells, cols, fieldLon),
		}
		if rec.ID == "" && rec.Name == "" {
			continue
		}
		if res, ok := ParseGCResult(cellAt(cells, cols, fieldResult)); ok {
			rec.Result = res
		}
		records = append(records, rec)
	}
	return records, nil
}

func cellAt(cells []string, cols map[string]int, field string) string {
	idx, ok := cols[field]
	if !ok || idx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[idx])
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

// ClampRange applies a 1-based inclusive [start, end] selection to n rows.
// Zero start/end mean "from the beginning" / "to the end". An end beyond
// the data clamps; a start beyond the data selects nothing; start > end
// is an error.
func ClampRange(n, start, end int) (lo, hi int, err error) {
	if start == 0 {
		start = 1
	}
	if end == 0 {
		end = n
	}
	if start < 1 || end < 1 {
		return 0, 0, eris.New("record: start/end must be >= 1")
	}
	if start > end {
		return 0, 0, eris.New("record: start must be <= end")
	}
	if start > n {
		return 0, 0, nil
	}
	if end > n {
		end = n
	}
	return start, end, nil
}
