// Package record loads business-entity source records from xlsx
// spreadsheets with flexible header resolution.
package record

import "strings"

// GCResult is the ground-check outcome code carried in the source
// spreadsheet and written back to the web form.
type GCResult int

// Ground-check result codes as used by the GC form.
const (
	ResultUnset     GCResult = iota // no prior outcome recorded
	ResultNotFound                  // codes 0 and 99
	ResultFound                     // code 1
	ResultClosed                    // code 3
	ResultDuplicate                 // code 4
)

// ParseGCResult maps a raw spreadsheet cell to a result code. Returns
// ok=false for unrecognized values; empty cells map to ResultUnset.
func ParseGCResult(raw string) (GCResult, bool) {
	switch strings.TrimSpace(raw) {
	case "":
		return ResultUnset, true
	case "0", "99":
		return ResultNotFound, true
	case "1":
		return ResultFound, true
	case "3":
		return ResultClosed, true
	case "4":
		return ResultDuplicate, true
	}
	return ResultUnset, false
}

// Code returns the wire value written into the form's select input.
func (r GCResult) Code() string {
	switch r {
	case ResultNotFound:
		return "0"
	case ResultFound:
		return "1"
	case ResultClosed:
		return "3"
	case ResultDuplicate:
		return "4"
	}
	return ""
}

// Label returns the operator-facing label shown by the GC form.
func (r GCResult) Label() string {
	switch r {
	case ResultNotFound:
		return "Tidak Ditemukan"
	case ResultFound:
		return "Ditemukan"
	case ResultClosed:
		return "Tutup"
	case ResultDuplicate:
		return "Ganda"
	}
	return ""
}

// Terminal reports whether the code represents a prior outcome that makes
// re-submission pointless: a closed or duplicate business stays that way.
func (r GCResult) Terminal() bool {
	return r == ResultClosed || r == ResultDuplicate
}

// SourceRecord is one input row, immutable once read. Latitude and
// longitude stay as trimmed strings: each axis is independently optional
// and the form accepts them verbatim.
type SourceRecord struct {
	Row       int // 1-based position in the spreadsheet
	ID        string
	Name      string
	Address   string
	Latitude  string
	Longitude string
	Result    GCResult
}
