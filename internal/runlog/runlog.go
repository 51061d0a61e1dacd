// Package runlog accumulates per-record audit rows and persists them as
// dated xlsx run logs.
package runlog

import "strconv"

// Status values written to the run log, in the operator's language.
const (
	StatusSucceeded = "berhasil"
	StatusFailed    = "gagal"
	StatusError     = "error"
	StatusSkipped   = "skipped"
)

// Provenance tags describe where a written field value came from.
const (
	SourceWeb     = "web"     // kept the value already on the form
	SourceExcel   = "excel"   // written from the spreadsheet
	SourceEmpty   = "empty"   // both sides empty
	SourceMissing = "missing" // field not present or not writable
	SourceUnknown = "unknown" // never evaluated
)

// Columns is the run-log schema, in output order.
var Columns = []string{
	"no",
	"idsbr",
	"nama_usaha",
	"alamat",
	"keberadaanusaha_gc",
	"latitude",
	"latitude_source",
	"latitude_before",
	"latitude_after",
	"longitude",
	"longitude_source",
	"longitude_before",
	"longitude_after",
	"hasil_gc_before",
	"hasil_gc_after",
	"nama_usaha_before",
	"nama_usaha_after",
	"alamat_before",
	"alamat_after",
	"status",
	"catatan",
}

// Row is one audit record. Exactly one Row exists per processed source
// record; it is never mutated after the record finishes.
type Row struct {
	No              int
	ID              string
	Name            string
	Address         string
	Result          string
	Latitude        string
	LatitudeSource  string
	LatitudeBefore  string
	LatitudeAfter   string
	Longitude       string
	LongitudeSource string
	LongitudeBefore string
	LongitudeAfter  string
	ResultBefore    string
	ResultAfter     string
	NameBefore      string
	NameAfter       string
	AddressBefore   string
	AddressAfter    string
	Status          string
	Note            string
}

// Values returns the row's cells in Columns order.
func (r Row) Values() []string {
	return []string{
		strconv.Itoa(r.No),
		r.ID,
		r.Name,
		r.Address,
		r.Result,
		r.Latitude,
		r.LatitudeSource,
		r.LatitudeBefore,
		r.LatitudeAfter,
		r.Longitude,
		r.LongitudeSource,
		r.LongitudeBefore,
		r.LongitudeAfter,
		r.ResultBefore,
		r.ResultAfter,
		r.NameBefore,
		r.NameAfter,
		r.AddressBefore,
		r.AddressAfter,
		r.Status,
		r.Note,
	}
}
