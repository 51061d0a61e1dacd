// Package driver defines the browser capability the orchestrator consumes
// and provides the rod-backed implementation for the GC web application.
package driver

import (
	"context"

	"github.com/sbrops/groundcheck-cli/internal/record"
)

// Candidate is one entry returned by the GC filter. Handle is opaque to
// callers; the backend uses it to reopen the candidate's card.
type Candidate struct {
	Name    string
	Address string
	Handle  string
}

// Field names the writable inputs of the GC form.
type Field string

// Writable GC form fields.
const (
	FieldLatitude  Field = "latitude"
	FieldLongitude Field = "longitude"
	FieldName      Field = "nama_usaha"
	FieldAddress   Field = "alamat"
	FieldResult    Field = "hasil_gc"
)

// RecordState describes the opened candidate card before form entry.
type RecordState struct {
	AlreadyChecked bool // "Sudah GC" badge present
	Duplicate      bool // "Duplikat" status present
	FormAvailable  bool // result form reachable (Tandai / Edit Hasil)
}

// SubmitStatus classifies the outcome of a submit attempt.
type SubmitStatus int

// Submit outcomes.
const (
	SubmitSuccess     SubmitStatus = iota
	SubmitRateLimited              // server throttled the request; retryable
	SubmitError                    // any other error banner; not retryable
)

// SubmitOutcome carries the submit classification and the banner text, if
// any, for the audit note.
type SubmitOutcome struct {
	Status  SubmitStatus
	Message string
}

// Browser is the capability surface the orchestrator drives. Every call
// may block on network or page rendering and must honor ctx cancellation.
// Implementations own one authenticated session reused across records.
type Browser interface {
	// EnsureSession navigates to the GC page, walking the login flow if
	// the session is unauthenticated. With manualOnly or absent
	// credentials it waits for the operator to complete login.
	EnsureSession(ctx context.Context, creds *Credentials, manualOnly bool) error

	// Filter submits a search and returns the candidate cards. An empty
	// result is not an error.
	Filter(ctx context.Context, id, name, address string) ([]Candidate, error)

	// Open activates the candidate's card and its result form.
	Open(ctx context.Context, handle string, updateMode bool) (RecordState, error)

	// FormValue reads the current value of a form field.
	FormValue(ctx context.Context, f Field) (string, error)

	// Fill writes a form field.
	Fill(ctx context.Context, f Field, value string) error

	// SelectResult chooses the ground-check result code on the form.
	SelectResult(ctx context.Context, r record.GCResult) error

	// ToggleEdit enables the edit toggle guarding name/address inputs.
	ToggleEdit(ctx context.Context, f Field) error

	// Submit saves the form and classifies the outcome.
	Submit(ctx context.Context, hasCoords bool) (SubmitOutcome, error)

	// Reset navigates back to the filter page between records.
	Reset(ctx context.Context) error

	// Close releases the browser session.
	Close() error
}
