package orch

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbrops/groundcheck-cli/internal/driver"
	"github.com/sbrops/groundcheck-cli/internal/match"
	"github.com/sbrops/groundcheck-cli/internal/ratelimit"
	"github.com/sbrops/groundcheck-cli/internal/record"
	"github.com/sbrops/groundcheck-cli/internal/runlog"
)

// fakeBrowser scripts the driver surface for one or more records.
type fakeBrowser struct {
	candidates  []driver.Candidate
	filterErr   error
	filterCalls int
	state       driver.RecordState
	formValues  map[driver.Field]string
	filled      map[driver.Field]string
	toggled     map[driver.Field]bool
	selectErr   error
	submits     []driver.SubmitOutcome // consumed per attempt, last repeats
	submitIdx   int
	resets      int
	resetErr    error
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		state:      driver.RecordState{FormAvailable: true},
		formValues: map[driver.Field]string{},
		filled:     map[driver.Field]string{},
		toggled:    map[driver.Field]bool{},
		submits:    []driver.SubmitOutcome{{Status: driver.SubmitSuccess}},
	}
}

func (f *fakeBrowser) EnsureSession(context.Context, *driver.Credentials, bool) error { return nil }

func (f *fakeBrowser) Filter(context.Context, string, string, string) ([]driver.Candidate, error) {
	f.filterCalls++
	return f.candidates, f.filterErr
}

func (f *fakeBrowser) Open(context.Context, string, bool) (driver.RecordState, error) {
	return f.state, nil
}

func (f *fakeBrowser) FormValue(_ context.Context, field driver.Field) (string, error) {
	v, ok := f.formValues[field]
	if !ok {
		return "", assert.AnError
	}
	return v, nil
}

func (f *fakeBrowser) Fill(_ context.Context, field driver.Field, value string) error {
	f.filled[field] = value
	f.formValues[field] = value
	return nil
}

func (f *fakeBrowser) SelectResult(context.Context, record.GCResult) error { return f.selectErr }

func (f *fakeBrowser) ToggleEdit(_ context.Context, field driver.Field) error {
	f.toggled[field] = true
	return nil
}

func (f *fakeBrowser) Submit(context.Context, bool) (driver.SubmitOutcome, error) {
	out := f.submits[f.submitIdx]
	if f.submitIdx < len(f.submits)-1 {
		f.submitIdx++
	}
	return out, nil
}

func (f *fakeBrowser) Reset(context.Context) error { f.resets++; return f.resetErr }
func (f *fakeBrowser) Close() error                { return nil }

func fastLimiter() *ratelimit.Limiter {
	return ratelimit.New(ratelimit.Profile{
		MinInterval:    time.Millisecond,
		PenaltyInitial: time.Millisecond,
		PenaltyMax:     2 * time.Millisecond,
		CooldownAfter:  3,
		Cooldown:       time.Millisecond,
	})
}

func newAudit(t *testing.T) *runlog.Logger {
	t.Helper()
	return runlog.NewLogger(filepath.Join(t.TempDir(), "run1_0000.xlsx"), 0)
}

func oneRecord() []record.SourceRecord {
	return []record.SourceRecord{{
		Row: 1, ID: "123", Name: "Toko Maju Jaya", Address: "Jl. Sudirman 1",
		Latitude: "-6.2", Longitude: "106.8",
	}}
}

func run(t *testing.T, fb *fakeBrowser, opts Options, recs []record.SourceRecord) (Stats, []runlog.Row, error) {
	t.Helper()
	audit := newAudit(t)
	o := New(fb, fastLimiter(), match.Config{}, audit, nil, Events{}, opts)
	stats, err := o.ProcessAll(context.Background(), recs)
	return stats, audit.Rows(), err
}

func TestProcessAll_SuccessfulSubmit(t *testing.T) {
	fb := newFakeBrowser()
	fb.candidates = []driver.Candidate{{Name: "Toko Maju Jaya", Address: "Jl. Sudirman 1", Handle: "0"}}
	fb.formValues[driver.FieldResult] = ""
	fb.formValues[driver.FieldLatitude] = ""
	fb.formValues[driver.FieldLongitude] = ""

	stats, rows, err := run(t, fb, Options{PreferWebCoords: true}, oneRecord())
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, runlog.StatusSucceeded, row.Status)
	assert.Equal(t, "Submit sukses", row.Note)
	assert.Equal(t, "-6.2", row.Latitude)
	assert.Equal(t, runlog.SourceExcel, row.LatitudeSource)
	assert.Equal(t, runlog.SourceExcel, row.LongitudeSource)
	assert.Equal(t, "1", row.ResultAfter)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 1, stats.Processed)
}

func TestProcessAll_WebValueKeptWhenPreferringWebCoords(t *testing.T) {
	fb := newFakeBrowser()
	fb.candidates = []driver.Candidate{{Name: "Toko Maju Jaya", Handle: "0"}}
	fb.formValues[driver.FieldResult] = ""
	fb.formValues[driver.FieldLatitude] = "-7.0"
	fb.formValues[driver.FieldLongitude] = ""

	_, rows, err := run(t, fb, Options{PreferWebCoords: true}, oneRecord())
	require.NoError(t, err)

	row := rows[0]
	assert.Equal(t, "-7.0", row.Latitude)
	assert.Equal(t, runlog.SourceWeb, row.LatitudeSource)
	assert.NotContains(t, fb.filled, driver.FieldLatitude)
	assert.Equal(t, "106.8", row.Longitude)
	assert.Equal(t, runlog.SourceExcel, row.LongitudeSource)
}

func TestProcessAll_OverwriteWhenExcelPreferred(t *testing.T) {
	fb := newFakeBrowser()
	fb.candidates = []driver.Candidate{{Name: "Toko Maju Jaya", Handle: "0"}}
	fb.formValues[driver.FieldResult] = ""
	fb.formValues[driver.FieldLatitude] = "-7.0"
	fb.formValues[driver.FieldLongitude] = "100.0"

	_, rows, err := run(t, fb, Options{PreferWebCoords: false}, oneRecord())
	require.NoError(t, err)

	row := rows[0]
	assert.Equal(t, "-6.2", row.Latitude)
	assert.Equal(t, runlog.SourceExcel, row.LatitudeSource)
	assert.Equal(t, "-7.0", row.LatitudeBefore)
	assert.Equal(t, "-6.2", fb.filled[driver.FieldLatitude])
}

func TestProcessAll_MissingSourceAxisKeepsWebValue(t *testing.T) {
	fb := newFakeBrowser()
	fb.candidates = []driver.Candidate{{Name: "Toko Maju Jaya", Handle: "0"}}
	fb.formValues[driver.FieldResult] = ""
	fb.formValues[driver.FieldLatitude] = "-7.0"
	fb.formValues[driver.FieldLongitude] = "100.0"

	recs := oneRecord()
	recs[0].Latitude = ""
	_, rows, err := run(t, fb, Options{PreferWebCoords: false}, recs)
	require.NoError(t, err)

	row := rows[0]
	assert.Equal(t, "-7.0", row.Latitude)
	assert.Equal(t, runlog.SourceMissing, row.LatitudeSource)
	assert.NotContains(t, fb.filled, driver.FieldLatitude)
	assert.Equal(t, "106.8", row.Longitude)
	assert.Equal(t, runlog.SourceExcel, row.LongitudeSource)
}

func TestProcessAll_NoResults(t *testing.T) {
	fb := newFakeBrowser()
	fb.candidates = nil

	stats, rows, err := run(t, fb, Options{}, oneRecord())
	require.NoError(t, err)

	assert.Equal(t, runlog.StatusFailed, rows[0].Status)
	assert.Equal(t, "No results found", rows[0].Note)
	assert.Equal(t, 1, stats.NoResults)
	assert.Equal(t, 1, stats.Failed)
}

func TestProcessAll_AmbiguousCandidates(t *testing.T) {
	fb := newFakeBrowser()
	fb.candidates = []driver.Candidate{
		{Name: "Toko Maju Jaya", Handle: "0"},
		{Name: "Toko Maju Jaya", Handle: "1"},
	}

	stats, rows, err := run(t, fb, Options{}, oneRecord())
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusSkipped, rows[0].Status)
	assert.Equal(t, "Hasil filter ambigu (kemungkinan duplikat)", rows[0].Note)
	assert.Equal(t, 1, stats.Ambiguous)
	assert.Equal(t, 1, stats.Skipped)
}

func TestProcessAll_SkipsRecordedOutcome(t *testing.T) {
	fb := newFakeBrowser()

	for _, result := range []record.GCResult{
		record.ResultFound, record.ResultClosed, record.ResultDuplicate,
	} {
		recs := oneRecord()
		recs[0].Result = result

		stats, rows, err := run(t, fb, Options{}, recs)
		require.NoError(t, err)
		assert.Equal(t, runlog.StatusSkipped, rows[0].Status)
		assert.Equal(t, "Hasil GC sudah terisi ("+result.Label()+")", rows[0].Note)
		assert.Equal(t, 1, stats.SkippedChecked)
	}
	assert.Zero(t, fb.filterCalls, "no web interaction for recorded outcomes")
}

func TestProcessAll_UpdateModeProcessesRecordedOutcome(t *testing.T) {
	fb := newFakeBrowser()
	fb.candidates = []driver.Candidate{{Name: "Toko Maju Jaya", Handle: "0"}}
	fb.state = driver.RecordState{AlreadyChecked: true, FormAvailable: true}
	fb.formValues[driver.FieldResult] = "1"

	recs := oneRecord()
	recs[0].Result = record.ResultClosed
	_, rows, err := run(t, fb, Options{
		UpdateMode:   true,
		UpdateFields: []string{UpdateResult},
	}, recs)
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusSucceeded, rows[0].Status)
	assert.Equal(t, "3", rows[0].ResultAfter)
}

func TestProcessAll_SkipsAlreadyChecked(t *testing.T) {
	fb := newFakeBrowser()
	fb.candidates = []driver.Candidate{{Name: "Toko Maju Jaya", Handle: "0"}}
	fb.state = driver.RecordState{AlreadyChecked: true}

	stats, rows, err := run(t, fb, Options{}, oneRecord())
	require.NoError(t, err)

	assert.Equal(t, runlog.StatusSkipped, rows[0].Status)
	assert.Equal(t, "Sudah GC", rows[0].Note)
	assert.Equal(t, 1, stats.SkippedChecked)
	assert.Zero(t, fb.submitIdx, "no submit for a skipped record")
}

func TestProcessAll_SkipsDuplicate(t *testing.T) {
	fb := newFakeBrowser()
	fb.candidates = []driver.Candidate{{Name: "Toko Maju Jaya", Handle: "0"}}
	fb.state = driver.RecordState{Duplicate: true}

	stats, rows, err := run(t, fb, Options{}, oneRecord())
	require.NoError(t, err)
	assert.Equal(t, "Duplikat", rows[0].Note)
	assert.Equal(t, 1, stats.SkippedDup)
}

func TestProcessAll_UpdateModeStillSkipsDuplicate(t *testing.T) {
	fb := newFakeBrowser()
	fb.candidates = []driver.Candidate{{Name: "Toko Maju Jaya", Handle: "0"}}
	fb.state = driver.RecordState{AlreadyChecked: true, Duplicate: true}

	_, rows, err := run(t, fb, Options{UpdateMode: true}, oneRecord())
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusSkipped, rows[0].Status)
	assert.Equal(t, "Duplikat", rows[0].Note)
}

func TestProcessAll_RateLimitedThenSuccess(t *testing.T) {
	fb := newFakeBrowser()
	fb.candidates = []driver.Candidate{{Name: "Toko Maju Jaya", Handle: "0"}}
	fb.formValues[driver.FieldResult] = ""
	fb.formValues[driver.FieldLatitude] = ""
	fb.formValues[driver.FieldLongitude] = ""
	fb.submits = []driver.SubmitOutcome{
		{Status: driver.SubmitRateLimited},
		{Status: driver.SubmitRateLimited},
		{Status: driver.SubmitSuccess},
	}

	stats, rows, err := run(t, fb, Options{}, oneRecord())
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusSucceeded, rows[0].Status)
	assert.Equal(t, 2, stats.RateLimitEvents)
}

func TestProcessAll_RateLimitRetriesExhausted(t *testing.T) {
	fb := newFakeBrowser()
	fb.candidates = []driver.Candidate{{Name: "Toko Maju Jaya", Handle: "0"}}
	fb.formValues[driver.FieldResult] = ""
	fb.formValues[driver.FieldLatitude] = ""
	fb.formValues[driver.FieldLongitude] = ""
	fb.submits = []driver.SubmitOutcome{{Status: driver.SubmitRateLimited}}

	stats, rows, err := run(t, fb, Options{MaxSubmitRetries: 3}, oneRecord())
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusError, rows[0].Status)
	assert.Equal(t, "Server terus mengembalikan HTTP 429", rows[0].Note)
	assert.Equal(t, 3, stats.RateLimitEvents)
}

func TestProcessAll_SubmitErrorNotRetried(t *testing.T) {
	fb := newFakeBrowser()
	fb.candidates = []driver.Candidate{{Name: "Toko Maju Jaya", Handle: "0"}}
	fb.formValues[driver.FieldResult] = ""
	fb.formValues[driver.FieldLatitude] = ""
	fb.formValues[driver.FieldLongitude] = ""
	fb.submits = []driver.SubmitOutcome{{Status: driver.SubmitError, Message: "Dialog sukses tidak muncul"}}

	_, rows, err := run(t, fb, Options{}, oneRecord())
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusFailed, rows[0].Status)
	assert.Equal(t, "Dialog sukses tidak muncul", rows[0].Note)
}

func TestProcessAll_FreshRecordDefaultsToFound(t *testing.T) {
	fb := newFakeBrowser()
	fb.candidates = []driver.Candidate{{Name: "Toko Maju Jaya", Handle: "0"}}
	fb.formValues[driver.FieldResult] = ""
	fb.formValues[driver.FieldLatitude] = ""
	fb.formValues[driver.FieldLongitude] = ""

	_, rows, err := run(t, fb, Options{}, oneRecord())
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusSucceeded, rows[0].Status)
	assert.Equal(t, record.ResultFound.Code(), rows[0].ResultAfter)
}

func TestProcessAll_ResultSelectFailure(t *testing.T) {
	fb := newFakeBrowser()
	fb.candidates = []driver.Candidate{{Name: "Toko Maju Jaya", Handle: "0"}}
	fb.formValues[driver.FieldResult] = ""
	fb.selectErr = assert.AnError

	_, rows, err := run(t, fb, Options{}, oneRecord())
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusFailed, rows[0].Status)
	assert.Equal(t, "Hasil GC tidak valid/kosong", rows[0].Note)
	assert.Zero(t, fb.submitIdx, "no submit after a rejected result")
}

func TestProcessAll_UpdateRejectedOnEmptyFields(t *testing.T) {
	fb := newFakeBrowser()
	recs := oneRecord()
	recs[0].Latitude, recs[0].Longitude = "", ""

	_, rows, err := run(t, fb, Options{
		UpdateMode:   true,
		UpdateFields: []string{UpdateLatitude, UpdateLongitude},
	}, recs)
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusFailed, rows[0].Status)
	assert.Contains(t, rows[0].Note, "Update ditolak")
	assert.Contains(t, rows[0].Note, "latitude")
}

func TestProcessAll_UpdatePartialCoordinatesNoted(t *testing.T) {
	fb := newFakeBrowser()
	fb.candidates = []driver.Candidate{{Name: "Toko Maju Jaya", Handle: "0"}}
	fb.formValues[driver.FieldResult] = "1"
	fb.formValues[driver.FieldLatitude] = ""
	fb.formValues[driver.FieldLongitude] = ""

	recs := oneRecord()
	recs[0].Longitude = ""
	_, rows, err := run(t, fb, Options{
		UpdateMode:   true,
		UpdateFields: []string{UpdateLatitude, UpdateLongitude},
	}, recs)
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusSucceeded, rows[0].Status)
	assert.Contains(t, rows[0].Note, "Koordinat parsial")
}

func TestProcessAll_UpdateModeEditsNameAndAddress(t *testing.T) {
	fb := newFakeBrowser()
	fb.candidates = []driver.Candidate{{Name: "Toko Maju Jaya", Handle: "0"}}
	fb.formValues[driver.FieldResult] = "1"
	fb.formValues[driver.FieldName] = "Toko Lama"
	fb.formValues[driver.FieldAddress] = "Jl. Lama"

	_, rows, err := run(t, fb, Options{
		UpdateMode:   true,
		UpdateFields: []string{UpdateName, UpdateAddress},
	}, oneRecord())
	require.NoError(t, err)

	row := rows[0]
	require.Equal(t, runlog.StatusSucceeded, row.Status)
	assert.True(t, fb.toggled[driver.FieldName])
	assert.True(t, fb.toggled[driver.FieldAddress])
	assert.Equal(t, "Toko Lama", row.NameBefore)
	assert.Equal(t, "Toko Maju Jaya", row.NameAfter)
	assert.Equal(t, "Jl. Lama", row.AddressBefore)
	assert.Equal(t, "Jl. Sudirman 1", row.AddressAfter)
}

func TestProcessAll_OneRowPerRecord(t *testing.T) {
	fb := newFakeBrowser()
	fb.candidates = []driver.Candidate{{Name: "Toko Maju Jaya", Handle: "0"}}
	fb.formValues[driver.FieldResult] = ""
	fb.formValues[driver.FieldLatitude] = ""
	fb.formValues[driver.FieldLongitude] = ""

	recs := append(oneRecord(), record.SourceRecord{
		Row: 2, ID: "456", Name: "Warung Lain",
	})
	stats, rows, err := run(t, fb, Options{}, recs)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, fb.resets, "reset runs between records, not after the last")
}

func TestProcessAll_ResetFailureAbortsRun(t *testing.T) {
	fb := newFakeBrowser()
	fb.candidates = []driver.Candidate{{Name: "Toko Maju Jaya", Handle: "0"}}
	fb.formValues[driver.FieldResult] = ""
	fb.formValues[driver.FieldLatitude] = ""
	fb.formValues[driver.FieldLongitude] = ""
	fb.resetErr = assert.AnError

	recs := append(oneRecord(), record.SourceRecord{Row: 2, ID: "456", Name: "Warung Lain"})
	_, rows, err := run(t, fb, Options{}, recs)
	require.Error(t, err)
	assert.Equal(t, KindDriverFatal, KindOf(err))
	assert.Len(t, rows, 1, "remaining records are not started")
}

func TestProcessAll_CancellationStopsRun(t *testing.T) {
	fb := newFakeBrowser()
	fb.candidates = []driver.Candidate{{Name: "Toko Maju Jaya", Handle: "0"}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	audit := newAudit(t)
	o := New(fb, fastLimiter(), match.Config{}, audit, nil, Events{}, Options{})
	recs := append(oneRecord(), oneRecord()...)
	_, err := o.ProcessAll(ctx, recs)
	require.Error(t, err)
	assert.Equal(t, KindCancelled, KindOf(err))
	assert.Len(t, audit.Rows(), 1, "the in-flight record still gets its row")
}

func TestProcessAll_EventsFire(t *testing.T) {
	fb := newFakeBrowser()
	fb.candidates = []driver.Candidate{{Name: "Toko Maju Jaya", Handle: "0"}}
	fb.formValues[driver.FieldResult] = ""
	fb.formValues[driver.FieldLatitude] = ""
	fb.formValues[driver.FieldLongitude] = ""

	var rowEvents int
	var done bool
	audit := newAudit(t)
	o := New(fb, fastLimiter(), match.Config{}, audit, nil, Events{
		RowDone: func(index int, row runlog.Row, stats Stats) {
			rowEvents++
			assert.Equal(t, 0, index)
			assert.Equal(t, runlog.StatusSucceeded, row.Status)
		},
		RunDone: func(stats Stats) { done = true },
	}, Options{})

	_, err := o.ProcessAll(context.Background(), oneRecord())
	require.NoError(t, err)
	assert.Equal(t, 1, rowEvents)
	assert.True(t, done)
}

func TestWatchdog_CancelsAfterIdle(t *testing.T) {
	w := NewWatchdog(10 * time.Millisecond)
	// The watcher polls every second, so expiry is observed on the next
	// tick.
	ctx, stop := w.Watch(context.Background())
	defer stop()

	select {
	case <-ctx.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("watchdog did not fire")
	}
	assert.ErrorIs(t, context.Cause(ctx), ErrIdleTimeout)
	assert.Equal(t, KindIdleTimeout, KindOf(context.Cause(ctx)))
}

func TestWatchdog_TouchDefersExpiry(t *testing.T) {
	w := NewWatchdog(time.Hour)
	ctx, stop := w.Watch(context.Background())
	defer stop()

	w.Touch()
	select {
	case <-ctx.Done():
		t.Fatal("watchdog fired despite activity")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatchdog_NilAndDisabled(t *testing.T) {
	var w *Watchdog
	ctx, stop := w.Watch(context.Background())
	defer stop()
	assert.NoError(t, ctx.Err())
	w.Touch()

	d := NewWatchdog(0)
	ctx2, stop2 := d.Watch(context.Background())
	defer stop2()
	assert.NoError(t, ctx2.Err())
}
