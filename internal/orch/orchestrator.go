package orch

import (
	"context"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sbrops/groundcheck-cli/internal/driver"
	"github.com/sbrops/groundcheck-cli/internal/match"
	"github.com/sbrops/groundcheck-cli/internal/ratelimit"
	"github.com/sbrops/groundcheck-cli/internal/record"
	"github.com/sbrops/groundcheck-cli/internal/runlog"
)

// Updatable field names accepted by Options.UpdateFields.
const (
	UpdateResult    = "hasil_gc"
	UpdateLatitude  = "latitude"
	UpdateLongitude = "longitude"
	UpdateName      = "nama"
	UpdateAddress   = "alamat"
)

// DefaultMaxSubmitRetries bounds consecutive rate-limited submit
// attempts for one record.
const DefaultMaxSubmitRetries = 5

// Options selects the processing mode for a run.
type Options struct {
	// UpdateMode edits records that were already ground checked instead
	// of marking new ones.
	UpdateMode bool
	// UpdateFields restricts update mode to the named fields. Empty
	// means all fields.
	UpdateFields []string
	// EditNamaAlamat also writes name and address during a normal run.
	EditNamaAlamat bool
	// PreferWebCoords keeps coordinates already on the form instead of
	// overwriting them from the spreadsheet.
	PreferWebCoords bool
	// MaxSubmitRetries caps rate-limited submit attempts per record.
	// Zero means DefaultMaxSubmitRetries.
	MaxSubmitRetries int
}

func (o Options) updates(field string) bool {
	if !o.UpdateMode {
		return false
	}
	return len(o.UpdateFields) == 0 || slices.Contains(o.UpdateFields, field)
}

// Orchestrator walks source records through filter, match, form entry
// and submit, writing one audit row per record no matter how the record
// ends.
type Orchestrator struct {
	browser  driver.Browser
	limiter  *ratelimit.Limiter
	matchCfg match.Config
	audit    *runlog.Logger
	watchdog *Watchdog
	events   Events
	opts     Options
	log      *zap.Logger

	stats Stats
}

// New builds an Orchestrator. watchdog may be nil.
func New(
	b driver.Browser,
	limiter *ratelimit.Limiter,
	matchCfg match.Config,
	audit *runlog.Logger,
	watchdog *Watchdog,
	events Events,
	opts Options,
) *Orchestrator {
	if opts.MaxSubmitRetries <= 0 {
		opts.MaxSubmitRetries = DefaultMaxSubmitRetries
	}
	return &Orchestrator{
		browser:  b,
		limiter:  limiter,
		matchCfg: matchCfg,
		audit:    audit,
		watchdog: watchdog,
		events:   events,
		opts:     opts,
		log:      zap.L().Named("orch"),
	}
}

// ProcessAll runs every record sequentially. The audit log gains exactly
// one row per record, including records cut short by cancellation or the
// idle watchdog. The returned error, if any, names the run-level cause.
func (o *Orchestrator) ProcessAll(ctx context.Context, records []record.SourceRecord) (Stats, error) {
	wctx, stop := o.watchdog.Watch(ctx)
	defer stop()

	var runErr error
	for i, rec := range records {
		o.watchdog.Touch()

		row := o.processRecord(wctx, rec)
		o.audit.Append(row)
		o.tally(row.Status)
		o.events.rowDone(i, row, o.stats)

		if err := context.Cause(wctx); err != nil {
			runErr = &RecordError{Kind: KindOf(err), Err: err}
			break
		}
		if i < len(records)-1 {
			if err := o.browser.Reset(wctx); err != nil {
				// A browser that cannot return to the working page is
				// unusable for every remaining record.
				o.log.Error("browser unusable, aborting run", zap.Error(err))
				runErr = &RecordError{Kind: KindDriverFatal, Err: eris.Wrap(err, "orch: reset working page")}
				break
			}
		}
	}

	if err := o.audit.Flush(); err != nil {
		o.log.Error("final audit flush failed", zap.Error(err))
		if runErr == nil {
			runErr = eris.Wrap(err, "orch: flush audit log")
		}
	}
	o.events.runDone(o.stats)
	return o.stats, runErr
}

func (o *Orchestrator) tally(status string) {
	o.stats.Processed++
	switch status {
	case runlog.StatusSucceeded:
		o.stats.Succeeded++
	case runlog.StatusFailed:
		o.stats.Failed++
	case runlog.StatusError:
		o.stats.Errors++
	case runlog.StatusSkipped:
		o.stats.Skipped++
	}
}

// processRecord runs the per-record state machine and always returns a
// finished audit row.
func (o *Orchestrator) processRecord(ctx context.Context, rec record.SourceRecord) runlog.Row {
	row := runlog.Row{
		No:       rec.Row,
		ID:       rec.ID,
		Name:     rec.Name,
		Address:  rec.Address,
		Result:   rec.Result.Code(),
		Latitude: rec.Latitude, LatitudeSource: runlog.SourceUnknown,
		Longitude: rec.Longitude, LongitudeSource: runlog.SourceUnknown,
	}
	var extraNotes []string
	fail := func(status, note string) runlog.Row {
		row.Status, row.Note = status, note
		if len(extraNotes) > 0 {
			if row.Note != "" {
				row.Note += "; "
			}
			row.Note += strings.Join(extraNotes, "; ")
		}
		return row
	}

	log := o.log.With(zap.String("idsbr", rec.ID), zap.Int("row", rec.Row))

	if o.opts.UpdateMode {
		if note, ok := o.validateUpdateInputs(rec, &extraNotes); !ok {
			log.Warn("update rejected, empty spreadsheet fields", zap.String("note", note))
			return fail(runlog.StatusFailed, note)
		}
	} else if rec.Result == record.ResultFound || rec.Result.Terminal() {
		// The spreadsheet already carries a final outcome for this
		// record. Re-submitting would duplicate the entry.
		o.stats.SkippedChecked++
		log.Info("skipped, prior outcome recorded", zap.String("hasil", rec.Result.Label()))
		return fail(runlog.StatusSkipped, "Hasil GC sudah terisi ("+rec.Result.Label()+")")
	}

	log.Info("applying filter")
	cands, err := o.browser.Filter(ctx, rec.ID, rec.Name, rec.Address)
	if err != nil {
		return fail(runlog.StatusError, errNote(ctx, err))
	}
	log.Info("filter results", zap.Int("count", len(cands)))

	decision := match.Match(o.matchCfg, rec.Name, rec.Address, cands)
	switch decision.Outcome {
	case match.NoMatch:
		o.stats.NoResults++
		log.Warn("no matching result")
		return fail(runlog.StatusFailed, "No results found")
	case match.Ambiguous:
		o.stats.Ambiguous++
		log.Warn("ambiguous filter results", zap.Int("count", len(cands)))
		return fail(runlog.StatusSkipped, "Hasil filter ambigu (kemungkinan duplikat)")
	}

	state, err := o.browser.Open(ctx, decision.Best().Handle, o.opts.UpdateMode)
	if err != nil {
		return fail(runlog.StatusError, errNote(ctx, err))
	}
	if state.Duplicate {
		o.stats.SkippedDup++
		log.Info("skipped, duplicate record")
		return fail(runlog.StatusSkipped, "Duplikat")
	}
	if !o.opts.UpdateMode && state.AlreadyChecked {
		o.stats.SkippedChecked++
		log.Info("skipped, already ground checked")
		return fail(runlog.StatusSkipped, "Sudah GC")
	}
	if !state.FormAvailable {
		if o.opts.UpdateMode {
			return fail(runlog.StatusFailed, "Tombol Edit Hasil tidak ditemukan (kemungkinan belum GC)")
		}
		return fail(runlog.StatusFailed, "Form Hasil GC tidak muncul")
	}

	// Result select, with the pre-edit value for the audit trail. A fresh
	// record with no result code in the spreadsheet was just located via
	// the filter, so it submits as found.
	row.ResultBefore, _ = o.browser.FormValue(ctx, driver.FieldResult)
	row.ResultAfter = row.ResultBefore
	result := rec.Result
	if !o.opts.UpdateMode && result == record.ResultUnset {
		result = record.ResultFound
	}
	if !o.opts.UpdateMode || o.opts.updates(UpdateResult) {
		if result == record.ResultUnset {
			return fail(runlog.StatusFailed, "Hasil GC tidak valid/kosong")
		}
		if err := o.browser.SelectResult(ctx, result); err != nil {
			log.Warn("result select failed", zap.Error(err))
			return fail(runlog.StatusFailed, "Hasil GC tidak valid/kosong")
		}
		row.ResultAfter = result.Code()
	}

	o.fillCoordinates(ctx, rec, &row, log)
	o.fillNameAddress(ctx, rec, &row, log)

	hasCoords := row.Latitude != "" || row.Longitude != ""
	status, note := o.submitWithRetry(ctx, hasCoords, log)
	return fail(status, note)
}

// validateUpdateInputs rejects updates whose selected fields are empty in
// the spreadsheet, and notes partial coordinates.
func (o *Orchestrator) validateUpdateInputs(rec record.SourceRecord, extraNotes *[]string) (string, bool) {
	var missing []string
	if o.opts.updates(UpdateResult) && rec.Result == record.ResultUnset {
		missing = append(missing, UpdateResult)
	}
	if o.opts.updates(UpdateName) && strings.TrimSpace(rec.Name) == "" {
		missing = append(missing, "nama_usaha")
	}
	if o.opts.updates(UpdateAddress) && strings.TrimSpace(rec.Address) == "" {
		missing = append(missing, UpdateAddress)
	}

	updateLat := o.opts.updates(UpdateLatitude)
	updateLon := o.opts.updates(UpdateLongitude)
	lat := strings.TrimSpace(rec.Latitude) != ""
	lon := strings.TrimSpace(rec.Longitude) != ""
	switch {
	case updateLat && updateLon:
		if !lat && !lon {
			missing = append(missing, "latitude", "longitude")
		} else if lat != lon {
			axis := UpdateLatitude
			if lon {
				axis = UpdateLongitude
			}
			*extraNotes = append(*extraNotes, "Koordinat parsial (hanya "+axis+")")
		}
	case updateLat && !lat:
		missing = append(missing, UpdateLatitude)
	case updateLon && !lon:
		missing = append(missing, UpdateLongitude)
	}

	if len(missing) > 0 {
		return "Update ditolak: field kosong (" + strings.Join(missing, ", ") + ")", false
	}
	return "", true
}

// fillCoordinates writes each axis independently, recording where the
// final value came from.
func (o *Orchestrator) fillCoordinates(ctx context.Context, rec record.SourceRecord, row *runlog.Row, log *zap.Logger) {
	writeLat := !o.opts.UpdateMode || o.opts.updates(UpdateLatitude)
	writeLon := !o.opts.UpdateMode || o.opts.updates(UpdateLongitude)
	overwrite := !o.opts.PreferWebCoords

	latDesired, lonDesired := "", ""
	if writeLat {
		latDesired = rec.Latitude
	}
	if writeLon {
		lonDesired = rec.Longitude
	}

	row.Latitude, row.LatitudeSource, row.LatitudeBefore, row.LatitudeAfter =
		o.safeFill(ctx, driver.FieldLatitude, latDesired, overwrite && writeLat, log)
	row.Longitude, row.LongitudeSource, row.LongitudeBefore, row.LongitudeAfter =
		o.safeFill(ctx, driver.FieldLongitude, lonDesired, overwrite && writeLon, log)
}

// safeFill mirrors careful manual entry: an existing form value wins
// unless overwriting is allowed, and a missing input never fails the
// record.
func (o *Orchestrator) safeFill(ctx context.Context, f driver.Field, desired string, allowOverwrite bool, log *zap.Logger) (value, source, before, after string) {
	current, err := o.browser.FormValue(ctx, f)
	if err != nil {
		log.Warn("form field unavailable", zap.String("field", string(f)))
		return "", runlog.SourceMissing, "", ""
	}
	desired = strings.TrimSpace(desired)

	if allowOverwrite {
		if desired != "" {
			if current != desired {
				if err := o.browser.Fill(ctx, f, desired); err != nil {
					log.Warn("fill failed", zap.String("field", string(f)), zap.Error(err))
					return current, runlog.SourceWeb, current, current
				}
			}
			return desired, runlog.SourceExcel, current, desired
		}
		// No source value for this axis. Whatever is on the form stays,
		// and the provenance says the spreadsheet had nothing to offer.
		if current != "" {
			return current, runlog.SourceMissing, current, current
		}
		return "", runlog.SourceEmpty, current, ""
	}

	if current != "" {
		return current, runlog.SourceWeb, current, current
	}
	if desired == "" {
		return "", runlog.SourceEmpty, current, ""
	}
	if err := o.browser.Fill(ctx, f, desired); err != nil {
		log.Warn("fill failed", zap.String("field", string(f)), zap.Error(err))
		return "", runlog.SourceMissing, current, ""
	}
	return desired, runlog.SourceExcel, current, desired
}

// fillNameAddress handles the toggle-guarded name and address inputs,
// used by update mode and by the opt-in edit during normal runs.
func (o *Orchestrator) fillNameAddress(ctx context.Context, rec record.SourceRecord, row *runlog.Row, log *zap.Logger) {
	editName := o.opts.updates(UpdateName) || (!o.opts.UpdateMode && o.opts.EditNamaAlamat)
	editAddr := o.opts.updates(UpdateAddress) || (!o.opts.UpdateMode && o.opts.EditNamaAlamat)

	if editName {
		row.NameBefore, row.NameAfter = o.editField(ctx, driver.FieldName, rec.Name, log)
	}
	if editAddr {
		row.AddressBefore, row.AddressAfter = o.editField(ctx, driver.FieldAddress, rec.Address, log)
	}
}

func (o *Orchestrator) editField(ctx context.Context, f driver.Field, desired string, log *zap.Logger) (before, after string) {
	desired = strings.TrimSpace(desired)
	if err := o.browser.ToggleEdit(ctx, f); err != nil {
		log.Warn("edit toggle unavailable", zap.String("field", string(f)), zap.Error(err))
		return "", ""
	}
	current, err := o.browser.FormValue(ctx, f)
	if err != nil {
		log.Warn("edit field unavailable", zap.String("field", string(f)))
		return "", ""
	}
	if desired == "" || current == desired {
		return current, current
	}
	if err := o.browser.Fill(ctx, f, desired); err != nil {
		log.Warn("edit fill failed", zap.String("field", string(f)), zap.Error(err))
		return current, current
	}
	return current, desired
}

// submitWithRetry paces the save, retrying only server throttling, up to
// the configured cap.
func (o *Orchestrator) submitWithRetry(ctx context.Context, hasCoords bool, log *zap.Logger) (status, note string) {
	for attempt := 1; ; attempt++ {
		if err := o.limiter.Wait(ctx); err != nil {
			return runlog.StatusError, errNote(ctx, err)
		}

		out, err := o.browser.Submit(ctx, hasCoords)
		if err != nil {
			return runlog.StatusError, errNote(ctx, err)
		}

		switch out.Status {
		case driver.SubmitSuccess:
			if err := o.limiter.RecordSuccess(ctx); err != nil {
				log.Warn("post-success delay interrupted", zap.Error(err))
			}
			return runlog.StatusSucceeded, "Submit sukses"

		case driver.SubmitRateLimited:
			o.stats.RateLimitEvents++
			o.limiter.RecordRateLimited()
			log.Warn("server rate limited submit",
				zap.Int("attempt", attempt),
				zap.Duration("penalty", o.limiter.Penalty()))
			if attempt >= o.opts.MaxSubmitRetries {
				return runlog.StatusError, "Server terus mengembalikan HTTP 429"
			}

		default:
			msg := out.Message
			if msg == "" {
				msg = "Submit gagal"
			}
			return runlog.StatusFailed, msg
		}
	}
}

// errNote turns a failure into the audit-row note, preferring the
// context's cancellation cause over the surface error.
func errNote(ctx context.Context, err error) string {
	if cause := context.Cause(ctx); cause != nil {
		err = cause
	}
	switch KindOf(err) {
	case KindIdleTimeout:
		return "Idle timeout reached"
	case KindCancelled:
		return "Run dibatalkan"
	case KindRateLimited:
		return "Server terus mengembalikan HTTP 429"
	}
	return err.Error()
}
