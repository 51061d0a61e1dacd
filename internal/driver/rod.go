package driver

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sbrops/groundcheck-cli/internal/record"
	"github.com/sbrops/groundcheck-cli/internal/resilience"
)

// Page selectors for the GC application.
const (
	selFilterID      = "#search-idsbr"
	selFilterName    = "#search-nama"
	selFilterAddress = "#search-alamat"
	selFilterToggle  = "#toggle-filter"
	selCardHeader    = ".usaha-card-header"
	selBlockUI       = ".blockUI.blockOverlay"
	selResultSelect  = "#tt_hasil_gc"
	selSubmitButton  = "#save-tandai-usaha-btn"
	selSwalPopup     = ".swal2-popup"
	selSwalConfirm   = ".swal2-confirm"
)

// Dialog texts the submit flow keys on.
const (
	geotagConfirmText = "tanpa melakukan geotag"
	submitSuccessText = "Data submitted successfully"
)

var fieldInputs = map[Field]string{
	FieldLatitude:  "#tt_latitude_cek_user",
	FieldLongitude: "#tt_longitude_cek_user",
	FieldName:      "#tt_nama_usaha_gc",
	FieldAddress:   "#tt_alamat_usaha_gc",
	FieldResult:    selResultSelect,
}

var fieldToggles = map[Field]string{
	FieldName:    "#toggle_edit_nama",
	FieldAddress: "#toggle_edit_alamat",
}

var blockedResourceTypes = map[proto.NetworkResourceType]bool{
	proto.NetworkResourceTypeImage: true,
	proto.NetworkResourceTypeMedia: true,
	proto.NetworkResourceTypeFont:  true,
}

// RodConfig configures the rod-backed Browser.
type RodConfig struct {
	TargetURL     string
	SSOHost       string
	LoginPath     string
	Headless      bool
	KeepOpen      bool
	OpTimeout     time.Duration // ceiling for individual page waits
	BlockResource bool          // drop image/media/font requests
}

func (c RodConfig) withDefaults() RodConfig {
	if c.TargetURL == "" {
		c.TargetURL = "https://matchapro.web.bps.go.id/dirgc"
	}
	if c.SSOHost == "" {
		c.SSOHost = "sso.bps.go.id"
	}
	if c.LoginPath == "" {
		c.LoginPath = "/login"
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 30 * time.Second
	}
	return c
}

// Rod drives the GC application through a Chromium instance. It is not
// safe for concurrent use; the orchestrator runs records sequentially.
type Rod struct {
	cfg      RodConfig
	launch   *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	handles  []*rod.Element // header elements from the last Filter
	activity func()         // invoked on every page interaction
	log      *zap.Logger

	// remembered from EnsureSession for mid-run re-login
	creds      *Credentials
	manualOnly bool
}

var _ Browser = (*Rod)(nil)

// NewRod launches Chromium and opens the working page. The returned Rod
// owns the browser process until Close.
func NewRod(cfg RodConfig) (*Rod, error) {
	cfg = cfg.withDefaults()

	l := launcher.New().Headless(cfg.Headless).Leakless(true)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, eris.Wrap(err, "driver: launch chromium")
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, eris.Wrap(err, "driver: connect to chromium")
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		l.Cleanup()
		return nil, eris.Wrap(err, "driver: open page")
	}
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		_ = browser.Close()
		l.Cleanup()
		return nil, eris.Wrap(err, "driver: enable network domain")
	}

	r := &Rod{
		cfg:      cfg,
		launch:   l,
		browser:  browser,
		page:     page,
		activity: func() {},
		log:      zap.L().Named("driver"),
	}
	if cfg.BlockResource {
		r.blockHeavyResources()
	}
	return r, nil
}

// OnActivity registers a callback fired on every page interaction. The
// orchestrator uses it to feed the idle watchdog.
func (r *Rod) OnActivity(fn func()) {
	if fn != nil {
		r.activity = fn
	}
}

// blockHeavyResources drops image, media and font requests so pages load
// lighter. CSS and JS pass through untouched.
func (r *Rod) blockHeavyResources() {
	router := r.page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if blockedResourceTypes[h.Request.Type()] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
}

func (r *Rod) url() string {
	info, err := r.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (r *Rod) onTarget() bool { return strings.HasPrefix(r.url(), r.cfg.TargetURL) }
func (r *Rod) targetHost() string {
	u := strings.TrimPrefix(strings.TrimPrefix(r.cfg.TargetURL, "https://"), "http://")
	if i := strings.IndexByte(u, '/'); i >= 0 {
		u = u[:i]
	}
	return u
}
func (r *Rod) onAppHost() bool { return strings.Contains(r.url(), r.targetHost()) }
func (r *Rod) onLoginPage() bool {
	return r.onAppHost() && strings.Contains(r.url(), r.cfg.LoginPath)
}

func (r *Rod) onSSO() bool {
	if strings.Contains(r.url(), r.cfg.SSOHost) {
		return true
	}
	ok, _, _ := r.page.Has("#kc-login")
	return ok
}

// visible reports whether at least one element matching sel is visible.
func (r *Rod) visible(sel string) bool {
	ok, el, err := r.page.Has(sel)
	if err != nil || !ok {
		return false
	}
	vis, err := el.Visible()
	return err == nil && vis
}

func (r *Rod) navigate(ctx context.Context, url string) error {
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = func(attempt int, err error) {
		r.log.Warn("navigation retry", zap.Int("attempt", attempt), zap.Error(err))
	}
	return resilience.Do(ctx, cfg, func(ctx context.Context) error {
		r.activity()
		p := r.page.Context(ctx)
		if err := p.Navigate(url); err != nil {
			return eris.Wrapf(err, "driver: navigate %s", url)
		}
		return p.WaitDOMStable(time.Second, 0)
	})
}

// waitFor polls cond until it returns true, ctx is done, or timeout
// elapses. Returns false on timeout.
func (r *Rod) waitFor(ctx context.Context, timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if timeout > 0 && time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (r *Rod) click(el *rod.Element) error {
	r.activity()
	_ = el.ScrollIntoView()
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (r *Rod) clickIfPresent(sel string) bool {
	ok, el, err := r.page.Has(sel)
	if err != nil || !ok {
		return false
	}
	return r.click(el) == nil
}

func (r *Rod) fill(sel, value string) error {
	r.activity()
	el, err := r.page.Timeout(r.cfg.OpTimeout).Element(sel)
	if err != nil {
		return eris.Wrapf(err, "driver: find %s", sel)
	}
	_ = el.SelectAllText()
	if err := el.Input(value); err != nil {
		return eris.Wrapf(err, "driver: fill %s", sel)
	}
	return nil
}

// EnsureSession walks the login flow until the working page is reached.
// Auto-fill is attempted once; on failure, or with nil creds or
// manualOnly, the operator completes login by hand and the call returns
// when the application is reached or ctx expires.
func (r *Rod) EnsureSession(ctx context.Context, creds *Credentials, manualOnly bool) error {
	r.creds, r.manualOnly = creds, manualOnly
	allowAutofill := !manualOnly && creds != nil
	attempted := false

	if !r.onTarget() {
		if err := r.navigate(ctx, r.cfg.TargetURL); err != nil {
			return err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "driver: login interrupted")
		}

		switch {
		case r.onTarget():
			r.log.Info("session ready", zap.String("url", r.url()))
			return nil

		case r.onLoginPage():
			if r.clickIfPresent("#login-sso") {
				r.log.Info("redirecting to sso login")
				r.waitFor(ctx, 30*time.Second, func() bool { return r.onSSO() || r.onAppHost() })
			}

		case r.onSSO():
			if allowAutofill && !attempted {
				attempted = true
				if r.autoLogin(ctx, creds) {
					r.waitFor(ctx, 60*time.Second, r.onAppHost)
					continue
				}
				allowAutofill = false
				r.log.Warn("auto-fill login failed, switching to manual login")
			}
			if r.otpChallengeVisible() {
				r.log.Info("otp required, waiting for manual input")
			} else {
				r.log.Info("waiting for manual login")
			}
			r.waitFor(ctx, 0, r.onAppHost)

		case r.onAppHost():
			if err := r.navigate(ctx, r.cfg.TargetURL); err != nil {
				return err
			}

		default:
			r.waitFor(ctx, 2*time.Second, func() bool { return false })
		}
	}
}

func (r *Rod) autoLogin(ctx context.Context, creds *Credentials) bool {
	fieldsReady := r.waitFor(ctx, 30*time.Second, func() bool {
		if ok, _, _ := r.page.Has("#username"); ok {
			return true
		}
		ok, _, _ := r.page.Has("input[name='username']")
		return ok
	})
	if !fieldsReady {
		r.log.Warn("login fields not found")
		return false
	}

	if err := r.fill("input#username, input[name='username']", creds.Username); err != nil {
		return false
	}
	if err := r.fill("input#password, input[name='password']", creds.Password); err != nil {
		return false
	}
	if !r.clickIfPresent("#kc-login") {
		return false
	}

	errorSels := []string{
		"#input-error", "#kc-error-message", ".kc-feedback-text",
		".alert-error", ".pf-c-alert__title",
	}
	var rejected bool
	done := r.waitFor(ctx, 15*time.Second, func() bool {
		if r.onAppHost() {
			return true
		}
		for _, sel := range errorSels {
			if r.visible(sel) {
				rejected = true
				return true
			}
		}
		return false
	})
	return done && !rejected && r.onAppHost()
}

func (r *Rod) otpChallengeVisible() bool {
	if !r.onSSO() {
		return false
	}
	otpSels := []string{
		"input[autocomplete='one-time-code']",
		"input[name*='otp']", "input[id*='otp']",
		"input[name*='verif']", "input[id*='verif']",
		"input[name*='kode']", "input[id*='kode']",
	}
	for _, sel := range otpSels {
		if r.visible(sel) {
			return true
		}
	}
	return false
}

func (r *Rod) ensureFilterOpen(ctx context.Context) {
	if r.visible(selFilterID) {
		return
	}
	if r.clickIfPresent(selFilterToggle) {
		r.waitFor(ctx, 10*time.Second, func() bool { return r.visible(selFilterID) })
	}
}

func (r *Rod) waitBlockUIClear(ctx context.Context, timeout time.Duration) {
	r.waitFor(ctx, timeout, func() bool { return !r.visible(selBlockUI) })
}

// awaitStatus arms a one-shot watcher for the next network response whose
// URL contains frag. The returned func blocks until the response arrives,
// timeout elapses, or ctx is done; it yields 0 when nothing was seen.
func (r *Rod) awaitStatus(ctx context.Context, frag string, timeout time.Duration) func() int {
	statusCh := make(chan int, 1)
	wctx, cancel := context.WithCancel(ctx)
	wait := r.page.Context(wctx).EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if strings.Contains(e.Response.URL, frag) {
			select {
			case statusCh <- e.Response.Status:
			default:
			}
			return true
		}
		return false
	})
	go wait()

	return func() int {
		defer cancel()
		select {
		case s := <-statusCh:
			return s
		case <-time.After(timeout):
			return 0
		case <-wctx.Done():
			return 0
		}
	}
}

// ErrFilterThrottled reports that the server refused filter requests
// repeatedly. The record should be treated as rate limited.
var ErrFilterThrottled = eris.New("driver: filter rate limited by server")

const maxFilterRetries = 5

// Filter drives the search panel and collects the resulting candidate
// cards. An IDSBR-only search runs first; a non-unique result retries
// with all three terms, mirroring how operators narrow searches by hand.
func (r *Rod) Filter(ctx context.Context, id, name, address string) ([]Candidate, error) {
	if !r.onTarget() {
		// Session expiry bounces the page to the login flow. Walk it
		// again with the remembered credentials before searching.
		r.log.Warn("working page lost, re-entering login flow", zap.String("url", r.url()))
		if err := r.EnsureSession(ctx, r.creds, r.manualOnly); err != nil {
			return nil, err
		}
	}
	r.ensureFilterOpen(ctx)

	if id != "" {
		cands, err := r.searchWith(ctx, id, "", "")
		if err != nil {
			return nil, err
		}
		if len(cands) == 1 || (name == "" && address == "") {
			return cands, nil
		}
		r.log.Info("idsbr search not unique, retrying with full terms",
			zap.String("idsbr", id), zap.Int("count", len(cands)))
		return r.searchWith(ctx, id, name, address)
	}
	return r.searchWith(ctx, "", name, address)
}

func (r *Rod) searchWith(ctx context.Context, id, name, address string) ([]Candidate, error) {
	backoff := 5 * time.Second
	for attempt := 1; ; attempt++ {
		status, err := r.applyFilterOnce(ctx, id, name, address)
		if err != nil {
			return nil, err
		}
		if status != 429 {
			break
		}
		r.log.Warn("server rate limited filter request",
			zap.Int("attempt", attempt), zap.Duration("wait", backoff))
		if attempt >= maxFilterRetries {
			return nil, ErrFilterThrottled
		}
		if err := sleepCtx(ctx, backoff); err != nil {
			return nil, err
		}
		if backoff *= 2; backoff > 40*time.Second {
			backoff = 40 * time.Second
		}
	}

	r.waitBlockUIClear(ctx, 15*time.Second)
	return r.collectCandidates()
}

func (r *Rod) applyFilterOnce(ctx context.Context, id, name, address string) (int, error) {
	r.activity()
	await := r.awaitStatus(ctx, "direktori-usaha/data-gc-card", 5*time.Second)

	_, err := r.page.Eval(`(idsbr, nama, alamat) => {
		const set = (sel, value) => {
			const input = document.querySelector(sel);
			if (!input) return;
			input.value = value || "";
			input.dispatchEvent(new Event("input", { bubbles: true }));
			input.dispatchEvent(new Event("change", { bubbles: true }));
		};
		set("#search-idsbr", idsbr);
		set("#search-nama", nama);
		set("#search-alamat", alamat);
	}`, id, name, address)
	if err != nil {
		return 0, eris.Wrap(err, "driver: set filter values")
	}
	return await(), nil
}

func (r *Rod) collectCandidates() ([]Candidate, error) {
	headers, err := r.page.Elements(selCardHeader)
	if err != nil {
		return nil, eris.Wrap(err, "driver: list result cards")
	}

	r.handles = r.handles[:0]
	cands := make([]Candidate, 0, len(headers))
	for i, header := range headers {
		name, err := header.Text()
		if err != nil {
			continue
		}
		addr := ""
		if card, err := header.Parent(); err == nil {
			if ok, el, _ := card.Has(".usaha-card-alamat"); ok {
				addr, _ = el.Text()
			}
		}
		r.handles = append(r.handles, header)
		cands = append(cands, Candidate{
			Name:    strings.TrimSpace(name),
			Address: strings.TrimSpace(addr),
			Handle:  strconv.Itoa(i),
		})
	}
	return cands, nil
}

// Open expands the candidate card, reads its status badges, and opens the
// result form unless the badges rule the record out.
func (r *Rod) Open(ctx context.Context, handle string, updateMode bool) (RecordState, error) {
	idx, err := strconv.Atoi(handle)
	if err != nil || idx < 0 || idx >= len(r.handles) {
		return RecordState{}, eris.Errorf("driver: stale candidate handle %q", handle)
	}
	header := r.handles[idx]
	if err := r.click(header); err != nil {
		return RecordState{}, eris.Wrap(err, "driver: open candidate card")
	}

	card, err := header.Parent()
	if err != nil {
		card = nil
	}
	state := RecordState{
		AlreadyChecked: r.scopeHasText(card, ".gc-badge", "Sudah GC"),
		Duplicate:      r.scopeHasText(card, ".usaha-status.tidak-aktif", "Duplikat"),
	}
	if (!updateMode && state.AlreadyChecked) || state.Duplicate {
		return state, nil
	}

	actionSel := ".btn-tandai"
	if updateMode {
		actionSel = ".btn-gc-edit"
	}
	r.waitBlockUIClear(ctx, 15*time.Second)
	if !r.visible(actionSel) || !r.clickIfPresent(actionSel) {
		return state, nil
	}
	state.FormAvailable = r.waitFor(ctx, 30*time.Second, func() bool {
		ok, _, _ := r.page.Has(selResultSelect)
		return ok
	})
	return state, nil
}

// scopeHasText checks for sel with the given text inside scope, falling
// back to the whole page when the card scope is unavailable.
func (r *Rod) scopeHasText(scope *rod.Element, sel, text string) bool {
	var els rod.Elements
	var err error
	if scope != nil {
		els, err = scope.Elements(sel)
	} else {
		els, err = r.page.Elements(sel)
	}
	if err != nil {
		return false
	}
	for _, el := range els {
		if t, err := el.Text(); err == nil && strings.Contains(t, text) {
			return true
		}
	}
	return false
}

// FormValue reads the current value of a form input.
func (r *Rod) FormValue(ctx context.Context, f Field) (string, error) {
	sel, ok := fieldInputs[f]
	if !ok {
		return "", eris.Errorf("driver: unknown field %q", f)
	}
	has, el, err := r.page.Has(sel)
	if err != nil || !has {
		return "", eris.Errorf("driver: field %s not present", f)
	}
	vis, err := el.Visible()
	if err != nil || !vis {
		return "", eris.Errorf("driver: field %s not visible", f)
	}
	v, err := el.Property("value")
	if err != nil {
		return "", eris.Wrapf(err, "driver: read %s", f)
	}
	return strings.TrimSpace(v.String()), nil
}

// Fill writes a form input, replacing its current value.
func (r *Rod) Fill(ctx context.Context, f Field, value string) error {
	sel, ok := fieldInputs[f]
	if !ok {
		return eris.Errorf("driver: unknown field %q", f)
	}
	return r.fill(sel, value)
}

// ToggleEdit enables the edit switch guarding a name or address input.
func (r *Rod) ToggleEdit(ctx context.Context, f Field) error {
	sel, ok := fieldToggles[f]
	if !ok {
		return eris.Errorf("driver: field %q has no edit toggle", f)
	}
	has, el, err := r.page.Has(sel)
	if err != nil || !has {
		return eris.Errorf("driver: edit toggle for %s not present", f)
	}
	checked, err := el.Property("checked")
	if err == nil && checked.Bool() {
		return nil
	}
	if err := r.click(el); err != nil {
		return eris.Wrapf(err, "driver: toggle edit for %s", f)
	}
	return nil
}

// SelectResult picks the ground-check result option, by value first and
// by label when the value is absent from the select.
func (r *Rod) SelectResult(ctx context.Context, res record.GCResult) error {
	r.activity()
	if !r.waitFor(ctx, 15*time.Second, func() bool {
		ok, _, _ := r.page.Has(selResultSelect)
		return ok
	}) {
		return eris.New("driver: result select not found")
	}

	obj, err := r.page.Eval(`(code, label) => {
		const sel = document.querySelector("#tt_hasil_gc");
		if (!sel) return false;
		const clean = (s) => (s || "").replace(/^\d+\s*[.)\-:]\s*/, "").trim().toLowerCase();
		let value = null;
		for (const opt of sel.options) {
			if (opt.value === code) { value = opt.value; break; }
		}
		if (value === null && label) {
			const target = clean(label);
			for (const opt of sel.options) {
				if (clean(opt.textContent) === target) { value = opt.value; break; }
			}
			if (value === null) {
				for (const opt of sel.options) {
					if (target && clean(opt.textContent).includes(target)) { value = opt.value; break; }
				}
			}
		}
		if (value === null) return false;
		sel.value = value;
		sel.dispatchEvent(new Event("change", { bubbles: true }));
		return true;
	}`, res.Code(), res.Label())
	if err != nil {
		return eris.Wrap(err, "driver: select result")
	}
	if !obj.Value.Bool() {
		return eris.Errorf("driver: result option %s not available", res.Code())
	}
	return nil
}

// Submit clicks save and classifies the outcome from the dialog flow. A
// geotag confirmation is accepted only when no coordinates were written.
func (r *Rod) Submit(ctx context.Context, hasCoords bool) (SubmitOutcome, error) {
	if !r.visible(selSubmitButton) {
		return SubmitOutcome{Status: SubmitError, Message: "Tombol submit tidak ditemukan"}, nil
	}
	r.waitBlockUIClear(ctx, 15*time.Second)

	await := r.awaitStatus(ctx, "direktori-usaha", 10*time.Second)
	if !r.clickIfPresent(selSubmitButton) {
		return SubmitOutcome{Status: SubmitError, Message: "Tombol submit gagal diklik"}, nil
	}
	if status := await(); status == 429 {
		r.dismissPopups(ctx)
		return SubmitOutcome{Status: SubmitRateLimited, Message: "HTTP 429"}, nil
	}

	kind, popup := r.waitForDialog(ctx, 15*time.Second)
	if kind == "confirm" {
		if hasCoords {
			r.dismissPopups(ctx)
			return SubmitOutcome{Status: SubmitError, Message: "Anomali dialog geotag"}, nil
		}
		if !r.clickDialogButton(popup, "Ya") {
			return SubmitOutcome{Status: SubmitError, Message: "Dialog geotag tanpa tombol Ya"}, nil
		}
		kind, popup = r.waitForDialog(ctx, 15*time.Second)
	}
	if kind != "success" {
		return SubmitOutcome{Status: SubmitError, Message: "Dialog sukses tidak muncul"}, nil
	}
	if !r.clickDialogButton(popup, "OK") {
		return SubmitOutcome{Status: SubmitError, Message: "Dialog sukses tanpa tombol OK"}, nil
	}
	r.waitFor(ctx, 10*time.Second, func() bool { return !r.visible(selSwalPopup) })
	return SubmitOutcome{Status: SubmitSuccess}, nil
}

// waitForDialog waits for the geotag confirmation or success popup and
// returns which one appeared.
func (r *Rod) waitForDialog(ctx context.Context, timeout time.Duration) (string, *rod.Element) {
	var kind string
	var popup *rod.Element
	r.waitFor(ctx, timeout, func() bool {
		els, err := r.page.Elements(selSwalPopup)
		if err != nil {
			return false
		}
		for _, el := range els {
			vis, err := el.Visible()
			if err != nil || !vis {
				continue
			}
			text, err := el.Text()
			if err != nil {
				continue
			}
			switch {
			case strings.Contains(text, submitSuccessText):
				kind, popup = "success", el
				return true
			case strings.Contains(text, geotagConfirmText):
				kind, popup = "confirm", el
				return true
			}
		}
		return false
	})
	return kind, popup
}

func (r *Rod) clickDialogButton(popup *rod.Element, label string) bool {
	if popup == nil {
		return false
	}
	els, err := popup.Elements(selSwalConfirm)
	if err != nil {
		return false
	}
	for _, el := range els {
		if t, err := el.Text(); err == nil && strings.Contains(t, label) {
			return r.click(el) == nil
		}
	}
	return false
}

func (r *Rod) dismissPopups(ctx context.Context) {
	for i := 0; i < 3 && r.visible(selSwalPopup); i++ {
		if !r.clickIfPresent(selSwalConfirm) {
			break
		}
		r.waitFor(ctx, 2*time.Second, func() bool { return !r.visible(selSwalPopup) })
	}
}

// Reset returns to the working page between records.
func (r *Rod) Reset(ctx context.Context) error {
	r.waitFor(ctx, 10*time.Second, func() bool { return !r.visible(selSwalPopup) })
	if !r.onTarget() {
		if err := r.navigate(ctx, r.cfg.TargetURL); err != nil {
			return err
		}
	}
	r.waitFor(ctx, 10*time.Second, func() bool {
		if r.visible(selFilterID) {
			return true
		}
		ok, _, _ := r.page.Has(selCardHeader)
		return ok
	})
	return nil
}

// Close shuts the browser down unless KeepOpen was requested.
func (r *Rod) Close() error {
	if r.cfg.KeepOpen {
		r.log.Info("leaving browser open on request")
		return nil
	}
	err := r.browser.Close()
	r.launch.Cleanup()
	if err != nil {
		return eris.Wrap(err, "driver: close browser")
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
