package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sbrops/groundcheck-cli/internal/config"
	"github.com/sbrops/groundcheck-cli/internal/driver"
	"github.com/sbrops/groundcheck-cli/internal/match"
	"github.com/sbrops/groundcheck-cli/internal/orch"
	"github.com/sbrops/groundcheck-cli/internal/ratelimit"
	"github.com/sbrops/groundcheck-cli/internal/record"
	"github.com/sbrops/groundcheck-cli/internal/runlog"
	"github.com/sbrops/groundcheck-cli/internal/runstore"
)

// runParams carries every knob of one processing session. The serve
// command reuses it for runs launched over HTTP.
type runParams struct {
	excelFile       string
	startRow        int
	endRow          int
	headless        bool
	manualOnly      bool
	credentialsFile string
	idleTimeoutMs   int
	webTimeoutS     int
	keepOpen        bool
	dirgcOnly       bool
	editNamaAlamat  bool
	updateMode      bool
	updateFields    []string
	rateProfile     string
	preferWebCoords bool
	resume          bool
}

func (p runParams) mode() string {
	if p.updateMode {
		return "update"
	}
	return "run"
}

var runP runParams
var runUpdateFieldsRaw string
var runPreferExcelCoords bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process spreadsheet records against the GC form",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if runUpdateFieldsRaw != "" {
			fields, err := parseUpdateFields(runUpdateFieldsRaw)
			if err != nil {
				return err
			}
			runP.updateFields = fields
		}
		if runPreferExcelCoords && runP.preferWebCoords {
			return eris.New("run: --prefer-excel-coords and --prefer-web-coords are mutually exclusive")
		}

		stats, logPath, err := executeRun(ctx, cfg, runP, orch.Events{})
		if err != nil {
			return err
		}
		printStats(stats, logPath)
		return nil
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runP.excelFile, "excel-file", "e", "", "path to the input xlsx file")
	f.IntVar(&runP.startRow, "start", 0, "first record to process (1-based)")
	f.IntVar(&runP.endRow, "end", 0, "last record to process (1-based, inclusive)")
	f.BoolVar(&runP.headless, "headless", false, "run the browser headless (may break SSO)")
	f.BoolVarP(&runP.manualOnly, "manual-only", "m", false, "skip auto-fill and always log in manually")
	f.StringVarP(&runP.credentialsFile, "credentials-file", "c", "", "path to a JSON credentials file")
	f.IntVarP(&runP.idleTimeoutMs, "idle-timeout-ms", "t", 0, "stop when idle this long (default from config)")
	f.IntVar(&runP.webTimeoutS, "web-timeout-s", 0, "page wait ceiling in seconds (default from config)")
	f.BoolVarP(&runP.keepOpen, "keep-open", "k", false, "keep the browser open until Enter is pressed")
	f.BoolVar(&runP.dirgcOnly, "dirgc-only", false, "stop after reaching the GC page, process nothing")
	f.BoolVar(&runP.editNamaAlamat, "edit-nama-alamat", false, "also write name and address from the spreadsheet")
	f.BoolVar(&runP.updateMode, "update-mode", false, "edit already ground-checked records")
	f.StringVar(&runUpdateFieldsRaw, "update-fields", "", "comma-separated fields for update mode (hasil_gc,nama,alamat,latitude,longitude,koordinat)")
	f.StringVar(&runP.rateProfile, "rate-limit-profile", "", "submission pacing profile: normal, safe or ultra")
	f.BoolVar(&runPreferExcelCoords, "prefer-excel-coords", false, "overwrite web coordinates with spreadsheet values (default)")
	f.BoolVar(&runP.preferWebCoords, "prefer-web-coords", false, "keep coordinates already on the form")
	f.BoolVar(&runP.resume, "resume", false, "continue from the last checkpoint for this file")
	rootCmd.AddCommand(runCmd)
}

func parseUpdateFields(raw string) ([]string, error) {
	var out []string
	for _, f := range strings.Split(raw, ",") {
		switch strings.TrimSpace(strings.ToLower(f)) {
		case "":
		case "hasil_gc", "hasilgc":
			out = append(out, orch.UpdateResult)
		case "nama", "nama_usaha":
			out = append(out, orch.UpdateName)
		case "alamat":
			out = append(out, orch.UpdateAddress)
		case "latitude", "lat":
			out = append(out, orch.UpdateLatitude)
		case "longitude", "lon":
			out = append(out, orch.UpdateLongitude)
		case "koordinat":
			out = append(out, orch.UpdateLatitude, orch.UpdateLongitude)
		default:
			return nil, eris.Errorf("run: unknown update field %q", f)
		}
	}
	return out, nil
}

// executeRun wires the session end to end: browser, login, limiter,
// audit log, run history, resume checkpoints, then the orchestrator.
func executeRun(ctx context.Context, cfg *config.Config, p runParams, extra orch.Events) (orch.Stats, string, error) {
	log := zap.L()

	browser, err := driver.NewRod(driver.RodConfig{
		TargetURL:     cfg.Target.URL,
		SSOHost:       cfg.Target.SSOHost,
		LoginPath:     cfg.Target.LoginPath,
		Headless:      p.headless || cfg.Browser.Headless,
		KeepOpen:      p.keepOpen,
		OpTimeout:     time.Duration(orDefault(p.webTimeoutS, cfg.Browser.WebTimeoutSecs)) * time.Second,
		BlockResource: cfg.Browser.BlockResources,
	})
	if err != nil {
		return orch.Stats{}, "", err
	}
	defer func() {
		if p.keepOpen {
			fmt.Println("Browser left open. Press Enter to close.")
			bufio.NewReader(os.Stdin).ReadString('\n')
		}
		if err := browser.Close(); err != nil {
			log.Warn("browser close failed", zap.Error(err))
		}
	}()

	creds, err := driver.LoadCredentials(orDefaultStr(p.credentialsFile, cfg.Browser.CredentialsFile))
	if err != nil {
		return orch.Stats{}, "", err
	}
	if creds == nil && !p.manualOnly {
		log.Info("no credentials found, falling back to manual login")
	}

	idleTimeout := time.Duration(orDefault(p.idleTimeoutMs, cfg.Browser.IdleTimeoutMs)) * time.Millisecond
	watchdog := orch.NewWatchdog(idleTimeout)
	browser.OnActivity(watchdog.Touch)

	loginCtx, stopLogin := watchdog.Watch(ctx)
	err = browser.EnsureSession(loginCtx, creds, p.manualOnly)
	stopLogin()
	if err != nil {
		return orch.Stats{}, "", &orch.RecordError{Kind: orch.KindLoginFailure, Err: err}
	}

	if p.dirgcOnly {
		log.Info("stopping at the GC page as requested")
		return orch.Stats{}, "", nil
	}
	if p.excelFile == "" {
		return orch.Stats{}, "", eris.New("run: --excel-file is required")
	}

	records, err := record.LoadRecords(p.excelFile)
	if err != nil {
		return orch.Stats{}, "", err
	}

	store, err := runstore.Open(cfg.Store.Path)
	if err != nil {
		return orch.Stats{}, "", err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return orch.Stats{}, "", err
	}

	lo, hi, err := record.ClampRange(len(records), p.startRow, p.endRow)
	if err != nil {
		return orch.Stats{}, "", err
	}
	if p.resume {
		if cp, err := store.LoadResume(ctx, p.excelFile); err != nil {
			return orch.Stats{}, "", err
		} else if cp != nil && cp.NextRow > lo {
			log.Info("resuming from checkpoint",
				zap.Int("next_row", cp.NextRow), zap.Time("saved_at", cp.SavedAt))
			lo = cp.NextRow
		}
	}
	if lo == 0 || lo > hi {
		log.Info("nothing to process", zap.Int("records", len(records)))
		return orch.Stats{}, "", nil
	}
	slice := records[lo-1 : hi]

	profile, err := ratelimit.LoadProfile(
		orDefaultStr(p.rateProfile, cfg.RateLimit.Profile), cfg.RateLimit.ProfilesFile)
	if err != nil {
		return orch.Stats{}, "", err
	}
	limiter := ratelimit.New(profile)

	logPath, err := runlog.BuildPath(cfg.RunLog.Dir, p.mode(), time.Now())
	if err != nil {
		return orch.Stats{}, "", err
	}
	audit := runlog.NewLogger(logPath, cfg.RunLog.CheckpointEvery)

	run, err := store.CreateRun(ctx, p.mode(), p.excelFile, logPath)
	if err != nil {
		return orch.Stats{}, "", err
	}

	events := orch.Events{
		RowDone: func(index int, row runlog.Row, stats orch.Stats) {
			next := lo + index + 1
			if err := store.SaveResume(ctx, runstore.Resume{
				InputFile: p.excelFile, NextRow: next, Mode: p.mode(),
			}); err != nil {
				log.Warn("resume checkpoint failed", zap.Error(err))
			}
			if extra.RowDone != nil {
				extra.RowDone(index, row, stats)
			}
		},
		RunDone: extra.RunDone,
	}

	o := orch.New(browser, limiter, matchConfig(cfg), audit, watchdog, events, orch.Options{
		UpdateMode:      p.updateMode,
		UpdateFields:    p.updateFields,
		EditNamaAlamat:  p.editNamaAlamat,
		PreferWebCoords: p.preferWebCoords,
	})

	stats, runErr := o.ProcessAll(ctx, slice)

	status := runstore.RunStatusCompleted
	switch {
	case runErr == nil:
		if err := store.ClearResume(ctx, p.excelFile); err != nil {
			log.Warn("clear resume checkpoint failed", zap.Error(err))
		}
	case orch.KindOf(runErr) == orch.KindCancelled, orch.KindOf(runErr) == orch.KindIdleTimeout:
		status = runstore.RunStatusStopped
	default:
		status = runstore.RunStatusFailed
	}
	if err := store.FinishRun(context.WithoutCancel(ctx), run.ID, status, stats); err != nil {
		log.Warn("record run result failed", zap.Error(err))
	}

	return stats, logPath, runErr
}

func matchConfig(cfg *config.Config) match.Config {
	return match.Config{
		Threshold:      cfg.Matcher.Threshold,
		Margin:         cfg.Matcher.Margin,
		SubstringBonus: cfg.Matcher.SubstringBonus,
		AddressBonus:   cfg.Matcher.AddressBonus,
		AddressOverlap: cfg.Matcher.AddressOverlap,
		MinTokenLen:    cfg.Matcher.MinTokenLen,
		StopWords:      cfg.Matcher.StopWords,
	}
}

func printStats(stats orch.Stats, logPath string) {
	fmt.Printf("Processed: %d\n", stats.Processed)
	fmt.Printf("  berhasil: %d\n", stats.Succeeded)
	fmt.Printf("  gagal:    %d\n", stats.Failed)
	fmt.Printf("  error:    %d\n", stats.Errors)
	fmt.Printf("  skipped:  %d (sudah terisi: %d, Duplikat: %d, ambigu: %d)\n",
		stats.Skipped, stats.SkippedChecked, stats.SkippedDup, stats.Ambiguous)
	if stats.RateLimitEvents > 0 {
		fmt.Printf("  rate limited submits: %d\n", stats.RateLimitEvents)
	}
	if logPath != "" {
		fmt.Printf("Run log: %s\n", logPath)
	}
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func orDefaultStr(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
