// Package app wires the soelive subsystems into a running application.
//
// New builds the live client, the transcript log and the optional stores
// from the config. Run starts one live session alongside the optional HTTP
// server, waits until the session ends or the context is cancelled, and then
// turns what was said into an attendance report.
//
// For testing, inject doubles via functional options (WithSessionStore,
// WithReportStore, WithMetrics and so on). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/soelive/internal/config"
	"github.com/MrWong99/soelive/internal/health"
	"github.com/MrWong99/soelive/internal/live"
	"github.com/MrWong99/soelive/internal/observe"
	"github.com/MrWong99/soelive/internal/report"
	"github.com/MrWong99/soelive/internal/session"
	"github.com/MrWong99/soelive/internal/transcript"
	"github.com/MrWong99/soelive/pkg/audio"
	"github.com/MrWong99/soelive/pkg/memory"
	"github.com/MrWong99/soelive/pkg/memory/postgres"
	"github.com/MrWong99/soelive/pkg/provider/s2s"
)

// ErrSessionFailed is returned by [App.Run] when the live session ended in
// the error state. The report is still written.
var ErrSessionFailed = errors.New("app: live session failed")

// Providers holds one value per provider slot. Refiner is nil when no
// refinement backend is configured.
type Providers struct {
	S2S     s2s.Provider
	Audio   audio.Platform
	Refiner report.Refiner
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics *observe.Metrics
	log     *slog.Logger
	level   *slog.LevelVar
	out     io.Writer
	now     func() time.Time

	attendance report.AttendanceData
	signatures report.SignatureData
	refine     bool

	client   *live.Client
	tlog     *transcript.Log
	sessions memory.SessionStore
	reports  memory.ReportStore
	health   *health.Handler

	mu         sync.Mutex
	lastReport *report.Report
	lastPath   string
	printPath  string

	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSessionStore injects a transcript store instead of creating one from config.
func WithSessionStore(s memory.SessionStore) Option {
	return func(a *App) { a.sessions = s }
}

// WithReportStore injects a report store instead of creating one from config.
func WithReportStore(s memory.ReportStore) Option {
	return func(a *App) { a.reports = s }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithLevelVar lets config reloads change the log level of the handler
// that reads lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithOutput sets where transcript lines are printed. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// WithAttendance sets the meeting data the transcript is added to.
func WithAttendance(d report.AttendanceData) Option {
	return func(a *App) { a.attendance = d }
}

// WithSignatures sets the signature images printed on the report.
func WithSignatures(s report.SignatureData) Option {
	return func(a *App) { a.signatures = s }
}

// WithRefine enables formal rewriting of the report through the configured
// refiner.
func WithRefine(enabled bool) Option {
	return func(a *App) { a.refine = enabled }
}

// WithClock overrides the time source used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// New creates an App. The providers come from [BuildProviders] or from test
// doubles.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.S2S == nil || providers.Audio == nil {
		return nil, errors.New("app: s2s and audio providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		out:       os.Stdout,
		now:       time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.log == nil {
		a.log = slog.Default()
	}

	a.health = health.New(health.Checker{Name: "live", Check: a.checkLive})

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	a.tlog = transcript.NewLog(transcript.WithClock(a.now))
	a.client = live.New(providers.Audio, providers.S2S, live.Config{
		Voice:            cfg.Live.Voice,
		Instructions:     cfg.Live.Instructions,
		BlockSize:        cfg.Live.CaptureBlockSize,
		SendQueueSize:    cfg.Live.SendQueueSize,
		InputSampleRate:  cfg.Live.InputSampleRate,
		OutputSampleRate: cfg.Live.OutputSampleRate,
		ConnectTimeout:   cfg.Live.ConnectTimeout,
	}, live.WithMetrics(a.metrics), live.WithLogger(a.log))

	return a, nil
}

// initStore connects to Postgres when a DSN is configured and no stores were
// injected.
func (a *App) initStore(ctx context.Context) error {
	if a.sessions != nil && a.reports != nil {
		return nil
	}
	dsn := a.cfg.Store.PostgresDSN
	if dsn == "" {
		a.log.Info("no database configured; reports are only exported as files")
		return nil
	}

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return err
	}
	if a.sessions == nil {
		a.sessions = store
	}
	if a.reports == nil {
		a.reports = store
	}
	a.health.Add(health.Ping("store", store))
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

// Client returns the live client.
func (a *App) Client() *live.Client { return a.client }

// Transcript returns the transcript of the session.
func (a *App) Transcript() *transcript.Log { return a.tlog }

// LastReport returns the report written by the most recent Run and its
// file path, or nil when none was written.
func (a *App) LastReport() (*report.Report, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastReport, a.lastPath
}

// PrintPath returns the printable HTML export of the last report, or "" when
// none was written.
func (a *App) PrintPath() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.printPath
}

// Run starts the HTTP server (when configured) and one live session, and
// blocks until the session ends or ctx is cancelled. It then writes the
// report. A session that ends in the error state yields [ErrSessionFailed].
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           a.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error { return a.serve(gctx, srv) })
	}

	// The consolidator outlives the session so its final flush sees every
	// transcript entry.
	stopFlush := func() {}
	if a.sessions != nil {
		c := session.NewConsolidator(session.Config{
			Store:     a.sessions,
			Source:    a.tlog,
			SessionID: a.client.SessionID,
			Logger:    a.log,
		})
		var flushCtx context.Context
		flushCtx, stopFlush = context.WithCancel(context.WithoutCancel(ctx))
		g.Go(func() error { return c.Run(flushCtx) })
	}

	g.Go(func() error {
		defer cancel()
		defer stopFlush()
		return a.runSession(gctx)
	})

	return g.Wait()
}

func (a *App) runSession(ctx context.Context) error {
	if err := a.client.Connect(ctx, a.onTranscript, a.onStatus); err != nil {
		<-a.client.Done()
		// Notes supplied up front still get a report.
		if _, ferr := a.Finish(context.WithoutCancel(ctx)); ferr != nil {
			a.log.Warn("finish after failed connect", "err", ferr)
		}
		return fmt.Errorf("app: connect: %w", err)
	}
	a.log.Info("live session started", "session_id", a.client.SessionID())

	select {
	case <-ctx.Done():
	case <-a.client.Done():
	}
	a.client.Disconnect()
	<-a.client.Done()

	final := a.client.Status()
	a.log.Info("live session ended", "session_id", a.client.SessionID(), "status", final)

	if _, err := a.Finish(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	if final == live.StatusError {
		return ErrSessionFailed
	}
	return nil
}

func (a *App) onStatus(st live.Status) {
	fmt.Fprintf(a.out, "[status] %s\n", st)
}

func (a *App) onTranscript(text string, isUser bool) {
	speaker := memory.SpeakerAssistant
	label := "assistente"
	if isUser {
		speaker = memory.SpeakerUser
		label = "você"
	}
	a.tlog.Add(memory.TranscriptEntry{Speaker: speaker, Text: text})
	fmt.Fprintf(a.out, "[%s] %s\n", label, strings.TrimSpace(text))
}

func (a *App) checkLive(context.Context) error {
	if st := a.client.Status(); st == live.StatusError {
		return fmt.Errorf("session status %s", st)
	}
	return nil
}

// Finish inserts the user's speech into the attendance notes, optionally
// refines the result, saves it to the report store and exports it as JSON
// and as a printable HTML form.
// It returns nil without writing anything when there is nothing to report.
func (a *App) Finish(ctx context.Context) (*report.Report, error) {
	now := a.now()
	att := a.attendance
	att.FillDefaults(now)
	att.RoughNotes = report.InsertNotes(att.RoughNotes, a.tlog.UserText())

	if strings.TrimSpace(att.RoughNotes) == "" && a.tlog.Len() == 0 {
		a.log.Info("nothing was said and no notes were given; no report written")
		return nil, nil
	}

	r := report.New(att, now)
	r.SessionID = a.client.SessionID()
	r.Transcript = a.tlog.Entries()
	r.Signatures = a.signatures

	if a.refine {
		a.refineReport(ctx, r)
	}

	if a.reports != nil {
		if err := report.Save(ctx, a.reports, r); err != nil {
			a.log.Warn("failed to store report", "report_id", r.ID, "err", err)
		}
	}

	path, err := report.WriteJSON(a.cfg.Report.OutputDir, r)
	if err != nil {
		return nil, fmt.Errorf("app: export report: %w", err)
	}
	a.log.Info("report written", "report_id", r.ID, "path", path, "refined", r.Refined != nil)

	printPath, err := report.WriteHTML(a.cfg.Report.OutputDir, r, now)
	if err != nil {
		a.log.Warn("failed to write printable report", "report_id", r.ID, "err", err)
		printPath = ""
	}

	a.mu.Lock()
	a.lastReport, a.lastPath, a.printPath = r, path, printPath
	a.mu.Unlock()
	return r, nil
}

// refineReport fills r.Refined. Failures leave the rough notes in place.
func (a *App) refineReport(ctx context.Context, r *report.Report) {
	if a.providers.Refiner == nil {
		a.log.Warn("refinement requested but no refiner is configured")
		return
	}
	if err := report.Validate(r.Attendance); err != nil {
		a.log.Warn("report not refined", "err", err)
		return
	}
	if d := a.cfg.Report.RefineTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	rc, err := a.providers.Refiner.Refine(ctx, r.Attendance)
	if err != nil {
		a.log.Warn("report refinement failed; keeping rough notes", "err", err)
		return
	}
	r.Refined = rc
}

// ApplyConfig applies the hot-reloadable part of a config change: the log
// level now, and the voice and instructions from the next session on.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.SlogLevel())
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.LiveChanged() {
		a.client.SetPersona(new.Live.Voice, new.Live.Instructions)
		a.log.Info("voice settings changed; applied to the next session", "voice", new.Live.Voice)
	}
	for _, field := range d.RestartRequired {
		a.log.Warn("config change requires a restart", "field", field)
	}
}

// Shutdown disconnects the live session and closes the stores. It respects
// the context deadline: remaining closers are skipped once ctx is done.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.client.Disconnect()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}
		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
