package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/scorebook/internal/models"
	"github.com/desertthunder/scorebook/internal/repositories"
	"github.com/desertthunder/scorebook/internal/services"
	"github.com/desertthunder/scorebook/internal/shared"
	"github.com/desertthunder/scorebook/internal/store"
	"github.com/desertthunder/scorebook/internal/toggle"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Network clients, the database and the toggle controllers are built on first use, so commands
// that only touch local state never need a token or a reachable API.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	now        func() time.Time
	registry   *prometheus.Registry
	metrics    *toggle.Metrics

	api         *services.APIService
	songs       *services.SongService
	auth        *services.AuthService
	statusStore *store.StatusStore
	pages       *pageCache
	controllers map[models.Kind]*toggle.Controller

	db      *sql.DB
	catalog *repositories.SongRepository
	journal *repositories.ToggleJournal
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client // its transport is reused by the API client
	Logger     *log.Logger
	Output     io.Writer
	Now        func() time.Time
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Runner{
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		output:      opts.Output,
		now:         opts.Now,
		registry:    prometheus.NewRegistry(),
		controllers: map[models.Kind]*toggle.Controller{},
	}
}

// SetLogger replaces the logger, e.g. with a file logger while the TUI owns the terminal.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
	if r.api != nil {
		r.api.WithLogger(l)
	}
}

// Before loads the config file named by --config (when it exists), applies environment overrides
// and validates the result.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}
	if r.configPath != "" {
		if _, err := os.Stat(r.configPath); err == nil {
			config, err := shared.LoadConfig(r.configPath)
			if err != nil {
				return ctx, err
			}
			r.config = config
		}
	}
	r.config.ApplyEnv()

	level := r.config.Log.Level
	if cmd.IsSet("log-level") {
		level = cmd.String("log-level")
	}
	shared.SetLogLevel(r.logger, shared.ParseLogLevel(level))

	return ctx, r.config.Validate()
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, songsCommand, likeCommand, favouriteCommand, serveCommand, tuiCommand, apiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

func (r *Runner) token() string {
	return services.ResolveToken(r.config.Auth)
}

// user is the cache key owner for the current token.
func (r *Runner) user() string {
	return services.UserForToken(r.token(), r.now())
}

// client returns the REST API client, authenticated when a token is configured.
func (r *Runner) client() *services.APIService {
	if r.api != nil {
		return r.api
	}

	base := r.httpClient.Transport
	httpClient := services.NewAuthenticatedClient(r.token(), base, r.config.API.Timeout())
	r.api = services.NewAPIService(r.config.API.BaseURL, httpClient).
		WithRateLimit(r.config.API.RateLimit, r.config.API.Burst).
		WithLogger(r.logger)
	r.songs = services.NewSongService(r.api)
	r.auth = services.NewAuthService(r.api)
	return r.api
}

func (r *Runner) songService() *services.SongService {
	r.client()
	return r.songs
}

func (r *Runner) authService() *services.AuthService {
	r.client()
	return r.auth
}

// catalogue returns the remote catalogue behind the in-memory page cache.
func (r *Runner) catalogue() *pageCache {
	if r.pages == nil {
		r.pages = newPageCache(r.songService(), r.storeOptions())
	}
	return r.pages
}

func (r *Runner) storeOptions() store.Options {
	return store.Options{
		StaleAfter: r.config.Cache.StaleAfterDuration(),
		GCAfter:    r.config.Cache.GCAfterDuration(),
		MaxEntries: r.config.Cache.MaxEntries,
		Now:        r.now,
	}
}

// controller returns the toggle controller of kind, creating the shared status store on first use.
//
// Settled toggles are journaled when the local database can be opened.
func (r *Runner) controller(kind models.Kind) (*toggle.Controller, error) {
	if c := r.controllers[kind]; c != nil {
		return c, nil
	}
	if r.statusStore == nil {
		r.statusStore = store.NewStatusStore(r.storeOptions())
	}

	var remote services.StatusRemote
	switch kind {
	case models.KindLike:
		remote = services.NewLikeService(r.client())
	case models.KindFavourite:
		remote = services.NewFavouriteService(r.client())
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", shared.ErrInvalidArgument, kind)
	}

	cfg := toggle.Config{
		Remote:      remote,
		Store:       r.statusStore,
		Invalidator: store.Invalidators{r.catalogue().pages},
		Aggregates:  r.config.API.Aggregates,
		User:        r.user,
		Logger:      r.logger,
		Metrics:     r.toggleMetrics(),
		Now:         r.now,
	}
	if journal, err := r.toggleJournal(); err == nil {
		cfg.Journal = journal
	} else {
		r.logger.Debug("toggle journal unavailable", "err", err)
	}

	c, err := toggle.New(cfg)
	if err != nil {
		return nil, err
	}
	r.controllers[kind] = c
	return c, nil
}

// toggleMetrics registers the toggle collectors with the runner's registry once.
func (r *Runner) toggleMetrics() *toggle.Metrics {
	if r.metrics == nil {
		r.metrics = toggle.NewMetrics(r.registry)
	}
	return r.metrics
}

// database opens the sqlite database and applies pending migrations.
func (r *Runner) database() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	applied, err := shared.RunMigrations(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if applied > 0 {
		r.logger.Info("applied migrations", "count", applied)
	}

	r.db = db
	r.catalog = repositories.NewSongRepository(db)
	r.journal = repositories.NewToggleJournal(db)
	return db, nil
}

func (r *Runner) songRepository() (*repositories.SongRepository, error) {
	if _, err := r.database(); err != nil {
		return nil, err
	}
	return r.catalog, nil
}

func (r *Runner) toggleJournal() (*repositories.ToggleJournal, error) {
	if _, err := r.database(); err != nil {
		return nil, err
	}
	return r.journal, nil
}

// Close stops the toggle controllers and closes the database.
func (r *Runner) Close() error {
	for kind, c := range r.controllers {
		c.Close()
		delete(r.controllers, kind)
	}
	if r.db != nil {
		err := r.db.Close()
		r.db = nil
		return err
	}
	return nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writeBytes(data []byte) error {
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
