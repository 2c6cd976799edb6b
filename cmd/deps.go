// Package cmd provides CLI commands for the vexa tool.
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/otherjamesbrown/vexa-cli/client"
	"github.com/otherjamesbrown/vexa-cli/config"
	"github.com/otherjamesbrown/vexa-cli/credentials"
	"github.com/otherjamesbrown/vexa-cli/pkg/archive"
	"github.com/otherjamesbrown/vexa-cli/pkg/events"
	"github.com/otherjamesbrown/vexa-cli/pkg/logging"
	"github.com/otherjamesbrown/vexa-cli/pkg/transcript"
)

// ArchiveStore is the part of the archive the meeting commands use.
type ArchiveStore interface {
	Save(ctx context.Context, sess *transcript.Session, title string) (*archive.Entry, error)
	List(ctx context.Context) ([]archive.Entry, error)
	Load(ctx context.Context, id transcript.MeetingID) (*transcript.Session, error)
	Delete(ctx context.Context, id transcript.MeetingID) error
}

// CommandDeps holds the dependencies shared by vexa commands. Tests replace
// individual fields with fakes.
type CommandDeps struct {
	LoadConfig     func() (*config.CLIConfig, error)
	NewCredentials func(cfg *config.CLIConfig) (credentials.Provider, error)
	OpenStore      func() (*credentials.Store, error)
	NewService     func(cfg *config.CLIConfig, creds credentials.Provider, logger logging.Logger) (client.Service, error)
	NewLogger      func(cfg *config.CLIConfig) logging.Logger
	// OpenArchive connects to the archive database. The returned func
	// releases the connection.
	OpenArchive func(ctx context.Context, cfg *config.CLIConfig) (ArchiveStore, func(), error)
	// NewPublisher connects to Redis for event publishing.
	NewPublisher func(ctx context.Context, cfg *config.CLIConfig, logger logging.Logger) (*events.Publisher, error)
	// ReadSecret prompts for a value without echoing it.
	ReadSecret func(prompt string) (string, error)
	Now        func() time.Time
}

// DefaultDeps returns the default dependencies for production use.
func DefaultDeps() *CommandDeps {
	return &CommandDeps{
		LoadConfig:     config.LoadConfig,
		NewCredentials: defaultCredentials,
		OpenStore:      credentials.NewStore,
		NewService:     defaultService,
		NewLogger:      defaultLogger,
		OpenArchive:    defaultArchive,
		NewPublisher:   defaultPublisher,
		ReadSecret:     readSecret,
		Now:            time.Now,
	}
}

// withDefaults fills nil fields so commands can be built with partial deps.
func (d *CommandDeps) withDefaults() *CommandDeps {
	def := DefaultDeps()
	if d == nil {
		return def
	}
	out := *d
	if out.LoadConfig == nil {
		out.LoadConfig = def.LoadConfig
	}
	if out.NewCredentials == nil {
		out.NewCredentials = def.NewCredentials
	}
	if out.OpenStore == nil {
		out.OpenStore = def.OpenStore
	}
	if out.NewService == nil {
		out.NewService = def.NewService
	}
	if out.NewLogger == nil {
		out.NewLogger = def.NewLogger
	}
	if out.OpenArchive == nil {
		out.OpenArchive = def.OpenArchive
	}
	if out.NewPublisher == nil {
		out.NewPublisher = def.NewPublisher
	}
	if out.ReadSecret == nil {
		out.ReadSecret = def.ReadSecret
	}
	if out.Now == nil {
		out.Now = def.Now
	}
	return &out
}

// session bundles what a gateway command needs after setup.
type session struct {
	cfg    *config.CLIConfig
	logger logging.Logger
	svc    client.Service
}

// connect loads configuration and builds the gateway service.
func (d *CommandDeps) connect() (*session, error) {
	cfg, err := d.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	logger := d.NewLogger(cfg)

	var creds credentials.Provider
	if !cfg.MockMode {
		creds, err = d.NewCredentials(cfg)
		if err != nil {
			return nil, fmt.Errorf("initializing credentials: %w", err)
		}
	}
	svc, err := d.NewService(cfg, creds, logger)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, logger: logger, svc: svc}, nil
}

func defaultCredentials(cfg *config.CLIConfig) (credentials.Provider, error) {
	return credentials.NewDefaultProvider(cfg.APIURL)
}

func defaultService(cfg *config.CLIConfig, creds credentials.Provider, logger logging.Logger) (client.Service, error) {
	if cfg.MockMode {
		logger.Debug("Using mock transcription service")
		return client.NewMock(nil), nil
	}

	tlsCfg, err := client.LoadClientTLSConfig(&cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("loading TLS config: %w", err)
	}

	opts := client.DefaultOptions()
	opts.BaseURL = cfg.APIURL
	opts.Timeout = cfg.Timeout
	opts.TLSConfig = tlsCfg
	opts.Logger = logger
	return client.New(creds, opts), nil
}

func defaultLogger(cfg *config.CLIConfig) logging.Logger {
	lc := logging.DefaultConfig()
	lc.Level = logging.LevelWarn
	if cfg.Debug {
		lc.Level = logging.LevelDebug
	}
	lc.JSONFormat = cfg.LogJSON
	return logging.NewLogger(lc)
}

func defaultArchive(ctx context.Context, cfg *config.CLIConfig) (ArchiveStore, func(), error) {
	if !cfg.Archive.IsConfigured() {
		return nil, nil, fmt.Errorf("archive database is not configured (set archive.url or VEXA_ARCHIVE_URL)")
	}
	dbCfg := archive.DefaultConfig()
	dbCfg.DSN = cfg.Archive.ConnectionString()
	if cfg.Archive.MaxConns > 0 {
		dbCfg.MaxConns = cfg.Archive.MaxConns
	}

	pool, err := archive.Connect(ctx, dbCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to archive: %w", err)
	}
	if _, err := archive.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrating archive: %w", err)
	}
	return archive.NewStore(pool), pool.Close, nil
}

func defaultPublisher(ctx context.Context, cfg *config.CLIConfig, logger logging.Logger) (*events.Publisher, error) {
	return events.NewPublisherFromConfig(ctx, events.PublisherConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Channel,
	}, logger)
}

// readSecret reads a line from the terminal with echo disabled, falling back
// to plain stdin when there is no terminal.
func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(syscall.Stdin)
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	return readLine(os.Stdin)
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
