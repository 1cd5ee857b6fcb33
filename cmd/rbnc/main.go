package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dalnet/rbnc/internal/bootstrap"
	"github.com/dalnet/rbnc/internal/command"
	"github.com/dalnet/rbnc/internal/config"
	"github.com/dalnet/rbnc/internal/irc"
	"github.com/dalnet/rbnc/internal/model"
	"github.com/dalnet/rbnc/internal/registry"
	"github.com/dalnet/rbnc/internal/storage"
)

// Version information - set at build time via ldflags
var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

func main() {
	// Command line flags
	fs := flag.NewFlagSet("rbnc", flag.ExitOnError)
	foreground := fs.BoolP("foreground", "x", false, "Run in foreground (don't daemonize)")
	configPath := fs.StringP("config", "c", "./config.yaml", "Path to configuration file")
	database := fs.StringP("database", "d", config.DefaultDatabase, "Path to the SQLite database")
	debug := fs.BoolP("debug", "D", false, "Turn on debug logging")
	logIRC := fs.Bool("log-irc", false, "Log lines from IRC verbatim")
	logDatabase := fs.Bool("log-database", false, "Log every database call (high volume, requires --log-insecure)")
	logInsecure := fs.Bool("log-insecure", false, "Allow user data such as nicks and hosts in logs")
	console := fs.Bool("console", false, "Read '<buffer id> <line>' commands from stdin (implies -x)")
	showVersion := fs.BoolP("version", "v", false, "Show version information and exit")
	fs.Parse(os.Args[1:])

	// Show version and exit
	if *showVersion {
		fmt.Printf("rbnc version %s\n", version)
		fmt.Printf("Built: %s\n", buildDate)
		fmt.Printf("Commit: %s\n", gitCommit)
		os.Exit(0)
	}

	// Set version info in irc package
	irc.Version = version
	irc.BuildDate = buildDate
	irc.GitCommit = gitCommit

	cfg, err := config.Load(absPath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Flags override the file only when given
	if fs.Changed("database") {
		cfg.Database = *database
	}
	if fs.Changed("debug") {
		cfg.Debug = *debug
	}
	if fs.Changed("log-irc") {
		cfg.LogIRC = *logIRC
	}
	if fs.Changed("log-database") {
		cfg.LogDatabase = *logDatabase
	}
	if fs.Changed("log-insecure") {
		cfg.LogInsecure = *logInsecure
	}
	if fs.Changed("console") {
		cfg.Console = *console
	}

	// Daemonize unless -x flag is set
	if !*foreground && !cfg.Console {
		daemonize()
		return
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Write PID file
	if err := writePIDFile(cfg.DataDir); err != nil {
		logger.Warn("Could not write PID file", zap.Error(err))
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("rbnc failed", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if debug {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zcfg.Build()
}

func absPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	wd, _ := os.Getwd()
	return filepath.Join(wd, path)
}

// daemonize re-executes the process detached from the terminal
func daemonize() {
	// Check if we're already a daemon child
	if os.Getenv("RBNC_DAEMON") == "1" {
		fmt.Printf("Now becoming a daemon\nMy pid is %d\n", os.Getpid())

		// Re-exec ourselves in the foreground (we're already daemonized)
		args := append(os.Args, "-x")
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Env = os.Environ()

		if err := cmd.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to start daemon: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// First fork
	cmd := exec.Command(os.Args[0], os.Args[1:]...)
	cmd.Env = append(os.Environ(), "RBNC_DAEMON=1")

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to fork: %v\n", err)
		os.Exit(1)
	}

	// Parent exits
	os.Exit(0)
}

func writePIDFile(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return err
	}
	pid := os.Getpid()
	return os.WriteFile(filepath.Join(dataDir, "rbnc.pid"), []byte(fmt.Sprintf("%d\n", pid)), 0644)
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.Database), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	if cfg.LogDatabase && !cfg.LogInsecure {
		logger.Warn("Database logging needs --log-insecure, leaving it off")
	}
	store, err := storage.OpenSQLite(cfg.Database, logger.Named("storage"), cfg.QueryLogging())
	if err != nil {
		return err
	}
	defer store.Close()

	user, err := ensureUser(ctx, store, cfg)
	if err != nil {
		return err
	}
	servers, err := seedServers(ctx, store, cfg, user)
	if err != nil {
		return err
	}

	sessions := registry.New()
	defer sessions.CloseAll()

	opts := irc.Options{QuitMessage: cfg.QuitMessage, LogIRC: cfg.LogIRC}
	ircLog := logger.Named("irc")
	boot := bootstrap.New(func(server model.Server) registry.Session {
		return irc.NewSession(server, store, ircLog, opts)
	}, sessions, logger.Named("bootstrap"))

	logger.Info("Connecting to servers", zap.Int("servers", len(servers)))
	if err := boot.BootstrapAll(ctx, servers); err != nil {
		// Servers that failed stay down until the next start
		logger.Warn("Some servers could not be connected", zap.Error(err))
	}

	dispatcher := command.NewDispatcher(store, sessions, boot, logger.Named("dispatch"))
	if cfg.Console {
		go runConsole(ctx, os.Stdin, dispatcher, logger.Named("console"))
	}

	logger.Info("Ready", zap.Int("sessions", sessions.Len()))
	<-ctx.Done()
	logger.Info("Shutting down")
	// A pending connect must not register after CloseAll runs
	dispatcher.Wait()
	return nil
}

// ensureUser returns the configured user, creating it on first start
func ensureUser(ctx context.Context, store storage.Store, cfg *config.Config) (model.User, error) {
	users, err := store.Users(ctx)
	if err != nil {
		return model.User{}, err
	}
	want := cfg.Identity()
	for _, u := range users {
		if u.Name == want.Name {
			return u, nil
		}
	}
	return store.CreateUser(ctx, want)
}

// seedServers returns the persisted servers, first creating the configured
// seed list if the database has none
func seedServers(ctx context.Context, store storage.Store, cfg *config.Config, user model.User) ([]model.Server, error) {
	servers, err := store.Servers(ctx)
	if err != nil || len(servers) > 0 {
		return servers, err
	}
	for _, sc := range cfg.Servers {
		srv, err := store.CreateServer(ctx, sc.Params(user))
		if err != nil {
			return nil, err
		}
		servers = append(servers, srv)
	}
	return servers, nil
}
