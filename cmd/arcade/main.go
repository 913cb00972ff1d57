// Package main provides the CLI entrypoint for arcade.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"strings"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/arcade/internal/arcade"
	"github.com/verte-zerg/arcade/internal/config"
	"github.com/verte-zerg/arcade/internal/ledger"
	"github.com/verte-zerg/arcade/internal/lessonapi"
	"github.com/verte-zerg/arcade/internal/logger"
	"github.com/verte-zerg/arcade/internal/model"
	"github.com/verte-zerg/arcade/internal/remotesync"
	"github.com/verte-zerg/arcade/internal/store"
)

var (
	globalUser     string
	globalMode     string
	globalAPIURL   string
	globalLogLevel string
	globalNoSync   bool
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		logErrln(arcade.UserMessage(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "arcade",
		Short:         "Language learning arcade: lessons, course progress, and rooms",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&globalUser, "user", defaultUser(), "user id (env ARCADE_USER)")
	flags.StringVar(&globalMode, "mode", "course", "room gating mode: arcade or course")
	flags.StringVar(&globalAPIURL, "api-url", "", "lesson API base URL")
	flags.StringVar(&globalLogLevel, "log-level", "warn", "log level: debug, info, warn, error")
	flags.BoolVar(&globalNoSync, "no-sync", false, "skip the remote pull on start")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newSetupCmd())
	rootCmd.AddCommand(newProfileCmd())
	rootCmd.AddCommand(newQuotaCmd())
	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newSubmitCmd())
	rootCmd.AddCommand(newActivityCmd())
	rootCmd.AddCommand(newHomeworkCmd())
	rootCmd.AddCommand(newLessonsCmd())
	rootCmd.AddCommand(newProgressCmd())
	rootCmd.AddCommand(newRoomsCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newWatchCmd())

	return rootCmd
}

func defaultUser() string {
	if v := strings.TrimSpace(os.Getenv("ARCADE_USER")); v != "" {
		return v
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "local"
}

// app holds everything a command needs.
type app struct {
	cfg     config.Config
	log     *logger.Logger
	store   *store.Store
	redis   *remotesync.RedisStore
	ledger  *ledger.Ledger
	syncer  *remotesync.Syncer
	session *arcade.Session
	userID  string
}

type openOptions struct {
	// start pulls the remote copy and refreshes the quota before the command runs.
	start bool
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	if err := config.LoadEnv(config.DefaultEnvPaths()...); err != nil {
		return config.Config{}, err
	}
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "mode", &globalMode, fileCfg.Course.Mode)
	applyStringConfig(cmd, "api-url", &globalAPIURL, fileCfg.API.URL)
	applyStringConfig(cmd, "log-level", &globalLogLevel, fileCfg.Log.Level)
	fileCfg.Course.Mode = &globalMode
	fileCfg.Log.Level = &globalLogLevel
	if globalAPIURL != "" {
		fileCfg.API.URL = &globalAPIURL
	}
	return fileCfg.Resolve()
}

func openApp(cmd *cobra.Command, opts openOptions) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(globalUser) == "" {
		return nil, errors.New("--user must not be empty")
	}
	log, err := logger.New(cfg.LogMode, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	var st *store.Store
	if cfg.StoreDriver == store.DriverSQLite {
		st, err = store.OpenSQLite(cfg.StoreDSN)
	} else {
		st, err = store.Open(cfg.StoreDriver, cfg.StoreDSN)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	a := &app{cfg: cfg, log: log, store: st, userID: globalUser}
	a.ledger = ledger.New(st, ledger.Options{Required: cfg.Required})

	var remote remotesync.DocumentStore
	switch cfg.SyncBackend {
	case config.SyncRedis:
		rs, err := remotesync.NewRedisStore(cmd.Context(), remotesync.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Prefix:   cfg.RedisPrefix,
		})
		if err != nil {
			// Local state keeps working without the remote store.
			log.Warn("remote store unavailable", "addr", cfg.RedisAddr, "error", err)
			logErrln(arcade.MsgPullFailed)
		} else {
			a.redis = rs
			remote = rs
		}
	case config.SyncMemory:
		remote = remotesync.NewMemoryStore()
	}
	a.syncer = remotesync.New(a.ledger, remote, log, remotesync.Options{
		ReadAttempts: cfg.SyncReadAttempts,
		ReadBackoff:  cfg.SyncReadBackoff,
	})

	var api arcade.LessonAPI
	if cfg.APIURL != "" {
		client, err := lessonapi.New(lessonapi.Config{
			BaseURL: cfg.APIURL,
			Token:   cfg.APIToken,
			Timeout: cfg.APITimeout,
		}, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		api = client
	}
	a.session = arcade.New(a.ledger, api, a.syncer, log, arcade.Options{})

	if opts.start && !globalNoSync {
		for _, err := range a.session.Start(cmd.Context(), a.userID) {
			logErrln(arcade.UserMessage(err))
		}
	}
	return a, nil
}

// Close waits for background pushes, reports failed ones, and releases resources.
func (a *app) Close() {
	if a.session != nil {
		a.session.Close()
	}
	if a.syncer != nil {
		a.reportWarnings()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("failed to close redis", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		logErrf("failed to close db: %v\n", err)
	}
	a.log.Sync()
}

func (a *app) reportWarnings() {
	for _, err := range a.syncer.DrainWarnings() {
		logErrln(arcade.UserMessage(err))
	}
}

func (a *app) mode() model.Mode {
	return model.Mode(a.cfg.Mode)
}

func (a *app) gates() ledger.Gates {
	return ledger.Gates{
		SpeakingModules:  a.cfg.GateSpeakingModules,
		ArcadeVocabulary: a.cfg.GateArcadeVocabulary,
		LibraryGrammar:   a.cfg.GateLibraryGrammar,
	}
}

// withApp opens the app, runs fn, and always closes the app.
func withApp(cmd *cobra.Command, opts openOptions, fn func(ctx context.Context, a *app) error) error {
	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

func logErrln(args ...any) {
	if _, err := fmt.Fprintln(os.Stderr, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
