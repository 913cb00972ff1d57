package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/arcade/internal/config"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func defaultConfigTemplate() string {
	d := config.Defaults()
	return fmt.Sprintf(`# arcade configuration
# Uncomment a value to enable it. CLI flags override config values.
# Secrets come from the environment or a .env file: %s, %s.

[store]
# driver = %q            # sqlite or postgres
# dsn = %q

[api]
# url = "https://lessons.example.com"
# timeout = %q
# token_env = %q

[sync]
# backend = %q             # none, redis, or memory
# redis_addr = %q
# redis_prefix = %q
# read_attempts = %d
# read_backoff = %q

[course]
# required = %d             # completions needed per skill
# mode = %q             # arcade opens every room; course gates them

[gates]
# speaking_modules = %d
# arcade_vocabulary = %d
# library_grammar = %d

[log]
# mode = %q                 # dev or prod
# level = %q

[server]
# addr = %q
# allowed_origins = ["http://localhost:3000"]

[watch]
# pull_every = %q
`,
		config.EnvAPIToken, config.EnvRedisPassword,
		d.StoreDriver, d.StoreDSN,
		d.APITimeout.String(), config.EnvAPIToken,
		d.SyncBackend, d.RedisAddr, d.RedisPrefix, d.SyncReadAttempts, d.SyncReadBackoff.String(),
		d.Required, d.Mode,
		d.GateSpeakingModules, d.GateArcadeVocabulary, d.GateLibraryGrammar,
		d.LogMode, d.LogLevel,
		d.ServerAddr,
		d.PullEvery.String(),
	)
}
