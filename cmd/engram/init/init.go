// Package initcmder provides the init command for initializing a local
// .engram directory in the current working directory.
package initcmder

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/engramlabs/engram/pkg/config"
)

const dirName = ".engram"

const initLongDesc string = `Initialize a new .engram/ directory in the current working directory.

Creates a local .engram/ directory that takes precedence over the default
~/.engram/ directory for configuration, credentials, the sqlite fact store,
and the ingest ledger. A config.toml with default values is written so the
configuration is visible and editable from the start.

This is useful for maintaining separate memory state per project or directory.

Presets adjust the provider sections of the generated config. A preset can
also be a URL, in which case the remote config.toml is fetched and written
as-is:
  ollama      Local Ollama for both reasoning and embeddings (default)
  openai      OpenAI for both reasoning and embeddings
  anthropic   Anthropic reasoning; embeddings stay on local Ollama

Examples:
  engram init
  engram init --preset openai
  engram init --preset https://example.com/engram-config.toml`

const initShortDesc string = "Initialize a local .engram/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runInit(preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Provider preset (ollama, openai, anthropic) or config URL")

	return cmd
}

func runInit(preset string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	info, err := os.Stat(dir)
	alreadyInitialized := err == nil && info.IsDir()

	if !alreadyInitialized {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .engram directory: %w", err)
		}
	}

	// Re-running init without a preset must not clobber an existing config.
	configPath := filepath.Join(dir, "config.toml")
	_, statErr := os.Stat(configPath)
	configExists := statErr == nil

	if preset != "" || !configExists {
		if err := writeConfig(dir, preset); err != nil {
			return err
		}
	}

	if alreadyInitialized {
		fmt.Printf("Already initialized: %s\n", dir)
		return nil
	}

	fmt.Printf("Initialized .engram directory: %s\n", dir)
	return nil
}

func writeConfig(dir, preset string) error {
	if strings.HasPrefix(preset, "http://") || strings.HasPrefix(preset, "https://") {
		return writeRemoteConfig(dir, preset)
	}

	cfg, err := presetConfig(preset)
	if err != nil {
		return err
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("creating config: %w", err)
	}
	if err := cfger.SaveConfig(cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// presetConfig maps a preset name to a default config with its provider
// sections adjusted. The full default config is written so every section is
// visible and editable, with the preset's reasoning and embedding overlaid.
func presetConfig(preset string) (*config.Config, error) {
	cfg := config.NewDefaultConfig()

	if preset == "" {
		preset = "ollama"
	}

	p, err := config.PresetConfig(preset)
	if err != nil {
		return nil, err
	}

	cfg.Reasoning = p.Reasoning
	cfg.Embedding = p.Embedding

	return cfg, nil
}

// writeRemoteConfig fetches a config.toml from a URL and writes it into the
// directory after validating that it parses.
func writeRemoteConfig(dir, url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("fetching remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching remote config: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading remote config: %w", err)
	}

	var cfg config.Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parsing remote config: %w", err)
	}

	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
