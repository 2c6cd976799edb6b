// Package main provides the vexa CLI entry point.
// vexa sends transcription bots into meetings and follows their transcripts
// through the Vexa REST gateway.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/vexa-cli/cmd"
	"github.com/otherjamesbrown/vexa-cli/config"
	"github.com/otherjamesbrown/vexa-cli/pkg/buildinfo"
	"github.com/otherjamesbrown/vexa-cli/pkg/transcript"
)

// Global flags.
var (
	apiURL       string
	timeout      time.Duration
	outputFormat string
	debug        bool
	logJSON      bool
	mockMode     bool
)

// deps is shared by every subcommand. LoadConfig applies the global flags.
var deps = func() *cmd.CommandDeps {
	d := cmd.DefaultDeps()
	d.LoadConfig = loadConfig
	return d
}()

// loadConfig loads configuration and overrides it with command-line flags.
func loadConfig() (*config.CLIConfig, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if apiURL != "" {
		cfg.APIURL = apiURL
	}
	if timeout != 0 {
		cfg.Timeout = timeout
	}
	if outputFormat != "" {
		cfg.OutputFormat = config.OutputFormat(outputFormat)
	}
	if debug {
		cfg.Debug = true
	}
	if logJSON {
		cfg.LogJSON = true
	}
	if mockMode {
		cfg.MockMode = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "vexa",
	Short: "Vexa CLI - meeting transcription from the terminal",
	Long: `vexa sends transcription bots into meetings and follows their transcripts
through the Vexa REST gateway.

COMMON WORKFLOWS:
  First run:        vexa auth login  →  vexa auth test
  Transcribe:       vexa bot start <meeting-url> --follow
  Follow a meeting: vexa live <meeting-id>
  Browser view:     vexa serve [meeting-id]
  Past meetings:    vexa meeting list  →  vexa meeting download <meeting-id>

Meetings are identified by URL (https://meet.google.com/abc-defg-hij) or by
id (google_meet/abc-defg-hij).

Use --mock to try every command against built-in sample data.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Version command flags.
var versionOutputJSON bool

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the version, commit hash, and build time of the vexa CLI.

Examples:
  vexa version
  vexa version --output-json`,
	Args: cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		info := buildinfo.Get("vexa-cli")
		out := c.OutOrStdout()
		if versionOutputJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}
		fmt.Fprintf(out, "vexa version %s\n", info.Version)
		fmt.Fprintf(out, "  commit:     %s\n", info.Commit)
		fmt.Fprintf(out, "  built:      %s\n", info.BuildTime)
		fmt.Fprintf(out, "  go:         %s (%s)\n", info.GoVersion, info.Platform)
		return nil
	},
}

// configCmd manages CLI configuration.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long:  `View and modify the vexa CLI configuration settings.`,
}

// configShowCmd displays current configuration.
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration: file values, VEXA_* environment variables and flags.`,
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		configPath, _ := config.ConfigPath()

		out := c.OutOrStdout()
		fmt.Fprintln(out, "Current configuration:")
		fmt.Fprintf(out, "  Config file:        %s\n", configPath)
		fmt.Fprintf(out, "  API URL:            %s\n", cfg.APIURL)
		fmt.Fprintf(out, "  Timeout:            %s\n", cfg.Timeout)
		fmt.Fprintf(out, "  Output format:      %s\n", cfg.OutputFormat)
		fmt.Fprintf(out, "  Poll interval:      %s\n", cfg.PollInterval)
		fmt.Fprintf(out, "  Max retries:        %d\n", cfg.MaxRetries)
		fmt.Fprintf(out, "  Highlight duration: %s\n", cfg.HighlightDuration)
		fmt.Fprintf(out, "  Default language:   %s\n", cfg.DefaultLanguage)
		fmt.Fprintf(out, "  Bot name:           %s\n", cfg.BotName)
		fmt.Fprintf(out, "  Mock mode:          %t\n", cfg.MockMode)
		fmt.Fprintf(out, "  Debug:              %t\n", cfg.Debug)
		fmt.Fprintf(out, "  Redis events:       %s\n", redisSummary(cfg))
		fmt.Fprintf(out, "  Archive:            %s\n", archiveSummary(cfg))
		fmt.Fprintf(out, "  Serve address:      %s\n", cfg.Serve.Listen)
		return nil
	},
}

func redisSummary(cfg *config.CLIConfig) string {
	if !cfg.Redis.Enabled {
		return "disabled"
	}
	return cfg.Redis.Addr + " (" + cfg.Redis.Channel + ")"
}

func archiveSummary(cfg *config.CLIConfig) string {
	if !cfg.Archive.IsConfigured() {
		return "(not set)"
	}
	return "configured"
}

// configInitCmd initializes configuration.
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	Long:  `Create a new configuration file with default values if one doesn't exist.`,
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		out := c.OutOrStdout()
		configPath, err := config.ConfigPath()
		if err != nil {
			return fmt.Errorf("getting config path: %w", err)
		}

		if _, err := os.Stat(configPath); err == nil {
			fmt.Fprintf(out, "Configuration file already exists: %s\n", configPath)
			fmt.Fprintln(out, "Use 'vexa config show' to view current settings.")
			return nil
		}

		defaultCfg := config.DefaultConfig()
		if err := config.SaveConfig(defaultCfg); err != nil {
			return fmt.Errorf("saving configuration: %w", err)
		}

		fmt.Fprintf(out, "Created configuration file: %s\n", configPath)
		fmt.Fprintln(out, "\nDefault settings:")
		fmt.Fprintf(out, "  API URL:       %s\n", defaultCfg.APIURL)
		fmt.Fprintf(out, "  Timeout:       %s\n", defaultCfg.Timeout)
		fmt.Fprintf(out, "  Poll interval: %s\n", defaultCfg.PollInterval)
		return nil
	},
}

// configSetCmd sets a configuration value.
var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the config file.

Available keys:
  api_url             - Gateway base URL
  timeout             - Request timeout (e.g., 30s, 1m)
  output_format       - Default output format (text, json, yaml)
  poll_interval       - Live transcript polling interval (e.g., 800ms)
  max_retries         - Consecutive poll failures tolerated
  highlight_duration  - How long new segments stay highlighted (e.g., 3s)
  default_language    - Language requested for new bots (code or auto)
  bot_name            - Bot display name
  mock_mode           - Use built-in sample data (true/false)
  debug               - Enable debug logging (true/false)
  log_json            - Write logs as JSON (true/false)
  redis.enabled       - Publish transcript events (true/false)
  redis.addr          - Redis address (host:port)
  redis.channel       - Channel prefix for events
  archive.url         - PostgreSQL URL for the transcript archive
  serve.listen        - Listen address for 'vexa serve'

Examples:
  vexa config set api_url https://gateway.example.com
  vexa config set poll_interval 1s
  vexa config set default_language es
  vexa config set archive.url postgres://vexa@localhost/vexa`,
	Args: cobra.ExactArgs(2),
	RunE: func(c *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		currentCfg, err := config.LoadConfig()
		if err != nil {
			// If config doesn't exist or is invalid, start with defaults.
			currentCfg = config.DefaultConfig()
		}
		if err := setConfigValue(currentCfg, key, value); err != nil {
			return err
		}
		if err := currentCfg.Validate(); err != nil {
			return err
		}
		if err := config.SaveConfig(currentCfg); err != nil {
			return fmt.Errorf("saving configuration: %w", err)
		}

		fmt.Fprintf(c.OutOrStdout(), "Set %s = %s\n", key, value)
		return nil
	},
}

func setConfigValue(cfg *config.CLIConfig, key, value string) error {
	duration := func(dst *time.Duration) error {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s value: %w", key, err)
		}
		*dst = d
		return nil
	}
	boolean := func(dst *bool) error {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid %s value: %s (must be true or false)", key, value)
		}
		*dst = b
		return nil
	}

	switch key {
	case "api_url":
		cfg.APIURL = value
	case "timeout":
		return duration(&cfg.Timeout)
	case "output_format":
		format := config.OutputFormat(value)
		if !format.IsValid() {
			return fmt.Errorf("invalid output format: %s (must be text, json, or yaml)", value)
		}
		cfg.OutputFormat = format
	case "poll_interval":
		return duration(&cfg.PollInterval)
	case "max_retries":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid max_retries value: %s (must be a positive integer)", value)
		}
		cfg.MaxRetries = n
	case "highlight_duration":
		return duration(&cfg.HighlightDuration)
	case "default_language":
		lang, err := transcript.NormalizeLanguage(value)
		if err != nil {
			return err
		}
		cfg.DefaultLanguage = lang
	case "bot_name":
		cfg.BotName = value
	case "mock_mode":
		return boolean(&cfg.MockMode)
	case "debug":
		return boolean(&cfg.Debug)
	case "log_json":
		return boolean(&cfg.LogJSON)
	case "redis.enabled":
		return boolean(&cfg.Redis.Enabled)
	case "redis.addr":
		cfg.Redis.Addr = value
	case "redis.channel":
		cfg.Redis.Channel = value
	case "archive.url":
		if cfg.Archive == nil {
			cfg.Archive = &config.ArchiveConfig{}
		}
		cfg.Archive.URL = value
	case "serve.listen":
		cfg.Serve.Listen = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

// completionCmd generates shell completion scripts.
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for vexa.

To load completions:

Bash:
  $ source <(vexa completion bash)

Zsh:
  $ vexa completion zsh > "${fpath[1]}/_vexa"

Fish:
  $ vexa completion fish | source

PowerShell:
  PS> vexa completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(c *cobra.Command, args []string) error {
		out := c.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(out)
		case "zsh":
			return rootCmd.GenZshCompletion(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, true)
		default:
			return rootCmd.GenPowerShellCompletionWithDesc(out)
		}
	},
}

func init() {
	// Global flags.
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "gateway base URL (default from config)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "request timeout (e.g., 30s, 1m)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output-format", "", "default output format: text, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "write logs as JSON")
	rootCmd.PersistentFlags().BoolVar(&mockMode, "mock", false, "use built-in sample data instead of the gateway")

	versionCmd.Flags().BoolVar(&versionOutputJSON, "output-json", false, "Output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "meetings", Title: "Meetings:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)

	for _, c := range []*cobra.Command{
		cmd.NewBotCommand(deps),
		cmd.NewLiveCommand(deps),
		cmd.NewMeetingCommand(deps),
		cmd.NewServeCommand(deps),
	} {
		c.GroupID = "meetings"
		rootCmd.AddCommand(c)
	}

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
	for _, c := range []*cobra.Command{cmd.NewAuthCommand(deps), configCmd} {
		c.GroupID = "setup"
		rootCmd.AddCommand(c)
	}

	rootCmd.AddCommand(completionCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	// Cancel the context on the first interrupt so live commands can stop
	// cleanly; a second interrupt exits immediately.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
		<-sigChan
		os.Exit(130)
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
