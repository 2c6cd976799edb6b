package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/vexa-cli/config"
	"github.com/otherjamesbrown/vexa-cli/credentials"
	pferrors "github.com/otherjamesbrown/vexa-cli/pkg/errors"
)

// minAPIKeyLength rejects obviously truncated keys before any request.
const minAPIKeyLength = 8

// NewAuthCommand creates the 'auth' command group.
func NewAuthCommand(deps *CommandDeps) *cobra.Command {
	deps = deps.withDefaults()

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the Vexa API key",
		Long: `Manage the API key used to talk to the Vexa transcription gateway.

The key is stored encrypted in ~/.vexa/credentials.yaml. The encryption key is
kept in the system keyring, or taken from VEXA_ENCRYPTION_KEY / VEXA_PASSPHRASE.

VEXA_API_KEY takes precedence over the stored key.`,
	}

	cmd.AddCommand(newAuthLoginCommand(deps))
	cmd.AddCommand(newAuthLogoutCommand(deps))
	cmd.AddCommand(newAuthStatusCommand(deps))
	cmd.AddCommand(newAuthTestCommand(deps))
	return cmd
}

type loginOptions struct {
	apiKey         string
	nonInteractive bool
	noVerify       bool
}

func newAuthLoginCommand(deps *CommandDeps) *cobra.Command {
	opts := &loginOptions{}
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an API key",
		Long: `Store a Vexa API key. The key is checked against /bots/status before it is saved.

Examples:
  # Interactive login (prompts for the key without echo)
  vexa auth login

  # Non-interactive
  vexa auth login --api-key vx-abc123...

  # Save without contacting the gateway
  vexa auth login --api-key vx-abc123... --no-verify`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogin(cmd.Context(), cmd.OutOrStdout(), deps, opts)
		},
	}
	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "API key to store")
	cmd.Flags().BoolVar(&opts.nonInteractive, "non-interactive", false, "Fail instead of prompting for input")
	cmd.Flags().BoolVar(&opts.noVerify, "no-verify", false, "Skip the gateway check")
	return cmd
}

func runAuthLogin(ctx context.Context, out io.Writer, deps *CommandDeps, opts *loginOptions) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	key := opts.apiKey
	if key == "" {
		if envKey := os.Getenv(credentials.APIKeyEnv); envKey != "" {
			key = envKey
			fmt.Fprintf(out, "Using API key from %s environment variable\n", credentials.APIKeyEnv)
		}
	}
	if key == "" {
		if opts.nonInteractive {
			return fmt.Errorf("no API key provided and --non-interactive flag set")
		}
		key, err = deps.ReadSecret("Vexa API key: ")
		if err != nil {
			return err
		}
	}
	if err := validateAPIKey(key); err != nil {
		return fmt.Errorf("invalid API key: %w", err)
	}

	if !opts.noVerify && !cfg.MockMode {
		fmt.Fprintf(out, "Checking key against %s...\n", cfg.APIURL)
		if err := verifyKey(ctx, deps, cfg, key); err != nil {
			return err
		}
	}

	creds, err := deps.NewCredentials(cfg)
	if err != nil {
		return fmt.Errorf("initializing credentials: %w", err)
	}
	if err := creds.Set(key); err != nil {
		if errors.Is(err, credentials.ErrReadOnly) {
			return fmt.Errorf("no writable credential store (is the system keyring available?): %w", err)
		}
		return fmt.Errorf("saving API key: %w", err)
	}

	fmt.Fprintln(out, "Login successful!")
	fmt.Fprintf(out, "  API Key: %s\n", credentials.MaskAPIKey(key))
	fmt.Fprintf(out, "  Key ID:  %s\n", credentials.KeyID(key))
	if path, err := credentials.CredentialsPath(); err == nil {
		fmt.Fprintf(out, "\nCredentials stored in: %s\n", path)
	}
	return nil
}

func validateAPIKey(key string) error {
	if key == "" {
		return fmt.Errorf("API key is empty")
	}
	if len(key) < minAPIKeyLength {
		return fmt.Errorf("API key is too short")
	}
	return nil
}

// verifyKey calls /bots/status with key rather than the stored credential.
func verifyKey(ctx context.Context, deps *CommandDeps, cfg *config.CLIConfig, key string) error {
	logger := deps.NewLogger(cfg)
	svc, err := deps.NewService(cfg, credentials.NewStaticProvider(key), logger)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if _, err := svc.BotStatus(ctx); err != nil {
		if pferrors.IsUnauthorized(err) {
			return fmt.Errorf("the gateway rejected this API key: %w", err)
		}
		return fmt.Errorf("verifying API key: %w", err)
	}
	return nil
}

type logoutOptions struct {
	resetKey bool
}

func newAuthLogoutCommand(deps *CommandDeps) *cobra.Command {
	opts := &logoutOptions{}
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored API key",
		Long: `Remove the stored API key. VEXA_API_KEY is not affected.

Use --reset-key to also rotate the encryption key kept in the system keyring.

Examples:
  vexa auth logout
  vexa auth logout --reset-key`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogout(cmd.OutOrStdout(), deps, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.resetKey, "reset-key", false, "Also rotate the encryption key")
	return cmd
}

func runAuthLogout(out io.Writer, deps *CommandDeps, opts *logoutOptions) error {
	store, err := deps.OpenStore()
	if err != nil {
		return fmt.Errorf("initializing credential store: %w", err)
	}

	existed := store.Exists()
	if opts.resetKey {
		if err := store.ResetKey(); err != nil {
			return err
		}
		fmt.Fprintln(out, "Encryption key rotated.")
	} else if err := store.Delete(); err != nil {
		return err
	}

	if existed {
		fmt.Fprintln(out, "Logged out successfully.")
	} else {
		fmt.Fprintln(out, "No stored credentials found.")
	}

	if os.Getenv(credentials.APIKeyEnv) != "" {
		fmt.Fprintf(out, "\nNote: %s environment variable is still set.\n", credentials.APIKeyEnv)
		fmt.Fprintf(out, "Unset it with: unset %s\n", credentials.APIKeyEnv)
	}
	return nil
}

// AuthStatus is the output of 'auth status'.
type AuthStatus struct {
	Authenticated   bool       `json:"authenticated" yaml:"authenticated"`
	Source          string     `json:"source" yaml:"source"`
	APIKey          string     `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	KeyID           string     `json:"key_id,omitempty" yaml:"key_id,omitempty"`
	APIURL          string     `json:"api_url,omitempty" yaml:"api_url,omitempty"`
	LastUpdated     *time.Time `json:"last_updated,omitempty" yaml:"last_updated,omitempty"`
	CredentialsPath string     `json:"credentials_path,omitempty" yaml:"credentials_path,omitempty"`
	KeyStorage      string     `json:"key_storage,omitempty" yaml:"key_storage,omitempty"`
}

func newAuthStatusCommand(deps *CommandDeps) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which API key is in use",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthStatus(cmd.OutOrStdout(), deps, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: text, json, yaml")
	return cmd
}

func runAuthStatus(out io.Writer, deps *CommandDeps, output string) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	format, err := resolveFormat(output, cfg)
	if err != nil {
		return err
	}

	status := AuthStatus{Source: "none"}
	if envKey := os.Getenv(credentials.APIKeyEnv); envKey != "" {
		status.Authenticated = true
		status.Source = "environment (" + credentials.APIKeyEnv + ")"
		status.APIKey = credentials.MaskAPIKey(envKey)
		status.KeyID = credentials.KeyID(envKey)
	}

	store, storeErr := deps.OpenStore()
	if storeErr == nil {
		status.CredentialsPath = store.Path()
		status.KeyStorage = store.KeyDescription()
		creds, err := store.Load()
		switch {
		case errors.Is(err, credentials.ErrNoCredentials):
		case err != nil:
			return fmt.Errorf("loading credentials: %w", err)
		case !status.Authenticated:
			status.Authenticated = true
			status.Source = "stored"
			status.APIKey = credentials.MaskAPIKey(creds.APIKey)
			status.KeyID = credentials.KeyID(creds.APIKey)
			status.APIURL = creds.APIURL
			updated := creds.LastUpdated
			status.LastUpdated = &updated
		}
	}

	return writeOutput(out, format, status, func(w io.Writer) error {
		fmt.Fprintln(w, "Authentication Status")
		fmt.Fprintln(w, "=====================")
		fmt.Fprintf(w, "  Source:      %s\n", status.Source)
		if status.Authenticated {
			fmt.Fprintf(w, "  API Key:     %s\n", status.APIKey)
			fmt.Fprintf(w, "  Key ID:      %s\n", status.KeyID)
		}
		if status.APIURL != "" {
			fmt.Fprintf(w, "  Verified at: %s\n", status.APIURL)
		}
		if status.LastUpdated != nil {
			fmt.Fprintf(w, "  Stored:      %s\n", status.LastUpdated.Format(time.RFC3339))
		}
		if status.CredentialsPath != "" {
			fmt.Fprintf(w, "  File:        %s\n", status.CredentialsPath)
			fmt.Fprintf(w, "  Key storage: %s\n", status.KeyStorage)
		} else if storeErr != nil {
			fmt.Fprintf(w, "  Store:       unavailable (%v)\n", storeErr)
		}
		if !status.Authenticated {
			fmt.Fprintln(w, "\nNot authenticated. Run 'vexa auth login' to authenticate.")
		}
		return nil
	})
}

func newAuthTestCommand(deps *CommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Check the API key against the gateway",
		Long: `Call /bots/status with the configured API key and report the result.

Examples:
  vexa auth test
  VEXA_API_KEY=vx-... vexa auth test`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthTest(cmd.Context(), cmd.OutOrStdout(), deps)
		},
	}
}

func runAuthTest(ctx context.Context, out io.Writer, deps *CommandDeps) error {
	s, err := deps.connect()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	status, err := s.svc.BotStatus(ctx)
	if err != nil {
		d := pferrors.ToDisplay(err)
		fmt.Fprintf(out, "API key check failed: %s\n", d.Message)
		if d.Remediation != "" {
			fmt.Fprintf(out, "  %s\n", d.Remediation)
		}
		return err
	}
	fmt.Fprintf(out, "API key is valid (%s)\n", s.cfg.APIURL)
	fmt.Fprintf(out, "  Running bots: %d\n", status.Running())
	return nil
}
