package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/vexa-cli/client"
	pferrors "github.com/otherjamesbrown/vexa-cli/pkg/errors"
	"github.com/otherjamesbrown/vexa-cli/pkg/transcript"
)

// NewBotCommand creates the 'bot' command group.
func NewBotCommand(deps *CommandDeps) *cobra.Command {
	deps = deps.withDefaults()

	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Send, stop and configure transcription bots",
		Long: `Control the bot that joins a meeting and transcribes it.

Meetings are identified by URL (https://meet.google.com/abc-defg-hij) or by
id (google_meet/abc-defg-hij).

Examples:
  vexa bot start https://meet.google.com/abc-defg-hij
  vexa bot start google_meet/abc-defg-hij --language es --follow
  vexa bot language google_meet/abc-defg-hij fr
  vexa bot stop google_meet/abc-defg-hij`,
	}

	cmd.AddCommand(newBotStartCommand(deps))
	cmd.AddCommand(newBotStopCommand(deps))
	cmd.AddCommand(newBotLanguageCommand(deps))
	return cmd
}

type botStartOptions struct {
	language string
	name     string
	follow   bool
	output   string
}

func newBotStartCommand(deps *CommandDeps) *cobra.Command {
	opts := &botStartOptions{}
	cmd := &cobra.Command{
		Use:   "start <meeting-url|meeting-id>",
		Short: "Send a bot into a meeting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBotStart(cmd.Context(), cmd.OutOrStdout(), deps, args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Transcription language code, or auto (default from config)")
	cmd.Flags().StringVar(&opts.name, "name", "", "Bot display name (default from config)")
	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Show the live transcript after the bot joins")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output format: text, json, yaml")
	return cmd
}

func runBotStart(ctx context.Context, out io.Writer, deps *CommandDeps, ref string, opts *botStartOptions) error {
	id, err := transcript.ParseMeetingRef(ref)
	if err != nil {
		return err
	}

	s, err := deps.connect()
	if err != nil {
		return err
	}
	format, err := resolveFormat(opts.output, s.cfg)
	if err != nil {
		return err
	}

	lang := opts.language
	if lang == "" {
		lang = s.cfg.DefaultLanguage
	}
	lang, err = transcript.NormalizeLanguage(lang)
	if err != nil {
		return err
	}
	name := opts.name
	if name == "" {
		name = s.cfg.BotName
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	started, err := s.svc.StartBot(reqCtx, client.StartRequest{
		Platform:        id.Platform,
		NativeMeetingID: id.NativeMeetingID,
		BotName:         name,
		Language:        lang,
	})
	if err != nil {
		if pferrors.IsExistingBot(err) {
			d := pferrors.ToDisplay(err)
			return fmt.Errorf("%s. %s: %w", d.Message, d.Remediation, err)
		}
		return fmt.Errorf("starting bot: %w", err)
	}
	s.logger.Info("Bot requested", logFields(started, lang)...)

	result := struct {
		MeetingID string `json:"meeting_id" yaml:"meeting_id"`
		BotName   string `json:"bot_name" yaml:"bot_name"`
		Language  string `json:"language" yaml:"language"`
	}{started.String(), name, lang}

	err = writeOutput(out, format, result, func(w io.Writer) error {
		fmt.Fprintf(w, "Bot %q is joining %s\n", name, started)
		fmt.Fprintf(w, "  Language: %s\n", lang)
		if !opts.follow {
			fmt.Fprintf(w, "\nFollow the transcript with: vexa live %s\n", started)
		}
		return nil
	})
	if err != nil || !opts.follow {
		return err
	}
	return runLive(ctx, out, deps, s, started, &liveOptions{language: lang})
}

func newBotStopCommand(deps *CommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:     "stop <meeting-url|meeting-id>",
		Short:   "Remove the bot from a meeting",
		Aliases: []string{"rm"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := transcript.ParseMeetingRef(args[0])
			if err != nil {
				return err
			}
			s, err := deps.connect()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), s.cfg.Timeout)
			defer cancel()
			if err := s.svc.StopBot(ctx, id); err != nil {
				return fmt.Errorf("stopping bot: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Bot stopped for %s\n", id)
			return nil
		},
	}
}

func newBotLanguageCommand(deps *CommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "language <meeting-url|meeting-id> <language>",
		Short: "Change the transcription language of a running bot",
		Long: `Change the transcription language of a running bot. Use "auto" for
automatic detection.

Examples:
  vexa bot language google_meet/abc-defg-hij de
  vexa bot language google_meet/abc-defg-hij auto`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := transcript.ParseMeetingRef(args[0])
			if err != nil {
				return err
			}
			lang, err := transcript.NormalizeLanguage(args[1])
			if err != nil {
				return err
			}
			s, err := deps.connect()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), s.cfg.Timeout)
			defer cancel()
			if err := s.svc.UpdateLanguage(ctx, id, lang); err != nil {
				return fmt.Errorf("updating language: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Language for %s set to %s\n", id, lang)
			return nil
		},
	}
}
