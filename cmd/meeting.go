package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/vexa-cli/config"
	"github.com/otherjamesbrown/vexa-cli/pkg/archive"
	"github.com/otherjamesbrown/vexa-cli/pkg/logging"
	"github.com/otherjamesbrown/vexa-cli/pkg/transcript"
)

// NewMeetingCommand creates the root meeting command with all subcommands.
func NewMeetingCommand(deps *CommandDeps) *cobra.Command {
	deps = deps.withDefaults()

	cmd := &cobra.Command{
		Use:   "meeting",
		Short: "Browse meetings and their transcripts",
		Long: `Browse past and active meetings, view and download transcripts, and keep
copies in the archive database.

Examples:
  # List meetings, most recent first
  vexa meeting list

  # Keep the list up to date
  vexa meeting list --watch

  # Show a stored transcript
  vexa meeting show google_meet/abc-defg-hij

  # Download as CSV without speaker names
  vexa meeting download google_meet/abc-defg-hij --format csv --no-speakers

  # Archive a transcript in PostgreSQL
  vexa meeting archive google_meet/abc-defg-hij --title "Weekly sync"`,
		Aliases: []string{"meetings"},
	}

	cmd.AddCommand(newMeetingListCommand(deps))
	cmd.AddCommand(newMeetingShowCommand(deps))
	cmd.AddCommand(newMeetingDownloadCommand(deps))
	cmd.AddCommand(newMeetingArchiveCommand(deps))
	cmd.AddCommand(newMeetingArchivedCommand(deps))
	return cmd
}

type meetingListOptions struct {
	output string
	watch  bool
}

func newMeetingListCommand(deps *CommandDeps) *cobra.Command {
	opts := &meetingListOptions{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List meetings",
		Long: `List meetings in reverse chronological order (most recent first).

With --watch the list is refreshed every 10 seconds while a meeting is active
and every 30 seconds otherwise.`,
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMeetingList(cmd.Context(), cmd.OutOrStdout(), deps, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output format: text, json, yaml")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Refresh the list until interrupted")
	return cmd
}

func runMeetingList(ctx context.Context, out io.Writer, deps *CommandDeps, opts *meetingListOptions) error {
	s, err := deps.connect()
	if err != nil {
		return err
	}
	format, err := resolveFormat(opts.output, s.cfg)
	if err != nil {
		return err
	}

	for {
		reqCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		meetings, err := s.svc.ListMeetings(reqCtx)
		cancel()
		if err != nil {
			if !opts.watch {
				return fmt.Errorf("listing meetings: %w", err)
			}
			// A failed refresh keeps the previous list on screen.
			s.logger.Warn("Meeting refresh failed", logging.Err(err))
		} else {
			if opts.watch && format == config.OutputFormatText {
				fmt.Fprintf(out, "Updated %s\n", deps.Now().Format(time.Kitchen))
			}
			if err := outputMeetingList(out, format, meetings, deps.Now()); err != nil {
				return err
			}
		}
		if !opts.watch {
			return nil
		}

		t := time.NewTimer(transcript.HistoryRefreshInterval(meetings))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func outputMeetingList(w io.Writer, format config.OutputFormat, meetings []transcript.Meeting, now time.Time) error {
	if meetings == nil {
		meetings = []transcript.Meeting{}
	}
	payload := map[string]interface{}{
		"meetings":   meetings,
		"count":      len(meetings),
		"has_active": transcript.HasActive(meetings),
	}
	return writeOutput(w, format, payload, func(w io.Writer) error {
		return outputMeetingListText(w, meetings, now)
	})
}

func outputMeetingListText(w io.Writer, meetings []transcript.Meeting, now time.Time) error {
	if len(meetings) == 0 {
		fmt.Fprintln(w, "No meetings found.")
		return nil
	}

	fmt.Fprintf(w, "Meetings (%d):\n\n", len(meetings))
	fmt.Fprintln(w, "  ID                              TITLE                          STATUS     STARTED           DURATION")
	fmt.Fprintln(w, "  --                              -----                          ------     -------           --------")
	for _, m := range meetings {
		fmt.Fprintf(w, "  %-31s %-30s %-10s %-17s %s\n",
			truncateString(m.ID.Session().String(), 31),
			truncateString(m.Title, 30),
			m.Status,
			m.StartTime.Local().Format("2006-01-02 15:04"),
			meetingDuration(m, now))
	}
	fmt.Fprintln(w)
	return nil
}

func meetingDuration(m transcript.Meeting, now time.Time) string {
	if m.StartTime.IsZero() {
		return "-"
	}
	end := now
	suffix := " (ongoing)"
	if m.EndTime != nil {
		end = *m.EndTime
		suffix = ""
	} else if m.Status != transcript.StatusActive {
		return "-"
	}
	d := end.Sub(m.StartTime)
	if d < 0 {
		return "-"
	}
	return d.Round(time.Minute).String() + suffix
}

type meetingShowOptions struct {
	output   string
	archived bool
	utc      bool
}

func newMeetingShowCommand(deps *CommandDeps) *cobra.Command {
	opts := &meetingShowOptions{}
	cmd := &cobra.Command{
		Use:   "show <meeting-url|meeting-id>",
		Short: "Show a meeting transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMeetingShow(cmd.Context(), cmd.OutOrStdout(), deps, args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output format: text, json, yaml")
	cmd.Flags().BoolVar(&opts.archived, "archived", false, "Read from the archive database instead of the gateway")
	cmd.Flags().BoolVar(&opts.utc, "utc", false, "Show timestamps in UTC instead of local time")
	return cmd
}

func runMeetingShow(ctx context.Context, out io.Writer, deps *CommandDeps, ref string, opts *meetingShowOptions) error {
	id, err := transcript.ParseMeetingRef(ref)
	if err != nil {
		return err
	}
	sess, cfg, err := loadTranscript(ctx, deps, id, opts.archived)
	if err != nil {
		return err
	}
	format, err := resolveFormat(opts.output, cfg)
	if err != nil {
		return err
	}

	return writeOutput(out, format, sess, func(w io.Writer) error {
		fmt.Fprintf(w, "Meeting:  %s\n", sess.MeetingID)
		fmt.Fprintf(w, "Status:   %s\n", sess.Status)
		fmt.Fprintf(w, "Language: %s\n", sess.Language)
		fmt.Fprintf(w, "Segments: %d\n\n", len(sess.Segments))
		if len(sess.Segments) == 0 {
			fmt.Fprintln(w, "No transcript yet.")
			return nil
		}
		exp := transcript.DefaultExportOptions()
		if opts.utc {
			exp.Location = time.UTC
		}
		fmt.Fprintln(w, transcript.RenderText(sess.Segments, exp))
		return nil
	})
}

// loadTranscript fetches a stored transcript from the gateway or the archive.
func loadTranscript(ctx context.Context, deps *CommandDeps, id transcript.MeetingID, archived bool) (*transcript.Session, *config.CLIConfig, error) {
	if archived {
		cfg, err := deps.LoadConfig()
		if err != nil {
			return nil, nil, fmt.Errorf("loading configuration: %w", err)
		}
		store, closeStore, err := deps.OpenArchive(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		defer closeStore()
		sess, err := store.Load(ctx, id)
		if err != nil {
			return nil, nil, fmt.Errorf("loading archived transcript: %w", err)
		}
		return sess, cfg, nil
	}

	s, err := deps.connect()
	if err != nil {
		return nil, nil, err
	}
	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	sess, err := s.svc.GetMeetingTranscript(reqCtx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching transcript: %w", err)
	}
	return sess, s.cfg, nil
}

type meetingDownloadOptions struct {
	format       string
	noTimestamps bool
	noSpeakers   bool
	file         string
	archived     bool
	utc          bool
}

func newMeetingDownloadCommand(deps *CommandDeps) *cobra.Command {
	opts := &meetingDownloadOptions{}
	cmd := &cobra.Command{
		Use:   "download <meeting-url|meeting-id>",
		Short: "Save a transcript as text or CSV",
		Long: `Save a transcript to a file. The default name is
transcript-<platform>_<meeting>-<date>.<ext> in the current directory.
Use --file - to write to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMeetingDownload(cmd.Context(), cmd.OutOrStdout(), deps, args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.format, "format", "txt", "File format: txt or csv")
	cmd.Flags().BoolVar(&opts.noTimestamps, "no-timestamps", false, "Omit timestamps (text format)")
	cmd.Flags().BoolVar(&opts.noSpeakers, "no-speakers", false, "Omit speaker names (text format)")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Output path, or - for stdout")
	cmd.Flags().BoolVar(&opts.archived, "archived", false, "Read from the archive database instead of the gateway")
	cmd.Flags().BoolVar(&opts.utc, "utc", false, "Write timestamps in UTC instead of local time")
	return cmd
}

func runMeetingDownload(ctx context.Context, out io.Writer, deps *CommandDeps, ref string, opts *meetingDownloadOptions) error {
	id, err := transcript.ParseMeetingRef(ref)
	if err != nil {
		return err
	}
	format, err := transcript.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	sess, _, err := loadTranscript(ctx, deps, id, opts.archived)
	if err != nil {
		return err
	}
	if len(sess.Segments) == 0 {
		return fmt.Errorf("no transcript to download for %s", id)
	}

	exp := transcript.ExportOptions{Timestamps: !opts.noTimestamps, Speakers: !opts.noSpeakers}
	if opts.utc {
		exp.Location = time.UTC
	}
	body := transcript.Render(sess.Segments, format, exp) + "\n"

	if opts.file == "-" {
		_, err := io.WriteString(out, body)
		return err
	}
	path := opts.file
	if path == "" {
		path = transcript.Filename(id, format, deps.Now())
	}
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		return fmt.Errorf("writing transcript: %w", err)
	}
	fmt.Fprintf(out, "Saved %d segments to %s\n", len(sess.Segments), path)
	return nil
}

func newMeetingArchiveCommand(deps *CommandDeps) *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "archive <meeting-url|meeting-id>",
		Short: "Copy a transcript into the archive database",
		Long: `Fetch a stored transcript from the gateway and save it in PostgreSQL.
Archiving the same meeting again replaces the previous copy.

The database is configured with archive.url in ~/.vexa/config.yaml or the
VEXA_ARCHIVE_URL environment variable.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := transcript.ParseMeetingRef(args[0])
			if err != nil {
				return err
			}
			sess, cfg, err := loadTranscript(ctx, deps, id, false)
			if err != nil {
				return err
			}
			store, closeStore, err := deps.OpenArchive(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			entry, err := store.Save(ctx, sess, title)
			if err != nil {
				return fmt.Errorf("archiving transcript: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archived %s (%d segments, run %s)\n",
				entry.MeetingID, entry.SegmentCount, entry.RunID)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Title stored with the transcript")
	return cmd
}

func newMeetingArchivedCommand(deps *CommandDeps) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "archived",
		Short: "List or remove archived transcripts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := deps.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			format, err := resolveFormat(output, cfg)
			if err != nil {
				return err
			}
			store, closeStore, err := deps.OpenArchive(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			entries, err := store.List(ctx)
			if err != nil {
				return fmt.Errorf("listing archive: %w", err)
			}
			if entries == nil {
				entries = []archive.Entry{}
			}
			return writeOutput(cmd.OutOrStdout(), format, entries, func(w io.Writer) error {
				return outputArchiveText(w, entries)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: text, json, yaml")

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <meeting-id>",
		Short: "Remove a transcript from the archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := transcript.ParseMeetingRef(args[0])
			if err != nil {
				return err
			}
			cfg, err := deps.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			store, closeStore, err := deps.OpenArchive(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()
			if err := store.Delete(ctx, id); err != nil {
				return fmt.Errorf("deleting archived transcript: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted archived transcript %s\n", id)
			return nil
		},
	})
	return cmd
}

func outputArchiveText(w io.Writer, entries []archive.Entry) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, "Archive is empty.")
		return nil
	}
	fmt.Fprintf(w, "Archived transcripts (%d):\n\n", len(entries))
	fmt.Fprintln(w, "  ID                              TITLE                          SEGMENTS  ARCHIVED")
	fmt.Fprintln(w, "  --                              -----                          --------  --------")
	for _, e := range entries {
		fmt.Fprintf(w, "  %-31s %-30s %-9d %s\n",
			truncateString(e.MeetingID.String(), 31),
			truncateString(e.Title, 30),
			e.SegmentCount,
			e.ArchivedAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(w)
	return nil
}
