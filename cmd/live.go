package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/otherjamesbrown/vexa-cli/config"
	"github.com/otherjamesbrown/vexa-cli/pkg/events"
	"github.com/otherjamesbrown/vexa-cli/pkg/logging"
	"github.com/otherjamesbrown/vexa-cli/pkg/poller"
	"github.com/otherjamesbrown/vexa-cli/pkg/transcript"
)

type liveOptions struct {
	language   string
	historical bool
	search     string
	publish    bool
	noColor    bool
	stopOnExit bool
	output     string
	utc        bool
}

// NewLiveCommand creates the 'live' command.
func NewLiveCommand(deps *CommandDeps) *cobra.Command {
	deps = deps.withDefaults()
	opts := &liveOptions{}

	cmd := &cobra.Command{
		Use:   "live <meeting-url|meeting-id>",
		Short: "Follow a meeting transcript as it is produced",
		Long: `Poll a meeting transcript and print new and corrected segments as they
arrive. New segments are marked with "+", corrected ones with "~".

Polling stops when the meeting ends, after repeated failures, or on Ctrl-C.
With --historical the stored transcript is fetched once.

Examples:
  vexa live google_meet/abc-defg-hij
  vexa live https://meet.google.com/abc-defg-hij --search budget
  vexa live google_meet/abc-defg-hij --historical -o json
  vexa live google_meet/abc-defg-hij --publish`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := transcript.ParseMeetingRef(args[0])
			if err != nil {
				return err
			}
			if opts.language != "" {
				if opts.language, err = transcript.NormalizeLanguage(opts.language); err != nil {
					return err
				}
			}
			s, err := deps.connect()
			if err != nil {
				return err
			}
			return runLive(cmd.Context(), cmd.OutOrStdout(), deps, s, id, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Language shown for the session until the transcript reports one")
	cmd.Flags().BoolVar(&opts.historical, "historical", false, "Fetch the stored transcript once instead of polling")
	cmd.Flags().StringVarP(&opts.search, "search", "s", "", "Mark segments containing this text")
	cmd.Flags().BoolVar(&opts.publish, "publish", false, "Publish transcript events to Redis")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable speaker colors")
	cmd.Flags().BoolVar(&opts.stopOnExit, "stop-on-exit", false, "Remove the bot when the command is interrupted")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output format: text, json (one view per line)")
	cmd.Flags().BoolVar(&opts.utc, "utc", false, "Show timestamps in UTC instead of local time")
	return cmd
}

func logFields(id transcript.MeetingID, lang string) []logging.Field {
	return []logging.Field{
		logging.F("meeting_id", id.String()),
		logging.F("platform", id.Platform),
		logging.F("language", lang),
	}
}

// newScheduler builds a scheduler from configuration. extra options are
// appended after the logger and metrics.
func newScheduler(s *session, lang string, reg prometheus.Registerer, extra ...poller.Option) *poller.Scheduler {
	if lang == "" {
		lang = s.cfg.DefaultLanguage
	}
	options := []poller.Option{
		poller.WithLogger(s.logger),
		poller.WithMetrics(poller.NewMetrics(reg)),
	}
	options = append(options, extra...)
	return poller.New(s.svc, poller.Options{
		Interval:     s.cfg.PollInterval,
		MaxRetries:   s.cfg.MaxRetries,
		HighlightFor: s.cfg.HighlightDuration,
		Language:     lang,
	}, options...)
}

// startForwarder connects to Redis and runs an event forwarder until ctx is
// done. The returned func closes the publisher.
func startForwarder(ctx context.Context, deps *CommandDeps, s *session) (*events.Forwarder, func(), error) {
	pub, err := deps.NewPublisher(ctx, s.cfg, s.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting event publisher: %w", err)
	}
	fwd := events.NewForwarder(pub, 0, s.logger)
	go func() { _ = fwd.Run(ctx) }()
	return fwd, func() {
		if n := fwd.Dropped(); n > 0 {
			s.logger.Warn("Dropped transcript events", logging.F("count", n))
		}
		_ = pub.Close()
	}, nil
}

func runLive(ctx context.Context, out io.Writer, deps *CommandDeps, s *session, id transcript.MeetingID, opts *liveOptions) error {
	format, err := resolveFormat(opts.output, s.cfg)
	if err != nil {
		return err
	}
	if format == config.OutputFormatYAML {
		return fmt.Errorf("live output supports text or json")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var extra []poller.Option
	if opts.publish || s.cfg.Redis.Enabled {
		fwd, closeFwd, err := startForwarder(ctx, deps, s)
		if err != nil {
			return err
		}
		defer closeFwd()
		extra = append(extra, poller.WithObserver(fwd.Observe))
	}

	sched := newScheduler(s, opts.language, prometheus.NewRegistry(), extra...)
	defer sched.Close()

	views, unsubscribe := sched.Subscribe()
	defer unsubscribe()

	mode := poller.ModeLive
	if opts.historical {
		mode = poller.ModeHistorical
	}
	if err := sched.Start(ctx, id, mode); err != nil {
		return fmt.Errorf("starting transcript: %w", err)
	}
	s.logger.Info("Following transcript", append(logFields(id, opts.language), logging.F("mode", mode.String()))...)

	loc := time.Local
	if opts.utc {
		loc = time.UTC
	}
	r := newViewRenderer(out, !opts.noColor && isTerminal(out), opts.search, loc)
	render := r.Render
	if format == config.OutputFormatJSON {
		render = func(v poller.View) { _ = writeJSONLine(out, v) }
	}

	for {
		select {
		case <-ctx.Done():
			if opts.stopOnExit && !opts.historical {
				stopCtx, stopCancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
				defer stopCancel()
				if err := sched.Stop(stopCtx); err != nil {
					return fmt.Errorf("stopping bot: %w", err)
				}
				fmt.Fprintf(out, "Bot stopped for %s\n", id)
			}
			return nil
		case v, ok := <-views:
			if !ok {
				return nil
			}
			if v.MeetingID.IsZero() {
				continue
			}
			render(v)
			switch v.State {
			case poller.StateTerminated, poller.StateFetchedOnce:
				if format == config.OutputFormatText {
					r.Summary()
				}
				return nil
			case poller.StateFailed:
				if v.Error != nil {
					return fmt.Errorf("live transcript: %w", *v.Error)
				}
				return fmt.Errorf("live transcript: polling failed")
			}
		}
	}
}

func writeJSONLine(w io.Writer, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
