package cmd

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/vexa-cli/pkg/liveview"
	"github.com/otherjamesbrown/vexa-cli/pkg/logging"
	"github.com/otherjamesbrown/vexa-cli/pkg/poller"
	"github.com/otherjamesbrown/vexa-cli/pkg/transcript"
)

type serveOptions struct {
	listen     string
	historical bool
	language   string
	publish    bool
}

// NewServeCommand creates the 'serve' command.
func NewServeCommand(deps *CommandDeps) *cobra.Command {
	deps = deps.withDefaults()
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve [meeting-url|meeting-id]",
		Short: "Serve the live transcript view in a browser",
		Long: `Start a local web server showing the live transcript. Meetings can be
attached, stopped and switched from the page; the transcript is pushed to the
browser over a websocket.

The server also exposes /healthz, /version and Prometheus metrics on /metrics.

Examples:
  vexa serve
  vexa serve google_meet/abc-defg-hij --listen 127.0.0.1:9000`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id transcript.MeetingID
			if len(args) == 1 {
				var err error
				if id, err = transcript.ParseMeetingRef(args[0]); err != nil {
					return err
				}
			}
			s, err := deps.connect()
			if err != nil {
				return err
			}
			addr := opts.listen
			if addr == "" {
				addr = s.cfg.Serve.Listen
			}
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", addr, err)
			}
			return runServe(cmd.Context(), cmd.OutOrStdout(), deps, s, ln, id, opts)
		},
	}

	cmd.Flags().StringVar(&opts.listen, "listen", "", "Listen address (default from config, 127.0.0.1:8765)")
	cmd.Flags().BoolVar(&opts.historical, "historical", false, "Load the initial meeting once instead of polling")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Initial session language")
	cmd.Flags().BoolVar(&opts.publish, "publish", false, "Publish transcript events to Redis")
	return cmd
}

// runServe serves on ln until ctx is done. A non-zero id is attached before
// the server starts accepting requests.
func runServe(ctx context.Context, out io.Writer, deps *CommandDeps, s *session, ln net.Listener, id transcript.MeetingID, opts *serveOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := liveview.NewHub(s.logger)
	go hub.Run(ctx)

	extra := []poller.Option{poller.WithObserver(hub.Observe)}
	if opts.publish || s.cfg.Redis.Enabled {
		fwd, closeFwd, err := startForwarder(ctx, deps, s)
		if err != nil {
			_ = ln.Close()
			return err
		}
		defer closeFwd()
		extra = append(extra, poller.WithObserver(fwd.Observe))
	}

	lang := opts.language
	if lang != "" {
		var err error
		if lang, err = transcript.NormalizeLanguage(lang); err != nil {
			_ = ln.Close()
			return err
		}
	}
	sched := newScheduler(s, lang, reg, extra...)
	defer sched.Close()

	if !id.IsZero() {
		mode := poller.ModeLive
		if opts.historical {
			mode = poller.ModeHistorical
		}
		if err := sched.Start(ctx, id, mode); err != nil {
			_ = ln.Close()
			return fmt.Errorf("starting transcript: %w", err)
		}
		s.logger.Info("Attached meeting", append(logFields(id, lang), logging.F("mode", mode.String()))...)
	}

	srv := liveview.NewServer(liveview.Deps{
		Gateway:    s.svc,
		Controller: sched,
		Hub:        hub,
		Gatherer:   reg,
		Logger:     s.logger,
	})
	fmt.Fprintf(out, "Live view at http://%s (Ctrl-C to stop)\n", ln.Addr())
	return srv.Serve(ctx, ln)
}
