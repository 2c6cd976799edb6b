// Package poller drives transcript fetches for one meeting at a time.
//
// A Scheduler owns a single loop goroutine. Every piece of mutable session
// state (ticker, retry counter, reconciliation engine, highlight timer) is
// touched only from that loop. Public methods submit closures to the loop and
// wait for them to run. Fetches run on their own goroutine and report back
// tagged with the generation of the session that issued them; a result from
// an older generation is dropped and can never re-arm a timer.
package poller

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	pferrors "github.com/otherjamesbrown/vexa-cli/pkg/errors"
	"github.com/otherjamesbrown/vexa-cli/pkg/logging"
	"github.com/otherjamesbrown/vexa-cli/pkg/reconcile"
	"github.com/otherjamesbrown/vexa-cli/pkg/transcript"
)

// Defaults for Options.
const (
	DefaultInterval   = 800 * time.Millisecond
	DefaultMaxRetries = 3
)

var (
	// ErrClosed is returned by operations on a closed scheduler.
	ErrClosed = errors.New("poller: scheduler closed")
	// ErrNoSession is returned when an operation needs an attached meeting.
	ErrNoSession = errors.New("poller: no meeting attached")
	// ErrSessionChanged is returned when the session was replaced while a
	// remote control call was in progress.
	ErrSessionChanged = errors.New("poller: session changed during operation")
	// ErrNoBot is returned for bot control on a historical meeting.
	ErrNoBot = errors.New("poller: historical meeting has no bot")
)

// Fetcher retrieves transcript snapshots.
type Fetcher interface {
	GetTranscript(ctx context.Context, id transcript.MeetingID) (*transcript.Session, error)
	GetMeetingTranscript(ctx context.Context, id transcript.MeetingID) (*transcript.Session, error)
}

// Service is a Fetcher that can also control the remote bot.
type Service interface {
	Fetcher
	StopBot(ctx context.Context, id transcript.MeetingID) error
	UpdateLanguage(ctx context.Context, id transcript.MeetingID, language string) error
}

// Options tunes the scheduler.
type Options struct {
	// Interval between live fetches.
	Interval time.Duration
	// MaxRetries is the number of consecutive failures tolerated before polling stops.
	MaxRetries int
	// HighlightFor is how long changed segments stay highlighted.
	HighlightFor time.Duration
	// Backoff multiplies the interval per consecutive failure while degraded.
	// Values <= 1 keep the interval fixed.
	Backoff float64
	// Language is the initial requested language.
	Language string
}

// DefaultOptions returns the standard polling cadence.
func DefaultOptions() Options {
	return Options{
		Interval:     DefaultInterval,
		MaxRetries:   DefaultMaxRetries,
		HighlightFor: reconcile.DefaultHighlightDuration,
		Backoff:      1,
		Language:     transcript.LanguageAuto,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Interval <= 0 {
		o.Interval = d.Interval
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = d.MaxRetries
	}
	if o.HighlightFor <= 0 {
		o.HighlightFor = d.HighlightFor
	}
	if o.Backoff < 1 {
		o.Backoff = d.Backoff
	}
	if o.Language == "" {
		o.Language = d.Language
	}
	return o
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithObserver registers fn to be called with every published view. Observers
// run on the scheduler loop and must not call back into the scheduler.
func WithObserver(fn func(View)) Option {
	return func(s *Scheduler) { s.observers = append(s.observers, fn) }
}

// Scheduler polls a transcript service and publishes reconciled views.
type Scheduler struct {
	svc       Service
	opts      Options
	clock     Clock
	logger    logging.Logger
	metrics   *Metrics
	observers []func(View)

	cmds    chan func()
	ctrl    chan struct{}
	results chan fetchResult
	quit    chan struct{}
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once

	subMu   sync.Mutex
	subs    map[int]chan View
	nextSub int
	last    View

	// loop-owned
	gen      uint64
	sessions uint64
	sess     *session
}

type session struct {
	id       transcript.MeetingID
	mode     Mode
	state    State
	gen      uint64
	seq      uint64
	engine   *reconcile.Engine
	retry    int
	err      *pferrors.Display
	ticker   Ticker
	timer    Timer
	inflight bool
	ctx      context.Context
	cancel   context.CancelFunc
}

type fetchResult struct {
	gen     uint64
	session *transcript.Session
	err     error
	elapsed time.Duration
}

// New starts a scheduler loop. Call Close to stop it.
func New(svc Service, opts Options, options ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		svc:     svc,
		opts:    opts.withDefaults(),
		clock:   RealClock{},
		logger:  logging.NewNopLogger(),
		cmds:    make(chan func()),
		ctrl:    make(chan struct{}, 1),
		results: make(chan fetchResult),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		subs:    make(map[int]chan View),
	}
	for _, o := range options {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(prometheus.NewRegistry())
	}
	s.last = s.idleView(s.opts.Language)
	go s.loop()
	return s
}

// Options returns the effective options.
func (s *Scheduler) Options() Options { return s.opts }

func (s *Scheduler) loop() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.cmds:
			fn()
		case r := <-s.results:
			s.handleResult(r)
		case <-s.tickC():
			s.tick()
		case <-s.timerC():
			s.expireHighlights()
		case <-s.quit:
			s.disarm()
			return
		}
	}
}

// do runs fn on the loop and waits for it to finish.
func (s *Scheduler) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case s.cmds <- func() { fn(); close(finished) }:
	case <-s.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// lockControl serializes Stop and ChangeLanguage so that the remote calls
// and the local session rebuild happen in the same order.
func (s *Scheduler) lockControl(ctx context.Context) error {
	select {
	case s.ctrl <- struct{}{}:
		return nil
	case <-s.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) unlockControl() { <-s.ctrl }

// Start attaches the scheduler to a meeting. Any previous session is disarmed
// first. Live mode fetches immediately and then every Interval; historical
// mode fetches once.
func (s *Scheduler) Start(ctx context.Context, id transcript.MeetingID, mode Mode) error {
	if id.IsZero() {
		return fmt.Errorf("start: %w", pferrors.ErrInvalidMeetingID)
	}
	return s.do(ctx, func() {
		s.begin(id, mode, s.opts.Language)
	})
}

// SwitchMeeting tears the current session down and starts a new one.
// Segments, highlights, the retry counter and the error are all discarded.
func (s *Scheduler) SwitchMeeting(ctx context.Context, id transcript.MeetingID, mode Mode) error {
	return s.Start(ctx, id, mode)
}

// Stop asks the service to remove the bot and returns to Idle. Historical
// sessions have no bot and are simply detached. If the remote call fails the
// session resumes where it was.
func (s *Scheduler) Stop(ctx context.Context) error {
	if err := s.lockControl(ctx); err != nil {
		return err
	}
	defer s.unlockControl()

	var (
		sess    *session
		resume  State
		started bool
	)
	err := s.do(ctx, func() {
		if s.sess == nil {
			return
		}
		sess = s.sess
		resume = sess.state
		started = true
		s.disarm()
		if sess.mode == ModeHistorical {
			s.detach()
			return
		}
		s.transition(StateIdle)
		s.publish(nil)
	})
	if err != nil || !started || sess.mode == ModeHistorical {
		return err
	}

	s.logger.Info("Stopping bot", logging.F("meeting_id", sess.id.String()))
	remoteErr := s.svc.StopBot(ctx, sess.id)

	return s.finishControl(sess, func() {
		if remoteErr != nil {
			d := pferrors.ToDisplay(remoteErr)
			sess.err = &d
			s.resume(resume)
			return
		}
		s.detach()
	}, remoteErr)
}

// ChangeLanguage updates the bot's language. Polling is disarmed while the
// remote update runs. On success the transcript is cleared and polling restarts
// in the new language; on failure the error is shown and polling resumes
// with the previous language. Historical sessions have no bot and are left
// untouched.
func (s *Scheduler) ChangeLanguage(ctx context.Context, language string) error {
	normalized, err := transcript.NormalizeLanguage(language)
	if err != nil {
		return err
	}
	if err := s.lockControl(ctx); err != nil {
		return err
	}
	defer s.unlockControl()

	var (
		sess       *session
		resume     State
		historical bool
	)
	err = s.do(ctx, func() {
		if s.sess == nil {
			return
		}
		if s.sess.mode == ModeHistorical {
			historical = true
			return
		}
		sess = s.sess
		resume = sess.state
		s.disarm()
		s.transition(StateIdle)
		s.publish(nil)
	})
	switch {
	case err != nil:
		return err
	case historical:
		return fmt.Errorf("change language: %w", ErrNoBot)
	case sess == nil:
		return ErrNoSession
	}

	s.logger.Info("Updating bot language",
		logging.F("meeting_id", sess.id.String()),
		logging.F("language", normalized),
	)
	remoteErr := s.svc.UpdateLanguage(ctx, sess.id, normalized)

	return s.finishControl(sess, func() {
		if remoteErr != nil {
			d := pferrors.ToDisplay(remoteErr)
			sess.err = &d
			s.resume(resume)
			return
		}
		s.begin(sess.id, sess.mode, normalized)
	}, remoteErr)
}

// finishControl runs fn on the loop if sess is still current.
func (s *Scheduler) finishControl(sess *session, fn func(), remoteErr error) error {
	stale := false
	err := s.do(context.Background(), func() {
		if s.sess != sess {
			stale = true
			return
		}
		fn()
	})
	switch {
	case err != nil:
		return err
	case stale:
		if remoteErr != nil {
			return remoteErr
		}
		return ErrSessionChanged
	default:
		return remoteErr
	}
}

// Close disarms every timer and stops the loop. It is safe to call more than once.
func (s *Scheduler) Close() error {
	s.once.Do(func() {
		close(s.quit)
		<-s.done
		s.cancel()

		s.subMu.Lock()
		for id, ch := range s.subs {
			close(ch)
			delete(s.subs, id)
		}
		s.subMu.Unlock()
	})
	return nil
}

// Subscribe returns a channel of views, starting with the current one, and a
// function that cancels the subscription. Slow subscribers see the latest
// view; intermediate views may be dropped.
func (s *Scheduler) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 16)

	s.subMu.Lock()
	select {
	case <-s.done:
		s.subMu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.last
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

// Current returns the most recently published view.
func (s *Scheduler) Current() View {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return s.last
}

// begin replaces the session. Must run on the loop.
func (s *Scheduler) begin(id transcript.MeetingID, mode Mode, language string) {
	s.disarm()
	s.gen++
	s.sessions++

	ctx, cancel := context.WithCancel(s.ctx)
	s.sess = &session{
		id:     id,
		mode:   mode,
		state:  StateIdle,
		gen:    s.gen,
		seq:    s.sessions,
		engine: reconcile.NewEngine(s.opts.HighlightFor, language),
		ctx:    ctx,
		cancel: cancel,
	}
	s.logger.Debug("Session started",
		logging.F("meeting_id", id.String()),
		logging.F("mode", mode.String()),
		logging.F("generation", s.gen),
	)

	if mode == ModeLive {
		s.sess.ticker = s.clock.NewTicker(s.opts.Interval)
		s.transition(StatePolling)
	}
	s.publish(nil)
	s.fetch()
}

// resume re-arms a session that was paused for a control call. Must run on the loop.
func (s *Scheduler) resume(prev State) {
	sess := s.sess
	ctx, cancel := context.WithCancel(s.ctx)
	sess.ctx, sess.cancel = ctx, cancel
	sess.inflight = false

	if sess.mode == ModeLive && prev.Armed() {
		sess.ticker = s.clock.NewTicker(s.opts.Interval)
		s.transition(prev)
		s.publish(nil)
		s.fetch()
		return
	}
	s.transition(prev)
	s.armHighlightTimer()
	s.publish(nil)
	if sess.mode == ModeHistorical && prev == StateIdle {
		// the one-shot fetch was cancelled before it completed
		s.fetch()
	}
}

// detach drops the session and publishes an idle view. Must run on the loop.
func (s *Scheduler) detach() {
	language := s.opts.Language
	if s.sess != nil {
		language = s.sess.engine.Language()
	}
	s.disarm()
	s.gen++
	s.sess = nil
	s.metrics.RecordState(StateIdle)
	s.broadcast(s.idleView(language))
}

// disarm stops the ticker and highlight timer and cancels in-flight fetches.
// The session itself is kept. Must run on the loop.
func (s *Scheduler) disarm() {
	sess := s.sess
	if sess == nil {
		return
	}
	s.stopTicker()
	if sess.timer != nil {
		sess.timer.Stop()
		sess.timer = nil
	}
	if sess.cancel != nil {
		sess.cancel()
	}
	// A fresh generation makes any outstanding result stale.
	s.gen++
	sess.gen = s.gen
	sess.inflight = false
}

func (s *Scheduler) stopTicker() {
	if s.sess != nil && s.sess.ticker != nil {
		s.sess.ticker.Stop()
		s.sess.ticker = nil
	}
}

func (s *Scheduler) tickC() <-chan time.Time {
	if s.sess == nil || s.sess.ticker == nil {
		return nil
	}
	return s.sess.ticker.C()
}

func (s *Scheduler) timerC() <-chan time.Time {
	if s.sess == nil || s.sess.timer == nil {
		return nil
	}
	return s.sess.timer.C()
}

func (s *Scheduler) tick() {
	if s.sess.inflight {
		s.metrics.SkippedTicksTotal.Inc()
		return
	}
	s.fetch()
}

func (s *Scheduler) fetch() {
	sess := s.sess
	if sess.inflight {
		return
	}
	sess.inflight = true

	gen, id, mode, ctx := sess.gen, sess.id, sess.mode, sess.ctx
	started := s.clock.Now()
	go func() {
		var (
			snap *transcript.Session
			err  error
		)
		if mode == ModeHistorical {
			snap, err = s.svc.GetMeetingTranscript(ctx, id)
		} else {
			snap, err = s.svc.GetTranscript(ctx, id)
		}
		r := fetchResult{gen: gen, session: snap, err: err, elapsed: s.clock.Now().Sub(started)}
		select {
		case s.results <- r:
		case <-s.quit:
		}
	}()
}

func (s *Scheduler) handleResult(r fetchResult) {
	if s.sess == nil || r.gen != s.sess.gen {
		s.metrics.StaleResultsTotal.Inc()
		s.logger.Debug("Dropping stale fetch result", logging.F("generation", r.gen))
		return
	}
	sess := s.sess
	sess.inflight = false
	s.metrics.RecordFetch(sess.mode, r.err == nil, r.elapsed.Seconds())

	if r.err == nil && r.session == nil {
		r.err = fmt.Errorf("fetch %s: %w", sess.id, pferrors.ErrMissingSegments)
	}
	if r.err != nil {
		s.onFailure(r.err)
		return
	}
	s.onSuccess(r.session)
}

func (s *Scheduler) onSuccess(snap *transcript.Session) {
	sess := s.sess
	up := sess.engine.Apply(snap, s.clock.Now())
	s.metrics.RecordReconcile(up.Added, up.Updated, len(up.Segments))

	sess.retry = 0
	sess.err = nil

	switch {
	case sess.mode == ModeHistorical:
		s.transition(StateFetchedOnce)
	case up.Status.IsTerminal():
		s.stopTicker()
		if up.Status == transcript.StatusError {
			d := pferrors.TerminalError()
			sess.err = &d
		}
		s.transition(StateTerminated)
		s.logger.Info("Transcription ended",
			logging.F("meeting_id", sess.id.String()),
			logging.F("status", up.Status.String()),
		)
	default:
		if sess.state == StateDegraded && sess.ticker != nil {
			sess.ticker.Reset(s.opts.Interval)
		}
		s.transition(StatePolling)
	}

	s.armHighlightTimer()
	s.publish(up.Changed)
}

func (s *Scheduler) onFailure(err error) {
	sess := s.sess
	log := s.logger.With(logging.F("meeting_id", sess.id.String()), logging.Err(err))

	if sess.mode == ModeHistorical {
		d := pferrors.ToDisplay(err)
		sess.err = &d
		s.transition(StateFailed)
		log.Warn("Historical transcript fetch failed")
		s.publish(nil)
		return
	}

	sess.retry++
	if sess.retry >= s.opts.MaxRetries {
		s.stopTicker()
		d := pferrors.Exhausted(err)
		sess.err = &d
		s.transition(StateFailed)
		log.Error("Transcript polling stopped after repeated failures", logging.F("attempts", sess.retry))
		s.publish(nil)
		return
	}

	d := pferrors.Retrying(err, sess.retry, s.opts.MaxRetries)
	sess.err = &d
	s.transition(StateDegraded)
	if s.opts.Backoff > 1 && sess.ticker != nil {
		sess.ticker.Reset(s.backoffInterval(sess.retry))
	}
	log.Warn("Transcript fetch failed", logging.F("attempt", sess.retry))
	s.publish(nil)
}

func (s *Scheduler) backoffInterval(retry int) time.Duration {
	f := float64(s.opts.Interval) * math.Pow(s.opts.Backoff, float64(retry))
	return time.Duration(f)
}

func (s *Scheduler) expireHighlights() {
	sess := s.sess
	sess.timer = nil
	if sess.engine.Expire(s.clock.Now()) {
		s.publish(nil)
	}
	s.armHighlightTimer()
}

func (s *Scheduler) armHighlightTimer() {
	sess := s.sess
	if sess.timer != nil {
		sess.timer.Stop()
		sess.timer = nil
	}
	next, ok := sess.engine.NextExpiry()
	if !ok {
		return
	}
	d := next.Sub(s.clock.Now())
	if d < 0 {
		d = 0
	}
	sess.timer = s.clock.NewTimer(d)
}

func (s *Scheduler) transition(to State) {
	if s.sess.state == to {
		return
	}
	s.sess.state = to
	s.metrics.RecordState(to)
}

// publish builds a view of the current session and broadcasts it.
func (s *Scheduler) publish(changed []string) {
	sess := s.sess
	now := s.clock.Now()
	v := View{
		MeetingID:   sess.id,
		Mode:        sess.mode.String(),
		State:       sess.state,
		Status:      sess.engine.Status(),
		Language:    sess.engine.Language(),
		Segments:    sess.engine.Segments(),
		Highlighted: sess.engine.Highlighted(now),
		Changed:     changed,
		Retry:       sess.retry,
		MaxRetries:  s.opts.MaxRetries,
		ViewState:   sess.engine.ViewState(),
		LastUpdated: sess.engine.LastUpdated(),
		Generation:  sess.gen,
		Session:     sess.seq,
	}
	if sess.err != nil {
		d := *sess.err
		v.Error = &d
	}
	s.broadcast(v)
}

func (s *Scheduler) idleView(language string) View {
	return View{
		Mode:       ModeLive.String(),
		State:      StateIdle,
		Status:     transcript.StatusActive,
		Language:   language,
		Segments:   []transcript.Segment{},
		MaxRetries: s.opts.MaxRetries,
		ViewState:  reconcile.ViewLoading,
		Generation: s.gen,
		Session:    s.sessions,
	}
}

func (s *Scheduler) broadcast(v View) {
	for _, fn := range s.observers {
		fn(v)
	}

	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.last = v
	for _, ch := range s.subs {
		select {
		case ch <- v:
		default:
			// Drop the oldest queued view to make room for the latest.
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
}
