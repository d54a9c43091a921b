// Package autosave keeps a persisted resume eventually consistent with the
// draft being edited.
//
// A Reconciler owns one editing session. Every Update restarts a trailing
// debounce window; when the window elapses the live snapshot is compared
// with the last persisted one and, if they differ and nothing is in flight,
// persisted. Failures park the session in Failed until the user retries or
// edits again. All session state lives on a single goroutine, so callers may
// use a Reconciler from any goroutine.
package autosave

import (
	"context"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/folio/internal/logging"
	"github.com/fyrsmithlabs/folio/internal/metrics"
	"github.com/fyrsmithlabs/folio/internal/resume"
)

// DefaultDebounce is the quiet period after the last edit before evaluation.
const DefaultDebounce = 1500 * time.Millisecond

// State is the reconciler state.
type State int

const (
	// Idle means no known differences and nothing in flight.
	Idle State = iota
	// PendingChange means an edit is waiting for the debounce window.
	PendingChange
	// Saving means a persist call is in flight.
	Saving
	// Failed means the last persist errored and its changes are unreconciled.
	Failed
)

func (s State) String() string {
	switch s {
	case PendingChange:
		return "pending_change"
	case Saving:
		return "saving"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// Status is a point-in-time view of a session.
type Status struct {
	State             State
	Saving            bool
	HasUnsavedChanges bool
	Err               error
}

// Persisted is what the persistence side reports back.
type Persisted struct {
	ID       string
	PhotoURL string
}

// Persister writes a snapshot. A snapshot without ID creates a resume.
type Persister interface {
	Persist(ctx context.Context, s resume.Snapshot) (Persisted, error)
}

// Notifier surfaces save failures to the user. Methods run on the session
// goroutine and must not block.
type Notifier interface {
	// SaveFailed is called once per failed persist. retry re-attempts it.
	SaveFailed(err error, retry func())
	// SaveRecovered is called when a persist succeeds after a failure.
	SaveRecovered()
}

type nopNotifier struct{}

func (nopNotifier) SaveFailed(error, func()) {}
func (nopNotifier) SaveRecovered()           {}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithDebounce sets the quiet period. Non-positive values are ignored.
func WithDebounce(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.debounce = d
		}
	}
}

// WithClock sets the clock driving the debounce timer.
func WithClock(c clock.Clock) Option {
	return func(r *Reconciler) { r.clock = c }
}

// WithNotifier sets the failure notifier.
func WithNotifier(n Notifier) Option {
	return func(r *Reconciler) { r.notifier = n }
}

// WithObserver registers fn to receive every status change.
// fn runs on the session goroutine and must not call back into the
// Reconciler synchronously.
func WithObserver(fn func(Status)) Option {
	return func(r *Reconciler) { r.observers = append(r.observers, fn) }
}

// WithLogger sets the session logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// WithContext sets the context persist calls derive from. Its values are
// kept but its cancellation is not.
func WithContext(ctx context.Context) Option {
	return func(r *Reconciler) { r.baseCtx = ctx }
}

type reqKind int

const (
	reqUpdate reqKind = iota
	reqRetry
	reqStatus
)

type request struct {
	kind  reqKind
	snap  resume.Snapshot
	reply chan reply
}

type reply struct {
	status     Status
	live, last resume.Snapshot
}

type result struct {
	sent resume.Snapshot
	out  Persisted
	err  error
}

// Reconciler runs one autosave session.
type Reconciler struct {
	persister Persister
	notifier  Notifier
	clock     clock.Clock
	debounce  time.Duration
	observers []func(Status)
	logger    *logging.Logger
	metrics   *metrics.Metrics
	baseCtx   context.Context

	reqs    chan request
	results chan result
	done      chan struct{}
	closeOnce sync.Once
	stopped   chan struct{}
	final     reply

	// Owned by the loop goroutine.
	live, last        resume.Snapshot
	state             State
	err               error
	timer             *clock.Timer
	timerC            <-chan time.Time
	saving            bool
	evaluateAfterSave bool
	recovering        bool
	reported          Status
	// photoURL is the stored URL of the photo in last, as reported by the
	// persister.
	photoURL string
}

// New starts a session hydrated with initial (the zero Snapshot for a new
// draft). The last persisted snapshot starts as a deep copy of initial.
func New(p Persister, initial resume.Snapshot, opts ...Option) *Reconciler {
	r := &Reconciler{
		persister: p,
		notifier:  nopNotifier{},
		clock:     clock.New(),
		debounce:  DefaultDebounce,
		logger:    logging.NewNop(),
		metrics:   metrics.New(),
		baseCtx:   context.Background(),
		reqs:      make(chan request),
		results:   make(chan result, 1),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
		live:      initial.Clone(),
		last:      initial.Clone(),
	}
	if initial.Photo.Kind == resume.PhotoRemote {
		r.photoURL = initial.Photo.URL
	}
	for _, opt := range opts {
		opt(r)
	}
	r.reported = r.status()
	go r.loop()
	return r
}

// Update replaces the live snapshot and restarts the debounce window. Once
// the session has an ID it is kept regardless of s.ID.
func (r *Reconciler) Update(s resume.Snapshot) {
	r.send(reqUpdate, s.Clone())
}

// Retry re-attempts a failed persist immediately. It is a no-op unless the
// session is Failed.
func (r *Reconciler) Retry() {
	r.send(reqRetry, resume.Snapshot{})
}

// Status returns the current session status.
func (r *Reconciler) Status() Status {
	return r.snapshot().status
}

// Live returns a copy of the live snapshot. After Close it returns the
// snapshot the session ended with.
func (r *Reconciler) Live() resume.Snapshot {
	return r.snapshot().live
}

// LastPersisted returns a copy of the last persisted snapshot. After Close it
// returns the one the session ended with.
func (r *Reconciler) LastPersisted() resume.Snapshot {
	return r.snapshot().last
}

func (r *Reconciler) snapshot() reply {
	rep, ok := r.send(reqStatus, resume.Snapshot{})
	if !ok {
		return reply{status: r.final.status, live: r.final.live.Clone(), last: r.final.last.Clone()}
	}
	return rep
}

// Close ends the session. An in-flight persist keeps running and its result
// is discarded.
func (r *Reconciler) Close() {
	r.closeOnce.Do(func() { close(r.done) })
	<-r.stopped
}

func (r *Reconciler) send(kind reqKind, s resume.Snapshot) (reply, bool) {
	req := request{kind: kind, snap: s, reply: make(chan reply, 1)}
	select {
	case r.reqs <- req:
		return <-req.reply, true
	case <-r.stopped:
		return reply{}, false
	}
}

func (r *Reconciler) loop() {
	defer close(r.stopped)
	for {
		select {
		case <-r.done:
			r.stopTimer()
			r.final = r.reply()
			return
		case req := <-r.reqs:
			r.handle(req)
			r.notifyObservers()
			req.reply <- r.reply()
			continue
		case <-r.timerC:
			r.timer, r.timerC = nil, nil
			r.evaluate()
		case res := <-r.results:
			r.finish(res)
		}
		r.notifyObservers()
	}
}

func (r *Reconciler) handle(req request) {
	switch req.kind {
	case reqUpdate:
		s := req.snap
		if r.live.ID != "" {
			s.ID = r.live.ID
		}
		r.live = s
		if r.state == Failed {
			r.err = nil
		}
		if !r.saving {
			r.state = PendingChange
		}
		r.resetTimer()
	case reqRetry:
		if r.state == Failed {
			r.err = nil
			r.recovering = true
			r.persist()
		}
	}
}

// evaluate runs when the debounce window elapses.
func (r *Reconciler) evaluate() {
	if r.saving {
		r.evaluateAfterSave = true
		return
	}
	if r.state == Failed {
		return
	}
	if resume.Equal(r.live, r.last) {
		r.state = Idle
		return
	}
	r.persist()
}

func (r *Reconciler) persist() {
	sent := r.live.Clone()
	arg := sent.Clone()
	// A pending photo that was already uploaded goes out as a reference to
	// the stored blob so the persister keeps it instead of re-uploading.
	if arg.Photo.Kind == resume.PhotoPending && r.photoURL != "" && arg.Photo.Equal(r.last.Photo) {
		arg.Photo = resume.RemotePhoto(r.photoURL)
	}
	r.saving = true
	r.state = Saving

	ctx := context.WithoutCancel(r.baseCtx)
	r.logger.Debug(ctx, "autosave persisting", zap.String("resume_id", sent.ID))
	go func() {
		out, err := r.persister.Persist(ctx, arg)
		// Buffered for the single in-flight call; dropped if the session closed.
		r.results <- result{sent: sent, out: out, err: err}
	}()
}

func (r *Reconciler) finish(res result) {
	r.saving = false
	r.metrics.AutosaveTotal.WithLabelValues(metrics.Outcome(res.err)).Inc()

	if res.err != nil {
		r.state = Failed
		r.err = res.err
		r.recovering = false
		r.evaluateAfterSave = false
		r.stopTimer()
		r.logger.Warn(r.baseCtx, "autosave failed", zap.Error(res.err))
		r.notifier.SaveFailed(res.err, func() { go r.Retry() })
		return
	}

	r.last = res.sent
	r.photoURL = res.out.PhotoURL
	if id := res.out.ID; id != "" {
		if r.last.ID == "" {
			r.last.ID = id
		}
		if r.live.ID == "" {
			r.live.ID = id
		} else if r.live.ID != id {
			r.logger.Warn(r.baseCtx, "autosave ignored reassigned id",
				zap.String("resume_id", r.live.ID), zap.String("returned_id", id))
		}
	}
	if r.recovering {
		r.recovering = false
		r.notifier.SaveRecovered()
	}

	switch {
	case r.evaluateAfterSave:
		r.evaluateAfterSave = false
		r.state = PendingChange
		r.evaluate()
	case r.timerC != nil:
		r.state = PendingChange
	default:
		r.state = Idle
	}
}

func (r *Reconciler) resetTimer() {
	r.stopTimer()
	r.timer = r.clock.Timer(r.debounce)
	r.timerC = r.timer.C
}

func (r *Reconciler) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer, r.timerC = nil, nil
}

func (r *Reconciler) reply() reply {
	return reply{status: r.status(), live: r.live.Clone(), last: r.last.Clone()}
}

func (r *Reconciler) status() Status {
	return Status{
		State:             r.state,
		Saving:            r.saving,
		HasUnsavedChanges: !resume.Equal(r.live, r.last),
		Err:               r.err,
	}
}

// same compares statuses without comparing error values, which may not be
// comparable.
func (s Status) same(o Status) bool {
	return s.State == o.State &&
		s.Saving == o.Saving &&
		s.HasUnsavedChanges == o.HasUnsavedChanges &&
		(s.Err == nil) == (o.Err == nil)
}

func (r *Reconciler) notifyObservers() {
	st := r.status()
	if st.same(r.reported) {
		return
	}
	r.reported = st
	for _, fn := range r.observers {
		fn(st)
	}
}
