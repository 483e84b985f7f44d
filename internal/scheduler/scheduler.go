package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yeenbean/pauljac3-mastodon-bot/internal/metrics"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/platform"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/replier"
)

// ErrStopped is the cancel cause used when Stop is called without one
var ErrStopped = errors.New("scheduler stopped")

// Poster is the poster interface for the scheduler
type Poster interface {
	// PostNext posts the message under the cursor and advances it
	PostNext(ctx context.Context) ([]platform.Result, error)
}

// Replier is the reply processor interface for the scheduler
type Replier interface {
	// Process runs one reply pass over every platform
	Process(ctx context.Context) ([]replier.Summary, bool)
}

// Config is the configuration for the scheduler
type Config struct {
	Enabled          bool
	Period           time.Duration
	PostEveryMinutes int
	PostOnStart      bool
	StopTimeout      time.Duration
}

// Scheduler is the heartbeat. Every period boundary it starts a reply pass,
// and on minutes divisible by PostEveryMinutes it also posts.
type Scheduler struct {
	cfg     Config
	poster  Poster
	replier Replier
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time

	mtx       sync.Mutex
	ctxCancel context.CancelCauseFunc
	running   bool
	done      chan struct{}
	tasks     sync.WaitGroup
}

// New creates a new scheduler
func New(cfg Config, poster Poster, r Replier, m *metrics.Metrics, log *zap.Logger) *Scheduler {
	if cfg.Period <= 0 {
		cfg.Period = time.Minute
	}
	if cfg.PostEveryMinutes <= 0 {
		cfg.PostEveryMinutes = 30
	}
	return &Scheduler{
		cfg:     cfg,
		poster:  poster,
		replier: r,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// Running reports whether the heartbeat loop is active
func (s *Scheduler) Running() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.running
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) {
	s.mtx.Lock()
	if s.running {
		s.mtx.Unlock()
		s.log.Info("scheduler already running")
		return
	}

	var sCtx context.Context
	sCtx, s.ctxCancel = context.WithCancelCause(ctx)
	s.running = true
	s.done = make(chan struct{})
	done := s.done
	s.mtx.Unlock()

	next := nextBoundary(s.now(), s.cfg.Period)
	s.log.Info("scheduler started",
		zap.Duration("period", s.cfg.Period),
		zap.Int("post_every_minutes", s.cfg.PostEveryMinutes),
		zap.Time("first_beat", next))

	go func() {
		defer close(done)
		timer := time.NewTimer(next.Sub(s.now()))
		defer timer.Stop()
		first := true
		for {
			select {
			case <-sCtx.Done():
				s.log.Info("scheduler context done", zap.Error(context.Cause(sCtx)))
				return
			case <-timer.C:
				s.heartbeat(sCtx, next, first && s.cfg.PostOnStart)
				first = false
				next = followingBoundary(next, s.now(), s.cfg.Period)
				timer.Reset(next.Sub(s.now()))
			}
		}
	}()
}

// Stop stops the scheduler and waits up to StopTimeout for in-flight tasks
func (s *Scheduler) Stop(reason error) {
	s.mtx.Lock()
	if !s.running {
		s.mtx.Unlock()
		s.log.Info("scheduler not running")
		return
	}
	if reason == nil {
		reason = ErrStopped
	}
	s.running = false
	s.ctxCancel(reason)
	done := s.done
	s.mtx.Unlock()

	<-done
	finished := make(chan struct{})
	go func() {
		s.tasks.Wait()
		close(finished)
	}()
	if s.cfg.StopTimeout <= 0 {
		<-finished
		return
	}
	select {
	case <-finished:
	case <-time.After(s.cfg.StopTimeout):
		s.log.Warn("scheduler: tasks still running after stop timeout", zap.Duration("timeout", s.cfg.StopTimeout))
	}
}

// heartbeat dispatches the work for the beat at t. Tasks run on their own
// goroutines and log their own failures.
func (s *Scheduler) heartbeat(ctx context.Context, t time.Time, forcePost bool) {
	log := s.log.With(zap.String("beat_id", uuid.NewString()), zap.Time("beat", t))
	s.metrics.IncHeartbeat()
	log.Debug("heartbeat")

	s.dispatch(func() { s.runReplies(ctx, log) })
	if forcePost || s.shouldPost(t) {
		s.dispatch(func() { s.runPost(ctx, log) })
	}
}

func (s *Scheduler) dispatch(fn func()) {
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		fn()
	}()
}

func (s *Scheduler) shouldPost(t time.Time) bool {
	return t.Minute()%s.cfg.PostEveryMinutes == 0
}

func (s *Scheduler) runReplies(ctx context.Context, log *zap.Logger) {
	summaries, ran := s.replier.Process(ctx)
	if !ran {
		return
	}
	for _, sum := range summaries {
		if sum.Err != nil {
			log.Warn("replies: pass failed", zap.String("platform", sum.Platform), zap.Error(sum.Err))
			continue
		}
		if sum.Replied > 0 || sum.Failed > 0 {
			log.Info("replies: pass done",
				zap.String("platform", sum.Platform),
				zap.Int("replied", sum.Replied),
				zap.Int("failed", sum.Failed),
				zap.Int("skipped", sum.Skipped))
		}
	}
}

func (s *Scheduler) runPost(ctx context.Context, log *zap.Logger) {
	log.Info("post: time to post")
	results, err := s.poster.PostNext(ctx)
	if err != nil {
		log.Error("post: tick failed", zap.Error(err))
		return
	}
	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	log.Info("post: done", zap.Int("platforms", len(results)), zap.Int("failed", failed))
}

// nextBoundary returns the first multiple of period strictly after now
func nextBoundary(now time.Time, period time.Duration) time.Time {
	return now.Truncate(period).Add(period)
}

// followingBoundary picks the beat after prev. A wall clock stepped back
// must not yield prev again.
func followingBoundary(prev, now time.Time, period time.Duration) time.Time {
	next := nextBoundary(now, period)
	if !next.After(prev) {
		return prev.Add(period)
	}
	return next
}
