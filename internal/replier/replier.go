package replier

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yeenbean/pauljac3-mastodon-bot/internal/content"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/metrics"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/model"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/platform"
)

// ErrUnknownPlatform is returned when no notifier has the requested name
var ErrUnknownPlatform = errors.New("replier: unknown platform")

// Claimer remembers answered notifications across passes
type Claimer interface {
	ClaimReply(ctx context.Context, platform, notificationID string, ttl time.Duration) (bool, error)
}

// Target is one platform's notifier and its policy
type Target struct {
	Notifier platform.Notifier
	Policy   Policy
}

// Config is the configuration for the processor
type Config struct {
	CallTimeout time.Duration
	ClaimTTL    time.Duration
}

// Summary describes one platform pass
type Summary struct {
	Platform string
	Unseen   int
	Fetched  int
	Replied  int
	Failed   int
	Skipped  int
	Err      error
}

// Processor answers mentions with canned replies
type Processor struct {
	cfg     Config
	targets []Target
	content *content.Content
	claims  Claimer
	metrics *metrics.Metrics
	log     *zap.Logger
	pick    func(n int) int

	running atomic.Bool
}

// New creates a new processor. claims may be nil.
func New(cfg Config, targets []Target, c *content.Content, claims Claimer, m *metrics.Metrics, log *zap.Logger, pick func(n int) int) *Processor {
	return &Processor{
		cfg:     cfg,
		targets: targets,
		content: c,
		claims:  claims,
		metrics: m,
		log:     log,
		pick:    pick,
	}
}

// Process runs one pass over every platform in parallel. It returns
// false without doing anything when the previous pass is still running.
func (p *Processor) Process(ctx context.Context) ([]Summary, bool) {
	if !p.running.CompareAndSwap(false, true) {
		p.log.Warn("replies: previous pass still running, skipping")
		return nil, false
	}
	defer p.running.Store(false)

	out := make([]Summary, len(p.targets))
	var g errgroup.Group
	for i, t := range p.targets {
		i, t := i, t
		g.Go(func() error {
			out[i] = p.process(ctx, t)
			return nil
		})
	}
	_ = g.Wait()
	return out, true
}

// ProcessPlatform runs one pass for the named platform
func (p *Processor) ProcessPlatform(ctx context.Context, name string) (Summary, error) {
	t, err := p.target(name)
	if err != nil {
		return Summary{}, err
	}
	s := p.process(ctx, t)
	return s, s.Err
}

// DryRun lists the unseen notifications of one platform and classifies
// them without marking anything seen or replying
func (p *Processor) DryRun(ctx context.Context, name string) ([]Decision, error) {
	t, err := p.target(name)
	if err != nil {
		return nil, err
	}
	count, res := p.unseenCount(ctx, t.Notifier)
	if !res.OK() {
		return nil, res.Err
	}
	p.log.Debug("replies: notif count", zap.String("platform", name), zap.Int("count", count))
	if count <= 0 {
		return nil, nil
	}
	list, res := p.list(ctx, t.Notifier, count)
	if !res.OK() {
		return nil, res.Err
	}
	return t.Policy.Classify(list), nil
}

// MarkAllSeen marks every platform's notifications seen
func (p *Processor) MarkAllSeen(ctx context.Context) error {
	var errs []error
	for _, t := range p.targets {
		res := p.markSeen(ctx, t.Notifier)
		platform.Report(p.log, res)
		if !res.OK() {
			errs = append(errs, res.Err)
		}
	}
	return errors.Join(errs...)
}

func (p *Processor) target(name string) (Target, error) {
	for _, t := range p.targets {
		if t.Notifier.Name() == name {
			return t, nil
		}
	}
	return Target{}, fmt.Errorf("%w: %s", ErrUnknownPlatform, name)
}

// process answers one platform. Notifications are marked seen before the
// first reply, so a crash part-way never answers the same one twice.
func (p *Processor) process(ctx context.Context, t Target) Summary {
	n := t.Notifier
	s := Summary{Platform: n.Name()}
	log := p.log.With(zap.String("platform", s.Platform))

	count, res := p.unseenCount(ctx, n)
	if !res.OK() {
		log.Warn("replies: could not retrieve the unread notification count", zap.Error(res.Err))
		s.Err = res.Err
		return s
	}
	s.Unseen = count
	log.Debug("replies: notif count", zap.Int("count", count))
	if count <= 0 {
		return s
	}

	list, res := p.list(ctx, n, count)
	if !res.OK() {
		platform.Report(log, res)
		s.Err = res.Err
		return s
	}
	s.Fetched = len(list)
	log.Debug("replies: notifs scraped", zap.Int("count", len(list)))

	if res := p.markSeen(ctx, n); !res.OK() {
		platform.Report(log, res)
		s.Err = res.Err
		return s
	}

	selected := t.Policy.Select(list)
	s.Skipped = len(list) - len(selected)
	for _, note := range selected {
		if ctx.Err() != nil {
			log.Info("replies: context done", zap.Error(ctx.Err()))
			break
		}
		if !p.claim(ctx, log, s.Platform, note) {
			s.Skipped++
			continue
		}
		text := p.content.Reply(p.pick)
		log.Debug("replies: replying", zap.String("author", note.Author), zap.String("notification", note.ID))
		res := platform.Call(ctx, s.Platform, platform.OpReply, p.cfg.CallTimeout, func(ctx context.Context) error {
			return n.ReplyTo(ctx, note, text)
		})
		platform.Report(log, res, zap.String("author", note.Author), zap.String("text", text))
		p.metrics.IncReply(s.Platform, res.Status())
		if res.OK() {
			s.Replied++
		} else {
			s.Failed++
		}
	}
	return s
}

// claim returns false when the notification was already answered. Cache
// failures do not block the reply.
func (p *Processor) claim(ctx context.Context, log *zap.Logger, name string, n model.Notification) bool {
	if p.claims == nil || n.ID == "" {
		return true
	}
	ok, err := p.claims.ClaimReply(ctx, name, n.ID, p.cfg.ClaimTTL)
	if err != nil {
		log.Warn("replies: claim cache error", zap.String("notification", n.ID), zap.Error(err))
		return true
	}
	if !ok {
		log.Info("replies: already answered, skipping", zap.String("notification", n.ID))
	}
	return ok
}

func (p *Processor) unseenCount(ctx context.Context, n platform.Notifier) (int, platform.Result) {
	var count int
	res := platform.Call(ctx, n.Name(), platform.OpUnseenCount, p.cfg.CallTimeout, func(ctx context.Context) error {
		var err error
		count, err = n.UnseenCount(ctx)
		return err
	})
	return count, res
}

func (p *Processor) list(ctx context.Context, n platform.Notifier, limit int) ([]model.Notification, platform.Result) {
	var list []model.Notification
	res := platform.Call(ctx, n.Name(), platform.OpList, p.cfg.CallTimeout, func(ctx context.Context) error {
		var err error
		list, err = n.ListNotifications(ctx, limit)
		return err
	})
	return list, res
}

func (p *Processor) markSeen(ctx context.Context, n platform.Notifier) platform.Result {
	return platform.Call(ctx, n.Name(), platform.OpMarkSeen, p.cfg.CallTimeout, n.MarkAllSeen)
}
