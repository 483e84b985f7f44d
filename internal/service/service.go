package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/yeenbean/pauljac3-mastodon-bot/internal/cache"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/config"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/content"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/metrics"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/model"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/platform"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/platform/bluesky"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/platform/mastodon"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/platform/twitter"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/poster"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/replier"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/scheduler"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/storage"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/storage/dynamo"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/storage/file"
	postgresstorage "github.com/yeenbean/pauljac3-mastodon-bot/internal/storage/postgres"
)

var (
	// ErrAuth is returned when an adapter cannot log in at startup
	ErrAuth = errors.New("service: platform authentication failed")
	// ErrCursor is returned when the cursor store cannot be read at startup
	ErrCursor = errors.New("service: cursor store unusable")
)

// Deps are the collaborators that talk to the outside world
type Deps struct {
	Store    storage.CursorStore
	Content  *content.Content
	Adapters []platform.Poster
	// Claims is optional
	Claims replier.Claimer
	// Closers are closed after Store on Close
	Closers []func() error
}

// Service is the application context. It owns every collaborator the
// commands and the API need.
type Service struct {
	cfg      *config.Config
	log      *zap.Logger
	deps     Deps
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	poster   *poster.Poster
	replier  *replier.Processor
	sched    *scheduler.Scheduler
}

// Open builds the full service from configuration: content files, cursor
// store, platform adapters and the optional reply cache. Content and the
// cursor are read before any adapter authenticates; any failure is returned.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Service, error) {
	c, err := content.Load(contentPaths(cfg))
	if err != nil {
		return nil, err
	}
	log.Info("content loaded", zap.Int("posts", c.Len()), zap.Int("replies", c.ReplyCount()))

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCursor, err)
	}
	cur, err := store.Load(ctx)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("%w: %w", ErrCursor, err)
	}
	log.Info("cursor loaded", zap.Int("index", cur.Index))
	d := Deps{Store: store, Content: c, Adapters: adapters(cfg, log)}
	if cfg.Redis.Addr != "" {
		r := cache.NewRedis(cfg.Redis.Addr, cfg.Redis.DB)
		if err := r.Ping(ctx); err != nil {
			log.Warn("redis ping failed, replies continue without the claim cache", zap.Error(err))
		}
		d.Claims = r
		d.Closers = append(d.Closers, r.Close)
	}

	s, err := Assemble(cfg, d, log)
	if err != nil {
		_ = s.closeDeps(d)
		return nil, err
	}
	if err := s.Authenticate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Assemble wires the service around already-built dependencies
func Assemble(cfg *config.Config, d Deps, log *zap.Logger) (*Service, error) {
	s := &Service{cfg: cfg, log: log, deps: d, registry: prometheus.NewRegistry()}
	s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.metrics = metrics.New(s.registry)

	var targets []replier.Target
	for _, a := range d.Adapters {
		n, ok := a.(platform.Notifier)
		if !ok {
			continue
		}
		pol, err := policyFor(cfg, a.Name())
		if err != nil {
			return s, err
		}
		targets = append(targets, replier.Target{Notifier: n, Policy: pol})
	}

	s.poster = poster.New(poster.Config{CallTimeout: cfg.Platform.CallTimeout}, d.Store, d.Content, d.Adapters, s.metrics, log)
	s.replier = replier.New(replier.Config{
		CallTimeout: cfg.Platform.CallTimeout,
		ClaimTTL:    cfg.Redis.ReplyTTL,
	}, targets, d.Content, d.Claims, s.metrics, log, rand.Intn)
	s.sched = scheduler.New(scheduler.Config{
		Enabled:          cfg.Scheduler.Enabled,
		Period:           cfg.Scheduler.Period,
		PostEveryMinutes: cfg.Scheduler.PostEveryMinutes,
		PostOnStart:      cfg.Scheduler.PostOnStart,
		StopTimeout:      cfg.Scheduler.StopTimeout,
	}, s.poster, s.replier, s.metrics, log)
	return s, nil
}

// Authenticate logs every adapter in
func (s *Service) Authenticate(ctx context.Context) error {
	for _, a := range s.deps.Adapters {
		res := platform.Call(ctx, a.Name(), platform.OpAuthenticate, s.cfg.Platform.CallTimeout, a.Authenticate)
		platform.Report(s.log, res)
		if !res.OK() {
			return fmt.Errorf("%w: %s: %w", ErrAuth, a.Name(), res.Err)
		}
	}
	return nil
}

// Registry returns the prometheus registry holding the service collectors
func (s *Service) Registry() *prometheus.Registry { return s.registry }

// Start starts the heartbeat
func (s *Service) Start(ctx context.Context) {
	s.log.Debug("Starting scheduler")
	s.sched.Start(ctx)
}

// Stop stops the heartbeat and waits for in-flight tasks
func (s *Service) Stop(reason error) {
	s.log.Debug("Stopping scheduler")
	s.sched.Stop(reason)
}

// SchedulerRunning reports whether the heartbeat is active
func (s *Service) SchedulerRunning() bool { return s.sched.Running() }

// PostNext posts the message under the cursor once
func (s *Service) PostNext(ctx context.Context) ([]platform.Result, error) {
	return s.poster.PostNext(ctx)
}

// ReplyOnce runs one reply pass over every platform. It reports false when
// another pass is already running.
func (s *Service) ReplyOnce(ctx context.Context) ([]replier.Summary, bool) {
	return s.replier.Process(ctx)
}

// ClearNotifications marks every platform's notifications seen
func (s *Service) ClearNotifications(ctx context.Context) error {
	return s.replier.MarkAllSeen(ctx)
}

// Diagnose classifies the unseen notifications of one platform. With reply
// set it answers them for real and also returns the pass summary.
func (s *Service) Diagnose(ctx context.Context, name string, reply bool) ([]replier.Decision, *replier.Summary, error) {
	decisions, err := s.replier.DryRun(ctx, name)
	if err != nil || !reply {
		return decisions, nil, err
	}
	sum, err := s.replier.ProcessPlatform(ctx, name)
	return decisions, &sum, err
}

// Cursor returns the persisted cursor
func (s *Service) Cursor(ctx context.Context) (model.Cursor, error) {
	return s.deps.Store.Load(ctx)
}

// PostCount returns the length of the post sequences
func (s *Service) PostCount() int { return s.deps.Content.Len() }

// Close releases the store and the cache
func (s *Service) Close() error {
	return s.closeDeps(s.deps)
}

func (s *Service) closeDeps(d Deps) error {
	var errs []error
	if d.Store != nil {
		errs = append(errs, d.Store.Close())
	}
	for _, c := range d.Closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func contentPaths(cfg *config.Config) content.Paths {
	p := content.Paths{
		Canonical: cfg.Content.Canonical,
		Platforms: map[string]string{},
		Replies:   cfg.Content.Replies,
	}
	if cfg.Mastodon.Enabled {
		p.Platforms[platform.Mastodon] = cfg.Content.Mastodon
	}
	if cfg.Bluesky.Enabled {
		p.Platforms[platform.Bluesky] = cfg.Content.Bluesky
	}
	if cfg.Twitter.Enabled {
		p.Platforms[platform.Twitter] = cfg.Content.Twitter
	}
	return p
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.CursorStore, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		if err := postgresstorage.Migrate(cfg.Storage.PostgresURL, log); err != nil {
			return nil, err
		}
		return postgresstorage.New(ctx, cfg.Storage.PostgresURL, cfg.Storage.PostgresMaxConns, log)
	case "dynamodb":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return dynamo.New(awsdynamodb.NewFromConfig(awsCfg), cfg.Storage.DynamoDBTable)
	default:
		return file.New(cfg.Storage.FilePath, log), nil
	}
}

func adapters(cfg *config.Config, log *zap.Logger) []platform.Poster {
	var out []platform.Poster
	if cfg.Mastodon.Enabled {
		out = append(out, mastodon.New(mastodon.Config{
			URL:         cfg.Mastodon.URL,
			AccessToken: cfg.Mastodon.AccessToken,
			Timeout:     cfg.Platform.CallTimeout,
		}, log))
	}
	if cfg.Bluesky.Enabled {
		out = append(out, bluesky.New(bluesky.Config{
			URL:        cfg.Bluesky.URL,
			Identifier: cfg.Bluesky.Identifier,
			Password:   cfg.Bluesky.Password,
			Timeout:    cfg.Platform.CallTimeout,
			SessionTTL: cfg.Bluesky.SessionTTL,
		}, log))
	}
	if cfg.Twitter.Enabled {
		out = append(out, twitter.New(twitter.Config{
			URL:               cfg.Twitter.URL,
			APIKey:            cfg.Twitter.APIKey,
			APISecret:         cfg.Twitter.APISecret,
			AccessToken:       cfg.Twitter.AccessToken,
			AccessTokenSecret: cfg.Twitter.AccessTokenSecret,
			Timeout:           cfg.Platform.CallTimeout,
		}, log))
	}
	return out
}

// policyFor reads a platform's reply policy from config. Unset values fall
// back to the platform default.
func policyFor(cfg *config.Config, name string) (replier.Policy, error) {
	pol := replier.DefaultPolicy(name)
	var mode string
	var kinds []string
	switch name {
	case platform.Mastodon:
		mode, kinds = cfg.Mastodon.ReplyMode, cfg.Mastodon.ReplyKinds
	case platform.Bluesky:
		mode, kinds = cfg.Bluesky.ReplyMode, cfg.Bluesky.ReplyKinds
	}
	if mode != "" {
		m, err := replier.ParseMode(mode)
		if err != nil {
			return pol, fmt.Errorf("%s: %w", name, err)
		}
		pol.Mode = m
	}
	if len(kinds) > 0 {
		pol.Kinds = nil
		for _, k := range kinds {
			kind := model.ParseKind(strings.TrimSpace(k))
			if kind == model.KindOther {
				return pol, fmt.Errorf("%s: unknown reply kind %q", name, k)
			}
			pol.Kinds = append(pol.Kinds, kind)
		}
	}
	return pol, nil
}
