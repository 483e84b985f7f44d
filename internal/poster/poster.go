package poster

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/yeenbean/pauljac3-mastodon-bot/internal/content"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/metrics"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/platform"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/storage"
)

const flightKey = "post-next"

// Config is the configuration for the poster
type Config struct {
	// CallTimeout bounds each adapter call
	CallTimeout time.Duration
}

// Poster publishes the message under the cursor to every platform and
// advances the cursor
type Poster struct {
	cfg      Config
	store    storage.CursorStore
	content  *content.Content
	adapters []platform.Poster
	metrics  *metrics.Metrics
	log      *zap.Logger

	flight singleflight.Group
}

// New creates a new poster
func New(cfg Config, store storage.CursorStore, c *content.Content, adapters []platform.Poster, m *metrics.Metrics, log *zap.Logger) *Poster {
	return &Poster{
		cfg:      cfg,
		store:    store,
		content:  c,
		adapters: adapters,
		metrics:  m,
		log:      log,
	}
}

// PostNext posts the next message. Only one call runs at a time; a call
// made while another is in flight waits for it and shares its outcome
// instead of posting again.
func (p *Poster) PostNext(ctx context.Context) ([]platform.Result, error) {
	v, err, shared := p.flight.Do(flightKey, func() (any, error) {
		return p.postNext(ctx)
	})
	if shared {
		p.log.Debug("postNext: joined in-flight post")
	}
	results, _ := v.([]platform.Result)
	return results, err
}

func (p *Poster) postNext(ctx context.Context) ([]platform.Result, error) {
	cur, err := p.store.Load(ctx)
	if err != nil {
		p.log.Error("postNext: load cursor", zap.Error(err))
		return nil, fmt.Errorf("load cursor: %w", err)
	}

	n := p.content.Len()
	index := cur.Normalize(n)
	if index != cur.Index {
		p.log.Debug("postNext: index was out of range so it was reset", zap.Int("stored", cur.Index), zap.Int("len", n))
	}

	p.log.Debug("postNext: posting", zap.Int("index", index))
	results := p.fanOut(ctx, index)

	// The cursor advances whatever happened above: a missed post is not retried.
	next := cur.Advance(index, n)
	if err := p.store.Save(context.WithoutCancel(ctx), next); err != nil {
		p.log.Error("postNext: save cursor", zap.Int("index", next.Index), zap.Error(err))
		return results, fmt.Errorf("save cursor: %w", err)
	}
	p.metrics.SetCursor(next.Index)
	if next.Index == 0 {
		p.log.Debug("postNext: index reached limit, posts will start from the top")
	}
	return results, nil
}

// fanOut posts to every adapter concurrently. A failing platform never
// stops the others.
func (p *Poster) fanOut(ctx context.Context, index int) []platform.Result {
	results := make([]platform.Result, len(p.adapters))
	var g errgroup.Group
	for i, a := range p.adapters {
		i, a := i, a
		g.Go(func() error {
			text := p.content.Message(a.Name(), index)
			res := platform.Call(ctx, a.Name(), platform.OpPost, p.cfg.CallTimeout, func(ctx context.Context) error {
				return a.PostMessage(ctx, text)
			})
			platform.Report(p.log, res, zap.Int("index", index), zap.String("text", text))
			p.metrics.IncPost(res.Platform, res.Status())
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}
