package replier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yeenbean/pauljac3-mastodon-bot/internal/content"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/model"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/platform"
)

// fakeNotifier records every call in order
type fakeNotifier struct {
	name     string
	count    int
	countErr error
	list     []model.Notification
	seenErr  error
	replyErr map[string]error
	// crashAfter stops the process (panics) after n replies
	crashAfter int

	mtx     sync.Mutex
	calls   []string
	replied []string
}

func (f *fakeNotifier) record(call string) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) UnseenCount(ctx context.Context) (int, error) {
	f.record("count")
	return f.count, f.countErr
}

func (f *fakeNotifier) ListNotifications(ctx context.Context, limit int) ([]model.Notification, error) {
	f.record("list")
	if limit < len(f.list) {
		return f.list[:limit], nil
	}
	return f.list, nil
}

func (f *fakeNotifier) MarkAllSeen(ctx context.Context) error {
	f.record("seen")
	return f.seenErr
}

func (f *fakeNotifier) ReplyTo(ctx context.Context, n model.Notification, text string) error {
	f.record("reply:" + n.ID)
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if f.crashAfter > 0 && len(f.replied) >= f.crashAfter {
		panic("process crashed")
	}
	if err := f.replyErr[n.ID]; err != nil {
		return err
	}
	f.replied = append(f.replied, n.ID)
	return nil
}

func (f *fakeNotifier) snapshot() (calls, replied []string) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return append([]string(nil), f.calls...), append([]string(nil), f.replied...)
}

type fakeClaims struct {
	mtx  sync.Mutex
	seen map[string]bool
	err  error
}

func (f *fakeClaims) ClaimReply(ctx context.Context, platform, id string, ttl time.Duration) (bool, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.seen[platform+id] {
		return false, nil
	}
	f.seen[platform+id] = true
	return true, nil
}

func note(id string, kind model.Kind) model.Notification {
	return model.Notification{ID: id, Kind: kind, RawReason: string(kind), Author: "user" + id, StatusID: "s" + id}
}

func newProcessor(t *testing.T, claims Claimer, targets ...Target) *Processor {
	t.Helper()
	c, err := content.New([]string{"p"}, nil, []string{"r0", "r1", "r2"})
	require.NoError(t, err)
	return New(Config{CallTimeout: time.Second}, targets, c, claims, nil, zap.NewNop(), func(n int) int { return n - 1 })
}

func TestProcess_ZeroUnseenMakesNoOtherCalls(t *testing.T) {
	n := &fakeNotifier{name: platform.Mastodon, count: 0, list: []model.Notification{note("1", model.KindMention)}}
	p := newProcessor(t, nil, Target{Notifier: n, Policy: DefaultPolicy(platform.Mastodon)})

	out, ran := p.Process(context.Background())
	require.True(t, ran)
	require.Equal(t, 0, out[0].Replied)
	calls, _ := n.snapshot()
	require.Equal(t, []string{"count"}, calls)
}

func TestProcess_CountErrorStopsPlatformOnly(t *testing.T) {
	bad := &fakeNotifier{name: platform.Mastodon, countErr: errors.New("401")}
	good := &fakeNotifier{name: platform.Bluesky, count: 1, list: []model.Notification{note("b1", model.KindReply)}}
	p := newProcessor(t, nil,
		Target{Notifier: bad, Policy: DefaultPolicy(platform.Mastodon)},
		Target{Notifier: good, Policy: DefaultPolicy(platform.Bluesky)},
	)

	out, _ := p.Process(context.Background())
	require.Error(t, out[0].Err)
	badCalls, _ := bad.snapshot()
	require.Equal(t, []string{"count"}, badCalls)
	_, replied := good.snapshot()
	require.Equal(t, []string{"b1"}, replied)
}

func TestProcess_ContiguousPrefixStopsAtFirstNonMention(t *testing.T) {
	n := &fakeNotifier{name: platform.Mastodon, count: 3, list: []model.Notification{
		note("1", model.KindMention),
		note("2", model.KindMention),
		{ID: "3", Kind: model.KindOther, RawReason: "like"},
	}}
	p := newProcessor(t, nil, Target{Notifier: n, Policy: Policy{Mode: ModeContiguousPrefix, Kinds: []model.Kind{model.KindMention}}})

	s, err := p.ProcessPlatform(context.Background(), platform.Mastodon)
	require.NoError(t, err)
	calls, replied := n.snapshot()
	require.Equal(t, []string{"1", "2"}, replied)
	require.Equal(t, []string{"count", "list", "seen", "reply:1", "reply:2"}, calls)
	require.Equal(t, 2, s.Replied)
	require.Equal(t, 1, s.Skipped)
}

func TestProcess_ContiguousPrefixIgnoresLaterMentions(t *testing.T) {
	n := &fakeNotifier{name: platform.Mastodon, count: 3, list: []model.Notification{
		note("1", model.KindMention),
		{ID: "2", Kind: model.KindOther, RawReason: "favourite"},
		note("3", model.KindMention),
	}}
	p := newProcessor(t, nil, Target{Notifier: n, Policy: DefaultPolicy(platform.Mastodon)})

	_, err := p.ProcessPlatform(context.Background(), platform.Mastodon)
	require.NoError(t, err)
	_, replied := n.snapshot()
	require.Equal(t, []string{"1"}, replied)
}

func TestProcess_FilterAllContinuesPastOthers(t *testing.T) {
	n := &fakeNotifier{name: platform.Bluesky, count: 4, list: []model.Notification{
		note("1", model.KindReply),
		{ID: "2", Kind: model.KindOther, RawReason: "like"},
		note("3", model.KindMention),
		{ID: "4", Kind: model.KindOther, RawReason: "repost"},
	}}
	p := newProcessor(t, nil, Target{Notifier: n, Policy: DefaultPolicy(platform.Bluesky)})

	_, err := p.ProcessPlatform(context.Background(), platform.Bluesky)
	require.NoError(t, err)
	_, replied := n.snapshot()
	require.Equal(t, []string{"1", "3"}, replied)
}

func TestProcess_ReplyFailureContinues(t *testing.T) {
	n := &fakeNotifier{
		name:     platform.Bluesky,
		count:    2,
		list:     []model.Notification{note("1", model.KindReply), note("2", model.KindReply)},
		replyErr: map[string]error{"1": errors.New("rate limited")},
	}
	p := newProcessor(t, nil, Target{Notifier: n, Policy: DefaultPolicy(platform.Bluesky)})

	s, err := p.ProcessPlatform(context.Background(), platform.Bluesky)
	require.NoError(t, err)
	require.Equal(t, 1, s.Failed)
	require.Equal(t, 1, s.Replied)
	_, replied := n.snapshot()
	require.Equal(t, []string{"2"}, replied)
}

func TestProcess_MarkSeenFailureSendsNoReplies(t *testing.T) {
	n := &fakeNotifier{name: platform.Mastodon, count: 1, list: []model.Notification{note("1", model.KindMention)}, seenErr: errors.New("500")}
	p := newProcessor(t, nil, Target{Notifier: n, Policy: DefaultPolicy(platform.Mastodon)})

	_, err := p.ProcessPlatform(context.Background(), platform.Mastodon)
	require.Error(t, err)
	_, replied := n.snapshot()
	require.Empty(t, replied)
}

func TestProcess_CrashAfterSeenDoesNotReplyAgain(t *testing.T) {
	n := &fakeNotifier{
		name:       platform.Bluesky,
		count:      3,
		list:       []model.Notification{note("1", model.KindReply), note("2", model.KindReply), note("3", model.KindReply)},
		crashAfter: 1,
	}
	p := newProcessor(t, nil, Target{Notifier: n, Policy: DefaultPolicy(platform.Bluesky)})
	_, _ = p.ProcessPlatform(context.Background(), platform.Bluesky)

	calls, replied := n.snapshot()
	require.Equal(t, []string{"1"}, replied)
	require.Equal(t, "seen", calls[2], "notifications are marked seen before any reply")

	// next pass: the platform reports nothing unseen any more
	n.mtx.Lock()
	n.count = 0
	n.calls = nil
	n.mtx.Unlock()
	_, _ = p.ProcessPlatform(context.Background(), platform.Bluesky)
	calls, replied = n.snapshot()
	require.Equal(t, []string{"count"}, calls)
	require.Equal(t, []string{"1"}, replied, "remaining notifications are never retried")
}

func TestProcess_PicksReplyFromPool(t *testing.T) {
	var got string
	n := &replyCapture{fakeNotifier: fakeNotifier{name: platform.Bluesky, count: 1, list: []model.Notification{note("1", model.KindReply)}}, text: &got}
	p := newProcessor(t, nil, Target{Notifier: n, Policy: DefaultPolicy(platform.Bluesky)})
	_, err := p.ProcessPlatform(context.Background(), platform.Bluesky)
	require.NoError(t, err)
	require.Equal(t, "r2", got)
}

type replyCapture struct {
	fakeNotifier
	text *string
}

func (r *replyCapture) ReplyTo(ctx context.Context, n model.Notification, text string) error {
	*r.text = text
	return nil
}

func TestProcess_ClaimsSkipAnsweredNotifications(t *testing.T) {
	claims := &fakeClaims{seen: map[string]bool{platform.Bluesky + "1": true}}
	n := &fakeNotifier{name: platform.Bluesky, count: 2, list: []model.Notification{note("1", model.KindReply), note("2", model.KindReply)}}
	p := newProcessor(t, claims, Target{Notifier: n, Policy: DefaultPolicy(platform.Bluesky)})

	s, err := p.ProcessPlatform(context.Background(), platform.Bluesky)
	require.NoError(t, err)
	_, replied := n.snapshot()
	require.Equal(t, []string{"2"}, replied)
	require.Equal(t, 1, s.Skipped)
}

func TestProcess_ClaimErrorStillReplies(t *testing.T) {
	claims := &fakeClaims{err: errors.New("redis down")}
	n := &fakeNotifier{name: platform.Bluesky, count: 1, list: []model.Notification{note("1", model.KindReply)}}
	p := newProcessor(t, claims, Target{Notifier: n, Policy: DefaultPolicy(platform.Bluesky)})

	_, err := p.ProcessPlatform(context.Background(), platform.Bluesky)
	require.NoError(t, err)
	_, replied := n.snapshot()
	require.Equal(t, []string{"1"}, replied)
}

func TestProcessPlatform_Unknown(t *testing.T) {
	p := newProcessor(t, nil)
	_, err := p.ProcessPlatform(context.Background(), "myspace")
	require.ErrorIs(t, err, ErrUnknownPlatform)
}

func TestDryRun_ClassifiesWithoutSideEffects(t *testing.T) {
	n := &fakeNotifier{name: platform.Mastodon, count: 2, list: []model.Notification{
		note("1", model.KindMention),
		{ID: "2", Kind: model.KindOther, RawReason: "follow"},
	}}
	p := newProcessor(t, nil, Target{Notifier: n, Policy: DefaultPolicy(platform.Mastodon)})

	decisions, err := p.DryRun(context.Background(), platform.Mastodon)
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	require.True(t, decisions[0].Answer)
	require.False(t, decisions[1].Answer)
	calls, _ := n.snapshot()
	require.Equal(t, []string{"count", "list"}, calls)
}

func TestMarkAllSeen_AllPlatforms(t *testing.T) {
	a := &fakeNotifier{name: platform.Mastodon}
	b := &fakeNotifier{name: platform.Bluesky, seenErr: errors.New("x")}
	p := newProcessor(t, nil, Target{Notifier: a}, Target{Notifier: b})

	require.Error(t, p.MarkAllSeen(context.Background()))
	ac, _ := a.snapshot()
	bc, _ := b.snapshot()
	require.Equal(t, []string{"seen"}, ac)
	require.Equal(t, []string{"seen"}, bc)
}

func TestProcess_SkipsWhenPreviousPassRunning(t *testing.T) {
	p := newProcessor(t, nil)
	p.running.Store(true)
	_, ran := p.Process(context.Background())
	require.False(t, ran)
}
