package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/yeenbean/pauljac3-mastodon-bot/internal/model"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/replier"
)

type fakeCtl struct {
	started, stopped bool
	cursor           model.Cursor
	cursorErr        error
	busy             bool
	sums             []replier.Summary
}

func (f *fakeCtl) Start(ctx context.Context) { f.started = true }
func (f *fakeCtl) Stop(reason error)         { f.stopped = true }
func (f *fakeCtl) SchedulerRunning() bool    { return f.started && !f.stopped }
func (f *fakeCtl) PostCount() int            { return 48 }
func (f *fakeCtl) Cursor(ctx context.Context) (model.Cursor, error) {
	return f.cursor, f.cursorErr
}
func (f *fakeCtl) ReplyOnce(ctx context.Context) ([]replier.Summary, bool) {
	return f.sums, !f.busy
}

func newTestServer(c Controller) *Server {
	cfg := ServerCfg{Port: 0, ReadTimeout: time.Second, WriteTimeout: time.Second, IdleTimeout: time.Second}
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "crossposter_test_total", Help: "test"}))
	return NewServer(cfg, c, reg, zap.NewNop())
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func TestHealthz(t *testing.T) {
	s := newTestServer(&fakeCtl{})
	rr := serve(s, http.MethodGet, "/healthz")
	if rr.Code != 200 || strings.TrimSpace(rr.Body.String()) != "ok" {
		t.Fatalf("unexpected: %d %s", rr.Code, rr.Body.String())
	}
}

func TestGetCursor(t *testing.T) {
	s := newTestServer(&fakeCtl{cursor: model.Cursor{Index: 7, LastReplied: map[string]string{"mastodon": "x"}}})
	rr := serve(s, http.MethodGet, "/api/v1/cursor")
	if rr.Code != 200 {
		t.Fatalf("unexpected code: %d", rr.Code)
	}
	var out cursorResp
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if out.Index != 7 || out.PostCount != 48 || out.Scheduler != "stopped" || out.LastReplied["mastodon"] != "x" {
		t.Fatalf("unexpected body: %#v", out)
	}
}

func TestGetCursor_StoreError(t *testing.T) {
	s := newTestServer(&fakeCtl{cursorErr: errors.New("corrupt")})
	rr := serve(s, http.MethodGet, "/api/v1/cursor")
	if rr.Code != 500 {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestSchedulerControls(t *testing.T) {
	fc := &fakeCtl{}
	s := newTestServer(fc)
	rr := serve(s, http.MethodPost, "/api/v1/scheduler/start")
	if rr.Code != 200 || !fc.started {
		t.Fatalf("start failed")
	}
	rr = serve(s, http.MethodPost, "/api/v1/scheduler/stop")
	if rr.Code != 200 || !fc.stopped {
		t.Fatalf("stop failed")
	}
}

func TestSchedulerControls_WrongMethod(t *testing.T) {
	fc := &fakeCtl{}
	s := newTestServer(fc)
	rr := serve(s, http.MethodGet, "/api/v1/scheduler/start")
	if rr.Code != http.StatusMethodNotAllowed || fc.started {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestRunReplies(t *testing.T) {
	s := newTestServer(&fakeCtl{sums: []replier.Summary{
		{Platform: "mastodon", Unseen: 2, Fetched: 2, Replied: 2},
		{Platform: "bluesky", Err: errors.New("401")},
	}})
	rr := serve(s, http.MethodPost, "/api/v1/replies/run")
	if rr.Code != 200 {
		t.Fatalf("unexpected code: %d", rr.Code)
	}
	var out []summaryResp
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if len(out) != 2 || out[0].Replied != 2 || out[1].Error != "401" {
		t.Fatalf("unexpected body: %#v", out)
	}
}

func TestRunReplies_Busy(t *testing.T) {
	s := newTestServer(&fakeCtl{busy: true})
	rr := serve(s, http.MethodPost, "/api/v1/replies/run")
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestMetrics(t *testing.T) {
	s := newTestServer(&fakeCtl{})
	rr := serve(s, http.MethodGet, "/metrics")
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), "crossposter_test_total") {
		t.Fatalf("unexpected: %d %s", rr.Code, rr.Body.String())
	}
}
