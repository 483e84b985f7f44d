package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type cursorResp struct {
	Index       int               `json:"index"`
	PostCount   int               `json:"post_count"`
	LastReplied map[string]string `json:"last_replied,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Scheduler   string            `json:"scheduler"`
}

type summaryResp struct {
	Platform string `json:"platform"`
	Unseen   int    `json:"unseen"`
	Fetched  int    `json:"fetched"`
	Replied  int    `json:"replied"`
	Failed   int    `json:"failed"`
	Skipped  int    `json:"skipped"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) getCursor(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("getCursor API called")
	c, err := s.ctl.Cursor(r.Context())
	if err != nil {
		s.log.Error("getCursor: store error", zap.Error(err))
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	state := "stopped"
	if s.ctl.SchedulerRunning() {
		state = "running"
	}
	writeJSON(w, http.StatusOK, cursorResp{
		Index:       c.Index,
		PostCount:   s.ctl.PostCount(),
		LastReplied: c.LastReplied,
		UpdatedAt:   c.UpdatedAt,
		Scheduler:   state,
	})
}

func (s *Server) startScheduler(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("startScheduler API called")
	s.ctl.Start(s.ctx)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("scheduler started"))
}

func (s *Server) stopScheduler(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("stopScheduler API called")
	s.ctl.Stop(errors.New("scheduler stopped by API"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("scheduler stopped"))
}

func (s *Server) runReplies(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("runReplies API called")
	sums, ran := s.ctl.ReplyOnce(r.Context())
	if !ran {
		http.Error(w, "reply pass already running", http.StatusConflict)
		return
	}
	out := make([]summaryResp, 0, len(sums))
	for _, sum := range sums {
		sr := summaryResp{
			Platform: sum.Platform,
			Unseen:   sum.Unseen,
			Fetched:  sum.Fetched,
			Replied:  sum.Replied,
			Failed:   sum.Failed,
			Skipped:  sum.Skipped,
		}
		if sum.Err != nil {
			sr.Error = sum.Err.Error()
		}
		out = append(out, sr)
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
