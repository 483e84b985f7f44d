package main

import (
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// logWrites records every request that would change state on a real
// platform, one JSON line each
func logWrites(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}
		limited := http.MaxBytesReader(w, r.Body, 1<<20)
		body, err := io.ReadAll(limited)
		_ = r.Body.Close()
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("url", r.URL.String()),
			zap.Bool("auth", r.Header.Get("Authorization") != ""),
			zap.String("body", strings.TrimSpace(string(body))),
		}
		if err != nil {
			fields = append(fields, zap.NamedError("decodeError", err))
		}
		log.Info("write", fields...)
		r.Body = io.NopCloser(strings.NewReader(string(body)))
		next.ServeHTTP(w, r)
	})
}

func reply(code int, v any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(v)
	}
}

func created(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// newRouter serves the subset of the Mastodon, Bluesky and X APIs the
// adapters call. Nobody ever mentions the bot here.
func newRouter(log *zap.Logger) http.Handler {
	r := mux.NewRouter()

	// mastodon
	m := r.PathPrefix("/api/v1").Subrouter()
	m.HandleFunc("/accounts/verify_credentials", reply(http.StatusOK, map[string]string{"id": "1", "acct": "mockbot"})).Methods("GET")
	m.HandleFunc("/notifications/unread_count", reply(http.StatusOK, map[string]int{"count": 0})).Methods("GET")
	m.HandleFunc("/notifications", reply(http.StatusOK, []any{})).Methods("GET")
	m.HandleFunc("/notifications/clear", reply(http.StatusOK, map[string]any{})).Methods("POST")
	m.HandleFunc("/statuses/{id}/favourite", func(w http.ResponseWriter, r *http.Request) {
		created(w, http.StatusOK, map[string]string{"id": mux.Vars(r)["id"]})
	}).Methods("POST")
	m.HandleFunc("/statuses", func(w http.ResponseWriter, r *http.Request) {
		created(w, http.StatusOK, map[string]string{"id": uuid.NewString()})
	}).Methods("POST")

	// bluesky
	session := map[string]string{
		"accessJwt":  "mock-access",
		"refreshJwt": "mock-refresh",
		"did":        "did:plc:mockbot",
		"handle":     "mockbot.test",
	}
	x := r.PathPrefix("/xrpc").Subrouter()
	x.HandleFunc("/com.atproto.server.createSession", reply(http.StatusOK, session)).Methods("POST")
	x.HandleFunc("/com.atproto.server.refreshSession", reply(http.StatusOK, session)).Methods("POST")
	x.HandleFunc("/app.bsky.notification.getUnreadCount", reply(http.StatusOK, map[string]int{"count": 0})).Methods("GET")
	x.HandleFunc("/app.bsky.notification.listNotifications", reply(http.StatusOK, map[string]any{"notifications": []any{}})).Methods("GET")
	x.HandleFunc("/app.bsky.notification.updateSeen", reply(http.StatusOK, map[string]any{})).Methods("POST")
	x.HandleFunc("/com.atproto.repo.createRecord", func(w http.ResponseWriter, r *http.Request) {
		created(w, http.StatusOK, map[string]string{
			"uri": "at://did:plc:mockbot/app.bsky.feed.post/" + uuid.NewString(),
			"cid": "bafymock" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		})
	}).Methods("POST")

	// x
	r.HandleFunc("/2/users/me", reply(http.StatusOK, map[string]any{"data": map[string]string{"id": "1", "username": "mockbot"}})).Methods("GET")
	r.HandleFunc("/2/tweets", func(w http.ResponseWriter, r *http.Request) {
		created(w, http.StatusCreated, map[string]any{"data": map[string]string{"id": uuid.NewString()}})
	}).Methods("POST")

	return logWrites(log, r)
}

func main() {
	addr := flag.String("addr", ":8090", "listen address")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	srv := &http.Server{
		Addr:         *addr,
		Handler:      newRouter(log),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("mock platform listening", zap.String("addr", srv.Addr))
	log.Fatal("listen", zap.Error(srv.ListenAndServe()))
}
