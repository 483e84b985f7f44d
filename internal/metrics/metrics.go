package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the daemon's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Posts       *prometheus.CounterVec
	Replies     *prometheus.CounterVec
	Heartbeats  prometheus.Counter
	CursorIndex prometheus.Gauge
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Posts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crossposter_posts_total",
			Help: "Scheduled post attempts by platform and status.",
		}, []string{"platform", "status"}),
		Replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crossposter_replies_total",
			Help: "Reply attempts by platform and status.",
		}, []string{"platform", "status"}),
		Heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crossposter_heartbeats_total",
			Help: "Scheduler heartbeats fired.",
		}),
		CursorIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crossposter_cursor_index",
			Help: "Index of the next message to post.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Posts, m.Replies, m.Heartbeats, m.CursorIndex)
	}
	return m
}

func (m *Metrics) IncPost(platform, status string) {
	if m == nil || m.Posts == nil {
		return
	}
	m.Posts.WithLabelValues(platform, status).Inc()
}

func (m *Metrics) IncReply(platform, status string) {
	if m == nil || m.Replies == nil {
		return
	}
	m.Replies.WithLabelValues(platform, status).Inc()
}

func (m *Metrics) IncHeartbeat() {
	if m == nil || m.Heartbeats == nil {
		return
	}
	m.Heartbeats.Inc()
}

func (m *Metrics) SetCursor(index int) {
	if m == nil || m.CursorIndex == nil {
		return
	}
	m.CursorIndex.Set(float64(index))
}
