package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vadim/tutor-support/internal/domain/support/entity"
)

// Recorder exposes support messaging counters to Prometheus
type Recorder struct {
	registry             *prometheus.Registry
	messagesSent         *prometheus.CounterVec
	conversationsStarted prometheus.Counter
	transcriptsArchived  prometheus.Counter
}

// New creates a recorder with its own registry
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "support_messages_sent_total",
			Help: "Support chat messages accepted, by sender role.",
		}, []string{"role"}),
		conversationsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "support_conversations_started_total",
			Help: "Support conversations created with an administrator.",
		}),
		transcriptsArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "support_transcripts_archived_total",
			Help: "Conversation transcripts uploaded to object storage.",
		}),
	}

	r.registry.MustRegister(
		r.messagesSent,
		r.conversationsStarted,
		r.transcriptsArchived,
		prometheus.NewGoCollector(),
	)
	return r
}

func (r *Recorder) MessageSent(role entity.Role) {
	r.messagesSent.WithLabelValues(string(role)).Inc()
}

func (r *Recorder) ConversationStarted() {
	r.conversationsStarted.Inc()
}

func (r *Recorder) TranscriptArchived() {
	r.transcriptsArchived.Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
