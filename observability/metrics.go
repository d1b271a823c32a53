package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_messages_sent_total",
		Help: "Total messages persisted by the relay.",
	})
	BroadcastsDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_broadcasts_delivered_total",
		Help: "Total messages handed to live subscribers.",
	})
	SubscriberBackpressure = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_subscriber_backpressure_total",
		Help: "Total messages dropped because a subscriber buffer was full.",
	})
	PublishTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_publish_timeouts_total",
		Help: "Total persisted messages that could not be queued for broadcast in time.",
	})
	SinkFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_sink_failures_total",
		Help: "Total permanent sink failures by sink.",
	}, []string{"sink"})
	ActiveTopics = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_active_topics",
		Help: "Conversation topics currently running.",
	})
	ActiveSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_active_subscribers",
		Help: "Live subscriptions across all conversations.",
	})
	QueuedMessages = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_queued_messages",
		Help: "Messages waiting in topic queues at the last sample.",
	})
	FullestQueueRatio = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_fullest_queue_ratio",
		Help: "Fill ratio of the fullest topic queue at the last sample.",
	})
	WorkerRestarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_worker_restarts_total",
		Help: "Total worker restarts after a crash, by worker.",
	}, []string{"worker"})

	ConversationsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_conversations_created_total",
		Help: "Total conversations created in the external service, by kind.",
	}, []string{"kind"})
	MembershipFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_membership_failures_total",
		Help: "Total participants that could not be added during provisioning.",
	})
	MediaBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_media_bytes_total",
		Help: "Total attachment bytes stored, by category.",
	}, []string{"category"})
	CensoredMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_censored_messages_total",
		Help: "Total messages with censored words, by detected language.",
	}, []string{"language"})

	HTTPRequests = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relay_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status code.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "code"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		MessagesSent, BroadcastsDelivered, SubscriberBackpressure, PublishTimeouts,
		SinkFailures, ActiveTopics, ActiveSubscribers, QueuedMessages, FullestQueueRatio, WorkerRestarts,
		ConversationsCreated, MembershipFailures, MediaBytes, CensoredMessages,
		HTTPRequests,
	)
}
