package observability

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ephemeral_http_requests_total",
			Help: "Total number of HTTP requests processed by the messaging service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ephemeral_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	grpcServerHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_server_handled_total",
			Help: "Total number of gRPC requests handled by the server.",
		},
		[]string{"grpc_service", "grpc_method", "grpc_code"},
	)
	wsActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ephemeral_ws_active_sessions",
			Help: "Number of connected client sessions.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ephemeral_ws_events_total",
			Help: "Total number of websocket session events.",
		},
		[]string{"event"},
	)
	syncInvalidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ephemeral_sync_invalidations_total",
			Help: "Change notifications received, by topic kind.",
		},
		[]string{"kind"},
	)
	syncRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ephemeral_sync_refreshes_total",
			Help: "Aggregation re-runs triggered in sessions, by view and result.",
		},
		[]string{"view", "result"},
	)
	syncSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ephemeral_sync_subscriptions",
			Help: "Live (session, topic) subscriptions.",
		},
	)
	listenerReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ephemeral_sync_listener_reconnects_total",
			Help: "Reconnections of the datastore change stream.",
		},
	)
	storeRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ephemeral_store_retries_total",
			Help: "Retries of operations after transient datastore errors.",
		},
		[]string{"operation"},
	)
	domainEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ephemeral_domain_events_total",
			Help: "Domain events handed to the broker, by name and result.",
		},
		[]string{"name", "result"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ephemeral_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		grpcServerHandledTotal,
		wsActiveSessions,
		wsEventsTotal,
		syncInvalidationsTotal,
		syncRefreshesTotal,
		syncSubscriptions,
		listenerReconnectsTotal,
		storeRetriesTotal,
		domainEventsTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func GRPCServerMetricsUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		statusInfo := status.Convert(err)
		service, method := splitFullMethod(info.FullMethod)
		grpcServerHandledTotal.WithLabelValues(service, method, statusInfo.Code().String()).Inc()
		return resp, err
	}
}

func splitFullMethod(fullMethod string) (string, string) {
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 3 {
		return "unknown", "unknown"
	}
	return parts[1], parts[2]
}

func IncWSActive() {
	wsActiveSessions.Inc()
}

func DecWSActive() {
	wsActiveSessions.Dec()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

// IncInvalidation counts a change notification by the kind prefix of its topic.
func IncInvalidation(topic string) {
	kind, _, _ := strings.Cut(topic, ":")
	if strings.HasSuffix(topic, ":chats") {
		kind = "user_chats"
	} else if strings.HasSuffix(topic, ":friends") {
		kind = "user_friends"
	}
	syncInvalidationsTotal.WithLabelValues(kind).Inc()
}

func IncRefresh(view string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	syncRefreshesTotal.WithLabelValues(view, result).Inc()
}

func AddSubscriptions(delta int) {
	syncSubscriptions.Add(float64(delta))
}

func IncListenerReconnect() {
	listenerReconnectsTotal.Inc()
}

func IncStoreRetry(operation string) {
	storeRetriesTotal.WithLabelValues(operation).Inc()
}

func IncDomainEvent(name string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	domainEventsTotal.WithLabelValues(name, result).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
