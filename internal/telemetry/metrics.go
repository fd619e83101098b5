package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики вычислителя.
var (
	// PassesTotal — число проходов вычисления по результату (ok | errors).
	PassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tableflow_passes_total",
		Help: "Evaluation passes by result",
	}, []string{"result"})

	// PassDuration — длительность прохода.
	PassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tableflow_pass_duration_seconds",
		Help:    "Duration of a single evaluation pass",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})

	// InertElementsTotal — элементы неизвестного типа, пропущенные при вычислении.
	InertElementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tableflow_inert_elements_total",
		Help: "Elements of unknown type flagged as inert",
	})

	// DecisionRowsTotal — строки таблиц решений по исходу (matched | fallback | deferred).
	DecisionRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tableflow_decision_rows_total",
		Help: "Decision table row evaluations by outcome",
	}, []string{"outcome"})

	// CallsTotal — вызовы function/subflow по типу.
	CallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tableflow_calls_total",
		Help: "Function and subflow calls by kind",
	}, []string{"kind"})

	// SessionsActive — число открытых сессий вычислителя.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tableflow_sessions_active",
		Help: "Evaluator sessions currently open",
	})

	// HTTPRequestsTotal — запросы к HTTP API.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tableflow_http_requests_total",
		Help: "HTTP requests handled by the API",
	}, []string{"method", "status"})

	// RegistryReloadsTotal — перезагрузки реестра по результату.
	RegistryReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tableflow_registry_reloads_total",
		Help: "Registry reloads by result",
	}, []string{"result"})

	// BrokerReconnectsTotal — успешные переподключения к RabbitMQ.
	BrokerReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tableflow_broker_reconnects_total",
		Help: "Successful RabbitMQ reconnects",
	})

	// EvaluatorRequestsTotal — RPC-запросы к worker по типу и исходу (ok | bad_request | failed).
	EvaluatorRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tableflow_evaluator_requests_total",
		Help: "Evaluator RPC requests consumed by the worker",
	}, []string{"type", "result"})
)
