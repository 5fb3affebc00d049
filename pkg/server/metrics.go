package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edge_server_connections_accepted_total",
		Help: "Total number of raw connections accepted",
	})

	acceptErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_server_accept_errors_total",
		Help: "Total number of accept errors, by kind",
	}, []string{"kind"})

	handshakeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edge_server_tls_handshake_failures_total",
		Help: "Total number of failed TLS handshakes",
	})

	negotiatedProtocol = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_server_negotiated_protocol_total",
		Help: "Total number of TLS connections by ALPN protocol",
	}, []string{"protocol"})
)
