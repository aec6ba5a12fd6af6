package sink

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	"svckit/config"
)

// Scheme identifies a transport implementation by endpoint URL scheme
type Scheme string

const (
	SchemeHTTP       Scheme = "http"
	SchemeHTTPS      Scheme = "https"
	SchemeKafka      Scheme = "kafka"
	SchemePostgres   Scheme = "postgres"
	SchemePostgreSQL Scheme = "postgresql"
	SchemeGRPC       Scheme = "grpc"
	SchemeMock       Scheme = "mock"
)

// EndpointScheme returns the lower-cased scheme of endpoint. A bare host is
// treated as https.
func EndpointScheme(endpoint string) (Scheme, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", fmt.Errorf("empty sink endpoint")
	}
	if !strings.Contains(endpoint, "://") {
		return SchemeHTTPS, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid sink endpoint %q: %w", endpoint, err)
	}
	return Scheme(strings.ToLower(u.Scheme)), nil
}

// NewTransport creates the transport selected by the sink endpoint's scheme.
// It returns a nil transport and no error when the sink is incomplete, which
// callers treat as "shipping disabled".
func NewTransport(ctx context.Context, remote config.RemoteConfig, logger *log.Logger) (Transport, error) {
	sinkCfg := remote.Sink
	if !sinkCfg.Complete() {
		return nil, nil
	}
	if !strings.Contains(sinkCfg.Endpoint, "://") {
		sinkCfg.Endpoint = "https://" + sinkCfg.Endpoint
	}

	scheme, err := EndpointScheme(sinkCfg.Endpoint)
	if err != nil {
		return nil, err
	}
	var (
		t        Transport
		buildErr error
	)
	switch scheme {
	case SchemeHTTP, SchemeHTTPS:
		var ht *HTTPTransport
		if ht, buildErr = NewHTTPTransport(sinkCfg, remote.HTTP); buildErr == nil {
			t = ht
		}
	case SchemeKafka:
		var kt *KafkaTransport
		if kt, buildErr = NewKafkaTransport(sinkCfg, remote.Kafka, logger); buildErr == nil {
			t = kt
		}
	case SchemePostgres, SchemePostgreSQL:
		var pt *PostgresTransport
		if pt, buildErr = NewPostgresTransport(ctx, sinkCfg, remote.Postgres, logger); buildErr == nil {
			t = pt
		}
	case SchemeGRPC:
		var gt *GRPCTransport
		if gt, buildErr = NewGRPCTransport(sinkCfg, remote.GRPC, logger); buildErr == nil {
			t = gt
		}
	case SchemeMock:
		t = NewMockTransport(logger)
	default:
		return nil, fmt.Errorf("unsupported sink endpoint scheme: %s", scheme)
	}
	if buildErr != nil {
		return nil, fmt.Errorf("failed to create %s transport: %w", scheme, buildErr)
	}
	return t, nil
}
