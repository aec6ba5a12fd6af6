package sink

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/url"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"svckit/config"
)

// GRPCTransport calls a unary ingest method with the batch encoded as a
// google.protobuf.Struct, so no generated stubs are required on either side.
type GRPCTransport struct {
	conn   *grpc.ClientConn
	method string
	cfg    config.GRPCSinkConfig
	sink   config.SinkConfig
	logger *log.Logger
}

// NewGRPCTransport creates a client for grpc://host:port. Connecting is lazy.
func NewGRPCTransport(sink config.SinkConfig, cfg config.GRPCSinkConfig, logger *log.Logger, opts ...grpc.DialOption) (*GRPCTransport, error) {
	cfg.SetDefaults()
	u, err := url.Parse(sink.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid grpc endpoint %q: %w", sink.Endpoint, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("grpc endpoint %q names no host", sink.Endpoint)
	}

	creds := insecure.NewCredentials()
	if cfg.UseTLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(creds)}, opts...)

	conn, err := grpc.NewClient(u.Host, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", u.Host, err)
	}
	if logger != nil {
		logger.Printf("gRPC log transport created, target: %s, method: %s", u.Host, cfg.Method)
	}
	return &GRPCTransport{conn: conn, method: cfg.Method, cfg: cfg, sink: sink, logger: logger}, nil
}

// EncodeBatch renders a batch as the Struct sent on the wire:
// {"topic_id": ..., "source": ..., "logs": [{"time": n, "contents": {...}}]}
func EncodeBatch(topic, source string, entries []Entry) (*structpb.Struct, error) {
	logs := make([]any, len(entries))
	for i, e := range entries {
		contents := make(map[string]any, len(e.Contents))
		for k, v := range e.Contents {
			contents[k] = v
		}
		logs[i] = map[string]any{
			"time":     float64(e.Time),
			"contents": contents,
		}
	}
	return structpb.NewStruct(map[string]any{
		"topic_id": topic,
		"source":   source,
		"logs":     logs,
	})
}

// DecodeBatch is the inverse of EncodeBatch, used by receivers and tests
func DecodeBatch(s *structpb.Struct) (topic string, entries []Entry, err error) {
	fields := s.GetFields()
	topic = fields["topic_id"].GetStringValue()
	for i, v := range fields["logs"].GetListValue().GetValues() {
		obj := v.GetStructValue()
		if obj == nil {
			return "", nil, fmt.Errorf("log %d is not an object", i)
		}
		e := Entry{
			Time:     int64(obj.GetFields()["time"].GetNumberValue()),
			Contents: map[string]string{},
		}
		for k, c := range obj.GetFields()["contents"].GetStructValue().GetFields() {
			e.Contents[k] = c.GetStringValue()
		}
		entries = append(entries, e)
	}
	return topic, entries, nil
}

// PutLogs implements Transport
func (g *GRPCTransport) PutLogs(ctx context.Context, topic string, entries []Entry) error {
	req, err := EncodeBatch(topic, g.sink.ServiceName, entries)
	if err != nil {
		return fmt.Errorf("failed to encode log batch: %w", err)
	}

	md := metadata.MD{}
	if g.sink.AccessKeyID != "" {
		md.Set("x-log-accesskeyid", g.sink.AccessKeyID)
	}
	if g.sink.Token != "" {
		md.Set("x-log-securitytoken", g.sink.Token)
	}
	if g.sink.Region != "" {
		md.Set("x-log-region", g.sink.Region)
	}
	callCtx, cancel := context.WithTimeout(metadata.NewOutgoingContext(ctx, md), g.cfg.Timeout)
	defer cancel()

	if err := g.conn.Invoke(callCtx, g.method, req, &emptypb.Empty{}); err != nil {
		return fmt.Errorf("grpc %s failed: %w", g.method, err)
	}
	return nil
}

// Close closes the client connection
func (g *GRPCTransport) Close() error {
	return g.conn.Close()
}

var _ Transport = (*GRPCTransport)(nil)
