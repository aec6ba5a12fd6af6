package admin

import (
	"context"
	"log"
	"sort"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"svckit/internal/models"
	"svckit/internal/sink"
)

// IngestServiceName and PutLogsMethod match the gRPC transport's default method
const (
	IngestServiceName = "svckit.logship.v1.LogIngestion"
	PutLogsMethod     = "/" + IngestServiceName + "/PutLogs"
)

// IngestServer receives batches shipped by the gRPC transport
type IngestServer interface {
	PutLogs(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
}

// GRPCServer relays received batches into the local pipeline, letting one
// logshipd collect logs from many services and forward them onward.
type GRPCServer struct {
	pipeline Pipeline
	logger   *log.Logger
}

// NewGRPCServer creates a new gRPC Server instance
func NewGRPCServer(p Pipeline, l *log.Logger) *GRPCServer {
	return &GRPCServer{pipeline: p, logger: l}
}

// Register adds the ingest service to s
func (g *GRPCServer) Register(s *grpc.Server) {
	s.RegisterService(&ingestServiceDesc, g)
}

// PutLogs implements IngestServer
func (g *GRPCServer) PutLogs(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	topic, entries, err := sink.DecodeBatch(req)
	if err != nil {
		g.logger.Printf("gRPC Server: rejected malformed batch: %v", err)
		return nil, status.Errorf(codes.InvalidArgument, "malformed log batch: %v", err)
	}
	for i := range entries {
		g.pipeline.Submit(recordFromEntry(&entries[i]))
	}
	g.logger.Printf("gRPC Server: relayed %d entries from topic %s", len(entries), topic)
	return &emptypb.Empty{}, nil
}

// recordFromEntry rebuilds a record from wire form. The sender's service name
// is kept as source_service since the relay stamps its own.
func recordFromEntry(e *sink.Entry) *models.LogRecord {
	c := e.Contents
	level, err := models.ParseLevel(c[sink.KeyLevel])
	if err != nil {
		level = models.LevelInfo
	}

	keys := make([]string, 0, len(c))
	for k := range c {
		switch k {
		case sink.KeyLevel, sink.KeyLogger, sink.KeyMessage, sink.KeyTraceID,
			sink.KeyTimestamp, sink.KeyException, sink.KeyServiceName:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]models.Field, 0, len(keys)+1)
	if src := c[sink.KeyServiceName]; src != "" {
		fields = append(fields, models.F("source_service", src))
	}
	for _, k := range keys {
		fields = append(fields, models.F(k, c[k]))
	}

	opts := []models.RecordOption{models.WithTime(time.Unix(e.Time, 0))}
	if exc := c[sink.KeyException]; exc != "" {
		opts = append(opts, models.WithException(exc))
	}
	return models.NewLogRecord(level, c[sink.KeyLogger], c[sink.KeyMessage], c[sink.KeyTraceID], fields, opts...)
}

func putLogsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IngestServer).PutLogs(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PutLogsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(IngestServer).PutLogs(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var ingestServiceDesc = grpc.ServiceDesc{
	ServiceName: IngestServiceName,
	HandlerType: (*IngestServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PutLogs", Handler: putLogsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "svckit/logship/v1/ingest.proto",
}

// Ensure GRPCServer implements the interface (compile-time check)
var _ IngestServer = (*GRPCServer)(nil)
