// Package grpcserver implements the SyncAdmin gRPC service.
//
// The service is described by a hand-written grpc.ServiceDesc whose messages
// are protobuf well-known types (emptypb.Empty, structpb.Struct), so no
// generated stubs are needed. It delegates all business logic to the
// scheduler and the source registry and handles only transport concerns:
// metadata extraction, error mapping, and type conversion.
package grpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"jobmate/aggregator-service/internal/logger"
	"jobmate/aggregator-service/internal/model"
	"jobmate/aggregator-service/internal/scheduler"
	"jobmate/aggregator-service/internal/store"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "jobmate.aggregator.v1.SyncAdmin"

// Syncer triggers runs.
type Syncer interface {
	Trigger(ctx context.Context, trigger string) (*model.RunReport, error)
}

// SourceAdmin is the registry surface used by the service.
type SourceAdmin interface {
	List(ctx context.Context) ([]model.SourceRecord, error)
	Toggle(ctx context.Context, name model.SourceName, enabled bool, actorID string) (*model.SourceRecord, error)
}

// TogglePublisher announces source toggles.
type TogglePublisher interface {
	PublishSourceToggled(ctx context.Context, rec *model.SourceRecord, actorID string) error
}

// SyncAdminServer is the server API of the SyncAdmin service.
type SyncAdminServer interface {
	RunSync(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListSources(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ToggleSource(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Server implements SyncAdminServer.
type Server struct {
	syncer  Syncer
	sources SourceAdmin
	events  TogglePublisher
	log     logger.Logger
}

// NewServer constructs a Server. events may be nil.
func NewServer(syncer Syncer, sources SourceAdmin, events TogglePublisher, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	return &Server{
		syncer:  syncer,
		sources: sources,
		events:  events,
		log:     log.With(logger.String("component", "grpc")),
	}
}

// NewGRPCServer returns a grpc.Server with the SyncAdmin and health services
// registered and request logging installed.
func NewGRPCServer(srv *Server) *grpc.Server {
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(srv.log)))
	RegisterSyncAdminServer(gs, srv)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	return gs
}

// ─── RPC implementations ──────────────────────────────────────────────────────

// RunSync runs one sync pass and returns its report. A busy scheduler yields
// Unavailable so callers can retry later.
func (s *Server) RunSync(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	actor, _ := userIDFromCtx(ctx)
	s.log.Info("manual sync requested", logger.String("actor", actor))

	report, err := s.syncer.Trigger(ctx, scheduler.TriggerGRPC)
	if err != nil && report == nil {
		return nil, toGRPCError(err)
	}
	return toStruct(report)
}

// ListSources returns every source as {"sources": [...]}.
func (s *Server) ListSources(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	sources, err := s.sources.List(ctx)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return toStruct(map[string]any{"sources": sources})
}

// ToggleSource expects {"name": string, "enabled": bool}.
func (s *Server) ToggleSource(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actorID, err := userIDFromCtx(ctx)
	if err != nil {
		return nil, err
	}

	fields := req.GetFields()
	name := fields["name"].GetStringValue()
	enabledVal, ok := fields["enabled"]
	if name == "" || !ok {
		return nil, status.Error(codes.InvalidArgument, "name and enabled are required")
	}
	if _, isBool := enabledVal.GetKind().(*structpb.Value_BoolValue); !isBool {
		return nil, status.Error(codes.InvalidArgument, "enabled must be a boolean")
	}

	rec, err := s.sources.Toggle(ctx, model.SourceName(name), enabledVal.GetBoolValue(), actorID)
	if err != nil {
		return nil, toGRPCError(err)
	}
	if s.events != nil {
		if err := s.events.PublishSourceToggled(ctx, rec, actorID); err != nil {
			s.log.Warn("publish source toggled failed (non-fatal)", logger.Error(err))
		}
	}
	return toStruct(rec)
}

// ─── Service descriptor ───────────────────────────────────────────────────────

// RegisterSyncAdminServer registers srv on r.
func RegisterSyncAdminServer(r grpc.ServiceRegistrar, srv SyncAdminServer) {
	r.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SyncAdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RunSync", Handler: runSyncHandler},
		{MethodName: "ListSources", Handler: listSourcesHandler},
		{MethodName: "ToggleSource", Handler: toggleSourceHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "jobmate/aggregator/v1/sync_admin.proto",
}

func runSyncHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SyncAdminServer).RunSync(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/RunSync"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(SyncAdminServer).RunSync(ctx, req.(*emptypb.Empty))
	})
}

func listSourcesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SyncAdminServer).ListSources(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/ListSources"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(SyncAdminServer).ListSources(ctx, req.(*emptypb.Empty))
	})
}

func toggleSourceHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SyncAdminServer).ToggleSource(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/ToggleSource"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(SyncAdminServer).ToggleSource(ctx, req.(*structpb.Struct))
	})
}

// Client is a thin typed client for the SyncAdmin service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

// RunSync calls SyncAdmin/RunSync.
func (c *Client) RunSync(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/RunSync", &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ListSources calls SyncAdmin/ListSources.
func (c *Client) ListSources(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/ListSources", &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ToggleSource calls SyncAdmin/ToggleSource.
func (c *Client) ToggleSource(ctx context.Context, name model.SourceName, enabled bool, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"name": string(name), "enabled": enabled})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/ToggleSource", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// userIDFromCtx extracts the x-user-id value forwarded by the Gateway
// via gRPC metadata.
func userIDFromCtx(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "missing metadata")
	}
	vals := md.Get("x-user-id")
	if len(vals) == 0 || vals[0] == "" {
		return "", status.Error(codes.Unauthenticated, "missing x-user-id metadata")
	}
	return vals[0], nil
}

// toGRPCError maps domain errors to gRPC status errors.
func toGRPCError(err error) error {
	if errors.Is(err, scheduler.ErrSyncInProgress) || errors.Is(err, scheduler.ErrStopped) {
		return status.Error(codes.Unavailable, err.Error())
	}
	if errors.Is(err, store.ErrSourceNotFound) || errors.Is(err, store.ErrPostingNotFound) {
		return status.Error(codes.NotFound, err.Error())
	}
	var ve *store.ValidationError
	if errors.As(err, &ve) {
		return status.Error(codes.InvalidArgument, ve.Msg)
	}
	return status.Error(codes.Internal, "internal server error")
}

// toStruct converts a JSON-serializable domain value into a structpb.Struct,
// keeping the same field names as the HTTP API.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return s, nil
}

func loggingInterceptor(log logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []logger.Field{
			logger.String("method", info.FullMethod),
			logger.String("code", status.Code(err).String()),
			logger.Duration("duration", time.Since(start)),
		}
		if err != nil {
			log.Warn("grpc request failed", append(fields, logger.Error(err))...)
		} else {
			log.Debug("grpc request", fields...)
		}
		return resp, err
	}
}
