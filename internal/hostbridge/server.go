package hostbridge

import (
	"io"
	"net/http"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cory-johannsen/splittermond/internal/observability"
)

// NewGRPCServer creates a gRPC server carrying the tick service and the
// standard health service, with call logging.
//
// Postcondition: ServiceName reports SERVING.
func NewGRPCServer(svc TickServer, logger *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor(logger)),
	}, opts...)
	srv := grpc.NewServer(opts...)
	Register(srv, svc)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

// NewHTTPHandler routes the websocket feed and a liveness probe.
func NewHTTPHandler(hub *Hub, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /ws", hub)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "ok")
	})
	return observability.HTTPMiddleware(logger, mux)
}
