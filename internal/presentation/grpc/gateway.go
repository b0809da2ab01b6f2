// Package grpcpresentation exposes the reservation engine to other services
// over gRPC and provides the matching client.
package grpcpresentation

import (
	"context"

	appledger "github.com/Parth18062003/E-Commerce-sub000/internal/application/ledger"
	domain "github.com/Parth18062003/E-Commerce-sub000/internal/domain/ledger"
	"github.com/Parth18062003/E-Commerce-sub000/internal/observability"
	"github.com/Parth18062003/E-Commerce-sub000/internal/observability/logctx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	ServiceName   = "inventory.v1.ReservationGateway"
	methodReserve = "/" + ServiceName + "/Reserve"
	methodRelease = "/" + ServiceName + "/Release"
)

type ReserveRequest struct {
	ProductID  string `json:"productId"`
	VariantSKU string `json:"variantSku"`
	Size       string `json:"size"`
	Quantity   int    `json:"quantity"`
}

type ReserveResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	Reason       string `json:"reason,omitempty"`
	AvailableQty int    `json:"availableQty"`
	ReservedQty  int    `json:"reservedQty"`
}

func (r *ReserveResponse) Succeeded() bool { return r != nil && r.Success }

type ReleaseRequest = ReserveRequest

type ReleaseResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

func (r *ReleaseResponse) Succeeded() bool { return r != nil && r.Success }

// ReservationGatewayServer is the service contract registered with grpc.
type ReservationGatewayServer interface {
	Reserve(ctx context.Context, req *ReserveRequest) (*ReserveResponse, error)
	Release(ctx context.Context, req *ReleaseRequest) (*ReleaseResponse, error)
}

// Engine is the part of the reservation engine the gateway drives.
type Engine interface {
	ReserveStock(ctx context.Context, cmd appledger.StockCommand) (*domain.Entry, error)
	ReleaseReservedStock(ctx context.Context, cmd appledger.StockCommand) (*domain.Entry, error)
}

// Gateway answers every call with a response; engine failures become
// success=false with a message and reason, never a transport error.
type Gateway struct {
	engine Engine
	log    observability.Logger
}

func NewGateway(engine Engine, logger observability.Logger) *Gateway {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Gateway{engine: engine, log: logger.With(observability.F("component", "reservation_gateway"))}
}

func (g *Gateway) Reserve(ctx context.Context, req *ReserveRequest) (*ReserveResponse, error) {
	entry, err := g.engine.ReserveStock(ctx, toCommand(req))
	if err != nil {
		g.logFailure(ctx, "reserve", req, err)
		return &ReserveResponse{Success: false, Message: err.Error(), Reason: domain.Reason(err)}, nil
	}
	return &ReserveResponse{
		Success:      true,
		Message:      "reserved",
		AvailableQty: entry.AvailableQuantity,
		ReservedQty:  entry.ReservedQuantity,
	}, nil
}

func (g *Gateway) Release(ctx context.Context, req *ReleaseRequest) (*ReleaseResponse, error) {
	if _, err := g.engine.ReleaseReservedStock(ctx, toCommand(req)); err != nil {
		g.logFailure(ctx, "release", req, err)
		return &ReleaseResponse{Success: false, Message: err.Error(), Reason: domain.Reason(err)}, nil
	}
	return &ReleaseResponse{Success: true, Message: "released"}, nil
}

// logFailure keeps expected stock outcomes at info and flags real faults.
func (g *Gateway) logFailure(ctx context.Context, op string, req *ReserveRequest, err error) {
	logger := logctx.FromOr(ctx, g.log)
	fields := []observability.Field{
		observability.F("op", op),
		observability.F("product_id", req.ProductID),
		observability.F("variant_sku", req.VariantSKU),
		observability.F("size", req.Size),
		observability.F("quantity", req.Quantity),
		observability.F("reason", domain.Reason(err)),
		observability.F("error", err.Error()),
	}
	if domain.IsBusinessError(err) {
		logger.Info("reservation_refused", fields...)
		return
	}
	logger.Error("reservation_failed", fields...)
}

func toCommand(req *ReserveRequest) appledger.StockCommand {
	if req == nil {
		return appledger.StockCommand{}
	}
	return appledger.StockCommand{
		ProductID:  req.ProductID,
		VariantSKU: req.VariantSKU,
		Size:       req.Size,
		Quantity:   req.Quantity,
	}
}

// RegisterReservationGatewayServer registers srv on s.
func RegisterReservationGatewayServer(s grpc.ServiceRegistrar, srv ReservationGatewayServer) {
	s.RegisterService(&gatewayServiceDesc, srv)
}

// NewServer builds a grpc server with the gateway, the standard health
// service and the observability interceptor installed.
func NewServer(gw ReservationGatewayServer, tel observability.Observability, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(UnaryServerInterceptor(tel))}, opts...)
	s := grpc.NewServer(opts...)
	RegisterReservationGatewayServer(s, gw)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return s, hs
}

func reserveHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ReserveRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReservationGatewayServer).Reserve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodReserve}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ReservationGatewayServer).Reserve(ctx, req.(*ReserveRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func releaseHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ReleaseRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReservationGatewayServer).Release(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodRelease}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ReservationGatewayServer).Release(ctx, req.(*ReleaseRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var gatewayServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReservationGatewayServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Reserve", Handler: reserveHandler},
		{MethodName: "Release", Handler: releaseHandler},
	},
	Streams: []grpc.StreamDesc{},
}
