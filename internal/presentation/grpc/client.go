package grpcpresentation

import (
	"context"
	"time"

	appcart "github.com/Parth18062003/E-Commerce-sub000/internal/application/cart"
	"github.com/Parth18062003/E-Commerce-sub000/internal/observability"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	defaultRPCTimeout = 2 * time.Second
	gatewayPeer       = "inventory-service"
)

// Client calls the reservation gateway. Every call is bounded by the
// configured timeout; any transport error, timeout included, is returned
// as an error and means the outcome is unknown.
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration

	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

var _ appcart.Reserver = (*Client)(nil)

// Dial creates a client for target. Extra dial options (for example a
// bufconn dialer in tests) are appended to the defaults.
func Dial(target string, timeout time.Duration, tel observability.Observability, opts ...grpc.DialOption) (*Client, error) {
	if timeout <= 0 {
		timeout = defaultRPCTimeout
	}
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
		grpc.WithChainUnaryInterceptor(unaryClientInterceptor()),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "grpc: dial %s", target)
	}
	m := observability.OrNop(tel).Metrics()
	return &Client{
		conn:         conn,
		timeout:      timeout,
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) Reserve(ctx context.Context, req appcart.StockRequest) (appcart.ReservationResult, error) {
	var resp ReserveResponse
	if err := c.invoke(ctx, methodReserve, fromStockRequest(req), &resp); err != nil {
		return appcart.ReservationResult{}, err
	}
	return appcart.ReservationResult{
		Success:      resp.Success,
		Message:      resp.Message,
		Reason:       resp.Reason,
		AvailableQty: resp.AvailableQty,
		ReservedQty:  resp.ReservedQty,
	}, nil
}

func (c *Client) Release(ctx context.Context, req appcart.StockRequest) (appcart.ReservationResult, error) {
	var resp ReleaseResponse
	if err := c.invoke(ctx, methodRelease, fromStockRequest(req), &resp); err != nil {
		return appcart.ReservationResult{}, err
	}
	return appcart.ReservationResult{
		Success: resp.Success,
		Message: resp.Message,
		Reason:  resp.Reason,
	}, nil
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.conn.Invoke(ctx, method, req, resp)
	outcome := "success"
	if err != nil {
		outcome = "error"
	} else if s, ok := resp.(succeeded); ok && !s.Succeeded() {
		outcome = "rejected"
	}
	c.extCounter.Add(1,
		observability.L("peer", gatewayPeer),
		observability.L("endpoint", method),
		observability.L("outcome", outcome),
	)
	c.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", gatewayPeer),
		observability.L("endpoint", method),
	)
	if err != nil {
		return errors.Wrap(err, method)
	}
	return nil
}

func fromStockRequest(req appcart.StockRequest) *ReserveRequest {
	return &ReserveRequest{
		ProductID:  req.ProductID,
		VariantSKU: req.VariantSKU,
		Size:       req.Size,
		Quantity:   req.Quantity,
	}
}
