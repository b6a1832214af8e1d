package runner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthProbe checks the runner control endpoint over gRPC before work
// is dispatched. Addresses starting with "/" or "unix:" are dialed as
// Unix domain sockets; anything else as TCP host:port.
type HealthProbe struct {
	conn   *grpc.ClientConn
	client healthpb.HealthClient
}

// NewHealthProbe creates a probe for the given address. The connection
// is established lazily on the first check.
func NewHealthProbe(addr string) (*HealthProbe, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("health address is required")
	}
	target := addr
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if path := unixPath(addr); path != "" {
		dialer := func(ctx context.Context, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", addr)
		}
		target = "passthrough:///" + path
		opts = append(opts, grpc.WithContextDialer(dialer))
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &HealthProbe{conn: conn, client: healthpb.NewHealthClient(conn)}, nil
}

// Check asks the endpoint for its serving status.
func (p *HealthProbe) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	resp, err := p.client.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("runner reported status %s", resp.GetStatus())
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (p *HealthProbe) Close() error {
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func unixPath(addr string) string {
	switch {
	case strings.HasPrefix(addr, "unix://"):
		return strings.TrimPrefix(addr, "unix://")
	case strings.HasPrefix(addr, "unix:"):
		return strings.TrimPrefix(addr, "unix:")
	case strings.HasPrefix(addr, "/"):
		return addr
	default:
		return ""
	}
}
