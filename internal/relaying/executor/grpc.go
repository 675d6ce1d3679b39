package executor

import (
	"context"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vietddude/relayer/internal/core/domain"
)

const executeMethod = "/relayer.Executor/Execute"

// GRPCExecutor relays events to an external executor service over gRPC.
type GRPCExecutor struct {
	endpoint string
	conn     *grpc.ClientConn
}

// NewGRPC dials the executor endpoint. TLS is selected by scheme.
func NewGRPC(ctx context.Context, endpoint string) (*GRPCExecutor, error) {
	target := endpoint
	var opts []grpc.DialOption

	if strings.HasPrefix(endpoint, "https://") || strings.HasSuffix(endpoint, ":443") {
		creds := credentials.NewTLS(&tls.Config{})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		target = strings.TrimPrefix(target, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}

	opts = append(opts, grpc.WithBlock())

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial executor endpoint %s: %w", target, err)
	}

	return &GRPCExecutor{endpoint: endpoint, conn: conn}, nil
}

// Execute invokes the remote executor with the event's semantic fields.
func (g *GRPCExecutor) Execute(ctx context.Context, ev domain.ValidatedEvent) error {
	req, err := structpb.NewStruct(map[string]any{
		"event_key":            ev.Key().String(),
		"sender":               ev.Sender,
		"token":                ev.Token,
		"amount":               ev.Amount.String(),
		"destination_chain_id": ev.DestinationChainID,
		"recipient":            hex.EncodeToString(ev.Recipient),
	})
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrExecution, err)
	}

	resp := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, executeMethod, req, resp); err != nil {
		return fmt.Errorf("%w: %v", ErrExecution, err)
	}
	return nil
}

// Close releases the underlying connection.
func (g *GRPCExecutor) Close() error {
	return g.conn.Close()
}
