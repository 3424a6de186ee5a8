package grpcprobe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/registry"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Handler runs one step on a remote probe server.
type Handler struct {
	Step    domain.StepID
	Address string
	Timeout time.Duration
	Log     *log.Entry

	// DialOptions replace the default insecure transport credentials.
	DialOptions []grpc.DialOption
}

func (h *Handler) Execute(ctx context.Context, ec *domain.ExecutionContext) (any, error) {
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	opts := h.DialOptions
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(h.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to probe server %s: %w", h.Address, err)
	}
	defer conn.Close()

	req, err := Request(h.Step, ec)
	if err != nil {
		return nil, err
	}

	h.logger().WithFields(log.Fields{
		"step":   h.Step,
		"server": h.Address,
	}).Debug("Invoking remote probe")

	resp := new(structpb.Struct)
	if err := conn.Invoke(ctx, runMethod, req, resp); err != nil {
		return nil, fmt.Errorf("remote probe %s: %w", h.Address, err)
	}
	return resp.AsMap(), nil
}

func (h *Handler) logger() *log.Entry {
	if h.Log != nil {
		return h.Log
	}
	return log.NewEntry(log.StandardLogger())
}

// Request encodes the execution context for the wire. Values go through
// JSON so that every field maps onto a protobuf Value.
func Request(step domain.StepID, ec *domain.ExecutionContext) (*structpb.Struct, error) {
	spec := ec.Spec()
	payload := map[string]any{
		"step":        string(step),
		"client":      ec.Client(),
		"assets":      spec.Assets,
		"constraints": spec.Constraints,
		"assessment":  spec.Assessment,
		"notes":       ec.Notes(),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode probe request: %w", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil, fmt.Errorf("encode probe request: %w", err)
	}
	req, err := structpb.NewStruct(generic)
	if err != nil {
		return nil, fmt.Errorf("encode probe request: %w", err)
	}
	return req, nil
}

// Register adds one handler per declared remote probe. A remote probe
// replaces a builtin handler for the same step.
func Register(reg *registry.Registry, probes []domain.RemoteProbe, logger *log.Entry) error {
	for _, p := range probes {
		h := &Handler{Step: p.Step, Address: p.Address, Timeout: p.Timeout, Log: logger}
		err := reg.Register(p.Step, registry.Descriptor{
			Handler:     h,
			Description: "Remote probe",
			Source:      "grpc://" + p.Address,
		})
		if err != nil {
			return fmt.Errorf("register remote probe %s: %w", p.Step, err)
		}
	}
	return nil
}
