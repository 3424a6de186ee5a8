package registry

import (
	"context"
	"errors"
	"testing"

	"bytemomo/narwhal/internal/domain"
)

func noop(ctx context.Context, ec *domain.ExecutionContext) (any, error) { return "ok", nil }

func TestRegister_ValidHandler(t *testing.T) {
	r := New()

	if err := r.RegisterFunc("network.discovery", "Ping sweep", noop); err != nil {
		t.Fatalf("RegisterFunc returned error: %v", err)
	}

	h, err := r.Resolve("network.discovery")
	if err != nil {
		t.Fatalf("expected to resolve registered step: %v", err)
	}
	out, err := h.Execute(context.Background(), domain.NewExecutionContext(domain.ContextSpec{}))
	if err != nil || out != "ok" {
		t.Errorf("unexpected handler output %v, %v", out, err)
	}

	d, ok := r.Lookup("network.discovery")
	if !ok {
		t.Fatal("expected descriptor")
	}
	if d.Source != "builtin" {
		t.Errorf("expected default source 'builtin', got %q", d.Source)
	}
}

func TestRegister_Rejects(t *testing.T) {
	r := New()

	if err := r.RegisterFunc("discovery", "", noop); !errors.Is(err, ErrMalformedStep) {
		t.Errorf("expected ErrMalformedStep, got %v", err)
	}
	if err := r.RegisterFunc("network.discovery", "", nil); err == nil {
		t.Error("expected error for nil handler")
	}
	if err := r.Register("network.discovery", Descriptor{}); err == nil {
		t.Error("expected error for descriptor without handler")
	}
	if r.Count() != 0 {
		t.Errorf("expected empty registry, got %d", r.Count())
	}
}

func TestRegister_OverwriteExisting(t *testing.T) {
	r := New()
	_ = r.RegisterFunc("web.tls_enum", "First", noop)
	_ = r.Register("web.tls_enum", Descriptor{Handler: domain.HandlerFunc(noop), Description: "Second", Source: "grpc://127.0.0.1:50051"})

	d, _ := r.Lookup("web.tls_enum")
	if d.Description != "Second" {
		t.Errorf("expected description 'Second' after overwrite, got %q", d.Description)
	}
	if r.Count() != 1 {
		t.Errorf("expected 1 handler, got %d", r.Count())
	}
}

func TestResolve_Errors(t *testing.T) {
	r := New()
	_ = r.RegisterFunc("network.discovery", "", noop)

	tests := []struct {
		id   domain.StepID
		want error
	}{
		{"foo.bar", ErrUnknownStep},
		{"exploits.metasploit_check", ErrUnknownStep},
		{"nodot", ErrMalformedStep},
		{"network.", ErrMalformedStep},
		{"", ErrMalformedStep},
	}
	for _, tt := range tests {
		_, err := r.Resolve(tt.id)
		if !errors.Is(err, tt.want) {
			t.Errorf("Resolve(%q): expected %v, got %v", tt.id, tt.want, err)
		}
	}
}

func TestList_Sorted(t *testing.T) {
	r := New()
	for _, id := range []domain.StepID{"web.web_enum", "compliance.gdpr_light", "network.egress"} {
		_ = r.RegisterFunc(id, string(id)+" description", noop)
	}

	entries := r.List()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	want := []domain.StepID{"compliance.gdpr_light", "network.egress", "web.web_enum"}
	for i, e := range entries {
		if e.ID != want[i] {
			t.Errorf("entry %d: expected %q, got %q", i, want[i], e.ID)
		}
	}
}
