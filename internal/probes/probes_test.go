package probes

import (
	"testing"

	"bytemomo/narwhal/internal/catalog"
	"bytemomo/narwhal/internal/registry"
)

func TestRegister_CoversCatalogExceptRemoteOnly(t *testing.T) {
	reg := registry.New()
	if err := Register(reg, Options{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if reg.Count() != 12 {
		t.Errorf("expected 12 built-in probes, got %d", reg.Count())
	}

	for _, id := range catalog.Default().Steps() {
		_, err := reg.Resolve(id)
		if id == "exploits.metasploit_check" {
			if err == nil {
				t.Errorf("%s must only be served by a remote probe", id)
			}
			continue
		}
		if err != nil {
			t.Errorf("catalogued step %s has no built-in probe: %v", id, err)
		}
	}

	for _, e := range reg.List() {
		if e.Source != "builtin" || e.Description == "" {
			t.Errorf("unexpected entry %+v", e)
		}
	}
}
