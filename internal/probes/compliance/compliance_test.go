package compliance

import (
	"context"
	"testing"
	"time"

	"bytemomo/narwhal/internal/domain"
)

func ptr(b bool) *bool { return &b }

func complianceContext(c domain.ComplianceAssets) *domain.ExecutionContext {
	return domain.NewExecutionContext(domain.ContextSpec{Assets: domain.Assets{Compliance: c}})
}

func raw(t *testing.T, out any, err error) string {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res := out.(domain.StepResult)
	if res.Status != domain.StatusSuccess {
		t.Fatalf("status = %s", res.Status)
	}
	return res.Raw.(string)
}

func TestBackupCheck(t *testing.T) {
	now := time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)
	p := &Probes{Now: func() time.Time { return now }}

	tests := []struct {
		name string
		in   domain.ComplianceAssets
		want string
	}{
		{"not stated", domain.ComplianceAssets{}, "Backup enabled: not stated\nLast backup: not stated\nIssue: no backup in place"},
		{"fresh", domain.ComplianceAssets{BackupEnabled: ptr(true), LastBackup: "2025-03-19"}, "Backup enabled: true\nLast backup: 2025-03-19"},
		{"stale", domain.ComplianceAssets{BackupEnabled: ptr(true), LastBackup: "2025-03-01"}, "Backup enabled: true\nLast backup: 2025-03-01\nIssue: last backup is 19 day(s) old"},
		{"unparseable date", domain.ComplianceAssets{BackupEnabled: ptr(true), LastBackup: "last week"}, "Backup enabled: true\nLast backup: last week"},
		{"disabled", domain.ComplianceAssets{BackupEnabled: ptr(false)}, "Backup enabled: false\nLast backup: not stated\nIssue: no backup in place"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := p.BackupCheck(context.Background(), complianceContext(tt.in))
			if got := raw(t, out, err); got != tt.want {
				t.Errorf("raw =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestPCIDSSLight(t *testing.T) {
	p := &Probes{}
	tests := []struct {
		name string
		in   domain.ComplianceAssets
		want string
	}{
		{"ok", domain.ComplianceAssets{CardDataEncrypted: ptr(true), SharedAccounts: ptr(false)}, "Baseline PCI-DSS controls OK"},
		{"unencrypted", domain.ComplianceAssets{}, "Card data not encrypted"},
		{"both", domain.ComplianceAssets{CardDataEncrypted: ptr(false), SharedAccounts: ptr(true)}, "Card data not encrypted\nShared POS accounts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := p.PCIDSSLight(context.Background(), complianceContext(tt.in))
			if got := raw(t, out, err); got != tt.want {
				t.Errorf("raw = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGDPRLight(t *testing.T) {
	out, err := (&Probes{}).GDPRLight(context.Background(), complianceContext(domain.ComplianceAssets{PrivacyPolicy: "https://acme.example/privacy"}))
	want := "Privacy policy: https://acme.example/privacy\nData retention: not stated"
	if got := raw(t, out, err); got != want {
		t.Errorf("raw = %q, want %q", got, want)
	}
}
