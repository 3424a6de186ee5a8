// Package compliance implements declarative compliance checks. They read the
// compliance facts of the client profile and never touch the network.
package compliance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/registry"
)

const DefaultMaxBackupAge = 7 * 24 * time.Hour

// backupLayouts are the accepted formats for last_backup.
var backupLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"}

type Probes struct {
	MaxBackupAge time.Duration
	Now          func() time.Time
}

func (p *Probes) Register(reg *registry.Registry) error {
	checks := []struct {
		id   domain.StepID
		desc string
		fn   domain.HandlerFunc
	}{
		{"compliance.backup_check", "Backup availability and freshness", p.BackupCheck},
		{"compliance.pci_dss_light", "Baseline PCI-DSS controls for card data", p.PCIDSSLight},
		{"compliance.gdpr_light", "Baseline GDPR documentation", p.GDPRLight},
	}
	for _, c := range checks {
		if err := reg.RegisterFunc(c.id, c.desc, c.fn); err != nil {
			return err
		}
	}
	return nil
}

func (p *Probes) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func stated(b *bool) string {
	if b == nil {
		return "not stated"
	}
	return fmt.Sprint(*b)
}

func text(s string) string {
	if strings.TrimSpace(s) == "" {
		return "not stated"
	}
	return s
}

func parseBackup(s string) (time.Time, bool) {
	for _, layout := range backupLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (p *Probes) BackupCheck(_ context.Context, ec *domain.ExecutionContext) (any, error) {
	c := ec.Compliance()
	maxAge := p.MaxBackupAge
	if maxAge <= 0 {
		maxAge = DefaultMaxBackupAge
	}

	lines := []string{
		"Backup enabled: " + stated(c.BackupEnabled),
		"Last backup: " + text(c.LastBackup),
	}
	switch {
	case c.BackupEnabled == nil || !*c.BackupEnabled:
		lines = append(lines, "Issue: no backup in place")
	case c.LastBackup != "":
		if last, ok := parseBackup(c.LastBackup); ok {
			if age := p.now().Sub(last); age > maxAge {
				lines = append(lines, fmt.Sprintf("Issue: last backup is %d day(s) old", int(age.Hours()/24)))
			}
		}
	}

	return domain.StepResult{
		Status:  domain.StatusSuccess,
		Raw:     strings.Join(lines, "\n"),
		Summary: "Backup and resilience check",
	}, nil
}

func (p *Probes) PCIDSSLight(_ context.Context, ec *domain.ExecutionContext) (any, error) {
	c := ec.Compliance()
	var issues []string
	if c.CardDataEncrypted == nil || !*c.CardDataEncrypted {
		issues = append(issues, "Card data not encrypted")
	}
	if c.SharedAccounts != nil && *c.SharedAccounts {
		issues = append(issues, "Shared POS accounts")
	}

	raw := "Baseline PCI-DSS controls OK"
	if len(issues) > 0 {
		raw = strings.Join(issues, "\n")
	}
	return domain.StepResult{
		Status:  domain.StatusSuccess,
		Raw:     raw,
		Summary: "PCI-DSS light assessment",
	}, nil
}

func (p *Probes) GDPRLight(_ context.Context, ec *domain.ExecutionContext) (any, error) {
	c := ec.Compliance()
	raw := fmt.Sprintf("Privacy policy: %s\nData retention: %s", text(c.PrivacyPolicy), text(c.DataRetention))
	return domain.StepResult{
		Status:  domain.StatusSuccess,
		Raw:     raw,
		Summary: "GDPR light assessment",
	}, nil
}
