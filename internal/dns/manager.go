// Package dns optionally registers the deployment's public entrypoint host
// in Cloudflare DNS.
package dns

import (
	"context"
	"fmt"
	"sync"

	cf "github.com/cloudflare/cloudflare-go"
	"github.com/rs/zerolog"

	"convoy/internal/config"
)

// Manager maintains the A record for the entrypoint host. When the
// integration is disabled it is a logging no-op, so callers never need to
// branch on configuration.
type Manager struct {
	api        *cf.API
	cfg        config.CloudflareConfig
	serverAddr string
	log        zerolog.Logger

	mu      sync.Mutex
	records map[string]string // host -> record ID
}

// NewManager creates a DNS manager. serverAddr is the address records point
// at.
func NewManager(cfg config.CloudflareConfig, serverAddr string, logger zerolog.Logger) (*Manager, error) {
	m := &Manager{
		cfg:        cfg,
		serverAddr: serverAddr,
		log:        logger.With().Str("component", "dns").Logger(),
		records:    make(map[string]string),
	}
	if !cfg.Enabled {
		return m, nil
	}

	api, err := cf.NewWithAPIToken(cfg.APIToken)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudflare client: %w", err)
	}
	m.api = api
	return m, nil
}

// EnsureRecord creates or updates the A record for host so it points at the
// server address.
func (m *Manager) EnsureRecord(ctx context.Context, host string) error {
	if !m.cfg.Enabled {
		m.log.Debug().Str("host", host).Msg("dns integration disabled, skipping record")
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	zone := cf.ZoneIdentifier(m.cfg.ZoneID)
	existing, _, err := m.api.ListDNSRecords(ctx, zone, cf.ListDNSRecordsParams{Type: "A", Name: host})
	if err != nil {
		return fmt.Errorf("failed to list DNS records for %s: %w", host, err)
	}

	if len(existing) > 0 {
		record := existing[0]
		m.records[host] = record.ID
		if record.Content == m.serverAddr {
			return nil
		}
		_, err := m.api.UpdateDNSRecord(ctx, zone, cf.UpdateDNSRecordParams{
			ID:      record.ID,
			Type:    "A",
			Name:    host,
			Content: m.serverAddr,
		})
		if err != nil {
			return fmt.Errorf("failed to update DNS record for %s: %w", host, err)
		}
		m.log.Info().Str("host", host).Str("address", m.serverAddr).Msg("dns record updated")
		return nil
	}

	record, err := m.api.CreateDNSRecord(ctx, zone, cf.CreateDNSRecordParams{
		Type:    "A",
		Name:    host,
		Content: m.serverAddr,
		TTL:     120,
	})
	if err != nil {
		return fmt.Errorf("failed to create DNS record for %s: %w", host, err)
	}
	m.records[host] = record.ID
	m.log.Info().Str("host", host).Str("address", m.serverAddr).Msg("dns record created")
	return nil
}

// DeleteRecord removes the A record previously ensured for host.
func (m *Manager) DeleteRecord(ctx context.Context, host string) error {
	if !m.cfg.Enabled {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.records[host]
	if !ok {
		zone := cf.ZoneIdentifier(m.cfg.ZoneID)
		existing, _, err := m.api.ListDNSRecords(ctx, zone, cf.ListDNSRecordsParams{Type: "A", Name: host})
		if err != nil {
			return fmt.Errorf("failed to list DNS records for %s: %w", host, err)
		}
		if len(existing) == 0 {
			return nil
		}
		id = existing[0].ID
	}

	if err := m.api.DeleteDNSRecord(ctx, cf.ZoneIdentifier(m.cfg.ZoneID), id); err != nil {
		return fmt.Errorf("failed to delete DNS record for %s: %w", host, err)
	}
	delete(m.records, host)
	m.log.Info().Str("host", host).Msg("dns record deleted")
	return nil
}
