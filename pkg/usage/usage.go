// Package usage records message and token consumption per company and per
// entity and prices it.
package usage

import (
	"context"
	"log/slog"

	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/stream"
)

// Meter is the usage accumulator. Counters are increment-only.
type Meter struct {
	usage    storage.UsageStore
	tenants  storage.TenantStore
	defaults storage.Pricing
	logger   *slog.Logger
}

// NewMeter creates a meter. defaults prices companies that set no pricing
// of their own.
func NewMeter(usage storage.UsageStore, tenants storage.TenantStore, defaults storage.Pricing, logger *slog.Logger) *Meter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Meter{
		usage:    usage,
		tenants:  tenants,
		defaults: defaults,
		logger:   logger,
	}
}

// Record adds messages and tokens to the company and entity counters.
func (m *Meter) Record(ctx context.Context, entity stream.Entity, messages, tokens int64) error {
	if messages == 0 && tokens == 0 {
		return nil
	}
	return m.usage.IncrementUsage(ctx, entity.Company, entity.ID, messages, tokens)
}

// RecordText records one message worth of usage for text, counting its tokens.
func (m *Meter) RecordText(ctx context.Context, entity stream.Entity, text string) error {
	return m.Record(ctx, entity, 1, int64(stream.CountTokens(text)))
}

// Cost prices u.
func Cost(u storage.Usage, p storage.Pricing) float64 {
	return float64(u.Messages)*p.CostPerMessage + float64(u.Tokens)*p.CostPerToken
}

// Pricing returns the effective prices of a company. Unset company prices
// fall back to the defaults field by field.
func (m *Meter) Pricing(c storage.Company) storage.Pricing {
	p := c.Pricing
	if p.CostPerMessage == 0 {
		p.CostPerMessage = m.defaults.CostPerMessage
	}
	if p.CostPerToken == 0 {
		p.CostPerToken = m.defaults.CostPerToken
	}
	return p
}

// UserReport is the usage of one entity.
type UserReport struct {
	User  string                      `json:"user"`
	Usage storage.Usage               `json:"usage"`
	Cost  float64                     `json:"cost"`
	Stats map[string]map[string]int64 `json:"stats,omitempty"`
}

// Report is the usage and cost of a company and each of its users.
type Report struct {
	Company string          `json:"company"`
	Usage   storage.Usage   `json:"usage"`
	Cost    float64         `json:"cost"`
	Pricing storage.Pricing `json:"pricing"`
	Users   []UserReport    `json:"users"`
}

// Report builds the usage report of a company.
func (m *Meter) Report(ctx context.Context, company string) (*Report, error) {
	c, err := m.tenants.Company(ctx, company)
	if err != nil {
		return nil, err
	}
	pricing := m.Pricing(c)

	total, err := m.usage.Usage(ctx, company)
	if err != nil {
		return nil, err
	}

	users, err := m.tenants.Users(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Company: company,
		Usage:   total,
		Cost:    Cost(total, pricing),
		Pricing: pricing,
		Users:   []UserReport{},
	}
	for _, u := range users {
		if u.Company != company {
			continue
		}

		eu, err := m.usage.EntityUsage(ctx, company, u.Name)
		if err != nil {
			return nil, err
		}
		stats, err := m.usage.Stats(ctx, u.Entity())
		if err != nil {
			return nil, err
		}

		report.Users = append(report.Users, UserReport{
			User:  u.Name,
			Usage: eu,
			Cost:  Cost(eu, pricing),
			Stats: stats,
		})
	}
	return report, nil
}
