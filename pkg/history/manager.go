package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/papercomputeco/threads/pkg/derive"
	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/stream"
)

// Manager exposes direct reads and edits of the fact set and the calendar.
type Manager struct {
	store     storage.Driver
	tenants   Tenants
	assistant *derive.CalendarExtractor
	logger    *slog.Logger
}

// NewManager creates a Manager. A nil assistant disables Assist.
func NewManager(store storage.Driver, tenants Tenants, assistant *derive.CalendarExtractor, logger *slog.Logger) *Manager {
	return &Manager{
		store:     store,
		tenants:   tenants,
		assistant: assistant,
		logger:    discard(logger),
	}
}

// Facts lists the stored facts, sorted.
func (m *Manager) Facts(ctx context.Context, entity stream.Entity) ([]string, error) {
	if err := m.tenants.CheckBinding(ctx, entity); err != nil {
		return nil, err
	}
	facts, err := m.store.Facts(ctx, entity)
	if err != nil {
		return nil, storage.Wrap("read facts", err)
	}
	if facts == nil {
		facts = []string{}
	}
	return facts, nil
}

// DeleteFact removes a fact and reports whether it existed.
func (m *Manager) DeleteFact(ctx context.Context, entity stream.Entity, fact string) (bool, error) {
	if strings.TrimSpace(fact) == "" {
		return false, storage.ValidationError{Reason: "fact is required"}
	}
	if err := m.tenants.CheckBinding(ctx, entity); err != nil {
		return false, err
	}
	removed, err := m.store.DeleteFact(ctx, entity, fact)
	return removed, storage.Wrap("delete fact", err)
}

// Events lists the calendar in index order.
func (m *Manager) Events(ctx context.Context, entity stream.Entity) ([]storage.CalendarEvent, error) {
	if err := m.tenants.CheckBinding(ctx, entity); err != nil {
		return nil, err
	}
	events, err := m.store.Events(ctx, entity)
	if err != nil {
		return nil, storage.Wrap("read calendar", err)
	}
	if events == nil {
		events = []storage.CalendarEvent{}
	}
	return events, nil
}

// Reminder is a calendar event added directly. When is read in TZ unless
// it carries an offset.
type Reminder struct {
	When string
	Text string
	TZ   string
	Chat string
}

// AddReminder stores a reminder and returns the stored event.
func (m *Manager) AddReminder(ctx context.Context, entity stream.Entity, r Reminder) (storage.CalendarEvent, error) {
	if strings.TrimSpace(r.Text) == "" {
		return storage.CalendarEvent{}, storage.ValidationError{Reason: "text is required"}
	}
	if r.TZ == "" {
		r.TZ = "UTC"
	}
	at, err := derive.ResolveTime(r.When, r.TZ)
	if err != nil {
		return storage.CalendarEvent{}, err
	}
	if err := m.tenants.CheckBinding(ctx, entity); err != nil {
		return storage.CalendarEvent{}, err
	}

	event, err := m.store.AddEvent(ctx, storage.CalendarEvent{
		Entity: entity,
		At:     at,
		Text:   r.Text,
		TZ:     r.TZ,
		Chat:   r.Chat,
	})
	if err != nil {
		return storage.CalendarEvent{}, storage.Wrap("add event", err)
	}
	m.logger.Debug("reminder scheduled", "entity", entity.String(), "at", at)
	return event, nil
}

// EventUpdate changes selected fields of the event at an index.
type EventUpdate struct {
	When *string
	Text *string
	TZ   *string
}

// UpdateEvent patches the event at index. An index out of range is a
// NotFoundError.
func (m *Manager) UpdateEvent(ctx context.Context, entity stream.Entity, index int, u EventUpdate) (storage.CalendarEvent, error) {
	if err := m.tenants.CheckBinding(ctx, entity); err != nil {
		return storage.CalendarEvent{}, err
	}

	patch := storage.EventPatch{Text: u.Text, TZ: u.TZ}
	if u.When != nil {
		tz := "UTC"
		if u.TZ != nil {
			tz = *u.TZ
		} else if current, err := m.eventAt(ctx, entity, index); err == nil {
			tz = current.TZ
		} else {
			return storage.CalendarEvent{}, err
		}

		at, err := derive.ResolveTime(*u.When, tz)
		if err != nil {
			return storage.CalendarEvent{}, err
		}
		patch.At = &at
	}

	event, err := m.store.UpdateEvent(ctx, entity, index, patch)
	return event, storage.Wrap("update event", err)
}

func (m *Manager) eventAt(ctx context.Context, entity stream.Entity, index int) (storage.CalendarEvent, error) {
	events, err := m.store.Events(ctx, entity)
	if err != nil {
		return storage.CalendarEvent{}, storage.Wrap("read calendar", err)
	}
	if index < 0 || index >= len(events) {
		return storage.CalendarEvent{}, storage.NotFoundError{What: "calendar event", Key: entity.String()}
	}
	return events[index], nil
}

// DeleteEvent removes the event at index. An index out of range is a
// NotFoundError.
func (m *Manager) DeleteEvent(ctx context.Context, entity stream.Entity, index int) error {
	if err := m.tenants.CheckBinding(ctx, entity); err != nil {
		return err
	}
	return storage.Wrap("delete event", m.store.DeleteEvent(ctx, entity, index))
}

// Assist runs a free-text calendar command and returns the answer.
func (m *Manager) Assist(ctx context.Context, key stream.Key, query, tz string) (string, error) {
	if err := m.tenants.CheckBinding(ctx, key.Entity); err != nil {
		return "", err
	}
	flags, err := m.tenants.Flags(ctx, key.Entity.Company)
	if err != nil {
		return "", err
	}
	if !flags.EnableCalendar {
		return "", fmt.Errorf("calendar: %w", ErrFeatureDisabled)
	}
	if m.assistant == nil {
		return "", &storage.CapabilityError{Capability: "llm", Err: errors.New("no chat completion provider configured")}
	}
	return m.assistant.Assist(ctx, key.Entity, key.Chat, query, tz)
}

// Local returns the instant of e in its origin time zone.
func Local(e storage.CalendarEvent) time.Time {
	return e.At.In(derive.LoadLocation(e.TZ))
}
