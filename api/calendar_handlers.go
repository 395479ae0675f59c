package api

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/threads/pkg/history"
	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/stream"
)

// Event is a calendar event as shown to clients. When is in the event's
// own time zone.
type Event struct {
	Index    int       `json:"index"`
	When     time.Time `json:"when"`
	Text     string    `json:"text"`
	ChatID   string    `json:"chat_id,omitempty"`
	TZ       string    `json:"tz"`
	Notified bool      `json:"notified"`
}

// CalendarResponse lists the events of an entity in index order.
type CalendarResponse struct {
	UUID   string  `json:"uuid"`
	Events []Event `json:"events"`
}

// ReminderRequest adds an event. When is ISO 8601, read in TZ unless it
// carries an offset.
type ReminderRequest struct {
	UUID   string `json:"uuid"`
	When   string `json:"when"`
	Text   string `json:"text"`
	TZ     string `json:"tz,omitempty"`
	ChatID string `json:"chat_id,omitempty"`
}

// CalendarUpdateRequest changes the fields it sets.
type CalendarUpdateRequest struct {
	UUID string  `json:"uuid"`
	When *string `json:"when,omitempty"`
	Text *string `json:"text,omitempty"`
	TZ   *string `json:"tz,omitempty"`
}

// CalendarStatus acknowledges a calendar change.
type CalendarStatus struct {
	Status string `json:"status"`
	Event  *Event `json:"event,omitempty"`
}

// AssistantRequest is a free-text calendar command.
type AssistantRequest struct {
	UUID   string `json:"uuid"`
	Query  string `json:"query"`
	TZ     string `json:"tz,omitempty"`
	ChatID string `json:"chat_id,omitempty"`
}

// FactsResponse lists the facts of an entity.
type FactsResponse struct {
	UUID  string   `json:"uuid"`
	Facts []string `json:"facts"`
}

// DeleteFactRequest removes one fact.
type DeleteFactRequest struct {
	UUID string `json:"uuid"`
	Fact string `json:"fact"`
}

// DeleteFactResponse reports how many facts were removed.
type DeleteFactResponse struct {
	UUID    string `json:"uuid"`
	Removed int    `json:"removed"`
}

func eventView(index int, e storage.CalendarEvent) Event {
	return Event{
		Index:    index,
		When:     history.Local(e),
		Text:     e.Text,
		ChatID:   e.Chat,
		TZ:       e.TZ,
		Notified: e.Notified,
	}
}

func (s *Server) handleCalendar(c *fiber.Ctx) error {
	uuid := c.Query("uuid")
	key, err := s.key(c, uuid, "")
	if err != nil {
		return s.fail(c, err)
	}

	events, err := s.svc.Manager.Events(c.Context(), key.Entity)
	if err != nil {
		return s.fail(c, err)
	}

	out := make([]Event, 0, len(events))
	for i, e := range events {
		out = append(out, eventView(i, e))
	}
	return c.JSON(CalendarResponse{UUID: key.Entity.ID, Events: out})
}

func (s *Server) handleAddReminder(c *fiber.Ctx) error {
	var req ReminderRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, badBody())
	}
	key, err := s.key(c, req.UUID, req.ChatID)
	if err != nil {
		return s.fail(c, err)
	}

	e, err := s.svc.Manager.AddReminder(c.Context(), key.Entity, history.Reminder{
		When: req.When,
		Text: req.Text,
		TZ:   req.TZ,
		Chat: req.ChatID,
	})
	if err != nil {
		return s.fail(c, err)
	}

	index, err := s.indexOf(c, key.Entity, e.ID)
	if err != nil {
		return s.fail(c, err)
	}
	view := eventView(index, e)
	return c.JSON(CalendarStatus{Status: "scheduled", Event: &view})
}

// indexOf returns the current index of the event with id.
func (s *Server) indexOf(c *fiber.Ctx, entity stream.Entity, id int64) (int, error) {
	events, err := s.svc.Manager.Events(c.Context(), entity)
	if err != nil {
		return 0, err
	}
	for i, e := range events {
		if e.ID == id {
			return i, nil
		}
	}
	return -1, nil
}

func (s *Server) handleUpdateEvent(c *fiber.Ctx) error {
	index, err := c.ParamsInt("index")
	if err != nil || index < 0 {
		return s.fail(c, storage.ValidationError{Reason: "index must be a non-negative integer"})
	}

	var req CalendarUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, badBody())
	}
	key, err := s.key(c, req.UUID, "")
	if err != nil {
		return s.fail(c, err)
	}

	e, err := s.svc.Manager.UpdateEvent(c.Context(), key.Entity, index, history.EventUpdate{
		When: req.When,
		Text: req.Text,
		TZ:   req.TZ,
	})
	if err != nil {
		return s.fail(c, err)
	}

	at, err := s.indexOf(c, key.Entity, e.ID)
	if err != nil {
		return s.fail(c, err)
	}
	view := eventView(at, e)
	return c.JSON(CalendarStatus{Status: "updated", Event: &view})
}

// handleDeleteEvent reads uuid from the query string, or from a JSON body.
func (s *Server) handleDeleteEvent(c *fiber.Ctx) error {
	index, err := c.ParamsInt("index")
	if err != nil || index < 0 {
		return s.fail(c, storage.ValidationError{Reason: "index must be a non-negative integer"})
	}

	uuid := c.Query("uuid")
	if uuid == "" && len(c.Body()) > 0 {
		var req struct {
			UUID string `json:"uuid"`
		}
		if err := c.BodyParser(&req); err != nil {
			return s.fail(c, badBody())
		}
		uuid = req.UUID
	}
	key, err := s.key(c, uuid, "")
	if err != nil {
		return s.fail(c, err)
	}

	if err := s.svc.Manager.DeleteEvent(c.Context(), key.Entity, index); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(CalendarStatus{Status: "deleted"})
}

func (s *Server) handleCalendarAssistant(c *fiber.Ctx) error {
	var req AssistantRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, badBody())
	}
	key, err := s.key(c, req.UUID, req.ChatID)
	if err != nil {
		return s.fail(c, err)
	}

	answer, err := s.svc.Manager.Assist(c.Context(), key, req.Query, req.TZ)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(stream.Message{
		Role:    stream.RoleAssistant,
		Content: answer,
		Type:    stream.TypeText,
		TS:      time.Now().UTC(),
	})
}

func (s *Server) handleFacts(c *fiber.Ctx) error {
	key, err := s.key(c, c.Query("uuid"), "")
	if err != nil {
		return s.fail(c, err)
	}

	facts, err := s.svc.Manager.Facts(c.Context(), key.Entity)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(FactsResponse{UUID: key.Entity.ID, Facts: facts})
}

func (s *Server) handleDeleteFact(c *fiber.Ctx) error {
	var req DeleteFactRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, badBody())
	}
	key, err := s.key(c, req.UUID, "")
	if err != nil {
		return s.fail(c, err)
	}

	removed, err := s.svc.Manager.DeleteFact(c.Context(), key.Entity, req.Fact)
	if err != nil {
		return s.fail(c, err)
	}

	resp := DeleteFactResponse{UUID: key.Entity.ID}
	if removed {
		resp.Removed = 1
	}
	return c.JSON(resp)
}
