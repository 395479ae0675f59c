package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/threads/pkg/history"
)

var (
	factsToolName    = "facts"
	factsDescription = "Recall the facts remembered about you from past conversations."

	calendarToolName    = "calendar"
	calendarDescription = "List your calendar events and reminders, each in its own time zone."
)

// FactsInput represents the input arguments for the facts tool.
type FactsInput struct{}

// FactsOutput represents the output of the facts tool.
type FactsOutput struct {
	Facts []string `json:"facts"`
}

func (t *tools) handleFacts(ctx context.Context, _ *mcp.CallToolRequest, _ FactsInput) (*mcp.CallToolResult, FactsOutput, error) {
	facts, err := t.manager.Facts(ctx, t.user.Entity())
	if err != nil {
		return t.failure(factsToolName, err), FactsOutput{}, nil
	}
	return result(FactsOutput{Facts: facts})
}

// CalendarInput represents the input arguments for the calendar tool.
type CalendarInput struct {
	Pending bool `json:"pending,omitempty" jsonschema:"only list events not yet notified"`
}

// CalendarEvent is one event. When is RFC 3339 in the event's time zone.
type CalendarEvent struct {
	Index    int    `json:"index"`
	When     string `json:"when"`
	Text     string `json:"text"`
	TZ       string `json:"tz"`
	ChatID   string `json:"chat_id,omitempty"`
	Notified bool   `json:"notified"`
}

// CalendarOutput represents the output of the calendar tool.
type CalendarOutput struct {
	Events []CalendarEvent `json:"events"`
}

func (t *tools) handleCalendar(ctx context.Context, _ *mcp.CallToolRequest, input CalendarInput) (*mcp.CallToolResult, CalendarOutput, error) {
	events, err := t.manager.Events(ctx, t.user.Entity())
	if err != nil {
		return t.failure(calendarToolName, err), CalendarOutput{}, nil
	}

	out := CalendarOutput{Events: []CalendarEvent{}}
	for i, e := range events {
		if input.Pending && e.Notified {
			continue
		}
		out.Events = append(out.Events, CalendarEvent{
			Index:    i,
			When:     history.Local(e).Format(time.RFC3339),
			Text:     e.Text,
			TZ:       e.TZ,
			ChatID:   e.Chat,
			Notified: e.Notified,
		})
	}
	return result(out)
}
