package derive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/threads/pkg/llm"
	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/stream"
)

var (
	// calendarKeywords gate both stages: messages without one are ignored.
	calendarKeywords = []string{"напом", "remind", "календар", "встреч", "удал", "измен", "покаж"}

	reminderMarkers = []string{"напомни", "remind"}

	reminderPattern = regexp.MustCompile(`(завтра|сегодня|tomorrow|today).*?(\d{1,2})[:.](\d{2})`)
)

// isoLayouts are accepted by ResolveTime, most specific first.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

const (
	calendarSystemPrompt = "Current time is %s (%s). Message time is %s (%s). " +
		"Extract calendar command. Use add_event, update_event, delete_event or list_events if appropriate. " +
		"If nothing matches, do nothing."

	assistantSystemPrompt = "Current time is %s (%s). You are a calendar assistant. " +
		"Use the functions to manage the user's events. Check the event list first."
)

var calendarTools = []llm.Tool{
	{
		Name:        "list_events",
		Description: "List calendar events",
		Parameters:  llm.ObjectSchema(nil, nil),
	},
	{
		Name:        "add_event",
		Description: "Add event to calendar",
		Parameters: llm.ObjectSchema([]string{"when", "text"}, map[string]any{
			"when": "ISO8601 datetime",
			"text": "Event text",
			"tz":   "IANA time zone of when",
		}),
	},
	{
		Name:        "update_event",
		Description: "Update event by index",
		Parameters: llm.ObjectSchema([]string{"index"}, map[string]any{
			"index": map[string]any{"type": "integer"},
			"when":  "ISO8601 datetime",
			"text":  "Event text",
			"tz":    "IANA time zone of when",
		}),
	},
	{
		Name:        "delete_event",
		Description: "Delete event by index",
		Parameters: llm.ObjectSchema([]string{"index"}, map[string]any{
			"index": map[string]any{"type": "integer"},
		}),
	},
}

// LoadLocation resolves an IANA zone name, falling back to UTC.
func LoadLocation(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ResolveTime parses an ISO 8601 time. A time without an offset is read as
// wall clock time in tz. The result is in UTC.
func ResolveTime(when, tz string) (time.Time, error) {
	when = strings.TrimSpace(when)
	loc := LoadLocation(tz)

	for _, layout := range isoLayouts {
		var (
			t   time.Time
			err error
		)
		if layout == time.RFC3339Nano {
			t, err = time.Parse(layout, when)
		} else {
			t, err = time.ParseInLocation(layout, when, loc)
		}
		if err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, storage.ValidationError{Reason: fmt.Sprintf("invalid time %q", when)}
}

// ParseReminder is the rule stage of calendar extraction. It recognizes
// "remind me today|tomorrow ... HH:MM" phrases and resolves them against
// the calendar date of now in loc. The result is in UTC.
func ParseReminder(text string, now time.Time, loc *time.Location) (time.Time, bool) {
	low := strings.ToLower(text)
	if !containsAny(low, reminderMarkers) {
		return time.Time{}, false
	}

	m := reminderPattern.FindStringSubmatch(low)
	if m == nil {
		return time.Time{}, false
	}
	hour, _ := strconv.Atoi(m[2])
	minute, _ := strconv.Atoi(m[3])
	if hour > 23 || minute > 59 {
		return time.Time{}, false
	}

	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	day := 0
	if m[1] == "завтра" || m[1] == "tomorrow" {
		day = 1
	}
	at := time.Date(local.Year(), local.Month(), local.Day()+day, hour, minute, 0, 0, loc)
	return at.UTC(), true
}

// CalendarExtractor maintains calendar events from user messages. Explicit
// reminder phrases are added directly; other calendar-like messages go to
// the chat completion capability, which manages events through tools.
type CalendarExtractor struct {
	calendar storage.CalendarStore
	client   llm.Client
	policy   *Policy
	now      func() time.Time
	logger   *slog.Logger
}

// NewCalendarExtractor creates the calendar derivation. A nil client
// disables the fallback stage.
func NewCalendarExtractor(calendar storage.CalendarStore, client llm.Client, policy *Policy, logger *slog.Logger) *CalendarExtractor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if policy == nil {
		policy = NewPolicy(DefaultPolicyConfig())
	}
	return &CalendarExtractor{
		calendar: calendar,
		client:   client,
		policy:   policy,
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock replaces the clock used for the "current time" given to the
// model.
func (c *CalendarExtractor) WithClock(now func() time.Time) *CalendarExtractor {
	c.now = now
	return c
}

func (c *CalendarExtractor) Kind() string { return KindCalendar }

func (c *CalendarExtractor) Apply(ctx context.Context, key stream.Key, entries []stream.Entry) (Commit, error) {
	plan := newCalendarPlan(c.calendar, key.Entity)
	for _, e := range entries {
		msg := e.Message
		if !userText(msg) || strings.TrimSpace(msg.Content) == "" {
			continue
		}

		text := strings.TrimSpace(msg.Content)
		if !containsAny(strings.ToLower(text), calendarKeywords) {
			continue
		}

		tz := msg.ExtraString(stream.ExtraTZ)
		if tz == "" {
			tz = "UTC"
		}

		if at, ok := ParseReminder(text, msg.TS, LoadLocation(tz)); ok {
			plan.add(storage.CalendarEvent{Entity: key.Entity, At: at, Text: text, TZ: tz, Chat: key.Chat})
			continue
		}

		if c.client == nil {
			continue
		}

		now := c.now().UTC()
		ts := msg.TS.UTC()
		system := fmt.Sprintf(calendarSystemPrompt,
			now.Format(time.RFC3339), now.Weekday(),
			ts.Format(time.RFC3339), ts.Weekday(),
		)
		if _, err := c.converse(ctx, plan, key.Chat, system, text, tz); err != nil {
			return nil, err
		}
	}

	if plan.empty() {
		return nil, nil
	}
	return plan.commit, nil
}

// Assist runs a free-text calendar command synchronously and returns the
// model's final answer.
func (c *CalendarExtractor) Assist(ctx context.Context, entity stream.Entity, chat, query, tz string) (string, error) {
	if c.client == nil {
		return "", capabilityError("llm", errors.New("no chat completion provider configured"))
	}
	if strings.TrimSpace(query) == "" {
		return "", storage.ValidationError{Reason: "query is required"}
	}
	if tz == "" {
		tz = "UTC"
	}

	now := c.now().UTC()
	plan := newCalendarPlan(c.calendar, entity)
	answer, err := c.converse(ctx, plan, chat, fmt.Sprintf(assistantSystemPrompt, now.Format(time.RFC3339), now.Weekday()), query, tz)
	if err != nil {
		return "", err
	}
	if err := plan.commit(ctx); err != nil {
		return "", err
	}
	return answer, nil
}

func (c *CalendarExtractor) converse(ctx context.Context, plan *calendarPlan, chat, system, text, tz string) (string, error) {
	req := &llm.ChatRequest{
		System:   system,
		Messages: []llm.Message{llm.NewTextMessage("user", text)},
		Tools:    calendarTools,
	}

	handler := func(ctx context.Context, call llm.ToolCall) (string, error) {
		switch call.Name {
		case "list_events":
			view, err := plan.view(ctx)
			if err != nil {
				return "", err
			}
			return toJSON(listing(view)), nil

		case "add_event":
			eventTZ := call.String("tz")
			if eventTZ == "" {
				eventTZ = tz
			}
			at, err := ResolveTime(call.String("when"), eventTZ)
			if err != nil {
				return toJSON(map[string]string{"status": "invalid"}), nil
			}
			eventText := strings.TrimSpace(call.String("text"))
			if eventText == "" {
				eventText = text
			}
			plan.add(storage.CalendarEvent{Entity: plan.entity, At: at, Text: eventText, TZ: eventTZ, Chat: chat})
			return toJSON(map[string]string{"status": "added"}), nil

		case "update_event":
			index, ok := call.Int("index")
			if !ok {
				return toJSON(map[string]string{"status": "not_found"}), nil
			}
			var patch storage.EventPatch
			if s := call.String("text"); s != "" {
				patch.Text = &s
			}
			if s := call.String("tz"); s != "" {
				patch.TZ = &s
			}
			if s := call.String("when"); s != "" {
				zone := tz
				if patch.TZ != nil {
					zone = *patch.TZ
				}
				at, err := ResolveTime(s, zone)
				if err != nil {
					return toJSON(map[string]string{"status": "invalid"}), nil
				}
				patch.At = &at
			}
			found, err := plan.update(ctx, index, patch)
			if err != nil {
				return "", err
			}
			if !found {
				return toJSON(map[string]string{"status": "not_found"}), nil
			}
			return toJSON(map[string]string{"status": "updated"}), nil

		case "delete_event":
			index, ok := call.Int("index")
			if !ok {
				return toJSON(map[string]string{"status": "not_found"}), nil
			}
			found, err := plan.remove(ctx, index)
			if err != nil {
				return "", err
			}
			if !found {
				return toJSON(map[string]string{"status": "not_found"}), nil
			}
			return toJSON(map[string]string{"status": "deleted"}), nil

		default:
			return toJSON(map[string]string{"status": "unknown"}), nil
		}
	}

	resp, err := llm.RunTools(ctx, c.client, req, handler, c.policy.ToolIterations())
	if err != nil {
		return "", capabilityError("llm", err)
	}
	return resp.Message.GetText(), nil
}

type eventListing struct {
	Index int    `json:"index"`
	When  string `json:"when"`
	Text  string `json:"text"`
	TZ    string `json:"tz"`
}

func listing(events []storage.CalendarEvent) []eventListing {
	out := make([]eventListing, len(events))
	for i, e := range events {
		out[i] = eventListing{Index: i, When: e.At.UTC().Format(time.RFC3339), Text: e.Text, TZ: e.TZ}
	}
	return out
}

// calendarPlan stages calendar changes. Index based tool calls are resolved
// against the staged view to event IDs, so the commit is independent of how
// the stored positions shift and can be replayed.
type calendarPlan struct {
	store  storage.CalendarStore
	entity stream.Entity

	loaded  bool
	stored  []storage.CalendarEvent
	adds    []storage.CalendarEvent
	updates map[int64]storage.EventPatch
	deletes map[int64]bool
}

func newCalendarPlan(store storage.CalendarStore, entity stream.Entity) *calendarPlan {
	return &calendarPlan{
		store:   store,
		entity:  entity,
		updates: make(map[int64]storage.EventPatch),
		deletes: make(map[int64]bool),
	}
}

func (p *calendarPlan) empty() bool {
	return len(p.adds) == 0 && len(p.updates) == 0 && len(p.deletes) == 0
}

func (p *calendarPlan) add(e storage.CalendarEvent) {
	// staged events carry negative IDs until committed
	e.ID = -int64(len(p.adds) + 1)
	p.adds = append(p.adds, e)
}

func (p *calendarPlan) load(ctx context.Context) error {
	if p.loaded {
		return nil
	}
	events, err := p.store.Events(ctx, p.entity)
	if err != nil {
		return err
	}
	p.stored = events
	p.loaded = true
	return nil
}

// view returns the events as they will be after the commit, in index order.
func (p *calendarPlan) view(ctx context.Context) ([]storage.CalendarEvent, error) {
	if err := p.load(ctx); err != nil {
		return nil, err
	}

	out := make([]storage.CalendarEvent, 0, len(p.stored)+len(p.adds))
	for _, e := range p.stored {
		if p.deletes[e.ID] {
			continue
		}
		if patch, ok := p.updates[e.ID]; ok {
			e = patched(e, patch)
		}
		out = append(out, e)
	}
	out = append(out, p.adds...)

	slices.SortStableFunc(out, func(a, b storage.CalendarEvent) int {
		return a.At.Compare(b.At)
	})
	return out, nil
}

func (p *calendarPlan) at(ctx context.Context, index int) (storage.CalendarEvent, bool, error) {
	view, err := p.view(ctx)
	if err != nil {
		return storage.CalendarEvent{}, false, err
	}
	if index < 0 || index >= len(view) {
		return storage.CalendarEvent{}, false, nil
	}
	return view[index], true, nil
}

func (p *calendarPlan) update(ctx context.Context, index int, patch storage.EventPatch) (bool, error) {
	e, ok, err := p.at(ctx, index)
	if err != nil || !ok {
		return false, err
	}

	if e.ID < 0 {
		i := slices.IndexFunc(p.adds, func(a storage.CalendarEvent) bool { return a.ID == e.ID })
		p.adds[i] = patched(p.adds[i], patch)
		return true, nil
	}

	prev := p.updates[e.ID]
	if patch.At != nil {
		prev.At = patch.At
	}
	if patch.Text != nil {
		prev.Text = patch.Text
	}
	if patch.TZ != nil {
		prev.TZ = patch.TZ
	}
	p.updates[e.ID] = prev
	return true, nil
}

func (p *calendarPlan) remove(ctx context.Context, index int) (bool, error) {
	e, ok, err := p.at(ctx, index)
	if err != nil || !ok {
		return false, err
	}

	if e.ID < 0 {
		p.adds = slices.DeleteFunc(p.adds, func(a storage.CalendarEvent) bool { return a.ID == e.ID })
		return true, nil
	}
	delete(p.updates, e.ID)
	p.deletes[e.ID] = true
	return true, nil
}

// commit applies the plan against the current stored state. Events that
// vanished in the meantime are skipped and adds already present are not
// repeated.
func (p *calendarPlan) commit(ctx context.Context) error {
	for id := range p.deletes {
		index, err := p.indexOf(ctx, id)
		if err != nil {
			return err
		}
		if index < 0 {
			continue
		}
		if err := p.store.DeleteEvent(ctx, p.entity, index); err != nil && !storage.IsNotFound(err) {
			return err
		}
	}

	for id, patch := range p.updates {
		index, err := p.indexOf(ctx, id)
		if err != nil {
			return err
		}
		if index < 0 {
			continue
		}
		if _, err := p.store.UpdateEvent(ctx, p.entity, index, patch); err != nil && !storage.IsNotFound(err) {
			return err
		}
	}

	if len(p.adds) == 0 {
		return nil
	}
	existing, err := p.store.Events(ctx, p.entity)
	if err != nil {
		return err
	}
	for _, e := range p.adds {
		if slices.ContainsFunc(existing, func(x storage.CalendarEvent) bool { return sameEvent(x, e) }) {
			continue
		}
		e.ID = 0
		added, err := p.store.AddEvent(ctx, e)
		if err != nil {
			return err
		}
		existing = append(existing, added)
	}
	return nil
}

func (p *calendarPlan) indexOf(ctx context.Context, id int64) (int, error) {
	events, err := p.store.Events(ctx, p.entity)
	if err != nil {
		return -1, err
	}
	return slices.IndexFunc(events, func(e storage.CalendarEvent) bool { return e.ID == id }), nil
}

func patched(e storage.CalendarEvent, patch storage.EventPatch) storage.CalendarEvent {
	if patch.At != nil {
		e.At = *patch.At
	}
	if patch.Text != nil {
		e.Text = *patch.Text
	}
	if patch.TZ != nil {
		e.TZ = *patch.TZ
	}
	return e
}

func sameEvent(a, b storage.CalendarEvent) bool {
	return a.At.Equal(b.At) && a.Text == b.Text && a.Chat == b.Chat
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
