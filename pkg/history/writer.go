package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/papercomputeco/threads/pkg/blob"
	"github.com/papercomputeco/threads/pkg/compress"
	"github.com/papercomputeco/threads/pkg/derive"
	"github.com/papercomputeco/threads/pkg/eventstream"
	"github.com/papercomputeco/threads/pkg/llm"
	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/stream"
	"github.com/papercomputeco/threads/pkg/transcribe"
	"github.com/papercomputeco/threads/pkg/usage"
)

const forcedSummaryPrompt = "Summarize the following user chat history so that an LLM assistant " +
	"can quickly recall the user's background, preferences, and key facts.\n\n"

// WriterConfig configures a Writer. Store, Tenants and Meter are required.
type WriterConfig struct {
	Store   storage.Driver
	Tenants Tenants
	Meter   *usage.Meter

	// Codec compresses qualifying text before it is stored.
	Codec *compress.Codec

	// Fanout dispatches derivations after each write. Nil disables them.
	Fanout *derive.Fanout

	// Blobs stores attachments. Nil rejects writes that carry one.
	Blobs blob.Store

	// Transcriber turns audio attachments into text. Nil stores an empty
	// transcript.
	Transcriber transcribe.Transcriber

	// Publisher receives an event per appended entry. Nil publishes nothing.
	Publisher eventstream.Publisher

	// LLM produces forced summaries.
	LLM llm.Client

	Counter stream.TokenCounter
	Clock   func() time.Time
	Logger  *slog.Logger
}

// Writer is the write path: it appends messages and triggers derivations
// without waiting for them.
type Writer struct {
	reader

	tenants     Tenants
	meter       *usage.Meter
	fanout      *derive.Fanout
	blobs       blob.Store
	transcriber transcribe.Transcriber
	publisher   eventstream.Publisher
	llm         llm.Client
	counter     stream.TokenCounter
	now         func() time.Time
}

// NewWriter creates a Writer.
func NewWriter(c *WriterConfig) *Writer {
	counter := c.Counter
	if counter == nil {
		counter = stream.CountTokens
	}
	now := c.Clock
	if now == nil {
		now = time.Now
	}

	return &Writer{
		reader: reader{
			store:  c.Store,
			codec:  c.Codec,
			logger: discard(c.Logger),
		},
		tenants:     c.Tenants,
		meter:       c.Meter,
		fanout:      c.Fanout,
		blobs:       c.Blobs,
		transcriber: c.Transcriber,
		publisher:   c.Publisher,
		llm:         c.LLM,
		counter:     counter,
		now:         now,
	}
}

// Add appends a batch of messages to the stream of key and returns their
// IDs in order. Derivations are dispatched in the background. If an append
// fails, the IDs of the messages already written are returned with the
// error.
func (w *Writer) Add(ctx context.Context, key stream.Key, inputs []Input) ([]stream.EntryID, error) {
	if len(inputs) == 0 {
		return nil, storage.ValidationError{Reason: "no messages"}
	}
	for i := range inputs {
		inputs[i].Message.Normalize()
		if err := inputs[i].Message.Validate(); err != nil {
			return nil, storage.ValidationError{Reason: fmt.Sprintf("message %d: %s", i, err)}
		}
		if inputs[i].Attachment != nil && w.blobs == nil {
			return nil, storage.ValidationError{Reason: "attachments are not supported"}
		}
	}

	entity := key.Entity
	if err := w.tenants.CheckBinding(ctx, entity); err != nil {
		return nil, err
	}
	flags, err := w.tenants.Flags(ctx, entity.Company)
	if err != nil {
		return nil, err
	}

	now := w.now()
	if err := w.store.Touch(ctx, entity, now); err != nil {
		return nil, storage.Wrap("touch", err)
	}

	before, err := w.store.Length(ctx, key)
	if err != nil {
		return nil, storage.Wrap("length", err)
	}

	ids := make([]stream.EntryID, 0, len(inputs))
	var tokens int64
	for _, in := range inputs {
		msg := in.Message.Clone()
		if in.Attachment != nil {
			if err := w.attach(ctx, entity, &msg, in.Attachment); err != nil {
				return ids, err
			}
		}

		n := 0
		if msg.IsText() {
			n = w.counter(msg.Content)
			tokens += int64(n)
		}

		if w.codec != nil {
			if err := w.codec.Maybe(&msg); err != nil {
				w.logger.Warn("storing message uncompressed",
					"stream", key.String(),
					"error", err,
				)
			}
		}

		id, err := w.store.Append(ctx, key, msg)
		if err != nil {
			return ids, storage.Wrap("append", err)
		}
		ids = append(ids, id)

		w.recordStats(ctx, entity, msg)
		w.publish(ctx, key, stream.Entry{ID: id, Message: msg}, n)
	}

	if err := w.meter.Record(ctx, entity, int64(len(inputs)), tokens); err != nil {
		w.logger.Error("failed to record usage",
			"company", entity.Company,
			"entity", entity.ID,
			"error", err,
		)
	}

	if w.fanout != nil {
		after, err := w.store.Length(ctx, key)
		if err != nil {
			w.logger.Warn("failed to read stream length", "stream", key.String(), "error", err)
			after = before + int64(len(ids))
		}
		w.fanout.Written(key, flags, before, after)
	}

	w.logger.Debug("messages appended",
		"stream", key.String(),
		"count", len(ids),
		"tokens", tokens,
	)
	return ids, nil
}

func (w *Writer) attach(ctx context.Context, entity stream.Entity, msg *stream.Message, a *Attachment) error {
	key := blob.NewKey(entity.Company+"/"+entity.ID, a.Filename)
	url, err := w.blobs.Put(ctx, a.Data, key, a.ContentType)
	if err != nil {
		return storage.Wrap("upload attachment", err)
	}

	msg.SetExtra(stream.ExtraURL, url)
	msg.SetExtra(stream.ExtraSize, len(a.Data))
	msg.SetExtra(stream.ExtraFormat, a.ContentType)

	if msg.Type != stream.TypeAudio {
		msg.Content = url
		return nil
	}

	transcript := ""
	if w.transcriber != nil {
		t, err := w.transcriber.Transcribe(ctx, a.Data, "")
		if err != nil {
			w.logger.Error("audio transcription failed",
				"company", entity.Company,
				"entity", entity.ID,
				"error", err,
			)
		} else {
			transcript = t
		}
	}
	msg.Type = stream.TypeText
	msg.Content = transcript
	msg.SetExtra(stream.ExtraTranscribedFrom, stream.TypeAudio)
	return nil
}

func (w *Writer) recordStats(ctx context.Context, entity stream.Entity, msg stream.Message) {
	for dim, field := range map[string]string{storage.StatRole: msg.Role, storage.StatType: msg.Type} {
		if err := w.store.IncrementStat(ctx, entity, dim, field); err != nil {
			w.logger.Warn("failed to record stat",
				"entity", entity.String(),
				"dimension", dim,
				"error", err,
			)
		}
	}
}

func (w *Writer) publish(ctx context.Context, key stream.Key, entry stream.Entry, tokens int) {
	if w.publisher == nil {
		return
	}
	event := eventstream.NewEntryAppendedEvent(key, entry, tokens, w.now())
	if err := w.publisher.PublishEntry(ctx, event); err != nil {
		w.logger.Warn("failed to publish entry event",
			"stream", key.String(),
			"id", entry.ID.String(),
			"error", err,
		)
	}
}

// Summarize summarizes the whole stream now, overwrites the entity summary
// and returns it.
func (w *Writer) Summarize(ctx context.Context, key stream.Key) (string, error) {
	entity := key.Entity
	if err := w.tenants.CheckBinding(ctx, entity); err != nil {
		return "", err
	}
	flags, err := w.tenants.Flags(ctx, entity.Company)
	if err != nil {
		return "", err
	}
	if !flags.EnableSummary {
		return "", fmt.Errorf("summary: %w", ErrFeatureDisabled)
	}
	if w.llm == nil {
		return "", &storage.CapabilityError{Capability: "llm", Err: errors.New("no chat completion provider configured")}
	}

	entries, err := w.store.ReadRange(ctx, key, nil, nil, 0)
	if err != nil {
		return "", storage.Wrap("read stream", err)
	}
	w.present(ctx, key, entries)

	var tokens int64
	messages := make([]stream.Message, 0, len(entries))
	for _, e := range entries {
		tokens += int64(w.counter(e.Message.Content))
		messages = append(messages, e.Message)
	}
	payload, err := json.Marshal(messages)
	if err != nil {
		return "", fmt.Errorf("encoding history: %w", err)
	}

	w.logger.Info("summarizing history", "stream", key.String(), "entries", len(entries))
	resp, err := w.llm.Chat(ctx, &llm.ChatRequest{
		Messages: []llm.Message{llm.NewTextMessage("user", forcedSummaryPrompt+string(payload))},
	})
	if err != nil {
		return "", &storage.CapabilityError{Capability: "llm", Err: err}
	}

	summary := resp.Text()
	if resp.Truncated() {
		w.logger.Warn("summary cut off by token limit", "stream", key.String())
	}
	if err := w.store.PutSummary(ctx, entity, summary); err != nil {
		return "", storage.Wrap("put summary", err)
	}

	if err := w.meter.Record(ctx, entity, 1, tokens); err != nil {
		w.logger.Error("failed to record usage", "entity", entity.String(), "error", err)
	}
	return summary, nil
}
