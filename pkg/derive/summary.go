package derive

import (
	"context"
	"log/slog"

	"github.com/papercomputeco/threads/pkg/llm"
	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/stream"
)

const summaryPrompt = "Summarize the following chat history for quick recall by an assistant:\n\n"

// Summarizer overwrites the entity summary from the most recent window of a
// stream once the window holds enough tokens.
type Summarizer struct {
	summaries storage.SummaryStore
	client    llm.Client
	policy    *Policy
	counter   stream.TokenCounter
	logger    *slog.Logger
}

// NewSummarizer creates the summary derivation.
func NewSummarizer(summaries storage.SummaryStore, client llm.Client, policy *Policy, counter stream.TokenCounter, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if policy == nil {
		policy = NewPolicy(DefaultPolicyConfig())
	}
	if counter == nil {
		counter = stream.CountTokens
	}
	return &Summarizer{
		summaries: summaries,
		client:    client,
		policy:    policy,
		counter:   counter,
		logger:    logger,
	}
}

func (s *Summarizer) Kind() string { return KindSummary }

// Window returns the most recent SummaryWindow entries, oldest first. When
// the newest entry is the one last summarized there is nothing to do.
func (s *Summarizer) Window(ctx context.Context, streams storage.StreamStore, key stream.Key, cursor *stream.EntryID) ([]stream.Entry, error) {
	recent, err := streams.ReadRecent(ctx, key, s.policy.SummaryWindow())
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		return nil, nil
	}
	if cursor != nil && recent[0].ID == *cursor {
		return nil, nil
	}
	return reversed(recent), nil
}

func (s *Summarizer) Apply(ctx context.Context, key stream.Key, entries []stream.Entry) (Commit, error) {
	text := stream.JoinContents(entries)
	if s.counter(text) < s.policy.SummaryThreshold() {
		return nil, ErrSkip
	}
	if s.client == nil {
		return nil, ErrSkip
	}

	resp, err := s.client.Chat(ctx, &llm.ChatRequest{
		Messages: []llm.Message{llm.NewTextMessage("user", summaryPrompt+text)},
	})
	if err != nil {
		return nil, capabilityError("llm", err)
	}

	summary := resp.Text()
	if summary == "" {
		return nil, ErrSkip
	}
	return func(ctx context.Context) error {
		return s.summaries.PutSummary(ctx, key.Entity, summary)
	}, nil
}
