package derive

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strings"

	"github.com/papercomputeco/threads/pkg/llm"
	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/stream"
)

// rememberMarkers start a message that should be stored verbatim as a fact.
var rememberMarkers = []string{"запомни", "remember"}

const factSystemPrompt = "Extract fact command. Use add_fact, delete_fact or list_facts if appropriate. " +
	"If nothing matches, do nothing."

var factTools = []llm.Tool{
	{
		Name:        "list_facts",
		Description: "List stored facts",
		Parameters:  llm.ObjectSchema(nil, nil),
	},
	{
		Name:        "add_fact",
		Description: "Store a fact",
		Parameters:  llm.ObjectSchema([]string{"fact"}, map[string]any{"fact": "The fact to remember"}),
	},
	{
		Name:        "delete_fact",
		Description: "Delete a fact",
		Parameters:  llm.ObjectSchema([]string{"fact"}, map[string]any{"fact": "The fact to forget"}),
	},
}

// RememberFact is the rule stage of fact extraction. A text starting with a
// remember marker yields everything after its first colon, or the whole
// text when there is none.
func RememberFact(text string) (string, bool) {
	text = strings.TrimSpace(text)
	low := strings.ToLower(text)

	for _, marker := range rememberMarkers {
		if !strings.HasPrefix(low, marker) {
			continue
		}
		fact := text
		if _, after, ok := strings.Cut(text, ":"); ok {
			fact = strings.TrimSpace(after)
		}
		if fact == "" {
			return "", false
		}
		return fact, true
	}
	return "", false
}

// FactExtractor maintains the fact set from user messages. Messages the rule
// stage declines are handed to the chat completion capability, which may
// add, delete or list facts through tools.
type FactExtractor struct {
	facts  storage.FactStore
	client llm.Client
	policy *Policy
	logger *slog.Logger
}

// NewFactExtractor creates the fact derivation. A nil client disables the
// fallback stage.
func NewFactExtractor(facts storage.FactStore, client llm.Client, policy *Policy, logger *slog.Logger) *FactExtractor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if policy == nil {
		policy = NewPolicy(DefaultPolicyConfig())
	}
	return &FactExtractor{
		facts:  facts,
		client: client,
		policy: policy,
		logger: logger,
	}
}

func (f *FactExtractor) Kind() string { return KindFacts }

func (f *FactExtractor) Apply(ctx context.Context, key stream.Key, entries []stream.Entry) (Commit, error) {
	plan := &factPlan{}
	for _, e := range entries {
		if !userText(e.Message) {
			continue
		}

		if fact, ok := RememberFact(e.Message.Content); ok {
			plan.add(fact)
			continue
		}

		if f.client == nil {
			continue
		}
		if err := f.extract(ctx, key.Entity, e.Message.Content, plan); err != nil {
			return nil, err
		}
	}

	if len(plan.ops) == 0 {
		return nil, nil
	}
	return func(ctx context.Context) error {
		return plan.commit(ctx, f.facts, key.Entity)
	}, nil
}

func (f *FactExtractor) extract(ctx context.Context, entity stream.Entity, text string, plan *factPlan) error {
	req := &llm.ChatRequest{
		System:   factSystemPrompt,
		Messages: []llm.Message{llm.NewTextMessage("user", strings.TrimSpace(text))},
		Tools:    factTools,
	}

	handler := func(ctx context.Context, call llm.ToolCall) (string, error) {
		switch call.Name {
		case "list_facts":
			stored, err := f.facts.Facts(ctx, entity)
			if err != nil {
				return "", err
			}
			return toJSON(plan.view(stored)), nil
		case "add_fact":
			fact := strings.TrimSpace(call.String("fact"))
			if fact == "" {
				return toJSON(map[string]string{"status": "unknown"}), nil
			}
			plan.add(fact)
			return toJSON(map[string]string{"status": "added"}), nil
		case "delete_fact":
			fact := strings.TrimSpace(call.String("fact"))
			if fact == "" {
				return toJSON(map[string]string{"status": "unknown"}), nil
			}
			plan.remove(fact)
			return toJSON(map[string]string{"status": "deleted"}), nil
		default:
			return toJSON(map[string]string{"status": "unknown"}), nil
		}
	}

	if _, err := llm.RunTools(ctx, f.client, req, handler, f.policy.ToolIterations()); err != nil {
		return capabilityError("llm", err)
	}
	return nil
}

type factOp struct {
	fact   string
	delete bool
}

// factPlan stages fact changes in order so they can be committed at once.
type factPlan struct {
	ops []factOp
}

func (p *factPlan) add(fact string)    { p.ops = append(p.ops, factOp{fact: fact}) }
func (p *factPlan) remove(fact string) { p.ops = append(p.ops, factOp{fact: fact, delete: true}) }

// view returns stored with the staged changes applied, sorted.
func (p *factPlan) view(stored []string) []string {
	out := slices.Clone(stored)
	for _, op := range p.ops {
		if op.delete {
			out = slices.DeleteFunc(out, func(f string) bool { return f == op.fact })
			continue
		}
		if !slices.Contains(out, op.fact) {
			out = append(out, op.fact)
		}
	}
	slices.Sort(out)
	return out
}

func (p *factPlan) commit(ctx context.Context, facts storage.FactStore, entity stream.Entity) error {
	for _, op := range p.ops {
		if op.delete {
			if _, err := facts.DeleteFact(ctx, entity, op.fact); err != nil {
				return err
			}
			continue
		}
		if _, err := facts.AddFacts(ctx, entity, op.fact); err != nil {
			return err
		}
	}
	return nil
}

func toJSON(v any) string {
	out, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(out)
}
