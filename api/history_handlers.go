package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/threads/pkg/history"
	"github.com/papercomputeco/threads/pkg/stream"
)

// AddRequest appends messages to one stream.
type AddRequest struct {
	UUID     string       `json:"uuid"`
	ChatID   string       `json:"chat_id,omitempty"`
	Messages []AddMessage `json:"messages"`
}

// AddMessage is a message with an optional attachment.
type AddMessage struct {
	stream.Message

	File *Upload `json:"file,omitempty"`
}

// Upload is an attachment. Data is base64 in JSON.
type Upload struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// AddResponse lists the IDs of the appended entries.
type AddResponse struct {
	StreamIDs []string `json:"stream_ids"`
}

// HistoryResponse is the body of /history.
type HistoryResponse struct {
	Messages []stream.Entry `json:"messages"`
}

// ContextResponse is the body of /context.
type ContextResponse struct {
	Messages []stream.Entry  `json:"messages"`
	Relevant []stream.Entry  `json:"relevant"`
	Facts    *stream.Message `json:"facts,omitempty"`
	Summary  string          `json:"summary,omitempty"`
}

// SummaryResponse is the body of /summary.
type SummaryResponse struct {
	UUID    string `json:"uuid"`
	Summary string `json:"summary"`
}

// SearchRequest is the body of /search.
type SearchRequest struct {
	UUID   string   `json:"uuid"`
	Query  string   `json:"query"`
	TopK   int      `json:"top_k,omitempty"`
	Tags   []string `json:"tags,omitempty"`
	ChatID string   `json:"chat_id,omitempty"`
}

// SearchResponse is the body of /search and /search_by_tag.
type SearchResponse struct {
	UUID string         `json:"uuid"`
	Hits []stream.Entry `json:"hits"`
}

// FilterRequest is the body of /filter.
type FilterRequest struct {
	UUID             string `json:"uuid"`
	Query            string `json:"query"`
	TopK             int    `json:"top_k,omitempty"`
	DeleteIrrelevant bool   `json:"delete_irrelevant,omitempty"`
	ChatID           string `json:"chat_id,omitempty"`
}

// FilterResponse is the body of /filter.
type FilterResponse struct {
	UUID       string         `json:"uuid"`
	Kept       []stream.Entry `json:"kept"`
	Removed    []string       `json:"removed"`
	Confidence float64        `json:"confidence"`
}

func (s *Server) handleAdd(c *fiber.Ctx) error {
	var req AddRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, badBody())
	}
	key, err := s.key(c, req.UUID, req.ChatID)
	if err != nil {
		return s.fail(c, err)
	}

	inputs := make([]history.Input, 0, len(req.Messages))
	for _, m := range req.Messages {
		in := history.Input{Message: m.Message}
		if m.File != nil {
			in.Attachment = &history.Attachment{
				Filename:    m.File.Filename,
				ContentType: m.File.ContentType,
				Data:        m.File.Data,
			}
		}
		inputs = append(inputs, in)
	}

	ids, err := s.svc.Writer.Add(c.Context(), key, inputs)
	if err != nil {
		if len(ids) > 0 {
			s.logger.Error("write partially applied",
				"stream", key.String(),
				"written", len(ids),
				"error", err,
			)
		}
		return s.fail(c, err)
	}
	return c.JSON(AddResponse{StreamIDs: idStrings(ids)})
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	key, err := s.key(c, c.Query("uuid"), c.Query("chat_id"))
	if err != nil {
		return s.fail(c, err)
	}

	entries, err := s.svc.Reconciler.History(c.Context(), key, c.QueryInt("limit"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(HistoryResponse{Messages: orEmpty(entries)})
}

func (s *Server) handleContext(c *fiber.Ctx) error {
	key, err := s.key(c, c.Query("uuid"), c.Query("chat_id"))
	if err != nil {
		return s.fail(c, err)
	}

	got, err := s.svc.Reconciler.Context(c.Context(), key, c.QueryInt("limit"), c.QueryInt("top_k"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(ContextResponse{
		Messages: orEmpty(got.Messages),
		Relevant: orEmpty(got.Relevant),
		Facts:    got.Facts,
		Summary:  got.Summary,
	})
}

func (s *Server) handleSummary(c *fiber.Ctx) error {
	key, err := s.key(c, c.Query("uuid"), c.Query("chat_id"))
	if err != nil {
		return s.fail(c, err)
	}

	summary, err := s.svc.Writer.Summarize(c.Context(), key)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(SummaryResponse{UUID: key.Entity.ID, Summary: summary})
}

func (s *Server) handleSearch(c *fiber.Ctx) error {
	var req SearchRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, badBody())
	}
	key, err := s.key(c, req.UUID, req.ChatID)
	if err != nil {
		return s.fail(c, err)
	}

	hits, err := s.svc.Reconciler.Search(c.Context(), key, history.SearchRequest{
		Query: req.Query,
		TopK:  req.TopK,
		Tags:  req.Tags,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(SearchResponse{UUID: key.Entity.ID, Hits: orEmpty(hits)})
}

func (s *Server) handleSearchByTag(c *fiber.Ctx) error {
	key, err := s.key(c, c.Query("uuid"), c.Query("chat_id"))
	if err != nil {
		return s.fail(c, err)
	}

	hits, err := s.svc.Reconciler.SearchByTag(c.Context(), key, c.Query("tag"), c.QueryInt("limit"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(SearchResponse{UUID: key.Entity.ID, Hits: orEmpty(hits)})
}

func (s *Server) handleFilter(c *fiber.Ctx) error {
	var req FilterRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, badBody())
	}
	key, err := s.key(c, req.UUID, req.ChatID)
	if err != nil {
		return s.fail(c, err)
	}

	res, err := s.svc.Reconciler.Filter(c.Context(), key, history.FilterRequest{
		Query:            req.Query,
		TopK:             req.TopK,
		DeleteIrrelevant: req.DeleteIrrelevant,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(FilterResponse{
		UUID:       key.Entity.ID,
		Kept:       orEmpty(res.Kept),
		Removed:    idStrings(res.Removed),
		Confidence: res.Confidence,
	})
}

func idStrings(ids []stream.EntryID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func orEmpty(entries []stream.Entry) []stream.Entry {
	if entries == nil {
		return []stream.Entry{}
	}
	return entries
}
