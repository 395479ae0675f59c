// Package transcribe converts audio payloads to text through a speech to
// text service reached over a websocket.
package transcribe

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotConfigured is returned when no transcription service is configured.
var ErrNotConfigured = errors.New("transcriber not configured")

// DefaultJunkPhrases are subtitle credits some speech models hallucinate on
// silence.
var DefaultJunkPhrases = []string{
	"Субтитры сделал DimaTorzok",
	"Субтитры создавал DimaTorzok",
	"Продолжение следует...",
}

// Transcriber converts audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, prompt string) (string, error)
}

// Config configures a websocket transcriber.
type Config struct {
	URL     string
	Timeout time.Duration

	// JunkPhrases are removed from every transcript. Nil uses DefaultJunkPhrases.
	JunkPhrases []string
}

type request struct {
	AudioData string `json:"audio_data"`
	Prompt    string `json:"prompt"`
}

// WebSocket sends one request per connection and reads a single text reply.
type WebSocket struct {
	url     string
	timeout time.Duration
	junk    []string
	dialer  *websocket.Dialer
}

// New creates a websocket transcriber.
func New(cfg Config) (*WebSocket, error) {
	if cfg.URL == "" {
		return nil, ErrNotConfigured
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	junk := cfg.JunkPhrases
	if junk == nil {
		junk = DefaultJunkPhrases
	}

	return &WebSocket{
		url:     cfg.URL,
		timeout: timeout,
		junk:    junk,
		dialer:  &websocket.Dialer{HandshakeTimeout: timeout},
	}, nil
}

// Transcribe sends base64 audio and a prompt and returns the cleaned transcript.
func (t *WebSocket) Transcribe(ctx context.Context, audio []byte, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return "", fmt.Errorf("dial transcriber: %w", err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.SetReadDeadline(deadline)

	err = conn.WriteJSON(request{
		AudioData: base64.StdEncoding.EncodeToString(audio),
		Prompt:    prompt,
	})
	if err != nil {
		return "", fmt.Errorf("send audio: %w", err)
	}

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	return Clean(string(msg), t.junk), nil
}

// Clean removes every junk phrase and trims surrounding whitespace.
func Clean(transcript string, junk []string) string {
	for _, phrase := range junk {
		if phrase == "" {
			continue
		}
		transcript = strings.ReplaceAll(transcript, phrase, "")
	}
	return strings.TrimSpace(transcript)
}

var _ Transcriber = (*WebSocket)(nil)
