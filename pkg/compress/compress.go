// Package compress stores long, low importance text messages compressed and
// restores them on read.
package compress

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/papercomputeco/threads/pkg/stream"
)

// Supported algorithms. "none" only base64 encodes the text.
const (
	AlgorithmGzip = "gzip"
	AlgorithmZstd = "zstd"
	AlgorithmNone = "none"
)

const (
	DefaultThreshold        = 1000
	DefaultImportanceCutoff = 5
)

// ErrUnknownAlgorithm is returned for algorithms this package cannot decode.
var ErrUnknownAlgorithm = errors.New("unknown compression algorithm")

// The zstd encoder and decoder are safe for concurrent EncodeAll and
// DecodeAll calls.
var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

// Codec decides when to compress and which algorithm to use.
type Codec struct {
	// Algorithm is used for new writes.
	Algorithm string

	// LegacyAlgorithm decodes entries written without an algorithm tag.
	// Defaults to Algorithm.
	LegacyAlgorithm string

	// Threshold is the content length above which text is compressed.
	Threshold int

	// ImportanceCutoff: only messages with importance strictly below it are compressed.
	ImportanceCutoff int
}

// NewCodec returns a codec with defaults applied.
func NewCodec(algorithm string, threshold int, importanceCutoff int) (*Codec, error) {
	if algorithm == "" {
		algorithm = AlgorithmGzip
	}
	if !known(algorithm) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algorithm)
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if importanceCutoff <= 0 {
		importanceCutoff = DefaultImportanceCutoff
	}

	return &Codec{
		Algorithm:        algorithm,
		LegacyAlgorithm:  algorithm,
		Threshold:        threshold,
		ImportanceCutoff: importanceCutoff,
	}, nil
}

// ShouldCompress reports whether msg qualifies for compression.
func (c *Codec) ShouldCompress(msg stream.Message) bool {
	return msg.Type == stream.TypeText &&
		msg.Content != "" &&
		!msg.Compressed() &&
		len(msg.Content) > c.Threshold &&
		msg.Importance < c.ImportanceCutoff
}

// Maybe compresses msg in place when it qualifies, tagging Extra with the
// algorithm so it can always be decoded later.
func (c *Codec) Maybe(msg *stream.Message) error {
	if !c.ShouldCompress(*msg) {
		return nil
	}

	encoded, err := Encode(msg.Content, c.Algorithm)
	if err != nil {
		return err
	}

	msg.Content = encoded
	msg.SetExtra(stream.ExtraCompressed, true)
	msg.SetExtra(stream.ExtraCompressAlgo, c.Algorithm)
	return nil
}

// Restore decompresses msg in place. Messages tagged with an algorithm are
// decoded with exactly that algorithm. Untagged legacy messages try
// LegacyAlgorithm first and then the remaining known algorithms. On failure
// msg is left untouched.
func (c *Codec) Restore(msg *stream.Message) error {
	if !msg.Compressed() || msg.Content == "" {
		return nil
	}

	candidates := []string{msg.ExtraString(stream.ExtraCompressAlgo)}
	if candidates[0] == "" {
		candidates = c.legacyCandidates()
	}

	var errs []error
	for _, algo := range candidates {
		text, err := Decode(msg.Content, algo)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", algo, err))
			continue
		}

		msg.Content = text
		delete(msg.Extra, stream.ExtraCompressed)
		delete(msg.Extra, stream.ExtraCompressAlgo)
		if len(msg.Extra) == 0 {
			msg.Extra = nil
		}
		return nil
	}

	return fmt.Errorf("decompressing content: %w", errors.Join(errs...))
}

func (c *Codec) legacyCandidates() []string {
	legacy := c.LegacyAlgorithm
	if legacy == "" {
		legacy = c.Algorithm
	}

	out := []string{legacy}
	for _, algo := range []string{AlgorithmGzip, AlgorithmZstd, AlgorithmNone} {
		if algo != legacy {
			out = append(out, algo)
		}
	}
	return out
}

// Encode compresses text with algorithm and returns it base64 encoded.
func Encode(text string, algorithm string) (string, error) {
	data := []byte(text)

	switch algorithm {
	case AlgorithmGzip:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return "", fmt.Errorf("gzip write: %w", err)
		}
		if err := zw.Close(); err != nil {
			return "", fmt.Errorf("gzip close: %w", err)
		}
		data = buf.Bytes()
	case AlgorithmZstd:
		data = zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/2))
	case AlgorithmNone:
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algorithm)
	}

	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode reverses Encode.
func Decode(encoded string, algorithm string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	switch algorithm {
	case AlgorithmGzip:
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return "", fmt.Errorf("gzip reader: %w", err)
		}
		defer zr.Close()

		out, err := io.ReadAll(zr)
		if err != nil {
			return "", fmt.Errorf("gzip read: %w", err)
		}
		return string(out), nil
	case AlgorithmZstd:
		out, err := zstdDecoder.DecodeAll(raw, nil)
		if err != nil {
			return "", fmt.Errorf("zstd decode: %w", err)
		}
		return string(out), nil
	case AlgorithmNone:
		return string(raw), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algorithm)
	}
}

func known(algorithm string) bool {
	switch algorithm {
	case AlgorithmGzip, AlgorithmZstd, AlgorithmNone:
		return true
	}
	return false
}
