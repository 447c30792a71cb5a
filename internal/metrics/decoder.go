// Package metrics extracts token usage from worker output and prices it.
package metrics

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/nova/pkg/models"
)

// ErrMalformedOutput indicates a non-empty output stream that contained no
// decodable JSON at all.
var ErrMalformedOutput = errors.New("malformed worker output")

// maxLineSize bounds a single output line. Claude result events carry the
// full transcript text and can be large.
const maxLineSize = 8 * 1024 * 1024

// UsageRecord is one usage report found in a worker's output.
type UsageRecord struct {
	Usage models.TokenUsage
	// Source names the shape the record was decoded from: "usage",
	// "modelUsage" or "token_usage".
	Source string
}

// UsageDecoder iterates over the usage records in a worker output stream.
// Next returns io.EOF once the stream is exhausted.
type UsageDecoder interface {
	Next() (UsageRecord, error)
}

// ClaudeDecoder decodes line-delimited JSON as written by the Claude CLI in
// json and stream-json output modes.
type ClaudeDecoder struct {
	scanner   *bufio.Scanner
	lines     int
	jsonLines int
	malformed int
	done      bool
}

// NewClaudeDecoder creates a decoder reading from r.
func NewClaudeDecoder(r io.Reader) *ClaudeDecoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	return &ClaudeDecoder{scanner: scanner}
}

// modelUsage is one entry of the per-model usage map in Claude result events.
type modelUsage struct {
	InputTokens              int64 `json:"inputTokens"`
	OutputTokens             int64 `json:"outputTokens"`
	CacheReadInputTokens     int64 `json:"cacheReadInputTokens"`
	CacheCreationInputTokens int64 `json:"cacheCreationInputTokens"`
}

// outputLine holds the fields a line may report usage through.
type outputLine struct {
	Usage      json.RawMessage       `json:"usage"`
	ModelUsage map[string]modelUsage `json:"modelUsage"`
	TokenUsage *models.TokenUsage    `json:"token_usage"`
}

// Next returns the next usage record. It returns ErrMalformedOutput instead
// of io.EOF when the stream had content but not a single JSON line.
func (d *ClaudeDecoder) Next() (UsageRecord, error) {
	if d.done {
		return UsageRecord{}, io.EOF
	}

	for d.scanner.Scan() {
		line := bytes.TrimSpace(d.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		d.lines++

		var out outputLine
		if err := json.Unmarshal(line, &out); err != nil {
			d.malformed++
			continue
		}
		d.jsonLines++

		if rec, ok := decodeLine(out); ok {
			return rec, nil
		}
	}

	d.done = true
	if err := d.scanner.Err(); err != nil {
		return UsageRecord{}, fmt.Errorf("read worker output: %w", err)
	}
	if d.lines > 0 && d.jsonLines == 0 {
		return UsageRecord{}, ErrMalformedOutput
	}
	return UsageRecord{}, io.EOF
}

// Malformed returns the number of non-JSON lines skipped so far.
func (d *ClaudeDecoder) Malformed() int {
	return d.malformed
}

func decodeLine(out outputLine) (UsageRecord, bool) {
	if len(out.Usage) > 0 && !bytes.Equal(out.Usage, []byte("null")) {
		var u anthropic.Usage
		if err := json.Unmarshal(out.Usage, &u); err == nil {
			return UsageRecord{
				Source: "usage",
				Usage: models.TokenUsage{
					Input:         u.InputTokens,
					Output:        u.OutputTokens,
					CacheRead:     u.CacheReadInputTokens,
					CacheCreation: u.CacheCreationInputTokens,
				},
			}, true
		}
	}

	if len(out.ModelUsage) > 0 {
		var sum models.TokenUsage
		for _, mu := range out.ModelUsage {
			sum = sum.Add(models.TokenUsage{
				Input:         mu.InputTokens,
				Output:        mu.OutputTokens,
				CacheRead:     mu.CacheReadInputTokens,
				CacheCreation: mu.CacheCreationInputTokens,
			})
		}
		return UsageRecord{Source: "modelUsage", Usage: sum}, true
	}

	if out.TokenUsage != nil {
		return UsageRecord{Source: "token_usage", Usage: *out.TokenUsage}, true
	}
	return UsageRecord{}, false
}
