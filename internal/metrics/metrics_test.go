package metrics

import (
	"errors"
	"strings"
	"testing"

	"github.com/ShayCichocki/nova/pkg/models"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    models.TokenUsage
		records int
		wantErr error
	}{
		{
			name:  "empty stream is zero usage",
			input: "",
		},
		{
			name:  "events without usage",
			input: `{"type":"system","subtype":"init"}` + "\n" + `{"type":"assistant"}`,
		},
		{
			name: "claude json result",
			input: `{"type":"result","subtype":"success","usage":{"input_tokens":100,"output_tokens":50,` +
				`"cache_read_input_tokens":20,"cache_creation_input_tokens":10}}`,
			want:    models.TokenUsage{Input: 100, Output: 50, CacheRead: 20, CacheCreation: 10},
			records: 1,
		},
		{
			name: "model usage map is summed",
			input: `{"type":"result","modelUsage":{` +
				`"claude-sonnet":{"inputTokens":10,"outputTokens":5,"cacheReadInputTokens":1,"cacheCreationInputTokens":2},` +
				`"claude-haiku":{"inputTokens":3,"outputTokens":4}}}`,
			want:    models.TokenUsage{Input: 13, Output: 9, CacheRead: 1, CacheCreation: 2},
			records: 1,
		},
		{
			name: "usage records across lines",
			input: `{"token_usage":{"input_tokens":1,"output_tokens":2}}` + "\n" +
				"not json\n" +
				`{"token_usage":{"input_tokens":3,"cache_read_tokens":4,"cache_creation_tokens":5}}`,
			want:    models.TokenUsage{Input: 4, Output: 2, CacheRead: 4, CacheCreation: 5},
			records: 2,
		},
		{
			name:    "no json at all",
			input:   "Traceback (most recent call last):\npanic\n",
			wantErr: ErrMalformedOutput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, stats, err := Extract(NewClaudeDecoder(strings.NewReader(tt.input)))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Extract() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Extract() = %+v, want %+v", got, tt.want)
			}
			if stats.Records != tt.records {
				t.Errorf("Records = %d, want %d", stats.Records, tt.records)
			}
		})
	}
}

func TestClaudeDecoder_Malformed(t *testing.T) {
	dec := NewClaudeDecoder(strings.NewReader("oops\n{\"type\":\"x\"}\n{broken\n"))
	if _, _, err := Extract(dec); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if dec.Malformed() != 2 {
		t.Errorf("Malformed() = %d, want 2", dec.Malformed())
	}
}

func TestPricing_Cost(t *testing.T) {
	p := DefaultPricing()
	tests := []struct {
		name  string
		usage models.TokenUsage
		want  float64
	}{
		{"zero", models.TokenUsage{}, 0},
		{"input", models.TokenUsage{Input: 1_000_000}, 3.00},
		{"output", models.TokenUsage{Output: 1_000_000}, 15.00},
		{"cache read", models.TokenUsage{CacheRead: 1_000_000}, 0.30},
		{"cache creation", models.TokenUsage{CacheCreation: 1_000_000}, 3.75},
		{"half million output", models.TokenUsage{Output: 500_000}, 7.50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Cost(tt.usage); got != tt.want {
				t.Errorf("Cost() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPricing_Metrics(t *testing.T) {
	p := Pricing{InputPerMillion: 2}
	m := p.Metrics(models.TokenUsage{Input: 500_000}, 12.5)
	if m.CostUSD != 1 || m.DurationSeconds != 12.5 || m.TokenUsage.Input != 500_000 {
		t.Errorf("Metrics() = %+v", m)
	}
}
