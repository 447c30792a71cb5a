package metrics

import (
	"errors"
	"io"

	"github.com/ShayCichocki/nova/pkg/models"
)

// Stats describes what Extract saw.
type Stats struct {
	// Records is the number of usage records summed.
	Records int
	// Sources counts records per decoded shape.
	Sources map[string]int
}

// Extract drains dec and sums every usage record. A stream without usage
// records yields zero usage. On error the usage summed so far is returned
// alongside it.
func Extract(dec UsageDecoder) (models.TokenUsage, Stats, error) {
	var total models.TokenUsage
	stats := Stats{Sources: make(map[string]int)}

	for {
		rec, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return total, stats, nil
		}
		if err != nil {
			return total, stats, err
		}
		total = total.Add(rec.Usage)
		stats.Records++
		stats.Sources[rec.Source]++
	}
}
