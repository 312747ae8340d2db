package usage

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "claude-usage/usage"

// Parse extracts a Record from a raw terminal transcript. It never fails;
// fields whose section is missing keep their zero value.
func Parse(raw string) Record {
	record, _ := parse(raw)
	return record
}

// ParseContext is Parse wrapped in a "usage.parse" span that records which
// sections were found.
func ParseContext(ctx context.Context, raw string) Record {
	if ctx == nil {
		ctx = context.Background()
	}
	_, span := otel.Tracer(tracerName).Start(
		ctx,
		"usage.parse",
		trace.WithAttributes(attribute.Int("transcript_bytes", len(raw))),
	)
	defer span.End()

	record, matched := parse(raw)
	span.SetAttributes(
		attribute.StringSlice("sections", matched),
		attribute.Int("cleaned_tail_bytes", len(record.Raw)),
	)
	return record
}

func parse(raw string) (Record, []string) {
	cleaned := Clean(raw)
	record := Record{Raw: Tail(cleaned)}

	matched := make([]string, 0, len(sections))
	seen := make(map[string]struct{}, len(sections))

	lines := strings.Split(cleaned, "\n")
	for i, line := range lines {
		lower := strings.ToLower(strings.TrimSpace(line))
		if lower == "" {
			continue
		}
		// The panel is redrawn many times; a later header overwrites the
		// fields an earlier one found, so the freshest frame wins.
		for _, sec := range sections {
			if !sec.header(lower) {
				continue
			}
			sec.apply(lines, i, &record)
			if _, ok := seen[sec.name]; !ok {
				seen[sec.name] = struct{}{}
				matched = append(matched, sec.name)
			}
		}
	}
	return record, matched
}
