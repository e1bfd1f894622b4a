package llm

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"

	"ReviewInsights/internal/domain"
)

const defaultSystemPrompt = `Extract pros and cons from the product reviews you are given. Be concise and ignore reviews
that do not mention a concrete advantage or drawback. Reply with a single JSON object and nothing else:
{"pros": ["..."], "cons": ["..."], "summary": "one short paragraph"}.
Use empty arrays when there are no pros or no cons.`

var validate = validator.New()

func systemPrompt(configured string) string {
	configured = strings.TrimSpace(configured)
	if configured == "" {
		return defaultSystemPrompt
	}
	return configured
}

// decodeSummary parses a model reply into exactly {pros, cons, summary}.
// A single surrounding markdown code fence is tolerated; anything else that
// deviates from the shape is reported as domain.ErrSummaryContract.
func decodeSummary(reply string) (domain.Summary, error) {
	body := stripFence(strings.TrimSpace(reply))
	if body == "" {
		return domain.Summary{}, contractError(errors.New("empty reply"))
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()

	var summary domain.Summary
	if err := dec.Decode(&summary); err != nil {
		return domain.Summary{}, contractError(errors.Wrap(err, "decode reply"))
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return domain.Summary{}, contractError(errors.New("trailing data after reply object"))
	}
	if err := validate.Struct(summary); err != nil {
		return domain.Summary{}, contractError(errors.Wrap(err, "validate reply"))
	}
	return summary, nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 && !strings.ContainsAny(inner[:nl], "{[") {
		inner = inner[nl+1:]
	}
	return strings.TrimSpace(inner)
}

func contractError(err error) error {
	return errors.Mark(err, domain.ErrSummaryContract)
}
