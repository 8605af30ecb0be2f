package middleware

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/stevekinney/silvan-sub003/pkg/domain"
	"github.com/stevekinney/silvan-sub003/pkg/ports"
)

const mask = "***"

type redactMiddleware struct {
	next     ports.RunStore
	keys     []*regexp.Regexp
	messages []*regexp.Regexp
}

// NewRedactMiddleware masks secrets before documents reach the backend.
// Values under keys matching keyPatterns inside free-form phase summaries are
// replaced, and text matching messagePatterns is cut out of step error messages.
// The caller's in-memory document is never modified.
func NewRedactMiddleware(keyPatterns, messagePatterns []string) Middleware {
	compile := func(in []string) []*regexp.Regexp {
		out := make([]*regexp.Regexp, len(in))
		for i, p := range in {
			out[i] = regexp.MustCompile(p)
		}
		return out
	}
	keys := compile(keyPatterns)
	messages := compile(messagePatterns)
	return func(next ports.RunStore) ports.RunStore {
		return &redactMiddleware{next: next, keys: keys, messages: messages}
	}
}

func (m *redactMiddleware) Save(ctx context.Context, runID string, state *domain.RunState) error {
	cloned, err := state.Clone()
	if err != nil {
		return err
	}

	for _, rec := range cloned.Data.Steps {
		if rec.Error == nil {
			continue
		}
		for _, p := range m.messages {
			rec.Error.Message = p.ReplaceAllString(rec.Error.Message, mask)
		}
	}

	for k, raw := range cloned.Data.Extra {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			maskMap(sub, m.keys)
			if out, err := json.Marshal(sub); err == nil {
				cloned.Data.Extra[k] = out
			}
		}
	}

	return m.next.Save(ctx, runID, cloned)
}

func (m *redactMiddleware) Load(ctx context.Context, runID string) (*domain.RunState, error) {
	return m.next.Load(ctx, runID)
}

func (m *redactMiddleware) Delete(ctx context.Context, runID string) error {
	return m.next.Delete(ctx, runID)
}

func (m *redactMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		masked := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = mask
				masked = true
				break
			}
		}
		if masked {
			continue
		}
		if subMap, ok := v.(map[string]any); ok {
			maskMap(subMap, patterns)
		}
	}
}
