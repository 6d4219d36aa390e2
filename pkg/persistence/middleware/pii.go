package middleware

import (
	"context"
	"regexp"

	"github.com/mohae/deepcopy"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// Mask replaces values hidden by the PII middleware.
const Mask = "***"

type piiMiddleware struct {
	next     ports.SnapshotStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks values whose key matches
// one of the patterns. Top-level keys are matched in their string form
// ("inputs.email", "outputs.Signup.password"); nested maps are matched by
// field name. Masking is one way: stores behind it are for auditing, not for
// resuming runs.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.SnapshotStore) ports.SnapshotStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, executionID string, snap *domain.Snapshot) error {
	// Copy so the snapshot handed to other emitters is left untouched.
	cloned := deepcopy.Copy(snap).(*domain.Snapshot)
	maskMap(cloned.Values, m.patterns)
	return m.next.Save(ctx, executionID, cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, executionID string) (*domain.Snapshot, error) {
	return m.next.Load(ctx, executionID)
}

func (m *piiMiddleware) Delete(ctx context.Context, executionID string) error {
	return m.next.Delete(ctx, executionID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		masked := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				masked = true
				break
			}
		}
		if masked {
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			maskMap(sub, patterns)
		}
	}
}
