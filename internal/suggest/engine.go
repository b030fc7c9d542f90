package suggest

import (
	"sync"

	"focusift/internal/catalog"
	"focusift/internal/event"
	"focusift/internal/feedback"
)

// Engine applies a policy to the catalog. It is safe for concurrent use;
// the random policy is the only one with internal state.
type Engine struct {
	mu      sync.Mutex
	policy  Policy
	catalog *catalog.Catalog
}

func NewEngine(p Policy, c *catalog.Catalog) *Engine {
	if p == nil {
		p = NewBucketPolicy()
	}
	return &Engine{policy: p, catalog: c}
}

func (e *Engine) PolicyName() string { return e.policy.Name() }

func (e *Engine) Suggest(s event.Session, fb feedback.Snapshot) event.Suggestion {
	var techniques []catalog.Technique
	if e.catalog != nil {
		techniques = e.catalog.All()
	}
	if fb == nil {
		fb = feedback.Snapshot{}
	}

	e.mu.Lock()
	res := e.policy.Suggest(s, techniques, fb)
	e.mu.Unlock()

	return event.Suggestion{
		Policy:     e.policy.Name(),
		Bucket:     res.Bucket,
		Techniques: catalog.Names(res.Techniques),
		None:       len(res.Techniques) == 0,
	}
}
