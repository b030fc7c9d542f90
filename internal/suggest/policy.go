// Package suggest recommends focus techniques for a finished session.
//
// The category-bucket policy is the primary one: it derives a category from
// the session outcome and returns the single best-rated technique in it. The
// score-threshold policy returns every technique of a derived level. The
// random policy is a degraded mode and is only used when configured.
package suggest

import (
	"fmt"
	"math/rand"
	"sort"

	"focusift/internal/catalog"
	"focusift/internal/event"
	"focusift/internal/feedback"
)

const (
	PolicyBucket = "bucket"
	PolicyScore  = "score"
	PolicyRandom = "random"
)

// Result is what a policy picked. Bucket names the category or level used.
type Result struct {
	Bucket     string
	Techniques []catalog.Technique
}

type Policy interface {
	Name() string
	Suggest(s event.Session, techniques []catalog.Technique, fb feedback.Snapshot) Result
}

// BucketPolicy maps a session to a category and picks the best-rated
// technique in it.
type BucketPolicy struct {
	ShortMinutes      int // elapsed below this is "short"
	LongMinutes       int // elapsed at or above this is "long"
	DistractThreshold int // interruptions at or above this are "distraction"
}

func NewBucketPolicy() BucketPolicy {
	return BucketPolicy{ShortMinutes: 10, LongMinutes: 30, DistractThreshold: 3}
}

func (BucketPolicy) Name() string { return PolicyBucket }

// Category derives the session category.
func (p BucketPolicy) Category(s event.Session) catalog.Category {
	switch {
	case s.WasInterrupted || s.InterruptionCount >= p.DistractThreshold:
		return catalog.CategoryDistraction
	case s.ElapsedSeconds < p.ShortMinutes*60:
		return catalog.CategoryShort
	case s.ElapsedSeconds >= p.LongMinutes*60:
		return catalog.CategoryLong
	default:
		return catalog.CategoryGeneral
	}
}

func (p BucketPolicy) Suggest(s event.Session, techniques []catalog.Technique, fb feedback.Snapshot) Result {
	cat := p.Category(s)
	var candidates []catalog.Technique
	for _, t := range techniques {
		if t.Category == cat {
			candidates = append(candidates, t)
		}
	}
	res := Result{Bucket: string(cat)}
	if len(candidates) == 0 {
		return res
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return fb.Score(candidates[i].Name) > fb.Score(candidates[j].Name)
	})
	res.Techniques = candidates[:1]
	return res
}

// ScorePolicy maps a session to a focus score and returns every technique
// of the matching level.
type ScorePolicy struct {
	PenaltyPerInterruption int
	AdvancedScore          int
	IntermediateScore      int
}

func NewScorePolicy() ScorePolicy {
	return ScorePolicy{PenaltyPerInterruption: 5, AdvancedScore: 20, IntermediateScore: 10}
}

func (ScorePolicy) Name() string { return PolicyScore }

// FocusScore is max(0, plannedMinutes - interruptions*penalty).
func (p ScorePolicy) FocusScore(s event.Session) int {
	score := s.PlannedMinutes() - s.InterruptionCount*p.PenaltyPerInterruption
	if score < 0 {
		return 0
	}
	return score
}

func (p ScorePolicy) Level(score int) catalog.Level {
	switch {
	case score >= p.AdvancedScore:
		return catalog.LevelAdvanced
	case score >= p.IntermediateScore:
		return catalog.LevelIntermediate
	default:
		return catalog.LevelBeginner
	}
}

func (p ScorePolicy) Suggest(s event.Session, techniques []catalog.Technique, _ feedback.Snapshot) Result {
	lvl := p.Level(p.FocusScore(s))
	res := Result{Bucket: string(lvl)}
	for _, t := range techniques {
		if t.Level == lvl {
			res.Techniques = append(res.Techniques, t)
		}
	}
	return res
}

// RandomPolicy picks one technique uniformly at random. It ignores the
// session entirely.
type RandomPolicy struct {
	rng *rand.Rand
}

func NewRandomPolicy(seed int64) *RandomPolicy {
	return &RandomPolicy{rng: rand.New(rand.NewSource(seed))}
}

func (*RandomPolicy) Name() string { return PolicyRandom }

func (p *RandomPolicy) Suggest(_ event.Session, techniques []catalog.Technique, _ feedback.Snapshot) Result {
	if len(techniques) == 0 {
		return Result{Bucket: "any"}
	}
	return Result{Bucket: "any", Techniques: []catalog.Technique{techniques[p.rng.Intn(len(techniques))]}}
}

// Options tune the built-in policies.
type Options struct {
	ShortMinutes           int
	LongMinutes            int
	DistractThreshold      int
	PenaltyPerInterruption int
	AdvancedScore          int
	IntermediateScore      int
	Seed                   int64
}

// NewPolicy builds a policy by name. Zero option values keep the defaults.
func NewPolicy(name string, o Options) (Policy, error) {
	switch name {
	case "", PolicyBucket:
		p := NewBucketPolicy()
		if o.ShortMinutes > 0 {
			p.ShortMinutes = o.ShortMinutes
		}
		if o.LongMinutes > 0 {
			p.LongMinutes = o.LongMinutes
		}
		if o.DistractThreshold > 0 {
			p.DistractThreshold = o.DistractThreshold
		}
		return p, nil
	case PolicyScore:
		p := NewScorePolicy()
		if o.PenaltyPerInterruption > 0 {
			p.PenaltyPerInterruption = o.PenaltyPerInterruption
		}
		if o.AdvancedScore > 0 {
			p.AdvancedScore = o.AdvancedScore
		}
		if o.IntermediateScore > 0 {
			p.IntermediateScore = o.IntermediateScore
		}
		return p, nil
	case PolicyRandom:
		return NewRandomPolicy(o.Seed), nil
	default:
		return nil, fmt.Errorf("unknown suggestion policy %q", name)
	}
}
