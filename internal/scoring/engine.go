// Package scoring computes questionnaire compatibility between two users.
// Everything here is pure: no I/O, no clocks, deterministic output order.
package scoring

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/oggyb/muzz-matchmaking/internal/db"
)

const (
	// FactorThreshold is the minimum per-question alignment that counts as a contributing factor.
	FactorThreshold = 0.7
	// ScaleRange is the assumed width of scale questions.
	ScaleRange = 10.0

	maxSignals = 3
	maxReasons = 3

	reasonIncomplete = "Complete your questionnaire to get better matches"
	reasonStrong     = "Strong compatibility across multiple areas"
	reasonFallback   = "Potential match based on compatibility"
)

// InterestVocabulary is the fixed keyword list matched against bios and prompts.
var InterestVocabulary = []string{
	"music", "coding", "travel", "coffee", "gym", "reading", "gaming",
	"cooking", "hiking", "photography", "art", "movies", "books",
}

// Profile is one side of a comparison.
type Profile struct {
	// Answers maps question id to the raw answer value.
	Answers map[uint64]string
	Bio     string
	Prompts []string
}

// Factor is a question on which both users strongly align.
type Factor struct {
	QuestionID uint64
	Text       string
	Alignment  float64
	Weight     float64
}

type Result struct {
	Score           float64
	Factors         []Factor
	Signals         []string
	Reasons         []string
	SharedInterests []string
}

// StoredReasons converts the result into the stored candidate payload.
func (r Result) StoredReasons() db.Reasons {
	return db.Reasons{
		Signals:             r.Signals,
		Reasons:             r.Reasons,
		ContributingFactors: len(r.Factors),
	}
}

type question struct {
	text   string
	kind   string
	weight float64
}

// Engine scores answer sets against a fixed question catalog.
type Engine struct {
	questions map[uint64]question
}

func NewEngine(catalog []db.QuestionnaireQuestion) *Engine {
	qs := make(map[uint64]question, len(catalog))
	for _, q := range catalog {
		w := q.Weight
		if w <= 0 {
			w = 1.0
		}
		qs[q.ID] = question{text: q.Text, kind: q.Type, weight: w}
	}
	return &Engine{questions: qs}
}

func (e *Engine) lookup(id uint64) question {
	if q, ok := e.questions[id]; ok {
		return q
	}
	return question{weight: 1.0}
}

// Score returns the weighted mean alignment over questions both users answered.
// Zero answers on either side or no overlap yields 0.
func (e *Engine) Score(a, b Profile) float64 {
	var total, weighted float64
	for _, id := range overlap(a, b) {
		q := e.lookup(id)
		total += q.weight
		weighted += q.weight * Alignment(q.kind, a.Answers[id], b.Answers[id])
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// Evaluate computes the score together with its explanation.
func (e *Engine) Evaluate(a, b Profile) Result {
	shared := SharedInterests(a, b)
	if len(a.Answers) == 0 || len(b.Answers) == 0 {
		return Result{
			Signals:         []string{},
			Reasons:         []string{reasonIncomplete},
			SharedInterests: shared,
		}
	}

	res := Result{Score: e.Score(a, b), SharedInterests: shared}
	for _, id := range overlap(a, b) {
		q := e.lookup(id)
		al := Alignment(q.kind, a.Answers[id], b.Answers[id])
		if al >= FactorThreshold {
			res.Factors = append(res.Factors, Factor{QuestionID: id, Text: q.text, Alignment: al, Weight: q.weight})
		}
	}
	sort.SliceStable(res.Factors, func(i, j int) bool {
		return res.Factors[i].Alignment*res.Factors[i].Weight > res.Factors[j].Alignment*res.Factors[j].Weight
	})

	res.Signals = []string{}
	for i := 0; i < len(res.Factors) && i < maxSignals; i++ {
		res.Signals = append(res.Signals, res.Factors[i].Text)
	}

	if len(res.Signals) > 0 {
		res.Reasons = append(res.Reasons, "Shared values: "+strings.Join(res.Signals, ", "))
	}
	if len(res.Factors) >= maxSignals {
		res.Reasons = append(res.Reasons, reasonStrong)
	}
	if len(shared) > 0 {
		res.Reasons = append(res.Reasons, "Common interests: "+strings.Join(shared, ", "))
	}
	if len(res.Reasons) == 0 {
		res.Reasons = append(res.Reasons, reasonFallback)
	}
	if len(res.Reasons) > maxReasons {
		res.Reasons = res.Reasons[:maxReasons]
	}
	return res
}

// Alignment scores one question in [0,1].
//
//	exact match            → 1
//	SCALE                  → max(0, 1 − |a−b|/10), 0 if either is not an integer
//	TEXT                   → |shared tokens| / max(token counts)
//	anything else          → 0
func Alignment(kind, a, b string) float64 {
	if kind == db.QuestionText {
		return textOverlap(a, b)
	}
	if a == b {
		return 1
	}
	if kind != db.QuestionScale {
		return 0
	}
	va, errA := strconv.Atoi(strings.TrimSpace(a))
	vb, errB := strconv.Atoi(strings.TrimSpace(b))
	if errA != nil || errB != nil {
		return 0
	}
	diff := math.Abs(float64(va - vb))
	return math.Max(0, 1-diff/ScaleRange)
}

func textOverlap(a, b string) float64 {
	ta := strings.Fields(strings.ToLower(a))
	tb := strings.Fields(strings.ToLower(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(ta))
	for _, w := range ta {
		set[w] = struct{}{}
	}
	common := 0
	seen := make(map[string]struct{}, len(tb))
	for _, w := range tb {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		if _, ok := set[w]; ok {
			common++
		}
	}
	return math.Min(1, float64(common)/float64(max(len(ta), len(tb))))
}

// SharedInterests returns vocabulary keywords present in both users' bio or prompts,
// in vocabulary order.
func SharedInterests(a, b Profile) []string {
	ka, kb := Keywords(a), Keywords(b)
	var out []string
	for _, w := range InterestVocabulary {
		if _, ok := ka[w]; !ok {
			continue
		}
		if _, ok := kb[w]; ok {
			out = append(out, w)
		}
	}
	return out
}

// Keywords extracts vocabulary words found by substring match in bio and prompts.
func Keywords(p Profile) map[string]struct{} {
	texts := append([]string{p.Bio}, p.Prompts...)
	out := make(map[string]struct{})
	for _, t := range texts {
		lower := strings.ToLower(t)
		if lower == "" {
			continue
		}
		for _, w := range InterestVocabulary {
			if strings.Contains(lower, w) {
				out[w] = struct{}{}
			}
		}
	}
	return out
}

func overlap(a, b Profile) []uint64 {
	ids := make([]uint64, 0, len(a.Answers))
	for id := range a.Answers {
		if _, ok := b.Answers[id]; ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
