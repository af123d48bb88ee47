package securityrunner

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/target/evalorch/internal/domain/model"
)

// ErrNoScore is returned when a payload carries no readable score.
var ErrNoScore = errors.New("payload has no score")

// Expressions are the JMESPath queries used to read a runner payload.
// Empty fields fall back to DefaultExpressions.
type Expressions struct {
	Score      string
	TotalTests string
	Resisted   string
	Failed     string
	Categories string
}

// DefaultExpressions accept the flat and the summary-wrapped payload shapes.
func DefaultExpressions() Expressions {
	return Expressions{
		Score:      "score || resistanceRate || resistance_rate || summary.resistanceRate || summary.score",
		TotalTests: "totalTests || total_tests || summary.totalTests || summary.total",
		Resisted:   "resisted || passedTests || summary.resisted || summary.passed",
		Failed:     "failed || failedTests || summary.failed",
		Categories: "categories || summary.categories || results_by_category",
	}
}

// Normalizer turns heterogeneous runner payloads into a model.SecurityResult.
type Normalizer struct {
	exprs Expressions
}

// NewNormalizer compiles every expression up front so bad configuration fails at boot.
func NewNormalizer(exprs Expressions) (*Normalizer, error) {
	def := DefaultExpressions()
	fill := func(v *string, d string) {
		if *v == "" {
			*v = d
		}
	}
	fill(&exprs.Score, def.Score)
	fill(&exprs.TotalTests, def.TotalTests)
	fill(&exprs.Resisted, def.Resisted)
	fill(&exprs.Failed, def.Failed)
	fill(&exprs.Categories, def.Categories)

	for name, expr := range map[string]string{
		"score":      exprs.Score,
		"totalTests": exprs.TotalTests,
		"resisted":   exprs.Resisted,
		"failed":     exprs.Failed,
		"categories": exprs.Categories,
	} {
		if _, err := jmespath.Compile(expr); err != nil {
			return nil, fmt.Errorf("invalid %s expression %q: %w", name, expr, err)
		}
	}
	return &Normalizer{exprs: exprs}, nil
}

// Normalize reads score, counters and category breakdown from raw. The score is
// clamped to [0,100]; a missing score yields ErrNoScore.
func (n *Normalizer) Normalize(raw json.RawMessage) (model.SecurityResult, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return model.SecurityResult{}, fmt.Errorf("decode payload: %w", err)
	}

	score, ok := n.number(n.exprs.Score, doc)
	if !ok {
		return model.SecurityResult{}, ErrNoScore
	}
	res := model.SecurityResult{
		Score: clamp(score, 0, 100),
		Raw:   append(json.RawMessage(nil), raw...),
	}
	if v, found := n.number(n.exprs.TotalTests, doc); found {
		res.TotalTests = int(v)
	}
	if v, found := n.number(n.exprs.Resisted, doc); found {
		res.Resisted = int(v)
	}
	if v, found := n.number(n.exprs.Failed, doc); found {
		res.Failed = int(v)
	} else if res.TotalTests >= res.Resisted {
		res.Failed = res.TotalTests - res.Resisted
	}
	res.Categories = n.categories(doc)
	return res, nil
}

func (n *Normalizer) number(expr string, doc any) (float64, bool) {
	v, err := jmespath.Search(expr, doc)
	if err != nil || v == nil {
		return 0, false
	}
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x)
	case int:
		return float64(x), true
	case string:
		f, perr := strconv.ParseFloat(x, 64)
		return f, perr == nil && !math.IsNaN(f)
	default:
		return 0, false
	}
}

type rawBreakdown struct {
	Total    *float64 `json:"total"`
	Resisted *float64 `json:"resisted"`
	Rate     *float64 `json:"rate"`
}

func (n *Normalizer) categories(doc any) map[string]model.CategoryBreakdown {
	v, err := jmespath.Search(n.exprs.Categories, doc)
	if err != nil {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	out := make(map[string]model.CategoryBreakdown, len(m))
	for name, entry := range m {
		b, mErr := json.Marshal(entry)
		if mErr != nil {
			continue
		}
		var rb rawBreakdown
		if json.Unmarshal(b, &rb) != nil {
			continue
		}
		cb := model.CategoryBreakdown{}
		if rb.Total != nil {
			cb.Total = int(*rb.Total)
		}
		if rb.Resisted != nil {
			cb.Resisted = int(*rb.Resisted)
		}
		switch {
		case rb.Rate != nil:
			cb.Rate = clamp(*rb.Rate, 0, 100)
		case cb.Total > 0:
			cb.Rate = math.Round(float64(cb.Resisted)/float64(cb.Total)*1000) / 10
		}
		out[name] = cb
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
