package services

import (
	types "github.com/yungbote/casestudy-backend/internal/domain"
	"github.com/yungbote/casestudy-backend/internal/platform/envutil"
)

// StrengthRules classifies evidence from (quote count, score). Rules are checked strongest first.
type StrengthRules struct {
	StrongMinQuotes   int
	StrongMinScore    int
	ModerateMinQuotes int
	ModerateMinScore  int
	WeakMinQuotes     int
}

func DefaultStrengthRules() StrengthRules {
	return StrengthRules{
		StrongMinQuotes:   2,
		StrongMinScore:    4,
		ModerateMinQuotes: 1,
		ModerateMinScore:  3,
		WeakMinQuotes:     1,
	}
}

func StrengthRulesFromEnv() StrengthRules {
	d := DefaultStrengthRules()
	return StrengthRules{
		StrongMinQuotes:   envutil.Int("EVAL_STRONG_MIN_QUOTES", d.StrongMinQuotes),
		StrongMinScore:    envutil.Int("EVAL_STRONG_MIN_SCORE", d.StrongMinScore),
		ModerateMinQuotes: envutil.Int("EVAL_MODERATE_MIN_QUOTES", d.ModerateMinQuotes),
		ModerateMinScore:  envutil.Int("EVAL_MODERATE_MIN_SCORE", d.ModerateMinScore),
		WeakMinQuotes:     envutil.Int("EVAL_WEAK_MIN_QUOTES", d.WeakMinQuotes),
	}
}

func (r StrengthRules) Classify(quotes, score int) string {
	switch {
	case quotes >= r.StrongMinQuotes && score >= r.StrongMinScore:
		return types.EvidenceStrong
	case quotes >= r.ModerateMinQuotes && score >= r.ModerateMinScore:
		return types.EvidenceModerate
	case r.WeakMinQuotes > 0 && quotes >= r.WeakMinQuotes:
		return types.EvidenceWeak
	default:
		return types.EvidenceInsufficient
	}
}
