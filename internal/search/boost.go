package search

import (
	"time"
)

const (
	recencyWindow = 7 * 24 * time.Hour
	recencyBoost  = 1.1

	minBoostedRating = 4.0
	ratingBaseBoost  = 1.05
	ratingStepBoost  = 0.05
)

// applyBoosts multiplies each result's CombinedScore by the enabled
// modifiers. A nil b leaves results unchanged.
func applyBoosts(results []Result, b *BoostOptions, now time.Time) {
	if b == nil {
		return
	}
	for i := range results {
		results[i].CombinedScore = results[i].score() * boostFactor(results[i], b, now)
	}
}

func boostFactor(r Result, b *BoostOptions, now time.Time) float64 {
	doc := r.Document
	if doc == nil {
		return 1
	}
	factor := 1.0
	if b.Recency && !doc.CreatedAt.IsZero() && now.Sub(doc.CreatedAt) < recencyWindow {
		factor *= recencyBoost
	}
	if b.Rating {
		if rating, ok := doc.Metadata.Float("rating"); ok && rating >= minBoostedRating {
			factor *= ratingBaseBoost + ratingStepBoost*(rating-minBoostedRating)
		}
	}
	if len(b.CategoryPreferences) > 0 {
		if pref, ok := b.CategoryPreferences[doc.Metadata.String("category")]; ok && pref > 0 {
			factor *= pref
		}
	}
	return factor
}
