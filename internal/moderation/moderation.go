// ABOUTME: Content-safety checker that thresholds per-category scores from a remote scorer
// ABOUTME: Sexual categories use a fixed ceiling; others only count when a threshold is given

package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// SexualThreshold applies to the sexual and sexual/minors categories regardless
// of the caller's threshold.
const SexualThreshold = 0.15

var fixedThresholds = map[string]float64{
	"sexual":        SexualThreshold,
	"sexual/minors": SexualThreshold,
}

// Scores is the raw verdict of a remote scorer.
type Scores struct {
	Flagged    bool
	Categories map[string]float64
}

// Scorer produces per-category scores for a piece of text.
type Scorer interface {
	Score(ctx context.Context, text string) (Scores, error)
}

// Category is one category that crossed its threshold.
type Category struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Result is the outcome of a check. Categories are sorted by score, highest first.
type Result struct {
	Flagged    bool       `json:"flagged"`
	Categories []Category `json:"categories"`
}

// Checker evaluates text against a Scorer.
type Checker struct {
	scorer Scorer
	logger *slog.Logger
}

// NewChecker creates a Checker.
func NewChecker(scorer Scorer, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{scorer: scorer, logger: logger.With("component", "moderation")}
}

// Check scores text. With a nil threshold the scorer's own flag is reported and
// only the fixed-threshold categories are listed. With a threshold, every
// category above it is listed and Flagged is true iff the list is non-empty.
func (c *Checker) Check(ctx context.Context, text string, threshold *float64) (Result, error) {
	scores, err := c.scorer.Score(ctx, text)
	if err != nil {
		return Result{}, fmt.Errorf("checking content: %w", err)
	}

	res := Result{Categories: []Category{}}
	for name, score := range scores.Categories {
		limit, fixed := fixedThresholds[name]
		switch {
		case fixed:
		case threshold != nil:
			limit = *threshold
		default:
			continue
		}
		if score > limit {
			res.Categories = append(res.Categories, Category{Name: name, Score: score})
		}
	}
	sort.SliceStable(res.Categories, func(i, j int) bool {
		if res.Categories[i].Score != res.Categories[j].Score {
			return res.Categories[i].Score > res.Categories[j].Score
		}
		return res.Categories[i].Name < res.Categories[j].Name
	})

	if threshold == nil {
		res.Flagged = scores.Flagged
	} else {
		res.Flagged = len(res.Categories) > 0
	}

	c.logger.Debug("content checked", "flagged", res.Flagged, "categories", len(res.Categories))
	return res, nil
}
