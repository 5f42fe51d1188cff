// ABOUTME: Tests for the moderation checker threshold rules
// ABOUTME: Uses a stub scorer so no remote calls are made

package moderation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubScorer struct {
	scores Scores
	err    error
}

func (s stubScorer) Score(context.Context, string) (Scores, error) {
	return s.scores, s.err
}

func ptr(f float64) *float64 { return &f }

func TestCheck_NoThresholdKeepsRemoteFlag(t *testing.T) {
	c := NewChecker(stubScorer{scores: Scores{
		Flagged: true,
		Categories: map[string]float64{
			"harassment": 0.9,
			"sexual":     0.1,
		},
	}}, nil)

	res, err := c.Check(context.Background(), "text", nil)
	require.NoError(t, err)
	assert.True(t, res.Flagged)
	assert.Empty(t, res.Categories, "harassment is ignored without a threshold and sexual is under its ceiling")
}

func TestCheck_SexualCeilingAlwaysApplies(t *testing.T) {
	c := NewChecker(stubScorer{scores: Scores{
		Flagged: false,
		Categories: map[string]float64{
			"sexual":        0.2,
			"sexual/minors": 0.16,
			"violence":      0.5,
		},
	}}, nil)

	res, err := c.Check(context.Background(), "text", nil)
	require.NoError(t, err)
	assert.False(t, res.Flagged)
	assert.Equal(t, []Category{
		{Name: "sexual", Score: 0.2},
		{Name: "sexual/minors", Score: 0.16},
	}, res.Categories)
}

func TestCheck_ThresholdRecomputesFlag(t *testing.T) {
	c := NewChecker(stubScorer{scores: Scores{
		Flagged: false,
		Categories: map[string]float64{
			"harassment": 0.3,
			"hate":       0.05,
			"violence":   0.6,
		},
	}}, nil)

	res, err := c.Check(context.Background(), "text", ptr(0.1))
	require.NoError(t, err)
	assert.True(t, res.Flagged)
	require.Len(t, res.Categories, 2)
	assert.Equal(t, "violence", res.Categories[0].Name)
	assert.Equal(t, "harassment", res.Categories[1].Name)
}

func TestCheck_ThresholdClearsRemoteFlag(t *testing.T) {
	c := NewChecker(stubScorer{scores: Scores{
		Flagged:    true,
		Categories: map[string]float64{"harassment": 0.3},
	}}, nil)

	res, err := c.Check(context.Background(), "text", ptr(0.5))
	require.NoError(t, err)
	assert.False(t, res.Flagged)
	assert.Empty(t, res.Categories)
}

func TestCheck_ScorerError(t *testing.T) {
	boom := errors.New("boom")
	c := NewChecker(stubScorer{err: boom}, nil)

	_, err := c.Check(context.Background(), "text", nil)
	assert.ErrorIs(t, err, boom)
}
