package grading

import (
	"encoding/json"
	"math"
	"math/rand"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/eduplan-api/internal/models"
)

var now = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func sampleResult() models.GradingResult {
	confidence := 87.5
	return models.GradingResult{
		Student: models.StudentMetadata{Name: "Ana", Class: "7B"},
		Questions: []models.QuestionResult{
			{QuestionNumber: "1", Topic: "fractions", PointsAwarded: 4, MaxPoints: 5, IsCorrect: false},
			{QuestionNumber: "2", Topic: "decimals", PointsAwarded: 5, MaxPoints: 5, IsCorrect: true},
			{QuestionNumber: "3", Topic: "ratios", PointsAwarded: 6, MaxPoints: 10},
		},
		SummaryComment:  "Solid work",
		TotalScore:      15,
		ConfidenceScore: &confidence,
	}
}

func TestNewOverrideValid(t *testing.T) {
	o, err := NewOverride("3", 6, 10, 10, strPtr("  partial credit missed "), now)
	require.NoError(t, err)
	assert.Equal(t, "3", o.QuestionNumber)
	assert.Equal(t, 6.0, o.OriginalScore)
	assert.Equal(t, 10.0, o.OverrideScore)
	assert.Equal(t, "partial credit missed", *o.Reason)
	assert.Equal(t, now, o.CreatedAt)

	o, err = NewOverride("1", 0, 0, 5, strPtr("   "), now)
	require.NoError(t, err)
	assert.Nil(t, o.Reason)
}

func TestNewOverrideReportsEachViolation(t *testing.T) {
	_, err := NewOverride("3", 12, -1, 10, nil, now)
	require.Error(t, err)
	errs, ok := err.(ValidationErrors)
	require.True(t, ok)
	assert.Equal(t, ValidationErrors{
		{Field: "override_score", Message: "must not be negative"},
		{Field: "original_score", Message: "must not exceed max points (10)"},
	}, errs)

	_, err = NewOverride("3", 6, 11, 10, nil, now)
	errs = err.(ValidationErrors)
	require.Len(t, errs, 1)
	assert.Equal(t, "override_score", errs[0].Field)

	_, err = NewOverride(" ", math.NaN(), 1, 10, nil, now)
	errs = err.(ValidationErrors)
	assert.Len(t, errs, 2)
}

func TestNewOverrideBoundsProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		max := float64(rng.Intn(20) + 1)
		original := rng.Float64() * max
		score := rng.Float64()*(max+4) - 2
		o, err := NewOverride("q", original, score, max, nil, now)
		if score < 0 || score > max {
			assert.Error(t, err, "score=%v max=%v", score, max)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, original, o.OriginalScore)
		assert.Equal(t, score, o.OverrideScore)
	}
}

func TestEffectiveScoreScenario(t *testing.T) {
	result := sampleResult()
	o, err := NewOverride("3", 6, 10, 10, nil, now)
	require.NoError(t, err)
	result = WithOverride(result, o)

	score, ok := EffectiveScore(&result, "3")
	assert.True(t, ok)
	assert.Equal(t, 10.0, score)

	score, ok = EffectiveScore(&result, "1")
	assert.True(t, ok)
	assert.Equal(t, 4.0, score)

	_, ok = EffectiveScore(&result, "99")
	assert.False(t, ok)

	assert.True(t, HasOverride(&result, "3"))
	assert.False(t, HasOverride(&result, "1"))
	assert.Equal(t, 19.0, FinalScore(&result))
	assert.Equal(t, 20.0, MaxScore(&result))
}

func TestFinalScoreWithoutOverrides(t *testing.T) {
	result := sampleResult()
	assert.Equal(t, 15.0, FinalScore(&result))
	assert.Equal(t, 0.0, FinalScore(nil))
}

func TestOverrideForUnknownQuestionIsInert(t *testing.T) {
	result := sampleResult()
	result.Overrides = []models.QuestionOverride{{QuestionNumber: "42", OverrideScore: 100, CreatedAt: now}}
	assert.Equal(t, 15.0, FinalScore(&result))
	assert.True(t, HasOverride(&result, "42"))
	_, ok := EffectiveScore(&result, "42")
	assert.False(t, ok)
}

func TestLatestOverrideWins(t *testing.T) {
	result := sampleResult()
	result.Overrides = []models.QuestionOverride{
		{QuestionNumber: "3", OriginalScore: 6, OverrideScore: 9, CreatedAt: now.Add(time.Hour)},
		{QuestionNumber: "3", OriginalScore: 6, OverrideScore: 7, CreatedAt: now},
		{QuestionNumber: "1", OriginalScore: 4, OverrideScore: 5, CreatedAt: now},
	}

	o, ok := GetOverride(&result, "3")
	require.True(t, ok)
	assert.Equal(t, 9.0, o.OverrideScore)
	assert.Equal(t, 19.0, FinalScore(&result))

	history := History(&result, "3")
	require.Len(t, history, 2)
	assert.Equal(t, 7.0, history[0].OverrideScore)
	assert.Equal(t, 9.0, history[1].OverrideScore)

	result.Overrides = append(result.Overrides, models.QuestionOverride{QuestionNumber: "3", OverrideScore: 8, CreatedAt: now.Add(time.Hour)})
	o, _ = GetOverride(&result, "3")
	assert.Equal(t, 8.0, o.OverrideScore, "later position breaks CreatedAt ties")
}

func TestWithOverrideDoesNotMutate(t *testing.T) {
	result := sampleResult()
	result.Overrides = make([]models.QuestionOverride, 0, 4)
	o, err := NewOverride("2", 5, 3, 5, nil, now)
	require.NoError(t, err)

	updated := WithOverride(result, o)
	assert.Len(t, updated.Overrides, 1)
	assert.Empty(t, result.Overrides)
	assert.Equal(t, 15.0, FinalScore(&result))
	assert.Equal(t, 13.0, FinalScore(&updated))
}

func TestFinalScoreSumProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 200; iter++ {
		n := rng.Intn(12) + 1
		result := models.GradingResult{}
		var expected float64
		for i := 0; i < n; i++ {
			number := strconv.Itoa(i + 1)
			max := float64(rng.Intn(10) + 1)
			points := math.Floor(rng.Float64()*max*2) / 2
			result.Questions = append(result.Questions, models.QuestionResult{QuestionNumber: number, PointsAwarded: points, MaxPoints: max})
			if rng.Intn(2) == 0 {
				score := math.Floor(rng.Float64()*max*2) / 2
				o, err := NewOverride(number, points, score, max, nil, now)
				require.NoError(t, err)
				result = WithOverride(result, o)
				expected += score
			} else {
				expected += points
			}
		}
		assert.InDelta(t, expected, FinalScore(&result), 1e-9)
	}
}

func TestGradingResultRoundTrip(t *testing.T) {
	result := sampleResult()
	result.Questions[0].Transcription = "3/4"
	result.Questions[0].Reasoning = "denominator wrong"
	result.Questions[0].Feedback = "check the denominator"
	result.Overrides = []models.QuestionOverride{
		{ID: "ov-1", QuestionNumber: "3", OriginalScore: 6, OverrideScore: 10, Reason: strPtr("rubric"), CreatedBy: "teacher-1", CreatedAt: now},
		{QuestionNumber: "1", OriginalScore: 4, OverrideScore: 4.5, CreatedAt: now.Add(time.Minute)},
	}

	raw, err := json.Marshal(result)
	require.NoError(t, err)
	var decoded models.GradingResult
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, result, decoded)

	withoutConfidence := sampleResult()
	withoutConfidence.ConfidenceScore = nil
	raw, err = json.Marshal(withoutConfidence)
	require.NoError(t, err)
	decoded = models.GradingResult{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, withoutConfidence, decoded)
}
