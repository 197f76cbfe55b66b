package classifier

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lrBundle = `{
  "type": "logistic_regression",
  "version": "test-1",
  "max_features": 4,
  "ngram_range": [1, 2],
  "vocabulary": {"lecture": 0, "calculus": 1, "prank": 2, "lecture calculus": 3},
  "idf": [1.0, 2.0, 1.5, 0],
  "coefficients": [2.0, 1.0, -3.0, 0.5],
  "intercept": 0.0
}`

const nbBundle = `{
  "type": "naive_bayes_lite",
  "max_features": null,
  "vocabulary": {"tutorial": 0, "reaction": 1},
  "idf": [1.0, 1.0],
  "feature_log_prob": [1.5, -4.0],
  "class_log_prior": -0.5
}`

func mustEngine(t *testing.T, raw string) *Engine {
	t.Helper()
	b, err := ParseBundle([]byte(raw))
	require.NoError(t, err)
	return NewEngine(b)
}

func TestParseBundle(t *testing.T) {
	b, err := ParseBundle([]byte(lrBundle))
	require.NoError(t, err)
	assert.Equal(t, KindLinearLogistic, b.Kind)
	assert.Equal(t, "test-1", b.Version)
	assert.Equal(t, 4, b.MaxFeatures)
	assert.Equal(t, 1, b.MinN)
	assert.Equal(t, 2, b.MaxN)
	assert.Equal(t, 3, b.Vocabulary["lecture calculus"])
	assert.Len(t, b.Weights, 4)

	nb, err := ParseBundle([]byte(nbBundle))
	require.NoError(t, err)
	assert.Equal(t, KindNaiveBayesLite, nb.Kind)
	assert.Equal(t, 2, nb.MaxFeatures)
	assert.Equal(t, 1, nb.MinN)
	assert.Equal(t, 1, nb.MaxN)
	assert.Equal(t, -0.5, nb.ClassLogPrior)
	assert.Len(t, nb.Version, 12, "missing version falls back to a content hash")
}

func TestParseBundleAliases(t *testing.T) {
	raw := `{"type":"linear_logistic","vocabulary":{"a":0},"idf":[1],"weights":[1],"bias":-1}`
	b, err := ParseBundle([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, KindLinearLogistic, b.Kind)
	assert.Equal(t, []float64{1}, b.Weights)
	assert.Equal(t, -1.0, b.Bias)
}

func TestParseBundleInvalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"array", `[1,2]`},
		{"unknown type", `{"type":"svm","vocabulary":{"a":0},"idf":[1],"coefficients":[1],"intercept":0}`},
		{"missing idf", `{"type":"logistic_regression","vocabulary":{"a":0},"coefficients":[1],"intercept":0}`},
		{"max_features too small", `{"type":"logistic_regression","max_features":1,"vocabulary":{"a":0,"b":1},"idf":[1,1],"coefficients":[1,1],"intercept":0}`},
		{"index out of range", `{"type":"logistic_regression","vocabulary":{"a":3},"idf":[1],"coefficients":[1],"intercept":0}`},
		{"duplicate index", `{"type":"logistic_regression","vocabulary":{"a":0,"b":0},"idf":[1,1],"coefficients":[1,1],"intercept":0}`},
		{"fractional index", `{"type":"logistic_regression","vocabulary":{"a":0.5},"idf":[1],"coefficients":[1],"intercept":0}`},
		{"empty vocabulary", `{"type":"logistic_regression","vocabulary":{},"idf":[1],"coefficients":[1],"intercept":0}`},
		{"weights length", `{"type":"logistic_regression","vocabulary":{"a":0},"idf":[1],"coefficients":[1,2],"intercept":0}`},
		{"missing intercept", `{"type":"logistic_regression","vocabulary":{"a":0},"idf":[1],"coefficients":[1]}`},
		{"missing log prob", `{"type":"naive_bayes","vocabulary":{"a":0},"idf":[1],"class_log_prior":0}`},
		{"missing prior", `{"type":"naive_bayes","vocabulary":{"a":0},"idf":[1],"feature_log_prob":[0]}`},
		{"bad ngram range", `{"type":"naive_bayes","ngram_range":[2,1],"vocabulary":{"a":0},"idf":[1],"feature_log_prob":[0],"class_log_prior":0}`},
		{"non numeric idf", `{"type":"naive_bayes","vocabulary":{"a":0},"idf":["x"],"feature_log_prob":[0],"class_log_prior":0}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := ParseBundle([]byte(tt.raw))
			assert.Nil(t, b)
			assert.ErrorIs(t, err, ErrInvalidBundle)
		})
	}
}

func TestLoadBundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.json")
	require.NoError(t, os.WriteFile(path, []byte(lrBundle), 0o644))

	b, err := LoadBundle(path)
	require.NoError(t, err)
	assert.Equal(t, "test-1", b.Version)

	_, err = LoadBundle(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestPreprocess(t *testing.T) {
	assert.Equal(t, "hello world 2024", Preprocess("  Hello,\tWORLD!!  2024 "))
	assert.Equal(t, "", Preprocess("!!!"))
	assert.Equal(t, "caf", Preprocess("Café"))
}

func TestVectorizeEmptyIsZero(t *testing.T) {
	e := mustEngine(t, lrBundle)
	v := e.Vectorize("")
	require.Len(t, v, 4)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestVectorizeUnitNorm(t *testing.T) {
	e := mustEngine(t, lrBundle)
	v := e.Vectorize("Lecture: Calculus")

	var sum float64
	for _, x := range v {
		sum += x * x
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-12)
	assert.Zero(t, v[2], "unknown n-gram stays zero")
	// zero idf falls back to weight 1 before normalization
	assert.Greater(t, v[3], 0.0)
	assert.InDelta(t, 2*v[0], v[1], 1e-12)
}

func TestVectorizeDeterministic(t *testing.T) {
	e := mustEngine(t, lrBundle)
	a := e.Vectorize("calculus lecture prank")
	b := e.Vectorize("calculus lecture prank")
	assert.Equal(t, a, b)
}

func TestScoreSigmoid(t *testing.T) {
	raw := `{"type":"logistic_regression","vocabulary":{"a":0},"idf":[1],"coefficients":[1],"intercept":0}`
	e := mustEngine(t, raw)

	r := e.Score([]float64{1})
	assert.InDelta(t, 0.7311, r.Score, 1e-4)
	assert.Equal(t, LabelAllow, r.Label)
	assert.InDelta(t, 0.4621, r.Confidence, 1e-4)
	assert.False(t, r.Fallback)

	r = e.Score([]float64{0})
	assert.Equal(t, 0.5, r.Score)
	assert.Equal(t, LabelDeny, r.Label, "probability 0.5 is deny")
	assert.Zero(t, r.Confidence)
}

func TestScoreClamp(t *testing.T) {
	raw := `{"type":"logistic_regression","vocabulary":{"a":0},"idf":[1],"coefficients":[1e6],"intercept":0}`
	e := mustEngine(t, raw)

	r := e.Score([]float64{1})
	assert.Equal(t, 1.0, r.Score)
	assert.False(t, r.Fallback)

	r = e.Score([]float64{-1})
	assert.False(t, math.IsNaN(r.Score))
	assert.Equal(t, LabelDeny, r.Label)
	assert.InDelta(t, 1.0, r.Confidence, 1e-12)
}

func TestScoreNaNFallsBack(t *testing.T) {
	e := mustEngine(t, lrBundle)
	r := e.Score([]float64{math.NaN(), 0, 0, 0})
	assert.Equal(t, FallbackResult(), r)
	assert.True(t, r.Fallback)
}

func TestNaiveBayesScore(t *testing.T) {
	e := mustEngine(t, nbBundle)

	r := e.Predict("Go tutorial", "")
	assert.InDelta(t, 1/(1+math.Exp(-1.0)), r.Score, 1e-12)
	assert.Equal(t, LabelAllow, r.Label)

	r = e.Predict("tutorial reaction", "")
	assert.InDelta(t, 1/(1+math.Exp(3.0)), r.Score, 1e-12)
	assert.Equal(t, LabelDeny, r.Label)

	// prior only
	r = e.Predict("", "")
	assert.InDelta(t, 1/(1+math.Exp(0.5)), r.Score, 1e-12)
}

func TestPredict(t *testing.T) {
	e := mustEngine(t, lrBundle)

	good := e.Predict("Lecture 4", "calculus")
	assert.Equal(t, LabelAllow, good.Label)

	bad := e.Predict("Epic prank", "")
	assert.Equal(t, LabelDeny, bad.Label)

	assert.Equal(t, good, e.Predict("Lecture 4", "calculus"))
}

func TestPredictTruncatesDescription(t *testing.T) {
	e := mustEngine(t, lrBundle)
	padding := strings.Repeat("x", MaxDescriptionChars)

	// "prank" past the cutoff is never seen
	r := e.Predict("lecture", padding+" prank")
	assert.Equal(t, e.Predict("lecture", padding), r)
	assert.Equal(t, LabelAllow, r.Label)
}

func TestNilEngine(t *testing.T) {
	var e *Engine
	assert.Nil(t, NewEngine(nil))
	assert.Nil(t, e.Bundle())
	assert.Nil(t, e.Vectorize("anything"))
	assert.Equal(t, FallbackResult(), e.Score([]float64{1}))
	assert.Equal(t, FallbackResult(), e.Predict("title", "desc"))
}
