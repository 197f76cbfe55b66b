// Package classifier scores short video titles and descriptions with a
// TF-IDF vectorizer and a linear or naive Bayes model exported from the
// offline training tooling. Scoring is deterministic: the same bundle and
// text always produce the same probability.
package classifier

import (
	"math"
	"strings"
	"unicode"
)

// Label is the binary decision.
type Label string

const (
	LabelAllow Label = "allow"
	LabelDeny  Label = "deny"
)

// MaxDescriptionChars bounds the description length fed to Predict.
const MaxDescriptionChars = 500

// rawLimit keeps math.Exp within float64 range.
const rawLimit = 700

// Result is a single classification.
type Result struct {
	Label      Label   `json:"label"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	// Fallback marks a result produced without a usable model or score.
	// The caller decides what it means.
	Fallback bool `json:"fallback,omitempty"`
}

// FallbackResult is returned when no bundle is loaded or scoring produced a
// non-finite value.
func FallbackResult() Result {
	return Result{Label: LabelDeny, Score: 0.5, Confidence: 0, Fallback: true}
}

// Engine classifies text with one immutable bundle. A nil *Engine is valid
// and always returns FallbackResult.
type Engine struct {
	b *Bundle
}

// NewEngine wraps a validated bundle. A nil bundle yields a nil engine.
func NewEngine(b *Bundle) *Engine {
	if b == nil {
		return nil
	}
	return &Engine{b: b}
}

// Bundle returns the loaded parameters, or nil.
func (e *Engine) Bundle() *Bundle {
	if e == nil {
		return nil
	}
	return e.b
}

// Preprocess lowercases text, drops everything except [a-z0-9] and
// whitespace, and collapses whitespace runs to single spaces.
func Preprocess(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case unicode.IsSpace(r):
			sb.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// ngrams returns contiguous word n-grams for each n in [minN, maxN].
func ngrams(text string, minN, maxN int) []string {
	words := strings.Fields(text)
	var out []string
	for n := minN; n <= maxN; n++ {
		for i := 0; i+n <= len(words); i++ {
			out = append(out, strings.Join(words[i:i+n], " "))
		}
	}
	return out
}

// Vectorize turns text into an L2-normalized TF-IDF feature vector of length
// MaxFeatures. Unknown n-grams are ignored; an all-zero vector is returned
// unchanged.
func (e *Engine) Vectorize(text string) []float64 {
	if e == nil {
		return nil
	}
	b := e.b
	features := make([]float64, b.MaxFeatures)
	for _, g := range ngrams(Preprocess(text), b.MinN, b.MaxN) {
		idx, ok := b.Vocabulary[g]
		if !ok || idx >= b.MaxFeatures {
			continue
		}
		w := b.IDF[idx]
		if w == 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			w = 1
		}
		features[idx] = w
	}

	// Summed in index order so the norm is bit-for-bit reproducible.
	var sum float64
	for _, x := range features {
		sum += x * x
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return features
	}
	for i := range features {
		features[i] /= norm
	}
	return features
}

// Score applies the model to a feature vector.
func (e *Engine) Score(features []float64) Result {
	if e == nil || e.b == nil {
		return FallbackResult()
	}
	b := e.b

	var raw float64
	switch b.Kind {
	case KindLinearLogistic:
		if len(b.Weights) == 0 {
			return FallbackResult()
		}
		raw = b.Bias
		for i, x := range features {
			if i >= len(b.Weights) {
				break
			}
			raw += b.Weights[i] * x
		}
	case KindNaiveBayesLite:
		if len(b.FeatureLogProb) == 0 {
			return FallbackResult()
		}
		raw = b.ClassLogPrior
		for i, x := range features {
			if i >= len(b.FeatureLogProb) {
				break
			}
			if x > 0 {
				raw += b.FeatureLogProb[i]
			}
		}
	default:
		return FallbackResult()
	}
	return fromRaw(raw)
}

// fromRaw maps a raw model output through a clamped sigmoid.
func fromRaw(raw float64) Result {
	if math.IsNaN(raw) {
		return FallbackResult()
	}
	raw = math.Max(-rawLimit, math.Min(rawLimit, raw))
	p := 1 / (1 + math.Exp(-raw))
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return FallbackResult()
	}

	label := LabelDeny
	if p > 0.5 {
		label = LabelAllow
	}
	return Result{Label: label, Score: p, Confidence: math.Abs(p-0.5) * 2}
}

// Predict classifies a content item from its title and description. The
// description is truncated to MaxDescriptionChars characters first.
func (e *Engine) Predict(title, description string) Result {
	if e == nil {
		return FallbackResult()
	}
	if r := []rune(description); len(r) > MaxDescriptionChars {
		description = string(r[:MaxDescriptionChars])
	}
	return e.Score(e.Vectorize(title + " " + description))
}
