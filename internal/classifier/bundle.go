package classifier

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/tidwall/gjson"
)

// ErrInvalidBundle is returned when a parameter bundle fails structural
// validation. It disables classification only.
var ErrInvalidBundle = errors.New("invalid classifier bundle")

// Kind identifies the model family a bundle was exported from.
type Kind string

const (
	KindLinearLogistic Kind = "logistic_regression"
	KindNaiveBayesLite Kind = "naive_bayes"
)

// kindAliases maps accepted "type" values to a Kind.
var kindAliases = map[string]Kind{
	"logistic_regression": KindLinearLogistic,
	"linear_logistic":     KindLinearLogistic,
	"naive_bayes":         KindNaiveBayesLite,
	"naive_bayes_lite":    KindNaiveBayesLite,
}

// Bundle holds the immutable parameters of a trained classifier.
type Bundle struct {
	Kind    Kind
	Version string

	Vocabulary  map[string]int
	IDF         []float64
	MaxFeatures int
	MinN        int
	MaxN        int

	// LinearLogistic
	Weights []float64
	Bias    float64

	// NaiveBayesLite
	FeatureLogProb []float64
	ClassLogPrior  float64
}

// LoadBundle reads and validates a bundle file.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	return ParseBundle(data)
}

func invalid(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidBundle, fmt.Sprintf(format, a...))
}

// ParseBundle decodes the exported JSON bundle. Field names follow the
// training export; "weights" and "bias" are accepted as aliases for
// "coefficients" and "intercept".
func ParseBundle(data []byte) (*Bundle, error) {
	if !gjson.ValidBytes(data) {
		return nil, invalid("not valid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, invalid("top level must be an object")
	}

	b := &Bundle{}

	typ := root.Get("type").String()
	kind, ok := kindAliases[typ]
	if !ok {
		return nil, invalid("unsupported type %q", typ)
	}
	b.Kind = kind

	idf, err := floats(root.Get("idf"), "idf")
	if err != nil {
		return nil, err
	}
	if len(idf) == 0 {
		return nil, invalid("idf is missing or empty")
	}
	b.IDF = idf
	b.MaxFeatures = len(idf)

	// sklearn caps the vocabulary at max_features; a smaller corpus yields
	// fewer features than declared.
	if mf := root.Get("max_features"); mf.Exists() && mf.Type != gjson.Null {
		if mf.Type != gjson.Number || mf.Int() < int64(len(idf)) {
			return nil, invalid("max_features %s is smaller than idf length %d", mf.Raw, len(idf))
		}
	}

	b.MinN, b.MaxN = 1, 1
	if nr := root.Get("ngram_range"); nr.Exists() {
		arr := nr.Array()
		if !nr.IsArray() || len(arr) != 2 {
			return nil, invalid("ngram_range must be a two-element array")
		}
		b.MinN, b.MaxN = int(arr[0].Int()), int(arr[1].Int())
		if b.MinN < 1 || b.MaxN < b.MinN {
			return nil, invalid("ngram_range [%d, %d] out of order", b.MinN, b.MaxN)
		}
	}

	vocab := root.Get("vocabulary")
	if !vocab.IsObject() {
		return nil, invalid("vocabulary is missing")
	}
	b.Vocabulary = make(map[string]int)
	used := make(map[int]string)
	var vocabErr error
	vocab.ForEach(func(key, value gjson.Result) bool {
		if value.Type != gjson.Number || value.Float() != math.Trunc(value.Float()) {
			vocabErr = invalid("vocabulary[%q] is not an integer", key.String())
			return false
		}
		idx := int(value.Int())
		if idx < 0 || idx >= b.MaxFeatures {
			vocabErr = invalid("vocabulary[%q] = %d outside [0, %d)", key.String(), idx, b.MaxFeatures)
			return false
		}
		if prev, dup := used[idx]; dup {
			vocabErr = invalid("vocabulary index %d used by %q and %q", idx, prev, key.String())
			return false
		}
		used[idx] = key.String()
		b.Vocabulary[key.String()] = idx
		return true
	})
	if vocabErr != nil {
		return nil, vocabErr
	}
	if len(b.Vocabulary) == 0 {
		return nil, invalid("vocabulary is empty")
	}

	switch b.Kind {
	case KindLinearLogistic:
		w := firstOf(root, "coefficients", "weights")
		if b.Weights, err = floats(w, "coefficients"); err != nil {
			return nil, err
		}
		if len(b.Weights) != b.MaxFeatures {
			return nil, invalid("coefficients length %d, want %d", len(b.Weights), b.MaxFeatures)
		}
		bias := firstOf(root, "intercept", "bias")
		if bias.Type != gjson.Number {
			return nil, invalid("intercept is missing")
		}
		b.Bias = bias.Float()
	case KindNaiveBayesLite:
		if b.FeatureLogProb, err = floats(root.Get("feature_log_prob"), "feature_log_prob"); err != nil {
			return nil, err
		}
		if len(b.FeatureLogProb) != b.MaxFeatures {
			return nil, invalid("feature_log_prob length %d, want %d", len(b.FeatureLogProb), b.MaxFeatures)
		}
		prior := root.Get("class_log_prior")
		if prior.Type != gjson.Number {
			return nil, invalid("class_log_prior is missing")
		}
		b.ClassLogPrior = prior.Float()
	}

	b.Version = root.Get("version").String()
	if b.Version == "" {
		sum := sha256.Sum256(data)
		b.Version = hex.EncodeToString(sum[:6])
	}
	return b, nil
}

func firstOf(root gjson.Result, names ...string) gjson.Result {
	for _, n := range names {
		if r := root.Get(n); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}

// floats decodes a numeric array. JSON null entries become 0.
func floats(r gjson.Result, field string) ([]float64, error) {
	if !r.Exists() {
		return nil, invalid("%s is missing", field)
	}
	if !r.IsArray() {
		return nil, invalid("%s must be an array", field)
	}
	arr := r.Array()
	out := make([]float64, len(arr))
	for i, v := range arr {
		switch v.Type {
		case gjson.Number:
			out[i] = v.Float()
		case gjson.Null:
		default:
			return nil, invalid("%s[%d] is not a number", field, i)
		}
	}
	return out, nil
}
