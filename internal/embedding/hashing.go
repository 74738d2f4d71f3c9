package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
)

const (
	ProviderHashing = "hashing"
	// DefaultHashingDimension matches the small sentence models usually used for job matching.
	DefaultHashingDimension = 384
)

// Hashing is an offline backend using signed feature hashing of word unigrams
// and bigrams. Vectors are L2-normalized and fully deterministic.
type Hashing struct {
	dimension int
}

func NewHashing(dimension int) *Hashing {
	if dimension <= 0 {
		dimension = DefaultHashingDimension
	}
	return &Hashing{dimension: dimension}
}

func (h *Hashing) Name() string { return ProviderHashing }

func (h *Hashing) Model() string { return "fnv-" + strconv.Itoa(h.dimension) }

func (h *Hashing) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return strings.ContainsRune(" \t\n.,;:!?()-+", r)
	})
	if len(tokens) == 0 {
		return nil, ErrEmptyEmbedding
	}

	vector := make([]float64, h.dimension)
	for i, token := range tokens {
		h.add(vector, token, 1)
		if i > 0 {
			h.add(vector, tokens[i-1]+" "+token, 0.5)
		}
	}

	var norm float64
	for _, v := range vector {
		norm += v * v
	}
	if norm == 0 {
		return nil, ErrEmptyEmbedding
	}
	norm = math.Sqrt(norm)

	out := make([]float32, h.dimension)
	for i, v := range vector {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (h *Hashing) add(vector []float64, feature string, weight float64) {
	hasher := fnv.New64a()
	hasher.Write([]byte(feature))
	sum := hasher.Sum64()

	idx := int(sum % uint64(h.dimension))
	if sum>>63 == 1 {
		weight = -weight
	}
	vector[idx] += weight
}
