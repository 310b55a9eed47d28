package vectorindex

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"unicode"
)

// HashEmbedder is a deterministic feature-hashing embedder: each token is
// hashed into a fixed-dimension bucket and the vector is L2-normalized.
// It needs no model assets, making it the default for local-first use;
// production deployments swap in a real Embedder at construction time.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a HashEmbedder. dim <= 0 defaults to 256.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &HashEmbedder{dim: dim}
}

// Dimension returns the vector dimension.
func (h *HashEmbedder) Dimension() int {
	return h.dim
}

// Encode maps each text to a normalized term-frequency vector over hashed
// token buckets. Identical input always yields identical output.
func (h *HashEmbedder) Encode(texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = h.encodeOne(text)
	}
	return out, nil
}

func (h *HashEmbedder) encodeOne(text string) []float32 {
	vec := make([]float32, h.dim)

	for _, token := range tokenize(text) {
		sum := sha256.Sum256([]byte(token))
		bucket := binary.BigEndian.Uint32(sum[:4]) % uint32(h.dim)
		// Hash bit 32 decides sign, which reduces bucket collisions
		// cancelling token counts uniformly.
		if sum[4]&1 == 0 {
			vec[bucket]++
		} else {
			vec[bucket]--
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}
