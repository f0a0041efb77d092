package semantic

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/google/uuid"
)

func newID() string { return uuid.NewString() }

// Vectorize turns text into a deterministic 384-dimension unit vector
// using feature hashing: each lowercased token is hashed into a bucket
// and accumulated, then the result is L2-normalized. It is not a
// learned embedding, but it gives repeated/similar phrasing a higher
// cosine similarity than unrelated text, which is what Recall needs,
// and it keeps the store free of any external model dependency.
func Vectorize(text string) [Dimension]float32 {
	var vec [Dimension]float32
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		bucket := h.Sum32() % Dimension
		vec[bucket] += 1
	}
	normalize(&vec)
	return vec
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return fields
}

func normalize(vec *[Dimension]float32) {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return
	}
	norm := math.Sqrt(sumSq)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}

// cosineDistance returns 1 - cosine_similarity, so 0 means identical
// direction and larger values mean less similar.
func cosineDistance(a, b [Dimension]float32) float64 {
	var dot, normA, normB float64
	for i := 0; i < Dimension; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return 1 - cos
}

func encodeVector(vec [Dimension]float32) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(Dimension * 4)
	for _, v := range vec {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("encode vector: %w", err)
		}
	}
	return buf.Bytes(), nil
}

func decodeVector(data []byte) ([Dimension]float32, error) {
	var vec [Dimension]float32
	if len(data) != Dimension*4 {
		return vec, fmt.Errorf("decode vector: expected %d bytes, got %d", Dimension*4, len(data))
	}
	r := bytes.NewReader(data)
	for i := range vec {
		if err := binary.Read(r, binary.LittleEndian, &vec[i]); err != nil {
			return vec, fmt.Errorf("decode vector: %w", err)
		}
	}
	return vec, nil
}
