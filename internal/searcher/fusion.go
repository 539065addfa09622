package searcher

import (
	"fmt"
	"sort"

	"github.com/nexushq/nexus/pkg/types"
)

// Weights control the blend between semantic and lexical relevance.
type Weights struct {
	Semantic float64 `json:"semantic"`
	Lexical  float64 `json:"lexical"`
}

// DefaultWeights favor semantic similarity while keeping keyword
// matches influential.
func DefaultWeights() Weights {
	return Weights{Semantic: 0.6, Lexical: 0.4}
}

func (w Weights) Validate() error {
	if w.Semantic < 0 || w.Lexical < 0 {
		return fmt.Errorf("weights must be non-negative, got semantic=%v lexical=%v", w.Semantic, w.Lexical)
	}
	if w.Semantic == 0 && w.Lexical == 0 {
		return fmt.Errorf("at least one weight must be positive")
	}
	return nil
}

// NormalizeLexical rewrites each hit's Normalized score as its share
// of the best BM25 score in the list, so the top keyword hit scores 1.
func NormalizeLexical(hits []types.Hit) {
	var maxScore float64
	for _, h := range hits {
		if h.Score > maxScore {
			maxScore = h.Score
		}
	}
	for i := range hits {
		if maxScore > 0 {
			hits[i].Normalized = hits[i].Score / maxScore
		} else {
			hits[i].Normalized = 0
		}
	}
}

// NormalizeSemantic clamps cosine similarity into [0,1]; negative
// similarity carries no useful ranking signal for text embeddings.
func NormalizeSemantic(hits []types.Hit) {
	for i := range hits {
		hits[i].Normalized = clamp01(hits[i].Score)
	}
}

// Fuse merges lexical and semantic hits into one ranked list ordered by
// Normalized; Score keeps the originating engine's raw value. Weights
// are scaled to sum to 1, so the combined score stays in [0,1] for any
// valid weight pair. A chunk present in both lists gets both
// contributions, so agreement between the engines outranks a strong
// showing in either one alone.
func Fuse(lexical, semantic []types.Hit, w Weights, limit int) ([]types.Hit, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	sum := w.Semantic + w.Lexical
	wSem := w.Semantic / sum
	wLex := w.Lexical / sum

	NormalizeLexical(lexical)
	NormalizeSemantic(semantic)

	merged := make(map[int64]*types.Hit)
	for _, h := range lexical {
		hit := h
		hit.Normalized = wLex * h.Normalized
		merged[h.ChunkID] = &hit
	}
	for _, h := range semantic {
		if existing, ok := merged[h.ChunkID]; ok {
			existing.Normalized += wSem * h.Normalized
			existing.Engine = types.EngineHybrid
			if existing.Content == "" {
				existing.Content = h.Content
			}
		} else {
			hit := h
			hit.Normalized = wSem * h.Normalized
			merged[h.ChunkID] = &hit
		}
	}

	fused := make([]types.Hit, 0, len(merged))
	for _, h := range merged {
		fused = append(fused, *h)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Normalized != fused[j].Normalized {
			return fused[i].Normalized > fused[j].Normalized
		}
		return fused[i].ChunkID < fused[j].ChunkID
	})

	if limit > 0 && len(fused) > limit {
		fused = fused[:limit]
	}
	return fused, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
