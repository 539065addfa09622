package types

// Engine tags the origin of a search hit.
type Engine string

const (
	EngineLexical    Engine = "lexical"
	EngineBruteForce Engine = "bruteforce"
	EngineExternal   Engine = "external"
	EngineHybrid     Engine = "hybrid"
)

// Hit is one ranked search result. Score carries the engine's raw score
// (negated BM25 for lexical, cosine similarity for semantic); Normalized is
// always in [0,1] and is what result lists are ordered by.
type Hit struct {
	ChunkID    int64
	Path       string
	StartLine  int
	EndLine    int
	Content    string
	Symbol     string
	Kind       string
	Score      float64
	Normalized float64
	Engine     Engine
}

// Validate checks the invariants every returned hit must satisfy.
func (h *Hit) Validate() error {
	if h.ChunkID == 0 {
		return ErrNotFound
	}
	if h.Normalized < 0 || h.Normalized > 1 {
		return ErrInvalidNormalizedScore
	}
	return nil
}
