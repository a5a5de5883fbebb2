package reid

import (
	"errors"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/deface/internal/detect"
)

// hnswMaxNeighbors is the M parameter of the profile graph. Profiles are
// small (one embedding per usable reference crop), so a modest M keeps the
// search exact in practice.
const hnswMaxNeighbors = 16

// ErrEmptyProfile is returned when no usable embeddings could be extracted
// from the reference images.
var ErrEmptyProfile = errors.New("no valid target person embeddings could be extracted")

// Profile is the set of appearance embeddings extracted once per run from
// the target person's reference images. It is immutable after construction.
type Profile struct {
	embeddings []detect.Embedding
	graph      *hnsw.Graph[int]
}

// NewProfile builds a profile from reference embeddings. The embeddings are
// indexed in an HNSW graph with cosine distance for nearest-profile lookup.
func NewProfile(embeddings []detect.Embedding) (*Profile, error) {
	if len(embeddings) == 0 {
		return nil, ErrEmptyProfile
	}

	g := hnsw.NewGraph[int]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.Distance = hnsw.CosineDistance

	for i, e := range embeddings {
		if len(e) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(i, []float32(e)))
	}
	if g.Len() == 0 {
		return nil, ErrEmptyProfile
	}

	return &Profile{embeddings: embeddings, graph: g}, nil
}

// Size returns the number of reference embeddings in the profile.
func (p *Profile) Size() int {
	return len(p.embeddings)
}

// BestSimilarity returns the maximum cosine similarity between the query
// embedding and any profile embedding.
func (p *Profile) BestSimilarity(query detect.Embedding) float64 {
	if len(query) == 0 {
		return 0
	}

	neighbors := p.graph.Search([]float32(query), 1)
	if len(neighbors) == 0 {
		return 0
	}
	// Recompute the similarity from the node value; the graph's internal
	// distance is not exposed.
	return CosineSimilarity(query, neighbors[0].Value)
}

// Matches reports whether the query clears the similarity threshold, and the
// best similarity score either way.
func (p *Profile) Matches(query detect.Embedding, threshold float64) (bool, float64) {
	score := p.BestSimilarity(query)
	return score > threshold, score
}
