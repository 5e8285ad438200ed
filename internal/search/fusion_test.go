package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelkb/kestrel/internal/store"
)

// --- Test Helpers ---

func createBM25Results(ids []string, scores []float64) []*store.BM25Result {
	results := make([]*store.BM25Result, len(ids))
	for i, id := range ids {
		score := 1.0
		if i < len(scores) {
			score = scores[i]
		}
		results[i] = &store.BM25Result{
			ID:           id,
			Score:        score,
			MatchedTerms: []string{"term"},
		}
	}
	return results
}

func createVecResults(ids []string, scores []float32) []*store.VectorResult {
	results := make([]*store.VectorResult, len(ids))
	for i, id := range ids {
		score := float32(0.9)
		if i < len(scores) {
			score = scores[i]
		}
		results[i] = &store.VectorResult{
			ID:    id,
			Score: score,
		}
	}
	return results
}

func TestRRFFusion_Basic(t *testing.T) {
	bm25 := createBM25Results([]string{"A", "B", "C"}, []float64{2.5, 2.0, 1.5})
	vec := createVecResults([]string{"C", "A", "D"}, []float32{0.95, 0.90, 0.85})
	weights := DefaultWeights()
	fusion := NewRRFFusion()

	results := fusion.Fuse(bm25, vec, weights)

	require.NotEmpty(t, results)
	require.GreaterOrEqual(t, len(results), 4)

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ChunkID
	}
	assert.Contains(t, ids, "A")
	assert.Contains(t, ids, "B")
	assert.Contains(t, ids, "C")
	assert.Contains(t, ids, "D")

	for _, r := range results {
		assert.GreaterOrEqual(t, r.RRFScore, 0.0)
		assert.LessOrEqual(t, r.RRFScore, 1.0)
	}

	assert.Equal(t, 1.0, results[0].RRFScore)
}

func TestRRFFusion_DocumentInOneListOnly(t *testing.T) {
	bm25 := createBM25Results([]string{"A", "B"}, []float64{2.0, 1.5})
	vec := createVecResults([]string{"A", "D"}, []float32{0.9, 0.8})
	weights := DefaultWeights()
	fusion := NewRRFFusion()

	results := fusion.Fuse(bm25, vec, weights)
	require.Len(t, results, 3)

	resultMap := make(map[string]*FusedResult)
	for _, r := range results {
		resultMap[r.ChunkID] = r
	}

	assert.True(t, resultMap["A"].InBothLists)
	assert.Equal(t, 1, resultMap["A"].BM25Rank)
	assert.Equal(t, 1, resultMap["A"].VecRank)

	assert.False(t, resultMap["B"].InBothLists)
	assert.Equal(t, 2, resultMap["B"].BM25Rank)
	assert.Equal(t, 0, resultMap["B"].VecRank)

	assert.False(t, resultMap["D"].InBothLists)
	assert.Equal(t, 0, resultMap["D"].BM25Rank)
	assert.Equal(t, 2, resultMap["D"].VecRank)

	for _, r := range results {
		assert.Greater(t, r.RRFScore, 0.0)
	}
}

func TestRRFFusion_TieBreaking_PreferInBothLists(t *testing.T) {
	bm25 := createBM25Results([]string{"A", "B"}, []float64{2.0, 2.0})
	vec := createVecResults([]string{"A"}, []float32{0.9})
	weights := Weights{BM25: 0.5, Semantic: 0.5}
	fusion := NewRRFFusion()

	results := fusion.Fuse(bm25, vec, weights)
	require.Len(t, results, 2)
	assert.Equal(t, "A", results[0].ChunkID)
	assert.True(t, results[0].InBothLists)
}

func TestRRFFusion_TieBreaking_LexicographicByID(t *testing.T) {
	bm25 := createBM25Results([]string{"Z", "A"}, []float64{2.0, 2.0})
	vec := createVecResults([]string{"Z", "A"}, []float32{0.9, 0.9})
	weights := DefaultWeights()
	fusion := NewRRFFusion()

	results := fusion.Fuse(bm25, vec, weights)
	require.Len(t, results, 2)

	if results[0].RRFScore == results[1].RRFScore {
		assert.Equal(t, "A", results[0].ChunkID)
	}
}

func TestRRFFusion_EmptyInputs(t *testing.T) {
	fusion := NewRRFFusion()
	weights := DefaultWeights()

	t.Run("both empty", func(t *testing.T) {
		results := fusion.Fuse(nil, nil, weights)
		assert.NotNil(t, results)
		assert.Empty(t, results)
	})

	t.Run("BM25 empty", func(t *testing.T) {
		vec := createVecResults([]string{"A", "B"}, []float32{0.9, 0.8})
		results := fusion.Fuse(nil, vec, weights)
		require.Len(t, results, 2)
		for _, r := range results {
			assert.Equal(t, 0, r.BM25Rank)
			assert.False(t, r.InBothLists)
		}
	})

	t.Run("Vector empty", func(t *testing.T) {
		bm25 := createBM25Results([]string{"A", "B"}, []float64{2.0, 1.5})
		results := fusion.Fuse(bm25, nil, weights)
		require.Len(t, results, 2)
		for _, r := range results {
			assert.Equal(t, 0, r.VecRank)
			assert.False(t, r.InBothLists)
		}
	})
}

func TestRRFFusion_ScoreNormalization(t *testing.T) {
	bm25 := createBM25Results([]string{"A", "B", "C"}, []float64{10.0, 5.0, 2.0})
	vec := createVecResults([]string{"A", "B", "C"}, []float32{0.95, 0.80, 0.60})
	weights := DefaultWeights()
	fusion := NewRRFFusion()

	results := fusion.Fuse(bm25, vec, weights)
	require.Len(t, results, 3)

	assert.Equal(t, 1.0, results[0].RRFScore)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.RRFScore, 0.0)
		assert.LessOrEqual(t, r.RRFScore, 1.0)
	}

	resultMap := make(map[string]*FusedResult)
	for _, r := range results {
		resultMap[r.ChunkID] = r
	}
	assert.Equal(t, 10.0, resultMap["A"].BM25Score)
	assert.Equal(t, 5.0, resultMap["B"].BM25Score)
	assert.Equal(t, 2.0, resultMap["C"].BM25Score)
}

func TestRRFFusion_WeightSensitivity(t *testing.T) {
	bm25 := createBM25Results([]string{"A", "B", "C"}, []float64{3.0, 2.0, 1.0})
	vec := createVecResults([]string{"C", "B", "A"}, []float32{0.95, 0.85, 0.75})
	fusion := NewRRFFusion()

	t.Run("high BM25 weight favors BM25 ranking", func(t *testing.T) {
		weights := Weights{BM25: 0.8, Semantic: 0.2}
		results := fusion.Fuse(bm25, vec, weights)
		require.Len(t, results, 3)
		assert.Equal(t, "A", results[0].ChunkID)
	})

	t.Run("high Semantic weight favors Vector ranking", func(t *testing.T) {
		weights := Weights{BM25: 0.2, Semantic: 0.8}
		results := fusion.Fuse(bm25, vec, weights)
		require.Len(t, results, 3)
		assert.Equal(t, "C", results[0].ChunkID)
	})
}

func TestRRFFusion_Deterministic(t *testing.T) {
	bm25 := createBM25Results([]string{"A", "B", "C", "D", "E"}, []float64{5.0, 4.0, 3.0, 2.0, 1.0})
	vec := createVecResults([]string{"E", "D", "C", "B", "A"}, []float32{0.95, 0.90, 0.85, 0.80, 0.75})
	weights := DefaultWeights()
	fusion := NewRRFFusion()

	results1 := fusion.Fuse(bm25, vec, weights)
	results2 := fusion.Fuse(bm25, vec, weights)

	require.Len(t, results1, 5)
	require.Len(t, results2, 5)
	for i := range results1 {
		assert.Equal(t, results1[i].ChunkID, results2[i].ChunkID)
		assert.Equal(t, results1[i].RRFScore, results2[i].RRFScore)
	}
}

func TestRRFFusion_CustomK(t *testing.T) {
	t.Run("default k=60", func(t *testing.T) {
		fusion := NewRRFFusion()
		assert.Equal(t, 60, fusion.K)
	})

	t.Run("custom k=10", func(t *testing.T) {
		fusion := NewRRFFusionWithK(10)
		assert.Equal(t, 10, fusion.K)
	})

	t.Run("invalid k defaults to 60", func(t *testing.T) {
		fusion := NewRRFFusionWithK(0)
		assert.Equal(t, 60, fusion.K)

		fusion = NewRRFFusionWithK(-5)
		assert.Equal(t, 60, fusion.K)
	})
}

func TestRRFFusion_PreservesMatchedTerms(t *testing.T) {
	bm25 := []*store.BM25Result{
		{ID: "A", Score: 2.0, MatchedTerms: []string{"foo", "bar"}},
		{ID: "B", Score: 1.5, MatchedTerms: []string{"baz"}},
	}
	vec := createVecResults([]string{"A"}, []float32{0.9})
	weights := DefaultWeights()
	fusion := NewRRFFusion()

	results := fusion.Fuse(bm25, vec, weights)

	resultMap := make(map[string]*FusedResult)
	for _, r := range results {
		resultMap[r.ChunkID] = r
	}

	assert.Equal(t, []string{"foo", "bar"}, resultMap["A"].MatchedTerms)
	assert.Equal(t, []string{"baz"}, resultMap["B"].MatchedTerms)
}

func TestRRFFusion_Compare_AllTieBreakingBranches(t *testing.T) {
	fusion := NewRRFFusion()

	t.Run("higher RRF score wins", func(t *testing.T) {
		a := &FusedResult{ChunkID: "A", RRFScore: 0.9, InBothLists: false, BM25Score: 1.0}
		b := &FusedResult{ChunkID: "B", RRFScore: 0.8, InBothLists: true, BM25Score: 5.0}
		assert.True(t, fusion.compare(a, b))
		assert.False(t, fusion.compare(b, a))
	})

	t.Run("equal RRF - InBothLists wins", func(t *testing.T) {
		a := &FusedResult{ChunkID: "A", RRFScore: 0.8, InBothLists: true, BM25Score: 1.0}
		b := &FusedResult{ChunkID: "B", RRFScore: 0.8, InBothLists: false, BM25Score: 5.0}
		assert.True(t, fusion.compare(a, b))
	})

	t.Run("equal RRF and InBothLists - higher BM25 wins", func(t *testing.T) {
		a := &FusedResult{ChunkID: "Z", RRFScore: 0.8, InBothLists: true, BM25Score: 5.0}
		b := &FusedResult{ChunkID: "A", RRFScore: 0.8, InBothLists: true, BM25Score: 1.0}
		assert.True(t, fusion.compare(a, b))
	})

	t.Run("all equal - lexicographic ChunkID wins", func(t *testing.T) {
		a := &FusedResult{ChunkID: "A", RRFScore: 0.8, InBothLists: true, BM25Score: 5.0}
		b := &FusedResult{ChunkID: "Z", RRFScore: 0.8, InBothLists: true, BM25Score: 5.0}
		assert.True(t, fusion.compare(a, b))
	})
}

func TestRRFFusion_Normalize_ZeroMaxScore(t *testing.T) {
	fusion := NewRRFFusion()
	results := []*FusedResult{
		{ChunkID: "A", RRFScore: 0.0},
		{ChunkID: "B", RRFScore: 0.0},
	}
	fusion.normalize(results)
	assert.Equal(t, 0.0, results[0].RRFScore)
	assert.Equal(t, 0.0, results[1].RRFScore)
}

func TestRRFFusion_Normalize_EmptyResults(t *testing.T) {
	fusion := NewRRFFusion()
	results := []*FusedResult{}
	fusion.normalize(results)
	assert.Empty(t, results)
}

func BenchmarkRRFFusion_100x100(b *testing.B) {
	bm25 := make([]*store.BM25Result, 100)
	vec := make([]*store.VectorResult, 100)
	for i := 0; i < 100; i++ {
		bm25[i] = &store.BM25Result{ID: string(rune('a' + i%26)), Score: float64(100 - i)}
		vec[i] = &store.VectorResult{ID: string(rune('a' + i%26)), Score: float32(0.9 - float32(i)*0.001)}
	}
	weights := DefaultWeights()
	fusion := NewRRFFusion()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		fusion.Fuse(bm25, vec, weights)
	}
}
