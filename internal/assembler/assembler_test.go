package assembler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Heyoub/caliber-sub001/internal/models"
)

func TestRecencyDecay_MonotonicallyNonIncreasingWithAge(t *testing.T) {
	fresh := recencyDecay(0, RecencyHalfLife)
	halfLifeOld := recencyDecay(RecencyHalfLife, RecencyHalfLife)
	veryOld := recencyDecay(RecencyHalfLife*10, RecencyHalfLife)

	assert.Equal(t, 1.0, fresh)
	assert.InDelta(t, 0.5, halfLifeOld, 0.0001)
	assert.Less(t, veryOld, halfLifeOld)
}

func TestCosineSimilarity_IdenticalVectorsScoreOne(t *testing.T) {
	v := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, cosineSimilarity(v, v), 0.0001)
}

func TestCosineSimilarity_OrthogonalVectorsScoreZero(t *testing.T) {
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 0.0001)
}

func TestCosineSimilarity_ZeroVectorDoesNotDivideByZero(t *testing.T) {
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}

func TestScore_AppliesSectionWeightAndFloor(t *testing.T) {
	a := &Assembler{}
	now := time.Now().UTC()
	candidates := []Candidate{
		{Section: SectionActiveTurns, CreatedAt: now},
		{Section: SectionLinkedArtifact, CreatedAt: now},
	}
	req := Request{
		Priorities: SectionPriorities{
			Weights: map[Section]int32{SectionActiveTurns: 10},
			Floor:   map[Section]int32{SectionLinkedArtifact: 1},
		},
	}

	a.score(candidates, req)

	assert.InDelta(t, 10.0, candidates[0].Score, 0.01)
	assert.InDelta(t, 1.0, candidates[1].Score, 0.01)
}

func TestPack_NeverExceedsBudget(t *testing.T) {
	a := &Assembler{estimator: NewEstimator("unknown-encoding")}
	candidates := []Candidate{
		{Section: SectionActiveTurns, EntityID: "t1", Tokens: 40, Score: 3, CreatedAt: time.Now()},
		{Section: SectionActiveTurns, EntityID: "t2", Tokens: 40, Score: 2, CreatedAt: time.Now()},
		{Section: SectionActiveTurns, EntityID: "t3", Tokens: 40, Score: 1, CreatedAt: time.Now()},
	}

	included, dropped := a.pack(t.Context(), candidates, Request{BudgetTokens: 80})

	total := 0
	for _, c := range included {
		total += c.Tokens
	}
	assert.LessOrEqual(t, total, 80)
	assert.Equal(t, 1, dropped)
	require.Len(t, included, 2)
	assert.Equal(t, "t1", included[0].EntityID, "highest score packed first")
}

func TestPack_PrefersHigherScoreRegardlessOfSection(t *testing.T) {
	a := &Assembler{estimator: NewEstimator("unknown-encoding")}
	candidates := []Candidate{
		{Section: SectionRelevantNotes, EntityID: "low", Tokens: 10, Score: 0.1, CreatedAt: time.Now()},
		{Section: SectionPersona, EntityID: "high", Tokens: 10, Score: 5, CreatedAt: time.Now()},
	}

	included, dropped := a.pack(t.Context(), candidates, Request{BudgetTokens: 10})

	require.Len(t, included, 1)
	assert.Equal(t, "high", included[0].EntityID)
	assert.Equal(t, 1, dropped)
}

func TestEmit_JSONFormatIncludesManifestAndTotals(t *testing.T) {
	a := &Assembler{}
	included := []Candidate{
		{Section: SectionActiveTurns, EntityID: "t1", Tokens: 12, Score: 1, Content: "hello"},
	}

	bundle := a.emit(included, 2, Request{BudgetTokens: 100, Format: FormatJSON})

	require.Len(t, bundle.Manifest, 1)
	assert.Equal(t, "t1", bundle.Manifest[0].EntityID)
	assert.Equal(t, 12, bundle.TotalTokens)
	assert.Equal(t, 2, bundle.ItemsDropped)
	assert.False(t, bundle.BudgetExceeded)
	assert.Contains(t, bundle.Body, "hello")
}

func TestEmit_XMLFormatSerializesSections(t *testing.T) {
	a := &Assembler{}
	included := []Candidate{
		{Section: SectionLinkedArtifact, EntityID: "a1", Tokens: 5, Content: "artifact body"},
	}

	bundle := a.emit(included, 0, Request{BudgetTokens: 100, Format: FormatXML})

	assert.Contains(t, bundle.Body, "<context>")
	assert.Contains(t, bundle.Body, "artifact body")
}

func TestRecencyNoteScore_UsesAccessCountAsSecondarySignal(t *testing.T) {
	old := recencyNoteScore(models.Note{CreatedAt: time.Now().Add(-RecencyHalfLife * 3), AccessCount: 0})
	recentButUnused := recencyNoteScore(models.Note{CreatedAt: time.Now(), AccessCount: 0})
	oldButPopular := recencyNoteScore(models.Note{CreatedAt: time.Now().Add(-RecencyHalfLife * 3), AccessCount: 1000})

	assert.Less(t, old, recentButUnused)
	assert.Greater(t, oldButPopular, old)
}
