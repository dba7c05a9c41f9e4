// Package assembler implements CALIBER's context assembler (spec C8):
// candidate gathering across sections, priority/relevance/recency scoring,
// token-budgeted packing, pressure-triggered compression into higher
// abstraction layers, and serialized bundle emission with an observability
// manifest.
//
// The weighted-section-budget shape is grounded on
// other_examples/a183f311_ODSapper-CLIAIRMONITOR__internal-memory-interfaces.go.go's
// ContextBuilder/ContextBudget, generalized from fixed-percentage weights
// to spec §4.8's per-request SectionPriorities, and on tarsy's
// pkg/agent/context/formatter.go for the "assemble sections into one
// serialized payload" idiom.
package assembler

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"math"
	"sort"
	"time"

	"github.com/Heyoub/caliber-sub001/internal/enums"
	"github.com/Heyoub/caliber-sub001/internal/ids"
	"github.com/Heyoub/caliber-sub001/internal/models"
	"github.com/Heyoub/caliber-sub001/internal/providers"
	"github.com/Heyoub/caliber-sub001/internal/store"
)

// Section names one of the candidate pools spec §4.8 packs from.
type Section string

const (
	SectionPersona        Section = "persona"
	SectionActiveTurns    Section = "active_scope_turns"
	SectionLinkedArtifact Section = "linked_artifacts"
	SectionRelevantNotes  Section = "relevant_notes"
)

// SectionPriorities is the per-request weighting config spec §4.8 names
// (`{persona: i32, active_scope_turns: i32, linked_artifacts: i32,
// relevant_notes: i32, ...}`), plus a floor applied to signal-less
// candidates (spec §4.8 step 2: "Candidates lacking any signal receive
// their section's floor priority").
type SectionPriorities struct {
	Weights map[Section]int32
	Floor   map[Section]int32
}

func (p SectionPriorities) weight(s Section) float64 {
	if w, ok := p.Weights[s]; ok {
		return float64(w)
	}
	return 0
}

func (p SectionPriorities) floor(s Section) float64 {
	if f, ok := p.Floor[s]; ok {
		return float64(f)
	}
	return 0
}

// PersonaSection is one pre-rendered persona block from the compiled pack
// (spec §4.8 step 1: "persona sections from the compiled pack").
type PersonaSection struct {
	ID      string
	Content string
}

// Candidate is one item competing for inclusion in the assembled bundle.
type Candidate struct {
	Section    Section
	EntityID   string
	EntityType enums.EntityType
	Content    string
	Tokens     int
	Score      float64
	CreatedAt  time.Time
}

// ManifestEntry describes one included item for observability (spec §4.8
// step 5: "an accompanying manifest {section, entity_id, tokens, score}").
type ManifestEntry struct {
	Section  Section `json:"section"`
	EntityID string  `json:"entity_id"`
	Tokens   int     `json:"tokens"`
	Score    float64 `json:"score"`
}

// Bundle is the assembled, bounded-token payload (spec §4.8 step 5).
type Bundle struct {
	Format          string          `json:"format"`
	Body            string          `json:"body"`
	Manifest        []ManifestEntry `json:"manifest"`
	TotalTokens     int             `json:"total_tokens"`
	BudgetTokens    int             `json:"budget_tokens"`
	ItemsDropped    int             `json:"items_dropped"`
	BudgetExceeded  bool            `json:"tokens_budget_exceeded"`
}

// ContextFormat selects the bundle's serialized shape (spec §4.10
// pack-declared `context_format`).
type ContextFormat string

const (
	FormatXML  ContextFormat = "xml"
	FormatJSON ContextFormat = "json"
)

// RecencyHalfLife is the default half-life for the exponential decay curve
// decided for spec §9 Open Question (b): "implementations may pick a
// monotonically non-increasing function and document it" — CALIBER uses
// exp(-ln(2) * age / halfLife), default half-life 24h, configurable per
// call via Request.HalfLife.
const RecencyHalfLife = 24 * time.Hour

func recencyDecay(age, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		halfLife = RecencyHalfLife
	}
	return math.Exp(-math.Ln2 * age.Seconds() / halfLife.Seconds())
}

// Request carries every input spec §4.8 lists: "(tenant, trajectory,
// active_scope, caller_agent, budget_tokens, priorities)", plus the
// ambient pieces (persona sections, format, half-life) needed to run.
type Request struct {
	TenantID      ids.TenantID
	TrajectoryID  ids.TrajectoryID
	ActiveScopeID ids.ScopeID
	CallerAgent   models.Agent
	BudgetTokens  int
	Priorities    SectionPriorities
	Persona       []PersonaSection
	Format        ContextFormat
	HalfLife      time.Duration
	ArtifactTypes []enums.ArtifactType // optional restriction, spec §4.8 step 1
	TurnWindow    int                  // bound on how many recent turns to consider; 0 = all
}

// Assembler implements the five-step algorithm of spec §4.8.
type Assembler struct {
	store     *store.Store
	providers *providers.Registry
	estimator *Estimator
}

// New builds an Assembler.
func New(s *store.Store, registry *providers.Registry, estimator *Estimator) *Assembler {
	return &Assembler{store: s, providers: registry, estimator: estimator}
}

// Assemble runs gather → score → pack → compress → emit and returns the
// bounded bundle. The total tokens of included items never exceeds
// req.BudgetTokens (spec §8 invariant); ordering inside a section is
// stable and deterministic given the same inputs (spec §4.8 "Invariants").
func (a *Assembler) Assemble(ctx context.Context, req Request) (Bundle, error) {
	candidates, err := a.gather(ctx, req)
	if err != nil {
		return Bundle{}, err
	}
	a.score(candidates, req)

	included, dropped := a.pack(ctx, candidates, req)

	return a.emit(included, dropped, req), nil
}

// gather collects raw candidates per section (spec §4.8 step 1).
func (a *Assembler) gather(ctx context.Context, req Request) ([]Candidate, error) {
	var candidates []Candidate

	for _, p := range req.Persona {
		candidates = append(candidates, Candidate{
			Section:    SectionPersona,
			EntityID:   p.ID,
			EntityType: enums.EntityTrajectory, // persona sections are not a stored entity kind; tagged for manifest symmetry only
			Content:    p.Content,
			Tokens:     a.estimator.Estimate(p.Content),
			CreatedAt:  time.Now().UTC(),
		})
	}

	turns, err := a.store.ListTurnsByScope(ctx, req.TenantID, req.ActiveScopeID)
	if err != nil {
		return nil, err
	}
	if req.TurnWindow > 0 && len(turns) > req.TurnWindow {
		turns = turns[len(turns)-req.TurnWindow:]
	}
	for _, t := range turns {
		candidates = append(candidates, Candidate{
			Section:    SectionActiveTurns,
			EntityID:   t.ID.String(),
			EntityType: enums.EntityTurn,
			Content:    t.Content,
			Tokens:     int(t.TokenCount), // turns carry measured counts, spec §4.8 step 3
			CreatedAt:  t.CreatedAt,
		})
	}

	artifacts, err := a.gatherArtifacts(ctx, req)
	if err != nil {
		return nil, err
	}
	candidates = append(candidates, artifacts...)

	notes, err := a.gatherNotes(ctx, req)
	if err != nil {
		return nil, err
	}
	candidates = append(candidates, notes...)

	return candidates, nil
}

func (a *Assembler) gatherArtifacts(ctx context.Context, req Request) ([]Candidate, error) {
	types := req.ArtifactTypes
	if len(types) == 0 {
		types = []enums.ArtifactType{
			enums.ArtifactSummary, enums.ArtifactDecision, enums.ArtifactFact,
			enums.ArtifactConstraint, enums.ArtifactPlan,
		}
	}

	var out []Candidate
	for _, artType := range types {
		list, err := a.store.ListArtifactsByType(ctx, req.TenantID, req.TrajectoryID, artType)
		if err != nil {
			return nil, err
		}
		for _, art := range list {
			out = append(out, Candidate{
				Section:    SectionLinkedArtifact,
				EntityID:   art.ID.String(),
				EntityType: enums.EntityArtifact,
				Content:    art.Content,
				Tokens:     a.estimator.Estimate(art.Content),
				CreatedAt:  art.CreatedAt,
			})
		}
	}
	return out, nil
}

// gatherNotes scores Notes by cosine similarity against the active scope's
// most recent turn when an Embedder is configured, else by recency +
// access_count (spec §4.8 step 1). The chosen signal is folded directly
// into Candidate.Score here rather than in score(), since it depends on a
// provider call score() has no business making per-candidate.
func (a *Assembler) gatherNotes(ctx context.Context, req Request) ([]Candidate, error) {
	var all []models.Note
	for _, nt := range []enums.NoteType{
		enums.NoteConvention, enums.NoteStrategy, enums.NoteGotcha, enums.NoteFact,
		enums.NotePreference, enums.NoteProcedure, enums.NoteInsight, enums.NoteCorrection,
	} {
		notes, err := a.store.ListNotesByType(ctx, req.TenantID, nt)
		if err != nil {
			return nil, err
		}
		all = append(all, notes...)
	}

	var queryVec []float32
	if a.providers != nil && a.providers.HasEmbedder() {
		if embedder, err := a.providers.Embedder(); err == nil {
			if recent := a.lastTurnContent(ctx, req); recent != "" {
				if emb, err := embedder.Embed(ctx, recent); err == nil {
					queryVec = emb.Vector
				}
			}
		}
	}

	out := make([]Candidate, 0, len(all))
	for _, n := range all {
		c := Candidate{
			Section:    SectionRelevantNotes,
			EntityID:   n.ID.String(),
			EntityType: enums.EntityNote,
			Content:    n.Content,
			Tokens:     a.estimator.Estimate(n.Content),
			CreatedAt:  n.CreatedAt,
		}
		if queryVec != nil && n.Embedding != nil && len(n.Embedding.Vector) == len(queryVec) {
			c.Score = cosineSimilarity(queryVec, n.Embedding.Vector)
		} else {
			c.Score = recencyNoteScore(n)
		}
		out = append(out, c)
	}
	return out, nil
}

func (a *Assembler) lastTurnContent(ctx context.Context, req Request) string {
	turns, err := a.store.ListTurnsByScope(ctx, req.TenantID, req.ActiveScopeID)
	if err != nil || len(turns) == 0 {
		return ""
	}
	return turns[len(turns)-1].Content
}

func recencyNoteScore(n models.Note) float64 {
	age := time.Since(n.CreatedAt)
	return recencyDecay(age, RecencyHalfLife) + math.Log1p(float64(n.AccessCount))
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// score applies spec §4.8 step 2: score(c) = priorities[c.section] ×
// relevance(c) × recency_decay(c), with ties breaking most-recent-first and
// a section's floor priority applied to signal-less candidates. Note
// candidates already carry their relevance signal from gatherNotes, so
// scoring them here only applies the section weight and preserves their
// existing relevance term instead of overwriting it with recency.
func (a *Assembler) score(candidates []Candidate, req Request) {
	halfLife := req.HalfLife
	if halfLife <= 0 {
		halfLife = RecencyHalfLife
	}
	now := time.Now().UTC()

	for i := range candidates {
		c := &candidates[i]
		weight := req.Priorities.weight(c.Section)
		if weight == 0 {
			weight = req.Priorities.floor(c.Section)
		}

		switch c.Section {
		case SectionRelevantNotes:
			c.Score = weight * c.Score
		default:
			relevance := 1.0
			decay := recencyDecay(now.Sub(c.CreatedAt), halfLife)
			c.Score = weight * relevance * decay
		}
	}
}

// pack greedily includes candidates by descending score until the budget
// is exhausted (spec §4.8 step 3), attempting one compression pass on
// near-fit overflow before dropping (step 4).
func (a *Assembler) pack(ctx context.Context, candidates []Candidate, req Request) (included []Candidate, dropped int) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt) // tie-break: most-recent-first
	})

	budget := req.BudgetTokens
	used := 0

	for _, c := range candidates {
		if used+c.Tokens <= budget {
			included = append(included, c)
			used += c.Tokens
			continue
		}

		if compressed, ok := a.tryCompress(ctx, c, budget-used); ok {
			included = append(included, compressed)
			used += compressed.Tokens
			continue
		}
		dropped++
	}

	return included, dropped
}

// tryCompress summarizes an oversized active-turn candidate into a
// synthetic Summary artifact (an L1 abstraction) that fits the remaining
// budget (spec §4.8 step 4). Only turns are compressed — artifacts and
// notes are already persistent higher-abstraction forms. Returns ok=false
// when no Summarizer is registered or the summary still does not fit.
func (a *Assembler) tryCompress(ctx context.Context, c Candidate, remaining int) (Candidate, bool) {
	if c.Section != SectionActiveTurns || remaining <= 0 {
		return Candidate{}, false
	}
	if a.providers == nil || !a.providers.HasSummarizer() {
		return Candidate{}, false
	}
	summarizer, err := a.providers.Summarizer()
	if err != nil {
		return Candidate{}, false
	}

	summary, err := summarizer.Summarize(ctx, c.Content, providers.SummarizeOptions{
		MaxTokens: remaining,
		Style:     enums.StyleBrief,
	})
	if err != nil || summary == "" {
		return Candidate{}, false
	}

	tokens := a.estimator.Estimate(summary)
	if tokens > remaining {
		return Candidate{}, false
	}

	c.Content = summary
	c.Tokens = tokens
	c.EntityType = enums.EntityArtifact
	return c, true
}

// emit serializes the included candidates into the pack-declared format
// along with the observability manifest (spec §4.8 step 5).
func (a *Assembler) emit(included []Candidate, dropped int, req Request) Bundle {
	manifest := make([]ManifestEntry, 0, len(included))
	total := 0
	for _, c := range included {
		manifest = append(manifest, ManifestEntry{Section: c.Section, EntityID: c.EntityID, Tokens: c.Tokens, Score: c.Score})
		total += c.Tokens
	}

	format := req.Format
	if format == "" {
		format = FormatJSON
	}

	body := serializeBody(included, format)

	return Bundle{
		Format:         string(format),
		Body:           body,
		Manifest:       manifest,
		TotalTokens:    total,
		BudgetTokens:   req.BudgetTokens,
		ItemsDropped:   dropped,
		BudgetExceeded: false, // pack() never includes an item that would overflow; invariant holds by construction
	}
}

type bundleSection struct {
	XMLName xml.Name `xml:"section" json:"-"`
	Name    Section  `xml:"name,attr" json:"section"`
	EntityID string  `xml:"entity_id,attr" json:"entity_id"`
	Content string   `xml:",chardata" json:"content"`
}

func serializeBody(items []Candidate, format ContextFormat) string {
	sections := make([]bundleSection, 0, len(items))
	for _, c := range items {
		sections = append(sections, bundleSection{Name: c.Section, EntityID: c.EntityID, Content: c.Content})
	}

	if format == FormatXML {
		raw, err := xml.MarshalIndent(struct {
			XMLName xml.Name        `xml:"context"`
			Items   []bundleSection `xml:"section"`
		}{Items: sections}, "", "  ")
		if err != nil {
			return ""
		}
		return string(raw)
	}

	raw, err := json.Marshal(sections)
	if err != nil {
		return ""
	}
	return string(raw)
}
