// Package providers implements CALIBER's abstract embedding/summarization
// capability interfaces and registry (spec C9): no default implementation
// ships with the core, lookups against an unregistered capability fail
// with ProviderNotConfigured, and a routing config may name a preferred
// provider per capability.
//
// The interface-plus-constructor-registry shape follows the teacher's
// pkg/llm/client.go provider abstraction (an interface with no concrete
// vendor wired into the core) and
// other_examples/a183f311_ODSapper-CLIAIRMONITOR__internal-memory-interfaces.go.go's
// EmbeddingProvider shape, generalized to CALIBER's two capabilities.
package providers

import (
	"context"

	"github.com/Heyoub/caliber-sub001/internal/caliberr"
	"github.com/Heyoub/caliber-sub001/internal/enums"
	"github.com/Heyoub/caliber-sub001/internal/models"
)

// Embedder turns text into a provider-tagged vector (spec §4.9).
type Embedder interface {
	Embed(ctx context.Context, text string) (models.Embedding, error)
	EmbedBatch(ctx context.Context, texts []string) ([]models.Embedding, error)
	Dimensions() int
	ModelID() string
}

// ExtractedArtifact is one item returned by Summarizer.ExtractArtifacts.
type ExtractedArtifact struct {
	Type       enums.ArtifactType
	Content    string
	Confidence float64
}

// SummarizeOptions bounds and shapes a Summarizer.Summarize call (spec §4.9).
type SummarizeOptions struct {
	MaxTokens int
	Style     enums.SummaryStyle
}

// Summarizer compresses content into higher-abstraction text, extracts
// structured artifacts from raw content, and flags contradictions between
// two passages (spec §4.9).
type Summarizer interface {
	Summarize(ctx context.Context, content string, opts SummarizeOptions) (string, error)
	ExtractArtifacts(ctx context.Context, content string, artifactTypes []enums.ArtifactType) ([]ExtractedArtifact, error)
	DetectContradiction(ctx context.Context, a, b string) (bool, error)
}

// Capability names a provider kind for registry lookup and routing.
type Capability string

const (
	CapabilityEmbedder   Capability = "embedder"
	CapabilitySummarizer Capability = "summarizer"
)

// Routing names a preferred provider per capability (spec §4.9 "A routing
// config may name a preferred provider per capability; when absent, the
// first registered provider for the capability is used").
type Routing map[Capability]string

// Registry holds every registered provider instance, keyed by capability
// and name. Every method runs under one registry-wide lock (spec §5:
// "replacement requires a global reconfiguration barrier"): SetRouting
// replaces the routing preferences wholesale, while RegisterEmbedder and
// RegisterSummarizer add or replace a single named provider in place.
type Registry struct {
	mu         chan struct{} // binary semaphore; see lock()/unlock() below
	embedders  map[string]Embedder
	summarizers map[string]Summarizer
	order      map[Capability][]string // registration order, for "first registered"
	routing    Routing
}

// NewRegistry builds an empty Registry. There are no default providers
// (spec §4.9 "There are no default providers").
func NewRegistry() *Registry {
	r := &Registry{
		mu:          make(chan struct{}, 1),
		embedders:   make(map[string]Embedder),
		summarizers: make(map[string]Summarizer),
		order:       make(map[Capability][]string),
		routing:     make(Routing),
	}
	r.mu <- struct{}{}
	return r
}

func (r *Registry) lock()   { <-r.mu }
func (r *Registry) unlock() { r.mu <- struct{}{} }

// RegisterEmbedder adds an Embedder under name.
func (r *Registry) RegisterEmbedder(name string, e Embedder) {
	r.lock()
	defer r.unlock()
	if _, exists := r.embedders[name]; !exists {
		r.order[CapabilityEmbedder] = append(r.order[CapabilityEmbedder], name)
	}
	r.embedders[name] = e
}

// RegisterSummarizer adds a Summarizer under name.
func (r *Registry) RegisterSummarizer(name string, s Summarizer) {
	r.lock()
	defer r.unlock()
	if _, exists := r.summarizers[name]; !exists {
		r.order[CapabilitySummarizer] = append(r.order[CapabilitySummarizer], name)
	}
	r.summarizers[name] = s
}

// SetRouting replaces the routing preferences wholesale (the "global
// reconfiguration barrier" of spec §5).
func (r *Registry) SetRouting(routing Routing) {
	r.lock()
	defer r.unlock()
	r.routing = routing
}

// Embedder resolves the routed or first-registered Embedder, or
// ProviderNotConfigured if none is registered (spec §4.9).
func (r *Registry) Embedder() (Embedder, error) {
	r.lock()
	defer r.unlock()
	name, ok := r.routing[CapabilityEmbedder]
	if ok {
		if e, found := r.embedders[name]; found {
			return e, nil
		}
	}
	order := r.order[CapabilityEmbedder]
	if len(order) == 0 {
		return nil, caliberr.ProviderNotConfigured(string(CapabilityEmbedder))
	}
	return r.embedders[order[0]], nil
}

// Summarizer resolves the routed or first-registered Summarizer, or
// ProviderNotConfigured if none is registered.
func (r *Registry) Summarizer() (Summarizer, error) {
	r.lock()
	defer r.unlock()
	name, ok := r.routing[CapabilitySummarizer]
	if ok {
		if s, found := r.summarizers[name]; found {
			return s, nil
		}
	}
	order := r.order[CapabilitySummarizer]
	if len(order) == 0 {
		return nil, caliberr.ProviderNotConfigured(string(CapabilitySummarizer))
	}
	return r.summarizers[order[0]], nil
}

// HasEmbedder reports whether any Embedder is registered, without erroring
// — the context assembler uses this to decide whether to similarity-score
// notes or fall back to recency+access_count (spec §4.8 step 1).
func (r *Registry) HasEmbedder() bool {
	r.lock()
	defer r.unlock()
	return len(r.order[CapabilityEmbedder]) > 0
}

// HasSummarizer reports whether any Summarizer is registered — the context
// assembler uses this to decide whether compression (spec §4.8 step 4) is
// available or must report items_dropped instead.
func (r *Registry) HasSummarizer() bool {
	r.lock()
	defer r.unlock()
	return len(r.order[CapabilitySummarizer]) > 0
}
