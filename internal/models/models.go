// Package models defines CALIBER's entity hierarchy (spec §3): Tenant,
// Agent, Trajectory, Scope, Turn, Artifact, Note, Lock, Message,
// Delegation, Handoff, and MemoryRegion, plus their embedded value types.
//
// Field shapes follow the teacher's ent/schema/*.go declarations (required
// vs optional/nillable fields, JSON-valued metadata maps, time.Time in UTC
// milliseconds) generalized from tarsy's single AlertSession/Stage/Turn-like
// hierarchy to CALIBER's full Tenant→Trajectory→Scope→Turn tree plus its
// cross-cutting Artifact/Note/Agent/Lock/Message/Delegation/Handoff/Region
// entities.
package models

import (
	"time"

	"github.com/Heyoub/caliber-sub001/internal/enums"
	"github.com/Heyoub/caliber-sub001/internal/ids"
)

// Tenant is the isolation boundary for every other entity (spec §3.1).
type Tenant struct {
	ID        ids.TenantID
	Name      string
	CreatedAt time.Time
}

// MemoryAccessEntry is one entry of an Agent's read or write permission list.
type MemoryAccessEntry struct {
	MemoryType enums.EntityType
	Scope      enums.MemoryAccessScope
	RegionID   *ids.RegionID // set when Scope == ScopeRegion
}

// MemoryAccess groups an Agent's read and write permission lists.
type MemoryAccess struct {
	Read  []MemoryAccessEntry
	Write []MemoryAccessEntry
}

// Agent is a registered worker (spec §3.1).
type Agent struct {
	ID                  ids.AgentID
	TenantID            ids.TenantID
	AgentType           string
	Capabilities        []string
	MemoryAccess        MemoryAccess
	CanDelegateTo       []string
	Status              enums.AgentStatus
	CurrentTrajectoryID *ids.TrajectoryID
	ReportsTo           *ids.AgentID
	LastHeartbeatAt      time.Time
}

// TrajectoryOutcome records the terminal result of a Trajectory.
type TrajectoryOutcome struct {
	Status           enums.OutcomeStatus
	Summary          string
	ProducedArtifacts []ids.ArtifactID
	ProducedNotes    []ids.NoteID
}

// Trajectory is a task container (spec §3.1).
type Trajectory struct {
	ID                 ids.TrajectoryID
	TenantID           ids.TenantID
	Name               string
	Description        string
	ParentTrajectoryID *ids.TrajectoryID
	AgentID            *ids.AgentID
	Status             enums.TrajectoryStatus
	Outcome            *TrajectoryOutcome
	Metadata           map[string]any
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Checkpoint is a scope's recoverable context snapshot (spec §3.1).
type Checkpoint struct {
	ContextState []byte
	Recoverable  bool
}

// Scope is a token-budgeted context window inside a Trajectory (spec §3.1).
type Scope struct {
	ID            ids.ScopeID
	TenantID      ids.TenantID
	TrajectoryID  ids.TrajectoryID
	Name          string
	Purpose       string
	TokenBudget   int64
	TokensUsed    int64
	ParentScopeID *ids.ScopeID
	IsActive      bool
	Checkpoint    *Checkpoint
	CreatedAt     time.Time
	ClosedAt      *time.Time
}

// ToolCall and ToolResult are opaque payloads carried by a Tool-role Turn.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// Turn is a single conversation message (spec §3.1). Ephemeral: deleted
// when its owning Scope is closed.
type Turn struct {
	ID          ids.TurnID
	TenantID    ids.TenantID
	ScopeID     ids.ScopeID
	Sequence    int64
	Role        enums.TurnRole
	Content     string
	TokenCount  int64
	ToolCalls   []ToolCall
	ToolResults []ToolResult
	CreatedAt   time.Time
}

// Provenance records where an Artifact came from (spec §3.1).
type Provenance struct {
	SourceTurnID     *ids.TurnID
	ExtractionMethod enums.ExtractionMethod
	Confidence       *float64 // [0,1] when set
}

// Artifact is an extracted, persistent value (spec §3.1).
type Artifact struct {
	ID           ids.ArtifactID
	TenantID     ids.TenantID
	TrajectoryID ids.TrajectoryID
	ScopeID      ids.ScopeID
	ArtifactType enums.ArtifactType
	Name         string
	Content      string
	Provenance   Provenance
	TTL          enums.TTL
	Metadata     map[string]any
	CreatedAt    time.Time
}

// Note is cross-trajectory knowledge persisted at the tenant level (spec §3.1).
type Note struct {
	ID                 ids.NoteID
	TenantID           ids.TenantID
	NoteType           enums.NoteType
	Title              string
	Content            string
	SourceTrajectoryIDs []ids.TrajectoryID
	SourceArtifactIDs  []ids.ArtifactID
	Embedding          *Embedding
	AccessCount        int64
	AccessedAt         *time.Time
	TTL                enums.TTL
	Metadata           map[string]any
	CreatedAt          time.Time
}

// Embedding is a provider-tagged vector (spec §4.9, §9 "vectors of
// variable dimension").
type Embedding struct {
	Vector     []float32
	ModelID    string
	Dimensions int
}

// Lock is a coordination record mirroring an advisory-lock primitive (spec §3.1).
type Lock struct {
	ID           ids.LockID
	TenantID     ids.TenantID
	ResourceType string
	ResourceID   string
	HolderAgentID ids.AgentID
	Mode         enums.LockMode
	Level        enums.LockLevel
	AdvisoryKey  int64
	AcquiredAt   time.Time
	ExpiresAt    *time.Time
}

// Message is a persistent agent-to-agent envelope (spec §3.1).
type Message struct {
	ID             ids.MessageID
	TenantID       ids.TenantID
	FromAgentID    ids.AgentID
	ToAgentID      *ids.AgentID
	ToAgentType    *string
	MessageType    string
	Payload        string
	TrajectoryID   *ids.TrajectoryID
	ScopeID        *ids.ScopeID
	ArtifactIDs    []ids.ArtifactID
	Priority       enums.MessagePriority
	ExpiresAt      *time.Time
	CreatedAt      time.Time
	DeliveredAt    *time.Time
	AcknowledgedAt *time.Time
}

// DelegationOutcome is attached by the `complete` transition (spec §4.7).
type DelegationOutcome struct {
	Status      enums.OutcomeStatus
	Output      string
	ArtifactIDs []ids.ArtifactID
	Error       string
}

// Delegation is a sub-task handoff proposal between two agents (spec §3.1, §4.7).
type Delegation struct {
	ID             ids.DelegationID
	TenantID       ids.TenantID
	TrajectoryID   ids.TrajectoryID
	FromAgentID    ids.AgentID
	ToAgentID      ids.AgentID
	State          enums.DelegationState
	RejectReason   string
	Outcome        *DelegationOutcome
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Handoff transfers ownership of an entire Trajectory between agents (spec §3.1, §4.7).
type Handoff struct {
	ID              ids.HandoffID
	TenantID        ids.TenantID
	TrajectoryID    ids.TrajectoryID
	FromAgentID     ids.AgentID
	ToAgentID       ids.AgentID
	State           enums.HandoffState
	ContextSnapshot []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MemoryRegion is a named access-control zone (spec §3.1).
type MemoryRegion struct {
	ID         ids.RegionID
	TenantID   ids.TenantID
	Name       string
	RegionType enums.RegionType
	Readers    []ids.AgentID
	Writers    []ids.AgentID
}

// PackConfig is one stored pack compilation (spec §6.2's caliber_dsl_config
// row): the pack source files, the lowered IR, and the compiled artifact,
// linked by a per-tenant monotonic version. Deployment state lives in the
// companion caliber_dsl_deployment row.
type PackConfig struct {
	ID         ids.ConfigID
	TenantID   ids.TenantID
	Version    int64
	PackSource []byte // JSON: source files keyed by pack-relative path
	AST        []byte // JSON: the lowered IR
	Compiled   []byte // JSON: the CompiledConfig
	Status     enums.PackConfigStatus
	CreatedAt  time.Time
}
