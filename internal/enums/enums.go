// Package enums defines CALIBER's canonical string enumerations (spec C1,
// §6.3). Every enum rejects unknown variants at ingress rather than
// silently defaulting — the IsValid/UnmarshalText pair mirrors the pattern
// in the teacher's pkg/config/enums.go, generalized to the full entity
// catalog.
package enums

import "fmt"

// ErrUnknownEnum is wrapped by every enum's UnmarshalText on an unrecognized
// variant, carrying the offending field name for the caller to format into
// a caliberr.Validation error.
type ErrUnknownEnum struct {
	Field string
	Value string
}

func (e *ErrUnknownEnum) Error() string {
	return fmt.Sprintf("unknown %s value: %q", e.Field, e.Value)
}

// TrajectoryStatus is the lifecycle status of a Trajectory.
type TrajectoryStatus string

const (
	TrajectoryActive    TrajectoryStatus = "Active"
	TrajectoryCompleted TrajectoryStatus = "Completed"
	TrajectoryFailed    TrajectoryStatus = "Failed"
	TrajectorySuspended TrajectoryStatus = "Suspended"
)

func (s TrajectoryStatus) IsValid() bool {
	switch s {
	case TrajectoryActive, TrajectoryCompleted, TrajectoryFailed, TrajectorySuspended:
		return true
	}
	return false
}

func (s *TrajectoryStatus) UnmarshalText(text []byte) error {
	v := TrajectoryStatus(text)
	if !v.IsValid() {
		return &ErrUnknownEnum{Field: "trajectory.status", Value: string(text)}
	}
	*s = v
	return nil
}

// OutcomeStatus is the terminal result of a Trajectory's outcome.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "Success"
	OutcomePartial OutcomeStatus = "Partial"
	OutcomeFailure OutcomeStatus = "Failure"
)

func (s OutcomeStatus) IsValid() bool {
	switch s {
	case OutcomeSuccess, OutcomePartial, OutcomeFailure:
		return true
	}
	return false
}

// TurnRole identifies the speaker of a Turn.
type TurnRole string

const (
	RoleUser      TurnRole = "User"
	RoleAssistant TurnRole = "Assistant"
	RoleSystem    TurnRole = "System"
	RoleTool      TurnRole = "Tool"
)

func (r TurnRole) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

func (r *TurnRole) UnmarshalText(text []byte) error {
	v := TurnRole(text)
	if !v.IsValid() {
		return &ErrUnknownEnum{Field: "turn.role", Value: string(text)}
	}
	*r = v
	return nil
}

// ArtifactType enumerates the kinds of extracted value an Artifact can hold.
type ArtifactType string

const (
	ArtifactCode             ArtifactType = "Code"
	ArtifactDocument         ArtifactType = "Document"
	ArtifactData             ArtifactType = "Data"
	ArtifactModel            ArtifactType = "Model"
	ArtifactConfig           ArtifactType = "Config"
	ArtifactLog              ArtifactType = "Log"
	ArtifactSummary          ArtifactType = "Summary"
	ArtifactDecision         ArtifactType = "Decision"
	ArtifactPlan             ArtifactType = "Plan"
	ArtifactErrorLog         ArtifactType = "ErrorLog"
	ArtifactCodePatch        ArtifactType = "CodePatch"
	ArtifactDesignDecision   ArtifactType = "DesignDecision"
	ArtifactUserPreference   ArtifactType = "UserPreference"
	ArtifactFact             ArtifactType = "Fact"
	ArtifactConstraint       ArtifactType = "Constraint"
	ArtifactToolResult       ArtifactType = "ToolResult"
	ArtifactIntermediateOut  ArtifactType = "IntermediateOutput"
	ArtifactCustom           ArtifactType = "Custom"
)

var validArtifactTypes = map[ArtifactType]bool{
	ArtifactCode: true, ArtifactDocument: true, ArtifactData: true,
	ArtifactModel: true, ArtifactConfig: true, ArtifactLog: true,
	ArtifactSummary: true, ArtifactDecision: true, ArtifactPlan: true,
	ArtifactErrorLog: true, ArtifactCodePatch: true, ArtifactDesignDecision: true,
	ArtifactUserPreference: true, ArtifactFact: true, ArtifactConstraint: true,
	ArtifactToolResult: true, ArtifactIntermediateOut: true, ArtifactCustom: true,
}

func (t ArtifactType) IsValid() bool { return validArtifactTypes[t] }

func (t *ArtifactType) UnmarshalText(text []byte) error {
	v := ArtifactType(text)
	if !v.IsValid() {
		return &ErrUnknownEnum{Field: "artifact.artifact_type", Value: string(text)}
	}
	*t = v
	return nil
}

// NoteType enumerates cross-trajectory knowledge categories.
type NoteType string

const (
	NoteConvention   NoteType = "Convention"
	NoteStrategy     NoteType = "Strategy"
	NoteGotcha       NoteType = "Gotcha"
	NoteFact         NoteType = "Fact"
	NotePreference   NoteType = "Preference"
	NoteRelationship NoteType = "Relationship"
	NoteProcedure    NoteType = "Procedure"
	NoteMeta         NoteType = "Meta"
	NoteInsight      NoteType = "Insight"
	NoteCorrection   NoteType = "Correction"
	NoteSummary      NoteType = "Summary"
)

var validNoteTypes = map[NoteType]bool{
	NoteConvention: true, NoteStrategy: true, NoteGotcha: true, NoteFact: true,
	NotePreference: true, NoteRelationship: true, NoteProcedure: true,
	NoteMeta: true, NoteInsight: true, NoteCorrection: true, NoteSummary: true,
}

func (t NoteType) IsValid() bool { return validNoteTypes[t] }

func (t *NoteType) UnmarshalText(text []byte) error {
	v := NoteType(text)
	if !v.IsValid() {
		return &ErrUnknownEnum{Field: "note.note_type", Value: string(text)}
	}
	*t = v
	return nil
}

// ExtractionMethod records how an Artifact's provenance was determined.
type ExtractionMethod string

const (
	ExtractionExplicit     ExtractionMethod = "Explicit"
	ExtractionInferred     ExtractionMethod = "Inferred"
	ExtractionUserProvided ExtractionMethod = "UserProvided"
)

func (m ExtractionMethod) IsValid() bool {
	switch m {
	case ExtractionExplicit, ExtractionInferred, ExtractionUserProvided:
		return true
	}
	return false
}

func (m *ExtractionMethod) UnmarshalText(text []byte) error {
	v := ExtractionMethod(text)
	if !v.IsValid() {
		return &ErrUnknownEnum{Field: "artifact.provenance.extraction_method", Value: string(text)}
	}
	*m = v
	return nil
}

// TTLClass is the declarative retention class of an Artifact or Note.
// Duration(ms) is represented separately via TTL.DurationMS below, since Go
// enums cannot carry an associated value the way a Rust-style enum can.
type TTLClass string

const (
	TTLPersistent  TTLClass = "Persistent"
	TTLSession     TTLClass = "Session"
	TTLScope       TTLClass = "Scope"
	TTLEphemeral   TTLClass = "Ephemeral"
	TTLShortTerm   TTLClass = "ShortTerm"
	TTLMediumTerm  TTLClass = "MediumTerm"
	TTLLongTerm    TTLClass = "LongTerm"
	TTLPermanent   TTLClass = "Permanent"
	TTLDuration    TTLClass = "Duration"
)

func (c TTLClass) IsValid() bool {
	switch c {
	case TTLPersistent, TTLSession, TTLScope, TTLEphemeral, TTLShortTerm,
		TTLMediumTerm, TTLLongTerm, TTLPermanent, TTLDuration:
		return true
	}
	return false
}

// TTL is the tagged encoding of spec §6.3's TTL enum: every class except
// Duration carries no payload; Duration carries an explicit millisecond
// value in DurationMS.
type TTL struct {
	Class      TTLClass `json:"class"`
	DurationMS int64    `json:"duration_ms,omitempty"`
}

func (t TTL) Validate() error {
	if !t.Class.IsValid() {
		return &ErrUnknownEnum{Field: "ttl.class", Value: string(t.Class)}
	}
	if t.Class == TTLDuration && t.DurationMS <= 0 {
		return fmt.Errorf("ttl: Duration class requires a positive duration_ms")
	}
	return nil
}

// EntityType is the discriminant for CALIBER's tagged Entity variant (spec
// §9 "Polymorphism over entity kinds").
type EntityType string

const (
	EntityTrajectory EntityType = "Trajectory"
	EntityScope      EntityType = "Scope"
	EntityArtifact   EntityType = "Artifact"
	EntityNote       EntityType = "Note"
	EntityTurn       EntityType = "Turn"
	EntityLock       EntityType = "Lock"
	EntityMessage    EntityType = "Message"
	EntityAgent      EntityType = "Agent"
	EntityDelegation EntityType = "Delegation"
	EntityHandoff    EntityType = "Handoff"
	EntityConflict   EntityType = "Conflict"
	EntityEdge       EntityType = "Edge"
)

var validEntityTypes = map[EntityType]bool{
	EntityTrajectory: true, EntityScope: true, EntityArtifact: true,
	EntityNote: true, EntityTurn: true, EntityLock: true, EntityMessage: true,
	EntityAgent: true, EntityDelegation: true, EntityHandoff: true,
	EntityConflict: true, EntityEdge: true,
}

func (e EntityType) IsValid() bool { return validEntityTypes[e] }

// MessagePriority is the delivery priority of a Message (snake_case per
// spec §4.1's "the set in §6.3 is authoritative" carve-out for this enum).
type MessagePriority string

const (
	PriorityLow    MessagePriority = "low"
	PriorityNormal MessagePriority = "normal"
	PriorityHigh   MessagePriority = "high"
	PriorityUrgent MessagePriority = "urgent"
)

// Rank orders priorities for the "(priority desc, created_at asc)" sort
// spec §4.6/§5 require; higher rank sorts first.
func (p MessagePriority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	case PriorityLow:
		return 0
	default:
		return -1
	}
}

func (p MessagePriority) IsValid() bool { return p.Rank() >= 0 }

func (p *MessagePriority) UnmarshalText(text []byte) error {
	v := MessagePriority(text)
	if !v.IsValid() {
		return &ErrUnknownEnum{Field: "message.priority", Value: string(text)}
	}
	*p = v
	return nil
}

// LockMode is the exclusivity mode of a Lock.
type LockMode string

const (
	LockExclusive LockMode = "Exclusive"
	LockShared    LockMode = "Shared"
)

func (m LockMode) IsValid() bool { return m == LockExclusive || m == LockShared }

// LockLevel is the lifetime scope of a Lock.
type LockLevel string

const (
	LockSession     LockLevel = "Session"
	LockTransaction LockLevel = "Transaction"
)

func (l LockLevel) IsValid() bool { return l == LockSession || l == LockTransaction }

// AgentStatus is the operational status of an Agent.
type AgentStatus string

const (
	AgentActive AgentStatus = "active"
	AgentIdle   AgentStatus = "idle"
	AgentBusy   AgentStatus = "busy"
)

func (s AgentStatus) IsValid() bool {
	switch s {
	case AgentActive, AgentIdle, AgentBusy:
		return true
	}
	return false
}

func (s *AgentStatus) UnmarshalText(text []byte) error {
	v := AgentStatus(text)
	if !v.IsValid() {
		return &ErrUnknownEnum{Field: "agent.status", Value: string(text)}
	}
	*s = v
	return nil
}

// MemoryAccessScope is the scope qualifier on an agent's read/write
// permission entry (spec §3.1 Agent.memory_access).
type MemoryAccessScope string

const (
	ScopeAll            MemoryAccessScope = "all"
	ScopeOwnTrajectory  MemoryAccessScope = "own_trajectory"
	ScopeRegion         MemoryAccessScope = "region"
)

func (s MemoryAccessScope) IsValid() bool {
	switch s {
	case ScopeAll, ScopeOwnTrajectory, ScopeRegion:
		return true
	}
	return false
}

// RegionType is the access-control category of a MemoryRegion.
type RegionType string

const (
	RegionPrivate       RegionType = "Private"
	RegionShared        RegionType = "Shared"
	RegionCollaborative RegionType = "Collaborative"
)

func (t RegionType) IsValid() bool {
	switch t {
	case RegionPrivate, RegionShared, RegionCollaborative:
		return true
	}
	return false
}

// DelegationState is a state in the Delegation FSM (spec §4.7).
type DelegationState string

const (
	DelegationProposed  DelegationState = "Proposed"
	DelegationAccepted  DelegationState = "Accepted"
	DelegationRejected  DelegationState = "Rejected"
	DelegationCompleted DelegationState = "Completed"
)

func (s DelegationState) IsTerminal() bool {
	return s == DelegationRejected || s == DelegationCompleted
}

// HandoffState is a state in the Handoff FSM (spec §4.7).
type HandoffState string

const (
	HandoffProposed  HandoffState = "Proposed"
	HandoffAccepted  HandoffState = "Accepted"
	HandoffCompleted HandoffState = "Completed"
)

func (s HandoffState) IsTerminal() bool {
	return s == HandoffCompleted
}

// SummaryStyle selects a Summarizer provider's verbosity (spec §4.9).
type SummaryStyle string

const (
	StyleBrief      SummaryStyle = "Brief"
	StyleDetailed   SummaryStyle = "Detailed"
	StyleStructured SummaryStyle = "Structured"
)

func (s SummaryStyle) IsValid() bool {
	switch s {
	case StyleBrief, StyleDetailed, StyleStructured:
		return true
	}
	return false
}

// RoutingStrategy selects how the pack compiler's [routing] section picks
// among multiple registered providers for a capability (spec §4.10 stage 5).
type RoutingStrategy string

const (
	RoutingFirst       RoutingStrategy = "first"
	RoutingRoundRobin  RoutingStrategy = "round_robin"
	RoutingRandom      RoutingStrategy = "random"
	RoutingLeastLatency RoutingStrategy = "least_latency"
)

func (s RoutingStrategy) IsValid() bool {
	switch s {
	case RoutingFirst, RoutingRoundRobin, RoutingRandom, RoutingLeastLatency:
		return true
	}
	return false
}

// PackConfigStatus is the lifecycle of a stored pack compilation
// (caliber_dsl_config.status): composed but not yet live, live, or
// superseded by a later deployment.
type PackConfigStatus string

const (
	PackConfigPending  PackConfigStatus = "pending"
	PackConfigCompiled PackConfigStatus = "compiled"
	PackConfigDeployed PackConfigStatus = "deployed"
	PackConfigRetired  PackConfigStatus = "retired"
)

func (s PackConfigStatus) IsValid() bool {
	switch s {
	case PackConfigPending, PackConfigCompiled, PackConfigDeployed, PackConfigRetired:
		return true
	}
	return false
}
