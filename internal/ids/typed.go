package ids

// Each entity kind below is a distinct Go type over the same underlying
// layout. A function accepting a TrajectoryID cannot accidentally be
// handed a ScopeID — the compiler enforces it, per spec §4.1 ("mixing at
// a call site is a static error in strongly-typed implementations").

type TenantID struct{ ID }
type AgentID struct{ ID }
type TrajectoryID struct{ ID }
type ScopeID struct{ ID }
type TurnID struct{ ID }
type ArtifactID struct{ ID }
type NoteID struct{ ID }
type LockID struct{ ID }
type MessageID struct{ ID }
type DelegationID struct{ ID }
type HandoffID struct{ ID }
type RegionID struct{ ID }
type ConfigID struct{ ID }

func NewTenantID() TenantID         { return TenantID{New()} }
func NewAgentID() AgentID           { return AgentID{New()} }
func NewTrajectoryID() TrajectoryID { return TrajectoryID{New()} }
func NewScopeID() ScopeID           { return ScopeID{New()} }
func NewTurnID() TurnID             { return TurnID{New()} }
func NewArtifactID() ArtifactID     { return ArtifactID{New()} }
func NewNoteID() NoteID             { return NoteID{New()} }
func NewLockID() LockID             { return LockID{New()} }
func NewMessageID() MessageID       { return MessageID{New()} }
func NewDelegationID() DelegationID { return DelegationID{New()} }
func NewHandoffID() HandoffID       { return HandoffID{New()} }
func NewRegionID() RegionID         { return RegionID{New()} }
func NewConfigID() ConfigID         { return ConfigID{New()} }

func ParseTenantID(s string) (TenantID, error) {
	id, err := Parse(s)
	return TenantID{id}, err
}

func ParseAgentID(s string) (AgentID, error) {
	id, err := Parse(s)
	return AgentID{id}, err
}

func ParseTrajectoryID(s string) (TrajectoryID, error) {
	id, err := Parse(s)
	return TrajectoryID{id}, err
}

func ParseScopeID(s string) (ScopeID, error) {
	id, err := Parse(s)
	return ScopeID{id}, err
}

func ParseTurnID(s string) (TurnID, error) {
	id, err := Parse(s)
	return TurnID{id}, err
}

func ParseArtifactID(s string) (ArtifactID, error) {
	id, err := Parse(s)
	return ArtifactID{id}, err
}

func ParseNoteID(s string) (NoteID, error) {
	id, err := Parse(s)
	return NoteID{id}, err
}

func ParseLockID(s string) (LockID, error) {
	id, err := Parse(s)
	return LockID{id}, err
}

func ParseMessageID(s string) (MessageID, error) {
	id, err := Parse(s)
	return MessageID{id}, err
}

func ParseDelegationID(s string) (DelegationID, error) {
	id, err := Parse(s)
	return DelegationID{id}, err
}

func ParseHandoffID(s string) (HandoffID, error) {
	id, err := Parse(s)
	return HandoffID{id}, err
}

func ParseRegionID(s string) (RegionID, error) {
	id, err := Parse(s)
	return RegionID{id}, err
}

func ParseConfigID(s string) (ConfigID, error) {
	id, err := Parse(s)
	return ConfigID{id}, err
}
