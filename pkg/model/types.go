package model

// Edge is a subject-relation-target triple attached to an Atom, used for
// entity and relationship indexing.
type Edge struct {
	S string `json:"s"`
	R string `json:"r"`
	T string `json:"t"`
}

// Atom is the L0 memory unit: a short natural-language scene digest plus
// entity-relation edges. One atom batch is produced per AI-message round,
// paired with its preceding user message.
type Atom struct {
	AtomID   string `json:"atomId"`
	Floor    int    `json:"floor"`
	Semantic string `json:"semantic"`
	Edges    []Edge `json:"edges,omitempty"`
}

// Chunk is the L1 memory unit: a roughly 200-token, sentence-boundary packed
// slice of one message's raw text. Chunks are immutable once created and
// regenerated wholesale when their floor's message changes.
type Chunk struct {
	ChunkID  string `json:"chunkId"`
	Floor    int    `json:"floor"`
	ChunkIdx int    `json:"chunkIdx"`
	Speaker  string `json:"speaker"`
	IsUser   bool   `json:"isUser"`
	Text     string `json:"text"`
	TextHash string `json:"textHash"`
}

// EventType classifies the narrative role of an Event.
type EventType string

const (
	EventTypeEncounter  EventType = "相遇"
	EventTypeConflict   EventType = "冲突"
	EventTypeReveal     EventType = "揭示"
	EventTypeDecision   EventType = "抉择"
	EventTypeBond       EventType = "羁绊"
	EventTypeChange     EventType = "转变"
	EventTypeResolution EventType = "收束"
	EventTypeDaily      EventType = "日常"
)

// EventTypes is the set of accepted event types.
var EventTypes = map[EventType]bool{
	EventTypeEncounter:  true,
	EventTypeConflict:   true,
	EventTypeReveal:     true,
	EventTypeDecision:   true,
	EventTypeBond:       true,
	EventTypeChange:     true,
	EventTypeResolution: true,
	EventTypeDaily:      true,
}

// EventWeight grades how load-bearing an Event is for the overall narrative.
type EventWeight string

const (
	EventWeightCore       EventWeight = "核心"
	EventWeightMainline   EventWeight = "主线"
	EventWeightTurning    EventWeight = "转折"
	EventWeightHighlight  EventWeight = "点睛"
	EventWeightAtmosphere EventWeight = "氛围"
)

// EventWeights is the set of accepted event weights.
var EventWeights = map[EventWeight]bool{
	EventWeightCore:       true,
	EventWeightMainline:   true,
	EventWeightTurning:    true,
	EventWeightHighlight:  true,
	EventWeightAtmosphere: true,
}

// Event is the L2 memory unit: a summarized incident across a floor range.
// Summary embeds a floor-range marker "(#start-end)" used to associate
// evidence atoms and chunks. CausedBy holds at most two ids of antecedent
// events forming causal links.
type Event struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	TimeLabel    string      `json:"timeLabel,omitempty"`
	Summary      string      `json:"summary"`
	Participants []string    `json:"participants,omitempty"`
	Type         EventType   `json:"type"`
	Weight       EventWeight `json:"weight"`
	CausedBy     []string    `json:"causedBy,omitempty"`
}

// Trend is the ordered relationship scale carried by "toward-X" facts.
type Trend string

const (
	TrendRupture  Trend = "破裂"
	TrendLoathing Trend = "厌恶"
	TrendAversion Trend = "反感"
	TrendStranger Trend = "陌生"
	TrendRapport  Trend = "投缘"
	TrendIntimate Trend = "亲密"
	TrendMerged   Trend = "交融"
)

// TrendRank orders the trend scale from 破裂 (lowest) to 交融 (highest).
var TrendRank = map[Trend]int{
	TrendRupture:  0,
	TrendLoathing: 1,
	TrendAversion: 2,
	TrendStranger: 3,
	TrendRapport:  4,
	TrendIntimate: 5,
	TrendMerged:   6,
}

// Fact is the L3 memory unit: a durable subject-predicate-object triple.
// Facts are keyed by (S, P): a later update with the same key overwrites the
// earlier value. IsState facts are exempt from capacity pruning. Relationship
// facts use the predicate pattern "toward-X" and carry a Trend.
type Fact struct {
	ID      string `json:"id"`
	S       string `json:"s"`
	P       string `json:"p"`
	O       string `json:"o"`
	Since   int    `json:"since"`
	AddedAt int    `json:"_addedAt"`
	IsState bool   `json:"isState,omitempty"`
	Trend   Trend  `json:"trend,omitempty"`
}

// Key returns the (subject, predicate) overwrite key for the fact.
func (f Fact) Key() string {
	return f.S + "\x00" + f.P
}

// ArcMoment is one appended beat of an Arc.
type ArcMoment struct {
	Text    string `json:"text"`
	AddedAt int    `json:"_addedAt"`
}

// Arc tracks a long-running narrative thread. Updates replace Trajectory and
// Progress and append to Moments.
type Arc struct {
	Name       string      `json:"name"`
	Trajectory string      `json:"trajectory"`
	Progress   float64     `json:"progress"`
	Moments    []ArcMoment `json:"moments,omitempty"`
}

// SummaryState is the merged output of all summarization runs for one chat:
// the event list, known character names, arcs and the current keyword list.
type SummaryState struct {
	Events     []Event  `json:"events"`
	Characters []string `json:"characters,omitempty"`
	Arcs       []Arc    `json:"arcs,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
}

// Checkpoint marks a completed summarization run. Checkpoints form an
// append-only history used to pick rollback targets when the host mutates
// the transcript below the summarization boundary.
type Checkpoint struct {
	EndFloor  int   `json:"endFloor"`
	CreatedAt int64 `json:"createdAt"`
}

// ChatMeta is the per-chat bookkeeping the engine maintains alongside the
// tiers. LastSummarizedFloor is monotonic except under explicit rollback.
type ChatMeta struct {
	LastSummarizedFloor int    `json:"lastSummarizedFloor"`
	VectorFingerprint   string `json:"vectorFingerprint,omitempty"`
}

// FactUpdate is one fact mutation proposed by the summarizer delta.
// Retracted deletes the (S, P) key instead of writing a value.
type FactUpdate struct {
	S         string `json:"s"`
	P         string `json:"p"`
	O         string `json:"o,omitempty"`
	Since     int    `json:"since,omitempty"`
	IsState   bool   `json:"isState,omitempty"`
	Trend     Trend  `json:"trend,omitempty"`
	Retracted bool   `json:"retracted,omitempty"`
}

// ArcUpdate is one arc mutation proposed by the summarizer delta. Arcs merge
// by name: an unknown name creates the arc, a known name replaces trajectory
// and progress and appends the moment.
type ArcUpdate struct {
	Name       string  `json:"name"`
	Trajectory string  `json:"trajectory,omitempty"`
	Progress   float64 `json:"progress,omitempty"`
	Moment     string  `json:"moment,omitempty"`
}

// Delta is the structured output of one LLM summarization call.
type Delta struct {
	Events        []Event      `json:"events"`
	FactUpdates   []FactUpdate `json:"factUpdates"`
	ArcUpdates    []ArcUpdate  `json:"arcUpdates"`
	NewCharacters []string     `json:"newCharacters"`
	Keywords      []string     `json:"keywords"`
}
