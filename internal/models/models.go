package models

import "time"

// ItemStatus is the lifecycle state of a pipeline item.
type ItemStatus string

const (
	StatusDraft         ItemStatus = "draft"
	StatusReviewing     ItemStatus = "reviewing"
	StatusScheduled     ItemStatus = "scheduled"
	StatusPublished     ItemStatus = "published"
	StatusPublishFailed ItemStatus = "publish_failed"
	StatusRejected      ItemStatus = "rejected"
)

// Terminal reports whether no further transitions are possible.
func (s ItemStatus) Terminal() bool {
	return s == StatusPublished || s == StatusRejected
}

// NonTerminalStatuses are the states in which an item still occupies its
// scheduled slot. The partial unique index on (owner_id, scheduled_at) is
// scoped to these.
func NonTerminalStatuses() []ItemStatus {
	all := []ItemStatus{StatusDraft, StatusReviewing, StatusScheduled, StatusPublished, StatusPublishFailed, StatusRejected}
	out := make([]ItemStatus, 0, len(all))
	for _, s := range all {
		if !s.Terminal() {
			out = append(out, s)
		}
	}
	return out
}

// PostingSlot is a recurring posting-time template.
type PostingSlot struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	SlotNumber int       `json:"slot_number"`
	TimeOfDay  string    `json:"time_of_day"`           // "HH:MM", 24h
	DayOfWeek  *int      `json:"day_of_week,omitempty"` // 0=Sunday..6=Saturday; nil = every day
	Timezone   string    `json:"timezone"`              // IANA identifier
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PipelineItem is a content item under scheduling control.
type PipelineItem struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"owner_id"`
	SlotID         *string    `json:"slot_id,omitempty"` // slot whose occurrence was resolved, if any
	Pillar         string     `json:"pillar,omitempty"`
	Content        string     `json:"content"` // opaque payload
	Status         ItemStatus `json:"status"`
	ScheduledAt    *time.Time `json:"scheduled_at,omitempty"`
	IsBuffer       bool       `json:"is_buffer"`
	BufferPosition int        `json:"buffer_position,omitempty"` // derived on read, never stored
	AutoPublish    bool       `json:"auto_publish"`
	ErrorLog       *string    `json:"error_log,omitempty"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// PillarTarget maps a pillar name to its target share of total output.
type PillarTarget struct {
	OwnerID    string `json:"owner_id"`
	Pillar     string `json:"pillar"`
	Percentage int    `json:"percentage"`
}

// JobStatus is the lifecycle state of a cycle job record.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// CycleParams are the inputs to one orchestrator invocation.
type CycleParams struct {
	ItemsPerBatch int    `json:"items_per_batch"`
	BufferTarget  int    `json:"buffer_target"`
	AutoPublish   bool   `json:"auto_publish"`
	Scope         string `json:"scope,omitempty"`
}

// CycleJob tracks one asynchronous autopilot cycle dispatch. It exists so
// duplicate deliveries of the same trigger can be detected and so operators
// can inspect stuck or erroring cycles.
type CycleJob struct {
	ID             string      `json:"id"`
	OwnerID        string      `json:"owner_id"`
	IdempotencyKey string      `json:"idempotency_key"`
	Status         JobStatus   `json:"status"`
	Params         CycleParams `json:"params"`
	ItemsCreated   int         `json:"items_created"`
	ErrorLog       *string     `json:"error_log,omitempty"`
	StartedAt      *time.Time  `json:"started_at,omitempty"`
	FinishedAt     *time.Time  `json:"finished_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// CycleRequest is the Kafka payload dispatched for one cycle trigger.
type CycleRequest struct {
	JobID   string      `json:"job_id"`
	OwnerID string      `json:"owner_id"`
	Params  CycleParams `json:"params"`
}
