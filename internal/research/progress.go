package research

import "time"

// EventType classifies progress events on the wire.
type EventType string

const (
	EventPlan     EventType = "plan"
	EventWeb      EventType = "web"
	EventAcademic EventType = "academic"
	EventAnalysis EventType = "analysis"
	EventProgress EventType = "progress"
)

// Status is the lifecycle state carried by an event.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
)

// Event is one progress annotation. Events are FIFO on the wire; a receiver
// must key on ID and honor Overwrite by replacing the prior event with the
// same id instead of appending.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Status    Status    `json:"status"`
	Title     string    `json:"title,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp int64     `json:"timestamp"`
	Overwrite bool      `json:"overwrite,omitempty"`

	// variant payloads
	Plan           *Plan          `json:"plan,omitempty"`
	Query          string         `json:"query,omitempty"`
	Results        []SearchResult `json:"results,omitempty"`
	AnalysisType   string         `json:"analysis_type,omitempty"`
	Findings       []Finding      `json:"findings,omitempty"`
	GapAnalysis    *GapAnalysis   `json:"gap_analysis,omitempty"`
	Synthesis      *Synthesis     `json:"synthesis,omitempty"`
	CompletedSteps int            `json:"completed_steps,omitempty"`
	TotalSteps     int            `json:"total_steps,omitempty"`
	IsComplete     bool           `json:"is_complete,omitempty"`
}

// Sink receives progress events. Delivery is fire-and-forget: implementations
// must not block the research flow and must swallow transport failures.
type Sink interface {
	Emit(ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

// NopSink discards all events.
var NopSink Sink = SinkFunc(func(Event) {})

// emit stamps and forwards an event. A panicking sink never aborts the
// research computation; progress is best-effort telemetry.
func (e *Engine) emit(sink Sink, ev Event) {
	if sink == nil {
		return
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Printf("progress sink panic: %v", r)
		}
	}()
	sink.Emit(ev)
}
