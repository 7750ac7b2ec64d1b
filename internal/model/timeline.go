package model

import "time"

// EventType is the semantic kind of a timeline event.
type EventType string

const (
	EventInitial        EventType = "anuncio_inicial"
	EventUpdate         EventType = "actualizacion"
	EventProgress       EventType = "avance"
	EventStatusChange   EventType = "cambio_status"
	EventFulfillment    EventType = "cumplimiento"
	EventNonFulfillment EventType = "incumplimiento"
	EventDelay          EventType = "retraso"
)

// Valid reports whether t is a declared event type.
func (t EventType) Valid() bool {
	switch t {
	case EventInitial, EventUpdate, EventProgress, EventStatusChange,
		EventFulfillment, EventNonFulfillment, EventDelay:
		return true
	}
	return false
}

// Impact classifies how an event affects the commitment.
type Impact string

const (
	ImpactPositive Impact = "positivo"
	ImpactNeutral  Impact = "neutral"
	ImpactNegative Impact = "negativo"
)

// ParseImpact returns ImpactNeutral for empty or unknown values.
func ParseImpact(raw string) Impact {
	switch i := Impact(raw); i {
	case ImpactPositive, ImpactNegative, ImpactNeutral:
		return i
	default:
		return ImpactNeutral
	}
}

// TimelineEvent is one dated, sourced development in an announcement's history.
type TimelineEvent struct {
	ID             string    `json:"id"`
	AnnouncementID string    `json:"anuncio_id"`
	Date           time.Time `json:"fecha"`
	Type           EventType `json:"tipo"`
	Title          string    `json:"titulo"`
	Description    string    `json:"descripcion"`
	Sources        []Source  `json:"fuentes"`
	Quote          string    `json:"cita,omitempty"`
	Official       string    `json:"responsable,omitempty"`
	Impact         Impact    `json:"impacto"`
	CreatedAt      time.Time `json:"created_at"`
}
