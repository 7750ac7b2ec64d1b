package model

import "time"

// ActivityType identifies the kind of user-visible change an entry records.
type ActivityType string

const (
	ActivityNewAnnouncement ActivityType = "nuevo_anuncio"
	ActivityStatusChange    ActivityType = "cambio_status"
	ActivityUpdate          ActivityType = "actualizacion"
	ActivityAgentRun        ActivityType = "agente_ejecutado"
	ActivityNewCase         ActivityType = "nuevo_caso"
	ActivityRecap           ActivityType = "recap_generado"
)

// ActivityLogEntry is an append-only audit trail record.
type ActivityLogEntry struct {
	ID          string         `json:"id"`
	Type        ActivityType   `json:"tipo"`
	Message     string         `json:"mensaje"`
	EntityID    string         `json:"entidad_id,omitempty"`
	EntityTitle string         `json:"entidad_titulo,omitempty"`
	Details     map[string]any `json:"detalles,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
