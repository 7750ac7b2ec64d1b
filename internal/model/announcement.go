package model

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a tracked announcement.
type Status string

const (
	StatusPromised      Status = "prometido"
	StatusInDevelopment Status = "en_desarrollo"
	StatusOperating     Status = "operando"
	StatusUnfulfilled   Status = "incumplido"
	StatusAbandoned     Status = "abandonado"
)

// AllStatuses lists every status in display order.
var AllStatuses = []Status{
	StatusPromised,
	StatusInDevelopment,
	StatusOperating,
	StatusUnfulfilled,
	StatusAbandoned,
}

// statusAliases maps English names and loose spellings the model sometimes
// returns onto the canonical values.
var statusAliases = map[string]Status{
	"promised":       StatusPromised,
	"in_development": StatusInDevelopment,
	"in development": StatusInDevelopment,
	"en desarrollo":  StatusInDevelopment,
	"operating":      StatusOperating,
	"unfulfilled":    StatusUnfulfilled,
	"abandoned":      StatusAbandoned,
}

// Valid reports whether s is one of the five declared statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPromised, StatusInDevelopment, StatusOperating, StatusUnfulfilled, StatusAbandoned:
		return true
	}
	return false
}

// ParseStatus resolves a raw status string. The second return is false when
// the value is not a declared status.
func ParseStatus(raw string) (Status, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if s := Status(v); s.Valid() {
		return s, true
	}
	if s, ok := statusAliases[v]; ok {
		return s, true
	}
	return "", false
}

// SourceType classifies an evidentiary citation.
type SourceType string

const (
	SourceOriginal     SourceType = "anuncio_original"
	SourcePressNote    SourceType = "nota_prensa"
	SourceStatement    SourceType = "declaracion"
	SourceTransparency SourceType = "documento_transparencia"
	SourceOther        SourceType = "otro"
)

// NormalizeSourceType maps unknown values to SourceOther.
func NormalizeSourceType(raw string) SourceType {
	switch t := SourceType(strings.ToLower(strings.TrimSpace(raw))); t {
	case SourceOriginal, SourcePressNote, SourceStatement, SourceTransparency:
		return t
	default:
		return SourceOther
	}
}

// Source is a citation backing a claim. URL is its natural key within a list.
type Source struct {
	ID          string     `json:"id,omitempty"`
	URL         string     `json:"url"`
	Title       string     `json:"titulo"`
	Type        SourceType `json:"tipo"`
	Outlet      string     `json:"medio,omitempty"`
	PublishedAt *time.Time `json:"fecha_publicacion,omitempty"`
	Accessible  *bool      `json:"accesible,omitempty"`
	Excerpt     string     `json:"extracto,omitempty"`
}

// StatusChange records a transition applied alongside an update.
type StatusChange struct {
	From          Status `json:"anterior"`
	To            Status `json:"nuevo"`
	Justification string `json:"justificacion,omitempty"`
}

// Update is one entry in an announcement's update log.
type Update struct {
	Date         time.Time     `json:"fecha"`
	Description  string        `json:"descripcion"`
	SourceURL    string        `json:"fuente_url,omitempty"`
	StatusChange *StatusChange `json:"cambio_status,omitempty"`
}

// Announcement is a tracked government AI commitment.
type Announcement struct {
	ID              string     `json:"id"`
	Title           string     `json:"titulo"`
	NormalizedTitle string     `json:"titulo_normalizado,omitempty"`
	Description     string     `json:"descripcion"`
	AnnouncedAt     time.Time  `json:"fecha_anuncio"`
	PromisedAt      *time.Time `json:"fecha_prometida,omitempty"`
	Official        string     `json:"responsable"`
	Agency          string     `json:"dependencia"`
	Status          Status     `json:"status"`
	SourceURL       string     `json:"fuente_original,omitempty"`
	PromiseQuote    string     `json:"cita_promesa,omitempty"`
	Sources         []Source   `json:"fuentes"`
	Updates         []Update   `json:"actualizaciones"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Manual          bool       `json:"creado_manualmente"`
}

// UpdatedStatus returns the update's target status, or "" when the update
// carried no transition.
func (u Update) UpdatedStatus() Status {
	if u.StatusChange == nil {
		return ""
	}
	return u.StatusChange.To
}

// AnnouncementUpdate pairs an update with the announcement it belongs to.
// Used by the recap to gather a month's developments across announcements.
type AnnouncementUpdate struct {
	AnnouncementID    string `json:"anuncio_id"`
	AnnouncementTitle string `json:"anuncio_titulo"`
	Update
}
