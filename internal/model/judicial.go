package model

import "time"

// JudicialCase is a court case touching AI policy.
type JudicialCase struct {
	ID              string     `json:"id"`
	Title           string     `json:"titulo"`
	NormalizedTitle string     `json:"titulo_normalizado,omitempty"`
	Description     string     `json:"descripcion"`
	Court           string     `json:"tribunal"`
	CaseNumber      string     `json:"numero_expediente,omitempty"`
	FiledAt         *time.Time `json:"fecha,omitempty"`
	Parties         []string   `json:"partes,omitempty"`
	Status          string     `json:"estado"`
	Topic           string     `json:"tema,omitempty"`
	SourceURL       string     `json:"fuente_url,omitempty"`
	Sources         []Source   `json:"fuentes"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// DefaultCaseStatus is assigned when detection doesn't report one.
const DefaultCaseStatus = "en_tramite"

// Initiative is a legislative initiative. The agents only count these.
type Initiative struct {
	ID        string    `json:"id"`
	Title     string    `json:"titulo"`
	Status    string    `json:"estado"`
	CreatedAt time.Time `json:"created_at"`
}
