package parse

import (
	"strings"

	"github.com/sells-group/policy-tracker/internal/model"
)

// SourceRef is an additional source listed by the model.
type SourceRef struct {
	Type   string `json:"tipo"`
	URL    string `json:"url"`
	Title  string `json:"titulo"`
	Outlet string `json:"medio"`
}

// Source converts the reference, normalising unknown types to "otro".
func (r SourceRef) Source() model.Source {
	return model.Source{
		URL:    strings.TrimSpace(r.URL),
		Title:  r.Title,
		Type:   model.NormalizeSourceType(r.Type),
		Outlet: r.Outlet,
	}
}

// Sources converts refs, dropping entries without a URL.
func Sources(refs []SourceRef) []model.Source {
	var out []model.Source
	for _, r := range refs {
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		out = append(out, r.Source())
	}
	return out
}

// ItemError records a list entry dropped because it failed validation.
type ItemError struct {
	Index int
	Title string
	Err   error
}

// Candidate is one newly detected announcement.
type Candidate struct {
	Title             string      `json:"titulo" validate:"required"`
	Description       string      `json:"descripcion"`
	AnnouncedAt       Date        `json:"fecha_anuncio"`
	PromisedAt        Date        `json:"fecha_prometida"`
	Official          string      `json:"responsable"`
	Agency            string      `json:"dependencia"`
	SourceURL         string      `json:"fuente_url"`
	PromiseQuote      string      `json:"cita_promesa"`
	AdditionalSources []SourceRef `json:"fuentes_adicionales"`
}

// DetectionResponse is the detection agent's expected payload.
type DetectionResponse struct {
	Announcements []Candidate `json:"nuevos_anuncios" validate:"required"`
	// Invalid lists entries dropped for missing required fields.
	Invalid []ItemError `json:"-"`
}

// Detection decodes a detection response. Entries without a title are moved
// to Invalid instead of failing the whole response.
func Detection(text string) (*DetectionResponse, error) {
	var resp DetectionResponse
	if err := decode(text, &resp); err != nil {
		return nil, err
	}
	resp.Announcements, resp.Invalid = keepValid(resp.Announcements, func(c Candidate) string { return c.Title })
	return &resp, nil
}

// UpdatePayload describes a development found by monitoring.
type UpdatePayload struct {
	Description       string      `json:"descripcion" validate:"required"`
	Date              Date        `json:"fecha"`
	SourceURL         string      `json:"fuente_url"`
	EventType         string      `json:"tipo_evento"`
	Impact            string      `json:"impacto"`
	Quote             string      `json:"cita"`
	Official          string      `json:"responsable"`
	AdditionalSources []SourceRef `json:"fuentes_adicionales"`
}

// MonitoringResponse is the monitoring agent's expected payload.
type MonitoringResponse struct {
	HasUpdate       *bool          `json:"hay_actualizacion" validate:"required"`
	Update          *UpdatePayload `json:"actualizacion"`
	RecommendChange bool           `json:"cambio_status_recomendado"`
	NewStatus       string         `json:"nuevo_status"`
	Justification   string         `json:"justificacion"`
}

// Updated reports whether the response carries a usable update.
func (r *MonitoringResponse) Updated() bool {
	return r.HasUpdate != nil && *r.HasUpdate && r.Update != nil
}

// Monitoring decodes a monitoring response. A claimed update must carry its
// payload, and a recommended status change must name the target status.
// A recommended change without a payload is accepted: its update is built
// from the justification and left undated.
func Monitoring(text string) (*MonitoringResponse, error) {
	var resp MonitoringResponse
	if err := decode(text, &resp); err != nil {
		return nil, err
	}
	status := strings.TrimSpace(resp.NewStatus)
	if *resp.HasUpdate && resp.Update == nil && resp.RecommendChange && status != "" {
		desc := strings.TrimSpace(resp.Justification)
		if desc == "" {
			desc = "Cambio de status recomendado: " + status
		}
		resp.Update = &UpdatePayload{Description: desc}
	}
	var missing []string
	if *resp.HasUpdate && resp.Update == nil {
		missing = append(missing, "actualizacion")
	}
	if *resp.HasUpdate && resp.RecommendChange && strings.TrimSpace(resp.NewStatus) == "" {
		missing = append(missing, "nuevo_status")
	}
	if len(missing) > 0 {
		return nil, &ParseError{Kind: KindMissingFields, Fields: missing}
	}
	return &resp, nil
}

// RecapResponse is the recap aggregator's expected payload.
type RecapResponse struct {
	Title      string              `json:"titulo" validate:"required"`
	Subtitle   string              `json:"subtitulo"`
	Body       string              `json:"contenido" validate:"required"`
	KeyFigures []string            `json:"datos_clave"`
	Verdict    string              `json:"veredicto" validate:"required"`
	Sources    []model.RecapSource `json:"fuentes_consultadas"`
}

// Recap decodes a recap response. Every required field must be present.
func Recap(text string) (*RecapResponse, error) {
	var resp RecapResponse
	if err := decode(text, &resp); err != nil {
		return nil, err
	}
	kept := resp.Sources[:0]
	for _, s := range resp.Sources {
		if strings.TrimSpace(s.URL) != "" {
			kept = append(kept, s)
		}
	}
	resp.Sources = kept
	return &resp, nil
}

// CaseCandidate is one newly detected judicial case.
type CaseCandidate struct {
	Title             string      `json:"titulo" validate:"required"`
	Description       string      `json:"descripcion"`
	Court             string      `json:"tribunal"`
	CaseNumber        string      `json:"numero_expediente"`
	FiledAt           Date        `json:"fecha"`
	Parties           []string    `json:"partes"`
	Status            string      `json:"estado"`
	Topic             string      `json:"tema"`
	SourceURL         string      `json:"fuente_url"`
	AdditionalSources []SourceRef `json:"fuentes_adicionales"`
}

// CasesResponse is the case detection agent's expected payload.
type CasesResponse struct {
	Cases   []CaseCandidate `json:"nuevos_casos" validate:"required"`
	Invalid []ItemError     `json:"-"`
}

// Cases decodes a case detection response, dropping untitled entries.
func Cases(text string) (*CasesResponse, error) {
	var resp CasesResponse
	if err := decode(text, &resp); err != nil {
		return nil, err
	}
	resp.Cases, resp.Invalid = keepValid(resp.Cases, func(c CaseCandidate) string { return c.Title })
	return &resp, nil
}

func keepValid[T any](items []T, title func(T) string) ([]T, []ItemError) {
	var kept []T
	var invalid []ItemError
	for i, it := range items {
		if err := check(&it); err != nil {
			invalid = append(invalid, ItemError{Index: i, Title: title(it), Err: err})
			continue
		}
		kept = append(kept, it)
	}
	return kept, invalid
}
