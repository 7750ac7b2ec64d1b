package model

import "time"

// RecapSource is a source the model consulted while writing a recap.
type RecapSource struct {
	URL   string `json:"url"`
	Title string `json:"titulo"`
}

// RecapStats is a snapshot of the month's figures at generation time.
type RecapStats struct {
	TotalAnnouncements  int            `json:"total_anuncios"`
	ByStatus            map[Status]int `json:"por_status"`
	NewInMonth          int            `json:"nuevos_mes"`
	UpdatesInMonth      int            `json:"actualizaciones_mes"`
	StatusChanges       int            `json:"cambios_status_mes"`
	Initiatives         int            `json:"total_iniciativas"`
	InitiativesByStatus map[string]int `json:"iniciativas_por_status"`
	Cases               int            `json:"total_casos"`
	CasesByStatus       map[string]int `json:"casos_por_status"`
}

// MonthlyRecap is the editorial summary for one calendar month. At most one
// exists per (Month, Year).
type MonthlyRecap struct {
	ID         string        `json:"id"`
	Month      int           `json:"mes"`
	Year       int           `json:"anio"`
	Title      string        `json:"titulo"`
	Subtitle   string        `json:"subtitulo"`
	Body       string        `json:"contenido"`
	KeyFigures []string      `json:"datos_clave"`
	Verdict    string        `json:"veredicto"`
	Sources    []RecapSource `json:"fuentes_consultadas"`
	Stats      RecapStats    `json:"estadisticas"`
	CreatedAt  time.Time     `json:"created_at"`
}

// RecapPeriod returns the calendar month preceding now along with its
// half-open [from, to) range in now's location.
func RecapPeriod(now time.Time) (month, year int, from, to time.Time) {
	to = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	from = to.AddDate(0, -1, 0)
	return int(from.Month()), from.Year(), from, to
}
