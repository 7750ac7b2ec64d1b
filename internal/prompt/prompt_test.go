package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/policy-tracker/internal/model"
)

var now = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func TestDetection(t *testing.T) {
	p := Detection([]string{"Laboratorio Nacional de IA", "Agencia de Transformación Digital"}, now)

	assert.Contains(t, p.System, "objeto JSON")
	assert.Contains(t, p.User, "Fecha de hoy: 2026-04-01")
	assert.Contains(t, p.User, "- Laboratorio Nacional de IA\n")
	assert.Contains(t, p.User, `"nuevos_anuncios"`)
	assert.Contains(t, p.User, `"fuentes_adicionales"`)

	// Titles are listed in sorted order regardless of input order.
	assert.Less(t,
		strings.Index(p.User, "Agencia de Transformación Digital"),
		strings.Index(p.User, "Laboratorio Nacional de IA"))
}

func TestDetection_Deterministic(t *testing.T) {
	a := Detection([]string{"b", "a"}, now)
	b := Detection([]string{"a", "b"}, now)
	assert.Equal(t, a, b)
}

func TestDetection_NoTitles(t *testing.T) {
	p := Detection(nil, now)
	assert.Contains(t, p.User, "(ninguno)")
}

func TestMonitoring(t *testing.T) {
	promised := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	a := model.Announcement{
		Title:        "Laboratorio Nacional de IA",
		Description:  "Centro de investigación",
		AnnouncedAt:  time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC),
		PromisedAt:   &promised,
		Official:     "Titular de la ATDT",
		Agency:       "ATDT",
		Status:       model.StatusPromised,
		PromiseQuote: "Estará listo en 2026",
		Updates: []model.Update{
			{Date: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), Description: "Se publicó la convocatoria"},
		},
	}

	p := Monitoring(a, now)
	assert.Contains(t, p.User, "Título: Laboratorio Nacional de IA")
	assert.Contains(t, p.User, "Fecha prometida: 2026-12-31")
	assert.Contains(t, p.User, "Status actual: prometido")
	assert.Contains(t, p.User, `"Estará listo en 2026"`)
	assert.Contains(t, p.User, "(2026-01-10): Se publicó la convocatoria")
	assert.Contains(t, p.User, `"cambio_status_recomendado"`)
	assert.Equal(t, p, Monitoring(a, now))
}

func TestMonitoring_OptionalFieldsOmitted(t *testing.T) {
	p := Monitoring(model.Announcement{Title: "X", Status: model.StatusOperating}, now)
	assert.NotContains(t, p.User, "Fecha prometida")
	assert.NotContains(t, p.User, "Cita de la promesa")
	assert.NotContains(t, p.User, "Última actualización")
}

func TestRecap(t *testing.T) {
	stats := model.RecapStats{
		TotalAnnouncements:  12,
		ByStatus:            map[model.Status]int{model.StatusPromised: 7, model.StatusOperating: 5},
		NewInMonth:          2,
		UpdatesInMonth:      3,
		StatusChanges:       1,
		Initiatives:         4,
		InitiativesByStatus: map[string]int{"dictaminada": 1, "en_comision": 3},
		Cases:               1,
	}
	updates := []model.AnnouncementUpdate{
		{
			AnnouncementTitle: "Laboratorio Nacional de IA",
			Update: model.Update{
				Date:         time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
				Description:  "Inició operaciones",
				StatusChange: &model.StatusChange{From: model.StatusPromised, To: model.StatusOperating},
			},
		},
	}

	p := Recap(3, 2026, stats, updates)
	assert.Contains(t, p.User, "marzo de 2026")
	assert.Contains(t, p.User, "- Anuncios registrados: 12")
	assert.Contains(t, p.User, "- Status prometido: 7")
	assert.Contains(t, p.User, "- Status incumplido: 0")
	assert.Contains(t, p.User, "Iniciativas legislativas: 4 (dictaminada: 1, en_comision: 3)")
	assert.Contains(t, p.User, "- Casos judiciales: 1\n")
	assert.Contains(t, p.User, "2026-03-05 | Laboratorio Nacional de IA: Inició operaciones [status prometido → operando]")
	assert.Contains(t, p.User, `"veredicto"`)
}

func TestRecap_NoUpdates(t *testing.T) {
	p := Recap(12, 2025, model.RecapStats{}, nil)
	assert.Contains(t, p.User, "diciembre de 2025")
	assert.Contains(t, p.User, "(ninguna)")
}

func TestCases(t *testing.T) {
	p := Cases([]string{"Amparo contra reconocimiento facial"}, now)
	assert.Contains(t, p.User, "SCJN")
	assert.Contains(t, p.User, "- Amparo contra reconocimiento facial")
	assert.Contains(t, p.User, `"nuevos_casos"`)
}

func TestMonthName(t *testing.T) {
	assert.Equal(t, "enero", MonthName(1))
	assert.Equal(t, "diciembre", MonthName(12))
	assert.Equal(t, "mes 13", MonthName(13))
}
