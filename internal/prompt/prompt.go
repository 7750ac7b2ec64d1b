// Package prompt renders the instructions sent to the search service. Every
// function is pure: equal inputs produce byte-identical prompts.
package prompt

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sells-group/policy-tracker/internal/model"
)

// Prompt is a rendered request: stable instructions plus the per-run message.
type Prompt struct {
	System string
	User   string
}

const dateLayout = "2006-01-02"

// systemPrompt is shared by every agent so providers can cache it.
const systemPrompt = `Eres un analista de políticas públicas que da seguimiento a los compromisos del gobierno de México en materia de inteligencia artificial.

Reglas:
- Usa la búsqueda web para verificar cada dato; cita solo fuentes que hayas consultado
- Prefiere fuentes oficiales (gob.mx, DOF, comunicados) y medios reconocidos
- No inventes fechas, cifras ni citas; si un dato no está disponible omítelo
- Fechas en formato YYYY-MM-DD
- Responde con un único objeto JSON válido, sin texto antes ni después`

var monthNames = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// MonthName returns the Spanish name of month (1-12).
func MonthName(month int) string {
	if month < 1 || month > 12 {
		return fmt.Sprintf("mes %d", month)
	}
	return monthNames[month-1]
}

func writeList(sb *strings.Builder, header string, items []string) {
	sb.WriteString(header)
	sb.WriteString("\n")
	if len(items) == 0 {
		sb.WriteString("(ninguno)\n")
		return
	}
	sorted := slices.Clone(items)
	slices.Sort(sorted)
	for _, it := range sorted {
		sb.WriteString("- ")
		sb.WriteString(it)
		sb.WriteString("\n")
	}
}

const detectionSchema = `{
  "nuevos_anuncios": [
    {
      "titulo": "string",
      "descripcion": "string",
      "fecha_anuncio": "YYYY-MM-DD",
      "fecha_prometida": "YYYY-MM-DD (opcional)",
      "responsable": "string",
      "dependencia": "string",
      "fuente_url": "string",
      "cita_promesa": "string",
      "fuentes_adicionales": [
        {"tipo": "nota_prensa|declaracion|documento_transparencia|otro", "url": "string", "titulo": "string", "medio": "string (opcional)"}
      ]
    }
  ]
}`

// Detection asks for government AI announcements not already tracked.
func Detection(existingTitles []string, now time.Time) Prompt {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Fecha de hoy: %s\n\n", now.Format(dateLayout))
	sb.WriteString("Busca anuncios recientes del gobierno federal de México sobre inteligencia artificial: ")
	sb.WriteString("programas, laboratorios, regulaciones, inversiones o compromisos con fecha de entrega.\n\n")
	writeList(&sb, "Ya están registrados (no los repitas):", existingTitles)
	sb.WriteString("\nSi no hay anuncios nuevos devuelve una lista vacía.\n\nResponde con este esquema:\n")
	sb.WriteString(detectionSchema)
	return Prompt{System: systemPrompt, User: sb.String()}
}

const monitoringSchema = `{
  "hay_actualizacion": true,
  "actualizacion": {
    "descripcion": "string",
    "fecha": "YYYY-MM-DD",
    "fuente_url": "string",
    "tipo_evento": "actualizacion|avance|cumplimiento|incumplimiento|retraso",
    "impacto": "positivo|neutral|negativo",
    "cita": "string (opcional)",
    "responsable": "string (opcional)",
    "fuentes_adicionales": [
      {"tipo": "nota_prensa|declaracion|documento_transparencia|otro", "url": "string", "titulo": "string", "medio": "string (opcional)"}
    ]
  },
  "cambio_status_recomendado": false,
  "nuevo_status": "prometido|en_desarrollo|operando|incumplido|abandonado",
  "justificacion": "string"
}`

// Monitoring asks whether an announcement has new developments since it was
// last reviewed.
func Monitoring(a model.Announcement, now time.Time) Prompt {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Fecha de hoy: %s\n\n", now.Format(dateLayout))
	sb.WriteString("Revisa si hay novedades sobre este compromiso gubernamental:\n\n")
	fmt.Fprintf(&sb, "Título: %s\n", a.Title)
	fmt.Fprintf(&sb, "Descripción: %s\n", a.Description)
	fmt.Fprintf(&sb, "Fecha del anuncio: %s\n", a.AnnouncedAt.Format(dateLayout))
	if a.PromisedAt != nil {
		fmt.Fprintf(&sb, "Fecha prometida: %s\n", a.PromisedAt.Format(dateLayout))
	}
	fmt.Fprintf(&sb, "Responsable: %s\n", a.Official)
	fmt.Fprintf(&sb, "Dependencia: %s\n", a.Agency)
	fmt.Fprintf(&sb, "Status actual: %s\n", a.Status)
	if a.PromiseQuote != "" {
		fmt.Fprintf(&sb, "Cita de la promesa: %q\n", a.PromiseQuote)
	}
	if n := len(a.Updates); n > 0 {
		last := a.Updates[n-1]
		fmt.Fprintf(&sb, "Última actualización registrada (%s): %s\n", last.Date.Format(dateLayout), last.Description)
	}

	sb.WriteString("\nReporta solo hechos posteriores a la última actualización registrada. ")
	sb.WriteString("Recomienda un cambio de status solo con evidencia y justifícalo. Transiciones válidas:\n")
	sb.WriteString("- prometido → en_desarrollo, operando, incumplido o abandonado\n")
	sb.WriteString("- en_desarrollo → operando o abandonado\n")
	sb.WriteString("- operando → abandonado\n")
	sb.WriteString("- incumplido → abandonado\n")
	sb.WriteString("\nSi no hay novedades responde {\"hay_actualizacion\": false, \"cambio_status_recomendado\": false}.\n\nResponde con este esquema:\n")
	sb.WriteString(monitoringSchema)
	return Prompt{System: systemPrompt, User: sb.String()}
}

const recapSchema = `{
  "titulo": "string",
  "subtitulo": "string",
  "contenido": "string (markdown, 400-700 palabras)",
  "datos_clave": ["string"],
  "veredicto": "string (una oración)",
  "fuentes_consultadas": [{"url": "string", "titulo": "string"}]
}`

// Recap asks for the editorial summary of one month.
func Recap(month, year int, stats model.RecapStats, updates []model.AnnouncementUpdate) Prompt {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Escribe el resumen editorial de %s de %d sobre los compromisos de IA del gobierno.\n\n", MonthName(month), year)

	sb.WriteString("Estadísticas del mes:\n")
	fmt.Fprintf(&sb, "- Anuncios registrados: %d\n", stats.TotalAnnouncements)
	fmt.Fprintf(&sb, "- Anuncios nuevos en el mes: %d\n", stats.NewInMonth)
	fmt.Fprintf(&sb, "- Actualizaciones en el mes: %d\n", stats.UpdatesInMonth)
	fmt.Fprintf(&sb, "- Cambios de status en el mes: %d\n", stats.StatusChanges)
	for _, s := range model.AllStatuses {
		fmt.Fprintf(&sb, "- Status %s: %d\n", s, stats.ByStatus[s])
	}
	fmt.Fprintf(&sb, "- Iniciativas legislativas: %d%s\n", stats.Initiatives, formatCounts(stats.InitiativesByStatus))
	fmt.Fprintf(&sb, "- Casos judiciales: %d%s\n", stats.Cases, formatCounts(stats.CasesByStatus))

	sb.WriteString("\nActualizaciones del mes:\n")
	if len(updates) == 0 {
		sb.WriteString("(ninguna)\n")
	}
	for _, u := range updates {
		fmt.Fprintf(&sb, "- %s | %s: %s", u.Date.Format(dateLayout), u.AnnouncementTitle, u.Description)
		if u.StatusChange != nil {
			fmt.Fprintf(&sb, " [status %s → %s]", u.StatusChange.From, u.StatusChange.To)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\nResponde con este esquema:\n")
	sb.WriteString(recapSchema)
	return Prompt{System: systemPrompt, User: sb.String()}
}

// formatCounts renders " (a: 1, b: 2)" with keys sorted, or "" when empty.
func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return ""
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %d", k, counts[k])
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

const casesSchema = `{
  "nuevos_casos": [
    {
      "titulo": "string",
      "descripcion": "string",
      "tribunal": "string",
      "numero_expediente": "string (opcional)",
      "fecha": "YYYY-MM-DD (opcional)",
      "partes": ["string"],
      "estado": "en_tramite|resuelto|archivado",
      "tema": "string",
      "fuente_url": "string",
      "fuentes_adicionales": [
        {"tipo": "nota_prensa|declaracion|documento_transparencia|otro", "url": "string", "titulo": "string", "medio": "string (opcional)"}
      ]
    }
  ]
}`

// Cases asks for judicial cases involving artificial intelligence in Mexico
// not already tracked.
func Cases(existingTitles []string, now time.Time) Prompt {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Fecha de hoy: %s\n\n", now.Format(dateLayout))
	sb.WriteString("Busca casos judiciales en México (SCJN, tribunales colegiados, juzgados de distrito, TFJA) ")
	sb.WriteString("relacionados con inteligencia artificial, algoritmos o decisiones automatizadas.\n\n")
	writeList(&sb, "Ya están registrados (no los repitas):", existingTitles)
	sb.WriteString("\nSi no hay casos nuevos devuelve una lista vacía.\n\nResponde con este esquema:\n")
	sb.WriteString(casesSchema)
	return Prompt{System: systemPrompt, User: sb.String()}
}
