package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/policy-tracker/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Timestamps are stored as fixed-width UTC text so range predicates compare
// lexically in time order.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS anuncios (
	id                 TEXT PRIMARY KEY,
	titulo             TEXT NOT NULL,
	titulo_normalizado TEXT NOT NULL UNIQUE,
	descripcion        TEXT NOT NULL DEFAULT '',
	fecha_anuncio      TEXT NOT NULL,
	fecha_prometida    TEXT,
	responsable        TEXT NOT NULL DEFAULT '',
	dependencia        TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL DEFAULT 'prometido',
	fuente_original    TEXT NOT NULL DEFAULT '',
	cita_promesa       TEXT NOT NULL DEFAULT '',
	fuentes            TEXT NOT NULL DEFAULT '[]',
	actualizaciones    TEXT NOT NULL DEFAULT '[]',
	creado_manualmente INTEGER NOT NULL DEFAULT 0,
	created_at         TEXT NOT NULL,
	updated_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS eventos_timeline (
	id          TEXT PRIMARY KEY,
	anuncio_id  TEXT NOT NULL,
	fecha       TEXT NOT NULL,
	tipo        TEXT NOT NULL,
	titulo      TEXT NOT NULL,
	descripcion TEXT NOT NULL DEFAULT '',
	fuentes     TEXT NOT NULL DEFAULT '[]',
	cita        TEXT NOT NULL DEFAULT '',
	responsable TEXT NOT NULL DEFAULT '',
	impacto     TEXT NOT NULL DEFAULT 'neutral',
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS actividad (
	id             TEXT PRIMARY KEY,
	tipo           TEXT NOT NULL,
	mensaje        TEXT NOT NULL,
	entidad_id     TEXT NOT NULL DEFAULT '',
	entidad_titulo TEXT NOT NULL DEFAULT '',
	detalles       TEXT,
	created_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS agente_logs (
	id                 TEXT PRIMARY KEY,
	tipo               TEXT NOT NULL,
	origen             TEXT NOT NULL,
	ejecutado_en       TEXT NOT NULL,
	duracion_ms        INTEGER NOT NULL DEFAULT 0,
	exito              INTEGER NOT NULL,
	items_encontrados  INTEGER NOT NULL DEFAULT 0,
	items_actualizados INTEGER NOT NULL DEFAULT 0,
	errores            TEXT NOT NULL DEFAULT '[]',
	respuesta_raw      TEXT NOT NULL DEFAULT '',
	uso                TEXT NOT NULL DEFAULT '{}',
	costo_usd          REAL NOT NULL DEFAULT 0,
	created_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS recaps_mensuales (
	id                  TEXT PRIMARY KEY,
	mes                 INTEGER NOT NULL,
	anio                INTEGER NOT NULL,
	titulo              TEXT NOT NULL,
	subtitulo           TEXT NOT NULL DEFAULT '',
	contenido           TEXT NOT NULL,
	datos_clave         TEXT NOT NULL DEFAULT '[]',
	veredicto           TEXT NOT NULL DEFAULT '',
	fuentes_consultadas TEXT NOT NULL DEFAULT '[]',
	estadisticas        TEXT NOT NULL DEFAULT '{}',
	created_at          TEXT NOT NULL,
	UNIQUE (mes, anio)
);

CREATE TABLE IF NOT EXISTS iniciativas (
	id         TEXT PRIMARY KEY,
	titulo     TEXT NOT NULL,
	estado     TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);

CREATE TABLE IF NOT EXISTS casos_judiciales (
	id                 TEXT PRIMARY KEY,
	titulo             TEXT NOT NULL,
	titulo_normalizado TEXT NOT NULL UNIQUE,
	descripcion        TEXT NOT NULL DEFAULT '',
	tribunal           TEXT NOT NULL DEFAULT '',
	numero_expediente  TEXT NOT NULL DEFAULT '',
	fecha              TEXT,
	partes             TEXT NOT NULL DEFAULT '[]',
	estado             TEXT NOT NULL DEFAULT 'en_tramite',
	tema               TEXT NOT NULL DEFAULT '',
	fuente_url         TEXT NOT NULL DEFAULT '',
	fuentes            TEXT NOT NULL DEFAULT '[]',
	created_at         TEXT NOT NULL,
	updated_at         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_eventos_anuncio_tipo_fecha ON eventos_timeline(anuncio_id, tipo, fecha);
CREATE INDEX IF NOT EXISTS idx_actividad_created_at ON actividad(created_at);
CREATE INDEX IF NOT EXISTS idx_agente_logs_tipo_ts ON agente_logs(tipo, ejecutado_en);
CREATE INDEX IF NOT EXISTS idx_iniciativas_estado ON iniciativas(estado);
CREATE INDEX IF NOT EXISTS idx_casos_estado ON casos_judiciales(estado);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// --- Announcements ---

func (s *SQLiteStore) ListAnnouncementTitles(ctx context.Context) ([]string, error) {
	return s.listStrings(ctx, `SELECT titulo FROM anuncios ORDER BY created_at`, "announcement titles")
}

func (s *SQLiteStore) ListAnnouncements(ctx context.Context) ([]model.Announcement, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+announcementColumns+` FROM anuncios ORDER BY created_at`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list announcements")
	}
	defer rows.Close()

	var out []model.Announcement
	for rows.Next() {
		a, err := scanAnnouncement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list announcements iterate")
}

func (s *SQLiteStore) GetAnnouncement(ctx context.Context, id string) (*model.Announcement, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+announcementColumns+` FROM anuncios WHERE id = ?`, id)
	a, err := scanAnnouncement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "announcement %s", id)
	}
	return a, err
}

func (s *SQLiteStore) CreateAnnouncementIfAbsent(ctx context.Context, a *model.Announcement) (bool, error) {
	if a.NormalizedTitle == "" {
		return false, eris.Errorf("sqlite: announcement %q has no normalized title", a.Title)
	}
	stampAnnouncement(a)
	args, err := announcementArgs(a)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO anuncios (`+announcementColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (titulo_normalizado) DO NOTHING`,
		args...,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert announcement %q", a.Title)
	}
	n, err := res.RowsAffected()
	return n == 1, eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) AppendAnnouncementUpdate(ctx context.Context, id string, u model.Update) error {
	updateJSON, err := json.Marshal(u)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal update")
	}
	var to, from string
	if u.StatusChange != nil {
		to, from = string(u.StatusChange.To), string(u.StatusChange.From)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE anuncios
		SET actualizaciones = json_insert(COALESCE(actualizaciones, '[]'), '$[#]', json(?)),
			status = CASE WHEN ? = '' THEN status ELSE ? END,
			updated_at = ?
		WHERE id = ? AND (? = '' OR status = ?)`,
		string(updateJSON), to, to, sqlTime(time.Now()), id, to, from,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: append update %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		if to == "" {
			return eris.Wrapf(ErrNotFound, "announcement %s", id)
		}
		return eris.Wrapf(ErrConflict, "announcement %s is no longer %s", id, from)
	}
	return nil
}

func (s *SQLiteStore) ImportAnnouncements(ctx context.Context, items []model.Announcement) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin import")
	}
	defer tx.Rollback() //nolint:errcheck

	var total int64
	for i := range items {
		a := &items[i]
		if a.NormalizedTitle == "" {
			return 0, eris.Errorf("sqlite: import item %d %q has no normalized title", i, a.Title)
		}
		stampAnnouncement(a)
		args, err := announcementArgs(a)
		if err != nil {
			return 0, err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO anuncios (`+announcementColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (titulo_normalizado) DO UPDATE SET
				titulo = excluded.titulo, descripcion = excluded.descripcion,
				fecha_anuncio = excluded.fecha_anuncio, fecha_prometida = excluded.fecha_prometida,
				responsable = excluded.responsable, dependencia = excluded.dependencia,
				status = excluded.status, fuente_original = excluded.fuente_original,
				cita_promesa = excluded.cita_promesa, fuentes = excluded.fuentes,
				actualizaciones = excluded.actualizaciones,
				creado_manualmente = excluded.creado_manualmente, updated_at = excluded.updated_at`,
			args...,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: import announcement %q", a.Title)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, eris.Wrap(tx.Commit(), "sqlite: commit import")
}

// --- Timeline ---

func (s *SQLiteStore) CreateTimelineEvent(ctx context.Context, e *model.TimelineEvent) error {
	stampEvent(e)
	args, err := eventArgs(e)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO eventos_timeline (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	return eris.Wrapf(err, "sqlite: insert timeline event %q", e.Title)
}

func (s *SQLiteStore) CountTimelineEvents(ctx context.Context, announcementID string, typ model.EventType, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM eventos_timeline WHERE anuncio_id = ? AND tipo = ? AND fecha BETWEEN ? AND ?`,
		announcementID, string(typ), sqlTime(from), sqlTime(to),
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count timeline events")
}

func (s *SQLiteStore) ListTimelineEvents(ctx context.Context, announcementID string) ([]model.TimelineEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM eventos_timeline WHERE anuncio_id = ? ORDER BY fecha, created_at`,
		announcementID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list timeline events")
	}
	defer rows.Close()

	var out []model.TimelineEvent
	for rows.Next() {
		var e model.TimelineEvent
		var date, created, sources string
		if err := rows.Scan(&e.ID, &e.AnnouncementID, &date, &e.Type, &e.Title, &e.Description,
			&sources, &e.Quote, &e.Official, &e.Impact, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan timeline event")
		}
		if e.Date, err = parseSQLTime(date); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseSQLTime(created); err != nil {
			return nil, err
		}
		if err := unmarshalList([]byte(sources), &e.Sources); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal event sources")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list timeline events iterate")
}

func (s *SQLiteStore) ImportTimelineEvents(ctx context.Context, events []model.TimelineEvent) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin event import")
	}
	defer tx.Rollback() //nolint:errcheck

	for i := range events {
		e := &events[i]
		stampEvent(e)
		args, err := eventArgs(e)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO eventos_timeline (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			args...,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: import timeline event %q", e.Title)
		}
	}
	return int64(len(events)), eris.Wrap(tx.Commit(), "sqlite: commit event import")
}

// --- Activity ---

func (s *SQLiteStore) CreateActivity(ctx context.Context, e *model.ActivityLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var details sql.NullString
	if e.Details != nil {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal activity details")
		}
		details = sql.NullString{String: string(b), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO actividad (id, tipo, mensaje, entidad_id, entidad_titulo, detalles, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Type), e.Message, e.EntityID, e.EntityTitle, details, sqlTime(e.CreatedAt),
	)
	return eris.Wrap(err, "sqlite: insert activity")
}

func (s *SQLiteStore) ListActivity(ctx context.Context, limit int) ([]model.ActivityLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tipo, mensaje, entidad_id, entidad_titulo, detalles, created_at FROM actividad ORDER BY created_at DESC LIMIT ?`,
		limitOrDefault(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list activity")
	}
	defer rows.Close()

	var out []model.ActivityLogEntry
	for rows.Next() {
		var e model.ActivityLogEntry
		var details sql.NullString
		var created string
		if err := rows.Scan(&e.ID, &e.Type, &e.Message, &e.EntityID, &e.EntityTitle, &details, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan activity")
		}
		if e.CreatedAt, err = parseSQLTime(created); err != nil {
			return nil, err
		}
		if details.Valid {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal activity details")
			}
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list activity iterate")
}

// --- Agent run logs ---

func (s *SQLiteStore) CreateAgentRunLog(ctx context.Context, l *model.AgentRunLog) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	errs, err := marshalList(l.Errors)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run errors")
	}
	usage, err := json.Marshal(l.Usage)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run usage")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agente_logs (id, tipo, origen, ejecutado_en, duracion_ms, exito, items_encontrados, items_actualizados, errores, respuesta_raw, uso, costo_usd, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, string(l.Agent), string(l.Trigger), sqlTime(l.StartedAt), l.DurationMs, l.Success,
		l.ItemsFound, l.ItemsUpdated, string(errs), l.RawResponse, string(usage), l.CostUSD, sqlTime(l.CreatedAt),
	)
	return eris.Wrapf(err, "sqlite: insert agent run log %s", l.Agent)
}

func (s *SQLiteStore) ListAgentRunLogs(ctx context.Context, filter RunLogFilter) ([]model.AgentRunLog, error) {
	query := `SELECT id, tipo, origen, ejecutado_en, duracion_ms, exito, items_encontrados, items_actualizados, errores, respuesta_raw, uso, costo_usd, created_at FROM agente_logs WHERE 1=1`
	var args []any

	if filter.Agent != "" {
		query += ` AND tipo = ?`
		args = append(args, string(filter.Agent))
	}
	if !filter.Since.IsZero() {
		query += ` AND ejecutado_en >= ?`
		args = append(args, sqlTime(filter.Since))
	}
	query += ` ORDER BY ejecutado_en DESC LIMIT ?`
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list agent run logs")
	}
	defer rows.Close()

	var out []model.AgentRunLog
	for rows.Next() {
		var l model.AgentRunLog
		var started, created, errs, usage string
		if err := rows.Scan(&l.ID, &l.Agent, &l.Trigger, &started, &l.DurationMs, &l.Success,
			&l.ItemsFound, &l.ItemsUpdated, &errs, &l.RawResponse, &usage, &l.CostUSD, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan agent run log")
		}
		if l.StartedAt, err = parseSQLTime(started); err != nil {
			return nil, err
		}
		if l.CreatedAt, err = parseSQLTime(created); err != nil {
			return nil, err
		}
		if err := unmarshalList([]byte(errs), &l.Errors); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal run errors")
		}
		if err := json.Unmarshal([]byte(usage), &l.Usage); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal run usage")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list agent run logs iterate")
}

// --- Monthly recaps ---

// GetMonthlyRecap returns nil, nil when no recap exists for the month.
func (s *SQLiteStore) GetMonthlyRecap(ctx context.Context, month, year int) (*model.MonthlyRecap, error) {
	var r model.MonthlyRecap
	var keyFigures, sources, stats, created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, mes, anio, titulo, subtitulo, contenido, datos_clave, veredicto, fuentes_consultadas, estadisticas, created_at
		FROM recaps_mensuales WHERE mes = ? AND anio = ?`,
		month, year,
	).Scan(&r.ID, &r.Month, &r.Year, &r.Title, &r.Subtitle, &r.Body, &keyFigures, &r.Verdict, &sources, &stats, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get recap %02d/%d", month, year)
	}
	if r.CreatedAt, err = parseSQLTime(created); err != nil {
		return nil, err
	}
	if err := unmarshalList([]byte(keyFigures), &r.KeyFigures); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal recap key figures")
	}
	if err := unmarshalList([]byte(sources), &r.Sources); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal recap sources")
	}
	if err := json.Unmarshal([]byte(stats), &r.Stats); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal recap stats")
	}
	return &r, nil
}

func (s *SQLiteStore) CreateMonthlyRecapIfAbsent(ctx context.Context, r *model.MonthlyRecap) (bool, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	keyFigures, err := marshalList(r.KeyFigures)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal recap key figures")
	}
	sources, err := marshalList(r.Sources)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal recap sources")
	}
	stats, err := json.Marshal(r.Stats)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal recap stats")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO recaps_mensuales (id, mes, anio, titulo, subtitulo, contenido, datos_clave, veredicto, fuentes_consultadas, estadisticas, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (mes, anio) DO NOTHING`,
		r.ID, r.Month, r.Year, r.Title, r.Subtitle, r.Body, string(keyFigures), r.Verdict,
		string(sources), string(stats), sqlTime(r.CreatedAt),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert recap %02d/%d", r.Month, r.Year)
	}
	n, err := res.RowsAffected()
	return n == 1, eris.Wrap(err, "sqlite: rows affected")
}

// --- Initiatives and judicial cases ---

func (s *SQLiteStore) CountInitiativesByStatus(ctx context.Context) (map[string]int, error) {
	return s.countByStatus(ctx, TableInitiatives)
}

func (s *SQLiteStore) CountCasesByStatus(ctx context.Context) (map[string]int, error) {
	return s.countByStatus(ctx, TableCases)
}

func (s *SQLiteStore) countByStatus(ctx context.Context, table string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT estado, count(*) FROM `+table+` GROUP BY estado`)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: count %s by status", table)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s count", table)
		}
		counts[status] = n
	}
	return counts, eris.Wrapf(rows.Err(), "sqlite: count %s iterate", table)
}

func (s *SQLiteStore) ListCaseTitles(ctx context.Context) ([]string, error) {
	return s.listStrings(ctx, `SELECT titulo FROM casos_judiciales ORDER BY created_at`, "case titles")
}

func (s *SQLiteStore) CreateCaseIfAbsent(ctx context.Context, c *model.JudicialCase) (bool, error) {
	if c.NormalizedTitle == "" {
		return false, eris.Errorf("sqlite: case %q has no normalized title", c.Title)
	}
	stampCase(c)
	parties, err := marshalList(c.Parties)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal case parties")
	}
	sources, err := marshalList(c.Sources)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal case sources")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO casos_judiciales (id, titulo, titulo_normalizado, descripcion, tribunal, numero_expediente, fecha, partes, estado, tema, fuente_url, fuentes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (titulo_normalizado) DO NOTHING`,
		c.ID, c.Title, c.NormalizedTitle, c.Description, c.Court, c.CaseNumber, sqlNullTime(c.FiledAt),
		string(parties), c.Status, c.Topic, c.SourceURL, string(sources), sqlTime(c.CreatedAt), sqlTime(c.UpdatedAt),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert case %q", c.Title)
	}
	n, err := res.RowsAffected()
	return n == 1, eris.Wrap(err, "sqlite: rows affected")
}

// helpers

// sqliteTimeLayout is RFC 3339 with a fixed nine-digit fraction.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func sqlTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func sqlNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: sqlTime(*t), Valid: true}
}

func parseSQLTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	return t, eris.Wrapf(err, "sqlite: parse time %q", s)
}

func (s *SQLiteStore) listStrings(ctx context.Context, query, what string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list %s", what)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", what)
		}
		out = append(out, v)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: list %s iterate", what)
}

func announcementArgs(a *model.Announcement) ([]any, error) {
	sources, err := marshalList(a.Sources)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal sources")
	}
	updates, err := marshalList(a.Updates)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal updates")
	}
	return []any{
		a.ID, a.Title, a.NormalizedTitle, a.Description, sqlTime(a.AnnouncedAt), sqlNullTime(a.PromisedAt),
		a.Official, a.Agency, string(a.Status), a.SourceURL, a.PromiseQuote,
		string(sources), string(updates), a.Manual, sqlTime(a.CreatedAt), sqlTime(a.UpdatedAt),
	}, nil
}

func eventArgs(e *model.TimelineEvent) ([]any, error) {
	sources, err := marshalList(e.Sources)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal event sources")
	}
	return []any{
		e.ID, e.AnnouncementID, sqlTime(e.Date), string(e.Type), e.Title, e.Description,
		string(sources), e.Quote, e.Official, string(e.Impact), sqlTime(e.CreatedAt),
	}, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAnnouncement(row scannable) (*model.Announcement, error) {
	var a model.Announcement
	var announced, created, updated, sources, updates string
	var promised sql.NullString

	err := row.Scan(&a.ID, &a.Title, &a.NormalizedTitle, &a.Description, &announced, &promised,
		&a.Official, &a.Agency, &a.Status, &a.SourceURL, &a.PromiseQuote,
		&sources, &updates, &a.Manual, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan announcement")
	}

	if a.AnnouncedAt, err = parseSQLTime(announced); err != nil {
		return nil, err
	}
	if promised.Valid {
		t, err := parseSQLTime(promised.String)
		if err != nil {
			return nil, err
		}
		a.PromisedAt = &t
	}
	if a.CreatedAt, err = parseSQLTime(created); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseSQLTime(updated); err != nil {
		return nil, err
	}
	if err := unmarshalList([]byte(sources), &a.Sources); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal announcement sources")
	}
	if err := unmarshalList([]byte(updates), &a.Updates); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal announcement updates")
	}
	return &a, nil
}
