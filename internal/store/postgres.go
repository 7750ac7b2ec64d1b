package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/policy-tracker/internal/db"
	"github.com/sells-group/policy-tracker/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// the statements every agent run issues.
var preparedStatements = map[string]string{
	"list_titles":      `SELECT titulo FROM anuncios ORDER BY created_at`,
	"count_events":     `SELECT count(*) FROM eventos_timeline WHERE anuncio_id = $1 AND tipo = $2 AND fecha BETWEEN $3 AND $4`,
	"insert_activity":  `INSERT INTO actividad (id, tipo, mensaje, entidad_id, entidad_titulo, detalles, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"get_recap_exists": `SELECT id FROM recaps_mensuales WHERE mes = $1 AND anio = $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				// Tables may not exist before the first migrate.
				var pgErr interface{ SQLState() string }
				if errors.As(err, &pgErr) && pgErr.SQLState() == "42P01" {
					continue
				}
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS anuncios (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	titulo             TEXT NOT NULL,
	titulo_normalizado TEXT NOT NULL UNIQUE,
	descripcion        TEXT NOT NULL DEFAULT '',
	fecha_anuncio      TIMESTAMPTZ NOT NULL,
	fecha_prometida    TIMESTAMPTZ,
	responsable        TEXT NOT NULL DEFAULT '',
	dependencia        TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL DEFAULT 'prometido',
	fuente_original    TEXT NOT NULL DEFAULT '',
	cita_promesa       TEXT NOT NULL DEFAULT '',
	fuentes            JSONB NOT NULL DEFAULT '[]'::jsonb,
	actualizaciones    JSONB NOT NULL DEFAULT '[]'::jsonb,
	creado_manualmente BOOLEAN NOT NULL DEFAULT false,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS eventos_timeline (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	anuncio_id  TEXT NOT NULL,
	fecha       TIMESTAMPTZ NOT NULL,
	tipo        TEXT NOT NULL,
	titulo      TEXT NOT NULL,
	descripcion TEXT NOT NULL DEFAULT '',
	fuentes     JSONB NOT NULL DEFAULT '[]'::jsonb,
	cita        TEXT NOT NULL DEFAULT '',
	responsable TEXT NOT NULL DEFAULT '',
	impacto     TEXT NOT NULL DEFAULT 'neutral',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS actividad (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tipo           TEXT NOT NULL,
	mensaje        TEXT NOT NULL,
	entidad_id     TEXT NOT NULL DEFAULT '',
	entidad_titulo TEXT NOT NULL DEFAULT '',
	detalles       JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS agente_logs (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tipo               TEXT NOT NULL,
	origen             TEXT NOT NULL,
	ejecutado_en       TIMESTAMPTZ NOT NULL,
	duracion_ms        BIGINT NOT NULL DEFAULT 0,
	exito              BOOLEAN NOT NULL,
	items_encontrados  INTEGER NOT NULL DEFAULT 0,
	items_actualizados INTEGER NOT NULL DEFAULT 0,
	errores            JSONB NOT NULL DEFAULT '[]'::jsonb,
	respuesta_raw      TEXT NOT NULL DEFAULT '',
	uso                JSONB NOT NULL DEFAULT '{}'::jsonb,
	costo_usd          NUMERIC(12,6) NOT NULL DEFAULT 0,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS recaps_mensuales (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	mes                 INTEGER NOT NULL,
	anio                INTEGER NOT NULL,
	titulo              TEXT NOT NULL,
	subtitulo           TEXT NOT NULL DEFAULT '',
	contenido           TEXT NOT NULL,
	datos_clave         JSONB NOT NULL DEFAULT '[]'::jsonb,
	veredicto           TEXT NOT NULL DEFAULT '',
	fuentes_consultadas JSONB NOT NULL DEFAULT '[]'::jsonb,
	estadisticas        JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (mes, anio)
);

CREATE TABLE IF NOT EXISTS iniciativas (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	titulo     TEXT NOT NULL,
	estado     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS casos_judiciales (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	titulo             TEXT NOT NULL,
	titulo_normalizado TEXT NOT NULL UNIQUE,
	descripcion        TEXT NOT NULL DEFAULT '',
	tribunal           TEXT NOT NULL DEFAULT '',
	numero_expediente  TEXT NOT NULL DEFAULT '',
	fecha              TIMESTAMPTZ,
	partes             JSONB NOT NULL DEFAULT '[]'::jsonb,
	estado             TEXT NOT NULL DEFAULT 'en_tramite',
	tema               TEXT NOT NULL DEFAULT '',
	fuente_url         TEXT NOT NULL DEFAULT '',
	fuentes            JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_eventos_anuncio_tipo_fecha ON eventos_timeline(anuncio_id, tipo, fecha);
CREATE INDEX IF NOT EXISTS idx_actividad_created_at ON actividad(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_agente_logs_tipo_ts ON agente_logs(tipo, ejecutado_en DESC);
CREATE INDEX IF NOT EXISTS idx_iniciativas_estado ON iniciativas(estado);
CREATE INDEX IF NOT EXISTS idx_casos_estado ON casos_judiciales(estado);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Announcements ---

const announcementColumns = `id, titulo, titulo_normalizado, descripcion, fecha_anuncio, fecha_prometida, responsable, dependencia, status, fuente_original, cita_promesa, fuentes, actualizaciones, creado_manualmente, created_at, updated_at`

func (s *PostgresStore) ListAnnouncementTitles(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT titulo FROM anuncios ORDER BY created_at`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list announcement titles")
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, eris.Wrap(err, "postgres: scan announcement title")
		}
		titles = append(titles, t)
	}
	return titles, eris.Wrap(rows.Err(), "postgres: list announcement titles iterate")
}

func (s *PostgresStore) ListAnnouncements(ctx context.Context) ([]model.Announcement, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+announcementColumns+` FROM anuncios ORDER BY created_at`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list announcements")
	}
	defer rows.Close()

	var out []model.Announcement
	for rows.Next() {
		a, err := scanPgAnnouncement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list announcements iterate")
}

func (s *PostgresStore) GetAnnouncement(ctx context.Context, id string) (*model.Announcement, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+announcementColumns+` FROM anuncios WHERE id = $1`, id)
	a, err := scanPgAnnouncement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "announcement %s", id)
	}
	return a, err
}

func (s *PostgresStore) CreateAnnouncementIfAbsent(ctx context.Context, a *model.Announcement) (bool, error) {
	if a.NormalizedTitle == "" {
		return false, eris.Errorf("postgres: announcement %q has no normalized title", a.Title)
	}
	stampAnnouncement(a)

	sources, err := marshalList(a.Sources)
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal sources")
	}
	updates, err := marshalList(a.Updates)
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal updates")
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO anuncios (`+announcementColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (titulo_normalizado) DO NOTHING`,
		a.ID, a.Title, a.NormalizedTitle, a.Description, a.AnnouncedAt, a.PromisedAt,
		a.Official, a.Agency, string(a.Status), a.SourceURL, a.PromiseQuote,
		sources, updates, a.Manual, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert announcement %q", a.Title)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) AppendAnnouncementUpdate(ctx context.Context, id string, u model.Update) error {
	updateJSON, err := json.Marshal(u)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal update")
	}
	var to, from string
	if u.StatusChange != nil {
		to, from = string(u.StatusChange.To), string(u.StatusChange.From)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE anuncios
		SET actualizaciones = COALESCE(actualizaciones, '[]'::jsonb) || jsonb_build_array($2::jsonb),
			status = COALESCE(NULLIF($3::text, ''), status),
			updated_at = $5
		WHERE id = $1 AND ($3::text = '' OR status = $4::text)`,
		id, updateJSON, to, from, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: append update %s", id)
	}
	if tag.RowsAffected() == 0 {
		if to == "" {
			return eris.Wrapf(ErrNotFound, "announcement %s", id)
		}
		return eris.Wrapf(ErrConflict, "announcement %s is no longer %s", id, from)
	}
	return nil
}

var announcementImport = db.Table{
	Name: TableAnnouncements,
	Columns: []string{
		"id", "titulo", "titulo_normalizado", "descripcion", "fecha_anuncio", "fecha_prometida",
		"responsable", "dependencia", "status", "fuente_original", "cita_promesa",
		"fuentes", "actualizaciones", "creado_manualmente", "created_at", "updated_at",
	},
}

// ImportAnnouncements upserts by normalized title. Existing rows keep their
// id and created_at.
func (s *PostgresStore) ImportAnnouncements(ctx context.Context, items []model.Announcement) (int64, error) {
	n, err := db.Upsert(ctx, s.pool, announcementImport, db.UpsertConfig{
		ConflictKeys: []string{"titulo_normalizado"},
	}, items, func(a *model.Announcement) ([]any, error) {
		if a.NormalizedTitle == "" {
			return nil, eris.Errorf("announcement %q has no normalized title", a.Title)
		}
		stampAnnouncement(a)
		sources, err := marshalList(a.Sources)
		if err != nil {
			return nil, eris.Wrap(err, "marshal sources")
		}
		updates, err := marshalList(a.Updates)
		if err != nil {
			return nil, eris.Wrap(err, "marshal updates")
		}
		return []any{
			a.ID, a.Title, a.NormalizedTitle, a.Description, a.AnnouncedAt, a.PromisedAt,
			a.Official, a.Agency, string(a.Status), a.SourceURL, a.PromiseQuote,
			sources, updates, a.Manual, a.CreatedAt, a.UpdatedAt,
		}, nil
	})
	return n, eris.Wrap(err, "postgres: import announcements")
}

// --- Timeline ---

const eventColumns = `id, anuncio_id, fecha, tipo, titulo, descripcion, fuentes, cita, responsable, impacto, created_at`

func (s *PostgresStore) CreateTimelineEvent(ctx context.Context, e *model.TimelineEvent) error {
	stampEvent(e)
	sources, err := marshalList(e.Sources)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal event sources")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO eventos_timeline (`+eventColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.AnnouncementID, e.Date, string(e.Type), e.Title, e.Description,
		sources, e.Quote, e.Official, string(e.Impact), e.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert timeline event %q", e.Title)
}

func (s *PostgresStore) CountTimelineEvents(ctx context.Context, announcementID string, typ model.EventType, from, to time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM eventos_timeline WHERE anuncio_id = $1 AND tipo = $2 AND fecha BETWEEN $3 AND $4`,
		announcementID, string(typ), from, to,
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count timeline events")
}

func (s *PostgresStore) ListTimelineEvents(ctx context.Context, announcementID string) ([]model.TimelineEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM eventos_timeline WHERE anuncio_id = $1 ORDER BY fecha, created_at`,
		announcementID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list timeline events")
	}
	defer rows.Close()

	var out []model.TimelineEvent
	for rows.Next() {
		var e model.TimelineEvent
		var sources []byte
		if err := rows.Scan(&e.ID, &e.AnnouncementID, &e.Date, &e.Type, &e.Title, &e.Description,
			&sources, &e.Quote, &e.Official, &e.Impact, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan timeline event")
		}
		if err := unmarshalList(sources, &e.Sources); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal event sources")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list timeline events iterate")
}

var timelineImport = db.Table{
	Name: TableTimeline,
	Columns: []string{
		"id", "anuncio_id", "fecha", "tipo", "titulo", "descripcion",
		"fuentes", "cita", "responsable", "impacto", "created_at",
	},
}

func (s *PostgresStore) ImportTimelineEvents(ctx context.Context, events []model.TimelineEvent) (int64, error) {
	n, err := db.CopyFrom(ctx, s.pool, timelineImport, events, func(e *model.TimelineEvent) ([]any, error) {
		stampEvent(e)
		sources, err := marshalList(e.Sources)
		if err != nil {
			return nil, eris.Wrap(err, "marshal event sources")
		}
		return []any{
			e.ID, e.AnnouncementID, e.Date, string(e.Type), e.Title, e.Description,
			sources, e.Quote, e.Official, string(e.Impact), e.CreatedAt,
		}, nil
	})
	return n, eris.Wrap(err, "postgres: import timeline events")
}

// --- Activity ---

func (s *PostgresStore) CreateActivity(ctx context.Context, e *model.ActivityLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var details []byte
	if e.Details != nil {
		var err error
		if details, err = json.Marshal(e.Details); err != nil {
			return eris.Wrap(err, "postgres: marshal activity details")
		}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO actividad (id, tipo, mensaje, entidad_id, entidad_titulo, detalles, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, string(e.Type), e.Message, e.EntityID, e.EntityTitle, details, e.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert activity")
}

func (s *PostgresStore) ListActivity(ctx context.Context, limit int) ([]model.ActivityLogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tipo, mensaje, entidad_id, entidad_titulo, detalles, created_at FROM actividad ORDER BY created_at DESC LIMIT $1`,
		limitOrDefault(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list activity")
	}
	defer rows.Close()

	var out []model.ActivityLogEntry
	for rows.Next() {
		var e model.ActivityLogEntry
		var details []byte
		if err := rows.Scan(&e.ID, &e.Type, &e.Message, &e.EntityID, &e.EntityTitle, &details, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan activity")
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal activity details")
			}
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list activity iterate")
}

// --- Agent run logs ---

func (s *PostgresStore) CreateAgentRunLog(ctx context.Context, l *model.AgentRunLog) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	errs, err := marshalList(l.Errors)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run errors")
	}
	usage, err := json.Marshal(l.Usage)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run usage")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO agente_logs (id, tipo, origen, ejecutado_en, duracion_ms, exito, items_encontrados, items_actualizados, errores, respuesta_raw, uso, costo_usd, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		l.ID, string(l.Agent), string(l.Trigger), l.StartedAt, l.DurationMs, l.Success,
		l.ItemsFound, l.ItemsUpdated, errs, l.RawResponse, usage, l.CostUSD, l.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert agent run log %s", l.Agent)
}

func (s *PostgresStore) ListAgentRunLogs(ctx context.Context, filter RunLogFilter) ([]model.AgentRunLog, error) {
	query := `SELECT id, tipo, origen, ejecutado_en, duracion_ms, exito, items_encontrados, items_actualizados, errores, respuesta_raw, uso, costo_usd::float8, created_at FROM agente_logs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Agent != "" {
		query += fmt.Sprintf(` AND tipo = $%d`, argIdx)
		args = append(args, string(filter.Agent))
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND ejecutado_en >= $%d`, argIdx)
		args = append(args, filter.Since)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY ejecutado_en DESC LIMIT $%d`, argIdx)
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list agent run logs")
	}
	defer rows.Close()

	var out []model.AgentRunLog
	for rows.Next() {
		var l model.AgentRunLog
		var errs, usage []byte
		if err := rows.Scan(&l.ID, &l.Agent, &l.Trigger, &l.StartedAt, &l.DurationMs, &l.Success,
			&l.ItemsFound, &l.ItemsUpdated, &errs, &l.RawResponse, &usage, &l.CostUSD, &l.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan agent run log")
		}
		if err := unmarshalList(errs, &l.Errors); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal run errors")
		}
		if len(usage) > 0 {
			if err := json.Unmarshal(usage, &l.Usage); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal run usage")
			}
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list agent run logs iterate")
}

// --- Monthly recaps ---

// GetMonthlyRecap returns nil, nil when no recap exists for the month.
func (s *PostgresStore) GetMonthlyRecap(ctx context.Context, month, year int) (*model.MonthlyRecap, error) {
	var r model.MonthlyRecap
	var keyFigures, sources, stats []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, mes, anio, titulo, subtitulo, contenido, datos_clave, veredicto, fuentes_consultadas, estadisticas, created_at
		FROM recaps_mensuales WHERE mes = $1 AND anio = $2`,
		month, year,
	).Scan(&r.ID, &r.Month, &r.Year, &r.Title, &r.Subtitle, &r.Body, &keyFigures, &r.Verdict, &sources, &stats, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get recap %02d/%d", month, year)
	}
	if err := unmarshalList(keyFigures, &r.KeyFigures); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal recap key figures")
	}
	if err := unmarshalList(sources, &r.Sources); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal recap sources")
	}
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &r.Stats); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal recap stats")
		}
	}
	return &r, nil
}

func (s *PostgresStore) CreateMonthlyRecapIfAbsent(ctx context.Context, r *model.MonthlyRecap) (bool, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	keyFigures, err := marshalList(r.KeyFigures)
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal recap key figures")
	}
	sources, err := marshalList(r.Sources)
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal recap sources")
	}
	stats, err := json.Marshal(r.Stats)
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal recap stats")
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO recaps_mensuales (id, mes, anio, titulo, subtitulo, contenido, datos_clave, veredicto, fuentes_consultadas, estadisticas, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (mes, anio) DO NOTHING`,
		r.ID, r.Month, r.Year, r.Title, r.Subtitle, r.Body, keyFigures, r.Verdict, sources, stats, r.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert recap %02d/%d", r.Month, r.Year)
	}
	return tag.RowsAffected() == 1, nil
}

// --- Initiatives and judicial cases ---

func (s *PostgresStore) CountInitiativesByStatus(ctx context.Context) (map[string]int, error) {
	return s.countByStatus(ctx, TableInitiatives)
}

func (s *PostgresStore) CountCasesByStatus(ctx context.Context) (map[string]int, error) {
	return s.countByStatus(ctx, TableCases)
}

func (s *PostgresStore) countByStatus(ctx context.Context, table string) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT estado, count(*) FROM `+table+` GROUP BY estado`)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: count %s by status", table)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s count", table)
		}
		counts[status] = n
	}
	return counts, eris.Wrapf(rows.Err(), "postgres: count %s iterate", table)
}

func (s *PostgresStore) ListCaseTitles(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT titulo FROM casos_judiciales ORDER BY created_at`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list case titles")
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, eris.Wrap(err, "postgres: scan case title")
		}
		titles = append(titles, t)
	}
	return titles, eris.Wrap(rows.Err(), "postgres: list case titles iterate")
}

func (s *PostgresStore) CreateCaseIfAbsent(ctx context.Context, c *model.JudicialCase) (bool, error) {
	if c.NormalizedTitle == "" {
		return false, eris.Errorf("postgres: case %q has no normalized title", c.Title)
	}
	stampCase(c)
	parties, err := marshalList(c.Parties)
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal case parties")
	}
	sources, err := marshalList(c.Sources)
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal case sources")
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO casos_judiciales (id, titulo, titulo_normalizado, descripcion, tribunal, numero_expediente, fecha, partes, estado, tema, fuente_url, fuentes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (titulo_normalizado) DO NOTHING`,
		c.ID, c.Title, c.NormalizedTitle, c.Description, c.Court, c.CaseNumber, c.FiledAt,
		parties, c.Status, c.Topic, c.SourceURL, sources, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert case %q", c.Title)
	}
	return tag.RowsAffected() == 1, nil
}

// --- helpers ---

func scanPgAnnouncement(row pgx.Row) (*model.Announcement, error) {
	var a model.Announcement
	var sources, updates []byte
	err := row.Scan(&a.ID, &a.Title, &a.NormalizedTitle, &a.Description, &a.AnnouncedAt, &a.PromisedAt,
		&a.Official, &a.Agency, &a.Status, &a.SourceURL, &a.PromiseQuote,
		&sources, &updates, &a.Manual, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan announcement")
	}
	if err := unmarshalList(sources, &a.Sources); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal announcement sources")
	}
	if err := unmarshalList(updates, &a.Updates); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal announcement updates")
	}
	return &a, nil
}
