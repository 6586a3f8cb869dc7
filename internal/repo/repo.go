package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"vigia/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const obsColumns = `id,estado,responsable,area,equipo_lugar,categoria,plazo,descripcion,evidencia_url,creado_por,creado_en,cierre_descripcion,cierre_evidencia_url,cerrado_por,cerrado_en`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObservation(row rowScanner) (domain.Observation, error) {
	var o domain.Observation
	var evidencia, cierreDesc, cierreURL, cerradoPor, cerradoEn sql.NullString
	err := row.Scan(&o.ID, &o.Estado, &o.Responsable, &o.Area, &o.EquipoLugar, &o.Categoria,
		&o.Plazo, &o.Descripcion, &evidencia, &o.CreadoPor, &o.CreadoEn,
		&cierreDesc, &cierreURL, &cerradoPor, &cerradoEn)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	if evidencia.Valid {
		o.EvidenciaURL = &evidencia.String
	}
	if cierreDesc.Valid {
		o.CierreDescripcion = &cierreDesc.String
	}
	if cierreURL.Valid {
		o.CierreEvidenciaURL = &cierreURL.String
	}
	if cerradoPor.Valid {
		o.CerradoPor = &cerradoPor.String
	}
	if cerradoEn.Valid {
		o.CerradoEn = &cerradoEn.String
	}
	return o, nil
}

func (r Repo) InsertObservation(ctx context.Context, tx *sql.Tx, o domain.Observation) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO observaciones(`+obsColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.Estado, o.Responsable, o.Area, o.EquipoLugar, o.Categoria, o.Plazo, o.Descripcion,
		nullableStringPtr(o.EvidenciaURL), o.CreadoPor, o.CreadoEn,
		nullableStringPtr(o.CierreDescripcion), nullableStringPtr(o.CierreEvidenciaURL),
		nullableStringPtr(o.CerradoPor), nullableStringPtr(o.CerradoEn))
	return err
}

func (r Repo) GetObservation(ctx context.Context, id string) (domain.Observation, error) {
	return scanObservation(r.DB.QueryRowContext(ctx, `SELECT `+obsColumns+` FROM observaciones WHERE id=?`, id))
}

func (r Repo) GetObservationTx(ctx context.Context, tx *sql.Tx, id string) (domain.Observation, error) {
	return scanObservation(tx.QueryRowContext(ctx, `SELECT `+obsColumns+` FROM observaciones WHERE id=?`, id))
}

type ObservationFilters struct {
	Estado         string
	Area           string
	Categoria      string
	CreadoPor      string
	Limit          int
	CursorCreadoEn string
	CursorID       string
}

func (r Repo) ListObservations(ctx context.Context, f ObservationFilters) ([]domain.Observation, error) {
	var clauses []string
	var args []any
	if f.Estado != "" {
		clauses = append(clauses, "estado=?")
		args = append(args, f.Estado)
	}
	if f.Area != "" {
		clauses = append(clauses, "area=?")
		args = append(args, f.Area)
	}
	if f.Categoria != "" {
		clauses = append(clauses, "categoria=?")
		args = append(args, f.Categoria)
	}
	if f.CreadoPor != "" {
		clauses = append(clauses, "lower(creado_por)=lower(?)")
		args = append(args, f.CreadoPor)
	}
	if f.CursorCreadoEn != "" && f.CursorID != "" {
		clauses = append(clauses, "(creado_en < ? OR (creado_en = ? AND id < ?))")
		args = append(args, f.CursorCreadoEn, f.CursorCreadoEn, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + obsColumns + ` FROM observaciones ` + where + ` ORDER BY creado_en DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// UpdateObservation rewrites the editable fields of a pending record.
// The estado predicate makes the update a no-op on closed records, which
// surfaces as ErrNotFound.
func (r Repo) UpdateObservation(ctx context.Context, tx *sql.Tx, o domain.Observation) error {
	res, err := tx.ExecContext(ctx, `UPDATE observaciones
SET area=?, equipo_lugar=?, categoria=?, plazo=?, descripcion=?, evidencia_url=?
WHERE id=? AND estado=?`,
		o.Area, o.EquipoLugar, o.Categoria, o.Plazo, o.Descripcion, nullableStringPtr(o.EvidenciaURL),
		o.ID, domain.EstadoPendiente)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Closure carries the four fields written atomically when an observation
// is closed.
type Closure struct {
	Descripcion  string
	EvidenciaURL string
	CerradoPor   string
	CerradoEn    string
}

// CloseObservation performs the pending to cerrada transition as one
// conditional update. OwnerEmail, when non-empty, additionally requires
// the record to have been created by that email; a predicate miss
// (already closed, wrong owner, or no such id) returns ErrNotFound.
func (r Repo) CloseObservation(ctx context.Context, tx *sql.Tx, id string, c Closure, ownerEmail string) error {
	query := `UPDATE observaciones
SET estado=?, cierre_descripcion=?, cierre_evidencia_url=?, cerrado_por=?, cerrado_en=?
WHERE id=? AND estado=?`
	args := []any{domain.EstadoCerrada, c.Descripcion, c.EvidenciaURL, c.CerradoPor, c.CerradoEn, id, domain.EstadoPendiente}
	if ownerEmail != "" {
		query += ` AND lower(creado_por)=lower(?)`
		args = append(args, ownerEmail)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteObservation removes a closed record. Pending records never match
// the predicate.
func (r Repo) DeleteObservation(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM observaciones WHERE id=? AND estado=?`, id, domain.EstadoCerrada)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountObservationsByEstado(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT estado, count(*) FROM observaciones GROUP BY estado`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var estado string
		var count int
		if err := rows.Scan(&estado, &count); err != nil {
			return nil, err
		}
		res[estado] = count
	}
	return res, rows.Err()
}

func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if entID.Valid {
			e.EntityID = entID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
