package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"vigia/internal/domain"
)

// InsertUser stores a profile row. PasswordHash must already contain the
// hashed credential.
func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.UserProfile, passwordHash string) error {
	if u.ID == "" {
		return errors.New("id required")
	}
	if u.Email == "" {
		return errors.New("email required")
	}
	if passwordHash == "" {
		return errors.New("password_hash required")
	}
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return r.DB.ExecContext(ctx, query, args...)
	}
	if u.CreadoEn == "" {
		u.CreadoEn = time.Now().UTC().Format(time.RFC3339)
	}
	if u.Rol == "" {
		u.Rol = domain.RolUser
	}
	_, err := exec(`INSERT INTO usuarios(id, email, dni, nombre, rol, password_hash, creado_en) VALUES (?,?,?,?,?,?,?)`,
		u.ID, strings.ToLower(u.Email), nullable(u.DNI), u.Nombre, u.Rol, passwordHash, u.CreadoEn)
	return err
}

func scanUser(row rowScanner) (domain.UserProfile, error) {
	var u domain.UserProfile
	var dni sql.NullString
	err := row.Scan(&u.ID, &u.Email, &dni, &u.Nombre, &u.Rol, &u.CreadoEn)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if dni.Valid {
		u.DNI = dni.String
	}
	return u, err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.UserProfile, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT id,email,dni,nombre,rol,creado_en FROM usuarios WHERE id=?`, id))
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.UserProfile, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT id,email,dni,nombre,rol,creado_en FROM usuarios WHERE email=?`, strings.ToLower(email)))
}

// GetUserCredentials returns the profile plus its stored password hash,
// for login verification.
func (r Repo) GetUserCredentials(ctx context.Context, email string) (domain.UserProfile, string, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,email,dni,nombre,rol,creado_en,password_hash FROM usuarios WHERE email=?`, strings.ToLower(email))
	var u domain.UserProfile
	var dni sql.NullString
	var hash string
	err := row.Scan(&u.ID, &u.Email, &dni, &u.Nombre, &u.Rol, &u.CreadoEn, &hash)
	if err == sql.ErrNoRows {
		return u, "", ErrNotFound
	}
	if err != nil {
		return u, "", err
	}
	if dni.Valid {
		u.DNI = dni.String
	}
	return u, hash, nil
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.UserProfile, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,email,dni,nombre,rol,creado_en FROM usuarios ORDER BY creado_en DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.UserProfile
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) UpdateUserRole(ctx context.Context, id, rol string) error {
	if rol != domain.RolAdmin && rol != domain.RolUser {
		return errors.New("rol must be admin or user")
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE usuarios SET rol=? WHERE id=?`, rol, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	if passwordHash == "" {
		return errors.New("password_hash required")
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE usuarios SET password_hash=? WHERE id=?`, passwordHash, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
