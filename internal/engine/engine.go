package engine

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"vigia/internal/blob"
	"vigia/internal/config"
	"vigia/internal/dateutil"
	"vigia/internal/domain"
	"vigia/internal/engine/authz"
	"vigia/internal/events"
	"vigia/internal/mirror"
	"vigia/internal/repo"
	"vigia/internal/semaphore"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Blobs  blob.Store
	Mirror *mirror.Notifier
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config, blobs blob.Store) Engine {
	e := Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Blobs:  blobs,
		Now:    time.Now,
	}
	if cfg != nil && cfg.Mirror.Enabled {
		e.Mirror = mirror.New(cfg.Mirror.URL, cfg.Mirror.Token)
	}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// ValidationError identifies the offending field so the caller can
// point at the right control.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{Field: field, Reason: "es obligatorio"}
	}
	return nil
}

func validCategoria(c string) error {
	switch c {
	case domain.CategoriaBajo, domain.CategoriaMedio, domain.CategoriaAlto:
		return nil
	}
	return ValidationError{Field: "categoria", Reason: "debe ser bajo, medio o alto"}
}

var dniPattern = regexp.MustCompile(`^\d{6,12}$`)

// LoginDomain is appended to bare DNI logins to synthesize the email
// the identity layer keys on.
const LoginDomain = "observaciones.local"

// NormalizeLogin maps the login field to the email stored in usuarios:
// a bare 6 to 12 digit DNI gets the synthetic domain appended, anything
// else is treated as an email and lower-cased.
func NormalizeLogin(input string) string {
	v := strings.TrimSpace(input)
	if dniPattern.MatchString(v) {
		return fmt.Sprintf("%s@%s", v, LoginDomain)
	}
	return strings.ToLower(v)
}

// Authenticate verifies credentials and returns the matching profile.
// Both an unknown login and a wrong password come back as ErrBadCredentials.
func (e Engine) Authenticate(ctx context.Context, login, password string) (domain.UserProfile, error) {
	email := NormalizeLogin(login)
	if email == "" || password == "" {
		return domain.UserProfile{}, ErrBadCredentials
	}
	u, hash, err := e.Repo.GetUserCredentials(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.UserProfile{}, ErrBadCredentials
	}
	if err != nil {
		return domain.UserProfile{}, err
	}
	if repo.HashSecret(password) != hash {
		return domain.UserProfile{}, ErrBadCredentials
	}
	return u, nil
}

var ErrBadCredentials = errors.New("invalid credentials")

// RegisterUser creates a profile. DNI-only signups get the synthetic
// email derived from the document number.
func (e Engine) RegisterUser(ctx context.Context, u domain.UserProfile, password string) (domain.UserProfile, error) {
	if u.Email == "" && u.DNI != "" {
		u.Email = NormalizeLogin(u.DNI)
	}
	if err := required("email", u.Email); err != nil {
		return domain.UserProfile{}, err
	}
	if err := required("nombre", u.Nombre); err != nil {
		return domain.UserProfile{}, err
	}
	if err := required("password", password); err != nil {
		return domain.UserProfile{}, err
	}
	if u.Rol == "" {
		u.Rol = domain.RolUser
	}
	if u.Rol != domain.RolAdmin && u.Rol != domain.RolUser {
		return domain.UserProfile{}, ValidationError{Field: "rol", Reason: "debe ser admin o user"}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreadoEn = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.UserProfile{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertUser(ctx, tx, u, repo.HashSecret(password)); err != nil {
		return domain.UserProfile{}, fmt.Errorf("insert user: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "user.register", "user", u.ID, u.ID, events.EventPayload{"email": u.Email, "rol": u.Rol}); err != nil {
		return domain.UserProfile{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.UserProfile{}, err
	}
	return u, nil
}

// EvidenceInput carries either an uploaded file or a pasted URL.
type EvidenceInput struct {
	URL         string
	File        []byte
	Filename    string
	ContentType string
}

func (in EvidenceInput) empty() bool {
	return strings.TrimSpace(in.URL) == "" && len(in.File) == 0
}

// resolve uploads the file when present, otherwise returns the URL.
func (e Engine) resolveEvidence(ctx context.Context, actorID string, in EvidenceInput) (string, error) {
	if len(in.File) > 0 {
		if e.Blobs == nil {
			return "", errors.New("blob store not configured")
		}
		key := blob.ObjectKey(actorID, e.now(), in.Filename)
		url, err := e.Blobs.Upload(ctx, key, bytes.NewReader(in.File), in.ContentType)
		if err != nil {
			return "", fmt.Errorf("upload evidence: %w", err)
		}
		return url, nil
	}
	return strings.TrimSpace(in.URL), nil
}

// CreateOptions are parameters for opening an observation.
type CreateOptions struct {
	Area        string
	EquipoLugar string
	Categoria   string
	Plazo       string
	Descripcion string
	Evidence    EvidenceInput
}

func (e Engine) CreateObservation(ctx context.Context, actor domain.Actor, opts CreateOptions) (domain.Observation, error) {
	if err := required("area", opts.Area); err != nil {
		return domain.Observation{}, err
	}
	if err := required("equipo_lugar", opts.EquipoLugar); err != nil {
		return domain.Observation{}, err
	}
	if err := required("plazo", opts.Plazo); err != nil {
		return domain.Observation{}, err
	}
	if err := required("descripcion", opts.Descripcion); err != nil {
		return domain.Observation{}, err
	}
	if err := validCategoria(opts.Categoria); err != nil {
		return domain.Observation{}, err
	}
	if _, ok := dateutil.ParseDueDate(opts.Plazo); !ok {
		return domain.Observation{}, ValidationError{Field: "plazo", Reason: "fecha no reconocida"}
	}
	if e.Config != nil && e.Config.Policy.RequireEvidenceOnCreate && opts.Evidence.empty() {
		return domain.Observation{}, ValidationError{Field: "evidencia", Reason: "es obligatoria"}
	}

	profile, err := e.Repo.GetUser(ctx, actor.ID)
	if err != nil {
		return domain.Observation{}, fmt.Errorf("resolve actor profile: %w", err)
	}

	evidenciaURL, err := e.resolveEvidence(ctx, actor.ID, opts.Evidence)
	if err != nil {
		return domain.Observation{}, err
	}

	o := domain.Observation{
		ID:          uuid.NewString(),
		Estado:      domain.EstadoPendiente,
		Responsable: profile.Nombre,
		Area:        strings.TrimSpace(opts.Area),
		EquipoLugar: strings.TrimSpace(opts.EquipoLugar),
		Categoria:   opts.Categoria,
		Plazo:       strings.TrimSpace(opts.Plazo),
		Descripcion: strings.TrimSpace(opts.Descripcion),
		CreadoPor:   actor.Email,
		CreadoEn:    e.now().UTC().Format(time.RFC3339),
	}
	if evidenciaURL != "" {
		o.EvidenciaURL = &evidenciaURL
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Observation{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertObservation(ctx, tx, o); err != nil {
		return domain.Observation{}, fmt.Errorf("insert observation: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "observation.create", "observation", o.ID, actor.ID, events.EventPayload{"area": o.Area, "categoria": o.Categoria}); err != nil {
		return domain.Observation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Observation{}, err
	}
	e.notifyMirror(ctx, mirror.ActionCreate, o)
	return o, nil
}

// EditOptions are the mutable fields of a pending observation. Nil
// pointers leave the stored value untouched.
type EditOptions struct {
	Area        *string
	EquipoLugar *string
	Categoria   *string
	Plazo       *string
	Descripcion *string
	Evidence    *EvidenceInput
}

func (e Engine) EditObservation(ctx context.Context, actor domain.Actor, id string, opts EditOptions) (domain.Observation, error) {
	o, err := e.Repo.GetObservation(ctx, id)
	if err != nil {
		return domain.Observation{}, err
	}
	if !authz.CanEdit(actor, o) {
		return domain.Observation{}, authz.ForbiddenError{Action: "edit"}
	}
	if opts.Area != nil {
		o.Area = strings.TrimSpace(*opts.Area)
	}
	if opts.EquipoLugar != nil {
		o.EquipoLugar = strings.TrimSpace(*opts.EquipoLugar)
	}
	if opts.Categoria != nil {
		o.Categoria = *opts.Categoria
	}
	if opts.Plazo != nil {
		o.Plazo = strings.TrimSpace(*opts.Plazo)
	}
	if opts.Descripcion != nil {
		o.Descripcion = strings.TrimSpace(*opts.Descripcion)
	}
	if err := required("area", o.Area); err != nil {
		return domain.Observation{}, err
	}
	if err := required("equipo_lugar", o.EquipoLugar); err != nil {
		return domain.Observation{}, err
	}
	if err := required("plazo", o.Plazo); err != nil {
		return domain.Observation{}, err
	}
	if err := required("descripcion", o.Descripcion); err != nil {
		return domain.Observation{}, err
	}
	if err := validCategoria(o.Categoria); err != nil {
		return domain.Observation{}, err
	}
	if _, ok := dateutil.ParseDueDate(o.Plazo); !ok {
		return domain.Observation{}, ValidationError{Field: "plazo", Reason: "fecha no reconocida"}
	}
	if opts.Evidence != nil && !opts.Evidence.empty() {
		url, err := e.resolveEvidence(ctx, actor.ID, *opts.Evidence)
		if err != nil {
			return domain.Observation{}, err
		}
		o.EvidenciaURL = &url
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Observation{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateObservation(ctx, tx, o); err != nil {
		return domain.Observation{}, err
	}
	if err := e.Events.Append(ctx, tx, "observation.edit", "observation", o.ID, actor.ID, nil); err != nil {
		return domain.Observation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Observation{}, err
	}
	e.notifyMirror(ctx, mirror.ActionEdit, o)
	return o, nil
}

// CloseOptions are parameters for the pending to cerrada transition.
type CloseOptions struct {
	Descripcion string
	Evidence    EvidenceInput
}

func (e Engine) CloseObservation(ctx context.Context, actor domain.Actor, id string, opts CloseOptions) (domain.Observation, error) {
	o, err := e.Repo.GetObservation(ctx, id)
	if err != nil {
		return domain.Observation{}, err
	}
	requireOwnership := e.Config != nil && e.Config.Policy.CloseRequiresOwnership
	if !authz.CanClose(actor, o, requireOwnership) {
		return domain.Observation{}, authz.ForbiddenError{Action: "close"}
	}
	if err := required("cierre_descripcion", opts.Descripcion); err != nil {
		return domain.Observation{}, err
	}
	allowURL := e.Config == nil || e.Config.Policy.AllowCloseEvidenceURL
	if len(opts.Evidence.File) == 0 {
		if !allowURL {
			return domain.Observation{}, ValidationError{Field: "cierre_evidencia", Reason: "se requiere un archivo"}
		}
		if strings.TrimSpace(opts.Evidence.URL) == "" {
			return domain.Observation{}, ValidationError{Field: "cierre_evidencia", Reason: "es obligatoria"}
		}
	}
	evidenciaURL, err := e.resolveEvidence(ctx, actor.ID, opts.Evidence)
	if err != nil {
		return domain.Observation{}, err
	}

	closure := repo.Closure{
		Descripcion:  strings.TrimSpace(opts.Descripcion),
		EvidenciaURL: evidenciaURL,
		CerradoPor:   actor.Email,
		CerradoEn:    e.now().UTC().Format(time.RFC3339),
	}
	ownerEmail := ""
	if requireOwnership && !actor.Admin() {
		ownerEmail = actor.Email
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Observation{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.CloseObservation(ctx, tx, id, closure, ownerEmail); err != nil {
		return domain.Observation{}, err
	}
	if err := e.Events.Append(ctx, tx, "observation.close", "observation", id, actor.ID, events.EventPayload{"cerrado_por": actor.Email}); err != nil {
		return domain.Observation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Observation{}, err
	}

	o.Estado = domain.EstadoCerrada
	o.CierreDescripcion = &closure.Descripcion
	o.CierreEvidenciaURL = &closure.EvidenciaURL
	o.CerradoPor = &closure.CerradoPor
	o.CerradoEn = &closure.CerradoEn
	e.notifyMirror(ctx, mirror.ActionClose, o)
	return o, nil
}

func (e Engine) DeleteObservation(ctx context.Context, actor domain.Actor, id string) error {
	o, err := e.Repo.GetObservation(ctx, id)
	if err != nil {
		return err
	}
	if !authz.CanDelete(actor, o) {
		return authz.ForbiddenError{Action: "delete"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteObservation(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "observation.delete", "observation", id, actor.ID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// UploadEvidence stores a raw file under the actor's prefix and returns
// the public URL to reference from create or close payloads.
func (e Engine) UploadEvidence(ctx context.Context, actor domain.Actor, data []byte, filename, contentType string) (string, error) {
	if len(data) == 0 {
		return "", ValidationError{Field: "file", Reason: "es obligatorio"}
	}
	return e.resolveEvidence(ctx, actor.ID, EvidenceInput{
		File:        data,
		Filename:    filename,
		ContentType: contentType,
	})
}

// CreateAPIKey mints a key for the given user and returns the record plus
// the plaintext secret. Only the hash is persisted; the secret is shown once.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name string) (domain.APIKey, string, error) {
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return domain.APIKey{}, "", err
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", err
	}
	secret := "vg_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:       uuid.NewString(),
		UserID:   userID,
		Name:     strings.TrimSpace(name),
		KeyHash:  repo.HashSecret(secret),
		CreadoEn: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.Events.Append(ctx, tx, "apikey.create", "api_key", key.ID, userID, events.EventPayload{"name": key.Name}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, secret, nil
}

func (e Engine) notifyMirror(ctx context.Context, action string, o domain.Observation) {
	if e.Mirror == nil {
		return
	}
	e.Mirror.Notify(ctx, action, o)
}

// ObservationView is a stored record plus its derived urgency, as the
// listing surfaces present it.
type ObservationView struct {
	domain.Observation
	Semaforo semaphore.Result `json:"semaforo"`
}

func (e Engine) warnRatio() float64 {
	if e.Config != nil && e.Config.Policy.WarnRatio > 0 {
		return e.Config.Policy.WarnRatio
	}
	return semaphore.DefaultWarnRatio
}

// Classify derives the semaphore for one record at the engine's current
// time. Closed records are always verde; urgency only tracks open work.
func (e Engine) Classify(o domain.Observation) semaphore.Result {
	if o.Closed() {
		return semaphore.Result{Level: semaphore.Verde, Label: semaphore.LabelEnTiempo}
	}
	created, _ := time.Parse(time.RFC3339, o.CreadoEn)
	return semaphore.ClassifyRatio(created.Local(), o.Plazo, e.now(), e.warnRatio())
}

// ListObservations returns records with their semaphore attached.
func (e Engine) ListObservations(ctx context.Context, f repo.ObservationFilters) ([]ObservationView, error) {
	items, err := e.Repo.ListObservations(ctx, f)
	if err != nil {
		return nil, err
	}
	views := make([]ObservationView, 0, len(items))
	for _, o := range items {
		views = append(views, ObservationView{Observation: o, Semaforo: e.Classify(o)})
	}
	return views, nil
}

// GetObservation returns one record with its semaphore attached.
func (e Engine) GetObservation(ctx context.Context, id string) (ObservationView, error) {
	o, err := e.Repo.GetObservation(ctx, id)
	if err != nil {
		return ObservationView{}, err
	}
	return ObservationView{Observation: o, Semaforo: e.Classify(o)}, nil
}
