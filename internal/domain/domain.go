package domain

// Observation states. Wire values keep the site's Spanish vocabulary.
const (
	EstadoPendiente = "pendiente"
	EstadoCerrada   = "cerrada"
)

// Risk categories (severity).
const (
	CategoriaBajo  = "bajo"
	CategoriaMedio = "medio"
	CategoriaAlto  = "alto"
)

// User roles.
const (
	RolAdmin = "admin"
	RolUser  = "user"
)

type Observation struct {
	ID          string `json:"id"`
	Estado      string `json:"estado" enum:"pendiente,cerrada"`
	Responsable string `json:"responsable"`
	Area        string `json:"area"`
	EquipoLugar string `json:"equipo_lugar"`
	Categoria   string `json:"categoria" enum:"bajo,medio,alto"`
	// Plazo is the due date. Canonically YYYY-MM-DD but historical rows
	// carry DD/MM/YYYY or full ISO timestamps; consumers parse defensively.
	Plazo        string  `json:"plazo"`
	Descripcion  string  `json:"descripcion"`
	EvidenciaURL *string `json:"evidencia_url,omitempty"`

	CreadoPor string `json:"creado_por"`
	CreadoEn  string `json:"creado_en" format:"date-time"`

	CierreDescripcion  *string `json:"cierre_descripcion,omitempty"`
	CierreEvidenciaURL *string `json:"cierre_evidencia_url,omitempty"`
	CerradoPor         *string `json:"cerrado_por,omitempty"`
	CerradoEn          *string `json:"cerrado_en,omitempty" format:"date-time"`
}

// Pending reports whether the observation is still open.
func (o Observation) Pending() bool { return o.Estado == EstadoPendiente }

// Closed reports whether the observation has been resolved.
func (o Observation) Closed() bool { return o.Estado == EstadoCerrada }

// UserProfile is an authenticated identity. Login is by DNI (synthesized
// into an email) or a plain email; the profile row is the source of truth
// for role and display name.
type UserProfile struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	DNI      string `json:"dni,omitempty"`
	Nombre   string `json:"nombre"`
	Rol      string `json:"rol" enum:"admin,user"`
	CreadoEn string `json:"creado_en" format:"date-time"`
}

// Actor is the identity attached to a request, as far as authorization
// cares: an opaque id, an email and a role. How the email was synthesized
// (DNI@domain or a real address) is the identity provider's business.
type Actor struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Rol   string `json:"rol" enum:"admin,user"`
}

// Admin reports whether the actor holds the admin role.
func (a Actor) Admin() bool { return a.Rol == RolAdmin }

// Event is one audit-log row.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIKey authenticates non-interactive clients (report exporters, kiosks).
type APIKey struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Name     string `json:"name,omitempty"`
	KeyHash  string `json:"key_hash"`
	CreadoEn string `json:"creado_en" format:"date-time"`
}
