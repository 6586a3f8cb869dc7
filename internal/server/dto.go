package server

import (
	"vigia/internal/blob"
	"vigia/internal/domain"
	"vigia/internal/engine"
	"vigia/internal/semaphore"
)

type LoginRequest struct {
	Login    string `json:"login" doc:"Email or DNI" example:"12345678"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type UserResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	DNI      string `json:"dni,omitempty"`
	Nombre   string `json:"nombre"`
	Rol      string `json:"rol" enum:"admin,user"`
	CreadoEn string `json:"creado_en"`
}

func userResponse(u domain.UserProfile) UserResponse {
	return UserResponse{
		ID:       u.ID,
		Email:    u.Email,
		DNI:      u.DNI,
		Nombre:   u.Nombre,
		Rol:      u.Rol,
		CreadoEn: u.CreadoEn,
	}
}

func mapUsers(items []domain.UserProfile) []UserResponse {
	res := make([]UserResponse, 0, len(items))
	for _, u := range items {
		res = append(res, userResponse(u))
	}
	return res
}

type CreateUserRequest struct {
	Email    string `json:"email,omitempty" format:"email"`
	DNI      string `json:"dni,omitempty"`
	Nombre   string `json:"nombre"`
	Rol      string `json:"rol,omitempty" enum:"admin,user"`
	Password string `json:"password"`
}

func domainUser(req CreateUserRequest) domain.UserProfile {
	return domain.UserProfile{
		Email:  req.Email,
		DNI:    req.DNI,
		Nombre: req.Nombre,
		Rol:    req.Rol,
	}
}

type ObservationResponse struct {
	ID                 string           `json:"id"`
	Estado             string           `json:"estado" enum:"pendiente,cerrada"`
	Responsable        string           `json:"responsable"`
	Area               string           `json:"area"`
	EquipoLugar        string           `json:"equipo_lugar"`
	Categoria          string           `json:"categoria" enum:"bajo,medio,alto"`
	Plazo              string           `json:"plazo"`
	Descripcion        string           `json:"descripcion"`
	EvidenciaURL       *string          `json:"evidencia_url,omitempty"`
	EvidenciaThumbURL  string           `json:"evidencia_thumb_url,omitempty"`
	CreadoPor          string           `json:"creado_por"`
	CreadoEn           string           `json:"creado_en"`
	CierreDescripcion  *string          `json:"cierre_descripcion,omitempty"`
	CierreEvidenciaURL *string          `json:"cierre_evidencia_url,omitempty"`
	CerradoPor         *string          `json:"cerrado_por,omitempty"`
	CerradoEn          *string          `json:"cerrado_en,omitempty"`
	Semaforo           semaphore.Result `json:"semaforo"`
}

func observationResponse(v engine.ObservationView) ObservationResponse {
	res := ObservationResponse{
		ID:                 v.ID,
		Estado:             v.Estado,
		Responsable:        v.Responsable,
		Area:               v.Area,
		EquipoLugar:        v.EquipoLugar,
		Categoria:          v.Categoria,
		Plazo:              v.Plazo,
		Descripcion:        v.Descripcion,
		EvidenciaURL:       v.EvidenciaURL,
		CreadoPor:          v.CreadoPor,
		CreadoEn:           v.CreadoEn,
		CierreDescripcion:  v.CierreDescripcion,
		CierreEvidenciaURL: v.CierreEvidenciaURL,
		CerradoPor:         v.CerradoPor,
		CerradoEn:          v.CerradoEn,
		Semaforo:           v.Semaforo,
	}
	if v.EvidenciaURL != nil {
		res.EvidenciaThumbURL = blob.ThumbURL(*v.EvidenciaURL, 160)
	}
	return res
}

func mapObservations(items []engine.ObservationView) []ObservationResponse {
	res := make([]ObservationResponse, 0, len(items))
	for _, v := range items {
		res = append(res, observationResponse(v))
	}
	return res
}

type CreateObservationRequest struct {
	Area         string `json:"area,omitempty"`
	EquipoLugar  string `json:"equipo_lugar,omitempty"`
	Categoria    string `json:"categoria,omitempty"`
	Plazo        string `json:"plazo,omitempty" doc:"Due date, YYYY-MM-DD or DD/MM/YYYY"`
	Descripcion  string `json:"descripcion,omitempty"`
	EvidenciaURL string `json:"evidencia_url,omitempty"`
}

type EditObservationRequest struct {
	Area         *string `json:"area,omitempty"`
	EquipoLugar  *string `json:"equipo_lugar,omitempty"`
	Categoria    *string `json:"categoria,omitempty" enum:"bajo,medio,alto"`
	Plazo        *string `json:"plazo,omitempty"`
	Descripcion  *string `json:"descripcion,omitempty"`
	EvidenciaURL *string `json:"evidencia_url,omitempty"`
}

type CloseObservationRequest struct {
	CierreDescripcion  string `json:"cierre_descripcion,omitempty"`
	CierreEvidenciaURL string `json:"cierre_evidencia_url,omitempty"`
}

type EvidenceResponse struct {
	URL      string `json:"url"`
	ThumbURL string `json:"thumb_url"`
}

type APIKeyResponse struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Name     string `json:"name,omitempty"`
	CreadoEn string `json:"creado_en"`
	// Key is only populated at creation time; the server stores a hash.
	Key string `json:"key,omitempty"`
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, UserID: k.UserID, Name: k.Name, CreadoEn: k.CreadoEn}
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

func mapEvents(items []domain.Event) []EventResponse {
	res := make([]EventResponse, 0, len(items))
	for _, e := range items {
		res = append(res, EventResponse{
			ID:         e.ID,
			TS:         e.TS,
			Type:       e.Type,
			EntityKind: e.EntityKind,
			EntityID:   e.EntityID,
			ActorID:    e.ActorID,
			Payload:    e.Payload,
		})
	}
	return res
}
