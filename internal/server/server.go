// Package server exposes the observation engine over HTTP with an
// OpenAPI description.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"vigia/internal/blob"
	"vigia/internal/engine"
	"vigia/internal/engine/authz"
	"vigia/internal/repo"
	"vigia/internal/report"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"forbidden"`
	Message string         `json:"message" example:"not authorized to close"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"field\":\"plazo\"}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Vigia API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Vigia API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerAuth(group, cfg.Engine, cfg.Auth)
	registerPublic(group, cfg.Engine)
	registerObservations(group, cfg.Engine)
	registerEvidence(group, cfg.Engine)
	registerReports(group, cfg.Engine)
	registerUsers(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "validation_failed", err.Error(), map[string]any{"field": ve.Field, "reason": ve.Reason})
	}
	var fe authz.ForbiddenError
	if errors.As(err, &fe) {
		// Deliberately generic: do not leak which check failed.
		return newAPIError(http.StatusForbidden, "forbidden", "no autorizado", nil)
	}
	if errors.Is(err, engine.ErrBadCredentials) {
		return newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func requireAdmin(ctx context.Context) huma.StatusError {
	actor, authErr := actorFromContext(ctx)
	if authErr != nil {
		return authErr
	}
	if !actor.Admin() {
		return newAPIError(http.StatusForbidden, "forbidden", "no autorizado", nil)
	}
	return nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if publicPath(basePath, route) {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Vigia API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerAuth(api huma.API, e engine.Engine, auth AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Login with email or DNI",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body LoginResponse `json:"body"`
	}, error) {
		u, err := e.Authenticate(ctx, input.Body.Login, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		now := time.Now()
		if e.Now != nil {
			now = e.Now()
		}
		token, err := auth.IssueToken(u, now)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LoginResponse `json:"body"`
		}{Body: LoginResponse{Token: token, User: userResponse(u)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current profile",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.Repo.GetUser(ctx, actor.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})
}

// registerPublic exposes the read-only board shown on the plant floor.
func registerPublic(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "public-list-observations",
		Method:      http.MethodGet,
		Path:        "/publico/observaciones",
		Summary:     "Public observation board",
	}, func(ctx context.Context, input *struct {
		Estado string `query:"estado" enum:"pendiente,cerrada,all" default:"all"`
	}) (*struct {
		Body []ObservationResponse `json:"body"`
	}, error) {
		f := repo.ObservationFilters{}
		if input.Estado != "" && input.Estado != report.StatusAll {
			f.Estado = input.Estado
		}
		items, err := e.ListObservations(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ObservationResponse `json:"body"`
		}{Body: mapObservations(items)}, nil
	})
}

func registerObservations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-observation",
		Method:        http.MethodPost,
		Path:          "/observaciones",
		Summary:       "Open an observation",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateObservationRequest `json:"body"`
	}) (*struct {
		Body ObservationResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.CreateObservation(ctx, actor, engine.CreateOptions{
			Area:        input.Body.Area,
			EquipoLugar: input.Body.EquipoLugar,
			Categoria:   input.Body.Categoria,
			Plazo:       input.Body.Plazo,
			Descripcion: input.Body.Descripcion,
			Evidence:    engine.EvidenceInput{URL: input.Body.EvidenciaURL},
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ObservationResponse `json:"body"`
		}{Body: observationResponse(engine.ObservationView{Observation: o, Semaforo: e.Classify(o)})}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-observations",
		Method:      http.MethodGet,
		Path:        "/observaciones",
		Summary:     "List observations",
	}, func(ctx context.Context, input *struct {
		Estado    string `query:"estado" enum:"pendiente,cerrada,all" default:"all"`
		Area      string `query:"area"`
		Categoria string `query:"categoria" enum:"bajo,medio,alto,"`
		Mias      bool   `query:"mias" doc:"Only records created by the caller"`
		Limit     int    `query:"limit" minimum:"0"`
	}) (*struct {
		Body []ObservationResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f := repo.ObservationFilters{
			Area:      input.Area,
			Categoria: input.Categoria,
			Limit:     input.Limit,
		}
		if input.Estado != "" && input.Estado != report.StatusAll {
			f.Estado = input.Estado
		}
		if input.Mias {
			f.CreadoPor = actor.Email
		}
		items, err := e.ListObservations(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ObservationResponse `json:"body"`
		}{Body: mapObservations(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-observation",
		Method:      http.MethodGet,
		Path:        "/observaciones/{id}",
		Summary:     "Get observation",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ObservationResponse `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		v, err := e.GetObservation(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ObservationResponse `json:"body"`
		}{Body: observationResponse(v)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "edit-observation",
		Method:      http.MethodPatch,
		Path:        "/observaciones/{id}",
		Summary:     "Edit a pending observation",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string                 `path:"id"`
		Body EditObservationRequest `json:"body"`
	}) (*struct {
		Body ObservationResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.EditOptions{
			Area:        input.Body.Area,
			EquipoLugar: input.Body.EquipoLugar,
			Categoria:   input.Body.Categoria,
			Plazo:       input.Body.Plazo,
			Descripcion: input.Body.Descripcion,
		}
		if input.Body.EvidenciaURL != nil {
			opts.Evidence = &engine.EvidenceInput{URL: *input.Body.EvidenciaURL}
		}
		o, err := e.EditObservation(ctx, actor, input.ID, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ObservationResponse `json:"body"`
		}{Body: observationResponse(engine.ObservationView{Observation: o, Semaforo: e.Classify(o)})}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-observation",
		Method:      http.MethodPost,
		Path:        "/observaciones/{id}/cerrar",
		Summary:     "Close a pending observation",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string                  `path:"id"`
		Body CloseObservationRequest `json:"body"`
	}) (*struct {
		Body ObservationResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.CloseObservation(ctx, actor, input.ID, engine.CloseOptions{
			Descripcion: input.Body.CierreDescripcion,
			Evidence:    engine.EvidenceInput{URL: input.Body.CierreEvidenciaURL},
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ObservationResponse `json:"body"`
		}{Body: observationResponse(engine.ObservationView{Observation: o, Semaforo: e.Classify(o)})}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-observation",
		Method:      http.MethodDelete,
		Path:        "/observaciones/{id}",
		Summary:     "Delete a closed observation",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteObservation(ctx, actor, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

// registerEvidence accepts a raw file body and returns the stored URL,
// which the client then references from create or close payloads.
func registerEvidence(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "upload-evidence",
		Method:      http.MethodPost,
		Path:        "/evidencias",
		Summary:     "Upload an evidence photo",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Filename    string `query:"filename"`
		ContentType string `header:"Content-Type"`
		RawBody     []byte
	}) (*struct {
		Body EvidenceResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if len(input.RawBody) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "file body required", nil)
		}
		url, err := e.UploadEvidence(ctx, actor, input.RawBody, input.Filename, input.ContentType)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EvidenceResponse `json:"body"`
		}{Body: EvidenceResponse{URL: url, ThumbURL: blob.ThumbURL(url, 160)}}, nil
	})
}

func registerReports(api huma.API, e engine.Engine) {
	type reportQuery struct {
		From       string   `query:"from" doc:"YYYY-MM-DD inclusive"`
		To         string   `query:"to" doc:"YYYY-MM-DD, end of day inclusive"`
		Areas      []string `query:"area"`
		Categorias []string `query:"categoria"`
		Estado     string   `query:"estado" enum:"pendiente,cerrada,all" default:"all"`
	}
	toFilter := func(q reportQuery) report.Filter {
		return report.Filter{
			From:       q.From,
			To:         q.To,
			Areas:      q.Areas,
			Categories: q.Categorias,
			Status:     q.Estado,
		}
	}

	huma.Register(api, huma.Operation{
		OperationID: "report-summary",
		Method:      http.MethodGet,
		Path:        "/reportes/resumen",
		Summary:     "Dashboard summary",
	}, func(ctx context.Context, input *struct {
		reportQuery
		Top int `query:"top" default:"5" minimum:"1"`
	}) (*struct {
		Body report.Summary `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		s, err := e.Summary(ctx, toFilter(input.reportQuery), input.Top)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body report.Summary `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "report-series",
		Method:      http.MethodGet,
		Path:        "/reportes/series",
		Summary:     "Created and closed counts per period",
	}, func(ctx context.Context, input *struct {
		reportQuery
		Unidad string `query:"unidad" enum:"day,week,month" default:"day"`
	}) (*struct {
		Body report.TimeSeries `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		ts, err := e.Series(ctx, toFilter(input.reportQuery), report.Unit(input.Unidad))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body report.TimeSeries `json:"body"`
		}{Body: ts}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/usuarios",
		Summary:       "Register a user",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		if authErr := requireAdmin(ctx); authErr != nil {
			return nil, authErr
		}
		u, err := e.RegisterUser(ctx, domainUser(input.Body), input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/usuarios",
		Summary:     "List users",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []UserResponse `json:"body"`
	}, error) {
		if authErr := requireAdmin(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListUsers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []UserResponse `json:"body"`
		}{Body: mapUsers(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-user-role",
		Method:      http.MethodPatch,
		Path:        "/usuarios/{id}/rol",
		Summary:     "Change a user's role",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body struct {
			Rol string `json:"rol" enum:"admin,user"`
		} `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		if authErr := requireAdmin(ctx); authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.UpdateUserRole(ctx, input.ID, input.Body.Rol); err != nil {
			return nil, handleError(err)
		}
		u, err := e.Repo.GetUser(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Create an API key",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body struct {
			UserID string `json:"user_id,omitempty" doc:"Defaults to the caller"`
			Name   string `json:"name,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		if authErr := requireAdmin(ctx); authErr != nil {
			return nil, authErr
		}
		actor, _ := actorFromContext(ctx)
		userID := input.Body.UserID
		if userID == "" {
			userID = actor.ID
		}
		key, plaintext, err := e.CreateAPIKey(ctx, userID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		res := apiKeyResponse(key)
		res.Key = plaintext
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List API keys",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		UserID string `query:"user_id"`
	}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		if authErr := requireAdmin(ctx); authErr != nil {
			return nil, authErr
		}
		keys, err := e.Repo.ListAPIKeys(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			res = append(res, apiKeyResponse(k))
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/api-keys/{id}",
		Summary:     "Delete an API key",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if authErr := requireAdmin(ctx); authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/eventos",
		Summary:     "Audit log",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Limit    int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
		Type     string `query:"type"`
		EntityID string `query:"entity_id"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		if authErr := requireAdmin(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.LatestEvents(ctx, input.Limit, input.Type, "", input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})
}
