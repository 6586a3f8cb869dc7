package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"vigia/internal/blob"
	"vigia/internal/config"
	"vigia/internal/db"
	"vigia/internal/domain"
	"vigia/internal/engine"
	"vigia/internal/migrate"
)

type testServer struct {
	URL        string
	client     *http.Client
	close      func()
	AdminToken string
	UserToken  string
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default("planta-1")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg, blob.NewMemory())
	ctx := context.Background()
	if _, err := e.RegisterUser(ctx, domain.UserProfile{Email: "admin@planta.pe", Nombre: "Admin", Rol: domain.RolAdmin}, "admin-secret"); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	if _, err := e.RegisterUser(ctx, domain.UserProfile{DNI: "12345678", Nombre: "Operario"}, "user-secret"); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: "test-secret"},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	testSrv.AdminToken = login(t, testSrv, "admin@planta.pe", "admin-secret")
	testSrv.UserToken = login(t, testSrv, "12345678", "user-secret")
	return testSrv, func() { testSrv.Close() }
}

func login(t *testing.T, srv *testServer, loginField, password string) string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/login", map[string]any{
		"login":    loginField,
		"password": password,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login %s status %d: %s", loginField, res.StatusCode, string(data))
	}
	var body LoginResponse
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	if body.Token == "" {
		t.Fatalf("empty token for %s", loginField)
	}
	return body.Token
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createObservation(t *testing.T, srv *testServer, token string) ObservationResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/observaciones", map[string]any{
		"area":         "chancado",
		"equipo_lugar": "Faja 3",
		"categoria":    "alto",
		"plazo":        "2030-06-15",
		"descripcion":  "Baranda suelta en plataforma",
	}, bearer(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var o ObservationResponse
	if err := json.Unmarshal(data, &o); err != nil {
		t.Fatalf("unmarshal observation: %v", err)
	}
	return o
}

func TestObservationLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	created := createObservation(t, srv, srv.UserToken)
	if created.Estado != domain.EstadoPendiente {
		t.Fatalf("expected pendiente, got %s", created.Estado)
	}
	if created.Responsable != "Operario" {
		t.Fatalf("responsable should come from the profile, got %q", created.Responsable)
	}
	if created.Semaforo.Level != "verde" {
		t.Fatalf("far-future due date should be verde, got %s", created.Semaforo.Level)
	}

	closeRes, closeBody := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/observaciones/"+created.ID+"/cerrar", map[string]any{
		"cierre_descripcion":   "Se fijó la baranda",
		"cierre_evidencia_url": "https://fotos.planta.pe/cierre.jpg",
	}, bearer(srv.AdminToken))
	if closeRes.StatusCode != http.StatusOK {
		t.Fatalf("close status %d: %s", closeRes.StatusCode, string(closeBody))
	}
	var closed ObservationResponse
	if err := json.Unmarshal(closeBody, &closed); err != nil {
		t.Fatalf("unmarshal closed: %v", err)
	}
	if closed.Estado != domain.EstadoCerrada {
		t.Fatalf("expected cerrada, got %s", closed.Estado)
	}
	if closed.CierreDescripcion == nil || closed.CerradoPor == nil || closed.CerradoEn == nil {
		t.Fatalf("closure fields must be populated: %s", string(closeBody))
	}

	again, againBody := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/observaciones/"+created.ID+"/cerrar", map[string]any{
		"cierre_descripcion": "doble cierre",
	}, bearer(srv.AdminToken))
	if again.StatusCode != http.StatusForbidden {
		t.Fatalf("second close should be 403, got %d: %s", again.StatusCode, string(againBody))
	}
}

func TestCreateValidation(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/observaciones", map[string]any{
		"area":         "chancado",
		"equipo_lugar": "Faja 3",
		"categoria":    "alto",
		"plazo":        "2030-06-15",
	}, bearer(srv.UserToken))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "validation_failed" {
		t.Fatalf("expected validation_failed, got %q: %s", envelope.Error.Code, string(data))
	}
	if envelope.Error.Details["field"] != "descripcion" {
		t.Fatalf("expected field descripcion, got %v", envelope.Error.Details["field"])
	}
}

func TestEditForbiddenForBystander(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	created := createObservation(t, srv, srv.UserToken)

	regRes, regBody := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/usuarios", map[string]any{
		"email":    "otro@planta.pe",
		"nombre":   "Otro",
		"password": "otro-secret",
	}, bearer(srv.AdminToken))
	if regRes.StatusCode != http.StatusCreated {
		t.Fatalf("register bystander status %d: %s", regRes.StatusCode, string(regBody))
	}
	bystanderToken := login(t, srv, "otro@planta.pe", "otro-secret")

	res, data := doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v0/observaciones/"+created.ID, map[string]any{
		"descripcion": "cambio ajeno",
	}, bearer(bystanderToken))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v0/observaciones/"+created.ID, map[string]any{
		"descripcion": "cambio propio",
	}, bearer(srv.UserToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("creator edit should pass, got %d: %s", res.StatusCode, string(data))
	}
}

func TestPublicBoardNeedsNoAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	createObservation(t, srv, srv.UserToken)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/publico/observaciones", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("public board status %d: %s", res.StatusCode, string(data))
	}
	var items []ObservationResponse
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatalf("unmarshal board: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 record, got %d", len(items))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/observaciones", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("private listing without auth should be 401, got %d: %s", res.StatusCode, string(data))
	}
}

func TestReportsSummary(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	createObservation(t, srv, srv.UserToken)
	createObservation(t, srv, srv.UserToken)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/reportes/resumen?estado=all", nil, bearer(srv.UserToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("summary status %d: %s", res.StatusCode, string(data))
	}
	var summary struct {
		Total      int `json:"total"`
		Pendientes int `json:"pendientes"`
	}
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if summary.Total != 2 || summary.Pendientes != 2 {
		t.Fatalf("expected 2 pending of 2, got %+v", summary)
	}
}

func TestAdminGates(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/usuarios", nil, bearer(srv.UserToken))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("user listing should be admin only, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/usuarios", nil, bearer(srv.AdminToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin listing status %d: %s", res.StatusCode, string(data))
	}
	var users []UserResponse
	if err := json.Unmarshal(data, &users); err != nil {
		t.Fatalf("unmarshal users: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 seeded users, got %d", len(users))
	}
}

func TestAPIKeyRoundTrip(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/api-keys", map[string]any{
		"name": "kiosk",
	}, bearer(srv.AdminToken))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key status %d: %s", res.StatusCode, string(data))
	}
	var created APIKeyResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if created.Key == "" {
		t.Fatalf("plaintext key must be returned once: %s", string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/observaciones", nil, map[string]string{"X-Api-Key": created.Key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("api key auth status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/api-keys", nil, bearer(srv.AdminToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list keys status %d: %s", res.StatusCode, string(data))
	}
	var listed []APIKeyResponse
	if err := json.Unmarshal(data, &listed); err != nil {
		t.Fatalf("unmarshal keys: %v", err)
	}
	if len(listed) != 1 || listed[0].Key != "" {
		t.Fatalf("listing must not expose the plaintext key: %s", string(data))
	}
}

func TestNotFoundEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/observaciones/no-such-id", nil, bearer(srv.UserToken))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("expected not_found, got %q", envelope.Error.Code)
	}
}
