// Package vigiasdk is a minimal client for the Vigia HTTP API.
package vigiasdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a Vigia server. Set BearerToken after Login, or APIKey
// for non-interactive use.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Semaphore is the derived urgency of an open observation.
type Semaphore struct {
	Level string `json:"nivel"`
	Label string `json:"etiqueta"`
}

// Observation is the API observation model.
type Observation struct {
	ID                 string    `json:"id"`
	Estado             string    `json:"estado"`
	Responsable        string    `json:"responsable"`
	Area               string    `json:"area"`
	EquipoLugar        string    `json:"equipo_lugar"`
	Categoria          string    `json:"categoria"`
	Plazo              string    `json:"plazo"`
	Descripcion        string    `json:"descripcion"`
	EvidenciaURL       *string   `json:"evidencia_url,omitempty"`
	EvidenciaThumbURL  string    `json:"evidencia_thumb_url,omitempty"`
	CreadoPor          string    `json:"creado_por"`
	CreadoEn           string    `json:"creado_en"`
	CierreDescripcion  *string   `json:"cierre_descripcion,omitempty"`
	CierreEvidenciaURL *string   `json:"cierre_evidencia_url,omitempty"`
	CerradoPor         *string   `json:"cerrado_por,omitempty"`
	CerradoEn          *string   `json:"cerrado_en,omitempty"`
	Semaforo           Semaphore `json:"semaforo"`
}

// User is the API profile model.
type User struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	DNI    string `json:"dni,omitempty"`
	Nombre string `json:"nombre"`
	Rol    string `json:"rol"`
}

// Ranking entry of a summary report.
type RankEntry struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Ranking is a truncated leaderboard plus the excluded remainder.
type Ranking struct {
	Top  []RankEntry `json:"top"`
	Rest int         `json:"rest"`
}

// Summary is the dashboard aggregate.
type Summary struct {
	Total            int     `json:"total"`
	Pendientes       int     `json:"pendientes"`
	Cerradas         int     `json:"cerradas"`
	PendientesPorCat struct {
		Bajo  int `json:"bajo"`
		Medio int `json:"medio"`
		Alto  int `json:"alto"`
	} `json:"pendientes_por_categoria"`
	TopAreas        Ranking `json:"top_areas"`
	TopResponsables Ranking `json:"top_responsables"`
}

// TimeSeries carries zero-filled per-period counts.
type TimeSeries struct {
	Labels  []string `json:"labels"`
	Created []int    `json:"created"`
	Closed  []int    `json:"closed"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login authenticates with an email or DNI and stores the bearer token
// on the client for subsequent calls.
func (c *Client) Login(ctx context.Context, login, password string) (User, error) {
	var resp struct {
		Token string `json:"token"`
		User  User   `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "v0/auth/login", map[string]any{
		"login":    login,
		"password": password,
	}, &resp)
	if err != nil {
		return User{}, err
	}
	c.BearerToken = resp.Token
	return resp.User, nil
}

// CreateObservation opens an observation.
func (c *Client) CreateObservation(ctx context.Context, area, equipoLugar, categoria, plazo, descripcion string) (Observation, error) {
	body := map[string]any{
		"area":         area,
		"equipo_lugar": equipoLugar,
		"categoria":    categoria,
		"plazo":        plazo,
		"descripcion":  descripcion,
	}
	var resp Observation
	err := c.do(ctx, http.MethodPost, "v0/observaciones", body, &resp)
	return resp, err
}

// ListFilters narrow ListObservations. Zero values are ignored.
type ListFilters struct {
	Estado    string
	Area      string
	Categoria string
	Mias      bool
}

// ListObservations returns observations with their semaphore.
func (c *Client) ListObservations(ctx context.Context, f ListFilters) ([]Observation, error) {
	q := url.Values{}
	if f.Estado != "" {
		q.Set("estado", f.Estado)
	}
	if f.Area != "" {
		q.Set("area", f.Area)
	}
	if f.Categoria != "" {
		q.Set("categoria", f.Categoria)
	}
	if f.Mias {
		q.Set("mias", "true")
	}
	endpoint := "v0/observaciones"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Observation
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetObservation fetches one observation by id.
func (c *Client) GetObservation(ctx context.Context, id string) (Observation, error) {
	var resp Observation
	err := c.do(ctx, http.MethodGet, "v0/observaciones/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// CloseObservation resolves a pending observation.
func (c *Client) CloseObservation(ctx context.Context, id, descripcion, evidenciaURL string) (Observation, error) {
	body := map[string]any{
		"cierre_descripcion": descripcion,
	}
	if evidenciaURL != "" {
		body["cierre_evidencia_url"] = evidenciaURL
	}
	var resp Observation
	err := c.do(ctx, http.MethodPost, "v0/observaciones/"+url.PathEscape(id)+"/cerrar", body, &resp)
	return resp, err
}

// Summary fetches the dashboard aggregate. from and to are YYYY-MM-DD
// and may be empty.
func (c *Client) Summary(ctx context.Context, from, to string) (Summary, error) {
	q := url.Values{}
	if from != "" {
		q.Set("from", from)
	}
	if to != "" {
		q.Set("to", to)
	}
	endpoint := "v0/reportes/resumen"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp Summary
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Series fetches per-period created and closed counts. unit is day,
// week or month.
func (c *Client) Series(ctx context.Context, unit string) (TimeSeries, error) {
	var resp TimeSeries
	err := c.do(ctx, http.MethodGet, "v0/reportes/series?unidad="+url.QueryEscape(unit), nil, &resp)
	return resp, err
}

// UploadEvidence sends a raw file and returns its stored URL.
func (c *Client) UploadEvidence(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	endpoint := c.base() + "/v0/evidencias?filename=" + url.QueryEscape(filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	c.setAuth(req)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.URL, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) setAuth(req *http.Request) {
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
