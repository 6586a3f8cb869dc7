// Package mirror pushes observation snapshots to an external reporting
// endpoint (typically a spreadsheet bridge). Delivery is best effort:
// failures are logged and never block or roll back the transition that
// triggered them.
package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"vigia/internal/domain"
)

// Actions mirrored to the reporting sheet.
const (
	ActionCreate = "create"
	ActionEdit   = "edit"
	ActionClose  = "close"
)

const defaultTimeout = 5 * time.Second

type Notifier struct {
	URL    string
	Token  string
	Client *http.Client
	Now    func() time.Time
}

func New(url, token string) *Notifier {
	return &Notifier{URL: url, Token: token}
}

type payload struct {
	Action string             `json:"action"`
	Data   domain.Observation `json:"data"`
	Row    []string           `json:"row"`
}

// Notify posts the snapshot to the mirror. It never returns an error;
// a mirror outage must not surface to the caller.
func (n *Notifier) Notify(ctx context.Context, action string, o domain.Observation) {
	if n == nil || strings.TrimSpace(n.URL) == "" {
		return
	}
	if err := n.post(ctx, action, o); err != nil {
		log.Printf("mirror: deliver %s %s failed: %v", action, o.ID, err)
	}
}

func (n *Notifier) post(ctx context.Context, action string, o domain.Observation) error {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	body, err := json.Marshal(payload{
		Action: action,
		Data:   o,
		Row:    Row(now().UTC(), action, o),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Vigia-Action", action)
	if strings.TrimSpace(n.Token) != "" {
		req.Header.Set("Authorization", "Bearer "+n.Token)
	}
	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// Row flattens a snapshot into the fixed 15-column sheet layout.
func Row(ts time.Time, action string, o domain.Observation) []string {
	return []string{
		ts.Format(time.RFC3339),
		action,
		o.ID,
		o.Estado,
		o.Responsable,
		o.Area,
		o.EquipoLugar,
		o.Categoria,
		o.Plazo,
		o.Descripcion,
		o.CreadoPor,
		o.CreadoEn,
		deref(o.CerradoPor),
		deref(o.CerradoEn),
		deref(o.CierreDescripcion),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
