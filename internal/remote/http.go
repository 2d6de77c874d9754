package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agendae/fieldsync/internal/model"
)

// Client is the HTTP implementation of Backend against the REST row
// service. Records live under /api/collections/{name}/records; binary
// objects under /api/files/{bucket}/{path}.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *slog.Logger
}

// NewClient builds a backend client. timeout bounds each round-trip; a
// timed-out call classifies as a connectivity failure and falls back to
// queuing, per the engine's error taxonomy.
func NewClient(baseURL, token string, timeout time.Duration, log *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// listResponse is the envelope for collection queries.
type listResponse struct {
	Items []json.RawMessage `json:"items"`
}

func (c *Client) QueryAppointments(ctx context.Context, filter Filter) ([]model.Appointment, error) {
	const op = "query appointments"

	q := url.Values{}
	q.Set("consultant", filter.Consultant)
	if !filter.From.IsZero() {
		q.Set("from", filter.From.UTC().Format(time.RFC3339))
	}
	if !filter.To.IsZero() {
		q.Set("to", filter.To.UTC().Format(time.RFC3339))
	}

	body, err := c.do(ctx, op, http.MethodGet, "/api/collections/appointments/records?"+q.Encode(), nil, "")
	if err != nil {
		return nil, err
	}

	var list listResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, &Error{Kind: KindRemote, Op: op, Message: "undecodable response", Err: err}
	}

	appointments := make([]model.Appointment, 0, len(list.Items))
	for _, raw := range list.Items {
		appt, err := model.DecodeAppointment(raw)
		if err != nil {
			return nil, &Error{Kind: KindRemote, Op: op, Err: err}
		}
		appointments = append(appointments, appt)
	}
	return appointments, nil
}

func (c *Client) InsertAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	const op = "insert appointment"

	// Local bookkeeping never leaves the device. The backend issues the
	// identifier.
	appt.ID = ""
	appt.PendingSync = false
	appt.LocalCreatedAt = 0

	payload, err := json.Marshal(appt)
	if err != nil {
		return model.Appointment{}, &Error{Kind: KindRemote, Op: op, Err: err}
	}

	body, err := c.do(ctx, op, http.MethodPost, "/api/collections/appointments/records", payload, "application/json")
	if err != nil {
		return model.Appointment{}, err
	}

	created, err := model.DecodeAppointment(body)
	if err != nil {
		return model.Appointment{}, &Error{Kind: KindRemote, Op: op, Err: err}
	}
	return created, nil
}

func (c *Client) UpdateAppointment(ctx context.Context, id string, changes map[string]any) (model.Appointment, error) {
	const op = "update appointment"

	payload, err := json.Marshal(changes)
	if err != nil {
		return model.Appointment{}, &Error{Kind: KindRemote, Op: op, Err: err}
	}

	body, err := c.do(ctx, op, http.MethodPatch, "/api/collections/appointments/records/"+url.PathEscape(id), payload, "application/json")
	if err != nil {
		return model.Appointment{}, err
	}

	updated, err := model.DecodeAppointment(body)
	if err != nil {
		return model.Appointment{}, &Error{Kind: KindRemote, Op: op, Err: err}
	}
	return updated, nil
}

func (c *Client) QueryCompanies(ctx context.Context, consultant string) ([]model.Company, error) {
	const op = "query companies"

	q := url.Values{}
	q.Set("consultant", consultant)
	body, err := c.do(ctx, op, http.MethodGet, "/api/collections/companies/records?"+q.Encode(), nil, "")
	if err != nil {
		return nil, err
	}

	var list listResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, &Error{Kind: KindRemote, Op: op, Message: "undecodable response", Err: err}
	}

	companies := make([]model.Company, 0, len(list.Items))
	for _, raw := range list.Items {
		var company model.Company
		if err := json.Unmarshal(raw, &company); err != nil {
			return nil, &Error{Kind: KindRemote, Op: op, Err: err}
		}
		companies = append(companies, company)
	}
	return companies, nil
}

func (c *Client) UploadObject(ctx context.Context, bucket, path string, data []byte, mimeType string) (string, error) {
	const op = "upload object"

	body, err := c.do(ctx, op, http.MethodPost, "/api/files/"+url.PathEscape(bucket)+"/"+path, data, mimeType)
	if err != nil {
		return "", err
	}

	var resp struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &Error{Kind: KindRemote, Op: op, Message: "undecodable response", Err: err}
	}
	if resp.Path == "" {
		return "", &Error{Kind: KindRemote, Op: op, Message: "upload response missing path"}
	}
	return resp.Path, nil
}

func (c *Client) InsertMediaRecord(ctx context.Context, rec MediaRecord) error {
	const op = "insert media record"

	payload, err := json.Marshal(rec)
	if err != nil {
		return &Error{Kind: KindRemote, Op: op, Err: err}
	}
	_, err = c.do(ctx, op, http.MethodPost, "/api/collections/media/records", payload, "application/json")
	return err
}

func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, "health", http.MethodGet, "/api/health", nil, "")
	return err
}

// do performs one request and classifies the outcome. Transport errors
// (dial, TLS, timeout) are connectivity; 4xx is validation; 5xx and
// undecodable responses are remote failures.
func (c *Client) do(ctx context.Context, op, method, path string, body []byte, contentType string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &Error{Kind: KindRemote, Op: op, Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindConnectivity, Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindConnectivity, Op: op, Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &Error{Kind: KindValidation, Op: op, Status: resp.StatusCode, Message: errorMessage(data)}
	case resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		// The backend itself never answered; some intermediary did.
		return nil, &Error{Kind: KindConnectivity, Op: op, Status: resp.StatusCode, Message: errorMessage(data)}
	default:
		return nil, &Error{Kind: KindRemote, Op: op, Status: resp.StatusCode, Message: errorMessage(data)}
	}
}

func errorMessage(body []byte) string {
	var resp struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err == nil && resp.Message != "" {
		return resp.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		msg = "no response body"
	}
	return msg
}

var _ Backend = (*Client)(nil)

// String renders the target for logs without leaking the token.
func (c *Client) String() string {
	return fmt.Sprintf("remote[%s]", c.baseURL)
}
