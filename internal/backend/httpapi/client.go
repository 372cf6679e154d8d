// Package httpapi implements backend.Client over the platform's JSON HTTP
// API. Requests carry an opaque bearer token supplied at construction; the
// engine never inspects it.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/prova-engine/internal/backend"
	"github.com/stemsi/prova-engine/internal/model"
)

// Client talks to the exam platform API. Every method honors ctx
// cancellation; callers bound each call with their own timeout.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

var _ backend.Client = (*Client)(nil)

// New creates a client for the given API base URL, e.g.
// "https://api.example.com/api/v1".
func New(baseURL, token string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "backend_client").Logger(),
	}
}

// envelope is the API's standard response wrapper.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("%s %s: decode response: %w", method, path, err)
		}
	}

	if res.StatusCode >= 400 {
		if env.Error != nil {
			return fmt.Errorf("%s %s: %s (%s)", method, path, env.Error.Message, env.Error.Code)
		}
		return fmt.Errorf("%s %s: status %d", method, path, res.StatusCode)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%s %s: decode data: %w", method, path, err)
		}
	}
	return nil
}

func (c *Client) GetSession(ctx context.Context, sessionID uuid.UUID) (*model.Session, error) {
	var session model.Session
	if err := c.do(ctx, http.MethodGet, "/sessions/"+sessionID.String(), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) GetSessionStatus(ctx context.Context, sessionID uuid.UUID) (model.RoomStatus, error) {
	var out struct {
		Status model.RoomStatus `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/sessions/"+sessionID.String()+"/status", nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (c *Client) StartAttempt(ctx context.Context, sessionID uuid.UUID, assignmentID *uuid.UUID) (*backend.StartAttemptResult, error) {
	in := struct {
		AssignmentID *uuid.UUID `json:"assignment_id,omitempty"`
	}{AssignmentID: assignmentID}
	var out backend.StartAttemptResult
	if err := c.do(ctx, http.MethodPost, "/sessions/"+sessionID.String()+"/attempts", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SaveProgress(ctx context.Context, p backend.Progress) error {
	return c.do(ctx, http.MethodPut, "/attempts/"+p.AttemptID.String()+"/progress", p, nil)
}

func (c *Client) Submit(ctx context.Context, s backend.Submission) error {
	return c.do(ctx, http.MethodPost, "/attempts/"+s.AttemptID.String()+"/submit", s, nil)
}

func (c *Client) Heartbeat(ctx context.Context, hb backend.HeartbeatStatus) (*backend.HeartbeatResult, error) {
	var out backend.HeartbeatResult
	if err := c.do(ctx, http.MethodPost, "/participants/"+hb.ParticipantID.String()+"/heartbeat", hb, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) JoinSession(ctx context.Context, assignmentID uuid.UUID) (*backend.JoinResult, error) {
	var out backend.JoinResult
	if err := c.do(ctx, http.MethodPost, "/rooms/"+assignmentID.String()+"/join", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SetReady(ctx context.Context, participantID uuid.UUID) error {
	return c.do(ctx, http.MethodPost, "/participants/"+participantID.String()+"/ready", nil, nil)
}

func (c *Client) Disconnect(ctx context.Context, participantID uuid.UUID) error {
	return c.do(ctx, http.MethodPost, "/participants/"+participantID.String()+"/disconnect", nil, nil)
}

func (c *Client) GetMessages(ctx context.Context, participantID uuid.UUID) ([]model.Message, error) {
	var out []model.Message
	if err := c.do(ctx, http.MethodGet, "/participants/"+participantID.String()+"/messages", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SendMessage(ctx context.Context, participantID uuid.UUID, body string, clientRef uuid.UUID) error {
	in := struct {
		Body      string    `json:"body"`
		ClientRef uuid.UUID `json:"client_ref"`
	}{Body: body, ClientRef: clientRef}
	return c.do(ctx, http.MethodPost, "/participants/"+participantID.String()+"/messages", in, nil)
}

func (c *Client) MarkMessagesRead(ctx context.Context, participantID uuid.UUID, ids []uuid.UUID) error {
	in := struct {
		IDs []uuid.UUID `json:"ids"`
	}{IDs: ids}
	return c.do(ctx, http.MethodPost, "/participants/"+participantID.String()+"/messages/read", in, nil)
}
