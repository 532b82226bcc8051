package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// APIError is a non-2xx answer from the API. Anything else returned by the
// client is a transport failure.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// IsOffline reports whether err means the API could not be reached, as
// opposed to the API refusing the request.
func IsOffline(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	return !errors.As(err, &apiErr)
}

type Client struct {
	BaseURL  string
	AdminKey string
	HTTP     *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Health(ctx context.Context) error {
	return c.jsonRequest(ctx, http.MethodGet, "/healthz", "", nil, nil, "")
}

func (c *Client) Dashboard(ctx context.Context, actorID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/dashboard", actorID, nil, &out, "")
	return out, err
}

func (c *Client) Report(ctx context.Context, actorID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/report", actorID, nil, &out, "")
	return out, err
}

func (c *Client) Reports(ctx context.Context, actorID string, limit int) (map[string]any, error) {
	path := "/v1/reports"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, path, actorID, nil, &out, "")
	return out, err
}

func (c *Client) Businesses(ctx context.Context, actorID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/businesses", actorID, nil, &out, "")
	return out, err
}

func (c *Client) Business(ctx context.Context, actorID, businessID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/businesses/"+url.PathEscape(businessID), actorID, nil, &out, "")
	return out, err
}

func (c *Client) OpenBusiness(ctx context.Context, actorID string, spec map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/businesses", actorID, spec, &out, idem)
	return out, err
}

func (c *Client) AddPartner(ctx context.Context, actorID, businessID, partnerID string, share float64, invested int64, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/businesses/"+url.PathEscape(businessID)+"/partners", actorID, map[string]any{
		"actor_id": partnerID,
		"share":    share,
		"invested": invested,
	}, &out, idem)
	return out, err
}

func (c *Client) CloseBusiness(ctx context.Context, actorID, businessID, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/businesses/"+url.PathEscape(businessID)+"/close", actorID, nil, &out, idem)
	return out, err
}

func (c *Client) Propose(ctx context.Context, actorID, businessID, changeType string, payload map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, ProposePath(businessID), actorID, ProposeBody(changeType, payload), &out, idem)
	return out, err
}

func (c *Client) Proposals(ctx context.Context, actorID, businessID string) (map[string]any, error) {
	path := "/v1/proposals"
	if businessID != "" {
		path = "/v1/businesses/" + url.PathEscape(businessID) + "/proposals"
	}
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, path, actorID, nil, &out, "")
	return out, err
}

func (c *Client) Approve(ctx context.Context, actorID, proposalID, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/proposals/"+url.PathEscape(proposalID)+"/approve", actorID, nil, &out, idem)
	return out, err
}

func (c *Client) Reject(ctx context.Context, actorID, proposalID, reason, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/proposals/"+url.PathEscape(proposalID)+"/reject", actorID, map[string]any{
		"reason": reason,
	}, &out, idem)
	return out, err
}

func (c *Client) AdvanceQuarter(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/quarter/advance", "", nil, &out, "")
	return out, err
}

func (c *Client) Do(ctx context.Context, method, path, actorID string, body map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	var in any
	if body != nil {
		in = body
	}
	err := c.jsonRequest(ctx, method, path, actorID, in, &out, idem)
	return out, err
}

func ProposePath(businessID string) string {
	return "/v1/businesses/" + url.PathEscape(businessID) + "/proposals"
}

func ProposeBody(changeType string, payload map[string]any) map[string]any {
	body := map[string]any{"change_type": changeType}
	if len(payload) > 0 {
		body["payload"] = payload
	}
	return body
}

func (c *Client) jsonRequest(ctx context.Context, method, path, actorID string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actorID != "" {
		req.Header.Set("X-Actor-ID", actorID)
	}
	if c.AdminKey != "" {
		req.Header.Set("X-Admin-Key", c.AdminKey)
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func errorMessage(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}
