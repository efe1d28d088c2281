// Package ledgerclient is a thin HTTP client for the ledger API.
package ledgerclient

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

	"review_ledger/internal/domain"
)

// ProblemError is a non-ledger failure reported by the server.
type ProblemError struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (e *ProblemError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("ledger api: %d %s", e.Status, e.Title)
	}
	return fmt.Sprintf("ledger api: %d %s: %s", e.Status, e.Title, e.Detail)
}

type Client struct {
	base  string
	token string
	hc    *http.Client
}

func New(base, token string) *Client {
	return &Client{
		base:  strings.TrimRight(base, "/"),
		token: token,
		hc:    &http.Client{Timeout: 20 * time.Second},
	}
}

type envelope struct {
	OK    bool            `json:"ok"`
	Value json.RawMessage `json:"value"`
}

// Submit returns the new review id, or a domain.Code on rejection.
func (c *Client) Submit(ctx context.Context, locationID uint64, text string, rating uint32) (uint64, error) {
	body := map[string]any{"location_id": locationID, "text": text, "rating": rating}
	env, err := c.transition(ctx, http.MethodPost, "/v1/reviews", body)
	if err != nil {
		return 0, err
	}
	if !env.OK {
		var code uint32
		if err := json.Unmarshal(env.Value, &code); err != nil {
			return 0, fmt.Errorf("decode rejection: %w", err)
		}
		return 0, domain.Code(code)
	}
	var id uint64
	if err := json.Unmarshal(env.Value, &id); err != nil {
		return 0, fmt.Errorf("decode review id: %w", err)
	}
	return id, nil
}

func (c *Client) Update(ctx context.Context, id uint64, text string, rating uint32) error {
	body := map[string]any{"text": text, "rating": rating}
	return c.flag(ctx, http.MethodPut, fmt.Sprintf("/v1/reviews/%d", id), body, domain.ErrUpdateRejected)
}

func (c *Client) SetAuthority(ctx context.Context, authority domain.Identity) error {
	return c.flag(ctx, http.MethodPut, "/v1/admin/authority", map[string]any{"authority": authority}, domain.ErrConfigRejected)
}

func (c *Client) SetCooldown(ctx context.Context, period int64) error {
	return c.flag(ctx, http.MethodPut, "/v1/admin/cooldown", map[string]any{"period": period}, domain.ErrConfigRejected)
}

// Review reports false when no review has the id.
func (c *Client) Review(ctx context.Context, id uint64) (domain.Review, bool, error) {
	var rv domain.Review
	ok, err := c.get(ctx, fmt.Sprintf("/v1/reviews/%d", id), &rv)
	return rv, ok, err
}

func (c *Client) UserReview(ctx context.Context, author domain.Identity, locationID uint64) (domain.UserReview, bool, error) {
	var ur domain.UserReview
	path := fmt.Sprintf("/v1/users/%s/locations/%d/review", url.PathEscape(string(author)), locationID)
	ok, err := c.get(ctx, path, &ur)
	return ur, ok, err
}

func (c *Client) Count(ctx context.Context) (uint64, error) {
	var out struct {
		Count uint64 `json:"count"`
	}
	if _, err := c.get(ctx, "/v1/reviews/count", &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *Client) Config(ctx context.Context) (domain.Config, error) {
	var cfg domain.Config
	ok, err := c.get(ctx, "/v1/admin/config", &cfg)
	if err == nil && !ok {
		err = &ProblemError{Status: http.StatusNotFound, Title: "Not Found"}
	}
	return cfg, err
}

/********** internals **********/

func (c *Client) flag(ctx context.Context, method, path string, body any, rejected error) error {
	env, err := c.transition(ctx, method, path, body)
	if err != nil {
		return err
	}
	if !env.OK {
		return rejected
	}
	return nil
}

func (c *Client) transition(ctx context.Context, method, path string, body any) (envelope, error) {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return envelope{}, err
	}
	defer resp.Body.Close()

	if isProblem(resp) {
		return envelope{}, readProblem(resp)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return envelope{}, fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return env, nil
}

func (c *Client) get(ctx context.Context, path string, out any) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return false, nil
	case resp.StatusCode != http.StatusOK:
		return false, readProblem(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.hc.Do(req)
}

func isProblem(resp *http.Response) bool {
	return strings.HasPrefix(resp.Header.Get("Content-Type"), "application/problem+json") ||
		resp.StatusCode >= http.StatusInternalServerError
}

func readProblem(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	p := &ProblemError{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
	if len(b) > 0 {
		_ = json.Unmarshal(b, p)
	}
	return p
}
