package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/turtacn/realmkeys/internal/application/dto"
)

// adminClient calls the /admin routes of a realmkeys server.
type adminClient struct {
	baseURL string
	token   string
	http    *retryablehttp.Client
}

func newAdminClient(baseURL, token string) *adminClient {
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.RetryWaitMin = 200 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.Logger = nil
	return &adminClient{baseURL: strings.TrimRight(baseURL, "/"), token: token, http: c}
}

func (c *adminClient) keysURL(realm string, suffix ...string) string {
	u := c.baseURL + "/admin/realms/" + realm + "/keys"
	for _, s := range suffix {
		u += "/" + s
	}
	return u
}

// do sends the request and decodes a JSON body into out. Non-2xx responses become errors.
func (c *adminClient) do(ctx context.Context, method, url string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr dto.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error == "" {
			return fmt.Errorf("%s %s: %s", method, url, resp.Status)
		}
		return fmt.Errorf("%s: %s", apiErr.Error, apiErr.ErrorDescription)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *adminClient) ListKeys(ctx context.Context, realm string) (*dto.KeysMetadata, error) {
	var out dto.KeysMetadata
	if err := c.do(ctx, http.MethodGet, c.keysURL(realm), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *adminClient) ActiveKeys(ctx context.Context, realm string) (map[string]string, error) {
	var out struct {
		Active map[string]string `json:"active"`
	}
	if err := c.do(ctx, http.MethodGet, c.keysURL(realm, "active"), nil, &out); err != nil {
		return nil, err
	}
	return out.Active, nil
}

func (c *adminClient) CreateKey(ctx context.Context, realm string, req *dto.CreateKeyRequest) (string, error) {
	var out dto.CreateKeyResponse
	if err := c.do(ctx, http.MethodPost, c.keysURL(realm), req, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *adminClient) DeleteKey(ctx context.Context, realm, kid string) error {
	return c.do(ctx, http.MethodDelete, c.keysURL(realm, kid), nil, nil)
}
