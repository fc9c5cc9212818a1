package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	apperrors "github.com/lexboard/lexboard/pkg/errors"
)

// GetJSON issues a GET and decodes a successful JSON response into out.
// Error statuses are translated via ParseResponseError.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	resp, err := c.Get(ctx, path)
	if err != nil {
		return err
	}
	return decodeJSON(resp, out)
}

// PostJSON marshals in as the request body, issues a POST, and decodes a
// successful JSON response into out. Pass nil for either to skip it.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}

	resp, err := c.Post(ctx, path, &body)
	if err != nil {
		return err
	}
	return decodeJSON(resp, out)
}

func decodeJSON(resp *http.Response, out any) error {
	if resp.StatusCode >= 400 {
		return ParseResponseError(resp)
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(err, "decode backend response")
	}
	return nil
}
