package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tendant/simple-upload/pkg/simpleupload"
	"github.com/tendant/simple-upload/pkg/simpleupload/signing"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// Authorize asks the authorizer to sign params. Any non-200 answer is an authorization failure.
func (c *Client) Authorize(ctx context.Context, params signing.Params) (simpleupload.AuthorizationToken, error) {
	var token simpleupload.AuthorizationToken

	body, err := json.Marshal(simpleupload.AuthorizationRequest{
		UploadPreset: params[simpleupload.ParamUploadPreset],
		Folder:       params[simpleupload.ParamFolder],
		Context:      params[simpleupload.ParamContext],
		Tags:         params[simpleupload.ParamTags],
	})
	if err != nil {
		return token, &simpleupload.AuthorizerError{Err: err}
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthorizerURL, bytes.NewReader(body))
	if err != nil {
		return token, &simpleupload.AuthorizerError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return token, &simpleupload.AuthorizerError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		code, message := readAuthorizerError(resp.Body)
		if message == "" {
			message = resp.Status
		}
		return token, &simpleupload.AuthorizerError{StatusCode: resp.StatusCode, Code: code, Message: message}
	}

	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return token, &simpleupload.AuthorizerError{Err: fmt.Errorf("invalid authorizer response: %w", err)}
	}
	if token.Signature == "" || token.Timestamp <= 0 {
		return simpleupload.AuthorizationToken{}, &simpleupload.AuthorizerError{Message: "authorizer response has no signature or timestamp"}
	}

	c.logger.DebugContext(ctx, "Authorization received", "issued_at", token.IssuedAt().UTC(), "took", since(start))
	return token, nil
}

// readAuthorizerError understands both {"error":{"code","message"}} and {"error":"message"}.
func readAuthorizerError(r io.Reader) (code, message string) {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))

	var structured simpleupload.ErrorResponse
	if err := json.Unmarshal(raw, &structured); err == nil && structured.Error.Message != "" {
		return structured.Error.Code, structured.Error.Message
	}

	var flat struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &flat); err == nil && flat.Error != "" {
		return "", flat.Error
	}

	return "", strings.TrimSpace(string(raw))
}
