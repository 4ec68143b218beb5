package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"github.com/tendant/simple-upload/pkg/simpleupload"
	"github.com/tendant/simple-upload/pkg/simpleupload/signing"
)

// Submit posts f to the store together with exactly the signed params, the token and the public key.
func (c *Client) Submit(ctx context.Context, f simpleupload.File, params signing.Params, token simpleupload.AuthorizationToken) (*simpleupload.StoreResponse, error) {
	endpoint, err := url.JoinPath(c.cfg.StoreURL, "v1_1", c.cfg.Identity, simpleupload.ResourceAuto, "upload")
	if err != nil {
		return nil, &simpleupload.StoreError{Err: fmt.Errorf("invalid store url: %w", err)}
	}

	body, contentType, err := c.encodeForm(f, params, token)
	if err != nil {
		return nil, err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var reader io.Reader = body
	if c.progressFunc != nil {
		reader = &progressReader{reader: body, callback: c.progressFunc}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reader)
	if err != nil {
		return nil, &simpleupload.StoreError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.ContentLength = int64(body.Len())
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &simpleupload.StoreError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var storeErr simpleupload.StoreErrorResponse
		message := strings.TrimSpace(string(raw))
		if err := json.Unmarshal(raw, &storeErr); err == nil && storeErr.Error.Message != "" {
			message = storeErr.Error.Message
		}
		if message == "" {
			message = resp.Status
		}
		return nil, &simpleupload.StoreError{StatusCode: resp.StatusCode, Message: message}
	}

	var out simpleupload.StoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &simpleupload.StoreError{Err: fmt.Errorf("invalid store response: %w", err)}
	}
	return &out, nil
}

// encodeForm writes the multipart body. The signed fields come from params and nothing else, so
// the submission can never carry more or fewer signed parameters than the authorizer saw.
func (c *Client) encodeForm(f simpleupload.File, params signing.Params, token simpleupload.AuthorizationToken) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	fields := []struct{ name, value string }{
		{"api_key", c.cfg.PublicKey},
		{simpleupload.ParamTimestamp, strconv.FormatInt(token.Timestamp, 10)},
		{"signature", token.Signature},
	}
	for _, name := range params.Names() {
		fields = append(fields, struct{ name, value string }{name, params[name]})
	}
	for _, field := range fields {
		if err := mw.WriteField(field.name, field.value); err != nil {
			return nil, "", &simpleupload.StoreError{Err: err}
		}
	}

	part, err := mw.CreatePart(filePartHeader(f))
	if err != nil {
		return nil, "", &simpleupload.StoreError{Err: err}
	}

	// read one byte past the limit to catch payloads whose declared size was wrong
	n, err := io.Copy(part, io.LimitReader(f.Body, c.cfg.MaxFileSize()+1))
	if err != nil {
		return nil, "", &simpleupload.StoreError{Err: fmt.Errorf("failed to read %s: %w", f.Name, err)}
	}
	if n > c.cfg.MaxFileSize() {
		return nil, "", &simpleupload.ValidationError{
			Field:  fmt.Sprintf("file %q", f.Name),
			Reason: fmt.Sprintf("exceeds the %dMB limit", c.cfg.MaxFileSizeMB),
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", &simpleupload.StoreError{Err: err}
	}
	return body, mw.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func filePartHeader(f simpleupload.File) textproto.MIMEHeader {
	name := f.Name
	if name == "" {
		name = "blob"
	}
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(name)))
	h.Set("Content-Type", contentType)
	return h
}

// progressReader wraps an io.Reader to track upload progress
type progressReader struct {
	reader    io.Reader
	bytesRead int64
	callback  ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.bytesRead += int64(n)
	if pr.callback != nil && n > 0 {
		pr.callback(pr.bytesRead)
	}
	return n, err
}
