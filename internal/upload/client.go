// Package upload sends a selected file to the text extraction endpoint.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/extractdesk/backend/internal/models"
)

// FieldName is the multipart part that carries the file.
const FieldName = "file"

const (
	maxResponseBytes = 32 << 20
	maxErrorBody     = 512
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Request is one file to upload.
type Request struct {
	FileName    string
	ContentType string
	Body        io.Reader
	// Size is the exact number of bytes Body yields. Zero means unknown and
	// the body is buffered to measure it.
	Size int64
}

// Response is the decoded outcome of a 2xx answer.
type Response struct {
	StatusCode int
	// Text is the extracted text, or models.FallbackText when the body had none.
	Text     string
	Fallback bool
	// ShapeErr is set when the body was not the expected JSON object.
	ShapeErr error
}

// Client posts files to a fixed endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates an upload client. A zero timeout means requests run until
// the server or the caller's context ends them.
func NewClient(endpoint string, timeout time.Duration, logger *zap.Logger) *Client {
	return NewClientWithHTTP(endpoint, &http.Client{Timeout: timeout}, logger)
}

// NewClientWithHTTP creates an upload client around an existing http.Client.
func NewClientWithHTTP(endpoint string, httpClient *http.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
		logger:     logger.Named("upload"),
	}
}

// Endpoint returns the URL files are posted to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Upload sends req as a single-part multipart form and decodes the answer.
// Transport failures return *TransportError and non-2xx answers *ServerError.
//
// The request always carries a Content-Length: WSGI servers read exactly that
// many bytes and see an empty form on a chunked body.
func (c *Client) Upload(ctx context.Context, req Request) (*Response, error) {
	body, length, contentType, err := buildForm(req)
	if err != nil {
		return nil, &TransportError{Endpoint: c.endpoint, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, &TransportError{Endpoint: c.endpoint, Err: err}
	}
	httpReq.ContentLength = length
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug("posting file",
		zap.String("endpoint", c.endpoint),
		zap.String("file", req.FileName),
		zap.String("content_type", req.ContentType),
		zap.Int64("content_length", length))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Endpoint: c.endpoint, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Endpoint: c.endpoint, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ServerError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), maxErrorBody)}
	}

	return decodeResponse(resp.StatusCode, resp.Header.Get("Content-Type"), respBody), nil
}

// buildForm returns the multipart body and its exact length. With a known
// Size the file bytes are streamed between a buffered part header and the
// closing boundary; otherwise the whole form is buffered.
func buildForm(req Request) (io.Reader, int64, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if req.Size <= 0 {
		if err := writePart(mw, req, req.Body); err != nil {
			return nil, 0, "", err
		}
		if err := mw.Close(); err != nil {
			return nil, 0, "", err
		}
		return &buf, int64(buf.Len()), mw.FormDataContentType(), nil
	}

	if err := writePart(mw, req, nil); err != nil {
		return nil, 0, "", err
	}
	head := bytes.Clone(buf.Bytes())
	buf.Reset()
	if err := mw.Close(); err != nil {
		return nil, 0, "", err
	}
	tail := bytes.Clone(buf.Bytes())

	length := int64(len(head)) + req.Size + int64(len(tail))
	body := io.MultiReader(bytes.NewReader(head), req.Body, bytes.NewReader(tail))
	return body, length, mw.FormDataContentType(), nil
}

// writePart writes the "file" part header, then content when it is non-nil.
func writePart(mw *multipart.Writer, req Request, content io.Reader) error {
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FieldName, quoteEscaper.Replace(req.FileName)))
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("creating file part: %w", err)
	}
	if content == nil {
		return nil
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("writing file part: %w", err)
	}
	return nil
}

// decodeResponse never fails: a body without usable text yields the fallback.
func decodeResponse(status int, contentType string, body []byte) *Response {
	out := &Response{StatusCode: status, Text: models.FallbackText, Fallback: true}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		out.ShapeErr = &ResponseShapeError{ContentType: contentType, Err: err}
		return out
	}
	if payload.Text != "" {
		out.Text = payload.Text
		out.Fallback = false
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
