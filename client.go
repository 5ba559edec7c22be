package docvault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	v1 "github.com/emrgen/docvault/apis/v1"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("docvault: %d %s", e.StatusCode, e.Message)
}

type Option func(*Client)

// WithToken sends token as a bearer token.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithUserID identifies the caller for servers running in insecure mode.
func WithUserID(userID string) Option {
	return func(c *Client) {
		c.userID = userID
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.http = httpClient
	}
}

// Client talks to the /v1 HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
	userID  string
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		return decodeError(res)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func decodeError(res *http.Response) error {
	var body v1.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<16)).Decode(&body); err != nil || body.Error == "" {
		body.Error = http.StatusText(res.StatusCode)
	}
	return &APIError{StatusCode: res.StatusCode, Message: body.Error}
}

func (c *Client) upload(ctx context.Context, path string, fields map[string]string, filename string, content io.Reader, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, content); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, out)
}

// CreateDocument uploads a file as the first version of a new document.
// An empty name lets the server derive one from filename.
func (c *Client) CreateDocument(ctx context.Context, name, filename string, content io.Reader) (*v1.DocumentResponse, error) {
	fields := map[string]string{}
	if name != "" {
		fields["name"] = name
	}

	var res v1.DocumentResponse
	if err := c.upload(ctx, "/v1/documents", fields, filename, content, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UploadVersion appends a version; kind is upload, signed or annotated.
func (c *Client) UploadVersion(ctx context.Context, documentID, kind, filename string, content io.Reader) (*v1.VersionResponse, error) {
	path := "/v1/documents/" + url.PathEscape(documentID) + "/versions"
	if kind != "" {
		path += "?kind=" + url.QueryEscape(kind)
	}

	var res v1.VersionResponse
	if err := c.upload(ctx, path, nil, filename, content, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ListDocuments(ctx context.Context) ([]*v1.DocumentResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/documents", nil)
	if err != nil {
		return nil, err
	}

	var res []*v1.DocumentResponse
	if err := c.do(req, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) GetDocument(ctx context.Context, documentID string) (*v1.DocumentResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/documents/"+url.PathEscape(documentID), nil)
	if err != nil {
		return nil, err
	}

	var res v1.DocumentResponse
	if err := c.do(req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ListVersions(ctx context.Context, documentID string) ([]*v1.VersionResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/documents/"+url.PathEscape(documentID)+"/versions", nil)
	if err != nil {
		return nil, err
	}

	var res []*v1.VersionResponse
	if err := c.do(req, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) Share(ctx context.Context, documentID, userID, level string) (*v1.ShareResponse, error) {
	body, err := json.Marshal(v1.ShareRequest{UserID: userID, Level: level})
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/v1/documents/"+url.PathEscape(documentID)+"/share", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var res v1.ShareResponse
	if err := c.do(req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Access(ctx context.Context, documentID string) (*v1.AccessResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/documents/"+url.PathEscape(documentID)+"/access", nil)
	if err != nil {
		return nil, err
	}

	var res v1.AccessResponse
	if err := c.do(req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) DeleteDocument(ctx context.Context, documentID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/v1/documents/"+url.PathEscape(documentID), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Download writes the content of a version to w.
func (c *Client) Download(ctx context.Context, versionID string, w io.Writer) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/versions/"+url.PathEscape(versionID)+"/download", nil)
	if err != nil {
		return 0, err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return 0, decodeError(res)
	}
	return io.Copy(w, res.Body)
}
