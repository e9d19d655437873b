package management

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync/atomic"
)

// Management endpoints relative to the container URL.
const (
	managementPath = "management"
	uploadPath     = "management-upload"
)

var (
	// ErrUnexpectedStatus is returned for HTTP statuses that carry no management response.
	ErrUnexpectedStatus = errors.New("unexpected management status")
	// ErrClosed is returned by Execute after Close.
	ErrClosed = errors.New("management channel closed")

	errMissingURL = errors.New("management url is required")
)

// Channel executes management requests against a container.
type Channel interface {
	Execute(ctx context.Context, req *Request, handler MessageHandler) (*Response, error)
}

// HTTPOptions configure an HTTPChannel.
type HTTPOptions struct {
	// URL is the management interface, e.g. "http://host:9990".
	URL string
	// Username and Password enable basic auth when Username is set.
	Username string
	Password string
	// Transport overrides the HTTP transport, mostly for tests.
	Transport http.RoundTripper
}

// HTTPChannel is a Channel over the container's HTTP management interface.
// It is long-lived and safe for concurrent use.
type HTTPChannel struct {
	baseURL  *url.URL
	username string
	password string
	client   *http.Client
	closed   atomic.Bool
}

// NewHTTPChannel builds a channel; no connection is made until the first request.
func NewHTTPChannel(opts HTTPOptions) (*HTTPChannel, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, errMissingURL
	}

	baseURL, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse management url: %w", err)
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}

	return &HTTPChannel{
		baseURL:  baseURL,
		username: opts.Username,
		password: opts.Password,
		client:   &http.Client{Transport: transport},
	}, nil
}

// Execute sends the request and decodes the container's response. Warnings
// from the response are passed to handler, in order, before Execute returns.
func (c *HTTPChannel) Execute(ctx context.Context, req *Request, handler MessageHandler) (*Response, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	var (
		httpReq *http.Request
		err     error
	)

	if len(req.Streams) == 0 {
		httpReq, err = c.jsonRequest(ctx, req)
	} else {
		httpReq, err = c.uploadRequest(ctx, req)
	}

	if err != nil {
		return nil, err
	}

	if c.username != "" {
		httpReq.SetBasicAuth(c.username, c.password)
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Operation, req.Address, err)
	}

	defer func() {
		_ = httpResp.Body.Close()
	}()

	// Failed operations are reported with status 500 and a regular body.
	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusInternalServerError {
		return nil, fmt.Errorf("%s %s: %s: %w", req.Operation, req.Address, httpResp.Status, ErrUnexpectedStatus)
	}

	var response Response
	if err = json.NewDecoder(httpResp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", req.Operation, err)
	}

	if handler != nil {
		for _, warning := range response.warnings() {
			handler.HandleMessage(ParseSeverity(warning.Level), warning.Message)
		}
	}

	return &response, nil
}

// Close releases idle connections. Requests in flight are not interrupted.
func (c *HTTPChannel) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.client.CloseIdleConnections()

	return nil
}

func (c *HTTPChannel) jsonRequest(ctx context.Context, req *Request) (*http.Request, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", req.Operation, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL.JoinPath(managementPath).String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", req.Operation, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	return httpReq, nil
}

// uploadRequest streams the operation and its content through a pipe so that
// artifacts are never held in memory.
func (c *HTTPChannel) uploadRequest(ctx context.Context, req *Request) (*http.Request, error) {
	operation, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", req.Operation, err)
	}

	var (
		reader, writer = io.Pipe()
		form           = multipart.NewWriter(writer)
	)

	go func() {
		_ = writer.CloseWithError(writeUpload(form, operation, req.Streams))
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL.JoinPath(uploadPath).String(), reader)
	if err != nil {
		_ = reader.CloseWithError(err)

		return nil, fmt.Errorf("build %s upload: %w", req.Operation, err)
	}

	httpReq.Header.Set("Content-Type", form.FormDataContentType())
	httpReq.Header.Set("Accept", "application/json")

	return httpReq, nil
}

func writeUpload(form *multipart.Writer, operation []byte, streams []io.Reader) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="operation"`)
	header.Set("Content-Type", "application/json")

	part, err := form.CreatePart(header)
	if err != nil {
		return err
	}

	if _, err = part.Write(operation); err != nil {
		return err
	}

	for i, stream := range streams {
		if part, err = form.CreateFormFile(fmt.Sprintf("input-stream-%d", i), fmt.Sprintf("stream-%d", i)); err != nil {
			return err
		}

		if _, err = io.Copy(part, stream); err != nil {
			return fmt.Errorf("upload stream %d: %w", i, err)
		}
	}

	return form.Close()
}
