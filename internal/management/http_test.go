package management

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newChannel(t *testing.T, handler http.HandlerFunc) *HTTPChannel {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	channel, err := NewHTTPChannel(HTTPOptions{URL: server.URL, Username: "admin", Password: "secret"})
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, channel.Close())
	})

	return channel
}

// TestHTTPChannel_JSON posts plain requests to the management endpoint.
func TestHTTPChannel_JSON(t *testing.T) {
	t.Parallel()

	channel := newChannel(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/management" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}

		if user, password, ok := r.BasicAuth(); !ok || user != "admin" || password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["operation"] != OpReadResource {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		_, _ = io.WriteString(w, `{"outcome": "success", "result": [{"address": [{"deployment": "app.war"}]}]}`)
	})

	response, err := channel.Execute(context.Background(), &Request{
		Operation: OpReadResource,
		Address:   DeploymentAddress(Wildcard),
	}, nil)
	require.NoError(t, err)
	require.True(t, response.Succeeded())
	require.Contains(t, string(response.Result), "app.war")
}

// TestHTTPChannel_Upload sends the operation part first, then the streams in order.
func TestHTTPChannel_Upload(t *testing.T) {
	t.Parallel()

	channel := newChannel(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/management-upload" {
			http.NotFound(w, r)
			return
		}

		reader, err := r.MultipartReader()
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		var parts []string

		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				break
			}

			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}

			content, _ := io.ReadAll(part)
			parts = append(parts, part.FormName()+"="+string(content))
		}

		if len(parts) != 3 || !strings.HasPrefix(parts[0], "operation={") ||
			parts[1] != "input-stream-0=first" || parts[2] != "input-stream-1=second" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, strings.Join(parts, "|"))

			return
		}

		_, _ = io.WriteString(w, `{"outcome": "success"}`)
	})

	response, err := channel.Execute(context.Background(), &Request{
		Operation: OpComposite,
		Streams:   []io.Reader{strings.NewReader("first"), strings.NewReader("second")},
	}, nil)
	require.NoError(t, err)
	require.True(t, response.Succeeded())
}

// TestHTTPChannel_FailedOperation decodes the body of a 500 and forwards warnings.
func TestHTTPChannel_FailedOperation(t *testing.T) {
	t.Parallel()

	channel := newChannel(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, rolledBackComposite)
	})

	var messages []string

	handler := MessageHandlerFunc(func(severity Severity, text string) {
		messages = append(messages, severity.String()+":"+text)
	})

	response, err := channel.Execute(context.Background(), &Request{Operation: OpComposite}, handler)
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, response.Outcome)
	require.Equal(t, []string{"error:top", "warning:first"}, messages)
}

// TestHTTPChannel_UnexpectedStatus treats statuses without a body as transport errors.
func TestHTTPChannel_UnexpectedStatus(t *testing.T) {
	t.Parallel()

	channel := newChannel(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := channel.Execute(context.Background(), &Request{Operation: OpReadResource}, nil)
	require.ErrorIs(t, err, ErrUnexpectedStatus)
}

// TestHTTPChannel_Closed rejects requests after Close.
func TestHTTPChannel_Closed(t *testing.T) {
	t.Parallel()

	channel, err := NewHTTPChannel(HTTPOptions{URL: "http://127.0.0.1:9990"})
	require.NoError(t, err)
	require.NoError(t, channel.Close())
	require.NoError(t, channel.Close())

	_, err = channel.Execute(context.Background(), &Request{Operation: OpReadResource}, nil)
	require.ErrorIs(t, err, ErrClosed)
}

// TestParseSeverity maps container levels.
func TestParseSeverity(t *testing.T) {
	t.Parallel()

	require.Equal(t, SeverityError, ParseSeverity("SEVERE"))
	require.Equal(t, SeverityWarning, ParseSeverity("warning"))
	require.Equal(t, SeverityInfo, ParseSeverity(""))
}
