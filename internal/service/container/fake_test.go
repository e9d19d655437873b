package container

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gitter-badger/deployer-1/internal/management"
)

// fakeChannel records requests and answers with a canned response.
type fakeChannel struct {
	mu       sync.Mutex
	requests []*management.Request
	detached bool

	response *management.Response
	err      error
	delay    time.Duration
	release  chan struct{}
	messages []string
	// late messages are sent after the delay and release.
	late []string
}

func (f *fakeChannel) Execute(
	ctx context.Context,
	req *management.Request,
	handler management.MessageHandler,
) (*management.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.detached = ctx.Done() == nil
	f.mu.Unlock()

	for _, message := range f.messages {
		handler.HandleMessage(management.SeverityWarning, message)
	}

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	if f.release != nil {
		<-f.release
	}

	for _, message := range f.late {
		handler.HandleMessage(management.SeverityInfo, message)
	}

	return f.response, f.err
}

func (f *fakeChannel) lastRequest() *management.Request {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.requests) == 0 {
		return nil
	}

	return f.requests[len(f.requests)-1]
}

func (f *fakeChannel) wasDetached() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.detached
}

func respond(t *testing.T, body string) *management.Response {
	t.Helper()

	var response management.Response
	require.NoError(t, json.Unmarshal([]byte(body), &response))

	return &response
}
