package deployment

import (
	"context"
	"fmt"
	"os"
	"os/user"
)

// Operation names an audited state transition.
type Operation string

// Audited transitions.
const (
	OperationDeploy   Operation = "deploy"
	OperationRedeploy Operation = "redeploy"
	OperationUndeploy Operation = "undeploy"
)

// String returns the operation name.
func (o Operation) String() string {
	return string(o)
}

// Actor identifies the process performing transitions.
type Actor struct {
	// Hostname is the machine the deployer runs on.
	Hostname string
	// Username is the system user running the deployer.
	Username string
}

// String renders the actor as user@host.
func (a Actor) String() string {
	return a.Username + "@" + a.Hostname
}

// DetectActor reads the hostname and the current user.
func DetectActor() (Actor, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return Actor{}, fmt.Errorf("hostname: %w", err)
	}

	currentUser, err := user.Current()
	if err != nil {
		return Actor{}, fmt.Errorf("current user: %w", err)
	}

	return Actor{
		Hostname: hostname,
		Username: currentUser.Username,
	}, nil
}

// Requester is the remote caller that asked for a transition.
type Requester struct {
	// Principal is the authenticated name, empty when anonymous.
	Principal string
	// ClientIP is the remote address of the caller.
	ClientIP string
}

type requesterKey struct{}

// WithRequester stores the caller in ctx for auditing.
func WithRequester(ctx context.Context, requester Requester) context.Context {
	return context.WithValue(ctx, requesterKey{}, requester)
}

// RequesterFromContext returns the caller stored in ctx, if any.
func RequesterFromContext(ctx context.Context) (Requester, bool) {
	requester, ok := ctx.Value(requesterKey{}).(Requester)

	return requester, ok
}
