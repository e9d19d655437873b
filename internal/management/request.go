package management

import (
	"encoding/json"
	"io"
	"maps"
	"strings"
)

// Operation names used by this module.
const (
	OpComposite             = "composite"
	OpAdd                   = "add"
	OpDeploy                = "deploy"
	OpUndeploy              = "undeploy"
	OpRemove                = "remove"
	OpFullReplaceDeployment = "full-replace-deployment"
	OpReadResource          = "read-resource"
)

// Wildcard addresses every child of a type.
const Wildcard = "*"

// AddressSegment is one type=name pair of a resource address.
type AddressSegment struct {
	Type string
	Name string
}

// Address locates a resource; the empty address is the root.
type Address []AddressSegment

// DeploymentAddress returns the address of the named deployment.
func DeploymentAddress(name string) Address {
	return Address{{Type: "deployment", Name: name}}
}

// MarshalJSON writes the address as a list of single-key objects.
func (a Address) MarshalJSON() ([]byte, error) {
	segments := make([]map[string]string, 0, len(a))
	for _, segment := range a {
		segments = append(segments, map[string]string{segment.Type: segment.Name})
	}

	return json.Marshal(segments)
}

// String renders the address in the container's CLI notation.
func (a Address) String() string {
	if len(a) == 0 {
		return "/"
	}

	var out strings.Builder
	for _, segment := range a {
		out.WriteString("/" + segment.Type + "=" + segment.Name)
	}

	return out.String()
}

// Request is a management operation. Streams travel beside the JSON body and
// are referenced from parameters by their input-stream-index.
type Request struct {
	Address   Address
	Operation string
	Recursive bool
	// Params are merged into the top level of the operation object.
	Params map[string]any
	// Steps are the nested operations of a composite.
	Steps []*Request
	// Streams are uploaded in order; only the outermost request may carry them.
	Streams []io.Reader
}

// StreamRef returns the content parameter that points at the i-th stream.
func StreamRef(i int) []map[string]any {
	return []map[string]any{{"input-stream-index": i}}
}

// MarshalJSON encodes the operation object.
func (r *Request) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, len(r.Params)+4)
	maps.Copy(body, r.Params)

	body["operation"] = r.Operation

	address := r.Address
	if address == nil {
		address = Address{}
	}

	body["address"] = address

	if r.Recursive {
		body["recursive"] = true
	}

	if len(r.Steps) > 0 {
		body["steps"] = r.Steps
	}

	return json.Marshal(body)
}
