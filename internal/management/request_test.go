package management

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRequest_MarshalComposite checks the JSON shape of a composite with a stream reference.
func TestRequest_MarshalComposite(t *testing.T) {
	t.Parallel()

	req := &Request{
		Operation: OpComposite,
		Steps: []*Request{
			{
				Operation: OpAdd,
				Address:   DeploymentAddress("app.war"),
				Params:    map[string]any{"content": StreamRef(0)},
			},
			{Operation: OpDeploy, Address: DeploymentAddress("app.war")},
		},
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"operation": "composite",
		"address": [],
		"steps": [
			{"operation": "add", "address": [{"deployment": "app.war"}], "content": [{"input-stream-index": 0}]},
			{"operation": "deploy", "address": [{"deployment": "app.war"}]}
		]
	}`, string(data))
}

// TestRequest_MarshalRecursive sets the recursive flag only when asked.
func TestRequest_MarshalRecursive(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(&Request{
		Operation: OpReadResource,
		Address:   DeploymentAddress(Wildcard),
		Recursive: true,
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"operation": "read-resource", "address": [{"deployment": "*"}], "recursive": true}`, string(data))
}

// TestAddress_String renders the CLI notation.
func TestAddress_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/", Address{}.String())
	require.Equal(t, "/deployment=app.war", DeploymentAddress("app.war").String())
}
