package integration

import (
	"crypto/sha1" //nolint:gosec // Artifact digests.
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"maps"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const storagePath = "/artifactory/api/storage/libs-release/org/example/app"

// reservePort returns a free local TCP address.
func reservePort(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	_ = l.Close()

	return addr
}

func sha1Sum(content string) []byte {
	sum := sha1.Sum([]byte(content)) //nolint:gosec // Artifact digests.

	return sum[:]
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// artifactRepository serves one artifact in several versions.
type artifactRepository struct {
	server   *httptest.Server
	contents map[string]string
}

func newArtifactRepository(t *testing.T, contents map[string]string) *artifactRepository {
	t.Helper()

	repo := &artifactRepository{contents: contents}
	mux := http.NewServeMux()

	mux.HandleFunc("/artifactory/api/search/checksum", func(w http.ResponseWriter, r *http.Request) {
		wanted := r.URL.Query().Get("sha1")
		results := []map[string]string{}

		for version, content := range repo.contents {
			if hex.EncodeToString(sha1Sum(content)) == wanted {
				results = append(results, map[string]string{
					"uri":         repo.server.URL + storagePath + "/" + version + "/" + fileName(version),
					"downloadUri": repo.server.URL + "/artifactory/libs-release/org/example/app/" + version + "/" + fileName(version),
				})
			}
		}

		writeJSON(w, http.StatusOK, map[string]any{"results": results})
	})

	mux.HandleFunc(storagePath+"/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.Trim(strings.TrimPrefix(r.URL.Path, storagePath), "/")

		version, file, _ := strings.Cut(rest, "/")
		content, ok := repo.contents[version]

		switch {
		case !ok:
			http.NotFound(w, r)
		case file == "":
			writeJSON(w, http.StatusOK, map[string]any{"children": []map[string]any{
				{"uri": "/" + fileName(version), "folder": false},
			}})
		default:
			writeJSON(w, http.StatusOK, map[string]any{"checksums": map[string]string{
				"sha1": hex.EncodeToString(sha1Sum(content)),
			}})
		}
	})

	mux.HandleFunc(storagePath, func(w http.ResponseWriter, _ *http.Request) {
		children := []map[string]any{}
		for _, version := range slices.Sorted(maps.Keys(repo.contents)) {
			children = append(children, map[string]any{"uri": "/" + version, "folder": true})
		}

		writeJSON(w, http.StatusOK, map[string]any{"children": children})
	})

	mux.HandleFunc("/artifactory/libs-release/org/example/app/", func(w http.ResponseWriter, r *http.Request) {
		version := path.Base(path.Dir(r.URL.Path))

		content, ok := repo.contents[version]
		if !ok {
			http.NotFound(w, r)

			return
		}

		_, _ = io.WriteString(w, content)
	})

	repo.server = httptest.NewServer(mux)
	t.Cleanup(repo.server.Close)

	return repo
}

func fileName(version string) string {
	return "app-" + version + ".war"
}

// operation is the subset of a management operation the fake container reads.
type operation struct {
	Operation string              `json:"operation"`
	Address   []map[string]string `json:"address"`
	Name      string              `json:"name"`
	Content   []map[string]int    `json:"content"`
	Steps     []operation         `json:"steps"`
}

func (o operation) deploymentName() string {
	for _, segment := range o.Address {
		if name, ok := segment["deployment"]; ok {
			return name
		}
	}

	return o.Name
}

func (o operation) stream(streams map[int][]byte) []byte {
	if len(o.Content) == 0 {
		return nil
	}

	return streams[o.Content[0]["input-stream-index"]]
}

// managedContainer fakes the container's HTTP management interface.
type managedContainer struct {
	server *httptest.Server

	mu          sync.Mutex
	deployments map[string][]byte
}

func newManagedContainer(t *testing.T) *managedContainer {
	t.Helper()

	c := &managedContainer{deployments: map[string][]byte{}}
	mux := http.NewServeMux()

	mux.HandleFunc("/management", func(w http.ResponseWriter, r *http.Request) {
		var op operation
		if err := json.NewDecoder(r.Body).Decode(&op); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)

			return
		}

		c.respond(w, op, nil)
	})

	mux.HandleFunc("/management-upload", func(w http.ResponseWriter, r *http.Request) {
		reader, err := r.MultipartReader()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)

			return
		}

		op, streams, err := readUpload(reader)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)

			return
		}

		c.respond(w, op, streams)
	})

	c.server = httptest.NewServer(mux)
	t.Cleanup(c.server.Close)

	return c
}

func readUpload(reader *multipart.Reader) (operation, map[int][]byte, error) {
	var (
		op      operation
		streams = map[int][]byte{}
	)

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return op, streams, nil
		}

		if err != nil {
			return op, nil, err
		}

		if part.FormName() == "operation" {
			if err = json.NewDecoder(part).Decode(&op); err != nil {
				return op, nil, err
			}

			continue
		}

		index, err := strconv.Atoi(strings.TrimPrefix(part.FormName(), "input-stream-"))
		if err != nil {
			return op, nil, err
		}

		digest := sha1.New() //nolint:gosec // Artifact digests.
		if _, err = io.Copy(digest, part); err != nil {
			return op, nil, err
		}

		streams[index] = digest.Sum(nil)
	}
}

func (c *managedContainer) respond(w http.ResponseWriter, op operation, streams map[int][]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch op.Operation {
	case "read-resource":
		writeJSON(w, http.StatusOK, map[string]any{"outcome": "success", "result": c.readDeployments()})
	case "composite":
		c.composite(w, op, streams)
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"outcome":             "failed",
			"failure-description": "unsupported operation " + op.Operation,
		})
	}
}

func (c *managedContainer) readDeployments() []any {
	entries := make([]any, 0, len(c.deployments))

	for _, name := range slices.Sorted(maps.Keys(c.deployments)) {
		entries = append(entries, map[string]any{
			"outcome": "success",
			"result": map[string]any{
				"name":    name,
				"content": []any{map[string]any{"hash": map[string]string{"BYTES_VALUE": base64.StdEncoding.EncodeToString(c.deployments[name])}}},
				"subsystem": map[string]any{
					"undertow": map[string]string{"context-root": "/" + strings.TrimSuffix(name, path.Ext(name))},
				},
			},
		})
	}

	return entries
}

// composite applies every step or none of them.
func (c *managedContainer) composite(w http.ResponseWriter, op operation, streams map[int][]byte) {
	next := maps.Clone(c.deployments)

	results := map[string]any{}

	for i, step := range op.Steps {
		id := "step-" + strconv.Itoa(i+1)
		name := step.deploymentName()

		_, exists := next[name]

		var failure string

		switch step.Operation {
		case "add":
			if exists {
				failure = "duplicate resource " + name
			} else {
				next[name] = step.stream(streams)
			}
		case "full-replace-deployment":
			next[name] = step.stream(streams)
		case "deploy", "undeploy":
			if !exists {
				failure = "no such deployment " + name
			}
		case "remove":
			if !exists {
				failure = "no such deployment " + name
			}

			delete(next, name)
		default:
			failure = "unsupported step " + step.Operation
		}

		if failure != "" {
			results[id] = map[string]any{"outcome": "failed", "failure-description": failure}
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"outcome":             "failed",
				"failure-description": failure,
				"rolled-back":         true,
				"result":              results,
			})

			return
		}

		results[id] = map[string]any{"outcome": "success"}
	}

	c.deployments = next

	writeJSON(w, http.StatusOK, map[string]any{"outcome": "success", "result": results})
}

func (c *managedContainer) digest(name string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	digest, ok := c.deployments[name]

	return digest, ok
}

// baseURL is the address handed to the server configuration.
func baseURL(server *httptest.Server, suffix string) string {
	u, _ := url.Parse(server.URL)
	u.Path = suffix

	return u.String()
}
