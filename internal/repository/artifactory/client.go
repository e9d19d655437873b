package artifactory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/gitter-badger/deployer-1/internal/domain/deployment"
	"github.com/gitter-badger/deployer-1/internal/logger"
)

// DefaultTimeout bounds metadata requests when Options.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// checksumSearchPath is appended to the base URL for checksum lookups.
const checksumSearchPath = "api/search/checksum"

var errMissingBaseURL = errors.New("repository url is required")

// Options configure a Client.
type Options struct {
	// URL is the repository base, e.g. "http://repo:8081/artifactory".
	URL string
	// Username and Password enable basic auth when Username is set.
	Username string
	Password string
	// Timeout bounds metadata requests. Artifact streams are bounded by the caller's context only.
	Timeout time.Duration
	// Transport overrides the HTTP transport, mostly for tests.
	Transport http.RoundTripper
}

// Client talks to the repository REST API. It is safe for concurrent use.
type Client struct {
	baseURL  *url.URL
	username string
	password string
	timeout  time.Duration
	http     *http.Client
}

type checksumSearchResult struct {
	Results []checksumSearchItem `json:"results"`
}

type checksumSearchItem struct {
	URI         string `json:"uri"`
	DownloadURI string `json:"downloadUri"`
}

type folderInfo struct {
	Children []folderChild `json:"children"`
}

type folderChild struct {
	URI    string `json:"uri"`
	Folder bool   `json:"folder"`
}

type fileInfo struct {
	Checksums   map[string]string `json:"checksums"`
	DownloadURI string            `json:"downloadUri"`
}

// New validates the options and builds a client.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, errMissingBaseURL
	}

	baseURL, err := url.Parse(strings.TrimSuffix(opts.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse repository url: %w", err)
	}

	if !baseURL.IsAbs() {
		return nil, fmt.Errorf("repository url %q is not absolute: %w", opts.URL, deployment.ErrValidation)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Client{
		baseURL:  baseURL,
		username: opts.Username,
		password: opts.Password,
		timeout:  timeout,
		http:     &http.Client{Transport: transport},
	}, nil
}

// ResolveByChecksum finds the single artifact with the given checksum.
func (c *Client) ResolveByChecksum(ctx context.Context, cs deployment.Checksum) (deployment.ArtifactLocation, error) {
	algorithm := cs.Algorithm()
	if algorithm == "" {
		return deployment.ArtifactLocation{}, fmt.Errorf("checksum %q: %w", cs, deployment.ErrValidation)
	}

	searchURL := c.baseURL.JoinPath(checksumSearchPath)
	searchURL.RawQuery = url.Values{algorithm: []string{cs.Hex()}}.Encode()

	logger.DebugKV(ctx, "Searching repository by checksum", "checksum", cs, "algorithm", algorithm)

	var result checksumSearchResult
	if err := c.getJSON(ctx, searchURL.String(), &result); err != nil {
		return deployment.ArtifactLocation{}, err
	}

	switch len(result.Results) {
	case 0:
		return deployment.ArtifactLocation{}, fmt.Errorf("checksum %s: %w", cs, deployment.ErrNotFound)
	case 1:
	default:
		return deployment.ArtifactLocation{}, fmt.Errorf("checksum %s matches %d artifacts: %w",
			cs, len(result.Results), deployment.ErrAmbiguousResult)
	}

	hit := result.Results[0]

	hitURL, err := url.Parse(hit.URI)
	if err != nil || hitURL.Path == "" {
		return deployment.ArtifactLocation{}, &deployment.ProtocolError{
			Endpoint: searchURL.String(),
			Status:   "bad artifact uri " + hit.URI,
			Err:      err,
		}
	}

	return deployment.ArtifactLocation{
		Path:        hitURL.Path,
		DownloadURI: hit.DownloadURI,
	}, nil
}

// OpenArtifactStream resolves the checksum and opens its content for reading.
// The caller must close the returned stream.
func (c *Client) OpenArtifactStream(ctx context.Context, cs deployment.Checksum) (io.ReadCloser, error) {
	loc, err := c.ResolveByChecksum(ctx, cs)
	if err != nil {
		return nil, err
	}

	if loc.DownloadURI == "" {
		return nil, &deployment.ProtocolError{Endpoint: loc.Path, Status: "missing download uri"}
	}

	req, err := c.newRequest(ctx, loc.DownloadURI)
	if err != nil {
		return nil, err
	}

	logger.DebugKV(ctx, "Opening artifact stream", "checksum", cs, "uri", loc.DownloadURI)

	response, err := c.http.Do(req)
	if err != nil {
		return nil, &deployment.ProtocolError{Endpoint: loc.DownloadURI, Err: err}
	}

	if response.StatusCode != http.StatusOK {
		_ = response.Body.Close()

		return nil, &deployment.ProtocolError{Endpoint: loc.DownloadURI, Status: response.Status}
	}

	return response.Body, nil
}

// ListVersions returns the version folders next to the artifact, in repository order.
func (c *Client) ListVersions(ctx context.Context, loc deployment.ArtifactLocation) ([]deployment.Version, error) {
	root, err := loc.VersionsRoot()
	if err != nil {
		return nil, err
	}

	children, err := c.listFolder(ctx, root)
	if err != nil {
		return nil, err
	}

	return lo.FilterMap(children, func(child folderChild, _ int) (deployment.Version, bool) {
		return deployment.Version(strings.TrimPrefix(child.URI, "/")), child.Folder
	}), nil
}

// GetVersionByChecksum resolves the checksum and reads the version from its path.
func (c *Client) GetVersionByChecksum(ctx context.Context, cs deployment.Checksum) (deployment.Version, error) {
	loc, err := c.ResolveByChecksum(ctx, cs)
	if err != nil {
		return "", err
	}

	return loc.Version()
}

// ChecksumForVersion finds the artifact of another version next to loc and
// returns its checksum in the given algorithm ("md5", "sha1" or "sha256").
func (c *Client) ChecksumForVersion(
	ctx context.Context,
	loc deployment.ArtifactLocation,
	version deployment.Version,
	algorithm string,
) (deployment.Checksum, error) {
	root, err := loc.VersionsRoot()
	if err != nil {
		return nil, err
	}

	fileName, err := loc.FileName()
	if err != nil {
		return nil, err
	}

	versionFolder := path.Join(root, string(version))

	children, err := c.listFolder(ctx, versionFolder)
	if err != nil {
		return nil, err
	}

	extension := path.Ext(fileName)

	match, found := lo.Find(children, func(child folderChild) bool {
		return !child.Folder && path.Ext(child.URI) == extension
	})
	if !found {
		return nil, fmt.Errorf("no %s artifact in version %s: %w", extension, version, deployment.ErrNotFound)
	}

	var info fileInfo
	if err = c.getJSON(ctx, c.pathURL(path.Join(versionFolder, match.URI)), &info); err != nil {
		return nil, err
	}

	value, ok := info.Checksums[algorithm]
	if !ok {
		return nil, fmt.Errorf("artifact %s has no %s checksum: %w", match.URI, algorithm, deployment.ErrNotFound)
	}

	return deployment.ParseChecksum(value)
}

// listFolder reads the children of a repository folder.
func (c *Client) listFolder(ctx context.Context, folder string) ([]folderChild, error) {
	var info folderInfo
	if err := c.getJSON(ctx, c.pathURL(folder), &info); err != nil {
		return nil, err
	}

	return info.Children, nil
}

// pathURL puts an absolute repository path onto the base host.
func (c *Client) pathURL(p string) string {
	target := *c.baseURL
	target.Path = p
	target.RawPath = ""
	target.RawQuery = ""

	return target.String()
}

// getJSON performs a bounded GET and decodes a JSON body.
func (c *Client) getJSON(ctx context.Context, endpoint string, target any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, endpoint)
	if err != nil {
		return err
	}

	req.Header.Set("Accept", "application/json")

	response, err := c.http.Do(req)
	if err != nil {
		return &deployment.ProtocolError{Endpoint: endpoint, Err: err}
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return &deployment.ProtocolError{Endpoint: endpoint, Status: response.Status}
	}

	if err = json.NewDecoder(response.Body).Decode(target); err != nil {
		return &deployment.ProtocolError{Endpoint: endpoint, Status: "undecodable body", Err: err}
	}

	return nil
}

func (c *Client) newRequest(ctx context.Context, endpoint string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", endpoint, err)
	}

	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	return req, nil
}
