package deployments

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/gitter-badger/deployer-1/internal/domain/deployment"
	"github.com/gitter-badger/deployer-1/internal/service/deployer"
)

const maxBodySize = 1 << 20

// Form actions accepted by POST /deployments/{contextRoot}.
const (
	ActionDeploy   = "deploy"
	ActionRedeploy = "redeploy"
	ActionUndeploy = "undeploy"
)

// ListDeployments handles GET /deployments.
func (h *Handler) ListDeployments(w http.ResponseWriter, r *http.Request) {
	units, err := h.service.ListAll(r.Context())
	if err != nil {
		writeError(w, r, err)

		return
	}

	body := make([]unitBody, 0, len(units))
	for _, unit := range units {
		body = append(body, toBody(unit))
	}

	writeJSON(w, http.StatusOK, body)
}

// GetDeployment handles GET /deployments/{contextRoot}.
func (h *Handler) GetDeployment(w http.ResponseWriter, r *http.Request) {
	root := contextRootParam(r)

	unit, err := h.service.FindByContextRoot(r.Context(), root)
	if err != nil {
		writeError(w, r, err)

		return
	}

	// Content unknown to the repository has no other versions.
	versions, err := h.service.AvailableVersions(r.Context(), root)
	if err != nil && !errors.Is(err, deployment.ErrNotFound) {
		writeError(w, r, err)

		return
	}

	body := toBody(unit)
	body.Versions = versions

	writeJSON(w, http.StatusOK, body)
}

// PutDeployment handles PUT /deployments/{contextRoot}: it deploys or redeploys
// the artifact identified by the body checksum.
func (h *Handler) PutDeployment(w http.ResponseWriter, r *http.Request) {
	root := contextRootParam(r)

	var body upsertBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)

		return
	}

	if body.ContextRoot != "" {
		if err := deployer.CheckContextRoot(root, deployment.NormalizeContextRoot(body.ContextRoot)); err != nil {
			writeError(w, r, err)

			return
		}
	}

	cs, err := deployment.ParseChecksum(body.Checksum)
	if err != nil {
		writeError(w, r, err)

		return
	}

	unit, created, err := h.service.Upsert(withRequester(r), root, cs)
	if err != nil {
		writeError(w, r, err)

		return
	}

	if !created {
		w.WriteHeader(http.StatusNoContent)

		return
	}

	w.Header().Set("Location", deploymentPath(unit.ContextRoot))
	writeJSON(w, http.StatusCreated, toBody(unit))
}

// PostDeployments handles the form-driven POST /deployments. Only deploy is
// accepted there and the context root follows from the artifact.
func (h *Handler) PostDeployments(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r); err != nil {
		writeError(w, r, err)

		return
	}

	if action := r.PostForm.Get("action"); action != ActionDeploy {
		writeError(w, r, fmt.Errorf("action %q needs a context root: %w", action, deployment.ErrValidation))

		return
	}

	if formRoot := r.PostForm.Get("contextRoot"); formRoot != "" {
		writeError(w, r, fmt.Errorf("context root to deploy must be empty, not %q: %w", formRoot, deployment.ErrValidation))

		return
	}

	h.deploy(w, r, "")
}

// PostDeployment handles the form-driven POST /deployments/{contextRoot}.
func (h *Handler) PostDeployment(w http.ResponseWriter, r *http.Request) {
	root := contextRootParam(r)

	if err := parseForm(w, r); err != nil {
		writeError(w, r, err)

		return
	}

	if formRoot := r.PostForm.Get("contextRoot"); formRoot != "" {
		if err := deployer.CheckContextRoot(root, deployment.NormalizeContextRoot(formRoot)); err != nil {
			writeError(w, r, err)

			return
		}
	}

	ctx := withRequester(r)
	action := r.PostForm.Get("action")

	switch action {
	case ActionDeploy:
		h.deploy(w, r, root)
	case ActionRedeploy:
		cs, err := deployment.ParseChecksum(r.PostForm.Get("checksum"))
		if err != nil {
			writeError(w, r, err)

			return
		}

		unit, err := h.service.RedeployChecksum(ctx, root, cs)
		if err != nil {
			writeError(w, r, err)

			return
		}

		http.Redirect(w, r, deploymentPath(unit.ContextRoot), http.StatusSeeOther)
	case ActionUndeploy:
		if _, err := h.service.UndeployContextRoot(ctx, root); err != nil {
			writeError(w, r, err)

			return
		}

		http.Redirect(w, r, "/deployments", http.StatusSeeOther)
	default:
		writeError(w, r, fmt.Errorf("unknown action %q: %w", action, deployment.ErrValidation))
	}
}

// deploy runs the deploy form action. A non-empty root must be the context
// root the artifact deploys as; it is checked before anything is deployed.
func (h *Handler) deploy(w http.ResponseWriter, r *http.Request, root deployment.ContextRoot) {
	cs, err := deployment.ParseChecksum(r.PostForm.Get("checksum"))
	if err != nil {
		writeError(w, r, err)

		return
	}

	name := r.PostForm.Get("name")

	if root != "" {
		if err = h.checkDeployRoot(r, root, cs, name); err != nil {
			writeError(w, r, err)

			return
		}
	}

	unit, err := h.service.DeployChecksum(withRequester(r), cs, name)
	if err != nil {
		writeError(w, r, err)

		return
	}

	http.Redirect(w, r, deploymentPath(unit.ContextRoot), http.StatusSeeOther)
}

// checkDeployRoot compares root with the context root cs would deploy as.
func (h *Handler) checkDeployRoot(r *http.Request, root deployment.ContextRoot, cs deployment.Checksum, name string) error {
	loc, err := h.service.ResolveChecksum(r.Context(), cs)
	if err != nil {
		return err
	}

	unit, err := deployment.UnitFromLocation(loc, cs)
	if err != nil {
		return err
	}

	if name != "" {
		unit = unit.WithName(name)
	}

	return deployer.CheckContextRoot(root, unit.ContextRoot)
}

func parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("parse form: %v: %w", err, deployment.ErrValidation)
	}

	return nil
}

// DeleteDeployment handles DELETE /deployments/{contextRoot}.
func (h *Handler) DeleteDeployment(w http.ResponseWriter, r *http.Request) {
	if _, err := h.service.UndeployContextRoot(withRequester(r), contextRootParam(r)); err != nil {
		writeError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PutVersion handles PUT /deployments/{contextRoot}/version.
func (h *Handler) PutVersion(w http.ResponseWriter, r *http.Request) {
	var body versionBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)

		return
	}

	if body.Version == "" {
		writeError(w, r, fmt.Errorf("version is required: %w", deployment.ErrValidation))

		return
	}

	unit, err := h.service.RedeployVersion(withRequester(r), contextRootParam(r), deployment.Version(body.Version))
	if err != nil {
		writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, toBody(unit))
}

// GetChecksum handles GET /checksums/{checksum}.
func (h *Handler) GetChecksum(w http.ResponseWriter, r *http.Request) {
	cs, err := checksumParam(r)
	if err != nil {
		writeError(w, r, err)

		return
	}

	loc, err := h.service.ResolveChecksum(r.Context(), cs)
	if err != nil {
		writeError(w, r, err)

		return
	}

	body := artifactBody{Checksum: cs.Hex(), Path: loc.Path, DownloadURI: loc.DownloadURI}
	if v, err := loc.Version(); err == nil {
		body.Version = v.String()
	}

	writeJSON(w, http.StatusOK, body)
}

// GetChecksumVersions handles GET /checksums/{checksum}/versions.
func (h *Handler) GetChecksumVersions(w http.ResponseWriter, r *http.Request) {
	cs, err := checksumParam(r)
	if err != nil {
		writeError(w, r, err)

		return
	}

	versions, err := h.service.ListVersions(r.Context(), cs)
	if err != nil {
		writeError(w, r, err)

		return
	}

	if versions == nil {
		versions = []deployment.Version{}
	}

	writeJSON(w, http.StatusOK, versions)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %v: %w", err, deployment.ErrValidation)
	}

	return nil
}

func deploymentPath(root deployment.ContextRoot) string {
	return "/deployments/" + url.PathEscape(root.String())
}
