// Package httpapi exposes the REST surface: projects, jobs, the token
// ledger, asset editing and edit history.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	app "github.com/Raunak-cloud/pocket-dev/internal/app"
	clarifydomain "github.com/Raunak-cloud/pocket-dev/internal/app/domain/clarify"
	"github.com/Raunak-cloud/pocket-dev/internal/app/domain/job"
	"github.com/Raunak-cloud/pocket-dev/internal/app/domain/project"
	"github.com/Raunak-cloud/pocket-dev/internal/app/services/assets"
	"github.com/Raunak-cloud/pocket-dev/internal/app/services/jobs"
	ledgersvc "github.com/Raunak-cloud/pocket-dev/internal/app/services/ledger"
)

// maxUploadBytes bounds a single asset upload.
const maxUploadBytes = 8 << 20

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a mux exposing the core REST API.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.health)
	mux.HandleFunc("/projects", h.projects)
	mux.HandleFunc("/projects/", h.projectResources)
	mux.HandleFunc("/jobs", h.jobs)
	mux.HandleFunc("/jobs/", h.jobResources)
	mux.HandleFunc("/ledger/balance", h.balance)
	mux.HandleFunc("/ledger/transactions", h.transactions)
	mux.HandleFunc("/ledger/topup", h.topUp)
	if application.Uploads != nil {
		mux.Handle("/uploads/", http.StripPrefix("/uploads/",
			http.FileServer(http.Dir(application.Uploads.Dir()))))
	}
	return mux
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// userID is the caller identity. Authentication proper lives in the gateway
// in front of this service; here the header is trusted.
func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}

func (h *handler) projects(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, errors.New("missing X-User-ID header"))
		return
	}

	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Name string `json:"name"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		p, err := h.app.Projects.Create(r.Context(), uid, payload.Name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)

	case http.MethodGet:
		list, err := h.app.Projects.List(r.Context(), uid)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, list)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) projectResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/projects"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	projectID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			p, err := h.app.Projects.Get(r.Context(), projectID)
			if err != nil {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeJSON(w, http.StatusOK, p)
		case http.MethodPatch:
			var payload struct {
				Name string `json:"name"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			p, err := h.app.Projects.Rename(r.Context(), projectID, payload.Name)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeJSON(w, http.StatusOK, p)
		case http.MethodDelete:
			if err := h.app.Projects.Delete(r.Context(), projectID); err != nil {
				writeError(w, http.StatusNotFound, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	switch parts[1] {
	case "publish":
		h.projectPublish(w, r, projectID)
	case "history":
		h.projectHistory(w, r, projectID)
	case "rollback":
		h.projectRollback(w, r, projectID)
	case "assets":
		h.projectAssets(w, r, projectID, parts[2:])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) projectPublish(w http.ResponseWriter, r *http.Request, projectID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, err := h.app.Projects.Publish(r.Context(), projectID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) projectHistory(w http.ResponseWriter, r *http.Request, projectID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	entries, err := h.app.History.List(r.Context(), projectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handler) projectRollback(w http.ResponseWriter, r *http.Request, projectID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		EntryID string `json:"entry_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := h.app.History.Rollback(r.Context(), projectID, payload.EntryID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) projectAssets(w http.ResponseWriter, r *http.Request, projectID string, rest []string) {
	if r.Method != http.MethodPost || len(rest) == 0 {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch rest[0] {
	case "select":
		h.assetSelect(w, r, projectID)
	case "upload":
		h.assetUpload(w, r, projectID)
	case "regenerate":
		h.assetRegenerate(w, r, projectID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) assetSelect(w http.ResponseWriter, r *http.Request, projectID string) {
	var payload struct {
		Src         string `json:"src"`
		ResolvedSrc string `json:"resolved_src"`
		Alt         string `json:"alt"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := h.app.Projects.Get(r.Context(), projectID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	sel := h.app.Assets.SelectOccurrence(p, payload.Src, payload.ResolvedSrc, payload.Alt)
	writeJSON(w, http.StatusOK, sel)
}

func (h *handler) assetUpload(w http.ResponseWriter, r *http.Request, projectID string) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var sel assets.Selection
	if raw := r.FormValue("selection"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &sel); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer file.Close()
	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	p, err := h.app.Projects.Get(r.Context(), projectID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	updated, newSrc, err := h.app.Assets.ReplaceWithUpload(r.Context(), p, sel, header.Filename, content)
	h.finishAssetReplace(w, r, updated, newSrc, err)
}

func (h *handler) assetRegenerate(w http.ResponseWriter, r *http.Request, projectID string) {
	var payload struct {
		Selection   assets.Selection `json:"selection"`
		Description string           `json:"description"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := h.app.Projects.Get(r.Context(), projectID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	updated, newSrc, err := h.app.Assets.ReplaceWithGenerated(r.Context(), p, payload.Selection, payload.Description)
	h.finishAssetReplace(w, r, updated, newSrc, err)
}

// finishAssetReplace persists the mutated project. ErrReplacementNotFound is
// soft: the fallback replacement was applied and the response carries a
// warning instead of failing.
func (h *handler) finishAssetReplace(w http.ResponseWriter, r *http.Request, updated project.Project, newSrc string, err error) {
	warning := ""
	if err != nil {
		if !errors.Is(err, assets.ErrReplacementNotFound) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		warning = err.Error()
	}
	saved, err := h.app.Projects.Apply(r.Context(), updated)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	resp := map[string]any{"project": saved, "new_src": newSrc}
	if warning != "" {
		resp["warning"] = warning
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) jobs(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, errors.New("missing X-User-ID header"))
		return
	}

	switch r.Method {
	case http.MethodPost:
		var payload struct {
			ProjectID       string                `json:"project_id"`
			ProjectName     string                `json:"project_name"`
			Kind            string                `json:"kind"`
			Prompt          string                `json:"prompt"`
			TargetPaths     []string              `json:"target_paths"`
			Exchanges       []clarifyExchangeJSON `json:"exchanges"`
			AuthOptions     []string              `json:"auth_options"`
			DatabaseOptions []string              `json:"database_options"`
			AutoConfirm     bool                  `json:"auto_confirm"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		req := jobs.SubmitRequest{
			UserID:          uid,
			ProjectID:       payload.ProjectID,
			ProjectName:     payload.ProjectName,
			Kind:            job.Kind(payload.Kind),
			Prompt:          payload.Prompt,
			TargetPaths:     payload.TargetPaths,
			Exchanges:       exchangesFromJSON(payload.Exchanges),
			AuthOptions:     payload.AuthOptions,
			DatabaseOptions: payload.DatabaseOptions,
			AutoConfirm:     payload.AutoConfirm,
		}
		created, err := h.app.Jobs.Submit(r.Context(), req)
		if err != nil {
			writeSubmitError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)

	case http.MethodGet:
		list, err := h.app.Jobs.List(r.Context(), uid)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, list)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) jobResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/jobs"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	jobID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		j, err := h.app.Jobs.Get(r.Context(), jobID)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, j)
		return
	}

	switch parts[1] {
	case "confirm":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		j, err := h.app.Jobs.Confirm(r.Context(), jobID)
		if err != nil {
			writeSubmitError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, j)
	case "cancel":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		j, err := h.app.Jobs.Cancel(r.Context(), jobID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, j)
	case "progress":
		h.jobProgress(w, r, jobID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) balance(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, errors.New("missing X-User-ID header"))
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	balance, err := h.app.Ledger.Balance(r.Context(), uid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"balance": balance})
}

func (h *handler) transactions(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, errors.New("missing X-User-ID header"))
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	txs, err := h.app.Ledger.Transactions(r.Context(), uid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// topUp credits tokens after a completed checkout. The billing gateway in
// front of this service verifies payment; the reference ties the credit to
// the checkout session.
func (h *handler) topUp(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, errors.New("missing X-User-ID header"))
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Amount    float64 `json:"amount"`
		Reference string  `json:"reference"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	balance, err := h.app.Ledger.Deposit(r.Context(), uid, payload.Amount, payload.Reference)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"balance": balance})
}

// writeSubmitError maps the orchestrator's typed rejections onto statuses the
// client UI dispatches on.
func writeSubmitError(w http.ResponseWriter, err error) {
	var topUp *jobs.TopUpRequiredError
	if errors.As(err, &topUp) {
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":           topUp.Error(),
			"top_up_required": true,
			"required":        topUp.Required,
			"balance":         topUp.Balance,
		})
		return
	}
	var clar *jobs.ClarificationRequiredError
	if errors.As(err, &clar) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":                  clar.Error(),
			"clarification_required": true,
			"question":               clar.Question,
			"suggestion":             clar.Suggestion,
		})
		return
	}
	var sel *jobs.IntegrationSelectionError
	if errors.As(err, &sel) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":               sel.Error(),
			"selection_required":  true,
			"has_auth_intent":     sel.Intents.HasAuthIntent,
			"has_database_intent": sel.Intents.HasDatabaseIntent,
		})
		return
	}
	if errors.Is(err, jobs.ErrJobActive) || errors.Is(err, ledgersvc.ErrInsufficientBalance) {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeError(w, http.StatusBadRequest, err)
}

type clarifyExchangeJSON struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func exchangesFromJSON(in []clarifyExchangeJSON) []clarifydomain.Exchange {
	if len(in) == 0 {
		return nil
	}
	out := make([]clarifydomain.Exchange, len(in))
	for i, ex := range in {
		out[i] = clarifydomain.Exchange{Question: ex.Question, Answer: ex.Answer}
	}
	return out
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
