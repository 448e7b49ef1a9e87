package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/brunobiangulo/gotaxon"
	"github.com/brunobiangulo/gotaxon/graph"
	"github.com/brunobiangulo/gotaxon/llm"
	"github.com/brunobiangulo/gotaxon/store"
	"github.com/brunobiangulo/gotaxon/taxonomy"
)

type handler struct {
	engine  gotaxon.Engine
	dataDir string

	// passes outlives any single request; the server cancels it once
	// running passes are out of shutdown grace.
	passes      context.Context
	passTimeout time.Duration // 0 = unlimited
}

func newHandler(e gotaxon.Engine, dataDir string) *handler {
	return &handler{engine: e, dataDir: dataDir, passes: context.Background()}
}

// passContext detaches a pass from its request: a client that hangs up does
// not truncate it. Only shutdown and passTimeout stop it early; a pass that
// lost chunks that way does not replace its artifact.
func (h *handler) passContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	stop := context.AfterFunc(h.passes, cancel)
	if h.passTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, h.passTimeout)
		return ctx, func() { cancelTimeout(); stop(); cancel() }
	}
	return ctx, func() { stop(); cancel() }
}

const interruptedMessage = "pass interrupted before completion; previous output kept"

func (h *handler) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /category/{taskGroup}", h.handleCategory)
	mux.HandleFunc("GET /parent-child/{taskGroup}", h.handleParentChild)
	// Paths used by existing clients.
	mux.HandleFunc("GET /gemini/category/{taskGroup}", h.handleCategory)
	mux.HandleFunc("GET /gemini/parent-child/{taskGroup}", h.handleParentChild)

	mux.HandleFunc("GET /runs", h.handleListRuns)
	mux.HandleFunc("GET /runs/latest", h.handleLatestRun)
	mux.HandleFunc("GET /runs/{id}", h.handleGetRun)
	mux.HandleFunc("DELETE /runs/{id}", h.handleDeleteRun)
	mux.HandleFunc("GET /runs/{id}/tree", h.handleTree)
	mux.HandleFunc("GET /runs/{id}/relations", h.handleRelations)
	mux.HandleFunc("GET /health", h.handleHealth)
	return mux
}

// runInfo is the short run description returned by the pipeline routes.
type runInfo struct {
	ID      string           `json:"id"`
	Summary taxonomy.Summary `json:"summary"`
	Usage   llm.Usage        `json:"usage"`
}

// GET /category/{taskGroup}
// Categorizes <data_dir>/<taskGroup>/train_data.txt into category.txt.
func (h *handler) handleCategory(w http.ResponseWriter, r *http.Request) {
	group := r.PathValue("taskGroup")
	dir, err := gotaxon.TaskGroupDir(h.dataDir, group)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := h.passContext(r)
	defer cancel()

	run, err := h.engine.CategorizeFile(ctx, filepath.Join(dir, gotaxon.TrainDataFile), gotaxon.WithTaskGroup(group))
	if err != nil {
		h.fail(w, r, "category", group, err)
		return
	}
	if ctx.Err() != nil && run.Summary.Canceled {
		h.interrupted(w, r, "category", group, runInfo{ID: run.RunID, Summary: run.Summary, Usage: run.Usage}, ctx.Err())
		return
	}
	if err := gotaxon.WriteCategoryFile(filepath.Join(dir, gotaxon.CategoryFile), run.Categories); err != nil {
		h.fail(w, r, "category", group, err)
		return
	}
	writeOkay(w, runInfo{ID: run.RunID, Summary: run.Summary, Usage: run.Usage})
}

// GET /parent-child/{taskGroup}
// Relates <data_dir>/<taskGroup>/category.txt into isArelationship.json.
func (h *handler) handleParentChild(w http.ResponseWriter, r *http.Request) {
	group := r.PathValue("taskGroup")
	dir, err := gotaxon.TaskGroupDir(h.dataDir, group)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := h.passContext(r)
	defer cancel()

	run, err := h.engine.RelateFile(ctx, filepath.Join(dir, gotaxon.CategoryFile), gotaxon.WithTaskGroup(group))
	if err != nil {
		h.fail(w, r, "parent-child", group, err)
		return
	}
	if ctx.Err() != nil && run.Summary.Canceled {
		h.interrupted(w, r, "parent-child", group, runInfo{ID: run.RunID, Summary: run.Summary, Usage: run.Usage}, ctx.Err())
		return
	}
	if err := gotaxon.WriteRelationFile(filepath.Join(dir, gotaxon.RelationFile), run.Relations); err != nil {
		h.fail(w, r, "parent-child", group, err)
		return
	}
	writeOkay(w, runInfo{ID: run.RunID, Summary: run.Summary, Usage: run.Usage})
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, route, group string, err error) {
	status := statusFor(err)
	attrs := []any{"request_id", requestID(r.Context()), "route", route, "task_group", group, "error", err}
	if status >= http.StatusInternalServerError {
		slog.Error("server: pass failed", attrs...)
	} else {
		slog.Warn("server: pass rejected", attrs...)
	}
	writeError(w, status, err.Error())
}

// interrupted answers 503 for a pass cut short by shutdown or passTimeout.
// The partial run stays recorded as canceled.
func (h *handler) interrupted(w http.ResponseWriter, r *http.Request, route, group string, run runInfo, cause error) {
	slog.Warn("server: pass interrupted, artifact not written",
		"request_id", requestID(r.Context()), "route", route, "task_group", group,
		"run_id", run.ID, "merged", run.Summary.Attempted-run.Summary.Failed,
		"attempted", run.Summary.Attempted, "cause", cause)
	writeJSON(w, http.StatusServiceUnavailable, map[string]any{
		"status":  http.StatusServiceUnavailable,
		"message": interruptedMessage,
		"run":     run,
	})
}

// GET /runs?pass=&task_group=&limit=
func (h *handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.RunFilter{Pass: q.Get("pass"), TaskGroup: q.Get("task_group")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = n
	}

	runs, err := h.engine.ListRuns(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		slog.Error("server: listing runs", "request_id", requestID(r.Context()), "error", err)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// GET /runs/{id}
func (h *handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	d, err := h.engine.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// GET /runs/latest?pass=&task_group=
func (h *handler) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pass := q.Get("pass")
	if pass == "" {
		pass = store.PassParentChild
	}
	run, err := h.engine.LatestRun(r.Context(), pass, q.Get("task_group"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// DELETE /runs/{id}
func (h *handler) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteRun(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GET /runs/{id}/relations?term=a&term=b
// Raw stored relations mentioning any of the terms, duplicates included.
func (h *handler) handleRelations(w http.ResponseWriter, r *http.Request) {
	terms := r.URL.Query()["term"]
	if len(terms) == 0 {
		writeError(w, http.StatusBadRequest, "at least one term is required")
		return
	}
	rs, err := h.engine.RunRelations(r.Context(), r.PathValue("id"), terms...)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": r.PathValue("id"), "relations": rs})
}

// GET /runs/{id}/tree?term=&depth=
// Without term the whole forest is returned; with term, its descendants
// and ancestors up to depth levels.
func (h *handler) handleTree(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	hier, err := h.engine.Hierarchy(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	resp := map[string]any{
		"run_id": id,
		"stats":  hier.Stats(),
	}

	term := r.URL.Query().Get("term")
	if term == "" {
		forest := hier.Tree()
		var outline bytes.Buffer
		if err := graph.Render(&outline, forest); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to render tree")
			return
		}
		resp["roots"] = hier.Roots()
		resp["cycles"] = hier.Cycles()
		resp["tree"] = forest
		resp["outline"] = outline.String()
		writeJSON(w, http.StatusOK, resp)
		return
	}

	if !hier.Has(term) {
		writeError(w, http.StatusNotFound, "term not in hierarchy: "+term)
		return
	}
	depth := 0
	if v := r.URL.Query().Get("depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid depth")
			return
		}
		depth = n
	}
	resp["term"] = term
	resp["children"] = hier.Children(term)
	resp["parents"] = hier.Parents(term)
	resp["descendants"] = hier.Descendants(term, depth)
	resp["ancestors"] = hier.Ancestors(term, depth)
	writeJSON(w, http.StatusOK, resp)
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if stats, err := h.engine.Store().DBStats(r.Context()); err == nil {
		resp["db"] = stats
	}
	writeJSON(w, http.StatusOK, resp)
}

// statusFor maps engine errors to HTTP statuses. Anything that goes wrong
// before a pass starts is the caller's problem.
func statusFor(err error) int {
	switch {
	case errors.Is(err, gotaxon.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, gotaxon.ErrInvalidConfig),
		errors.Is(err, gotaxon.ErrInvalidInput),
		errors.Is(err, gotaxon.ErrEmptyInput),
		errors.Is(err, gotaxon.ErrUnsupportedFormat),
		errors.Is(err, fs.ErrNotExist):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeOkay(w http.ResponseWriter, run runInfo) {
	writeJSON(w, http.StatusOK, map[string]any{
		"code":    http.StatusOK,
		"message": "Okay",
		"run":     run,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"status": status, "message": msg})
}
