// handlers.go - HTTP handlers for the warehouse dashboard
package api

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/seqlab/warehouse/internal/config"
	"github.com/seqlab/warehouse/internal/pipeline"
	"github.com/seqlab/warehouse/internal/store"
)

// Handler serves the reconciled dataset and run diagnostics. It holds
// the latest completed run; a refresh swaps the whole state at once so
// readers never see a half-loaded dataset.
type Handler struct {
	cfg     *config.Config
	pipe    *pipeline.Pipeline
	log     *zap.Logger
	version string

	mu     sync.RWMutex
	result *pipeline.Result
	store  *store.Store
}

func NewHandler(cfg *config.Config, pipe *pipeline.Pipeline, log *zap.Logger, version string) *Handler {
	return &Handler{cfg: cfg, pipe: pipe, log: log, version: version}
}

// SetLatest installs a completed run and its dataset store, closing the
// previous store.
func (h *Handler) SetLatest(result *pipeline.Result, st *store.Store) {
	h.mu.Lock()
	old := h.store
	h.result = result
	h.store = st
	h.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

func (h *Handler) latest() (*pipeline.Result, *store.Store) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.result, h.store
}

// HandleHealth returns service health and the latest run status.
func (h *Handler) HandleHealth(c echo.Context) error {
	result, _ := h.latest()
	resp := map[string]any{
		"status":  "ok",
		"version": h.version,
	}
	if result != nil && result.Report != nil {
		resp["runId"] = result.Report.ID
		resp["runStatus"] = result.Report.Status
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleGetDataset pages through the flattened reconciled dataset.
// Query params: page, pageSize, filterColumn, filterValue.
func (h *Handler) HandleGetDataset(c echo.Context) error {
	_, st := h.latest()
	if st == nil {
		return NewServiceUnavailableError("no dataset loaded yet")
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.QueryParam("pageSize"))
	if pageSize < 1 {
		pageSize = 100
	}

	rows, err := st.Query(pageSize, (page-1)*pageSize,
		c.QueryParam("filterColumn"), c.QueryParam("filterValue"))
	if err != nil {
		return NewBadRequestError("querying dataset", err)
	}

	payload := map[string]any{
		"rows":     rows,
		"total":    st.Count(),
		"page":     page,
		"pageSize": pageSize,
	}
	return h.respond(c, payload)
}

// HandleGetColumns lists the dataset columns with their display labels
// and datatypes.
func (h *Handler) HandleGetColumns(c echo.Context) error {
	_, st := h.latest()
	if st == nil {
		return NewServiceUnavailableError("no dataset loaded yet")
	}
	type column struct {
		Attribute string `json:"attribute"`
		Label     string `json:"label"`
		Datatype  string `json:"datatype"`
	}
	var cols []column
	for _, spec := range st.Columns() {
		cols = append(cols, column{
			Attribute: spec.Attribute,
			Label:     spec.Label,
			Datatype:  string(spec.Datatype),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"columns": cols})
}

// HandleGetReport returns the full run report: sources, counts and
// every collected issue.
func (h *Handler) HandleGetReport(c echo.Context) error {
	result, _ := h.latest()
	if result == nil || result.Report == nil {
		return NewNotFoundError("run report")
	}
	return h.respond(c, result.Report)
}

// HandleGetAggregation returns the artifact aggregation report.
func (h *Handler) HandleGetAggregation(c echo.Context) error {
	result, _ := h.latest()
	if result == nil || result.Aggregate == nil {
		return NewNotFoundError("aggregation report")
	}
	return h.respond(c, result.Aggregate)
}

// HandleRefresh re-runs the whole pipeline and swaps in the new
// dataset. Runs synchronously: the lab's datasets reconcile in seconds.
func (h *Handler) HandleRefresh(c echo.Context) error {
	result, err := h.pipe.Run()
	if err != nil {
		h.log.Error("refresh run failed", zap.Error(err))
		return NewInternalError("pipeline run failed", err)
	}

	st, err := store.New(h.cfg.DatasetPath(), result.Fields)
	if err != nil {
		return NewInternalError("rebuilding dataset store", err)
	}
	if err := st.LoadRows(result.Rows); err != nil {
		st.Close()
		return NewInternalError("loading dataset store", err)
	}
	h.SetLatest(result, st)

	return c.JSON(http.StatusOK, map[string]any{
		"runId":   result.Report.ID,
		"status":  result.Report.Status,
		"records": result.Report.RecordCount,
		"issues":  result.Report.IssueCount(),
	})
}

// respond sends msgpack when the client asks for it, JSON otherwise.
func (h *Handler) respond(c echo.Context, payload any) error {
	if c.Request().Header.Get(echo.HeaderAccept) == "application/msgpack" {
		data, err := msgpack.Marshal(payload)
		if err != nil {
			return NewInternalError("failed to encode msgpack", err)
		}
		return c.Blob(http.StatusOK, "application/msgpack", data)
	}
	return c.JSON(http.StatusOK, payload)
}
