// Package server exposes the dashboard's HTTP API: reads served from the
// synchronized in-memory state, writes routed through the mutation gateway,
// spreadsheet import/export, and the analytics assistant endpoint.
package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/opsboard/opsboard/internal/docstore"
	"github.com/opsboard/opsboard/internal/domain/ops"
	"github.com/opsboard/opsboard/internal/live"
	"github.com/opsboard/opsboard/internal/platform/assistant"
)

type Handler struct {
	sync   *live.Syncer
	gw     *ops.Gateway
	assist *assistant.Client
	log    zerolog.Logger
}

func NewHandler(sync *live.Syncer, gw *ops.Gateway, assist *assistant.Client, log zerolog.Logger) *Handler {
	return &Handler{
		sync:   sync,
		gw:     gw,
		assist: assist,
		log:    log.With().Str("component", "http").Logger(),
	}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/status", h.GetStatus)
	api.GET("/kpi", h.GetKPI)
	api.GET("/insights", h.GetInsights)

	api.GET("/patients", h.ListPatients)
	api.POST("/patients", h.CreatePatient)
	api.POST("/patients/bulk", h.BulkCreatePatients)
	api.PUT("/patients/:id", h.UpdatePatient)
	api.DELETE("/patients/:id", h.DeletePatient)

	api.GET("/records", h.ListRecords)
	api.POST("/records", h.CreateRecord)
	api.POST("/records/bulk", h.BulkCreateRecords)
	api.PUT("/records/:id", h.UpdateRecord)
	api.DELETE("/records/:id", h.DeleteRecord)

	api.GET("/staff", h.ListStaff)
	api.POST("/staff", h.CreateStaff)
	api.POST("/staff/bulk", h.BulkCreateStaff)
	api.PUT("/staff/:id", h.UpdateStaff)
	api.DELETE("/staff/:id", h.DeleteStaff)

	api.GET("/resources", h.ListResources)
	api.PUT("/resources/:id", h.UpdateResource)

	api.GET("/alerts", h.ListAlerts)
	api.POST("/alerts", h.CreateAlert)
	api.POST("/alerts/:id/acknowledge", h.AcknowledgeAlert)

	h.registerExchangeRoutes(api)

	api.POST("/assistant/ask", h.AskAssistant)
}

// writeError maps gateway failures onto HTTP status codes: unknown documents
// to 404, rejected payloads to 400, partially failed bulk writes to 500, and
// store failures to 502 since the fault lies behind this server.
func writeError(err error) error {
	var bulkErr *ops.BulkError
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ops.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.As(err, &bulkErr):
		return echo.NewHTTPError(http.StatusInternalServerError, bulkErr.Error())
	default:
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
}

// ---------------------------------------------------------------------------
// Derived state
// ---------------------------------------------------------------------------

func (h *Handler) GetStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.sync.Status())
}

// GetKPI serves the derived KPI; 404 until the first patient or resource
// snapshot makes it computable.
func (h *Handler) GetKPI(c echo.Context) error {
	kpi := h.sync.KPI()
	if kpi == nil {
		return echo.NewHTTPError(http.StatusNotFound, "kpi not yet computed")
	}
	return c.JSON(http.StatusOK, kpi)
}

func (h *Handler) GetInsights(c echo.Context) error {
	return c.JSON(http.StatusOK, h.sync.Insights())
}

// ---------------------------------------------------------------------------
// Patients
// ---------------------------------------------------------------------------

func (h *Handler) ListPatients(c echo.Context) error {
	return c.JSON(http.StatusOK, h.sync.Patients())
}

// CreatePatient accepts the write and returns 202; the created entity is
// observed through the next snapshot, not the response body.
func (h *Handler) CreatePatient(c echo.Context) error {
	var in ops.PatientInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.gw.AddPatient(c.Request().Context(), in); err != nil {
		return writeError(err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *Handler) BulkCreatePatients(c echo.Context) error {
	var inputs []ops.PatientInput
	if err := c.Bind(&inputs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.gw.BulkAddPatients(c.Request().Context(), inputs); err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]int{"accepted": len(inputs)})
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	var upd ops.PatientUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.gw.UpdatePatient(c.Request().Context(), c.Param("id"), upd); err != nil {
		return writeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	if err := h.gw.DeletePatient(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Medical records
// ---------------------------------------------------------------------------

func (h *Handler) ListRecords(c echo.Context) error {
	return c.JSON(http.StatusOK, h.sync.Records())
}

func (h *Handler) CreateRecord(c echo.Context) error {
	var in ops.RecordInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.gw.AddRecord(c.Request().Context(), in); err != nil {
		return writeError(err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *Handler) BulkCreateRecords(c echo.Context) error {
	var inputs []ops.RecordInput
	if err := c.Bind(&inputs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.gw.BulkAddRecords(c.Request().Context(), inputs); err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]int{"accepted": len(inputs)})
}

func (h *Handler) UpdateRecord(c echo.Context) error {
	var upd ops.RecordUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.gw.UpdateRecord(c.Request().Context(), c.Param("id"), upd); err != nil {
		return writeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DeleteRecord(c echo.Context) error {
	if err := h.gw.DeleteRecord(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Staff
// ---------------------------------------------------------------------------

func (h *Handler) ListStaff(c echo.Context) error {
	return c.JSON(http.StatusOK, h.sync.Staff())
}

func (h *Handler) CreateStaff(c echo.Context) error {
	var in ops.StaffInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.gw.AddStaff(c.Request().Context(), in); err != nil {
		return writeError(err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *Handler) BulkCreateStaff(c echo.Context) error {
	var inputs []ops.StaffInput
	if err := c.Bind(&inputs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.gw.BulkAddStaff(c.Request().Context(), inputs); err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]int{"accepted": len(inputs)})
}

func (h *Handler) UpdateStaff(c echo.Context) error {
	var upd ops.StaffUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.gw.UpdateStaff(c.Request().Context(), c.Param("id"), upd); err != nil {
		return writeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DeleteStaff(c echo.Context) error {
	if err := h.gw.DeleteStaff(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Resources and alerts
// ---------------------------------------------------------------------------

func (h *Handler) ListResources(c echo.Context) error {
	return c.JSON(http.StatusOK, h.sync.Resources())
}

func (h *Handler) UpdateResource(c echo.Context) error {
	var upd ops.ResourceUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.gw.UpdateResource(c.Request().Context(), c.Param("id"), upd); err != nil {
		return writeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListAlerts(c echo.Context) error {
	return c.JSON(http.StatusOK, h.sync.Alerts())
}

type createAlertRequest struct {
	Type       ops.AlertType `json:"type"`
	Message    string        `json:"message"`
	Department string        `json:"department"`
}

func (h *Handler) CreateAlert(c echo.Context) error {
	var req createAlertRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.gw.AddAlert(c.Request().Context(), req.Type, req.Message, req.Department); err != nil {
		return writeError(err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *Handler) AcknowledgeAlert(c echo.Context) error {
	if err := h.gw.AcknowledgeAlert(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Assistant
// ---------------------------------------------------------------------------

const assistantSystemPrompt = "You are a hospital operations analyst. Answer concisely using only the structured data provided."

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer string `json:"answer"`
}

// AskAssistant answers a free-text question against a snapshot of the
// current synchronized state.
func (h *Handler) AskAssistant(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question is required")
	}

	contextData := map[string]any{
		"kpi":       h.sync.KPI(),
		"patients":  h.sync.Patients(),
		"staff":     h.sync.Staff(),
		"resources": h.sync.Resources(),
		"alerts":    h.sync.Alerts(),
		"insights":  h.sync.Insights(),
	}

	answer, err := h.assist.Ask(c.Request().Context(), assistantSystemPrompt, req.Question, contextData)
	if err != nil {
		var apiErr *assistant.APIError
		switch {
		case errors.Is(err, assistant.ErrMissingAPIKey):
			return echo.NewHTTPError(http.StatusServiceUnavailable, "assistant is not configured")
		case errors.As(err, &apiErr):
			return echo.NewHTTPError(http.StatusBadGateway, apiErr.Error())
		case errors.Is(err, assistant.ErrEmptyResponse):
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, askResponse{Answer: answer})
}
