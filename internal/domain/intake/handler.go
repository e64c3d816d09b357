package intake

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/scc/shadow-coder/internal/platform/auth"
	"github.com/scc/shadow-coder/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	group := api.Group("", auth.RequireRole("admin", "physician"))
	group.POST("/intake", h.Ingest)
	group.GET("/intake/recent", h.Recent)
	group.GET("/intake/:id", h.GetNote)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) Ingest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.svc.Ingest(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	return c.JSON(status, result)
}

func (h *Handler) GetNote(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid note id")
	}
	note, err := h.svc.GetNote(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, note)
}

func (h *Handler) Recent(c echo.Context) error {
	p := pagination.FromContext(c)
	var status *Status
	if raw := c.QueryParam("status"); raw != "" {
		s := Status(raw)
		status = &s
	}
	var mrn *string
	if raw := c.QueryParam("mrn"); raw != "" {
		mrn = &raw
	}

	notes, hasMore, err := h.svc.Recent(c.Request().Context(), p, status, mrn)
	if err != nil {
		return httpError(err)
	}
	if notes == nil {
		notes = []*VoiceNote{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(notes, p, hasMore))
}
