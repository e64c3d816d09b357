package facts

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/scc/shadow-coder/internal/platform/auth"
)

// EvaluateFunc re-runs compliance evaluation after a fact mutation.
type EvaluateFunc func(ctx context.Context, caseID uuid.UUID) error

type Handler struct {
	svc      *Service
	evaluate EvaluateFunc
	log      zerolog.Logger
}

func NewHandler(svc *Service, evaluate EvaluateFunc, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, evaluate: evaluate, log: log}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "physician", "coder"))
	readGroup.GET("/facts/:id", h.GetFactMap)
	readGroup.GET("/facts/:id/history", h.GetFactHistory)

	writeGroup := api.Group("", auth.RequireRole("admin", "physician"))
	writeGroup.POST("/facts/:id", h.AddFact)
	writeGroup.POST("/facts/:id/verify", h.VerifyFact)
	writeGroup.POST("/facts/:id/supersede", h.SupersedeFact)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadySuperseded):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

type addFactRequest struct {
	FactType   string      `json:"fact_type"`
	Value      interface{} `json:"value"`
	Confidence *float64    `json:"confidence,omitempty"`
	SourceType SourceType  `json:"source_type,omitempty"`
	SourceRef  *string     `json:"source_ref,omitempty"`
}

func (h *Handler) AddFact(c echo.Context) error {
	caseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case id")
	}
	var req addFactRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.SourceType == "" {
		req.SourceType = SourceManual
	}
	// Manually entered facts default to full confidence.
	confidence := 1.0
	if req.Confidence != nil {
		confidence = *req.Confidence
	}

	f, err := h.svc.AddFact(c.Request().Context(), caseID, req.FactType, req.Value, confidence, req.SourceType, req.SourceRef)
	if err != nil {
		return httpError(err)
	}
	h.triggerEvaluation(c, caseID)
	return c.JSON(http.StatusCreated, f)
}

func (h *Handler) GetFactMap(c echo.Context) error {
	caseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case id")
	}
	m, err := h.svc.GetFactMap(c.Request().Context(), caseID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) GetFactHistory(c echo.Context) error {
	caseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case id")
	}
	factType := c.QueryParam("fact_type")
	history, err := h.svc.GetFactHistory(c.Request().Context(), caseID, factType)
	if err != nil {
		return httpError(err)
	}
	if history == nil {
		history = []*Fact{}
	}
	return c.JSON(http.StatusOK, history)
}

type verifyRequest struct {
	VerifiedBy string `json:"verified_by,omitempty"`
}

func (h *Handler) VerifyFact(c echo.Context) error {
	factID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid fact id")
	}
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.VerifiedBy == "" {
		req.VerifiedBy = auth.UserIDFromContext(c.Request().Context())
	}
	if err := h.svc.VerifyFact(c.Request().Context(), factID, req.VerifiedBy); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"verified": true})
}

type supersedeRequest struct {
	NewFactID uuid.UUID `json:"new_fact_id"`
}

func (h *Handler) SupersedeFact(c echo.Context) error {
	oldID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid fact id")
	}
	var req supersedeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SupersedeFact(c.Request().Context(), oldID, req.NewFactID); err != nil {
		return httpError(err)
	}

	old, err := h.svc.repo.GetByID(c.Request().Context(), oldID)
	if err == nil {
		h.triggerEvaluation(c, old.CaseID)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"superseded": true})
}

func (h *Handler) triggerEvaluation(c echo.Context, caseID uuid.UUID) {
	if h.evaluate == nil {
		return
	}
	if err := h.evaluate(c.Request().Context(), caseID); err != nil {
		h.log.Warn().Err(err).Str("case_id", caseID.String()).Msg("post-mutation evaluation failed")
	}
}
