package prompts

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/scc/shadow-coder/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "physician", "coder"))
	readGroup.GET("/prompts/:id", h.GetActivePrompts)
	readGroup.GET("/prompts/:id/summary", h.GetPromptSummary)

	writeGroup := api.Group("", auth.RequireRole("admin", "physician"))
	writeGroup.POST("/prompts/:id/action", h.ActOnPrompt)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyTerminal):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) GetActivePrompts(c echo.Context) error {
	caseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case id")
	}
	active, err := h.svc.GetActive(c.Request().Context(), caseID)
	if err != nil {
		return httpError(err)
	}
	if active == nil {
		active = []*Prompt{}
	}
	return c.JSON(http.StatusOK, active)
}

func (h *Handler) GetPromptSummary(c echo.Context) error {
	caseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case id")
	}
	sum, err := h.svc.Summary(c.Request().Context(), caseID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sum)
}

type actionRequest struct {
	Action         string         `json:"action"`
	ResolutionType ResolutionType `json:"resolution_type,omitempty"`
	Note           *string        `json:"note,omitempty"`
}

// ActOnPrompt applies a user action to one prompt. Supported actions:
// DISMISS, SNOOZE_<n>H (e.g. SNOOZE_24H), RESOLVE, DOCUMENT.
func (h *Handler) ActOnPrompt(c echo.Context) error {
	promptID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid prompt id")
	}
	var req actionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	userID := auth.UserIDFromContext(ctx)
	var actor *string
	if userID != "" {
		actor = &userID
	}

	action := strings.ToUpper(strings.TrimSpace(req.Action))
	switch {
	case action == "DISMISS":
		rt := req.ResolutionType
		if rt == "" {
			rt = ResolutionManualDismiss
		}
		err = h.svc.Dismiss(ctx, promptID, rt, actor, req.Note)
	case action == "RESOLVE":
		err = h.svc.Resolve(ctx, promptID, ResolutionAttestation, actor, req.Note)
	case action == "DOCUMENT":
		err = h.svc.Resolve(ctx, promptID, ResolutionFactAdded, actor, req.Note)
	case strings.HasPrefix(action, "SNOOZE_"):
		hours, parseErr := parseSnoozeHours(action)
		if parseErr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, parseErr.Error())
		}
		err = h.svc.Snooze(ctx, promptID, time.Now().UTC().Add(time.Duration(hours)*time.Hour))
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown action: "+req.Action)
	}
	if err != nil {
		return httpError(err)
	}

	p, err := h.svc.GetByID(ctx, promptID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func parseSnoozeHours(action string) (int, error) {
	spec := strings.TrimSuffix(strings.TrimPrefix(action, "SNOOZE_"), "H")
	hours, err := strconv.Atoi(spec)
	if err != nil || hours <= 0 {
		return 0, errors.New("snooze action must be SNOOZE_<hours>H")
	}
	return hours, nil
}
