package huddle

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/huddle/huddle/internal/domain/schedule"
	"github.com/huddle/huddle/internal/pipeline"
	"github.com/huddle/huddle/internal/platform/auth"
	"github.com/huddle/huddle/pkg/pagination"
)

// maxPayloadBytes bounds one intake request body after decompression.
const maxPayloadBytes = 16 << 20 // 16MB

// Handler exposes schedule intake and huddle retrieval over HTTP.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes binds the huddle routes to the given Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/schedule/ingest", h.IngestSchedule)
	g.GET("/huddle/:date", h.GetHuddle)
	g.GET("/huddle/:date/summary/:role", h.GetRoleSummary)
	g.GET("/huddles", h.ListHuddles)
}

// checkPracticeScope rejects requests whose practice_id does not match
// the practice the presented API key was issued to. Keys are
// practice-scoped; one practice must never read another's huddles.
func checkPracticeScope(c echo.Context, practiceID string) error {
	scoped, ok := c.Get(auth.PracticeIDKey).(string)
	if ok && scoped != "" && scoped != practiceID {
		return echo.NewHTTPError(http.StatusForbidden, "practice_id does not match API key")
	}
	return nil
}

// IngestSchedule handles POST /schedule/ingest. The body is a sanitized
// schedule payload, JSON-encoded and optionally gzip-compressed.
func (h *Handler) IngestSchedule(c echo.Context) error {
	body := io.Reader(c.Request().Body)
	if strings.Contains(c.Request().Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(body)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "body is not valid gzip")
		}
		defer zr.Close()
		body = zr
	}

	var payload schedule.Payload
	if err := json.NewDecoder(io.LimitReader(body, maxPayloadBytes)).Decode(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed payload: "+err.Error())
	}
	if err := checkPracticeScope(c, payload.PracticeID); err != nil {
		return err
	}

	huddle, err := h.svc.Ingest(c.Request().Context(), &payload)
	if err != nil {
		var halt *pipeline.HaltError
		if errors.As(err, &halt) {
			return echo.NewHTTPError(http.StatusBadRequest, halt.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "huddle generation failed")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":    "accepted",
		"huddle_id": huddle.ID,
	})
}

// GetHuddle handles GET /huddle/:date.
func (h *Handler) GetHuddle(c echo.Context) error {
	practiceID := c.QueryParam("practice_id")
	if practiceID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "practice_id is required")
	}
	if err := checkPracticeScope(c, practiceID); err != nil {
		return err
	}

	huddle, err := h.svc.Get(c.Request().Context(), practiceID, c.Param("date"))
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "no huddle for that date")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, huddle)
}

// GetRoleSummary handles GET /huddle/:date/summary/:role.
func (h *Handler) GetRoleSummary(c echo.Context) error {
	practiceID := c.QueryParam("practice_id")
	if practiceID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "practice_id is required")
	}
	if err := checkPracticeScope(c, practiceID); err != nil {
		return err
	}

	huddle, err := h.svc.Get(c.Request().Context(), practiceID, c.Param("date"))
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "no huddle for that date")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	role := c.Param("role")
	text, ok := huddle.Summary(role)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "role must be clinical, hygiene, or admin")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"date":    huddle.HuddleDate,
		"role":    role,
		"summary": text,
	})
}

// ListHuddles handles GET /huddles.
func (h *Handler) ListHuddles(c echo.Context) error {
	practiceID := c.QueryParam("practice_id")
	if practiceID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "practice_id is required")
	}
	if err := checkPracticeScope(c, practiceID); err != nil {
		return err
	}

	p := pagination.FromContext(c)
	huddles, total, err := h.svc.List(c.Request().Context(), practiceID, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(huddles, total, p.Limit, p.Offset))
}
