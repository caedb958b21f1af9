package api

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"

	"gapminder/internal/engine"
	"gapminder/internal/events"
	"gapminder/internal/export"
	"gapminder/internal/models"
	"gapminder/internal/plot"
	"gapminder/internal/renderer"
	"gapminder/internal/session"
	"gapminder/internal/view"
	"gapminder/internal/widget"
)

//go:embed static/index.html
var indexHTML []byte

type Handler struct {
	mgr    atomic.Pointer[session.Manager]
	hub    *events.Hub
	logger *zap.Logger
	size   plot.Size
}

// NewHandler returns a Handler. mgr may be nil while the dataset loads;
// the API answers 503 until SetManager is called. hub may be nil, which
// disables the event stream.
func NewHandler(mgr *session.Manager, hub *events.Hub, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{hub: hub, logger: logger, size: plot.DefaultSize}
	if mgr != nil {
		h.mgr.Store(mgr)
	}
	return h
}

// SetManager makes the API live.
func (h *Handler) SetManager(mgr *session.Manager) {
	h.mgr.Store(mgr)
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.Index)
	e.GET("/healthz", h.Health)

	api := e.Group("/api", h.requireData)
	api.GET("/fields", h.GetFields)
	api.GET("/countries", h.GetCountries)
	api.POST("/sessions", h.CreateSession)
	api.GET("/sessions/:id", h.GetSession)
	api.DELETE("/sessions/:id", h.DeleteSession)
	api.PUT("/sessions/:id/widgets/:name", h.SetWidget)
	api.PUT("/sessions/:id/population", h.SetPopulation)
	api.PUT("/sessions/:id/population/:index", h.TogglePopulation)
	api.GET("/sessions/:id/scatter.svg", h.GetScatterSVG)
	api.GET("/sessions/:id/population.svg", h.GetPopulationSVG)
	api.GET("/sessions/:id/buckets.arrow", h.GetBucketsArrow)
	api.GET("/sessions/:id/events", h.StreamEvents)
}

// requireData answers 503 while the dataset is still loading.
func (h *Handler) requireData(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.mgr.Load() == nil {
			return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "dataset loading"})
		}
		return next(c)
	}
}

// fail maps domain errors onto HTTP statuses.
func (h *Handler) fail(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrClosed),
		errors.Is(err, session.ErrNoPopulationTab):
		status = http.StatusNotFound
	case errors.Is(err, view.ErrUnknownField),
		errors.Is(err, widget.ErrInvalidOption),
		errors.Is(err, widget.ErrInvalidIndex),
		errors.Is(err, renderer.ErrUnknownCountry):
		status = http.StatusBadRequest
	case errors.Is(err, renderer.ErrDesync):
		h.logger.Error("session aborted", zap.String("session", c.Param("id")), zap.Error(err))
	default:
		h.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.JSON(status, models.ErrorResponse{Error: err.Error()})
}

// --- HANDLERS ---
func getPaginationParams(c echo.Context, defaultLimit int) (int, int) {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	offset, err := strconv.Atoi(c.QueryParam("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (h *Handler) Index(c echo.Context) error {
	return c.HTMLBlob(http.StatusOK, indexHTML)
}

func (h *Handler) Health(c echo.Context) error {
	mgr := h.mgr.Load()
	if mgr == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{"status": "loading"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"layout":   mgr.Layout().String(),
		"sessions": mgr.Len(),
	})
}

func (h *Handler) GetFields(c echo.Context) error {
	out := make([]models.Field, len(engine.SelectableFields))
	for i, f := range engine.SelectableFields {
		out[i] = models.Field{Name: string(f), Label: f.Label()}
	}
	return c.JSON(http.StatusOK, out)
}

// GetCountries lists the population checkbox labels, paginated.
func (h *Handler) GetCountries(c echo.Context) error {
	labels := h.mgr.Load().PopulationLabels()
	total := len(labels)
	limit, offset := getPaginationParams(c, total)

	if offset >= total {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"data": []string{}, "total": total, "limit": limit, "offset": offset,
		})
	}
	end := min(offset+limit, total)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":   labels[offset:end],
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *Handler) session(c echo.Context) (*session.Session, error) {
	return h.mgr.Load().Get(c.Param("id"))
}

func (h *Handler) CreateSession(c echo.Context) error {
	s, err := h.mgr.Load().Create()
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, s.State())
}

// GetSession returns the session state. The ETag is a digest of the
// encoded state so polling clients can revalidate cheaply.
func (h *Handler) GetSession(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return h.fail(c, err)
	}
	body, err := json.Marshal(s.State())
	if err != nil {
		return h.fail(c, fmt.Errorf("encode state: %w", err))
	}
	etag := fmt.Sprintf(`"%016x"`, xxh3.Hash(body))
	c.Response().Header().Set("ETag", etag)
	if c.Request().Header.Get("If-None-Match") == etag {
		return c.NoContent(http.StatusNotModified)
	}
	return c.JSONBlob(http.StatusOK, body)
}

func (h *Handler) DeleteSession(c echo.Context) error {
	if err := h.mgr.Load().Close(c.Request().Context(), c.Param("id"), "client"); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SetWidget sets the year slider, an axis select or the country select.
func (h *Handler) SetWidget(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return h.fail(c, err)
	}
	var req models.ValueRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	name := c.Param("name")
	if name == "year" {
		var year int
		if err := json.Unmarshal(req.Value, &year); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "year must be an integer").SetInternal(err)
		}
		err = s.SetYear(ctx, year)
	} else {
		var v string
		if err := json.Unmarshal(req.Value, &v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, name+" must be a string").SetInternal(err)
		}
		switch name {
		case "x", "y":
			err = s.SetAxis(ctx, name, v)
		case "country":
			err = s.SetCountry(ctx, v)
		default:
			return echo.NewHTTPError(http.StatusNotFound, "unknown widget "+name)
		}
	}
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, s.State())
}

func (h *Handler) TogglePopulation(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return h.fail(c, err)
	}
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "index must be an integer").SetInternal(err)
	}
	var req models.ToggleRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := s.TogglePopulation(c.Request().Context(), idx, req.Active); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, s.State())
}

func (h *Handler) SetPopulation(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return h.fail(c, err)
	}
	var req models.ActiveRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := s.SetPopulation(c.Request().Context(), req.Active); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, s.State())
}

func (h *Handler) GetScatterSVG(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return h.fail(c, err)
	}
	var buf bytes.Buffer
	err = plot.Scatter(&buf, s.Frame(), h.mgr.Load().Regions(), h.size)
	if errors.Is(err, plot.ErrEmpty) {
		return c.NoContent(http.StatusNoContent)
	}
	if err != nil {
		return h.fail(c, err)
	}
	return c.Blob(http.StatusOK, "image/svg+xml", buf.Bytes())
}

func (h *Handler) GetPopulationSVG(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return h.fail(c, err)
	}
	snap, err := s.PopulationView()
	if err != nil {
		return h.fail(c, err)
	}
	var buf bytes.Buffer
	err = plot.Population(&buf, snap, h.size)
	if errors.Is(err, plot.ErrEmpty) {
		return c.NoContent(http.StatusNoContent)
	}
	if err != nil {
		return h.fail(c, err)
	}
	return c.Blob(http.StatusOK, "image/svg+xml", buf.Bytes())
}

func (h *Handler) GetBucketsArrow(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return h.fail(c, err)
	}
	var buf bytes.Buffer
	if err := export.WriteBuckets(&buf, s.Frame()); err != nil {
		return h.fail(c, err)
	}
	return c.Blob(http.StatusOK, "application/vnd.apache.arrow.stream", buf.Bytes())
}
