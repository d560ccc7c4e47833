package terminology

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Handler serves read-only CPT reference endpoints.
type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	cpt := g.Group("/terminology/cpt")
	cpt.GET("", h.Search)
	cpt.GET("/:code", h.Get)
}

func getLimit(c echo.Context) int {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	return limit
}

// Search handles GET /terminology/cpt?q=...
func (h *Handler) Search(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter 'q' is required")
	}
	results, err := h.svc.Search(c.Request().Context(), query, getLimit(c))
	if err != nil {
		return h.internalError(c, err, "searching CPT codes")
	}
	return c.JSON(http.StatusOK, results)
}

// Get handles GET /terminology/cpt/:code
func (h *Handler) Get(c echo.Context) error {
	pc, err := h.svc.Lookup(c.Request().Context(), c.Param("code"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, ErrNotFound.Error())
		}
		return h.internalError(c, err, "retrieving CPT code")
	}
	return c.JSON(http.StatusOK, pc)
}

// internalError logs err and hides it from the client.
func (h *Handler) internalError(c echo.Context, err error, action string) error {
	rid, _ := c.Get("request_id").(string)
	h.logger.Error().Err(err).
		Str("request_id", rid).
		Str("cpt_code", c.Param("code")).
		Msg("failure " + action)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
