package billing

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/ehr/billing/internal/platform/validate"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/patients", h.CreatePatient)
	g.GET("/patients", h.ListPatients)
	g.GET("/patients/:patient_id", h.GetPatient)

	g.POST("/patients/:patient_id/encounters", h.CreateEncounter)
	g.GET("/patients/:patient_id/encounters", h.ListEncounters)
	g.GET("/patients/:patient_id/encounters/:encounter_id", h.GetEncounter)

	g.POST("/patients/:patient_id/encounters/:encounter_id/line_items", h.CreateLineItem)
	g.GET("/patients/:patient_id/encounters/:encounter_id/line_items", h.ListLineItems)
}

// -- Request / response bodies --

type createPatientRequest struct {
	FirstName string `json:"first_name" validate:"required,notblank,max=255"`
	LastName  string `json:"last_name" validate:"required,notblank,max=255"`
}

// Date is checked by the service so a bad value reports "invalid date format".
type createEncounterRequest struct {
	Date string `json:"date"`
}

type createLineItemRequest struct {
	Code  string `json:"cpt_code" validate:"required,procedure_code"`
	Units *int   `json:"units" validate:"required,gte=0,max=2147483647"`
}

type patientResponse struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type encounterResponse struct {
	ID   string `json:"id"`
	Date string `json:"date"`
}

type lineItemResponse struct {
	Code        string `json:"cpt_code"`
	Description string `json:"cpt_code_description"`
	Units       int    `json:"units"`
}

func toPatientResponse(p *Patient, _ int) patientResponse {
	return patientResponse{ID: p.ID.String(), FirstName: p.FirstName, LastName: p.LastName}
}

func toEncounterResponse(e *Encounter, _ int) encounterResponse {
	return encounterResponse{ID: e.ID.String(), Date: e.Date.Format(DateLayout)}
}

func toLineItemResponse(d *LineItemDetail, _ int) lineItemResponse {
	return lineItemResponse{Code: d.ProcedureCode, Description: d.Description, Units: d.Units}
}

// bindAndValidate decodes the body into req and runs the struct validator.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge {
			return he
		}
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(req); err != nil {
		if fe := validate.First(err); fe != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fe.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// fail maps a service error to an HTTP error and logs it. action names the
// operation in the generic integrity failure message, e.g. "creating patient".
func (h *Handler) fail(c echo.Context, err error, action string) error {
	rid, _ := c.Get("request_id").(string)
	code, _ := c.Get("cpt_code").(string)
	log := h.logger.With().
		Str("request_id", rid).
		Str("patient_id", c.Param("patient_id")).
		Str("encounter_id", c.Param("encounter_id")).
		Str("cpt_code", code).
		Logger()

	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		log.Info().Str("field", verr.Field).Msg(verr.Message)
		return echo.NewHTTPError(http.StatusBadRequest, verr.Message)
	case errors.Is(err, ErrPatientNotFound):
		log.Info().Msg("patient not found")
		return echo.NewHTTPError(http.StatusNotFound, ErrPatientNotFound.Error())
	case errors.Is(err, ErrEncounterNotFound):
		log.Info().Msg("encounter not found")
		return echo.NewHTTPError(http.StatusNotFound, ErrEncounterNotFound.Error())
	case errors.Is(err, ErrProcedureCodeNotFound):
		log.Info().Msg("CPT code not found")
		return echo.NewHTTPError(http.StatusNotFound, ErrProcedureCodeNotFound.Error())
	case errors.Is(err, ErrDuplicate):
		log.Error().Err(err).Msg("failure " + action)
		return echo.NewHTTPError(http.StatusBadRequest, "failure "+action)
	default:
		log.Error().Err(err).Msg("failure " + action)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}

// -- Patient Handlers --

func (h *Handler) CreatePatient(c echo.Context) error {
	var req createPatientRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	p, err := h.svc.CreatePatient(c.Request().Context(), req.FirstName, req.LastName)
	if err != nil {
		return h.fail(c, err, "creating patient")
	}
	return c.JSON(http.StatusOK, toPatientResponse(p, 0))
}

func (h *Handler) ListPatients(c echo.Context) error {
	items, err := h.svc.ListPatients(c.Request().Context())
	if err != nil {
		return h.fail(c, err, "retrieving patients")
	}
	return c.JSON(http.StatusOK, lo.Map(items, toPatientResponse))
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := h.svc.GetPatient(c.Request().Context(), c.Param("patient_id"))
	if err != nil {
		return h.fail(c, err, "retrieving patient")
	}
	return c.JSON(http.StatusOK, toPatientResponse(p, 0))
}

// -- Encounter Handlers --

func (h *Handler) CreateEncounter(c echo.Context) error {
	var req createEncounterRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	e, err := h.svc.CreateEncounter(c.Request().Context(), c.Param("patient_id"), req.Date)
	if err != nil {
		return h.fail(c, err, "creating encounter")
	}
	return c.JSON(http.StatusOK, toEncounterResponse(e, 0))
}

func (h *Handler) ListEncounters(c echo.Context) error {
	items, err := h.svc.ListEncounters(c.Request().Context(), c.Param("patient_id"))
	if err != nil {
		return h.fail(c, err, "retrieving encounters")
	}
	return c.JSON(http.StatusOK, lo.Map(items, toEncounterResponse))
}

func (h *Handler) GetEncounter(c echo.Context) error {
	e, err := h.svc.GetEncounter(c.Request().Context(), c.Param("patient_id"), c.Param("encounter_id"))
	if err != nil {
		return h.fail(c, err, "retrieving encounter")
	}
	return c.JSON(http.StatusOK, toEncounterResponse(e, 0))
}

// -- Line Item Handlers --

func (h *Handler) CreateLineItem(c echo.Context) error {
	var req createLineItemRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	c.Set("cpt_code", req.Code)
	li, err := h.svc.CreateLineItem(c.Request().Context(), c.Param("patient_id"), c.Param("encounter_id"), req.Code, *req.Units)
	if err != nil {
		return h.fail(c, err, "creating line item")
	}
	return c.JSON(http.StatusOK, toLineItemResponse(li, 0))
}

func (h *Handler) ListLineItems(c echo.Context) error {
	items, err := h.svc.ListLineItems(c.Request().Context(), c.Param("patient_id"), c.Param("encounter_id"))
	if err != nil {
		return h.fail(c, err, "retrieving line items")
	}
	return c.JSON(http.StatusOK, lo.Map(items, toLineItemResponse))
}
