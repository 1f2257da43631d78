// Package handlers is the JSON HTTP API over the catalog, schedule,
// registration, participant and dashboard services.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"program-events/catalog"
	"program-events/ctxlog"
	"program-events/dashboard"
	"program-events/models"
	"program-events/participants"
	"program-events/registration"
	"program-events/schedule"
)

// Pinger reports store liveness.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handlers struct {
	Store         Pinger
	Catalog       *catalog.Service
	Schedule      *schedule.Service
	Registrations *registration.Engine
	Participants  *participants.Directory
	Dashboard     *dashboard.Service
	Now           func() time.Time
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// SendJSON is a helper for sending JSON responses
func SendJSON(c *gin.Context, status int, data any) {
	c.JSON(status, data)
}

// SendError maps a service error onto an HTTP status and the error envelope.
func SendError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		ctxlog.FromContext(c.Request.Context()).Error("request failed", "error", err)
		if status == http.StatusInternalServerError {
			SendJSON(c, status, gin.H{"error": "Internal server error"})
			return
		}
	}
	SendJSON(c, status, gin.H{"error": err.Error()})
}

// StatusFor returns the HTTP status for err.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrCapacityExceeded):
		return http.StatusConflict
	case errors.Is(err, models.ErrDeadlinePassed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrStoreUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		SendError(c, models.Invalidf("invalid JSON body: %v", err))
		return false
	}
	return true
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		SendError(c, models.Invalidf("invalid id %q", c.Param("id")))
		return 0, false
	}
	return id, true
}

// HandleHealth handles GET /healthz
func (h *Handlers) HandleHealth(c *gin.Context) {
	if err := h.Store.PingContext(c.Request.Context()); err != nil {
		SendError(c, errors.Join(models.ErrStoreUnavailable, err))
		return
	}
	SendJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

// HandleListEvents handles GET /events
func (h *Handlers) HandleListEvents(c *gin.Context) {
	events, err := h.Catalog.List(c.Request.Context(), c.Query("q"))
	if err != nil {
		SendError(c, err)
		return
	}
	SendJSON(c, http.StatusOK, events)
}

// HandleGetEvent handles GET /events/:name
func (h *Handlers) HandleGetEvent(c *gin.Context) {
	evt, err := h.Catalog.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		SendError(c, err)
		return
	}
	SendJSON(c, http.StatusOK, evt)
}

// HandleCreateEvent handles POST /events
func (h *Handlers) HandleCreateEvent(c *gin.Context) {
	var req models.Event
	if !bindJSON(c, &req) {
		return
	}
	evt, err := h.Catalog.Create(c.Request.Context(), CallerFrom(c), req)
	if err != nil {
		SendError(c, err)
		return
	}
	SendJSON(c, http.StatusCreated, evt)
}

// HandleUpdateEvent handles PATCH /events/:name
func (h *Handlers) HandleUpdateEvent(c *gin.Context) {
	var req models.EventPatch
	if !bindJSON(c, &req) {
		return
	}
	evt, err := h.Catalog.Update(c.Request.Context(), CallerFrom(c), c.Param("name"), req)
	if err != nil {
		SendError(c, err)
		return
	}
	SendJSON(c, http.StatusOK, evt)
}

// HandleDeleteEvent handles DELETE /events/:name
func (h *Handlers) HandleDeleteEvent(c *gin.Context) {
	if err := h.Catalog.Delete(c.Request.Context(), CallerFrom(c), c.Param("name")); err != nil {
		SendError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleCreateInstance handles POST /events/:name/instances
func (h *Handlers) HandleCreateInstance(c *gin.Context) {
	var req models.Schedule
	if !bindJSON(c, &req) {
		return
	}
	in, err := h.Schedule.Create(c.Request.Context(), CallerFrom(c), c.Param("name"), req)
	if err != nil {
		SendError(c, err)
		return
	}
	SendJSON(c, http.StatusCreated, in)
}

// HandleListUpcoming handles GET /instances
func (h *Handlers) HandleListUpcoming(c *gin.Context) {
	instances, err := h.Schedule.ListUpcoming(c.Request.Context(), h.now(), c.Query("q"))
	if err != nil {
		SendError(c, err)
		return
	}
	SendJSON(c, http.StatusOK, instances)
}

// HandleListAllInstances handles GET /instances/all
func (h *Handlers) HandleListAllInstances(c *gin.Context) {
	instances, err := h.Schedule.ListAll(c.Request.Context(), CallerFrom(c), c.Query("q"))
	if err != nil {
		SendError(c, err)
		return
	}
	SendJSON(c, http.StatusOK, instances)
}

// HandleGetInstance handles GET /instances/:id
func (h *Handlers) HandleGetInstance(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	in, err := h.Schedule.Get(c.Request.Context(), id)
	if err != nil {
		SendError(c, err)
		return
	}
	SendJSON(c, http.StatusOK, in)
}

// HandleUpdateInstance handles PATCH /instances/:id
func (h *Handlers) HandleUpdateInstance(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req models.SchedulePatch
	if !bindJSON(c, &req) {
		return
	}
	in, err := h.Schedule.Update(c.Request.Context(), CallerFrom(c), id, req)
	if err != nil {
		SendError(c, err)
		return
	}
	SendJSON(c, http.StatusOK, in)
}

// HandleDeleteInstance handles DELETE /instances/:id
func (h *Handlers) HandleDeleteInstance(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.Schedule.Delete(c.Request.Context(), CallerFrom(c), id); err != nil {
		SendError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleRegister handles POST /instances/:id/register
func (h *Handlers) HandleRegister(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	reg, err := h.Registrations.SignUp(c.Request.Context(), CallerFrom(c), id)
	if err != nil {
		SendError(c, err)
		return
	}
	SendJSON(c, http.StatusOK, reg)
}

// HandleMyRegistrations handles GET /me/registrations?scope=
func (h *Handlers) HandleMyRegistrations(c *gin.Context) {
	scope, err := models.ParseScope(c.Query("scope"))
	if err != nil {
		SendError(c, err)
		return
	}
	regs, err := h.Registrations.MyRegistrations(c.Request.Context(), CallerFrom(c), scope, h.now())
	if err != nil {
		SendError(c, err)
		return
	}
	SendJSON(c, http.StatusOK, regs)
}

// HandleAgenda handles GET /me/agenda
func (h *Handlers) HandleAgenda(c *gin.Context) {
	items, err := h.Dashboard.Agenda(c.Request.Context(), CallerFrom(c), h.now(), c.Query("q"))
	if err != nil {
		SendError(c, err)
		return
	}
	SendJSON(c, http.StatusOK, items)
}

// HandleListRegistrations handles GET /registrations?q=
func (h *Handlers) HandleListRegistrations(c *gin.Context) {
	regs, err := h.Registrations.List(c.Request.Context(), CallerFrom(c), c.Query("q"))
	if err != nil {
		SendError(c, err)
		return
	}
	SendJSON(c, http.StatusOK, regs)
}

// HandleGetRegistration handles GET /registrations/:id
func (h *Handlers) HandleGetRegistration(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	reg, err := h.Registrations.Get(c.Request.Context(), CallerFrom(c), id)
	if err != nil {
		SendError(c, err)
		return
	}
	SendJSON(c, http.StatusOK, reg)
}

// HandleCheckIn handles POST /registrations/:id/check-in
func (h *Handlers) HandleCheckIn(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	reg, err := h.Registrations.CheckIn(c.Request.Context(), CallerFrom(c), id)
	if err != nil {
		SendError(c, err)
		return
	}
	SendJSON(c, http.StatusOK, reg)
}

// HandleCancel handles POST /registrations/:id/cancel
func (h *Handlers) HandleCancel(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	reg, err := h.Registrations.Cancel(c.Request.Context(), CallerFrom(c), id)
	if err != nil {
		SendError(c, err)
		return
	}
	SendJSON(c, http.StatusOK, reg)
}

// HandleSurvey handles POST /registrations/:id/survey
func (h *Handlers) HandleSurvey(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req models.Survey
	if !bindJSON(c, &req) {
		return
	}
	reg, err := h.Registrations.RecordSurvey(c.Request.Context(), CallerFrom(c), id, req)
	if err != nil {
		SendError(c, err)
		return
	}
	SendJSON(c, http.StatusOK, reg)
}

// HandleListParticipants handles GET /participants
func (h *Handlers) HandleListParticipants(c *gin.Context) {
	list, err := h.Participants.List(c.Request.Context(), c.Query("q"))
	if err != nil {
		SendError(c, err)
		return
	}
	SendJSON(c, http.StatusOK, list)
}

// HandleAddParticipant handles POST /participants
func (h *Handlers) HandleAddParticipant(c *gin.Context) {
	var req models.Participant
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.Participants.Add(c.Request.Context(), CallerFrom(c), req)
	if err != nil {
		SendError(c, err)
		return
	}
	SendJSON(c, http.StatusCreated, p)
}

// HandleDashboard handles GET /dashboard
func (h *Handlers) HandleDashboard(c *gin.Context) {
	st, err := h.Dashboard.Stats(c.Request.Context())
	if err != nil {
		SendError(c, err)
		return
	}
	SendJSON(c, http.StatusOK, st)
}
