// README: Trip request intake handlers (create/get/cancel/list pending).
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zeizeiwaii/Datastar/internal/modules/request"
	"github.com/zeizeiwaii/Datastar/internal/types"
)

const defaultPendingLimit = 100

type RequestHandler struct {
	requests *request.Service
}

func NewRequestHandler(svc *request.Service) *RequestHandler {
	return &RequestHandler{requests: svc}
}

type pointReq struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lng *float64 `json:"lng" binding:"required"`
}

func (p pointReq) point() types.Point { return types.Point{Lat: *p.Lat, Lng: *p.Lng} }

type createRequestReq struct {
	ID            string   `json:"id"`
	Origin        pointReq `json:"origin" binding:"required"`
	Destination   pointReq `json:"destination" binding:"required"`
	DepartureTime string   `json:"departure_time" binding:"required"`
	PeopleCount   int      `json:"people_count"`
}

// Create handles POST /api/requests.
func (h *RequestHandler) Create(c *gin.Context) {
	var req createRequestReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ID != "" && !isValidID(req.ID) {
		writeError(c, http.StatusBadRequest, "invalid id")
		return
	}
	departure, err := time.Parse(time.RFC3339, req.DepartureTime)
	if err != nil {
		writeError(c, http.StatusBadRequest, "departure_time must be RFC 3339 with a zone offset")
		return
	}

	r, err := h.requests.Create(c.Request.Context(), request.CreateCommand{
		ID:            types.ID(req.ID),
		Origin:        req.Origin.point(),
		Destination:   req.Destination.point(),
		DepartureTime: departure,
		PeopleCount:   req.PeopleCount,
	})
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, map[string]any{"request_id": r.ID, "status": r.Status})
}

// Get handles GET /api/requests/:id.
func (h *RequestHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid request id")
		return
	}
	r, err := h.requests.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

// Cancel handles POST /api/requests/:id/cancel.
func (h *RequestHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid request id")
		return
	}
	if err := h.requests.Cancel(c.Request.Context(), types.ID(id)); err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"request_id": id, "status": request.StatusCancelled})
}

// ListPending handles GET /api/requests?limit=N and lists pending requests
// not yet linked to a plan.
func (h *RequestHandler) ListPending(c *gin.Context) {
	limit := defaultPendingLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			writeError(c, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	rows, err := h.requests.ListPending(c.Request.Context(), limit)
	if err != nil {
		writeRequestError(c, err)
		return
	}
	if rows == nil {
		rows = []*request.Request{}
	}
	writeJSON(c, http.StatusOK, map[string]any{"requests": rows, "count": len(rows)})
}
