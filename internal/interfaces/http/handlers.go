package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/pm-approval/internal/application/apperr"
	"github.com/garyjia/pm-approval/internal/application/service"
	"github.com/garyjia/pm-approval/internal/domain/entity"
)

const (
	userIDHeader = "X-User-ID"
	userIDKey    = "user_id"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	approvalService  service.ApprovalService
	milestoneService service.MilestoneService
	health           HealthFunc
	logger           Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	approvalService service.ApprovalService,
	milestoneService service.MilestoneService,
	health HealthFunc,
	logger Logger,
) *Handlers {
	return &Handlers{
		approvalService:  approvalService,
		milestoneService: milestoneService,
		health:           health,
		logger:           logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool                   `json:"success"`
	Data    interface{}            `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
}

// SubmitRequest is the body of POST /approvals/submit
type SubmitRequest struct {
	EntityType string `json:"entity_type" binding:"required"`
	EntityID   int64  `json:"entity_id" binding:"required,gt=0"`
	Urgency    string `json:"urgency"`
}

// WithdrawRequest is the body of POST /approvals/withdraw
type WithdrawRequest struct {
	EntityType string `json:"entity_type" binding:"required"`
	EntityID   int64  `json:"entity_id" binding:"required,gt=0"`
}

// ActionRequest is the body of approve and reject
type ActionRequest struct {
	Comment string `json:"comment"`
}

// DelegateRequest is the body of POST /approvals/tasks/:id/delegate
type DelegateRequest struct {
	DelegateToID int64  `json:"delegate_to_id" binding:"required,gt=0"`
	Comment      string `json:"comment"`
}

// PageQuery holds paging query parameters
type PageQuery struct {
	Offset int `form:"offset,default=0"`
	Limit  int `form:"limit,default=20"`
}

// StatusQuery holds the query parameters of GET /approvals/status
type StatusQuery struct {
	EntityType string `form:"entity_type" binding:"required"`
	EntityID   int64  `form:"entity_id" binding:"required,gt=0"`
}

// requireUser reads the acting user from X-User-ID
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.GetHeader(userIDHeader), 10, 64)
		if err != nil || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "missing or invalid " + userIDHeader + " header",
				Code:    "UNAUTHENTICATED",
			})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func currentUser(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	status := http.StatusOK
	if h.health != nil {
		response.Components = make(map[string]string)
		for name, err := range h.health(c.Request.Context()) {
			if err != nil {
				response.Components[name] = err.Error()
				response.Status = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			response.Components[name] = "ok"
		}
	}

	c.JSON(status, Response{
		Success: status == http.StatusOK,
		Data:    response,
	})
}

// Submit handles POST /api/v1/approvals/submit
func (h *Handlers) Submit(c *gin.Context) {
	var req SubmitRequest
	if !h.bind(c, c.ShouldBindJSON(&req)) {
		return
	}

	urgency, ok := entity.ParseUrgency(req.Urgency)
	if !ok {
		h.badRequest(c, "urgency must be NORMAL, URGENT or CRITICAL")
		return
	}

	result, err := h.approvalService.SubmitForApproval(c.Request.Context(),
		entity.EntityType(req.EntityType), req.EntityID, currentUser(c), urgency)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: result})
}

// Approve handles POST /api/v1/approvals/tasks/:id/approve
func (h *Handlers) Approve(c *gin.Context) {
	taskID, ok := h.pathID(c)
	if !ok {
		return
	}
	var req ActionRequest
	if !h.bindOptional(c, &req) {
		return
	}

	result, err := h.approvalService.ApproveTask(c.Request.Context(), taskID, currentUser(c), req.Comment)
	h.respond(c, result, err)
}

// Reject handles POST /api/v1/approvals/tasks/:id/reject
func (h *Handlers) Reject(c *gin.Context) {
	taskID, ok := h.pathID(c)
	if !ok {
		return
	}
	var req ActionRequest
	if !h.bindOptional(c, &req) {
		return
	}

	result, err := h.approvalService.RejectTask(c.Request.Context(), taskID, currentUser(c), req.Comment)
	h.respond(c, result, err)
}

// Delegate handles POST /api/v1/approvals/tasks/:id/delegate
func (h *Handlers) Delegate(c *gin.Context) {
	taskID, ok := h.pathID(c)
	if !ok {
		return
	}
	var req DelegateRequest
	if !h.bind(c, c.ShouldBindJSON(&req)) {
		return
	}

	result, err := h.approvalService.DelegateTask(c.Request.Context(), taskID, currentUser(c), req.DelegateToID, req.Comment)
	h.respond(c, result, err)
}

// Withdraw handles POST /api/v1/approvals/withdraw
func (h *Handlers) Withdraw(c *gin.Context) {
	var req WithdrawRequest
	if !h.bind(c, c.ShouldBindJSON(&req)) {
		return
	}

	result, err := h.approvalService.WithdrawInstance(c.Request.Context(),
		entity.EntityType(req.EntityType), req.EntityID, currentUser(c))
	h.respond(c, result, err)
}

// ListPending handles GET /api/v1/approvals/pending
func (h *Handlers) ListPending(c *gin.Context) {
	page, ok := h.page(c)
	if !ok {
		return
	}

	result, err := h.approvalService.ListPendingTasks(c.Request.Context(), currentUser(c), page.Offset, page.Limit)
	h.respond(c, result, err)
}

// GetStatus handles GET /api/v1/approvals/status
func (h *Handlers) GetStatus(c *gin.Context) {
	var q StatusQuery
	if !h.bind(c, c.ShouldBindQuery(&q)) {
		return
	}

	result, err := h.approvalService.GetApprovalStatus(c.Request.Context(), entity.EntityType(q.EntityType), q.EntityID)
	h.respond(c, result, err)
}

// GetHistory handles GET /api/v1/approvals/history
func (h *Handlers) GetHistory(c *gin.Context) {
	page, ok := h.page(c)
	if !ok {
		return
	}

	result, err := h.approvalService.GetApprovalHistory(c.Request.Context(), currentUser(c), page.Offset, page.Limit)
	h.respond(c, result, err)
}

// CompleteMilestone handles POST /api/v1/milestones/:id/complete
func (h *Handlers) CompleteMilestone(c *gin.Context) {
	milestoneID, ok := h.pathID(c)
	if !ok {
		return
	}

	if err := h.milestoneService.Complete(c.Request.Context(), milestoneID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    gin.H{"milestone_id": milestoneID, "status": entity.MilestoneStatusCompleted},
	})
}

func (h *Handlers) respond(c *gin.Context, data interface{}, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// fail maps application errors to status codes. Unknown errors are logged
// and reported without internals.
func (h *Handlers) fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", c.Request.URL.Path, "error", err)
		c.JSON(status, Response{Success: false, Error: "internal error", Code: apperr.Code(err)})
		return
	}

	msg := err.Error()
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		msg = appErr.Message
	}
	c.JSON(status, Response{
		Success: false,
		Error:   msg,
		Code:    apperr.Code(err),
		Details: apperr.Details(err),
	})
}

func (h *Handlers) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   msg,
		Code:    apperr.Code(apperr.ErrValidation),
	})
}

func (h *Handlers) bind(c *gin.Context, err error) bool {
	if err != nil {
		h.badRequest(c, "invalid request: "+err.Error())
		return false
	}
	return true
}

// bindOptional accepts an empty body
func (h *Handlers) bindOptional(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return h.bind(c, c.ShouldBindJSON(req))
}

func (h *Handlers) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(c, "invalid id")
		return 0, false
	}
	return id, true
}

// page reads offset and limit; range checks are left to the service
func (h *Handlers) page(c *gin.Context) (PageQuery, bool) {
	var q PageQuery
	if !h.bind(c, c.ShouldBindQuery(&q)) {
		return q, false
	}
	return q, true
}
