package v1

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/kirkhezir/church-app-sub002/internal/api/middleware"
	"github.com/kirkhezir/church-app-sub002/internal/api/response"
	inputsanitize "github.com/kirkhezir/church-app-sub002/internal/api/sanitize"
	"github.com/kirkhezir/church-app-sub002/internal/model"
	"github.com/kirkhezir/church-app-sub002/internal/service"
)

type AnnouncementService interface {
	Create(ctx context.Context, authorID string, req service.CreateAnnouncementRequest) (*model.Announcement, error)
	Update(ctx context.Context, announcementID, userID string, req service.UpdateAnnouncementRequest) (*model.Announcement, error)
	Archive(ctx context.Context, announcementID, userID string) error
	Unarchive(ctx context.Context, announcementID, userID string) error
	Delete(ctx context.Context, announcementID, userID string) error
	GetByID(ctx context.Context, announcementID string) (*model.Announcement, error)
	ListActive(ctx context.Context) ([]*model.Announcement, error)
}

type AnnouncementHandler struct {
	announcementService AnnouncementService
}

type createAnnouncementRequest struct {
	Title    string `json:"title" binding:"required"`
	Content  string `json:"content" binding:"required"`
	Priority string `json:"priority"`
}

type updateAnnouncementRequest struct {
	Title    *string `json:"title"`
	Content  *string `json:"content"`
	Priority *string `json:"priority"`
}

// RouteOptions carries the auth and throttling settings for the announcement
// routes.
type RouteOptions struct {
	Auth           gin.HandlerFunc
	WriteRateLimit int
	WriteWindow    time.Duration
}

func NewAnnouncementHandler(announcementService AnnouncementService) *AnnouncementHandler {
	return &AnnouncementHandler{
		announcementService: announcementService,
	}
}

func RegisterAnnouncementRoutes(group *gin.RouterGroup, announcementService AnnouncementService, opts RouteOptions) {
	if announcementService == nil {
		return
	}

	handler := NewAnnouncementHandler(announcementService)
	ann := group.Group("/announcements")

	ann.GET("/active", handler.ListActive)

	if opts.Auth != nil {
		ann.Use(opts.Auth)
	}
	ann.GET("/:id", handler.GetByID)

	writes := ann.Group("", middleware.RateLimitPerUser(opts.WriteRateLimit, opts.WriteWindow))
	writes.POST("", handler.Create)
	writes.PUT("/:id", handler.Update)
	writes.POST("/:id/archive", handler.Archive)
	writes.POST("/:id/unarchive", handler.Unarchive)
	writes.DELETE("/:id", handler.Delete)
}

// ListActive
// @Summary List active announcements
// @Tags announcement
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/announcements/active [get]
func (h *AnnouncementHandler) ListActive(c *gin.Context) {
	items, err := h.announcementService.ListActive(c.Request.Context())
	if err != nil {
		handleAnnouncementServiceError(c, err)
		return
	}
	response.Success(c, items)
}

// GetByID
// @Summary Get an announcement
// @Tags announcement
// @Produce json
// @Param id path string true "announcement id"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/announcements/{id} [get]
func (h *AnnouncementHandler) GetByID(c *gin.Context) {
	item, err := h.announcementService.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleAnnouncementServiceError(c, err)
		return
	}
	response.Success(c, item)
}

// Create
// @Summary Publish an announcement
// @Description Urgent announcements are emailed to members in the background.
// @Tags announcement
// @Accept json
// @Produce json
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Router /api/v1/announcements [post]
func (h *AnnouncementHandler) Create(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "unauthorized")
		return
	}

	var req createAnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidRequest, "invalid request")
		return
	}
	if err := checkRawLengths(&req.Title, &req.Content); err != nil {
		handleAnnouncementServiceError(c, err)
		return
	}

	item, err := h.announcementService.Create(c.Request.Context(), claims.UserID, service.CreateAnnouncementRequest{
		Title:    inputsanitize.PlainText(req.Title),
		Content:  inputsanitize.PlainText(req.Content),
		Priority: req.Priority,
	})
	if err != nil {
		handleAnnouncementServiceError(c, err)
		return
	}

	response.Created(c, item)
}

// Update
// @Summary Edit an announcement
// @Tags announcement
// @Accept json
// @Produce json
// @Param id path string true "announcement id"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/announcements/{id} [put]
func (h *AnnouncementHandler) Update(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "unauthorized")
		return
	}

	var req updateAnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidRequest, "invalid request")
		return
	}
	if err := checkRawLengths(req.Title, req.Content); err != nil {
		handleAnnouncementServiceError(c, err)
		return
	}

	item, err := h.announcementService.Update(c.Request.Context(), c.Param("id"), claims.UserID, service.UpdateAnnouncementRequest{
		Title:    inputsanitize.PlainTextPtr(req.Title),
		Content:  inputsanitize.PlainTextPtr(req.Content),
		Priority: req.Priority,
	})
	if err != nil {
		handleAnnouncementServiceError(c, err)
		return
	}

	response.Success(c, item)
}

// Archive
// @Summary Archive an announcement
// @Tags announcement
// @Param id path string true "announcement id"
// @Success 200 {object} response.Response
// @Router /api/v1/announcements/{id}/archive [post]
func (h *AnnouncementHandler) Archive(c *gin.Context) {
	h.transition(c, h.announcementService.Archive, "archived")
}

// Unarchive
// @Summary Restore an archived announcement
// @Tags announcement
// @Param id path string true "announcement id"
// @Success 200 {object} response.Response
// @Router /api/v1/announcements/{id}/unarchive [post]
func (h *AnnouncementHandler) Unarchive(c *gin.Context) {
	h.transition(c, h.announcementService.Unarchive, "unarchived")
}

// Delete
// @Summary Delete an announcement
// @Tags announcement
// @Param id path string true "announcement id"
// @Success 200 {object} response.Response
// @Router /api/v1/announcements/{id} [delete]
func (h *AnnouncementHandler) Delete(c *gin.Context) {
	h.transition(c, h.announcementService.Delete, "deleted")
}

func (h *AnnouncementHandler) transition(
	c *gin.Context,
	apply func(ctx context.Context, announcementID, userID string) error,
	flag string,
) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "unauthorized")
		return
	}

	if err := apply(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		handleAnnouncementServiceError(c, err)
		return
	}

	response.Success(c, gin.H{flag: true})
}

// checkRawLengths applies the upper bounds to the submitted text before
// sanitizing trims it.
func checkRawLengths(title, content *string) error {
	if title != nil && utf8.RuneCountInString(*title) > model.AnnouncementTitleMaxLen {
		return fmt.Errorf("%w: title must be at most %d characters", model.ErrValidation, model.AnnouncementTitleMaxLen)
	}
	if content != nil && utf8.RuneCountInString(*content) > model.AnnouncementContentMaxLen {
		return fmt.Errorf("%w: content must be at most %d characters", model.ErrValidation, model.AnnouncementContentMaxLen)
	}
	return nil
}

func handleAnnouncementServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidID):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidRequest, "invalid identifier")
	case errors.Is(err, model.ErrValidation):
		response.Fail(c, http.StatusBadRequest, response.ErrValidation, err.Error())
	case errors.Is(err, service.ErrForbidden):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden, "forbidden")
	case errors.Is(err, service.ErrAnnouncementNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrAnnouncementNotFound, "announcement not found")
	case errors.Is(err, service.ErrNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrMemberNotFound, "member not found")
	case errors.Is(err, model.ErrArchived):
		response.Fail(c, http.StatusConflict, response.ErrAnnouncementArchived, "announcement is archived")
	default:
		_ = c.Error(err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "internal error")
	}
}
