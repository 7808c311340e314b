// Package handlers contains the echo HTTP handlers for the forum's
// read-only API surface.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/bicommunity/forum/internal/forum"
)

// ForumHandler serves the read side of the forum store: categories and the
// topics materialized into them.
type ForumHandler struct {
	logger  *slog.Logger
	service *forum.Service
}

func NewForumHandler(log *slog.Logger, service *forum.Service) *ForumHandler {
	return &ForumHandler{
		logger:  log.With(slog.String("handler", "forum")),
		service: service,
	}
}

func (h *ForumHandler) Register(e *echo.Echo) {
	e.GET("/api/categories", h.ListCategories)
	e.GET("/api/categories/:id/topics", h.ListTopics)
	e.GET("/api/topics/:id", h.GetTopic)
}

func (h *ForumHandler) ListCategories(c echo.Context) error {
	categories, err := h.service.ListCategories(c.Request().Context())
	if err != nil {
		h.logger.Error("list categories failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "list categories failed")
	}
	return c.JSON(http.StatusOK, categories)
}

func (h *ForumHandler) ListTopics(c echo.Context) error {
	categoryID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid category id")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	topics, err := h.service.ListTopicsByCategory(c.Request().Context(), categoryID, limit)
	if err != nil {
		h.logger.Error("list topics failed", slog.Int64("category_id", categoryID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "list topics failed")
	}
	return c.JSON(http.StatusOK, topics)
}

func (h *ForumHandler) GetTopic(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid topic id")
	}
	topic, err := h.service.GetTopic(c.Request().Context(), id)
	if errors.Is(err, forum.ErrTopicNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "topic not found")
	}
	if err != nil {
		h.logger.Error("get topic failed", slog.Int64("topic_id", id), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "get topic failed")
	}
	return c.JSON(http.StatusOK, topic)
}
