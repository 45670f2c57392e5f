package server

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sinadarvi/quest/internal/store"
)

// ChatsHandler serves saved-chat CRUD for authenticated users.
type ChatsHandler struct {
	Store *store.Store
}

func (h *ChatsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.DELETE("/:id", h.remove)
}

func (h *ChatsHandler) userID(c echo.Context) (string, error) {
	id, _ := c.Get("user_id").(string)
	if id == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return id, nil
}

func (h *ChatsHandler) list(c echo.Context) error {
	userID, err := h.userID(c)
	if err != nil {
		return err
	}
	chats, err := h.Store.ListChats(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if chats == nil {
		chats = []store.ChatSummary{}
	}
	return c.JSON(http.StatusOK, chats)
}

func (h *ChatsHandler) get(c echo.Context) error {
	userID, err := h.userID(c)
	if err != nil {
		return err
	}
	chat, err := h.Store.GetChat(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "chat not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, chat)
}

func (h *ChatsHandler) remove(c echo.Context) error {
	userID, err := h.userID(c)
	if err != nil {
		return err
	}
	if err := h.Store.DeleteChat(c.Request().Context(), c.Param("id"), userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "chat not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
