package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/blogify-ai/blogify/internal/catalog"
	"github.com/blogify-ai/blogify/internal/chat"
	"github.com/blogify-ai/blogify/provider"
)

// ChatHandler exposes the writing assistant. Outline and improve are thin
// prompt wrappers over the same chat conversation.
type ChatHandler struct {
	Provider provider.Provider
	History  chat.History
	Catalog  *catalog.Catalog
}

func (h *ChatHandler) Register(g *echo.Group) {
	g.POST("", h.chat)
	g.POST("/outline", h.outline)
	g.POST("/improve", h.improve)
	g.POST("/clear", h.clear)
}

type chatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	Topic          string `json:"topic"`
	Template       string `json:"template"`
	Text           string `json:"text"`
	Instructions   string `json:"instructions"`
}

func (h *ChatHandler) respond(c echo.Context, convID, message string) error {
	ctx := c.Request().Context()
	if convID == "" {
		convID = uuid.NewString()
	}
	history, err := h.History.Load(ctx, convID)
	if err != nil {
		return err
	}
	reply, err := h.Provider.Chat(ctx, history, message)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, fmt.Sprintf("assistant unavailable: %v", err))
	}
	err = h.History.Append(ctx, convID,
		provider.Message{Role: "user", Content: message},
		provider.Message{Role: "model", Content: reply},
	)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"conversation_id": convID, "reply": reply})
}

func (h *ChatHandler) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	return h.respond(c, req.ConversationID, req.Message)
}

func (h *ChatHandler) outline(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Topic) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic is required")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Create a detailed blog post outline for the topic %q.\n", req.Topic)
	if req.Template != "" {
		if d, ok := h.Catalog.Get(req.Template); ok {
			fmt.Fprintf(&b, "Structure it as a %s: %s\n", d.Name, d.Purpose)
		}
	} else {
		b.WriteString("Available article formats:\n")
		b.WriteString(h.Catalog.Descriptions())
	}
	b.WriteString("Return the outline as a numbered list of section headings with one-line summaries.")
	return h.respond(c, req.ConversationID, b.String())
}

func (h *ChatHandler) improve(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}
	var b strings.Builder
	b.WriteString("Improve the following blog text. Keep the meaning, tighten the prose, fix grammar")
	if req.Instructions != "" {
		fmt.Fprintf(&b, ", and follow these instructions: %s", req.Instructions)
	}
	b.WriteString(".\n\n")
	b.WriteString(req.Text)
	return h.respond(c, req.ConversationID, b.String())
}

func (h *ChatHandler) clear(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ConversationID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "conversation_id is required")
	}
	if err := h.History.Clear(c.Request().Context(), req.ConversationID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"conversation_id": req.ConversationID, "status": "cleared"})
}
