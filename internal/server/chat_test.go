package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/blogify-ai/blogify/internal/chat"
	"github.com/blogify-ai/blogify/models"
	"github.com/blogify-ai/blogify/provider"
)

type stubChatProvider struct {
	reply       string
	lastHistory []provider.Message
	lastMessage string
}

func (s *stubChatProvider) SelectTopic(context.Context, []string) (int, string, error) {
	return 0, "", nil
}

func (s *stubChatProvider) SelectTemplate(context.Context, string, string) (string, error) {
	return "", nil
}

func (s *stubChatProvider) GenerateContent(context.Context, provider.ContentRequest) (models.Content, []provider.Message, error) {
	return models.Content{}, nil, nil
}

func (s *stubChatProvider) RepairContent(context.Context, []provider.Message, string, []string) (models.Content, error) {
	return models.Content{}, nil
}

func (s *stubChatProvider) Chat(_ context.Context, history []provider.Message, message string) (string, error) {
	s.lastHistory = append([]provider.Message(nil), history...)
	s.lastMessage = message
	return s.reply, nil
}

func postJSON(t *testing.T, e *echo.Echo, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestChatCarriesConversationHistory(t *testing.T) {
	p := &stubChatProvider{reply: "first reply"}
	h := &ChatHandler{Provider: p, History: chat.NewMemoryHistory()}
	e := echo.New()

	c, rec := postJSON(t, e, "/api/chat", `{"message": "hello"}`)
	if err := h.chat(c); err != nil {
		t.Fatalf("chat: %v", err)
	}
	var first struct {
		ConversationID string `json:"conversation_id"`
		Reply          string `json:"reply"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.Reply != "first reply" || first.ConversationID == "" {
		t.Fatalf("response = %+v", first)
	}
	if len(p.lastHistory) != 0 {
		t.Fatalf("first turn carried history: %+v", p.lastHistory)
	}

	p.reply = "second reply"
	c, _ = postJSON(t, e, "/api/chat", `{"conversation_id": "`+first.ConversationID+`", "message": "and then?"}`)
	if err := h.chat(c); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if len(p.lastHistory) != 2 {
		t.Fatalf("second turn history = %+v, want prior user+model turns", p.lastHistory)
	}
	if p.lastHistory[0].Content != "hello" || p.lastHistory[1].Content != "first reply" {
		t.Fatalf("history = %+v", p.lastHistory)
	}
}

func TestChatRequiresMessage(t *testing.T) {
	h := &ChatHandler{Provider: &stubChatProvider{}, History: chat.NewMemoryHistory()}
	e := echo.New()
	c, _ := postJSON(t, e, "/api/chat", `{}`)

	err := h.chat(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400", err)
	}
}

func TestChatClear(t *testing.T) {
	history := chat.NewMemoryHistory()
	_ = history.Append(context.Background(), "conv-1", provider.Message{Role: "user", Content: "x"})
	h := &ChatHandler{Provider: &stubChatProvider{}, History: history}
	e := echo.New()

	c, rec := postJSON(t, e, "/api/chat/clear", `{"conversation_id": "conv-1"}`)
	if err := h.clear(c); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	msgs, _ := history.Load(context.Background(), "conv-1")
	if len(msgs) != 0 {
		t.Fatalf("history survived clear: %+v", msgs)
	}

	c, _ = postJSON(t, e, "/api/chat/clear", `{}`)
	err := h.clear(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400", err)
	}
}
