package controller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"pdfchat-be/internal/pkg/apperror"
	"pdfchat-be/internal/pkg/logger"
	"pdfchat-be/internal/pkg/serverutils"
	"pdfchat-be/internal/repository/memory"
	"pdfchat-be/internal/service"
	"pdfchat-be/pkg/reasoning"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGateway struct {
	mu           sync.Mutex
	completeErr  error
	lastPrompt   string
	lastSystem   string
	summaryCalls int
}

func (g *stubGateway) Complete(_ context.Context, prompt, systemInstruction string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.completeErr != nil {
		return "", g.completeErr
	}
	if strings.HasPrefix(prompt, reasoning.SummaryPrompt("")) {
		g.summaryCalls++
		return "summary of " + strings.TrimPrefix(prompt, reasoning.SummaryPrompt("")), nil
	}
	g.lastPrompt, g.lastSystem = prompt, systemInstruction
	return "plain answer", nil
}

func (g *stubGateway) CompleteWithCitations(context.Context, []reasoning.Turn, []reasoning.Page) (*reasoning.Answer, error) {
	return nil, errors.New("not used over REST")
}

func newTestApp(gw *stubGateway) *fiber.App {
	log := logger.NewNopLogger()
	enricher := service.NewContextEnricher(gw, 2, 500, log, nil)
	sessions := service.NewChatSessionService(memory.NewChatSessionRepository(), enricher, nil, log)

	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware())
	NewChatController(sessions, gw, log).RegisterRoutes(app.Group("/api"))
	return app
}

func post(t *testing.T, app *fiber.App, path, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat"+path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func TestCreateSessionSummarizesAndReturnsSession(t *testing.T) {
	gw := &stubGateway{}
	app := newTestApp(gw)

	status, body := post(t, app, "/session/create", `{"fileHash":"abc123","pdfContext":[{"text":"Intro","pageNumber":1},{"text":"Methods","pageNumber":2}]}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, msgSessionCreated, body["message"])

	session := body["session"].(map[string]interface{})
	pages := session["pdfContext"].([]interface{})
	require.Len(t, pages, 2)
	assert.Equal(t, "summary of Intro", pages[0].(map[string]interface{})["summary"])
	assert.Equal(t, []interface{}{}, session["chatMessages"])
	assert.Equal(t, 2, gw.summaryCalls)

	// A second create leaves the session untouched.
	status, body = post(t, app, "/session/create", `{"fileHash":"abc123","pdfContext":[{"text":"Other","pageNumber":1}]}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, msgSessionExists, body["message"])
	assert.Equal(t, 2, gw.summaryCalls)
}

func TestCreateSessionValidation(t *testing.T) {
	app := newTestApp(&stubGateway{})

	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing hash", `{"pdfContext":[]}`, "File hash is required"},
		{"missing context", `{"fileHash":"abc123"}`, service.MsgPdfContextRequired},
		{"bad page", `{"fileHash":"abc123","pdfContext":[{"text":"x"}]}`, service.MsgPdfContextMalformed},
		{"duplicate pages", `{"fileHash":"abc123","pdfContext":[{"text":"a","pageNumber":1},{"text":"b","pageNumber":1}]}`, service.MsgPageNumbersInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := post(t, app, "/session/create", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, tt.want, body["error"])
		})
	}

	// Nothing was created along the way.
	status, _ := post(t, app, "/session/get", `{"fileHash":"abc123"}`)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCreateSessionUpstreamFailure(t *testing.T) {
	app := newTestApp(&stubGateway{completeErr: apperror.Upstream("complete", errors.New("rate limited"))})

	status, body := post(t, app, "/session/create", `{"fileHash":"abc123","pdfContext":[{"text":"Intro","pageNumber":1}]}`)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Failed to create/update chat session", body["error"])
	assert.Contains(t, body["details"], "rate limited")
}

func TestGetSessionNotFoundCarriesFileHash(t *testing.T) {
	app := newTestApp(&stubGateway{})

	status, body := post(t, app, "/session/get", `{"fileHash":"missing"}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, service.MsgChatSessionNotFound, body["error"])
	assert.Equal(t, "missing", body["fileHash"])
}

func TestUpdateSessionAppendsMessages(t *testing.T) {
	app := newTestApp(&stubGateway{})

	status, _ := post(t, app, "/session/update", `{"fileHash":"abc123","chatMessages":[]}`)
	require.Equal(t, http.StatusNotFound, status)

	post(t, app, "/session/create", `{"fileHash":"abc123","pdfContext":[{"text":"Intro","pageNumber":1,"summary":"given"}]}`)

	status, body := post(t, app, "/session/update", `{"fileHash":"abc123","chatMessages":[{"message":"hello","type":"user","userId":"u1"},{"message":"hi","type":"ai"}]}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, msgSessionUpdated, body["message"])

	messages := body["session"].(map[string]interface{})["chatMessages"].([]interface{})
	require.Len(t, messages, 2)
	assert.Equal(t, "hello", messages[0].(map[string]interface{})["message"])
	assert.Equal(t, "ai", messages[1].(map[string]interface{})["type"])

	// Context keeps the caller's summary.
	pages := body["session"].(map[string]interface{})["pdfContext"].([]interface{})
	assert.Equal(t, "given", pages[0].(map[string]interface{})["summary"])
}

func TestUpdateSessionRejectsBadMessagesWithoutApplyingContext(t *testing.T) {
	app := newTestApp(&stubGateway{})
	post(t, app, "/session/create", `{"fileHash":"abc123","pdfContext":[{"text":"Intro","pageNumber":1,"summary":"old"}]}`)

	status, _ := post(t, app, "/session/update", `{"fileHash":"abc123","pdfContext":[{"text":"New","pageNumber":1,"summary":"new"}],"chatMessages":[{"message":"x","type":"robot"}]}`)
	assert.Equal(t, http.StatusBadRequest, status)

	_, body := post(t, app, "/session/get", `{"fileHash":"abc123"}`)
	pages := body["session"].(map[string]interface{})["pdfContext"].([]interface{})
	assert.Equal(t, "old", pages[0].(map[string]interface{})["summary"])
}

func TestDeleteSessionIsIdempotent(t *testing.T) {
	app := newTestApp(&stubGateway{})
	post(t, app, "/session/create", `{"fileHash":"abc123","pdfContext":[{"text":"Intro","pageNumber":1,"summary":"s"}]}`)

	for i := 0; i < 2; i++ {
		status, body := post(t, app, "/session/delete", `{"fileHash":"abc123"}`)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, msgSessionDeleted, body["message"])
	}

	status, _ := post(t, app, "/session/get", `{"fileHash":"abc123"}`)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSendMessageLogsBothSides(t *testing.T) {
	gw := &stubGateway{}
	app := newTestApp(gw)

	status, body := post(t, app, "/send", `{"message":"What is this?","systemPrompt":"Be brief","userId":"u1","fileHash":"abc123"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "plain answer", body["response"])
	assert.Equal(t, "What is this?", gw.lastPrompt)
	assert.Equal(t, "Be brief", gw.lastSystem)

	_, body = post(t, app, "/session/get", `{"fileHash":"abc123"}`)
	messages := body["session"].(map[string]interface{})["chatMessages"].([]interface{})
	require.Len(t, messages, 2)
	user := messages[0].(map[string]interface{})
	ai := messages[1].(map[string]interface{})
	assert.Equal(t, "user", user["type"])
	assert.Equal(t, "u1", user["userId"])
	assert.Equal(t, "ai", ai["type"])
	assert.Equal(t, "ai", ai["userId"])
}

func TestSendMessageValidationOrder(t *testing.T) {
	app := newTestApp(&stubGateway{})

	status, body := post(t, app, "/send", `{}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Message is required", body["error"])

	status, body = post(t, app, "/send", `{"message":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "File hash is required", body["error"])
}

func TestSendMessageUpstreamFailure(t *testing.T) {
	app := newTestApp(&stubGateway{completeErr: apperror.Upstream("complete", errors.New("timeout"))})

	status, body := post(t, app, "/send", `{"message":"hi","fileHash":"abc123"}`)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Failed to process message", body["error"])
}
