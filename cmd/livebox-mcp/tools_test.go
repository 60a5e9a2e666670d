package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/livebox/models"
)

func callTool(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (string, bool) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func TestScrapeRoom(t *testing.T) {
	var got models.ScrapeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/scrape", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-API-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(models.ScrapeResponse{
			Success:  true,
			URL:      "https://live.example.com/1",
			Source:   "http",
			Attempts: 2,
			Room: &models.Room{
				Payload:   json.RawMessage(`{"id_str":"7"}`),
				Title:     "Room",
				SessionID: "7300",
			},
			Reauthenticated: true,
		})
	}))
	defer srv.Close()

	text, isErr := callTool(t, handleScrapeRoom(newAPIClient(srv.URL, "k")), map[string]any{
		"url":  "live.example.com/1",
		"mode": "auto",
	})
	require.False(t, isErr)
	require.Equal(t, "live.example.com/1", got.URL)
	require.Equal(t, "auto", got.Mode)
	require.Contains(t, text, "Title: Room")
	require.Contains(t, text, "re-authenticated")
	require.Contains(t, text, `{"id_str":"7"}`)
}

func TestScrapeRoom_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusLocked)
		json.NewEncoder(w).Encode(models.ScrapeResponse{
			Error: &models.ErrorDetail{Code: models.ErrCodeNeedsCaptcha, Message: "captcha wall"},
		})
	}))
	defer srv.Close()
	h := handleScrapeRoom(newAPIClient(srv.URL, ""))

	text, isErr := callTool(t, h, map[string]any{})
	require.True(t, isErr)
	require.Equal(t, "url is required", text)

	text, isErr = callTool(t, h, map[string]any{"url": "https://live.example.com/1"})
	require.True(t, isErr)
	require.Equal(t, "[BLOCKED_NEEDS_CAPTCHA] captcha wall", text)
}

func TestCredentialTools(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			var req models.CredentialsRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "sessionid=a", req.Cookie)
			json.NewEncoder(w).Encode(models.CredentialsResponse{Success: true, Count: 1, Path: "/tmp/c.json"})
		case http.MethodDelete:
			removed := false
			json.NewEncoder(w).Encode(models.CredentialsResponse{Success: true, Removed: &removed})
		}
	}))
	defer srv.Close()
	c := newAPIClient(srv.URL, "")

	text, isErr := callTool(t, handleSaveCredentials(c), map[string]any{"cookie": "sessionid=a"})
	require.False(t, isErr)
	require.Equal(t, "Saved 1 cookies to /tmp/c.json", text)

	text, isErr = callTool(t, handleClearCredentials(c), nil)
	require.False(t, isErr)
	require.Equal(t, "No saved credentials to clear", text)
}
