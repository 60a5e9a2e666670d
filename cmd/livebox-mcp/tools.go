package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/livebox/models"
)

// apiClient calls the livebox HTTP API.
type apiClient struct {
	http *resty.Client
}

func newAPIClient(apiURL, apiKey string) *apiClient {
	hc := resty.New().
		SetBaseURL(strings.TrimRight(apiURL, "/")).
		// Interactive recovery can hold a scrape open for minutes.
		SetTimeout(10*time.Minute).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		hc.SetHeader("X-API-Key", apiKey)
	}
	return &apiClient{http: hc}
}

// call sends body (may be nil) and decodes the JSON response into out,
// whatever the status code; API errors are carried in the body.
func (c *apiClient) call(ctx context.Context, method, path string, body, out any) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode(), err)
	}
	return nil
}

func errorText(detail *models.ErrorDetail, fallback string) string {
	if detail == nil {
		return fallback
	}
	return fmt.Sprintf("[%s] %s", detail.Code, detail.Message)
}

func handleScrapeRoom(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		reqBody := models.ScrapeRequest{
			URL:  url,
			Mode: request.GetString("mode", ""),
		}

		var resp models.ScrapeResponse
		if err := c.call(ctx, resty.MethodPost, "/api/v1/scrape", reqBody, &resp); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !resp.Success || resp.Room == nil {
			return mcp.NewToolResultError(errorText(resp.Error, "scrape failed")), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "URL: %s\n", resp.URL)
		if resp.Room.Title != "" {
			fmt.Fprintf(&b, "Title: %s\n", resp.Room.Title)
		}
		fmt.Fprintf(&b, "Source: %s (attempts: %d", resp.Source, resp.Attempts)
		if resp.Reauthenticated {
			b.WriteString(", re-authenticated")
		}
		b.WriteString(")\n")
		if resp.Room.Ended {
			b.WriteString("Status: stream ended, anchor data only\n")
		}
		if resp.Room.SessionID != "" {
			fmt.Fprintf(&b, "Session ID: %s\n", resp.Room.SessionID)
		}
		if resp.Room.TTWID != "" {
			fmt.Fprintf(&b, "ttwid: %s\n", resp.Room.TTWID)
		}
		b.WriteString("\n")
		b.Write(resp.Room.Payload)

		return mcp.NewToolResultText(b.String()), nil
	}
}

func handleSaveCredentials(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cookie, err := request.RequireString("cookie")
		if err != nil {
			return mcp.NewToolResultError("cookie is required"), nil
		}

		var resp models.CredentialsResponse
		if err := c.call(ctx, resty.MethodPut, "/api/v1/credentials", models.CredentialsRequest{Cookie: cookie}, &resp); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !resp.Success {
			return mcp.NewToolResultError(errorText(resp.Error, "save failed")), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Saved %d cookies to %s", resp.Count, resp.Path)), nil
	}
}

func handleClearCredentials(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var resp models.CredentialsResponse
		if err := c.call(ctx, resty.MethodDelete, "/api/v1/credentials", nil, &resp); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !resp.Success {
			return mcp.NewToolResultError(errorText(resp.Error, "clear failed")), nil
		}
		if resp.Removed != nil && !*resp.Removed {
			return mcp.NewToolResultText("No saved credentials to clear"), nil
		}
		return mcp.NewToolResultText("Credentials cleared"), nil
	}
}
