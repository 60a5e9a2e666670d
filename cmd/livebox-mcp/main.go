package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	apiURL := os.Getenv("LIVEBOX_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	c := newAPIClient(apiURL, os.Getenv("LIVEBOX_API_KEY"))

	s := server.NewMCPServer(
		"livebox",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	scrapeRoomTool := mcp.NewTool("scrape_room",
		mcp.WithDescription("Scrape a live-streaming room page and return its embedded room data as JSON. May block while a login window waits for the user when the saved session has expired."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the live room"),
		),
		mcp.WithString("mode",
			mcp.Description("Fetching strategy: 'http' (default), 'rendered' (read from a browser-rendered page) or 'auto' (http, rendered on a captcha wall)"),
			mcp.Enum("http", "rendered", "auto"),
		),
	)
	s.AddTool(scrapeRoomTool, handleScrapeRoom(c))

	saveCredentialsTool := mcp.NewTool("save_credentials",
		mcp.WithDescription("Save a raw cookie header (\"name=value; ...\") copied from a signed-in browser as the scraping session."),
		mcp.WithString("cookie",
			mcp.Required(),
			mcp.Description("The raw cookie header"),
		),
	)
	s.AddTool(saveCredentialsTool, handleSaveCredentials(c))

	clearCredentialsTool := mcp.NewTool("clear_credentials",
		mcp.WithDescription("Delete the saved scraping session so the next scrape runs anonymously."),
	)
	s.AddTool(clearCredentialsTool, handleClearCredentials(c))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
