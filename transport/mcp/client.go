package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/sessionrelay/game/service"
	"github.com/wricardo/sessionrelay/game/state"
)

// Client is a thin MCP server that answers every tool by calling the
// relay's REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API at baseURL
func NewClient(baseURL, version string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.mcpServer = server.NewMCPServer(
		"Session Relay",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions(`Session Relay - MCP Interface

Read-only view of a live multiplayer session. Players and entities change
as WebSocket clients send frames; these tools only observe.

AVAILABLE TOOLS:
- session_state: Players, entities, authority and connection count
- list_players: Every connected player with position and rotation
- get_player: One player by id
- list_entities: Every shared entity
- get_entity: One entity by id
- authority: Which connection may create, update and delete entities
- relay_metrics: Frame, connection and election counters`),
	)
	c.registerTools()
	return c
}

func (c *Client) registerTools() {
	noArgs := mcp.ToolInputSchema{
		Type:       "object",
		Properties: map[string]interface{}{},
	}

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "session_state",
		Description: "Summarize the whole session: players, entities, authority and connections",
		InputSchema: noArgs,
	}, c.handleSessionState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_players",
		Description: "List connected players",
		InputSchema: noArgs,
	}, c.handleListPlayers)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_player",
		Description: "Get one player by connection id",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"player_id": map[string]interface{}{
					"type":        "string",
					"description": "Player (connection) id",
				},
			},
			Required: []string{"player_id"},
		},
	}, c.handleGetPlayer)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_entities",
		Description: "List shared entities",
		InputSchema: noArgs,
	}, c.handleListEntities)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_entity",
		Description: "Get one entity by id, including its model",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"entity_id": map[string]interface{}{
					"type":        "string",
					"description": "Entity id, e.g. entity_1",
				},
			},
			Required: []string{"entity_id"},
		},
	}, c.handleGetEntity)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "authority",
		Description: "Show which connection currently holds entity authority",
		InputSchema: noArgs,
	}, c.handleAuthority)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "relay_metrics",
		Description: "Show relay counters",
		InputSchema: noArgs,
	}, c.handleRelayMetrics)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// ServeHTTP answers one JSON-RPC message per POST
func (c *Client) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	response := c.mcpServer.HandleMessage(r.Context(), body)

	w.Header().Set("Content-Type", "application/json")
	if response == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	data, err := json.Marshal(response)
	if err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Write(data)
}

func (c *Client) apiCall(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

func stringArg(request mcp.CallToolRequest, name string) string {
	args, _ := request.Params.Arguments.(map[string]interface{})
	v, _ := args[name].(string)
	return v
}

// Tool handlers

func (c *Client) handleSessionState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var view service.SessionView
	if err := c.apiCall(ctx, "/api/session", &view); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatSession(&view)), nil
}

func (c *Client) handleListPlayers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count   int            `json:"count"`
		Players []playerRecord `json:"players"`
	}
	if err := c.apiCall(ctx, "/api/players", &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Players (%d):\n\n", response.Count)
	for _, p := range response.Players {
		b.WriteString(formatPlayer(p.ID, p.PlayerState))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGetPlayer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := stringArg(request, "player_id")
	if id == "" {
		return mcp.NewToolResultError("player_id is required"), nil
	}

	var p playerRecord
	if err := c.apiCall(ctx, "/api/players/"+url.PathEscape(id), &p); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatPlayer(p.ID, p.PlayerState)), nil
}

func (c *Client) handleListEntities(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count    int                 `json:"count"`
		Entities []state.EntityState `json:"entities"`
	}
	if err := c.apiCall(ctx, "/api/entities", &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Entities (%d):\n\n", response.Count)
	for _, e := range response.Entities {
		b.WriteString(formatEntity(e))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGetEntity(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := stringArg(request, "entity_id")
	if id == "" {
		return mcp.NewToolResultError("entity_id is required"), nil
	}

	var e state.EntityState
	if err := c.apiCall(ctx, "/api/entities/"+url.PathEscape(id), &e); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatEntity(e)), nil
}

func (c *Client) handleAuthority(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var info service.AuthorityInfo
	if err := c.apiCall(ctx, "/api/authority", &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !info.Held {
		return mcp.NewToolResultText("No connection holds authority (session is empty)"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Authority: %s", info.ConnectionID)), nil
}

func (c *Client) handleRelayMetrics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var stats map[string]interface{}
	if err := c.apiCall(ctx, "/api/metrics", &stats); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("Relay metrics:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s: %v\n", k, stats[k])
	}
	return mcp.NewToolResultText(b.String()), nil
}

type playerRecord struct {
	ID string `json:"id"`
	state.PlayerState
}

func formatSession(view *service.SessionView) string {
	var b strings.Builder
	authority := view.Authority
	if authority == "" {
		authority = "(none)"
	}
	fmt.Fprintf(&b, "Connections: %d\nAuthority: %s\n\n", view.Connections, authority)

	ids := make([]string, 0, len(view.Players))
	for id := range view.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	fmt.Fprintf(&b, "Players (%d):\n", len(ids))
	for _, id := range ids {
		b.WriteString(formatPlayer(id, view.Players[id]))
	}

	entityIDs := make([]string, 0, len(view.Entities))
	for id := range view.Entities {
		entityIDs = append(entityIDs, id)
	}
	sort.Strings(entityIDs)
	fmt.Fprintf(&b, "\nEntities (%d):\n", len(entityIDs))
	for _, id := range entityIDs {
		b.WriteString(formatEntity(view.Entities[id]))
	}
	return b.String()
}

func formatPlayer(id string, p state.PlayerState) string {
	name := p.Username
	if name == "" {
		name = "(no username)"
	}
	return fmt.Sprintf("- %s %s at (%.2f, %.2f, %.2f) facing %.2f\n",
		id, name, p.Position.X, p.Position.Y, p.Position.Z, p.Rotation)
}

func formatEntity(e state.EntityState) string {
	line := fmt.Sprintf("- %s at (%.2f, %.2f, %.2f) facing %.2f",
		e.ID, e.Position.X, e.Position.Y, e.Position.Z, e.Rotation)
	if len(e.Model) > 0 {
		line += " model=" + string(e.Model)
	}
	return line + "\n"
}
