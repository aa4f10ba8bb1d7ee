// Package mcpserver exposes the bot controls as MCP tools so an assistant can
// start, stop and talk through the bot.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sudoapty-afk/glowing-barnacle/internal/control"
	"github.com/sudoapty-afk/glowing-barnacle/internal/session"
	"github.com/sudoapty-afk/glowing-barnacle/internal/trigger"
)

const statusURI = "minebot://status"

// StatusResult is the session snapshot as reported to MCP clients.
type StatusResult struct {
	Status       string `json:"status" jsonschema:"offline, connecting or online"`
	Reconnect    bool   `json:"reconnect" jsonschema:"whether the bot reconnects after a disconnect"`
	RetryPending bool   `json:"retry_pending" jsonschema:"whether a reconnect is scheduled"`
	Host         string `json:"host,omitempty" jsonschema:"game server host"`
	Port         int    `json:"port,omitempty" jsonschema:"game server port"`
	Username     string `json:"username,omitempty" jsonschema:"bot username"`
	Attempts     uint64 `json:"attempts" jsonschema:"connection attempts since the last start"`
	LastError    string `json:"last_error,omitempty" jsonschema:"reason for the last disconnect"`
	Since        string `json:"since,omitempty" jsonschema:"RFC3339 time of the last status change"`
}

func statusResult(s session.Snapshot) StatusResult {
	r := StatusResult{
		Status:       s.Status.String(),
		Reconnect:    s.Reconnect,
		RetryPending: s.RetryPending,
		Host:         s.Host,
		Port:         s.Port,
		Username:     s.Username,
		Attempts:     s.Attempts,
		LastError:    s.LastError,
	}
	if !s.Since.IsZero() {
		r.Since = s.Since.UTC().Format(time.RFC3339)
	}
	return r
}

type StatusInput struct{}

type StartInput struct {
	Host             string `json:"host,omitempty" jsonschema:"game server host, defaults to the configured host"`
	Port             int    `json:"port,omitempty" jsonschema:"game server port, defaults to the configured port"`
	Username         string `json:"username,omitempty" jsonschema:"bot username, defaults to the configured name"`
	HeartbeatMessage string `json:"heartbeat_message,omitempty" jsonschema:"chat line sent every heartbeat"`
}

type StopInput struct{}

type ChatInput struct {
	Message string `json:"message" jsonschema:"chat line to send"`
}

type ChatResult struct {
	Success bool   `json:"success" jsonschema:"whether the line was handed to the game connection"`
	Error   string `json:"error,omitempty" jsonschema:"why the send failed"`
}

type TriggerInput struct {
	EventDescription  string   `json:"event_description" jsonschema:"what happened in game"`
	AvailableMessages []string `json:"available_messages,omitempty" jsonschema:"lines to choose from, defaults to the configured list"`
}

type TriggerResult struct {
	ShouldSendMessage bool   `json:"should_send_message" jsonschema:"the model's decision"`
	MessageContent    string `json:"message_content,omitempty" jsonschema:"the chosen line"`
	Sent              bool   `json:"sent" jsonschema:"whether the line reached the game connection"`
	SendError         string `json:"send_error,omitempty" jsonschema:"why sending failed"`
}

// New builds an MCP server with the bot tools and a status resource.
func New(svc *control.Service, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "minebot", Version: version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "bot_status",
		Description: "Reports whether the bot is offline, connecting or online.",
	}, statusHandler(svc))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "bot_start",
		Description: "Connects the bot to a game server and keeps it connected. Blank fields use the configured defaults.",
	}, startHandler(svc))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "bot_stop",
		Description: "Disconnects the bot and stops reconnecting.",
	}, stopHandler(svc))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "bot_send_chat",
		Description: "Sends a chat line through the bot. Fails unless the bot is online.",
	}, chatHandler(svc))
	if svc.TriggerEnabled() {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "bot_trigger",
			Description: "Asks the language model whether the bot should answer an in-game event, and sends the chosen line.",
		}, triggerHandler(svc))
	}

	server.AddResource(&mcp.Resource{
		Name:        "bot_status",
		Title:       "Bot status",
		Description: "Current session snapshot.",
		MIMEType:    "application/json",
		URI:         statusURI,
	}, statusResource(svc))

	return server
}

// Handler serves server over the streamable HTTP transport.
func Handler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
}

func statusHandler(svc *control.Service) mcp.ToolHandlerFor[StatusInput, StatusResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ StatusInput) (*mcp.CallToolResult, StatusResult, error) {
		return nil, statusResult(svc.Status()), nil
	}
}

func startHandler(svc *control.Service) mcp.ToolHandlerFor[StartInput, StatusResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, in StartInput) (*mcp.CallToolResult, StatusResult, error) {
		snap, err := svc.Start(session.Config{
			Host:             in.Host,
			Port:             in.Port,
			Username:         in.Username,
			HeartbeatMessage: in.HeartbeatMessage,
		})
		if err != nil {
			return nil, StatusResult{}, fmt.Errorf("bot start failed: %w", err)
		}
		return nil, statusResult(snap), nil
	}
}

func stopHandler(svc *control.Service) mcp.ToolHandlerFor[StopInput, StatusResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ StopInput) (*mcp.CallToolResult, StatusResult, error) {
		return nil, statusResult(svc.Stop()), nil
	}
}

func chatHandler(svc *control.Service) mcp.ToolHandlerFor[ChatInput, ChatResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, in ChatInput) (*mcp.CallToolResult, ChatResult, error) {
		res, _ := svc.Chat(in.Message)
		return nil, ChatResult{Success: res.Success, Error: res.Error}, nil
	}
}

func triggerHandler(svc *control.Service) mcp.ToolHandlerFor[TriggerInput, TriggerResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in TriggerInput) (*mcp.CallToolResult, TriggerResult, error) {
		res, err := svc.Trigger(ctx, trigger.Input{
			EventDescription:  in.EventDescription,
			AvailableMessages: in.AvailableMessages,
		})
		if err != nil {
			return nil, TriggerResult{}, fmt.Errorf("trigger failed: %w", err)
		}
		return nil, TriggerResult{
			ShouldSendMessage: res.ShouldSendMessage,
			MessageContent:    res.MessageContent,
			Sent:              res.Sent,
			SendError:         res.SendError,
		}, nil
	}
}

func statusResource(svc *control.Service) mcp.ResourceHandler {
	return func(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		data, err := json.MarshalIndent(statusResult(svc.Status()), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal status: %w", err)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{URI: statusURI, MIMEType: "application/json", Text: string(data)},
			},
		}, nil
	}
}
