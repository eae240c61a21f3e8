// Package mcp manages the persistent tool channel to the viaNexus MCP
// server: endpoint and header rules, the streamable-HTTP client with OAuth,
// tool discovery and invocation, health probes, and tolerant teardown.
package mcp

import (
	"fmt"
	"strings"
)

// ClientContextTypeOpenBB widens the tool catalogue to include OpenBB tools.
const ClientContextTypeOpenBB = "openbb"

// ClientContext labels the kind of client connecting to the tool server.
type ClientContext struct {
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
}

// Config describes one viaNexus tool server.
type Config struct {
	ServerURL         string         `json:"server_url" yaml:"server_url"`
	ServerPort        int            `json:"server_port" yaml:"server_port"`
	SoftwareStatement string         `json:"software_statement" yaml:"software_statement"`
	ClientContext     *ClientContext `json:"client_context,omitempty" yaml:"client_context,omitempty"`
}

// Validate checks the fields required to open a channel.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("missing tool server configuration")
	}
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	if c.ServerPort <= 0 {
		return fmt.Errorf("server_port is required")
	}
	if c.SoftwareStatement == "" {
		return fmt.Errorf("software_statement is required")
	}
	return nil
}

// Endpoint builds the tool server URL: <scheme>://<host>:<port>/mcp, with
// https assumed when the configured server_url carries no scheme.
func (c *Config) Endpoint() string {
	scheme := "https"
	host := c.ServerURL
	if i := strings.Index(host, "://"); i >= 0 {
		scheme = host[:i]
		host = host[i+len("://"):]
	}
	host = strings.TrimSuffix(host, "/")
	if i := strings.Index(host, "/"); i >= 0 {
		host = host[:i]
	}
	if i := strings.Index(host, ":"); i >= 0 {
		host = host[:i]
	}
	return fmt.Sprintf("%s://%s:%d/mcp", scheme, host, c.ServerPort)
}

// ToolCategories builds the X-Tool-Categories header value: "financial" by
// default, with ",openbb" appended for OpenBB clients.
func (c *Config) ToolCategories() string {
	categories := "financial"
	if c.ClientContext != nil && c.ClientContext.Type == ClientContextTypeOpenBB {
		categories += "," + ClientContextTypeOpenBB
	}
	return categories
}

// Headers returns the request headers that must accompany every outbound
// call on the channel.
func (c *Config) Headers() map[string]string {
	return map[string]string{
		"X-Tool-Categories": c.ToolCategories(),
	}
}
