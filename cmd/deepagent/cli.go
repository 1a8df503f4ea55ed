// Package main defines the CLI structure using kong.
package main

import "github.com/alecthomas/kong"

// Globals are flags shared by every command.
type Globals struct {
	Config      string `short:"c" help:"Config file path (default: ./deepagent.toml)" type:"path"`
	Model       string `help:"Model name (overrides MODEL_NAME and config)"`
	MetricsAddr string `help:"Serve Prometheus metrics on this address, e.g. :9090"`
}

// CLI defines the command-line interface.
type CLI struct {
	Globals

	Chat    ChatCmd    `cmd:"" default:"1" help:"Start the interactive chat"`
	Ask     AskCmd     `cmd:"" help:"Ask one question and print the reply"`
	Tools   ToolsCmd   `cmd:"" help:"List the tools available to the agents"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// ChatCmd runs the terminal UI.
type ChatCmd struct{}

// AskCmd runs a single turn.
type AskCmd struct {
	Mode     string   `short:"m" default:"normal" enum:"normal,deep" help:"Agent mode (normal, deep)"`
	Quiet    bool     `short:"q" help:"Do not print tool progress to stderr"`
	Question []string `arg:"" help:"Question to ask"`
}

// ToolsCmd lists local and MCP tools.
type ToolsCmd struct{}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
