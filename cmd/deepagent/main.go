// Package main is the entry point for the deepagent chat CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/vinayprograms/agentkit/credentials"

	"github.com/vinayprograms/deepagent/internal/modes"
	"github.com/vinayprograms/deepagent/internal/ui"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// globalCreds holds loaded credentials (file is the fallback for env keys)
var globalCreds *credentials.Credentials

func init() {
	if creds, _, err := credentials.Load(); err == nil && creds != nil {
		globalCreds = creds
	}
	_ = godotenv.Load()
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("deepagent"),
		kong.Description("Chat with a web-searching agent or run deep research."),
		kong.UsageOnError(),
		kong.Vars(kongVars()),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}

// Run starts the interactive chat.
func (c *ChatCmd) Run(g *Globals) error {
	rt, err := startRuntime(g, nil)
	if err != nil {
		return err
	}
	defer rt.close()

	return ui.Run(rt.chat, ui.Options{
		Model:    rt.env.Model,
		Theme:    rt.cfg.UI.Theme,
		WordWrap: rt.cfg.UI.WordWrap,
	})
}

// Run asks one question and prints the reply to stdout.
func (c *AskCmd) Run(g *Globals) error {
	mode, err := modes.Parse(c.Mode)
	if err != nil {
		return err
	}
	question := strings.TrimSpace(strings.Join(c.Question, " "))
	if question == "" {
		return fmt.Errorf("question is empty")
	}

	var progress io.Writer
	if !c.Quiet {
		progress = os.Stderr
	}
	rt, err := startRuntime(g, progress)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt.progressf("%s\n", mode.Loading())
	reply, err := rt.chat.Submit(ctx, mode, question)
	if err != nil {
		return err
	}
	fmt.Println(reply.Content)
	return nil
}

// Run lists the tools each agent would be built with.
func (c *ToolsCmd) Run(g *Globals) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	rt := newRuntime(cfg, globalCreds, os.Stderr)
	defer rt.close()

	if err := rt.setupTools(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.MCPTimeout())
	defer cancel()

	ts, err := rt.tools.Tools(ctx)
	if err != nil {
		return err
	}
	for _, t := range ts {
		desc := strings.SplitN(strings.TrimSpace(t.Description()), "\n", 2)[0]
		fmt.Printf("%-24s %s\n", t.Name(), desc)
	}
	return nil
}

// Run prints version information.
func (c *VersionCmd) Run() error {
	fmt.Printf("deepagent version %s (commit: %s, built: %s)\n", version, commit, buildTime)
	return nil
}
