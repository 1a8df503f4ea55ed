package main

import (
	"strings"
	"testing"

	"github.com/alecthomas/kong"
)

func TestCLI_AskParsing(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli, kong.Vars(kongVars()))
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}

	ctx, err := parser.Parse([]string{"--model", "gpt-4o", "ask", "-m", "deep", "what", "is", "new?"})
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if !strings.HasPrefix(ctx.Command(), "ask") {
		t.Errorf("unexpected command %q", ctx.Command())
	}
	if cli.Model != "gpt-4o" {
		t.Errorf("expected model flag, got %q", cli.Model)
	}
	if cli.Ask.Mode != "deep" {
		t.Errorf("expected deep mode, got %q", cli.Ask.Mode)
	}
	if len(cli.Ask.Question) != 3 {
		t.Errorf("expected 3 question words, got %v", cli.Ask.Question)
	}
}

func TestCLI_AskDefaultsToNormal(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli, kong.Vars(kongVars()))
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}
	if _, err := parser.Parse([]string{"ask", "hello"}); err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if cli.Ask.Mode != "normal" {
		t.Errorf("expected normal mode, got %q", cli.Ask.Mode)
	}
}

func TestCLI_AskRejectsUnknownMode(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli, kong.Vars(kongVars()))
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}
	if _, err := parser.Parse([]string{"ask", "-m", "turbo", "hello"}); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestCLI_ChatIsDefault(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli, kong.Vars(kongVars()))
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}
	ctx, err := parser.Parse([]string{"--metrics-addr", ":9090"})
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if ctx.Command() != "chat" {
		t.Errorf("expected chat as default command, got %q", ctx.Command())
	}
	if cli.MetricsAddr != ":9090" {
		t.Errorf("unexpected metrics addr %q", cli.MetricsAddr)
	}
}

func TestCLI_ToolsAndVersion(t *testing.T) {
	for _, cmd := range []string{"tools", "version"} {
		var cli CLI
		parser, err := kong.New(&cli, kong.Vars(kongVars()))
		if err != nil {
			t.Fatalf("failed to create parser: %v", err)
		}
		ctx, err := parser.Parse([]string{cmd})
		if err != nil {
			t.Fatalf("%s: failed to parse: %v", cmd, err)
		}
		if ctx.Command() != cmd {
			t.Errorf("expected %s, got %q", cmd, ctx.Command())
		}
	}
}
