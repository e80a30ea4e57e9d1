package main

import (
	"context"
	"log/slog"
	"strings"

	"frevagpt/pkg/chatbot"
	"frevagpt/pkg/tools"
)

// runRuntimeChecks verifies the setup once at startup: the starting prompt
// serializes, and the code interpreter answers basic requests. The checks
// must run at runtime because the interpreter spawns this very binary.
// Failures are loud but non-fatal; a server without a working interpreter
// can still chat.
func runRuntimeChecks(ctx context.Context, registry *tools.Registry) {
	if chatbot.StartingPromptJSON() == "" {
		slog.Error("Starting prompt serialized to an empty string")
	}

	tool, ok := registry.Get("code_interpreter")
	if !ok {
		slog.Error("Code interpreter is not registered")
		return
	}

	checkInterpreter(ctx, tool, `{"code": "2+2"}`, "4", "two plus two")
	checkInterpreter(ctx, tool, `{"code": "print('check')"}`, "check", "print")
	checkInterpreter(ctx, tool, `{"code": "import math\nmath.floor(2.5)"}`, "2", "imports")
}

func checkInterpreter(ctx context.Context, tool tools.Tool, arguments, expected, name string) {
	frames := tool.Execute(ctx, arguments, "startup-check", "")
	if len(frames) == 0 {
		slog.Error("Code interpreter check returned no output", "check", name)
		return
	}
	if !strings.Contains(frames[0].Content, expected) {
		slog.Error("Code interpreter check failed",
			"check", name, "expected", expected, "got", frames[0].Content)
		return
	}
	slog.Debug("Code interpreter check passed", "check", name)
}
