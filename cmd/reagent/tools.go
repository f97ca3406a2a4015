package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	reagent "github.com/nevindra/reagent"
)

// builtinTools returns the capabilities every CLI run exposes to the model.
// File tools are only registered when a workspace directory is configured,
// and never read outside it.
func builtinTools(workspace string) []reagent.Tool {
	tools := []reagent.Tool{currentTimeTool(), calculatorTool()}
	if workspace != "" {
		tools = append(tools, readFileTool(workspace), listFilesTool(workspace))
	}
	return tools
}

func currentTimeTool() reagent.Tool {
	return reagent.NewTool(
		"current_time",
		"Returns the current date and time in UTC (RFC 3339).",
		nil,
		func(ctx context.Context, args json.RawMessage) (reagent.ToolResult, error) {
			return reagent.ToolResult{Content: time.Now().UTC().Format(time.RFC3339)}, nil
		},
	)
}

func calculatorTool() reagent.Tool {
	params := json.RawMessage(`{
		"type": "object",
		"properties": {
			"op": {"type": "string", "enum": ["add", "sub", "mul", "div"]},
			"a": {"type": "number"},
			"b": {"type": "number"}
		},
		"required": ["op", "a", "b"]
	}`)
	return reagent.NewTool(
		"calculator",
		"Performs one arithmetic operation on two numbers.",
		params,
		func(ctx context.Context, args json.RawMessage) (reagent.ToolResult, error) {
			var in struct {
				Op string  `json:"op"`
				A  float64 `json:"a"`
				B  float64 `json:"b"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return reagent.ToolResult{Error: "arguments must be {op, a, b}", Invalid: true}, nil
			}
			var out float64
			switch in.Op {
			case "add":
				out = in.A + in.B
			case "sub":
				out = in.A - in.B
			case "mul":
				out = in.A * in.B
			case "div":
				if in.B == 0 {
					return reagent.ToolResult{Error: "division by zero", Invalid: true}, nil
				}
				out = in.A / in.B
			default:
				return reagent.ToolResult{Error: fmt.Sprintf("unknown op %q", in.Op), Invalid: true}, nil
			}
			return reagent.ToolResult{Content: fmt.Sprintf("%g", out)}, nil
		},
	)
}

// resolveInWorkspace joins rel onto the workspace root and rejects paths that
// escape it.
func resolveInWorkspace(workspace, rel string) (string, error) {
	abs := filepath.Join(workspace, filepath.Clean("/"+rel))
	root, err := filepath.Abs(workspace)
	if err != nil {
		return "", err
	}
	abs, err = filepath.Abs(abs)
	if err != nil {
		return "", err
	}
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace", rel)
	}
	return abs, nil
}

func readFileTool(workspace string) reagent.Tool {
	params := json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path relative to the workspace root."}
		},
		"required": ["path"]
	}`)
	return reagent.NewTool(
		"read_file",
		"Reads a text file from the workspace.",
		params,
		func(ctx context.Context, args json.RawMessage) (reagent.ToolResult, error) {
			var in struct {
				Path string `json:"path"`
			}
			if err := json.Unmarshal(args, &in); err != nil || in.Path == "" {
				return reagent.ToolResult{Error: "arguments must be {path}", Invalid: true}, nil
			}
			abs, err := resolveInWorkspace(workspace, in.Path)
			if err != nil {
				return reagent.ToolResult{Error: err.Error(), Invalid: true}, nil
			}
			data, err := os.ReadFile(abs)
			if err != nil {
				return reagent.ToolResult{Error: err.Error()}, nil
			}
			const maxBytes = 64 << 10
			if len(data) > maxBytes {
				data = data[:maxBytes]
			}
			return reagent.ToolResult{Content: string(data)}, nil
		},
	)
}

func listFilesTool(workspace string) reagent.Tool {
	params := json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Directory relative to the workspace root. Defaults to the root."}
		}
	}`)
	return reagent.NewTool(
		"list_files",
		"Lists the entries of a workspace directory.",
		params,
		func(ctx context.Context, args json.RawMessage) (reagent.ToolResult, error) {
			var in struct {
				Path string `json:"path"`
			}
			if len(args) > 0 {
				if err := json.Unmarshal(args, &in); err != nil {
					return reagent.ToolResult{Error: "arguments must be {path}", Invalid: true}, nil
				}
			}
			abs, err := resolveInWorkspace(workspace, in.Path)
			if err != nil {
				return reagent.ToolResult{Error: err.Error(), Invalid: true}, nil
			}
			entries, err := os.ReadDir(abs)
			if err != nil {
				return reagent.ToolResult{Error: err.Error()}, nil
			}
			var b strings.Builder
			for _, e := range entries {
				if e.IsDir() {
					b.WriteString(e.Name() + "/\n")
				} else {
					b.WriteString(e.Name() + "\n")
				}
			}
			return reagent.ToolResult{Content: b.String()}, nil
		},
	)
}
