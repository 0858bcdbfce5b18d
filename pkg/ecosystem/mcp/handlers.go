package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/gaze/pkg/browser"
	"github.com/ormasoftchile/gaze/pkg/runtime"
	"github.com/ormasoftchile/gaze/pkg/schema"
)

// HandleValidate implements the gaze/validate MCP tool.
func HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	sc, errs := schema.ValidateFile(path)
	if hasErrors(errs) {
		return errorResult(formatErrors(errs)), nil
	}
	errs = append(errs, schema.CheckVariableReferences(sc)...)

	msg := fmt.Sprintf("✓ %s is valid (%d steps)", sc.Name, len(sc.Steps))
	if warnings := formatWarnings(errs); warnings != "" {
		msg += "\nwarnings: " + warnings
	}
	return textResult(msg), nil
}

// HandleSchema implements the gaze/schema MCP tool.
func HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := schema.GenerateJSONSchema()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

// HandleRun implements the gaze/run MCP tool. Runs headless unless the
// caller asks for a window.
func HandleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}
	headed, _ := args["headed"].(bool)

	sc, errs := schema.ValidateFile(path)
	if hasErrors(errs) {
		return errorResult(formatErrors(errs)), nil
	}

	overrides := make(map[string]string)
	if rawVars, ok := args["vars"].(map[string]any); ok {
		for k, v := range rawVars {
			overrides[k] = fmt.Sprint(v)
		}
	}

	session, err := browser.NewSession(ctx, browser.Options{Headless: !headed})
	if err != nil {
		return errorResult(fmt.Sprintf("start browser: %s", err)), nil
	}
	defer session.Close()

	var out bytes.Buffer
	eng, err := runtime.NewEngine(sc, session, runtime.Options{
		Out:          &out,
		Overrides:    overrides,
		ScenarioPath: path,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("prepare run: %s", err)), nil
	}

	result, err := eng.Run(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("run: %s", err)), nil
	}

	response := map[string]any{
		"scenario": result.Scenario,
		"success":  result.Success,
		"duration": fmt.Sprintf("%dms", result.DurationMs),
		"steps":    result.Steps,
		"run_id":   eng.RunID(),
	}
	if result.Error != "" {
		response["error"] = result.Error
	}
	if eng.BaseDir() != "" {
		response["artifacts"] = eng.BaseDir()
	}
	if out.Len() > 0 {
		response["output"] = out.String()
	}

	data, _ := json.MarshalIndent(response, "", "  ")
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: !result.Success,
	}, nil
}

func hasErrors(errs []*schema.ValidationError) bool {
	for _, e := range errs {
		if e.Severity == "error" {
			return true
		}
	}
	return false
}

func formatErrors(errs []*schema.ValidationError) string {
	var msgs []string
	for _, e := range errs {
		if e.Severity == "error" {
			msgs = append(msgs, fmt.Sprintf("[%s] %s", e.Phase, e.Message))
		}
	}
	return strings.Join(msgs, "; ")
}

func formatWarnings(errs []*schema.ValidationError) string {
	var msgs []string
	for _, e := range errs {
		if e.Severity == "warning" {
			msgs = append(msgs, e.Message)
		}
	}
	return strings.Join(msgs, "; ")
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
