package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Invoker runs one agent invocation against an assembled payload and returns
// the raw bytes of the agent's handoff report. Implementations must honor
// context cancellation; maxTurns bounds the agent's internal turn budget.
type Invoker interface {
	Invoke(ctx context.Context, payload string, maxTurns int) ([]byte, error)
}

// AgentInvocationError indicates the external agent process failed or
// exceeded its turn budget. Recoverable: the controller retries the task.
type AgentInvocationError struct {
	Reason string
	Err    error
}

func (e *AgentInvocationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("agent invocation failed: %s: %v", e.Reason, e.Err)
	}
	return "agent invocation failed: " + e.Reason
}

func (e *AgentInvocationError) Unwrap() error {
	return e.Err
}

// CommandContext is the function used to create exec.Cmd instances.
// It can be replaced in tests to mock command execution.
var CommandContext = exec.CommandContext

// claudeResponse is the JSON envelope Claude Code CLI emits with
// --output-format json.
type claudeResponse struct {
	Type    string `json:"type"`
	Result  string `json:"result"`
	IsError bool   `json:"is_error"`
}

// ClaudeInvoker executes iterations via the Claude Code CLI.
type ClaudeInvoker struct {
	dir string // working directory for the agent process
}

// NewClaudeInvoker creates an invoker that runs the agent in dir.
func NewClaudeInvoker(dir string) *ClaudeInvoker {
	return &ClaudeInvoker{dir: dir}
}

// IsClaudeAvailable checks if the claude command exists in PATH.
func IsClaudeAvailable() bool {
	_, err := exec.LookPath("claude")
	return err == nil
}

// Invoke runs one agent iteration. The payload carries its own instructions;
// --dangerously-skip-permissions is required for non-interactive use.
func (r *ClaudeInvoker) Invoke(ctx context.Context, payload string, maxTurns int) ([]byte, error) {
	args := []string{"-p", payload, "--output-format", "json", "--dangerously-skip-permissions"}
	if maxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(maxTurns))
	}

	cmd := CommandContext(ctx, "claude", args...)
	if r.dir != "" {
		cmd.Dir = r.dir
	}

	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &AgentInvocationError{
				Reason: "claude exited with error: " + strings.TrimSpace(string(exitErr.Stderr)),
				Err:    err,
			}
		}
		return nil, &AgentInvocationError{Reason: "failed to execute claude", Err: err}
	}

	report, err := extractReport(output)
	if err != nil {
		return nil, &AgentInvocationError{Reason: "unusable agent output", Err: err}
	}
	return report, nil
}

// extractReport pulls the handoff JSON object out of potentially noisy agent
// output: the CLI result envelope first, then markdown fences, then raw
// object boundaries as a fallback.
func extractReport(data []byte) ([]byte, error) {
	var resp claudeResponse
	if err := json.Unmarshal(data, &resp); err == nil && resp.Type == "result" {
		if resp.IsError {
			return nil, errors.New("claude returned an error: " + resp.Result)
		}
		data = []byte(resp.Result)
	}

	str := stripMarkdownCodeBlocks(string(data))

	if json.Valid([]byte(str)) {
		return []byte(str), nil
	}

	start := strings.Index(str, "{")
	end := strings.LastIndex(str, "}")
	if start == -1 || end == -1 || start >= end {
		return nil, errors.New("no JSON object found in agent output")
	}
	extracted := str[start : end+1]
	if !json.Valid([]byte(extracted)) {
		return nil, errors.New("extracted content is not valid JSON")
	}
	return []byte(extracted), nil
}

// stripMarkdownCodeBlocks removes markdown code block markers from a string.
func stripMarkdownCodeBlocks(s string) string {
	s = strings.TrimSpace(s)
	if cut, found := strings.CutPrefix(s, "```json"); found {
		s = cut
	} else if cut, found := strings.CutPrefix(s, "```"); found {
		s = cut
	}
	if cut, found := strings.CutSuffix(s, "```"); found {
		s = cut
	}
	return strings.TrimSpace(s)
}
