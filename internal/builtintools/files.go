// Package builtintools implements the canonical built-in tool set:
// filesystem tools, exec tools delegating to execengine, and
// the remaining small tools (plan, human input, skills). Each handler is
// a pure function of (ToolCall, registry.ExecutionContext) -> ToolResult,
// as the Tool handler contract requires.
package builtintools

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/skillrun/agentcore/internal/engine"
	"github.com/skillrun/agentcore/internal/registry"
)

const defaultMaxReadBytes = 200_000

// ReadFileSpec is read_file's registered contract.
var ReadFileSpec = engine.ToolSpec{
	Name:        "read_file",
	Description: "Read a file from the workspace, rendered as line-numbered text.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string"},
			"offset": {"type": "integer", "minimum": 0},
			"limit": {"type": "integer", "minimum": 1}
		},
		"required": ["path"]
	}`),
	Idempotency: engine.IdempotencySafe,
}

// ReadFile renders a file as `L<n>: <text>` lines, 1-indexed. An offset
// strictly past end-of-file is a validation error, not an empty
// success.
func ReadFile(call engine.ToolCall, ec registry.ExecutionContext) engine.ToolResult {
	path, _ := call.Args["path"].(string)
	offset := intArg(call.Args, "offset", 0)
	limit := intArg(call.Args, "limit", 0)

	if strings.TrimSpace(path) == "" {
		return errResult(engine.ErrorValidation, "path is required")
	}
	resolved, err := ec.ResolvePath(path)
	if err != nil {
		return errResult(engine.ErrorPermission, err.Error())
	}

	f, err := os.Open(resolved)
	if err != nil {
		return errResult(engine.ErrorNotFound, err.Error())
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var lines []string
	lineNo := 0
	byteCount := 0
	maxBytes := defaultMaxReadBytes
	truncated := false
	for scanner.Scan() {
		lineNo++
		if lineNo <= offset {
			continue
		}
		text := scanner.Text()
		if limit > 0 && len(lines) >= limit {
			truncated = true
			break
		}
		byteCount += len(text)
		if byteCount > maxBytes {
			truncated = true
			break
		}
		lines = append(lines, fmt.Sprintf("L%d: %s", lineNo, text))
	}
	if err := scanner.Err(); err != nil {
		return errResult(engine.ErrorUnknown, err.Error())
	}

	if offset > 0 && lineNo <= offset {
		return errResult(engine.ErrorValidation, fmt.Sprintf("offset %d is past end of file (%d lines)", offset, lineNo))
	}

	return okResult(strings.Join(lines, "\n"), truncated)
}

// ListDirSpec is list_dir's registered contract.
var ListDirSpec = engine.ToolSpec{
	Name:        "list_dir",
	Description: "List entries of a workspace directory.",
	Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}}}`),
	Idempotency: engine.IdempotencySafe,
}

// ListDir lists one directory's immediate entries, workspace-bounded.
func ListDir(call engine.ToolCall, ec registry.ExecutionContext) engine.ToolResult {
	path, _ := call.Args["path"].(string)
	if path == "" {
		path = "."
	}
	resolved, err := ec.ResolvePath(path)
	if err != nil {
		return errResult(engine.ErrorPermission, err.Error())
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return errResult(engine.ErrorNotFound, err.Error())
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		suffix := ""
		if e.IsDir() {
			suffix = "/"
		}
		names = append(names, e.Name()+suffix)
	}
	sort.Strings(names)
	return okResult(strings.Join(names, "\n"), false)
}

// GrepFilesSpec is grep_files' registered contract.
var GrepFilesSpec = engine.ToolSpec{
	Name:        "grep_files",
	Description: "Search workspace files for a literal substring, line-numbered.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {"path": {"type": "string"}, "pattern": {"type": "string"}},
		"required": ["pattern"]
	}`),
	Idempotency: engine.IdempotencySafe,
}

const maxGrepMatches = 500

// GrepFiles walks path (default workspace root) looking for pattern as a
// literal substring, reporting `relpath:line: text` per match.
func GrepFiles(call engine.ToolCall, ec registry.ExecutionContext) engine.ToolResult {
	pattern, _ := call.Args["pattern"].(string)
	if pattern == "" {
		return errResult(engine.ErrorValidation, "pattern is required")
	}
	path, _ := call.Args["path"].(string)
	if path == "" {
		path = "."
	}
	root, err := ec.ResolvePath(path)
	if err != nil {
		return errResult(engine.ErrorPermission, err.Error())
	}

	var matches []string
	truncated := false
	walkErr := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if len(matches) >= maxGrepMatches {
			truncated = true
			return filepath.SkipAll
		}
		f, ferr := os.Open(p)
		if ferr != nil {
			return nil
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		line := 0
		for scanner.Scan() {
			line++
			if strings.Contains(scanner.Text(), pattern) {
				rel, _ := filepath.Rel(root, p)
				matches = append(matches, fmt.Sprintf("%s:%d: %s", rel, line, scanner.Text()))
				if len(matches) >= maxGrepMatches {
					truncated = true
					break
				}
			}
		}
		return nil
	})
	if walkErr != nil {
		return errResult(engine.ErrorUnknown, walkErr.Error())
	}
	return okResult(strings.Join(matches, "\n"), truncated)
}

// FileWriteSpec is file_write's registered contract.
var FileWriteSpec = engine.ToolSpec{
	Name:        "file_write",
	Description: "Write content to a workspace file, creating parent directories as needed.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {"path": {"type": "string"}, "content": {"type": "string"}},
		"required": ["path", "content"]
	}`),
	RequiresApproval: true,
	Idempotency:      engine.IdempotencyUnsafe,
}

// FileWrite overwrites (or creates) one workspace file.
func FileWrite(call engine.ToolCall, ec registry.ExecutionContext) engine.ToolResult {
	path, _ := call.Args["path"].(string)
	content, _ := call.Args["content"].(string)
	if path == "" {
		return errResult(engine.ErrorValidation, "path is required")
	}
	resolved, err := ec.ResolvePath(path)
	if err != nil {
		return errResult(engine.ErrorPermission, err.Error())
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return errResult(engine.ErrorUnknown, err.Error())
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return errResult(engine.ErrorUnknown, err.Error())
	}
	return okResult(fmt.Sprintf("wrote %d bytes to %s", len(content), path), false)
}

// ApplyPatchSpec is apply_patch's registered contract: a minimal unified
// search/replace patch format, not a full diff parser.
var ApplyPatchSpec = engine.ToolSpec{
	Name:        "apply_patch",
	Description: "Apply a search/replace edit to one workspace file.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string"},
			"search": {"type": "string"},
			"replace": {"type": "string"}
		},
		"required": ["path", "search", "replace"]
	}`),
	RequiresApproval: true,
	Idempotency:      engine.IdempotencyUnsafe,
}

// ApplyPatch replaces the first occurrence of search with replace in
// path, failing validation if search does not appear exactly once.
func ApplyPatch(call engine.ToolCall, ec registry.ExecutionContext) engine.ToolResult {
	path, _ := call.Args["path"].(string)
	search, _ := call.Args["search"].(string)
	replace, _ := call.Args["replace"].(string)
	if path == "" || search == "" {
		return errResult(engine.ErrorValidation, "path and search are required")
	}
	resolved, err := ec.ResolvePath(path)
	if err != nil {
		return errResult(engine.ErrorPermission, err.Error())
	}
	raw, err := os.ReadFile(resolved)
	if err != nil {
		return errResult(engine.ErrorNotFound, err.Error())
	}
	original := string(raw)
	count := strings.Count(original, search)
	if count == 0 {
		return errResult(engine.ErrorValidation, "search text not found")
	}
	if count > 1 {
		return errResult(engine.ErrorValidation, fmt.Sprintf("search text is ambiguous: %d occurrences", count))
	}
	updated := strings.Replace(original, search, replace, 1)
	if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
		return errResult(engine.ErrorUnknown, err.Error())
	}
	return okResult(fmt.Sprintf("patched %s", path), false)
}

func intArg(args map[string]any, key string, def int) int {
	v, ok := args[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return def
	}
}

func errResult(kind engine.ErrorKind, msg string) engine.ToolResult {
	return *engine.NewToolResult(engine.ToolResultPayload{OK: false, ErrorKind: kind, Message: msg})
}

func okResult(data string, truncated bool) engine.ToolResult {
	return *engine.NewToolResult(engine.ToolResultPayload{OK: true, Stdout: data, Truncated: truncated})
}
