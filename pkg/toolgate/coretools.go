package toolgate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	maxToolOutput = 64 * 1024
	maxFetchBody  = 512 * 1024
)

// shellBlocklist lists command substrings that are never allowed, no matter
// the safety level. Checked before confirmation.
var shellBlocklist = []struct {
	pattern string
	reason  string
}{
	{"rm -rf /", "cannot recursively delete the filesystem root"},
	{"rm -fr /", "cannot recursively delete the filesystem root"},
	{"mkfs", "cannot format filesystems"},
	{"dd if=", "cannot run raw disk copies"},
	{"> /dev/sd", "cannot write to block devices"},
	{"of=/dev/", "cannot write to block devices"},
	{"shutdown", "cannot shut down the machine"},
	{"reboot", "cannot restart the machine"},
	{"poweroff", "cannot power off the machine"},
	{"halt", "cannot halt the machine"},
	{"init 0", "cannot change the runlevel"},
	{"init 6", "cannot change the runlevel"},
	{":(){", "cannot run fork bombs"},
	{"chmod -R 000 /", "cannot lock out the filesystem root"},
	{"userdel", "cannot remove user accounts"},
	{"groupdel", "cannot remove groups"},
}

// checkShellBlocklist returns a block reason if cmd matches the blocklist.
func checkShellBlocklist(cmd string) string {
	lowered := strings.ToLower(strings.Join(strings.Fields(cmd), " "))
	for _, entry := range shellBlocklist {
		if strings.Contains(lowered, entry.pattern) {
			return entry.reason
		}
	}
	return ""
}

// RegisterCoreTools registers the baseline filesystem, shell and network
// tools every agent receives.
func RegisterCoreTools(g *Gateway) error {
	tools := []Definition{
		readFileTool(g),
		writeFileTool(g),
		appendFileTool(g),
		listDirectoryTool(g),
		runShellTool(g),
		fetchURLTool(),
		waitTool(),
	}
	for _, tool := range tools {
		if err := g.Register(tool); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", tool.Name, err)
		}
	}
	return nil
}

// resolvePath anchors relative paths at the gateway workspace.
func resolvePath(workspace, path string) string {
	if workspace == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workspace, path)
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

func readFileTool(g *Gateway) Definition {
	return Definition{
		Name:        "read_file",
		Description: "Read a text file and return its contents.",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "File path", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			path := resolvePath(g.workspace, stringArg(args, "path"))
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			if len(data) > maxToolOutput {
				return string(data[:maxToolOutput]) + "\n... [truncated]", nil
			}
			return string(data), nil
		},
	}
}

func writeFileTool(g *Gateway) Definition {
	return Definition{
		Name:        "write_file",
		Description: "Write content to a file, replacing any existing content.",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "File path", Required: true},
			{Name: "content", Type: "string", Description: "Content to write", Required: true},
		},
		Mutating: true,
		Describe: func(args map[string]any) string {
			return fmt.Sprintf("Write %d bytes to file: %s", len(stringArg(args, "content")), stringArg(args, "path"))
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			path := resolvePath(g.workspace, stringArg(args, "path"))
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, err
			}
			content := stringArg(args, "content")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return nil, err
			}
			return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
		},
	}
}

func appendFileTool(g *Gateway) Definition {
	return Definition{
		Name:        "append_file",
		Description: "Append content to a file, creating it if missing. Use this to build up a data file across multiple calls.",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "File path", Required: true},
			{Name: "content", Type: "string", Description: "Content to append", Required: true},
		},
		Mutating: true,
		Describe: func(args map[string]any) string {
			return fmt.Sprintf("Append %d bytes to file: %s", len(stringArg(args, "content")), stringArg(args, "path"))
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			path := resolvePath(g.workspace, stringArg(args, "path"))
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, err
			}
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, err
			}
			defer f.Close()

			content := stringArg(args, "content")
			if _, err := f.WriteString(content); err != nil {
				return nil, err
			}
			info, err := f.Stat()
			if err != nil {
				return fmt.Sprintf("appended %d bytes to %s", len(content), path), nil
			}
			return fmt.Sprintf("appended %d bytes to %s (now %d bytes)", len(content), path, info.Size()), nil
		},
	}
}

func listDirectoryTool(g *Gateway) Definition {
	return Definition{
		Name:        "list_directory",
		Description: "List the entries of a directory.",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "Directory path, defaults to the workspace", Required: false},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			path := stringArg(args, "path")
			if path == "" {
				path = "."
			}
			path = resolvePath(g.workspace, path)

			entries, err := os.ReadDir(path)
			if err != nil {
				return nil, err
			}
			names := make([]string, 0, len(entries))
			for _, entry := range entries {
				name := entry.Name()
				if entry.IsDir() {
					name += "/"
				}
				names = append(names, name)
			}
			sort.Strings(names)
			return names, nil
		},
	}
}

func runShellTool(g *Gateway) Definition {
	return Definition{
		Name:        "run_shell",
		Description: "Run a shell command and return its combined output.",
		Parameters: []Parameter{
			{Name: "command", Type: "string", Description: "Command line to run with sh -c", Required: true},
		},
		Mutating: true,
		Describe: func(args map[string]any) string {
			return fmt.Sprintf("Run shell command:\n\n%s", stringArg(args, "command"))
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			command := stringArg(args, "command")
			if reason := checkShellBlocklist(command); reason != "" {
				return nil, &BlockedError{Reason: reason}
			}

			execCtx, cancel := context.WithTimeout(ctx, g.execTimeout)
			defer cancel()

			cmd := exec.CommandContext(execCtx, "sh", "-c", command)
			if g.workspace != "" {
				cmd.Dir = g.workspace
			}
			var out bytes.Buffer
			cmd.Stdout = &out
			cmd.Stderr = &out

			err := cmd.Run()
			output := out.String()
			if len(output) > maxToolOutput {
				output = output[:maxToolOutput] + "\n... [truncated]"
			}
			if execCtx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("command timed out after %v", g.execTimeout)
			}
			if err != nil {
				return nil, fmt.Errorf("%v\n%s", err, output)
			}
			return output, nil
		},
	}
}

func fetchURLTool() Definition {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	return Definition{
		Name:        "fetch_url",
		Description: "Fetch a URL with HTTP GET and return the raw response body. Use append_file to persist useful content verbatim.",
		Parameters: []Parameter{
			{Name: "url", Type: "string", Description: "URL to fetch (http or https)", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			rawURL := stringArg(args, "url")
			if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
				return nil, fmt.Errorf("only http and https URLs are supported")
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("User-Agent", "hivemind/0.1")

			resp, err := httpClient.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
			if err != nil {
				return nil, err
			}
			if resp.StatusCode >= 400 {
				return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body[:min(len(body), 512)]))
			}
			return string(body), nil
		},
	}
}

func waitTool() Definition {
	return Definition{
		Name:        "wait",
		Description: "Pause for a number of seconds before continuing.",
		Parameters: []Parameter{
			{Name: "seconds", Type: "number", Description: "Seconds to wait (max 30)", Required: false},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			seconds, _ := args["seconds"].(float64)
			if seconds <= 0 {
				seconds = 2
			}
			if seconds > 30 {
				seconds = 30
			}
			select {
			case <-time.After(time.Duration(seconds * float64(time.Second))):
				return fmt.Sprintf("waited %.1fs", seconds), nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
}
