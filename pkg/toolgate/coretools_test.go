package toolgate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func coreGateway(t *testing.T) *Gateway {
	t.Helper()
	g := New(Config{
		SafetyLevel: FullAuto,
		Workspace:   t.TempDir(),
	})
	require.NoError(t, RegisterCoreTools(g))
	return g
}

func TestCheckShellBlocklist(t *testing.T) {
	t.Run("should block destructive commands regardless of spacing and case", func(t *testing.T) {
		assert.NotEmpty(t, checkShellBlocklist("rm -rf /"))
		assert.NotEmpty(t, checkShellBlocklist("sudo   RM   -RF   /"))
		assert.NotEmpty(t, checkShellBlocklist("mkfs.ext4 /dev/sda1"))
		assert.NotEmpty(t, checkShellBlocklist("dd if=/dev/zero of=/dev/sda"))
		assert.NotEmpty(t, checkShellBlocklist("shutdown -h now"))
		assert.NotEmpty(t, checkShellBlocklist(":(){ :|:& };:"))
	})

	t.Run("should allow ordinary commands", func(t *testing.T) {
		assert.Empty(t, checkShellBlocklist("ls -la"))
		assert.Empty(t, checkShellBlocklist("grep -r pattern ."))
		assert.Empty(t, checkShellBlocklist("rm build/output.txt"))
	})
}

func TestResolvePath(t *testing.T) {
	t.Run("should anchor relative paths at the workspace", func(t *testing.T) {
		assert.Equal(t, "/ws/notes.txt", resolvePath("/ws", "notes.txt"))
	})

	t.Run("should leave absolute paths and empty workspaces alone", func(t *testing.T) {
		assert.Equal(t, "/tmp/x", resolvePath("/ws", "/tmp/x"))
		assert.Equal(t, "notes.txt", resolvePath("", "notes.txt"))
	})
}

func TestCoreFileTools(t *testing.T) {
	ctx := context.Background()

	t.Run("should write, append, read and list within the workspace", func(t *testing.T) {
		g := coreGateway(t)

		res := g.Execute(ctx, "write_file", map[string]any{
			"path": "data/out.txt", "content": "hello",
		}, "r")
		require.True(t, res.Success, "write failed: %v", res.Error)

		res = g.Execute(ctx, "append_file", map[string]any{
			"path": "data/out.txt", "content": " world",
		}, "r")
		require.True(t, res.Success, "append failed: %v", res.Error)

		res = g.Execute(ctx, "read_file", map[string]any{"path": "data/out.txt"}, "r")
		require.True(t, res.Success)
		assert.Equal(t, "hello world", res.Output)

		res = g.Execute(ctx, "list_directory", map[string]any{"path": "data"}, "r")
		require.True(t, res.Success)
		assert.Equal(t, []string{"out.txt"}, res.Output)
	})

	t.Run("should report a missing file as an error result", func(t *testing.T) {
		g := coreGateway(t)
		res := g.Execute(ctx, "read_file", map[string]any{"path": "absent.txt"}, "r")
		assert.False(t, res.Success)
		assert.NotEmpty(t, res.Error)
	})

	t.Run("should create append targets that do not exist yet", func(t *testing.T) {
		g := coreGateway(t)
		res := g.Execute(ctx, "append_file", map[string]any{
			"path": "fresh.txt", "content": "first line\n",
		}, "r")
		require.True(t, res.Success)

		res = g.Execute(ctx, "read_file", map[string]any{"path": "fresh.txt"}, "r")
		require.True(t, res.Success)
		assert.Equal(t, "first line\n", res.Output)
	})
}

func TestRunShellTool(t *testing.T) {
	ctx := context.Background()

	t.Run("should run a command in the workspace", func(t *testing.T) {
		workspace := t.TempDir()
		g := New(Config{SafetyLevel: FullAuto, Workspace: workspace})
		require.NoError(t, RegisterCoreTools(g))

		res := g.Execute(ctx, "run_shell", map[string]any{"command": "pwd"}, "r")
		require.True(t, res.Success, "run_shell failed: %v", res.Error)
		assert.Contains(t, res.Output, filepath.Base(workspace))
	})

	t.Run("should block blocklisted commands before running anything", func(t *testing.T) {
		g := coreGateway(t)
		res := g.Execute(ctx, "run_shell", map[string]any{"command": "rm -rf /"}, "r")
		assert.True(t, res.Blocked)
		assert.NotEmpty(t, res.BlockReason)
	})

	t.Run("should return command failure output as an error result", func(t *testing.T) {
		g := coreGateway(t)
		res := g.Execute(ctx, "run_shell", map[string]any{"command": "exit 3"}, "r")
		assert.False(t, res.Success)
		assert.NotEmpty(t, res.Error)
	})
}

func TestFetchURLTool(t *testing.T) {
	ctx := context.Background()

	t.Run("should fetch raw content over GET", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			w.Write([]byte("page body"))
		}))
		defer server.Close()

		g := coreGateway(t)
		res := g.Execute(ctx, "fetch_url", map[string]any{"url": server.URL}, "r")
		require.True(t, res.Success, "fetch failed: %v", res.Error)
		assert.Equal(t, "page body", res.Output)
	})

	t.Run("should reject non-http schemes", func(t *testing.T) {
		g := coreGateway(t)
		res := g.Execute(ctx, "fetch_url", map[string]any{"url": "file:///etc/passwd"}, "r")
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "http")
	})

	t.Run("should surface HTTP errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "gone", http.StatusNotFound)
		}))
		defer server.Close()

		g := coreGateway(t)
		res := g.Execute(ctx, "fetch_url", map[string]any{"url": server.URL}, "r")
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "404")
	})
}

func TestWaitTool(t *testing.T) {
	t.Run("should pause briefly and report the wait", func(t *testing.T) {
		g := coreGateway(t)
		res := g.Execute(context.Background(), "wait", map[string]any{"seconds": 0.01}, "r")
		require.True(t, res.Success)
		assert.Contains(t, res.Output, "waited")
	})
}

func TestTruncation(t *testing.T) {
	t.Run("should truncate oversized file reads", func(t *testing.T) {
		g := coreGateway(t)
		workspace := g.workspace

		big := make([]byte, maxToolOutput+100)
		for i := range big {
			big[i] = 'a'
		}
		require.NoError(t, os.WriteFile(filepath.Join(workspace, "big.txt"), big, 0o644))

		res := g.Execute(context.Background(), "read_file", map[string]any{"path": "big.txt"}, "r")
		require.True(t, res.Success)
		out, ok := res.Output.(string)
		require.True(t, ok)
		assert.Contains(t, out, "[truncated]")
		assert.Less(t, len(out), maxToolOutput+100)
	})
}
