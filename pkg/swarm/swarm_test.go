package swarm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reza/hivemind/pkg/backend"
)

func plainAnswerFactory() *fakeFactory {
	return &fakeFactory{build: func(cred backend.Credential) *fakeClient {
		return &fakeClient{
			respond: func(call int, req backend.Request) (*backend.Response, error) {
				return &backend.Response{Text: "answer from " + string(cred)}, nil
			},
			stream: func(req backend.Request, onToken backend.TokenFunc) (*backend.Response, error) {
				onToken("synth")
				return &backend.Response{Text: "synthesized"}, nil
			},
		}
	}}
}

func testConfig(factory *fakeFactory, roles []Role, creds []backend.Credential) Config {
	return Config{
		Roles:       roles,
		Credentials: creds,
		Factory:     factory,
		Model:       "test-model",
		Logger:      zerolog.Nop(),
	}
}

func threeRoles() []Role {
	return []Role{
		{Name: "researcher", Focus: "research"},
		{Name: "planner", Focus: "planning"},
		{Name: "coder", Focus: "coding"},
	}
}

func TestNew(t *testing.T) {
	t.Run("should reject empty roles, credentials and factory", func(t *testing.T) {
		_, err := New(Config{Credentials: []backend.Credential{"k"}, Factory: plainAnswerFactory()})
		assert.Error(t, err)

		_, err = New(Config{Roles: threeRoles(), Factory: plainAnswerFactory()})
		assert.Error(t, err)

		_, err = New(Config{Roles: threeRoles(), Credentials: []backend.Credential{"k"}})
		assert.Error(t, err)
	})

	t.Run("should reject duplicate role names", func(t *testing.T) {
		roles := []Role{{Name: "dup", Focus: "a"}, {Name: "dup", Focus: "b"}}
		_, err := New(testConfig(plainAnswerFactory(), roles, []backend.Credential{"k"}))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate")
	})
}

func TestSwarmRun(t *testing.T) {
	ctx := context.Background()

	t.Run("should record one outcome per role and synthesize", func(t *testing.T) {
		factory := plainAnswerFactory()
		sw, err := New(testConfig(factory, threeRoles(), []backend.Credential{"key-a"}))
		require.NoError(t, err)

		var tokens []string
		var mu sync.Mutex
		result, err := sw.Run(ctx, "build a thing", "", Callbacks{
			OnToken: func(token string) {
				mu.Lock()
				tokens = append(tokens, token)
				mu.Unlock()
			},
		})
		require.NoError(t, err)

		assert.Len(t, result.Outcomes, 3)
		for _, role := range threeRoles() {
			o, ok := result.Outcome(role.Name)
			assert.True(t, ok, "missing outcome for %s", role.Name)
			assert.Equal(t, "answer from key-a", o.Output)
		}
		assert.Equal(t, "synthesized", result.FinalOutput)
		assert.NotEmpty(t, result.RunID)
		assert.Equal(t, []string{"synth"}, tokens)
	})

	t.Run("should assign credentials round-robin by role index", func(t *testing.T) {
		creds := []backend.Credential{"key-0", "key-1"}
		for run := 0; run < 2; run++ {
			factory := plainAnswerFactory()
			sw, err := New(testConfig(factory, threeRoles(), creds))
			require.NoError(t, err)

			result, err := sw.Run(ctx, "task", "", Callbacks{})
			require.NoError(t, err)

			// Role i gets credential i mod K, independent of scheduling.
			expect := map[string]string{
				"researcher": "answer from key-0",
				"planner":    "answer from key-1",
				"coder":      "answer from key-0",
			}
			for role, want := range expect {
				o, ok := result.Outcome(role)
				require.True(t, ok)
				assert.Equal(t, want, o.Output, "run %d role %s", run, role)
			}
		}
	})

	t.Run("should isolate one failing worker from the rest", func(t *testing.T) {
		factory := &fakeFactory{build: func(cred backend.Credential) *fakeClient {
			return &fakeClient{
				respond: func(call int, req backend.Request) (*backend.Response, error) {
					for _, msg := range req.Messages {
						if msg.Role == "system" && strings.Contains(msg.Content, "planner") {
							return nil, errors.New("planner backend down")
						}
					}
					return &backend.Response{Text: "fine"}, nil
				},
				stream: func(req backend.Request, onToken backend.TokenFunc) (*backend.Response, error) {
					return &backend.Response{Text: "merged"}, nil
				},
			}
		}}
		sw, err := New(testConfig(factory, threeRoles(), []backend.Credential{"k"}))
		require.NoError(t, err)

		result, err := sw.Run(ctx, "task", "", Callbacks{})
		require.NoError(t, err)

		assert.Len(t, result.Outcomes, 3)
		planner, ok := result.Outcome("planner")
		require.True(t, ok)
		assert.Contains(t, planner.Output, "[planner ERROR]")
		assert.Equal(t, "merged", result.FinalOutput)
	})

	t.Run("should yield zero outcomes when cancelled before any worker completes", func(t *testing.T) {
		inner := plainAnswerFactory()
		var sw *Swarm
		// The first worker to reach its factory call cancels the run, so
		// every agent loop observes the flag before completing.
		factory := factoryFunc(func(cred backend.Credential) (backend.Client, error) {
			sw.Cancel()
			return inner.New(cred)
		})

		cfg := testConfig(nil, threeRoles(), []backend.Credential{"k"})
		cfg.Factory = factory
		var err error
		sw, err = New(cfg)
		require.NoError(t, err)

		result, err := sw.Run(ctx, "task", "", Callbacks{})
		require.ErrorIs(t, err, ErrCancelled)
		assert.True(t, result.Cancelled)
		assert.Empty(t, result.Outcomes)
		assert.Empty(t, result.FinalOutput)
	})

	t.Run("should keep every outcome and skip synthesis when cancelled after the last worker", func(t *testing.T) {
		var sw *Swarm
		var calls atomic.Int32
		var streamed atomic.Bool
		// The final worker's backend call flips the flag, so all three
		// agent loops have already passed their round checks and complete.
		factory := &fakeFactory{build: func(cred backend.Credential) *fakeClient {
			return &fakeClient{
				respond: func(call int, req backend.Request) (*backend.Response, error) {
					if calls.Add(1) == int32(len(threeRoles())) {
						sw.Cancel()
					}
					return &backend.Response{Text: "finished work"}, nil
				},
				stream: func(req backend.Request, onToken backend.TokenFunc) (*backend.Response, error) {
					streamed.Store(true)
					return &backend.Response{Text: "should never synthesize"}, nil
				},
			}
		}}

		var err error
		sw, err = New(testConfig(factory, threeRoles(), []backend.Credential{"k"}))
		require.NoError(t, err)

		var tokens []string
		result, err := sw.Run(ctx, "task", "", Callbacks{
			OnToken: func(token string) { tokens = append(tokens, token) },
		})
		require.ErrorIs(t, err, ErrCancelled)
		assert.True(t, result.Cancelled)
		assert.Len(t, result.Outcomes, 3)
		for _, role := range threeRoles() {
			o, ok := result.Outcome(role.Name)
			require.True(t, ok, "missing outcome for %s", role.Name)
			assert.Equal(t, "finished work", o.Output)
		}
		assert.Empty(t, result.FinalOutput)
		assert.False(t, streamed.Load())
		assert.Empty(t, tokens)
	})

	t.Run("should convert a worker panic into an error outcome for that role only", func(t *testing.T) {
		factory := &fakeFactory{build: func(cred backend.Credential) *fakeClient {
			return &fakeClient{
				respond: func(call int, req backend.Request) (*backend.Response, error) {
					for _, msg := range req.Messages {
						if msg.Role == "system" && strings.Contains(msg.Content, "planner") {
							panic("planner exploded")
						}
					}
					return &backend.Response{Text: "fine"}, nil
				},
				stream: func(req backend.Request, onToken backend.TokenFunc) (*backend.Response, error) {
					return &backend.Response{Text: "merged"}, nil
				},
			}
		}}
		sw, err := New(testConfig(factory, threeRoles(), []backend.Credential{"k"}))
		require.NoError(t, err)

		result, err := sw.Run(ctx, "task", "", Callbacks{})
		require.NoError(t, err)

		assert.Len(t, result.Outcomes, 3)
		planner, ok := result.Outcome("planner")
		require.True(t, ok)
		assert.Contains(t, planner.Err, "worker panic")
		assert.Contains(t, planner.Err, "planner exploded")
		for _, role := range []string{"researcher", "coder"} {
			o, ok := result.Outcome(role)
			require.True(t, ok)
			assert.Equal(t, "fine", o.Output)
			assert.Empty(t, o.Err)
		}
		assert.Equal(t, "merged", result.FinalOutput)
	})

	t.Run("should bundle outcomes with synthesis failure", func(t *testing.T) {
		factory := &fakeFactory{build: func(cred backend.Credential) *fakeClient {
			return &fakeClient{
				respond: func(call int, req backend.Request) (*backend.Response, error) {
					return &backend.Response{Text: "work"}, nil
				},
				stream: func(req backend.Request, onToken backend.TokenFunc) (*backend.Response, error) {
					return nil, errors.New("synthesis backend down")
				},
			}
		}}
		sw, err := New(testConfig(factory, threeRoles(), []backend.Credential{"k"}))
		require.NoError(t, err)

		result, err := sw.Run(ctx, "task", "", Callbacks{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "synthesis failed")
		require.NotNil(t, result)
		assert.Len(t, result.Outcomes, 3)
		assert.Empty(t, result.FinalOutput)
	})

	t.Run("should merge role-delimited sections into the synthesis prompt", func(t *testing.T) {
		var synthReq backend.Request
		var mu sync.Mutex
		factory := &fakeFactory{build: func(cred backend.Credential) *fakeClient {
			return &fakeClient{
				respond: func(call int, req backend.Request) (*backend.Response, error) {
					return &backend.Response{Text: "section content"}, nil
				},
				stream: func(req backend.Request, onToken backend.TokenFunc) (*backend.Response, error) {
					mu.Lock()
					synthReq = req
					mu.Unlock()
					return &backend.Response{Text: "final"}, nil
				},
			}
		}}
		sw, err := New(testConfig(factory, threeRoles(), []backend.Credential{"k"}))
		require.NoError(t, err)

		_, err = sw.Run(ctx, "the task", "", Callbacks{})
		require.NoError(t, err)

		require.Len(t, synthReq.Messages, 2)
		assert.Equal(t, "system", synthReq.Messages[0].Role)
		assert.Contains(t, synthReq.Messages[0].Content, "synthesis agent")
		user := synthReq.Messages[1].Content
		assert.Contains(t, user, "the task")
		for _, role := range threeRoles() {
			assert.Contains(t, user, fmt.Sprintf("---- %s ----", role.Name))
		}
	})

	t.Run("should honor the synthesis prompt override and dedicated factory", func(t *testing.T) {
		var synthSystem string
		synthFactory := &fakeFactory{build: func(cred backend.Credential) *fakeClient {
			return &fakeClient{
				stream: func(req backend.Request, onToken backend.TokenFunc) (*backend.Response, error) {
					synthSystem = req.Messages[0].Content
					return &backend.Response{Text: "local final"}, nil
				},
			}
		}}

		cfg := testConfig(plainAnswerFactory(), threeRoles(), []backend.Credential{"k"})
		cfg.Synthesis = Synthesis{
			Factory:      synthFactory,
			Model:        "local-model",
			SystemPrompt: "custom verifier prompt",
		}
		sw, err := New(cfg)
		require.NoError(t, err)

		result, err := sw.Run(ctx, "task", "", Callbacks{})
		require.NoError(t, err)
		assert.Equal(t, "local final", result.FinalOutput)
		assert.Equal(t, "custom verifier prompt", synthSystem)
	})

	t.Run("should attach context as a system message for every worker", func(t *testing.T) {
		var mu sync.Mutex
		sawContext := 0
		factory := &fakeFactory{build: func(cred backend.Credential) *fakeClient {
			return &fakeClient{
				respond: func(call int, req backend.Request) (*backend.Response, error) {
					for _, msg := range req.Messages {
						if msg.Role == "system" && strings.Contains(msg.Content, "important background") {
							mu.Lock()
							sawContext++
							mu.Unlock()
						}
					}
					return &backend.Response{Text: "ok"}, nil
				},
				stream: func(req backend.Request, onToken backend.TokenFunc) (*backend.Response, error) {
					return &backend.Response{Text: "done"}, nil
				},
			}
		}}
		sw, err := New(testConfig(factory, threeRoles(), []backend.Credential{"k"}))
		require.NoError(t, err)

		_, err = sw.Run(ctx, "task", "important background", Callbacks{})
		require.NoError(t, err)
		assert.Equal(t, 3, sawContext)
	})
}

// factoryFunc adapts a function to the backend.Factory interface.
type factoryFunc func(cred backend.Credential) (backend.Client, error)

func (f factoryFunc) New(cred backend.Credential) (backend.Client, error) { return f(cred) }

