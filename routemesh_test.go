package routemesh

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/routemesh/checkpoint"
	"github.com/hupe1980/routemesh/config"
	"github.com/hupe1980/routemesh/core"
	"github.com/hupe1980/routemesh/model"
	"github.com/hupe1980/routemesh/workflow/opencode"
)

// routeTo returns a mock model that routes every message to route and
// answers any other completion with text.
func routeTo(route, text string) *model.MockModel {
	m := model.NewMockModel("mock", "test")
	m.SetHandler(func(req model.Request) (core.AIMessage, error) {
		if req.ToolChoice.Name == "route" {
			return core.AIMessage{ToolCalls: []core.ToolCall{{Name: "route", Args: map[string]any{"route": route}}}}, nil
		}
		return core.AIMessage{Content: text}, nil
	})

	return m
}

func TestMesh_TurnCheckpointsState(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()

	mesh, err := New(routeTo("generalInput", "Hello!"), func(o *Options) { o.Store = store })
	require.NoError(t, err)

	_, err = mesh.Turn(ctx, "t1", "hi")
	require.NoError(t, err)

	_, err = mesh.Turn(ctx, "t1", "how are you?")
	require.NoError(t, err)

	history, err := store.History(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, history[0].ID, history[1].ParentID)

	state, err := mesh.State(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, state.Messages, 4)
	assert.Equal(t, "generalInput", state.Route)
}

func TestMesh_FailedTurnIsNotCheckpointed(t *testing.T) {
	ctx := context.Background()

	m := model.NewMockModel("mock", "test")
	m.SetHandler(func(req model.Request) (core.AIMessage, error) {
		if req.ToolChoice.Name == "route" {
			return core.AIMessage{ToolCalls: []core.ToolCall{{Name: "route", Args: map[string]any{"route": "generalInput"}}}}, nil
		}
		return core.AIMessage{}, errors.New("provider down")
	})

	mesh, err := New(m)
	require.NoError(t, err)

	res, err := mesh.Turn(ctx, "t", "hi")
	require.Error(t, err)
	require.NotNil(t, res)

	_, err = mesh.Store().Latest(ctx, "t")
	require.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestMesh_OpenCodeApprovalAcrossCheckpoints(t *testing.T) {
	ctx := context.Background()

	mesh, err := New(routeTo("openCode", ""))
	require.NoError(t, err)

	res, err := mesh.Turn(ctx, "code", "build me a todo app")
	require.NoError(t, err)
	require.True(t, res.Interrupted)

	stored, err := mesh.State(ctx, "code")
	require.NoError(t, err)
	require.NotNil(t, stored.Pending, "the pending interrupt survives the checkpoint")

	res, err = mesh.Resume(ctx, "code", core.ResumeValue{Action: core.ResumeReject, Feedback: "use tailwind"})
	require.NoError(t, err)
	assert.Equal(t, []string{opencode.MasterPlan[0].Item}, res.State.Plan.RejectedPlans)

	require.NoError(t, mesh.SetAutoAccept(ctx, "code", true))

	res, err = mesh.Resume(ctx, "code", core.ResumeValue{Action: core.ResumeAccept})
	require.NoError(t, err)
	assert.False(t, res.Interrupted)
	assert.Empty(t, res.State.Plan.RemainingPlans)
	assert.Len(t, res.State.Plan.ExecutedPlans, len(opencode.MasterPlan)-1)
}

func TestMesh_OpenCodeContinuesAfterTerminate(t *testing.T) {
	ctx := context.Background()

	mesh, err := New(routeTo("openCode", ""))
	require.NoError(t, err)

	res, err := mesh.Turn(ctx, "code", "build a todo app")
	require.NoError(t, err)
	require.True(t, res.Interrupted)

	res, err = mesh.Resume(ctx, "code", core.ResumeValue{Action: core.ResumeTerminate})
	require.NoError(t, err)
	assert.Len(t, res.State.Plan.RemainingPlans, len(opencode.MasterPlan))

	require.NoError(t, mesh.SetAutoAccept(ctx, "code", true))

	res, err = mesh.Turn(ctx, "code", "continue the app")
	require.NoError(t, err)
	assert.Equal(t, opencode.Items(), res.State.Plan.ExecutedPlans)
	assert.Empty(t, res.State.Plan.RemainingPlans)

	_, err = mesh.Turn(ctx, "code", "continue the app again")
	require.NoError(t, err)
}

func TestMesh_OpenCodeRestartsStepAfterInterruptedApproval(t *testing.T) {
	ctx := context.Background()

	mesh, err := New(routeTo("openCode", ""))
	require.NoError(t, err)

	first, err := mesh.Turn(ctx, "code", "build a todo app")
	require.NoError(t, err)
	require.True(t, first.Interrupted)

	second, err := mesh.Turn(ctx, "code", "actually, keep going")
	require.NoError(t, err)
	require.True(t, second.Interrupted)
	assert.NotEqual(t, first.Interrupt.ToolCallID, second.Interrupt.ToolCallID)
	assert.Equal(t, opencode.MasterPlan[0].Item, second.Interrupt.Payload["planItem"])

	require.NoError(t, mesh.SetAutoAccept(ctx, "code", true))

	res, err := mesh.Resume(ctx, "code", core.ResumeValue{Action: core.ResumeAccept})
	require.NoError(t, err)
	assert.False(t, res.Interrupted)
	assert.Equal(t, opencode.Items(), res.State.Plan.ExecutedPlans)
	require.NoError(t, core.ValidateToolProtocol(res.State.Messages, true))
}

func TestNewModel(t *testing.T) {
	t.Setenv("ROUTEMESH_TEST_EMPTY", "")

	_, err := NewModel(context.Background(), config.LLMConfig{Provider: "openai", APIKeyEnv: "ROUTEMESH_TEST_EMPTY"})
	var cerr *core.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "ROUTEMESH_TEST_EMPTY", cerr.Setting)

	m, err := NewModel(context.Background(), config.LLMConfig{Provider: "anthropic", Model: "claude-3-5-sonnet-20241022", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", m.Info().Provider)

	_, err = NewModel(context.Background(), config.LLMConfig{Provider: "llama"})
	require.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(config.ConfigEnv, "")

	cfg, err := config.Load()
	require.NoError(t, err)

	cfg.Checkpoint.Driver = "sqlite"
	cfg.Checkpoint.Path = t.TempDir() + "/cp.db"
	cfg.Pizza.FindDelay = 0
	cfg.Pizza.OrderDelay = 0

	svc, err := FromConfig(context.Background(), cfg, routeTo("generalInput", "hey"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, svc.Close()) })

	_, err = svc.Turn(context.Background(), "cfg", "hello")
	require.NoError(t, err)

	cp, err := svc.Store().Latest(context.Background(), "cfg")
	require.NoError(t, err)
	assert.Len(t, cp.State.Messages, 2)

	cfg.Checkpoint.Driver = "redis"
	_, err = FromConfig(context.Background(), cfg, routeTo("generalInput", "hey"))
	require.Error(t, err)
}
