package enhance_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browserpilot/pkg/config"
	"github.com/entrhq/browserpilot/pkg/enhance"
	"github.com/entrhq/browserpilot/pkg/llm"
	"github.com/entrhq/browserpilot/pkg/llm/llmtest"
	"github.com/entrhq/browserpilot/pkg/logging"
	"github.com/entrhq/browserpilot/pkg/types"
)

func newEnhancer(env config.Env, model *llmtest.Provider, profiles *[]string) *enhance.Enhancer {
	factory := func(b config.Backend) (llm.Provider, error) {
		if profiles != nil {
			*profiles = append(*profiles, b.Profile)
		}
		return model, nil
	}
	return enhance.NewEnhancer(env, factory).WithLogger(logging.NewLoggerWithWriter("test", io.Discard))
}

func TestEnhance(t *testing.T) {
	model := llmtest.New(llmtest.Text("  Go to example.com, ", "read the title.\n"))
	var profiles []string

	out, err := newEnhancer(config.MapEnv(nil), model, &profiles).Enhance(context.Background(), "get the title of example", "")
	require.NoError(t, err)
	assert.Equal(t, "Go to example.com, read the title.", out)
	assert.Equal(t, []string{config.TargetVPS}, profiles)

	reqs := model.Requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Messages, 2)
	assert.Equal(t, enhance.SystemPrompt, reqs[0].Messages[0].Content)
	assert.Equal(t, "get the title of example", reqs[0].Messages[1].Content)
	assert.Empty(t, reqs[0].Tools)
}

func TestEnhance_EmptyPrompt(t *testing.T) {
	model := llmtest.New()
	_, err := newEnhancer(config.MapEnv(nil), model, nil).Enhance(context.Background(), "   ", "vps")
	require.Error(t, err)
	assert.EqualError(t, err, "Prompt is required")
	assert.Equal(t, types.CodeMissingField, types.CodeOf(err))
	assert.Empty(t, model.Requests())
}

func TestEnhance_CloudProfileMissingSettings(t *testing.T) {
	model := llmtest.New()
	_, err := newEnhancer(config.MapEnv(map[string]string{"OLLAMA_CLOUD_API_KEY": "k"}), model, nil).
		Enhance(context.Background(), "task", "cloud-eu")

	var cfgErr *types.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{"OLLAMA_CLOUD_BASE_URL"}, cfgErr.Missing)
	assert.Empty(t, model.Requests())
}

func TestEnhance_ModelFailure(t *testing.T) {
	model := llmtest.New()
	model.StartErr = &types.ProviderError{Op: "chat", StatusCode: 503, Message: "overloaded"}

	_, err := newEnhancer(config.MapEnv(nil), model, nil).Enhance(context.Background(), "task", "vps")
	require.Error(t, err)
	assert.Equal(t, types.CodeProviderError, types.CodeOf(err))
}

func TestEnhance_FactoryFailure(t *testing.T) {
	e := enhance.NewEnhancer(config.MapEnv(nil), func(config.Backend) (llm.Provider, error) {
		return nil, errors.New("bad url")
	})
	_, err := e.Enhance(context.Background(), "task", "")
	assert.Equal(t, types.CodeBackendMisconfigured, types.CodeOf(err))
}
