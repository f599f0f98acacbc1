package echo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/provider/echo"
)

func TestNewProvider(t *testing.T) {
	provider := echo.NewProvider()

	require.NotNil(t, provider)
	require.Equal(t, "echo", provider.Name())
	require.False(t, provider.SupportsStreaming())
}

func TestComplete_Success(t *testing.T) {
	provider := echo.NewProvider()
	ctx := context.Background()

	req := &domain.CompletionRequest{
		Model: "echo4",
		Messages: []domain.Message{
			{Role: "user", Content: "Hello world"},
		},
	}

	resp, err := provider.Complete(ctx, req)

	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Equal(t, "echo4", resp.Model)
	require.Equal(t, "echo", resp.Provider)
	require.Equal(t, "[user]: Hello world\n", resp.Content)
	require.Equal(t, 3, resp.Usage.PromptTokens)     // "[user]:" "Hello" "world" = 3 words
	require.Equal(t, 3, resp.Usage.CompletionTokens) // Same as input
	require.Equal(t, 6, resp.Usage.TotalTokens)
	require.NotEmpty(t, resp.ID)
}

func TestComplete_WithSystemPrompt(t *testing.T) {
	provider := echo.NewProvider()
	ctx := context.Background()

	req := &domain.CompletionRequest{
		Model:  "echo4",
		System: "be brief",
		Messages: []domain.Message{
			{Role: "user", Content: "hi"},
		},
	}

	resp, err := provider.Complete(ctx, req)

	require.NoError(t, err)
	require.Equal(t, "[system]: be brief\n[user]: hi\n", resp.Content)
}

func TestComplete_NilRequest(t *testing.T) {
	provider := echo.NewProvider()
	ctx := context.Background()

	resp, err := provider.Complete(ctx, nil)

	require.Error(t, err)
	require.Nil(t, resp)
	require.Contains(t, err.Error(), "request cannot be nil")
}

func TestComplete_UnsupportedModel(t *testing.T) {
	provider := echo.NewProvider()
	ctx := context.Background()

	req := &domain.CompletionRequest{
		Model: "gpt-4o",
		Messages: []domain.Message{
			{Role: "user", Content: "hi"},
		},
	}

	resp, err := provider.Complete(ctx, req)

	require.Error(t, err)
	require.Nil(t, resp)
	require.Equal(t, domain.KindPermanent, domain.KindOf(err))
}

func TestStream_NotSupported(t *testing.T) {
	provider := echo.NewProvider()
	ctx := context.Background()

	events, err := provider.Stream(ctx, &domain.CompletionRequest{Model: "echo4"})

	require.Error(t, err)
	require.Nil(t, events)
	require.Equal(t, domain.KindPermanent, domain.KindOf(err))
}

func TestSupportedModels(t *testing.T) {
	provider := echo.NewProvider()
	ctx := context.Background()

	require.True(t, provider.IsModelSupported(ctx, "echo4"))
	require.False(t, provider.IsModelSupported(ctx, "gpt-4o"))
	require.Equal(t, []string{"echo4"}, provider.SupportedModels(ctx))
}
