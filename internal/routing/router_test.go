package routing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/routing"
)

func TestRouter_Route(t *testing.T) {
	router := routing.NewRouter(routing.DefaultAliasTable(), "openai", "gpt-4o-mini")

	t.Run("should resolve short alias to backend model", func(t *testing.T) {
		decision := router.Route(&domain.CompletionRequest{Model: "smart"})

		require.Equal(t, "openai", decision.Provider)
		require.Equal(t, "gpt-4o", decision.BackendModel)
		require.Equal(t, "smart", decision.RequestedModel)
	})

	t.Run("should resolve identity alias to itself", func(t *testing.T) {
		decision := router.Route(&domain.CompletionRequest{Model: "claude-sonnet-4-5"})

		require.Equal(t, "anthropic", decision.Provider)
		require.Equal(t, "claude-sonnet-4-5", decision.BackendModel)
	})

	t.Run("should resolve vendor tier alias", func(t *testing.T) {
		decision := router.Route(&domain.CompletionRequest{Model: "claude-haiku"})

		require.Equal(t, "anthropic", decision.Provider)
		require.Equal(t, "claude-haiku-4-5", decision.BackendModel)
	})

	t.Run("should fall back to default for unknown alias", func(t *testing.T) {
		decision := router.Route(&domain.CompletionRequest{Model: "no-such-model"})

		require.Equal(t, "openai", decision.Provider)
		require.Equal(t, "gpt-4o-mini", decision.BackendModel)
		require.Equal(t, "no-such-model", decision.RequestedModel)
	})

	t.Run("should fall back to default for empty model", func(t *testing.T) {
		decision := router.Route(&domain.CompletionRequest{Model: ""})

		require.Equal(t, "openai", decision.Provider)
		require.Equal(t, "gpt-4o-mini", decision.BackendModel)
	})

	t.Run("should preserve requested alias for response echo", func(t *testing.T) {
		for _, model := range []string{"smart", "fast", "echo4", "unknown"} {
			decision := router.Route(&domain.CompletionRequest{Model: model})
			require.Equal(t, model, decision.RequestedModel)
		}
	})

	t.Run("should consult alias sets in order", func(t *testing.T) {
		sets := []routing.AliasSet{
			{Provider: "first", Aliases: map[string]string{"shared": "model-a"}},
			{Provider: "second", Aliases: map[string]string{"shared": "model-b"}},
		}
		r := routing.NewRouter(sets, "fallback", "fallback-model")

		decision := r.Route(&domain.CompletionRequest{Model: "shared"})
		require.Equal(t, "first", decision.Provider)
		require.Equal(t, "model-a", decision.BackendModel)
	})
}
