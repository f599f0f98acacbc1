// Package routing resolves requested model aliases to a provider and a
// provider-native model. Resolution is a pure lookup against a static alias
// table; unknown aliases fall back to the configured default instead of
// failing, so routing itself can never reject a request.
package routing

import (
	"github.com/davidbz/hearth/internal/domain"
)

// AliasSet maps caller-visible model aliases to one provider's native models.
type AliasSet struct {
	Provider string
	Aliases  map[string]string // alias -> backend model
}

// Router resolves model aliases in a fixed alias-set order.
type Router struct {
	sets            []AliasSet
	defaultProvider string
	defaultModel    string
}

// NewRouter creates a router over the given alias sets. Sets are consulted in
// slice order; the first set containing the alias wins.
func NewRouter(sets []AliasSet, defaultProvider, defaultModel string) *Router {
	return &Router{
		sets:            sets,
		defaultProvider: defaultProvider,
		defaultModel:    defaultModel,
	}
}

// Route resolves the request's model alias. The originally requested alias is
// always preserved in the decision so responses can echo it back.
func (r *Router) Route(req *domain.CompletionRequest) domain.RoutingDecision {
	for _, set := range r.sets {
		if backendModel, ok := set.Aliases[req.Model]; ok {
			return domain.RoutingDecision{
				Provider:       set.Provider,
				BackendModel:   backendModel,
				RequestedModel: req.Model,
			}
		}
	}

	return domain.RoutingDecision{
		Provider:       r.defaultProvider,
		BackendModel:   r.defaultModel,
		RequestedModel: req.Model,
	}
}

// DefaultAliasTable is the static table shipped with the gateway. Identity
// entries let callers address backend models directly; short aliases pick a
// tier without naming a vendor.
func DefaultAliasTable() []AliasSet {
	return []AliasSet{
		{
			Provider: "anthropic",
			Aliases: map[string]string{
				"claude-sonnet":     "claude-sonnet-4-5",
				"claude-haiku":      "claude-haiku-4-5",
				"claude-opus":       "claude-opus-4-1",
				"claude-sonnet-4-5": "claude-sonnet-4-5",
				"claude-haiku-4-5":  "claude-haiku-4-5",
				"claude-opus-4-1":   "claude-opus-4-1",
			},
		},
		{
			Provider: "openai",
			Aliases: map[string]string{
				"smart":       "gpt-4o",
				"fast":        "gpt-4o-mini",
				"gpt-4o":      "gpt-4o",
				"gpt-4o-mini": "gpt-4o-mini",
				"gpt-4-turbo": "gpt-4-turbo",
			},
		},
		{
			Provider: "echo",
			Aliases: map[string]string{
				"echo4": "echo4",
			},
		},
	}
}
