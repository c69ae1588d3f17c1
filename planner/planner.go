// Package planner turns a natural-language request into an ordered
// action list. The rule-based planner is a deterministic baseline;
// anything implementing Planner can replace it.
package planner

import (
	"strings"

	"github.com/DamienLove/browser-automation/executor"
)

// Planner produces an action plan for a request. Implementations must
// be pure: no I/O, no session access, same plan for the same request.
type Planner interface {
	Plan(request string) []executor.Action
}

// DefaultSearchEngine is the search URL template used when a request
// does not name an explicit URL. {query} is replaced with the
// plus-joined query.
const DefaultSearchEngine = "https://www.google.com/search?q={query}"

// RuleBased is a small heuristic planner. It understands "open <url>",
// "open <words>", "search for <query>" and "screenshot [path]";
// everything else becomes a search for the whole request.
type RuleBased struct {
	// SearchEngine overrides DefaultSearchEngine when non-empty.
	SearchEngine string
}

var _ Planner = RuleBased{}

// Plan maps the request onto actions with ordinal IDs starting at 1.
func (p RuleBased) Plan(request string) []executor.Action {
	lowered := strings.ToLower(strings.TrimSpace(request))
	trimmed := strings.TrimSpace(request)

	var actions []executor.Action
	switch {
	case strings.HasPrefix(lowered, "open "):
		target := strings.TrimSpace(trimmed[len("open "):])
		url := target
		if !strings.HasPrefix(url, "http") {
			url = p.searchURL(target)
		}
		actions = append(actions, navigate(url))
	case strings.Contains(lowered, "search for"):
		_, query, _ := strings.Cut(trimmed, "search for")
		actions = append(actions, navigate(p.searchURL(strings.TrimSpace(query))))
	case strings.HasPrefix(lowered, "screenshot"):
		a := executor.Action{Kind: executor.KindScreenshot}
		if path := strings.TrimSpace(trimmed[len("screenshot"):]); path != "" {
			a.Params = map[string]interface{}{"path": path}
		}
		actions = append(actions, a)
	default:
		actions = append(actions, navigate(p.searchURL(trimmed)))
	}

	for i := range actions {
		actions[i].ID = i + 1
	}
	return actions
}

func (p RuleBased) searchURL(query string) string {
	engine := p.SearchEngine
	if engine == "" {
		engine = DefaultSearchEngine
	}
	return strings.ReplaceAll(engine, "{query}", strings.ReplaceAll(query, " ", "+"))
}

func navigate(url string) executor.Action {
	return executor.Action{
		Kind:   executor.KindNavigate,
		Params: map[string]interface{}{"url": url},
	}
}
