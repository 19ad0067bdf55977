// Package catalog lists the assistant tools and their credit prices.
package catalog

import (
	"fmt"

	"github.com/and161185/codepilot/internal/errs"
)

// Tool is a priced assistant capability.
type Tool struct {
	Name  string
	Title string
	Cost  int
}

var tools = []Tool{
	{Name: "code-generator", Title: "Code Generation", Cost: 1},
	{Name: "bug-fixer", Title: "Bug Fixing", Cost: 2},
	{Name: "code-review", Title: "Code Review", Cost: 3},
	{Name: "test-writer", Title: "Test Writing", Cost: 2},
	{Name: "doc-writer", Title: "Documentation", Cost: 1},
	{Name: "refactor", Title: "Refactoring", Cost: 2},
}

var byName = func() map[string]Tool {
	m := make(map[string]Tool, len(tools))
	for _, t := range tools {
		m[t.Name] = t
	}
	return m
}()

// All returns the catalog in display order.
func All() []Tool {
	out := make([]Tool, len(tools))
	copy(out, tools)
	return out
}

// Lookup returns the tool registered under name.
func Lookup(name string) (Tool, bool) {
	t, ok := byName[name]
	return t, ok
}

// CheckPrice rejects a cost that disagrees with a known tool's price.
// Unknown tools pass with any positive cost.
func CheckPrice(name string, cost int) error {
	if cost <= 0 {
		return fmt.Errorf("cost must be positive: %w", errs.ErrInvalidArgument)
	}
	if t, ok := byName[name]; ok && t.Cost != cost {
		return fmt.Errorf("tool %s costs %d, got %d: %w", name, t.Cost, cost, errs.ErrInvalidArgument)
	}
	return nil
}
