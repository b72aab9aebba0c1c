package selector

import (
	"context"
	"strconv"
	"strings"

	"github.com/pattern-run/pattern/pkg/models"
)

// CapabilitySelector chooses active members whose capabilities match
// the configured requirement set.
type CapabilitySelector struct{}

// Name identifies this selector in the registry.
func (CapabilitySelector) Name() string { return "capability" }

// Select reads "capabilities" (comma-separated), "require_all"
// ("true"/"false"), and "max_agents" from config.
func (CapabilitySelector) Select(ctx context.Context, candidates []Candidate, message models.Message, config map[string]string) (Result, error) {
	var required []string
	if raw, ok := config["capabilities"]; ok && raw != "" {
		for _, c := range strings.Split(raw, ",") {
			required = append(required, strings.TrimSpace(c))
		}
	}
	requireAll := config["require_all"] == "true"

	var selected []Candidate
	for _, c := range activeOnly(candidates) {
		if matchesCapabilities(c.Membership.Capabilities, required, requireAll) {
			selected = append(selected, c)
		}
	}

	if raw, ok := config["max_agents"]; ok {
		if max, err := strconv.Atoi(raw); err == nil && max >= 0 && max < len(selected) {
			selected = selected[:max]
		}
	}
	return Result{Selected: selected}, nil
}

func matchesCapabilities(have, want []string, requireAll bool) bool {
	if len(want) == 0 {
		return true
	}
	if requireAll {
		for _, w := range want {
			if !contains(have, w) {
				return false
			}
		}
		return true
	}
	for _, w := range want {
		if contains(have, w) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
