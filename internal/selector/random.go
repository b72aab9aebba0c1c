package selector

import (
	"context"
	"math/rand"
	"strconv"

	"github.com/pattern-run/pattern/pkg/models"
)

// RandomSelector chooses count (default 1) active members at random.
type RandomSelector struct{}

// Name identifies this selector in the registry.
func (RandomSelector) Name() string { return "random" }

// Select shuffles the active candidates and takes the first count.
func (RandomSelector) Select(ctx context.Context, candidates []Candidate, message models.Message, config map[string]string) (Result, error) {
	available := activeOnly(candidates)
	if len(available) == 0 {
		return Result{}, nil
	}

	count := 1
	if raw, ok := config["count"]; ok {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			count = n
		}
	}
	if count > len(available) {
		count = len(available)
	}

	indices := rand.Perm(len(available))
	selected := make([]Candidate, 0, count)
	for _, i := range indices[:count] {
		selected = append(selected, available[i])
	}
	return Result{Selected: selected}, nil
}
