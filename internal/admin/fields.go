package admin

import (
	"sort"

	"svckit/internal/models"
)

// sortedFields turns a decoded JSON object into fields with a stable key order
func sortedFields(m map[string]any) []models.Field {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]models.Field, len(keys))
	for i, k := range keys {
		out[i] = models.F(k, m[k])
	}
	return out
}
