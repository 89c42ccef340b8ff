package httpapi

import (
	"encoding/json"
	"net/http"
	"sort"
)

type modelListEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

// handleListModels serves GET /v1/models: the union of every credential's
// advertised model list across every provider pool, plus registered
// aliases, deduplicated and sorted for a stable response.
func (d Deps) handleListModels(w http.ResponseWriter, r *http.Request) {
	seen := make(map[string]struct{})
	var actual []string
	for _, pool := range d.Pools {
		for _, cred := range pool.All() {
			for _, m := range cred.Models {
				if _, ok := seen[m]; ok {
					continue
				}
				seen[m] = struct{}{}
				actual = append(actual, m)
			}
		}
	}
	sort.Strings(actual)

	models := d.Mapper.AvailableModels(actual)
	data := make([]modelListEntry, 0, len(models))
	for _, m := range models {
		owner := "gateway"
		if m.IsAlias {
			owner = "gateway-alias:" + m.ActualModel
		}
		data = append(data, modelListEntry{ID: m.ID, Object: "model", OwnedBy: owner})
	}
	sort.Slice(data, func(i, j int) bool { return data[i].ID < data[j].ID })

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"object": "list",
		"data":   data,
	})
}
