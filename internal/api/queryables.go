package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/planetlabs/go-stac"
	intstac "github.com/rkm/geocatalog/internal/stac"
	"github.com/rkm/geocatalog/internal/store"
)

// Queryables returns the queryable properties for the catalog or for one
// collection, as a JSON Schema document.
// GET /queryables
// GET /collections/{collectionId}/queryables
func (h *Handlers) Queryables(w http.ResponseWriter, r *http.Request) {
	collectionID := chi.URLParam(r, "collectionId")

	title := "Queryables for " + h.cfg.STAC.Title
	id := h.cfg.STAC.BaseURL + "/queryables"

	properties := coreQueryables()

	if collectionID != "" {
		collection, err := h.store.GetCollection(r.Context(), collectionID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				WriteNotFound(w, fmt.Sprintf("collection %q not found", collectionID))
				return
			}
			h.logger.Error("loading collection failed",
				slog.String("collection_id", collectionID),
				slog.String("error", err.Error()),
			)
			WriteInternalError(w, "failed to load collection")
			return
		}
		title = "Queryables for " + collectionID
		id = h.cfg.STAC.BaseURL + "/collections/" + collectionID + "/queryables"
		addSummaryQueryables(properties, collection.Summaries)
	} else {
		collections, err := h.store.ListCollections(r.Context())
		if err != nil {
			h.logger.Error("listing collections failed", slog.String("error", err.Error()))
			WriteInternalError(w, "failed to list collections")
			return
		}
		addGlobalQueryables(properties, collections)
	}

	queryables := &intstac.Queryables{
		Schema:               "https://json-schema.org/draft/2019-09/schema",
		ID:                   id,
		Type:                 "object",
		Title:                title,
		Properties:           properties,
		AdditionalProperties: true,
	}

	WriteJSON(w, http.StatusOK, queryables)
}

// coreQueryables lists the properties every item can be filtered on.
func coreQueryables() map[string]map[string]any {
	return map[string]map[string]any{
		"id": {
			"description": "Item identifier",
			"type":        "string",
		},
		"collection": {
			"description": "Collection identifier",
			"type":        "string",
		},
		"datetime": {
			"description": "Datetime or datetime range",
			"type":        "string",
			"format":      "date-time",
		},
		"geometry": {
			"description": "Item footprint geometry",
			"$ref":        "https://geojson.org/schema/Geometry.json",
		},
	}
}

// addSummaryQueryables derives queryable entries from a collection's
// summaries. A list summary becomes an enum; a range summary becomes a
// bounded number.
func addSummaryQueryables(properties map[string]map[string]any, summaries map[string]any) {
	for field, summary := range summaries {
		if _, exists := properties[field]; exists {
			continue
		}
		entry := summaryToSchema(summary)
		if entry != nil {
			entry["description"] = "Item property " + field
			properties[field] = entry
		}
	}
}

func summaryToSchema(summary any) map[string]any {
	switch s := summary.(type) {
	case []any:
		if len(s) == 0 {
			return nil
		}
		entry := map[string]any{"enum": s}
		switch s[0].(type) {
		case string:
			entry["type"] = "string"
		case float64:
			entry["type"] = "number"
		case bool:
			entry["type"] = "boolean"
		}
		return entry
	case map[string]any:
		// STAC range summary: {"minimum": x, "maximum": y}
		minimum, hasMin := s["minimum"]
		maximum, hasMax := s["maximum"]
		if !hasMin && !hasMax {
			return nil
		}
		entry := map[string]any{"type": "number"}
		if hasMin {
			entry["minimum"] = minimum
		}
		if hasMax {
			entry["maximum"] = maximum
		}
		return entry
	default:
		return nil
	}
}

// addGlobalQueryables merges summary-derived queryables across all
// collections. Enum values are unioned; range bounds are widened.
func addGlobalQueryables(properties map[string]map[string]any, collections []*stac.Collection) {
	merged := make(map[string]map[string]any)
	for _, collection := range collections {
		for field, summary := range collection.Summaries {
			if _, exists := properties[field]; exists {
				continue
			}
			entry := summaryToSchema(summary)
			if entry == nil {
				continue
			}
			existing, ok := merged[field]
			if !ok {
				merged[field] = entry
				continue
			}
			mergeSchema(existing, entry)
		}
	}
	for _, field := range sortedKeys(merged) {
		entry := merged[field]
		entry["description"] = "Item property " + field
		properties[field] = entry
	}
}

func mergeSchema(dst, src map[string]any) {
	if srcEnum, ok := src["enum"].([]any); ok {
		dstEnum, _ := dst["enum"].([]any)
		seen := make(map[any]bool, len(dstEnum))
		for _, v := range dstEnum {
			seen[v] = true
		}
		for _, v := range srcEnum {
			if !seen[v] {
				dstEnum = append(dstEnum, v)
				seen[v] = true
			}
		}
		dst["enum"] = dstEnum
	}
	if srcMin, ok := src["minimum"].(float64); ok {
		if dstMin, ok := dst["minimum"].(float64); !ok || srcMin < dstMin {
			dst["minimum"] = srcMin
		}
	}
	if srcMax, ok := src["maximum"].(float64); ok {
		if dstMax, ok := dst["maximum"].(float64); !ok || srcMax > dstMax {
			dst["maximum"] = srcMax
		}
	}
}
