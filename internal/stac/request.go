package stac

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rkm/geocatalog/internal/filter"
	"github.com/rkm/geocatalog/internal/search"
	"github.com/rkm/geocatalog/internal/store"
	"github.com/rkm/geocatalog/pkg/geo"
)

// SortbyItem represents a single sort criterion
type SortbyItem struct {
	Field     string `json:"field"`
	Direction string `json:"direction"` // "asc" or "desc"
}

// FieldsSpec selects which item fields appear in search responses.
type FieldsSpec struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// SearchRequest represents a STAC search request as received on the wire,
// before conversion into an executable query.
type SearchRequest struct {
	// Core STAC search parameters
	BBox        []float64       `json:"bbox,omitempty"`
	DateTime    string          `json:"datetime,omitempty"`
	Intersects  json.RawMessage `json:"intersects,omitempty"`
	IDs         []string        `json:"ids,omitempty"`
	Collections []string        `json:"collections,omitempty"`
	Limit       int             `json:"limit,omitempty"`

	// Cursor-based pagination
	Cursor string `json:"cursor,omitempty"`

	// Sortby extension
	Sortby []SortbyItem `json:"sortby,omitempty"`

	// Fields extension
	Fields *FieldsSpec `json:"fields,omitempty"`

	// Filter extension: CQL2-JSON object or CQL2-Text string
	Filter     any    `json:"filter,omitempty"`
	FilterLang string `json:"filter-lang,omitempty"`
}

// ParseSearchRequest parses a STAC search request from GET query parameters
func ParseSearchRequest(r *http.Request) (*SearchRequest, error) {
	query := r.URL.Query()
	req := &SearchRequest{}

	// Parse bbox parameter
	if bboxStr := query.Get("bbox"); bboxStr != "" {
		bboxParts := strings.Split(bboxStr, ",")
		if len(bboxParts) != 4 && len(bboxParts) != 6 {
			return nil, fmt.Errorf("bbox must have 4 or 6 coordinates, got %d", len(bboxParts))
		}

		bbox := make([]float64, len(bboxParts))
		for i, part := range bboxParts {
			val, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid bbox coordinate at position %d: %w", i, err)
			}
			bbox[i] = val
		}
		req.BBox = bbox
	}

	// Parse datetime parameter
	if datetime := query.Get("datetime"); datetime != "" {
		req.DateTime = datetime
	}

	// Parse intersects parameter (GeoJSON geometry as URL-encoded JSON)
	if intersects := query.Get("intersects"); intersects != "" {
		if !json.Valid([]byte(intersects)) {
			return nil, fmt.Errorf("intersects must be valid GeoJSON geometry")
		}
		req.Intersects = json.RawMessage(intersects)
	}

	// Parse ids parameter (comma-separated list)
	if ids := query.Get("ids"); ids != "" {
		req.IDs = splitTrimmed(ids)
	}

	// Parse collections parameter (comma-separated list)
	if collections := query.Get("collections"); collections != "" {
		req.Collections = splitTrimmed(collections)
	}

	// Parse limit parameter
	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, fmt.Errorf("invalid limit parameter: %w", err)
		}
		if limit < 0 {
			return nil, fmt.Errorf("limit must be non-negative, got %d", limit)
		}
		req.Limit = limit
	}

	// Parse cursor parameter (for pagination)
	if cursor := query.Get("cursor"); cursor != "" {
		req.Cursor = cursor
	}

	// Parse sortby parameter
	if sortbyStr := query.Get("sortby"); sortbyStr != "" {
		sortbyItems, err := parseSortbyParam(sortbyStr)
		if err != nil {
			return nil, fmt.Errorf("invalid sortby parameter: %w", err)
		}
		req.Sortby = sortbyItems
	}

	// Parse fields parameter
	if fieldsStr := query.Get("fields"); fieldsStr != "" {
		req.Fields = parseFieldsParam(fieldsStr)
	}

	// Parse filter parameters
	if filterStr := query.Get("filter"); filterStr != "" {
		filterLang := query.Get("filter-lang")
		if filterLang == "cql2-json" || (filterLang == "" && strings.HasPrefix(strings.TrimSpace(filterStr), "{")) {
			var filterObj any
			if err := json.Unmarshal([]byte(filterStr), &filterObj); err != nil {
				return nil, fmt.Errorf("invalid cql2-json filter: %w", err)
			}
			req.Filter = filterObj
		} else {
			// CQL2-Text stays a string until conversion
			req.Filter = filterStr
		}
	}
	if filterLang := query.Get("filter-lang"); filterLang != "" {
		req.FilterLang = filterLang
	}

	return req, nil
}

// parseSortbyParam parses the sortby query parameter
// Format: sortby=+datetime or sortby=-datetime (+ is asc, - is desc)
// Multiple sorts: sortby=+datetime,-platform
func parseSortbyParam(sortbyStr string) ([]SortbyItem, error) {
	fields := strings.Split(sortbyStr, ",")
	items := make([]SortbyItem, 0, len(fields))

	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}

		direction := "asc"
		fieldName := field
		if strings.HasPrefix(field, "+") {
			fieldName = field[1:]
		} else if strings.HasPrefix(field, "-") {
			direction = "desc"
			fieldName = field[1:]
		}

		if fieldName == "" {
			return nil, fmt.Errorf("empty field name in sortby")
		}

		items = append(items, SortbyItem{
			Field:     fieldName,
			Direction: direction,
		})
	}

	return items, nil
}

// parseFieldsParam parses the fields query parameter
// Format: fields=id,properties.datetime,-assets (- prefix excludes)
func parseFieldsParam(fieldsStr string) *FieldsSpec {
	spec := &FieldsSpec{}
	for _, field := range strings.Split(fieldsStr, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if strings.HasPrefix(field, "-") {
			spec.Exclude = append(spec.Exclude, field[1:])
		} else {
			spec.Include = append(spec.Include, strings.TrimPrefix(field, "+"))
		}
	}
	return spec
}

// ParseSearchRequestBody parses a STAC search request from POST JSON body
func ParseSearchRequestBody(body io.Reader) (*SearchRequest, error) {
	var req SearchRequest

	decoder := json.NewDecoder(body)
	if err := decoder.Decode(&req); err != nil {
		return nil, fmt.Errorf("failed to parse search request body: %w", err)
	}

	return &req, nil
}

// ToQuery converts a wire-level request into an executable search query,
// parsing the filter expression and datetime interval on the way.
func (req *SearchRequest) ToQuery() (*search.Query, error) {
	if err := ValidateSearchRequest(req); err != nil {
		return nil, err
	}

	q := &search.Query{
		Collections: req.Collections,
		IDs:         req.IDs,
		BBox:        req.BBox,
		Limit:       req.Limit,
		Cursor:      req.Cursor,
	}

	if req.DateTime != "" {
		start, end, err := ParseDatetimeInterval(req.DateTime)
		if err != nil {
			return nil, fmt.Errorf("invalid datetime: %w", err)
		}
		q.Start, q.End = start, end
	}

	if len(req.Intersects) > 0 {
		g, err := geo.FromAny(req.Intersects)
		if err != nil {
			return nil, fmt.Errorf("invalid intersects geometry: %w", err)
		}
		if err := search.ValidateIntersects(g); err != nil {
			return nil, err
		}
		q.Intersects = g
	}

	if req.Filter != nil {
		node, err := parseFilter(req.Filter, req.FilterLang)
		if err != nil {
			return nil, err
		}
		q.Filter = node
	}

	for _, item := range req.Sortby {
		q.Sort = append(q.Sort, store.SortKey{
			Field: item.Field,
			Desc:  item.Direction == "desc",
		})
	}

	if req.Fields != nil {
		q.Fields = &search.FieldsSpec{
			Include: req.Fields.Include,
			Exclude: req.Fields.Exclude,
		}
	}

	return q, nil
}

func parseFilter(raw any, lang string) (filter.Node, error) {
	switch lang {
	case "", "cql2-json", "cql2-text":
	default:
		return nil, fmt.Errorf("unsupported filter-lang %q", lang)
	}

	switch f := raw.(type) {
	case string:
		if lang == "cql2-json" {
			var obj any
			if err := json.Unmarshal([]byte(f), &obj); err != nil {
				return nil, fmt.Errorf("invalid cql2-json filter: %w", err)
			}
			return filter.ParseJSON(obj)
		}
		return filter.Parse(f)
	case map[string]any:
		if lang == "cql2-text" {
			return nil, fmt.Errorf("filter-lang is cql2-text but filter is an object")
		}
		return filter.ParseJSON(f)
	default:
		return nil, fmt.Errorf("filter must be a string or an object")
	}
}

func splitTrimmed(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// ToQueryParams converts a SearchRequest to URL query parameters.
// This is used to preserve search parameters in pagination links for POST requests.
func (req *SearchRequest) ToQueryParams() url.Values {
	params := url.Values{}

	if len(req.BBox) >= 4 {
		bboxStrs := make([]string, len(req.BBox))
		for i, v := range req.BBox {
			bboxStrs[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		params.Set("bbox", strings.Join(bboxStrs, ","))
	}

	if req.DateTime != "" {
		params.Set("datetime", req.DateTime)
	}

	if len(req.Intersects) > 0 {
		params.Set("intersects", string(req.Intersects))
	}

	if len(req.IDs) > 0 {
		params.Set("ids", strings.Join(req.IDs, ","))
	}

	if len(req.Collections) > 0 {
		params.Set("collections", strings.Join(req.Collections, ","))
	}

	// Limit is handled separately in pagination link building

	if len(req.Sortby) > 0 {
		var sortbyStrs []string
		for _, item := range req.Sortby {
			prefix := "+"
			if item.Direction == "desc" {
				prefix = "-"
			}
			sortbyStrs = append(sortbyStrs, prefix+item.Field)
		}
		params.Set("sortby", strings.Join(sortbyStrs, ","))
	}

	if req.Fields != nil {
		var fieldStrs []string
		for _, f := range req.Fields.Include {
			fieldStrs = append(fieldStrs, f)
		}
		for _, f := range req.Fields.Exclude {
			fieldStrs = append(fieldStrs, "-"+f)
		}
		if len(fieldStrs) > 0 {
			params.Set("fields", strings.Join(fieldStrs, ","))
		}
	}

	if req.Filter != nil {
		switch f := req.Filter.(type) {
		case string:
			params.Set("filter", f)
			if req.FilterLang != "" {
				params.Set("filter-lang", req.FilterLang)
			}
		default:
			if filterBytes, err := json.Marshal(f); err == nil && string(filterBytes) != "null" {
				params.Set("filter", string(filterBytes))
				params.Set("filter-lang", "cql2-json")
			}
		}
	}

	return params
}
