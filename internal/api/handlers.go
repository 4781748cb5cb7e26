package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/planetlabs/go-stac"
	"github.com/rkm/geocatalog/internal/config"
	"github.com/rkm/geocatalog/internal/filter"
	"github.com/rkm/geocatalog/internal/search"
	intstac "github.com/rkm/geocatalog/internal/stac"
	"github.com/rkm/geocatalog/internal/store"
)

// Handlers contains all HTTP handlers for the STAC API.
type Handlers struct {
	cfg      *config.Config
	store    store.Store
	searcher *search.Searcher
	logger   *slog.Logger
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(
	cfg *config.Config,
	st store.Store,
	searcher *search.Searcher,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		cfg:      cfg,
		store:    st,
		searcher: searcher,
		logger:   logger,
	}
}

// LandingPage returns the STAC API landing page (root catalog).
// GET /
func (h *Handlers) LandingPage(w http.ResponseWriter, r *http.Request) {
	baseURL := h.cfg.STAC.BaseURL

	landing := intstac.NewLandingPage(
		h.cfg.STAC.ID,
		h.cfg.STAC.Title,
		h.cfg.STAC.Description,
		h.cfg.STAC.Version,
		h.conformsTo(),
	)

	landing.AddLink("self", baseURL+"/", "application/json")
	landing.AddLink("root", baseURL+"/", "application/json")
	landing.AddLink("conformance", baseURL+"/conformance", "application/json")
	landing.AddLink("data", baseURL+"/collections", "application/json")

	if h.cfg.Features.EnableSearch {
		landing.Links = append(landing.Links, &stac.Link{
			Rel:              "search",
			Href:             baseURL + "/search",
			Type:             "application/geo+json",
			AdditionalFields: map[string]any{"method": "GET"},
		})
		landing.Links = append(landing.Links, &stac.Link{
			Rel:              "search",
			Href:             baseURL + "/search",
			Type:             "application/geo+json",
			AdditionalFields: map[string]any{"method": "POST"},
		})
	}

	landing.AddLink("service-desc", baseURL+"/api", "application/vnd.oai.openapi+json;version=3.0")
	landing.AddLink("service-doc", baseURL+"/api.html", "text/html")

	WriteJSON(w, http.StatusOK, landing)
}

// Conformance returns the conformance classes supported by this API.
// GET /conformance
func (h *Handlers) Conformance(w http.ResponseWriter, r *http.Request) {
	conformance := &intstac.Conformance{
		ConformsTo: h.conformsTo(),
	}

	WriteJSON(w, http.StatusOK, conformance)
}

// Collections returns the list of all available collections.
// GET /collections
func (h *Handlers) Collections(w http.ResponseWriter, r *http.Request) {
	baseURL := h.cfg.STAC.BaseURL

	collections, err := h.store.ListCollections(r.Context())
	if err != nil {
		h.logger.Error("listing collections failed", slog.String("error", err.Error()))
		WriteInternalError(w, "failed to list collections")
		return
	}

	for _, collection := range collections {
		h.addCollectionLinks(collection, baseURL)
	}

	response := intstac.NewCollectionsList(collections)
	response.Links = append(response.Links, &stac.Link{
		Rel:  "self",
		Href: baseURL + "/collections",
		Type: "application/json",
	})
	response.Links = append(response.Links, &stac.Link{
		Rel:  "root",
		Href: baseURL + "/",
		Type: "application/json",
	})

	WriteJSON(w, http.StatusOK, response)
}

// Collection returns a single collection by ID.
// GET /collections/{collectionId}
func (h *Handlers) Collection(w http.ResponseWriter, r *http.Request) {
	collectionID := chi.URLParam(r, "collectionId")
	if collectionID == "" {
		WriteBadRequest(w, "collection ID is required")
		return
	}

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

	h.addCollectionLinks(collection, h.cfg.STAC.BaseURL)

	WriteJSON(w, http.StatusOK, collection)
}

// Items returns items from a specific collection.
// GET /collections/{collectionId}/items
func (h *Handlers) Items(w http.ResponseWriter, r *http.Request) {
	collectionID := chi.URLParam(r, "collectionId")
	if collectionID == "" {
		WriteBadRequest(w, "collection ID is required")
		return
	}

	searchReq, err := intstac.ParseSearchRequest(r)
	if err != nil {
		WriteInvalidParameter(w, fmt.Sprintf("invalid search parameters: %v", err))
		return
	}

	// The route pins the collection; any collections parameter is ignored.
	searchReq.Collections = []string{collectionID}

	if err := h.checkExtensions(searchReq); err != nil {
		WriteInvalidParameter(w, err.Error())
		return
	}

	query, err := searchReq.ToQuery()
	if err != nil {
		WriteInvalidParameter(w, fmt.Sprintf("invalid search parameters: %v", err))
		return
	}

	result, err := h.searcher.Search(r.Context(), query)
	if err != nil {
		h.writeSearchError(w, err)
		return
	}

	baseURL := h.cfg.STAC.BaseURL
	selfURL := fmt.Sprintf("%s/collections/%s/items", baseURL, collectionID)

	itemCollection := intstac.NewItemCollection(result.Features)
	itemCollection.SetContext(len(result.Features), result.Limit, result.Matched)
	itemCollection.AddLink("self", selfURL, "application/geo+json")
	itemCollection.AddLink("root", baseURL+"/", "application/json")
	itemCollection.AddLink("parent", fmt.Sprintf("%s/collections/%s", baseURL, collectionID), "application/json")
	itemCollection.AddLink("collection", fmt.Sprintf("%s/collections/%s", baseURL, collectionID), "application/json")

	if result.NextCursor != "" {
		nextURL := buildNextURLWithCursor(selfURL, r.URL.Query(), result.NextCursor, result.Limit)
		itemCollection.Links = append(itemCollection.Links, &stac.Link{
			Rel:  "next",
			Href: nextURL,
			Type: "application/geo+json",
		})
	}

	WriteGeoJSON(w, http.StatusOK, itemCollection)
}

// Item returns a single item by ID from a collection.
// GET /collections/{collectionId}/items/{itemId}
func (h *Handlers) Item(w http.ResponseWriter, r *http.Request) {
	collectionID := chi.URLParam(r, "collectionId")
	itemID := chi.URLParam(r, "itemId")

	if collectionID == "" {
		WriteBadRequest(w, "collection ID is required")
		return
	}

	if itemID == "" {
		WriteBadRequest(w, "item ID is required")
		return
	}

	item, err := h.store.GetItem(r.Context(), collectionID, itemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteNotFound(w, fmt.Sprintf("item %q not found", itemID))
			return
		}
		h.logger.Error("loading item failed",
			slog.String("collection_id", collectionID),
			slog.String("item_id", itemID),
			slog.String("error", err.Error()),
		)
		WriteInternalError(w, "failed to load item")
		return
	}

	baseURL := h.cfg.STAC.BaseURL
	item.Links = append(item.Links,
		&stac.Link{
			Rel:  "self",
			Href: fmt.Sprintf("%s/collections/%s/items/%s", baseURL, collectionID, itemID),
			Type: "application/geo+json",
		},
		&stac.Link{
			Rel:  "root",
			Href: baseURL + "/",
			Type: "application/json",
		},
		&stac.Link{
			Rel:  "parent",
			Href: fmt.Sprintf("%s/collections/%s", baseURL, collectionID),
			Type: "application/json",
		},
		&stac.Link{
			Rel:  "collection",
			Href: fmt.Sprintf("%s/collections/%s", baseURL, collectionID),
			Type: "application/json",
		},
	)

	WriteGeoJSON(w, http.StatusOK, item)
}

// Search performs a cross-collection search.
// GET/POST /search
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.Features.EnableSearch {
		WriteError(w, http.StatusNotImplemented, ErrCodeNotImplemented, "search endpoint is disabled")
		return
	}

	var searchReq *intstac.SearchRequest
	var err error

	if r.Method == http.MethodGet {
		searchReq, err = intstac.ParseSearchRequest(r)
	} else {
		searchReq, err = intstac.ParseSearchRequestBody(r.Body)
		defer r.Body.Close()
	}

	if err != nil {
		WriteInvalidParameter(w, fmt.Sprintf("invalid search request: %v", err))
		return
	}

	if err := h.checkExtensions(searchReq); err != nil {
		WriteInvalidParameter(w, err.Error())
		return
	}

	query, err := searchReq.ToQuery()
	if err != nil {
		WriteInvalidParameter(w, fmt.Sprintf("invalid search request: %v", err))
		return
	}

	result, err := h.searcher.Search(r.Context(), query)
	if err != nil {
		h.writeSearchError(w, err)
		return
	}

	baseURL := h.cfg.STAC.BaseURL
	searchURL := baseURL + "/search"

	itemCollection := intstac.NewItemCollection(result.Features)
	itemCollection.SetContext(len(result.Features), result.Limit, result.Matched)
	itemCollection.AddLink("self", searchURL, "application/geo+json")
	itemCollection.AddLink("root", baseURL+"/", "application/json")

	if result.NextCursor != "" {
		// POST bodies are echoed back as query parameters so the next link
		// works as a plain GET.
		queryParams := r.URL.Query()
		if r.Method == http.MethodPost {
			queryParams = searchReq.ToQueryParams()
		}
		nextURL := buildNextURLWithCursor(searchURL, queryParams, result.NextCursor, result.Limit)
		itemCollection.Links = append(itemCollection.Links, &stac.Link{
			Rel:  "next",
			Href: nextURL,
			Type: "application/geo+json",
		})
	}

	WriteGeoJSON(w, http.StatusOK, itemCollection)
}

// Health returns the health status of the service.
// GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status": "ok",
	}

	WriteJSON(w, http.StatusOK, response)
}

// conformsTo trims the advertised conformance classes to the enabled
// feature set.
func (h *Handlers) conformsTo() []string {
	all := intstac.DefaultConformance()
	out := make([]string, 0, len(all))
	for _, class := range all {
		switch class {
		case intstac.ConformanceItemSearch:
			if !h.cfg.Features.EnableSearch {
				continue
			}
		case intstac.ConformanceFilter, intstac.ConformanceCQL2Text, intstac.ConformanceCQL2JSON:
			if !h.cfg.Features.EnableFilter {
				continue
			}
		case intstac.ConformanceSort:
			if !h.cfg.Features.EnableSortby {
				continue
			}
		case intstac.ConformanceFields:
			if !h.cfg.Features.EnableFields {
				continue
			}
		}
		out = append(out, class)
	}
	return out
}

// checkExtensions rejects parameters belonging to disabled search extensions.
func (h *Handlers) checkExtensions(req *intstac.SearchRequest) error {
	if !h.cfg.Features.EnableFilter && req.Filter != nil {
		return errors.New("the filter extension is disabled")
	}
	if !h.cfg.Features.EnableSortby && len(req.Sortby) > 0 {
		return errors.New("the sortby extension is disabled")
	}
	if !h.cfg.Features.EnableFields && req.Fields != nil {
		return errors.New("the fields extension is disabled")
	}
	return nil
}

// writeSearchError maps search failures onto the STAC error taxonomy.
func (h *Handlers) writeSearchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, search.ErrInvalidQuery), errors.Is(err, filter.ErrSyntax):
		WriteInvalidParameter(w, err.Error())
	case errors.Is(err, search.ErrInvalidCursor):
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidCursor, err.Error())
	case errors.Is(err, search.ErrCursorMismatch):
		WriteError(w, http.StatusBadRequest, ErrCodeCursorMismatch, err.Error())
	case errors.Is(err, store.ErrNotFound):
		WriteNotFound(w, err.Error())
	case errors.Is(err, search.ErrTimeout):
		WriteError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "search deadline exceeded")
	default:
		h.logger.Error("search failed", slog.String("error", err.Error()))
		WriteInternalError(w, "search failed")
	}
}

// addCollectionLinks appends the standard navigation links to a collection,
// skipping any the document already carries.
func (h *Handlers) addCollectionLinks(collection *stac.Collection, baseURL string) {
	existing := make(map[string]bool, len(collection.Links))
	for _, link := range collection.Links {
		existing[link.Rel] = true
	}
	add := func(link *stac.Link) {
		if !existing[link.Rel] {
			collection.Links = append(collection.Links, link)
		}
	}

	add(&stac.Link{
		Rel:  "self",
		Href: fmt.Sprintf("%s/collections/%s", baseURL, collection.Id),
		Type: "application/json",
	})
	add(&stac.Link{
		Rel:  "root",
		Href: baseURL + "/",
		Type: "application/json",
	})
	add(&stac.Link{
		Rel:  "parent",
		Href: baseURL + "/",
		Type: "application/json",
	})
	add(&stac.Link{
		Rel:   "items",
		Href:  fmt.Sprintf("%s/collections/%s/items", baseURL, collection.Id),
		Type:  "application/geo+json",
		Title: "Items",
	})
	if h.cfg.Features.EnableQueryables {
		add(&stac.Link{
			Rel:  "http://www.opengis.net/def/rel/ogc/1.0/queryables",
			Href: fmt.Sprintf("%s/collections/%s/queryables", baseURL, collection.Id),
			Type: "application/schema+json",
		})
	}
}

// buildNextURLWithCursor constructs a URL with a cursor parameter for pagination.
func buildNextURLWithCursor(baseURL string, params url.Values, cursor string, limit int) string {
	newParams := url.Values{}
	for key, values := range params {
		if key == "cursor" {
			continue
		}
		for _, value := range values {
			newParams.Add(key, value)
		}
	}

	newParams.Set("cursor", cursor)
	if limit > 0 {
		newParams.Set("limit", fmt.Sprintf("%d", limit))
	}

	return baseURL + "?" + newParams.Encode()
}

// sortedKeys returns map keys in a stable order for response building.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
