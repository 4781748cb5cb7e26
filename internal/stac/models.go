// Package stac provides STAC API types and request parsing, wrapping
// planetlabs/go-stac for core types and adding API-specific types.
package stac

import (
	gostac "github.com/planetlabs/go-stac"
)

// Re-export core types from planetlabs/go-stac for convenience
type (
	Item       = gostac.Item
	Collection = gostac.Collection
	Catalog    = gostac.Catalog
	Asset      = gostac.Asset
	Link       = gostac.Link
	Provider   = gostac.Provider
	Extent     = gostac.Extent
)

// ItemCollection represents a STAC ItemCollection (GeoJSON FeatureCollection).
// Features are generic documents because field projection may have removed
// parts of each item.
type ItemCollection struct {
	Type           string           `json:"type"` // "FeatureCollection"
	Features       []map[string]any `json:"features"`
	Links          []*gostac.Link   `json:"links"`
	NumberMatched  *int             `json:"numberMatched,omitempty"`
	NumberReturned int              `json:"numberReturned"`
	Context        *Context         `json:"context,omitempty"`
}

// Context provides additional metadata about the response (STAC Context extension)
type Context struct {
	Returned int  `json:"returned"`
	Limit    int  `json:"limit,omitempty"`
	Matched  *int `json:"matched,omitempty"`
}

// NewItemCollection creates a new ItemCollection with the given features.
func NewItemCollection(features []map[string]any) *ItemCollection {
	if features == nil {
		features = make([]map[string]any, 0)
	}
	return &ItemCollection{
		Type:           "FeatureCollection",
		Features:       features,
		Links:          make([]*gostac.Link, 0),
		NumberReturned: len(features),
	}
}

// AddLink adds a link to the ItemCollection.
func (ic *ItemCollection) AddLink(rel, href, mediaType string) {
	ic.Links = append(ic.Links, &gostac.Link{
		Rel:  rel,
		Href: href,
		Type: mediaType,
	})
}

// SetContext sets the context metadata for the ItemCollection.
func (ic *ItemCollection) SetContext(returned, limit int, matched *int) {
	ic.Context = &Context{
		Returned: returned,
		Limit:    limit,
		Matched:  matched,
	}
	if matched != nil {
		ic.NumberMatched = matched
	}
}

// CollectionsList represents a list of collections response.
type CollectionsList struct {
	Collections []*gostac.Collection `json:"collections"`
	Links       []*gostac.Link       `json:"links"`
}

// NewCollectionsList creates a new CollectionsList.
func NewCollectionsList(collections []*gostac.Collection) *CollectionsList {
	if collections == nil {
		collections = make([]*gostac.Collection, 0)
	}
	return &CollectionsList{
		Collections: collections,
		Links:       make([]*gostac.Link, 0),
	}
}

// Conformance represents the conformance classes response.
type Conformance struct {
	ConformsTo []string `json:"conformsTo"`
}

// LandingPage represents the STAC API landing page response.
type LandingPage struct {
	Type        string         `json:"type"` // "Catalog"
	Id          string         `json:"id"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description"`
	StacVersion string         `json:"stac_version"`
	ConformsTo  []string       `json:"conformsTo,omitempty"`
	Links       []*gostac.Link `json:"links"`
}

// NewLandingPage creates a new landing page response.
func NewLandingPage(id, title, description, version string, conformsTo []string) *LandingPage {
	return &LandingPage{
		Type:        "Catalog",
		Id:          id,
		Title:       title,
		Description: description,
		StacVersion: version,
		ConformsTo:  conformsTo,
		Links:       make([]*gostac.Link, 0),
	}
}

// AddLink adds a link to the landing page.
func (lp *LandingPage) AddLink(rel, href, mediaType string) {
	lp.Links = append(lp.Links, &gostac.Link{
		Rel:  rel,
		Href: href,
		Type: mediaType,
	})
}

// Queryables is the JSON Schema document describing the properties a
// collection's items can be filtered on.
type Queryables struct {
	Schema               string                    `json:"$schema"`
	ID                   string                    `json:"$id"`
	Type                 string                    `json:"type"`
	Title                string                    `json:"title"`
	Properties           map[string]map[string]any `json:"properties"`
	AdditionalProperties bool                      `json:"additionalProperties"`
}

// Standard STAC conformance URIs
const (
	ConformanceCore           = "https://api.stacspec.org/v1.0.0/core"
	ConformanceOGCFeatures    = "https://api.stacspec.org/v1.0.0/ogcapi-features"
	ConformanceItemSearch     = "https://api.stacspec.org/v1.0.0/item-search"
	ConformanceFilter         = "https://api.stacspec.org/v1.0.0/item-search#filter"
	ConformanceSort           = "https://api.stacspec.org/v1.0.0/item-search#sort"
	ConformanceFields         = "https://api.stacspec.org/v1.0.0/item-search#fields"
	ConformanceOGCFeatCore    = "http://www.opengis.net/spec/ogcapi-features-1/1.0/conf/core"
	ConformanceOGCFeatGeoJSON = "http://www.opengis.net/spec/ogcapi-features-1/1.0/conf/geojson"
	ConformanceCQL2Text       = "http://www.opengis.net/spec/cql2/1.0/conf/cql2-text"
	ConformanceCQL2JSON       = "http://www.opengis.net/spec/cql2/1.0/conf/cql2-json"
)

// DefaultConformance returns the conformance classes the service implements.
func DefaultConformance() []string {
	return []string{
		ConformanceCore,
		ConformanceOGCFeatures,
		ConformanceItemSearch,
		ConformanceFilter,
		ConformanceSort,
		ConformanceFields,
		ConformanceOGCFeatCore,
		ConformanceOGCFeatGeoJSON,
		ConformanceCQL2Text,
		ConformanceCQL2JSON,
	}
}
