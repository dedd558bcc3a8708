package platform

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// page is the collection envelope used by the paginated list endpoints.
type page[T any] struct {
	Items []T `json:"items"`
	Links struct {
		Next string `json:"next"`
	} `json:"_links"`
}

// fetchAll materializes a paginated collection, following the envelope's
// opaque next link until it is absent. Eager on purpose: downstream joins
// need the full set. Item order is preserved as received.
func fetchAll[T any](ctx context.Context, c *Client, sess *Session, path string, query url.Values) ([]T, error) {
	var items []T
	nextPath, nextQuery := path, query
	for {
		var current page[T]
		if err := c.do(ctx, sess, http.MethodGet, nextPath, nextQuery, "", nil, &current); err != nil {
			return nil, err
		}
		items = append(items, current.Items...)

		next := strings.TrimSpace(current.Links.Next)
		if next == "" {
			return items, nil
		}
		// The first page's query is consumed; the link carries the cursor.
		nextPath, nextQuery = resolveNextLink(path, next)
	}
}

// resolveNextLink interprets a next link relative to the collection path.
// Links arrive either as a bare query string or as a relative URL.
func resolveNextLink(path, next string) (string, url.Values) {
	if strings.HasPrefix(next, "?") {
		if values, err := url.ParseQuery(strings.TrimPrefix(next, "?")); err == nil {
			return path, values
		}
		return path, nil
	}

	parsed, err := url.Parse(next)
	if err != nil {
		return path, nil
	}
	target := parsed.Path
	if target == "" {
		target = path
	}
	return target, parsed.Query()
}
