package rest

import (
	"context"
	"net/http"
	"strings"
)

// Page is one page of a listing and the URL of the next, if any.
type Page[T any] struct {
	Items []T
	Next  string
}

// Paginate fetches firstURL and follows next links until a page has none,
// returning the items of every page in order. A next link equal to the
// page's own URL ends the walk.
func Paginate[T any](ctx context.Context, firstURL string, fetch func(ctx context.Context, url string) (Page[T], error)) ([]T, error) {
	var all []T
	current := firstURL
	for {
		page, err := fetch(ctx, current)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if page.Next == "" || page.Next == current {
			return all, nil
		}
		current = page.Next
	}
}

// NextLink returns the rel="next" target of an RFC 5988 Link header, or "".
func NextLink(h http.Header) string {
	for _, value := range h.Values("Link") {
		for _, link := range strings.Split(value, ",") {
			segments := strings.Split(link, ";")
			target := strings.TrimSpace(segments[0])
			if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
				continue
			}
			for _, param := range segments[1:] {
				key, val, ok := strings.Cut(strings.TrimSpace(param), "=")
				if !ok || !strings.EqualFold(strings.TrimSpace(key), "rel") {
					continue
				}
				for _, rel := range strings.Fields(strings.Trim(val, `"`)) {
					if strings.EqualFold(rel, "next") {
						return target[1 : len(target)-1]
					}
				}
			}
		}
	}
	return ""
}

// GetAll walks a paginated JSON array listing starting at path.
func GetAll[T any](ctx context.Context, c *Client, path, token string) ([]T, error) {
	return Paginate(ctx, path, func(ctx context.Context, u string) (Page[T], error) {
		var items []T
		header, err := c.Do(ctx, Request{Method: http.MethodGet, Path: u, Token: token}, &items)
		if err != nil {
			return Page[T]{}, err
		}
		return Page[T]{Items: items, Next: NextLink(header)}, nil
	})
}
