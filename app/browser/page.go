package browser

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by WaitFor when no element matched before the timeout.
var ErrNotFound = errors.New("element not found")

// Element is a handle to a node on a page. Two elements with the same key
// refer to the same node.
type Element interface {
	Key() string
}

// Cookie is a browser cookie as persisted in the session record.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"` // seconds since epoch, 0 for session cookies
	HTTPOnly bool    `json:"http_only,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"same_site,omitempty"`
}

// Page is the browsing surface the harvester drives. Query methods tolerate
// selector misses: no match yields an empty result, never an error.
type Page interface {
	Navigate(ctx context.Context, url string) error

	// FindAll returns every element currently matching selector.
	FindAll(ctx context.Context, selector string) ([]Element, error)
	// FindIn returns the descendants of scope matching selector.
	FindIn(ctx context.Context, scope Element, selector string) ([]Element, error)
	// WaitFor blocks until selector matches or timeout elapses (ErrNotFound).
	WaitFor(ctx context.Context, selector string, timeout time.Duration) (Element, error)

	// Attribute returns a DOM attribute of el.
	Attribute(ctx context.Context, el Element, name string) (string, bool)
	// Value returns the current form value of an input or textarea.
	Value(ctx context.Context, el Element) (string, error)
	// Type sends text to el, followed by Enter when submit is set.
	Type(ctx context.Context, el Element, text string, submit bool) error

	ScrollToBottom(ctx context.Context) error

	// NewTab opens a secondary browsing context sharing the session.
	NewTab(ctx context.Context) (Page, error)

	Cookies(ctx context.Context) ([]Cookie, error)
	SetCookies(ctx context.Context, cookies []Cookie) error

	Close() error
}

// FindFirst tries each selector in order and returns the first match inside
// scope.
func FindFirst(ctx context.Context, page Page, scope Element, selectors []string) (Element, bool) {
	for _, selector := range selectors {
		found, err := page.FindIn(ctx, scope, selector)
		if err != nil || len(found) == 0 {
			continue
		}
		return found[0], true
	}
	return nil, false
}

// FindUnion returns the elements matching any of the selectors, each node
// at most once, in first-seen order.
func FindUnion(ctx context.Context, page Page, selectors []string) ([]Element, error) {
	var (
		union []Element
		seen  = make(map[string]bool)
		errs  []error
	)

	for _, selector := range selectors {
		found, err := page.FindAll(ctx, selector)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, el := range found {
			if seen[el.Key()] {
				continue
			}
			seen[el.Key()] = true
			union = append(union, el)
		}
	}

	if len(union) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return union, nil
}
