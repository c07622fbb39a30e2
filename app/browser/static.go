package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var _ Page = (*StaticPage)(nil)

// ErrClosed is returned by a StaticPage after Close.
var ErrClosed = errors.New("page closed")

// SnapshotFunc renders the HTML of a page after the given number of scrolls.
type SnapshotFunc func(scrolls int) string

// SubmitFunc is called when text is typed into a field with submit set. A
// non-empty return value is navigated to.
type SubmitFunc func(field, text string) string

// StaticPage is a Page over in-memory HTML, queried with goquery. Each
// registered URL renders a snapshot per scroll step, which models timelines
// that load more posts as they are scrolled.
type StaticPage struct {
	mu    *sync.Mutex
	site  *staticSite
	url   string
	doc   *goquery.Document
	step  int
	isTab bool

	closed bool
}

type staticSite struct {
	routes   map[string]SnapshotFunc
	cookies  []Cookie
	onSubmit SubmitFunc

	navigations []string
	typed       []string
	scrolls     int
	tabsOpened  int
	tabsClosed  int
}

type staticElement struct {
	sel *goquery.Selection
}

func (e *staticElement) Key() string {
	return fmt.Sprintf("%p", e.sel.Get(0))
}

func NewStaticPage() *StaticPage {
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(""))
	return &StaticPage{
		mu:   &sync.Mutex{},
		site: &staticSite{routes: make(map[string]SnapshotFunc)},
		doc:  doc,
	}
}

// AddPage registers url with one snapshot per scroll step; scrolling past the
// last snapshot keeps showing it.
func (p *StaticPage) AddPage(url string, snapshots ...string) {
	p.AddGenerator(url, func(scrolls int) string {
		if len(snapshots) == 0 {
			return ""
		}
		return snapshots[min(scrolls, len(snapshots)-1)]
	})
}

func (p *StaticPage) AddGenerator(url string, fn SnapshotFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.site.routes[url] = fn
}

func (p *StaticPage) OnSubmit(fn SubmitFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.site.onSubmit = fn
}

// Navigations lists every URL navigated to, across all tabs.
func (p *StaticPage) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.site.navigations...)
}

// Typed lists the text typed into fields as "field=text".
func (p *StaticPage) Typed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.site.typed...)
}

func (p *StaticPage) Scrolls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.site.scrolls
}

// Tabs returns how many secondary tabs were opened and closed.
func (p *StaticPage) Tabs() (opened, closed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.site.tabsOpened, p.site.tabsClosed
}

func (p *StaticPage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.site.navigations = append(p.site.navigations, url)
	p.url = url
	p.step = 0
	return p.render()
}

// render must be called with mu held.
func (p *StaticPage) render() error {
	var html string
	if fn, ok := p.site.routes[p.url]; ok {
		html = fn(p.step)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("failed to parse page %s: %w", p.url, err)
	}
	p.doc = doc
	return nil
}

func (p *StaticPage) FindAll(ctx context.Context, selector string) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	return wrapSelection(p.doc.Find(selector)), nil
}

func (p *StaticPage) FindIn(ctx context.Context, scope Element, selector string) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parent, ok := scope.(*staticElement)
	if !ok {
		return nil, fmt.Errorf("element %T does not belong to this page", scope)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	return wrapSelection(parent.sel.Find(selector)), nil
}

// WaitFor does not block: static content is either there or never will be.
func (p *StaticPage) WaitFor(ctx context.Context, selector string, timeout time.Duration) (Element, error) {
	found, err := p.FindAll(ctx, selector)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s after %s", ErrNotFound, selector, timeout)
	}
	return found[0], nil
}

func (p *StaticPage) Attribute(_ context.Context, el Element, name string) (string, bool) {
	e, ok := el.(*staticElement)
	if !ok {
		return "", false
	}
	return e.sel.Attr(name)
}

func (p *StaticPage) Value(_ context.Context, el Element) (string, error) {
	e, ok := el.(*staticElement)
	if !ok {
		return "", fmt.Errorf("element %T does not belong to this page", el)
	}
	if goquery.NodeName(e.sel) == "textarea" {
		return e.sel.Text(), nil
	}
	value, _ := e.sel.Attr("value")
	return value, nil
}

func (p *StaticPage) Type(ctx context.Context, el Element, text string, submit bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e, ok := el.(*staticElement)
	if !ok {
		return fmt.Errorf("element %T does not belong to this page", el)
	}
	field, _ := e.sel.Attr("name")

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.site.typed = append(p.site.typed, field+"="+text)

	if submit && p.site.onSubmit != nil {
		if next := p.site.onSubmit(field, text); next != "" {
			p.site.navigations = append(p.site.navigations, next)
			p.url = next
			p.step = 0
			return p.render()
		}
	}
	return nil
}

func (p *StaticPage) ScrollToBottom(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.site.scrolls++
	p.step++
	return p.render()
}

func (p *StaticPage) NewTab(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	p.site.tabsOpened++

	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(""))
	return &StaticPage{mu: p.mu, site: p.site, doc: doc, isTab: true}, nil
}

func (p *StaticPage) Cookies(ctx context.Context) ([]Cookie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Cookie(nil), p.site.cookies...), nil
}

func (p *StaticPage) SetCookies(ctx context.Context, cookies []Cookie) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.site.cookies = append(p.site.cookies, cookies...)
	return nil
}

func (p *StaticPage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.isTab {
		p.site.tabsClosed++
	}
	return nil
}

func wrapSelection(sel *goquery.Selection) []Element {
	elements := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		elements = append(elements, &staticElement{sel: s})
	})
	return elements
}
