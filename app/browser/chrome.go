package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

var _ Page = (*Chrome)(nil)

type ChromeOptions struct {
	ExecPath  string
	Headless  bool
	UserAgent string
}

// Chrome drives one tab of a Chrome/Chromium instance through the DevTools
// protocol. The tab returned by Launch owns the browser process; tabs opened
// with NewTab share it.
type Chrome struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

type chromeElement struct {
	node *cdp.Node
}

func (e *chromeElement) Key() string {
	return strconv.FormatInt(int64(e.node.BackendNodeID), 10)
}

// Launch starts a browser. The caller must Close it on every exit path.
func Launch(opts ChromeOptions) (*Chrome, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1920, 1080),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	// The first Run starts the browser process.
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	slog.Debug("Browser started", "headless", opts.Headless, "exec_path", opts.ExecPath)

	return &Chrome{ctx: ctx, cancel: cancel, allocCancel: allocCancel}, nil
}

// run executes actions on the tab while honouring cancellation and deadline
// of the caller's ctx.
func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(c.ctx)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	if err := c.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (c *Chrome) FindAll(ctx context.Context, selector string) ([]Element, error) {
	var nodes []*cdp.Node
	if err := c.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("failed to query %q: %w", selector, err)
	}
	return wrapNodes(nodes), nil
}

func (c *Chrome) FindIn(ctx context.Context, scope Element, selector string) ([]Element, error) {
	parent, ok := scope.(*chromeElement)
	if !ok {
		return nil, fmt.Errorf("element %T does not belong to this browser", scope)
	}

	var nodes []*cdp.Node
	err := c.run(ctx, chromedp.Nodes(selector, &nodes,
		chromedp.ByQueryAll, chromedp.FromNode(parent.node), chromedp.AtLeast(0)))
	if err != nil {
		return nil, fmt.Errorf("failed to query %q: %w", selector, err)
	}
	return wrapNodes(nodes), nil
}

func (c *Chrome) WaitFor(ctx context.Context, selector string, timeout time.Duration) (Element, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var nodes []*cdp.Node
	err := c.run(waitCtx, chromedp.Nodes(selector, &nodes, chromedp.ByQuery))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s after %s", ErrNotFound, selector, timeout)
		}
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	return &chromeElement{node: nodes[0]}, nil
}

func (c *Chrome) Attribute(_ context.Context, el Element, name string) (string, bool) {
	e, ok := el.(*chromeElement)
	if !ok {
		return "", false
	}
	return e.node.Attribute(name)
}

func (c *Chrome) Value(ctx context.Context, el Element) (string, error) {
	e, ok := el.(*chromeElement)
	if !ok {
		return "", fmt.Errorf("element %T does not belong to this browser", el)
	}

	var value string
	if err := c.run(ctx, chromedp.Value([]cdp.NodeID{e.node.NodeID}, &value, chromedp.ByNodeID)); err != nil {
		return "", fmt.Errorf("failed to read value: %w", err)
	}
	return value, nil
}

func (c *Chrome) Type(ctx context.Context, el Element, text string, submit bool) error {
	e, ok := el.(*chromeElement)
	if !ok {
		return fmt.Errorf("element %T does not belong to this browser", el)
	}

	ids := []cdp.NodeID{e.node.NodeID}
	actions := []chromedp.Action{chromedp.SendKeys(ids, text, chromedp.ByNodeID)}
	if submit {
		actions = append(actions, chromedp.SendKeys(ids, kb.Enter, chromedp.ByNodeID))
	}

	if err := c.run(ctx, actions...); err != nil {
		return fmt.Errorf("failed to type into element: %w", err)
	}
	return nil
}

func (c *Chrome) ScrollToBottom(ctx context.Context) error {
	if err := c.run(ctx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight);`, nil)); err != nil {
		return fmt.Errorf("failed to scroll: %w", err)
	}
	return nil
}

func (c *Chrome) NewTab(ctx context.Context) (Page, error) {
	tabCtx, cancel := chromedp.NewContext(c.ctx)

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	return &Chrome{ctx: tabCtx, cancel: cancel}, nil
}

func (c *Chrome) Cookies(ctx context.Context) ([]Cookie, error) {
	var raw []*network.Cookie
	err := c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}

	cookies := make([]Cookie, 0, len(raw))
	for _, rc := range raw {
		cookies = append(cookies, Cookie{
			Name:     rc.Name,
			Value:    rc.Value,
			Domain:   rc.Domain,
			Path:     rc.Path,
			Expires:  rc.Expires,
			HTTPOnly: rc.HTTPOnly,
			Secure:   rc.Secure,
			SameSite: string(rc.SameSite),
		})
	}
	return cookies, nil
}

func (c *Chrome) SetCookies(ctx context.Context, cookies []Cookie) error {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, ck := range cookies {
		param := &network.CookieParam{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			Secure:   ck.Secure,
			HTTPOnly: ck.HTTPOnly,
		}
		if ck.Expires > 0 {
			expires := cdp.TimeSinceEpoch(time.Unix(int64(ck.Expires), 0))
			param.Expires = &expires
		}
		if ck.SameSite != "" {
			param.SameSite = network.CookieSameSite(ck.SameSite)
		}
		params = append(params, param)
	}

	err := c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookies(params).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("failed to set cookies: %w", err)
	}
	return nil
}

// Close closes the tab; for the tab returned by Launch it also stops the
// browser process.
func (c *Chrome) Close() error {
	err := chromedp.Cancel(c.ctx)
	c.cancel()
	if c.allocCancel != nil {
		c.allocCancel()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

func wrapNodes(nodes []*cdp.Node) []Element {
	elements := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		elements = append(elements, &chromeElement{node: n})
	}
	return elements
}
