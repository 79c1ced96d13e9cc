package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/component"
)

var ErrNavigatorClosed = errors.New("router: navigator closed")

// Mounter instantiates components by tag.
type Mounter interface {
	Mount(ctx context.Context, tag string) (*component.Instance, error)
}

// Page is the set of component instances mounted for one route activation.
type Page struct {
	Resolution
	Instances []*component.Instance
	MountedAt time.Time
}

// Instance returns the mounted instance with the given mount ID.
func (p *Page) Instance(id string) (*component.Instance, bool) {
	for _, inst := range p.Instances {
		if inst.ID == id {
			return inst, true
		}
	}
	return nil, false
}

// Tagged returns the first instance mounted for tag.
func (p *Page) Tagged(tag string) (*component.Instance, bool) {
	for _, inst := range p.Instances {
		if inst.Tag == tag {
			return inst, true
		}
	}
	return nil, false
}

// Wait blocks until every instance has settled or ctx is done. It reports
// whether all instances settled.
func (p *Page) Wait(ctx context.Context) bool {
	for _, inst := range p.Instances {
		select {
		case <-inst.Settled():
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func (p *Page) unmount() {
	for _, inst := range p.Instances {
		inst.Unmount()
	}
}

// Navigator owns the active page of one viewer session. It is the only
// place route changes happen.
type Navigator struct {
	router  *Router
	mounter Mounter
	logger  zerolog.Logger

	mu      sync.Mutex
	current *Page
	closed  bool
}

func NewNavigator(r *Router, m Mounter, logger zerolog.Logger) *Navigator {
	return &Navigator{router: r, mounter: m, logger: logger}
}

// Navigate activates the route for raw. The previous page's instances are
// unmounted first, then the new page's tags are mounted with fresh
// controllers. Mounted controllers outlive ctx's cancellation; they stop
// when unmounted.
func (n *Navigator) Navigate(ctx context.Context, raw string) (*Page, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, ErrNavigatorClosed
	}

	res := n.router.Resolve(raw)
	if n.current != nil {
		n.current.unmount()
		n.logger.Debug().
			Str("from", n.current.Route.Name).
			Str("to", res.Route.Name).
			Msg("route change")
		n.current = nil
	}

	mountCtx := component.WithActivePath(context.WithoutCancel(ctx), res.Canonical)
	page := &Page{Resolution: res, MountedAt: time.Now()}
	for _, tag := range res.Route.Page.Tags {
		inst, err := n.mounter.Mount(mountCtx, tag)
		if err != nil {
			page.unmount()
			return nil, fmt.Errorf("navigate to %s: %w", res.Route.Name, err)
		}
		page.Instances = append(page.Instances, inst)
	}

	n.current = page
	return page, nil
}

// Current returns the active page, or nil before the first navigation.
func (n *Navigator) Current() *Page {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// Close unmounts the active page. Further navigation fails.
func (n *Navigator) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	if n.current != nil {
		n.current.unmount()
		n.current = nil
	}
}
