// Package view turns one location-wise count resource into display-ready
// state. A Controller issues exactly one fetch, at construction, and moves
// Idle → Loading → Loaded|Failed. It never goes back; a new activation needs
// a new Controller.
package view

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/platform/lbacclient"
	"github.com/openmrs/openmrs-module-locationbasedaccess/pkg/counts"
)

// Fetcher is the Data Client surface a Controller needs.
type Fetcher interface {
	FetchCounts(ctx context.Context, resourcePath string) (counts.Counts, error)
}

// Resource names a count endpoint and the series label it is charted under.
type Resource struct {
	Name   string
	Path   string
	Series string
}

var (
	Patients   = Resource{Name: "patients", Path: lbacclient.PatientsCountPath, Series: "Patients"}
	Users      = Resource{Name: "users", Path: lbacclient.UsersCountPath, Series: "Users"}
	Encounters = Resource{Name: "encounters", Path: lbacclient.EncountersCountPath, Series: "Encounters"}
)

// Controller owns one State. Only its own fetch goroutine writes to it.
type Controller struct {
	id       string
	resource Resource
	logger   zerolog.Logger
	cancel   context.CancelFunc

	mu        sync.Mutex
	state     State
	closed    bool
	listeners map[int]func(State)
	nextID    int

	done     chan struct{}
	doneOnce sync.Once
}

// New starts loading res through fetcher. The fetch runs on its own
// goroutine under a context derived from ctx; Close cancels it.
func New(ctx context.Context, fetcher Fetcher, res Resource, logger zerolog.Logger) *Controller {
	fetchCtx, cancel := context.WithCancel(ctx)

	c := &Controller{
		id:       uuid.New().String(),
		resource: res,
		cancel:   cancel,
		state: State{
			Labels: []string{},
			Series: []string{res.Series},
			Values: []float64{},
			Status: Loading,
		},
		listeners: make(map[int]func(State)),
		done:      make(chan struct{}),
	}
	c.logger = logger.With().Str("view", res.Name).Str("view_id", c.id).Logger()

	go c.load(fetchCtx, fetcher)
	return c
}

func (c *Controller) ID() string {
	return c.id
}

func (c *Controller) Resource() Resource {
	return c.resource
}

// Snapshot returns a deep copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Done is closed once the fetch has settled or the controller was closed.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until Done or ctx expires.
func (c *Controller) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers fn to receive every state change. fn runs on the fetch
// goroutine, outside the controller's lock.
func (c *Controller) Subscribe(fn func(State)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return func() {}
	}
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Close detaches the controller: the in-flight fetch is cancelled and any
// result that still arrives is discarded. Close is idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.listeners = nil
	c.mu.Unlock()

	c.cancel()
	c.markDone()
}

// Closed reports whether Close was called.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Controller) load(ctx context.Context, fetcher Fetcher) {
	defer c.markDone()

	result, err := c.fetch(ctx, fetcher)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Debug().Msg("discarding result for closed view")
		return
	}
	if err != nil {
		c.state.Status = Failed
		c.state.Error = err.Error()
	} else {
		for _, item := range result {
			c.state.Labels = append(c.state.Labels, item.Label)
			c.state.Values = append(c.state.Values, item.Value)
		}
		c.state.Status = Loaded
	}
	snapshot := c.state.clone()
	listeners := make([]func(State), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	if err != nil {
		evt := c.logger.Warn().Err(err).Str("resource", c.resource.Path)
		if code := lbacclient.StatusCode(err); code != 0 {
			evt = evt.Int("status", code)
		}
		evt.Msg("view load failed")
	}

	for _, fn := range listeners {
		fn(snapshot)
	}
}

// fetch calls the fetcher once and turns a panic into an error.
func (c *Controller) fetch(ctx context.Context, fetcher Fetcher) (result counts.Counts, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetch %s panicked: %v", c.resource.Path, r)
		}
	}()
	return fetcher.FetchCounts(ctx, c.resource.Path)
}

func (c *Controller) markDone() {
	c.doneOnce.Do(func() { close(c.done) })
}
