// Package component holds the dashboard's presentation components. A
// Registration pairs a tag with a template and a controller factory; every
// Mount builds a fresh controller, so two mounted instances of the same tag
// never share state.
package component

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrUnknownTag   = errors.New("component: unknown tag")
	ErrDuplicateTag = errors.New("component: duplicate tag")
)

// Controller backs one mounted component.
type Controller interface {
	Model() any
	Close()
}

// Observer is implemented by controllers whose model changes after mount.
type Observer interface {
	Done() <-chan struct{}
	Watch(fn func()) (cancel func())
}

// ControllerFactory builds the controller for a single mount.
type ControllerFactory func(ctx context.Context) (Controller, error)

type Registration struct {
	Tag           string
	Template      *template.Template
	NewController ControllerFactory
	// Bindings maps attribute names to parent values. No stock component
	// declares any.
	Bindings map[string]string
}

// Registry holds registrations by tag. It is written during assembly and
// read concurrently afterwards.
type Registry struct {
	mu     sync.RWMutex
	regs   map[string]Registration
	logger zerolog.Logger
}

func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		regs:   make(map[string]Registration),
		logger: logger,
	}
}

// Register adds reg. A tag can only be registered once.
func (r *Registry) Register(reg Registration) error {
	if reg.Tag == "" {
		return fmt.Errorf("component: registration has no tag")
	}
	if reg.Template == nil {
		return fmt.Errorf("component %q: template is required", reg.Tag)
	}
	if reg.NewController == nil {
		return fmt.Errorf("component %q: controller factory is required", reg.Tag)
	}
	if reg.Bindings == nil {
		reg.Bindings = map[string]string{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.regs[reg.Tag]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTag, reg.Tag)
	}
	r.regs[reg.Tag] = reg
	return nil
}

func (r *Registry) Lookup(tag string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.regs[tag]
	return reg, ok
}

// Tags returns the registered tags in sorted order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.regs))
	for tag := range r.regs {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Mount instantiates the component registered under tag.
func (r *Registry) Mount(ctx context.Context, tag string) (*Instance, error) {
	reg, ok := r.Lookup(tag)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTag, tag)
	}

	ctrl, err := reg.NewController(ctx)
	if err != nil {
		return nil, fmt.Errorf("mount %s: %w", tag, err)
	}

	inst := &Instance{
		ID:   uuid.New().String(),
		Tag:  tag,
		reg:  reg,
		ctrl: ctrl,
	}
	r.logger.Debug().Str("tag", tag).Str("mount_id", inst.ID).Msg("component mounted")
	return inst, nil
}

// Instance is one mounted component.
type Instance struct {
	ID  string
	Tag string

	reg       Registration
	ctrl      Controller
	unmountMu sync.Mutex
	unmounted bool
}

// RenderData is what component templates execute against.
type RenderData struct {
	ID    string
	Tag   string
	Model any
}

func (i *Instance) Controller() Controller {
	return i.ctrl
}

func (i *Instance) Model() any {
	return i.ctrl.Model()
}

// Render writes the component's markup for its current model. Nothing is
// written when the template fails.
func (i *Instance) Render(w io.Writer) error {
	var buf bytes.Buffer
	data := RenderData{ID: i.ID, Tag: i.Tag, Model: i.ctrl.Model()}
	if err := i.reg.Template.Execute(&buf, data); err != nil {
		return fmt.Errorf("render %s: %w", i.Tag, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// HTML renders the component into a template.HTML for embedding in a page.
func (i *Instance) HTML() (template.HTML, error) {
	var buf bytes.Buffer
	if err := i.Render(&buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// Subscribe calls fn after every model change. Static components never
// change, so the returned cancel is a no-op for them.
func (i *Instance) Subscribe(fn func()) (cancel func()) {
	if obs, ok := i.ctrl.(Observer); ok {
		return obs.Watch(fn)
	}
	return func() {}
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Settled is closed once the component's model stops changing.
func (i *Instance) Settled() <-chan struct{} {
	if obs, ok := i.ctrl.(Observer); ok {
		return obs.Done()
	}
	return closedChan
}

// Unmount releases the controller. It is safe to call more than once.
func (i *Instance) Unmount() {
	i.unmountMu.Lock()
	defer i.unmountMu.Unlock()
	if i.unmounted {
		return
	}
	i.unmounted = true
	i.ctrl.Close()
}

func (i *Instance) Unmounted() bool {
	i.unmountMu.Lock()
	defer i.unmountMu.Unlock()
	return i.unmounted
}

type activePathKey struct{}

// WithActivePath records the canonical route path a component is mounted
// for. Chrome components use it to mark the active link.
func WithActivePath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, activePathKey{}, path)
}

func ActivePathFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(activePathKey{}).(string); ok {
		return v
	}
	return ""
}
