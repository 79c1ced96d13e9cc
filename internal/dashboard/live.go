package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/component"
	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/platform/websocket"
)

// watcher forwards one instance's changes to the hub while at least one
// live connection follows it.
type watcher struct {
	refs   int
	cancel func()
}

// liveUpdates streams ViewState changes of a mount on the session's current
// page. The current state is sent as soon as the socket opens.
func (m *Module) liveUpdates(c echo.Context) error {
	sess, ok := m.sessions.lookup(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no dashboard session")
	}
	page := sess.nav.Current()
	if page == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no active page")
	}
	inst, ok := page.Instance(c.Param("mount"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "mount is not on the current page")
	}

	allow := func(topic string) bool {
		cur := sess.nav.Current()
		if cur == nil {
			return false
		}
		_, ok := cur.Instance(topic)
		return ok
	}

	var (
		mu       sync.Mutex
		releases []func()
		closed   bool
	)
	follow := func(inst *component.Instance) {
		release := m.watch(inst)
		mu.Lock()
		if closed {
			mu.Unlock()
			release()
			return
		}
		releases = append(releases, release)
		mu.Unlock()
		m.publishState(inst)
	}
	// Topics subscribed over the socket are followed like the initial one.
	onSubscribe := func(topics []string) {
		cur := sess.nav.Current()
		if cur == nil {
			return
		}
		for _, topic := range topics {
			if other, ok := cur.Instance(topic); ok {
				follow(other)
			}
		}
	}

	client, err := m.live.Serve(c, []string{inst.ID}, allow, onSubscribe)
	if err != nil {
		// The upgrader has already answered the request.
		m.logger.Debug().Err(err).Str("mount_id", inst.ID).Msg("websocket upgrade")
		return nil
	}

	go func() {
		<-client.Done()
		mu.Lock()
		closed = true
		all := releases
		releases = nil
		mu.Unlock()
		for _, release := range all {
			release()
		}
	}()
	follow(inst)
	return nil
}

func (m *Module) watch(inst *component.Instance) (release func()) {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()

	w, ok := m.watchers[inst.ID]
	if !ok {
		w = &watcher{cancel: inst.Subscribe(func() { m.publishState(inst) })}
		m.watchers[inst.ID] = w
	}
	w.refs++

	var once sync.Once
	return func() {
		once.Do(func() {
			m.watchMu.Lock()
			defer m.watchMu.Unlock()
			w.refs--
			if w.refs == 0 {
				w.cancel()
				delete(m.watchers, inst.ID)
			}
		})
	}
}

func (m *Module) publishState(inst *component.Instance) {
	data, err := json.Marshal(inst.Model())
	if err != nil {
		m.logger.Error().Err(err).Str("mount_id", inst.ID).Msg("marshal view state")
		return
	}
	_ = m.Hub.Publish(context.Background(), websocket.Event{
		Type:  websocket.EventViewState,
		Topic: inst.ID,
		Tag:   inst.Tag,
		Data:  data,
	})
}

func (m *Module) watcherCount() int {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	return len(m.watchers)
}
