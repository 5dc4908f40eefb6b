package collab

import (
	"fmt"
	"sync"
)

// Table names the persisted entity a change notification is about.
type Table string

const (
	TableProjects    Table = "projects"
	TableMembers     Table = "project_members"
	TableInvitations Table = "project_invitations"
)

// EventType is the kind of row change.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Event is one change notification scoped to a project.
type Event struct {
	Table     Table     `json:"table"`
	EventType EventType `json:"eventType"`
	ProjectID string    `json:"projectId"`
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s %s", e.EventType, e.Table, e.ProjectID)
}

// ReloadsProject reports whether e must discard the local graph: the
// project row itself changed or went away.
func (e Event) ReloadsProject() bool {
	return e.Table == TableProjects && (e.EventType == EventUpdate || e.EventType == EventDelete)
}

// TouchesMembership reports whether e only affects members or invitations.
func (e Event) TouchesMembership() bool {
	return e.Table == TableMembers || e.Table == TableInvitations
}

// Subscription is an open notification channel. Unsubscribe releases it;
// calling it again does nothing.
type Subscription interface {
	Unsubscribe()
}

// Notifier delivers change notifications for one project at a time. The
// callback may run on any goroutine.
type Notifier interface {
	Subscribe(projectID string, fn func(Event)) (Subscription, error)
}

// Publisher accepts change notifications from the persistence layer.
type Publisher interface {
	Publish(Event)
}

// Hub is an in-process Notifier and Publisher.
type Hub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[string]map[uint64]func(Event)
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[uint64]func(Event))}
}

// Subscribe implements Notifier.
func (h *Hub) Subscribe(projectID string, fn func(Event)) (Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	if h.subs[projectID] == nil {
		h.subs[projectID] = make(map[uint64]func(Event))
	}
	h.subs[projectID][id] = fn
	return &hubSubscription{hub: h, projectID: projectID, id: id}, nil
}

// Publish delivers e to every subscriber of e.ProjectID, synchronously, on
// the caller's goroutine.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	fns := make([]func(Event), 0, len(h.subs[e.ProjectID]))
	for _, fn := range h.subs[e.ProjectID] {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}

// Subscribers returns how many subscriptions are open for projectID.
func (h *Hub) Subscribers(projectID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[projectID])
}

func (h *Hub) remove(projectID string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[projectID], id)
	if len(h.subs[projectID]) == 0 {
		delete(h.subs, projectID)
	}
}

type hubSubscription struct {
	hub       *Hub
	projectID string
	id        uint64
	once      sync.Once
}

func (s *hubSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.remove(s.projectID, s.id)
	})
}
