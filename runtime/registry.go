package runtime

import (
	"gigchat/contract"
	"sync"
)

type Set[T comparable] map[T]struct{}

type session struct {
	userID        int64
	sink          contract.EventSink
	conversations Set[int64]
}

// Registry maps live sessions to the conversations they listen to.
// A user may hold several sessions, each with its own sink.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session   // session id -> session
	members  map[int64]Set[string] // conversation id -> session ids
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*session),
		members:  make(map[int64]Set[string]),
	}
}

// GetSinksForConversation returns the sinks of every session subscribed to
// the conversation, nil when there is none.
func (r *Registry) GetSinksForConversation(conversationID int64) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.members[conversationID]
	if !ok {
		return nil
	}
	sinks := make([]contract.EventSink, 0, len(members))
	for sessionID := range members {
		if s, exists := r.sessions[sessionID]; exists {
			sinks = append(sinks, s.sink)
		}
	}
	return sinks
}

// Subscribe registers the session if needed and adds it to the conversation.
func (r *Registry) Subscribe(sessionID string, userID, conversationID int64, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		s = &session{userID: userID, sink: sink, conversations: make(Set[int64])}
		r.sessions[sessionID] = s
	}
	s.conversations[conversationID] = struct{}{}

	if _, ok := r.members[conversationID]; !ok {
		r.members[conversationID] = make(Set[string])
	}
	r.members[conversationID][sessionID] = struct{}{}
}

func (r *Registry) Unsubscribe(sessionID string, conversationID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribe(sessionID, conversationID)
}

// RemoveUser drops every session of userID from the conversation.
func (r *Registry) RemoveUser(conversationID, userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for sessionID := range r.members[conversationID] {
		if s, ok := r.sessions[sessionID]; ok && s.userID == userID {
			r.unsubscribe(sessionID, conversationID)
		}
	}
}

// Disconnect forgets a session and all its subscriptions.
func (r *Registry) Disconnect(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	for conversationID := range s.conversations {
		r.unsubscribe(sessionID, conversationID)
	}
	delete(r.sessions, sessionID)
}

// unsubscribe must be called with the lock held. Sessions stay registered
// until Disconnect, empty conversations are removed.
func (r *Registry) unsubscribe(sessionID string, conversationID int64) {
	if s, ok := r.sessions[sessionID]; ok {
		delete(s.conversations, conversationID)
	}
	if members, ok := r.members[conversationID]; ok {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(r.members, conversationID)
		}
	}
}
