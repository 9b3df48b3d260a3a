package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/chatapp/gateway-server-go/internal/redis"
)

const mirrorTimeout = 2 * time.Second

// Registry tracks which users have live sessions. A user is online while at
// least one of their sessions is registered; closing one of several devices
// does not take the user offline.
//
// The registry is the single source of truth for this process. A best-effort
// mirror of the online user-id set is kept in redis for the CRUD layer;
// multi-process deployments would need to promote that mirror to the source
// of truth, which is out of scope here.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]map[*Session]struct{}
	mirror  *redisclient.Client
}

// NewRegistry creates a presence registry. mirror may be nil, in which case
// no redis mirroring happens.
func NewRegistry(mirror *redisclient.Client) *Registry {
	return &Registry{
		entries: make(map[string]map[*Session]struct{}),
		mirror:  mirror,
	}
}

func (r *Registry) MarkOnline(userID string, sess *Session) {
	r.mu.Lock()
	if r.entries[userID] == nil {
		r.entries[userID] = make(map[*Session]struct{})
	}
	r.entries[userID][sess] = struct{}{}
	sessionCount := len(r.entries[userID])
	r.mu.Unlock()

	log.Debug().
		Str("userId", userID).
		Str("sessionId", sess.ID).
		Int("sessionCount", sessionCount).
		Msg("session online")

	r.mirrorAdd(userID)
}

// MarkOffline removes one session and reports whether the user went fully
// offline, i.e. this was their last session. Safe to call for sessions that
// were never registered.
func (r *Registry) MarkOffline(userID string, sess *Session) bool {
	r.mu.Lock()
	sessions, ok := r.entries[userID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if _, ok := sessions[sess]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(sessions, sess)
	wentOffline := len(sessions) == 0
	if wentOffline {
		delete(r.entries, userID)
	}
	remaining := len(sessions)
	r.mu.Unlock()

	log.Debug().
		Str("userId", userID).
		Str("sessionId", sess.ID).
		Int("sessionCount", remaining).
		Msg("session offline")

	if wentOffline {
		r.mirrorRemove(userID)
	}
	return wentOffline
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries[userID]) > 0
}

// OnlineSubset returns the ids from userIDs that currently have at least one
// live session, preserving input order.
func (r *Registry) OnlineSubset(userIDs []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	online := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if len(r.entries[id]) > 0 {
			online = append(online, id)
		}
	}
	return online
}

func (r *Registry) SessionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries[userID])
}

func (r *Registry) OnlineUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) mirrorAdd(userID string) {
	if r.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()

	if err := r.mirror.SAdd(ctx, redisclient.OnlineUsersKey, userID).Err(); err != nil {
		log.Warn().Err(err).Str("userId", userID).Msg("presence mirror add failed")
	}
}

func (r *Registry) mirrorRemove(userID string) {
	if r.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()

	if err := r.mirror.SRem(ctx, redisclient.OnlineUsersKey, userID).Err(); err != nil {
		log.Warn().Err(err).Str("userId", userID).Msg("presence mirror remove failed")
	}
}
