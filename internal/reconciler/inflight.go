package reconciler

import "sync"

// token identifies one in-flight remote mutation for an entity. When a newer
// mutation begins for the same entity the older token is superseded and its
// eventual confirmation or failure is ignored.
type token struct {
	mu         sync.Mutex
	superseded bool
}

func (t *token) supersede() {
	t.mu.Lock()
	t.superseded = true
	t.mu.Unlock()
}

// Superseded reports whether a newer mutation has taken over this entity.
func (t *token) Superseded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.superseded
}

// inflightTracker maps entity keys to their latest in-flight mutation token.
type inflightTracker struct {
	mu     sync.Mutex
	tokens map[string]*token
}

func newInflightTracker() *inflightTracker {
	return &inflightTracker{tokens: make(map[string]*token)}
}

// begin registers a new in-flight mutation for key, superseding any previous one.
func (t *inflightTracker) begin(key string) *token {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.tokens[key]; ok {
		prev.supersede()
	}
	tok := &token{}
	t.tokens[key] = tok
	return tok
}

// end clears the tracker entry if tok is still the latest for key.
func (t *inflightTracker) end(key string, tok *token) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tokens[key] == tok {
		delete(t.tokens, key)
	}
}
