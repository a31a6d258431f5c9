// Package characters tracks the authenticated characters known to this
// process and hands out their access tokens.
package characters

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/oauth2"

	"abyssrun/internal/esi"
)

// Character is one registered character.
type Character struct {
	ID    esi.CharacterID
	Name  string
	Token *oauth2.Token
}

// Registry is a mutex-guarded character table. Lookups are point
// reads; the lock is never held across network calls.
type Registry struct {
	mu    sync.Mutex
	chars map[esi.CharacterID]Character
}

func NewRegistry() *Registry {
	return &Registry{chars: make(map[esi.CharacterID]Character)}
}

// Put registers or replaces a character.
func (r *Registry) Put(c Character) {
	r.mu.Lock()
	r.chars[c.ID] = c
	r.mu.Unlock()
}

// Get returns one character.
func (r *Registry) Get(id esi.CharacterID) (Character, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chars[id]
	return c, ok
}

// All lists registered characters ordered by id.
func (r *Registry) All() []Character {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Character, 0, len(r.chars))
	for _, c := range r.chars {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AccessToken implements the pipeline's token source.
func (r *Registry) AccessToken(_ context.Context, id esi.CharacterID) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chars[id]
	if !ok {
		return "", fmt.Errorf("characters: %d not registered", id)
	}
	if c.Token == nil || c.Token.AccessToken == "" {
		return "", fmt.Errorf("characters: %d has no access token", id)
	}
	return c.Token.AccessToken, nil
}

// Verify resolves a raw token against the API and registers the
// character it belongs to.
func (r *Registry) Verify(ctx context.Context, api *esi.Client, token *oauth2.Token) (Character, error) {
	verified, err := api.VerifyCharacter(ctx, token.AccessToken)
	if err != nil {
		return Character{}, fmt.Errorf("characters: verify: %w", err)
	}
	c := Character{ID: verified.CharacterID, Name: verified.CharacterName, Token: token}
	r.Put(c)
	return c, nil
}
