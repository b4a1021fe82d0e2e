// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

// Package convo persists chat participants and conversation transcripts in
// the document store.
package convo

import (
	"context"
	"errors"
	"sync"

	"github.com/mnemo-dev/mnemo/internal/store"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// ActorNamespace is the reserved document namespace for actor state.
const ActorNamespace = "actors"

// actorKindField carries the registry tag inside a persisted actor document.
const actorKindField = "type"

// Actor is a persistent chat participant. Implementations expose their state
// as a flat document so it can be stored and restored without the package
// knowing their concrete type.
type Actor interface {
	// Kind is the registry tag this actor was constructed from.
	Kind() string

	// State returns the actor's persistable fields.
	State() map[string]any

	// SetState restores fields previously returned by State.
	SetState(fields map[string]any) error
}

// Constructor builds a zero-value actor of one kind, ready for SetState.
type Constructor func() Actor

// Registry maps kind tags to constructors. Populate it at startup; loading a
// document with an unregistered tag is a defined error, not a reflective
// lookup.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]Constructor
}

func NewRegistry() *Registry {
	return &Registry{kinds: map[string]Constructor{}}
}

func (r *Registry) Register(kind string, fn Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[kind] = fn
}

// New constructs an actor of the given kind.
func (r *Registry) New(kind string) (Actor, error) {
	r.mu.RLock()
	fn, ok := r.kinds[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, mnemoerr.New(mnemoerr.CodeConvoActorKindNotFound, "unknown actor kind",
			mnemoerr.Field("kind", kind))
	}
	return fn(), nil
}

// Actors stores and restores actor state.
type Actors struct {
	docs     store.DocumentStore
	registry *Registry
}

func NewActors(docs store.DocumentStore, registry *Registry) *Actors {
	return &Actors{docs: docs, registry: registry}
}

// Save persists an actor. An empty id inserts a new document and returns its
// generated id; a non-empty id overwrites the existing document.
func (a *Actors) Save(ctx context.Context, id string, actor Actor) (string, error) {
	fields := map[string]any{actorKindField: actor.Kind()}
	for key, value := range actor.State() {
		if key == actorKindField {
			continue
		}
		fields[key] = value
	}

	if id == "" {
		return a.docs.InsertOne(ctx, ActorNamespace, fields)
	}

	if err := a.docs.ReplaceByID(ctx, ActorNamespace, id, fields); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", mnemoerr.Wrap(err, mnemoerr.CodeConvoActorNotFound, "actor not found",
				mnemoerr.Field("actor_id", id))
		}
		return "", err
	}
	return id, nil
}

// Load restores the actor with the given id, constructing it through the
// registry by its stored kind tag.
func (a *Actors) Load(ctx context.Context, id string) (Actor, error) {
	doc, err := a.docs.FindByID(ctx, ActorNamespace, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, mnemoerr.Wrap(err, mnemoerr.CodeConvoActorNotFound, "actor not found",
				mnemoerr.Field("actor_id", id))
		}
		return nil, err
	}

	kind, _ := doc.Fields[actorKindField].(string)
	actor, err := a.registry.New(kind)
	if err != nil {
		return nil, err
	}

	state := make(map[string]any, len(doc.Fields))
	for key, value := range doc.Fields {
		if key == actorKindField {
			continue
		}
		state[key] = value
	}
	if err := actor.SetState(state); err != nil {
		return nil, err
	}
	return actor, nil
}
