// Package memory provides an in-process DocumentStore used by tests and the
// "memory" datastore mode. Documents round-trip through JSON on every read
// and write, which gives the same copy semantics callers get from a real
// document database: no document shares memory with the caller.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	registrystore "github.com/metanexus/metadata-service/internal/registry/store"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "memory",
		Loader: func(ctx context.Context) (registrystore.DocumentStore, error) {
			return New(), nil
		},
	})
}

// Store is an in-memory DocumentStore.
type Store struct {
	mu    sync.RWMutex
	docs  map[string]map[string]map[string]any // collection -> id -> document
	order map[string][]string                  // collection -> insertion order
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		docs:  map[string]map[string]map[string]any{},
		order: map[string][]string{},
	}
}

func (s *Store) collection(name string) map[string]map[string]any {
	c, ok := s.docs[name]
	if !ok {
		c = map[string]map[string]any{}
		s.docs[name] = c
	}
	return c
}

func decodeInto(src any, out any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

func (s *Store) GetOne(ctx context.Context, collection string, id string, out any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[collection][id]
	if !ok {
		return &registrystore.NotFoundError{Resource: collection, ID: id}
	}
	return decodeInto(doc, out)
}

func (s *Store) GetMany(ctx context.Context, collection string, ids []string, out any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	docs := []map[string]any{}
	for _, id := range s.order[collection] {
		if !wanted[id] {
			continue
		}
		if doc, ok := s.docs[collection][id]; ok {
			docs = append(docs, doc)
		}
	}
	return decodeInto(docs, out)
}

func (s *Store) All(ctx context.Context, collection string, out any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := []map[string]any{}
	for _, id := range s.order[collection] {
		if doc, ok := s.docs[collection][id]; ok {
			docs = append(docs, doc)
		}
	}
	return decodeInto(docs, out)
}

func (s *Store) InsertOne(ctx context.Context, collection string, doc any) error {
	var asMap map[string]any
	if err := decodeInto(doc, &asMap); err != nil {
		return err
	}
	id, ok := asMap["_id"].(string)
	if !ok || id == "" {
		return &registrystore.ValidationError{Field: "_id", Message: "document is missing a string _id"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(collection)
	if _, exists := c[id]; exists {
		return &registrystore.ConflictError{Message: fmt.Sprintf("duplicate id %s in %s", id, collection)}
	}
	c[id] = asMap
	s.order[collection] = append(s.order[collection], id)
	return nil
}

func (s *Store) UpdateOne(ctx context.Context, collection string, id string, fields map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collection(collection)[id]
	if !ok {
		return false, nil
	}

	before, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("encode document: %w", err)
	}

	for path, value := range fields {
		// Round-trip the value so stored state never aliases caller memory.
		var copied any
		if err := decodeInto(value, &copied); err != nil {
			return false, err
		}
		setPath(doc, path, copied)
	}

	after, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("encode document: %w", err)
	}
	return string(before) != string(after), nil
}

// setPath assigns value at a dotted path, creating intermediate maps the way
// a $set on a dotted field path would.
func setPath(doc map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

func (s *Store) DeleteOne(ctx context.Context, collection string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(collection)
	if _, ok := c[id]; !ok {
		return &registrystore.NotFoundError{Resource: collection, ID: id}
	}
	delete(c, id)

	kept := s.order[collection][:0]
	for _, existing := range s.order[collection] {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	s.order[collection] = kept
	return nil
}

func (s *Store) Exists(ctx context.Context, collection string, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.docs[collection][id]
	return ok, nil
}

var _ registrystore.DocumentStore = (*Store)(nil)
