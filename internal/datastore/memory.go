package datastore

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory implements Datastore for tests and local development. All state is
// process-local; writes are atomic under a store-wide mutex, which gives
// UpdateOne its compare-and-swap semantics.
type Memory struct {
	mu   sync.RWMutex
	data map[string]*memCollection
}

type memCollection struct {
	order []string
	docs  map[string]Document
}

// NewMemory constructs an empty in-memory datastore with the core's unique
// indexes already in force.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]*memCollection)}
}

// Collection returns the named collection, creating it on first use.
func (m *Memory) Collection(name string) Collection {
	return &memoryCollection{store: m, name: name}
}

// NewID returns a fresh document id.
func (m *Memory) NewID() string { return uuid.NewString() }

// ValidID reports whether id is a well-formed document id.
func (m *Memory) ValidID(id string) bool {
	return uuid.Validate(id) == nil
}

func (m *Memory) collection(name string) *memCollection {
	c, ok := m.data[name]
	if !ok {
		c = &memCollection{docs: make(map[string]Document)}
		m.data[name] = c
	}
	return c
}

type memoryCollection struct {
	store *Memory
	name  string
}

func (c *memoryCollection) FindOne(_ context.Context, filter Filter) (Document, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	col := c.store.collection(c.name)
	for _, id := range col.order {
		if matchesFilter(col.docs[id], filter) {
			return cloneDoc(col.docs[id]), nil
		}
	}
	return nil, ErrNotFound
}

func (c *memoryCollection) FindByID(_ context.Context, id string) (Document, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	doc, ok := c.store.collection(c.name).docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDoc(doc), nil
}

func (c *memoryCollection) Find(_ context.Context, filter Filter, opts FindOptions) ([]Document, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	col := c.store.collection(c.name)
	var out []Document
	for _, id := range col.order {
		if matchesFilter(col.docs[id], filter) {
			out = append(out, cloneDoc(col.docs[id]))
		}
	}

	if opts.SortBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			cmp := compareValues(out[i][opts.SortBy], out[j][opts.SortBy])
			if opts.Desc {
				return cmp > 0
			}
			return cmp < 0
		})
	}

	if opts.Skip > 0 {
		if opts.Skip >= len(out) {
			return nil, nil
		}
		out = out[opts.Skip:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (c *memoryCollection) Insert(_ context.Context, doc Document) (string, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	stored := cloneDoc(doc)
	id, _ := stored["_id"].(string)
	if id == "" {
		id = uuid.NewString()
		stored["_id"] = id
	}

	col := c.store.collection(c.name)
	if _, exists := col.docs[id]; exists {
		return "", ErrConflict
	}
	if c.uniqueViolatedLocked(stored, id) {
		return "", ErrConflict
	}

	col.docs[id] = stored
	col.order = append(col.order, id)
	return id, nil
}

func (c *memoryCollection) UpdateByID(_ context.Context, id string, set Fields) (Document, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	col := c.store.collection(c.name)
	doc, ok := col.docs[id]
	if !ok {
		return nil, ErrNotFound
	}

	updated := cloneDoc(doc)
	for k, v := range set {
		updated[k] = cloneValue(v)
	}
	if c.uniqueViolatedLocked(updated, id) {
		return nil, ErrConflict
	}

	col.docs[id] = updated
	return cloneDoc(updated), nil
}

func (c *memoryCollection) UpdateOne(_ context.Context, filter Filter, set Fields) (bool, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	col := c.store.collection(c.name)
	for _, id := range col.order {
		if !matchesFilter(col.docs[id], filter) {
			continue
		}

		updated := cloneDoc(col.docs[id])
		for k, v := range set {
			updated[k] = cloneValue(v)
		}
		if c.uniqueViolatedLocked(updated, id) {
			return false, ErrConflict
		}
		col.docs[id] = updated
		return true, nil
	}
	return false, nil
}

func (c *memoryCollection) DeleteByID(_ context.Context, id string) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	col := c.store.collection(c.name)
	if _, ok := col.docs[id]; !ok {
		return ErrNotFound
	}
	delete(col.docs, id)
	for i, existing := range col.order {
		if existing == id {
			col.order = append(col.order[:i], col.order[i+1:]...)
			break
		}
	}
	return nil
}

func (c *memoryCollection) Aggregate(_ context.Context, pipeline []Stage) ([]Document, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	col := c.store.collection(c.name)
	working := make([]Document, 0, len(col.order))
	for _, id := range col.order {
		working = append(working, cloneDoc(col.docs[id]))
	}
	return c.store.runPipelineLocked(working, pipeline), nil
}

func (c *memoryCollection) uniqueViolatedLocked(doc Document, selfID string) bool {
	col := c.store.collection(c.name)
	for _, index := range uniqueIndexes[c.name] {
		for id, existing := range col.docs {
			if id == selfID {
				continue
			}
			same := true
			for _, field := range index {
				if !valuesEqual(existing[field], doc[field]) {
					same = false
					break
				}
			}
			if same {
				return true
			}
		}
	}
	return false
}

// runPipelineLocked interprets the pipeline over the working set. Callers
// must hold at least a read lock.
func (m *Memory) runPipelineLocked(working []Document, pipeline []Stage) []Document {
	for _, stage := range pipeline {
		switch s := stage.(type) {
		case Match:
			var next []Document
			for _, doc := range working {
				if matchesFilter(doc, s.Filter) {
					next = append(next, doc)
				}
			}
			working = next
		case Project:
			for i, doc := range working {
				projected := Document{}
				if id, ok := doc["_id"]; ok {
					projected["_id"] = id
				}
				for _, field := range s.Fields {
					if v, ok := doc[field]; ok {
						projected[field] = v
					}
				}
				working[i] = projected
			}
		case Lookup:
			working = m.runLookupLocked(working, s)
		case AddFields:
			for _, doc := range working {
				for field, expr := range s.Fields {
					doc[field] = evalExpr(doc, expr)
				}
			}
		case Set:
			for _, doc := range working {
				for field, expr := range s.Fields {
					doc[field] = evalExpr(doc, expr)
				}
			}
		}
	}
	return working
}

func (m *Memory) runLookupLocked(working []Document, s Lookup) []Document {
	foreign := m.collection(s.From)

	for _, doc := range working {
		local, ok := doc[s.LocalField]
		joined := []Document{}
		if ok {
			keys := []any{local}
			if list, isList := asList(local); isList {
				keys = list
			}
			for _, key := range keys {
				for _, fid := range foreign.order {
					fdoc := foreign.docs[fid]
					if valuesEqual(fdoc[s.ForeignField], key) {
						joined = append(joined, cloneDoc(fdoc))
					}
				}
			}
		}
		if len(s.Pipeline) > 0 {
			joined = m.runPipelineLocked(joined, s.Pipeline)
		}
		doc[s.As] = joined
	}
	return working
}

func evalExpr(doc Document, expr Expr) any {
	switch e := expr.(type) {
	case Size:
		list, _ := asList(doc[e.Field])
		return len(list)
	case First:
		list, _ := asList(doc[e.Field])
		if len(list) == 0 {
			return nil
		}
		return list[0]
	case In:
		for _, v := range collectPath(doc, strings.Split(e.Field, ".")) {
			if valuesEqual(v, e.Value) {
				return true
			}
		}
		return false
	case Cond:
		if truthy(evalExpr(doc, e.If)) {
			return e.Then
		}
		return e.Else
	case Literal:
		return e.Value
	default:
		return nil
	}
}

// collectPath walks a dotted path, fanning out over embedded document
// arrays, and returns every value found at the leaf.
func collectPath(value any, path []string) []any {
	if len(path) == 0 {
		if list, ok := asList(value); ok {
			return list
		}
		return []any{value}
	}

	switch v := value.(type) {
	case Document:
		return collectPath(v[path[0]], path[1:])
	case []Document:
		var out []any
		for _, doc := range v {
			out = append(out, collectPath(doc, path)...)
		}
		return out
	case []any:
		var out []any
		for _, item := range v {
			out = append(out, collectPath(item, path)...)
		}
		return out
	default:
		return nil
	}
}

func matchesFilter(doc Document, filter Filter) bool {
	for field, want := range filter {
		got := doc[field]
		if anyOf, ok := want.(AnyOf); ok {
			found := false
			for _, candidate := range anyOf {
				if valuesEqual(got, candidate) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
			continue
		}
		if !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.DeepEqual(a, b)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case nil:
		return false
	default:
		return true
	}
}

func asList(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		return list, true
	case []Document:
		out := make([]any, len(list))
		for i, doc := range list {
			out[i] = doc
		}
		return out, true
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func compareValues(a, b any) int {
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			switch {
			case av.Before(bv):
				return -1
			case av.After(bv):
				return 1
			default:
				return 0
			}
		}
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case bv:
				return -1
			default:
				return 1
			}
		}
	}

	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func cloneDoc(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Document:
		return cloneDoc(t)
	case []Document:
		out := make([]Document, len(t))
		for i, doc := range t {
			out[i] = cloneDoc(doc)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}
