package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hsdfat8/fieldops/internal/domain/models"
	"github.com/hsdfat8/fieldops/internal/domain/ports"
	"github.com/hsdfat8/fieldops/internal/observability"
)

// Metadata is recomputed on every save
type Metadata struct {
	LastUpdated   time.Time      `json:"last_updated"`
	Total         int            `json:"total"`
	Categories    map[string]int `json:"categories"`
	StatusSummary map[string]int `json:"status_summary,omitempty"`
	LastSequence  int64          `json:"last_sequence"`
}

type document struct {
	records  []map[string]any
	metadata Metadata
}

// Store is the document backend: one JSON file per collection, rewritten
// wholesale on every write. Record order is insertion order.
type Store struct {
	mu     sync.Mutex
	dir    string
	logger observability.Logger
	now    func() time.Time
}

// NewStore creates a document store rooted at dir
func NewStore(dir string) *Store {
	return &Store{
		dir:    dir,
		logger: observability.New("jsonstore", ""),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Type() ports.BackendType {
	return ports.BackendDocument
}

// Dir returns the data directory
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file backing a collection
func (s *Store) Path(collection models.Collection) string {
	return filepath.Join(s.dir, string(collection)+".json")
}

func (s *Store) load(collection models.Collection) (*document, error) {
	var raw map[string]json.RawMessage
	err := readJSON(s.Path(collection), &raw)
	if errors.Is(err, os.ErrNotExist) {
		return &document{}, nil
	}
	if err != nil {
		return nil, err
	}

	doc := &document{}
	if r, ok := raw[string(collection)]; ok {
		if err := json.Unmarshal(r, &doc.records); err != nil {
			return nil, fmt.Errorf("%w: %s records: %v", ErrMalformedDocument, collection, err)
		}
	}
	if r, ok := raw["metadata"]; ok {
		if err := json.Unmarshal(r, &doc.metadata); err != nil {
			return nil, fmt.Errorf("%w: %s metadata: %v", ErrMalformedDocument, collection, err)
		}
	}
	return doc, nil
}

func (s *Store) save(spec models.CollectionSpec, doc *document) error {
	records := doc.records
	if records == nil {
		records = []map[string]any{}
	}

	meta := Metadata{
		LastUpdated:  s.now(),
		Total:        len(records),
		Categories:   make(map[string]int),
		LastSequence: doc.metadata.LastSequence,
	}
	if spec.HasStatus {
		meta.StatusSummary = make(map[string]int)
	}
	for _, r := range records {
		if cat := valueString(r[spec.CategoryField]); cat != "" {
			meta.Categories[cat]++
		}
		if spec.HasStatus {
			if st := valueString(r["status"]); st != "" {
				meta.StatusSummary[st]++
			}
		}
		if seq, ok := models.ParseIDSequence(spec.IDPrefix, valueString(r["id"])); ok && seq > meta.LastSequence {
			meta.LastSequence = seq
		}
	}

	err := writeJSONAtomic(s.Path(spec.Name), map[string]any{
		string(spec.Name): records,
		"metadata":        meta,
	})
	if err != nil {
		return err
	}
	doc.metadata = meta
	return nil
}

// NextID scans existing ids and the persisted high-water mark and reserves the next value
func (s *Store) NextID(ctx context.Context, collection models.Collection) (string, error) {
	spec, err := collection.Spec()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(collection)
	if err != nil {
		return "", err
	}

	highest := doc.metadata.LastSequence
	for _, r := range doc.records {
		if seq, ok := models.ParseIDSequence(spec.IDPrefix, valueString(r["id"])); ok && seq > highest {
			highest = seq
		}
	}

	doc.metadata.LastSequence = highest + 1
	if err := s.save(spec, doc); err != nil {
		return "", fmt.Errorf("failed to reserve %s sequence: %w", collection, err)
	}
	return models.FormatID(spec.IDPrefix, highest+1), nil
}

// Insert appends a record to its collection
func (s *Store) Insert(ctx context.Context, record models.Record) error {
	spec, err := record.Collection().Spec()
	if err != nil {
		return err
	}

	m, err := toMap(record)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(spec.Name)
	if err != nil {
		return err
	}
	if indexOf(doc.records, record.GetID()) >= 0 {
		return fmt.Errorf("%w: %s", ports.ErrAlreadyExists, record.GetID())
	}

	doc.records = append(doc.records, m)
	if err := s.save(spec, doc); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", spec.Name, err)
	}
	return nil
}

// Select decodes matching records into dest, preserving insertion order
func (s *Store) Select(ctx context.Context, collection models.Collection, filter models.Filter, dest any) error {
	spec, err := collection.Spec()
	if err != nil {
		return err
	}
	if err := checkFilter(spec, filter); err != nil {
		return err
	}

	s.mu.Lock()
	doc, err := s.load(collection)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	matched := make([]map[string]any, 0, len(doc.records))
	for _, r := range doc.records {
		if matches(r, filter) {
			matched = append(matched, r)
		}
	}
	return fromValue(matched, dest)
}

// Get decodes a single record into dest
func (s *Store) Get(ctx context.Context, collection models.Collection, id string, dest any) error {
	if _, err := collection.Spec(); err != nil {
		return err
	}

	s.mu.Lock()
	doc, err := s.load(collection)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	i := indexOf(doc.records, id)
	if i < 0 {
		return ports.ErrNotFound
	}
	return fromValue(doc.records[i], dest)
}

// Update merges changes into one record
func (s *Store) Update(ctx context.Context, collection models.Collection, id string, changes models.Changes) error {
	spec, err := collection.Spec()
	if err != nil {
		return err
	}
	patch, err := normalizeChanges(spec, changes)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(collection)
	if err != nil {
		return err
	}
	i := indexOf(doc.records, id)
	if i < 0 {
		return ports.ErrNotFound
	}
	for k, v := range patch {
		doc.records[i][k] = v
	}
	if err := s.save(spec, doc); err != nil {
		return fmt.Errorf("failed to update %s %s: %w", collection, id, err)
	}
	return nil
}

// UpdateWhere merges changes into every matching record
func (s *Store) UpdateWhere(ctx context.Context, collection models.Collection, filter models.Filter, changes models.Changes) (int64, error) {
	spec, err := collection.Spec()
	if err != nil {
		return 0, err
	}
	if err := checkFilter(spec, filter); err != nil {
		return 0, err
	}
	patch, err := normalizeChanges(spec, changes)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(collection)
	if err != nil {
		return 0, err
	}

	var n int64
	for _, r := range doc.records {
		if !matches(r, filter) {
			continue
		}
		for k, v := range patch {
			r[k] = v
		}
		n++
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.save(spec, doc); err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", collection, err)
	}
	return n, nil
}

// Delete removes a record entirely
func (s *Store) Delete(ctx context.Context, collection models.Collection, id string) error {
	spec, err := collection.Spec()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(collection)
	if err != nil {
		return err
	}
	i := indexOf(doc.records, id)
	if i < 0 {
		return ports.ErrNotFound
	}
	doc.records = append(doc.records[:i], doc.records[i+1:]...)
	if err := s.save(spec, doc); err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", collection, id, err)
	}
	return nil
}

// WriteArtifact stores a scratch document next to the collections
func (s *Store) WriteArtifact(name string, v any) error {
	path, err := s.artifactPath(name)
	if err != nil {
		return err
	}
	return writeJSONAtomic(path, v)
}

// ReadArtifact decodes a scratch document into dest
func (s *Store) ReadArtifact(name string, dest any) error {
	path, err := s.artifactPath(name)
	if err != nil {
		return err
	}
	return readJSON(path, dest)
}

// RemoveArtifact deletes a scratch document; a missing file is not an error
func (s *Store) RemoveArtifact(name string) error {
	path, err := s.artifactPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) artifactPath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	return filepath.Join(s.dir, name), nil
}

func checkFilter(spec models.CollectionSpec, f models.Filter) error {
	cols := make([]string, 0, len(f.Equals)+len(f.Contains)+len(f.IsNull)+len(f.Ranges))
	for c := range f.Equals {
		cols = append(cols, c)
	}
	for c := range f.Contains {
		cols = append(cols, c)
	}
	cols = append(cols, f.IsNull...)
	for _, r := range f.Ranges {
		cols = append(cols, r.Column)
	}
	if f.ActiveOnly {
		cols = append(cols, "is_active")
	}
	for _, c := range cols {
		if !spec.HasColumn(c) {
			return fmt.Errorf("unknown column %q for %s", c, spec.Name)
		}
	}
	return nil
}

func normalizeChanges(spec models.CollectionSpec, changes models.Changes) (map[string]any, error) {
	if len(changes) == 0 {
		return nil, errors.New("no changes to apply")
	}
	for col := range changes {
		if col == "id" || !spec.HasColumn(col) {
			return nil, fmt.Errorf("column %q cannot be updated on %s", col, spec.Name)
		}
	}
	return toMap(changes)
}

func matches(r map[string]any, f models.Filter) bool {
	for col, want := range f.Equals {
		if valueString(r[col]) != want {
			return false
		}
	}
	for col, subs := range f.Contains {
		if len(subs) > 0 && !containsAny(r[col], subs) {
			return false
		}
	}
	for _, col := range f.IsNull {
		if r[col] != nil {
			return false
		}
	}
	for _, rg := range f.Ranges {
		v, ok := r[rg.Column].(float64)
		if !ok || v < rg.Min || v > rg.Max {
			return false
		}
	}
	if f.ActiveOnly {
		if active, _ := r["is_active"].(bool); !active {
			return false
		}
	}
	return true
}

func containsAny(v any, subs []string) bool {
	var haystack []string
	switch x := v.(type) {
	case nil:
		return false
	case []any:
		for _, item := range x {
			haystack = append(haystack, strings.ToLower(valueString(item)))
		}
	default:
		haystack = []string{strings.ToLower(valueString(x))}
	}
	for _, sub := range subs {
		sub = strings.ToLower(sub)
		for _, h := range haystack {
			if strings.Contains(h, sub) {
				return true
			}
		}
	}
	return false
}

func valueString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func indexOf(records []map[string]any, id string) int {
	for i, r := range records {
		if valueString(r["id"]) == id {
			return i
		}
	}
	return -1
}

func toMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return m, nil
}

func fromValue(v any, dest any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return fmt.Errorf("failed to decode records: %w", err)
	}
	return nil
}

var _ ports.RecordBackend = (*Store)(nil)
var _ ports.ArtifactStore = (*Store)(nil)
var _ ports.CatalogStore = (*CatalogFile)(nil)
