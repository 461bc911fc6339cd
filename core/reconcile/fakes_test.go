package reconcile

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"order-sync/core/fields"
	"order-sync/core/identity"
	"order-sync/core/tracker"
)

// fakeClient is an in-memory tracker with scripted failures.
type fakeClient struct {
	mu     sync.Mutex
	items  map[string]*tracker.Item
	nextID int

	createCalls int
	updateCalls int
	getCalls    int
	searchCalls int

	// scripted errors, consumed one per call
	updateErrs []error
	createErrs []error
	// summaries whose create always fails
	failCreate map[string]error
	// keys that answer 404 on get/update
	vanished map[string]bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		items:      map[string]*tracker.Item{},
		failCreate: map[string]error{},
		vanished:   map[string]bool{},
	}
}

func notFoundErr() error {
	return &tracker.APIError{Status: 404, Identifier: "NotFound", Message: "item could not be found"}
}

func (f *fakeClient) ResolveProject(_ context.Context, key string) (*tracker.Project, error) {
	return &tracker.Project{ID: "3", Identifier: key, Name: key}, nil
}

func (f *fakeClient) ListTypes(context.Context, string) (map[string]tracker.ItemType, error) {
	return map[string]tracker.ItemType{
		"epic":       {ID: "1", Name: "Epic"},
		"user story": {ID: "2", Name: "User story"},
	}, nil
}

func (f *fakeClient) CreateItem(_ context.Context, p tracker.Payload) (*tracker.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if err, ok := f.failCreate[p.Summary]; ok {
		return nil, err
	}
	f.nextID++
	item := &tracker.Item{
		Key:         fmt.Sprintf("%d", 1000+f.nextID),
		Version:     1,
		ProjectID:   p.ProjectID,
		Summary:     p.Summary,
		Description: p.Description,
		DueDate:     p.DueDate,
		Fields:      p.Fields.Clone(),
	}
	f.items[item.Key] = item
	return item, nil
}

func (f *fakeClient) UpdateItem(_ context.Context, key string, version int, p tracker.Payload) (*tracker.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if len(f.updateErrs) > 0 {
		err := f.updateErrs[0]
		f.updateErrs = f.updateErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if f.vanished[key] {
		return nil, notFoundErr()
	}
	item, ok := f.items[key]
	if !ok {
		return nil, notFoundErr()
	}
	if item.Version != version {
		return nil, &tracker.APIError{Status: 409, Identifier: "UpdateConflict", Message: "lock version mismatch"}
	}
	if p.Summary != "" {
		item.Summary = p.Summary
	}
	if p.Description != "" {
		item.Description = p.Description
	}
	if p.DueDate != "" {
		item.DueDate = p.DueDate
	}
	for id, v := range p.Fields {
		if item.Fields == nil {
			item.Fields = fields.Map{}
		}
		item.Fields[id] = v
	}
	item.Version++
	return item, nil
}

func (f *fakeClient) GetItem(_ context.Context, key string) (*tracker.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.vanished[key] {
		return nil, notFoundErr()
	}
	item, ok := f.items[key]
	if !ok {
		return nil, notFoundErr()
	}
	cp := *item
	cp.Fields = item.Fields.Clone()
	return &cp, nil
}

func (f *fakeClient) SearchItems(_ context.Context, q tracker.SearchQuery) ([]tracker.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	var out []tracker.Item
	for _, item := range f.items {
		if f.vanished[item.Key] {
			continue
		}
		if q.SummaryEquals != "" && item.Summary != q.SummaryEquals {
			continue
		}
		if q.SummaryContains != "" && !strings.Contains(item.Summary, q.SummaryContains) {
			continue
		}
		matched := true
		for id, want := range q.FieldEquals {
			if v, ok := item.Fields[id]; !ok || v.Str != want {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		out = append(out, *item)
	}
	return out, nil
}

func (f *fakeClient) ListCustomFields(context.Context) (map[string]string, error) {
	return map[string]string{"wpr wp order id": "customField2"}, nil
}

func (f *fakeClient) ListCustomOptions(context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}

func (f *fakeClient) ListStatuses(context.Context) (map[string]tracker.Status, error) {
	return map[string]tracker.Status{"approved": {ID: "5", Name: "Approved"}}, nil
}

func (f *fakeClient) counts() (creates, updates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls, f.updateCalls
}

// fakeStore is an in-memory identity store with injectable failures.
type fakeStore struct {
	mu          sync.Mutex
	containers  map[string]string
	units       map[string]string
	prints      map[string]string
	hashes      map[string]string
	checkpoints map[string]time.Time

	resolveErr  error
	registerErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		containers:  map[string]string{},
		units:       map[string]string{},
		prints:      map[string]string{},
		hashes:      map[string]string{},
		checkpoints: map[string]time.Time{},
	}
}

func ckey(project, orderID string) string { return project + "|" + orderID }
func ukey(project, orderID string, instance int) string {
	return fmt.Sprintf("%s|%s|%d", project, orderID, instance)
}
func fpkey(project string, kind identity.Kind, orderID string, instance int) string {
	if kind == identity.KindContainer {
		instance = 0
	}
	return fmt.Sprintf("%s|%s|%s|%d", project, kind, orderID, instance)
}

func (s *fakeStore) ResolveContainer(_ context.Context, project, orderID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolveErr != nil {
		return "", s.resolveErr
	}
	if k, ok := s.containers[ckey(project, orderID)]; ok {
		return k, nil
	}
	return "", identity.ErrNotFound
}

func (s *fakeStore) ResolveUnit(_ context.Context, project, orderID string, instance int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolveErr != nil {
		return "", s.resolveErr
	}
	if k, ok := s.units[ukey(project, orderID, instance)]; ok {
		return k, nil
	}
	return "", identity.ErrNotFound
}

func (s *fakeStore) RegisterContainer(_ context.Context, project, orderID, remoteKey, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registerErr != nil {
		return s.registerErr
	}
	s.containers[ckey(project, orderID)] = remoteKey
	s.prints[fpkey(project, identity.KindContainer, orderID, 0)] = fingerprint
	return nil
}

func (s *fakeStore) RegisterUnit(_ context.Context, project, orderID string, instance int, remoteKey, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registerErr != nil {
		return s.registerErr
	}
	s.units[ukey(project, orderID, instance)] = remoteKey
	s.prints[fpkey(project, identity.KindUnit, orderID, instance)] = fingerprint
	return nil
}

func (s *fakeStore) LastFingerprint(_ context.Context, project string, kind identity.Kind, orderID string, instance int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fp, ok := s.prints[fpkey(project, kind, orderID, instance)]; ok && fp != "" {
		return fp, nil
	}
	return "", identity.ErrNotFound
}

func (s *fakeStore) SourceHash(_ context.Context, project, orderID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.hashes[ckey(project, orderID)]; ok {
		return h, nil
	}
	return "", identity.ErrNotFound
}

func (s *fakeStore) SetSourceHash(_ context.Context, project, orderID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[ckey(project, orderID)] = hash
	return nil
}

func (s *fakeStore) Checkpoint(_ context.Context, project, orderID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ts, ok := s.checkpoints[ckey(project, orderID)]; ok {
		return ts, nil
	}
	return time.Time{}, identity.ErrNotFound
}

func (s *fakeStore) SetCheckpoint(_ context.Context, project, orderID string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[ckey(project, orderID)] = ts
	return nil
}

func (s *fakeStore) AllCheckpoints(_ context.Context, project string) (map[string]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]time.Time{}
	prefix := project + "|"
	for k, ts := range s.checkpoints {
		if strings.HasPrefix(k, prefix) {
			out[strings.TrimPrefix(k, prefix)] = ts
		}
	}
	return out, nil
}

func (s *fakeStore) HasIngestedFile(context.Context, string) (bool, error) { return false, nil }

func (s *fakeStore) RecordIngestion(context.Context, string, string, string, int) error { return nil }
