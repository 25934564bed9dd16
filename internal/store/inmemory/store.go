// Package inmemory implements store.RemoteStore entirely in memory. It
// backs the engine tests and the demo mode of the CLI; semantics mirror
// the postgres implementation, including server-assigned ids/timestamps
// and most-recently-updated-first listing.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dkravets/notelock/internal/common"
	"github.com/dkravets/notelock/internal/keyring"
	"github.com/dkravets/notelock/internal/models"
	"github.com/google/uuid"
)

type edgeKey struct {
	parentID string
	childID  string
	relType  models.RelationType
}

// Store is a per-process RemoteStore. Safe for concurrent use.
type Store struct {
	mu sync.Mutex

	// user id -> object id -> record
	objects map[string]map[string]models.ObjectRecord
	// user id -> edge set
	edges map[string]map[edgeKey]struct{}
	// user id -> envelope
	envelopes map[string]keyring.Envelope

	// seq breaks identical timestamps in ListObjects so the order stays
	// deterministic under the coarse clock of fast tests.
	seq    map[string]map[string]int64
	nextSq int64
}

func New() *Store {
	return &Store{
		objects:   make(map[string]map[string]models.ObjectRecord),
		edges:     make(map[string]map[edgeKey]struct{}),
		envelopes: make(map[string]keyring.Envelope),
		seq:       make(map[string]map[string]int64),
	}
}

func (s *Store) userObjects(userID string) map[string]models.ObjectRecord {
	m, ok := s.objects[userID]
	if !ok {
		m = make(map[string]models.ObjectRecord)
		s.objects[userID] = m
	}
	return m
}

func (s *Store) userEdges(userID string) map[edgeKey]struct{} {
	m, ok := s.edges[userID]
	if !ok {
		m = make(map[edgeKey]struct{})
		s.edges[userID] = m
	}
	return m
}

func (s *Store) userSeq(userID string) map[string]int64 {
	m, ok := s.seq[userID]
	if !ok {
		m = make(map[string]int64)
		s.seq[userID] = m
	}
	return m
}

func (s *Store) InsertObject(ctx context.Context, userID string, typ models.ObjectType, ciphertext, nonce []byte) (*models.ObjectRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	rec := models.ObjectRecord{
		ID:         uuid.NewString(),
		Type:       typ,
		Ciphertext: append([]byte(nil), ciphertext...),
		Nonce:      append([]byte(nil), nonce...),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.userObjects(userID)[rec.ID] = rec
	s.nextSq++
	s.userSeq(userID)[rec.ID] = s.nextSq

	out := rec
	return &out, nil
}

func (s *Store) UpdateObject(ctx context.Context, userID, id string, ciphertext, nonce []byte) (*models.ObjectRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	objects := s.userObjects(userID)
	rec, ok := objects[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	rec.Ciphertext = append([]byte(nil), ciphertext...)
	rec.Nonce = append([]byte(nil), nonce...)
	rec.UpdatedAt = time.Now().UTC()
	objects[id] = rec
	s.nextSq++
	s.userSeq(userID)[id] = s.nextSq

	out := rec
	return &out, nil
}

func (s *Store) DeleteObject(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	objects := s.userObjects(userID)
	if _, ok := objects[id]; !ok {
		return common.ErrNotFound
	}
	delete(objects, id)
	delete(s.userSeq(userID), id)
	return nil
}

func (s *Store) ListObjects(ctx context.Context, userID string) ([]models.ObjectRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	objects := s.userObjects(userID)
	seq := s.userSeq(userID)
	result := make([]models.ObjectRecord, 0, len(objects))
	for _, rec := range objects {
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return seq[a.ID] > seq[b.ID]
	})
	return result, nil
}

func (s *Store) ReplaceEdges(ctx context.Context, userID, parentID string, relType models.RelationType, childIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	edges := s.userEdges(userID)
	for k := range edges {
		if k.parentID == parentID && k.relType == relType {
			delete(edges, k)
		}
	}
	for _, childID := range childIDs {
		edges[edgeKey{parentID: parentID, childID: childID, relType: relType}] = struct{}{}
	}
	return nil
}

func (s *Store) ReplaceParent(ctx context.Context, userID, childID string, relType models.RelationType, parentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	edges := s.userEdges(userID)
	for k := range edges {
		if k.childID == childID && k.relType == relType {
			delete(edges, k)
		}
	}
	if parentID != "" {
		edges[edgeKey{parentID: parentID, childID: childID, relType: relType}] = struct{}{}
	}
	return nil
}

func (s *Store) ListEdges(ctx context.Context, userID string) ([]models.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	edges := s.userEdges(userID)
	result := make([]models.Edge, 0, len(edges))
	for k := range edges {
		result = append(result, models.Edge{ParentID: k.parentID, ChildID: k.childID, Type: k.relType})
	}
	return result, nil
}

func (s *Store) GetEnvelope(ctx context.Context, userID string) (*keyring.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, ok := s.envelopes[userID]
	if !ok {
		return nil, common.ErrNotFound
	}
	out := env
	return &out, nil
}

func (s *Store) PutEnvelope(ctx context.Context, userID string, env *keyring.Envelope) error {
	if env == nil {
		return fmt.Errorf("nil envelope")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.envelopes[userID] = *env
	return nil
}

// CorruptObject flips the first ciphertext byte of the given object.
// Test helper for partial-failure scenarios.
func (s *Store) CorruptObject(userID, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	objects := s.userObjects(userID)
	rec, ok := objects[id]
	if !ok || len(rec.Ciphertext) == 0 {
		return false
	}
	rec.Ciphertext = append([]byte(nil), rec.Ciphertext...)
	rec.Ciphertext[0] ^= 0xff
	objects[id] = rec
	return true
}
