package consultation

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps everything in process. It also serves as a
// ProfileProvider for profiles added with PutProfile.
type MemoryRepository struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	diagnoses []*DiagnosisRecord
	checkIns  []CheckIn
	profiles  map[string]*HealthProfile
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]*Session),
		profiles: make(map[string]*HealthProfile),
	}
}

func (r *MemoryRepository) GetSession(_ context.Context, id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (r *MemoryRepository) SaveSession(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.sessions[s.ID]
	switch {
	case s.Version == 0 && exists:
		return ErrVersionConflict
	case s.Version != 0 && (!exists || stored.Version != s.Version):
		return ErrVersionConflict
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}
	s.Version++
	r.sessions[s.ID] = s.Clone()
	return nil
}

func (r *MemoryRepository) SaveDiagnosis(_ context.Context, d *DiagnosisRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *d
	c.Recommendations = append([]string(nil), d.Recommendations...)
	r.diagnoses = append(r.diagnoses, &c)
	return nil
}

func (r *MemoryRepository) SaveCheckIn(_ context.Context, c *CheckIn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkIns = append(r.checkIns, *c)
	return nil
}

func (r *MemoryRepository) ListCheckIns(_ context.Context, sessionID, userID string) ([]CheckIn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []CheckIn{}
	for _, c := range r.checkIns {
		if c.SessionID != sessionID || (userID != "" && c.UserID != userID) {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Diagnoses returns the stored diagnosis records in insertion order.
func (r *MemoryRepository) Diagnoses() []*DiagnosisRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*DiagnosisRecord(nil), r.diagnoses...)
}

func (r *MemoryRepository) PutProfile(p *HealthProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.UserID] = p
}

func (r *MemoryRepository) GetProfile(_ context.Context, userID string) (*HealthProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.profiles[userID], nil
}
