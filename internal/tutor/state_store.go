package tutor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/felixgeelhaar/socratic/internal/storage/local"
)

// StateStore keeps in-flight tutoring state: open sessions and unfinished
// calibration quizzes.
type StateStore interface {
	SaveSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	SaveCalibration(ctx context.Context, c *Calibration) error
	GetCalibration(ctx context.Context, userID int64) (*Calibration, error)
	DeleteCalibration(ctx context.Context, userID int64) error
}

// MemoryStateStore is a StateStore held in process memory. Values are
// copied on the way in and out.
type MemoryStateStore struct {
	mu           sync.RWMutex
	sessions     map[string]*Session
	calibrations map[int64]*Calibration
}

// NewMemoryStateStore creates an empty MemoryStateStore.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		sessions:     make(map[string]*Session),
		calibrations: make(map[int64]*Calibration),
	}
}

func (m *MemoryStateStore) SaveSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.Chat = append([]ChatMessage(nil), s.Chat...)
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemoryStateStore) GetSession(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	cp.Chat = append([]ChatMessage(nil), s.Chat...)
	return &cp, nil
}

func (m *MemoryStateStore) SaveCalibration(_ context.Context, c *Calibration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	cp.Score = c.Score.Clone()
	m.calibrations[c.UserID] = &cp
	return nil
}

func (m *MemoryStateStore) GetCalibration(_ context.Context, userID int64) (*Calibration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.calibrations[userID]
	if !ok {
		return nil, ErrCalibrationNotFound
	}
	cp := *c
	cp.Score = c.Score.Clone()
	return &cp, nil
}

func (m *MemoryStateStore) DeleteCalibration(_ context.Context, userID int64) error {
	m.mu.Lock()
	delete(m.calibrations, userID)
	m.mu.Unlock()
	return nil
}

const (
	sessionsCollection     = "sessions"
	calibrationsCollection = "calibrations"
)

// FileStateStore persists tutoring state as JSON documents so open
// sessions survive a daemon restart.
type FileStateStore struct {
	store *local.Store
}

// NewFileStateStore creates a FileStateStore rooted at dir.
func NewFileStateStore(dir string) (*FileStateStore, error) {
	st, err := local.NewStore(dir)
	if err != nil {
		return nil, err
	}
	return &FileStateStore{store: st}, nil
}

func (f *FileStateStore) SaveSession(_ context.Context, s *Session) error {
	if err := f.store.Save(sessionsCollection, s.ID, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (f *FileStateStore) GetSession(_ context.Context, id string) (*Session, error) {
	var s Session
	if err := f.store.Load(sessionsCollection, id, &s); err != nil {
		if errors.Is(err, local.ErrNotFound) || errors.Is(err, local.ErrInvalidID) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &s, nil
}

func (f *FileStateStore) SaveCalibration(_ context.Context, c *Calibration) error {
	if err := f.store.Save(calibrationsCollection, calibrationKey(c.UserID), c); err != nil {
		return fmt.Errorf("save calibration: %w", err)
	}
	return nil
}

func (f *FileStateStore) GetCalibration(_ context.Context, userID int64) (*Calibration, error) {
	var c Calibration
	if err := f.store.Load(calibrationsCollection, calibrationKey(userID), &c); err != nil {
		if errors.Is(err, local.ErrNotFound) {
			return nil, ErrCalibrationNotFound
		}
		return nil, fmt.Errorf("load calibration: %w", err)
	}
	return &c, nil
}

func (f *FileStateStore) DeleteCalibration(_ context.Context, userID int64) error {
	err := f.store.Delete(calibrationsCollection, calibrationKey(userID))
	if err != nil && !errors.Is(err, local.ErrNotFound) {
		return fmt.Errorf("delete calibration: %w", err)
	}
	return nil
}

func calibrationKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

var (
	_ StateStore = (*MemoryStateStore)(nil)
	_ StateStore = (*FileStateStore)(nil)
)
