package coretest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/studyroom/internal/domain"
)

// StudyRecord is one study_history row kept by Store.
type StudyRecord struct {
	RoomID domain.RoomID
	UserID domain.UserID
	Enter  time.Time
	Exit   time.Time
}

// Store is an in-memory core.Store.
type Store struct {
	mu        sync.Mutex
	Rooms     map[domain.RoomID]*domain.RoomRecord
	Users     map[domain.UserID]*domain.User
	History   []StudyRecord
	Ignitions map[domain.RoomID][]time.Time
	Finished  map[domain.RoomID][]time.Time
	Err       error
}

func NewStore() *Store {
	return &Store{
		Rooms:     make(map[domain.RoomID]*domain.RoomRecord),
		Users:     make(map[domain.UserID]*domain.User),
		Ignitions: make(map[domain.RoomID][]time.Time),
		Finished:  make(map[domain.RoomID][]time.Time),
	}
}

// AddRoom stores a room record with the default timer.
func (s *Store) AddRoom(id domain.RoomID, master domain.UserID, password string) *domain.RoomRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := &domain.RoomRecord{ID: id, Title: string(id), MasterID: master, Password: password, Timer: domain.DefaultTimerProperty()}
	s.Rooms[id] = rec
	return rec
}

func (s *Store) AddUser(id domain.UserID, name string) *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &domain.User{ID: id, Name: name}
	s.Users[id] = u
	return u
}

func (s *Store) FindRoom(_ context.Context, id domain.RoomID) (*domain.RoomRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	rec, ok := s.Rooms[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	cp.Blacklist = slices.Clone(rec.Blacklist)
	return &cp, nil
}

func (s *Store) FindUser(_ context.Context, id domain.UserID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	u, ok := s.Users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *Store) BlockUser(_ context.Context, roomID domain.RoomID, user domain.BlockedUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if rec, ok := s.Rooms[roomID]; ok {
		rec.Blacklist = append(rec.Blacklist, user)
	}
	return nil
}

func (s *Store) UnblockUser(_ context.Context, roomID domain.RoomID, userID domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if rec, ok := s.Rooms[roomID]; ok {
		rec.Blacklist = slices.DeleteFunc(rec.Blacklist, func(b domain.BlockedUser) bool { return b.ID == userID })
	}
	return nil
}

func (s *Store) UpdateTimerProperty(_ context.Context, roomID domain.RoomID, prop domain.TimerProperty) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if rec, ok := s.Rooms[roomID]; ok {
		rec.Timer = prop
	}
	return nil
}

func (s *Store) CreateStudyHistory(_ context.Context, roomID domain.RoomID, userID domain.UserID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.History = append(s.History, StudyRecord{RoomID: roomID, UserID: userID, Enter: at})
	return nil
}

func (s *Store) UpdateStudyHistoryExit(_ context.Context, roomID domain.RoomID, userID domain.UserID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.History) - 1; i >= 0; i-- {
		h := &s.History[i]
		if h.RoomID == roomID && h.UserID == userID && h.Exit.IsZero() {
			h.Exit = at
			break
		}
	}
	return nil
}

func (s *Store) StartRoomIgnition(_ context.Context, roomID domain.RoomID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Ignitions[roomID] = append(s.Ignitions[roomID], at)
	return nil
}

func (s *Store) FinishRoomIgnition(_ context.Context, roomID domain.RoomID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Finished[roomID] = append(s.Finished[roomID], at)
	return nil
}

// Snapshot helpers for assertions.

func (s *Store) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.History)
}

func (s *Store) IgnitionCount(id domain.RoomID) (started, finished int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Ignitions[id]), len(s.Finished[id])
}
