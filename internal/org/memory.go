package org

import (
	"context"
	"sort"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a process-local Store for tests and local runs.
type MemoryStore struct {
	mu          sync.RWMutex
	nextDept    int64
	nextSub     int64
	departments map[int64]Department
	subs        map[int64]SubDepartment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		departments: make(map[int64]Department),
		subs:        make(map[int64]SubDepartment),
	}
}

func (s *MemoryStore) CreateDepartment(_ context.Context, d *Department) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.nextDept++
	d.ID = s.nextDept
	d.CreatedAt, d.UpdatedAt = now, now
	for i := range d.SubDepartments {
		s.nextSub++
		sub := &d.SubDepartments[i]
		sub.ID = s.nextSub
		sub.DepartmentID = d.ID
		sub.CreatedAt, sub.UpdatedAt = now, now
		s.subs[sub.ID] = *sub
	}
	stored := *d
	stored.SubDepartments = nil
	s.departments[d.ID] = stored
	return nil
}

func (s *MemoryStore) FindDepartment(_ context.Context, id int64) (*Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.departments[id]
	if !ok {
		return nil, ErrNotFound
	}
	d.SubDepartments = s.subsOf(id)
	return &d, nil
}

func (s *MemoryStore) ListDepartments(_ context.Context, ownerID int64) ([]Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Department
	for _, d := range s.departments {
		if d.CreatedBy == ownerID {
			d.SubDepartments = s.subsOf(d.ID)
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) UpdateDepartment(ctx context.Context, id int64, name string) (*Department, error) {
	s.mu.Lock()
	d, ok := s.departments[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	d.Name = name
	d.UpdatedAt = time.Now().UTC()
	s.departments[id] = d
	s.mu.Unlock()
	return s.FindDepartment(ctx, id)
}

func (s *MemoryStore) DeleteDepartment(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.departments[id]; !ok {
		return ErrNotFound
	}
	delete(s.departments, id)
	for subID, sub := range s.subs {
		if sub.DepartmentID == id {
			delete(s.subs, subID)
		}
	}
	return nil
}

func (s *MemoryStore) CreateSubDepartment(_ context.Context, sub *SubDepartment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.departments[sub.DepartmentID]; !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	s.nextSub++
	sub.ID = s.nextSub
	sub.CreatedAt, sub.UpdatedAt = now, now
	s.subs[sub.ID] = *sub
	return nil
}

func (s *MemoryStore) FindSubDepartment(_ context.Context, id int64) (*SubDepartment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &sub, nil
}

func (s *MemoryStore) ListSubDepartments(_ context.Context, ownerID int64) ([]SubDepartment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []SubDepartment
	for _, sub := range s.subs {
		if parent, ok := s.departments[sub.DepartmentID]; ok && parent.CreatedBy == ownerID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) UpdateSubDepartment(_ context.Context, id int64, name string) (*SubDepartment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	sub.Name = name
	sub.UpdatedAt = time.Now().UTC()
	s.subs[id] = sub
	return &sub, nil
}

func (s *MemoryStore) DeleteSubDepartment(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[id]; !ok {
		return ErrNotFound
	}
	delete(s.subs, id)
	return nil
}

func (s *MemoryStore) subsOf(deptID int64) []SubDepartment {
	out := []SubDepartment{}
	for _, sub := range s.subs {
		if sub.DepartmentID == deptID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
