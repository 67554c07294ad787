package org

import "context"

// Store persists departments and sub-departments.
// Find* methods return ErrNotFound for missing rows.
type Store interface {
	// CreateDepartment inserts d and its SubDepartments atomically.
	CreateDepartment(ctx context.Context, d *Department) error
	FindDepartment(ctx context.Context, id int64) (*Department, error)
	ListDepartments(ctx context.Context, ownerID int64) ([]Department, error)
	UpdateDepartment(ctx context.Context, id int64, name string) (*Department, error)
	// DeleteDepartment removes the department and, by cascade, its sub-departments.
	DeleteDepartment(ctx context.Context, id int64) error

	CreateSubDepartment(ctx context.Context, s *SubDepartment) error
	FindSubDepartment(ctx context.Context, id int64) (*SubDepartment, error)
	ListSubDepartments(ctx context.Context, ownerID int64) ([]SubDepartment, error)
	UpdateSubDepartment(ctx context.Context, id int64, name string) (*SubDepartment, error)
	DeleteSubDepartment(ctx context.Context, id int64) error
}
