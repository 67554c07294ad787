package org

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"orgdesk.org/internal/apperr"
	"orgdesk.org/internal/audit"
	"orgdesk.org/internal/validation"
)

const (
	nameMinLen = 2
	nameMaxLen = 100
)

var nameCharset = regexp.MustCompile(`^[a-zA-Z0-9\s\-_]+$`)

const msgNameCharset = "Name can only contain letters, numbers, spaces, hyphens, and underscores"

// Service applies the ownership policy to department operations.
// Every method takes the acting user's id explicitly.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func validateName(v *validation.Validator, field, name string) {
	v.Required(field, name).
		MinLength(field, name, nameMinLen).
		MaxLength(field, name, nameMaxLen).
		Matches(field, name, nameCharset, msgNameCharset)
}

// CreateDepartment stamps ownerID as creator.
func (s *Service) CreateDepartment(ctx context.Context, ownerID int64, in CreateDepartmentInput) (*Department, error) {
	in.Name = strings.TrimSpace(in.Name)
	v := validation.New()
	validateName(v, "name", in.Name)
	subs := make([]SubDepartment, 0, len(in.SubDepartments))
	for i, sub := range in.SubDepartments {
		name := strings.TrimSpace(sub.Name)
		validateName(v, fmt.Sprintf("subDepartments[%d].name", i), name)
		subs = append(subs, SubDepartment{Name: name})
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	d := &Department{Name: in.Name, CreatedBy: ownerID, SubDepartments: subs}
	if err := s.store.CreateDepartment(ctx, d); err != nil {
		return nil, apperr.Internal(err)
	}
	_ = audit.LogEvent(ctx, "department.created", map[string]any{"department_id": d.ID, "sub_departments": len(subs)})
	return d, nil
}

// ListDepartments returns the caller's departments ordered by id.
func (s *Service) ListDepartments(ctx context.Context, ownerID int64) ([]Department, error) {
	list, err := s.store.ListDepartments(ctx, ownerID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if list == nil {
		list = []Department{}
	}
	return list, nil
}

// GetDepartment returns a department owned by the caller.
func (s *Service) GetDepartment(ctx context.Context, ownerID, id int64) (*Department, error) {
	d, err := s.findDepartment(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.CreatedBy != ownerID {
		return nil, apperr.NotFound("Department not found")
	}
	return d, nil
}

func (s *Service) UpdateDepartment(ctx context.Context, ownerID int64, in UpdateDepartmentInput) (*Department, error) {
	in.Name = strings.TrimSpace(in.Name)
	v := validation.New()
	validateName(v, "name", in.Name)
	if err := v.Err(); err != nil {
		return nil, err
	}
	d, err := s.findDepartment(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	if d.CreatedBy != ownerID {
		return nil, apperr.Forbidden("You do not have permission to update this department")
	}
	updated, err := s.store.UpdateDepartment(ctx, d.ID, in.Name)
	if err != nil {
		return nil, storeErr(err, "Department not found")
	}
	_ = audit.LogEvent(ctx, "department.updated", map[string]any{"department_id": d.ID})
	return updated, nil
}

// DeleteDepartment removes the department together with its sub-departments.
func (s *Service) DeleteDepartment(ctx context.Context, ownerID, id int64) error {
	d, err := s.findDepartment(ctx, id)
	if err != nil {
		return err
	}
	if d.CreatedBy != ownerID {
		return apperr.Forbidden("You do not have permission to delete this department")
	}
	if err := s.store.DeleteDepartment(ctx, d.ID); err != nil {
		return storeErr(err, "Department not found")
	}
	_ = audit.LogEvent(ctx, "department.deleted", map[string]any{"department_id": d.ID})
	return nil
}

func (s *Service) CreateSubDepartment(ctx context.Context, ownerID int64, in CreateSubDepartmentInput) (*SubDepartment, error) {
	in.Name = strings.TrimSpace(in.Name)
	v := validation.New()
	v.Positive("departmentId", in.DepartmentID)
	validateName(v, "name", in.Name)
	if err := v.Err(); err != nil {
		return nil, err
	}
	parent, err := s.store.FindDepartment(ctx, in.DepartmentID)
	if err != nil {
		return nil, storeErr(err, fmt.Sprintf("Department with ID %d not found", in.DepartmentID))
	}
	if parent.CreatedBy != ownerID {
		return nil, apperr.Forbidden("You do not have permission to create sub-departments for this department")
	}
	sub := &SubDepartment{Name: in.Name, DepartmentID: parent.ID}
	if err := s.store.CreateSubDepartment(ctx, sub); err != nil {
		return nil, apperr.Internal(err)
	}
	_ = audit.LogEvent(ctx, "sub_department.created", map[string]any{"sub_department_id": sub.ID, "department_id": parent.ID})
	return sub, nil
}

// ListSubDepartments returns sub-departments whose parent the caller owns.
func (s *Service) ListSubDepartments(ctx context.Context, ownerID int64) ([]SubDepartment, error) {
	list, err := s.store.ListSubDepartments(ctx, ownerID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if list == nil {
		list = []SubDepartment{}
	}
	return list, nil
}

func (s *Service) GetSubDepartment(ctx context.Context, ownerID, id int64) (*SubDepartment, error) {
	sub, parent, err := s.findSubDepartment(ctx, id)
	if err != nil {
		return nil, err
	}
	if parent.CreatedBy != ownerID {
		return nil, apperr.NotFound("Sub-department not found")
	}
	return sub, nil
}

func (s *Service) UpdateSubDepartment(ctx context.Context, ownerID int64, in UpdateSubDepartmentInput) (*SubDepartment, error) {
	in.Name = strings.TrimSpace(in.Name)
	v := validation.New()
	validateName(v, "name", in.Name)
	if err := v.Err(); err != nil {
		return nil, err
	}
	sub, parent, err := s.findSubDepartment(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	if parent.CreatedBy != ownerID {
		return nil, apperr.Forbidden("You do not have permission to update this sub-department")
	}
	updated, err := s.store.UpdateSubDepartment(ctx, sub.ID, in.Name)
	if err != nil {
		return nil, storeErr(err, "Sub-department not found")
	}
	_ = audit.LogEvent(ctx, "sub_department.updated", map[string]any{"sub_department_id": sub.ID})
	return updated, nil
}

func (s *Service) DeleteSubDepartment(ctx context.Context, ownerID, id int64) error {
	sub, parent, err := s.findSubDepartment(ctx, id)
	if err != nil {
		return err
	}
	if parent.CreatedBy != ownerID {
		return apperr.Forbidden("You do not have permission to delete this sub-department")
	}
	if err := s.store.DeleteSubDepartment(ctx, sub.ID); err != nil {
		return storeErr(err, "Sub-department not found")
	}
	_ = audit.LogEvent(ctx, "sub_department.deleted", map[string]any{"sub_department_id": sub.ID})
	return nil
}

func (s *Service) findDepartment(ctx context.Context, id int64) (*Department, error) {
	if id < 1 {
		return nil, apperr.NotFound("Invalid department ID")
	}
	d, err := s.store.FindDepartment(ctx, id)
	if err != nil {
		return nil, storeErr(err, "Department not found")
	}
	return d, nil
}

// findSubDepartment loads the sub-department and the parent that decides ownership.
func (s *Service) findSubDepartment(ctx context.Context, id int64) (*SubDepartment, *Department, error) {
	if id < 1 {
		return nil, nil, apperr.NotFound("Invalid sub-department ID")
	}
	sub, err := s.store.FindSubDepartment(ctx, id)
	if err != nil {
		return nil, nil, storeErr(err, "Sub-department not found")
	}
	parent, err := s.store.FindDepartment(ctx, sub.DepartmentID)
	if err != nil {
		return nil, nil, storeErr(err, fmt.Sprintf("Parent department with ID %d not found", sub.DepartmentID))
	}
	return sub, parent, nil
}

func storeErr(err error, notFound string) error {
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound(notFound)
	}
	return apperr.Internal(err)
}
