package org

import (
	"context"
	"strings"
	"testing"

	"orgdesk.org/internal/apperr"
)

const (
	alice int64 = 1
	bob   int64 = 2
)

func newTestService() (*Service, *MemoryStore) {
	store := NewMemoryStore()
	return NewService(store), store
}

func mustCreate(t *testing.T, svc *Service, owner int64, name string, subs ...string) *Department {
	t.Helper()
	in := CreateDepartmentInput{Name: name}
	for _, s := range subs {
		in.SubDepartments = append(in.SubDepartments, SubDepartmentInput{Name: s})
	}
	d, err := svc.CreateDepartment(context.Background(), owner, in)
	if err != nil {
		t.Fatalf("CreateDepartment(%q): %v", name, err)
	}
	return d
}

func expectKind(t *testing.T, err error, kind apperr.Kind, message string) {
	t.Helper()
	e := apperr.From(err)
	if e == nil || e.Kind != kind {
		t.Fatalf("expected %s, got %v", kind, err)
	}
	if message != "" && e.Message != message {
		t.Fatalf("message=%q want %q", e.Message, message)
	}
}

func TestCreateDepartmentWithSubDepartments(t *testing.T) {
	svc, _ := newTestService()
	d := mustCreate(t, svc, alice, "  Engineering ", "Backend", "Frontend")

	if d.ID == 0 || d.Name != "Engineering" || d.CreatedBy != alice {
		t.Fatalf("unexpected department: %+v", d)
	}
	if len(d.SubDepartments) != 2 {
		t.Fatalf("expected 2 sub-departments, got %d", len(d.SubDepartments))
	}
	for _, s := range d.SubDepartments {
		if s.ID == 0 || s.DepartmentID != d.ID {
			t.Fatalf("sub-department not linked: %+v", s)
		}
	}

	got, err := svc.GetDepartment(context.Background(), alice, d.ID)
	if err != nil {
		t.Fatalf("GetDepartment: %v", err)
	}
	if len(got.SubDepartments) != 2 || got.SubDepartments[0].Name != "Backend" {
		t.Fatalf("unexpected sub-departments: %+v", got.SubDepartments)
	}
}

func TestCreateDepartmentValidation(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	cases := []struct {
		name  string
		in    CreateDepartmentInput
		field string
	}{
		{"empty", CreateDepartmentInput{Name: "   "}, "name"},
		{"too short", CreateDepartmentInput{Name: "A"}, "name"},
		{"too long", CreateDepartmentInput{Name: strings.Repeat("a", 101)}, "name"},
		{"charset", CreateDepartmentInput{Name: "R&D"}, "name"},
		{"bad sub", CreateDepartmentInput{Name: "Ops", SubDepartments: []SubDepartmentInput{{Name: "ok"}, {Name: "x!"}}}, "subDepartments[1].name"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateDepartment(ctx, alice, tc.in)
			expectKind(t, err, apperr.KindValidation, "")
			fields := apperr.From(err).Fields
			if len(fields) == 0 || fields[0].Field != tc.field {
				t.Fatalf("fields=%+v want %s", fields, tc.field)
			}
		})
	}

	list, _ := store.ListDepartments(ctx, alice)
	if len(list) != 0 {
		t.Fatalf("invalid input persisted %d departments", len(list))
	}
}

func TestDepartmentOwnership(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	d := mustCreate(t, svc, alice, "Engineering")

	_, err := svc.GetDepartment(ctx, bob, d.ID)
	expectKind(t, err, apperr.KindNotFound, "Department not found")

	_, err = svc.UpdateDepartment(ctx, bob, UpdateDepartmentInput{ID: d.ID, Name: "Stolen"})
	expectKind(t, err, apperr.KindForbidden, "You do not have permission to update this department")

	err = svc.DeleteDepartment(ctx, bob, d.ID)
	expectKind(t, err, apperr.KindForbidden, "You do not have permission to delete this department")

	_, err = svc.CreateSubDepartment(ctx, bob, CreateSubDepartmentInput{DepartmentID: d.ID, Name: "Shadow"})
	expectKind(t, err, apperr.KindForbidden, "You do not have permission to create sub-departments for this department")

	list, err := svc.ListDepartments(ctx, bob)
	if err != nil || len(list) != 0 {
		t.Fatalf("bob sees %d departments, err=%v", len(list), err)
	}

	updated, err := svc.UpdateDepartment(ctx, alice, UpdateDepartmentInput{ID: d.ID, Name: "Platform"})
	if err != nil {
		t.Fatalf("UpdateDepartment: %v", err)
	}
	if updated.Name != "Platform" {
		t.Fatalf("name=%q", updated.Name)
	}
}

func TestDepartmentNotFound(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.GetDepartment(ctx, alice, 0)
	expectKind(t, err, apperr.KindNotFound, "Invalid department ID")

	_, err = svc.GetDepartment(ctx, alice, 42)
	expectKind(t, err, apperr.KindNotFound, "Department not found")

	err = svc.DeleteDepartment(ctx, alice, 42)
	expectKind(t, err, apperr.KindNotFound, "Department not found")

	_, err = svc.CreateSubDepartment(ctx, alice, CreateSubDepartmentInput{DepartmentID: 42, Name: "Orphan"})
	expectKind(t, err, apperr.KindNotFound, "Department with ID 42 not found")

	_, err = svc.GetSubDepartment(ctx, alice, -1)
	expectKind(t, err, apperr.KindNotFound, "Invalid sub-department ID")
}

func TestDeleteDepartmentCascades(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	d := mustCreate(t, svc, alice, "Engineering", "Backend")
	other := mustCreate(t, svc, alice, "Sales", "Inbound")
	extra, err := svc.CreateSubDepartment(ctx, alice, CreateSubDepartmentInput{DepartmentID: d.ID, Name: "Infra"})
	if err != nil {
		t.Fatalf("CreateSubDepartment: %v", err)
	}

	if err := svc.DeleteDepartment(ctx, alice, d.ID); err != nil {
		t.Fatalf("DeleteDepartment: %v", err)
	}

	for _, id := range []int64{d.SubDepartments[0].ID, extra.ID} {
		_, err := svc.GetSubDepartment(ctx, alice, id)
		expectKind(t, err, apperr.KindNotFound, "Sub-department not found")
	}
	subs, err := svc.ListSubDepartments(ctx, alice)
	if err != nil {
		t.Fatalf("ListSubDepartments: %v", err)
	}
	if len(subs) != 1 || subs[0].ID != other.SubDepartments[0].ID {
		t.Fatalf("unexpected remaining sub-departments: %+v", subs)
	}
}

func TestSubDepartmentOwnershipFollowsParent(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	d := mustCreate(t, svc, alice, "Engineering", "Backend")
	subID := d.SubDepartments[0].ID

	_, err := svc.GetSubDepartment(ctx, bob, subID)
	expectKind(t, err, apperr.KindNotFound, "Sub-department not found")

	_, err = svc.UpdateSubDepartment(ctx, bob, UpdateSubDepartmentInput{ID: subID, Name: "Mine"})
	expectKind(t, err, apperr.KindForbidden, "You do not have permission to update this sub-department")

	err = svc.DeleteSubDepartment(ctx, bob, subID)
	expectKind(t, err, apperr.KindForbidden, "You do not have permission to delete this sub-department")

	sub, err := svc.UpdateSubDepartment(ctx, alice, UpdateSubDepartmentInput{ID: subID, Name: "Core API"})
	if err != nil || sub.Name != "Core API" {
		t.Fatalf("UpdateSubDepartment=%+v err=%v", sub, err)
	}
	if err := svc.DeleteSubDepartment(ctx, alice, subID); err != nil {
		t.Fatalf("DeleteSubDepartment: %v", err)
	}
	got, err := svc.GetDepartment(ctx, alice, d.ID)
	if err != nil || len(got.SubDepartments) != 0 {
		t.Fatalf("department still has %d sub-departments, err=%v", len(got.SubDepartments), err)
	}
}

func TestListsAreOrderedAndScoped(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	first := mustCreate(t, svc, alice, "Alpha", "A1")
	mustCreate(t, svc, bob, "Bravo", "B1")
	second := mustCreate(t, svc, alice, "Charlie", "C1", "C2")

	list, err := svc.ListDepartments(ctx, alice)
	if err != nil {
		t.Fatalf("ListDepartments: %v", err)
	}
	if len(list) != 2 || list[0].ID != first.ID || list[1].ID != second.ID {
		t.Fatalf("unexpected departments: %+v", list)
	}
	subs, err := svc.ListSubDepartments(ctx, alice)
	if err != nil {
		t.Fatalf("ListSubDepartments: %v", err)
	}
	if len(subs) != 3 {
		t.Fatalf("expected 3 sub-departments, got %d", len(subs))
	}
	for i := 1; i < len(subs); i++ {
		if subs[i-1].ID >= subs[i].ID {
			t.Fatalf("sub-departments not ordered: %+v", subs)
		}
	}

	empty, err := svc.ListDepartments(ctx, 99)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v err=%v", empty, err)
	}
}
