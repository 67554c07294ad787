package org

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store on the departments and sub_departments tables.
// sub_departments.department_id references departments with on delete cascade.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const departmentWithSubs = `
select d.id, d.name, d.created_by, d.created_at, d.updated_at,
       s.id, s.name, s.created_at, s.updated_at
from departments d
left join sub_departments s on s.department_id = d.id`

func (s *PGStore) CreateDepartment(ctx context.Context, d *Department) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx,
		`insert into departments(name, created_by) values($1,$2) returning id, created_at, updated_at`,
		d.Name, d.CreatedBy,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert department: %w", err)
	}
	for i := range d.SubDepartments {
		sub := &d.SubDepartments[i]
		sub.DepartmentID = d.ID
		if err := insertSub(ctx, tx, sub); err != nil {
			return err
		}
	}
	if d.SubDepartments == nil {
		d.SubDepartments = []SubDepartment{}
	}
	return tx.Commit()
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertSub(ctx context.Context, q queryRower, sub *SubDepartment) error {
	err := q.QueryRowContext(ctx,
		`insert into sub_departments(name, department_id) values($1,$2) returning id, created_at, updated_at`,
		sub.Name, sub.DepartmentID,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert sub-department: %w", err)
	}
	return nil
}

func (s *PGStore) FindDepartment(ctx context.Context, id int64) (*Department, error) {
	list, err := s.queryDepartments(ctx, departmentWithSubs+` where d.id=$1 order by s.id asc`, id)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return &list[0], nil
}

func (s *PGStore) ListDepartments(ctx context.Context, ownerID int64) ([]Department, error) {
	return s.queryDepartments(ctx, departmentWithSubs+` where d.created_by=$1 order by d.id asc, s.id asc`, ownerID)
}

// queryDepartments folds joined rows into departments, preserving row order.
func (s *PGStore) queryDepartments(ctx context.Context, query string, args ...any) ([]Department, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Department
	for rows.Next() {
		var (
			d          Department
			subID      sql.NullInt64
			subName    sql.NullString
			subCreated sql.NullTime
			subUpdated sql.NullTime
		)
		if err := rows.Scan(&d.ID, &d.Name, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt,
			&subID, &subName, &subCreated, &subUpdated); err != nil {
			return nil, err
		}
		if n := len(out); n == 0 || out[n-1].ID != d.ID {
			d.SubDepartments = []SubDepartment{}
			out = append(out, d)
		}
		if subID.Valid {
			last := &out[len(out)-1]
			last.SubDepartments = append(last.SubDepartments, SubDepartment{
				ID:           subID.Int64,
				Name:         subName.String,
				DepartmentID: d.ID,
				CreatedAt:    subCreated.Time,
				UpdatedAt:    subUpdated.Time,
			})
		}
	}
	return out, rows.Err()
}

func (s *PGStore) UpdateDepartment(ctx context.Context, id int64, name string) (*Department, error) {
	res, err := s.db.ExecContext(ctx,
		`update departments set name=$1, updated_at=$2 where id=$3`, name, time.Now().UTC(), id)
	if err != nil {
		return nil, err
	}
	if err := expectOne(res); err != nil {
		return nil, err
	}
	return s.FindDepartment(ctx, id)
}

func (s *PGStore) DeleteDepartment(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from departments where id=$1`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (s *PGStore) CreateSubDepartment(ctx context.Context, sub *SubDepartment) error {
	return insertSub(ctx, s.db, sub)
}

func (s *PGStore) FindSubDepartment(ctx context.Context, id int64) (*SubDepartment, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, department_id, created_at, updated_at from sub_departments where id=$1`, id)
	var sub SubDepartment
	if err := row.Scan(&sub.ID, &sub.Name, &sub.DepartmentID, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (s *PGStore) ListSubDepartments(ctx context.Context, ownerID int64) ([]SubDepartment, error) {
	rows, err := s.db.QueryContext(ctx, `
select s.id, s.name, s.department_id, s.created_at, s.updated_at
from sub_departments s
join departments d on d.id = s.department_id
where d.created_by=$1
order by s.id asc`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SubDepartment
	for rows.Next() {
		var sub SubDepartment
		if err := rows.Scan(&sub.ID, &sub.Name, &sub.DepartmentID, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *PGStore) UpdateSubDepartment(ctx context.Context, id int64, name string) (*SubDepartment, error) {
	res, err := s.db.ExecContext(ctx,
		`update sub_departments set name=$1, updated_at=$2 where id=$3`, name, time.Now().UTC(), id)
	if err != nil {
		return nil, err
	}
	if err := expectOne(res); err != nil {
		return nil, err
	}
	return s.FindSubDepartment(ctx, id)
}

func (s *PGStore) DeleteSubDepartment(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from sub_departments where id=$1`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
