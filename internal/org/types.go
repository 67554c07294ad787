package org

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("org: not found")

// Department is owned by the user who created it.
type Department struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	CreatedBy      int64           `json:"createdBy"`
	SubDepartments []SubDepartment `json:"subDepartments"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// SubDepartment belongs to a department and is removed with it.
// Ownership is always read from the parent.
type SubDepartment struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	DepartmentID int64     `json:"departmentId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type SubDepartmentInput struct {
	Name string `json:"name"`
}

type CreateDepartmentInput struct {
	Name           string               `json:"name"`
	SubDepartments []SubDepartmentInput `json:"subDepartments"`
}

type UpdateDepartmentInput struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type CreateSubDepartmentInput struct {
	DepartmentID int64  `json:"departmentId"`
	Name         string `json:"name"`
}

type UpdateSubDepartmentInput struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
