package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/cirrus/pkg/db/pagination"
)

type CreateCustomerRequest struct {
	ExternalID string
	Name       string
	Email      string
	Currency   string
}

type GetCustomerRequest struct {
	ID string
}

type ListCustomerRequest struct {
	PageToken   string
	PageSize    int32
	ExternalID  string
	Name        string
	Currency    string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type ListCustomerFilter struct {
	ExternalID  string
	Name        string
	Currency    string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type ListCustomerResponse struct {
	pagination.PageInfo
	Customers []Customer `json:"customers"`
}

type CreateProjectRequest struct {
	ProjectID string
	Name      string
	Provider  string
}

type ListProjectRequest struct {
	PageToken string
	PageSize  int32
	Provider  string
}

type ListProjectResponse struct {
	pagination.PageInfo
	Projects []Project `json:"projects"`
}

type BindProjectRequest struct {
	ProjectID  string
	CustomerID string
}

type UnbindProjectRequest struct {
	ProjectID string
}

type Service interface {
	Create(context.Context, CreateCustomerRequest) (Customer, error)
	GetByID(context.Context, GetCustomerRequest) (Customer, error)
	List(context.Context, ListCustomerRequest) (ListCustomerResponse, error)

	CreateProject(context.Context, CreateProjectRequest) (Project, error)
	ListProjects(context.Context, ListProjectRequest) (ListProjectResponse, error)
	BindProject(context.Context, BindProjectRequest) (ProjectBinding, error)
	UnbindProject(context.Context, UnbindProjectRequest) error
}

var (
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidEmail     = errors.New("invalid_email")
	ErrInvalidCurrency  = errors.New("invalid_currency")
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidProjectID = errors.New("invalid_project_id")
	ErrNotFound         = errors.New("not_found")
	ErrProjectNotFound  = errors.New("project_not_found")
	ErrDuplicateProject = errors.New("duplicate_project")
	ErrAlreadyBound     = errors.New("project_already_bound")
	ErrNotBound         = errors.New("project_not_bound")
)
