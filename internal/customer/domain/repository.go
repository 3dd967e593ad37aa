package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cirrus/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, customer *Customer) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Customer, error)
	List(ctx context.Context, db *gorm.DB, filter ListCustomerFilter, page pagination.Pagination) ([]*Customer, error)

	InsertProject(ctx context.Context, db *gorm.DB, project *Project) error
	FindProject(ctx context.Context, db *gorm.DB, projectID string) (*Project, error)
	ListProjects(ctx context.Context, db *gorm.DB, provider string, page pagination.Pagination) ([]*Project, error)

	ActiveBinding(ctx context.Context, db *gorm.DB, projectID string) (*ProjectBinding, error)
	ActiveBindings(ctx context.Context, db *gorm.DB) ([]*ProjectBinding, error)
	InsertBinding(ctx context.Context, db *gorm.DB, binding *ProjectBinding) error
	DeactivateBinding(ctx context.Context, db *gorm.DB, projectID string, unboundAt time.Time) error
}
