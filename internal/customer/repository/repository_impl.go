package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cirrus/internal/customer/domain"
	"github.com/smallbiznis/cirrus/pkg/db/option"
	"github.com/smallbiznis/cirrus/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, customer *domain.Customer) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO customers (id, external_id, name, email, currency, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		customer.ID,
		customer.ExternalID,
		customer.Name,
		customer.Email,
		customer.Currency,
		customer.Metadata,
		customer.CreatedAt,
		customer.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT id, external_id, name, email, currency, metadata, created_at, updated_at
		 FROM customers WHERE id = ?`,
		id,
	).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListCustomerFilter, page pagination.Pagination) ([]*domain.Customer, error) {
	var customers []*domain.Customer
	stmt := db.WithContext(ctx).Model(&domain.Customer{})
	if filter.ExternalID != "" {
		stmt = stmt.Where("external_id = ?", filter.ExternalID)
	}
	if filter.Name != "" {
		stmt = stmt.Where("name = ?", filter.Name)
	}
	if filter.Currency != "" {
		stmt = stmt.Where("currency = ?", filter.Currency)
	}
	if filter.CreatedFrom != nil {
		stmt = stmt.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		stmt = stmt.Where("created_at <= ?", *filter.CreatedTo)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&customers).Error
	if err != nil {
		return nil, err
	}
	return customers, nil
}

func (r *repo) InsertProject(ctx context.Context, db *gorm.DB, project *domain.Project) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO projects (id, project_id, name, provider, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		project.ID,
		project.ProjectID,
		project.Name,
		project.Provider,
		project.CreatedAt,
		project.UpdatedAt,
	).Error
}

func (r *repo) FindProject(ctx context.Context, db *gorm.DB, projectID string) (*domain.Project, error) {
	var project domain.Project
	err := db.WithContext(ctx).Raw(
		`SELECT id, project_id, name, provider, created_at, updated_at
		 FROM projects WHERE project_id = ?`,
		projectID,
	).Scan(&project).Error
	if err != nil {
		return nil, err
	}
	if project.ID == 0 {
		return nil, nil
	}
	return &project, nil
}

func (r *repo) ListProjects(ctx context.Context, db *gorm.DB, provider string, page pagination.Pagination) ([]*domain.Project, error) {
	var projects []*domain.Project
	stmt := db.WithContext(ctx).Model(&domain.Project{})
	if provider != "" {
		stmt = stmt.Where("provider = ?", provider)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&projects).Error
	if err != nil {
		return nil, err
	}
	return projects, nil
}

func (r *repo) ActiveBinding(ctx context.Context, db *gorm.DB, projectID string) (*domain.ProjectBinding, error) {
	var binding domain.ProjectBinding
	err := db.WithContext(ctx).Raw(
		`SELECT id, project_id, customer_id, status, bound_at, unbound_at, created_at, updated_at
		 FROM project_bindings WHERE project_id = ? AND status = ?`,
		projectID,
		domain.BindingActive,
	).Scan(&binding).Error
	if err != nil {
		return nil, err
	}
	if binding.ID == 0 {
		return nil, nil
	}
	return &binding, nil
}

func (r *repo) ActiveBindings(ctx context.Context, db *gorm.DB) ([]*domain.ProjectBinding, error) {
	var bindings []*domain.ProjectBinding
	err := db.WithContext(ctx).
		Model(&domain.ProjectBinding{}).
		Where("status = ?", domain.BindingActive).
		Find(&bindings).Error
	if err != nil {
		return nil, err
	}
	return bindings, nil
}

func (r *repo) InsertBinding(ctx context.Context, db *gorm.DB, binding *domain.ProjectBinding) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO project_bindings (id, project_id, customer_id, status, bound_at, unbound_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		binding.ID,
		binding.ProjectID,
		binding.CustomerID,
		binding.Status,
		binding.BoundAt,
		binding.UnboundAt,
		binding.CreatedAt,
		binding.UpdatedAt,
	).Error
}

func (r *repo) DeactivateBinding(ctx context.Context, db *gorm.DB, projectID string, unboundAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE project_bindings
		 SET status = ?, unbound_at = ?, updated_at = ?
		 WHERE project_id = ? AND status = ?`,
		domain.BindingInactive,
		unboundAt,
		unboundAt,
		projectID,
		domain.BindingActive,
	).Error
}
