package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cirrus/internal/customer/domain"
	"github.com/smallbiznis/cirrus/pkg/db"
	"github.com/smallbiznis/cirrus/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("customer.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateCustomerRequest) (domain.Customer, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Customer{}, domain.ErrInvalidName
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return domain.Customer{}, domain.ErrInvalidEmail
	}

	currency, err := normalizeCurrency(req.Currency)
	if err != nil {
		return domain.Customer{}, err
	}

	now := time.Now().UTC()
	customer := domain.Customer{
		ID:         s.genID.Generate(),
		ExternalID: strings.TrimSpace(req.ExternalID),
		Name:       name,
		Email:      email,
		Currency:   currency,
		Metadata:   datatypes.JSONMap{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.Insert(ctx, s.db, &customer); err != nil {
		return domain.Customer{}, err
	}

	return customer, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetCustomerRequest) (domain.Customer, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil {
		return domain.Customer{}, domain.ErrInvalidID
	}

	customer, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Customer{}, err
	}
	if customer == nil {
		return domain.Customer{}, domain.ErrNotFound
	}
	return *customer, nil
}

func (s *Service) List(ctx context.Context, req domain.ListCustomerRequest) (domain.ListCustomerResponse, error) {
	filter := domain.ListCustomerFilter{
		ExternalID:  strings.TrimSpace(req.ExternalID),
		Name:        strings.TrimSpace(req.Name),
		Currency:    strings.ToUpper(strings.TrimSpace(req.Currency)),
		CreatedFrom: req.CreatedFrom,
		CreatedTo:   req.CreatedTo,
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListCustomerResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(customer *domain.Customer) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        customer.ID.String(),
			CreatedAt: customer.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	customers := make([]domain.Customer, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		customers = append(customers, *item)
	}

	resp := domain.ListCustomerResponse{Customers: customers}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) CreateProject(ctx context.Context, req domain.CreateProjectRequest) (domain.Project, error) {
	projectID := strings.TrimSpace(req.ProjectID)
	if projectID == "" {
		return domain.Project{}, domain.ErrInvalidProjectID
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = projectID
	}

	now := time.Now().UTC()
	project := domain.Project{
		ID:        s.genID.Generate(),
		ProjectID: projectID,
		Name:      name,
		Provider:  strings.ToLower(strings.TrimSpace(req.Provider)),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.InsertProject(ctx, s.db, &project); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Project{}, domain.ErrDuplicateProject
		}
		return domain.Project{}, err
	}

	return project, nil
}

func (s *Service) ListProjects(ctx context.Context, req domain.ListProjectRequest) (domain.ListProjectResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.ListProjects(ctx, s.db, strings.ToLower(strings.TrimSpace(req.Provider)), pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListProjectResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(project *domain.Project) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        project.ID.String(),
			CreatedAt: project.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	projects := make([]domain.Project, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		projects = append(projects, *item)
	}

	resp := domain.ListProjectResponse{Projects: projects}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

// BindProject activates a binding for the project. A project with a live
// binding cannot be bound again, regardless of which customer holds it;
// moving a project requires an explicit unbind first.
func (s *Service) BindProject(ctx context.Context, req domain.BindProjectRequest) (domain.ProjectBinding, error) {
	projectID := strings.TrimSpace(req.ProjectID)
	if projectID == "" {
		return domain.ProjectBinding{}, domain.ErrInvalidProjectID
	}
	customerID, err := snowflake.ParseString(strings.TrimSpace(req.CustomerID))
	if err != nil {
		return domain.ProjectBinding{}, domain.ErrInvalidID
	}

	var binding domain.ProjectBinding
	err = s.db.Transaction(func(tx *gorm.DB) error {
		project, err := s.repo.FindProject(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if project == nil {
			return domain.ErrProjectNotFound
		}

		customer, err := s.repo.FindByID(ctx, tx, customerID)
		if err != nil {
			return err
		}
		if customer == nil {
			return domain.ErrNotFound
		}

		current, err := s.repo.ActiveBinding(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if current != nil {
			return domain.ErrAlreadyBound
		}

		now := time.Now().UTC()
		binding = domain.ProjectBinding{
			ID:         s.genID.Generate(),
			ProjectID:  projectID,
			CustomerID: customerID,
			Status:     domain.BindingActive,
			BoundAt:    now,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.repo.InsertBinding(ctx, tx, &binding); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrAlreadyBound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return domain.ProjectBinding{}, err
	}

	s.log.Info("project bound",
		zap.String("project_id", projectID),
		zap.String("customer_id", customerID.String()),
	)
	return binding, nil
}

func (s *Service) UnbindProject(ctx context.Context, req domain.UnbindProjectRequest) error {
	projectID := strings.TrimSpace(req.ProjectID)
	if projectID == "" {
		return domain.ErrInvalidProjectID
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.ActiveBinding(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotBound
		}
		return s.repo.DeactivateBinding(ctx, tx, projectID, time.Now().UTC())
	})
}

func normalizeCurrency(raw string) (string, error) {
	currency := strings.ToUpper(strings.TrimSpace(raw))
	if len(currency) != 3 {
		return "", domain.ErrInvalidCurrency
	}
	for _, r := range currency {
		if r < 'A' || r > 'Z' {
			return "", domain.ErrInvalidCurrency
		}
	}
	return currency, nil
}
