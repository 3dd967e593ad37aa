package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/cirrus/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	roleName, actorType, actorID, err := s.resolveActor(ctx, actor)
	if err != nil {
		s.auditDenied(ctx, actorType, actorID, object, action)
		return err
	}

	if err := s.ensureGrouping(actor, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(actor, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actorType, actorID, object, action)
		return ErrForbidden
	}

	if shouldAuditGrant(action) {
		s.auditGranted(ctx, actorType, actorID, object, action)
	}
	return nil
}

// ScopedCustomerIDs reads the actor's customer-scoped grants. No scoped rows
// means the actor sees everything its role allows.
func (s *ServiceImpl) ScopedCustomerIDs(ctx context.Context, actor string) ([]snowflake.ID, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, ErrInvalidActor
	}
	if actor == "system" || strings.HasPrefix(actor, "api_key:") {
		return nil, nil
	}

	var ids []snowflake.ID
	err := s.db.WithContext(ctx).Raw(
		`SELECT DISTINCT customer_id FROM access_grants
		 WHERE actor = ? AND customer_id IS NOT NULL
		 ORDER BY customer_id ASC`,
		actor,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return ids, nil
}

func (s *ServiceImpl) resolveActor(ctx context.Context, actor string) (string, string, *string, error) {
	if actor == "system" {
		return "role:system", "system", nil, nil
	}
	if raw, found := strings.CutPrefix(actor, "api_key:"); found {
		apiKeyID, err := snowflake.ParseString(raw)
		if err != nil || apiKeyID == 0 {
			return "", "api_key", nil, ErrInvalidActor
		}
		id := apiKeyID.String()
		return "role:system", "api_key", &id, nil
	}
	if raw, found := strings.CutPrefix(actor, "user:"); found {
		userID, err := snowflake.ParseString(raw)
		if err != nil || userID == 0 {
			return "", "user", nil, ErrInvalidActor
		}
		id := userID.String()
		role, err := s.roleForActor(ctx, actor)
		if err != nil {
			return "", "user", &id, err
		}
		return "role:" + strings.ToLower(role), "user", &id, nil
	}
	return "", "", nil, ErrInvalidActor
}

func (s *ServiceImpl) roleForActor(ctx context.Context, actor string) (string, error) {
	var row struct {
		Role string `gorm:"column:role"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT role FROM access_grants WHERE actor = ? LIMIT 1`,
		actor,
	).Scan(&row).Error; err != nil {
		return "", err
	}

	role := strings.TrimSpace(row.Role)
	if role == "" {
		return "", ErrForbidden
	}
	return role, nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actorType string, actorID *string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, actorType, actorID, "authorization.denied", "authorization", &targetID, map[string]any{
		"object": object,
		"action": action,
	})
}

func (s *ServiceImpl) auditGranted(ctx context.Context, actorType string, actorID *string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, actorType, actorID, "authorization.granted", "authorization", &targetID, map[string]any{
		"object": object,
		"action": action,
	})
}

// shouldAuditGrant limits granted-side audit noise to the operations that
// move money or lock state.
func shouldAuditGrant(action string) bool {
	switch action {
	case ActionInvoiceRunStart, ActionInvoiceRunRelease, ActionInvoiceCancel, ActionInvoiceLock, ActionCreditCreate:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	viewPolicies := [][]string{
		{ObjectCustomer, ActionCustomerView},
		{ObjectProject, ActionProjectView},
		{ObjectCatalog, ActionCatalogView},
		{ObjectPricingList, ActionPricingListView},
		{ObjectCredit, ActionCreditView},
		{ObjectCostEntry, ActionCostEntryView},
		{ObjectInvoice, ActionInvoiceView},
		{ObjectInvoiceRun, ActionInvoiceRunView},
		{ObjectReconciliation, ActionReconciliationView},
		{ObjectTax, ActionTaxView},
	}
	writePolicies := [][]string{
		{ObjectCustomer, ActionCustomerCreate},
		{ObjectProject, ActionProjectCreate},
		{ObjectProject, ActionProjectBind},
		{ObjectProject, ActionProjectUnbind},
		{ObjectCatalog, ActionCatalogManage},
		{ObjectPricingList, ActionPricingListManage},
		{ObjectCredit, ActionCreditCreate},
		{ObjectCredit, ActionCreditApply},
		{ObjectCostEntry, ActionCostEntryIngest},
		{ObjectInvoice, ActionInvoiceIssue},
		{ObjectInvoice, ActionInvoiceCancel},
		{ObjectInvoice, ActionInvoiceLock},
		{ObjectInvoiceRun, ActionInvoiceRunStart},
		{ObjectInvoiceRun, ActionInvoiceRunRelease},
		{ObjectTax, ActionTaxManage},
		{ObjectAuditLog, ActionAuditLogView},
	}
	finopsPolicies := [][]string{
		{ObjectInvoice, ActionInvoiceIssue},
		{ObjectInvoiceRun, ActionInvoiceRunStart},
		{ObjectCredit, ActionCreditApply},
	}

	policies := make([][]string, 0, 3*len(viewPolicies)+2*len(writePolicies))
	for _, role := range []string{"role:viewer", "role:finops", "role:admin", "role:system"} {
		for _, policy := range viewPolicies {
			policies = append(policies, []string{role, policy[0], policy[1]})
		}
	}
	for _, role := range []string{"role:admin", "role:system"} {
		for _, policy := range writePolicies {
			policies = append(policies, []string{role, policy[0], policy[1]})
		}
	}
	for _, policy := range finopsPolicies {
		policies = append(policies, []string{"role:finops", policy[0], policy[1]})
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
