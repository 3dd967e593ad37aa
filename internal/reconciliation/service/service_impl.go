package service

import (
	"context"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/cirrus/internal/clock"
	"github.com/smallbiznis/cirrus/internal/reconciliation/domain"
	"github.com/smallbiznis/cirrus/pkg/billingmonth"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// unassignedLimit caps the unassigned-project section to the biggest spenders.
const unassignedLimit = 50

var oneHundred = decimal.NewFromInt(100)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("reconciliation.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Report(ctx context.Context, req domain.ReportRequest) (domain.Report, error) {
	month := strings.TrimSpace(req.BillingMonth)
	start, end, err := billingmonth.Parse(month)
	if err != nil {
		return domain.Report{}, domain.ErrInvalidBillingMonth
	}

	rawTotals, err := s.repo.RawTotals(ctx, s.db, start, end, req.CustomerIDs)
	if err != nil {
		return domain.Report{}, err
	}
	invoicedTotals, err := s.repo.InvoicedTotals(ctx, s.db, month, req.CustomerIDs)
	if err != nil {
		return domain.Report{}, err
	}

	rawByCustomer, err := s.repo.RawTotalsByCustomer(ctx, s.db, start, end, req.CustomerIDs)
	if err != nil {
		return domain.Report{}, err
	}
	invoicedByCustomer, err := s.repo.InvoicedTotalsByCustomer(ctx, s.db, month, req.CustomerIDs)
	if err != nil {
		return domain.Report{}, err
	}

	// Unassigned cost is attributable to no customer, so a customer-scoped
	// report carries empty unassigned sections.
	var unassigned []domain.UnassignedProject
	var unassignedTotals []domain.UnassignedCostTotal
	if len(req.CustomerIDs) == 0 {
		unassigned, err = s.repo.UnassignedProjectTotals(ctx, s.db, start, end, unassignedLimit)
		if err != nil {
			return domain.Report{}, err
		}
		unassignedTotals, err = s.repo.UnassignedCostTotals(ctx, s.db, start, end)
		if err != nil {
			return domain.Report{}, err
		}
	}

	return domain.Report{
		BillingMonth:         month,
		GeneratedAt:          s.clock.Now(),
		Totals:               mergeTotals(rawTotals, invoicedTotals),
		Customers:            mergeCustomerTotals(rawByCustomer, invoicedByCustomer),
		UnassignedProjects:   unassigned,
		UnassignedCostTotals: unassignedTotals,
	}, nil
}

// variancePercent is (invoiced - raw) / raw * 100 rounded to two decimals.
// A month with no raw cost reports an explicit zero rather than dividing.
func variancePercent(raw, variance int64) decimal.Decimal {
	if raw == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(variance).
		Div(decimal.NewFromInt(raw)).
		Mul(oneHundred).
		Round(2)
}

func mergeTotals(raw, invoiced []domain.CurrencyTotal) []domain.CurrencyVariance {
	rawByCurrency := make(map[string]int64, len(raw))
	for _, total := range raw {
		rawByCurrency[total.Currency] = total.Total
	}
	invoicedByCurrency := make(map[string]int64, len(invoiced))
	for _, total := range invoiced {
		invoicedByCurrency[total.Currency] = total.Total
	}

	currencies := make([]string, 0, len(rawByCurrency))
	for currency := range rawByCurrency {
		currencies = append(currencies, currency)
	}
	for currency := range invoicedByCurrency {
		if _, seen := rawByCurrency[currency]; !seen {
			currencies = append(currencies, currency)
		}
	}
	sort.Strings(currencies)

	variances := make([]domain.CurrencyVariance, 0, len(currencies))
	for _, currency := range currencies {
		rawTotal := rawByCurrency[currency]
		invoicedTotal := invoicedByCurrency[currency]
		variance := invoicedTotal - rawTotal
		variances = append(variances, domain.CurrencyVariance{
			Currency:        currency,
			RawCostTotal:    rawTotal,
			InvoicedTotal:   invoicedTotal,
			Variance:        variance,
			VariancePercent: variancePercent(rawTotal, variance),
		})
	}
	return variances
}

type customerCurrency struct {
	customerID snowflake.ID
	currency   string
}

func mergeCustomerTotals(raw, invoiced []domain.CustomerCurrencyTotal) []domain.CustomerVariance {
	rawByKey := make(map[customerCurrency]int64, len(raw))
	for _, total := range raw {
		rawByKey[customerCurrency{total.CustomerID, total.Currency}] = total.Total
	}
	invoicedByKey := make(map[customerCurrency]int64, len(invoiced))
	for _, total := range invoiced {
		invoicedByKey[customerCurrency{total.CustomerID, total.Currency}] = total.Total
	}

	keys := make([]customerCurrency, 0, len(rawByKey))
	for key := range rawByKey {
		keys = append(keys, key)
	}
	for key := range invoicedByKey {
		if _, seen := rawByKey[key]; !seen {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].customerID != keys[j].customerID {
			return keys[i].customerID < keys[j].customerID
		}
		return keys[i].currency < keys[j].currency
	})

	variances := make([]domain.CustomerVariance, 0, len(keys))
	for _, key := range keys {
		rawTotal := rawByKey[key]
		invoicedTotal := invoicedByKey[key]
		variance := invoicedTotal - rawTotal
		variances = append(variances, domain.CustomerVariance{
			CustomerID:      key.customerID,
			Currency:        key.currency,
			RawCostTotal:    rawTotal,
			InvoicedTotal:   invoicedTotal,
			Variance:        variance,
			VariancePercent: variancePercent(rawTotal, variance),
		})
	}
	return variances
}
