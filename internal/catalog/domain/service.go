package domain

import (
	"context"
	"errors"
)

type CreateSkuGroupRequest struct {
	Code string
	Name string
}

type SkuInput struct {
	SkuID       string
	Service     string
	Description string
}

// UpsertSkusRequest registers provider SKUs under a group. The whole batch
// applies or none of it does.
type UpsertSkusRequest struct {
	GroupCode string
	Skus      []SkuInput
}

type ListSkuGroupRequest struct{}

type ListSkuGroupResponse struct {
	Groups []SkuGroup `json:"groups"`
}

type ListSkusRequest struct {
	GroupCode string
}

type ListSkusResponse struct {
	Skus []Sku `json:"skus"`
}

type Service interface {
	CreateGroup(context.Context, CreateSkuGroupRequest) (SkuGroup, error)
	ListGroups(context.Context, ListSkuGroupRequest) (ListSkuGroupResponse, error)
	UpsertSkus(context.Context, UpsertSkusRequest) ([]Sku, error)
	ListSkus(context.Context, ListSkusRequest) (ListSkusResponse, error)
}

var (
	ErrInvalidCode    = errors.New("invalid_code")
	ErrInvalidName    = errors.New("invalid_name")
	ErrInvalidSkuID   = errors.New("invalid_sku_id")
	ErrEmptyBatch     = errors.New("empty_batch")
	ErrGroupNotFound  = errors.New("sku_group_not_found")
	ErrDuplicateCode  = errors.New("duplicate_code")
	ErrDuplicateSkuID = errors.New("duplicate_sku_id")
)
