package repository

import "time"

// PaymentListFilter 查询付款列表的过滤条件
type PaymentListFilter struct {
	Page        int
	PageSize    int
	Type        string
	Status      string
	PayeeType   string
	PayeeID     uint
	BatchID     uint
	Unbatched   bool
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// BatchListFilter 查询批次列表的过滤条件
type BatchListFilter struct {
	Page     int
	PageSize int
	Status   string
	Type     string
}

// ReferralListFilter 查询推荐关系的过滤条件
type ReferralListFilter struct {
	Page       int
	PageSize   int
	ReferrerID uint
	Status     string
}
