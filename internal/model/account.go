package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account 余额账户表
// 每个用户、每个 VO 各一个，首次需要时创建，只调整余额从不删除
type Account struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerKind OwnerKind       `gorm:"type:varchar(16);uniqueIndex:uk_account_owner,priority:1;not null" json:"owner_kind"`
	OwnerID   string          `gorm:"type:varchar(64);uniqueIndex:uk_account_owner,priority:2;not null" json:"owner_id"`
	Balance   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"balance"` // 可为负数（欠费）
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}

func (a *Account) Owner() Owner {
	return Owner{Kind: a.OwnerKind, ID: a.OwnerID}
}
