package repository

import (
	"time"

	"walletledger/internal/model"

	"gorm.io/gorm"
)

// ByOwner 按所有者过滤，账户、券、支付记录、退款、流水、充值单共用
//
// 各表的所有者列名不完全相同（支付记录是 payer_kind/payer_id），由 columns 指定，
// 缺省为 owner_kind/owner_id。
func ByOwner(owner model.Owner, columns ...string) func(*gorm.DB) *gorm.DB {
	kindCol, idCol := "owner_kind", "owner_id"
	if len(columns) == 2 {
		kindCol, idCol = columns[0], columns[1]
	}
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(kindCol+" = ? AND "+idCol+" = ?", owner.Kind, owner.ID)
	}
}

// Paginate 分页，page 从 1 开始
func Paginate(page, pageSize int) func(*gorm.DB) *gorm.DB {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 200 {
		pageSize = 200
	}
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset((page - 1) * pageSize).Limit(pageSize)
	}
}

// TimeRange 按时间列过滤，零值表示不限制
func TimeRange(column string, start, end time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if !start.IsZero() {
			db = db.Where(column+" >= ?", start)
		}
		if !end.IsZero() {
			db = db.Where(column+" < ?", end)
		}
		return db
	}
}
