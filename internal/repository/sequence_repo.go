package repository

import (
	"context"

	"walletledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SequenceRepository struct {
	db *gorm.DB
}

func NewSequenceRepository(db *gorm.DB) *SequenceRepository {
	return &SequenceRepository{db: db}
}

// NextN 在事务内原子地取 n 个连续序号，返回第一个
//
// SELECT ... FOR UPDATE 锁住计数行后自增，并发调用会排队而不是冲突重试。
func (r *SequenceRepository) NextN(ctx context.Context, tx *gorm.DB, name string, n int) (int64, error) {
	err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.LedgerSequence{Name: name, Value: 0}).Error
	if err != nil {
		return 0, err
	}

	var seq model.LedgerSequence
	err = tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("name = ?", name).
		First(&seq).Error
	if err != nil {
		return 0, err
	}

	err = tx.WithContext(ctx).
		Model(&model.LedgerSequence{}).
		Where("name = ?", name).
		Update("value", seq.Value+int64(n)).Error
	if err != nil {
		return 0, err
	}
	return seq.Value + 1, nil
}
