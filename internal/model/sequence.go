package model

// LedgerSequence 原子计数器，用于券的每日编号
type LedgerSequence struct {
	Name  string `gorm:"primaryKey;type:varchar(64)" json:"name"`
	Value int64  `gorm:"not null;default:0" json:"value"`
}

func (LedgerSequence) TableName() string {
	return "ledger_sequence"
}
