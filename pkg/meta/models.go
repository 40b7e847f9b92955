package meta

import (
	"time"

	"gorm.io/datatypes"
)

// 推广 (pin + 领奖) 流水的状态
const (
	// PromotionPinnedUnclaimed 已 pin 到本地，奖励尚未领取成功
	PromotionPinnedUnclaimed = "pinned-unclaimed"
	// PromotionClaimed 奖励已领取
	PromotionClaimed = "claimed"
)

// RecordModel 是账本记录在本地的镜像
// 只用于离线展示和 export，访问判定始终以账本为准。
type RecordModel struct {
	CID         string `gorm:"column:cid;primaryKey;type:varchar(128)"`
	Owner       string `gorm:"index;type:varchar(100)"`
	OwnerName   string `gorm:"type:varchar(100)"`
	FileKind    string `gorm:"type:varchar(16)"`
	FeePaid     uint64
	ConsumerFee uint64
	Title       string `gorm:"type:varchar(100)"`
	Description string `gorm:"type:text"`

	// Fingerprint 记录内容的 canonical CBOR 指纹，用于判断是否需要更新
	Fingerprint string `gorm:"type:char(64)"`

	UpdatedAt time.Time
}

func (RecordModel) TableName() string {
	return "records"
}

// PurchaseModel 某个 CID 的购买者集合快照 (只增不减)
type PurchaseModel struct {
	CID string `gorm:"column:cid;primaryKey;type:varchar(128)"`

	// Purchasers: JSON 数组 ["0xabc", "0xdef"]
	Purchasers datatypes.JSON

	UpdatedAt time.Time
}

func (PurchaseModel) TableName() string {
	return "purchases"
}

// PromotionModel 是 lockFile saga 的持久化流水
// pinned-unclaimed 状态的行就是需要 RetryClaim 修复的工作项。
type PromotionModel struct {
	CID       string `gorm:"column:cid;primaryKey;type:varchar(128)"`
	Owner     string `gorm:"type:varchar(100)"`
	State     string `gorm:"index;type:varchar(32);not null"`
	Amount    uint64
	Attempts  int
	TxRef     string `gorm:"type:varchar(128)"`
	LastError string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (PromotionModel) TableName() string {
	return "promotions"
}

// PinModel 本地已锁定 (pin) 的内容
type PinModel struct {
	CID       string `gorm:"column:cid;primaryKey;type:varchar(128)"`
	SizeBytes int64
	Source    string `gorm:"type:varchar(255)"` // 字节来源 (peer 地址或 "local")
	PinnedAt  time.Time
}

func (PinModel) TableName() string {
	return "pins"
}
