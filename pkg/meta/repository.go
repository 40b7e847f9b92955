package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"boxpeer/pkg/core"
	"boxpeer/pkg/types"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrPromotionNotFound = errors.New("promotion not found")
	ErrPinNotFound       = errors.New("pin not found")
)

// Repository 封装所有对 SQL 数据库的操作
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// -----------------------------------------------------------------------------
// 1. 账本镜像 (Records / Purchasers)
// -----------------------------------------------------------------------------

// UpsertRecords 把一次 ListAllContent 的结果写入镜像
// 指纹未变的行不会被改写。
func (r *Repository) UpsertRecords(ctx context.Context, records []core.ContentRecord) error {
	if len(records) == 0 {
		return nil
	}
	models := make([]RecordModel, 0, len(records))
	for _, rec := range records {
		fp, err := rec.Fingerprint()
		if err != nil {
			return fmt.Errorf("fingerprint %s: %w", rec.CID, err)
		}
		models = append(models, RecordModel{
			CID:         rec.CID.String(),
			Owner:       rec.Owner.String(),
			OwnerName:   rec.OwnerName,
			FileKind:    rec.FileKind.String(),
			FeePaid:     uint64(rec.FeePaid),
			ConsumerFee: uint64(rec.ConsumerFee),
			Title:       rec.Title,
			Description: rec.Description,
			Fingerprint: fp,
		})
	}

	// 幂等写入：CID 冲突时只在指纹变化的情况下更新
	err := r.db.GetConn().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "cid"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"owner", "owner_name", "file_kind", "fee_paid", "consumer_fee",
				"title", "description", "fingerprint", "updated_at",
			}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "records.fingerprint <> excluded.fingerprint"},
			}},
		}).
		Create(&models).Error
	if err != nil {
		return fmt.Errorf("failed to mirror records: %w", err)
	}
	return nil
}

// ListRecords 返回镜像中的所有记录，按 CID 排序
func (r *Repository) ListRecords(ctx context.Context) ([]core.ContentRecord, error) {
	var models []RecordModel
	if err := r.db.GetConn().WithContext(ctx).Order("cid").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]core.ContentRecord, 0, len(models))
	for _, m := range models {
		out = append(out, m.toRecord())
	}
	return out, nil
}

// GetRecord 返回 core.ErrRecordMissing 如果镜像里没有
func (r *Repository) GetRecord(ctx context.Context, id types.CID) (core.ContentRecord, error) {
	var m RecordModel
	err := r.db.GetConn().WithContext(ctx).Where("cid = ?", id.String()).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.ContentRecord{}, fmt.Errorf("%w: %s", core.ErrRecordMissing, id)
	}
	if err != nil {
		return core.ContentRecord{}, err
	}
	return m.toRecord(), nil
}

func (m RecordModel) toRecord() core.ContentRecord {
	return core.ContentRecord{
		CID:         types.CID(m.CID),
		Owner:       types.Address(m.Owner),
		OwnerName:   m.OwnerName,
		FileKind:    types.FileKind(m.FileKind),
		FeePaid:     types.Octas(m.FeePaid),
		ConsumerFee: types.Octas(m.ConsumerFee),
		Title:       m.Title,
		Description: m.Description,
	}
}

// MergePurchasers 把新观察到的购买者并入快照，返回合并后的集合
// 快照只增不减，账本返回的较小集合不会让本地集合缩小。
func (r *Repository) MergePurchasers(ctx context.Context, id types.CID, seen core.PurchaserSet) (core.PurchaserSet, error) {
	var merged core.PurchaserSet
	err := r.db.GetConn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := loadPurchasers(tx, id)
		if err != nil {
			return err
		}
		merged = existing.Merge(seen)

		raw, err := json.Marshal(merged.Addresses())
		if err != nil {
			return fmt.Errorf("failed to marshal purchasers: %w", err)
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cid"}},
			DoUpdates: clause.AssignmentColumns([]string{"purchasers", "updated_at"}),
		}).Create(&PurchaseModel{
			CID:        id.String(),
			Purchasers: datatypes.JSON(raw),
		}).Error
	})
	if err != nil {
		return core.PurchaserSet{}, fmt.Errorf("failed to merge purchasers for %s: %w", id, err)
	}
	return merged, nil
}

// GetPurchasers 没有快照时返回空集合
func (r *Repository) GetPurchasers(ctx context.Context, id types.CID) (core.PurchaserSet, error) {
	return loadPurchasers(r.db.GetConn().WithContext(ctx), id)
}

func loadPurchasers(tx *gorm.DB, id types.CID) (core.PurchaserSet, error) {
	var m PurchaseModel
	err := tx.Where("cid = ?", id.String()).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.NewPurchaserSet(), nil
	}
	if err != nil {
		return core.PurchaserSet{}, err
	}
	var addrs []types.Address
	if len(m.Purchasers) > 0 {
		if err := json.Unmarshal(m.Purchasers, &addrs); err != nil {
			return core.PurchaserSet{}, fmt.Errorf("corrupt purchaser snapshot for %s: %w", id, err)
		}
	}
	return core.NewPurchaserSet(addrs...), nil
}

// -----------------------------------------------------------------------------
// 2. 推广流水 (Promotions)
// -----------------------------------------------------------------------------

// SavePromotion 按 CID 覆盖写入
func (r *Repository) SavePromotion(ctx context.Context, p *PromotionModel) error {
	err := r.db.GetConn().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cid"}},
			DoUpdates: clause.AssignmentColumns([]string{"owner", "state", "amount", "attempts", "tx_ref", "last_error", "updated_at"}),
		}).
		Create(p).Error
	if err != nil {
		return fmt.Errorf("failed to save promotion %s: %w", p.CID, err)
	}
	return nil
}

func (r *Repository) GetPromotion(ctx context.Context, id types.CID) (*PromotionModel, error) {
	var p PromotionModel
	err := r.db.GetConn().WithContext(ctx).Where("cid = ?", id.String()).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPromotionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPromotions state 为空时返回全部
func (r *Repository) ListPromotions(ctx context.Context, state string) ([]PromotionModel, error) {
	q := r.db.GetConn().WithContext(ctx).Order("updated_at DESC")
	if state != "" {
		q = q.Where("state = ?", state)
	}
	var out []PromotionModel
	return out, q.Find(&out).Error
}

// -----------------------------------------------------------------------------
// 3. 本地锁定 (Pins)
// -----------------------------------------------------------------------------

// RecordPin 幂等：重复 pin 只刷新大小和来源
func (r *Repository) RecordPin(ctx context.Context, id types.CID, size int64, source string) error {
	err := r.db.GetConn().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cid"}},
			DoUpdates: clause.AssignmentColumns([]string{"size_bytes", "source"}),
		}).
		Create(&PinModel{
			CID:       id.String(),
			SizeBytes: size,
			Source:    source,
			PinnedAt:  time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to record pin %s: %w", id, err)
	}
	return nil
}

// RemovePin 对应 unlock
func (r *Repository) RemovePin(ctx context.Context, id types.CID) error {
	res := r.db.GetConn().WithContext(ctx).Where("cid = ?", id.String()).Delete(&PinModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrPinNotFound
	}
	return nil
}

func (r *Repository) ListPins(ctx context.Context) ([]PinModel, error) {
	var out []PinModel
	return out, r.db.GetConn().WithContext(ctx).Order("pinned_at").Find(&out).Error
}
