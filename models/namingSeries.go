package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/manufacturing_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NamingSeries holds the running counter for one (company, entity type).
type NamingSeries struct {
	ID           int       `gorm:"primary_key" json:"id"`
	CompanyId    int       `gorm:"not null;uniqueIndex:idx_naming_company_entity,priority:1" json:"company_id"`
	EntityType   string    `gorm:"size:50;not null;uniqueIndex:idx_naming_company_entity,priority:2" json:"entity_type"`
	Prefix       string    `gorm:"size:20;not null" json:"prefix"`
	CurrentValue int       `gorm:"not null;default:0" json:"current_value"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

var defaultNamingPrefixes = map[string]string{
	NamingEntityBom:                 "BOM-",
	NamingEntityWorkOrder:           "WO-",
	NamingEntityJobCard:             "JC-",
	NamingEntityProductionPlan:      "PP-",
	NamingEntitySubcontractingOrder: "SCO-",
	NamingEntityPurchaseOrder:       "PUR-",
	NamingEntityStockReceipt:        "SR-",
}

// NextName increments the counter for entityType inside tx and returns e.g. WO-2026-00001.
func NextName(tx *gorm.DB, entityType string, companyId int) (string, error) {
	prefix, ok := defaultNamingPrefixes[entityType]
	if !ok {
		return "", fmt.Errorf("unknown naming series %q", entityType)
	}

	var series NamingSeries
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("company_id = ? AND entity_type = ?", companyId, entityType).
		First(&series).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		series = NamingSeries{
			CompanyId:  companyId,
			EntityType: entityType,
			Prefix:     prefix,
		}
		if err := tx.Create(&series).Error; err != nil {
			if !utils.IsDuplicateKeyErr(err) {
				return "", err
			}
			// another request created the series first
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("company_id = ? AND entity_type = ?", companyId, entityType).
				First(&series).Error; err != nil {
				return "", err
			}
		}
	} else if err != nil {
		return "", err
	}

	series.CurrentValue++
	if err := tx.Model(&NamingSeries{}).Where("id = ?", series.ID).
		Update("current_value", series.CurrentValue).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%d-%05d", series.Prefix, time.Now().UTC().Year(), series.CurrentValue), nil
}
