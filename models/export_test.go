package models

import (
	"context"

	"github.com/mmdatafocus/manufacturing_backend/config"
	"gorm.io/gorm"
)

// RebuildPlanMaterials recomputes the plan's material rows without the draft gate RunMrp applies.
func RebuildPlanMaterials(ctx context.Context, planId int) ([]*ProductionPlanMaterial, error) {
	var materials []*ProductionPlanMaterial
	err := config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := lockProductionPlan(tx, planId)
		if err != nil {
			return err
		}
		materials, err = rebuildPlanMaterials(tx, plan)
		return err
	})
	return materials, err
}
