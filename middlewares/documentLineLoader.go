package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/manufacturing_backend/models"
	"gorm.io/gorm"
)

// childReader loads the lines of many parent documents in one query, grouped by column.
type childReader[T models.RelatedData] struct {
	db     *gorm.DB
	column string
	order  string
}

func (r *childReader[T]) load(ctx context.Context, parentIds []int) []*dataloader.Result[[]*T] {
	var results []T
	err := r.db.WithContext(ctx).Where(r.column+" IN ?", parentIds).Order(r.order).Find(&results).Error
	if err != nil {
		return handleError[[]*T](len(parentIds), err)
	}
	return generateLoaderArrayResults(results, parentIds)
}

func GetBomItems(ctx context.Context, bomId int) ([]*models.BomItem, error) {
	return For(ctx).bomItemLoader.Load(ctx, bomId)()
}

func GetBomOperations(ctx context.Context, bomId int) ([]*models.BomOperation, error) {
	return For(ctx).bomOperationLoader.Load(ctx, bomId)()
}

func GetWorkOrderItems(ctx context.Context, workOrderId int) ([]*models.WorkOrderItem, error) {
	return For(ctx).workOrderItemLoader.Load(ctx, workOrderId)()
}

func GetJobCards(ctx context.Context, workOrderId int) ([]*models.JobCard, error) {
	return For(ctx).jobCardLoader.Load(ctx, workOrderId)()
}

func GetProductionPlanItems(ctx context.Context, planId int) ([]*models.ProductionPlanItem, error) {
	return For(ctx).productionPlanItemLoader.Load(ctx, planId)()
}

func GetProductionPlanMaterials(ctx context.Context, planId int) ([]*models.ProductionPlanMaterial, error) {
	return For(ctx).productionPlanMaterialLoader.Load(ctx, planId)()
}
