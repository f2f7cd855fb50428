package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/manufacturing_backend/models"
	"gorm.io/gorm"
)

type byIdReader[T models.Identifier] struct {
	db *gorm.DB
}

func (r *byIdReader[T]) load(ctx context.Context, ids []int) []*dataloader.Result[*T] {
	var results []T
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&results).Error
	if err != nil {
		return handleError[*T](len(ids), err)
	}
	return generateLoaderResults(results, ids)
}

func GetItem(ctx context.Context, id int) (*models.Item, error) {
	return For(ctx).itemLoader.Load(ctx, id)()
}

func GetItems(ctx context.Context, ids []int) ([]*models.Item, []error) {
	return For(ctx).itemLoader.LoadMany(ctx, ids)()
}

func GetWarehouse(ctx context.Context, id int) (*models.Warehouse, error) {
	return For(ctx).warehouseLoader.Load(ctx, id)()
}

func GetOperation(ctx context.Context, id int) (*models.Operation, error) {
	return For(ctx).operationLoader.Load(ctx, id)()
}

func GetWorkstation(ctx context.Context, id int) (*models.Workstation, error) {
	return For(ctx).workstationLoader.Load(ctx, id)()
}
