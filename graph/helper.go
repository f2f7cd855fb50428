package graph

import (
	"context"

	"github.com/mmdatafocus/manufacturing_backend/middlewares"
	"github.com/mmdatafocus/manufacturing_backend/models"
)

func optionalWarehouse(ctx context.Context, id *int) (*models.Warehouse, error) {
	if id == nil || *id == 0 {
		return nil, nil
	}
	return middlewares.GetWarehouse(ctx, *id)
}

func optionalWorkstation(ctx context.Context, id *int) (*models.Workstation, error) {
	if id == nil || *id == 0 {
		return nil, nil
	}
	return middlewares.GetWorkstation(ctx, *id)
}
