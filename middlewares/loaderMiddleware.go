package middlewares

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/models"
	"github.com/mmdatafocus/manufacturing_backend/utils"
	"gorm.io/gorm"
)

type ctxKey string

const (
	loadersKey = ctxKey("dataloaders")
)

// Loaders batch the master data and child rows GraphQL fields ask for within one request.
type Loaders struct {
	itemLoader        *dataloader.Loader[int, *models.Item]
	warehouseLoader   *dataloader.Loader[int, *models.Warehouse]
	operationLoader   *dataloader.Loader[int, *models.Operation]
	workstationLoader *dataloader.Loader[int, *models.Workstation]

	bomItemLoader      *dataloader.Loader[int, []*models.BomItem]
	bomOperationLoader *dataloader.Loader[int, []*models.BomOperation]

	workOrderItemLoader *dataloader.Loader[int, []*models.WorkOrderItem]
	jobCardLoader       *dataloader.Loader[int, []*models.JobCard]

	productionPlanItemLoader     *dataloader.Loader[int, []*models.ProductionPlanItem]
	productionPlanMaterialLoader *dataloader.Loader[int, []*models.ProductionPlanMaterial]
}

func NewLoaders(conn *gorm.DB) *Loaders {
	itemReader := &byIdReader[models.Item]{db: conn}
	warehouseReader := &byIdReader[models.Warehouse]{db: conn}
	operationReader := &byIdReader[models.Operation]{db: conn}
	workstationReader := &byIdReader[models.Workstation]{db: conn}

	bomItemReader := &childReader[models.BomItem]{db: conn, column: "bom_id", order: "sequence, id"}
	bomOperationReader := &childReader[models.BomOperation]{db: conn, column: "bom_id", order: "sequence, id"}
	workOrderItemReader := &childReader[models.WorkOrderItem]{db: conn, column: "work_order_id", order: "id"}
	jobCardReader := &childReader[models.JobCard]{db: conn, column: "work_order_id", order: "id"}
	planItemReader := &childReader[models.ProductionPlanItem]{db: conn, column: "production_plan_id", order: "id"}
	planMaterialReader := &childReader[models.ProductionPlanMaterial]{db: conn, column: "production_plan_id", order: "id"}

	return &Loaders{
		itemLoader:        dataloader.NewBatchedLoader(itemReader.load, dataloader.WithWait[int, *models.Item](time.Millisecond)),
		warehouseLoader:   dataloader.NewBatchedLoader(warehouseReader.load, dataloader.WithWait[int, *models.Warehouse](time.Millisecond)),
		operationLoader:   dataloader.NewBatchedLoader(operationReader.load, dataloader.WithWait[int, *models.Operation](time.Millisecond)),
		workstationLoader: dataloader.NewBatchedLoader(workstationReader.load, dataloader.WithWait[int, *models.Workstation](time.Millisecond)),

		bomItemLoader:      dataloader.NewBatchedLoader(bomItemReader.load, dataloader.WithWait[int, []*models.BomItem](time.Millisecond)),
		bomOperationLoader: dataloader.NewBatchedLoader(bomOperationReader.load, dataloader.WithWait[int, []*models.BomOperation](time.Millisecond)),

		workOrderItemLoader: dataloader.NewBatchedLoader(workOrderItemReader.load, dataloader.WithWait[int, []*models.WorkOrderItem](time.Millisecond)),
		jobCardLoader:       dataloader.NewBatchedLoader(jobCardReader.load, dataloader.WithWait[int, []*models.JobCard](time.Millisecond)),

		productionPlanItemLoader:     dataloader.NewBatchedLoader(planItemReader.load, dataloader.WithWait[int, []*models.ProductionPlanItem](time.Millisecond)),
		productionPlanMaterialLoader: dataloader.NewBatchedLoader(planMaterialReader.load, dataloader.WithWait[int, []*models.ProductionPlanMaterial](time.Millisecond)),
	}
}

func LoaderMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(WithLoaders(c.Request.Context(), config.GetDB()))
		c.Next()
	}
}

// WithLoaders attaches a fresh set of loaders; loaders cache for their whole lifetime, so one set per request.
func WithLoaders(ctx context.Context, conn *gorm.DB) context.Context {
	return context.WithValue(ctx, loadersKey, NewLoaders(conn))
}

func For(ctx context.Context) *Loaders {
	return ctx.Value(loadersKey).(*Loaders)
}

// handleError creates array of result with the same error repeated for as many items requested
func handleError[T any](itemsLength int, err error) []*dataloader.Result[T] {
	result := make([]*dataloader.Result[T], itemsLength)
	for i := 0; i < itemsLength; i++ {
		result[i] = &dataloader.Result[T]{Error: err}
	}
	return result
}

// turns results from db into dataloader results, one per requested id
func generateLoaderResults[T models.Identifier](results []T, ids []int) []*dataloader.Result[*T] {
	resultMap := make(map[int]T, len(results))
	for _, result := range results {
		resultMap[result.GetId()] = result
	}

	loaderResults := make([]*dataloader.Result[*T], 0, len(ids))
	for _, id := range ids {
		data, ok := resultMap[id]
		if !ok {
			loaderResults = append(loaderResults, &dataloader.Result[*T]{
				Error: fmt.Errorf("%s %d: %w", utils.GetTypeName[T](), id, utils.ErrorRecordNotFound),
			})
			continue
		}
		loaderResults = append(loaderResults, &dataloader.Result[*T]{Data: &data})
	}
	return loaderResults
}

// each id has many related results
func generateLoaderArrayResults[T models.RelatedData](results []T, referenceIds []int) (loaderResults []*dataloader.Result[[]*T]) {
	resultMap := make(map[int][]*T)
	for _, result := range results {
		// creating a new variable every turn, to avoid pointing to the address of result
		copy := result
		resultMap[result.GetReferenceId()] = append(resultMap[result.GetReferenceId()], &copy)
	}
	for _, id := range referenceIds {
		loaderResults = append(loaderResults, &dataloader.Result[[]*T]{Data: resultMap[id]})
	}
	return loaderResults
}
