package graph

import (
	"context"
	"sort"

	"github.com/mmdatafocus/manufacturing_backend/middlewares"
	"github.com/mmdatafocus/manufacturing_backend/models"
	"github.com/mmdatafocus/manufacturing_backend/utils"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// CreateBom is the resolver for the createBom field.
func (r *mutationResolver) CreateBom(ctx context.Context, input models.NewBom) (*models.BomResult, error) {
	if input.CompanyId == 0 {
		input.CompanyId, _ = utils.GetCompanyIdFromContext(ctx)
	}
	return models.CreateBom(ctx, &input)
}

// UpdateBom is the resolver for the updateBom field.
func (r *mutationResolver) UpdateBom(ctx context.Context, id int, input models.BomUpdate) (*models.BomResult, error) {
	return models.UpdateBom(ctx, id, &input)
}

// CreateWorkOrder is the resolver for the createWorkOrder field.
func (r *mutationResolver) CreateWorkOrder(ctx context.Context, input models.NewWorkOrder) (*models.WorkOrderResult, error) {
	if input.CompanyId == 0 {
		input.CompanyId, _ = utils.GetCompanyIdFromContext(ctx)
	}
	return models.CreateWorkOrder(ctx, &input)
}

// StartWorkOrder is the resolver for the startWorkOrder field.
func (r *mutationResolver) StartWorkOrder(ctx context.Context, id int) (*models.StartWorkOrderResult, error) {
	return models.StartWorkOrder(ctx, id)
}

// TransferMaterials is the resolver for the transferMaterials field.
func (r *mutationResolver) TransferMaterials(ctx context.Context, input models.TransferMaterialsInput) (*models.TransferMaterialsResult, error) {
	ctx, end := r.startSpan(ctx, "workOrder.transferMaterials", attribute.Int("manufacturing.work_order_id", input.WorkOrderId))
	defer end()
	return models.TransferWorkOrderMaterials(ctx, &input)
}

// CompleteWorkOrder is the resolver for the completeWorkOrder field.
func (r *mutationResolver) CompleteWorkOrder(ctx context.Context, input models.CompleteWorkOrderInput) (*models.CompleteWorkOrderResult, error) {
	ctx, end := r.startSpan(ctx, "workOrder.complete", attribute.Int("manufacturing.work_order_id", input.WorkOrderId))
	defer end()
	return models.CompleteWorkOrder(ctx, &input)
}

// CancelWorkOrder is the resolver for the cancelWorkOrder field.
func (r *mutationResolver) CancelWorkOrder(ctx context.Context, input models.CancelWorkOrderInput) (*models.CancelWorkOrderResult, error) {
	ctx, end := r.startSpan(ctx, "workOrder.cancel", attribute.Int("manufacturing.work_order_id", input.WorkOrderId))
	defer end()
	return models.CancelWorkOrder(ctx, &input)
}

// CreateJobCard is the resolver for the createJobCard field.
func (r *mutationResolver) CreateJobCard(ctx context.Context, input models.NewJobCard) (*models.JobCard, error) {
	return models.CreateJobCard(ctx, &input)
}

// StartJobCard is the resolver for the startJobCard field.
func (r *mutationResolver) StartJobCard(ctx context.Context, id int) (*models.JobCard, error) {
	return models.StartJobCard(ctx, id)
}

// CompleteJobCard is the resolver for the completeJobCard field.
func (r *mutationResolver) CompleteJobCard(ctx context.Context, input models.CompleteJobCardInput) (*models.JobCard, error) {
	return models.CompleteJobCard(ctx, &input)
}

// CreateProductionPlan is the resolver for the createProductionPlan field.
func (r *mutationResolver) CreateProductionPlan(ctx context.Context, input models.NewProductionPlan) (*models.ProductionPlan, error) {
	if input.CompanyId == 0 {
		input.CompanyId, _ = utils.GetCompanyIdFromContext(ctx)
	}
	return models.CreateProductionPlan(ctx, &input)
}

// RunMrp is the resolver for the runMrp field.
func (r *mutationResolver) RunMrp(ctx context.Context, productionPlanID int) (*models.RunMrpResult, error) {
	ctx, end := r.startSpan(ctx, "productionPlan.runMrp", attribute.Int("manufacturing.production_plan_id", productionPlanID))
	defer end()
	return models.RunMrp(ctx, productionPlanID)
}

// GenerateWorkOrders is the resolver for the generateWorkOrders field.
func (r *mutationResolver) GenerateWorkOrders(ctx context.Context, productionPlanID int) (*models.GenerateWorkOrdersResult, error) {
	return models.GenerateWorkOrders(ctx, productionPlanID)
}

// GeneratePurchaseRequests is the resolver for the generatePurchaseRequests field.
func (r *mutationResolver) GeneratePurchaseRequests(ctx context.Context, productionPlanID int) (*models.GeneratePurchaseRequestsResult, error) {
	return models.GeneratePurchaseRequests(ctx, productionPlanID)
}

// Item is the resolver for the item field.
func (r *queryResolver) Item(ctx context.Context, id int) (*models.Item, error) {
	return models.GetItem(ctx, id)
}

// Bom is the resolver for the bom field.
func (r *queryResolver) Bom(ctx context.Context, id int) (*models.Bom, error) {
	return models.GetBom(ctx, id)
}

// ListBoms is the resolver for the listBoms field.
func (r *queryResolver) ListBoms(ctx context.Context, filter *models.BomFilter) ([]*models.Bom, error) {
	if filter == nil {
		filter = &models.BomFilter{}
	}
	return models.ListBoms(ctx, *filter)
}

// ExplodeBom is the resolver for the explodeBom field.
func (r *queryResolver) ExplodeBom(ctx context.Context, bomID int, quantity decimal.Decimal) (*models.BomExplosionResult, error) {
	return models.ExplodeBom(ctx, bomID, quantity)
}

// WorkOrder is the resolver for the workOrder field.
func (r *queryResolver) WorkOrder(ctx context.Context, id int) (*models.WorkOrder, error) {
	return models.GetWorkOrder(ctx, id)
}

// ListWorkOrders is the resolver for the listWorkOrders field.
func (r *queryResolver) ListWorkOrders(ctx context.Context, filter *models.WorkOrderFilter) ([]*models.WorkOrder, error) {
	if filter == nil {
		filter = &models.WorkOrderFilter{}
	}
	return models.ListWorkOrders(ctx, *filter)
}

// ProductionPlan is the resolver for the productionPlan field.
func (r *queryResolver) ProductionPlan(ctx context.Context, id int) (*models.ProductionPlan, error) {
	return models.GetProductionPlan(ctx, id)
}

// ManufacturingStatus is the resolver for the manufacturingStatus field.
func (r *queryResolver) ManufacturingStatus(ctx context.Context, companyID *int) (*models.ManufacturingStatus, error) {
	if companyID == nil {
		if companyId, ok := utils.GetCompanyIdFromContext(ctx); ok {
			companyID = &companyId
		}
	}
	return models.GetManufacturingStatus(ctx, companyID)
}

// Item is the resolver for the item field.
func (r *bomResolver) Item(ctx context.Context, obj *models.Bom) (*models.Item, error) {
	return middlewares.GetItem(ctx, obj.ItemId)
}

// Items is the resolver for the items field.
func (r *bomResolver) Items(ctx context.Context, obj *models.Bom) ([]*models.BomItem, error) {
	if obj.Items != nil {
		return obj.Items, nil
	}
	return middlewares.GetBomItems(ctx, obj.ID)
}

// Operations is the resolver for the operations field.
func (r *bomResolver) Operations(ctx context.Context, obj *models.Bom) ([]*models.BomOperation, error) {
	if obj.Operations != nil {
		return obj.Operations, nil
	}
	return middlewares.GetBomOperations(ctx, obj.ID)
}

// Item is the resolver for the item field.
func (r *bomItemResolver) Item(ctx context.Context, obj *models.BomItem) (*models.Item, error) {
	return middlewares.GetItem(ctx, obj.ItemId)
}

// SourceWarehouse is the resolver for the sourceWarehouse field.
func (r *bomItemResolver) SourceWarehouse(ctx context.Context, obj *models.BomItem) (*models.Warehouse, error) {
	return optionalWarehouse(ctx, obj.SourceWarehouseId)
}

// Operation is the resolver for the operation field.
func (r *bomOperationResolver) Operation(ctx context.Context, obj *models.BomOperation) (*models.Operation, error) {
	return middlewares.GetOperation(ctx, obj.OperationId)
}

// Workstation is the resolver for the workstation field.
func (r *bomOperationResolver) Workstation(ctx context.Context, obj *models.BomOperation) (*models.Workstation, error) {
	return optionalWorkstation(ctx, obj.WorkstationId)
}

// DefaultWorkstation is the resolver for the defaultWorkstation field.
func (r *operationResolver) DefaultWorkstation(ctx context.Context, obj *models.Operation) (*models.Workstation, error) {
	return optionalWorkstation(ctx, obj.DefaultWorkstationId)
}

// Item is the resolver for the item field.
func (r *workOrderResolver) Item(ctx context.Context, obj *models.WorkOrder) (*models.Item, error) {
	return middlewares.GetItem(ctx, obj.ItemId)
}

// WipWarehouse is the resolver for the wipWarehouse field.
func (r *workOrderResolver) WipWarehouse(ctx context.Context, obj *models.WorkOrder) (*models.Warehouse, error) {
	return optionalWarehouse(ctx, obj.WipWarehouseId)
}

// Items is the resolver for the items field.
func (r *workOrderResolver) Items(ctx context.Context, obj *models.WorkOrder) ([]*models.WorkOrderItem, error) {
	if obj.Items != nil {
		return obj.Items, nil
	}
	return middlewares.GetWorkOrderItems(ctx, obj.ID)
}

// JobCards is the resolver for the jobCards field.
func (r *workOrderResolver) JobCards(ctx context.Context, obj *models.WorkOrder) ([]*models.JobCard, error) {
	if obj.JobCards != nil {
		return obj.JobCards, nil
	}
	return middlewares.GetJobCards(ctx, obj.ID)
}

// Item is the resolver for the item field.
func (r *workOrderItemResolver) Item(ctx context.Context, obj *models.WorkOrderItem) (*models.Item, error) {
	return middlewares.GetItem(ctx, obj.ItemId)
}

// SourceWarehouse is the resolver for the sourceWarehouse field.
func (r *workOrderItemResolver) SourceWarehouse(ctx context.Context, obj *models.WorkOrderItem) (*models.Warehouse, error) {
	return optionalWarehouse(ctx, obj.SourceWarehouseId)
}

// Operation is the resolver for the operation field.
func (r *jobCardResolver) Operation(ctx context.Context, obj *models.JobCard) (*models.Operation, error) {
	return middlewares.GetOperation(ctx, obj.OperationId)
}

// Workstation is the resolver for the workstation field.
func (r *jobCardResolver) Workstation(ctx context.Context, obj *models.JobCard) (*models.Workstation, error) {
	return optionalWorkstation(ctx, obj.WorkstationId)
}

// Items is the resolver for the items field.
func (r *productionPlanResolver) Items(ctx context.Context, obj *models.ProductionPlan) ([]*models.ProductionPlanItem, error) {
	if obj.Items != nil {
		return obj.Items, nil
	}
	return middlewares.GetProductionPlanItems(ctx, obj.ID)
}

// Materials is the resolver for the materials field.
func (r *productionPlanResolver) Materials(ctx context.Context, obj *models.ProductionPlan) ([]*models.ProductionPlanMaterial, error) {
	if obj.Materials != nil {
		return obj.Materials, nil
	}
	return middlewares.GetProductionPlanMaterials(ctx, obj.ID)
}

// Item is the resolver for the item field.
func (r *productionPlanItemResolver) Item(ctx context.Context, obj *models.ProductionPlanItem) (*models.Item, error) {
	return middlewares.GetItem(ctx, obj.ItemId)
}

// Warehouse is the resolver for the warehouse field.
func (r *productionPlanItemResolver) Warehouse(ctx context.Context, obj *models.ProductionPlanItem) (*models.Warehouse, error) {
	return optionalWarehouse(ctx, obj.WarehouseId)
}

// Item is the resolver for the item field.
func (r *productionPlanMaterialResolver) Item(ctx context.Context, obj *models.ProductionPlanMaterial) (*models.Item, error) {
	return middlewares.GetItem(ctx, obj.ItemId)
}

// Warehouse is the resolver for the warehouse field.
func (r *productionPlanMaterialResolver) Warehouse(ctx context.Context, obj *models.ProductionPlanMaterial) (*models.Warehouse, error) {
	return optionalWarehouse(ctx, obj.WarehouseId)
}

// WorkOrdersByStatus is the resolver for the workOrdersByStatus field.
func (r *manufacturingStatusResolver) WorkOrdersByStatus(ctx context.Context, obj *models.ManufacturingStatus) ([]*WorkOrderStatusCount, error) {
	counts := make([]*WorkOrderStatusCount, 0, len(obj.WorkOrdersByStatus))
	for status, count := range obj.WorkOrdersByStatus {
		counts = append(counts, &WorkOrderStatusCount{Status: status, Count: count})
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Status < counts[j].Status })
	return counts, nil
}

func (r *Resolver) Mutation() *mutationResolver { return &mutationResolver{r} }
func (r *Resolver) Query() *queryResolver       { return &queryResolver{r} }

type mutationResolver struct{ *Resolver }
type queryResolver struct{ *Resolver }
type bomResolver struct{ *Resolver }
type bomItemResolver struct{ *Resolver }
type bomOperationResolver struct{ *Resolver }
type operationResolver struct{ *Resolver }
type workOrderResolver struct{ *Resolver }
type workOrderItemResolver struct{ *Resolver }
type jobCardResolver struct{ *Resolver }
type productionPlanResolver struct{ *Resolver }
type productionPlanItemResolver struct{ *Resolver }
type productionPlanMaterialResolver struct{ *Resolver }
type manufacturingStatusResolver struct{ *Resolver }
