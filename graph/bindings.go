package graph

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mmdatafocus/manufacturing_backend/models"
	"github.com/shopspring/decimal"
)

// fieldFunc resolves one schema field. Root fields get a nil obj; object fields get a pointer to the parent model.
type fieldFunc func(ctx context.Context, obj interface{}, args map[string]interface{}) (interface{}, error)

// bindings maps "Type.field" to its resolver. Fields missing here are read from the parent model by json tag.
func (r *Resolver) bindings() map[string]fieldFunc {
	query := r.Query()
	mutation := r.Mutation()
	bom := &bomResolver{r}
	bomItem := &bomItemResolver{r}
	bomOperation := &bomOperationResolver{r}
	operation := &operationResolver{r}
	workOrder := &workOrderResolver{r}
	workOrderItem := &workOrderItemResolver{r}
	jobCard := &jobCardResolver{r}
	plan := &productionPlanResolver{r}
	planItem := &productionPlanItemResolver{r}
	planMaterial := &productionPlanMaterialResolver{r}
	status := &manufacturingStatusResolver{r}

	return map[string]fieldFunc{
		"Query.item":      argument("id", query.Item),
		"Query.bom":       argument("id", query.Bom),
		"Query.listBoms":  argument("filter", query.ListBoms),
		"Query.workOrder": argument("id", query.WorkOrder),
		"Query.explodeBom": func(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
			bomId, err := bind[int](args, "bomId")
			if err != nil {
				return nil, err
			}
			qty, err := bind[decimal.Decimal](args, "quantity")
			if err != nil {
				return nil, err
			}
			return query.ExplodeBom(ctx, bomId, qty)
		},
		"Query.listWorkOrders":      argument("filter", query.ListWorkOrders),
		"Query.productionPlan":      argument("id", query.ProductionPlan),
		"Query.manufacturingStatus": argument("companyId", query.ManufacturingStatus),

		"Mutation.createBom": argument("input", mutation.CreateBom),
		"Mutation.updateBom": func(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
			id, err := bind[int](args, "id")
			if err != nil {
				return nil, err
			}
			input, err := bind[models.BomUpdate](args, "input")
			if err != nil {
				return nil, err
			}
			return mutation.UpdateBom(ctx, id, input)
		},
		"Mutation.createWorkOrder":          argument("input", mutation.CreateWorkOrder),
		"Mutation.startWorkOrder":           argument("id", mutation.StartWorkOrder),
		"Mutation.transferMaterials":        argument("input", mutation.TransferMaterials),
		"Mutation.completeWorkOrder":        argument("input", mutation.CompleteWorkOrder),
		"Mutation.cancelWorkOrder":          argument("input", mutation.CancelWorkOrder),
		"Mutation.createJobCard":            argument("input", mutation.CreateJobCard),
		"Mutation.startJobCard":             argument("id", mutation.StartJobCard),
		"Mutation.completeJobCard":          argument("input", mutation.CompleteJobCard),
		"Mutation.createProductionPlan":     argument("input", mutation.CreateProductionPlan),
		"Mutation.runMrp":                   argument("productionPlanId", mutation.RunMrp),
		"Mutation.generateWorkOrders":       argument("productionPlanId", mutation.GenerateWorkOrders),
		"Mutation.generatePurchaseRequests": argument("productionPlanId", mutation.GeneratePurchaseRequests),

		"Bom.item":                               field(bom.Item),
		"Bom.items":                              field(bom.Items),
		"Bom.operations":                         field(bom.Operations),
		"BomItem.item":                           field(bomItem.Item),
		"BomItem.sourceWarehouse":                field(bomItem.SourceWarehouse),
		"BomOperation.operation":                 field(bomOperation.Operation),
		"BomOperation.workstation":               field(bomOperation.Workstation),
		"Operation.defaultWorkstation":           field(operation.DefaultWorkstation),
		"WorkOrder.item":                         field(workOrder.Item),
		"WorkOrder.wipWarehouse":                 field(workOrder.WipWarehouse),
		"WorkOrder.items":                        field(workOrder.Items),
		"WorkOrder.jobCards":                     field(workOrder.JobCards),
		"WorkOrderItem.item":                     field(workOrderItem.Item),
		"WorkOrderItem.sourceWarehouse":          field(workOrderItem.SourceWarehouse),
		"JobCard.operation":                      field(jobCard.Operation),
		"JobCard.workstation":                    field(jobCard.Workstation),
		"ProductionPlan.items":                   field(plan.Items),
		"ProductionPlan.materials":               field(plan.Materials),
		"ProductionPlanItem.item":                field(planItem.Item),
		"ProductionPlanItem.warehouse":           field(planItem.Warehouse),
		"ProductionPlanMaterial.item":            field(planMaterial.Item),
		"ProductionPlanMaterial.warehouse":       field(planMaterial.Warehouse),
		"ManufacturingStatus.workOrdersByStatus": field(status.WorkOrdersByStatus),
	}
}

// argument binds a resolver taking one named argument.
func argument[T any, R any](name string, fn func(context.Context, T) (R, error)) fieldFunc {
	return func(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
		v, err := bind[T](args, name)
		if err != nil {
			return nil, err
		}
		return fn(ctx, v)
	}
}

// field binds an object field resolver to its parent model.
func field[T any, R any](fn func(context.Context, *T) (R, error)) fieldFunc {
	return func(ctx context.Context, obj interface{}, _ map[string]interface{}) (interface{}, error) {
		parent, ok := obj.(*T)
		if !ok {
			return nil, fmt.Errorf("expected %T, got %T", (*T)(nil), obj)
		}
		return fn(ctx, parent)
	}
}

// bind decodes a coerced argument into the resolver's Go type; absent arguments yield the zero value.
func bind[T any](args map[string]interface{}, name string) (T, error) {
	var v T
	raw, ok := args[name]
	if !ok || raw == nil {
		return v, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("argument %s: %w", name, err)
	}
	return v, nil
}
