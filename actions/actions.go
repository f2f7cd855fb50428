// Package actions maps manufacturing action names to their model functions.
// The HTTP server and the CLI both dispatch through Registry.
package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/mmdatafocus/manufacturing_backend/models"
	"github.com/mmdatafocus/manufacturing_backend/models/reports"
	"github.com/mmdatafocus/manufacturing_backend/utils"
	"github.com/shopspring/decimal"
)

// Handler decodes a JSON payload and runs one action.
type Handler func(ctx context.Context, payload json.RawMessage) (any, error)

// ErrUnknownAction is returned by Run for names missing from Registry.
var ErrUnknownAction = errors.New("unknown action")

// BadRequestError marks payload decoding failures.
type BadRequestError struct{ Err error }

func (e *BadRequestError) Error() string { return "invalid request: " + e.Err.Error() }
func (e *BadRequestError) Unwrap() error { return e.Err }

func decode[T any](payload json.RawMessage) (*T, error) {
	var v T
	if len(payload) == 0 {
		return &v, nil
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, &BadRequestError{Err: err}
	}
	return &v, nil
}

// input wraps a model function that takes a pointer to its input struct.
func input[T any, R any](fn func(context.Context, *T) (R, error)) Handler {
	return func(ctx context.Context, payload json.RawMessage) (any, error) {
		in, err := decode[T](payload)
		if err != nil {
			return nil, err
		}
		return fn(ctx, in)
	}
}

type idRequest struct {
	Id int `json:"id"`
}

// byId wraps a model function keyed by a single document id sent as {"id": n}.
func byId[R any](fn func(context.Context, int) (R, error)) Handler {
	return func(ctx context.Context, payload json.RawMessage) (any, error) {
		in, err := decode[idRequest](payload)
		if err != nil {
			return nil, err
		}
		if in.Id <= 0 {
			return nil, &BadRequestError{Err: errors.New("id is required")}
		}
		return fn(ctx, in.Id)
	}
}

type updateBomRequest struct {
	Id int `json:"id"`
	models.BomUpdate
}

type explodeBomRequest struct {
	BomId    int             `json:"bom_id"`
	Quantity decimal.Decimal `json:"quantity"`
}

type productionPlanRequest struct {
	ProductionPlanId int `json:"production_plan_id"`
	Id               int `json:"id"`
}

// byPlan wraps a production plan action sent as {"production_plan_id": n}; {"id": n} is also accepted.
func byPlan[R any](fn func(context.Context, int) (R, error)) Handler {
	return func(ctx context.Context, payload json.RawMessage) (any, error) {
		in, err := decode[productionPlanRequest](payload)
		if err != nil {
			return nil, err
		}
		planId := in.ProductionPlanId
		if planId == 0 {
			planId = in.Id
		}
		if planId <= 0 {
			return nil, &BadRequestError{Err: errors.New("production_plan_id is required")}
		}
		return fn(ctx, planId)
	}
}

type purchaseOrderStatusRequest struct {
	Id     int                        `json:"id"`
	Status models.PurchaseOrderStatus `json:"status"`
}

type referenceRequest struct {
	ReferenceType string `json:"reference_type"`
	ReferenceId   int    `json:"reference_id"`
}

type companyRequest struct {
	CompanyId *int `json:"company_id"`
}

type exportPlanRequest struct {
	Id     int  `json:"id"`
	Upload bool `json:"upload"`
}

var Registry = map[string]Handler{
	"add-company":     input(models.CreateCompany),
	"add-account":     input(models.CreateAccount),
	"add-item":        input(models.CreateItem),
	"get-item":        byId(models.GetItem),
	"add-warehouse":   input(models.CreateWarehouse),
	"add-supplier":    input(models.CreateSupplier),
	"add-operation":   input(models.CreateOperation),
	"add-workstation": input(models.CreateWorkstation),
	"add-routing":     input(models.CreateRouting),

	"add-bom": func(ctx context.Context, payload json.RawMessage) (any, error) {
		in, err := decode[models.NewBom](payload)
		if err != nil {
			return nil, err
		}
		// the caller's company when the payload names none
		if in.CompanyId == 0 {
			in.CompanyId, _ = utils.GetCompanyIdFromContext(ctx)
		}
		return models.CreateBom(ctx, in)
	},
	"update-bom": func(ctx context.Context, payload json.RawMessage) (any, error) {
		in, err := decode[updateBomRequest](payload)
		if err != nil {
			return nil, err
		}
		return models.UpdateBom(ctx, in.Id, &in.BomUpdate)
	},
	"get-bom": byId(models.GetBom),
	"list-boms": func(ctx context.Context, payload json.RawMessage) (any, error) {
		in, err := decode[models.BomFilter](payload)
		if err != nil {
			return nil, err
		}
		return models.ListBoms(ctx, *in)
	},
	"explode-bom": func(ctx context.Context, payload json.RawMessage) (any, error) {
		in, err := decode[explodeBomRequest](payload)
		if err != nil {
			return nil, err
		}
		return models.ExplodeBom(ctx, in.BomId, in.Quantity)
	},

	"add-work-order": input(models.CreateWorkOrder),
	"get-work-order": byId(models.GetWorkOrder),
	"list-work-orders": func(ctx context.Context, payload json.RawMessage) (any, error) {
		in, err := decode[models.WorkOrderFilter](payload)
		if err != nil {
			return nil, err
		}
		return models.ListWorkOrders(ctx, *in)
	},
	"start-work-order":    byId(models.StartWorkOrder),
	"transfer-materials":  input(models.TransferWorkOrderMaterials),
	"complete-work-order": input(models.CompleteWorkOrder),
	"cancel-work-order":   input(models.CancelWorkOrder),

	"create-job-card":   input(models.CreateJobCard),
	"start-job-card":    byId(models.StartJobCard),
	"complete-job-card": input(models.CompleteJobCard),

	"create-production-plan":     input(models.CreateProductionPlan),
	"get-production-plan":        byId(models.GetProductionPlan),
	"run-mrp":                    byPlan(models.RunMrp),
	"generate-work-orders":       byPlan(models.GenerateWorkOrders),
	"generate-purchase-requests": byPlan(models.GeneratePurchaseRequests),
	"export-plan-materials": func(ctx context.Context, payload json.RawMessage) (any, error) {
		in, err := decode[exportPlanRequest](payload)
		if err != nil {
			return nil, err
		}
		return reports.ExportProductionPlanMaterials(ctx, in.Id, in.Upload)
	},

	"add-subcontracting-order": input(models.CreateSubcontractingOrder),

	"add-purchase-order":     input(models.CreatePurchaseOrder),
	"receive-purchase-order": input(models.ReceivePurchaseOrder),
	"set-purchase-order-status": func(ctx context.Context, payload json.RawMessage) (any, error) {
		in, err := decode[purchaseOrderStatusRequest](payload)
		if err != nil {
			return nil, err
		}
		return models.SetPurchaseOrderStatus(ctx, in.Id, in.Status)
	},
	"add-stock-receipt": input(models.CreateStockReceipt),

	"status": func(ctx context.Context, payload json.RawMessage) (any, error) {
		in, err := decode[companyRequest](payload)
		if err != nil {
			return nil, err
		}
		// tokens scoped to a company only see that company
		if in.CompanyId == nil {
			if companyId, ok := utils.GetCompanyIdFromContext(ctx); ok {
				in.CompanyId = &companyId
			}
		}
		return models.GetManufacturingStatus(ctx, in.CompanyId)
	},
	"get-history": func(ctx context.Context, payload json.RawMessage) (any, error) {
		in, err := decode[referenceRequest](payload)
		if err != nil {
			return nil, err
		}
		return models.GetHistories(ctx, in.ReferenceType, in.ReferenceId)
	},
	"get-outbox-status": func(ctx context.Context, payload json.RawMessage) (any, error) {
		in, err := decode[referenceRequest](payload)
		if err != nil {
			return nil, err
		}
		return models.GetOutboxStatus(ctx, in.ReferenceType, in.ReferenceId)
	},
	"reprocess-outbox": func(ctx context.Context, payload json.RawMessage) (any, error) {
		in, err := decode[referenceRequest](payload)
		if err != nil {
			return nil, err
		}
		return models.ReprocessOutbox(ctx, in.ReferenceType, in.ReferenceId)
	},
}

// Names lists the registered actions in sorted order.
func Names() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func Run(ctx context.Context, name string, payload json.RawMessage) (any, error) {
	handler, ok := Registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	return handler(ctx, payload)
}

// StatusCode maps an action error to the HTTP status the API answers with.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnknownAction), errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, utils.ErrorLockNotObtained),
		errors.Is(err, models.ErrInvalidStatus),
		errors.Is(err, models.ErrTransferExceedsRequired),
		errors.Is(err, models.ErrInsufficientStock),
		errors.Is(err, models.ErrCircularBomReference),
		errors.Is(err, models.ErrBomDepthExceeded):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
