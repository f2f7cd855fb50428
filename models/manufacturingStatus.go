package models

import (
	"context"

	"github.com/mmdatafocus/manufacturing_backend/config"
	"gorm.io/gorm"
)

type ManufacturingStatus struct {
	TotalBoms                  int64                     `json:"total_boms"`
	ActiveBoms                 int64                     `json:"active_boms"`
	TotalWorkOrders            int64                     `json:"total_work_orders"`
	WorkOrdersByStatus         map[WorkOrderStatus]int64 `json:"work_orders_by_status"`
	OpenJobCards               int64                     `json:"open_job_cards"`
	ActiveProductionPlans      int64                     `json:"active_production_plans"`
	ActiveSubcontractingOrders int64                     `json:"active_subcontracting_orders"`
	ActiveOperations           int64                     `json:"active_operations"`
	ActiveWorkstations         int64                     `json:"active_workstations"`
}

// GetManufacturingStatus summarises document counts, optionally for a single company.
// Operations and workstations are shared across companies and always counted globally.
func GetManufacturingStatus(ctx context.Context, companyId *int) (*ManufacturingStatus, error) {
	db := config.GetDB().WithContext(ctx)
	scoped := func(model any) *gorm.DB {
		q := db.Model(model)
		if companyId != nil {
			q = q.Where("company_id = ?", *companyId)
		}
		return q
	}

	status := ManufacturingStatus{WorkOrdersByStatus: make(map[WorkOrderStatus]int64)}
	if err := scoped(&Bom{}).Count(&status.TotalBoms).Error; err != nil {
		return nil, err
	}
	if err := scoped(&Bom{}).Where("is_active = ?", true).Count(&status.ActiveBoms).Error; err != nil {
		return nil, err
	}

	var byStatus []struct {
		Status WorkOrderStatus
		Total  int64
	}
	if err := scoped(&WorkOrder{}).Select("status, COUNT(*) AS total").Group("status").Scan(&byStatus).Error; err != nil {
		return nil, err
	}
	for _, row := range byStatus {
		if row.Total > 0 {
			status.WorkOrdersByStatus[row.Status] = row.Total
			status.TotalWorkOrders += row.Total
		}
	}

	jobCards := db.Table("job_cards AS jc").
		Joins("JOIN work_orders AS wo ON wo.id = jc.work_order_id").
		Where("jc.status IN ?", []JobCardStatus{JobCardStatusOpen, JobCardStatusInProcess})
	if companyId != nil {
		jobCards = jobCards.Where("wo.company_id = ?", *companyId)
	}
	if err := jobCards.Count(&status.OpenJobCards).Error; err != nil {
		return nil, err
	}

	if err := scoped(&ProductionPlan{}).Where("status <> ?", ProductionPlanStatusCancelled).
		Count(&status.ActiveProductionPlans).Error; err != nil {
		return nil, err
	}
	if err := scoped(&SubcontractingOrder{}).
		Where("status NOT IN ?", []SubcontractingOrderStatus{SubcontractingOrderStatusCancelled, SubcontractingOrderStatusCompleted}).
		Count(&status.ActiveSubcontractingOrders).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&Operation{}).Where("is_active = ?", true).Count(&status.ActiveOperations).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&Workstation{}).Where("status = ?", WorkstationStatusActive).Count(&status.ActiveWorkstations).Error; err != nil {
		return nil, err
	}
	return &status, nil
}
