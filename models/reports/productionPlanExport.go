package reports

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	planMaterialSheet = "Materials"
	xlsxContentType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var planMaterialHeadings = []string{
	"Item Code", "Item Name", "UOM", "Warehouse", "Required", "Available", "On Order", "Shortfall",
}

type PlanMaterialRow struct {
	ItemCode      string
	ItemName      string
	Uom           string
	WarehouseName *string
	RequiredQty   decimal.Decimal
	AvailableQty  decimal.Decimal
	OnOrderQty    decimal.Decimal
	ShortfallQty  decimal.Decimal
}

func (r *PlanMaterialRow) GetCellValues() []interface{} {
	return []interface{}{
		r.ItemCode,
		r.ItemName,
		r.Uom,
		utils.DereferencePtr(r.WarehouseName, ""),
		r.RequiredQty.InexactFloat64(),
		r.AvailableQty.InexactFloat64(),
		r.OnOrderQty.InexactFloat64(),
		r.ShortfallQty.InexactFloat64(),
	}
}

type PlanMaterialExport struct {
	PlanName   string `json:"plan_name"`
	FileName   string `json:"file_name"`
	RowCount   int    `json:"row_count"`
	Uploaded   bool   `json:"uploaded"`
	ObjectName string `json:"object_name,omitempty"`
	Content    []byte `json:"-"`
}

func getPlanMaterialRows(ctx context.Context, planId int) (string, []*PlanMaterialRow, error) {
	db := config.GetDB().WithContext(ctx)
	var plan struct {
		ID   int
		Name string
	}
	if err := db.Table("production_plans").Select("id, name").Where("id = ?", planId).Scan(&plan).Error; err != nil {
		return "", nil, err
	}
	if plan.ID == 0 {
		return "", nil, utils.ErrorRecordNotFound
	}

	sql := `
SELECT
    i.code AS item_code,
    i.name AS item_name,
    i.uom,
    w.name AS warehouse_name,
    ppm.required_qty,
    ppm.available_qty,
    ppm.on_order_qty,
    ppm.shortfall_qty
FROM
    production_plan_materials AS ppm
    LEFT JOIN items AS i ON i.id = ppm.item_id
    LEFT JOIN warehouses AS w ON w.id = ppm.warehouse_id
WHERE
    ppm.production_plan_id = ?
ORDER BY
    ppm.id
`
	var rows []*PlanMaterialRow
	if err := db.Raw(sql, planId).Scan(&rows).Error; err != nil {
		return "", nil, err
	}
	return plan.Name, rows, nil
}

// ExportProductionPlanMaterials renders the plan's MRP rows as xlsx. When upload is set and GCS_BUCKET is
// configured the file is also stored under production-plans/.
func ExportProductionPlanMaterials(ctx context.Context, planId int, upload bool) (*PlanMaterialExport, error) {
	planName, rows, err := getPlanMaterialRows(ctx, planId)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("production plan has no materials, run mrp first")
	}

	content, err := writePlanMaterialSheet(rows)
	if err != nil {
		config.LogError(config.GetLogger(), "reports", "ExportProductionPlanMaterials", "write xlsx", planId, err)
		return nil, err
	}
	export := &PlanMaterialExport{
		PlanName: planName,
		FileName: planName + "-materials.xlsx",
		RowCount: len(rows),
		Content:  content,
	}
	if upload && utils.GCSConfigured() {
		export.ObjectName = "production-plans/" + export.FileName
		if err := utils.UploadBytesToGCS(ctx, export.ObjectName, content, xlsxContentType); err != nil {
			config.LogError(config.GetLogger(), "reports", "ExportProductionPlanMaterials", "upload xlsx", export.ObjectName, err)
			return nil, err
		}
		export.Uploaded = true
	}
	return export, nil
}

func writePlanMaterialSheet(rows []*PlanMaterialRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", planMaterialSheet); err != nil {
		return nil, err
	}
	for i, h := range planMaterialHeadings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(planMaterialSheet, cell, h); err != nil {
			return nil, err
		}
	}
	for rowNo, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, rowNo+2)
		if err != nil {
			return nil, err
		}
		values := r.GetCellValues()
		if err := f.SetSheetRow(planMaterialSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("row %d: %w", rowNo+2, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
