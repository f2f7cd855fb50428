package models

type Identifier interface {
	GetId() int
}

// RelatedData is a child row grouped under its parent document by the loaders.
type RelatedData interface {
	GetReferenceId() int
}

func (i Item) GetId() int {
	return i.ID
}

func (w Warehouse) GetId() int {
	return w.ID
}

func (o Operation) GetId() int {
	return o.ID
}

func (w Workstation) GetId() int {
	return w.ID
}

func (b BomItem) GetReferenceId() int {
	return b.BomId
}

func (b BomOperation) GetReferenceId() int {
	return b.BomId
}

func (w WorkOrderItem) GetReferenceId() int {
	return w.WorkOrderId
}

func (j JobCard) GetReferenceId() int {
	return j.WorkOrderId
}

func (p ProductionPlanItem) GetReferenceId() int {
	return p.ProductionPlanId
}

func (p ProductionPlanMaterial) GetReferenceId() int {
	return p.ProductionPlanId
}
