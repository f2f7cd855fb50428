package models

import "github.com/shopspring/decimal"

// BomComponent is a BOM line as the explosion walks it: either a leaf material
// or a sub-assembly that expands into another BOM.
type BomComponent interface {
	isBomComponent()
}

type LeafComponent struct {
	ItemId          int
	Qty             decimal.Decimal
	Rate            decimal.Decimal
	ScrapPercentage decimal.Decimal
}

type SubAssemblyComponent struct {
	ItemId          int
	Qty             decimal.Decimal
	SubBomId        int
	ScrapPercentage decimal.Decimal
}

func (LeafComponent) isBomComponent()        {}
func (SubAssemblyComponent) isBomComponent() {}

// Component classifies the line. A sub-assembly flag without a sub-BOM is consumed as a leaf.
func (i *BomItem) Component() BomComponent {
	if i.IsSubAssembly && i.SubBomId != nil && *i.SubBomId > 0 {
		return SubAssemblyComponent{
			ItemId:          i.ItemId,
			Qty:             i.Qty,
			SubBomId:        *i.SubBomId,
			ScrapPercentage: i.ScrapPercentage,
		}
	}
	return LeafComponent{
		ItemId:          i.ItemId,
		Qty:             i.Qty,
		Rate:            i.Rate,
		ScrapPercentage: i.ScrapPercentage,
	}
}
