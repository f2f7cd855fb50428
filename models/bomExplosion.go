package models

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MaxBomExplosionDepth is the deepest sub-assembly level reached below the exploded BOM (which is depth 0).
const MaxBomExplosionDepth = 10

type ExplodedMaterial struct {
	ItemId   int             `json:"item_id"`
	ItemCode string          `json:"item_code"`
	ItemName string          `json:"item_name"`
	Uom      string          `json:"uom"`
	TotalQty decimal.Decimal `json:"total_qty"`
}

type BomExplosionResult struct {
	Materials     []ExplodedMaterial `json:"materials"`
	MaterialCount int                `json:"material_count"`
}

// ExplodeBom flattens a BOM into leaf materials for qty finished units, sorted by item code.
func ExplodeBom(ctx context.Context, bomId int, qty decimal.Decimal) (*BomExplosionResult, error) {
	if !qty.IsPositive() {
		return nil, errors.New("quantity must be > 0")
	}
	db := config.GetDB().WithContext(ctx)
	materials, err := explodeBom(db, bomId, qty)
	if err == nil {
		err = describeMaterials(db, materials)
	}
	if err != nil {
		config.LogError(config.GetLogger(), "models", "ExplodeBom", "explode bom", bomId, err)
		return nil, err
	}
	return &BomExplosionResult{Materials: materials, MaterialCount: len(materials)}, nil
}

// describeMaterials fills code, name and uom from the item master and orders the rows by item code.
func describeMaterials(tx *gorm.DB, materials []ExplodedMaterial) error {
	ids := make([]int, 0, len(materials))
	for _, m := range materials {
		ids = append(ids, m.ItemId)
	}
	var items []Item
	if err := tx.Select("id", "code", "name", "uom").Where("id IN ?", ids).Find(&items).Error; err != nil {
		return err
	}
	byId := make(map[int]Item, len(items))
	for _, item := range items {
		byId[item.ID] = item
	}
	for i := range materials {
		item := byId[materials[i].ItemId]
		materials[i].ItemCode = item.Code
		materials[i].ItemName = item.Name
		materials[i].Uom = item.Uom
	}
	sort.SliceStable(materials, func(i, j int) bool {
		return materials[i].ItemCode < materials[j].ItemCode
	})
	return nil
}

type bomNode struct {
	qty        decimal.Decimal
	components []BomComponent
}

// bomExplosion accumulates leaf quantities in first-appearance order.
// Loaded BOMs are memoized per explosion; the path set is not.
type bomExplosion struct {
	tx     *gorm.DB
	nodes  map[int]*bomNode
	order  []int
	totals map[int]decimal.Decimal
}

func explodeBom(tx *gorm.DB, bomId int, qty decimal.Decimal) ([]ExplodedMaterial, error) {
	e := &bomExplosion{
		tx:     tx,
		nodes:  make(map[int]*bomNode),
		totals: make(map[int]decimal.Decimal),
	}
	if err := e.walk(bomId, qty, 0, make(map[int]bool)); err != nil {
		return nil, err
	}
	materials := make([]ExplodedMaterial, 0, len(e.order))
	for _, itemId := range e.order {
		materials = append(materials, ExplodedMaterial{ItemId: itemId, TotalQty: utils.RoundQty(e.totals[itemId])})
	}
	return materials, nil
}

func (e *bomExplosion) walk(bomId int, incoming decimal.Decimal, depth int, path map[int]bool) error {
	if depth > MaxBomExplosionDepth {
		return fmt.Errorf("%w: reached bom %d at depth %d (max %d)", ErrBomDepthExceeded, bomId, depth, MaxBomExplosionDepth)
	}
	if path[bomId] {
		return fmt.Errorf("%w: bom %d is its own ancestor", ErrCircularBomReference, bomId)
	}
	path[bomId] = true
	defer delete(path, bomId)

	node, err := e.load(bomId)
	if err != nil {
		return err
	}
	for _, c := range node.components {
		switch c := c.(type) {
		case LeafComponent:
			e.add(c.ItemId, scaleComponentQty(c.Qty, node.qty, incoming, c.ScrapPercentage))
		case SubAssemblyComponent:
			scaled := scaleComponentQty(c.Qty, node.qty, incoming, c.ScrapPercentage)
			if err := e.walk(c.SubBomId, scaled, depth+1, path); err != nil {
				return err
			}
		}
	}
	return nil
}

// scaleComponentQty is lineQty/bomQty*incoming inflated by the scrap percentage.
func scaleComponentQty(lineQty, bomQty, incoming, scrapPercentage decimal.Decimal) decimal.Decimal {
	return utils.ApplyScrap(lineQty.Div(bomQty).Mul(incoming), scrapPercentage)
}

func (e *bomExplosion) add(itemId int, qty decimal.Decimal) {
	if _, ok := e.totals[itemId]; !ok {
		e.order = append(e.order, itemId)
	}
	e.totals[itemId] = e.totals[itemId].Add(qty)
}

func (e *bomExplosion) load(bomId int) (*bomNode, error) {
	if node, ok := e.nodes[bomId]; ok {
		return node, nil
	}
	var bom Bom
	if err := e.tx.Select("id", "quantity").First(&bom, bomId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("bom %d: %w", bomId, utils.ErrorRecordNotFound)
		}
		return nil, err
	}
	if !bom.Quantity.IsPositive() {
		return nil, fmt.Errorf("bom %d has no yield quantity", bomId)
	}
	var lines []*BomItem
	if err := e.tx.Where("bom_id = ?", bomId).Order("sequence, id").Find(&lines).Error; err != nil {
		return nil, err
	}
	node := &bomNode{qty: bom.Quantity, components: make([]BomComponent, 0, len(lines))}
	for _, line := range lines {
		node.components = append(node.components, line.Component())
	}
	e.nodes[bomId] = node
	return node, nil
}
