package model

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// ==================== 商品状态 ====================

// ProductStatus 商品状态
// 二手商品为单件库存，库存值由状态推导，不单独存储
type ProductStatus string

const (
	ProductStatusActive     ProductStatus = "ACTIVE"
	ProductStatusOutOfStock ProductStatus = "OUT_OF_STOCK"
	ProductStatusSold       ProductStatus = "SOLD"
	ProductStatusDeleted    ProductStatus = "DELETED"
	ProductStatusError      ProductStatus = "ERROR"
)

// ==================== 商品模型 ====================

type Product struct {
	BaseModel

	// --- 基本信息 ---
	Title    string `gorm:"size:255;not null" json:"title"`
	TitleEn  string `gorm:"size:255" json:"title_en"`
	Brand    string `gorm:"size:100;index" json:"brand"`
	Category string `gorm:"size:100;index" json:"category"`

	// --- 价格（日元，进货价为原币种成本） ---
	Price     float64 `gorm:"default:0" json:"price"`
	CostPrice float64 `gorm:"default:0" json:"cost_price"`

	// --- 状态 ---
	Status ProductStatus `gorm:"size:20;index;default:ACTIVE" json:"status"`

	// --- 扩展属性（制造年份等） ---
	Attributes datatypes.JSON `gorm:"type:json" json:"attributes"`

	// --- 关联关系 ---
	Listings []Listing `gorm:"foreignKey:ProductID" json:"listings,omitempty"`
}

func (Product) TableName() string {
	return "products"
}

// LocalStock 由商品状态推导本地库存
// 不变式：stock ∈ {0,1}，且 stock=0 当且仅当状态为 SOLD/OUT_OF_STOCK/DELETED/ERROR
func (p *Product) LocalStock() int {
	switch p.Status {
	case ProductStatusSold, ProductStatusOutOfStock, ProductStatusDeleted, ProductStatusError:
		return 0
	default:
		return 1
	}
}

// ManufactureYear 从属性中读取制造年份，读不到返回 0
func (p *Product) ManufactureYear() int {
	if len(p.Attributes) == 0 {
		return 0
	}
	var attrs map[string]any
	if err := json.Unmarshal(p.Attributes, &attrs); err != nil {
		return 0
	}
	switch y := attrs["year"].(type) {
	case float64:
		return int(y)
	case json.Number:
		if year, err := y.Int64(); err == nil {
			return int(year)
		}
	}
	return 0
}
