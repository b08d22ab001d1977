package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	CategoryMen   = "men"
	CategoryWomen = "women"
	CategorySmart = "smart"
)

// Product is a watch listed in the shop.
type Product struct {
	BaseModel
	Name           string                 `gorm:"index" json:"name"`
	Description    string                 `json:"description"`
	Price          float64                `json:"price"`
	OriginalPrice  *float64               `json:"originalPrice,omitempty"`
	Category       string                 `gorm:"index" json:"category"`
	Brand          string                 `gorm:"index" json:"brand"`
	Features       StringList             `json:"features"`
	Images         StringList             `json:"images"`
	MainImage      string                 `gorm:"-" json:"mainImage"`
	IsNew          bool                   `json:"isNew"`
	OnSale         bool                   `json:"onSale"`
	Stock          int                    `json:"stock"`
	Weight         ProductWeight          `gorm:"embedded;embeddedPrefix:weight_" json:"weight"`
	Dimensions     ProductDimensions      `gorm:"embedded;embeddedPrefix:dimensions_" json:"dimensions"`
	Materials      ProductMaterials       `gorm:"embedded;embeddedPrefix:materials_" json:"materials"`
	Specifications []ProductSpecification `gorm:"constraint:OnDelete:CASCADE" json:"specifications,omitempty"`
	Rating         float64                `json:"rating"`
	ReviewCount    int                    `json:"reviewCount"`
	SKU            *string                `gorm:"uniqueIndex" json:"sku,omitempty"`
}

type ProductWeight struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

type ProductDimensions struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Unit   string  `json:"unit"`
}

type ProductMaterials struct {
	Case  string `json:"case"`
	Strap string `json:"strap"`
	Glass string `json:"glass"`
}

type ProductSpecification struct {
	BaseModel
	ProductID    uuid.UUID `gorm:"type:uuid;index" json:"productId"`
	Label        string    `json:"label"`
	Value        string    `json:"value"`
	DisplayOrder int       `json:"displayOrder"`
}

// AfterFind fills the computed main image.
func (p *Product) AfterFind(tx *gorm.DB) error {
	p.computeMainImage()
	return nil
}

// AfterSave keeps the computed main image current for freshly written rows.
func (p *Product) AfterSave(tx *gorm.DB) error {
	p.computeMainImage()
	return nil
}

func (p *Product) computeMainImage() {
	p.MainImage = ""
	if len(p.Images) > 0 {
		p.MainImage = p.Images[0]
	}
}

// Snapshot copies the display fields kept alongside cart and favorite entries.
func (p *Product) Snapshot() ProductSnapshot {
	p.computeMainImage()
	return ProductSnapshot{
		Name:          p.Name,
		Price:         p.Price,
		OriginalPrice: p.OriginalPrice,
		Image:         p.MainImage,
		Brand:         p.Brand,
		Category:      p.Category,
	}
}

// ProductSnapshot is a denormalized copy of a product's display fields.
type ProductSnapshot struct {
	Name          string   `json:"name"`
	Price         float64  `json:"price"`
	OriginalPrice *float64 `json:"originalPrice,omitempty"`
	Image         string   `json:"image"`
	Brand         string   `json:"brand"`
	Category      string   `json:"category"`
}

// ValidCategory reports whether c is one of the shop categories.
func ValidCategory(c string) bool {
	switch c {
	case CategoryMen, CategoryWomen, CategorySmart:
		return true
	}
	return false
}
