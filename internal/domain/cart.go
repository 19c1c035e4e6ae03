package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Size is a garment size variant.
type Size string

const (
	SizeS   Size = "S"
	SizeM   Size = "M"
	SizeL   Size = "L"
	SizeXL  Size = "XL"
	SizeXXL Size = "XXL"

	DefaultSize = SizeM
)

// Sizes lists the valid sizes in display order.
func Sizes() []Size {
	return []Size{SizeS, SizeM, SizeL, SizeXL, SizeXXL}
}

// ParseSize accepts any casing of a valid size.
func ParseSize(s string) (Size, error) {
	want := Size(strings.ToUpper(strings.TrimSpace(s)))
	for _, size := range Sizes() {
		if size == want {
			return size, nil
		}
	}
	return "", fmt.Errorf("invalid size %q", s)
}

// CartLine is one (product, size) entry. A cart holds at most one line per pair.
type CartLine struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Size      Size   `json:"size"`
	Quantity  int    `json:"quantity"`
}

// Cart belongs to exactly one user. A cart with no lines is normally deleted;
// Clear is the only operation that leaves an empty cart behind.
type Cart struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Lines     []CartLine `json:"items"`
	Version   int        `json:"version"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// NewCart creates an empty cart for userID.
func NewCart(userID string, now time.Time) *Cart {
	return &Cart{
		ID:        uuid.NewString(),
		UserID:    userID,
		Lines:     []CartLine{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// FindLine returns the line for (productID, size), or nil.
func (c *Cart) FindLine(productID string, size Size) *CartLine {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID && c.Lines[i].Size == size {
			return &c.Lines[i]
		}
	}
	return nil
}

// QuantityOf returns the quantity held for (productID, size).
func (c *Cart) QuantityOf(productID string, size Size) int {
	if l := c.FindLine(productID, size); l != nil {
		return l.Quantity
	}
	return 0
}

// AddLine appends a new line. Callers merge into FindLine's result when one exists.
func (c *Cart) AddLine(productID string, size Size, qty int) *CartLine {
	c.Lines = append(c.Lines, CartLine{ID: uuid.NewString(), ProductID: productID, Size: size, Quantity: qty})
	return &c.Lines[len(c.Lines)-1]
}

// RemoveLine deletes the line for (productID, size) and reports whether one existed.
func (c *Cart) RemoveLine(productID string, size Size) bool {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID && c.Lines[i].Size == size {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return true
		}
	}
	return false
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// ProductIDs returns the distinct product IDs referenced by the cart.
func (c *Cart) ProductIDs() []string {
	seen := make(map[string]struct{}, len(c.Lines))
	ids := make([]string, 0, len(c.Lines))
	for _, l := range c.Lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}
	return ids
}

// Touch bumps the version and update time before a write.
func (c *Cart) Touch(now time.Time) {
	c.Version++
	c.UpdatedAt = now
}

// CartItem is a cart line joined with the live product it references.
type CartItem struct {
	ID         string          `json:"id"`
	Quantity   int             `json:"quantity"`
	Size       Size            `json:"size"`
	TotalPrice int64           `json:"totalPrice"`
	Product    ProductSnapshot `json:"product"`
}

// Enrich joins lines with products, dropping lines whose product is missing.
func (c *Cart) Enrich(products map[string]*Product) []CartItem {
	items := make([]CartItem, 0, len(c.Lines))
	for _, l := range c.Lines {
		p, ok := products[l.ProductID]
		if !ok {
			continue
		}
		items = append(items, CartItem{
			ID:         l.ID,
			Quantity:   l.Quantity,
			Size:       l.Size,
			TotalPrice: int64(l.Quantity) * p.Price,
			Product:    p.Snapshot(),
		})
	}
	return items
}
