package models

import "fmt"

// MaxSlots is the number of production runs a product can record per day.
const MaxSlots = 5

// ProductionSlot is one timed production run of a single product.
type ProductionSlot struct {
	Quantity  int    `json:"quantity" bson:"quantity"`
	Timestamp string `json:"timestamp" bson:"timestamp"`
}

// Filled reports whether the slot has been confirmed.
func (s ProductionSlot) Filled() bool {
	return s.Timestamp != "" || s.Quantity != 0
}

// ProductionItem is one product of the day's catalog. Category and Product
// together identify the row; product names are unique within a map.
type ProductionItem struct {
	Category string           `json:"category" bson:"category"`
	Product  string           `json:"product" bson:"product"`
	Slots    []ProductionSlot `json:"production_slots" bson:"production_slots"`
	Losses   int              `json:"losses" bson:"losses"`
	Surplus  int              `json:"surplus" bson:"surplus"`
}

// TotalProduced sums the quantities of every recorded slot.
func (i ProductionItem) TotalProduced() int {
	total := 0
	for _, slot := range i.Slots {
		total += slot.Quantity
	}
	return total
}

// SlotAt returns the 1-based slot and whether the item holds it.
func (i ProductionItem) SlotAt(index int) (ProductionSlot, bool) {
	if index < 1 || index > len(i.Slots) {
		return ProductionSlot{}, false
	}
	return i.Slots[index-1], true
}

// SetSlot stores slot at the 1-based index, padding missing runs with empty slots.
func (i *ProductionItem) SetSlot(index int, slot ProductionSlot) error {
	if index < 1 || index > MaxSlots {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, index)
	}
	for len(i.Slots) < index {
		i.Slots = append(i.Slots, ProductionSlot{})
	}
	i.Slots[index-1] = slot
	return nil
}

// Clone returns a deep copy of the item.
func (i ProductionItem) Clone() ProductionItem {
	out := i
	if i.Slots != nil {
		out.Slots = append([]ProductionSlot(nil), i.Slots...)
	}
	return out
}

// ProductionMap is the root aggregate for one calendar day.
type ProductionMap struct {
	Date    string           `json:"date" bson:"date"`
	Weekday string           `json:"weekday" bson:"weekday"`
	Items   []ProductionItem `json:"items" bson:"items"`
}

// Item returns a pointer into Items for the given product, or nil.
func (m *ProductionMap) Item(product string) *ProductionItem {
	if m == nil {
		return nil
	}
	for idx := range m.Items {
		if m.Items[idx].Product == product {
			return &m.Items[idx]
		}
	}
	return nil
}

// Clone returns a deep copy of the map.
func (m *ProductionMap) Clone() *ProductionMap {
	if m == nil {
		return nil
	}
	out := &ProductionMap{Date: m.Date, Weekday: m.Weekday}
	if m.Items != nil {
		out.Items = make([]ProductionItem, len(m.Items))
		for idx, item := range m.Items {
			out.Items[idx] = item.Clone()
		}
	}
	return out
}

// Validate checks that product names are unique.
func (m *ProductionMap) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: production map is nil", ErrDecode)
	}
	seen := make(map[string]struct{}, len(m.Items))
	for _, item := range m.Items {
		if _, dup := seen[item.Product]; dup {
			return fmt.Errorf("%w: duplicate product %q", ErrDecode, item.Product)
		}
		seen[item.Product] = struct{}{}
	}
	return nil
}

// Totals returns the summed production, losses and surplus of every item.
func (m *ProductionMap) Totals() (produced, losses, surplus int) {
	if m == nil {
		return 0, 0, 0
	}
	for _, item := range m.Items {
		produced += item.TotalProduced()
		losses += item.Losses
		surplus += item.Surplus
	}
	return produced, losses, surplus
}
