package tags

import "fmt"

// Category is the closed set of tag groups.
type Category string

const (
	CategoryEmotion  Category = "emotion"
	CategoryActivity Category = "activity"
	CategoryPlace    Category = "place"
)

// Categories lists every valid category in display order.
var Categories = []Category{CategoryEmotion, CategoryActivity, CategoryPlace}

// ParseCategory validates a raw category name.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryEmotion, CategoryActivity, CategoryPlace:
		return Category(s), nil
	case "context":
		// older catalogs called the place group "context"
		return CategoryPlace, nil
	}
	return "", fmt.Errorf("unknown tag category %q", s)
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryEmotion, CategoryActivity, CategoryPlace:
		return true
	}
	return false
}
