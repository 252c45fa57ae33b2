// Package model defines the core domain models used throughout the application.
package model

// Category is one of the fixed expense categories every persisted
// expense must use.
type Category string

// Canonical category constants.
const (
	CategoryFood           Category = "food"
	CategoryTransportation Category = "transportation"
	CategoryEntertainment  Category = "entertainment"
	CategoryShopping       Category = "shopping"
	CategoryHousing        Category = "housing"
	CategoryHealthcare     Category = "healthcare"
	CategoryEducation      Category = "education"
	CategoryOther          Category = "other"
)

func (c Category) String() string {
	return string(c)
}
