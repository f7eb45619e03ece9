package mec

import "github.com/thebtf/contraceptiq/pkg/models"

// UnknownColor and UnknownLabel are returned for values outside 1..4.
const (
	UnknownColor = "#9E9E9E"
	UnknownLabel = "Unknown"
)

var colors = map[models.MECCategory]string{
	models.MECNoRestriction: "#4CAF50",
	models.MECAdvantages:    "#FFC107",
	models.MECRisksOutweigh: "#FF9800",
	models.MECUnacceptable:  "#F44336",
}

var labels = map[models.MECCategory]string{
	models.MECNoRestriction: "Safe",
	models.MECAdvantages:    "Generally Safe",
	models.MECRisksOutweigh: "Use with Caution",
	models.MECUnacceptable:  "Not Recommended",
}

// Color returns the display color for a category.
func Color(c models.MECCategory) string {
	if v, ok := colors[c]; ok {
		return v
	}
	return UnknownColor
}

// Label returns the display label for a category.
func Label(c models.MECCategory) string {
	if v, ok := labels[c]; ok {
		return v
	}
	return UnknownLabel
}
