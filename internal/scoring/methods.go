// Package scoring matches client preferences against contraceptive methods and
// ranks methods for recommendation.
package scoring

import "github.com/thebtf/contraceptiq/pkg/models"

// Attribute is a property a method may have.
type Attribute string

const (
	AttrEffective         Attribute = "effective"
	AttrPreventsSTI       Attribute = "preventsSTI"
	AttrNonhormonal       Attribute = "nonhormonal"
	AttrRegulatesBleeding Attribute = "regulatesBleeding"
	AttrPrivate           Attribute = "private"
	AttrClientControlled  Attribute = "clientControlled"
	AttrLongActing        Attribute = "longacting"
)

// preferenceAttributes maps intake preference tags to method attributes.
var preferenceAttributes = map[string]Attribute{
	"effectiveness": AttrEffective,
	"sti":           AttrPreventsSTI,
	"nonhormonal":   AttrNonhormonal,
	"regular":       AttrRegulatesBleeding,
	"privacy":       AttrPrivate,
	"client":        AttrClientControlled,
	"longterm":      AttrLongActing,
}

// PreferenceTags lists the recognized preference tags.
var PreferenceTags = []string{
	"effectiveness", "sti", "nonhormonal", "regular", "privacy", "client", "longterm",
}

// MethodInfo describes one method.
type MethodInfo struct {
	Attributes  map[Attribute]bool `json:"attributes"`
	ID          models.MethodID    `json:"id"`
	Name        string             `json:"name"`
	DisplayName string             `json:"display_name"`
	Description string             `json:"description"`
}

// Has reports whether the method has attribute a.
func (m MethodInfo) Has(a Attribute) bool {
	return m.Attributes[a]
}

// Catalog is a fixed set of methods keyed by ID.
type Catalog map[models.MethodID]MethodInfo

func attrs(list ...Attribute) map[Attribute]bool {
	out := make(map[Attribute]bool, len(list))
	for _, a := range list {
		out[a] = true
	}
	return out
}

// DefaultCatalog is the method table used by the intake flow.
// No method in it prevents STIs.
var DefaultCatalog = Catalog{
	models.MethodCuIUD: {
		ID:          models.MethodCuIUD,
		Name:        "Copper IUD",
		DisplayName: "Cu-IUD (Copper)",
		Description: "Non-hormonal, long-acting",
		Attributes:  attrs(AttrEffective, AttrNonhormonal, AttrLongActing, AttrPrivate),
	},
	models.MethodLNGIUD: {
		ID:          models.MethodLNGIUD,
		Name:        "Hormonal IUD",
		DisplayName: "LNG-IUD (Hormonal)",
		Description: "Hormonal IUD, long-acting",
		Attributes:  attrs(AttrEffective, AttrLongActing, AttrPrivate, AttrRegulatesBleeding),
	},
	models.MethodImplant: {
		ID:          models.MethodImplant,
		Name:        "Implant",
		DisplayName: "Implant",
		Description: "Long-acting, highly effective",
		Attributes:  attrs(AttrEffective, AttrLongActing, AttrPrivate),
	},
	models.MethodDMPA: {
		ID:          models.MethodDMPA,
		Name:        "Injectable",
		DisplayName: "DMPA (Injectable)",
		Description: "Injection every 3 months",
		Attributes:  attrs(AttrPrivate, AttrEffective),
	},
	models.MethodCHC: {
		ID:          models.MethodCHC,
		Name:        "Combined Hormonal",
		DisplayName: "CHC (Patch/Pills/Ring)",
		Description: "Combined hormonal methods",
		Attributes:  attrs(AttrClientControlled, AttrRegulatesBleeding),
	},
	models.MethodPOP: {
		ID:          models.MethodPOP,
		Name:        "Progestin-Only Pill",
		DisplayName: "POP (Progestin-Only Pills)",
		Description: "Daily progestin pill",
		Attributes:  attrs(AttrClientControlled, AttrPrivate),
	},
}

// DisplayOrder is the order methods are listed in before ranking.
var DisplayOrder = []models.MethodID{
	models.MethodImplant,
	models.MethodDMPA,
	models.MethodCHC,
	models.MethodCuIUD,
	models.MethodPOP,
	models.MethodLNGIUD,
}
