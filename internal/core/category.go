package core

// Category is a member of the closed transaction taxonomy. Source systems emit
// arbitrary strings; those only ever reach a Category through the alias table,
// so an unmapped hint is a configuration gap, not silent guesswork.
type Category string

const (
	CategoryRevenue          Category = "Revenue"
	CategoryCOGS             Category = "COGS"
	CategoryOpexRent         Category = "Opex:Rent"
	CategoryOpexPayroll      Category = "Opex:Payroll"
	CategoryOpexMarketing    Category = "Opex:Marketing"
	CategoryOpexSoftware     Category = "Opex:Software"
	CategoryOpexTravel       Category = "Opex:Travel"
	CategoryOpexOffice       Category = "Opex:Office"
	CategoryOpexUtilities    Category = "Opex:Utilities"
	CategoryOpexProfessional Category = "Opex:Professional"
	CategoryOpexOther        Category = "Opex:Other"
	CategoryTax              Category = "Tax"
	CategoryOther            Category = "Other"
)

// Group is a top-level P&L line.
type Group string

const (
	GroupRevenue Group = "Revenue"
	GroupCOGS    Group = "COGS"
	GroupOpex    Group = "Opex"
	GroupTax     Group = "Tax"
	GroupOther   Group = "Other"
)

var categories = []Category{
	CategoryRevenue,
	CategoryCOGS,
	CategoryOpexRent,
	CategoryOpexPayroll,
	CategoryOpexMarketing,
	CategoryOpexSoftware,
	CategoryOpexTravel,
	CategoryOpexOffice,
	CategoryOpexUtilities,
	CategoryOpexProfessional,
	CategoryOpexOther,
	CategoryTax,
	CategoryOther,
}

var groups = []Group{GroupRevenue, GroupCOGS, GroupOpex, GroupTax, GroupOther}

// Categories returns the taxonomy in stable order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// Groups returns the top-level P&L lines in stable order.
func Groups() []Group {
	out := make([]Group, len(groups))
	copy(out, groups)
	return out
}

// Valid reports whether c is a member of the taxonomy.
func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

// Group collapses a category to its top-level P&L line.
func (c Category) Group() Group {
	switch c {
	case CategoryRevenue:
		return GroupRevenue
	case CategoryCOGS:
		return GroupCOGS
	case CategoryTax:
		return GroupTax
	case CategoryOther:
		return GroupOther
	default:
		return GroupOpex
	}
}
