package driver

import "fmt"

// Family is a controller hardware family.
type Family string

// Supported families.
const (
	// FamilyMultivision addresses numbered modules over one connection.
	FamilyMultivision Family = "Multivision"

	// FamilyOnlyGlass has a single implicit channel per connection.
	FamilyOnlyGlass Family = "OnlyGlass"
)

// Families lists every supported family in display order.
func Families() []Family {
	return []Family{FamilyMultivision, FamilyOnlyGlass}
}

// ParseFamily returns the family with the given name.
func ParseFamily(s string) (Family, error) {
	for _, f := range Families() {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown controller family %q", s)
}

// Target addresses one channel behind a handler. Module is ignored for
// OnlyGlass.
type Target struct {
	Family Family
	Module int
}

func (t Target) String() string {
	if t.Family == FamilyOnlyGlass {
		return string(t.Family)
	}
	return fmt.Sprintf("%s#%d", t.Family, t.Module)
}

// Unit is the unit of a brightness write.
type Unit int

// Brightness units.
const (
	// Unit8Bit is 0..255.
	Unit8Bit Unit = iota
	// UnitPercent is 0..100.
	UnitPercent
)

// Max returns the largest valid value for the unit.
func (u Unit) Max() int {
	if u == UnitPercent {
		return 100
	}
	return 255
}

func (u Unit) String() string {
	if u == UnitPercent {
		return "percent"
	}
	return "8bit"
}
