package scene

import "fmt"

// AreaKind is the state of a face's area classification.
type AreaKind uint8

const (
	// AreaUnassigned means no leaf reached by the tree walk referenced the face.
	AreaUnassigned AreaKind = iota
	// AreaAssigned means every referencing leaf agreed on one area.
	AreaAssigned
	// AreaAmbiguous means leaves in different areas referenced the face.
	AreaAmbiguous
)

// Area is the tri-state visibility area of a face or mesh.
type Area struct {
	Kind AreaKind
	ID   int
}

// AssignedArea returns an Area in the assigned state.
func AssignedArea(id int) Area {
	return Area{Kind: AreaAssigned, ID: id}
}

// Merge folds one more referencing leaf's area into a.
func (a Area) Merge(id int) Area {
	switch a.Kind {
	case AreaUnassigned:
		return AssignedArea(id)
	case AreaAssigned:
		if a.ID == id {
			return a
		}
		return Area{Kind: AreaAmbiguous}
	default:
		return a
	}
}

// Less orders unassigned before assigned areas (ascending by ID) before ambiguous.
func (a Area) Less(b Area) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	return a.Kind == AreaAssigned && a.ID < b.ID
}

func (a Area) String() string {
	switch a.Kind {
	case AreaAssigned:
		return fmt.Sprintf("area %d", a.ID)
	case AreaAmbiguous:
		return "ambiguous"
	default:
		return "unassigned"
	}
}
