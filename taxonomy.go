package cocoyolo

// The fixed source and target class tables.

// Label is a semantic label of the reduced target taxonomy.
type Label string

// The semantic labels, in target class order.
const (
	Person    Label = "person"
	Vehicle   Label = "vehicle"
	Animal    Label = "animal"    // Reserved, no source category maps here yet.
	Equipment Label = "equipment" // Reserved.
	Debris    Label = "debris"    // Reserved.
)

// categoryMapping maps COCO category ids to semantic labels. Categories missing from the map are
// dropped during conversion.
var categoryMapping = map[int]Label{
	0: Person,
	1: Vehicle, // bicycle
	2: Vehicle, // car
	3: Vehicle, // motorcycle
	5: Vehicle, // bus
	6: Vehicle, // train
	7: Vehicle, // truck
}

// targetClasses is the target class table. The slice index is the class index.
var targetClasses = []Label{Person, Vehicle, Animal, Equipment, Debris}

// LookupCategory returns the semantic label for the COCO category id, if it is mapped.
func LookupCategory(categoryID int) (Label, bool) {
	l, ok := categoryMapping[categoryID]
	return l, ok
}

// ClassIndex returns the dense target class index of label, or -1 if the label is not part of
// the target class table.
func ClassIndex(label Label) int {
	for i, l := range targetClasses {
		if l == label {
			return i
		}
	}
	return -1
}

// ClassNames returns a copy of the target class names in class index order.
func ClassNames() []string {
	names := make([]string, len(targetClasses))
	for i, l := range targetClasses {
		names[i] = string(l)
	}
	return names
}

// NumClasses is the number of rows in the target class table.
func NumClasses() int {
	return len(targetClasses)
}
