package store

import "time"

type Producer struct {
	ID        string
	Name      string
	Document  string
	CreatedAt time.Time
}

type Template struct {
	ID        string
	Name      string
	Version   int
	Sections  []Section
	CreatedAt time.Time
}

type Section struct {
	ID                string
	TemplateID        string
	Name              string
	Position          int
	IterateOverFields bool
	Items             []Item
}

type Item struct {
	ID             string
	SectionID      string
	Name           string
	Type           string
	Position       int
	Required       bool
	AskForQuantity bool
	DatabaseSource string
	Options        []string
}

// Field is a spatial parcel of a producer's property map. Read-only here;
// ownership lives with the property-map service that seeded it.
type Field struct {
	ID         string
	ProducerID string
	Name       string
	Area       *float64
}

type Checklist struct {
	ID         string
	PublicID   string
	TemplateID string
	ProducerID string
	Status     string
	ParentID   *string
	Children   []ChecklistChild
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type ChecklistChild struct {
	ID       string
	PublicID string
	Kind     string
	Status   string
}

// ResponseRecord is the persisted shape of one answer. FieldID is empty for
// items whose section does not iterate over fields; legacy rows carry the
// "global" sentinel instead, which readers must treat the same way.
type ResponseRecord struct {
	ChecklistID      string
	ItemID           string
	FieldID          string
	Answer           []byte
	Quantity         *float64
	ObservationValue string
	FileURL          string
	Status           string
	RejectionReason  string
	IsInternal       bool
	Metadata         []byte
	UpdatedAt        time.Time
}

var allowedChecklistStatus = map[string]struct{}{
	"SENT":        {},
	"IN_PROGRESS": {},
	"FINALIZED":   {},
}

func ValidChecklistStatus(status string) bool {
	_, ok := allowedChecklistStatus[status]
	return ok
}
