package habit

import (
	"fmt"
	"time"
)

// Field identifies one of the closed set of habit fields that tools may
// mutate. Arbitrary dotted-path updates are deliberately not supported; every
// updatable field is enumerated here and validated in Apply.
type Field string

const (
	FieldName       Field = "name"
	FieldCategory   Field = "category"
	FieldDifficulty Field = "difficulty"
	FieldCooldown   Field = "cooldown_until"
	FieldMetadata   Field = "metadata"
)

// FieldUpdate is a tagged variant describing one habit mutation. Exactly the
// value slot matching the field's type is read; the others are ignored.
type FieldUpdate struct {
	Field  Field
	String string
	Int    int
	Time   time.Time
	Key    string // metadata key, FieldMetadata only
	Value  any    // metadata value, FieldMetadata only
}

// Apply validates the update against s and mutates it in place.
func (u FieldUpdate) Apply(s *State, now time.Time) error {
	switch u.Field {
	case FieldName:
		if u.String == "" {
			return fmt.Errorf("habit name cannot be empty")
		}
		s.Name = u.String
	case FieldCategory:
		s.Category = u.String
	case FieldDifficulty:
		d := u.Int
		if d < 1 {
			d = 1
		}
		if d > 5 {
			d = 5
		}
		s.Difficulty = d
	case FieldCooldown:
		if u.Time.IsZero() {
			return fmt.Errorf("cooldown timestamp required")
		}
		s.ExtendCooldown(u.Time, now)
	case FieldMetadata:
		if u.Key == "" {
			return fmt.Errorf("metadata key required")
		}
		if s.Metadata == nil {
			s.Metadata = make(map[string]any)
		}
		s.Metadata[u.Key] = u.Value
	default:
		return fmt.Errorf("unknown habit field %q", u.Field)
	}
	return nil
}
