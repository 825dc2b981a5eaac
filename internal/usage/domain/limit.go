package domain

import (
	"encoding/json"
	"fmt"
)

// Limit caps usage within a billing period. The zero value is Bounded(0),
// which rejects every request.
type Limit struct {
	unlimited bool
	value     int64
}

// Unlimited returns a limit that never rejects.
func Unlimited() Limit { return Limit{unlimited: true} }

// Bounded returns a hard cap of n requests per period. Negative caps clamp to zero.
func Bounded(n int64) Limit {
	if n < 0 {
		n = 0
	}
	return Limit{value: n}
}

// LimitFromPtr maps a nullable stored cap to the tagged form: nil is unlimited.
func LimitFromPtr(n *int64) Limit {
	if n == nil {
		return Unlimited()
	}
	return Bounded(*n)
}

func (l Limit) IsUnlimited() bool { return l.unlimited }

// Value returns the bounded cap. Only meaningful when IsUnlimited is false.
func (l Limit) Value() int64 { return l.value }

// Allows reports whether one more request fits under the cap at the given count.
func (l Limit) Allows(count int64) bool {
	if l.unlimited {
		return true
	}
	return count < l.value
}

func (l Limit) String() string {
	if l.unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d", l.value)
}

// MarshalJSON renders bounded caps as numbers and unlimited as null.
func (l Limit) MarshalJSON() ([]byte, error) {
	if l.unlimited {
		return []byte("null"), nil
	}
	return json.Marshal(l.value)
}

func (l *Limit) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = Unlimited()
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("limit must be a number or null: %w", err)
	}
	*l = Bounded(n)
	return nil
}
