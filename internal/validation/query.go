package validation

import (
	"fmt"
	"strings"
	"time"
)

const (
	MaxQueryLimit     = 1000
	DefaultQueryLimit = 100
	MaxActionLen      = 64
)

// AuditQuery filters audit history reads.
type AuditQuery struct {
	Action string
	Since  time.Time
	Until  time.Time
	Limit  int
}

type QueryValidator struct{}

func NewQueryValidator() *QueryValidator {
	return &QueryValidator{}
}

// ValidateAuditQuery checks q and fills in the default limit.
func (qv *QueryValidator) ValidateAuditQuery(q *AuditQuery) error {
	if q.Limit < 0 {
		return fmt.Errorf("limit cannot be negative")
	} else if q.Limit == 0 {
		q.Limit = DefaultQueryLimit
	} else if q.Limit > MaxQueryLimit {
		return fmt.Errorf("limit %d exceeds maximum of %d", q.Limit, MaxQueryLimit)
	}

	if q.Action != "" && !isValidAction(q.Action) {
		return fmt.Errorf("invalid action filter")
	}

	if !q.Since.IsZero() && !q.Until.IsZero() {
		if q.Since.After(q.Until) {
			return fmt.Errorf("since must be before until")
		}

		if q.Until.Sub(q.Since) > 365*24*time.Hour {
			return fmt.Errorf("time range too wide (max 1 year)")
		}
	}

	return nil
}

func isValidAction(action string) bool {
	return len(action) <= MaxActionLen && !strings.ContainsAny(action, ";'\"<>%")
}
