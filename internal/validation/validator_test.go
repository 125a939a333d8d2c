package validation_test

import (
	"strings"
	"testing"
	"time"

	"github.com/spounge-ai/medvault/internal/domain"
	"github.com/spounge-ai/medvault/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	rv, err := validation.NewRecordValidator()
	require.NoError(t, err)

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "case-2024-01", false},
		{"unicode", "caso_niño", false},
		{"max length", strings.Repeat("a", validation.MaxRecordNameLen), false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"too long", strings.Repeat("a", validation.MaxRecordNameLen+1), true},
		{"angle bracket", "<script>", true},
		{"ampersand", "a&b", true},
		{"double quote", `a"b`, true},
		{"single quote", "a'b", true},
		{"newline", "a\nb", true},
		{"nul", "a\x00b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rv.ValidateName(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePayload(t *testing.T) {
	rv, err := validation.NewRecordValidator()
	require.NoError(t, err)

	t.Run("nil payload", func(t *testing.T) {
		assert.Error(t, rv.ValidatePayload(nil))
	})

	t.Run("credential without value", func(t *testing.T) {
		assert.Error(t, rv.ValidatePayload(domain.Credential{Provider: "openai"}))
	})

	t.Run("credential ok", func(t *testing.T) {
		assert.NoError(t, rv.ValidatePayload(domain.Credential{Provider: "openai", Value: "sk-test"}))
	})

	t.Run("conversation requires case id", func(t *testing.T) {
		assert.Error(t, rv.ValidatePayload(domain.Conversation{Title: "visit"}))
	})

	t.Run("nested message is checked", func(t *testing.T) {
		conv := domain.Conversation{
			CaseID:   "case-1",
			Messages: []domain.Message{{Original: "hello"}},
		}
		err := rv.ValidatePayload(conv)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Speaker")
		assert.NotContains(t, err.Error(), "hello")
	})

	t.Run("nested summary is checked", func(t *testing.T) {
		conv := domain.Conversation{CaseID: "case-1", Summary: &domain.Summary{Text: "x"}}
		assert.Error(t, rv.ValidatePayload(conv))
	})

	t.Run("conversation ok", func(t *testing.T) {
		conv := domain.Conversation{
			CaseID:   "case-1",
			Messages: []domain.Message{{Speaker: "patient", Original: "my head hurts", Timestamp: time.Now()}},
			Tags:     map[string]string{"ward": "3"},
		}
		assert.NoError(t, rv.ValidatePayload(conv))
	})
}

func TestValidateAuditQuery(t *testing.T) {
	qv := validation.NewQueryValidator()

	q := &validation.AuditQuery{}
	require.NoError(t, qv.ValidateAuditQuery(q))
	assert.Equal(t, validation.DefaultQueryLimit, q.Limit)

	assert.Error(t, qv.ValidateAuditQuery(&validation.AuditQuery{Limit: -1}))
	assert.Error(t, qv.ValidateAuditQuery(&validation.AuditQuery{Limit: validation.MaxQueryLimit + 1}))
	assert.Error(t, qv.ValidateAuditQuery(&validation.AuditQuery{Action: "x'; drop"}))

	now := time.Now()
	assert.Error(t, qv.ValidateAuditQuery(&validation.AuditQuery{Since: now, Until: now.Add(-time.Hour)}))
	assert.Error(t, qv.ValidateAuditQuery(&validation.AuditQuery{Since: now.Add(-400 * 24 * time.Hour), Until: now}))
	assert.NoError(t, qv.ValidateAuditQuery(&validation.AuditQuery{Action: "record_access", Since: now.Add(-time.Hour), Until: now}))
}
