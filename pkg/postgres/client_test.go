package postgres_test

import (
	"testing"

	"github.com/spounge-ai/medvault/pkg/postgres"
	"github.com/stretchr/testify/assert"
)

func TestPrefixPattern(t *testing.T) {
	assert.Equal(t, "encrypted\\_%", postgres.PrefixPattern("encrypted_"))
	assert.Equal(t, "100\\%\\\\%", postgres.PrefixPattern(`100%\`))
	assert.Equal(t, "%", postgres.PrefixPattern(""))
}
