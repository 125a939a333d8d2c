package memory_test

import (
	"testing"

	"github.com/spounge-ai/medvault/pkg/memory"
	"github.com/stretchr/testify/assert"
)

func TestSecureZeroBytes(t *testing.T) {
	b := []byte{1, 2, 3}
	memory.SecureZeroBytes(b)
	assert.Equal(t, []byte{0, 0, 0}, b)
}

func TestSecureKeyPoolZeroesOnPut(t *testing.T) {
	p := memory.NewSecureKeyPool(32)
	buf := p.Get()
	assert.Len(t, buf, 32)
	buf[0] = 9
	p.Put(buf)
	assert.Zero(t, buf[0])
}
