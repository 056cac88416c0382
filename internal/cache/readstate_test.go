package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyPrefixing(t *testing.T) {
	s := New(nil, "relay")
	assert.Equal(t, "relay:read:u1:c1", s.readKey("u1", "c1"))
	assert.Equal(t, "relay:presence:u1", s.presenceKey("u1"))

	// a trailing colon in the configured prefix must not double up
	s = New(nil, "relay:")
	assert.Equal(t, "relay:read:u1:c1", s.readKey("u1", "c1"))
}
