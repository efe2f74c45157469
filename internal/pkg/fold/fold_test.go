package fold

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString_FoldsCaseAndDiacritics(t *testing.T) {
	assert.Equal(t, "zoe", String("Zoë"))
	assert.Equal(t, "zoe", String("ZOE"))
	assert.Equal(t, "emile", String("Émile"))
	assert.Equal(t, "angstrom", String("Ångström"))
}

func TestInitial(t *testing.T) {
	assert.Equal(t, "E", Initial("émile", "Z"))
	assert.Equal(t, "A", Initial("alice", "Z"))
	assert.Equal(t, "Z", Initial("", "Z"))
	assert.Equal(t, "Z", Initial("   ", "Z"))
	assert.Equal(t, "Z", Initial("́", "Z"))
}
