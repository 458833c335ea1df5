package textnorm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oggyb/cunhao-core/internal/utils/textnorm"
)

func TestClean(t *testing.T) {
	assert.Equal(t, "Esto con Carmena no pasaba", textnorm.Clean("  Esto  con\tCarmena\n no pasaba "))
	assert.Equal(t, "", textnorm.Clean(" \t\n"))
}

func TestNormalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"figura", "figura"},
		{"  FIGURA ", "figura"},
		{"Cuñao", "cunao"},
		{"máquina   Fiera", "maquina fiera"},
		{"¿Qué pasa, CAMPEÓN?", "¿que pasa, campeon?"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, textnorm.Normalize(c.in), c.in)
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, textnorm.Equal("Máquina", "maquina"))
	assert.False(t, textnorm.Equal("máquina", "maquinas"))
}
