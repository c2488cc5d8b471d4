package scope

import (
	"context"
	"testing"

	"github.com/dcshock/runpipe/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProject_RunRequestSumsScopes(t *testing.T) {
	a := New("a")
	b := New("b")
	c := New("c")
	require.NoError(t, a.Add(rangeDef("daily", 2, 1)))
	require.NoError(t, b.Add(rangeDef("daily", 2, 1)))
	require.NoError(t, c.Add(rangeDef("hourly", 2, 1)))

	p, err := NewProject(a, b, c)
	require.NoError(t, err)

	store := checkpoint.NewMemory()
	n, err := p.RunRequest(context.Background(), RunRequest{Pipeline: "daily", Store: store})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = p.RunRequest(context.Background(), RunRequest{Pipeline: "weekly", Store: store})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestProject_Scopes(t *testing.T) {
	p, err := NewProject(New("z"), New("a"))
	require.NoError(t, err)

	var names []string
	for _, s := range p.Scopes() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"a", "z"}, names)

	s, ok := p.Scope("z")
	require.True(t, ok)
	assert.Equal(t, "z", s.Name)

	assert.ErrorIs(t, p.Add(New("a")), ErrDuplicateScope)
	_, err = NewProject(New("x"), New("x"))
	assert.ErrorIs(t, err, ErrDuplicateScope)
}
