package registry

import (
	"testing"

	"github.com/efferion/hlsgrab/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct{ id int }

type otherClient struct{ id int }

func TestResolveBeforeRegisterFails(t *testing.T) {
	r := New()
	_, err := Resolve[*fakeClient](r)
	require.Error(t, err)

	var cfgErr *apperrors.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, 3001, cfgErr.Code)
}

func TestRegisterTransientCallsFactoryEachResolve(t *testing.T) {
	r := New()
	calls := 0
	Register(r, func() *fakeClient {
		calls++
		return &fakeClient{id: calls}
	})

	first, err := Resolve[*fakeClient](r)
	require.NoError(t, err)
	second, err := Resolve[*fakeClient](r)
	require.NoError(t, err)

	assert.Equal(t, 1, first.id)
	assert.Equal(t, 2, second.id)
	assert.Equal(t, 2, calls)
}

func TestRegisterSingletonCachesFirstInstance(t *testing.T) {
	r := New()
	calls := 0
	RegisterSingleton(r, func() *fakeClient {
		calls++
		return &fakeClient{id: calls}
	})

	first, err := Resolve[*fakeClient](r)
	require.NoError(t, err)
	second, err := Resolve[*fakeClient](r)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestDistinctTypesDoNotCollide(t *testing.T) {
	r := New()
	RegisterSingleton(r, func() *fakeClient { return &fakeClient{id: 1} })
	RegisterSingleton(r, func() *otherClient { return &otherClient{id: 2} })

	a, err := Resolve[*fakeClient](r)
	require.NoError(t, err)
	b, err := Resolve[*otherClient](r)
	require.NoError(t, err)

	assert.Equal(t, 1, a.id)
	assert.Equal(t, 2, b.id)
}

func TestResetClearsRegistrations(t *testing.T) {
	r := New()
	RegisterSingleton(r, func() *fakeClient { return &fakeClient{id: 1} })
	r.Reset()

	_, err := Resolve[*fakeClient](r)
	require.Error(t, err)
}
