package review

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mare-review-api/internal/domain/entity"
	apperrors "mare-review-api/pkg/errors"
)

type nopFactory struct{}

func (nopFactory) Get(_ context.Context, _ string) (model.BaseChatModel, error) {
	return nil, errors.New("not wired in tests")
}

func testProfiles() []entity.PersonaProfile {
	return []entity.PersonaProfile{
		{Name: "Applejack", Description: "Honest.", Quotes: []string{"Yeehaw!"}},
		{Name: "Rarity", Description: "Dramatic.", Quotes: nil},
	}
}

func TestNewRegistry_RegistersAllProfiles(t *testing.T) {
	r, err := NewRegistry(testProfiles(), nopFactory{}, Options{MaxAttempts: 3})
	require.NoError(t, err)

	assert.Equal(t, 2, r.Size())
	assert.Equal(t, []string{"Applejack", "Rarity"}, r.Names())
}

func TestRegistry_ResolveIsStable(t *testing.T) {
	r, err := NewRegistry(testProfiles(), nopFactory{}, Options{})
	require.NoError(t, err)

	first, err := r.Resolve("Applejack")
	require.NoError(t, err)
	second, err := r.Resolve("Applejack")
	require.NoError(t, err)

	// 同一名称在进程生命周期内恒返回同一实例
	assert.Same(t, first, second)
	assert.Equal(t, "Applejack", first.Profile().Name)
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	r, err := NewRegistry(testProfiles(), nopFactory{}, Options{})
	require.NoError(t, err)

	_, err = r.Resolve("NoSuchPony")
	assert.ErrorIs(t, err, apperrors.ErrModelNotFound)

	// 角色名大小写敏感
	_, err = r.Resolve("applejack")
	assert.ErrorIs(t, err, apperrors.ErrModelNotFound)
}

func TestNewRegistry_RejectsBadInput(t *testing.T) {
	_, err := NewRegistry(nil, nopFactory{}, Options{})
	assert.Error(t, err)

	dup := []entity.PersonaProfile{
		{Name: "Applejack", Description: "Honest."},
		{Name: "Applejack", Description: "Also honest."},
	}
	_, err = NewRegistry(dup, nopFactory{}, Options{})
	assert.Error(t, err)

	invalid := []entity.PersonaProfile{{Name: "  ", Description: "x"}}
	_, err = NewRegistry(invalid, nopFactory{}, Options{})
	assert.Error(t, err)
}
