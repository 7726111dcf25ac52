package profile

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mare-review-api/internal/config"
)

const sampleDoc = `{
	"Rarity": {"profile": "Dramatic and generous.", "quotes": ["Darling!"]},
	"Applejack": {"profile": "Honest and hardworking.", "quotes": ["Yeehaw!", "Sugarcube."]}
}`

func TestParse(t *testing.T) {
	profiles, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	// 按名称排序，注册顺序确定
	assert.Equal(t, "Applejack", profiles[0].Name)
	assert.Equal(t, "Honest and hardworking.", profiles[0].Description)
	assert.Equal(t, []string{"Yeehaw!", "Sugarcube."}, profiles[0].Quotes)
	assert.Equal(t, "Rarity", profiles[1].Name)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("not json"))
	assert.Error(t, err)

	_, err = Parse([]byte(`{}`))
	assert.Error(t, err)

	// 缺少性格描述的角色视为残缺档案
	_, err = Parse([]byte(`{"Derpy": {"quotes": ["muffins"]}}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"  ": {"profile": "x"}}`))
	assert.Error(t, err)
}

func TestLoad_FromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0o600))

	profiles, err := Load(context.Background(), config.ProfilesConfig{Path: path})
	require.NoError(t, err)
	assert.Len(t, profiles, 2)
}

func TestLoad_FromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(sampleDoc))
	}))
	defer srv.Close()

	profiles, err := Load(context.Background(), config.ProfilesConfig{URL: srv.URL})
	require.NoError(t, err)
	assert.Len(t, profiles, 2)
}

func TestLoad_URLFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := Load(context.Background(), config.ProfilesConfig{URL: srv.URL})
	assert.Error(t, err)
}

func TestLoad_NotConfigured(t *testing.T) {
	_, err := Load(context.Background(), config.ProfilesConfig{})
	assert.Error(t, err)
}

func TestLoad_PathTakesPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0o600))

	// URL 指向不可用地址，Path 可用时不应访问 URL
	profiles, err := Load(context.Background(), config.ProfilesConfig{
		Path: path,
		URL:  "http://127.0.0.1:1/unreachable",
	})
	require.NoError(t, err)
	assert.Len(t, profiles, 2)
}
