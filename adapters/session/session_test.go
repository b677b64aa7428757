package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestSession_Load(t *testing.T) {
	tests := []struct {
		name      string
		preloaded map[string]string
		mockSetup func(*MockIStore)
		wantErr   string
		wantData  map[string]string
	}{
		{
			name: "successful load",
			mockSetup: func(m *MockIStore) {
				m.EXPECT().Load(gomock.Any(), "test-id").Return(map[string]string{"state": "abc"}, nil)
			},
			wantData: map[string]string{"state": "abc"},
		},
		{
			name: "missing session loads empty",
			mockSetup: func(m *MockIStore) {
				m.EXPECT().Load(gomock.Any(), "test-id").Return(nil, nil)
			},
			wantData: map[string]string{},
		},
		{
			name: "load error",
			mockSetup: func(m *MockIStore) {
				m.EXPECT().Load(gomock.Any(), "test-id").Return(nil, errors.New("load error"))
			},
			wantErr: "load error",
		},
		{
			name:      "already loaded",
			preloaded: map[string]string{"existing": "data"},
			mockSetup: func(*MockIStore) {},
			wantData:  map[string]string{"existing": "data"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			store := NewMockIStore(ctrl)
			tt.mockSetup(store)

			s := &sessionImpl{id: "test-id", ctx: context.Background(), store: store, data: tt.preloaded}
			err := s.Load()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantData, s.data)
			assert.False(t, s.Dirty())
		})
	}
}

func TestSession_SaveOnlyWhenDirty(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockIStore(ctrl)
	s := NewSession(context.Background(), "test-id", store)

	// 未修改時不寫入
	store.EXPECT().Load(gomock.Any(), "test-id").Return(map[string]string{"a": "1"}, nil)
	require.NoError(t, s.Load())
	require.NoError(t, s.Save())

	s.Set("a", "1")
	assert.False(t, s.Dirty())

	s.Set("b", "2")
	assert.True(t, s.Dirty())
	store.EXPECT().Save(gomock.Any(), "test-id", map[string]string{"a": "1", "b": "2"}).Return(nil)
	require.NoError(t, s.Save())
	assert.False(t, s.Dirty())
}

func TestSession_SaveError(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockIStore(ctrl)
	store.EXPECT().Save(gomock.Any(), "test-id", gomock.Any()).Return(errors.New("save error"))

	s := &sessionImpl{id: "test-id", ctx: context.Background(), store: store}
	s.Set("key", "value")
	err := s.Save()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save error")
	assert.True(t, s.Dirty())
}

func TestSession_Pop(t *testing.T) {
	s := &sessionImpl{data: map[string]string{"nonce": "n-1"}}

	assert.Equal(t, "n-1", s.Pop("nonce"))
	assert.True(t, s.Dirty())
	assert.Equal(t, "", s.Pop("nonce"))
	assert.Empty(t, s.data)

	empty := &sessionImpl{}
	assert.Equal(t, "", empty.Pop("nonce"))
	assert.False(t, empty.Dirty())
}

func TestSession_DeleteAndClear(t *testing.T) {
	s := &sessionImpl{data: map[string]string{"key1": "value1", "key2": "value2"}}

	s.Delete("missing")
	assert.False(t, s.Dirty())

	s.Delete("key1")
	assert.Equal(t, map[string]string{"key2": "value2"}, s.data)
	assert.True(t, s.Dirty())

	s.Clear()
	assert.NotNil(t, s.data)
	assert.Empty(t, s.data)

	fresh := &sessionImpl{}
	fresh.Clear()
	assert.False(t, fresh.Dirty())
	assert.Equal(t, "", fresh.Get("key1"))
}

func TestParseSameSite(t *testing.T) {
	assert.Equal(t, http.SameSiteStrictMode, ParseSameSite("Strict"))
	assert.Equal(t, http.SameSiteNoneMode, ParseSameSite("none"))
	assert.Equal(t, http.SameSiteLaxMode, ParseSameSite(" lax "))
	assert.Equal(t, http.SameSiteDefaultMode, ParseSameSite(""))
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("new session is saved when modified", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := NewMockIStore(ctrl)
		store.EXPECT().Load(gomock.Any(), gomock.Any()).Return(nil, nil)
		store.EXPECT().Save(gomock.Any(), gomock.Any(), map[string]string{"state": "xyz"}).Return(nil)

		router := gin.New()
		router.Use(GinMiddleware(store, WithCookieSecure(false), WithCookieSameSite("strict")))
		router.GET("/", func(c *gin.Context) {
			s, err := GetSession(c)
			require.NoError(t, err)
			s.Set("state", "xyz")
			c.Status(http.StatusNoContent)
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusNoContent, w.Code)
		cookie := w.Header().Get("Set-Cookie")
		assert.True(t, strings.HasPrefix(cookie, "session="))
		assert.Contains(t, cookie, "SameSite=Strict")
		assert.Contains(t, cookie, "HttpOnly")
	})

	t.Run("existing session is reused and not saved when untouched", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := NewMockIStore(ctrl)
		store.EXPECT().Load(gomock.Any(), "abc").Return(map[string]string{"state": "s-1"}, nil)

		router := gin.New()
		router.Use(GinMiddleware(store))
		var got string
		router.GET("/", func(c *gin.Context) {
			s, err := GetSession(c)
			require.NoError(t, err)
			got = s.Get("state")
			c.Status(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "session", Value: "abc"})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "s-1", got)
		assert.Contains(t, w.Header().Get("Set-Cookie"), "session=abc")
	})
}

func TestGetSession_NotFound(t *testing.T) {
	_, err := GetSession(context.Background())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
