package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"licensegate/backend/internal/service"
	"licensegate/backend/internal/storage/memory"
)

type resellerAuthFixture struct {
	router    *gin.Engine
	resellers *service.ResellerService
}

func newResellerAuthFixture(t *testing.T) *resellerAuthFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	plans := service.NewPlanService(store)
	resellers := service.NewResellerService(store, plans, nil, zap.NewNop(), 100)

	auth := NewResellerAuth(resellers, zap.NewNop())
	router := gin.New()
	router.GET("/protected", auth.RequireAPIKey(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"resellerID": c.GetString("resellerID")})
	})

	return &resellerAuthFixture{router: router, resellers: resellers}
}

func (f *resellerAuthFixture) request(t *testing.T, apiKey string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestResellerAuth(t *testing.T) {
	t.Run("有效密钥放行并注入经销商 ID", func(t *testing.T) {
		f := newResellerAuthFixture(t)

		created, err := f.resellers.Create(service.CreateResellerInput{BusinessName: "测试经销商"})
		require.NoError(t, err)
		_, err = f.resellers.Approve(created.Reseller.ID)
		require.NoError(t, err)

		w := f.request(t, created.APIKey)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), created.Reseller.ID)
	})

	t.Run("缺失密钥返回机器错误码", func(t *testing.T) {
		f := newResellerAuthFixture(t)

		w := f.request(t, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"success":false,"error":"INVALID_API_KEY"}`, w.Body.String())
	})

	t.Run("无效密钥返回机器错误码", func(t *testing.T) {
		f := newResellerAuthFixture(t)

		w := f.request(t, "lg_not-a-real-key")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"success":false,"error":"INVALID_API_KEY"}`, w.Body.String())
	})

	t.Run("停用经销商与无效密钥不可区分", func(t *testing.T) {
		f := newResellerAuthFixture(t)

		created, err := f.resellers.Create(service.CreateResellerInput{BusinessName: "停用经销商"})
		require.NoError(t, err)
		_, err = f.resellers.Approve(created.Reseller.ID)
		require.NoError(t, err)
		_, err = f.resellers.Suspend(created.Reseller.ID)
		require.NoError(t, err)

		suspended := f.request(t, created.APIKey)
		bogus := f.request(t, "lg_not-a-real-key")

		assert.Equal(t, http.StatusUnauthorized, suspended.Code)
		assert.Equal(t, bogus.Code, suspended.Code)
		assert.JSONEq(t, bogus.Body.String(), suspended.Body.String())
	})

	t.Run("待审批经销商的密钥不可用", func(t *testing.T) {
		f := newResellerAuthFixture(t)

		created, err := f.resellers.Create(service.CreateResellerInput{BusinessName: "待审批经销商"})
		require.NoError(t, err)

		w := f.request(t, created.APIKey)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"success":false,"error":"INVALID_API_KEY"}`, w.Body.String())
	})
}
