package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"walletledger/internal/testutil"
	"walletledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type apiResult struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Reason  string          `json:"reason"`
	Data    json.RawMessage `json:"data"`
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	db := testutil.NewDB(t)
	return SetupRouter(db, nil, testutil.NewConfig(), zaptest.NewLogger(t))
}

func call(t *testing.T, r *gin.Engine, method, path string, body interface{}) apiResult {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res apiResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res), w.Body.String())
	return res
}

func decode(t *testing.T, raw json.RawMessage) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestPayAndRefundOverHTTP(t *testing.T) {
	r := newRouter(t)

	res := call(t, r, http.MethodPost, "/api/v1/owners/user/u-1/recharges/manual", gin.H{
		"amount":   "88.80",
		"executor": "admin",
	})
	require.Equal(t, response.CodeSuccess, res.Code, res.Message)

	payBody := gin.H{
		"app_id":         "app-1",
		"subject":        "云主机按量计费",
		"amounts":        "66.00",
		"order_id":       "456",
		"app_service_id": "s-server",
	}
	res = call(t, r, http.MethodPost, "/api/v1/owners/user/u-1/pay", payBody)
	require.Equal(t, response.CodeSuccess, res.Code, res.Message)
	payment := decode(t, res.Data)
	assert.Equal(t, "balance", payment["payment_method"])
	paymentID := payment["id"].(string)

	res = call(t, r, http.MethodPost, "/api/v1/owners/user/u-1/pay", payBody)
	assert.Equal(t, response.CodeOrderIDExist, res.Code)
	assert.Equal(t, "OrderIdExist", res.Reason)

	res = call(t, r, http.MethodGet, "/api/v1/owners/user/u-1/balance", nil)
	require.Equal(t, response.CodeSuccess, res.Code)
	assert.Equal(t, "22.80", decode(t, res.Data)["balance"])

	res = call(t, r, http.MethodPost, "/api/v1/refunds", gin.H{
		"app_id":         "app-1",
		"trade_id":       paymentID,
		"out_refund_id":  "rf-1",
		"refund_amounts": "66.00",
	})
	require.Equal(t, response.CodeSuccess, res.Code, res.Message)

	res = call(t, r, http.MethodPost, "/api/v1/refunds", gin.H{
		"app_id":         "app-1",
		"trade_id":       paymentID,
		"out_refund_id":  "rf-2",
		"refund_amounts": "0.01",
	})
	assert.Equal(t, response.CodeConflict, res.Code)

	res = call(t, r, http.MethodGet, "/api/v1/owners/user/u-1/balance", nil)
	assert.Equal(t, "88.80", decode(t, res.Data)["balance"])

	res = call(t, r, http.MethodGet, "/api/v1/owners/user/u-1/bills?page=1&page_size=10", nil)
	require.Equal(t, response.CodeSuccess, res.Code)
	bills := decode(t, res.Data)
	assert.EqualValues(t, 3, bills["total"])

	first := bills["list"].([]interface{})[0].(map[string]interface{})
	res = call(t, r, http.MethodGet, "/api/v1/bills/"+first["id"].(string), nil)
	require.Equal(t, response.CodeSuccess, res.Code)
	assert.Equal(t, first["trade_id"], decode(t, res.Data)["trade_id"])

	res = call(t, r, http.MethodGet, "/api/v1/bills/TXN-missing", nil)
	assert.Equal(t, response.CodeNotFound, res.Code)
}

func TestPayErrorsOverHTTP(t *testing.T) {
	r := newRouter(t)

	res := call(t, r, http.MethodPost, "/api/v1/owners/user/u-1/pay", gin.H{
		"app_id":                  "app-1",
		"subject":                 "云主机",
		"amounts":                 "1",
		"order_id":                "o-1",
		"required_enough_balance": true,
	})
	assert.Equal(t, response.CodeBalanceNotEnough, res.Code)
	assert.Equal(t, "BalanceNotEnough", res.Reason)

	res = call(t, r, http.MethodPost, "/api/v1/owners/group/g-1/pay", gin.H{})
	assert.Equal(t, response.CodeParamError, res.Code)

	res = call(t, r, http.MethodPost, "/api/v1/owners/user/u-1/pay", gin.H{"app_id": "app-1"})
	assert.Equal(t, response.CodeParamError, res.Code)

	res = call(t, r, http.MethodPost, "/api/v1/owners/user/u-1/pay", gin.H{
		"app_id":     "app-1",
		"subject":    "云主机",
		"amounts":    "1",
		"order_id":   "o-2",
		"coupon_ids": []string{"20260101000001"},
	})
	assert.Equal(t, response.CodeCouponNotFound, res.Code)
	assert.Equal(t, "NoSuchCoupon", res.Reason)

	res = call(t, r, http.MethodGet, "/api/v1/payments/PAY-missing", nil)
	assert.Equal(t, response.CodeNotFound, res.Code)
}

func TestRechargeNotifyOverHTTP(t *testing.T) {
	r := newRouter(t)

	res := call(t, r, http.MethodPost, "/api/v1/owners/vo/vo-1/recharges", gin.H{
		"trade_channel": "alipay",
		"out_trade_no":  "ali-1",
		"total_amount":  "30",
	})
	require.Equal(t, response.CodeSuccess, res.Code, res.Message)
	rechargeID := decode(t, res.Data)["id"].(string)

	notify := gin.H{
		"recharge_id":      rechargeID,
		"channel_trade_no": "2026101822001",
		"receipt_amount":   "29.82",
		"channel_fee":      "0.18",
	}
	res = call(t, r, http.MethodPost, "/api/v1/recharges/notify", notify)
	require.Equal(t, response.CodeSuccess, res.Code, res.Message)
	assert.Equal(t, "complete", decode(t, res.Data)["status"])

	res = call(t, r, http.MethodPost, "/api/v1/recharges/notify", notify)
	assert.Equal(t, response.CodeConflict, res.Code)

	res = call(t, r, http.MethodGet, "/api/v1/owners/vo/vo-1/balance", nil)
	assert.Equal(t, "30.00", decode(t, res.Data)["balance"])
}

func TestOpenAccount(t *testing.T) {
	r := newRouter(t)

	res := call(t, r, http.MethodPost, "/api/v1/owners/vo/vo-9/account", nil)
	require.Equal(t, response.CodeSuccess, res.Code, res.Message)
	first := decode(t, res.Data)
	assert.Equal(t, "vo", first["owner_kind"])
	assert.Equal(t, "vo-9", first["owner_id"])

	res = call(t, r, http.MethodPost, "/api/v1/owners/vo/vo-9/account", nil)
	require.Equal(t, response.CodeSuccess, res.Code)
	assert.Equal(t, first["id"], decode(t, res.Data)["id"])
}

func TestHealth(t *testing.T) {
	r := newRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}
