package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"walletledger/internal/errcode"
	"walletledger/internal/infrastructure/lock"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, err error) Response {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	FromError(c, err)

	require.Equal(t, http.StatusOK, w.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestFromError(t *testing.T) {
	cases := []struct {
		err    error
		code   int
		reason string
	}{
		{errcode.BalanceNotEnough("short"), CodeBalanceNotEnough, "BalanceNotEnough"},
		{errcode.OrderIDExist("app-1", "o-1"), CodeOrderIDExist, "OrderIdExist"},
		{errcode.NoSuchCoupon("c-1"), CodeCouponNotFound, "NoSuchCoupon"},
		{errcode.AlreadyGranted("c-1"), CodeCouponAlreadyGranted, "AlreadyGranted"},
		{errcode.ExpiredCoupon("c-1"), CodeCouponUnavailable, "ExpiredCoupon"},
		{errcode.NotAllowToVo("s-storage"), CodeCouponScopeMismatch, "NotAllowToVo"},
		{errcode.NotUsable("c-1", "s-server"), CodeCouponScopeMismatch, "NotUsable"},
		{errcode.AccessDenied("no"), CodeForbidden, "AccessDenied"},
		{errcode.Conflict("dup"), CodeConflict, "ConflictError"},
		{errcode.InvalidArgument("bad"), CodeParamError, "InvalidArgument"},
		{fmt.Errorf("wrapped: %w", errcode.NotFound("gone")), CodeNotFound, "NotFound"},
	}
	for _, tc := range cases {
		resp := render(t, tc.err)
		assert.Equal(t, tc.code, resp.Code, tc.reason)
		assert.Equal(t, tc.reason, resp.Reason)
	}
}

func TestFromErrorInfrastructure(t *testing.T) {
	resp := render(t, fmt.Errorf("系统繁忙: %w", lock.ErrLockFailed))
	assert.Equal(t, CodeServerBusy, resp.Code)

	resp = render(t, errors.New("connection refused"))
	assert.Equal(t, CodeServerError, resp.Code)
	assert.Equal(t, "connection refused", resp.Message)
	assert.Empty(t, resp.Reason)
}
