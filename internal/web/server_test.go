package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfi/feemanager/internal/auth"
	"github.com/meridianfi/feemanager/internal/engine"
	"github.com/meridianfi/feemanager/internal/hub"
	"github.com/meridianfi/feemanager/internal/routing"
	"github.com/meridianfi/feemanager/internal/token"
)

var (
	testHubAddr   = common.HexToAddress("0x0000000000000000000000000000000000000Aaa")
	testSelfAddr  = common.HexToAddress("0x0000000000000000000000000000000000000Bbb")
	testSuperAddr = common.HexToAddress("0x0000000000000000000000000000000000000Ccc")
	testAdminAddr = common.HexToAddress("0x0000000000000000000000000000000000000Ddd")
	testPayeeAddr = common.HexToAddress("0x0000000000000000000000000000000000000Eee")
	testFeeToken  = common.HexToAddress("0x0000000000000000000000000000000000000001")
)

func newTestServer(t *testing.T) (*WebServer, *token.MemoryLedger) {
	t.Helper()

	ledger := token.NewMemoryLedger()
	ledger.Mint(testFeeToken, testSelfAddr, uint256.NewInt(100))
	h := hub.NewMemoryHub(testHubAddr, ledger)

	roles, err := auth.NewRegistry(testSuperAddr, []common.Address{testAdminAddr})
	require.NoError(t, err)

	eng, err := engine.New(engine.Config{Hub: h, Ledger: ledger, Roles: roles, Self: testSelfAddr})
	require.NoError(t, err)

	companion, err := routing.NewCompanion(h)
	require.NoError(t, err)

	return NewWebServer("0", eng, companion, false), ledger
}

func doRequest(ws *WebServer, method, path, caller, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if caller != "" {
		req.Header.Set(callerHeader, caller)
	}
	rec := httptest.NewRecorder()
	ws.router.ServeHTTP(rec, req)
	return rec
}

func TestOperationsRequireCallerHeader(t *testing.T) {
	ws, _ := newTestServer(t)

	rec := doRequest(ws, http.MethodPost, "/api/fill", "", `{"jobs":[],"distribution":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnauthorizedCallerGetsForbidden(t *testing.T) {
	ws, _ := newTestServer(t)

	body := `{"jobs":[],"distribution":[{"dest_token":"0x0000000000000000000000000000000000000002","share_weight":10000}]}`
	rec := doRequest(ws, http.MethodPost, "/api/fill", testPayeeAddr.Hex(), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTerminateUnknownPositionGetsNotFound(t *testing.T) {
	ws, _ := newTestServer(t)

	body := `{"position_ids":[99],"recipient":"` + testPayeeAddr.Hex() + `"}`
	rec := doRequest(ws, http.MethodPost, "/api/terminate", testAdminAddr.Hex(), body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWithdrawOverdrawGetsBadRequest(t *testing.T) {
	ws, _ := newTestServer(t)

	body := `{"amounts":[{"token":"` + testFeeToken.Hex() + `","amount":"101"}],"recipient":"` + testPayeeAddr.Hex() + `"}`
	rec := doRequest(ws, http.MethodPost, "/api/withdraw/balance", testAdminAddr.Hex(), body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWithdrawBalanceList(t *testing.T) {
	ws, ledger := newTestServer(t)

	body := `{"amounts":[{"token":"` + testFeeToken.Hex() + `","amount":"40"},{"token":"` + testFeeToken.Hex() + `","full":true}],"recipient":"` + testPayeeAddr.Hex() + `"}`
	rec := doRequest(ws, http.MethodPost, "/api/withdraw/balance", testAdminAddr.Hex(), body)
	require.Equal(t, http.StatusOK, rec.Code)

	bal, err := ledger.BalanceOf(context.Background(), testFeeToken, testPayeeAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), bal.Uint64())
}
