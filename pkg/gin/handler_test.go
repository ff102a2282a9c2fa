package gin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpswap/hookcpi"
	"github.com/cpswap/hookcpi/accounts"
	"github.com/cpswap/hookcpi/runtime"
	"github.com/cpswap/hookcpi/validator"
)

var hookProgramID = solana.MustPublicKeyFromBase58("4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU")

type testServer struct {
	router *gin.Engine
	rt     *runtime.Runtime
	payer  solana.PublicKey
	mint   solana.PublicKey
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rt := runtime.New(accounts.NewMemoryStore(), runtime.WithProgram(hookProgramID, validator.New()))
	service, err := hookcpi.NewHookSetupService(rt, hookcpi.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	s := &testServer{
		router: NewRouter(service, WithLogger(zerolog.Nop())),
		rt:     rt,
		payer:  solana.NewWallet().PublicKey(),
		mint:   solana.NewWallet().PublicKey(),
	}
	require.NoError(t, rt.Airdrop(context.Background(), s.payer, 1_000_000_000))
	return s
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) setupBody(payer solana.PublicKey) string {
	body, _ := json.Marshal(map[string]string{
		"payer":     payer.String(),
		"mint":      s.mint.String(),
		"validator": hookProgramID.String(),
	})
	return string(body)
}

type errorBody struct {
	Error hookcpi.SetupError `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) hookcpi.SetupError {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

func TestSetupRoute(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/v1/hooks/setup", s.setupBody(s.payer))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var result hookcpi.SetupResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, hookcpi.StateInitialized, result.State)
	assert.Equal(t, uint64(1_002_240), result.Lamports)

	w = s.do(http.MethodGet, "/v1/hooks/"+s.mint.String()+"/registry?validator="+hookProgramID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	var info hookcpi.RegistryInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, result.Registry, info.Address)
	assert.Equal(t, hookcpi.StateInitialized, info.State)
}

func TestSetupRouteConflict(t *testing.T) {
	s := newTestServer(t)

	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/v1/hooks/setup", s.setupBody(s.payer)).Code)
	w := s.do(http.MethodPost, "/v1/hooks/setup", s.setupBody(s.payer))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, hookcpi.ErrCodeAllocationConflict, decodeError(t, w).Code)
}

func TestSetupRouteUnfundedPayer(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/v1/hooks/setup", s.setupBody(solana.NewWallet().PublicKey()))
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, hookcpi.ErrCodeInsufficientFunding, decodeError(t, w).Code)
}

func TestSetupRouteRejectsInvalidBodies(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"missing mint", `{"payer":"` + s.payer.String() + `","validator":"` + hookProgramID.String() + `"}`},
		{"bad key", `{"payer":"0OIl","mint":"` + s.mint.String() + `","validator":"` + hookProgramID.String() + `"}`},
		{"unknown field", `{"payer":"` + s.payer.String() + `","mint":"` + s.mint.String() + `","validator":"` + hookProgramID.String() + `","amount":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/v1/hooks/setup", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, hookcpi.ErrCodeInvalidRequest, decodeError(t, w).Code)
		})
	}
}

func TestAddressRoute(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/v1/hooks/"+s.mint.String()+"/address?validator="+hookProgramID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Address solana.PublicKey `json:"address"`
		Bump    uint8            `json:"bump"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	want, bump, err := solana.FindProgramAddress([][]byte{[]byte("extra-account-metas"), s.mint.Bytes()}, hookProgramID)
	require.NoError(t, err)
	assert.Equal(t, want, body.Address)
	assert.Equal(t, bump, body.Bump)

	w = s.do(http.MethodGet, "/v1/hooks/"+s.mint.String()+"/address", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegistryRouteUnregistered(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/v1/hooks/"+s.mint.String()+"/registry?validator="+hookProgramID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	var info hookcpi.RegistryInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, hookcpi.StateUnregistered, info.State)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, StatusFor(hookcpi.ErrCodeAllocationConflict))
	assert.Equal(t, http.StatusPaymentRequired, StatusFor(hookcpi.ErrCodeInsufficientFunding))
	assert.Equal(t, http.StatusBadRequest, StatusFor(hookcpi.ErrCodeAddressMismatch))
	assert.Equal(t, http.StatusBadGateway, StatusFor(hookcpi.ErrCodeRemoteCallFailure))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(hookcpi.ErrCodeInternal))
}
