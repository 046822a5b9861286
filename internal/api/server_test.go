package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chain-portfolio/internal/adapter"
	"github.com/chain-portfolio/internal/auth"
	"github.com/chain-portfolio/internal/models"
	"github.com/chain-portfolio/internal/service"
	"github.com/chain-portfolio/internal/tracker"
	"github.com/chain-portfolio/internal/types"
)

const (
	testJWTSecret  = "test-secret"
	testCronSecret = "cron-secret"
)

// Mock services for testing

type mockPortfolioService struct {
	getFunc func(ctx context.Context, input service.GetPortfolioInput) (*types.Portfolio, error)
}

func (m *mockPortfolioService) GetPortfolio(ctx context.Context, input service.GetPortfolioInput) (*types.Portfolio, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, input)
	}
	return &types.Portfolio{
		Address: input.Address,
		Chain:   types.ChainID(input.Chain),
		Assets: []types.Asset{
			{Symbol: "BTC", Name: "Bitcoin", Chain: types.ChainBitcoin, Balance: 5, Price: 60000, Value: 300000},
		},
		NFTs:       []types.NFT{},
		Domains:    []types.Domain{},
		TotalValue: 300000,
		Timestamp:  time.Now().UTC(),
	}, nil
}

func (m *mockPortfolioService) SupportedChains() []adapter.ChainInfo {
	return []adapter.ChainInfo{
		adapter.ChainInfoFor(types.ChainBitcoin),
		adapter.ChainInfoFor(types.ChainEthereum),
	}
}

type mockWalletService struct {
	wallets   []*models.Wallet
	addFunc   func(ctx context.Context, userID string, input service.AddWalletInput) (*models.Wallet, error)
	removeErr error
	lastUser  string
}

func (m *mockWalletService) List(ctx context.Context, userID string) ([]*models.Wallet, error) {
	m.lastUser = userID
	return m.wallets, nil
}

func (m *mockWalletService) Add(ctx context.Context, userID string, input service.AddWalletInput) (*models.Wallet, error) {
	m.lastUser = userID
	if m.addFunc != nil {
		return m.addFunc(ctx, userID, input)
	}
	return &models.Wallet{ID: "wallet-1", UserID: userID, Address: input.Address, Chain: types.ChainID(input.Chain)}, nil
}

func (m *mockWalletService) Remove(ctx context.Context, userID, id string) error {
	m.lastUser = userID
	return m.removeErr
}

type mockDashboardService struct {
	lastInputs []service.WalletInput
}

func (m *mockDashboardService) ForUser(ctx context.Context, userID string) (*tracker.View, error) {
	return &tracker.View{
		Wallets:    []tracker.WalletSummary{{Address: "0xa", Chain: types.ChainEthereum, TotalValue: 150}},
		Assets:     []types.Asset{{Symbol: "USDC", Chain: types.ChainEthereum, Balance: 150, Price: 1, Value: 150}},
		NFTs:       []types.NFT{},
		Domains:    []types.Domain{},
		TotalValue: 150,
	}, nil
}

func (m *mockDashboardService) ForWallets(ctx context.Context, inputs []service.WalletInput) (*tracker.View, error) {
	m.lastInputs = inputs
	return &tracker.View{
		Wallets: []tracker.WalletSummary{},
		Assets:  []types.Asset{},
		NFTs:    []types.NFT{},
		Domains: []types.Domain{},
	}, nil
}

type mockAlertService struct {
	createFunc func(ctx context.Context, userID string, input service.CreateAlertInput) (*models.Alert, error)
	checkEmail string
	deleteErr  error
}

func (m *mockAlertService) List(ctx context.Context, userID string) ([]*models.Alert, error) {
	return []*models.Alert{}, nil
}

func (m *mockAlertService) Create(ctx context.Context, userID string, input service.CreateAlertInput) (*models.Alert, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, userID, input)
	}
	return &models.Alert{
		ID:        "alert-1",
		UserID:    userID,
		Type:      models.AlertTypePrice,
		Asset:     input.Asset,
		Condition: models.AlertCondition(input.Condition),
		Threshold: input.Threshold,
		Enabled:   true,
	}, nil
}

func (m *mockAlertService) Update(ctx context.Context, userID string, input service.UpdateAlertInput) (*models.Alert, error) {
	return &models.Alert{ID: input.ID, UserID: userID, Enabled: input.Enabled != nil && *input.Enabled}, nil
}

func (m *mockAlertService) Delete(ctx context.Context, userID, id string) error {
	return m.deleteErr
}

func (m *mockAlertService) CheckAlerts(ctx context.Context, userID, email string) (*service.CheckResult, error) {
	m.checkEmail = email
	return &service.CheckResult{
		Checked:         1,
		Triggered:       1,
		TriggeredIDs:    []string{"alert-1"},
		TriggeredAlerts: []service.TriggeredAlert{{ID: "alert-1", Asset: "BTC", Price: 51000}},
	}, nil
}

type mockSnapshotService struct {
	runs     int
	lastDays int
	result   *service.SnapshotRunResult
}

func (m *mockSnapshotService) Run(ctx context.Context) (*service.SnapshotRunResult, error) {
	m.runs++
	if m.result != nil {
		return m.result, nil
	}
	return &service.SnapshotRunResult{Message: "No users to snapshot", Count: 0}, nil
}

func (m *mockSnapshotService) History(ctx context.Context, userID string, days int) (*service.SnapshotHistory, error) {
	m.lastDays = days
	return &service.SnapshotHistory{Days: days, Snapshots: []*models.PortfolioSnapshot{}, Daily: []*models.PortfolioDaily{}}, nil
}

type testServer struct {
	*Server
	portfolio *mockPortfolioService
	wallets   *mockWalletService
	dashboard *mockDashboardService
	alerts    *mockAlertService
	snapshots *mockSnapshotService
}

// Helper function to create test server
func createTestServer() *testServer {
	return createTestServerWith(testJWTSecret, testCronSecret)
}

func createTestServerWith(jwtSecret, cronSecret string) *testServer {
	ts := &testServer{
		portfolio: &mockPortfolioService{},
		wallets:   &mockWalletService{},
		dashboard: &mockDashboardService{},
		alerts:    &mockAlertService{},
		snapshots: &mockSnapshotService{},
	}
	config := &ServerConfig{
		Host:         "localhost",
		Port:         "8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		RPS:          1000,
		Burst:        1000,
		CronSecret:   cronSecret,
	}
	ts.Server = NewServer(config, Services{
		Portfolio: ts.portfolio,
		Wallets:   ts.wallets,
		Dashboard: ts.dashboard,
		Alerts:    ts.alerts,
		Snapshots: ts.snapshots,
		Verifier:  auth.NewVerifier(jwtSecret, ""),
	})
	return ts
}

// signIn attaches a session token for userID to req
func signIn(t *testing.T, req *http.Request, userID, email string) {
	t.Helper()
	token, err := auth.NewVerifier(testJWTSecret, "").Sign(userID, email, time.Hour)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

func TestHealthEndpoint(t *testing.T) {
	server := createTestServer()

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", response["status"])
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("Expected X-Request-ID header to be set")
	}
}

func TestHealthEndpoint_Degraded(t *testing.T) {
	server := createTestServer()
	server.services.HealthChecks = map[string]HealthCheck{
		"postgres": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return errors.New("connection refused") },
	}

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}

	var response struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response.Status != "degraded" {
		t.Errorf("Expected status 'degraded', got %s", response.Status)
	}
	if response.Checks["postgres"] != "ok" {
		t.Errorf("Expected postgres check 'ok', got %s", response.Checks["postgres"])
	}
}

func TestGetPortfolio_Success(t *testing.T) {
	server := createTestServer()

	var got service.GetPortfolioInput
	server.portfolio.getFunc = func(ctx context.Context, input service.GetPortfolioInput) (*types.Portfolio, error) {
		got = input
		return (&mockPortfolioService{}).GetPortfolio(ctx, input)
	}

	req := httptest.NewRequest("GET", "/api/portfolio?address=1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa&chain=bitcoin", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if got.Chain != "bitcoin" || got.ViewingKey != "" {
		t.Errorf("Unexpected service input: %+v", got)
	}

	var portfolio types.Portfolio
	if err := json.Unmarshal(w.Body.Bytes(), &portfolio); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if portfolio.TotalValue != 300000 {
		t.Errorf("Expected total value 300000, got %f", portfolio.TotalValue)
	}
	if len(portfolio.Assets) != 1 || portfolio.Assets[0].Symbol != "BTC" {
		t.Errorf("Unexpected assets: %+v", portfolio.Assets)
	}
}

func TestGetPortfolio_ViewingKeyPassedThrough(t *testing.T) {
	server := createTestServer()

	var got service.GetPortfolioInput
	server.portfolio.getFunc = func(ctx context.Context, input service.GetPortfolioInput) (*types.Portfolio, error) {
		got = input
		return &types.Portfolio{Address: input.Address, Chain: types.ChainZcash}, nil
	}

	req := httptest.NewRequest("GET", "/api/portfolio?address=t1abc&chain=zcash&viewingKey=zxviews1", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if got.ViewingKey != "zxviews1" {
		t.Errorf("Expected viewing key to reach the service, got %q", got.ViewingKey)
	}
}

func TestListChains(t *testing.T) {
	server := createTestServer()

	req := httptest.NewRequest("GET", "/api/chains", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response struct {
		Chains []adapter.ChainInfo `json:"chains"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(response.Chains) != 2 || response.Chains[0].ID != types.ChainBitcoin {
		t.Errorf("Unexpected chains: %+v", response.Chains)
	}
}

func TestAddWallet_Success(t *testing.T) {
	server := createTestServer()

	body, _ := json.Marshal(map[string]interface{}{
		"address": "0x1234567890123456789012345678901234567890",
		"chain":   "ethereum",
		"label":   "Cold storage",
	})
	req := httptest.NewRequest("POST", "/api/wallets", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	signIn(t, req, "user-123", "user@example.com")

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	if server.wallets.lastUser != "user-123" {
		t.Errorf("Expected user from session, got %q", server.wallets.lastUser)
	}

	var wallet models.Wallet
	if err := json.Unmarshal(w.Body.Bytes(), &wallet); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if wallet.Chain != types.ChainEthereum {
		t.Errorf("Expected chain ethereum, got %s", wallet.Chain)
	}
}

func TestListWallets_Success(t *testing.T) {
	server := createTestServer()
	server.wallets.wallets = []*models.Wallet{
		{ID: "w1", Address: "0xa", Chain: types.ChainEthereum},
		{ID: "w2", Address: "rXRP", Chain: types.ChainXRP},
	}

	req := httptest.NewRequest("GET", "/api/wallets", nil)
	signIn(t, req, "user-123", "")
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response struct {
		Wallets []models.Wallet `json:"wallets"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(response.Wallets) != 2 {
		t.Errorf("Expected 2 wallets, got %d", len(response.Wallets))
	}
}

func TestRemoveWallet_Success(t *testing.T) {
	server := createTestServer()

	req := httptest.NewRequest("DELETE", "/api/wallets?id=w1", nil)
	signIn(t, req, "user-123", "")
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"success":true`)) {
		t.Errorf("Expected success body, got %s", w.Body.String())
	}
}

func TestUserDashboard_Success(t *testing.T) {
	server := createTestServer()

	req := httptest.NewRequest("GET", "/api/dashboard", nil)
	signIn(t, req, "user-123", "")
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var view tracker.View
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if view.TotalValue != 150 {
		t.Errorf("Expected total value 150, got %f", view.TotalValue)
	}
}

func TestLocalDashboard_Success(t *testing.T) {
	server := createTestServer()

	body := []byte(`{"wallets":[{"address":"0xa","chain":"ethereum"},{"address":"rXRP","chain":"xrp"}]}`)
	req := httptest.NewRequest("POST", "/api/dashboard", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(server.dashboard.lastInputs) != 2 {
		t.Errorf("Expected 2 wallets passed to service, got %d", len(server.dashboard.lastInputs))
	}
}

func TestCreateAlert_Success(t *testing.T) {
	server := createTestServer()

	body := []byte(`{"asset":"BTC","condition":"above","threshold":50000}`)
	req := httptest.NewRequest("POST", "/api/alerts", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	signIn(t, req, "user-123", "")
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var alert models.Alert
	if err := json.Unmarshal(w.Body.Bytes(), &alert); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if alert.Threshold != 50000 || alert.Condition != models.ConditionAbove {
		t.Errorf("Unexpected alert: %+v", alert)
	}
}

func TestUpdateAlert_Success(t *testing.T) {
	server := createTestServer()

	body := []byte(`{"id":"alert-1","enabled":true}`)
	req := httptest.NewRequest("PATCH", "/api/alerts", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	signIn(t, req, "user-123", "")
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCheckAlerts_UsesSessionEmail(t *testing.T) {
	server := createTestServer()

	req := httptest.NewRequest("POST", "/api/alerts/check", nil)
	signIn(t, req, "user-123", "user@example.com")
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if server.alerts.checkEmail != "user@example.com" {
		t.Errorf("Expected session email, got %q", server.alerts.checkEmail)
	}

	var result service.CheckResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if result.Checked != 1 || result.Triggered != 1 || len(result.TriggeredIDs) != 1 {
		t.Errorf("Unexpected result: %+v", result)
	}
}

func TestCronSnapshot_Success(t *testing.T) {
	server := createTestServer()
	server.snapshots.result = &service.SnapshotRunResult{Message: "Snapshots created", Count: 3}

	for _, method := range []string{"GET", "POST"} {
		req := httptest.NewRequest(method, "/api/cron/snapshot", nil)
		req.Header.Set("X-Cron-Secret", testCronSecret)
		w := httptest.NewRecorder()
		server.router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", method, w.Code)
		}
	}
	if server.snapshots.runs != 2 {
		t.Errorf("Expected 2 runs, got %d", server.snapshots.runs)
	}
}

func TestCronSnapshot_BearerSecret(t *testing.T) {
	server := createTestServer()

	req := httptest.NewRequest("POST", "/api/cron/snapshot", nil)
	req.Header.Set("Authorization", "Bearer "+testCronSecret)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var result service.SnapshotRunResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if result.Message != "No users to snapshot" || result.Count != 0 {
		t.Errorf("Unexpected result: %+v", result)
	}
}

func TestSnapshotHistory_Success(t *testing.T) {
	server := createTestServer()

	req := httptest.NewRequest("GET", "/api/snapshots?days=7", nil)
	signIn(t, req, "user-123", "")
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if server.snapshots.lastDays != 7 {
		t.Errorf("Expected days 7, got %d", server.snapshots.lastDays)
	}
}
