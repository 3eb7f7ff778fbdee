package portal_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Hussein-Mazeh/SolarDashboard/internal/portal"
	"github.com/Hussein-Mazeh/SolarDashboard/internal/vault"
)

func fakePortal(t *testing.T) *httptest.Server {
	srv, _ := fakePortalCounting(t)
	return srv
}

func fakePortalCounting(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	mux := http.NewServeMux()
	var logins atomic.Int64

	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		logins.Add(1)
		var creds map[string]string
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if creds["username"] != "alice@example.com" || creds["password"] != "pw1" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "portal_session", Value: "tok"})
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("GET /api/systems/sys-1/live", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("serial") != "serial-1" {
			http.Error(w, "unknown serial", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(portal.Reading{
			Timestamp: "2026-08-29T12:00:00Z",
			PVPower:   4200, Consumption: 800, BatterySOC: 76,
		})
	})

	mux.HandleFunc("GET /api/systems/sys-1/history", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("resolution") != "day" {
			http.Error(w, "unexpected resolution", http.StatusBadRequest)
			return
		}
		if q.Get("start") == "" || q.Get("end") == "" {
			http.Error(w, "missing range", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string][]portal.Reading{
			"data": {
				{Timestamp: "2026-08-27", PVPower: 31000, Consumption: 12000, BatterySOC: 80},
				{Timestamp: "2026-08-28", PVPower: 28000, Consumption: 11000, BatterySOC: 71},
			},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &logins
}

func testClient(t *testing.T, baseURL string) *portal.Client {
	t.Helper()
	c, err := portal.NewClient(vault.CredentialRecord{
		Username:  "alice@example.com",
		Password:  "pw1",
		PortalURL: baseURL + "/overview/sys-1/serial-1",
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestLoginAndFetchLive(t *testing.T) {
	srv := fakePortal(t)
	c := testClient(t, srv.URL)

	if c.LoggedIn() {
		t.Fatal("fresh client should not report logged in")
	}
	if err := c.Login(context.Background()); err != nil {
		t.Fatalf("login: %v", err)
	}
	if !c.LoggedIn() {
		t.Fatal("client should report logged in after Login")
	}

	live, err := c.FetchLive(context.Background())
	if err != nil {
		t.Fatalf("fetch live: %v", err)
	}
	if live.PVPower != 4200 || live.BatterySOC != 76 {
		t.Fatalf("unexpected live data: %+v", live)
	}
}

func TestFetchRequiresLogin(t *testing.T) {
	srv := fakePortal(t)
	c := testClient(t, srv.URL)

	if _, err := c.FetchLive(context.Background()); err == nil {
		t.Fatal("fetch before login should fail")
	}
	if _, err := c.FetchHistory(context.Background(), time.Time{}, time.Time{}, portal.ResolutionDay); err == nil {
		t.Fatal("history before login should fail")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	srv := fakePortal(t)
	c, err := portal.NewClient(vault.CredentialRecord{
		Username:  "alice@example.com",
		Password:  "wrong",
		PortalURL: srv.URL + "/overview/sys-1/serial-1",
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if err := c.Login(context.Background()); err == nil {
		t.Fatal("login with the wrong portal password should fail")
	}
	if c.LoggedIn() {
		t.Fatal("failed login must not mark the client logged in")
	}
}

// A browser issues the live and history calls together, so the shared client
// must survive concurrent LoggedIn/Login without racing and without logging in
// more than once.
func TestConcurrentLoginIsSerialized(t *testing.T) {
	srv, logins := fakePortalCounting(t)
	c := testClient(t, srv.URL)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if !c.LoggedIn() {
				errs[i] = c.Login(context.Background())
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("goroutine %d login: %v", i, err)
		}
	}
	if !c.LoggedIn() {
		t.Fatal("client should report logged in")
	}
	if got := logins.Load(); got != 1 {
		t.Fatalf("expected exactly one portal login request, got %d", got)
	}
}

func TestLoginIsIdempotent(t *testing.T) {
	srv, logins := fakePortalCounting(t)
	c := testClient(t, srv.URL)

	for i := 0; i < 3; i++ {
		if err := c.Login(context.Background()); err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
	}
	if got := logins.Load(); got != 1 {
		t.Fatalf("expected one portal login request, got %d", got)
	}
}

func TestFetchHistoryDefaultsRange(t *testing.T) {
	srv := fakePortal(t)
	c := testClient(t, srv.URL)
	if err := c.Login(context.Background()); err != nil {
		t.Fatalf("login: %v", err)
	}

	rows, err := c.FetchHistory(context.Background(), time.Time{}, time.Time{}, "")
	if err != nil {
		t.Fatalf("fetch history: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Timestamp != "2026-08-27" {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := portal.NewClient(vault.CredentialRecord{
		Username:  "alice@example.com",
		Password:  "pw1",
		PortalURL: "not a url",
	})
	if err == nil {
		t.Fatal("accepted an unparseable portal URL")
	}
}

func TestParseResolution(t *testing.T) {
	if res, err := portal.ParseResolution(""); err != nil || res != portal.ResolutionDay {
		t.Fatalf("empty resolution should default to day: res=%q err=%v", res, err)
	}
	for _, valid := range []string{"hour", "day", "month", "year"} {
		if _, err := portal.ParseResolution(valid); err != nil {
			t.Fatalf("rejected valid resolution %q: %v", valid, err)
		}
	}
	if _, err := portal.ParseResolution("week"); err == nil {
		t.Fatal("accepted unknown resolution")
	}
}

func TestExportCSV(t *testing.T) {
	rows := []portal.Reading{
		{Timestamp: "2026-08-27", PVPower: 31000, BatteryPower: -1200, GridPower: 300, Consumption: 12000, BatterySOC: 80.5},
	}

	var sb strings.Builder
	if err := portal.ExportCSV(&sb, rows); err != nil {
		t.Fatalf("export csv: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus one row, got %d lines", len(lines))
	}
	if lines[0] != "timestamp,pv_power,battery_power,grid_power,consumption,battery_soc" {
		t.Fatalf("unexpected header: %q", lines[0])
	}
	if lines[1] != "2026-08-27,31000,-1200,300,12000,80.5" {
		t.Fatalf("unexpected row: %q", lines[1])
	}
}
