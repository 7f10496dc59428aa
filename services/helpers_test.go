package services_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"volunteer-portal/handlers"
	"volunteer-portal/models"
	"volunteer-portal/services"
	"volunteer-portal/utils"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type env struct {
	t   *testing.T
	app *fiber.App
	db  *gorm.DB

	leaderboard *services.LeaderboardService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	utils.UseLocalStorage(t.TempDir(), "http://localhost:5100/uploads")

	// Each test gets its own named in-memory database. A single pooled
	// connection keeps the shared-cache DB alive for the whole test.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := db.AutoMigrate(
		&models.VolunteerUser{},
		&models.Event{},
		&models.Registration{},
		&models.Proof{},
		&models.Certificate{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	eventService := services.NewEventService(db)
	certificateService := services.NewCertificateService(db)
	proofService := services.NewProofService(db, certificateService)
	leaderboardService := services.NewLeaderboardService(db)
	dashboardService := services.NewDashboardService(db)

	app := fiber.New()
	handlers.SetupCertificateRoutes(app, certificateService)
	handlers.SetupEventRoutes(app, eventService)
	handlers.SetupProofRoutes(app, proofService)
	handlers.SetupLeaderboardRoutes(app, leaderboardService, dashboardService)

	return &env{t: t, app: app, db: db, leaderboard: leaderboardService}
}

func (e *env) do(method, path, userID string, body io.Reader, contentType string) *http.Response {
	e.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	resp, err := e.app.Test(req, 15000)
	if err != nil {
		e.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func (e *env) doJSON(method, path, userID string, payload interface{}) *http.Response {
	e.t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			e.t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	return e.do(method, path, userID, body, "application/json")
}

func decodeMap(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func decodeList(t *testing.T, resp *http.Response) []map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var out []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func jsonDecode(r io.Reader, v interface{}) error {
	return json.NewDecoder(r).Decode(v)
}

func expectOK(t *testing.T, resp *http.Response) {
	t.Helper()
	expectStatus(t, resp, 200)
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d: %s", want, resp.StatusCode, string(body))
	}
}

func expectCode(t *testing.T, resp *http.Response, wantStatus int, wantCode string) {
	t.Helper()
	if resp.StatusCode != wantStatus {
		t.Fatalf("expected status %d, got %d", wantStatus, resp.StatusCode)
	}
	body := decodeMap(t, resp)
	if body["code"] != wantCode {
		t.Fatalf("expected code %q, got %v", wantCode, body["code"])
	}
}

// --- Seed helpers ---

func (e *env) seedUser(id, name string, role models.Role) {
	e.t.Helper()
	user := models.VolunteerUser{ID: id, Name: name, Email: id + "@example.org", Role: role}
	if err := e.db.Create(&user).Error; err != nil {
		e.t.Fatalf("seed user %s: %v", id, err)
	}
}

func (e *env) seedAdmin() string {
	e.t.Helper()
	e.seedUser("admin-1", "Portal Admin", models.RoleAdmin)
	return "admin-1"
}

func (e *env) seedEvent(title, category string, points, maxVolunteers int) models.Event {
	e.t.Helper()
	event := models.Event{
		ID:            uuid.NewString(),
		Title:         title,
		Category:      category,
		EventDate:     time.Now().Add(72 * time.Hour),
		Points:        points,
		MaxVolunteers: maxVolunteers,
		CreatedBy:     "admin-1",
	}
	if err := e.db.Create(&event).Error; err != nil {
		e.t.Fatalf("seed event %s: %v", title, err)
	}
	return event
}

// --- Flow helpers ---

func (e *env) register(userID, eventID string) *http.Response {
	e.t.Helper()
	return e.do("POST", "/events/register/"+eventID, userID, nil, "")
}

func (e *env) unregister(userID, eventID string) *http.Response {
	e.t.Helper()
	return e.do("DELETE", "/events/unregister/"+eventID, userID, nil, "")
}

func (e *env) submitProof(userID, eventID, filename string) *http.Response {
	e.t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		e.t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte("attendance photo bytes")); err != nil {
		e.t.Fatalf("write form file: %v", err)
	}
	w.Close()
	return e.do("POST", "/proof/upload/"+eventID, userID, &buf, w.FormDataContentType())
}

func (e *env) approve(adminID, proofID string) *http.Response {
	e.t.Helper()
	return e.do("PUT", "/admin/proofs/"+proofID+"/approve", adminID, nil, "")
}

func (e *env) reject(adminID, proofID, reason string) *http.Response {
	e.t.Helper()
	path := "/admin/proofs/" + proofID + "/reject"
	if reason != "" {
		path += "?reason=" + url.QueryEscape(reason)
	}
	return e.do("PUT", path, adminID, nil, "")
}

func (e *env) proofByUserEvent(userID, eventID string, status models.ProofStatus) models.Proof {
	e.t.Helper()
	var proof models.Proof
	if err := e.db.Where("user_id = ? AND event_id = ? AND status = ?", userID, eventID, status).
		First(&proof).Error; err != nil {
		e.t.Fatalf("load proof for %s/%s (%s): %v", userID, eventID, status, err)
	}
	return proof
}
