package services_test

import (
	"testing"

	"volunteer-portal/models"
)

func approveFlow(t *testing.T, e *env, admin, userID, eventID string) {
	t.Helper()
	expectOK(t, e.register(userID, eventID))
	expectOK(t, e.submitProof(userID, eventID, "photo.jpg"))
	proof := e.proofByUserEvent(userID, eventID, models.ProofStatusPending)
	expectOK(t, e.approve(admin, proof.ID))
}

func TestLeaderboardRanking(t *testing.T) {
	e := newEnv(t)
	admin := e.seedAdmin()
	e.seedUser("user-a", "Asha", models.RoleUser)
	e.seedUser("user-b", "Bilal", models.RoleUser)
	e.seedUser("user-c", "Chitra", models.RoleUser)
	small := e.seedEvent("Book Drive", "Education & Teaching", 10, 0)
	big := e.seedEvent("Blood Camp", "Blood Donation", 40, 0)

	approveFlow(t, e, admin, "user-a", small.ID)
	approveFlow(t, e, admin, "user-b", small.ID)
	approveFlow(t, e, admin, "user-b", big.ID)

	resp := e.do("GET", "/leaderboard/", "user-a", nil, "")
	expectOK(t, resp)
	entries := decodeList(t, resp)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0]["user_id"] != "user-b" || entries[0]["total_points"] != float64(50) || entries[0]["rank"] != float64(1) {
		t.Fatalf("unexpected first entry: %v", entries[0])
	}
	if entries[1]["user_id"] != "user-a" || entries[1]["rank"] != float64(2) {
		t.Fatalf("unexpected second entry: %v", entries[1])
	}
	if entries[2]["user_id"] != "user-c" || entries[2]["total_points"] != float64(0) {
		t.Fatalf("unexpected third entry: %v", entries[2])
	}

	// Admins never appear on the board
	for _, entry := range entries {
		if entry["user_id"] == admin {
			t.Fatal("admin must not be ranked")
		}
	}
}

func TestLeaderboardTieBreakIsStable(t *testing.T) {
	e := newEnv(t)
	admin := e.seedAdmin()
	e.seedUser("user-a", "Asha", models.RoleUser)
	e.seedUser("user-b", "Bilal", models.RoleUser)
	event := e.seedEvent("Tree Planting", "Environmental", 20, 0)

	approveFlow(t, e, admin, "user-a", event.ID)
	approveFlow(t, e, admin, "user-b", event.ID)

	resp := e.do("GET", "/leaderboard/", "user-a", nil, "")
	expectOK(t, resp)
	entries := decodeList(t, resp)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	// Equal points: smaller user id first, ranks stay ordinal
	if entries[0]["user_id"] != "user-a" || entries[0]["rank"] != float64(1) {
		t.Fatalf("unexpected tie order: %v", entries)
	}
	if entries[1]["user_id"] != "user-b" || entries[1]["rank"] != float64(2) {
		t.Fatalf("unexpected tie order: %v", entries)
	}
}

func TestRecalculateIsFixpoint(t *testing.T) {
	e := newEnv(t)
	admin := e.seedAdmin()
	e.seedUser("user-a", "Asha", models.RoleUser)
	e.seedUser("user-b", "Bilal", models.RoleUser)
	small := e.seedEvent("Book Drive", "Education & Teaching", 10, 0)
	big := e.seedEvent("Blood Camp", "Blood Donation", 40, 0)

	approveFlow(t, e, admin, "user-a", small.ID)
	approveFlow(t, e, admin, "user-a", big.ID)
	approveFlow(t, e, admin, "user-b", big.ID)

	totals := func() map[string]int {
		var users []models.VolunteerUser
		e.db.Find(&users)
		out := make(map[string]int, len(users))
		for _, u := range users {
			out[u.ID] = u.TotalPoints
		}
		return out
	}

	incremental := totals()
	if incremental["user-a"] != 50 || incremental["user-b"] != 40 {
		t.Fatalf("unexpected incremental totals: %v", incremental)
	}

	// A full recompute lands on exactly the incremental state
	if err := e.leaderboard.Recalculate(); err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if after := totals(); after["user-a"] != 50 || after["user-b"] != 40 {
		t.Fatalf("recalculation drifted: %v", after)
	}

	// And repairs drift when the cache is corrupted
	e.db.Model(&models.VolunteerUser{}).Where("id = ?", "user-a").Update("total_points", 999)
	if err := e.leaderboard.Recalculate(); err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if after := totals(); after["user-a"] != 50 {
		t.Fatalf("expected drift repaired to 50, got %d", after["user-a"])
	}
}

func TestRecalculateEndpointRequiresAdmin(t *testing.T) {
	e := newEnv(t)
	e.seedAdmin()
	e.seedUser("user-1", "Asha", models.RoleUser)

	resp := e.do("POST", "/leaderboard/recalculate", "user-1", nil, "")
	expectCode(t, resp, 403, "forbidden")

	resp = e.do("POST", "/leaderboard/recalculate", "admin-1", nil, "")
	expectOK(t, resp)
}

func TestGetMyRank(t *testing.T) {
	e := newEnv(t)
	admin := e.seedAdmin()
	e.seedUser("user-a", "Asha", models.RoleUser)
	e.seedUser("user-b", "Bilal", models.RoleUser)
	event := e.seedEvent("Blood Camp", "Blood Donation", 40, 0)

	approveFlow(t, e, admin, "user-b", event.ID)

	resp := e.do("GET", "/leaderboard/me", "user-a", nil, "")
	expectOK(t, resp)
	body := decodeMap(t, resp)
	if body["rank"] != float64(2) || body["total_points"] != float64(0) {
		t.Fatalf("unexpected rank payload: %v", body)
	}

	resp = e.do("GET", "/leaderboard/me", "user-b", nil, "")
	expectOK(t, resp)
	body = decodeMap(t, resp)
	if body["rank"] != float64(1) || body["total_points"] != float64(40) {
		t.Fatalf("unexpected rank payload: %v", body)
	}
}

func TestUserDashboardCounts(t *testing.T) {
	e := newEnv(t)
	admin := e.seedAdmin()
	e.seedUser("user-1", "Asha", models.RoleUser)
	done := e.seedEvent("Blood Camp", "Blood Donation", 40, 0)
	inFlight := e.seedEvent("Tree Planting", "Environmental", 20, 0)

	approveFlow(t, e, admin, "user-1", done.ID)
	expectOK(t, e.register("user-1", inFlight.ID))
	expectOK(t, e.submitProof("user-1", inFlight.ID, "photo.jpg"))

	resp := e.do("GET", "/dashboard/user", "user-1", nil, "")
	expectOK(t, resp)
	body := decodeMap(t, resp)
	if body["registered_events"] != float64(2) {
		t.Fatalf("expected 2 registered events, got %v", body["registered_events"])
	}
	if body["completed_events"] != float64(1) || body["pending_proofs"] != float64(1) {
		t.Fatalf("unexpected dashboard: %v", body)
	}
	if body["total_points"] != float64(40) {
		t.Fatalf("expected 40 points, got %v", body["total_points"])
	}
}

func TestAdminDashboardCounts(t *testing.T) {
	e := newEnv(t)
	admin := e.seedAdmin()
	e.seedUser("user-1", "Asha", models.RoleUser)
	e.seedUser("user-2", "Bilal", models.RoleUser)
	event := e.seedEvent("Blood Camp", "Blood Donation", 40, 0)
	e.seedEvent("Tree Planting", "Environmental", 20, 0)

	approveFlow(t, e, admin, "user-1", event.ID)
	expectOK(t, e.register("user-2", event.ID))
	expectOK(t, e.submitProof("user-2", event.ID, "photo.jpg"))

	resp := e.do("GET", "/admin/dashboard/", admin, nil, "")
	expectOK(t, resp)
	body := decodeMap(t, resp)
	if body["total_events"] != float64(2) {
		t.Fatalf("expected 2 events, got %v", body["total_events"])
	}
	if body["pending_proofs"] != float64(1) {
		t.Fatalf("expected 1 pending proof, got %v", body["pending_proofs"])
	}
	if body["total_volunteers"] != float64(2) {
		t.Fatalf("expected 2 volunteers, got %v", body["total_volunteers"])
	}
	if body["certificates_issued"] != float64(1) {
		t.Fatalf("expected 1 certificate, got %v", body["certificates_issued"])
	}
}
