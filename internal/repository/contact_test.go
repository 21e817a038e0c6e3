package repository

import (
	"testing"
	"time"

	"github.com/gdewata/wablast/internal/models"
)

func TestUpsertResetsOnReimport(t *testing.T) {
	db := setupTestDB(t)
	repo := NewContactRepository(db)

	row := models.ImportRow{NIK: "3210001", Name: "Ana", Phone: "628123456789"}
	if err := repo.Upsert(row); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	c, err := repo.GetByPhone("628123456789")
	if err != nil || c == nil {
		t.Fatalf("GetByPhone() = %v, %v", c, err)
	}

	// Push the contact through the lifecycle, then re-import.
	if err := repo.MarkSent(c.ID, "reminder text", time.Now()); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	if err := repo.MarkReplied(c.ID, time.Now()); err != nil {
		t.Fatalf("MarkReplied: %v", err)
	}

	row.Name = "Ana Putri"
	if err := repo.Upsert(row); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	count, err := repo.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 contact after re-import, got %d", count)
	}

	c2, err := repo.GetByID(c.ID)
	if err != nil || c2 == nil {
		t.Fatalf("GetByID() = %v, %v", c2, err)
	}
	if c2.Status != models.ContactStatusPending {
		t.Errorf("status = %q, want pending", c2.Status)
	}
	if c2.Name != "Ana Putri" {
		t.Errorf("name = %q, want updated name", c2.Name)
	}
	if c2.ReminderCount != 0 {
		t.Errorf("reminder_count = %d, want 0", c2.ReminderCount)
	}
	if c2.LastSent != nil || c2.LastReply != nil {
		t.Errorf("timestamps not cleared: last_sent=%v last_reply=%v", c2.LastSent, c2.LastReply)
	}
	if c2.ReminderMessage != "" {
		t.Errorf("reminder_message = %q, want cleared", c2.ReminderMessage)
	}
}

func TestClaimEligibleIsExclusive(t *testing.T) {
	db := setupTestDB(t)
	repo := NewContactRepository(db)

	seed := []models.ImportRow{
		{NIK: "1", Name: "A", Phone: "628100000001"},
		{NIK: "2", Name: "B", Phone: "628100000002"},
		{NIK: "3", Name: "C", Phone: "628100000003"},
	}
	for _, row := range seed {
		if err := repo.Upsert(row); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	// Mark one as failed; failed contacts are also eligible.
	c, _ := repo.GetByPhone("628100000002")
	if err := repo.MarkFailed(c.ID); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	n, err := repo.ClaimEligible("job-1")
	if err != nil {
		t.Fatalf("ClaimEligible: %v", err)
	}
	if n != 3 {
		t.Fatalf("claimed %d contacts, want 3", n)
	}

	// A second overlapping claim must see nothing.
	n2, err := repo.ClaimEligible("job-2")
	if err != nil {
		t.Fatalf("second ClaimEligible: %v", err)
	}
	if n2 != 0 {
		t.Errorf("second claim got %d contacts, want 0", n2)
	}

	claimed, err := repo.ClaimedByJob("job-1")
	if err != nil {
		t.Fatalf("ClaimedByJob: %v", err)
	}
	if len(claimed) != 3 {
		t.Fatalf("ClaimedByJob returned %d, want 3", len(claimed))
	}
	for _, cc := range claimed {
		if cc.Status != models.ContactStatusSending {
			t.Errorf("contact %s status = %q, want sending", cc.NIK, cc.Status)
		}
	}
}

func TestReleaseJobReturnsClaimsToPending(t *testing.T) {
	db := setupTestDB(t)
	repo := NewContactRepository(db)

	for _, row := range []models.ImportRow{
		{NIK: "1", Name: "A", Phone: "628100000001"},
		{NIK: "2", Name: "B", Phone: "628100000002"},
	} {
		if err := repo.Upsert(row); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	if _, err := repo.ClaimEligible("job-1"); err != nil {
		t.Fatalf("ClaimEligible: %v", err)
	}

	// One contact finishes before cancellation.
	done, _ := repo.GetByPhone("628100000001")
	if err := repo.MarkSent(done.ID, "rem", time.Now()); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}

	released, err := repo.ReleaseJob("job-1")
	if err != nil {
		t.Fatalf("ReleaseJob: %v", err)
	}
	if released != 1 {
		t.Errorf("released %d contacts, want 1", released)
	}

	c, _ := repo.GetByPhone("628100000002")
	if c.Status != models.ContactStatusPending {
		t.Errorf("released contact status = %q, want pending", c.Status)
	}
	c2, _ := repo.GetByPhone("628100000001")
	if c2.Status != models.ContactStatusSent {
		t.Errorf("finished contact status = %q, want sent", c2.Status)
	}
}

func TestRemindersDuePredicate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewContactRepository(db)

	now := time.Now()
	old := now.Add(-25 * time.Hour)
	recent := now.Add(-1 * time.Hour)

	seed := []struct {
		nik       string
		status    string
		count     int
		lastSent  *time.Time
		lastReply *time.Time
	}{
		{"due-sent", models.ContactStatusSent, 0, &old, nil},
		{"due-reminded", models.ContactStatusReminded, 1, &old, nil},
		{"too-recent", models.ContactStatusSent, 0, &recent, nil},
		{"at-cap", models.ContactStatusReminded, 2, &old, nil},
		{"replied", models.ContactStatusReplied, 0, &old, &recent},
		// Stale status with a recorded reply must never be reminded.
		{"stale-status", models.ContactStatusSent, 0, &old, &recent},
		{"never-sent", models.ContactStatusPending, 0, nil, nil},
	}

	for i, s := range seed {
		_, err := db.Exec(`
			INSERT INTO contacts (id, nik, name, phone, status, reminder_count, last_sent, last_reply, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.nik, s.nik, "N", "62810000000"+s.nik, s.status, s.count, s.lastSent, s.lastReply, now.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("seed %s: %v", s.nik, err)
		}
	}

	due, err := repo.RemindersDue(now, 2, 24*time.Hour)
	if err != nil {
		t.Fatalf("RemindersDue: %v", err)
	}

	got := map[string]bool{}
	for _, c := range due {
		got[c.NIK] = true
	}

	want := []string{"due-sent", "due-reminded"}
	if len(due) != len(want) {
		t.Fatalf("RemindersDue returned %d contacts (%v), want %d", len(due), got, len(want))
	}
	for _, nik := range want {
		if !got[nik] {
			t.Errorf("expected %s to be due", nik)
		}
	}
}

func TestMarkRemindedLosesRaceToReply(t *testing.T) {
	db := setupTestDB(t)
	repo := NewContactRepository(db)

	if err := repo.Upsert(models.ImportRow{NIK: "1", Name: "A", Phone: "628100000001"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	c, _ := repo.GetByPhone("628100000001")
	if err := repo.MarkSent(c.ID, "rem", time.Now().Add(-25*time.Hour)); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}

	// Reply arrives between selection and the reminder update.
	if err := repo.MarkReplied(c.ID, time.Now()); err != nil {
		t.Fatalf("MarkReplied: %v", err)
	}

	updated, err := repo.MarkReminded(c.ID, time.Now())
	if err != nil {
		t.Fatalf("MarkReminded: %v", err)
	}
	if updated {
		t.Error("MarkReminded updated a replied contact")
	}

	c2, _ := repo.GetByID(c.ID)
	if c2.Status != models.ContactStatusReplied {
		t.Errorf("status = %q, want replied", c2.Status)
	}
	if c2.ReminderCount != 0 {
		t.Errorf("reminder_count = %d, want 0", c2.ReminderCount)
	}
}

func TestMarkRemindedIncrementsCount(t *testing.T) {
	db := setupTestDB(t)
	repo := NewContactRepository(db)

	if err := repo.Upsert(models.ImportRow{NIK: "1", Name: "A", Phone: "628100000001"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	c, _ := repo.GetByPhone("628100000001")
	if err := repo.MarkSent(c.ID, "rem", time.Now().Add(-25*time.Hour)); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}

	at := time.Now()
	updated, err := repo.MarkReminded(c.ID, at)
	if err != nil || !updated {
		t.Fatalf("MarkReminded = %v, %v", updated, err)
	}

	c2, _ := repo.GetByID(c.ID)
	if c2.Status != models.ContactStatusReminded {
		t.Errorf("status = %q, want reminded", c2.Status)
	}
	if c2.ReminderCount != 1 {
		t.Errorf("reminder_count = %d, want 1", c2.ReminderCount)
	}
	if c2.LastSent == nil || !c2.LastSent.Equal(at) {
		t.Errorf("last_sent = %v, want %v", c2.LastSent, at)
	}
}

func TestListJoinsLatestReply(t *testing.T) {
	db := setupTestDB(t)
	contacts := NewContactRepository(db)
	messages := NewMessageRepository(db)

	if err := contacts.Upsert(models.ImportRow{NIK: "1", Name: "A", Phone: "628100000001"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	c, _ := contacts.GetByPhone("628100000001")

	older := &models.Message{ContactID: c.ID, Type: models.MessageTypeReply, Body: "first", CreatedAt: time.Now().Add(-time.Hour)}
	newer := &models.Message{ContactID: c.ID, Type: models.MessageTypeReply, Body: "second", CreatedAt: time.Now()}
	outbound := &models.Message{ContactID: c.ID, Type: models.MessageTypeInitial, Body: "hello", CreatedAt: time.Now()}
	for _, m := range []*models.Message{older, newer, outbound} {
		if err := messages.Create(m); err != nil {
			t.Fatalf("Create message: %v", err)
		}
	}

	list, err := contacts.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("List returned %d contacts, want 1", len(list))
	}
	if list[0].LastReplyMessage != "second" {
		t.Errorf("last reply = %q, want most recent reply", list[0].LastReplyMessage)
	}
	if list[0].LastReplyTime == nil {
		t.Error("last reply time missing")
	}
}
