package persistence

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"meshchat/internal/domain"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "meshchat.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func testMessage(id string, packetID uint32, at time.Time) domain.Message {
	return domain.Message{
		ID:          id,
		PacketID:    packetID,
		From:        0x01020304,
		To:          0x0A0B0C0D,
		Text:        "message " + id,
		At:          at,
		Outgoing:    true,
		Type:        domain.MessageTypeText,
		RadioStatus: domain.RadioStatusPending,
		MQTTStatus:  domain.MQTTStatusNotApplicable,
		Status:      domain.LegacyStatusPending,
	}
}

func TestAddMessageDedupWindow(t *testing.T) {
	repo := NewMessageRepo(openTestDB(t))
	ctx := context.Background()
	base := time.Now()

	first := testMessage("m1", 100, base)
	if _, added, err := repo.AddMessage(ctx, first); err != nil || !added {
		t.Fatalf("first insert: added=%v err=%v", added, err)
	}

	// Same endpoints and body 3 seconds later: silent no-op returning the
	// stored row.
	dup := first
	dup.ID = "m2"
	dup.PacketID = 101
	dup.At = base.Add(3 * time.Second)
	stored, added, err := repo.AddMessage(ctx, dup)
	if err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if added {
		t.Fatalf("duplicate inside window must be dropped")
	}
	if stored.ID != "m1" {
		t.Fatalf("expected original row back, got %q", stored.ID)
	}

	// Outside the window the same content is a new message.
	later := first
	later.ID = "m3"
	later.PacketID = 102
	later.At = base.Add(6 * time.Second)
	if _, added, err := repo.AddMessage(ctx, later); err != nil || !added {
		t.Fatalf("insert outside window: added=%v err=%v", added, err)
	}

	all, err := repo.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 stored messages, got %d", len(all))
	}
}

func TestAddMessageDifferentBodyIsNotDuplicate(t *testing.T) {
	repo := NewMessageRepo(openTestDB(t))
	ctx := context.Background()
	base := time.Now()

	a := testMessage("a", 1, base)
	b := testMessage("b", 2, base.Add(time.Second))
	b.Text = "different body"
	if _, added, err := repo.AddMessage(ctx, a); err != nil || !added {
		t.Fatalf("insert a: added=%v err=%v", added, err)
	}
	if _, added, err := repo.AddMessage(ctx, b); err != nil || !added {
		t.Fatalf("insert b: added=%v err=%v", added, err)
	}
}

func TestListRecentByChatOrdersAscendingWithLimit(t *testing.T) {
	repo := NewMessageRepo(openTestDB(t))
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		m := testMessage(string(rune('a'+i)), uint32(i+1), base.Add(time.Duration(i)*time.Minute))
		m.Text = m.ID
		if _, added, err := repo.AddMessage(ctx, m); err != nil || !added {
			t.Fatalf("insert %d: added=%v err=%v", i, added, err)
		}
	}

	got, err := repo.ListRecentByChat(ctx, domain.ChatKeyForDM(0x0A0B0C0D), 3)
	if err != nil {
		t.Fatalf("list by chat: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 newest messages, got %d", len(got))
	}
	// Newest three, oldest first.
	if got[0].Text != "c" || got[1].Text != "d" || got[2].Text != "e" {
		t.Fatalf("wrong order: %q %q %q", got[0].Text, got[1].Text, got[2].Text)
	}
	if !got[0].At.Before(got[1].At) || !got[1].At.Before(got[2].At) {
		t.Fatalf("messages not ascending by time")
	}
}

func TestChannelAndDMChatsAreDisjoint(t *testing.T) {
	repo := NewMessageRepo(openTestDB(t))
	ctx := context.Background()
	base := time.Now()

	dm := testMessage("dm", 1, base)
	if _, _, err := repo.AddMessage(ctx, dm); err != nil {
		t.Fatalf("insert dm: %v", err)
	}

	idx := 2
	ch := testMessage("ch", 2, base.Add(time.Second))
	ch.To = domain.BroadcastNodeNum
	ch.Channel = &idx
	ch.Text = "channel hello"
	if _, _, err := repo.AddMessage(ctx, ch); err != nil {
		t.Fatalf("insert channel msg: %v", err)
	}

	dms, err := repo.ListRecentByChat(ctx, domain.ChatKeyForDM(0x0A0B0C0D), 10)
	if err != nil {
		t.Fatalf("list dms: %v", err)
	}
	if len(dms) != 1 || dms[0].ID != "dm" {
		t.Fatalf("dm chat leaked channel rows: %+v", dms)
	}

	chMsgs, err := repo.ListRecentByChat(ctx, domain.ChatKeyForChannel(2), 10)
	if err != nil {
		t.Fatalf("list channel: %v", err)
	}
	if len(chMsgs) != 1 || chMsgs[0].ID != "ch" {
		t.Fatalf("channel chat wrong rows: %+v", chMsgs)
	}
	if chMsgs[0].Channel == nil || *chMsgs[0].Channel != 2 {
		t.Fatalf("channel index lost in round trip")
	}
}

func TestUpdateRadioStatusTerminalProtection(t *testing.T) {
	repo := NewMessageRepo(openTestDB(t))
	ctx := context.Background()

	m := testMessage("m1", 500, time.Now())
	if _, _, err := repo.AddMessage(ctx, m); err != nil {
		t.Fatalf("insert: %v", err)
	}

	updated, err := repo.UpdateRadioStatusByPacketID(ctx, 500, domain.RadioStatusDelivered)
	if err != nil {
		t.Fatalf("update to delivered: %v", err)
	}
	if len(updated) != 1 || updated[0].RadioStatus != domain.RadioStatusDelivered {
		t.Fatalf("delivered transition not applied: %+v", updated)
	}
	if updated[0].Status != domain.LegacyStatusDelivered {
		t.Fatalf("legacy column not kept in step: %v", updated[0].Status)
	}

	// A late queue-status "sent" must not demote a delivered message.
	updated, err = repo.UpdateRadioStatusByPacketID(ctx, 500, domain.RadioStatusSent)
	if err != nil {
		t.Fatalf("stale update: %v", err)
	}
	if len(updated) != 0 {
		t.Fatalf("terminal status was reverted: %+v", updated)
	}

	got, err := repo.GetByID(ctx, "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RadioStatus != domain.RadioStatusDelivered {
		t.Fatalf("stored status demoted to %v", got.RadioStatus)
	}
}

func TestUpdateMQTTStatusSkipsNotApplicable(t *testing.T) {
	repo := NewMessageRepo(openTestDB(t))
	ctx := context.Background()

	dm := testMessage("dm", 600, time.Now())
	if _, _, err := repo.AddMessage(ctx, dm); err != nil {
		t.Fatalf("insert dm: %v", err)
	}

	idx := 1
	ch := testMessage("ch", 600, time.Now())
	ch.To = domain.BroadcastNodeNum
	ch.Channel = &idx
	ch.Text = "uplinked"
	ch.MQTTStatus = domain.MQTTStatusPending
	if _, _, err := repo.AddMessage(ctx, ch); err != nil {
		t.Fatalf("insert channel msg: %v", err)
	}

	updated, err := repo.UpdateMQTTStatusByPacketID(ctx, 600, domain.MQTTStatusSent)
	if err != nil {
		t.Fatalf("update mqtt: %v", err)
	}
	if len(updated) != 1 || updated[0].ID != "ch" {
		t.Fatalf("expected only the uplinked message updated: %+v", updated)
	}
	if updated[0].MQTTStatus != domain.MQTTStatusSent {
		t.Fatalf("mqtt track not advanced: %v", updated[0].MQTTStatus)
	}

	got, err := repo.GetByID(ctx, "dm")
	if err != nil {
		t.Fatalf("get dm: %v", err)
	}
	if got.MQTTStatus != domain.MQTTStatusNotApplicable {
		t.Fatalf("dm mqtt track must stay not_applicable, got %v", got.MQTTStatus)
	}
}

func TestLegacyRowsFallBackToSingleStatus(t *testing.T) {
	repo := NewMessageRepo(openTestDB(t))
	ctx := context.Background()

	legacy := testMessage("old", 0, time.Now())
	legacy.RadioStatus = domain.RadioStatusUnknown
	legacy.MQTTStatus = domain.MQTTStatusUnknown
	legacy.Status = domain.LegacyStatusSent
	if _, _, err := repo.AddMessage(ctx, legacy); err != nil {
		t.Fatalf("insert legacy row: %v", err)
	}

	got, err := repo.GetByID(ctx, "old")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if domain.EffectiveStatus(got) != domain.LegacyStatusSent {
		t.Fatalf("legacy fallback broken: %v", domain.EffectiveStatus(got))
	}
}

func TestTrimOlderThan(t *testing.T) {
	repo := NewMessageRepo(openTestDB(t))
	ctx := context.Background()
	now := time.Now()

	old := testMessage("old", 1, now.Add(-48*time.Hour))
	fresh := testMessage("fresh", 2, now)
	fresh.Text = "still here"
	if _, _, err := repo.AddMessage(ctx, old); err != nil {
		t.Fatalf("insert old: %v", err)
	}
	if _, _, err := repo.AddMessage(ctx, fresh); err != nil {
		t.Fatalf("insert fresh: %v", err)
	}

	n, err := repo.TrimOlderThan(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 trimmed row, got %d", n)
	}
	if _, err := repo.GetByID(ctx, "old"); err == nil {
		t.Fatalf("old row survived the trim")
	}
	if _, err := repo.GetByID(ctx, "fresh"); err != nil {
		t.Fatalf("fresh row trimmed: %v", err)
	}
}

func TestDeleteOldMessagesKeepsNewest(t *testing.T) {
	repo := NewMessageRepo(openTestDB(t))
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		m := testMessage(string(rune('a'+i)), uint32(i+1), base.Add(time.Duration(i)*time.Minute))
		m.Text = m.ID
		if _, added, err := repo.AddMessage(ctx, m); err != nil || !added {
			t.Fatalf("insert %d: added=%v err=%v", i, added, err)
		}
	}

	n, err := repo.DeleteOldMessages(ctx, 2)
	if err != nil {
		t.Fatalf("delete old: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 deleted rows, got %d", n)
	}

	left, err := repo.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(left) != 2 || left[0].Text != "d" || left[1].Text != "e" {
		t.Fatalf("wrong survivors: %+v", left)
	}
}

func TestImportSkipsExistingIDs(t *testing.T) {
	repo := NewMessageRepo(openTestDB(t))
	ctx := context.Background()
	base := time.Now()

	existing := testMessage("keep", 1, base)
	if _, _, err := repo.AddMessage(ctx, existing); err != nil {
		t.Fatalf("insert: %v", err)
	}

	batch := []domain.Message{
		existing,
		testMessage("new1", 2, base.Add(time.Minute)),
		testMessage("new2", 3, base.Add(2*time.Minute)),
	}
	batch[1].Text = "imported one"
	batch[2].Text = "imported two"

	added, err := repo.Import(ctx, batch)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if added != 2 {
		t.Fatalf("expected 2 imported rows, got %d", added)
	}

	all, err := repo.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 rows after import, got %d", len(all))
	}
}

func TestLocationRoundTrip(t *testing.T) {
	repo := NewMessageRepo(openTestDB(t))
	ctx := context.Background()

	alt := 42
	capturedAt := time.Now().Add(-time.Minute).Truncate(time.Millisecond)
	m := testMessage("loc", 9, time.Now())
	m.Type = domain.MessageTypeLocation
	m.Text = ""
	m.Location = &domain.Location{
		Latitude:   52.37,
		Longitude:  4.89,
		Altitude:   &alt,
		CapturedAt: &capturedAt,
	}
	if _, _, err := repo.AddMessage(ctx, m); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := repo.GetByID(ctx, "loc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Location == nil {
		t.Fatalf("location lost")
	}
	if got.Location.Latitude != 52.37 || got.Location.Longitude != 4.89 {
		t.Fatalf("coordinates mismatch: %+v", got.Location)
	}
	if got.Location.Altitude == nil || *got.Location.Altitude != 42 {
		t.Fatalf("altitude mismatch: %+v", got.Location.Altitude)
	}
	if got.Location.CapturedAt == nil || !got.Location.CapturedAt.Equal(capturedAt) {
		t.Fatalf("captured time mismatch: %+v", got.Location.CapturedAt)
	}
}
