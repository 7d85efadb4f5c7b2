package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"usbdrop/services/builder"
)

func newTestStore(t *testing.T) (*gormStore, *gorm.DB) {
	t.Helper()
	orm, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := orm.AutoMigrate(&driveModel{}, &tokenModel{}, &triggerModel{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return &gormStore{orm: orm}, orm
}

func seedDriveWithToken(t *testing.T, orm *gorm.DB, status string) tokenRef {
	t.Helper()
	drive := driveModel{ID: uuid.New(), UniqueCode: "USB-AB12CD", Label: "reception desk", Status: status}
	if err := orm.Create(&drive).Error; err != nil {
		t.Fatalf("seed drive: %v", err)
	}
	token := tokenModel{
		ID:            uuid.New(),
		DriveID:       drive.ID,
		CanaryTokenID: "h2k9f3m1qx7",
		TokenType:     "doc-msexcel",
		Filename:      "payroll.xlsx",
		FilePath:      "Finance/payroll.xlsx",
		Memo:          "USB-AB12CD|Finance/payroll.xlsx",
	}
	if err := orm.Create(&token).Error; err != nil {
		t.Fatalf("seed token: %v", err)
	}
	return tokenRef{
		ID:            token.ID,
		DriveID:       drive.ID,
		CanaryTokenID: token.CanaryTokenID,
		TokenType:     token.TokenType,
		Filename:      token.Filename,
		FilePath:      token.FilePath,
	}
}

func TestRecordActivationTimestamps(t *testing.T) {
	st, orm := newTestStore(t)
	tok := seedDriveWithToken(t, orm, builder.StatusDeployed)
	ctx := context.Background()

	t1 := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(5 * time.Minute)
	t0 := t1.Add(-5 * time.Minute)

	info, err := st.recordActivation(ctx, tok, activation{SourceIP: "203.0.113.9", TriggeredAt: t1})
	if err != nil {
		t.Fatalf("first activation: %v", err)
	}
	if info.Code != "USB-AB12CD" || info.Label != "reception desk" {
		t.Fatalf("unexpected drive info %+v", info)
	}

	var row tokenModel
	if err := orm.First(&row, "id = ?", tok.ID).Error; err != nil {
		t.Fatalf("reload token: %v", err)
	}
	if row.FirstTriggeredAt == nil || !row.FirstTriggeredAt.Equal(t1) {
		t.Fatalf("first_triggered_at = %v, want %v", row.FirstTriggeredAt, t1)
	}
	if row.LastTriggeredAt == nil || !row.LastTriggeredAt.Equal(t1) {
		t.Fatalf("last_triggered_at = %v, want %v", row.LastTriggeredAt, t1)
	}

	if _, err := st.recordActivation(ctx, tok, activation{SourceIP: "203.0.113.9", TriggeredAt: t2}); err != nil {
		t.Fatalf("second activation: %v", err)
	}
	if err := orm.First(&row, "id = ?", tok.ID).Error; err != nil {
		t.Fatalf("reload token: %v", err)
	}
	if !row.FirstTriggeredAt.Equal(t1) {
		t.Fatalf("first_triggered_at moved to %v after later activation", row.FirstTriggeredAt)
	}
	if !row.LastTriggeredAt.Equal(t2) {
		t.Fatalf("last_triggered_at = %v, want %v", row.LastTriggeredAt, t2)
	}

	// A late-arriving alert with an older timestamp must not rewind either
	// timestamp.
	if _, err := st.recordActivation(ctx, tok, activation{SourceIP: "203.0.113.9", TriggeredAt: t0}); err != nil {
		t.Fatalf("stale activation: %v", err)
	}
	if err := orm.First(&row, "id = ?", tok.ID).Error; err != nil {
		t.Fatalf("reload token: %v", err)
	}
	if !row.FirstTriggeredAt.Equal(t1) {
		t.Fatalf("first_triggered_at rewound to %v", row.FirstTriggeredAt)
	}
	if !row.LastTriggeredAt.Equal(t2) {
		t.Fatalf("last_triggered_at rewound to %v", row.LastTriggeredAt)
	}

	var triggers int64
	if err := orm.Model(&triggerModel{}).Where("token_id = ?", tok.ID).Count(&triggers).Error; err != nil {
		t.Fatalf("count triggers: %v", err)
	}
	if triggers != 3 {
		t.Fatalf("trigger rows = %d, want 3", triggers)
	}
}

func TestRecordActivationAdvancesDrive(t *testing.T) {
	for _, status := range []string{builder.StatusPrepared, builder.StatusDeployed} {
		t.Run(status, func(t *testing.T) {
			st, orm := newTestStore(t)
			tok := seedDriveWithToken(t, orm, status)
			ctx := context.Background()

			t1 := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
			if _, err := st.recordActivation(ctx, tok, activation{TriggeredAt: t1}); err != nil {
				t.Fatalf("recordActivation: %v", err)
			}

			var drive driveModel
			if err := orm.First(&drive, "id = ?", tok.DriveID).Error; err != nil {
				t.Fatalf("reload drive: %v", err)
			}
			if drive.Status != builder.StatusTriggered {
				t.Fatalf("status = %q, want %q", drive.Status, builder.StatusTriggered)
			}
			if drive.TriggeredAt == nil || !drive.TriggeredAt.Equal(t1) {
				t.Fatalf("triggered_at = %v, want %v", drive.TriggeredAt, t1)
			}

			// Repeat activations keep the first trigger time on the drive.
			if _, err := st.recordActivation(ctx, tok, activation{TriggeredAt: t1.Add(time.Hour)}); err != nil {
				t.Fatalf("recordActivation: %v", err)
			}
			if err := orm.First(&drive, "id = ?", tok.DriveID).Error; err != nil {
				t.Fatalf("reload drive: %v", err)
			}
			if !drive.TriggeredAt.Equal(t1) {
				t.Fatalf("triggered_at moved to %v", drive.TriggeredAt)
			}
		})
	}
}

func TestRecordActivationLeavesOtherStatuses(t *testing.T) {
	for _, status := range []string{builder.StatusCreated, builder.StatusRecovered} {
		t.Run(status, func(t *testing.T) {
			st, orm := newTestStore(t)
			tok := seedDriveWithToken(t, orm, status)

			t1 := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
			if _, err := st.recordActivation(context.Background(), tok, activation{TriggeredAt: t1}); err != nil {
				t.Fatalf("recordActivation: %v", err)
			}

			var drive driveModel
			if err := orm.First(&drive, "id = ?", tok.DriveID).Error; err != nil {
				t.Fatalf("reload drive: %v", err)
			}
			if drive.Status != status {
				t.Fatalf("status = %q, want %q", drive.Status, status)
			}
			if drive.TriggeredAt != nil {
				t.Fatalf("triggered_at = %v, want unset", drive.TriggeredAt)
			}
		})
	}
}

func TestGormStoreResolveToken(t *testing.T) {
	st, orm := newTestStore(t)
	tok := seedDriveWithToken(t, orm, builder.StatusDeployed)
	ctx := context.Background()

	got, found, err := st.resolveToken(ctx, tok.CanaryTokenID)
	if err != nil || !found {
		t.Fatalf("resolveToken exact: found=%v err=%v", found, err)
	}
	if got.ID != tok.ID || got.FilePath != "Finance/payroll.xlsx" {
		t.Fatalf("unexpected token %+v", got)
	}

	got, found, err = st.resolveToken(ctx, "USB-AB12CD")
	if err != nil || !found {
		t.Fatalf("resolveToken memo: found=%v err=%v", found, err)
	}
	if got.ID != tok.ID {
		t.Fatalf("memo match resolved %s, want %s", got.ID, tok.ID)
	}

	_, found, err = st.resolveToken(ctx, "no-such-token")
	if err != nil {
		t.Fatalf("resolveToken miss: %v", err)
	}
	if found {
		t.Fatal("resolved a token for an unknown candidate")
	}
}
