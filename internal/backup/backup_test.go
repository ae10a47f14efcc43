package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/nudge/internal/database"
	"github.com/dukerupert/nudge/internal/logging"
	"github.com/dukerupert/nudge/internal/model"
	"github.com/dukerupert/nudge/internal/store"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	delErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, _ := io.ReadAll(input.Body)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if m.delErr != nil {
		return nil, m.delErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3Client) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}

var enabledConfig = Config{
	S3:         S3Config{Bucket: "test", AccessKey: "key", SecretKey: "secret"},
	Passphrase: "hunter2",
	OwnerID:    "owner-1",
	Retention:  48 * time.Hour,
}

func setupManager(t *testing.T) (*Manager, *mockS3Client, *sql.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m := NewManager(enabledConfig, db, store.NewBackupStore(db), logging.Discard())
	mock := newMockS3()
	m.client = mock
	return m, mock, db
}

func TestManagerState(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want State
	}{
		{"no storage", Config{Passphrase: "pw"}, StateDisabled},
		{"no passphrase", Config{S3: enabledConfig.S3}, StateDisabled},
		{"configured", enabledConfig, StateIdle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.cfg, nil, nil, logging.Discard())
			if got := m.Status().State; got != tt.want {
				t.Errorf("state = %q, want %q", got, tt.want)
			}
			if m.Enabled() != (tt.want == StateIdle) {
				t.Errorf("Enabled() = %v", m.Enabled())
			}
		})
	}
}

func TestRunNowDisabled(t *testing.T) {
	m := NewManager(Config{}, nil, nil, logging.Discard())
	if _, err := m.RunNow(context.Background()); !errors.Is(err, ErrDisabled) {
		t.Errorf("err = %v, want ErrDisabled", err)
	}
}

func TestRunNowAndFetch(t *testing.T) {
	m, mock, db := setupManager(t)
	ctx := context.Background()

	if _, err := db.Exec(`INSERT INTO reminders (id, owner_id, title, scheduled_time) VALUES ('r1', 'owner-1', 'Take pills', '09:00')`); err != nil {
		t.Fatalf("seed: %v", err)
	}

	b, err := m.RunNow(ctx)
	if err != nil {
		t.Fatalf("run backup: %v", err)
	}
	if b.Status != model.BackupStatusCompleted || b.SizeBytes == 0 || b.CompletedAt == nil {
		t.Errorf("backup = %+v", b)
	}
	if keys := mock.keys(); len(keys) != 1 || keys[0] != b.ObjectKey {
		t.Errorf("uploaded keys = %v, want [%s]", keys, b.ObjectKey)
	}
	if st := m.Status(); st.State != StateIdle || st.LastBackup == nil {
		t.Errorf("status = %+v", st)
	}

	// The fetched file is a working database with the seeded row.
	path := filepath.Join(t.TempDir(), "restored.db")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.Fetch(ctx, b.ID, f); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	f.Close()

	restored, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open restored: %v", err)
	}
	defer restored.Close()
	var title string
	if err := restored.QueryRow(`SELECT title FROM reminders WHERE id = 'r1'`).Scan(&title); err != nil {
		t.Fatalf("query restored: %v", err)
	}
	if title != "Take pills" {
		t.Errorf("title = %q", title)
	}
}

func TestRunNowUploadFailure(t *testing.T) {
	m, mock, db := setupManager(t)
	mock.putErr = errors.New("bucket gone")

	if _, err := m.RunNow(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
	if st := m.Status(); st.State != StateError || st.Error == "" {
		t.Errorf("status = %+v, want error state", st)
	}

	var status string
	db.QueryRow(`SELECT status FROM backups`).Scan(&status)
	if status != string(model.BackupStatusFailed) {
		t.Errorf("record status = %q, want failed", status)
	}
}

func TestFetchUnknown(t *testing.T) {
	m, _, _ := setupManager(t)
	if err := m.Fetch(context.Background(), 42, io.Discard); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCleanupRemovesOldBackups(t *testing.T) {
	m, mock, _ := setupManager(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 3, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }
	old, err := m.RunNow(ctx)
	if err != nil {
		t.Fatalf("first backup: %v", err)
	}

	m.now = func() time.Time { return base.Add(72 * time.Hour) }
	recent, err := m.RunNow(ctx)
	if err != nil {
		t.Fatalf("second backup: %v", err)
	}

	if err := m.Cleanup(ctx); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	keys := mock.keys()
	if len(keys) != 1 || keys[0] != recent.ObjectKey {
		t.Errorf("remaining keys = %v, want only %s (old %s)", keys, recent.ObjectKey, old.ObjectKey)
	}
}

func TestManagerStopSafety(t *testing.T) {
	m := NewManager(enabledConfig, nil, nil, logging.Discard())
	m.client = newMockS3()

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()
	m.Stop()

	// Double stop should not panic
	m.Stop()
}

func TestManagerDisabledNoStart(t *testing.T) {
	m := NewManager(Config{}, nil, nil, logging.Discard())
	m.Start(context.Background())
	m.Stop()
}
