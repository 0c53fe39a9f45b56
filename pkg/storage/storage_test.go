package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrCodeEU/drowsiguard/pkg/clock"
	"github.com/MrCodeEU/drowsiguard/pkg/identity"
	"github.com/MrCodeEU/drowsiguard/pkg/landmarks"
	"github.com/MrCodeEU/drowsiguard/pkg/session"
)

func testProfile() *identity.Profile {
	return &identity.Profile{
		Signature: landmarks.Set{
			{X: 0.5, Y: -0.5, Z: 0.1},
			{X: 0, Y: 0, Z: 0},
			{X: -1, Y: 0.25, Z: -0.2},
		},
		EnrolledAt: time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC),
	}
}

func testReport(start time.Time) session.Report {
	clk := clock.NewManual(start)
	s := session.New(clk)
	s.LogData(0.3, 0.1, 1, 2, start.Add(time.Second))
	s.LogEvent(session.EventDistracted, start.Add(time.Second))
	clk.Advance(2 * time.Second)
	return s.Report()
}

func TestNewFileStorage(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name       string
		dataDir    string
		encryption bool
		wantErr    bool
	}{
		{
			name:       "without encryption",
			dataDir:    filepath.Join(tmpDir, "test1"),
			encryption: false,
			wantErr:    false,
		},
		{
			name:       "with encryption",
			dataDir:    filepath.Join(tmpDir, "test2"),
			encryption: true,
			wantErr:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, err := NewFileStorage(tt.dataDir, tt.encryption)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewFileStorage() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if fs == nil {
				t.Error("NewFileStorage returned nil")
			}

			// Check directories were created
			if _, err := os.Stat(filepath.Join(tt.dataDir, "reports")); os.IsNotExist(err) {
				t.Error("reports directory was not created")
			}
		})
	}
}

func TestFileStorage_SaveAndLoadProfile(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir(), false)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	want := testProfile()
	if err := fs.SaveProfile(want); err != nil {
		t.Fatalf("SaveProfile failed: %v", err)
	}
	if filepath.Ext(fs.ProfilePath()) != ".json" {
		t.Errorf("unexpected profile path %s", fs.ProfilePath())
	}

	loaded, err := fs.LoadProfile()
	if err != nil {
		t.Fatalf("LoadProfile failed: %v", err)
	}
	if len(loaded.Signature) != len(want.Signature) {
		t.Fatalf("signature length mismatch: got %d, want %d", len(loaded.Signature), len(want.Signature))
	}
	for i := range want.Signature {
		if loaded.Signature[i] != want.Signature[i] {
			t.Errorf("point %d: got %+v, want %+v", i, loaded.Signature[i], want.Signature[i])
		}
	}
	if !loaded.EnrolledAt.Equal(want.EnrolledAt) {
		t.Errorf("EnrolledAt mismatch: got %v, want %v", loaded.EnrolledAt, want.EnrolledAt)
	}
}

func TestFileStorage_SaveAndLoadProfile_Encrypted(t *testing.T) {
	tmpDir := t.TempDir()
	fs, err := NewFileStorage(tmpDir, true)
	if err != nil {
		t.Fatalf("failed to create encrypted storage: %v", err)
	}

	if err := fs.SaveProfile(testProfile()); err != nil {
		t.Fatalf("SaveProfile (encrypted) failed: %v", err)
	}

	loaded, err := fs.LoadProfile()
	if err != nil {
		t.Fatalf("LoadProfile (encrypted) failed: %v", err)
	}
	if len(loaded.Signature) != 3 {
		t.Errorf("expected 3 points after decryption, got %d", len(loaded.Signature))
	}

	// Verify the file is encrypted (not valid JSON)
	data, err := os.ReadFile(filepath.Join(tmpDir, "profile.enc"))
	if err != nil {
		t.Fatalf("failed to read encrypted file: %v", err)
	}
	if len(data) > 0 && data[0] == '{' {
		t.Error("file does not appear to be encrypted")
	}
}

func TestFileStorage_TamperedProfile(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir(), true)
	if err != nil {
		t.Fatal(err)
	}
	if err := fs.SaveProfile(testProfile()); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(fs.ProfilePath())
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-1] ^= 0xff
	if err := os.WriteFile(fs.ProfilePath(), data, 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := fs.LoadProfile(); !errors.Is(err, ErrEncryption) {
		t.Errorf("expected ErrEncryption, got %v", err)
	}
}

func TestFileStorage_LoadProfile_NotFound(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir(), false)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	if _, err := fs.LoadProfile(); err != ErrProfileNotFound {
		t.Errorf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestFileStorage_DeleteProfile(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir(), false)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	if err := fs.DeleteProfile(); err != ErrProfileNotFound {
		t.Errorf("expected ErrProfileNotFound, got %v", err)
	}

	if err := fs.SaveProfile(testProfile()); err != nil {
		t.Fatalf("failed to save profile: %v", err)
	}
	if !fs.HasProfile() {
		t.Error("profile should exist after save")
	}

	if err := fs.DeleteProfile(); err != nil {
		t.Errorf("DeleteProfile failed: %v", err)
	}
	if fs.HasProfile() {
		t.Error("profile should not exist after delete")
	}
}

func TestFileStorage_VerifierPersistence(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir(), true)
	if err != nil {
		t.Fatal(err)
	}

	face := make(landmarks.Set, 10)
	for i := range face {
		face[i] = landmarks.Point{X: float64(i) / 10, Y: float64(i%3) / 10}
	}

	v := identity.NewVerifier(identity.DefaultThreshold, fs)
	if _, err := v.Enroll(face); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	// A fresh verifier picks the profile up from disk.
	p, err := fs.LoadProfile()
	if err != nil {
		t.Fatalf("LoadProfile failed: %v", err)
	}
	restored := identity.NewVerifier(identity.DefaultThreshold, nil)
	restored.SetProfile(p)
	if res := restored.Verify(face); !res.Match || res.MSE != 0 {
		t.Errorf("restored profile should match the enrolled face, got %+v", res)
	}
}

func TestFileStorage_Reports(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir(), false)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	reports, err := fs.ListReports()
	if err != nil {
		t.Fatalf("ListReports failed: %v", err)
	}
	if len(reports) != 0 {
		t.Errorf("expected 0 reports, got %d", len(reports))
	}

	first := testReport(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC))
	second := testReport(time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC))
	for _, r := range []session.Report{second, first} {
		if _, err := fs.SaveReport(r); err != nil {
			t.Fatalf("SaveReport failed: %v", err)
		}
	}

	reports, err = fs.ListReports()
	if err != nil {
		t.Fatalf("ListReports failed: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if reports[0].Name >= reports[1].Name {
		t.Errorf("reports not sorted: %s, %s", reports[0].Name, reports[1].Name)
	}

	loaded, err := fs.LoadReport(reports[0].Name)
	if err != nil {
		t.Fatalf("LoadReport failed: %v", err)
	}
	if loaded.Summary.SessionID != first.Summary.SessionID {
		t.Errorf("oldest report should be the first session, got %s", loaded.Summary.SessionID)
	}
	if loaded.Summary.Counts.Distracted != 1 || len(loaded.Events) != 1 {
		t.Errorf("report content lost: %+v", loaded)
	}
}

func TestFileStorage_LoadReport_Errors(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir(), false)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := fs.LoadReport("missing.json"); err != ErrReportNotFound {
		t.Errorf("expected ErrReportNotFound, got %v", err)
	}
	if _, err := fs.LoadReport("../profile.json"); err == nil {
		t.Error("expected error for path traversal")
	}
}

func TestEncryptDecrypt(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir(), true)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	testData := []byte("signature data to encrypt")

	encrypted, err := fs.encrypt(testData)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if string(encrypted) == string(testData) {
		t.Error("encrypted data should differ from original")
	}

	decrypted, err := fs.decrypt(encrypted)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if string(decrypted) != string(testData) {
		t.Error("decrypted data doesn't match original")
	}

	if _, err := fs.decrypt([]byte("short")); err != ErrEncryption {
		t.Errorf("expected ErrEncryption for short input, got %v", err)
	}
}
