// Package storage persists the identity profile and session reports.
// The profile is encrypted at rest using NaCl secretbox when enabled.
package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/MrCodeEU/drowsiguard/pkg/identity"
	"github.com/MrCodeEU/drowsiguard/pkg/logging"
	"github.com/MrCodeEU/drowsiguard/pkg/session"
)

const (
	// NonceSize is the size of the nonce used for encryption
	NonceSize = 24
	// KeySize is the size of the encryption key
	KeySize = 32

	reportsDir  = "reports"
	profileName = "profile"
)

// ErrProfileNotFound is returned when no profile has been enrolled.
var ErrProfileNotFound = errors.New("profile not found")

// ErrReportNotFound is returned when a named report does not exist.
var ErrReportNotFound = errors.New("report not found")

// ErrEncryption is returned when encryption/decryption fails.
var ErrEncryption = errors.New("encryption error")

// ReportInfo describes a stored report file.
type ReportInfo struct {
	Name    string
	Path    string
	ModTime time.Time
}

// FileStorage keeps the profile and reports under a data directory:
//
//	<dataDir>/profile.json (or profile.enc)
//	<dataDir>/reports/<timestamp>-<session>.json
type FileStorage struct {
	dataDir           string
	encryptionEnabled bool
	encryptionKey     [KeySize]byte
}

// NewFileStorage creates a new FileStorage instance.
func NewFileStorage(dataDir string, encryptionEnabled bool) (*FileStorage, error) {
	fs := &FileStorage{
		dataDir:           dataDir,
		encryptionEnabled: encryptionEnabled,
	}

	// Derive encryption key from machine-specific information
	if encryptionEnabled {
		key, err := deriveKey()
		if err != nil {
			return nil, fmt.Errorf("failed to derive encryption key: %w", err)
		}
		fs.encryptionKey = key
	}

	if err := os.MkdirAll(filepath.Join(dataDir, reportsDir), 0700); err != nil {
		return nil, fmt.Errorf("failed to create reports directory: %w", err)
	}

	return fs, nil
}

// deriveKey derives an encryption key from machine-specific information.
// This ties the encrypted profile to this specific machine.
func deriveKey() ([KeySize]byte, error) {
	var key [KeySize]byte
	var machine strings.Builder

	// Machine ID (Linux specific)
	if machineID, err := os.ReadFile("/etc/machine-id"); err == nil {
		machine.Write(machineID)
	}
	if hostname, err := os.Hostname(); err == nil {
		machine.WriteString(hostname)
	}
	machine.WriteString(fmt.Sprintf("%d", os.Getuid()))
	machine.WriteString("drowsiguard-v1-salt")

	hash := sha256.Sum256([]byte(machine.String()))
	copy(key[:], hash[:])

	return key, nil
}

// ProfilePath returns the file the profile is stored in.
func (fs *FileStorage) ProfilePath() string {
	filename := profileName + ".json"
	if fs.encryptionEnabled {
		filename = profileName + ".enc"
	}
	return filepath.Join(fs.dataDir, filename)
}

// SaveProfile writes the profile, replacing any previous one.
func (fs *FileStorage) SaveProfile(p *identity.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	if fs.encryptionEnabled {
		data, err = fs.encrypt(data)
		if err != nil {
			return fmt.Errorf("failed to encrypt profile: %w", err)
		}
	}

	if err := os.WriteFile(fs.ProfilePath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}

	logging.Component("storage").Debugf("Saved profile with %d points", len(p.Signature))
	return nil
}

// LoadProfile reads the enrolled profile.
func (fs *FileStorage) LoadProfile() (*identity.Profile, error) {
	data, err := os.ReadFile(fs.ProfilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	if fs.encryptionEnabled {
		data, err = fs.decrypt(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt profile: %w", err)
		}
	}

	var p identity.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &p, nil
}

// DeleteProfile removes the enrolled profile.
func (fs *FileStorage) DeleteProfile() error {
	if err := os.Remove(fs.ProfilePath()); err != nil {
		if os.IsNotExist(err) {
			return ErrProfileNotFound
		}
		return fmt.Errorf("failed to delete profile: %w", err)
	}

	logging.Component("storage").Info("Deleted profile")
	return nil
}

// HasProfile checks if a profile is enrolled.
func (fs *FileStorage) HasProfile() bool {
	_, err := os.Stat(fs.ProfilePath())
	return err == nil
}

// SaveReport writes a session report and returns its path.
func (fs *FileStorage) SaveReport(r session.Report) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	name := reportName(r.Summary)
	path := filepath.Join(fs.dataDir, reportsDir, name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	logging.Component("storage").WithField("path", path).Info("Saved session report")
	return path, nil
}

// LoadReport reads a report by file name.
func (fs *FileStorage) LoadReport(name string) (*session.Report, error) {
	if filepath.Base(name) != name {
		return nil, fmt.Errorf("invalid report name: %s", name)
	}

	data, err := os.ReadFile(filepath.Join(fs.dataDir, reportsDir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var r session.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &r, nil
}

// ListReports returns the stored reports, oldest first.
func (fs *FileStorage) ListReports() ([]ReportInfo, error) {
	dir := filepath.Join(fs.dataDir, reportsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []ReportInfo{}, nil
		}
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	reports := []ReportInfo{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		reports = append(reports, ReportInfo{
			Name:    entry.Name(),
			Path:    filepath.Join(dir, entry.Name()),
			ModTime: info.ModTime(),
		})
	}

	// Names start with the session start time, so lexical order is
	// chronological.
	sort.Slice(reports, func(i, j int) bool { return reports[i].Name < reports[j].Name })
	return reports, nil
}

func reportName(s session.Summary) string {
	id := s.SessionID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s-%s.json", s.Started.Format("20060102-150405"), id)
}

// encrypt encrypts data using NaCl secretbox.
func (fs *FileStorage) encrypt(plaintext []byte) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}

	return secretbox.Seal(nonce[:], plaintext, &nonce, &fs.encryptionKey), nil
}

// decrypt decrypts data using NaCl secretbox.
func (fs *FileStorage) decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < NonceSize {
		return nil, ErrEncryption
	}

	var nonce [NonceSize]byte
	copy(nonce[:], ciphertext[:NonceSize])

	plaintext, ok := secretbox.Open(nil, ciphertext[NonceSize:], &nonce, &fs.encryptionKey)
	if !ok {
		return nil, ErrEncryption
	}

	return plaintext, nil
}
