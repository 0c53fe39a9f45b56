package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/MrCodeEU/drowsiguard/pkg/config"
	"github.com/MrCodeEU/drowsiguard/pkg/headpose"
	"github.com/MrCodeEU/drowsiguard/pkg/identity"
	"github.com/MrCodeEU/drowsiguard/pkg/landmarks"
	"github.com/MrCodeEU/drowsiguard/pkg/landmarks/meshtest"
	"github.com/MrCodeEU/drowsiguard/pkg/monitor"
	"github.com/MrCodeEU/drowsiguard/pkg/session"
	"github.com/MrCodeEU/drowsiguard/pkg/storage"
)

var start = time.UnixMilli(1719813600000)

type frontalSolver struct{}

func (frontalSolver) Solve([6]landmarks.Pixel, headpose.Camera) (headpose.Pose, error) {
	return headpose.Pose{Rotation: r3.Vec{X: math.Pi}, Translation: r3.Vec{Z: 1000}}, nil
}

type quietAlerter struct{}

func (quietAlerter) Alert() {}
func (quietAlerter) Stop() {}

func testConfig(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	cfg = config.DefaultConfig()
	cfg.Storage.DataDir = dir
	cfg.Archive.Path = filepath.Join(dir, "sessions.db")
	cfg.Logging.File = ""
}

// stream encodes n frames 40ms apart. The eyes are closed for the first
// closed frames and every frame in gaps has no face.
func stream(t *testing.T, n, closed int, gaps map[int]bool) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := 1; i <= n; i++ {
		f := landmarks.Frame{
			Timestamp: start.Add(time.Duration(i) * 40 * time.Millisecond),
			Width:     meshtest.Width,
			Height:    meshtest.Height,
		}
		if !gaps[i] {
			ear := 0.30
			if i <= closed {
				ear = 0.15
			}
			f.Landmarks = meshtest.Face(ear, 0.1)
		}
		if err := enc.Encode(f); err != nil {
			t.Fatalf("encode frame %d: %v", i, err)
		}
	}
	return &buf
}

func writeFrame(t *testing.T, points landmarks.Set) string {
	t.Helper()
	data, err := json.Marshal(landmarks.Frame{Timestamp: start, Width: meshtest.Width, Height: meshtest.Height, Landmarks: points})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "frame.json")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReplayer_Run(t *testing.T) {
	testConfig(t)
	r := newReplayer(monitor.WithSolver(frontalSolver{}), monitor.WithAlerter(quietAlerter{}))

	report, stats, err := r.run(context.Background(), landmarks.NewReader(stream(t, 100, 60, map[int]bool{80: true, 81: true})))
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	if stats.Frames != 100 || stats.FaceFrames != 98 {
		t.Errorf("frames = %d/%d, want 100/98", stats.Frames, stats.FaceFrames)
	}
	if stats.Identity != nil {
		t.Error("no verifier was configured")
	}

	s := report.Summary
	if s.Samples != 98 {
		t.Errorf("samples = %d, want 98", s.Samples)
	}
	if s.Counts.Drowsy != 11 {
		t.Errorf("drowsy events = %d, want 11", s.Counts.Drowsy)
	}
	// Session time follows frame timestamps: first frame at 40ms, last at 4s.
	if math.Abs(s.Duration-3.96) > 1e-9 {
		t.Errorf("duration = %v, want 3.96", s.Duration)
	}
	if len(report.Events) != 11 || report.Events[0].Type != session.EventDrowsy {
		t.Errorf("unexpected events: %+v", report.Events)
	}
	if r.pipeline.Session() != nil {
		t.Error("session should be stopped after the stream ends")
	}
}

func TestReplayer_VerifiesDriverOnce(t *testing.T) {
	testConfig(t)

	verifier := identity.NewVerifier(cfg.Identity.MSEThreshold, nil)
	if _, err := verifier.Enroll(meshtest.Face(0.3, 0.1)); err != nil {
		t.Fatal(err)
	}

	r := newReplayer(monitor.WithSolver(frontalSolver{}), monitor.WithAlerter(quietAlerter{}))
	r.verifier = verifier

	_, stats, err := r.run(context.Background(), landmarks.NewReader(stream(t, 10, 0, map[int]bool{1: true})))
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if stats.Identity == nil {
		t.Fatal("expected an identity result")
	}
	if !stats.Identity.Match {
		t.Errorf("same face should match, mse = %v", stats.Identity.MSE)
	}
}

func TestReplayer_Errors(t *testing.T) {
	testConfig(t)

	r := newReplayer(monitor.WithSolver(frontalSolver{}))
	if _, _, err := r.run(context.Background(), landmarks.NewReader(strings.NewReader("\n\n"))); !errors.Is(err, errNoFrames) {
		t.Errorf("empty stream: err = %v, want errNoFrames", err)
	}

	bad := stream(t, 3, 0, nil)
	bad.WriteString("{not json\n")
	r = newReplayer(monitor.WithSolver(frontalSolver{}))
	_, _, err := r.run(context.Background(), landmarks.NewReader(bad))
	if err == nil || !strings.Contains(err.Error(), "line 4") {
		t.Errorf("bad line: err = %v, want line 4 error", err)
	}
	if r.pipeline.Session() != nil {
		t.Error("a failed replay should not leave a session running")
	}
}

func TestReplayer_Cancelled(t *testing.T) {
	testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newReplayer(monitor.WithSolver(frontalSolver{}))
	if _, _, err := r.run(ctx, landmarks.NewReader(stream(t, 5, 0, nil))); !errors.Is(err, errNoFrames) {
		t.Errorf("err = %v, want errNoFrames", err)
	}
}

func TestPause(t *testing.T) {
	if err := pause(context.Background(), -time.Second); err != nil {
		t.Errorf("negative pause: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pause(ctx, time.Hour); err == nil {
		t.Error("cancelled pause should return the context error")
	}
}

func TestEnrollVerifyForget(t *testing.T) {
	testConfig(t)
	face := writeFrame(t, meshtest.Face(0.3, 0.1))

	if err := cmdVerify([]string{face}); err == nil {
		t.Error("verify without a profile should fail")
	}
	if err := cmdEnroll([]string{face}); err != nil {
		t.Fatalf("enroll: %v", err)
	}

	store, err := storage.NewFileStorage(cfg.Storage.DataDir, cfg.Storage.EncryptionEnabled)
	if err != nil {
		t.Fatal(err)
	}
	if !store.HasProfile() {
		t.Fatal("enroll should persist the profile")
	}

	if err := cmdVerify([]string{face}); err != nil {
		t.Errorf("verify: %v", err)
	}
	if err := cmdForget(nil); err != nil {
		t.Errorf("forget: %v", err)
	}
	if store.HasProfile() {
		t.Error("forget should remove the profile")
	}
	if err := cmdForget(nil); err != nil {
		t.Errorf("forget without a profile: %v", err)
	}
}

func TestEnroll_NoFace(t *testing.T) {
	testConfig(t)
	if err := cmdEnroll([]string{writeFrame(t, nil)}); err == nil || !strings.Contains(err.Error(), "no face") {
		t.Errorf("err = %v, want no face", err)
	}
	if err := cmdEnroll(nil); err == nil {
		t.Error("enroll without arguments should fail")
	}
}

func TestRunAndReports(t *testing.T) {
	testConfig(t)
	path := filepath.Join(t.TempDir(), "drive.jsonl")
	if err := os.WriteFile(path, stream(t, 20, 0, nil).Bytes(), 0600); err != nil {
		t.Fatal(err)
	}

	if err := cmdRun([]string{path}); err != nil {
		t.Fatalf("run: %v", err)
	}

	store, err := storage.NewFileStorage(cfg.Storage.DataDir, false)
	if err != nil {
		t.Fatal(err)
	}
	reports, err := store.ListReports()
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}

	if err := cmdReports(nil); err != nil {
		t.Errorf("reports: %v", err)
	}
	if err := cmdReports([]string{reports[0].Name}); err != nil {
		t.Errorf("reports <name>: %v", err)
	}

	cfg.Archive.Enabled = false
	if err := cmdReports(nil); err != nil {
		t.Errorf("reports from files: %v", err)
	}
}

func TestRun_Usage(t *testing.T) {
	testConfig(t)
	if err := cmdRun(nil); err == nil {
		t.Error("run without a stream should fail")
	}
	if err := cmdRun([]string{filepath.Join(t.TempDir(), "missing.jsonl")}); err == nil {
		t.Error("run with a missing file should fail")
	}
}

func TestCommandTable(t *testing.T) {
	for _, name := range commandOrder {
		cmd, ok := commands[name]
		if !ok {
			t.Errorf("command %q missing from table", name)
			continue
		}
		if cmd.Name != name || cmd.Run == nil {
			t.Errorf("command %q is not wired", name)
		}
	}
	if len(commands) != len(commandOrder) {
		t.Errorf("%d commands registered, %d listed in usage", len(commands), len(commandOrder))
	}
	if err := cmdHelp([]string{"nope"}); err == nil {
		t.Error("help for an unknown command should fail")
	}
}
