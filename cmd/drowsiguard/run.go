package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrCodeEU/drowsiguard/pkg/archive"
	"github.com/MrCodeEU/drowsiguard/pkg/clock"
	"github.com/MrCodeEU/drowsiguard/pkg/identity"
	"github.com/MrCodeEU/drowsiguard/pkg/landmarks"
	"github.com/MrCodeEU/drowsiguard/pkg/logging"
	"github.com/MrCodeEU/drowsiguard/pkg/monitor"
	"github.com/MrCodeEU/drowsiguard/pkg/session"
	"github.com/MrCodeEU/drowsiguard/pkg/storage"
	"github.com/MrCodeEU/drowsiguard/pkg/web"
)

// maxPause caps the wait between frames in realtime mode so gaps in a
// recording do not stall the replay.
const maxPause = time.Second

var errNoFrames = errors.New("stream contained no frames")

// replayStats describes a finished replay.
type replayStats struct {
	Frames     int
	FaceFrames int
	Identity   *identity.Result
}

// replayer drives a pipeline from a frame stream. Session time follows the
// frame timestamps rather than the wall clock.
type replayer struct {
	pipeline *monitor.Pipeline
	clock    *clock.Manual
	verifier *identity.Verifier
	realtime bool
}

func newReplayer(opts ...monitor.Option) *replayer {
	clk := clock.NewManual(time.Time{})
	opts = append(opts, monitor.WithClock(clk))
	return &replayer{
		pipeline: monitor.New(cfg, opts...),
		clock:    clk,
	}
}

// run processes frames until the stream ends or ctx is cancelled, then stops
// the session and returns its report.
func (r *replayer) run(ctx context.Context, src *landmarks.Reader) (session.Report, replayStats, error) {
	log := logging.Component("replay")
	var stats replayStats
	var prev time.Time

	for ctx.Err() == nil {
		f, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			r.pipeline.StopSession()
			return session.Report{}, stats, err
		}

		if r.realtime && !prev.IsZero() {
			if err := pause(ctx, f.Timestamp.Sub(prev)); err != nil {
				break
			}
		}
		prev = f.Timestamp

		r.clock.Set(f.Timestamp)
		if stats.Frames == 0 {
			r.pipeline.StartSession()
		}
		stats.Frames++

		if f.HasFace() {
			stats.FaceFrames++
			if stats.Identity == nil && r.verifier != nil && r.verifier.Enrolled() {
				res := r.verifier.Verify(f.Landmarks)
				stats.Identity = &res
				entry := log.WithFields(logging.Fields{"match": res.Match, "mse": res.MSE})
				if res.Match {
					entry.Info("Driver verified")
				} else {
					entry.Warn("Driver does not match the enrolled profile")
				}
			}
		}

		r.pipeline.Process(f)
	}

	if stats.Frames == 0 {
		return session.Report{}, stats, errNoFrames
	}

	report, _ := r.pipeline.StopSession()
	return report, stats, nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if d > maxPause {
		d = maxPause
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	realtime := fs.Bool("realtime", false, "Pace frames by their timestamps")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("stream file required\nUsage: %s", commands["run"].Usage)
	}
	if err := setup(); err != nil {
		return err
	}

	var in io.Reader = os.Stdin
	if path := fs.Arg(0); path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open stream: %w", err)
		}
		defer file.Close()
		in = file
	}

	store, err := storage.NewFileStorage(cfg.Storage.DataDir, cfg.Storage.EncryptionEnabled)
	if err != nil {
		return err
	}

	verifier := identity.NewVerifier(cfg.Identity.MSEThreshold, store)
	switch profile, err := store.LoadProfile(); {
	case err == nil:
		verifier.SetProfile(profile)
	case errors.Is(err, storage.ErrProfileNotFound):
		logging.Component("cli").Info("No driver enrolled, skipping identity check")
	default:
		return err
	}

	var arch *archive.Archive
	if cfg.Archive.Enabled {
		if arch, err = archive.Open(cfg.Archive.Path); err != nil {
			return err
		}
		defer arch.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := newReplayer()
	r.verifier = verifier
	r.realtime = *realtime

	if cfg.Server.Enabled {
		var history web.History
		if arch != nil {
			history = arch
		}
		server := web.NewServer(cfg.Server.Listen, r.pipeline, history)
		server.StartAsync()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logging.Component("web").WithError(err).Warn("Shutdown failed")
			}
		}()
	}

	report, stats, err := r.run(ctx, landmarks.NewReader(in))
	if err != nil {
		return err
	}

	path, err := store.SaveReport(report)
	if err != nil {
		return err
	}
	if arch != nil {
		if err := arch.SaveReport(context.Background(), report); err != nil {
			logging.Component("archive").WithError(err).Error("Failed to archive session")
		}
	}

	printReport(report, stats)
	fmt.Printf("\nReport saved to %s\n", path)
	return nil
}

func printReport(r session.Report, stats replayStats) {
	s := r.Summary
	fmt.Println("Session Summary")
	fmt.Println("===============")
	fmt.Printf("  Session:       %s\n", s.SessionID)
	fmt.Printf("  Started:       %s\n", s.StartTime)
	fmt.Printf("  Duration:      %.1fs\n", s.Duration)
	fmt.Printf("  Frames:        %d (%d with a face)\n", stats.Frames, stats.FaceFrames)
	fmt.Printf("  Average FPS:   %.1f\n", s.AverageFPS)
	fmt.Println()
	fmt.Printf("  Drowsy:        %d events, %s\n", s.Counts.Drowsy, s.Times.DrowsyStr)
	fmt.Printf("  Distracted:    %d events, %s\n", s.Counts.Distracted, s.Times.DistractedStr)
	fmt.Printf("  Yawning:       %d events, %s\n", s.Counts.Yawn, s.Times.YawnStr)
	fmt.Println()
	fmt.Printf("  Score:         %d/100\n", s.Score)

	if stats.Identity != nil {
		status := "verified"
		if !stats.Identity.Match {
			status = "NOT the enrolled driver"
		}
		fmt.Printf("  Driver:        %s (mse %.4f)\n", status, stats.Identity.MSE)
	}
}
