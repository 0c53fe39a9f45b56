package main

import (
	"errors"
	"fmt"

	"github.com/MrCodeEU/drowsiguard/pkg/identity"
	"github.com/MrCodeEU/drowsiguard/pkg/landmarks"
	"github.com/MrCodeEU/drowsiguard/pkg/logging"
	"github.com/MrCodeEU/drowsiguard/pkg/storage"
)

// loadFace reads a single-frame file and insists it contains a face.
func loadFace(path string) (landmarks.Set, error) {
	f, err := landmarks.LoadFrame(path)
	if err != nil {
		return nil, err
	}
	if !f.HasFace() {
		return nil, fmt.Errorf("no face in %s", path)
	}
	return f.Landmarks, nil
}

func openStorage() (*storage.FileStorage, error) {
	if err := setup(); err != nil {
		return nil, err
	}
	return storage.NewFileStorage(cfg.Storage.DataDir, cfg.Storage.EncryptionEnabled)
}

func cmdEnroll(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("frame file required\nUsage: %s", commands["enroll"].Usage)
	}

	points, err := loadFace(args[0])
	if err != nil {
		return err
	}
	store, err := openStorage()
	if err != nil {
		return err
	}

	if store.HasProfile() {
		fmt.Println("Replacing the existing driver profile.")
	}

	verifier := identity.NewVerifier(cfg.Identity.MSEThreshold, store)
	profile, err := verifier.Enroll(points)
	if err != nil {
		return err
	}

	fmt.Printf("Driver enrolled with %d landmarks.\n", len(profile.Signature))
	fmt.Printf("Profile saved to %s\n", store.ProfilePath())
	return nil
}

func cmdVerify(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("frame file required\nUsage: %s", commands["verify"].Usage)
	}

	points, err := loadFace(args[0])
	if err != nil {
		return err
	}
	store, err := openStorage()
	if err != nil {
		return err
	}

	profile, err := store.LoadProfile()
	if errors.Is(err, storage.ErrProfileNotFound) {
		return fmt.Errorf("no driver enrolled. Use 'drowsiguard enroll <frame.json>' first")
	}
	if err != nil {
		return err
	}

	verifier := identity.NewVerifier(cfg.Identity.MSEThreshold, nil)
	verifier.SetProfile(profile)
	res := verifier.Verify(points)

	logging.Component("cli").WithFields(logging.Fields{"match": res.Match, "mse": res.MSE}).Debug("Verification finished")

	if res.Match {
		fmt.Printf("Match (mse %.4f, threshold %.4f)\n", res.MSE, verifier.Threshold)
	} else {
		fmt.Printf("No match (mse %.4f, threshold %.4f)\n", res.MSE, verifier.Threshold)
	}
	return nil
}

func cmdForget(args []string) error {
	store, err := openStorage()
	if err != nil {
		return err
	}
	if err := store.DeleteProfile(); err != nil {
		if errors.Is(err, storage.ErrProfileNotFound) {
			fmt.Println("No driver enrolled.")
			return nil
		}
		return err
	}
	fmt.Println("Driver profile removed.")
	return nil
}
