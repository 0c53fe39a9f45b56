package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/MrCodeEU/drowsiguard/pkg/config"
	"github.com/MrCodeEU/drowsiguard/pkg/logging"
)

const version = "0.1.0"

// Command represents a CLI command.
type Command struct {
	Name        string
	Description string
	Usage       string
	Run         func(args []string) error
}

var (
	cfg      *config.Config
	commands map[string]*Command
)

var commandOrder = []string{"run", "enroll", "verify", "forget", "reports", "config", "version", "help"}

func init() {
	commands = map[string]*Command{
		"run": {
			Name:        "run",
			Description: "Monitor a recorded landmark stream (JSON Lines, - for stdin)",
			Usage:       "drowsiguard run [-realtime] <frames.jsonl>",
			Run:         cmdRun,
		},
		"enroll": {
			Name:        "enroll",
			Description: "Enroll the driver's face signature from one frame",
			Usage:       "drowsiguard enroll <frame.json>",
			Run:         cmdEnroll,
		},
		"verify": {
			Name:        "verify",
			Description: "Check one frame against the enrolled driver",
			Usage:       "drowsiguard verify <frame.json>",
			Run:         cmdVerify,
		},
		"forget": {
			Name:        "forget",
			Description: "Remove the enrolled driver profile",
			Usage:       "drowsiguard forget",
			Run:         cmdForget,
		},
		"reports": {
			Name:        "reports",
			Description: "List session reports, or show one",
			Usage:       "drowsiguard reports [name]",
			Run:         cmdReports,
		},
		"config": {
			Name:        "config",
			Description: "Show current configuration",
			Usage:       "drowsiguard config",
			Run:         cmdConfig,
		},
		"version": {
			Name:        "version",
			Description: "Show version information",
			Usage:       "drowsiguard version",
			Run:         cmdVersion,
		},
		"help": {
			Name:        "help",
			Description: "Show help information",
			Usage:       "drowsiguard help [command]",
			Run:         cmdHelp,
		},
	}
}

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	args := flag.Args()

	var err error
	if *configFile != "" {
		if cfg, err = config.Load(*configFile); err == nil {
			cfg.ApplyEnv()
		}
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.DefaultConfig()
	}

	cfg.ExpandPaths()

	logLevel := cfg.Logging.Level
	if *debug {
		logLevel = "debug"
	}
	if err := logging.Init(logLevel, cfg.Logging.File, cfg.Logging.Format); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not initialize file logging: %v\n", err)
	}

	logging.Debugf("drowsiguard v%s starting", version)
	logging.Debugf("Config loaded, data dir: %s", cfg.Storage.DataDir)

	if len(args) < 1 {
		printUsage()
		os.Exit(0)
	}

	cmdName := args[0]
	cmd, ok := commands[cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmdName)
		printUsage()
		os.Exit(1)
	}

	if err := cmd.Run(args[1:]); err != nil {
		logging.WithError(err).Errorf("Command '%s' failed", cmdName)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("drowsiguard - Driver drowsiness and distraction monitor")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Usage: drowsiguard [options] <command> [arguments]")
	fmt.Println("\nOptions:")
	fmt.Println("  -config <file>   Path to configuration file")
	fmt.Println("  -debug           Enable debug logging")
	fmt.Println("\nCommands:")
	for _, name := range commandOrder {
		cmd := commands[name]
		fmt.Printf("  %-12s %s\n", cmd.Name, cmd.Description)
	}
	fmt.Println("\nExamples:")
	fmt.Println("  drowsiguard enroll me.json            # Enroll from a single frame")
	fmt.Println("  drowsiguard run drive.jsonl           # Replay a recorded drive")
	fmt.Println("  mesh-provider | drowsiguard run -     # Monitor a live stream")
	fmt.Println("\nRun 'drowsiguard help <command>' for more information on a command.")
}

// setup validates the configuration and creates the data directories.
func setup() error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	return nil
}

func cmdConfig(args []string) error {
	logging.Component("cli").Debug("Showing configuration")

	fmt.Println("Current Configuration:")
	fmt.Println("======================")
	fmt.Println()
	fmt.Println("[Camera]")
	fmt.Printf("  Resolution:      %dx%d @ %d FPS\n", cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.FPS)
	fmt.Println()
	fmt.Println("[Detection]")
	fmt.Printf("  EAR Threshold:   %.2f over %d frames\n", cfg.Detection.EARThreshold, cfg.Detection.EARFrames)
	fmt.Printf("  MAR Threshold:   %.2f over %d frames\n", cfg.Detection.MARThreshold, cfg.Detection.MARFrames)
	fmt.Printf("  Blink Debounce:  %s\n", cfg.Detection.BlinkDebounce)
	fmt.Printf("  Blink Window:    %s\n", cfg.Detection.BlinkWindow)
	fmt.Println()
	fmt.Println("[Distraction]")
	fmt.Printf("  Max Pitch:       %.0f°\n", cfg.Distraction.MaxPitch)
	fmt.Printf("  Max Yaw:         %.0f°\n", cfg.Distraction.MaxYaw)
	fmt.Println()
	fmt.Println("[Identity]")
	fmt.Printf("  MSE Threshold:   %.3f\n", cfg.Identity.MSEThreshold)
	fmt.Println()
	fmt.Println("[Session]")
	fmt.Printf("  Event Policy:    %s\n", cfg.Session.EventPolicy)
	fmt.Println()
	fmt.Println("[Storage]")
	fmt.Printf("  Data Dir:        %s\n", cfg.Storage.DataDir)
	fmt.Printf("  Encryption:      %t\n", cfg.Storage.EncryptionEnabled)
	fmt.Println()
	fmt.Println("[Archive]")
	fmt.Printf("  Enabled:         %t\n", cfg.Archive.Enabled)
	fmt.Printf("  Path:            %s\n", cfg.Archive.Path)
	fmt.Println()
	fmt.Println("[Server]")
	fmt.Printf("  Enabled:         %t\n", cfg.Server.Enabled)
	fmt.Printf("  Listen:          %s\n", cfg.Server.Listen)
	fmt.Println()
	fmt.Println("[Logging]")
	fmt.Printf("  Level:           %s\n", cfg.Logging.Level)
	fmt.Printf("  Format:          %s\n", cfg.Logging.Format)
	fmt.Printf("  File:            %s\n", cfg.Logging.File)

	if err := cfg.Validate(); err != nil {
		fmt.Printf("\nWarning: %v\n", err)
	}
	return nil
}

func cmdVersion(args []string) error {
	fmt.Printf("drowsiguard v%s\n", version)
	fmt.Println("Driver drowsiness and distraction monitor")
	fmt.Println()
	fmt.Println("Build Information:")
	fmt.Printf("  Go version: %s\n", runtime.Version())
	fmt.Printf("  Platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
	return nil
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		printUsage()
		return nil
	}

	cmdName := args[0]
	cmd, ok := commands[cmdName]
	if !ok {
		return fmt.Errorf("unknown command: %s", cmdName)
	}

	fmt.Printf("Command: %s\n", cmd.Name)
	fmt.Printf("Description: %s\n", cmd.Description)
	fmt.Printf("Usage: %s\n", cmd.Usage)

	switch cmdName {
	case "run":
		fmt.Println("\nInput Format:")
		fmt.Println("  One JSON object per line:")
		fmt.Println(`  {"ts_ms": 1719813600000, "width": 640, "height": 480, "landmarks": [[x, y, z], ...]}`)
		fmt.Println("  landmarks are normalized to [0,1] and may be null when no face was found.")
		fmt.Println("\nOptions:")
		fmt.Println("  -realtime   Pace frames by their timestamps")
		fmt.Println("\nThe report is written to the data directory when the stream ends or on Ctrl-C.")
	case "enroll", "verify":
		fmt.Println("\nThe frame file holds a single frame in the stream format.")
		fmt.Println("Look straight at the camera with a neutral expression when capturing it.")
	case "config":
		fmt.Println("\nConfiguration Locations:")
		fmt.Println("  System: /etc/drowsiguard/drowsiguard.yaml")
		fmt.Println("  User:   ~/.config/drowsiguard/drowsiguard.yaml")
		fmt.Println("\nEnvironment (also read from ./.env):")
		fmt.Println("  DROWSIGUARD_LOG_LEVEL, DROWSIGUARD_DATA_DIR, DROWSIGUARD_LISTEN")
		fmt.Println("\nUse -config flag to specify a custom config file.")
	}

	return nil
}
