package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"rgbdtum/internal/catalog"
	"rgbdtum/internal/config"
	"rgbdtum/internal/engine"
	"rgbdtum/internal/logging"
	"rgbdtum/internal/session"
	"rgbdtum/internal/store"
	"rgbdtum/internal/viz"
)

func newRunCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run <vocabulary> <settings> <sequence_dir> <association_file>",
		Short: "Replay an RGB-D sequence through the tracking engine",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, cctx, args)
		},
	}
}

func runReplay(cmd *cobra.Command, cctx *commandContext, args []string) error {
	cfg, err := cctx.ensureConfig()
	if err != nil {
		return err
	}

	vocabularyPath, err := config.ExpandPath(args[0])
	if err != nil {
		return fmt.Errorf("vocabulary path: %w", err)
	}
	settingsPath, err := config.ExpandPath(args[1])
	if err != nil {
		return fmt.Errorf("settings path: %w", err)
	}
	sequenceDir, err := config.ExpandPath(args[2])
	if err != nil {
		return fmt.Errorf("sequence directory: %w", err)
	}
	associationPath, err := config.ExpandPath(args[3])
	if err != nil {
		return fmt.Errorf("association file: %w", err)
	}
	cfg.Engine.Vocabulary = vocabularyPath
	cfg.Engine.Settings = settingsPath

	logger, err := logging.New(logging.Options{
		Level:            cfg.Logging.Level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", filepath.Join(cfg.Paths.LogDir, "rgbdtum.log")},
		ErrorOutputPaths: []string{"stderr"},
	})
	if err != nil {
		return err
	}

	settings, err := engine.LoadSettings(settingsPath, cfg.Engine.DepthScale)
	if err != nil {
		return err
	}

	cat, err := catalog.Load(associationPath, sequenceDir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Images in the sequence: %d\n\n", cat.Len())

	eng, err := engine.NewOdometry(vocabularyPath, settings, logger,
		engine.WithKeyframeMinTranslation(cfg.Engine.KeyframeMinTranslation))
	if err != nil {
		return err
	}

	sessions, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer sessions.Close()

	opts := []session.Option{session.WithStore(sessions)}
	if cfg.Viewer.Enabled {
		interval := time.Duration(cfg.Viewer.RefreshIntervalMS) * time.Millisecond
		opts = append(opts, session.WithViewer(viz.New(interval, logger)))
	}
	ctrl := session.New(cfg, eng, cat, logger, opts...)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	watchExitKey(cancel)

	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	runErr := ctrl.AwaitCompletion()

	// Finalize with a fresh context so a cancelled replay still shuts the
	// engine down and persists its partial trajectory.
	result, err := ctrl.Finalize(context.Background())
	if err != nil {
		return errors.Join(runErr, err)
	}

	fmt.Fprintf(out, "Saved camera trajectory to %s\n", result.CameraTrajectoryPath)
	fmt.Fprintf(out, "Saved keyframe trajectory to %s\n", result.KeyframeTrajectoryPath)
	fmt.Fprintf(out, "Tracked %d frames, %d keyframes\n", result.FramesTracked, result.Keyframes)
	return runErr
}

// watchExitKey cancels the replay when the user presses q or Enter on an
// interactive terminal. Off a terminal stdin is left alone.
func watchExitKey(cancel context.CancelFunc) {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return
	}
	go func() {
		reader := bufio.NewReader(os.Stdin)
		for {
			b, err := reader.ReadByte()
			if err != nil {
				return
			}
			if b == 'q' || b == 'Q' || b == '\n' {
				cancel()
				return
			}
		}
	}()
}
