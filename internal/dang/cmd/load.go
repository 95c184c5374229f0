package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"

	"dang/internal/config"
	"dang/internal/elfx"
	"dang/internal/replay"
	"dang/internal/signals"
	"dang/internal/wave"
)

// session is everything a replay needs, loaded from one configuration.
type session struct {
	cfg     *config.Config
	wave    *wave.Waveform
	mapping *signals.Mapping
	image   *elfx.Image
	waver   *replay.Waver
}

func (s *session) Close() {
	if s.waver != nil {
		s.waver.Close()
	}
	if s.image != nil {
		s.image.Close()
	}
}

// loadWaveform opens the waveform at path, drawing a byte progress bar on
// progress unless it is nil.
func loadWaveform(path string, progress io.Writer) (*wave.Waveform, error) {
	var opts []wave.Option
	if progress != nil {
		if fi, err := os.Stat(path); err == nil {
			bar := progressbar.NewOptions64(fi.Size(),
				progressbar.OptionSetDescription("Loading "+filepath.Base(path)),
				progressbar.OptionSetWriter(progress),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowBytes(true),
				progressbar.OptionThrottle(65*time.Millisecond),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(progress)
				}),
			)
			defer bar.Finish()
			opts = append(opts, wave.WithProgress(bar))
		}
	}

	start := time.Now()
	wf, err := wave.Open(path, opts...)
	if err != nil {
		return nil, err
	}
	slog.Info("Loaded waveform",
		"path", path,
		"signals", wf.SignalCount(),
		"time_indices", len(wf.TimeTable()),
		"timescale", wf.Timescale.String(),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return wf, nil
}

// openSession loads the waveform, mapping and ELF named by cfg and
// positions a replay at the program's first pc.
func openSession(cfg *config.Config, progress io.Writer) (*session, error) {
	if err := cfg.RequireWave(); err != nil {
		return nil, err
	}
	if err := cfg.RequireELF(); err != nil {
		return nil, err
	}

	s := &session{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	var err error
	if s.mapping, err = cfg.Wave.LoadMapping(); err != nil {
		return nil, err
	}
	if s.wave, err = loadWaveform(cfg.Wave.Path, progress); err != nil {
		return nil, err
	}
	sigs, err := signals.ResolveMapping[*wave.Signal](s.wave, s.mapping)
	if err != nil {
		return nil, fmt.Errorf("mapping %s: %w", s.mapping.Name, err)
	}
	waves, err := replay.NewWaves(s.wave, sigs)
	if err != nil {
		return nil, fmt.Errorf("mapping %s: %w", s.mapping.Name, err)
	}

	if s.image, err = elfx.Open(cfg.ELF.Path); err != nil {
		return nil, err
	}
	mem, err := s.image.Memory()
	if err != nil {
		return nil, err
	}

	firstPC, set, err := cfg.Runtime.ParseFirstPC()
	if err != nil {
		return nil, err
	}
	if !set {
		firstPC = s.image.FirstPC()
	}

	elfPath, err := filepath.Abs(cfg.ELF.Path)
	if err != nil {
		elfPath = cfg.ELF.Path
	}
	s.waver, err = replay.New(waves, mem, replay.Options{
		FirstPC:      firstPC,
		ELFPath:      elfPath,
		Symbols:      s.image,
		PollInterval: cfg.Runtime.PollInterval,
		CacheSize:    cfg.Runtime.CacheSize,
	})
	if err != nil {
		return nil, err
	}
	ok = true
	return s, nil
}
