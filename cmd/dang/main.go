package main

import (
	"log/slog"
	"net/http"
	"os"

	_ "net/http/pprof" // profiling

	"github.com/pkg/profile"

	"dang/internal/dang/cmd"
	"dang/internal/dang/log"
)

func main() {
	os.Exit(run())
}

func run() (code int) {
	defer log.RecoverPanic("main", func() {
		slog.Error("Application terminated due to unhandled panic")
		code = 2
	})

	if os.Getenv("DANG_PROFILE") != "" {
		go func() {
			slog.Info("Serving pprof at localhost:6060")
			if httpErr := http.ListenAndServe("localhost:6060", nil); httpErr != nil {
				slog.Error("Failed to pprof listen", "error", httpErr)
			}
		}()
	}

	// DANG_CPUPROFILE names the directory cpu.pprof is written to.
	if dir := os.Getenv("DANG_CPUPROFILE"); dir != "" {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(dir), profile.NoShutdownHook, profile.Quiet).Stop()
	}

	return cmd.Execute()
}
