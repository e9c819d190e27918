package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"runtime"
	"sync"

	"github.com/m3rciful/cozybot/core/buildinfo"
	coreconfig "github.com/m3rciful/cozybot/core/config"
)

// Component names used across the bot. Keeping them here keeps log queries stable.
const (
	CompApp     = "app"
	CompTG      = "tg"
	CompWire    = "tg.wire"
	CompSender  = "tg.sender"
	CompDB      = "db"
	CompMigrate = "db.migrate"
	CompFAQ     = "faq"
	CompAI      = "ai"
	CompLeads   = "leads"
	CompChat    = "chat"
	CompMetrics = "metrics"
)

var (
	initOnce sync.Once
	stopOnce sync.Once

	sink    *asyncWriter
	closers []io.Closer

	levelVar slog.LevelVar

	debugSampler  = newRatioSampler(1, 50)
	traceOverride bool

	// L is the process-wide structured logger. It stays nil until InitLogger
	// runs, and every helper in this package is a no-op while it is nil.
	L *slog.Logger
)

// InitLogger configures the global structured logger. Only the first call has an effect.
func InitLogger(cfg *coreconfig.Config) error {
	var initErr error
	initOnce.Do(func() {
		opts := resolveOptions(cfg)
		levelVar.Set(opts.level)
		debugSampler.Set(opts.sampleNum, opts.sampleDen)
		traceOverride = detectTraceFlag()

		outputs, cs, err := openOutputs(opts)
		if err != nil {
			initErr = err
			return
		}
		closers = cs
		sink = newAsyncWriter(outputs, 64*1024)

		L = slog.New(newStructuredHandler(handlerConfig{
			level:    &levelVar,
			writer:   sink,
			format:   opts.format,
			keyOrder: opts.keyOrder,
		}))
		slog.SetDefault(L)

		Info(context.Background(), CompApp, "startup",
			slog.String("go_version", runtime.Version()),
			slog.String("build_version", buildinfo.Version),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("build_time", buildinfo.Date),
			slog.String("cfg_profile", opts.profile),
		)
	})
	return initErr
}

// Shutdown flushes buffered log output and closes opened sinks.
func Shutdown() error {
	var errs []error
	stopOnce.Do(func() {
		if sink != nil {
			errs = append(errs, sink.Flush(), sink.Close())
		}
		for _, c := range closers {
			errs = append(errs, c.Close())
		}
	})
	return errors.Join(errs...)
}
