package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	unsampledBand = zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= zapcore.ErrorLevel })
	sampledBand   = zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l < zapcore.ErrorLevel })
)

// newSampledCore thins repeats of the same message below Error. Error and
// above pass untouched: a failed restore or a broken formatter is always
// reported. Every dropped entry is handed to cfg.OnDrop.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}

	var opts []zapcore.SamplerOption
	if cfg.OnDrop != nil {
		opts = append(opts, zapcore.SamplerHook(func(ent zapcore.Entry, dec zapcore.SamplingDecision) {
			if dec&zapcore.LogDropped != 0 {
				cfg.OnDrop(ent)
			}
		}))
	}

	sampled := zapcore.NewSamplerWithOptions(
		&bandCore{Core: core, band: sampledBand},
		cfg.Tick.Duration(), cfg.Initial, cfg.Thereafter, opts...)
	return zapcore.NewTee(&bandCore{Core: core, band: unsampledBand}, sampled)
}

// bandCore restricts a core to the levels band enables.
type bandCore struct {
	zapcore.Core
	band zapcore.LevelEnabler
}

func (c *bandCore) Enabled(l zapcore.Level) bool {
	return c.band.Enabled(l) && c.Core.Enabled(l)
}

func (c *bandCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.band.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *bandCore) With(fields []zapcore.Field) zapcore.Core {
	return &bandCore{Core: c.Core.With(fields), band: c.band}
}
