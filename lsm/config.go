package lsm

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tidalstore/lsmtree/internal/compress"
	"github.com/tidalstore/lsmtree/internal/walog"
	"github.com/tidalstore/lsmtree/logger"
)

// Config collects every handle-API config() option (§6): some are only
// honored at Open time (PageSize, BlockSizeKB, the compression
// selection), the rest remain mutable for the life of the
// handle via DB.SetConfig. The split mirrors the spec's own "set only
// before open" annotations rather than being a Go-specific choice.
type Config struct {
	// AutoFlushKB is the KiB of live tree data that triggers make-old
	// (moving the tree to a flushable old-tree) on the write path.
	AutoFlushKB int
	// PageSize must be a power of two in [256, 65536]. Before open only.
	PageSize uint32
	// BlockSizeKB must be a power of two KiB count in [64, 65536]. Before
	// open only.
	BlockSizeKB uint32
	// Safety is 0 (off), 1 (normal, fsync on commit) or 2 (full, fsync +
	// sector-pad every commit).
	Safety walog.Safety
	// AutoWork runs Work automatically once AutoMerge segments pile up
	// in a level.
	AutoWork bool
	// MmapKB is the mmap window cap in KiB (0 meaning no mmap). Open does
	// not consult it; the pager always reads and writes through the file.
	MmapKB int
	// UseLog toggles the write-ahead log. Disabling it trades durability
	// for throughput; recovery finds nothing to replay.
	UseLog bool
	// AutoMerge is the minimum number of segments in a level that
	// triggers a merge; must be >= 2.
	AutoMerge int
	// MaxFreelist is the free-block list bound, a testing knob. It is
	// stored and readable through GetConfig; nothing enforces it.
	MaxFreelist int
	// MultipleProcesses declares whether other processes may open the
	// same file concurrently; see processRegistry in registry.go, which
	// is what actually lets two in-process Open calls against the same
	// path share one handle instead of racing (§9 Design Notes).
	MultipleProcesses bool
	// AutoCheckpointKB is the KiB-between-automatic-checkpoints setting.
	// It is stored and readable through GetConfig; no checkpoint is taken
	// automatically.
	AutoCheckpointKB int
	// CompressionID selects the active compression codec. Read only at
	// Open; DB has no method that changes it afterwards.
	CompressionID uint8
	// CompressionFactory supplies an extra codec beyond none/snappy/lz4.
	// Open calls it once and registers the codec it returns; it is not
	// called on a MISMATCH.
	CompressionFactory compress.Factory
	// ReadOnly is recorded but Open does not consult it: the log and
	// pager are opened writable either way.
	ReadOnly bool

	env             Env
	metricsRegistry *prometheus.Registry
	logConfig       logger.LogConfig
}

// Option configures a Config passed to Open.
type Option func(*Config)

func defaultMmapKB() int {
	if strconv.IntSize == 64 {
		return 1024 * 1024
	}
	return 32768
}

// DefaultConfig returns the handle API's documented defaults (§6).
func DefaultConfig() Config {
	return Config{
		AutoFlushKB:       1024,
		PageSize:          4096,
		BlockSizeKB:       1024,
		Safety:            walog.SafetyNormal,
		AutoWork:          true,
		MmapKB:            defaultMmapKB(),
		UseLog:            true,
		AutoMerge:         4,
		MaxFreelist:       24,
		MultipleProcesses: true,
		AutoCheckpointKB:  2048,
		CompressionID:     compress.IDNone,
	}
}

func WithAutoFlushKB(n int) Option       { return func(c *Config) { c.AutoFlushKB = n } }
func WithPageSize(n uint32) Option       { return func(c *Config) { c.PageSize = n } }
func WithBlockSizeKB(n uint32) Option    { return func(c *Config) { c.BlockSizeKB = n } }
func WithSafety(s walog.Safety) Option   { return func(c *Config) { c.Safety = s } }
func WithAutoWork(b bool) Option         { return func(c *Config) { c.AutoWork = b } }
func WithMmapKB(n int) Option            { return func(c *Config) { c.MmapKB = n } }
func WithUseLog(b bool) Option           { return func(c *Config) { c.UseLog = b } }
func WithAutoMerge(n int) Option {
	return func(c *Config) {
		if n < 2 {
			n = 2
		}
		c.AutoMerge = n
	}
}
func WithMaxFreelist(n int) Option          { return func(c *Config) { c.MaxFreelist = n } }
func WithMultipleProcesses(b bool) Option   { return func(c *Config) { c.MultipleProcesses = b } }
func WithAutoCheckpointKB(n int) Option     { return func(c *Config) { c.AutoCheckpointKB = n } }
func WithCompression(id uint8) Option       { return func(c *Config) { c.CompressionID = id } }
func WithCompressionFactory(f compress.Factory) Option {
	return func(c *Config) { c.CompressionFactory = f }
}
func WithReadOnly(b bool) Option { return func(c *Config) { c.ReadOnly = b } }

// WithEnv injects a capability trait, normally internal/memenv's
// deterministic double in tests, in place of the real OS-backed Env.
func WithEnv(e Env) Option { return func(c *Config) { c.env = e } }

// WithMetricsRegistry scopes this DB's prometheus collectors to reg
// instead of a private per-DB registry, letting an embedder scrape
// several open handles through one /metrics endpoint.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(c *Config) { c.metricsRegistry = reg }
}

// WithLogging configures the adapted teacher logger package used by
// every subsystem this handle drives.
func WithLogging(lc logger.LogConfig) Option {
	return func(c *Config) { c.logConfig = lc }
}

// ConfigOpt names one of the handle API's runtime-mutable config()
// options (§6); PageSize/BlockSizeKB/MmapKB/ReadOnly/CompressionID are
// deliberately absent here since the spec fixes them before open.
type ConfigOpt int

const (
	OptAutoFlush ConfigOpt = iota
	OptAutoWork
	OptUseLog
	OptAutoMerge
	OptMaxFreelist
	OptMultipleProcesses
	OptAutoCheckpoint
)

// GetConfig reads the current value of a runtime-mutable option.
func (db *DB) GetConfig(opt ConfigOpt) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	switch opt {
	case OptAutoFlush:
		return db.cfg.AutoFlushKB, nil
	case OptAutoWork:
		return boolToInt(db.cfg.AutoWork), nil
	case OptUseLog:
		return boolToInt(db.cfg.UseLog), nil
	case OptAutoMerge:
		return db.cfg.AutoMerge, nil
	case OptMaxFreelist:
		return db.cfg.MaxFreelist, nil
	case OptMultipleProcesses:
		return boolToInt(db.cfg.MultipleProcesses), nil
	case OptAutoCheckpoint:
		return db.cfg.AutoCheckpointKB, nil
	default:
		return 0, misuseErr("unknown config option")
	}
}

// SetConfig changes one of the runtime-mutable options, taking effect on
// the next write or work/flush/checkpoint call.
func (db *DB) SetConfig(opt ConfigOpt, v int) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	switch opt {
	case OptAutoFlush:
		db.cfg.AutoFlushKB = v
	case OptAutoWork:
		db.cfg.AutoWork = v != 0
	case OptUseLog:
		db.cfg.UseLog = v != 0
	case OptAutoMerge:
		if v < 2 {
			return misuseErr("AUTOMERGE must be >= 2")
		}
		db.cfg.AutoMerge = v
	case OptMaxFreelist:
		db.cfg.MaxFreelist = v
	case OptMultipleProcesses:
		db.cfg.MultipleProcesses = v != 0
	case OptAutoCheckpoint:
		db.cfg.AutoCheckpointKB = v
	default:
		return misuseErr("unknown config option")
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
