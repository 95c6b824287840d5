// Package conf is the adapted teacher ini-backed config loader: instead
// of a MySQL server's session/protocol settings, Cfg carries the handle
// API's own tunables (§6 config()/PageSize/BlockSizeKB/Safety/...) so an
// embedder or cmd/lsmctl can point at one ini file instead of building a
// long lsm.Option list by hand.
package conf

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/ini.v1"

	"github.com/tidalstore/lsmtree/internal/compress"
	"github.com/tidalstore/lsmtree/internal/errs"
	"github.com/tidalstore/lsmtree/internal/walog"
)

/*
[lsmtree]
page_size          = 4096
block_size_kb      = 1024
safety             = normal
auto_flush_kb      = 1024
auto_merge         = 4
auto_work          = true
use_log            = true
max_freelist       = 24
multiple_processes = true
auto_checkpoint_kb = 2048
compression        = none
*/

// Cfg is the decoded [lsmtree] section plus the raw *ini.File it came
// from, for callers that need a setting this package doesn't surface.
type Cfg struct {
	Raw *ini.File

	PageSize          uint32
	BlockSizeKB       uint32
	Safety            walog.Safety
	AutoFlushKB       int
	AutoMerge         int
	AutoWork          bool
	UseLog            bool
	MaxFreelist       int
	MultipleProcesses bool
	AutoCheckpointKB  int
	Compression       uint8

	loadTimeout time.Duration
}

// Default returns the handle API's own defaults (§6), expressed as a Cfg
// rather than an lsm.Config so this package has no import-cycle on lsm.
func Default() *Cfg {
	return &Cfg{
		Raw:               ini.Empty(),
		PageSize:          4096,
		BlockSizeKB:       1024,
		Safety:            walog.SafetyNormal,
		AutoFlushKB:       1024,
		AutoMerge:         4,
		AutoWork:          true,
		UseLog:            true,
		MaxFreelist:       24,
		MultipleProcesses: true,
		AutoCheckpointKB:  2048,
		Compression:       compress.IDNone,
		loadTimeout:       5 * time.Second,
	}
}

// Load reads path as an ini file and decodes its [lsmtree] section over
// Default's values; a section or key absent from the file keeps its
// default rather than erroring, matching the teacher's MustString/
// MustInt "tolerant key" pattern but without the teacher's os.Exit calls
// (a library func must return errors, not terminate the process).
func Load(path string) (*Cfg, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errs.Wrap(errs.CantOpen, err, "conf: stat config file")
	}
	raw, err := ini.Load(path)
	if err != nil {
		return nil, errs.Wrap(errs.CantOpen, err, "conf: parse config file")
	}

	cfg := Default()
	cfg.Raw = raw
	sec := raw.Section("lsmtree")

	cfg.PageSize = uint32(sec.Key("page_size").MustUint(uint(cfg.PageSize)))
	cfg.BlockSizeKB = uint32(sec.Key("block_size_kb").MustUint(uint(cfg.BlockSizeKB)))
	cfg.AutoFlushKB = sec.Key("auto_flush_kb").MustInt(cfg.AutoFlushKB)
	cfg.AutoMerge = sec.Key("auto_merge").MustInt(cfg.AutoMerge)
	cfg.AutoWork = sec.Key("auto_work").MustBool(cfg.AutoWork)
	cfg.UseLog = sec.Key("use_log").MustBool(cfg.UseLog)
	cfg.MaxFreelist = sec.Key("max_freelist").MustInt(cfg.MaxFreelist)
	cfg.MultipleProcesses = sec.Key("multiple_processes").MustBool(cfg.MultipleProcesses)
	cfg.AutoCheckpointKB = sec.Key("auto_checkpoint_kb").MustInt(cfg.AutoCheckpointKB)

	if safety := sec.Key("safety").String(); safety != "" {
		s, err := parseSafety(safety)
		if err != nil {
			return nil, err
		}
		cfg.Safety = s
	}
	if comp := sec.Key("compression").String(); comp != "" {
		c, err := parseCompression(comp)
		if err != nil {
			return nil, err
		}
		cfg.Compression = c
	}
	return cfg, nil
}

func parseSafety(s string) (walog.Safety, error) {
	switch s {
	case "off":
		return walog.SafetyOff, nil
	case "normal":
		return walog.SafetyNormal, nil
	case "full":
		return walog.SafetyFull, nil
	default:
		return 0, errs.New(errs.Misuse, fmt.Sprintf("conf: unknown safety level %q", s))
	}
}

func parseCompression(s string) (uint8, error) {
	switch s {
	case "none":
		return compress.IDNone, nil
	case "snappy":
		return compress.IDSnappy, nil
	case "lz4":
		return compress.IDLZ4, nil
	default:
		return 0, errs.New(errs.Misuse, fmt.Sprintf("conf: unknown compression codec %q", s))
	}
}
