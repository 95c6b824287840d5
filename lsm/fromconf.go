package lsm

import "github.com/tidalstore/lsmtree/server/conf"

// OptionsFromConf turns an ini-loaded conf.Cfg (server/conf) into the
// equivalent Open options, so an embedder can point lsmctl or its own
// main at one config file instead of building an Option list by hand.
func OptionsFromConf(c *conf.Cfg) []Option {
	return []Option{
		WithPageSize(c.PageSize),
		WithBlockSizeKB(c.BlockSizeKB),
		WithSafety(c.Safety),
		WithAutoFlushKB(c.AutoFlushKB),
		WithAutoMerge(c.AutoMerge),
		WithAutoWork(c.AutoWork),
		WithUseLog(c.UseLog),
		WithMaxFreelist(c.MaxFreelist),
		WithMultipleProcesses(c.MultipleProcesses),
		WithAutoCheckpointKB(c.AutoCheckpointKB),
		WithCompression(c.Compression),
	}
}
