package nanokrnl

import (
	"github.com/BurntSushi/toml"
	"github.com/lonng/nanokrnl/internal/log"
	"github.com/pingcap/errors"
)

// fileConfig TOML 配置文件的结构
//
//	clock_interval = "1ms"
//	debug = false
//
//	[kernel]
//	tick_increment = 10000
//	table_size = 32
//	visit_budget = 24
//	active_budget = 4
//	debug_kernel = false
//	host_time_offset = 0
type fileConfig struct {
	ClockInterval duration `toml:"clock_interval"`
	Debug         bool     `toml:"debug"`
	Kernel        toml.Primitive `toml:"kernel"`
}

// LoadConfig 从 TOML 文件加载配置到 opt, 文件中没有出现的项保持原值
func LoadConfig(path string, opt *Options) error {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return errors.Annotatef(err, "load config %s", path)
	}
	if md.IsDefined("kernel") {
		if err := md.PrimitiveDecode(fc.Kernel, &opt.Config); err != nil {
			return errors.Annotatef(err, "decode [kernel] in %s", path)
		}
	}
	if md.IsDefined("clock_interval") {
		if fc.ClockInterval.Duration <= 0 {
			return errors.Errorf("clock_interval in %s must be positive", path)
		}
		opt.ClockInterval = fc.ClockInterval.Duration
	}
	if fc.Debug {
		WithDebugMode()(opt)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		log.Info("Kernel config %v has unknown keys %v.", path, undecoded)
	}
	return opt.Config.Validate()
}
