package nanokrnl

import "time"

// duration 支持 "1ms" 这样的 TOML 字符串
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}
