package utils

import (
	"time"
)

var (
	// GlobalLocation 全局配置的时区
	GlobalLocation = time.UTC
)

// SetLocation 设置全局时区，空字符串表示 UTC
func SetLocation(name string) error {
	if name == "" {
		GlobalLocation = time.UTC
		return nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		if name == "UTC+8" {
			GlobalLocation = time.FixedZone("UTC+8", 8*60*60)
			return nil
		}
		return err
	}
	GlobalLocation = loc
	return nil
}

// ToConfiguredTimezone 将时间转换为配置的时区
func ToConfiguredTimezone(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.In(GlobalLocation)
}

// NowUTC 获取当前UTC时间
func NowUTC() time.Time {
	return time.Now().UTC()
}
