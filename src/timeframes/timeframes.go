package timeframes

import (
	"fmt"
	"time"
)

// Timeframe K线刻度，原生数据为1分钟，其余由1分钟重采样得到
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe2m  Timeframe = "2m"
	Timeframe3m  Timeframe = "3m"
	Timeframe5m  Timeframe = "5m"
	Timeframe10m Timeframe = "10m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
)

var scales = map[Timeframe]int{
	Timeframe1m:  1,
	Timeframe2m:  2,
	Timeframe3m:  3,
	Timeframe5m:  5,
	Timeframe10m: 10,
	Timeframe15m: 15,
	Timeframe30m: 30,
	Timeframe1h:  60,
}

// Scale 返回刻度对应的分钟数
func (tf Timeframe) Scale() (int, error) {
	n, ok := scales[tf]
	if !ok {
		return 0, fmt.Errorf("unsupported timeframe: %s", tf)
	}
	return n, nil
}

// GetDuration 获取刻度对应的Duration
func (tf Timeframe) GetDuration() (time.Duration, error) {
	n, err := tf.Scale()
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Minute, nil
}

func (tf Timeframe) String() string {
	return string(tf)
}

// IsValid 检查刻度是否有效
func (tf Timeframe) IsValid() bool {
	_, ok := scales[tf]
	return ok
}

// ParseTimeframe 解析刻度字符串
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if !tf.IsValid() {
		return "", fmt.Errorf("invalid timeframe: %s", s)
	}
	return tf, nil
}

// FromScale 由分钟数得到刻度
func FromScale(minutes int) (Timeframe, error) {
	for tf, n := range scales {
		if n == minutes {
			return tf, nil
		}
	}
	return "", fmt.Errorf("no timeframe for scale %d", minutes)
}

// GetAllTimeframes 获取所有支持的刻度，按分钟数升序
func GetAllTimeframes() []Timeframe {
	return []Timeframe{
		Timeframe1m,
		Timeframe2m,
		Timeframe3m,
		Timeframe5m,
		Timeframe10m,
		Timeframe15m,
		Timeframe30m,
		Timeframe1h,
	}
}

// NativeInterval 历史回补统一按1分钟拉取
const NativeInterval = "1m"
