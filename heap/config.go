package heap

import (
	"github.com/pkg/errors"

	"github.com/flswld/bridged/mem"
	"github.com/flswld/bridged/object"
	"github.com/flswld/bridged/roots"
)

const (
	DefaultMaxHeapSize = 1 * mem.GB
	DefaultSegmentSize = 1 * mem.MB
)

// RootScanner is implemented by the host and enumerates every reference held
// by execution state.
type RootScanner = roots.Scanner

// Safepoint is the host's mechanism to suspend and resume all mutators.
type Safepoint interface {
	Synchronize()
	Resume()
}

type Config struct {
	MaxHeapSize    uint64          // 最大堆大小 限制mutator持有的chunk总大小 0使用默认值
	UseLargePages  bool            // 使用大页 影响堆对齐
	SegmentSize    uint64          // chunk默认大小 0使用默认值
	Allocator      string          // 委托分配器 c mmap go static 空使用平台默认值
	StaticCapacity uint64          // static分配器总容量 0为两倍MaxHeapSize
	RootScanner    RootScanner     // 根扫描
	Safepoint      Safepoint       // 安全点 nil为单线程宿主
	Fatal          func(err error) // 致命错误回调 默认结束进程 自定义回调返回后panic 堆不可再使用
	DebugLog       bool            // 调试日志
}

func (c *Config) applyDefaults() error {
	if c.MaxHeapSize == 0 {
		c.MaxHeapSize = DefaultMaxHeapSize
	}
	if c.SegmentSize == 0 {
		c.SegmentSize = DefaultSegmentSize
	}
	c.SegmentSize = mem.AlignUp(c.SegmentSize, uint64(object.WordSize))
	if c.Allocator == "" {
		c.Allocator = mem.DefaultKind
	}
	if c.Allocator == mem.KindStatic && c.StaticCapacity == 0 {
		c.StaticCapacity = 2 * c.MaxHeapSize
	}
	if c.SegmentSize > c.MaxHeapSize {
		return errors.Wrapf(ErrInvalidConfig, "segment size %d exceeds max heap size %d", c.SegmentSize, c.MaxHeapSize)
	}
	return nil
}
