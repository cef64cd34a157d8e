package example

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/flswld/bridged/heap"
	"github.com/flswld/bridged/logger"
	"github.com/flswld/bridged/mem"
	"github.com/flswld/bridged/object"
	"github.com/flswld/bridged/roots"
	"github.com/flswld/bridged/safepoint"
)

// SingleThread 单线程宿主 分配对象并触发回收
func SingleThread() {
	logger.InitLogger(&logger.Config{
		AppName:   "bridged",
		Level:     logger.DEBUG,
		TrackLine: true,
	})
	defer logger.CloseLogger()

	// 根 宿主持有的全部引用都需要登记
	table := roots.NewHandleTable()
	h, err := heap.New(heap.Config{
		MaxHeapSize:   64 * mem.MB,      // 最大堆大小
		SegmentSize:   256 * mem.KB,     // chunk默认大小
		Allocator:     mem.DefaultKind,  // 委托分配器
		UseLargePages: false,            // 大页
		RootScanner:   table,            // 根扫描
		Safepoint:     safepoint.None{}, // 单线程宿主无需安全点
		DebugLog:      true,             // 调试日志
	})
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = h.Close()
	}()

	// 一个带两个引用槽的对象 一个引用槽加一个字的数据 一个纯数据对象
	parent, err := h.AllocateObject(2, 0)
	if err != nil {
		panic(err)
	}
	child, err := h.AllocateObject(1, 1)
	if err != nil {
		panic(err)
	}
	leaf, err := h.AllocateObject(0, 4)
	if err != nil {
		panic(err)
	}
	object.SetRef(parent, 0, child)
	object.SetRef(parent, 1, leaf)
	object.SetRef(child, 0, parent)
	copy(object.Payload(leaf), "bridged heap")
	root := table.New(parent)

	// 垃圾
	for i := 0; i < 10000; i++ {
		_, err = h.AllocateObject(1, 7)
		if err != nil {
			panic(err)
		}
	}

	h.Collect(heap.CauseExplicit)

	// 回收后对象已被移动 只能通过根重新获取地址
	parent = table.Get(root)
	leaf = object.Ref(parent, 1)
	fmt.Printf("%s %s\n", object.Payload(leaf)[:12], h.Stats())
	table.Delete(root)
}

// MultiThread 多个mutator协程通过安全点与回收器协作
func MultiThread() {
	gate := safepoint.NewGate()
	table := roots.NewHandleTable()
	err := heap.Initialize(heap.Config{
		SegmentSize: 64 * mem.KB,
		RootScanner: table,
		Safepoint:   gate,
	})
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = heap.Teardown()
	}()
	h := heap.Get()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// 每个mutator维护一条链表 链表头登记在根中
			head := table.New(0)
			defer table.Delete(head)
			for i := 0; i < 100000; i++ {
				// 持有堆地址期间必须处于安全点之内
				gate.Enter()
				addr, err := h.AllocateObject(1, 1)
				if err != nil {
					gate.Leave()
					if heap.IsOutOfMemory(err) {
						h.Collect(heap.CauseAllocationFailure)
						continue
					}
					panic(err)
				}
				binary.LittleEndian.PutUint64(object.Payload(addr), uint64(i))
				if i%100 != 0 {
					object.SetRef(addr, 0, table.Get(head))
				}
				table.Set(head, addr)
				gate.Leave()
			}
		}()
	}
	wg.Wait()
	h.Collect(heap.CauseShutdown)
	fmt.Printf("%s pauses:%d\n", h.Stats(), gate.Pauses())
}

// StaticArena 从固定容量的预留内存中分配
func StaticArena() {
	h, err := heap.New(heap.Config{
		MaxHeapSize:    16 * mem.MB,
		SegmentSize:    1 * mem.MB,
		Allocator:      mem.KindStatic, // 一次性从go堆预留 之后不再增长
		StaticCapacity: 32 * mem.MB,    // 预留内存大小
	})
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = h.Close()
	}()
	for {
		_, err = h.Allocate(1024)
		if err != nil {
			// 超过最大堆大小 没有根 回收后全部释放
			fmt.Printf("%v\n", err)
			h.Collect(heap.CauseAllocationFailure)
			break
		}
	}
	// 临时缓冲区 不参与回收 需要手动释放
	buf, err := h.AllocateScratch(4096)
	if err != nil {
		panic(err)
	}
	mem.MemZero(buf, 4096*uint64(object.WordSize))
	h.Deallocate(buf)
	fmt.Printf("%s\n", h.Stats())
}
