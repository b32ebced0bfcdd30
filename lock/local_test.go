package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLocalLockTryLock(t *testing.T) {
	l := NewLocalLock()
	ctx := context.Background()

	ok, err := l.TryLock(ctx, "order-1:limit", 0)
	if err != nil || !ok {
		t.Fatalf("首次加锁应该成功: ok=%v err=%v", ok, err)
	}
	if ok, _ := l.TryLock(ctx, "order-1:limit", 0); ok {
		t.Fatal("重复加锁应该失败")
	}
	// 不同属性互不影响
	if ok, _ := l.TryLock(ctx, "order-1:price", 0); !ok {
		t.Fatal("不同 key 应该可以同时加锁")
	}

	if err := l.Unlock(ctx, "order-1:limit"); err != nil {
		t.Fatalf("解锁失败: %v", err)
	}
	if l.Held("order-1:limit") {
		t.Error("解锁后不应再被持有")
	}
	if err := l.Unlock(ctx, "order-1:limit"); err == nil {
		t.Error("重复解锁应该报错")
	}
}

func TestLocalLockTTL(t *testing.T) {
	l := NewLocalLock()
	ctx := context.Background()

	if ok, _ := l.TryLock(ctx, "k", 20*time.Millisecond); !ok {
		t.Fatal("加锁失败")
	}
	time.Sleep(40 * time.Millisecond)
	if ok, _ := l.TryLock(ctx, "k", 0); !ok {
		t.Fatal("过期后应该可以重新加锁")
	}
}

func TestLocalLockConcurrent(t *testing.T) {
	l := NewLocalLock()
	ctx := context.Background()

	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.TryLock(ctx, "same", 0); ok {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("并发加锁应该只有一个成功，得到 %d", winners)
	}
}

func TestLocalLockBlockingLock(t *testing.T) {
	l := NewLocalLock()
	ctx := context.Background()
	_, _ = l.TryLock(ctx, "k", 0)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = l.Unlock(ctx, "k")
	}()

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := l.Lock(waitCtx, "k", 0); err != nil {
		t.Fatalf("等待锁释放后应该获取成功: %v", err)
	}

	timeoutCtx, cancel2 := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel2()
	if err := l.Lock(timeoutCtx, "k", 0); err == nil {
		t.Fatal("锁被持有时应该超时")
	}
}

func TestNewDistributedLockDisabled(t *testing.T) {
	dl, err := NewDistributedLock(&Config{Enabled: false})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := dl.(*NopLock); !ok {
		t.Errorf("未启用时应返回 NopLock，得到 %T", dl)
	}
	if _, err := NewDistributedLock(&Config{Enabled: true, Type: "etcd"}); err == nil {
		t.Error("不支持的类型应该报错")
	}
}
