package event

import (
	"testing"
)

func TestTopicSubscribeUnsubscribe(t *testing.T) {
	topic := NewTopic[DifficultyChanged]("test")

	var a, b []uint64
	unsubA := topic.Subscribe(func(m DifficultyChanged) { a = append(a, m.Difficulty) })
	topic.Subscribe(func(m DifficultyChanged) { b = append(b, m.Difficulty) })

	topic.Publish(DifficultyChanged{Coin: "TRTL", Difficulty: 1})
	unsubA()
	unsubA() // 重复取消不报错
	topic.Publish(DifficultyChanged{Coin: "TRTL", Difficulty: 2})

	if len(a) != 1 || a[0] != 1 {
		t.Errorf("取消订阅后不应再收到消息: %v", a)
	}
	if len(b) != 2 {
		t.Errorf("订阅者应收到全部消息: %v", b)
	}
	if topic.Subscribers() != 1 {
		t.Errorf("期望1个订阅者，得到 %d", topic.Subscribers())
	}
}

func TestTopicPanicIsolated(t *testing.T) {
	topic := NewTopic[FeedDegraded]("test")
	got := 0
	topic.Subscribe(func(FeedDegraded) { panic("bad handler") })
	topic.Subscribe(func(FeedDegraded) { got++ })

	topic.Publish(FeedDegraded{Coin: "TRTL", Failures: 2})
	if got != 1 {
		t.Fatalf("一个订阅者 panic 不应影响其他订阅者")
	}
}

func TestTopicUnsubscribeDuringPublish(t *testing.T) {
	topic := NewTopic[PriceChanged]("test")
	var unsub func()
	calls := 0
	unsub = topic.Subscribe(func(PriceChanged) {
		calls++
		unsub()
	})
	topic.Publish(PriceChanged{})
	topic.Publish(PriceChanged{})
	if calls != 1 {
		t.Errorf("处理函数中取消订阅应立即生效，调用次数 %d", calls)
	}
}
