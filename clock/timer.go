package clock

type Promise struct {
	TimerId int64
	NowTs   int64 // 触发时的时间戳 毫秒
	Data    any
}

type _Timer struct {
	id         int64           // ID
	when       int64           // 到期时间戳 毫秒
	data       any             // 数据
	receiver   chan<- *Promise // 接收方
	prev, next *_Timer         // 双向链表
}

func (t *_Timer) removeFromList() bool {
	if t.prev == nil || t.next == nil {
		return false
	}
	t.prev.next = t.next
	t.next.prev = t.prev
	t.prev = nil
	t.next = nil
	return true
}

type _List struct {
	root *_Timer //哨兵
}

func newTimerList() *_List {
	l := new(_List)
	l.root = new(_Timer)
	l.root.prev = l.root
	l.root.next = l.root
	return l
}

func (l *_List) PushBack(t *_Timer) {
	tail := l.root.prev
	tail.next = t
	t.prev = tail
	t.next = l.root
	l.root.prev = t
}

func (l *_List) IsEmpty() bool {
	return l.root.next == l.root
}

// PopRange 逐个摘下并回调, fn里可以往其他链表插入
func (l *_List) PopRange(fn func(t *_Timer) bool) {
	for !l.IsEmpty() {
		t := l.root.next
		t.removeFromList()
		if !fn(t) {
			break
		}
	}
}
