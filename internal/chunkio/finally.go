package chunkio

import (
	"sync"

	"github.com/nuln/fstream"
)

// Finally returns seq with fn run exactly once, just before the first
// terminal signal is forwarded downstream or when the subscription is
// cancelled. It is
// how resources backing a sequence, such as an open store.File, get
// released.
func Finally(seq fstream.Sequence, fn func()) fstream.Sequence {
	return fstream.SequenceFunc(func(sub fstream.Subscriber) {
		f := &finallySub{downstream: sub, fn: fn}
		seq.Subscribe(f)
	})
}

type finallySub struct {
	downstream fstream.Subscriber
	fn         func()
	once       sync.Once
	upstream   fstream.Subscription
}

func (f *finallySub) run() { f.once.Do(f.fn) }

func (f *finallySub) OnSubscribe(s fstream.Subscription) {
	f.upstream = s
	f.downstream.OnSubscribe(f)
}

func (f *finallySub) OnNext(c fstream.Chunk) { f.downstream.OnNext(c) }

func (f *finallySub) OnError(err error) {
	f.run()
	f.downstream.OnError(err)
}

func (f *finallySub) OnComplete() {
	f.run()
	f.downstream.OnComplete()
}

func (f *finallySub) Request(n int64) { f.upstream.Request(n) }

func (f *finallySub) Cancel() {
	f.upstream.Cancel()
	f.run()
}
