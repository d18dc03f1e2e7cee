package logstream

import (
	"bytes"
	"reflect"
	"testing"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe(TopicApp)
	other := b.Subscribe(TopicInstall)

	b.Publish(TopicApp, "hello")

	if got := <-ch; got != "hello" {
		t.Errorf("got %q, want hello", got)
	}
	select {
	case line := <-other:
		t.Errorf("unexpected line on other topic: %q", line)
	default:
	}

	if !b.HasSubscribers(TopicApp) {
		t.Error("expected subscribers for app topic")
	}
	b.Unsubscribe(TopicApp, ch)
	b.Unsubscribe(TopicApp, ch)
	if b.HasSubscribers(TopicApp) {
		t.Error("expected no subscribers after Unsubscribe")
	}

	b.Close(TopicInstall)
	if _, ok := <-other; ok {
		t.Error("expected channel closed after Close")
	}
	b.Unsubscribe(TopicInstall, other)
}

func TestStreamWriterSplitsLines(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe(TopicInstall)
	var buf bytes.Buffer
	w := NewStreamWriter(TopicInstall, b, &buf)

	w.Write([]byte("one\r\ntw"))
	w.Write([]byte("o\nthree"))
	w.Flush()

	var got []string
	for i := 0; i < 3; i++ {
		got = append(got, <-ch)
	}
	if want := []string{"one", "two", "three"}; !reflect.DeepEqual(got, want) {
		t.Errorf("lines = %v, want %v", got, want)
	}
	if buf.String() != "one\r\ntwo\nthree" {
		t.Errorf("buffer = %q", buf.String())
	}
}

func TestRing(t *testing.T) {
	r := NewRing(3)
	if len(r.Lines()) != 0 {
		t.Fatal("new ring should be empty")
	}
	r.Add("a")
	r.Add("b")
	if got := r.Lines(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Lines = %v", got)
	}
	r.Add("c")
	r.Add("d")
	if got := r.Lines(); !reflect.DeepEqual(got, []string{"b", "c", "d"}) {
		t.Errorf("Lines after wrap = %v", got)
	}
	r.Reset()
	if len(r.Lines()) != 0 {
		t.Error("Reset should empty the ring")
	}
}
