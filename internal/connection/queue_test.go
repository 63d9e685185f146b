package connection

import (
	"testing"

	"github.com/jlabarca/ghost/internal/ghosttypes"
)

func TestOutgoingQueuePushRecv(t *testing.T) {
	q := newOutgoingQueue()
	env := ghosttypes.MessageEnvelope{Channel: "ghost:health:p1"}
	if dropped := q.push(env); dropped {
		t.Fatal("push into empty queue should not drop")
	}

	select {
	case got := <-q.recv():
		if got.Channel != env.Channel {
			t.Fatalf("got channel %q, want %q", got.Channel, env.Channel)
		}
	default:
		t.Fatal("expected an item on the queue")
	}
}

func TestOutgoingQueueDropsOldestWhenFull(t *testing.T) {
	q := &outgoingQueue{ch: make(chan ghosttypes.MessageEnvelope, 2)}

	q.push(ghosttypes.MessageEnvelope{Channel: "first"})
	q.push(ghosttypes.MessageEnvelope{Channel: "second"})

	dropped := q.push(ghosttypes.MessageEnvelope{Channel: "third"})
	if !dropped {
		t.Fatal("expected push into a full queue to report a drop")
	}

	first := <-q.recv()
	if first.Channel != "second" {
		t.Fatalf("oldest entry should have been dropped; got %q first", first.Channel)
	}
	second := <-q.recv()
	if second.Channel != "third" {
		t.Fatalf("got %q, want third", second.Channel)
	}
}

func TestOutgoingQueueClose(t *testing.T) {
	q := newOutgoingQueue()
	q.close()
	_, ok := <-q.recv()
	if ok {
		t.Fatal("recv from a closed queue should report !ok")
	}
}
