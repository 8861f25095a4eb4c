package request

import (
	"errors"
	"testing"
)

func TestPushEncodesRESP3Array(t *testing.T) {
	r := New()
	if err := r.Push("SET", "key", "value"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "*3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$5\r\nvalue\r\n"
	if got := string(r.Payload()); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if r.Len() != 1 || r.Commands()[0].ExpectedReplies != 1 {
		t.Fatalf("bad command metadata: %+v", r.Commands())
	}
}

func TestPushEmptyCommandRejected(t *testing.T) {
	r := New()
	if err := r.Push(""); !errors.Is(err, ErrEmptyCommandName) {
		t.Fatalf("want ErrEmptyCommandName, got %v", err)
	}
}

func TestPushMarksEXECAsTransaction(t *testing.T) {
	r := New()
	if err := r.Push("MULTI"); err != nil {
		t.Fatal(err)
	}
	if err := r.Push("exec"); err != nil {
		t.Fatal(err)
	}
	cmds := r.Commands()
	if cmds[0].TreatReplyAsTransaction {
		t.Fatalf("MULTI must not be flagged as a transaction reply")
	}
	if !cmds[1].TreatReplyAsTransaction {
		t.Fatalf("EXEC (any case) must be flagged as a transaction reply")
	}
}

func TestPushRangeAppendsKeyThenElements(t *testing.T) {
	r := New()
	if err := r.PushRange("RPUSH", "mylist", "a", "b", "c"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "*5\r\n$5\r\nRPUSH\r\n$6\r\nmylist\r\n$1\r\na\r\n$1\r\nb\r\n$1\r\nc\r\n"
	if got := string(r.Payload()); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestPushRangeMapAlternatesKeyValue(t *testing.T) {
	r := New()
	if err := r.PushRangeMap("HSET", "h", map[string]string{"f": "v"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "*4\r\n$4\r\nHSET\r\n$1\r\nh\r\n$1\r\nf\r\n$1\r\nv\r\n"
	if got := string(r.Payload()); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestMultipleCommandsConcatenatePayload(t *testing.T) {
	r := New()
	r.Push("PING")
	r.Push("PING")
	if r.Len() != 2 {
		t.Fatalf("want 2 commands, got %d", r.Len())
	}
	want := "*1\r\n$4\r\nPING\r\n*1\r\n$4\r\nPING\r\n"
	if got := string(r.Payload()); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestClearDropsCommandsButKeepsConfig(t *testing.T) {
	r := New()
	r.GetConfig().HelloWithPriority = true
	r.Push("PING")
	r.Clear()
	if r.Len() != 0 || len(r.Payload()) != 0 {
		t.Fatalf("Clear did not reset commands/payload")
	}
	if !r.GetConfig().HelloWithPriority {
		t.Fatalf("Clear must not reset Config")
	}
}

func TestEncodeArgNumericTypes(t *testing.T) {
	r := New()
	if err := r.Push("SETEX", "k", 10, int64(20), uint64(30), 1.5, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "*7\r\n$5\r\nSETEX\r\n$1\r\nk\r\n$2\r\n10\r\n$2\r\n20\r\n$2\r\n30\r\n$3\r\n1.5\r\n$1\r\n1\r\n"
	if got := string(r.Payload()); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
