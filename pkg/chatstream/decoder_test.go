package chatstream

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/user/gatewaychat/internal/types"
)

// recorder captures handler calls as a flat, ordered log.
type recorder struct {
	calls []string
}

func (r *recorder) handler() Handler {
	return Handler{
		OnChunk:   func(s string) { r.calls = append(r.calls, "chunk:"+s) },
		OnDone:    func(id types.SessionID) { r.calls = append(r.calls, "done:"+string(id)) },
		OnBlocked: func(reason string) { r.calls = append(r.calls, "blocked:"+reason) },
	}
}

func (r *recorder) count(prefix string) int {
	n := 0
	for _, c := range r.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func decodeAll(t *testing.T, stream string) *recorder {
	t.Helper()
	rec := &recorder{}
	dec := NewDecoder(rec.handler())
	if err := dec.Feed([]byte(stream)); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if err := dec.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	return rec
}

func TestDecoderChunksThenDone(t *testing.T) {
	stream := "data: {\"chunk\":\"Hi\"}\n\n" +
		"data: {\"chunk\":\" there\"}\n\n" +
		"data: {\"done\":true,\"session_id\":\"s1\"}\n\n"

	rec := decodeAll(t, stream)

	var content strings.Builder
	for _, c := range rec.calls {
		if s, ok := strings.CutPrefix(c, "chunk:"); ok {
			content.WriteString(s)
		}
	}
	if content.String() != "Hi there" {
		t.Errorf("expected assembled content 'Hi there', got %q", content.String())
	}
	if n := rec.count("done:"); n != 1 {
		t.Fatalf("expected done exactly once, got %d", n)
	}
	if rec.calls[len(rec.calls)-1] != "done:s1" {
		t.Errorf("expected done:s1 last, got %v", rec.calls)
	}
}

func TestDecoderBlockedWithReason(t *testing.T) {
	rec := decodeAll(t, "data: {\"blocked\":true,\"reason\":\"x\"}\n\n")

	want := []string{"blocked:x"}
	if !reflect.DeepEqual(rec.calls, want) {
		t.Errorf("expected %v, got %v", want, rec.calls)
	}
	if rec.count("chunk:") != 0 {
		t.Error("expected zero chunk callbacks")
	}
}

func TestDecoderBlockedFallbackReason(t *testing.T) {
	for _, payload := range []string{
		`{"blocked":true}`,
		`{"blocked":true,"reason":null}`,
		`{"blocked":true,"reason":""}`,
	} {
		rec := decodeAll(t, "data: "+payload+"\n\n")
		want := []string{"blocked:" + types.DefaultBlockReason}
		if !reflect.DeepEqual(rec.calls, want) {
			t.Errorf("%s: expected %v, got %v", payload, want, rec.calls)
		}
	}
}

func TestDecoderLineSplitAcrossFeeds(t *testing.T) {
	stream := "data: {\"chunk\":\"Hel\"}\n\ndata: {\"chunk\":\"lo\"}\n\ndata: {\"done\":true,\"session_id\":\"abc\"}\n\n"
	want := decodeAll(t, stream).calls

	// Every possible split point must yield the same callbacks.
	for i := 1; i < len(stream); i++ {
		rec := &recorder{}
		dec := NewDecoder(rec.handler())
		if err := dec.Feed([]byte(stream[:i])); err != nil {
			t.Fatal(err)
		}
		if err := dec.Feed([]byte(stream[i:])); err != nil {
			t.Fatal(err)
		}
		if err := dec.Flush(); err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(rec.calls, want) {
			t.Fatalf("split at %d: expected %v, got %v", i, want, rec.calls)
		}
	}
}

func TestDecoderByteAtATime(t *testing.T) {
	stream := "data: {\"chunk\":\"a\"}\r\ndata: {\"chunk\":\"b\"}\r\ndata: {\"done\":true,\"session_id\":\"s\"}\r\n"
	rec := &recorder{}
	dec := NewDecoder(rec.handler())
	for i := 0; i < len(stream); i++ {
		if err := dec.Feed([]byte{stream[i]}); err != nil {
			t.Fatal(err)
		}
	}
	want := []string{"chunk:a", "chunk:b", "done:s"}
	if !reflect.DeepEqual(rec.calls, want) {
		t.Errorf("expected %v, got %v", want, rec.calls)
	}
}

func TestDecoderStateTransitions(t *testing.T) {
	dec := NewDecoder(Handler{})
	if dec.State() != StateReading {
		t.Fatalf("expected initial state reading, got %s", dec.State())
	}
	if err := dec.Feed([]byte(`data: {"chu`)); err != nil {
		t.Fatal(err)
	}
	if dec.State() != StateCarrying {
		t.Fatalf("expected carrying after partial line, got %s", dec.State())
	}
	if err := dec.Feed([]byte("nk\":\"x\"}\n")); err != nil {
		t.Fatal(err)
	}
	if dec.State() != StateReading {
		t.Fatalf("expected reading after line completed, got %s", dec.State())
	}
	if dec.Stats().Chunks != 1 {
		t.Errorf("expected 1 chunk, got %d", dec.Stats().Chunks)
	}
}

func TestDecoderIgnoresNonDataLines(t *testing.T) {
	clean := "data: {\"chunk\":\"one\"}\n" +
		"data: {\"chunk\":\"two\"}\n" +
		"data: {\"done\":true,\"session_id\":\"s9\"}\n"
	noisy := ": keep-alive\n" +
		"data: {\"chunk\":\"one\"}\n" +
		"event: message\n" +
		"id: 42\n" +
		"\n" +
		"retry: 1000\n" +
		"data: {\"chunk\":\"two\"}\n" +
		"garbage line without prefix {\"chunk\":\"evil\"}\n" +
		"data: {\"done\":true,\"session_id\":\"s9\"}\n" +
		": trailing comment\n"

	if got, want := decodeAll(t, noisy).calls, decodeAll(t, clean).calls; !reflect.DeepEqual(got, want) {
		t.Errorf("noisy stream: expected %v, got %v", want, got)
	}
}

func TestDecoderSkipsMalformedRecords(t *testing.T) {
	stream := "data: {\"chunk\":\"a\"\n" +
		"data: not json\n" +
		"data: {\"chunk\": 5}\n" +
		"data: {\"chunk\":\"b\"}\n" +
		"data: {\"done\":true,\"session_id\":\"s\"}\n"

	rec := &recorder{}
	dec := NewDecoder(rec.handler())
	if err := dec.Feed([]byte(stream)); err != nil {
		t.Fatal(err)
	}
	want := []string{"chunk:b", "done:s"}
	if !reflect.DeepEqual(rec.calls, want) {
		t.Errorf("expected %v, got %v", want, rec.calls)
	}
	if dec.Stats().Skipped != 3 {
		t.Errorf("expected 3 skipped records, got %d", dec.Stats().Skipped)
	}
}

func TestDecoderPrefixWithoutSpace(t *testing.T) {
	rec := decodeAll(t, "data:{\"chunk\":\"tight\"}\n")
	if !reflect.DeepEqual(rec.calls, []string{"chunk:tight"}) {
		t.Errorf("unexpected calls %v", rec.calls)
	}
}

func TestDecoderFlushTrailingLine(t *testing.T) {
	rec := &recorder{}
	dec := NewDecoder(rec.handler())
	if err := dec.Feed([]byte(`data: {"done":true,"session_id":"last"}`)); err != nil {
		t.Fatal(err)
	}
	if len(rec.calls) != 0 {
		t.Fatalf("expected nothing before flush, got %v", rec.calls)
	}
	if err := dec.Flush(); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(rec.calls, []string{"done:last"}) {
		t.Errorf("unexpected calls %v", rec.calls)
	}
}

func TestDecoderBlockedAfterChunksStillFires(t *testing.T) {
	rec := decodeAll(t, "data: {\"chunk\":\"par\"}\ndata: {\"blocked\":true,\"reason\":\"late\"}\n")
	want := []string{"chunk:par", "blocked:late"}
	if !reflect.DeepEqual(rec.calls, want) {
		t.Errorf("expected %v, got %v", want, rec.calls)
	}
}

func TestDecoderErrorRecordStopsStream(t *testing.T) {
	rec := &recorder{}
	dec := NewDecoder(rec.handler())
	err := dec.Feed([]byte("data: {\"chunk\":\"a\"}\ndata: {\"error\":\"upstream 500\"}\ndata: {\"chunk\":\"b\"}\n"))

	var se *StreamError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StreamError, got %v", err)
	}
	if se.Message != "upstream 500" {
		t.Errorf("unexpected message %q", se.Message)
	}
	if !reflect.DeepEqual(rec.calls, []string{"chunk:a"}) {
		t.Errorf("expected decoding to stop at the error record, got %v", rec.calls)
	}
	if err := dec.Feed([]byte("data: {\"chunk\":\"c\"}\n")); !errors.As(err, &se) {
		t.Errorf("expected sticky stream error, got %v", err)
	}
}

func TestDecoderNilCallbacks(t *testing.T) {
	dec := NewDecoder(Handler{})
	err := dec.Feed([]byte("data: {\"chunk\":\"a\"}\ndata: {\"blocked\":true}\ndata: {\"done\":true}\n"))
	if err != nil {
		t.Fatal(err)
	}
	st := dec.Stats()
	if st.Records != 3 || !st.Terminal {
		t.Errorf("unexpected stats %+v", st)
	}
}
