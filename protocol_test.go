package tracking

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"strings"
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	envelope, err := NewEnvelope(MessageTypeRequestObserved, &RequestObservedEvent{
		PageID: "tab-1",
		URL:    "https://aplus.gmarket.co.kr/log/product.click",
		Method: "POST",
		Body:   base64.StdEncoding.EncodeToString([]byte("_p_prod=1")),
	})
	if err != nil {
		t.Fatalf("envelope failed: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteMessage(&buf, envelope); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	read, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if read.Version != ProtocolVersion {
		t.Errorf("want version %d, got %d", ProtocolVersion, read.Version)
	}
	if read.Type != MessageTypeRequestObserved {
		t.Errorf("want type %q, got %q", MessageTypeRequestObserved, read.Type)
	}

	var event RequestObservedEvent
	if err := read.ParsePayload(&event); err != nil {
		t.Fatalf("payload parse failed: %v", err)
	}
	body, err := event.DecodedBody()
	if err != nil {
		t.Fatalf("body decode failed: %v", err)
	}
	if string(body) != "_p_prod=1" {
		t.Errorf("want decoded body, got %q", body)
	}
}

func TestReadMessageCleanEOF(t *testing.T) {
	envelope, err := ReadMessage(bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if envelope != nil {
		t.Errorf("expected nil envelope on clean EOF, got %+v", envelope)
	}
}

func TestReadMessageTruncated(t *testing.T) {
	// Length prefix promises more bytes than the stream carries.
	var buf bytes.Buffer
	prefix := make([]byte, 4)
	binary.BigEndian.PutUint32(prefix, 100)
	buf.Write(prefix)
	buf.WriteString("{}")

	if _, err := ReadMessage(&buf); err == nil {
		t.Error("expected error on truncated message")
	}
}

func TestReadMessageRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	prefix := make([]byte, 4)
	binary.BigEndian.PutUint32(prefix, MaxMessageSize+1)
	buf.Write(prefix)

	_, err := ReadMessage(&buf)
	if err == nil || !strings.Contains(err.Error(), "exceeds maximum") {
		t.Errorf("expected size limit error, got %v", err)
	}
}

func TestReadMessageRejectsBadJSON(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("not json")
	prefix := make([]byte, 4)
	binary.BigEndian.PutUint32(prefix, uint32(len(payload)))
	buf.Write(prefix)
	buf.Write(payload)

	if _, err := ReadMessage(&buf); err == nil {
		t.Error("expected error on invalid JSON")
	}
}

func TestDecodedBodyEmpty(t *testing.T) {
	event := &RequestObservedEvent{}
	body, err := event.DecodedBody()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(body) != 0 {
		t.Errorf("expected empty body, got %q", body)
	}
}

func TestParsePayloadMissing(t *testing.T) {
	envelope := &Envelope{Version: ProtocolVersion, Type: MessageTypePageOpened}
	var event PageOpenedEvent
	if err := envelope.ParsePayload(&event); err == nil {
		t.Error("expected error for missing payload")
	}
}
