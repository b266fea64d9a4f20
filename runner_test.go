package tracking

import (
	"encoding/base64"
	"testing"
)

func newTestRunner(t *testing.T) (*CaptureRunner, *Session) {
	t.Helper()
	session := NewSession()
	session.Start()
	return NewCaptureRunner(session), session
}

func mustEnvelope(t *testing.T, messageType MessageType, payload any) *Envelope {
	t.Helper()
	envelope, err := NewEnvelope(messageType, payload)
	if err != nil {
		t.Fatalf("envelope failed: %v", err)
	}
	return envelope
}

func TestHandleEnvelopePing(t *testing.T) {
	runner, _ := newTestRunner(t)
	ack := runner.HandleEnvelope(&Envelope{Version: ProtocolVersion, Type: MessageTypePing})
	if !ack.OK {
		t.Errorf("expected ok ack, got %+v", ack)
	}
}

func TestHandleEnvelopePageOpened(t *testing.T) {
	runner, _ := newTestRunner(t)

	envelope := mustEnvelope(t, MessageTypePageOpened, &PageOpenedEvent{PageID: "tab-1"})
	ack := runner.HandleEnvelope(envelope)
	if !ack.OK || !ack.Subscribed {
		t.Errorf("expected new subscription, got %+v", ack)
	}

	// Second registration of the same page is acknowledged but not new.
	ack = runner.HandleEnvelope(envelope)
	if !ack.OK || ack.Subscribed {
		t.Errorf("expected idempotent re-subscription, got %+v", ack)
	}
}

func TestHandleEnvelopeRequestObserved(t *testing.T) {
	runner, session := newTestRunner(t)

	envelope := mustEnvelope(t, MessageTypeRequestObserved, &RequestObservedEvent{
		PageID: "tab-1",
		URL:    "https://aplus.gmarket.co.kr/log/product.click",
		Method: "POST",
		Body:   base64.StdEncoding.EncodeToString([]byte("_p_prod=1234567890")),
	})

	ack := runner.HandleEnvelope(envelope)
	if !ack.OK || !ack.Recorded {
		t.Fatalf("expected recorded ack, got %+v", ack)
	}
	if ack.Kind != EventProductClick {
		t.Errorf("want kind %q, got %q", EventProductClick, ack.Kind)
	}
	if session.Store().Len() != 1 {
		t.Errorf("expected 1 stored event, got %d", session.Store().Len())
	}
}

func TestHandleEnvelopeRequestFiltered(t *testing.T) {
	runner, session := newTestRunner(t)

	envelope := mustEnvelope(t, MessageTypeRequestObserved, &RequestObservedEvent{
		PageID: "tab-1",
		URL:    "https://www.example.com/unrelated",
		Method: "POST",
	})

	ack := runner.HandleEnvelope(envelope)
	if !ack.OK || ack.Recorded {
		t.Errorf("expected filtered request acked but not recorded, got %+v", ack)
	}
	if ack.Kind != "" {
		t.Errorf("unrecorded ack must not carry a kind, got %q", ack.Kind)
	}
	if session.Store().Len() != 0 {
		t.Errorf("expected no stored events, got %d", session.Store().Len())
	}
}

func TestHandleEnvelopeBadBody(t *testing.T) {
	runner, _ := newTestRunner(t)

	envelope := mustEnvelope(t, MessageTypeRequestObserved, &RequestObservedEvent{
		PageID: "tab-1",
		URL:    "https://aplus.gmarket.co.kr/log/product.click",
		Method: "POST",
		Body:   "not-base64!!!",
	})

	ack := runner.HandleEnvelope(envelope)
	if ack.OK || ack.Error == "" {
		t.Errorf("expected decode error ack, got %+v", ack)
	}
}

func TestHandleEnvelopeClear(t *testing.T) {
	runner, session := newTestRunner(t)
	session.HandleRequest("p", NewObservedRequest("https://aplus.gmarket.co.kr/log/click", "POST", "x=1"))

	ack := runner.HandleEnvelope(&Envelope{Version: ProtocolVersion, Type: MessageTypeClear})
	if !ack.OK {
		t.Fatalf("expected ok ack, got %+v", ack)
	}
	if session.Store().Len() != 0 {
		t.Errorf("expected cleared store, got %d", session.Store().Len())
	}
}

func TestHandleEnvelopeUnknownType(t *testing.T) {
	runner, _ := newTestRunner(t)
	ack := runner.HandleEnvelope(&Envelope{Version: ProtocolVersion, Type: "bogus"})
	if ack.OK || ack.Error == "" {
		t.Errorf("expected error ack for unknown type, got %+v", ack)
	}
}

func TestHandleEnvelopeMissingPayload(t *testing.T) {
	runner, _ := newTestRunner(t)
	ack := runner.HandleEnvelope(&Envelope{Version: ProtocolVersion, Type: MessageTypePageOpened})
	if ack.OK || ack.Error == "" {
		t.Errorf("expected error ack for missing payload, got %+v", ack)
	}
}
