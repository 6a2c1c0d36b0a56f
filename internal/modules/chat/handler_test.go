package chat

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/questline/core/internal/pkg/kind"
	"github.com/questline/core/internal/store"
	"github.com/questline/core/internal/store/storetest"
	assert "github.com/stretchr/testify/require"
)

func newFrameFixture(t *testing.T, perMinute int) (*Handler, *conn, *gin.Context) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	st := store.New(storetest.New(), "guild-test", nil)
	svc := NewService(st, hub, fakeMembership{}, perMinute, nil)
	h := NewHandler(svc, hub, nil, nil)

	conn := newConn(nil, "lounge", "u1")
	hub.join(conn)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/ws/rooms/lounge", nil)
	return h, conn, c
}

func queuedFrame(t *testing.T, c *conn) []byte {
	t.Helper()
	select {
	case b := <-c.send:
		return b
	default:
		t.Fatal("no frame queued")
		return nil
	}
}

func decodeErrorFrame(t *testing.T, payload []byte) errorFrame {
	t.Helper()
	var frame errorFrame
	assert.NoError(t, json.Unmarshal(payload, &frame))
	return frame
}

func TestHandleFrameMalformedJSON(t *testing.T) {
	h, conn, c := newFrameFixture(t, 0)

	h.handleFrame(c, conn, []byte("{not json"))

	frame := decodeErrorFrame(t, queuedFrame(t, conn))
	assert.Equal(t, string(kind.ValidationFailed), frame.Error)
	assert.NotEmpty(t, frame.Message)
}

func TestHandleFrameOversizeStaysOpen(t *testing.T) {
	h, conn, c := newFrameFixture(t, 0)

	big := []byte(`{"text":"` + strings.Repeat("x", maxFrameSize) + `"}`)
	h.handleFrame(c, conn, big)

	frame := decodeErrorFrame(t, queuedFrame(t, conn))
	assert.Equal(t, string(kind.ValidationFailed), frame.Error)
	assert.Equal(t, "frame too large", frame.Message)

	// The connection survives and keeps working.
	select {
	case <-conn.done:
		t.Fatal("connection closed on oversize frame")
	default:
	}
	h.handleFrame(c, conn, []byte(`{"text":"still here"}`))
	var msg struct {
		Text string `json:"text"`
	}
	assert.NoError(t, json.Unmarshal(queuedFrame(t, conn), &msg))
	assert.Equal(t, "still here", msg.Text)
}

func TestHandleFrameThrottledCode(t *testing.T) {
	h, conn, c := newFrameFixture(t, 1)

	h.handleFrame(c, conn, []byte(`{"text":"one"}`))
	queuedFrame(t, conn) // the broadcast of the accepted message

	h.handleFrame(c, conn, []byte(`{"text":"two"}`))
	frame := decodeErrorFrame(t, queuedFrame(t, conn))
	assert.Equal(t, string(kind.Throttled), frame.Error)
	assert.NotEmpty(t, frame.Message)
	assert.NotContains(t, frame.Message, string(kind.Throttled)+":")
}

func TestHandleFrameEmptyTextRejected(t *testing.T) {
	h, conn, c := newFrameFixture(t, 0)

	h.handleFrame(c, conn, []byte(`{"text":""}`))
	frame := decodeErrorFrame(t, queuedFrame(t, conn))
	assert.Equal(t, string(kind.ValidationFailed), frame.Error)
}
