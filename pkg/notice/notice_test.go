package notice

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLog_Levels(t *testing.T) {
	var buf bytes.Buffer
	n := Log{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	n.Notify(Notice{Level: Warning, CID: "Qm1", Message: "registry unavailable", Err: errors.New("dial tcp")})
	n.Notify(Notice{Level: Error, Message: "payment rejected"})

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "cid=Qm1")
	assert.Contains(t, out, `error="dial tcp"`)
	assert.Contains(t, out, "level=ERROR")
}

func TestFanoutAndRecorder(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	f := Fanout{a, Discard{}, b}

	f.Notify(Notice{Level: Info, Message: "payment confirmed"})

	assert.Len(t, a.Notices(), 1)
	assert.Equal(t, a.Notices(), b.Notices())
	assert.Equal(t, "info", a.Notices()[0].Level.String())
}
