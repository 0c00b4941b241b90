package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"go.viam.com/test"
)

func TestNewWithWriterLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("debug", &buf)
	test.That(t, logger.GetLevel(), test.ShouldEqual, logrus.DebugLevel)

	logger.WithField("stage", "detect").Debug("done")

	var entry map[string]any
	test.That(t, json.Unmarshal(buf.Bytes(), &entry), test.ShouldBeNil)
	test.That(t, entry["msg"], test.ShouldEqual, "done")
	test.That(t, entry["stage"], test.ShouldEqual, "detect")
}

func TestUnknownLevelFallsBackToError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("chatty", &buf)
	test.That(t, logger.GetLevel(), test.ShouldEqual, logrus.ErrorLevel)

	logger.Warn("hidden")
	test.That(t, buf.Len(), test.ShouldEqual, 0)
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Error("nothing happens")
	test.That(t, logger, test.ShouldNotBeNil)
}
