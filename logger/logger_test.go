package logger_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/bhoriuchi/graphql-ws-server/logger"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithFieldDoesNotLeak(t *testing.T) {
	var payloads []logger.LogPayload
	base := logger.NewLogWrapper(func(p logger.LogPayload) {
		payloads = append(payloads, p)
	}, nil)

	child := base.WithField("connectionId", "abc").WithError(errors.New("boom"))
	child.Warnf("closing %d", 1)
	base.Infof("plain")

	require.Len(t, payloads, 2)
	assert.Equal(t, logger.WarnLevel, payloads[0].Level)
	assert.Equal(t, "closing 1", payloads[0].Message)
	assert.Equal(t, "abc", payloads[0].Fields["connectionId"])
	assert.EqualError(t, payloads[0].Error, "boom")

	assert.Empty(t, payloads[1].Fields)
	assert.NoError(t, payloads[1].Error)
}

func TestParseLevel(t *testing.T) {
	level, err := logger.ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, logger.DebugLevel, level)

	_, err = logger.ParseLevel("verbose")
	assert.Error(t, err)
}

func TestZerologFunc(t *testing.T) {
	buf := &bytes.Buffer{}
	zl := zerolog.New(buf).Level(zerolog.InfoLevel)
	l := logger.NewLogWrapper(logger.NewZerologFunc(zl), nil).WithField("subprotocol", "graphql-ws")

	l.Debugf("filtered")
	assert.Zero(t, buf.Len())

	l.WithError(errors.New("denied")).Errorf("init failed")
	assert.Contains(t, buf.String(), `"subprotocol":"graphql-ws"`)
	assert.Contains(t, buf.String(), `"error":"denied"`)
	assert.Contains(t, buf.String(), `"message":"init failed"`)
}

func TestLogfmtFunc(t *testing.T) {
	buf := &bytes.Buffer{}
	l := logger.NewLogWrapper(logger.NewLogfmtFunc(buf, logger.InfoLevel), nil).
		WithField("connectionId", "abc")

	l.Tracef("filtered")
	assert.Zero(t, buf.Len())

	l.WithError(errors.New("denied")).Warnf("closing %d", 4403)
	assert.Equal(t, `connectionId="abc" error="denied" level="warn" msg="closing 4403"`+"\n", buf.String())
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "debug", logger.DebugLevel.String())
	assert.True(t, logger.InfoLevel.Enabled(logger.WarnLevel))
	assert.False(t, logger.InfoLevel.Enabled(logger.DebugLevel))
}
