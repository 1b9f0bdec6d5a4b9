package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type syncRecorder struct {
	bytes.Buffer
	synced int
}

func (s *syncRecorder) Sync() error {
	s.synced++
	return nil
}

func newRecordingLogger(rec *syncRecorder) *zap.Logger {
	enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	return zap.New(zapcore.NewCore(enc, rec, zap.DebugLevel))
}

func TestExitCode_FlushesBeforeExit(t *testing.T) {
	rec := &syncRecorder{}
	log := newRecordingLogger(rec)

	code := exitCode(log, errors.New("bind: address already in use"))

	assert.Equal(t, 1, code)
	assert.Equal(t, 1, rec.synced)
	assert.Contains(t, rec.String(), `"msg":"server exited"`)
	assert.Contains(t, rec.String(), "address already in use")
}

func TestExitCode_CleanRun(t *testing.T) {
	rec := &syncRecorder{}

	assert.Zero(t, exitCode(newRecordingLogger(rec), nil))
	assert.Zero(t, rec.synced)
	assert.Empty(t, rec.String())
}
