package at

import (
	"io"

	"go.uber.org/zap"
)

// traceReadWriteCloser logs raw serial traffic for wire-level debugging.
type traceReadWriteCloser struct {
	rwc io.ReadWriteCloser
	log *zap.Logger
}

func (t traceReadWriteCloser) Read(b []byte) (int, error) {
	n, err := t.rwc.Read(b)
	if n > 0 {
		t.log.Debug("serial read", zap.String("data", string(b[:n])))
	}
	if err != nil {
		t.log.Debug("serial read error", zap.Error(err))
	}
	return n, err
}

func (t traceReadWriteCloser) Write(b []byte) (int, error) {
	n, err := t.rwc.Write(b)
	t.log.Debug("serial write", zap.String("data", string(b)), zap.Error(err))
	return n, err
}

func (t traceReadWriteCloser) Close() error {
	err := t.rwc.Close()
	t.log.Debug("serial close", zap.Error(err))
	return err
}
