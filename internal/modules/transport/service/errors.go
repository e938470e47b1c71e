package service

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotConnected — операция требует установленного соединения.
var ErrNotConnected = errors.New("not connected to endpoint")

// TimeoutError — командный канал не уложился в таймаут.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out waiting for endpoint", e.Op)
}

// ProtocolError — ответ не того типа или его не удалось разобрать.
type ProtocolError struct {
	Expected string
	Got      string
	Reason   string
}

func (e *ProtocolError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("protocol error: %s", e.Reason)
	}
	return fmt.Sprintf("protocol error: expected %q reply, got %q", e.Expected, e.Got)
}

// ValidationError — сигнал отбракован до какого-либо I/O.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid signal: %s", e.Reason)
}
