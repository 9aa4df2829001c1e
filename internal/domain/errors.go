package domain

import (
	"errors"
	"fmt"
)

// ErrNoCookies is returned when the cookie directory holds no usable file.
var ErrNoCookies = errors.New("no cookies available")

// ErrBusy is returned when a batch is submitted while another one runs.
var ErrBusy = errors.New("another download is already in progress")

type ErrValidation struct {
	Reason string
}

func (e ErrValidation) Error() string {
	return "invalid batch: " + e.Reason
}

// ErrCircuit wraps failures of the anonymizing daemon or its control session.
type ErrCircuit struct {
	Op  string
	Err error
}

func (e ErrCircuit) Error() string {
	return fmt.Sprintf("circuit %s: %v", e.Op, e.Err)
}

func (e ErrCircuit) Unwrap() error {
	return e.Err
}

// ErrControlReply is a control-protocol reply that did not carry status 250.
type ErrControlReply struct {
	Command string
	Reply   string
}

func (e ErrControlReply) Error() string {
	return fmt.Sprintf("control %q rejected: %q", e.Command, e.Reply)
}

type ErrProcess struct {
	Name string
	Err  error
}

func (e ErrProcess) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e ErrProcess) Unwrap() error {
	return e.Err
}

// ErrTimeout marks a subprocess that was killed after exceeding its bound.
var ErrTimeout = errors.New("process timed out")
