// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"
)

func TestIsExpectedCloseError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"eof", io.EOF, true},
		{"unexpected eof", fmt.Errorf("reading frame: %w", io.ErrUnexpectedEOF), true},
		{"closed connection", &net.OpError{Op: "read", Err: net.ErrClosed}, true},
		{"reset", &net.OpError{Op: "read", Err: os.NewSyscallError("read", syscall.ECONNRESET)}, true},
		{"broken pipe", fmt.Errorf("write: %w", syscall.EPIPE), true},
		{"refused", syscall.ECONNREFUSED, false},
		{"other", errors.New("bad frame"), false},
	}
	for _, test := range tests {
		if got := IsExpectedCloseError(test.err); got != test.want {
			t.Errorf("%s: IsExpectedCloseError(%v) = %v, want %v", test.name, test.err, got, test.want)
		}
	}
}
