package kfmt

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ardent-os/ardent/kernel"
)

func TestPanic(t *testing.T) {
	defer func() {
		cpuHaltFn = func() {}
	}()

	var cpuHaltCalled bool
	cpuHaltFn = func() {
		cpuHaltCalled = true
	}

	t.Run("with *kernel.Error", func(t *testing.T) {
		cpuHaltCalled = false
		var buf bytes.Buffer
		SetOutputSink(&buf)
		err := &kernel.Error{Module: "test", Message: "panic test"}

		Panic(err)

		exp := "\n-----------------------------------\n[test] unrecoverable error: panic test\n*** kernel panic: system halted ***\n-----------------------------------\n"
		if got := buf.String(); got != exp {
			t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
		}
		if !cpuHaltCalled {
			t.Fatal("expected cpu.Halt() to be called by Panic")
		}
	})

	t.Run("with error", func(t *testing.T) {
		cpuHaltCalled = false
		var buf bytes.Buffer
		SetOutputSink(&buf)
		err := errors.New("go error")

		Panic(err)

		exp := "\n-----------------------------------\n[rt] unrecoverable error: go error\n*** kernel panic: system halted ***\n-----------------------------------\n"
		if got := buf.String(); got != exp {
			t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
		}
		if !cpuHaltCalled {
			t.Fatal("expected cpu.Halt() to be called by Panic")
		}
	})

	t.Run("with string", func(t *testing.T) {
		cpuHaltCalled = false
		var buf bytes.Buffer
		SetOutputSink(&buf)

		Panic("string error")

		exp := "\n-----------------------------------\n[rt] unrecoverable error: string error\n*** kernel panic: system halted ***\n-----------------------------------\n"
		if got := buf.String(); got != exp {
			t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
		}
		if !cpuHaltCalled {
			t.Fatal("expected cpu.Halt() to be called by Panic")
		}
	})

	t.Run("with bugcheck", func(t *testing.T) {
		cpuHaltCalled = false
		var buf bytes.Buffer
		SetOutputSink(&buf)

		Panic(Bugcheck{Code: BadPFNHeader, Params: [4]uint64{0xdead, 1, 0, 0}})

		exp := "\n-----------------------------------\n*** STOP: BAD_PFN_HEADER (0xdead, 0x1, 0x0, 0x0) ***\n-----------------------------------\n"
		if got := buf.String(); got != exp {
			t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
		}
		if !cpuHaltCalled {
			t.Fatal("expected cpu.Halt() to be called by Panic")
		}
	})
}
