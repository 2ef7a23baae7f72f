package kfmt

import (
	"bytes"
	"errors"
	"testing"

	"zipos/kernel"
	"zipos/kernel/cpu"
)

func TestPanic(t *testing.T) {
	defer func() {
		haltFn = cpu.HaltForever
		outputSink = nil
		panicHook = nil
	}()

	var haltCalled bool
	haltFn = func() {
		haltCalled = true
	}

	var buf bytes.Buffer
	SetOutputSink(&buf)

	specs := []struct {
		descr string
		arg   interface{}
		exp   string
	}{
		{
			"with *kernel.Error",
			&kernel.Error{Module: "test", Message: "panic test"},
			"\n-----------------------------------\n[test] unrecoverable error: panic test\n*** kernel panic: system halted ***\n-----------------------------------\n",
		},
		{
			"with *kernel.Error and kind",
			&kernel.Error{Module: "zipfs", Message: "bad signature", Kind: kernel.KindMalformed},
			"\n-----------------------------------\n[zipfs] unrecoverable malformed error: bad signature\n*** kernel panic: system halted ***\n-----------------------------------\n",
		},
		{
			"with error",
			errors.New("go error"),
			"\n-----------------------------------\n[rt] unrecoverable error: go error\n*** kernel panic: system halted ***\n-----------------------------------\n",
		},
		{
			"with string",
			"string error",
			"\n-----------------------------------\n[rt] unrecoverable error: string error\n*** kernel panic: system halted ***\n-----------------------------------\n",
		},
		{
			"without error",
			nil,
			"\n-----------------------------------\n*** kernel panic: system halted ***\n-----------------------------------\n",
		},
	}

	for _, spec := range specs {
		t.Run(spec.descr, func(t *testing.T) {
			haltCalled = false
			buf.Reset()

			Panic(spec.arg)

			if got := buf.String(); got != spec.exp {
				t.Fatalf("expected to get:\n%q\ngot:\n%q", spec.exp, got)
			}

			if !haltCalled {
				t.Fatal("expected the CPU to be halted by Panic")
			}
		})
	}
}

func TestPanicHook(t *testing.T) {
	defer func() {
		haltFn = cpu.HaltForever
		outputSink = nil
		panicHook = nil
	}()

	var buf bytes.Buffer
	SetOutputSink(&buf)

	var calls []string
	haltFn = func() { calls = append(calls, "halt") }

	expErr := &kernel.Error{Module: "test", Message: "hooked"}
	SetPanicHook(func(err *kernel.Error) {
		if err != expErr {
			t.Errorf("expected hook to receive %v; got %v", expErr, err)
		}
		calls = append(calls, "hook")
	})

	Panic(expErr)
	if len(calls) != 2 || calls[0] != "hook" || calls[1] != "halt" {
		t.Fatalf("expected the hook to run before the halt; got %v", calls)
	}

	// the hook is one-shot
	calls = nil
	Panic(expErr)
	if len(calls) != 1 || calls[0] != "halt" {
		t.Fatalf("expected the hook not to run again; got %v", calls)
	}
}
