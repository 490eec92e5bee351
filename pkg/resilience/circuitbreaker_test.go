package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/buymove/buymove-client/pkg/fn"
)

var errFail = errors.New("fail")

func failN(b *Breaker, n int) {
	for i := 0; i < n; i++ {
		_ = b.Call(context.Background(), func(context.Context) error { return errFail })
	}
}

func TestBreakerStartsClosed(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Timeout: time.Second})
	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %v", b.State())
	}
}

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Timeout: time.Second})
	failN(b, 3)
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %v", b.State())
	}

	called := false
	err := b.Call(context.Background(), func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Fatal("open breaker must not run the call")
	}
}

func TestBreakerResetsOnSuccess(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Timeout: time.Second})
	failN(b, 2)
	_ = b.Call(context.Background(), func(context.Context) error { return nil })
	failN(b, 2)
	if b.State() != StateClosed {
		t.Fatalf("expected still closed, got %v", b.State())
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: 10 * time.Second})
	b.now = func() time.Time { return now }

	failN(b, 1)
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %v", b.State())
	}

	now = now.Add(11 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %v", b.State())
	}

	failN(b, 1)
	if b.State() != StateOpen {
		t.Fatalf("failed probe should reopen, got %v", b.State())
	}

	now = now.Add(11 * time.Second)
	if err := b.Call(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if b.State() != StateClosed {
		t.Fatalf("successful probe should close, got %v", b.State())
	}
}

func TestBreakerHalfOpenLimitsProbes(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: time.Second, HalfOpenMax: 1})
	b.now = func() time.Time { return now }
	failN(b, 1)
	now = now.Add(2 * time.Second)

	release := make(chan struct{})
	done := make(chan error, 1)
	started := make(chan struct{})
	go func() {
		done <- b.Call(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := b.Call(context.Background(), func(context.Context) error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("second probe should be rejected, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestBreakerTripsFilter(t *testing.T) {
	notFound := errors.New("not found")
	b := NewBreaker(BreakerOpts{
		FailThreshold: 2,
		Timeout:       time.Second,
		Trips:         func(err error) bool { return !errors.Is(err, notFound) },
	})
	for i := 0; i < 5; i++ {
		err := b.Call(context.Background(), func(context.Context) error { return notFound })
		if !errors.Is(err, notFound) {
			t.Fatalf("error should pass through, got %v", err)
		}
	}
	if b.State() != StateClosed {
		t.Fatalf("non-tripping errors must not open the breaker, got %v", b.State())
	}
}

func TestBreakerOnStateChange(t *testing.T) {
	var transitions []string
	now := time.Now()
	b := NewBreaker(BreakerOpts{
		FailThreshold: 1,
		Timeout:       time.Second,
		OnStateChange: func(from, to State) { transitions = append(transitions, from.String()+">"+to.String()) },
	})
	b.now = func() time.Time { return now }

	failN(b, 1)
	now = now.Add(2 * time.Second)
	_ = b.Call(context.Background(), func(context.Context) error { return nil })

	want := []string{"closed>open", "open>half-open", "half-open>closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", transitions, want)
		}
	}
}

func TestCallResult(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: time.Minute})

	r := CallResult(b, context.Background(), func(context.Context) fn.Result[int] { return fn.Ok(7) })
	if v, err := r.Unwrap(); err != nil || v != 7 {
		t.Fatalf("got %v, %v", v, err)
	}

	r = CallResult(b, context.Background(), func(context.Context) fn.Result[int] { return fn.Err[int](errFail) })
	if r.IsOk() {
		t.Fatal("expected error")
	}
	r = CallResult(b, context.Background(), func(context.Context) fn.Result[int] { return fn.Ok(1) })
	if !errors.Is(r.Error(), ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", r.Error())
	}
}

func TestStateString(t *testing.T) {
	if StateHalfOpen.String() != "half-open" || State(9).String() != "unknown" {
		t.Fatal("unexpected state names")
	}
}
