package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/finlive/streamchat-server/internal/store"
)

// ctxAwareSender mimics the transport delivery function: it reports the
// delivery context's failure, permanent only on a deadline.
func ctxAwareSender(rec *recorder) Sender {
	inner := rec.sender()
	return func(ctx context.Context, ev Event) error {
		if err := ctx.Err(); err != nil {
			return &DeliveryError{Permanent: errors.Is(err, context.DeadlineExceeded), Err: err}
		}
		return inner(ctx, ev)
	}
}

func TestBroadcastDeliversToAll(t *testing.T) {
	r := NewRegistry()
	recs := make([]*recorder, 3)
	for i, id := range []string{"c1", "c2", "c3"} {
		recs[i] = &recorder{}
		r.Register(NewConnection(id, time.Hour, recs[i].sender()))
	}

	f := NewFanout(r, testLogger(), time.Second, 8)
	report := f.Broadcast(context.Background(), NewErrorEvent(ErrCodeBadRequest, "ping"))

	if report.Delivered != 3 {
		t.Fatalf("delivered = %d, want 3", report.Delivered)
	}
	if len(report.Pruned) != 0 {
		t.Fatalf("pruned = %v, want none", report.Pruned)
	}
	for i, rec := range recs {
		if got := len(rec.byKind(EventError)); got != 1 {
			t.Errorf("connection %d received %d events, want 1", i, got)
		}
	}
}

func TestBroadcastPrunesPermanentFailures(t *testing.T) {
	r := NewRegistry()
	good := &recorder{}
	r.Register(NewConnection("good", time.Hour, good.sender()))
	r.Register(NewConnection("dead1", time.Hour, failingSender(true)))
	r.Register(NewConnection("dead2", time.Hour, failingSender(true)))

	f := NewFanout(r, testLogger(), time.Second, 8)
	report := f.Broadcast(context.Background(), userCountEvent(3))

	if report.Delivered != 1 {
		t.Fatalf("delivered = %d, want 1", report.Delivered)
	}
	sort.Strings(report.Pruned)
	if len(report.Pruned) != 2 || report.Pruned[0] != "dead1" || report.Pruned[1] != "dead2" {
		t.Fatalf("pruned = %v, want [dead1 dead2]", report.Pruned)
	}
	if got := r.Len(); got != 1 {
		t.Fatalf("registry len = %d, want 1", got)
	}
	if got := len(good.byKind(EventUserCount)); got != 1 {
		t.Fatalf("healthy connection received %d events, want 1", got)
	}
}

func TestBroadcastKeepsTransientFailures(t *testing.T) {
	r := NewRegistry()
	r.Register(NewConnection("flaky", time.Hour, failingSender(false)))

	f := NewFanout(r, testLogger(), time.Second, 8)
	report := f.Broadcast(context.Background(), userCountEvent(1))

	if report.Delivered != 0 {
		t.Fatalf("delivered = %d, want 0", report.Delivered)
	}
	if len(report.Pruned) != 0 {
		t.Fatalf("pruned = %v, want none", report.Pruned)
	}
	if got := r.Len(); got != 1 {
		t.Fatalf("registry len = %d, want 1", got)
	}
}

func TestBroadcastTimeoutCountsAsPermanent(t *testing.T) {
	r := NewRegistry()
	stuck := func(ctx context.Context, _ Event) error {
		<-ctx.Done()
		return ctx.Err()
	}
	r.Register(NewConnection("stuck", time.Hour, stuck))

	f := NewFanout(r, testLogger(), 20*time.Millisecond, 8)
	report := f.Broadcast(context.Background(), userCountEvent(1))

	if len(report.Pruned) != 1 || report.Pruned[0] != "stuck" {
		t.Fatalf("pruned = %v, want [stuck]", report.Pruned)
	}
	if got := r.Len(); got != 0 {
		t.Fatalf("registry len = %d, want 0", got)
	}
}

func TestBroadcastIgnoresCallerCancellation(t *testing.T) {
	r := NewRegistry()
	recs := make([]*recorder, 8)
	for i := range recs {
		recs[i] = &recorder{}
		r.Register(NewConnection(fmt.Sprintf("c%d", i), time.Hour, ctxAwareSender(recs[i])))
	}

	f := NewFanout(r, testLogger(), time.Second, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := f.Broadcast(ctx, userCountEvent(8))

	if report.Delivered != len(recs) {
		t.Fatalf("delivered = %d, want %d", report.Delivered, len(recs))
	}
	if len(report.Pruned) != 0 {
		t.Fatalf("pruned = %v, want none", report.Pruned)
	}
	if got := r.Len(); got != len(recs) {
		t.Fatalf("registry len = %d, want %d", got, len(recs))
	}
}

func TestBroadcastPassesDoNotOvertake(t *testing.T) {
	r := NewRegistry()

	release := make(chan struct{})
	started := make(chan struct{}, 8)
	slow := func(_ context.Context, _ Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}
	for i := 0; i < 8; i++ {
		r.Register(NewConnection(fmt.Sprintf("slow%d", i), time.Hour, slow))
	}
	observer := &recorder{}
	r.Register(NewConnection("observer", time.Hour, observer.sender()))

	f := NewFanout(r, testLogger(), time.Second, 1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		f.Broadcast(context.Background(), messageEvent(store.Message{ID: "m1", Body: "hello"}))
	}()
	<-started
	go func() {
		defer wg.Done()
		f.Broadcast(context.Background(), deletedEvent("m1"))
	}()

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	kinds := observer.kinds()
	if len(kinds) != 2 {
		t.Fatalf("observer received %d events, want 2", len(kinds))
	}
	if kinds[0] != EventMessage || kinds[1] != EventMessageDeleted {
		t.Fatalf("observer saw deletion before creation: %v", kinds)
	}
}

func TestBroadcastEmptyRegistry(t *testing.T) {
	f := NewFanout(NewRegistry(), testLogger(), time.Second, 8)
	report := f.Broadcast(context.Background(), userCountEvent(0))
	if report.Delivered != 0 || len(report.Pruned) != 0 {
		t.Fatalf("report = %+v, want empty", report)
	}
}
