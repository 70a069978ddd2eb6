package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/finlive/streamchat-server/internal/store"
)

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

// recorder captures every event delivered to a connection.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) sender() Sender {
	return func(_ context.Context, ev Event) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, ev)
		return nil
	}
}

func (r *recorder) byKind(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func (r *recorder) lastError() *Error {
	errs := r.byKind(EventError)
	if len(errs) == 0 {
		return nil
	}
	return errs[len(errs)-1].Err
}

// failingSender always fails; permanent selects the failure class.
func failingSender(permanent bool) Sender {
	return func(_ context.Context, _ Event) error {
		return &DeliveryError{Permanent: permanent, Err: fmt.Errorf("peer unreachable")}
	}
}

// dyingSender succeeds for the first n deliveries, then fails permanently.
func dyingSender(successes int) Sender {
	var mu sync.Mutex
	return func(_ context.Context, _ Event) error {
		mu.Lock()
		defer mu.Unlock()
		if successes > 0 {
			successes--
			return nil
		}
		return &DeliveryError{Permanent: true, Err: fmt.Errorf("peer gone")}
	}
}

// fakeStore is an in-memory store.Store for coordinator tests.
type fakeStore struct {
	mu   sync.Mutex
	msgs []store.Message
	seq  int

	appendErr error
}

func (f *fakeStore) Append(_ context.Context, msg store.Message) (store.Message, error) {
	body, err := store.ValidateBody(msg.Body)
	if err != nil {
		return store.Message{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return store.Message{}, f.appendErr
	}
	f.seq++
	msg.Body = body
	msg.ID = fmt.Sprintf("m%d", f.seq)
	msg.CreatedAt = time.Now()
	f.msgs = append(f.msgs, msg)
	return msg, nil
}

func (f *fakeStore) Recent(_ context.Context, room string, limit int) ([]store.Message, error) {
	limit = store.ClampLimit(limit)
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Message
	for _, msg := range f.msgs {
		if msg.Room == room && !msg.Deleted {
			out = append(out, msg)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeStore) List(ctx context.Context, room string, limit, skip int) ([]store.Message, int64, error) {
	msgs, err := f.Recent(ctx, room, store.MaxListLimit)
	if err != nil {
		return nil, 0, err
	}
	total := int64(len(msgs))
	if skip < len(msgs) {
		msgs = msgs[skip:]
	} else {
		msgs = nil
	}
	if len(msgs) > store.ClampLimit(limit) {
		msgs = msgs[:store.ClampLimit(limit)]
	}
	return msgs, total, nil
}

func (f *fakeStore) SoftDelete(_ context.Context, id, deletedBy string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.msgs {
		if f.msgs[i].ID == id {
			f.msgs[i].Deleted = true
			f.msgs[i].DeletedBy = deletedBy
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) Count(_ context.Context, room string, includeDeleted bool) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, msg := range f.msgs {
		if msg.Room == room && (includeDeleted || !msg.Deleted) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) Stats(_ context.Context) (store.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var st store.Stats
	for _, msg := range f.msgs {
		if msg.Deleted {
			st.Deleted++
		} else {
			st.Total++
		}
	}
	return st, nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) bodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, msg := range f.msgs {
		out = append(out, msg.Body)
	}
	return out
}

func longBody(n int) string {
	return strings.Repeat("x", n)
}
