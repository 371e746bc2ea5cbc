// SPDX-License-Identifier: BUSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package eventbus

import "sync"

// Subscriber receives published events. It must not block for long —
// LocalBus delivers synchronously to each registered subscriber in
// registration order.
type Subscriber func(Event)

// LocalBus is an in-process, zero-dependency Publisher that fans out
// events to registered subscriber functions. It is the default event
// boundary backend.
type LocalBus struct {
	mu          sync.RWMutex
	subscribers []Subscriber
}

// NewLocalBus constructs an empty LocalBus.
func NewLocalBus() *LocalBus {
	return &LocalBus{}
}

// Subscribe registers fn to receive every future Publish call's events.
func (b *LocalBus) Subscribe(fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, fn)
}

// Publish delivers events to every subscriber in registration order. A
// panicking subscriber is recovered and does not prevent delivery to the
// remaining subscribers or remaining events.
func (b *LocalBus) Publish(events []Event) {
	b.mu.RLock()
	subs := make([]Subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, e := range events {
		for _, sub := range subs {
			deliver(sub, e)
		}
	}
}

func deliver(sub Subscriber, e Event) {
	defer func() { _ = recover() }()
	sub(e)
}
