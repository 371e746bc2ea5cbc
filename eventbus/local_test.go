// SPDX-License-Identifier: BUSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package eventbus

import "testing"

func TestLocalBus_DeliversToAllSubscribers(t *testing.T) {
	b := NewLocalBus()
	var first, second []Event
	b.Subscribe(func(e Event) { first = append(first, e) })
	b.Subscribe(func(e Event) { second = append(second, e) })

	b.Publish([]Event{{Kind: KindTrustUpdated, CycleID: 1}})

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected both subscribers to receive the event, got %d and %d", len(first), len(second))
	}
}

func TestLocalBus_PreservesEventOrder(t *testing.T) {
	b := NewLocalBus()
	var kinds []Kind
	b.Subscribe(func(e Event) { kinds = append(kinds, e.Kind) })

	b.Publish([]Event{
		{Kind: KindTrustUpdated, Sequence: 0},
		{Kind: KindStatusChanged, Sequence: 1},
		{Kind: KindReflectionRecorded, Sequence: 2},
	})

	want := []Kind{KindTrustUpdated, KindStatusChanged, KindReflectionRecorded}
	for i, k := range want {
		if kinds[i] != k {
			t.Fatalf("kinds[%d] = %v, want %v", i, kinds[i], k)
		}
	}
}

func TestLocalBus_PanickingSubscriberDoesNotBlockOthers(t *testing.T) {
	b := NewLocalBus()
	delivered := false
	b.Subscribe(func(e Event) { panic("boom") })
	b.Subscribe(func(e Event) { delivered = true })

	b.Publish([]Event{{Kind: KindTrustUpdated}})

	if !delivered {
		t.Fatal("a panicking subscriber must not prevent delivery to others")
	}
}

func TestLocalBus_NoSubscribersIsANoop(t *testing.T) {
	b := NewLocalBus()
	b.Publish([]Event{{Kind: KindTrustUpdated}})
}
