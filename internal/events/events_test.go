package events

import "testing"

func TestBusPublishFansOutToEverySubscriber(t *testing.T) {
	b := NewBus()
	var gotA, gotB Event
	b.Subscribe(func(e Event) { gotA = e })
	b.Subscribe(func(e Event) { gotB = e })

	b.Publish(TopicBatchComplete, BatchComplete{Successful: 3, Total: 3})

	if gotA.Topic != TopicBatchComplete || gotB.Topic != TopicBatchComplete {
		t.Fatalf("expected both subscribers to see the published topic, got %v and %v", gotA.Topic, gotB.Topic)
	}
	payload, ok := gotA.Payload.(BatchComplete)
	if !ok || payload.Successful != 3 {
		t.Errorf("expected payload {Successful:3}, got %+v (ok=%v)", gotA.Payload, ok)
	}
}

func TestBusPublishWithNoSubscribersDoesNotPanic(t *testing.T) {
	b := NewBus()
	b.Publish(TopicProcessingError, ProcessingError{Error: "boom"})
}

func TestBusPreservesSubscriptionOrder(t *testing.T) {
	b := NewBus()
	var order []int
	b.Subscribe(func(Event) { order = append(order, 1) })
	b.Subscribe(func(Event) { order = append(order, 2) })
	b.Subscribe(func(Event) { order = append(order, 3) })

	b.Publish(TopicChunkInfo, ChunkInfo{ChunkIndex: 0, ChunkCount: 1, ChunkSize: 500})

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("expected handlers invoked in subscription order, got %v", order)
	}
}
