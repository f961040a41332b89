package main

import (
	"context"
	"errors"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type publishResult interface {
	Get(context.Context) (string, error)
}

// topicPublisher publishes to one topic. Messages sharing an ordering key are
// delivered in publish order; after a failure the key stays paused until
// ResumePublish is called.
type topicPublisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
	Stop()
}

type publisherOpener func(topic string) topicPublisher

// publisherPool keeps one publisher per topic for the lifetime of the process.
type publisherPool struct {
	mu      sync.Mutex
	open    publisherOpener
	byTopic map[string]topicPublisher
}

func newPublisherPool(open publisherOpener) *publisherPool {
	return &publisherPool{open: open, byTopic: make(map[string]topicPublisher)}
}

func (p *publisherPool) get(topic string) topicPublisher {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pub, ok := p.byTopic[topic]; ok {
		return pub
	}
	pub := p.open(topic)
	if pub != nil {
		p.byTopic[topic] = pub
	}
	return pub
}

// stopAll flushes pending messages and releases every publisher.
func (p *publisherPool) stopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for topic, pub := range p.byTopic {
		pub.Stop()
		delete(p.byTopic, topic)
	}
}

func gcpPublisherOpener(client pubSubClient) publisherOpener {
	return func(topic string) topicPublisher {
		pub := client.Publisher(topic)
		if pub == nil {
			return nil
		}
		pub.EnableMessageOrdering = true
		return &gcpPublisher{pub: pub}
	}
}

type gcpPublisher struct {
	pub *gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return &gcpPublishResult{res: p.pub.Publish(ctx, msg)}
}

func (p *gcpPublisher) ResumePublish(orderingKey string) {
	p.pub.ResumePublish(orderingKey)
}

func (p *gcpPublisher) Stop() {
	p.pub.Stop()
}

type gcpPublishResult struct {
	res *gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r.res == nil {
		return "", errors.New("publish result is nil")
	}
	return r.res.Get(ctx)
}
