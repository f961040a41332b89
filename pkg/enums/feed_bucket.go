package enums

// FeedBucket is the display classification of an order in the account feed.
type FeedBucket string

const (
	FeedBucketWaiting FeedBucket = "wartet"
	FeedBucketActive  FeedBucket = "aktiv"
	FeedBucketDone    FeedBucket = "fertig"
)

var feedBuckets = values[FeedBucket]{
	FeedBucketWaiting,
	FeedBucketActive,
	FeedBucketDone,
}

func (b FeedBucket) String() string { return string(b) }

func (b FeedBucket) IsValid() bool { return feedBuckets.has(b) }

func ParseFeedBucket(value string) (FeedBucket, error) {
	return feedBuckets.parse("feed bucket", value)
}
