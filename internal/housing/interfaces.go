package housing

import (
	"context"
	"time"
)

// Fetcher retrieves the decoded text of a listing or discovery page.
type Fetcher interface {
	FetchText(ctx context.Context, d Descriptor) (string, error)
}

// Sink receives the complete listing set for one world.
type Sink interface {
	Persist(ctx context.Context, server Server, listings []Listing) (ServerResult, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
