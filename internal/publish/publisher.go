// Package publish defines the contract to the publishing collaborator. The
// pipeline hands over ranked candidates one at a time; rendering, taxonomy,
// and persistence of the published entity all live behind this interface.
package publish

import (
	"context"
	"errors"

	"github.com/curator-agent/internal/models"
)

// ErrDailyLimitReached is returned by a Publisher when the collaborator
// refuses further posts for the day. The scheduler stops submitting the
// rest of the batch when it sees this error.
var ErrDailyLimitReached = errors.New("daily post limit reached")

// Publisher publishes one candidate for a genre and returns the id the
// collaborator assigned to the published entity.
type Publisher interface {
	Publish(ctx context.Context, genreID string, candidate models.Candidate) (publishedID string, err error)
}
