package mongodb

import (
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

// Now returns the current time truncated to millisecond precision, matching
// what BSON round-trips.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// GenerateIDString returns a new uuid string for document ids
func GenerateIDString() string {
	return uuid.New().String()
}

// SortAsc builds an ascending sort document
func SortAsc(fields ...string) bson.D {
	sort := bson.D{}
	for _, f := range fields {
		sort = append(sort, bson.E{Key: f, Value: 1})
	}
	return sort
}

// SortDesc builds a descending sort document
func SortDesc(fields ...string) bson.D {
	sort := bson.D{}
	for _, f := range fields {
		sort = append(sort, bson.E{Key: f, Value: -1})
	}
	return sort
}
