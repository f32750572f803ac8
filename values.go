package apihub

import (
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// NewUUID returns a random version 4 UUID.
func NewUUID() string {
	return uuid.NewString()
}

// DynamoTTL returns the epoch second expireIn from now, the format DynamoDB
// time to live attributes expect.
func DynamoTTL(expireIn time.Duration) int64 {
	return time.Now().Add(expireIn).Unix()
}

// RandomInt returns a random int in [0, max). It returns 0 when max is not
// positive.
func RandomInt(max int) int {
	if max <= 0 {
		return 0
	}
	return rand.IntN(max)
}
