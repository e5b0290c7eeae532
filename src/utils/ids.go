package utils

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	// Monotonic so references generated within the same millisecond stay ordered.
	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// NewReference returns a ULID string for audit rows.
func NewReference() string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), mono)
	if err != nil {
		panic(err)
	}
	return id.String()
}

// NewClientOrderID returns a fresh idempotency token for callers that did not supply one.
func NewClientOrderID() string {
	return uuid.NewString()
}
