package core

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Wire messages are transient: they live only in the queue substrate and
// are consumed once per enqueue. Shapes must stay compatible across every
// process sharing the substrate.

// jobMessage rides the processor queue.
type jobMessage struct {
	RequestID uuid.UUID    `json:"requestId"`
	Attempt   int          `json:"attempt,omitempty"`
	Callback  *callbackRef `json:"callback,omitempty"`
}

// callbackRef names the callback queue and carries the message that will
// be replayed onto it once the job leaves PROCESSING.
type callbackRef struct {
	Name string          `json:"name"`
	Data callbackMessage `json:"data"`
}

// callbackMessage rides the callback queue.
type callbackMessage struct {
	ID      uuid.UUID       `json:"id"`
	Name    string          `json:"name"` // processor name
	Context json.RawMessage `json:"context"`
}

// Key layout below matches the deployed substrate namespace; changing it
// orphans in-flight messages, cache entries and locks.

func jobQueueKey(processor string) string {
	return "resolvers:" + processor + ":queue"
}

func lockKey(processor, key string) string {
	return "resolvers:" + processor + ":lock:" + key
}

func cacheKey(processor, key string) string {
	return "resolvers:" + processor + ":result-cache:" + key
}

func callbackQueueKey(callback string) string {
	return "callbacks:" + callback
}
