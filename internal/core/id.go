package core

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

type SessionID string

type GenerationID string

type RequestID string

type OwnerID string

func NewSessionID() SessionID {
	return SessionID("sess_" + timestamp() + "_" + randomSeed())
}

func NewGenerationID() GenerationID {
	return GenerationID("gen_" + timestamp() + "_" + randomSeed())
}

func NewRequestID() RequestID {
	return RequestID("req_" + timestamp() + "_" + randomSeed())
}

// HoldKey derives the quota hold key for one generation attempt. Concurrent
// regenerations of the same session get distinct keys, so their holds never
// collide.
func HoldKey(sessionID SessionID, requestID RequestID) string {
	return string(sessionID) + ":" + string(requestID)
}

func timestamp() string {
	return time.Now().UTC().Format("20060102T150405.000000000")
}

func randomSeed() string {
	buffer := make([]byte, 6)
	_, _ = rand.Read(buffer)
	return hex.EncodeToString(buffer)
}
