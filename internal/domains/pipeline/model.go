package pipeline

import (
	"time"

	"github.com/google/uuid"
)

type Chain string

const (
	ChainSOL Chain = "sol"
	ChainBNB Chain = "bnb"
)

func (c Chain) String() string {
	return string(c)
}

type Stage string

const (
	StageDetected             Stage = "detected"
	StageSentToScanner        Stage = "sent_to_scanner"
	StageAwaitingStepOneReply Stage = "awaiting_step_one_reply"
	StageAwaitingStepTwoReply Stage = "awaiting_step_two_reply"
	// StageForwarded is terminal and never stored.
	StageForwarded Stage = "forwarded"
)

func (s Stage) String() string {
	return string(s)
}

// Instance is one address travelling through its chain's stages.
type Instance struct {
	Address   string
	Chain     Chain
	Stage     Stage
	CreatedAt time.Time
	TraceID   uuid.UUID
}
