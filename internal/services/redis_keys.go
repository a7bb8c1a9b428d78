package services

import "time"

const (
	KeyUser         = "user:%s"
	KeySession      = "session:%s"
	KeyIndexKick    = "index:kick:%s"
	KeyIndexGamdom  = "index:gamdom:%s"
	KeyIndexDiscord = "index:discord:%s"
	KeyRound        = "round:%s"
	KeyUserRounds   = "user:%s:rounds"
	KeyUserRoundSeq = "user:%s:round_seq"
	KeyMinesActive  = "mines:active:%s"
	KeyRateLimit    = "ratelimit:%s:%s"

	DefaultMinesSessionTTL = 24 * time.Hour

	DefaultRateLimitPlays   = 30  // per minute
	DefaultRateLimitReveals = 120 // per minute
)
