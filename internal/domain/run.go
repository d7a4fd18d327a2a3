package domain

import "time"

// ClosedPosition es una posición cerrada durante un run.
type ClosedPosition struct {
	Position Position
	PnLPct   float64
	Reason   string
	TxHash   string
	External bool // cerrada fuera del bot (liquidación, cierre manual)
}

// RunResult resume lo que hizo un run de una estrategia.
type RunResult struct {
	RunID     string
	Strategy  string
	StartedAt time.Time
	Duration  time.Duration
	Markets   int
	Balance   float64
	Signals   []Signal
	Opened    []Position
	Closed    []ClosedPosition
	Open      []Position // posiciones abiertas al terminar el run
	Skipped   []string   // señales descartadas y por qué
	Warnings  []string
}
