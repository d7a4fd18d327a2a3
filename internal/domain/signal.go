package domain

import (
	"sort"
	"strings"
)

// Direction es el lado de una posición.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Sign devuelve +1 para long y -1 para short.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// Opposite devuelve el lado contrario.
func (d Direction) Opposite() Direction {
	if d == Short {
		return Long
	}
	return Short
}

// DirectionOf devuelve long si v >= 0 y short en caso contrario.
func DirectionOf(v float64) Direction {
	if v < 0 {
		return Short
	}
	return Long
}

// Leg es un activo dentro de una posición (las posiciones pueden ser multi-activo).
type Leg struct {
	Denom     string    `json:"denom"`
	Direction Direction `json:"direction"`
	Weight    float64   `json:"weight"` // peso relativo; 0 se trata como 1
}

func (l Leg) weight() float64 {
	if l.Weight <= 0 {
		return 1
	}
	return l.Weight
}

// Signal es la recomendación de entrada producida por una estrategia.
type Signal struct {
	Strategy string
	Legs     []Leg
	Score    float64 // > 0; más alto = señal más fuerte
	Reason   string
}

// NewSignal crea una señal de un solo activo.
func NewSignal(strategy, denom string, dir Direction, score float64, reason string) Signal {
	return Signal{
		Strategy: strategy,
		Legs:     []Leg{{Denom: denom, Direction: dir, Weight: 1}},
		Score:    score,
		Reason:   reason,
	}
}

// Denoms devuelve los denoms de la señal.
func (s Signal) Denoms() []string {
	out := make([]string, len(s.Legs))
	for i, l := range s.Legs {
		out[i] = l.Denom
	}
	return out
}

// Key identifica la señal por sus activos y lados, independiente del orden.
func (s Signal) Key() string {
	parts := make([]string, len(s.Legs))
	for i, l := range s.Legs {
		parts[i] = l.Denom + ":" + string(l.Direction)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// SortSignals ordena por score descendente; a igual score por Key para que
// el orden sea estable entre runs.
func SortSignals(signals []Signal) {
	sort.SliceStable(signals, func(i, j int) bool {
		if signals[i].Score != signals[j].Score {
			return signals[i].Score > signals[j].Score
		}
		return signals[i].Key() < signals[j].Key()
	})
}
