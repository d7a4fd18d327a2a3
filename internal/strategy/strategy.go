package strategy

import (
	"fmt"
	"math"
	"sort"

	"github.com/alejandrodnm/perpbot/internal/domain"
)

// Input es lo que recibe una estrategia en cada run: la foto del mercado y el
// state persistido (que ya incluye el precio actual en el histórico).
type Input struct {
	Snapshot domain.Snapshot
	State    *domain.State
}

// Strategy define el contrato de una estrategia de trading.
// Las estrategias son puras: no llaman a la plataforma ni tocan el state.
type Strategy interface {
	// Name devuelve el identificador único de la estrategia.
	Name() string

	// Description es una línea para -list.
	Description() string

	// Evaluate puntúa los mercados y devuelve las señales de entrada.
	Evaluate(in Input) []domain.Signal

	// ShouldExit devuelve true (y el motivo) si la posición debe cerrarse por
	// una condición propia de la estrategia. TP/SL/max hold los aplica el engine.
	ShouldExit(pos domain.Position, in Input) (bool, string)
}

// Params son los umbrales numéricos de una estrategia, leídos del YAML.
type Params map[string]float64

// Get devuelve el valor de key o def si no está definido.
func (p Params) Get(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Int devuelve el valor de key truncado a entero, o def.
func (p Params) Int(key string, def int) int {
	if v, ok := p[key]; ok {
		return int(v)
	}
	return def
}

// Positive devuelve el valor de key si es un número > 0, o def. Se usa para
// los umbrales que dividen el score.
func (p Params) Positive(key string, def float64) float64 {
	if v, ok := p[key]; ok && v > 0 && !math.IsInf(v, 0) {
		return v
	}
	return def
}

// Factory construye una estrategia a partir de sus parámetros.
type Factory func(Params) Strategy

// Registry mantiene las estrategias disponibles indexadas por nombre.
type Registry map[string]Factory

// NewRegistry crea un registry vacío.
func NewRegistry() Registry {
	return make(Registry)
}

// Default devuelve un registry con todas las estrategias incluidas.
func Default() Registry {
	r := NewRegistry()
	r.Register(momentumName, NewMomentum)
	r.Register(meanReversionName, NewMeanReversion)
	r.Register(fundingHarvestName, NewFundingHarvest)
	r.Register(fundingZScoreName, NewFundingZScore)
	r.Register(oiImbalanceName, NewOIImbalance)
	r.Register(volatilityBreakoutName, NewVolatilityBreakout)
	r.Register(smaCrossoverName, NewSMACrossover)
	r.Register(basketName, NewBasket)
	r.Register(compositeName, NewComposite)
	return r
}

// Register añade una estrategia al registry.
func (r Registry) Register(name string, f Factory) {
	r[name] = f
}

// Build construye la estrategia por nombre.
func (r Registry) Build(name string, params Params) (Strategy, error) {
	f, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("strategy.Build %q: %w", name, domain.ErrUnknownStrategy)
	}
	if params == nil {
		params = Params{}
	}
	return f(params), nil
}

// Names devuelve los nombres registrados, ordenados.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// pricedDenoms devuelve los denoms habilitados que tienen precio en la foto.
func pricedDenoms(in Input) []string {
	var out []string
	for _, d := range in.Snapshot.Denoms() {
		if _, ok := in.Snapshot.Price(d); ok {
			out = append(out, d)
		}
	}
	return out
}

// exitOnAnyLeg aplica check a cada activo de la posición y sale en el primero
// que lo pide.
func exitOnAnyLeg(pos domain.Position, check func(domain.Leg) (bool, string)) (bool, string) {
	for _, l := range pos.Legs {
		if exit, why := check(l); exit {
			return true, why
		}
	}
	return false, ""
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
