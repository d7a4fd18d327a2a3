package domain

import "math"

// SMA devuelve la media simple de los últimos period valores.
// Devuelve 0 si no hay suficientes datos.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// StdDev devuelve la desviación estándar poblacional de los últimos period valores.
func StdDev(values []float64, period int) float64 {
	if period < 2 || len(values) < period {
		return 0
	}
	window := values[len(values)-period:]
	mean := SMA(window, period)
	variance := 0.0
	for _, v := range window {
		d := v - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(period))
}

// PctChange devuelve el cambio relativo entre el valor de hace lookback
// puntos y el último. Devuelve 0 si no hay datos o la base es 0.
func PctChange(values []float64, lookback int) float64 {
	if lookback <= 0 || len(values) <= lookback {
		return 0
	}
	base := values[len(values)-1-lookback]
	if base == 0 {
		return 0
	}
	return (values[len(values)-1] - base) / base
}

// Returns devuelve los retornos simples punto a punto.
func Returns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (values[i]-values[i-1])/values[i-1])
	}
	return out
}

// Volatility es la desviación estándar de los últimos period retornos.
func Volatility(prices []float64, period int) float64 {
	return StdDev(Returns(prices), period)
}

// ZScore devuelve (último - media) / stddev sobre los últimos period valores.
// Devuelve 0 si la desviación es 0 o faltan datos.
func ZScore(values []float64, period int) float64 {
	sd := StdDev(values, period)
	if sd == 0 {
		return 0
	}
	return (values[len(values)-1] - SMA(values, period)) / sd
}

// VolatilityRatio compara la volatilidad reciente (short) con la de fondo (long).
// > 1 = el mercado se está moviendo más de lo normal.
func VolatilityRatio(prices []float64, short, long int) float64 {
	lv := Volatility(prices, long)
	if lv == 0 {
		return 0
	}
	return Volatility(prices, short) / lv
}
