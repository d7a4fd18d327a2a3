package perps

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/valyala/fastjson"

	"github.com/alejandrodnm/perpbot/internal/domain"
)

// microDecimals es la precisión del colateral (1 USDC = 1e6 uusdc).
const microDecimals = 6

// toMarkets convierte los mercados crudos descartando los deshabilitados.
// Un mercado sin campo enabled se considera habilitado.
func toMarkets(raw []rawMarket) []domain.Market {
	out := make([]domain.Market, 0, len(raw))
	for _, m := range raw {
		if m.Denom == "" || (m.Enabled != nil && !*m.Enabled) {
			continue
		}
		display := m.Display
		if display == "" {
			display = domain.Ticker(m.Denom)
		}
		out = append(out, domain.Market{Denom: m.Denom, Display: display})
	}
	return out
}

// parseNumberMap lee un objeto denom → número. Los valores pueden venir como
// string decimal o como número JSON. Si field no está vacío y existe en el
// objeto raíz, se lee el objeto anidado. Valores no numéricos se ignoran.
func parseNumberMap(data []byte, field string) (map[string]float64, error) {
	obj, err := rootObject(data, field)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, obj.Len())
	obj.Visit(func(key []byte, v *fastjson.Value) {
		if f, ok := numberOf(v); ok {
			out[string(key)] = f
		}
	})
	return out, nil
}

// parseFunding lee un objeto denom → {rate, long_oi, short_oi}.
func parseFunding(data []byte, field string) (map[string]domain.Funding, error) {
	obj, err := rootObject(data, field)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Funding, obj.Len())
	obj.Visit(func(key []byte, v *fastjson.Value) {
		rate, ok := numberOf(v.Get("rate"))
		if !ok {
			return
		}
		longOI, _ := numberOf(v.Get("long_oi"))
		shortOI, _ := numberOf(v.Get("short_oi"))
		out[string(key)] = domain.Funding{Rate: rate, LongOI: longOI, ShortOI: shortOI}
	})
	return out, nil
}

func rootObject(data []byte, field string) (*fastjson.Object, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if field != "" {
		if nested := v.Get(field); nested != nil {
			v = nested
		}
	}
	obj, err := v.Object()
	if err != nil {
		return nil, fmt.Errorf("expected object: %w", err)
	}
	return obj, nil
}

// numberOf acepta "123.45" o 123.45.
func numberOf(v *fastjson.Value) (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch v.Type() {
	case fastjson.TypeNumber:
		f, err := v.Float64()
		return f, err == nil
	case fastjson.TypeString:
		d, err := decimal.NewFromString(string(v.GetStringBytes()))
		if err != nil {
			return 0, false
		}
		return d.InexactFloat64(), true
	default:
		return 0, false
	}
}

// fromMicro convierte micro-unidades ("12500000") a unidades (12.5).
func fromMicro(amount string) (float64, error) {
	if amount == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return d.Shift(-microDecimals).InexactFloat64(), nil
}

// toMicro convierte unidades a micro-unidades, truncando lo que no cabe.
func toMicro(units float64) string {
	return decimal.NewFromFloat(units).Shift(microDecimals).Truncate(0).String()
}

// formatDecimal serializa un float sin notación exponencial.
func formatDecimal(f float64) string {
	return decimal.NewFromFloat(f).String()
}
