package perps

// trading.go: ejecuciones firmadas por la wallet a través del gateway.
//
// Implementa ports.Trader. Cada mensaje execute se firma con la clave secp256k1
// de la wallet: firma = sign(keccak256(body)), enviada junto a los headers de
// address y timestamp. El gateway hace broadcast de la tx y responde con el
// código de resultado y el raw log de la cadena.

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/perpbot/internal/domain"
)

const (
	headerAddress   = "X-Address"
	headerTimestamp = "X-Timestamp"
	headerSignature = "X-Signature"
)

// TradingClient abre y cierra posiciones de una wallet.
type TradingClient struct {
	*Client
	gatewayBase string
	key         *ecdsa.PrivateKey
	address     string
	execLimiter *rate.Limiter
	now         func() time.Time
}

// NewTradingClient crea el cliente de trading. privateKeyHex puede llevar prefijo 0x.
func NewTradingClient(cfg Config, privateKeyHex string) (*TradingClient, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("perps.NewTradingClient: invalid private key: %w", err)
	}
	if cfg.GatewayBase == "" {
		return nil, errors.New("perps.NewTradingClient: gateway base URL is required")
	}
	return &TradingClient{
		Client:      NewClient(cfg),
		gatewayBase: cfg.GatewayBase,
		key:         key,
		address:     crypto.PubkeyToAddress(key.PublicKey).Hex(),
		execLimiter: rate.NewLimiter(execRatePerSec, 1),
		now:         time.Now,
	}, nil
}

// Address devuelve la dirección derivada de la clave privada.
func (t *TradingClient) Address() string {
	return t.address
}

// Balance devuelve el saldo de colateral de la wallet en USDC.
func (t *TradingClient) Balance(ctx context.Context) (float64, error) {
	return t.BalanceOf(ctx, t.address)
}

// Positions devuelve las posiciones abiertas de la wallet según el contrato.
func (t *TradingClient) Positions(ctx context.Context) ([]domain.RemotePosition, error) {
	return t.PositionsOf(ctx, t.address)
}

// OpenPosition envía el colateral y abre una posición (posiblemente multi-activo).
func (t *TradingClient) OpenPosition(ctx context.Context, req domain.OpenRequest) (domain.TxResult, error) {
	if len(req.Legs) == 0 {
		return domain.TxResult{}, errors.New("perps.OpenPosition: no legs")
	}
	if req.Collateral <= 0 {
		return domain.TxResult{}, fmt.Errorf("perps.OpenPosition: invalid collateral %.6f", req.Collateral)
	}

	var msg openPositionMsg
	for _, l := range req.Legs {
		w := l.Weight
		if w <= 0 {
			w = 1
		}
		msg.OpenPosition.Legs = append(msg.OpenPosition.Legs, openLeg{
			Denom:     l.Denom,
			Direction: string(l.Direction),
			Weight:    formatDecimal(w),
		})
	}
	msg.OpenPosition.Leverage = formatDecimal(req.Leverage)

	funds := []coin{{Denom: t.collateralDenom, Amount: toMicro(req.Collateral)}}
	res, err := t.execute(ctx, msg, funds)
	if err != nil {
		return domain.TxResult{}, fmt.Errorf("perps.OpenPosition: %w", err)
	}
	return res, nil
}

// ClosePosition cierra la posición con el id dado.
func (t *TradingClient) ClosePosition(ctx context.Context, positionID string) (domain.TxResult, error) {
	var msg closePositionMsg
	msg.ClosePosition.ID = positionID
	res, err := t.execute(ctx, msg, nil)
	if err != nil {
		return domain.TxResult{}, fmt.Errorf("perps.ClosePosition %s: %w", positionID, err)
	}
	if res.PositionID == "" {
		res.PositionID = positionID
	}
	return res, nil
}

// execute firma y envía un mensaje execute. Aquí nunca se reintenta: un
// timeout puede acabar igualmente en la cadena.
func (t *TradingClient) execute(ctx context.Context, msg any, funds []coin) (domain.TxResult, error) {
	ts := t.now().Unix()
	body, err := json.Marshal(executeRequest{
		Contract:  t.contract,
		Sender:    t.address,
		Msg:       msg,
		Funds:     funds,
		Timestamp: ts,
	})
	if err != nil {
		return domain.TxResult{}, fmt.Errorf("marshal execute: %w", err)
	}

	sig, err := signBody(t.key, body)
	if err != nil {
		return domain.TxResult{}, err
	}

	raw, err := t.post(ctx, t.execLimiter, 0, t.gatewayBase+"/execute", body, map[string]string{
		headerAddress:   t.address,
		headerTimestamp: strconv.FormatInt(ts, 10),
		headerSignature: sig,
	})
	if err != nil {
		var he *httpError
		if errors.As(err, &he) && domain.IsSequenceMismatch(errors.New(he.Body)) {
			return domain.TxResult{}, fmt.Errorf("%w: %s", domain.ErrSequenceMismatch, he.Body)
		}
		return domain.TxResult{}, err
	}

	var resp executeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return domain.TxResult{}, fmt.Errorf("decode execute response: %w", err)
	}
	if resp.Code != 0 {
		if domain.IsSequenceMismatch(errors.New(resp.RawLog)) {
			return domain.TxResult{}, fmt.Errorf("%w: %s", domain.ErrSequenceMismatch, resp.RawLog)
		}
		return domain.TxResult{}, fmt.Errorf("tx %s failed with code %d: %s", resp.TxHash, resp.Code, resp.RawLog)
	}
	return domain.TxResult{TxHash: resp.TxHash, PositionID: resp.PositionID}, nil
}

// signBody devuelve la firma [R || S || V] de 65 bytes, en hex 0x, de keccak256(body).
func signBody(key *ecdsa.PrivateKey, body []byte) (string, error) {
	hash := crypto.Keccak256Hash(body)
	sig, err := crypto.Sign(hash.Bytes(), key)
	if err != nil {
		return "", fmt.Errorf("sign execute: %w", err)
	}
	return hexutil.Encode(sig), nil
}
