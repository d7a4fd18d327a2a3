package domain

import (
	"errors"
	"strings"
)

var (
	// ErrSequenceMismatch lo devuelve la plataforma cuando la secuencia de la
	// cuenta no coincide (otra tx del mismo wallet todavía no se incluyó en bloque).
	ErrSequenceMismatch = errors.New("account sequence mismatch")

	// ErrNoPrice indica que no hay precio para un activo.
	ErrNoPrice = errors.New("no price available")

	// ErrUnknownStrategy indica que el nombre de estrategia no está registrado.
	ErrUnknownStrategy = errors.New("unknown strategy")

	// ErrLocked indica que otro proceso está ejecutando la misma estrategia.
	ErrLocked = errors.New("strategy state is locked by another run")
)

// IsSequenceMismatch devuelve true si err es (o contiene el texto de) un
// account sequence mismatch. Los errores que llegan como texto desde la cadena
// no siempre están envueltos, así que también se compara el mensaje.
func IsSequenceMismatch(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSequenceMismatch) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), ErrSequenceMismatch.Error())
}
