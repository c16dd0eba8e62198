package domain

import "errors"

// Errores de dominio del ledger de stock (sin dependencias externas).
// Las capas superiores los traducen a su propia superficie usando errors.Is.
var (
	ErrInvalidArgument   = errors.New("argumento inválido")
	ErrNotFound          = errors.New("recurso no encontrado")
	ErrInsufficientStock = errors.New("stock insuficiente")
	ErrInvalidState      = errors.New("transición de estado inválida")
	// ErrTransient: timeout o conflicto de transacción. Se puede reintentar la operación completa.
	ErrTransient = errors.New("fallo transitorio, reintentar")
	// ErrAnomaly: los lotes de costo no cuadran con la cantidad del producto.
	ErrAnomaly     = errors.New("anomalía entre lotes de costo y cantidad")
	ErrDuplicate   = errors.New("recurso duplicado")
	ErrQueueClosed = errors.New("cola de tareas cerrada")
)
