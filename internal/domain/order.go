package domain

import "time"

// OrderStatus es el estado de una orden en el broker.
//
// PENDING → PARTIAL_FILLED → {FILLED, REJECTED}
// PENDING → {FILLED, REJECTED}
//
// Una orden nunca regresa desde un estado terminal, y PARTIAL_FILLED
// solo avanza hacia FILLED o REJECTED en la reconciliación.
type OrderStatus string

const (
	OrderPending       OrderStatus = "PENDING"
	OrderPartialFilled OrderStatus = "PARTIAL_FILLED"
	OrderFilled        OrderStatus = "FILLED"
	OrderRejected      OrderStatus = "REJECTED"
)

// Terminal devuelve true si el estado no admite más transiciones.
func (s OrderStatus) Terminal() bool {
	return s == OrderFilled || s == OrderRejected
}

// CanTransition valida una transición del ciclo de vida de la orden.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case OrderPending:
		return to == OrderPartialFilled || to == OrderFilled || to == OrderRejected
	case OrderPartialFilled:
		return to == OrderFilled || to == OrderRejected
	}
	return false
}

// Order es el estado interno del broker para un intent en ejecución.
type Order struct {
	ID          string // client order ID, idempotente entre reintentos
	Intent      TradeIntent
	Status      OrderStatus
	FilledSize  float64
	FilledPrice float64
	SubmittedAt time.Time
	ResolvedAt  time.Time
}

// OrderResult es el resultado terminal de ejecutar un intent.
// Un REJECTED siempre lleva Reason y nunca mutó el portfolio.
type OrderResult struct {
	OrderID     string
	Status      OrderStatus
	FilledSize  float64
	FilledPrice float64
	Reason      string
}

// Filled devuelve true si la orden ejecutó (total o parcialmente).
func (r OrderResult) Filled() bool {
	return r.Status == OrderFilled && r.FilledSize > 0
}
