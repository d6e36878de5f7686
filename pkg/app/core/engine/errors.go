package engine

import "errors"

var (
	ErrOrderExpired       = errors.New("order expired")
	ErrOrderNotYetStarted = errors.New("order not yet started")
	ErrTakerMismatch      = errors.New("counterparty is not the order's taker")
	ErrOrderSidesMismatch = errors.New("orders must be one ASK and one BID")
	ErrSelfMatch          = errors.New("order cannot match itself")
	ErrReentrantCall      = errors.New("reentrant call during settlement")
)
