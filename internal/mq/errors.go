package mq

import "errors"

var (
	// ErrNotConnected — нет открытого соединения или канала.
	ErrNotConnected = errors.New("rabbitmq is not connected")

	// ErrRPCClosed — RPC-клиент остановлен или потерял канал ответов.
	ErrRPCClosed = errors.New("rpc client closed")

	// ErrRPCTimeout — ответ не получен до истечения таймаута.
	ErrRPCTimeout = errors.New("rpc timeout")

	// ErrUnknownMessageType — воркер не знает такого типа запроса.
	ErrUnknownMessageType = errors.New("unknown message type")
)
