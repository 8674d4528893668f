package hardware

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"strconv"
	"sync"

	"codeberg.org/meshalyzer/rigctl/internal/errors"
	"codeberg.org/meshalyzer/rigctl/internal/logger"
)

// frame is one newline-delimited message from the remote ADC host.
type frame struct {
	Sensors map[string]float64 `json:"sensors"`
}

// NetSensor receives pressure readings streamed by a remote acquisition host
// as newline-delimited JSON: {"sensors":{"channel_0":1.2,"channel_1":...}}.
// Only the latest reading is kept.
type NetSensor struct {
	addr string

	mu       sync.RWMutex
	latest   [Channels]float64
	received bool
	listener net.Listener
}

func NewNetSensor(addr string) *NetSensor {
	return &NetSensor{addr: addr}
}

// Addr returns the bound address once Serve is listening.
func (n *NetSensor) Addr() net.Addr {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.listener == nil {
		return nil
	}
	return n.listener.Addr()
}

// Serve accepts one sender at a time until ctx is cancelled.
func (n *NetSensor) Serve(ctx context.Context) error {
	errFactory := errors.New()

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", n.addr)
	if err != nil {
		return errFactory.Wrap(ErrListenFailed, err)
	}

	n.mu.Lock()
	n.listener = ln
	n.mu.Unlock()

	logger.Info().Str("address", ln.Addr().String()).Msg("Listening for sensor stream")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errFactory.Wrap(ErrListenFailed, err)
		}

		logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("Sensor stream connected")
		n.consume(ctx, conn)
		logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("Sensor stream closed")
	}
}

func (n *NetSensor) consume(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if err := n.handleLine(scanner.Bytes()); err != nil {
			logger.Debug().Err(err).Msg("Dropping sensor frame")
		}
	}
}

func (n *NetSensor) handleLine(line []byte) error {
	errFactory := errors.New()

	var f frame
	if err := json.Unmarshal(line, &f); err != nil {
		return errFactory.Wrap(ErrInvalidFrame, err)
	}
	if f.Sensors == nil {
		return errFactory.WithMessage(ErrInvalidFrame, "missing sensors")
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	for i := 0; i < Channels; i++ {
		if v, ok := f.Sensors["channel_"+strconv.Itoa(i)]; ok {
			n.latest[i] = v
		}
	}
	n.received = true

	return nil
}

func (n *NetSensor) GetPressureSensors() ([Channels]float64, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if !n.received {
		return [Channels]float64{}, errors.New().New(ErrNoSample)
	}

	return n.latest, nil
}
