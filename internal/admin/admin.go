// Package admin implements the operator administrative surface spec §6
// names ("start, stop, status, simulate"): a local unix-domain-socket
// JSON protocol, since the engine's external interfaces are a config
// document, an on-chain contract ABI, and CLI commands — not an HTTP
// API — so no SPEC_FULL.md component owns a web framework dependency.
package admin

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/flowshift/arbengine/internal/domain"
	"github.com/flowshift/arbengine/pkg/logger"
)

// Request is one admin command, JSON-encoded over the socket.
type Request struct {
	Cmd string `json:"cmd"` // "stop", "status", "simulate"
	N   int    `json:"n,omitempty"`
}

// ChainStatus summarizes one chain's budget/breaker state for "status".
type ChainStatus struct {
	ChainID           int64  `json:"chainId"`
	GasSpentNative    string `json:"gasSpentNative"`
	TradesSubmitted   int    `json:"tradesSubmitted"`
	RealizedMarginUSD string `json:"realizedMarginUsd"`
	BreakerState      string `json:"breakerState"`
}

// Status is the snapshot returned by "status".
type Status struct {
	KillSwitch     bool          `json:"killSwitch"`
	SimulationMode bool          `json:"simulationMode"`
	InFlight       map[int64]int `json:"inFlight"`
	Chains         []ChainStatus `json:"chains"`
}

// Response is the JSON reply to a Request.
type Response struct {
	OK      bool    `json:"ok"`
	Message string  `json:"message,omitempty"`
	Status  *Status `json:"status,omitempty"`
}

// Handler is implemented by the running engine; Server dispatches each
// Request to the matching method.
type Handler interface {
	Stop() error
	Status() Status
	Simulate(n int) error
}

// Server listens on a unix socket and dispatches admin requests.
type Server struct {
	socketPath string
	handler    Handler
	log        *logger.Logger
}

func NewServer(socketPath string, handler Handler, log *logger.Logger) *Server {
	return &Server{socketPath: socketPath, handler: handler, log: log.Named("admin")}
}

// Serve accepts connections until ctx is cancelled, removing the socket
// file on both start (stale leftover from a prior crash) and exit.
func (s *Server) Serve(ctx context.Context) error {
	_ = os.Remove(s.socketPath)
	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("admin listen: %w", err)
	}
	defer ln.Close()
	defer os.Remove(s.socketPath)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.Warn("admin accept failed", logger.Err(err))
				continue
			}
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	var req Request
	if err := json.NewDecoder(bufio.NewReader(conn)).Decode(&req); err != nil {
		s.writeResponse(conn, Response{OK: false, Message: "invalid request: " + err.Error()})
		return
	}

	switch req.Cmd {
	case "stop":
		if err := s.handler.Stop(); err != nil {
			s.writeResponse(conn, Response{OK: false, Message: err.Error()})
			return
		}
		s.writeResponse(conn, Response{OK: true, Message: "kill-switch set"})
	case "status":
		status := s.handler.Status()
		s.writeResponse(conn, Response{OK: true, Status: &status})
	case "simulate":
		if err := s.handler.Simulate(req.N); err != nil {
			s.writeResponse(conn, Response{OK: false, Message: err.Error()})
			return
		}
		s.writeResponse(conn, Response{OK: true, Message: fmt.Sprintf("simulation mode forced for next %d ticks", req.N)})
	default:
		s.writeResponse(conn, Response{OK: false, Message: "unknown command: " + req.Cmd})
	}
}

func (s *Server) writeResponse(conn net.Conn, resp Response) {
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.log.Warn("admin write response failed", logger.Err(err))
	}
}

// Call dials socketPath, sends req, and decodes the Response. Used by the
// stop/status/simulate CLI subcommands to reach a running instance.
func Call(socketPath string, req Request) (Response, error) {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return Response{}, fmt.Errorf("connect to running instance at %s: %w", socketPath, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}
	var resp Response
	if err := json.NewDecoder(bufio.NewReader(conn)).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

// BudgetsToChainStatus adapts a budget/breaker-state pair into a
// ChainStatus entry, kept here so cmd/arbengine doesn't need its own
// decimal-to-string formatting helper.
func BudgetsToChainStatus(b domain.Budget, breakerState string) ChainStatus {
	return ChainStatus{
		ChainID:           b.ChainID,
		GasSpentNative:    b.GasSpentNative.String(),
		TradesSubmitted:   b.TradesSubmitted,
		RealizedMarginUSD: b.RealizedMarginSum.String(),
		BreakerState:      breakerState,
	}
}
