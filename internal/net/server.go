// Package net is the TCP front end for a clob.Pool. It pairs a tomb.v2
// supervised accept loop with a worker pool, dispatching the protocol
// package's full CLOB request set (limit order, market order, cancel, batch
// cancel, cancel-all) over a single persistent connection per session.
package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"fenrir/internal/asset"
	"fenrir/internal/clob"
	"fenrir/internal/protocol"
	"fenrir/internal/workerpool"
)

const (
	maxRecvSize        = 4 * 1024
	defaultNWorkers    = 10
	defaultConnTimeout = 5 * time.Second
)

var (
	ErrImproperConversion = errors.New("net: improper task type conversion")
	ErrClientDoesNotExist = errors.New("net: client does not exist")
	ErrUnknownPool        = errors.New("net: no such pool")
)

// clientMessage links a parsed request to the connection it arrived on.
type clientMessage struct {
	clientAddress string
	message       protocol.Message
}

// Server is a TCP front end dispatching parsed requests to a fixed set of
// clob.Pool instances, one per trading pair.
type Server struct {
	address string
	port    int
	pools   map[string]*clob.Pool

	pool workerpool.Pool

	cancel             context.CancelFunc
	clientSessions     map[string]net.Conn
	clientSessionsLock sync.Mutex
	clientMessages     chan clientMessage
}

// New constructs a Server fronting the given pools, keyed by PoolID.
func New(address string, port int, pools map[string]*clob.Pool) *Server {
	return &Server{
		address:        address,
		port:           port,
		pools:          pools,
		pool:           workerpool.New(defaultNWorkers),
		clientSessions: make(map[string]net.Conn),
		clientMessages: make(chan clientMessage, 1),
	}
}

func (s *Server) Shutdown() {
	log.Info().Msg("server shutting down")
	if s.cancel != nil {
		s.cancel()
	}
}

// Run starts the accept loop, the worker pool, and the session handler,
// blocking until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	defer s.Shutdown()

	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		log.Error().Err(err).Msg("unable to start listener")
		return
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
	}()

	t.Go(func() error {
		s.pool.Run(t, s.handleConnection)
		return nil
	})
	t.Go(func() error {
		return s.sessionHandler(t)
	})

	log.Info().Str("address", listener.Addr().String()).Msg("server running")

	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := listener.Accept()
			if err != nil {
				log.Error().Err(err).Msg("error accepting client")
				continue
			}
			log.Info().Str("address", conn.RemoteAddr().String()).Msg("new client added")
			s.addClientSession(conn)
			s.pool.AddTask(conn)
		}
	}
}

func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case msg := <-s.clientMessages:
			report := s.handleMessage(msg)
			if err := s.sendReport(msg.clientAddress, report); err != nil {
				log.Error().Err(err).Str("address", msg.clientAddress).Msg("error sending report")
			}
		}
	}
}

// handleMessage dispatches one parsed request to its pool and builds the
// resulting report. Errors never propagate past this method: every failure
// becomes an ErrorReport addressed back to the caller.
func (s *Server) handleMessage(msg clientMessage) protocol.Report {
	owner := asset.OwnerId(msg.clientAddress)

	switch m := msg.message.(type) {
	case protocol.PlaceLimitOrderMessage:
		pool, ok := s.pools[m.PoolID]
		if !ok {
			return protocol.NewErrorReport(m.ClientOrderID, ErrUnknownPool)
		}
		filledBase, filledQuote, posted, orderID, err := pool.PlaceLimitOrder(
			owner, m.Price, m.Quantity, m.IsBid, m.ExpireTimestamp,
			clob.TimeInForce(m.Restriction), clob.SelfMatchPrevention(m.SelfMatchPrev), m.ClientOrderID,
		)
		if err != nil {
			return protocol.NewErrorReport(m.ClientOrderID, err)
		}
		return protocol.Report{
			Type: protocol.PlacedReport, OrderID: orderID, ClientOrderID: m.ClientOrderID,
			FilledBase: filledBase, FilledQuote: filledQuote, Posted: posted,
		}
	case protocol.PlaceMarketOrderMessage:
		pool, ok := s.pools[m.PoolID]
		if !ok {
			return protocol.NewErrorReport(m.ClientOrderID, ErrUnknownPool)
		}
		filledBase, filledQuote, _, err := pool.PlaceMarketOrder(owner, m.IsBid, m.Quantity, m.ClientOrderID)
		if err != nil {
			return protocol.NewErrorReport(m.ClientOrderID, err)
		}
		return protocol.Report{
			Type: protocol.PlacedReport, ClientOrderID: m.ClientOrderID,
			FilledBase: filledBase, FilledQuote: filledQuote,
		}
	case protocol.CancelOrderMessage:
		pool, ok := s.pools[m.PoolID]
		if !ok {
			return protocol.NewErrorReport(0, ErrUnknownPool)
		}
		if err := pool.CancelOrder(owner, m.OrderID); err != nil {
			return protocol.NewErrorReport(0, err)
		}
		return protocol.Report{Type: protocol.CanceledReport, OrderID: m.OrderID}
	case protocol.BatchCancelOrderMessage:
		pool, ok := s.pools[m.PoolID]
		if !ok {
			return protocol.NewErrorReport(0, ErrUnknownPool)
		}
		if err := pool.BatchCancelOrder(owner, m.OrderIDs); err != nil {
			return protocol.NewErrorReport(0, err)
		}
		return protocol.Report{Type: protocol.CanceledReport}
	case protocol.CancelAllOrdersMessage:
		pool, ok := s.pools[m.PoolID]
		if !ok {
			return protocol.NewErrorReport(0, ErrUnknownPool)
		}
		if err := pool.CancelAllOrders(owner); err != nil {
			return protocol.NewErrorReport(0, err)
		}
		return protocol.Report{Type: protocol.CanceledReport}
	default:
		return protocol.NewErrorReport(0, protocol.ErrInvalidMessageType)
	}
}

func (s *Server) sendReport(clientAddress string, report protocol.Report) error {
	s.clientSessionsLock.Lock()
	conn, ok := s.clientSessions[clientAddress]
	s.clientSessionsLock.Unlock()
	if !ok {
		return ErrClientDoesNotExist
	}
	if _, err := conn.Write(report.Serialize()); err != nil {
		s.deleteClientSession(clientAddress)
		return fmt.Errorf("unable to send report: %w", err)
	}
	return nil
}

// handleConnection reads and parses the next message off conn, then hands
// it to the session handler and re-queues conn for its next message. Any
// error returned here is fatal to the worker that encountered it.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}

	if err := conn.SetDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		log.Error().Str("address", conn.RemoteAddr().String()).Err(err).Msg("failed setting deadline")
		s.deleteClientSession(conn.RemoteAddr().String())
		return nil
	}

	buffer := make([]byte, maxRecvSize)
	select {
	case <-t.Dying():
		return nil
	default:
		n, err := conn.Read(buffer)
		if err != nil {
			log.Error().Err(err).Str("address", conn.RemoteAddr().String()).Msg("error reading from connection")
			s.deleteClientSession(conn.RemoteAddr().String())
			return nil
		}

		message, err := protocol.ParseMessage(buffer[:n])
		if err != nil {
			log.Error().Err(err).Str("address", conn.RemoteAddr().String()).Msg("error parsing message")
			s.deleteClientSession(conn.RemoteAddr().String())
			return nil
		}

		s.clientMessages <- clientMessage{
			clientAddress: conn.RemoteAddr().String(),
			message:       message,
		}
		s.pool.AddTask(conn)
	}
	return nil
}

func (s *Server) addClientSession(conn net.Conn) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()
	s.clientSessions[conn.RemoteAddr().String()] = conn
}

func (s *Server) deleteClientSession(address string) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()
	if conn, ok := s.clientSessions[address]; ok {
		conn.Close()
	}
	delete(s.clientSessions, address)
}
