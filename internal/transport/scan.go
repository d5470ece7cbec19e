package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ScanTarget is one interface taking part in a scan.
type ScanTarget struct {
	Interface string
	Local     net.IP // bind address, nil = any
	Broadcast net.IP
	Port      int // 0 = ScanOptions.Port
}

func (t ScanTarget) destination(defaultPort int) (*net.UDPAddr, error) {
	if t.Broadcast == nil {
		return nil, fmt.Errorf("interface %s has no broadcast address", t.Interface)
	}
	port := t.Port
	if port == 0 {
		port = defaultPort
	}
	return &net.UDPAddr{IP: t.Broadcast, Port: port}, nil
}

type ScanOptions struct {
	Port       int
	Timeout    time.Duration
	ReadBuffer int
	Probe      []byte
	Accept     func(datagram []byte) bool
}

// ScanResponse is an accepted datagram, tagged with where it was heard.
type ScanResponse struct {
	Interface  string
	Source     *net.UDPAddr
	Data       []byte
	ReceivedAt time.Time
}

// ScanSession owns every socket of one scan. It is created by Scan and
// closed before Scan returns.
type ScanSession struct {
	opts   ScanOptions
	logger *zap.Logger

	mu        sync.Mutex
	conns     []*net.UDPConn
	responses []ScanResponse
	closed    bool

	readers   sync.WaitGroup
	closeOnce sync.Once
}

func NewScanSession(opts ScanOptions, logger *zap.Logger) *ScanSession {
	return &ScanSession{
		opts:   opts,
		logger: logger,
	}
}

// Probe opens a socket for target, starts its reader and sends one probe.
func (s *ScanSession) Probe(target ScanTarget) error {
	dest, err := target.destination(s.opts.Port)
	if err != nil {
		return err
	}

	conn, err := s.open(target)
	if err != nil {
		return err
	}

	conn.SetWriteDeadline(time.Now().Add(s.opts.Timeout))
	if _, err := conn.WriteToUDP(s.opts.Probe, dest); err != nil {
		return fmt.Errorf("send probe on %s: %w", target.Interface, err)
	}

	s.logger.Debug("Discovery probe sent",
		zap.String("interface", target.Interface),
		zap.String("destination", dest.String()))

	return nil
}

func (s *ScanSession) open(target ScanTarget) (*net.UDPConn, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: target.Local})
	if err != nil {
		return nil, fmt.Errorf("open socket on %s: %w", target.Interface, err)
	}

	if s.opts.ReadBuffer > 0 {
		if err := conn.SetReadBuffer(s.opts.ReadBuffer); err != nil {
			s.logger.Debug("Could not enlarge receive buffer",
				zap.String("interface", target.Interface),
				zap.Error(err))
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return nil, errors.New("scan session closed")
	}
	s.conns = append(s.conns, conn)
	s.readers.Add(1)
	s.mu.Unlock()

	go s.read(target.Interface, conn)

	return conn, nil
}

// read runs until the socket is closed.
func (s *ScanSession) read(iface string, conn *net.UDPConn) {
	defer s.readers.Done()

	buf := make([]byte, maxDatagram)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}

		if s.opts.Accept != nil && !s.opts.Accept(buf[:n]) {
			continue
		}

		resp := ScanResponse{
			Interface:  iface,
			Source:     from,
			Data:       append([]byte(nil), buf[:n]...),
			ReceivedAt: time.Now(),
		}

		s.mu.Lock()
		if !s.closed {
			s.responses = append(s.responses, resp)
		}
		s.mu.Unlock()
	}
}

// Open reports how many sockets were opened.
func (s *ScanSession) Open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close closes every socket and waits for the readers. Safe to call more
// than once.
func (s *ScanSession) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		conns := s.conns
		s.mu.Unlock()

		for _, conn := range conns {
			conn.Close()
		}
		s.readers.Wait()
	})
}

// Responses returns a copy of the accepted datagrams in arrival order.
func (s *ScanSession) Responses() []ScanResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ScanResponse(nil), s.responses...)
}

// Wait blocks until the timeout elapses or ctx is done.
func (s *ScanSession) Wait(ctx context.Context) {
	timer := time.NewTimer(s.opts.Timeout)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Scan probes every target in parallel and collects accepted replies until
// the timeout elapses. The timeout starts once every probe has been sent or
// has failed. Failing interfaces only reduce the result; Scan never fails.
func Scan(ctx context.Context, targets []ScanTarget, opts ScanOptions, logger *zap.Logger) []ScanResponse {
	session := NewScanSession(opts, logger)
	defer session.Close()

	var g errgroup.Group
	for _, target := range targets {
		target := target
		g.Go(func() error {
			if err := session.Probe(target); err != nil {
				logger.Warn("Discovery failed on interface",
					zap.String("interface", target.Interface),
					zap.Error(err))
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Debug("Scan continues with partial interfaces", zap.Error(err))
	}

	if session.Open() == 0 {
		return nil
	}

	session.Wait(ctx)
	session.Close()

	responses := session.Responses()
	logger.Debug("Scan finished",
		zap.Int("interfaces", len(targets)),
		zap.Int("responses", len(responses)))

	return responses
}

// ScanInterface is the single-socket legacy scan to the limited broadcast
// address. Socket errors degrade to an empty result, as in Scan.
func ScanInterface(ctx context.Context, opts ScanOptions, logger *zap.Logger) []ScanResponse {
	target := ScanTarget{
		Interface: "any",
		Broadcast: net.IPv4bcast,
	}
	return Scan(ctx, []ScanTarget{target}, opts, logger)
}
