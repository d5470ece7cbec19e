package discovery

import (
	"bytes"
	"context"
	"net"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenUnitSync/internal/protocol"
	"github.com/KevinKickass/OpenUnitSync/internal/transport"
	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

type Options struct {
	Port       int
	Timeout    time.Duration
	ReadBuffer int
	// Broadcasts overrides interface enumeration ("eth0=192.168.1.255").
	Broadcasts []string
	// LegacyFallback scans 255.255.255.255 when no interface qualifies.
	LegacyFallback bool
}

// Scanner finds units on every usable interface.
type Scanner struct {
	opts    Options
	logger  *zap.Logger
	targets func() ([]transport.ScanTarget, error)
}

func NewScanner(opts Options, logger *zap.Logger) *Scanner {
	s := &Scanner{
		opts:    opts,
		logger:  logger,
		targets: transport.BroadcastTargets,
	}
	if len(opts.Broadcasts) > 0 {
		s.targets = func() ([]transport.ScanTarget, error) {
			return transport.ParseTargets(opts.Broadcasts)
		}
	}
	return s
}

// Scan probes the network and returns every unit that answered, sorted by
// IP. It never fails; an unusable network yields an empty list.
func (s *Scanner) Scan(ctx context.Context) []types.NetworkUnit {
	probe, err := protocol.NewDiscoveryRequest("0.0.0.0")
	if err != nil {
		s.logger.Error("Failed to build discovery probe", zap.Error(err))
		return nil
	}

	opts := transport.ScanOptions{
		Port:       s.opts.Port,
		Timeout:    s.opts.Timeout,
		ReadBuffer: s.opts.ReadBuffer,
		Probe:      probe,
		Accept:     protocol.AcceptDiscoveryResponse,
	}

	targets, err := s.targets()
	if err != nil {
		s.logger.Warn("Interface enumeration failed", zap.Error(err))
	}

	var responses []transport.ScanResponse
	switch {
	case len(targets) > 0:
		s.logger.Info("Scanning for units",
			zap.Int("interfaces", len(targets)),
			zap.Int("port", s.opts.Port),
			zap.Duration("timeout", s.opts.Timeout))
		responses = transport.Scan(ctx, targets, opts, s.logger)
	case s.opts.LegacyFallback:
		s.logger.Info("No broadcast interface found, using limited broadcast")
		responses = transport.ScanInterface(ctx, opts, s.logger)
	default:
		s.logger.Warn("No broadcast interface found")
		return nil
	}

	units := Decode(responses, s.logger)
	s.logger.Info("Scan complete",
		zap.Int("responses", len(responses)),
		zap.Int("units", len(units)))

	return units
}

// Decode turns accepted datagrams into units. Undecodable datagrams are
// dropped. A unit heard on several interfaces is reported once.
func Decode(responses []transport.ScanResponse, logger *zap.Logger) []types.NetworkUnit {
	seen := make(map[string]bool, len(responses))
	units := make([]types.NetworkUnit, 0, len(responses))

	for _, resp := range responses {
		info, err := protocol.DecodeHardwareInfo(resp.Data)
		if err != nil {
			logger.Debug("Dropping undecodable discovery reply",
				zap.String("interface", resp.Interface),
				zap.Stringer("source", resp.Source),
				zap.Error(err))
			continue
		}

		// the source address wins over the reported IP
		ip := info.IPAddress.String()
		if resp.Source != nil {
			ip = resp.Source.IP.String()
		}

		unit := types.NetworkUnit{
			IPAddress:    ip,
			CanID:        info.CanID.String(),
			UnitType:     info.UnitType,
			SerialNumber: info.SerialNumber,
			Mode:         info.Mode,
			CanLoad:      info.CanLoad,
			RecoveryMode: info.RecoveryMode,
			Interface:    resp.Interface,
			Firmware:     info.Firmware,
		}

		if seen[unit.Key()] {
			continue
		}
		seen[unit.Key()] = true
		units = append(units, unit)
	}

	sort.SliceStable(units, func(i, j int) bool {
		a, b := net.ParseIP(units[i].IPAddress), net.ParseIP(units[j].IPAddress)
		if c := bytes.Compare(a.To16(), b.To16()); c != 0 {
			return c < 0
		}
		return units[i].CanID < units[j].CanID
	})

	return units
}
