package pushsocket

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	datasource "price-relay/src/data_source"
	"price-relay/src/disruption"
	"price-relay/src/interfaces"
	"price-relay/src/logger"
	"price-relay/src/mapping"
	"price-relay/src/models"
)

// -----------------------------------------------------------------------------
// PushSocketSource keeps a persistent connection to a provider that streams
// ticks as newline-delimited "FIELD|buy|sell" records. An inactivity
// watchdog forces a reconnect when the feed goes silent; every reconnect is
// independent of the other adapters.
// -----------------------------------------------------------------------------

const defaultWatchdog = 60 * time.Second

type PushSocketSource struct {
	datasource.BaseAdapter

	dialTimeout time.Duration
}

// -----------------------------------------------------------------------------

func NewPushSocketSource(cfg models.MProviderConfig, db interfaces.IDatabase, reg *mapping.Registry,
	sink interfaces.ITickSink, det *disruption.Detector, log *logger.Logger) *PushSocketSource {
	s := &PushSocketSource{dialTimeout: 10 * time.Second}
	s.Cfg = cfg
	s.DB = db
	s.Registry = reg
	s.Sink = sink
	s.Detector = det
	s.Logger = log.Named("PushSource-" + cfg.Name)
	return s
}

// -----------------------------------------------------------------------------

func (s *PushSocketSource) IsRealTime() bool {
	return true
}

// -----------------------------------------------------------------------------

func (s *PushSocketSource) Start(parentCtx context.Context, wg *sync.WaitGroup) error {
	ctx, err := s.BeginRun(parentCtx)
	if err != nil {
		return err
	}

	wg.Add(1)
	go s.runLoop(ctx, wg)
	s.Logger.Info("Started push adapter %s -> %s", s.Cfg.Name, s.Cfg.Address)
	return nil
}

// -----------------------------------------------------------------------------

// runLoop connects, reads until the watchdog or the peer gives up, then
// reconnects after a fixed delay. Cancellation exits at any wait point.
func (s *PushSocketSource) runLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	reconnectDelay := time.Duration(s.Cfg.ReconnectDelaySeconds) * time.Second
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}

	for {
		if ctx.Err() != nil {
			return
		}

		err := s.serveConnection(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.Logger.Warning("Connection to %s lost: %v", s.Cfg.Address, err)
		}

		select {
		case <-time.After(reconnectDelay):
		case <-ctx.Done():
			return
		}
	}
}

// -----------------------------------------------------------------------------

// serveConnection holds one connection for its lifetime. Returns when the
// read deadline expires (silent feed), the peer closes, or ctx is cancelled.
func (s *PushSocketSource) serveConnection(ctx context.Context) error {
	dialer := net.Dialer{Timeout: s.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.Cfg.Address)
	if err != nil {
		s.ReportCycle(0, err)
		return err
	}
	defer conn.Close()

	// Force-close on cancellation so the blocking read returns
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	watchdog := time.Duration(s.Cfg.WatchdogSeconds) * time.Second
	if watchdog <= 0 {
		watchdog = defaultWatchdog
	}

	s.Logger.Info("Connected to %s", s.Cfg.Address)

	processed := 0
	var lastErr error
	scanner := bufio.NewScanner(conn)

	for {
		// Reset the inactivity watchdog before every read
		conn.SetReadDeadline(time.Now().Add(watchdog))
		if !scanner.Scan() {
			err := scanner.Err()
			if err == nil {
				err = fmt.Errorf("connection closed by peer")
			}
			s.ReportCycle(processed, coalesce(lastErr, err))
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if err := s.handleMessage(line); err != nil {
			// Per-record: log, count, keep reading
			lastErr = err
			s.Logger.Debug("Bad record from %s: %v", s.Cfg.Name, err)
			continue
		}
		processed++
	}
}

// -----------------------------------------------------------------------------

// handleMessage parses one "FIELD|buy|sell" record and forwards it.
func (s *PushSocketSource) handleMessage(line string) error {
	parts := strings.Split(line, "|")
	if len(parts) != 3 {
		return fmt.Errorf("malformed record %q", line)
	}

	_, err := s.Sink.ProcessTick(s.ProviderID(), s.Cfg.Name, strings.TrimSpace(parts[0]),
		parts[1], parts[2], s.Cfg.DecimalComma)
	return err
}

// -----------------------------------------------------------------------------

func coalesce(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
