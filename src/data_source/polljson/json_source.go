package polljson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	datasource "price-relay/src/data_source"
	"price-relay/src/disruption"
	"price-relay/src/interfaces"
	"price-relay/src/logger"
	"price-relay/src/mapping"
	"price-relay/src/models"
)

// -----------------------------------------------------------------------------
// PollJSONSource polls one or more HTTP endpoints that answer with a JSON
// array of field records:
//
//   [{"code": "USD", "buy": "34,20", "sell": "34,30"}, ...]
//
// Endpoints are fetched concurrently; a request timeout or parse failure is
// a failed cycle for that endpoint only and never stops future cycles.
// -----------------------------------------------------------------------------

type PollJSONSource struct {
	datasource.BaseAdapter

	Network     interfaces.INetworkManager
	concurrency int
}

type jsonRecord struct {
	Code string      `json:"code"`
	Buy  interface{} `json:"buy"`
	Sell interface{} `json:"sell"`
}

// -----------------------------------------------------------------------------

func NewPollJSONSource(cfg models.MProviderConfig, db interfaces.IDatabase, reg *mapping.Registry,
	sink interfaces.ITickSink, det *disruption.Detector, net interfaces.INetworkManager,
	concurrency int, log *logger.Logger) *PollJSONSource {
	if concurrency <= 0 {
		concurrency = 4
	}
	s := &PollJSONSource{Network: net, concurrency: concurrency}
	s.Cfg = cfg
	s.DB = db
	s.Registry = reg
	s.Sink = sink
	s.Detector = det
	s.Logger = log.Named("JSONSource-" + cfg.Name)
	return s
}

// -----------------------------------------------------------------------------

func (s *PollJSONSource) IsRealTime() bool {
	return false
}

// -----------------------------------------------------------------------------

func (s *PollJSONSource) Start(parentCtx context.Context, wg *sync.WaitGroup) error {
	ctx, err := s.BeginRun(parentCtx)
	if err != nil {
		return err
	}

	wg.Add(1)
	go s.RunPollLoop(ctx, wg, s.cycle)
	s.Logger.Info("Started poll-json adapter %s (%d endpoints, every %ds)",
		s.Cfg.Name, len(s.Cfg.URLs), s.Cfg.IntervalSeconds)
	return nil
}

// -----------------------------------------------------------------------------

// cycle fetches every endpoint concurrently and forwards the mapped records.
func (s *PollJSONSource) cycle(ctx context.Context) (int, error) {
	var processed atomic.Int64
	var mu sync.Mutex
	var lastErr error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, u := range s.Cfg.URLs {
		g.Go(func() error {
			body, err := s.Network.Get(gctx, u, nil)
			if err != nil {
				mu.Lock()
				lastErr = err
				mu.Unlock()
				return nil // one endpoint failing must not cancel the others
			}

			n, err := s.processBody(body)
			processed.Add(int64(n))
			if err != nil {
				mu.Lock()
				lastErr = err
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	return int(processed.Load()), lastErr
}

// -----------------------------------------------------------------------------

// processBody decodes one response and forwards each record as a tick.
// Record errors are counted per record, the batch always runs to the end.
func (s *PollJSONSource) processBody(body []byte) (int, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var records []jsonRecord
	if err := dec.Decode(&records); err != nil {
		return 0, fmt.Errorf("parse failed: %w", err)
	}

	processed := 0
	var lastErr error
	for _, rec := range records {
		ok, err := s.Sink.ProcessTick(s.ProviderID(), s.Cfg.Name, rec.Code,
			asString(rec.Buy), asString(rec.Sell), s.Cfg.DecimalComma)
		if err != nil {
			lastErr = err
			s.Logger.Debug("Bad record %q: %v", rec.Code, err)
			continue
		}
		if ok {
			processed++
		}
	}
	return processed, lastErr
}

// -----------------------------------------------------------------------------

// asString renders a JSON price value (string or number) for the locale-
// aware parser.
func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", v)
}
