package pollxml

import (
	"context"
	"encoding/xml"
	"fmt"
	"sync"

	datasource "price-relay/src/data_source"
	"price-relay/src/disruption"
	"price-relay/src/interfaces"
	"price-relay/src/logger"
	"price-relay/src/mapping"
	"price-relay/src/models"
)

// -----------------------------------------------------------------------------
// PollXMLSource polls HTTP endpoints answering with an XML price document:
//
//   <prices>
//     <item code="USD"><buy>34.20</buy><sell>34.30</sell></item>
//   </prices>
//
// Endpoints are fetched sequentially; XML providers in practice expose a
// single document per feed.
// -----------------------------------------------------------------------------

type PollXMLSource struct {
	datasource.BaseAdapter

	Network interfaces.INetworkManager
}

type xmlItem struct {
	Code string `xml:"code,attr"`
	Buy  string `xml:"buy"`
	Sell string `xml:"sell"`
}

type xmlDocument struct {
	Items []xmlItem `xml:"item"`
}

// -----------------------------------------------------------------------------

func NewPollXMLSource(cfg models.MProviderConfig, db interfaces.IDatabase, reg *mapping.Registry,
	sink interfaces.ITickSink, det *disruption.Detector, net interfaces.INetworkManager,
	log *logger.Logger) *PollXMLSource {
	s := &PollXMLSource{Network: net}
	s.Cfg = cfg
	s.DB = db
	s.Registry = reg
	s.Sink = sink
	s.Detector = det
	s.Logger = log.Named("XMLSource-" + cfg.Name)
	return s
}

// -----------------------------------------------------------------------------

func (s *PollXMLSource) IsRealTime() bool {
	return false
}

// -----------------------------------------------------------------------------

func (s *PollXMLSource) Start(parentCtx context.Context, wg *sync.WaitGroup) error {
	ctx, err := s.BeginRun(parentCtx)
	if err != nil {
		return err
	}

	wg.Add(1)
	go s.RunPollLoop(ctx, wg, s.cycle)
	s.Logger.Info("Started poll-xml adapter %s (%d endpoints, every %ds)",
		s.Cfg.Name, len(s.Cfg.URLs), s.Cfg.IntervalSeconds)
	return nil
}

// -----------------------------------------------------------------------------

func (s *PollXMLSource) cycle(ctx context.Context) (int, error) {
	processed := 0
	var lastErr error

	for _, u := range s.Cfg.URLs {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}

		body, err := s.Network.Get(ctx, u, nil)
		if err != nil {
			lastErr = err
			continue
		}

		n, err := s.processBody(body)
		processed += n
		if err != nil {
			lastErr = err
		}
	}
	return processed, lastErr
}

// -----------------------------------------------------------------------------

func (s *PollXMLSource) processBody(body []byte) (int, error) {
	var doc xmlDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return 0, fmt.Errorf("parse failed: %w", err)
	}

	processed := 0
	var lastErr error
	for _, item := range doc.Items {
		ok, err := s.Sink.ProcessTick(s.ProviderID(), s.Cfg.Name, item.Code,
			item.Buy, item.Sell, s.Cfg.DecimalComma)
		if err != nil {
			lastErr = err
			s.Logger.Debug("Bad record %q: %v", item.Code, err)
			continue
		}
		if ok {
			processed++
		}
	}
	return processed, lastErr
}
