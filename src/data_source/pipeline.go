package datasource

import (
	"strings"
	"time"

	"price-relay/src/disruption"
	"price-relay/src/formula"
	"price-relay/src/helpers"
	"price-relay/src/interfaces"
	"price-relay/src/logger"
	"price-relay/src/mapping"
	"price-relay/src/models"
	"price-relay/src/policy"
	"price-relay/src/pricestore"
	"price-relay/src/server"
)

// -----------------------------------------------------------------------------
// Pipeline is the shared tick path every adapter forwards into:
// mapping resolution -> normalization -> price store -> significance gate ->
// fan-out + derived-pricing trigger. Errors are per-record; one malformed
// tick never aborts the rest of a batch.
// -----------------------------------------------------------------------------

// ITrigger is the derived-pricing hook (the debounced dispatcher).
type ITrigger interface {
	Trigger(providerID string)
}

type Pipeline struct {
	Registry  *mapping.Registry
	Store     *pricestore.Store
	Policy    *policy.Significance
	Publisher interfaces.IPublisher
	Pricing   ITrigger
	Detector  *disruption.Detector
	Logger    *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPipeline(reg *mapping.Registry, store *pricestore.Store, pol *policy.Significance,
	pub interfaces.IPublisher, pricing ITrigger, det *disruption.Detector, log *logger.Logger) *Pipeline {
	return &Pipeline{
		Registry:  reg,
		Store:     store,
		Policy:    pol,
		Publisher: pub,
		Pricing:   pricing,
		Detector:  det,
		Logger:    log,
	}
}

// -----------------------------------------------------------------------------

// ProcessTick handles one raw (field, buy, sell) observation. Returns
// (false, nil) when the field has no active mapping and is silently ignored.
func (p *Pipeline) ProcessTick(providerID, providerName, field, rawBuy, rawSell string, decimalComma bool) (bool, error) {
	m := p.Registry.Resolve(providerID, field)
	if m == nil || !m.Active {
		return false, nil
	}

	buy, err := helpers.ParsePrice(rawBuy, decimalComma)
	if err != nil {
		return false, helpers.NewDataSourceError("bad buy price for field "+field, err)
	}
	sell, err := helpers.ParsePrice(rawSell, decimalComma)
	if err != nil {
		return false, helpers.NewDataSourceError("bad sell price for field "+field, err)
	}

	buy, sell, err = p.transform(m, buy, sell)
	if err != nil {
		return false, err
	}

	res, err := p.Store.Upsert(m.TargetSymbol, providerID, providerName, currencyOf(m.TargetSymbol), buy, sell)
	if err != nil {
		return false, helpers.NewDataSourceError("rejected tick for "+m.TargetSymbol, err)
	}

	// Any accepted tick counts as a successful ingest, broadcast or not.
	p.Detector.MarkSuccess(providerName)

	if p.Policy.Judge(res) {
		p.broadcast(m.TargetSymbol, providerID, providerName, res)
		p.Pricing.Trigger(providerID)
	}
	return true, nil
}

// -----------------------------------------------------------------------------

// transform applies the mapping's transform formula when set, otherwise the
// linear multiplier/offset. Transform formulas reference the source field
// code and are run once per side, with "last" bound to that side's raw value.
func (p *Pipeline) transform(m *models.MFieldMapping, buy, sell float64) (float64, float64, error) {
	if m.Formula == "" {
		mult := m.Multiplier
		if mult == 0 {
			mult = 1
		}
		return buy*mult + m.Offset, sell*mult + m.Offset, nil
	}

	outBuy, err := p.evalTransform(m, buy, sell, buy)
	if err != nil {
		return 0, 0, err
	}
	outSell, err := p.evalTransform(m, buy, sell, sell)
	if err != nil {
		return 0, 0, err
	}
	return outBuy, outSell, nil
}

func (p *Pipeline) evalTransform(m *models.MFieldMapping, buy, sell, last float64) (float64, error) {
	table := formula.VariableTable{}
	table.Set(m.SourceField, formula.SymbolPrices{Buying: buy, Selling: sell, Last: last})
	table.Set(m.TargetSymbol, formula.SymbolPrices{Buying: buy, Selling: sell, Last: last})

	eval, err := formula.Evaluate(m.Formula, table, models.MRounding{Method: "none", DecimalPlaces: 8})
	if err != nil {
		return 0, helpers.NewFormulaError("transform failed for field "+m.SourceField, err)
	}
	return eval.Value, nil
}

// -----------------------------------------------------------------------------

// broadcast publishes the update on the global price channel and on the
// provider-named channel.
func (p *Pipeline) broadcast(symbol, providerID, providerName string, res models.MUpsertResult) {
	q, ok := p.Store.Get(symbol, providerID)
	if !ok {
		return
	}

	update := models.MPriceUpdate{
		Symbol:            q.Symbol,
		BuyPrice:          q.BuyPrice,
		SellPrice:         q.SellPrice,
		Currency:          q.Currency,
		Change:            res.ChangePercent,
		Source:            providerName,
		SourceID:          providerID,
		PreviousBuyPrice:  q.PreviousBuyPrice,
		PreviousSellPrice: q.PreviousSellPrice,
		Timestamp:         time.Now().Unix(),
	}

	p.Publisher.Publish(server.ChannelPrice, "price_update", update)
	p.Publisher.Publish(providerName, "source_price_update", update)
}

// -----------------------------------------------------------------------------

// currencyOf derives the payload currency from a canonical symbol: the quote
// leg of a CODE/QUOTE pair, the platform's lira for bare metal codes.
func currencyOf(symbol string) string {
	if idx := strings.Index(symbol, "/"); idx >= 0 && idx < len(symbol)-1 {
		return symbol[idx+1:]
	}
	return "TRY"
}
