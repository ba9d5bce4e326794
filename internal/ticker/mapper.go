package ticker

import (
	"sync"
)

// instrumentMapper manages the bidirectional mapping between display tickers
// and broker instrument ids. Entries are never evicted.
type instrumentMapper struct {
	tickerToID map[string]string
	idToTicker map[string]string
	mu         sync.RWMutex
}

func newInstrumentMapper() *instrumentMapper {
	return &instrumentMapper{
		tickerToID: make(map[string]string),
		idToTicker: make(map[string]string),
	}
}

// addMapping adds a ticker-id mapping
func (im *instrumentMapper) addMapping(ticker, id string) {
	im.mu.Lock()
	defer im.mu.Unlock()

	im.tickerToID[ticker] = id
	im.idToTicker[id] = ticker
}

// getID retrieves the instrument id for a ticker
func (im *instrumentMapper) getID(ticker string) (string, bool) {
	im.mu.RLock()
	defer im.mu.RUnlock()

	id, exists := im.tickerToID[ticker]
	return id, exists
}

// getTicker retrieves the ticker for an instrument id
func (im *instrumentMapper) getTicker(id string) (string, bool) {
	im.mu.RLock()
	defer im.mu.RUnlock()

	ticker, exists := im.idToTicker[id]
	return ticker, exists
}

func (im *instrumentMapper) size() int {
	im.mu.RLock()
	defer im.mu.RUnlock()

	return len(im.tickerToID)
}
