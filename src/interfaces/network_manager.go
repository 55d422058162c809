package interfaces

import "context"

// -----------------------------------------------------------------------------
// INetworkManager abstracts outbound HTTP for the polling adapters.
// -----------------------------------------------------------------------------

type INetworkManager interface {

	// Get performs a GET request with retries. The context bounds the whole
	// attempt chain; each individual request also carries the configured
	// timeout.
	Get(ctx context.Context, url string, params map[string]string) ([]byte, error)
}
