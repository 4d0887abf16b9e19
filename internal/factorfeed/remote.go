package factorfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/wqlab/screener/internal/contracts"
	"github.com/wqlab/screener/pkg/httputil"
	"github.com/wqlab/screener/pkg/logger"
)

// RemoteSource fetches factor frames from the quote gateway over HTTP.
// It backs the warehouse feed for codes whose rows have not landed yet;
// the gateway serves the same frame shape the warehouse does.
type RemoteSource struct {
	client  *httputil.Client
	baseURL string
	logger  *logger.Logger
}

// NewRemoteSource creates a gateway-backed frame source.
func NewRemoteSource(client *httputil.Client, baseURL string, log *logger.Logger) *RemoteSource {
	return &RemoteSource{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  log.WithField("component", "remote_source"),
	}
}

// framesResponse is the gateway payload for a batch frame request.
type framesResponse struct {
	Frames []*contracts.Frame `json:"frames"`
}

// FetchFrames requests the lookback window for the given codes.
func (r *RemoteSource) FetchFrames(ctx context.Context, codes []string, date time.Time, lookbackDays int) ([]*contracts.Frame, error) {
	if len(codes) == 0 {
		return nil, nil
	}

	query := url.Values{}
	query.Set("codes", strings.Join(codes, ","))
	query.Set("date", date.Format("2006-01-02"))
	query.Set("days", fmt.Sprintf("%d", lookbackDays))

	endpoint := fmt.Sprintf("%s/api/v1/frames?%s", r.baseURL, query.Encode())

	resp, err := r.client.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("frame request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("frame request returned status %d", resp.StatusCode)
	}

	var payload framesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("frame response decode failed: %w", err)
	}

	r.logger.WithFields(map[string]interface{}{
		"requested": len(codes),
		"received":  len(payload.Frames),
	}).Debug("Remote frames fetched")

	return payload.Frames, nil
}
