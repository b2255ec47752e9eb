package orders

import (
	"context"
	"fmt"
	"net/http"

	"logiflow/internal/config"
	"logiflow/internal/constants"
	pkgerrors "logiflow/pkg/errors"
)

// FleetChecker validates that a courier exists and can take assignments.
type FleetChecker interface {
	CourierExists(ctx context.Context, courierID int64) (bool, error)
}

type httpFleetChecker struct {
	baseURL string
	client  *http.Client
}

func NewFleetChecker(cfg config.OrdersConfig) FleetChecker {
	if cfg.FleetServiceURL == "" {
		return noopFleetChecker{}
	}
	return &httpFleetChecker{
		baseURL: cfg.FleetServiceURL,
		client:  &http.Client{Timeout: constants.DefaultHTTPTimeout},
	}
}

func (f *httpFleetChecker) CourierExists(ctx context.Context, courierID int64) (bool, error) {
	url := fmt.Sprintf("%s/api/v1/couriers/%d", f.baseURL, courierID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return false, pkgerrors.ErrServiceUnavailable.WithCause(err).WithDetail("courier_id", courierID)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	default:
		return false, fmt.Errorf("fleet service returned status %d", resp.StatusCode)
	}
}

// noopFleetChecker accepts every courier. Used when no fleet service is
// configured, for local development and tests.
type noopFleetChecker struct{}

func (noopFleetChecker) CourierExists(ctx context.Context, courierID int64) (bool, error) {
	return true, nil
}
