package vendors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Resolver looks a vendor number up in the external vendor master.
type Resolver interface {
	Lookup(ctx context.Context, vendorNumber string) (*models.CreatePartnerRequest, error)
}

// HTTPResolver resolves vendors against the vendor master's REST endpoint.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
	logger  ectologger.Logger
}

// NewHTTPResolver creates a new HTTP vendor resolver
func NewHTTPResolver(baseURL string, logger ectologger.Logger) *HTTPResolver {
	return &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

// Lookup fetches the vendor record and maps it onto a partner upsert.
func (r *HTTPResolver) Lookup(ctx context.Context, vendorNumber string) (*models.CreatePartnerRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "vendors.HTTPResolver.Lookup")
	defer span.End()

	endpoint := fmt.Sprintf("%s/vendors/%s", r.baseURL, url.PathEscape(vendorNumber))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to build vendor lookup request")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("vendor_number", vendorNumber).Error("Vendor lookup failed")
		return nil, httperror.NewHTTPError(http.StatusBadGateway, "vendor system unavailable")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, httperror.NewHTTPError(http.StatusNotFound, "vendor not found")
	default:
		r.logger.WithContext(ctx).WithField("status", resp.StatusCode).Error("Vendor lookup returned unexpected status")
		return nil, httperror.NewHTTPError(http.StatusBadGateway, "vendor system unavailable")
	}

	var record struct {
		VendorNumber string  `json:"vendor_number"`
		Name         string  `json:"name"`
		ShortName    string  `json:"short_name"`
		PartnerType  string  `json:"partner_type"`
		CSOType      *string `json:"cso_type"`
		RiskRating   string  `json:"risk_rating"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadGateway, "invalid vendor record")
	}

	return &models.CreatePartnerRequest{
		VendorNumber: record.VendorNumber,
		Name:         record.Name,
		ShortName:    record.ShortName,
		PartnerType:  record.PartnerType,
		CSOType:      record.CSOType,
		RiskRating:   record.RiskRating,
	}, nil
}
