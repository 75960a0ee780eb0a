package sync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Document is the wire format consumed by the downstream reporting system.
// Names of results and activities are prefixed with their dotted codes so the
// consumer can render the hierarchy without re-deriving it.
type Document struct {
	BusinessAreaCode        string           `json:"business_area_code"`
	TenantID                string           `json:"tenant_id"`
	InterventionID          string           `json:"intervention_id"`
	ReferenceNumber         string           `json:"reference_number"`
	Status                  string           `json:"status"`
	DocumentType            string           `json:"document_type"`
	Title                   string           `json:"title"`
	Start                   *time.Time       `json:"start,omitempty"`
	End                     *time.Time       `json:"end,omitempty"`
	SignedByUnicefDate      *time.Time       `json:"signed_by_unicef_date,omitempty"`
	SignedByPartnerDate     *time.Time       `json:"signed_by_partner_date,omitempty"`
	UnicefSignatoryID       *string          `json:"unicef_signatory_id,omitempty"`
	PartnerSignatoryID      *string          `json:"partner_signatory_id,omitempty"`
	PartnerVendorNumber     string           `json:"partner_vendor_number"`
	PartnerName             string           `json:"partner_name"`
	AgreementReference      string           `json:"agreement_reference"`
	Currency                string           `json:"currency,omitempty"`
	BudgetTotal             float64          `json:"budget_total"`
	UnicefCashTotal         float64          `json:"unicef_cash_total"`
	PartnerContribution     float64          `json:"partner_contribution"`
	ResultLinks             []DocumentResult `json:"result_links"`
	ReportingRequirements   []DocumentWindow `json:"reporting_requirements"`
	UnicefFocalPointEmails  []string         `json:"unicef_focal_point_emails,omitempty"`
	PartnerFocalPointEmails []string         `json:"partner_focal_point_emails,omitempty"`
	PublishedAt             time.Time        `json:"published_at"`
}

// DocumentResult is one cp output with its flattened work plan.
type DocumentResult struct {
	CPOutputID *string            `json:"cp_output_id,omitempty"`
	Name       string             `json:"name"`
	Activities []DocumentActivity `json:"activities"`
}

// DocumentWindow is one reporting window on the wire.
type DocumentWindow struct {
	ReportType string    `json:"report_type"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	DueDate    time.Time `json:"due_date"`
}

// DocumentActivity carries one costed activity line.
type DocumentActivity struct {
	Name       string  `json:"name"`
	UnicefCash float64 `json:"unicef_cash"`
	CSOCash    float64 `json:"cso_cash"`
	IsActive   bool    `json:"is_active"`
}

// Producer publishes intervention documents to the sync topic.
type Producer struct {
	writer *kafka.Writer
	topic  string
	logger ectologger.Logger
}

// NewProducer creates a new kafka producer for intervention sync
func NewProducer(cfg *config.Config, logger ectologger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSyncTopic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: kafka.RequiredAcks(cfg.KafkaRequiredAcks),
		Compression:  compressionCodec(cfg.KafkaCompression),
	}
	return &Producer{
		writer: writer,
		topic:  cfg.KafkaSyncTopic,
		logger: logger,
	}
}

// Publish writes one document keyed by intervention so retries stay ordered
// per document.
func (p *Producer) Publish(ctx context.Context, doc *Document) error {
	ctx, span := tracing.StartSpan(ctx, "sync.Producer.Publish")
	defer span.End()

	started := time.Now()
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(doc.TenantID + ":" + doc.InterventionID),
		Value: payload,
	})
	status := "ok"
	if err != nil {
		status = "error"
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"topic":           p.topic,
			"intervention_id": doc.InterventionID,
		}).Error("Failed to publish sync document")
	}
	metrics.RecordKafkaPublish(p.topic, status, time.Since(started).Seconds())
	return err
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

func compressionCodec(name string) kafka.Compression {
	switch name {
	case "gzip":
		return kafka.Gzip
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	case "none":
		return 0
	default:
		return kafka.Snappy
	}
}
