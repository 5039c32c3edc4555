package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/segmentio/kafka-go"

	"feeledger/internal/audit"
	catalogapp "feeledger/internal/catalog/application"
	catalog "feeledger/internal/catalog/domain"
	"feeledger/internal/config"
	duesapp "feeledger/internal/dues/application"
	"feeledger/internal/observability/metrics"
	receiptapp "feeledger/internal/receipts/application"
	rolloverapp "feeledger/internal/rollover/application"
	"feeledger/internal/unitofwork"
	uowpostgres "feeledger/internal/unitofwork/postgres"
)

// app wires the engine for one CLI invocation.
type app struct {
	cfg        config.Config
	db         *sql.DB
	uow        unitofwork.UnitOfWork
	receipts   *receiptapp.Manager
	calculator *duesapp.Calculator
	operator   *rolloverapp.Operator
	transport  *catalogapp.TransportService
	audit      audit.Logger
	kafka      *kafka.Writer
	logger     *log.Logger
	out        io.Writer
}

func newApp(ctx context.Context, cfg config.Config, logger *log.Logger, out io.Writer) (*app, error) {
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	metrics.Init(db, logger)

	a := &app{cfg: cfg, db: db, logger: logger, out: out}
	if err := a.wire(cfg); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(cfg config.Config) error {
	uow, err := uowpostgres.New(a.db)
	if err != nil {
		return err
	}
	a.uow = uow

	policy, err := cfg.BillingPolicy()
	if err != nil {
		return err
	}
	if a.calculator, err = duesapp.NewCalculator(uow, policy); err != nil {
		return err
	}
	if a.receipts, err = receiptapp.NewManager(uow, nil, a.logger); err != nil {
		return err
	}
	if a.operator, err = rolloverapp.NewOperator(uow, a.calculator, nil, a.logger); err != nil {
		return err
	}
	if a.transport, err = catalogapp.NewTransportService(uow, policy, a.logger); err != nil {
		return err
	}

	switch cfg.AuditSink {
	case config.AuditSinkKafka:
		a.kafka = audit.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaAuditTopic)
		a.audit, err = audit.NewKafkaLogger(a.kafka)
		if err != nil {
			return err
		}
	case config.AuditSinkNone:
		a.audit = audit.Nop{}
	default:
		a.audit = audit.NewRepository(a.db)
	}
	return nil
}

// Close releases the database and the audit writer.
func (a *app) Close() error {
	var errs []error
	if a.kafka != nil {
		errs = append(errs, a.kafka.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

// record writes an audit entry after a successful mutation. A failed audit
// write is logged and does not undo the committed mutation.
func (a *app) record(ctx context.Context, entry audit.Entry) {
	if entry.Actor == "" {
		entry.Actor = a.cfg.Actor
	}
	if err := a.audit.Log(ctx, entry); err != nil {
		a.logger.Printf("audit: write %s %s: %v", entry.Action, entry.ResourceID, err)
	}
}

func (a *app) session(ctx context.Context, id string) (catalog.Session, error) {
	var session *catalog.Session
	err := a.uow.View(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		var err error
		session, err = repos.Sessions.Get(ctx, id)
		return err
	})
	if err != nil {
		return catalog.Session{}, err
	}
	if session == nil {
		return catalog.Session{}, fmt.Errorf("%w: %s", catalog.ErrSessionNotFound, id)
	}
	return *session, nil
}

// pushMetrics sends the default registry to the Pushgateway when configured.
func (a *app) pushMetrics(command string) {
	if a == nil || a.cfg.PushgatewayURL == "" {
		return
	}
	var words []string
	for _, word := range strings.Fields(command) {
		if !strings.HasPrefix(word, "<") {
			words = append(words, word)
		}
	}
	err := push.New(a.cfg.PushgatewayURL, a.cfg.PushJob).
		Gatherer(prometheus.DefaultGatherer).
		Grouping("command", strings.Join(words, "_")).
		Push()
	if err != nil {
		a.logger.Printf("metrics push: %v", err)
	}
}
