package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/billing"
	appwebhook "github.com/jhoicas/facturacion-sunat-api/internal/application/webhook"
	domainsunat "github.com/jhoicas/facturacion-sunat-api/internal/domain/sunat"
	infrapdf "github.com/jhoicas/facturacion-sunat-api/internal/infrastructure/pdf"
	"github.com/jhoicas/facturacion-sunat-api/internal/infrastructure/postgres"
	"github.com/jhoicas/facturacion-sunat-api/internal/infrastructure/storage"
	infrasunat "github.com/jhoicas/facturacion-sunat-api/internal/infrastructure/sunat"
	infrawebhook "github.com/jhoicas/facturacion-sunat-api/internal/infrastructure/webhook"
	httpRouter "github.com/jhoicas/facturacion-sunat-api/internal/interfaces/http"
	"github.com/jhoicas/facturacion-sunat-api/pkg/config"
	"github.com/jhoicas/facturacion-sunat-api/pkg/logger"
	pkgsunat "github.com/jhoicas/facturacion-sunat-api/pkg/sunat"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("sunat_env", cfg.SUNAT.Environment).
		Msg("iniciando aplicación")
	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("JWT_SECRET es obligatorio")
	}

	ctx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	pool, err := postgres.NewPool(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	// ── Repositorios ─────────────────────────────────────────────────────────
	companyRepo := postgres.NewCompanyRepository(pool)
	branchRepo := postgres.NewBranchRepository(pool)
	clientRepo := postgres.NewClientRepository(pool)
	catalogRepo := postgres.NewCatalogRepository(pool)
	documentRepo := postgres.NewDocumentRepository(pool)
	webhookRepo := postgres.NewWebhookRepository(pool)
	deliveryRepo := postgres.NewWebhookDeliveryRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	// ── Infraestructura ──────────────────────────────────────────────────────
	artifacts, err := storage.New(ctx, cfg.Storage, log)
	if err != nil {
		log.Fatal().Err(err).Msg("almacenamiento de artefactos")
	}

	cert, err := infrasunat.LoadCertificate(cfg.SUNAT.CertPath, cfg.SUNAT.CertKeyPath, cfg.SUNAT.CertPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("certificado digital")
	}
	if info, err := infrasunat.Describe(cert); err == nil {
		log.Info().Str("subject", info.Subject).Time("not_after", info.NotAfter).Msg("certificado cargado")
	} else if !cfg.SUNAT.IsDev() {
		log.Fatal().Msg("SUNAT_CERT_PATH es obligatorio fuera de dev")
	} else {
		log.Warn().Msg("sin certificado: los XML no se firman (modo dev)")
	}

	sunatClient := infrasunat.NewClient(cfg.SUNAT, log)
	xmlBuilder := infrasunat.NewXMLBuilderService()
	signerSvc := infrasunat.NewDigitalSignatureService()
	pdfGenerator := infrapdf.NewMarotoPDFGenerator()

	// ── Webhooks ─────────────────────────────────────────────────────────────
	dispatcher := appwebhook.NewDispatcher(webhookRepo, deliveryRepo, infrawebhook.NewHTTPSender(), appwebhook.Config{
		BatchSize:   cfg.Webhook.BatchSize,
		Concurrency: cfg.Webhook.Concurrency,
		Lease:       cfg.Webhook.Lease,
	}, log)
	webhookSvc := appwebhook.NewService(webhookRepo, deliveryRepo, appwebhook.Defaults{
		MaxRetries:        cfg.Webhook.DefaultMaxRetries,
		MaxRetriesCeiling: cfg.Webhook.MaxRetriesCeiling,
		RetryDelay:        cfg.Webhook.DefaultRetryDelay,
		Timeout:           cfg.Webhook.DefaultTimeout,
	}, log)

	// ── Facturación ──────────────────────────────────────────────────────────
	builderCfg, err := builderConfig(cfg.Tax)
	if err != nil {
		log.Fatal().Err(err).Msg("configuración tributaria")
	}
	gatewayCfg := billing.GatewayConfig{
		SolUser:     cfg.SUNAT.SolUser,
		SolPassword: cfg.SUNAT.SolPassword,
		Timeout:     cfg.SUNAT.Timeout,
	}

	allocator := billing.NewCorrelativeAllocator(txRunner, log)
	builder := billing.NewDocumentBuilder(allocator, branchRepo, clientRepo, catalogRepo, documentRepo, dispatcher, builderCfg, log)
	summaries := billing.NewSummaryBuilder(allocator, branchRepo, documentRepo, dispatcher, log)
	annulments := billing.NewAnnulmentWorkflow(documentRepo, summaries, dispatcher, log)
	gateway := billing.NewSubmissionGateway(documentRepo, companyRepo, branchRepo, xmlBuilder, signerSvc, cert, sunatClient, artifacts, gatewayCfg, log)
	reconciler := billing.NewStatusReconciler(txRunner, documentRepo, companyRepo, sunatClient, artifacts, dispatcher, gatewayCfg, log)
	downloads := billing.NewDownloadUseCase(documentRepo, companyRepo, branchRepo, artifacts, pdfGenerator, log)
	documentSvc := billing.NewDocumentService(documentRepo, builder, summaries, annulments, gateway, reconciler, downloads, dispatcher, log)

	// ── Workers ──────────────────────────────────────────────────────────────
	var wg sync.WaitGroup
	startWorker := func(run func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(ctx)
		}()
	}
	startWorker(billing.NewSendQueueWorker(documentRepo, gateway, dispatcher, billing.SendQueueConfig{
		PollInterval:    cfg.Queue.PollInterval,
		Concurrency:     cfg.Queue.Concurrency,
		MaxSendAttempts: cfg.Queue.MaxSendAttempts,
		Lease:           2 * cfg.SUNAT.Timeout,
	}, log).Start)
	startWorker(billing.NewReconciliationWorker(documentRepo, reconciler, billing.ReconcileConfig{
		PollInterval: cfg.Reconcile.PollInterval,
		BatchSize:    cfg.Reconcile.BatchSize,
		Lease:        2 * cfg.SUNAT.Timeout,
	}, log).Start)
	startWorker(appwebhook.NewWorker(dispatcher, cfg.Webhook.PollInterval, log).Start)

	// ── HTTP ─────────────────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: cfg.SUNAT.Timeout + 10*time.Second,
		IdleTimeout:  time.Second * 60,
		ErrorHandler: httpRouter.ErrorHandler(log),
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Facturación SUNAT API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		if err := pool.Ping(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded", "service": cfg.App.Name})
		}
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name, "sunat_env": cfg.SUNAT.Environment})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Documents:  documentSvc,
		Webhooks:   webhookSvc,
		Deliveries: dispatcher,
		JWTSecret:  cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}
	stopWorkers()
	wg.Wait()

	log.Info().Msg("aplicación detenida")
}

// builderConfig traduce las tasas configuradas a decimales.
func builderConfig(tax config.TaxConfig) (billing.BuilderConfig, error) {
	out := billing.DefaultBuilderConfig()
	parse := func(name, raw string, dst *decimal.Decimal) error {
		if raw == "" {
			return nil
		}
		d, err := decimal.NewFromString(raw)
		if err != nil || d.IsNegative() {
			return fmt.Errorf("%s inválido: %q", name, raw)
		}
		*dst = d
		return nil
	}
	var pen, usd decimal.Decimal
	if err := parse("TAX_IGV_RATE", tax.IGVRate, &out.Rates.IGV); err != nil {
		return out, err
	}
	if err := parse("TAX_ICBPER_FACTOR", tax.ICBPERFactor, &out.Rates.ICBPERFactor); err != nil {
		return out, err
	}
	if err := parse("TAX_BANKARIZATION_PEN", tax.BankarizationPEN, &pen); err != nil {
		return out, err
	}
	if err := parse("TAX_BANKARIZATION_USD", tax.BankarizationUSD, &usd); err != nil {
		return out, err
	}
	thresholds := domainsunat.BankarizationThresholds{}
	for k, v := range out.Bankarization {
		thresholds[k] = v
	}
	if !pen.IsZero() {
		thresholds[pkgsunat.CurrencyPEN] = pen
	}
	if !usd.IsZero() {
		thresholds[pkgsunat.CurrencyUSD] = usd
	}
	out.Bankarization = thresholds
	return out, nil
}
