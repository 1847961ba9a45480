package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coverplace/api/internal/platform/config"
	"github.com/coverplace/api/internal/repositories"
	"github.com/coverplace/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Deals     services.DealService
	Feedbacks services.FeedbackService
	Files     services.FileService
	Directory services.CompanyDirectory
	System    services.SystemService
}

// Infrastructure carries the transport and storage collaborators built in main
// that the service layer depends on. Dispatcher and Objects may be nil in
// tests; the affected services are simply not constructed.
type Infrastructure struct {
	Dispatcher services.NotificationDispatcher
	Objects    services.ObjectStore
	Signer     services.DownloadSigner
	Build      services.BuildInfo
	Clock      func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides real
// implementations, while tests can supply in-memory registries.
func NewContainer(cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(reg, cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(reg repositories.Registry, cfg config.Config, infra Infrastructure) (Services, error) {
	var svc Services

	clock := infra.Clock
	if clock == nil {
		clock = time.Now
	}

	directory, err := services.NewCompanyDirectory(services.CompanyDirectoryDeps{
		Companies: reg.Companies(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build company directory: %w", err)
	}
	svc.Directory = directory

	if infra.Objects != nil && cfg.Storage.DealFilesBucket != "" {
		fileSvc, err := services.NewFileService(services.FileServiceDeps{
			Submissions: reg.Submissions(),
			Directory:   directory,
			Objects:     infra.Objects,
			Signer:      infra.Signer,
			Bucket:      cfg.Storage.DealFilesBucket,
			Clock:       clock,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build file service: %w", err)
		}
		svc.Files = fileSvc
	}

	dealSvc, err := services.NewDealService(services.DealServiceDeps{
		Submissions: reg.Submissions(),
		Feedbacks:   reg.Feedbacks(),
		LiveDeals:   reg.LiveDeals(),
		Directory:   directory,
		Dispatcher:  infra.Dispatcher,
		Archiver:    svc.Files,
		Clock:       clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build deal service: %w", err)
	}
	svc.Deals = dealSvc

	feedbackSvc, err := services.NewFeedbackService(services.FeedbackServiceDeps{
		Feedbacks:   reg.Feedbacks(),
		Submissions: reg.Submissions(),
		Directory:   directory,
		Dispatcher:  infra.Dispatcher,
		Clock:       clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build feedback service: %w", err)
	}
	svc.Feedbacks = feedbackSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            infra.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
