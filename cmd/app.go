package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/ai/gemini"
	"github.com/spigell/cv-screener/internal/ai/ollama"
	"github.com/spigell/cv-screener/internal/ingest"
	"github.com/spigell/cv-screener/internal/interview"
	"github.com/spigell/cv-screener/internal/jobcsv"
	"github.com/spigell/cv-screener/internal/jobs"
	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/mail"
	"github.com/spigell/cv-screener/internal/matching"
	"github.com/spigell/cv-screener/internal/pdftext"
	"github.com/spigell/cv-screener/internal/secrets"
	"github.com/spigell/cv-screener/internal/storage"
	"github.com/spigell/cv-screener/internal/store"
	"github.com/spigell/cv-screener/internal/store/postgres"
	"github.com/spigell/cv-screener/internal/store/sqlite"
	"github.com/spigell/cv-screener/internal/worker"
)

// application holds the wired components shared by the commands.
type application struct {
	config *Config
	logger *zap.Logger

	store      store.Store
	generator  ai.Generator
	pool       *worker.Pool
	pipeline   *ingest.Pipeline
	jobs       *jobs.Service
	matcher    *matching.Engine
	dispatcher *interview.Dispatcher
}

type wiring struct {
	// generator is needed by every command that talks to the model.
	generator bool
	// mail is needed only to send invitations.
	mail bool
}

func newApplication(ctx context.Context, w wiring) (*application, error) {
	log, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		return nil, fmt.Errorf("creating a logger: %w", err)
	}

	config, err := getConfig()
	if err != nil {
		return nil, fmt.Errorf("getting a config: %w", err)
	}

	a := &application{config: config, logger: log}

	a.store, err = openStore(ctx, config.Database, log)
	if err != nil {
		return nil, err
	}

	if w.generator {
		a.generator, err = newGenerator(ctx, config.AI, log)
		if err != nil {
			a.close()
			return nil, err
		}
	}

	files, err := storage.NewLocal(config.Storage.UploadDir)
	if err != nil {
		a.close()
		return nil, err
	}
	log.Debug("upload storage ready", zap.String("dir", files.Dir()))

	a.pool = worker.NewPool(config.Workers.Parsing.Count, config.Workers.Parsing.Queue, log.Named("parse-pool"))
	a.pipeline = ingest.New(ingest.Options{
		Store:        a.store,
		Files:        files,
		Extractor:    pdftext.New(),
		Generator:    a.generator,
		Queue:        a.pool,
		MaxLogLength: config.AI.MaxLogLength,
	}, log.Named("ingest"))

	a.jobs = jobs.NewService(a.store, jobcsv.NewParser(log.Named("csv")), a.generator, config.AI.MaxLogLength, log.Named("jobs"))

	a.matcher = matching.New(matching.Options{
		Store:            a.store,
		Generator:        a.generator,
		DefaultThreshold: config.Shortlisting.DefaultThreshold,
		MaxLogLength:     config.AI.MaxLogLength,
	}, log.Named("matching"))

	var mailer interview.Mailer
	if w.mail {
		mailer, err = newMailer(config.Mail, log)
		if err != nil {
			a.close()
			return nil, err
		}
	}
	a.dispatcher = interview.NewDispatcher(interview.Options{
		Store:     a.store,
		Generator: a.generator,
		Mailer:    mailer,
		From:      config.Mail.From,
		Company:   config.Mail.Company,
	}, log.Named("interview"))

	return a, nil
}

// close stops the worker pool and releases the store.
func (a *application) close() {
	if a.pool != nil {
		a.pool.Stop()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing the store", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func openStore(ctx context.Context, cfg DatabaseConfig, log *zap.Logger) (store.Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "postgres":
		s, err := postgres.Connect(ctx, cfg.DSN, log.Named("postgres"))
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		return s, nil
	default:
		s, err := sqlite.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite database %s: %w", cfg.DSN, err)
		}
		log.Debug("sqlite database opened", zap.String("path", cfg.DSN))
		return s, nil
	}
}

func newGenerator(ctx context.Context, cfg AIConfig, log *zap.Logger) (ai.Generator, error) {
	var (
		generator ai.Generator
		model     string
	)

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	switch provider {
	case ollama.Provider:
		client := ollama.New(ollama.Options{
			URL:          cfg.Ollama.URL,
			Model:        cfg.Ollama.Model,
			Timeout:      cfg.Ollama.Timeout,
			MaxLogLength: cfg.MaxLogLength,
		}, log)
		generator, model = client, client.Model()
	default:
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			Value: cfg.Gemini.APIKey,
			File:  cfg.Gemini.APIKeyFile,
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
		}

		client, err := gemini.NewGenerator(ctx, gemini.Options{
			APIKey:       apiKey,
			Model:        cfg.Gemini.Model,
			MaxRetries:   cfg.Gemini.MaxRetries,
			MaxLogLength: cfg.MaxLogLength,
		}, log)
		if err != nil {
			return nil, err
		}
		provider = gemini.Provider
		generator, model = client, client.Model()
	}

	logger.ForGenerator(log, provider, model).Info("text generation configured",
		zap.Int("requests_per_minute", cfg.RequestsPerMinute),
	)
	return ai.NewLimited(generator, cfg.RequestsPerMinute, log), nil
}

func newMailer(cfg MailConfig, log *zap.Logger) (*mail.Sender, error) {
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("mail.from is required to send invitations")
	}

	password, err := secrets.Load(secrets.Source{
		Name:     "smtp password",
		Value:    cfg.Password,
		File:     cfg.PasswordFile,
		Optional: cfg.Username == "",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set mail.password-file or %s_MAIL_PASSWORD)", err, envPrefix)
	}

	return mail.NewSender(mail.Config{
		Host:      cfg.Host,
		Port:      cfg.Port,
		Username:  cfg.Username,
		Password:  password,
		TLSPolicy: cfg.TLSPolicy,
	}, log.Named("mail"))
}
