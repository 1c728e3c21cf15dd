package events

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mitchellh/mapstructure"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSConfig configures the NATS connector. Events go to
// <subjectPrefix>.<collection>.<op>. With Stream set they are published
// through JetStream into that stream.
type NATSConfig struct {
	Servers        []string      `mapstructure:"servers"`
	SubjectPrefix  string        `mapstructure:"subjectPrefix"`
	Stream         string        `mapstructure:"stream"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
	TLS            struct {
		CertFile string `mapstructure:"certFile"`
		KeyFile  string `mapstructure:"keyFile"`
		CAFile   string `mapstructure:"caFile"`
	} `mapstructure:"tls"`
}

// DecodeNATSConfig reads a free-form connector config.
func DecodeNATSConfig(raw map[string]any) (NATSConfig, error) {
	var cfg NATSConfig
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(mapstructure.StringToTimeDurationHookFunc(), mapstructure.StringToSliceHookFunc(",")),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &cfg,
	})
	if err != nil {
		return cfg, err
	}
	if err := dec.Decode(raw); err != nil {
		return cfg, fmt.Errorf("decode NATS config: %w", err)
	}
	if len(cfg.Servers) == 0 {
		cfg.Servers = []string{nats.DefaultURL}
	}
	cfg.SubjectPrefix = cmp.Or(cfg.SubjectPrefix, "pgcrud")
	cfg.ConnectTimeout = cmp.Or(cfg.ConnectTimeout, 30*time.Second)
	return cfg, nil
}

// Subject returns the subject an event is published on.
func (c NATSConfig) Subject(e Event) string {
	return fmt.Sprintf("%s.%s.%s", c.SubjectPrefix, e.Collection, e.Op)
}

// NATSPublisher publishes events to NATS.
type NATSPublisher struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	cfg    NATSConfig
	logger *zap.Logger
}

var errConnNotInitialized = errors.New("NATS connection not initialized")

// NewNATSPublisher connects to the first reachable server, retrying with
// exponential backoff until cfg.ConnectTimeout elapses.
func NewNATSPublisher(ctx context.Context, cfg NATSConfig, logger *zap.Logger) (*NATSPublisher, error) {
	p := &NATSPublisher{cfg: cfg, logger: logger.Named("events.nats")}
	opts := natsOptions(cfg)

	connect := func() error {
		var err error
		for _, server := range cfg.Servers {
			p.nc, err = nats.Connect(server, opts...)
			if err == nil {
				return nil
			}
			p.logger.Warn("connect to NATS", zap.String("server", server), zap.Error(err))
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = cfg.ConnectTimeout
	if err := backoff.Retry(connect, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("connect to NATS server: %w", err)
	}

	if cfg.Stream != "" {
		js, err := p.nc.JetStream()
		if err != nil {
			p.nc.Close()
			return nil, fmt.Errorf("create JetStream context: %w", err)
		}
		p.js = js
		if err := p.ensureStream(); err != nil {
			p.nc.Close()
			return nil, fmt.Errorf("ensure stream: %w", err)
		}
	}
	return p, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	if p.nc == nil {
		return errConnNotInitialized
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := p.cfg.Subject(e)
	if p.js != nil {
		if _, err := p.js.Publish(subject, data, nats.Context(ctx)); err != nil {
			return fmt.Errorf("publish to stream: %w", err)
		}
		return nil
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

func (p *NATSPublisher) Name() string { return ConnectorNATS }

func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}

func (p *NATSPublisher) ensureStream() error {
	config := &nats.StreamConfig{
		Name:     p.cfg.Stream,
		Subjects: []string{p.cfg.SubjectPrefix + ".>"},
		Storage:  nats.FileStorage,
		Replicas: 1,
	}

	if _, err := p.js.StreamInfo(p.cfg.Stream); err == nil {
		if _, err := p.js.UpdateStream(config); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		return nil
	} else if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("get stream info: %w", err)
	}

	if _, err := p.js.AddStream(config); err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	p.logger.Info("created stream", zap.String("stream", p.cfg.Stream))
	return nil
}

func natsOptions(c NATSConfig) []nats.Option {
	opts := []nats.Option{
		nats.Name("pgcrud"),
		nats.Timeout(5 * time.Second),
		nats.PingInterval(10 * time.Second),
		nats.MaxPingsOutstanding(3),
		nats.MaxReconnects(-1),
	}
	if c.Username != "" && c.Password != "" {
		opts = append(opts, nats.UserInfo(c.Username, c.Password))
	}
	if c.TLS.CAFile != "" {
		opts = append(opts, nats.RootCAs(c.TLS.CAFile))
	}
	if c.TLS.CertFile != "" && c.TLS.KeyFile != "" {
		opts = append(opts, nats.ClientCert(c.TLS.CertFile, c.TLS.KeyFile))
	}
	return opts
}
