package download

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"jncweb/config"
	"jncweb/jncep"
	"jncweb/labs"
)

// Buyer redeems coins for volume request points to using labs API.
type Buyer struct {
	client *labs.Client
	// spaces labs API calls of all requests, API is rate limited
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewBuyer creates purchaser from configuration.
func NewBuyer(cfg config.Purchase, client *labs.Client, log *zap.Logger) *Buyer {
	if client == nil {
		api := cfg.API
		if len(api) == 0 {
			api = labs.DefaultAPI
		}
		client = labs.New(api, nil)
	}
	return &Buyer{
		client:  client,
		limiter: rate.NewLimiter(rate.Every(time.Duration(cfg.Delay)*time.Second), 1),
		log:     log,
	}
}

// Purchase logs in and redeems volume. Generation which failed just used the API, so it counts as a call
// and volume lookup and login are each delayed.
func (b *Buyer) Purchase(ctx context.Context, req jncep.Request) error {

	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	id, err := b.client.ResolveVolume(ctx, req.URL, req.Parts)
	if err != nil {
		return err
	}
	b.log.Debug("Volume resolved, waiting before login", zap.String("volume", id), zap.Duration("delay", b.delay()))
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	token, err := b.client.Login(ctx, req.Credentials.Email, req.Credentials.Password)
	if err != nil {
		return err
	}
	if err := b.client.Redeem(ctx, token, id); err != nil {
		return err
	}
	b.log.Info("Volume purchased", zap.String("volume", id))
	return nil
}

func (b *Buyer) delay() time.Duration {
	if l := b.limiter.Limit(); l != rate.Inf && l > 0 {
		return time.Duration(float64(time.Second) / float64(l))
	}
	return 0
}
