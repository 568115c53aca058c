// Package redeem spends cached redemption tokens through the direct
// loyalty API.
package redeem

import (
	"context"
	"log/slog"

	"steamclaim/domain/rewards"
	"steamclaim/infrastructure/steamweb"
)

// TokenResult is the outcome of redeeming one token.
type TokenResult struct {
	Token rewards.Token
	// Confirmation holds the server acknowledgment payload, empty on a
	// clean redemption.
	Confirmation []byte
	Err          error
}

// Report summarizes one redemption pass over a discovery key.
type Report struct {
	Key     string
	Results []TokenResult
}

// Succeeded counts redeemed tokens, including those the server answered
// with an acknowledgment payload.
func (r *Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil {
			n++
		}
	}
	return n
}

// Failed counts tokens the endpoint rejected.
func (r *Report) Failed() int {
	return len(r.Results) - r.Succeeded()
}

// Executor redeems tokens strictly sequentially, in discovery order.
// It never touches the cache: a rejected token stays cached and is only
// retried on a future run.
type Executor struct {
	client steamweb.Client
	logger *slog.Logger
}

// NewExecutor creates a redemption executor.
func NewExecutor(client steamweb.Client, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{client: client, logger: logger}
}

// Redeem spends every token against the loyalty endpoint. The referer is
// the points-shop page the tokens were learned on.
func (e *Executor) Redeem(ctx context.Context, accessToken, key string, tokens []rewards.Token, referer string) *Report {
	log := e.logger.With("key", key)
	report := &Report{Key: key}

	for _, token := range tokens {
		if err := ctx.Err(); err != nil {
			report.Results = append(report.Results, TokenResult{Token: token, Err: err})
			continue
		}

		confirmation, err := e.client.RedeemPoints(ctx, token, accessToken, referer)
		report.Results = append(report.Results, TokenResult{
			Token:        token,
			Confirmation: confirmation,
			Err:          err,
		})

		switch {
		case err != nil:
			log.Warn("Token redemption rejected, token stays cached for a future run", "error", err)
		case len(confirmation) > 0:
			log.Info("Token redeemed with server acknowledgment", "ack_bytes", len(confirmation))
		default:
			log.Info("Token redeemed")
		}
	}

	log.Info("Redemption pass finished", "succeeded", report.Succeeded(), "failed", report.Failed())
	return report
}
