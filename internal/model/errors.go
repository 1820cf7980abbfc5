package model

import "errors"

// Sentinel errors for the funding core. Handlers translate these to HTTP
// statuses at the boundary; business logic wraps them with %w and context.
var (
	// ErrUnauthenticated means no caller identity was supplied.
	ErrUnauthenticated = errors.New("caller identity required")

	// ErrNotFound covers absent campaigns, reward tiers and backings.
	ErrNotFound = errors.New("not found")

	// ErrCampaignNotActive means the campaign is not accepting contributions.
	ErrCampaignNotActive = errors.New("campaign is not accepting contributions")

	// ErrSelfBacking means the caller owns the campaign they tried to back.
	ErrSelfBacking = errors.New("campaign owners cannot back their own campaign")

	// ErrRewardUnavailable means the reward tier's backer limit is exhausted.
	ErrRewardUnavailable = errors.New("reward tier is no longer available")

	// ErrAmountBelowReward means the pledged amount does not reach the
	// selected reward tier's minimum.
	ErrAmountBelowReward = errors.New("amount does not match the selected reward")

	// ErrInvalidInput covers malformed request payloads.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUpstream means a payment gateway call failed.
	ErrUpstream = errors.New("payment gateway request failed")

	// ErrSignatureInvalid means webhook authentication failed.
	ErrSignatureInvalid = errors.New("webhook signature verification failed")
)
