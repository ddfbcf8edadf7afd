package mqtt

import "context"

// SubscriptionAuthority decides the SUBACK and UNSUBACK outcome for
// each topic filter a client names. Without one, every subscription is
// granted at its requested QoS and unsubscribes answer by whether the
// filter existed.
type SubscriptionAuthority interface {
	// GrantSubscribe returns the SUBACK reason code for one requested
	// subscription. ReasonSuccess, ReasonGrantedQoS1 and
	// ReasonGrantedQoS2 grant at that QoS, capped at the requested one;
	// an error code refuses the filter.
	GrantSubscribe(ctx context.Context, clientID string, sub Subscription) ReasonCode

	// GrantUnsubscribe returns the UNSUBACK reason code for one filter.
	// An error code refuses the unsubscribe and keeps the subscription.
	GrantUnsubscribe(ctx context.Context, clientID string, filter string) ReasonCode
}

// AllowAllSubscriptions grants every filter at its requested QoS, the
// behavior a dispatcher falls back to when no authority is configured.
type AllowAllSubscriptions struct{}

// GrantSubscribe grants the requested QoS.
func (AllowAllSubscriptions) GrantSubscribe(_ context.Context, _ string, sub Subscription) ReasonCode {
	return ReasonCode(sub.QoS)
}

// GrantUnsubscribe always permits the removal.
func (AllowAllSubscriptions) GrantUnsubscribe(context.Context, string, string) ReasonCode {
	return ReasonSuccess
}
