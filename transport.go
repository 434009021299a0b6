/*
Copyright 2025 Outbound Labs Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cadence

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/outboundlabs/cadence/config"
	"github.com/outboundlabs/cadence/internal/apierror"
	"github.com/outboundlabs/cadence/internal/request"
	"github.com/outboundlabs/cadence/model"
)

// DeliveryRequest is the payload handed to a delivery provider.
type DeliveryRequest struct {
	AccountID string        `json:"account_id"`
	ContactID string        `json:"contact_id"`
	Channel   model.Channel `json:"channel"`
	Subject   string        `json:"subject,omitempty"`
	Body      string        `json:"body"`
	Recipient string        `json:"recipient"`
}

// DeliveryResult is the provider's acknowledgement.
type DeliveryResult struct {
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	Status            string `json:"status"`
}

// MessageTransport delivers one rendered message through an external
// provider.
type MessageTransport interface {
	Send(ctx context.Context, req *DeliveryRequest) (*DeliveryResult, error)
}

// HTTPTransport POSTs messages to a provider endpoint. Transient
// failures (network errors, 5xx) are retried with exponential backoff;
// provider rejections (4xx) are permanent.
type HTTPTransport struct {
	name    string
	url     string
	timeout time.Duration
}

func NewHTTPTransport(name, url string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{name: name, url: url, timeout: timeout}
}

const transportMaxRetries = 3

func (t *HTTPTransport) Send(ctx context.Context, deliveryReq *DeliveryRequest) (*DeliveryResult, error) {
	if t.url == "" {
		return nil, apierror.NewAPIError(apierror.ErrUnavailable, fmt.Sprintf("%s transport not configured", t.name), nil)
	}

	var result DeliveryResult
	operation := func() error {
		payload, err := request.ToJsonReq(deliveryReq)
		if err != nil {
			return backoff.Permanent(err)
		}

		reqCtx, cancel := context.WithTimeout(ctx, t.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, t.url, payload)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := request.Call(req, &result)
		if err != nil {
			return err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%s provider returned %d", t.name, resp.StatusCode)
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return backoff.Permanent(fmt.Errorf("%s provider rejected message with %d", t.name, resp.StatusCode))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), transportMaxRetries), ctx)
	if err := backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		logrus.Warnf("%s delivery retry in %s: %v", t.name, wait, err)
	}); err != nil {
		return nil, err
	}

	if result.Status == "" {
		result.Status = "sent"
	}
	return &result, nil
}

// TransportRegistry maps channels to their configured transports.
type TransportRegistry struct {
	linkedin MessageTransport
	email    MessageTransport
}

func NewTransportRegistry(conf *config.Configuration) *TransportRegistry {
	timeout := time.Duration(conf.Transport.TimeoutSec) * time.Second
	return &TransportRegistry{
		linkedin: NewHTTPTransport("linkedin", conf.Transport.LinkedInUrl, timeout),
		email:    NewHTTPTransport("email", conf.Transport.EmailUrl, timeout),
	}
}

// ForChannel returns the transport serving the channel.
func (r *TransportRegistry) ForChannel(channel model.Channel) (MessageTransport, error) {
	switch channel {
	case model.ChannelLinkedIn:
		return r.linkedin, nil
	case model.ChannelEmail:
		return r.email, nil
	default:
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("unknown channel %q", channel), nil)
	}
}
