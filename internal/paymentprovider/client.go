package paymentprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client реализует минимальный клиент Stripe API поверх net/http.
// Используется для дочитывания полей подписки, отсутствующих в событии,
// и для создания платёжных сессий.
type Client struct {
	secretKey  string
	apiURL     string
	httpClient *http.Client
}

// NewClient создаёт новый клиент Stripe.
func NewClient(secretKey string) *Client {
	return &Client{
		secretKey:  secretKey,
		apiURL:     "https://api.stripe.com/v1",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return errors.New("unexpected status: " + resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// RetrieveSubscription запрашивает подписку у провайдера по идентификатору.
func (c *Client) RetrieveSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	var sub Subscription
	if err := c.do(ctx, http.MethodGet, "/subscriptions/"+subscriptionID, nil, &sub); err != nil {
		return nil, fmt.Errorf("retrieve subscription: %w", err)
	}
	return &sub, nil
}

// CreateCustomer создаёт клиента у провайдера с привязкой к пользователю.
func (c *Client) CreateCustomer(ctx context.Context, email, name, userUID string) (*Customer, error) {
	form := url.Values{}
	form.Set("email", email)
	if name != "" {
		form.Set("name", name)
	}
	form.Set("metadata[userId]", userUID)

	var customer Customer
	if err := c.do(ctx, http.MethodPost, "/customers", form, &customer); err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return &customer, nil
}

// SubscriptionCheckoutParams — параметры сессии оформления подписки.
type SubscriptionCheckoutParams struct {
	CustomerID string
	PriceID    string
	UserUID    string
	SuccessURL string
	CancelURL  string
}

// CreateSubscriptionCheckout создаёт платёжную сессию в режиме подписки.
func (c *Client) CreateSubscriptionCheckout(ctx context.Context, params SubscriptionCheckoutParams) (*Session, error) {
	form := url.Values{}
	form.Set("mode", ModeSubscription)
	form.Set("customer", params.CustomerID)
	form.Set("line_items[0][price]", params.PriceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	form.Set("metadata[userId]", params.UserUID)
	form.Set("subscription_data[metadata][userId]", params.UserUID)

	var session Session
	if err := c.do(ctx, http.MethodPost, "/checkout/sessions", form, &session); err != nil {
		return nil, fmt.Errorf("create subscription checkout: %w", err)
	}
	return &session, nil
}

// ResourceCheckoutParams — параметры сессии разовой покупки ресурса.
type ResourceCheckoutParams struct {
	CustomerID    string
	ResourceID    string
	ResourceTitle string
	AmountCents   int
	UserUID       string
	SuccessURL    string
	CancelURL     string
}

// CreateResourceCheckout создаёт платёжную сессию в режиме разовой оплаты.
func (c *Client) CreateResourceCheckout(ctx context.Context, params ResourceCheckoutParams) (*Session, error) {
	form := url.Values{}
	form.Set("mode", ModePayment)
	form.Set("customer", params.CustomerID)
	form.Set("line_items[0][price_data][currency]", "usd")
	form.Set("line_items[0][price_data][product_data][name]", params.ResourceTitle)
	form.Set("line_items[0][price_data][unit_amount]", strconv.Itoa(params.AmountCents))
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	form.Set("metadata[userId]", params.UserUID)
	form.Set("metadata[resourceId]", params.ResourceID)

	var session Session
	if err := c.do(ctx, http.MethodPost, "/checkout/sessions", form, &session); err != nil {
		return nil, fmt.Errorf("create resource checkout: %w", err)
	}
	return &session, nil
}

// CreateBillingPortalSession создаёт сессию личного кабинета оплаты.
func (c *Client) CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (*Session, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("return_url", returnURL)

	var session Session
	if err := c.do(ctx, http.MethodPost, "/billing_portal/sessions", form, &session); err != nil {
		return nil, fmt.Errorf("create billing portal session: %w", err)
	}
	return &session, nil
}
