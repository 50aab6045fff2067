package ecommerce

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/omnisync/backend/internal/application/ingest"
	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/returns"
	"github.com/omnisync/backend/internal/infrastructure/channelapi"
)

// Shopify webhook headers
const (
	ShopifyHeaderHMAC       = "X-Shopify-Hmac-Sha256"
	ShopifyHeaderTopic      = "X-Shopify-Topic"
	ShopifyHeaderShopDomain = "X-Shopify-Shop-Domain"
	ShopifyHeaderWebhookID  = "X-Shopify-Webhook-Id"
)

const shopifyPageSize = 250

// shopifyTopics routes webhook topics onto internal ones
var shopifyTopics = map[string]integration.Topic{
	"orders/create":              integration.TopicOrder,
	"orders/updated":             integration.TopicOrder,
	"orders/paid":                integration.TopicOrder,
	"orders/cancelled":           integration.TopicOrder,
	"orders/fulfilled":           integration.TopicOrder,
	"orders/partially_fulfilled": integration.TopicOrder,
	"orders/edited":              integration.TopicOrder,
	"refunds/create":             integration.TopicRefund,
	"returns/request":            integration.TopicReturnRequest,
	"returns/approve":            integration.TopicReturnRequest,
	"returns/decline":            integration.TopicReturnRequest,
	"returns/update":             integration.TopicReturnRequest,
	"returns/close":              integration.TopicReturnRequest,
	"returns/reopen":             integration.TopicReturnRequest,
	"returns/cancel":             integration.TopicReturnRequest,
	"products/create":            integration.TopicProduct,
	"products/update":            integration.TopicProduct,
}

// ShopifyClient talks to the Shopify Admin API. It verifies webhooks, pulls
// paginated orders, refunds and products, and pushes return decisions back.
type ShopifyClient struct {
	api     *channelapi.Client
	baseURL string
	logger  *zap.Logger
}

// NewShopifyClient creates a client. opts.BaseURL, when set, replaces the
// per-shop https://<domain> origin; integrations can override it again.
func NewShopifyClient(opts channelapi.Options, logger *zap.Logger) *ShopifyClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShopifyClient{
		api:     channelapi.New(integration.PlatformShopify, opts, logger),
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		logger:  logger,
	}
}

// Platform implements ingest.Provider, ChannelPuller and ReturnStatusPusher
func (c *ShopifyClient) Platform() integration.PlatformCode { return integration.PlatformShopify }

// ---------------------------------------------------------------------------
// Webhooks
// ---------------------------------------------------------------------------

// VerifyWebhook checks the base64 HMAC-SHA256 of the raw body
func (c *ShopifyClient) VerifyWebhook(integ *integration.Integration, body []byte, signature string) bool {
	secret := ShopifyConfigFromIntegration(integ).SigningSecret()
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.TrimSpace(signature)), []byte(expected))
}

// RouteTopic implements ingest.Provider
func (c *ShopifyClient) RouteTopic(topic string) (integration.Topic, bool) {
	t, ok := shopifyTopics[strings.ToLower(strings.TrimSpace(topic))]
	return t, ok
}

// ExternalID implements ingest.Provider
func (c *ShopifyClient) ExternalID(_ integration.Topic, body []byte) string {
	return topLevelID(body)
}

// SignShopifyWebhook computes the header value Shopify would send for body
func SignShopifyWebhook(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ---------------------------------------------------------------------------
// Pulls
// ---------------------------------------------------------------------------

func (c *ShopifyClient) config(integ *integration.Integration) (*ShopifyConfig, error) {
	cfg := ShopifyConfigFromIntegration(integ)
	if cfg.BaseURL == "" {
		cfg.BaseURL = c.baseURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Pull implements integration.ChannelPuller. Returns are pulled as the refunds
// embedded in updated orders.
func (c *ShopifyClient) Pull(ctx context.Context, integ *integration.Integration, kind integration.SyncKind, since *time.Time, cursor string) (*integration.PullPage, error) {
	cfg, err := c.config(integ)
	if err != nil {
		return nil, err
	}

	switch kind {
	case integration.SyncKindOrders:
		raw, next, err := c.list(ctx, cfg, "/orders.json", "orders", since, cursor)
		if err != nil {
			return nil, err
		}
		return page(splitItems(raw, integration.JobKindOrder, topLevelID), next), nil

	case integration.SyncKindReturns:
		raw, next, err := c.list(ctx, cfg, "/orders.json", "orders", since, cursor)
		if err != nil {
			return nil, err
		}
		var items []integration.PullItem
		for _, o := range raw {
			var holder struct {
				Refunds []json.RawMessage `json:"refunds"`
			}
			if err := json.Unmarshal(o, &holder); err != nil {
				return nil, fmt.Errorf("%w: shopify order refunds: %v", integration.ErrPlatformInvalidResponse, err)
			}
			items = append(items, splitItems(holder.Refunds, integration.JobKindRefund, topLevelID)...)
		}
		return page(items, next), nil

	case integration.SyncKindProducts:
		raw, next, err := c.list(ctx, cfg, "/products.json", "products", since, cursor)
		if err != nil {
			return nil, err
		}
		return page(splitItems(raw, integration.JobKindProduct, topLevelID), next), nil
	}
	return nil, fmt.Errorf("%w: shopify sync kind %q", integration.ErrUnsupportedTopic, kind)
}

func page(items []integration.PullItem, next string) *integration.PullPage {
	return &integration.PullPage{Items: items, NextCursor: next, HasMore: next != ""}
}

// list fetches one page of a REST collection. Shopify rejects filters next to
// page_info, so a cursor replaces them.
func (c *ShopifyClient) list(ctx context.Context, cfg *ShopifyConfig, path, key string, since *time.Time, cursor string) ([]json.RawMessage, string, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(shopifyPageSize))
	if cursor != "" {
		params.Set("page_info", cursor)
	} else {
		if key == "orders" {
			params.Set("status", "any")
		}
		if since != nil {
			params.Set("updated_at_min", since.UTC().Format(time.RFC3339))
		}
	}

	resp, err := c.api.Do(ctx, channelapi.Request{
		Method:  http.MethodGet,
		URL:     cfg.AdminURL(path) + "?" + params.Encode(),
		Headers: shopifyHeaders(cfg),
	})
	if err != nil {
		return nil, "", err
	}

	var envelope map[string][]json.RawMessage
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, "", fmt.Errorf("%w: shopify %s: %v", integration.ErrPlatformInvalidResponse, key, err)
	}
	next, _ := parseShopifyPagination(resp.Headers.Get("Link"))
	return envelope[key], next, nil
}

func shopifyHeaders(cfg *ShopifyConfig) http.Header {
	h := http.Header{}
	h.Set("X-Shopify-Access-Token", cfg.AccessToken)
	return h
}

// parseShopifyPagination extracts the page_info of the rel="next" link
func parseShopifyPagination(linkHeader string) (string, bool) {
	for _, part := range strings.Split(linkHeader, ",") {
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		urlPart := strings.Trim(strings.TrimSpace(strings.Split(part, ";")[0]), "<>")
		if parsed, err := url.Parse(urlPart); err == nil {
			if info := parsed.Query().Get("page_info"); info != "" {
				return info, true
			}
		}
	}
	return "", false
}

// ---------------------------------------------------------------------------
// Return status push
// ---------------------------------------------------------------------------

// shopifyReturnMutations maps a local decision onto the Returns GraphQL API.
// Statuses Shopify has no counterpart for are not pushed.
var shopifyReturnMutations = map[returns.Status]struct {
	name  string
	query string
}{
	returns.StatusApproved: {
		name:  "returnApproveRequest",
		query: `mutation($id: ID!) { returnApproveRequest(input: {id: $id}) { userErrors { field message } } }`,
	},
	returns.StatusRejected: {
		name:  "returnDeclineRequest",
		query: `mutation($id: ID!, $note: String) { returnDeclineRequest(input: {id: $id, declineReason: OTHER, declineNote: $note}) { userErrors { field message } } }`,
	},
	returns.StatusCompleted: {
		name:  "returnClose",
		query: `mutation($id: ID!) { returnClose(id: $id) { userErrors { field message } } }`,
	},
	returns.StatusCancelled: {
		name:  "returnCancel",
		query: `mutation($id: ID!) { returnCancel(id: $id) { userErrors { field message } } }`,
	},
}

// PushReturnStatus implements integration.ReturnStatusPusher
func (c *ShopifyClient) PushReturnStatus(ctx context.Context, integ *integration.Integration, push integration.ReturnStatusPush) error {
	mutation, ok := shopifyReturnMutations[push.Status]
	if !ok {
		c.logger.Debug("Shopify has no counterpart for return status",
			zap.String("return_id", push.ExternalReturnID),
			zap.String("status", string(push.Status)),
		)
		return nil
	}
	cfg, err := c.config(integ)
	if err != nil {
		return err
	}

	variables := map[string]any{"id": shopifyReturnGID(push.ExternalReturnID)}
	if push.Status == returns.StatusRejected {
		variables["note"] = push.Reason
	}
	resp, err := c.api.Do(ctx, channelapi.Request{
		Method:  http.MethodPost,
		URL:     cfg.AdminURL("/graphql.json"),
		Headers: shopifyHeaders(cfg),
		Body:    map[string]any{"query": mutation.query, "variables": variables},
	})
	if err != nil {
		return err
	}

	var gql shopifyGraphQLResponse
	if err := json.Unmarshal(resp.Body, &gql); err != nil {
		return fmt.Errorf("%w: shopify graphql: %v", integration.ErrPlatformInvalidResponse, err)
	}
	if len(gql.Errors) > 0 {
		return fmt.Errorf("%w: shopify %s: %s", integration.ErrPlatformRequestFailed, mutation.name, gql.Errors[0].Message)
	}
	var result shopifyUserErrors
	if raw, ok := gql.Data[mutation.name]; ok {
		_ = json.Unmarshal(raw, &result)
	}
	if len(result.UserErrors) > 0 {
		return fmt.Errorf("%w: shopify %s: %s", integration.ErrPlatformRequestFailed, mutation.name, result.UserErrors[0].Message)
	}
	return nil
}

func shopifyReturnGID(id string) string {
	if strings.HasPrefix(id, "gid://") {
		return id
	}
	return "gid://shopify/Return/" + id
}

var (
	_ ingest.Provider                = (*ShopifyClient)(nil)
	_ integration.ChannelPuller      = (*ShopifyClient)(nil)
	_ integration.ReturnStatusPusher = (*ShopifyClient)(nil)
)
