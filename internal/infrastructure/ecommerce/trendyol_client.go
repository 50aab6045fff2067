package ecommerce

import (
	"context"
	"crypto/subtle"
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

// Trendyol webhook conventions. The marketplace only calls back for package
// changes; claims arrive through polling or an explicit ?topic=claim route.
const (
	TrendyolHeaderAPIKey     = "x-api-key"
	TrendyolHeaderSupplierID = "X-Supplier-Id"
)

const (
	trendyolPageSize = 200
	// claimWaitingInAction is the only claim item state the seller may decide on
	claimWaitingInAction = "waitinginaction"
)

var trendyolTopics = map[string]integration.Topic{
	"":         integration.TopicOrder,
	"order":    integration.TopicOrder,
	"orders":   integration.TopicOrder,
	"package":  integration.TopicOrder,
	"claim":    integration.TopicClaim,
	"claims":   integration.TopicClaim,
	"product":  integration.TopicProduct,
	"products": integration.TopicProduct,
}

// TrendyolClient talks to the Trendyol seller API
type TrendyolClient struct {
	api     *channelapi.Client
	baseURL string
	logger  *zap.Logger
}

// NewTrendyolClient creates a client; opts.BaseURL overrides the production gateway
func NewTrendyolClient(opts channelapi.Options, logger *zap.Logger) *TrendyolClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrendyolClient{
		api:     channelapi.New(integration.PlatformTrendyol, opts, logger),
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		logger:  logger,
	}
}

// Platform implements ingest.Provider, ChannelPuller and ReturnStatusPusher
func (c *TrendyolClient) Platform() integration.PlatformCode { return integration.PlatformTrendyol }

// VerifyWebhook accepts either the bare webhook key or a Basic credential.
// Basic credentials may carry the webhook key as password or the API key pair.
func (c *TrendyolClient) VerifyWebhook(integ *integration.Integration, _ []byte, signature string) bool {
	cfg := TrendyolConfigFromIntegration(integ)
	presented := strings.TrimSpace(signature)
	if presented == "" {
		return false
	}
	if strings.HasPrefix(strings.ToLower(presented), "basic ") {
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(presented[6:]))
		if err != nil {
			return false
		}
		user, pass, ok := strings.Cut(string(raw), ":")
		if !ok {
			return false
		}
		if cfg.WebhookSecret != "" && constantEqual(pass, cfg.WebhookSecret) {
			return true
		}
		return cfg.APIKey != "" && cfg.APISecret != "" &&
			constantEqual(user, cfg.APIKey) && constantEqual(pass, cfg.APISecret)
	}
	return cfg.WebhookSecret != "" && constantEqual(presented, cfg.WebhookSecret)
}

func constantEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// RouteTopic implements ingest.Provider; an empty topic means a package update
func (c *TrendyolClient) RouteTopic(topic string) (integration.Topic, bool) {
	t, ok := trendyolTopics[strings.ToLower(strings.TrimSpace(topic))]
	return t, ok
}

// ExternalID implements ingest.Provider
func (c *TrendyolClient) ExternalID(topic integration.Topic, body []byte) string {
	if topic == integration.TopicOrder {
		var p trendyolPackage
		if err := json.Unmarshal(body, &p); err == nil {
			return p.packageID()
		}
		return ""
	}
	return topLevelID(body)
}

func (c *TrendyolClient) config(integ *integration.Integration) (*TrendyolConfig, error) {
	cfg := TrendyolConfigFromIntegration(integ)
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = c.baseURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func trendyolHeaders(cfg *TrendyolConfig) http.Header {
	h := http.Header{}
	h.Set("Authorization", cfg.Authorization())
	h.Set("User-Agent", cfg.UserAgent())
	return h
}

// Pull implements integration.ChannelPuller. The cursor is the zero-based page number.
func (c *TrendyolClient) Pull(ctx context.Context, integ *integration.Integration, kind integration.SyncKind, since *time.Time, cursor string) (*integration.PullPage, error) {
	cfg, err := c.config(integ)
	if err != nil {
		return nil, err
	}
	pageNo := 0
	if cursor != "" {
		if pageNo, err = strconv.Atoi(cursor); err != nil || pageNo < 0 {
			return nil, fmt.Errorf("trendyol: invalid page cursor %q", cursor)
		}
	}

	params := url.Values{}
	params.Set("page", strconv.Itoa(pageNo))
	params.Set("size", strconv.Itoa(trendyolPageSize))

	var (
		endpoint string
		jobKind  integration.JobKind
		idOf     func(json.RawMessage) string
	)
	switch kind {
	case integration.SyncKindOrders:
		endpoint, jobKind = cfg.SellerURL("/orders"), integration.JobKindOrder
		params.Set("orderByField", "PackageLastModifiedDate")
		params.Set("orderByDirection", "ASC")
		idOf = func(raw json.RawMessage) string { return c.ExternalID(integration.TopicOrder, raw) }
	case integration.SyncKindReturns:
		endpoint, jobKind, idOf = cfg.SellerURL("/claims"), integration.JobKindClaim, topLevelID
	case integration.SyncKindProducts:
		endpoint, jobKind = cfg.ProductURL("/products"), integration.JobKindProduct
		idOf = trendyolProductID
	default:
		return nil, fmt.Errorf("%w: trendyol sync kind %q", integration.ErrUnsupportedTopic, kind)
	}
	if since != nil {
		if kind == integration.SyncKindProducts {
			params.Set("dateQueryType", "LAST_MODIFIED_DATE")
		}
		params.Set("startDate", strconv.FormatInt(since.UnixMilli(), 10))
		params.Set("endDate", strconv.FormatInt(time.Now().UnixMilli(), 10))
	}

	resp, err := c.api.Do(ctx, channelapi.Request{
		Method:  http.MethodGet,
		URL:     endpoint + "?" + params.Encode(),
		Headers: trendyolHeaders(cfg),
	})
	if err != nil {
		return nil, err
	}
	var pg trendyolPage
	if err := json.Unmarshal(resp.Body, &pg); err != nil {
		return nil, fmt.Errorf("%w: trendyol %s page: %v", integration.ErrPlatformInvalidResponse, kind, err)
	}

	next := ""
	if pageNo+1 < pg.TotalPages {
		next = strconv.Itoa(pageNo + 1)
	}
	return page(splitItems(pg.Content, jobKind, idOf), next), nil
}

// trendyolProductID keys a listing row by its variant barcode
func trendyolProductID(raw json.RawMessage) string {
	var p trendyolProduct
	if err := json.Unmarshal(raw, &p); err != nil {
		return ""
	}
	if p.Barcode != "" {
		return p.Barcode
	}
	return p.ID.String()
}

// PushReturnStatus implements integration.ReturnStatusPusher. A completed
// return approves the waiting claim items, a rejection opens a claim issue.
func (c *TrendyolClient) PushReturnStatus(ctx context.Context, integ *integration.Integration, push integration.ReturnStatusPush) error {
	if push.Status != returns.StatusCompleted && push.Status != returns.StatusRejected {
		c.logger.Debug("Trendyol has no counterpart for return status",
			zap.String("claim_id", push.ExternalReturnID),
			zap.String("status", string(push.Status)),
		)
		return nil
	}
	cfg, err := c.config(integ)
	if err != nil {
		return err
	}

	itemIDs, err := c.waitingClaimItems(ctx, cfg, push.ExternalReturnID)
	if err != nil {
		return err
	}
	if len(itemIDs) == 0 {
		c.logger.Info("No claim items awaiting a decision",
			zap.String("claim_id", push.ExternalReturnID),
		)
		return nil
	}

	claimPath := "/claims/" + url.PathEscape(push.ExternalReturnID)
	if push.Status == returns.StatusCompleted {
		_, err = c.api.Do(ctx, channelapi.Request{
			Method:  http.MethodPut,
			URL:     cfg.SellerURL(claimPath + "/items/approve"),
			Headers: trendyolHeaders(cfg),
			Body: map[string]any{
				"claimLineItemIdList": itemIDs,
				"params":              map[string]any{},
			},
		})
		return err
	}

	params := url.Values{}
	params.Set("claimIssueReasonId", "1")
	params.Set("claimItemIdList", strings.Join(itemIDs, ","))
	params.Set("description", push.Reason)
	_, err = c.api.Do(ctx, channelapi.Request{
		Method:  http.MethodPost,
		URL:     cfg.SellerURL(claimPath+"/issue") + "?" + params.Encode(),
		Headers: trendyolHeaders(cfg),
	})
	return err
}

// waitingClaimItems lists the claim item ids still awaiting a seller decision
func (c *TrendyolClient) waitingClaimItems(ctx context.Context, cfg *TrendyolConfig, claimID string) ([]string, error) {
	params := url.Values{}
	params.Set("claimIds", claimID)
	resp, err := c.api.Do(ctx, channelapi.Request{
		Method:  http.MethodGet,
		URL:     cfg.SellerURL("/claims") + "?" + params.Encode(),
		Headers: trendyolHeaders(cfg),
	})
	if err != nil {
		return nil, err
	}
	var pg trendyolPage
	if err := json.Unmarshal(resp.Body, &pg); err != nil {
		return nil, fmt.Errorf("%w: trendyol claim: %v", integration.ErrPlatformInvalidResponse, err)
	}

	var ids []string
	for _, raw := range pg.Content {
		var claim trendyolClaim
		if err := json.Unmarshal(raw, &claim); err != nil {
			return nil, fmt.Errorf("%w: trendyol claim: %v", integration.ErrPlatformInvalidResponse, err)
		}
		if claim.ID.String() != claimID {
			continue
		}
		for _, line := range claim.Items {
			for _, item := range line.ClaimItems {
				if strings.EqualFold(strings.ReplaceAll(item.ClaimItemStatus.Name, " ", ""), claimWaitingInAction) {
					ids = append(ids, item.ID.String())
				}
			}
		}
	}
	return ids, nil
}

var (
	_ ingest.Provider                = (*TrendyolClient)(nil)
	_ integration.ChannelPuller      = (*TrendyolClient)(nil)
	_ integration.ReturnStatusPusher = (*TrendyolClient)(nil)
)
