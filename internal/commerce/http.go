package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"storefront/internal/domain"
)

const maxBodyBytes = 1 << 20

// HTTPClient speaks the backend's REST API rooted at BaseURL (for example
// "http://localhost:8081/api/shopify"). Paths are joined onto BaseURL as is.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewHTTPClient builds a client whose requests are bounded by timeout.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

var _ Client = (*HTTPClient)(nil)

type cartEnvelope struct {
	Success bool `json:"success"`
	Cart    *struct {
		ID          string `json:"id"`
		CheckoutURL string `json:"checkoutUrl"`
	} `json:"cart"`
}

type customerEnvelope struct {
	Success  bool             `json:"success"`
	Customer *domain.Customer `json:"customer"`
}

type tokenEnvelope struct {
	AccessToken   string           `json:"accessToken"`
	ExpiresAt     string           `json:"expiresAt"`
	Customer      *domain.Customer `json:"customer"`
	RequiresLogin bool             `json:"requiresLogin"`
}

// dataEnvelope is the {success, data} shape of the review endpoints.
type dataEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type errorEnvelope struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	UserErrors []struct {
		Field   []string `json:"field,omitempty"`
		Message string   `json:"message"`
	} `json:"userErrors"`
}

func (c *HTTPClient) CreateRemoteCart(ctx context.Context, lines []domain.LineInput) (*RemoteCart, error) {
	if err := validateLines(lines); err != nil {
		return nil, err
	}
	var out cartEnvelope
	body := map[string]interface{}{"lineItems": lines}
	if err := c.do(ctx, http.MethodPost, "/checkout/create", "", body, false, &out); err != nil {
		return nil, err
	}
	if out.Cart == nil || out.Cart.ID == "" {
		return nil, malformed("cart creation returned no cart")
	}
	if out.Cart.CheckoutURL == "" {
		return nil, malformed("no checkout URL returned from server")
	}
	return &RemoteCart{ID: out.Cart.ID, CheckoutURL: out.Cart.CheckoutURL}, nil
}

func (c *HTTPClient) AddLinesToRemoteCart(ctx context.Context, remoteCartID string, lines []domain.LineInput) error {
	if strings.TrimSpace(remoteCartID) == "" {
		return domain.NewError(domain.ErrValidation, "remote cart id required")
	}
	if err := validateLines(lines); err != nil {
		return err
	}
	var out cartEnvelope
	body := map[string]interface{}{"checkoutId": remoteCartID, "lineItems": lines}
	if err := c.do(ctx, http.MethodPost, "/checkout/add-items", "", body, false, &out); err != nil {
		return err
	}
	if out.Cart != nil && out.Cart.ID != "" && out.Cart.ID != remoteCartID {
		return malformed("add-items answered for a different cart")
	}
	return nil
}

func (c *HTTPClient) UpdateRemoteCartLines(ctx context.Context, remoteCartID string, lines []domain.LineInput) error {
	if strings.TrimSpace(remoteCartID) == "" {
		return domain.NewError(domain.ErrValidation, "remote cart id required")
	}
	if len(lines) == 0 {
		return domain.NewError(domain.ErrValidation, "no line updates")
	}
	for _, l := range lines {
		if strings.TrimSpace(l.VariantID) == "" || l.Quantity < 0 {
			return domain.NewError(domain.ErrValidation, "each line update must have variantId and a quantity of zero or more")
		}
	}
	var out cartEnvelope
	body := map[string]interface{}{"cartId": remoteCartID, "lines": lines}
	if err := c.do(ctx, http.MethodPost, "/checkout/update-items", "", body, false, &out); err != nil {
		return err
	}
	if out.Cart != nil && out.Cart.ID != "" && out.Cart.ID != remoteCartID {
		return malformed("update-items answered for a different cart")
	}
	return nil
}

func (c *HTTPClient) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/products", "", nil, false, &raw); err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, malformed("product list is not an array")
	}
	var products []domain.Product
	if err := json.Unmarshal(trimmed, &products); err != nil {
		return nil, domain.WrapError(domain.ErrRemoteRejection, err, "malformed product list")
	}
	for _, p := range products {
		if p.ID == "" || p.Title == "" {
			return nil, malformed("listed product is missing id or title")
		}
	}
	if products == nil {
		products = []domain.Product{}
	}
	return products, nil
}

func (c *HTTPClient) GetProduct(ctx context.Context, handle string) (*domain.Product, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, domain.NewError(domain.ErrValidation, "product handle required")
	}
	var raw json.RawMessage
	err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(handle), "", nil, false, &raw)
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) && errors.Is(de.Cause, domain.ErrNotFound) {
			de.Message = fmt.Sprintf("Product %q not found", handle)
		}
		return nil, err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, malformed("product response is not an object")
	}
	var p domain.Product
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, domain.WrapError(domain.ErrRemoteRejection, err, "malformed product response")
	}
	if p.ID == "" || p.Title == "" {
		return nil, malformed("product is missing id or title")
	}
	return &p, nil
}

func (c *HTTPClient) VerifyToken(ctx context.Context, token string) (*domain.Customer, error) {
	var out customerEnvelope
	if err := c.do(ctx, http.MethodPost, "/customer/me", "", map[string]string{"token": token}, true, &out); err != nil {
		return nil, err
	}
	if !out.Success || out.Customer == nil {
		return nil, domain.NewError(domain.ErrAuthExpired, "invalid token")
	}
	return out.Customer, nil
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (*AccessToken, error) {
	var out tokenEnvelope
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/login", "", body, false, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, malformed("login returned no access token")
	}
	return parseAccessToken(out)
}

func (c *HTTPClient) CreateAccount(ctx context.Context, in AccountInput) (*AccountCreation, error) {
	var out tokenEnvelope
	if err := c.do(ctx, http.MethodPost, "/create-account", "", in, false, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		if !out.RequiresLogin {
			return nil, malformed("account creation returned neither a token nor requiresLogin")
		}
		return &AccountCreation{RequiresLogin: true, Customer: out.Customer}, nil
	}
	tok, err := parseAccessToken(out)
	if err != nil {
		return nil, err
	}
	return &AccountCreation{Token: tok, Customer: out.Customer}, nil
}

func (c *HTTPClient) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/customer/logout", "", map[string]string{"token": token}, true, nil)
}

func (c *HTTPClient) UpdateCustomerProfile(ctx context.Context, token string, patch domain.CustomerPatch) (*domain.Customer, error) {
	var out customerEnvelope
	if err := c.do(ctx, http.MethodPut, "/customer/update", token, patch, true, &out); err != nil {
		return nil, err
	}
	if !out.Success || out.Customer == nil {
		return nil, malformed("update returned no customer")
	}
	return out.Customer, nil
}

func (c *HTTPClient) GetReviews(ctx context.Context, productID string, q domain.ReviewQuery) (*domain.ReviewPage, error) {
	path, err := reviewPath(productID)
	if err != nil {
		return nil, err
	}
	q = q.Normalize()
	params := url.Values{}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("sort", q.Sort)

	var page domain.ReviewPage
	if err := c.doData(ctx, http.MethodGet, path+"?"+params.Encode(), nil, &page); err != nil {
		return nil, err
	}
	if page.Reviews == nil {
		page.Reviews = []domain.Review{}
	}
	return &page, nil
}

func (c *HTTPClient) SubmitReview(ctx context.Context, productID string, in domain.ReviewInput) (*domain.Review, error) {
	path, err := reviewPath(productID)
	if err != nil {
		return nil, err
	}
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var rv domain.Review
	if err := c.doData(ctx, http.MethodPost, path, in, &rv); err != nil {
		return nil, err
	}
	if rv.ID == "" {
		return nil, malformed("submitted review has no id")
	}
	return &rv, nil
}

func (c *HTTPClient) MarkReviewHelpful(ctx context.Context, productID, reviewID string) (*domain.Review, error) {
	path, err := reviewPath(productID, reviewID)
	if err != nil {
		return nil, err
	}
	var rv domain.Review
	if err := c.doData(ctx, http.MethodPost, path+"/helpful", nil, &rv); err != nil {
		return nil, err
	}
	return &rv, nil
}

func (c *HTTPClient) ReportReview(ctx context.Context, productID, reviewID, reason string) (*domain.Review, error) {
	path, err := reviewPath(productID, reviewID)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.NewError(domain.ErrValidation, "A reason is required to report a review")
	}
	var rv domain.Review
	if err := c.doData(ctx, http.MethodPost, path+"/report", map[string]string{"reason": reason}, &rv); err != nil {
		return nil, err
	}
	return &rv, nil
}

func (c *HTTPClient) GetReviewStats(ctx context.Context, productID string) (*domain.ReviewStats, error) {
	path, err := reviewPath(productID)
	if err != nil {
		return nil, err
	}
	var stats domain.ReviewStats
	if err := c.doData(ctx, http.MethodGet, path+"/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// reviewPath escapes ids into /reviews/{productID}[/{reviewID}].
func reviewPath(ids ...string) (string, error) {
	path := "/reviews"
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return "", domain.NewError(domain.ErrValidation, "product and review ids are required")
		}
		path += "/" + url.PathEscape(id)
	}
	return path, nil
}

// doData is do for endpoints answering {success, data}.
func (c *HTTPClient) doData(ctx context.Context, method, path string, in interface{}, out interface{}) error {
	var env dataEnvelope
	if err := c.do(ctx, method, path, "", in, false, &env); err != nil {
		return err
	}
	data := bytes.TrimSpace(env.Data)
	if !env.Success || len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return malformed("missing data")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return domain.WrapError(domain.ErrRemoteRejection, err, "malformed response")
	}
	return nil
}

// do sends one request and decodes a 2xx JSON body into out. tokenRoute
// marks calls whose 401 means the customer token is no longer valid.
func (c *HTTPClient) do(ctx context.Context, method, path, bearer string, in interface{}, tokenRoute bool, out interface{}) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return domain.WrapError(domain.ErrNetwork, err, "backend unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return domain.WrapError(domain.ErrNetwork, err, "read backend response")
	}
	c.logger.Debug("backend response",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode >= 300 {
		return classifyStatus(resp.StatusCode, raw, tokenRoute)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		if out != nil {
			return malformed("empty response body")
		}
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return domain.WrapError(domain.ErrRemoteRejection, err, "malformed response")
	}
	return nil
}

func classifyStatus(status int, raw []byte, tokenRoute bool) error {
	var env errorEnvelope
	_ = json.Unmarshal(raw, &env)
	msg := env.Error
	if len(env.UserErrors) > 0 {
		parts := make([]string, 0, len(env.UserErrors))
		for _, ue := range env.UserErrors {
			if ue.Message != "" {
				parts = append(parts, ue.Message)
			}
		}
		msg = strings.Join(parts, ", ")
	}
	if msg == "" {
		msg = env.Message
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch {
	case status >= 500:
		return domain.WrapError(domain.ErrServer, fmt.Errorf("status %d: %s", status, msg), "backend server error")
	case status == http.StatusUnauthorized && tokenRoute:
		return domain.NewError(domain.ErrAuthExpired, "%s", msg)
	case status == http.StatusNotFound:
		return &domain.Error{Kind: domain.ErrRemoteRejection, Message: msg, Cause: domain.ErrNotFound}
	case status == http.StatusConflict:
		return &domain.Error{Kind: domain.ErrRemoteRejection, Message: msg, Cause: domain.ErrAlreadyExists}
	default:
		return domain.NewError(domain.ErrRemoteRejection, "%s", msg)
	}
}

func parseAccessToken(env tokenEnvelope) (*AccessToken, error) {
	tok := &AccessToken{Token: env.AccessToken}
	if env.ExpiresAt != "" {
		exp, err := time.Parse(time.RFC3339, env.ExpiresAt)
		if err != nil {
			return nil, domain.WrapError(domain.ErrRemoteRejection, err, "malformed token expiry")
		}
		tok.ExpiresAt = exp
	}
	return tok, nil
}

func validateLines(lines []domain.LineInput) error {
	if len(lines) == 0 {
		return domain.NewError(domain.ErrEmptyCart, "no line items")
	}
	for _, l := range lines {
		if strings.TrimSpace(l.VariantID) == "" || l.Quantity <= 0 {
			return domain.NewError(domain.ErrValidation, "each line item must have variantId and a positive quantity")
		}
	}
	return nil
}

func malformed(msg string) error {
	return domain.NewError(domain.ErrRemoteRejection, "malformed response: %s", msg)
}
