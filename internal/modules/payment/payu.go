package payment

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"funding/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	payuSessionTTL = 15 * time.Minute
	payuTokenPath  = "/pl/standard/user/oauth/authorize"
	payuOrdersPath = "/api/v2_1/orders"
)

var (
	payuRate       = decimal.RequireFromString("0.019")
	payuCurrencies = []domain.Currency{domain.CurrencyPLN}
	payuMethods    = []domain.PaymentMethod{domain.MethodCard, domain.MethodBlik, domain.MethodBankTransfer}
)

type PayUConfig struct {
	ClientID     string
	ClientSecret string
	PosID        string
	SecondKey    string
	APIURL       string
	NotifyURL    string
	ContinueURL  string
	HTTPClient   *http.Client
}

// PayUProvider talks to the PayU REST API (orders v2.1) directly.
type PayUProvider struct {
	cfg        PayUConfig
	httpClient *http.Client
	rec        Reconciler
	loggerf    func(format string, args ...interface{})
	now        func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewPayUProvider(cfg PayUConfig, rec Reconciler, loggerf func(format string, args ...interface{})) *PayUProvider {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	cfg.APIURL = strings.TrimSuffix(cfg.APIURL, "/")
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	// order creation answers with 302 and a JSON body we need to read
	client := *hc
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	return &PayUProvider{
		cfg:        cfg,
		httpClient: &client,
		rec:        rec,
		loggerf:    loggerf,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (p *PayUProvider) Name() domain.PaymentProvider { return domain.ProviderPayU }

func (p *PayUProvider) PrimaryMarket() string { return "PL" }

func (p *PayUProvider) SupportedCurrencies() []domain.Currency { return payuCurrencies }

func (p *PayUProvider) SupportedMethods() []domain.PaymentMethod { return payuMethods }

func (p *PayUProvider) SupportsCurrency(c domain.Currency) bool {
	return containsCurrency(payuCurrencies, c)
}

func (p *PayUProvider) SupportsPaymentMethod(m domain.PaymentMethod) bool {
	return containsMethod(payuMethods, m)
}

// CalculateFee is a flat 1.9% with no fixed component.
func (p *PayUProvider) CalculateFee(amount decimal.Decimal, _ domain.Currency) decimal.Decimal {
	return percentFee(amount, payuRate, decimal.Zero)
}

type payuStatus struct {
	StatusCode string `json:"statusCode"`
	StatusDesc string `json:"statusDesc,omitempty"`
}

func (s payuStatus) ok() bool {
	return s.StatusCode == "SUCCESS" || strings.HasPrefix(s.StatusCode, "WARNING_CONTINUE")
}

type payuOrderRequest struct {
	NotifyURL     string          `json:"notifyUrl"`
	ContinueURL   string          `json:"continueUrl,omitempty"`
	CustomerIP    string          `json:"customerIp"`
	MerchantPosID string          `json:"merchantPosId"`
	Description   string          `json:"description"`
	CurrencyCode  string          `json:"currencyCode"`
	TotalAmount   string          `json:"totalAmount"`
	ExtOrderID    string          `json:"extOrderId"`
	ValidityTime  string          `json:"validityTime,omitempty"`
	Buyer         *payuBuyer      `json:"buyer,omitempty"`
	Products      []payuProduct   `json:"products"`
	PayMethods    *payuPayMethods `json:"payMethods,omitempty"`
}

type payuBuyer struct {
	Email    string `json:"email"`
	Language string `json:"language,omitempty"`
}

type payuProduct struct {
	Name      string `json:"name"`
	UnitPrice string `json:"unitPrice"`
	Quantity  string `json:"quantity"`
}

type payuPayMethods struct {
	PayMethod payuPayMethod `json:"payMethod"`
}

type payuPayMethod struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type payuOrderResponse struct {
	Status      payuStatus `json:"status"`
	RedirectURI string     `json:"redirectUri"`
	OrderID     string     `json:"orderId"`
	ExtOrderID  string     `json:"extOrderId"`
}

type payuOrder struct {
	OrderID      string `json:"orderId"`
	ExtOrderID   string `json:"extOrderId,omitempty"`
	Status       string `json:"status"`
	TotalAmount  string `json:"totalAmount,omitempty"`
	CurrencyCode string `json:"currencyCode,omitempty"`
}

type payuOrdersResponse struct {
	Orders []payuOrder `json:"orders"`
	Status payuStatus  `json:"status"`
}

type payuRefundResponse struct {
	OrderID string `json:"orderId"`
	Refund  struct {
		RefundID string `json:"refundId"`
		Amount   string `json:"amount"`
		Status   string `json:"status"`
	} `json:"refund"`
	Status payuStatus `json:"status"`
}

type payuNotification struct {
	Order *payuOrder `json:"order"`
}

func (p *PayUProvider) CreatePayment(ctx context.Context, req ProviderPaymentRequest) (*domain.Payment, error) {
	d := req.Donation
	if d.Currency != domain.CurrencyPLN {
		return nil, fmt.Errorf("payu %s: %w", d.Currency, ErrUnsupportedCurrency)
	}

	order := payuOrderRequest{
		NotifyURL:     p.cfg.NotifyURL,
		ContinueURL:   firstNonBlank(req.ReturnURL, p.cfg.ContinueURL),
		CustomerIP:    firstNonBlank(req.ClientIP, "127.0.0.1"),
		MerchantPosID: p.cfg.PosID,
		Description:   donationDescription(d),
		CurrencyCode:  string(d.Currency),
		TotalAmount:   strconv.FormatInt(toMinorUnits(d.Amount), 10),
		ExtOrderID:    fmt.Sprintf("d%d_%s", d.ID, uuid.NewString()[:8]),
		ValidityTime:  strconv.Itoa(int(payuSessionTTL.Seconds())),
		Products:      payuProducts(d),
		PayMethods:    payuPayMethodFor(req),
	}
	if d.IsDonorUsernameEmail() {
		order.Buyer = &payuBuyer{Email: d.DonorUsername, Language: "pl"}
	}

	var resp payuOrderResponse
	if err := p.do(ctx, http.MethodPost, payuOrdersPath, order, &resp); err != nil {
		p.loggerf("level=error msg=payu create order failed donation_id=%d err=%v", d.ID, err)
		return nil, fmt.Errorf("payu create order: %w", err)
	}
	if !resp.Status.ok() || resp.OrderID == "" {
		return nil, fmt.Errorf("payu create order status=%s: %w", resp.Status.StatusCode, domain.ErrProviderUnavailable)
	}
	p.loggerf("level=info msg=payu order created donation_id=%d external_id=%s ext_order_id=%s", d.ID, resp.OrderID, order.ExtOrderID)

	meta := donationMetadata(p.Name(), d)
	meta["extOrderId"] = order.ExtOrderID
	payment := newPendingPayment(p, req, resp.OrderID, domain.PaymentPending, p.now().Add(payuSessionTTL), meta)
	payment.CheckoutURL = resp.RedirectURI
	if err := p.rec.RecordPaymentAttempt(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

func (p *PayUProvider) GetPaymentStatus(ctx context.Context, externalID string) (*domain.Payment, error) {
	var resp payuOrdersResponse
	if err := p.do(ctx, http.MethodGet, payuOrdersPath+"/"+url.PathEscape(externalID), nil, &resp); err != nil {
		return nil, fmt.Errorf("payu get order %s: %w", externalID, err)
	}
	if len(resp.Orders) == 0 {
		return nil, fmt.Errorf("payu order %s: %w", externalID, domain.ErrNotFound)
	}
	o := resp.Orders[0]
	payment, _, err := p.rec.ApplyPaymentUpdate(ctx, payuUpdate(externalID, mapPayUStatus(o.Status), o.Status))
	return payment, err
}

func (p *PayUProvider) CancelPayment(ctx context.Context, externalID string) (*domain.Payment, error) {
	var resp payuOrderResponse
	if err := p.do(ctx, http.MethodDelete, payuOrdersPath+"/"+url.PathEscape(externalID), nil, &resp); err != nil {
		return nil, fmt.Errorf("payu cancel order %s: %w", externalID, err)
	}
	if !resp.Status.ok() {
		return nil, fmt.Errorf("payu cancel order status=%s: %w", resp.Status.StatusCode, domain.ErrProviderUnavailable)
	}
	payment, _, err := p.rec.ApplyPaymentUpdate(ctx, payuUpdate(externalID, domain.PaymentCancelled, "CANCELED"))
	return payment, err
}

func (p *PayUProvider) RefundPayment(ctx context.Context, externalID string, amount decimal.Decimal) (*domain.Payment, error) {
	body := map[string]interface{}{
		"refund": map[string]string{
			"description": "Donation refund",
			"amount":      strconv.FormatInt(toMinorUnits(amount), 10),
		},
	}
	var resp payuRefundResponse
	if err := p.do(ctx, http.MethodPost, payuOrdersPath+"/"+url.PathEscape(externalID)+"/refunds", body, &resp); err != nil {
		return nil, fmt.Errorf("payu refund %s: %w", externalID, err)
	}
	if !resp.Status.ok() {
		return nil, fmt.Errorf("payu refund status=%s: %w", resp.Status.StatusCode, domain.ErrProviderUnavailable)
	}
	p.loggerf("level=info msg=payu refund created external_id=%s refund_id=%s amount=%s", externalID, resp.Refund.RefundID, amount.StringFixed(2))

	payment, _, err := p.rec.ApplyPaymentUpdate(ctx, domain.PaymentUpdate{ExternalID: externalID, RefundAmount: amount})
	return payment, err
}

func (p *PayUProvider) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if !p.verifySignature(payload, signature) {
		p.loggerf("level=warn msg=payu webhook signature rejected header=%q", signature)
		return ErrInvalidSignature
	}

	var n payuNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return fmt.Errorf("decode payu notification: %w", err)
	}
	if n.Order == nil || n.Order.OrderID == "" {
		p.loggerf("level=info msg=payu notification without order ignored")
		return nil
	}
	p.loggerf("level=info msg=payu webhook received external_id=%s status=%s", n.Order.OrderID, n.Order.Status)
	return applyNotification(ctx, p.rec, p.loggerf, payuUpdate(n.Order.OrderID, mapPayUStatus(n.Order.Status), n.Order.Status))
}

// verifySignature checks the OpenPayu-Signature header:
// sender=checkout;signature=<hex>;algorithm=MD5;content=DOCUMENT
func (p *PayUProvider) verifySignature(payload []byte, header string) bool {
	if p.cfg.SecondKey == "" || header == "" {
		return false
	}
	fields := map[string]string{}
	for _, part := range strings.Split(header, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok {
			fields[strings.ToLower(k)] = v
		}
	}
	got := strings.ToLower(fields["signature"])
	if got == "" {
		return false
	}
	var want string
	switch strings.ToUpper(strings.ReplaceAll(fields["algorithm"], "-", "")) {
	case "", "MD5":
		want = md5Hex(string(payload) + p.cfg.SecondKey)
	case "SHA256":
		sum := sha256.Sum256(append(append([]byte{}, payload...), p.cfg.SecondKey...))
		want = hex.EncodeToString(sum[:])
	default:
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (p *PayUProvider) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" && p.now().Before(p.tokenExpiry) {
		return p.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientSecret)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.APIURL+payuTokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("payu oauth returned status %d: %w", resp.StatusCode, domain.ErrProviderUnavailable)
	}
	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil || tok.AccessToken == "" {
		return "", fmt.Errorf("payu oauth response unreadable: %w", domain.ErrProviderUnavailable)
	}
	ttl := time.Duration(tok.ExpiresIn) * time.Second
	if ttl > time.Minute {
		ttl -= time.Minute
	}
	p.token = tok.AccessToken
	p.tokenExpiry = p.now().Add(ttl)
	return p.token, nil
}

func (p *PayUProvider) do(ctx context.Context, method, path string, body, out interface{}) error {
	token, err := p.accessToken(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.cfg.APIURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("payu %s %s: %w", method, path, domain.ErrNotFound)
	case resp.StatusCode == http.StatusUnauthorized:
		p.mu.Lock()
		p.token = ""
		p.mu.Unlock()
		return fmt.Errorf("payu rejected credentials: %w", domain.ErrProviderUnavailable)
	case resp.StatusCode >= 400:
		return fmt.Errorf("payu %s %s returned status %d body=%s: %w", method, path, resp.StatusCode, string(raw), domain.ErrProviderUnavailable)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode payu response: %w: %w", domain.ErrProviderUnavailable, err)
	}
	return nil
}

func payuProducts(d *domain.Donation) []payuProduct {
	if d.DonationType == domain.DonationMaterial && d.UnitPrice.Valid && d.Quantity > 0 {
		return []payuProduct{{
			Name:      d.ItemName,
			UnitPrice: strconv.FormatInt(toMinorUnits(d.UnitPrice.Decimal), 10),
			Quantity:  strconv.Itoa(d.Quantity),
		}}
	}
	return []payuProduct{{
		Name:      fmt.Sprintf("Donation for shelter %d", d.ShelterID),
		UnitPrice: strconv.FormatInt(toMinorUnits(d.Amount), 10),
		Quantity:  "1",
	}}
}

func payuPayMethodFor(req ProviderPaymentRequest) *payuPayMethods {
	switch req.Method {
	case domain.MethodBlik:
		if code := strings.TrimSpace(req.BlikCode); code != "" {
			return &payuPayMethods{PayMethod: payuPayMethod{Type: "BLIK_AUTHORIZATION_CODE", Value: code}}
		}
		return &payuPayMethods{PayMethod: payuPayMethod{Type: "PBL", Value: "blik"}}
	case domain.MethodBankTransfer:
		if code := strings.TrimSpace(req.BankCode); code != "" {
			return &payuPayMethods{PayMethod: payuPayMethod{Type: "PBL", Value: code}}
		}
	}
	return nil
}

func payuUpdate(externalID string, status domain.PaymentStatus, raw string) domain.PaymentUpdate {
	upd := domain.PaymentUpdate{ExternalID: externalID, Status: status}
	if status == domain.PaymentFailed {
		upd.FailureReason = "order rejected by payu"
		upd.FailureCode = raw
	}
	return upd
}

func mapPayUStatus(s string) domain.PaymentStatus {
	switch strings.ToUpper(s) {
	case "NEW", "PENDING":
		return domain.PaymentPending
	case "WAITING_FOR_CONFIRMATION":
		return domain.PaymentProcessing
	case "COMPLETED":
		return domain.PaymentSucceeded
	case "CANCELED":
		return domain.PaymentCancelled
	case "REJECTED":
		return domain.PaymentFailed
	}
	return domain.PaymentPending
}

func md5Hex(s string) string {
	h := md5.Sum([]byte(s))
	return hex.EncodeToString(h[:])
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
